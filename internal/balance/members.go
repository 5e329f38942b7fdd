package balance

import (
	"fmt"

	"github.com/mvale/housetab/internal/model"
	"github.com/mvale/housetab/internal/store"
)

// DeleteMember removes a member who has no expense or payment history.
// Participant links on other members' expenses cascade away, which
// changes those splits, so the cache is rebuilt before the transaction
// commits.
func (s *Service) DeleteMember(id string) (*model.Member, error) {
	member, err := store.NewMemberStore(s.db).GetByID(id)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, notFound("member", id)
	}

	paid, err := store.NewExpenseStore(s.db).ListByPayer(id)
	if err != nil {
		return nil, err
	}
	if len(paid) > 0 {
		return nil, invalid(ReasonMemberHasHistory, "member %s has recorded expenses and cannot be deleted", member.Name)
	}
	payments, err := store.NewPaymentStore(s.db).ListByMember(id)
	if err != nil {
		return nil, err
	}
	if len(payments) > 0 {
		return nil, invalid(ReasonMemberHasHistory, "member %s has recorded payments and cannot be deleted", member.Name)
	}

	lock := s.familyLock(member.FamilyID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := store.NewMemberStore(tx).Delete(id); err != nil {
		return nil, err
	}
	if _, err := s.rebuildCache(tx, member.FamilyID, "member_delete"); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return member, nil
}
