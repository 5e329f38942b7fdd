package balance

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/mvale/housetab/internal/model"
	"github.com/mvale/housetab/internal/store"
)

type ConsistencyReport struct {
	FamilyID    string    `json:"family_id"`
	Consistent  bool      `json:"consistent"`
	NetSum      float64   `json:"net_sum"`
	MemberCount int       `json:"member_count"`
	CheckedAt   time.Time `json:"checked_at"`
}

type DuplicateGroup struct {
	FromMemberID string          `json:"from_member_id"`
	ToMemberID   string          `json:"to_member_id"`
	Amount       float64         `json:"amount"`
	Count        int             `json:"count"`
	Payments     []model.Payment `json:"payments"`
	KeepID       string          `json:"keep_id"`
}

type DuplicateReport struct {
	FamilyID    string           `json:"family_id"`
	Groups      []DuplicateGroup `json:"groups"`
	GeneratedAt time.Time        `json:"generated_at"`
}

type CleanupResult struct {
	FamilyID        string `json:"family_id"`
	GroupsAffected  int    `json:"groups_affected"`
	PaymentsDeleted int    `json:"payments_deleted"`
	CacheRebuilt    bool   `json:"cache_rebuilt"`
}

// VerifyBalanceConsistency recomputes the family from history and checks
// that the net balances sum to zero. A failure means float drift or a
// bug in the computation itself, never a stale cache; the cache plays no
// part here.
func (s *Service) VerifyBalanceConsistency(familyID string) (*ConsistencyReport, error) {
	if err := s.requireFamily(familyID); err != nil {
		return nil, err
	}
	balances, err := s.recompute(s.db, familyID, "verify")
	if err != nil {
		return nil, err
	}
	var netSum float64
	for _, b := range balances {
		netSum += b.NetBalance
	}
	report := &ConsistencyReport{
		FamilyID:    familyID,
		Consistent:  math.Abs(netSum) <= sumEpsilon,
		NetSum:      netSum,
		MemberCount: len(balances),
		CheckedAt:   time.Now().UTC(),
	}
	if !report.Consistent {
		s.logger.Warn("balance consistency violated", "family_id", familyID, "net_sum", netSum)
	}
	return report, nil
}

// DiagnoseDuplicatePayments reports groups of active payments that share
// sender, receiver and amount. Within each group payments are listed
// newest first and the newest is the one to keep.
func (s *Service) DiagnoseDuplicatePayments(familyID string) (*DuplicateReport, error) {
	if err := s.requireFamily(familyID); err != nil {
		return nil, err
	}
	groups, err := duplicateGroups(s.db, familyID)
	if err != nil {
		return nil, err
	}
	return &DuplicateReport{
		FamilyID:    familyID,
		Groups:      groups,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// CleanupDuplicatePayments deletes every duplicate except the newest in
// each group. The cache is rebuilt when a confirmed payment was among
// the deleted, since only confirmed payments move balances.
func (s *Service) CleanupDuplicatePayments(familyID string) (*CleanupResult, error) {
	if err := s.requireFamily(familyID); err != nil {
		return nil, err
	}

	lock := s.familyLock(familyID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	groups, err := duplicateGroups(tx, familyID)
	if err != nil {
		return nil, err
	}

	result := &CleanupResult{FamilyID: familyID}
	paymentStore := store.NewPaymentStore(tx)
	confirmedDeleted := false
	for _, g := range groups {
		result.GroupsAffected++
		for _, p := range g.Payments {
			if p.ID == g.KeepID {
				continue
			}
			if err := paymentStore.Delete(p.ID); err != nil {
				return nil, err
			}
			result.PaymentsDeleted++
			if p.Status == model.PaymentStatusConfirm {
				confirmedDeleted = true
			}
		}
	}
	if confirmedDeleted {
		if _, err := s.rebuildCache(tx, familyID, "cleanup"); err != nil {
			return nil, err
		}
		result.CacheRebuilt = true
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	if result.PaymentsDeleted > 0 {
		s.logger.Info("duplicate payments removed",
			"family_id", familyID,
			"groups", result.GroupsAffected,
			"deleted", result.PaymentsDeleted,
			"cache_rebuilt", result.CacheRebuilt)
	}
	return result, nil
}

// duplicateGroups groups pending and confirmed payments by (from, to,
// amount). Inactive payments are ignored; they no longer count toward
// anything.
func duplicateGroups(q store.Querier, familyID string) ([]DuplicateGroup, error) {
	payments, err := store.NewPaymentStore(q).ListByFamily(familyID)
	if err != nil {
		return nil, err
	}

	type key struct {
		from, to string
		amount   float64
	}
	grouped := make(map[key][]model.Payment)
	for _, p := range payments {
		if p.Status == model.PaymentStatusInactive {
			continue
		}
		k := key{from: p.FromMemberID, to: p.ToMemberID, amount: p.Amount}
		grouped[k] = append(grouped[k], p)
	}

	var groups []DuplicateGroup
	for k, members := range grouped {
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool {
			if !members[i].CreatedAt.Equal(members[j].CreatedAt) {
				return members[i].CreatedAt.After(members[j].CreatedAt)
			}
			return members[i].ID > members[j].ID
		})
		groups = append(groups, DuplicateGroup{
			FromMemberID: k.from,
			ToMemberID:   k.to,
			Amount:       k.amount,
			Count:        len(members),
			Payments:     members,
			KeepID:       members[0].ID,
		})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].FromMemberID != groups[j].FromMemberID {
			return groups[i].FromMemberID < groups[j].FromMemberID
		}
		if groups[i].ToMemberID != groups[j].ToMemberID {
			return groups[i].ToMemberID < groups[j].ToMemberID
		}
		return groups[i].Amount < groups[j].Amount
	})
	return groups, nil
}
