package balance

import (
	"fmt"

	"github.com/mvale/housetab/internal/model"
	"github.com/mvale/housetab/internal/store"
)

// resolveSplit materializes and validates an expense split. An empty
// split means every current family member. The returned slice is
// deduplicated so a member never carries two shares of one expense.
func resolveSplit(splitAmong []string, members []model.Member) ([]string, error) {
	inFamily := make(map[string]bool, len(members))
	for _, m := range members {
		inFamily[m.ID] = true
	}
	if len(splitAmong) == 0 {
		all := make([]string, len(members))
		for i, m := range members {
			all[i] = m.ID
		}
		return all, nil
	}
	seen := make(map[string]bool, len(splitAmong))
	var split []string
	for _, memberID := range splitAmong {
		if !inFamily[memberID] {
			return nil, invalid(ReasonOutsideFamily, "member %s does not belong to this family", memberID)
		}
		if seen[memberID] {
			continue
		}
		seen[memberID] = true
		split = append(split, memberID)
	}
	return split, nil
}

// CreateExpense records an expense and folds it into the cache in the
// same transaction.
func (s *Service) CreateExpense(description string, amount float64, paidBy string, splitAmong []string) (*model.Expense, error) {
	if amount <= 0 {
		return nil, invalid(ReasonInvalidAmount, "expense amount must be positive")
	}
	payer, err := store.NewMemberStore(s.db).GetByID(paidBy)
	if err != nil {
		return nil, err
	}
	if payer == nil {
		return nil, notFound("member", paidBy)
	}

	lock := s.familyLock(payer.FamilyID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	members, err := store.NewMemberStore(tx).ListByFamily(payer.FamilyID)
	if err != nil {
		return nil, err
	}
	split, err := resolveSplit(splitAmong, members)
	if err != nil {
		return nil, err
	}

	expense := &model.Expense{
		Description: description,
		Amount:      amount,
		PaidBy:      paidBy,
		FamilyID:    payer.FamilyID,
		SplitAmong:  split,
	}
	if err := store.NewExpenseStore(tx).Create(expense); err != nil {
		return nil, err
	}

	applied, err := s.applyExpenseCreated(tx, expense)
	if err != nil {
		return nil, err
	}
	if !applied {
		if _, err := s.rebuildCache(tx, payer.FamilyID, "incremental_fallback"); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return expense, nil
}

// UpdateExpense rewrites an expense. Updates can change the amount, the
// payer and the split in one shot, so the cache is always rebuilt rather
// than patched.
func (s *Service) UpdateExpense(id, description string, amount float64, paidBy string, splitAmong []string) (*model.Expense, error) {
	if amount <= 0 {
		return nil, invalid(ReasonInvalidAmount, "expense amount must be positive")
	}
	existing, err := store.NewExpenseStore(s.db).GetByID(id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, notFound("expense", id)
	}

	lock := s.familyLock(existing.FamilyID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	members, err := store.NewMemberStore(tx).ListByFamily(existing.FamilyID)
	if err != nil {
		return nil, err
	}
	inFamily := false
	for _, m := range members {
		if m.ID == paidBy {
			inFamily = true
			break
		}
	}
	if !inFamily {
		return nil, invalid(ReasonOutsideFamily, "payer %s does not belong to this family", paidBy)
	}
	split, err := resolveSplit(splitAmong, members)
	if err != nil {
		return nil, err
	}

	updated := &model.Expense{
		ID:          existing.ID,
		Description: description,
		Amount:      amount,
		PaidBy:      paidBy,
		FamilyID:    existing.FamilyID,
		SplitAmong:  split,
		CreatedAt:   existing.CreatedAt,
	}
	if err := store.NewExpenseStore(tx).Update(updated); err != nil {
		return nil, err
	}
	if _, err := s.rebuildCache(tx, existing.FamilyID, "expense_update"); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return updated, nil
}

// DeleteExpense removes an expense and rebuilds the cache.
func (s *Service) DeleteExpense(id string) (*model.Expense, error) {
	existing, err := store.NewExpenseStore(s.db).GetByID(id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, notFound("expense", id)
	}

	lock := s.familyLock(existing.FamilyID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := store.NewExpenseStore(tx).Delete(id); err != nil {
		return nil, err
	}
	if _, err := s.rebuildCache(tx, existing.FamilyID, "expense_delete"); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return existing, nil
}
