package balance

import (
	"time"

	"github.com/mvale/housetab/internal/model"
	"github.com/mvale/housetab/internal/store"
)

// rebuildCache recomputes the family from history and rewrites both
// cache tables inside the caller's transaction. Returns the balances
// the cache now holds.
func (s *Service) rebuildCache(q store.Querier, familyID, trigger string) ([]model.MemberBalance, error) {
	balances, err := s.recompute(q, familyID, trigger)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	memberRows := make([]model.MemberBalanceRow, 0, len(balances))
	var debtRows []model.DebtRow
	for _, b := range balances {
		memberRows = append(memberRows, model.MemberBalanceRow{
			MemberID:    b.MemberID,
			FamilyID:    familyID,
			TotalDebt:   b.TotalDebt,
			TotalOwed:   b.TotalOwed,
			NetBalance:  b.NetBalance,
			LastUpdated: now,
		})
		for _, d := range b.Debts {
			debtRows = append(debtRows, model.DebtRow{
				FromMemberID: b.MemberID,
				ToMemberID:   d.ToID,
				FamilyID:     familyID,
				Amount:       d.Amount,
				LastUpdated:  now,
			})
		}
	}
	if err := store.NewBalanceCacheStore(q).ReplaceFamily(familyID, memberRows, debtRows); err != nil {
		return nil, err
	}
	s.logger.Debug("balance cache rebuilt", "family_id", familyID, "trigger", trigger, "members", len(memberRows), "debts", len(debtRows))
	return balances, nil
}

// readCachedBalances assembles balances from the cache tables. It
// reports ok=false when any member lacks a cache row, which tells the
// caller to rebuild instead of serving a partial answer.
func readCachedBalances(q store.Querier, familyID string, members []model.Member) ([]model.MemberBalance, bool, error) {
	cache := store.NewBalanceCacheStore(q)
	rows, err := cache.ListMemberRows(familyID)
	if err != nil {
		return nil, false, err
	}
	byMember := make(map[string]model.MemberBalanceRow, len(rows))
	for _, r := range rows {
		byMember[r.MemberID] = r
	}
	for _, m := range members {
		if _, ok := byMember[m.ID]; !ok {
			return nil, false, nil
		}
	}

	debtRows, err := cache.ListDebtRows(familyID)
	if err != nil {
		return nil, false, err
	}
	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m.ID] = m.Name
	}

	balances := make([]model.MemberBalance, 0, len(members))
	for _, m := range members {
		row := byMember[m.ID]
		b := model.MemberBalance{
			MemberID:   m.ID,
			MemberName: m.Name,
			TotalDebt:  row.TotalDebt,
			TotalOwed:  row.TotalOwed,
			NetBalance: row.NetBalance,
			Debts:      []model.DebtDetail{},
			Credits:    []model.CreditDetail{},
		}
		for _, d := range debtRows {
			switch m.ID {
			case d.FromMemberID:
				b.Debts = append(b.Debts, model.DebtDetail{
					ToID:   d.ToMemberID,
					ToName: names[d.ToMemberID],
					Amount: d.Amount,
				})
			case d.ToMemberID:
				b.Credits = append(b.Credits, model.CreditDetail{
					FromID:   d.FromMemberID,
					FromName: names[d.FromMemberID],
					Amount:   d.Amount,
				})
			}
		}
		sortDebts(b.Debts)
		sortCredits(b.Credits)
		balances = append(balances, b)
	}
	return balances, true, nil
}

// applyExpenseCreated folds a new expense into the cache in place. It
// reports applied=false when the cache cannot absorb the change exactly,
// in which case the caller must rebuild: a cold or partial cache, or an
// existing debt running opposite to the one this expense creates, where
// an in-place upsert would break the netting invariant.
func (s *Service) applyExpenseCreated(q store.Querier, e *model.Expense) (bool, error) {
	var others []string
	for _, memberID := range e.SplitAmong {
		if memberID != e.PaidBy {
			others = append(others, memberID)
		}
	}
	if len(others) == 0 {
		// Payer-only expense; balances are unchanged.
		return true, nil
	}
	share := e.Amount / float64(len(e.SplitAmong))

	cache := store.NewBalanceCacheStore(q)
	payerRow, err := cache.GetMemberRow(e.PaidBy)
	if err != nil {
		return false, err
	}
	if payerRow == nil {
		return false, nil
	}
	otherRows := make(map[string]*model.MemberBalanceRow, len(others))
	for _, memberID := range others {
		row, err := cache.GetMemberRow(memberID)
		if err != nil {
			return false, err
		}
		if row == nil {
			return false, nil
		}
		reverse, err := cache.GetDebtRow(e.PaidBy, memberID)
		if err != nil {
			return false, err
		}
		if reverse != nil {
			return false, nil
		}
		otherRows[memberID] = row
	}

	now := time.Now().UTC()
	for _, memberID := range others {
		debt, err := cache.GetDebtRow(memberID, e.PaidBy)
		if err != nil {
			return false, err
		}
		amount := share
		if debt != nil {
			amount += debt.Amount
		}
		if err := cache.SaveDebtRow(model.DebtRow{
			FromMemberID: memberID,
			ToMemberID:   e.PaidBy,
			FamilyID:     e.FamilyID,
			Amount:       amount,
			LastUpdated:  now,
		}); err != nil {
			return false, err
		}

		row := otherRows[memberID]
		row.TotalDebt += share
		row.NetBalance = row.TotalOwed - row.TotalDebt
		row.LastUpdated = now
		if err := cache.SaveMemberRow(*row); err != nil {
			return false, err
		}
	}

	payerRow.TotalOwed += share * float64(len(others))
	payerRow.NetBalance = payerRow.TotalOwed - payerRow.TotalDebt
	payerRow.LastUpdated = now
	if err := cache.SaveMemberRow(*payerRow); err != nil {
		return false, err
	}
	return true, nil
}

// applyPaymentConfirmed reduces the cached debt a confirmed payment
// settles. It reports applied=false when the cache rows it needs are
// missing or the payment exceeds the cached debt; both mean the cache
// is stale and must be rebuilt.
func (s *Service) applyPaymentConfirmed(q store.Querier, p *model.Payment) (bool, error) {
	debtor, creditor := p.Direction()

	cache := store.NewBalanceCacheStore(q)
	debtorRow, err := cache.GetMemberRow(debtor)
	if err != nil {
		return false, err
	}
	creditorRow, err := cache.GetMemberRow(creditor)
	if err != nil {
		return false, err
	}
	if debtorRow == nil || creditorRow == nil {
		return false, nil
	}
	debt, err := cache.GetDebtRow(debtor, creditor)
	if err != nil {
		return false, err
	}
	if debt == nil || p.Amount > debt.Amount+pairEpsilon {
		return false, nil
	}

	now := time.Now().UTC()
	applied := p.Amount
	if debt.Amount-p.Amount <= pairEpsilon {
		// The debt is settled; absorb the sub-epsilon remainder.
		applied = debt.Amount
		if err := cache.DeleteDebtRow(debtor, creditor); err != nil {
			return false, err
		}
	} else {
		debt.Amount -= p.Amount
		debt.LastUpdated = now
		if err := cache.SaveDebtRow(*debt); err != nil {
			return false, err
		}
	}

	debtorRow.TotalDebt -= applied
	if debtorRow.TotalDebt < 0 {
		debtorRow.TotalDebt = 0
	}
	debtorRow.NetBalance = debtorRow.TotalOwed - debtorRow.TotalDebt
	debtorRow.LastUpdated = now
	if err := cache.SaveMemberRow(*debtorRow); err != nil {
		return false, err
	}

	creditorRow.TotalOwed -= applied
	if creditorRow.TotalOwed < 0 {
		creditorRow.TotalOwed = 0
	}
	creditorRow.NetBalance = creditorRow.TotalOwed - creditorRow.TotalDebt
	creditorRow.LastUpdated = now
	if err := cache.SaveMemberRow(*creditorRow); err != nil {
		return false, err
	}
	return true, nil
}
