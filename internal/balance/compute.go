// Package balance computes who owes whom within a family and keeps the
// persisted balance cache consistent with the expense and payment
// history. The history is the single source of truth; every cached
// number can be rebuilt from it at any time.
package balance

import (
	"sort"

	"github.com/mvale/housetab/internal/model"
)

// fold replays expenses and confirmed payments into a raw debt graph.
// Each expense splits evenly across its participants, with the payer's
// own share skipped. Confirmed payments then reduce the matching debt,
// capped at what is actually outstanding. Netting is deliberately not
// part of fold; the caller nets once at the end.
func fold(memberIDs []string, expenses []model.Expense, payments []model.Payment) debtGraph {
	g := make(debtGraph)
	for _, e := range expenses {
		participants := e.SplitAmong
		if len(participants) == 0 {
			participants = memberIDs
		}
		if len(participants) == 0 {
			continue
		}
		share := e.Amount / float64(len(participants))
		for _, memberID := range participants {
			if memberID == e.PaidBy {
				continue
			}
			g.add(memberID, e.PaidBy, share)
		}
	}
	for _, p := range payments {
		if p.Status != model.PaymentStatusConfirm {
			continue
		}
		debtor, creditor := p.Direction()
		g.reduce(debtor, creditor, p.Amount)
	}
	return g
}

// Compute derives every member's balance from scratch. Totals are taken
// from the netted graph, so a member's total_debt and total_owed never
// both count the same pair.
func Compute(members []model.Member, expenses []model.Expense, payments []model.Payment) []model.MemberBalance {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	g := fold(ids, expenses, payments)
	g.net()
	return assemble(members, g)
}

func assemble(members []model.Member, g debtGraph) []model.MemberBalance {
	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m.ID] = m.Name
	}

	balances := make([]model.MemberBalance, 0, len(members))
	for _, m := range members {
		b := model.MemberBalance{
			MemberID:   m.ID,
			MemberName: m.Name,
			Debts:      []model.DebtDetail{},
			Credits:    []model.CreditDetail{},
		}
		for creditor, amount := range g[m.ID] {
			b.TotalDebt += amount
			b.Debts = append(b.Debts, model.DebtDetail{
				ToID:   creditor,
				ToName: names[creditor],
				Amount: amount,
			})
		}
		for debtor, creditors := range g {
			if amount, ok := creditors[m.ID]; ok {
				b.TotalOwed += amount
				b.Credits = append(b.Credits, model.CreditDetail{
					FromID:   debtor,
					FromName: names[debtor],
					Amount:   amount,
				})
			}
		}
		b.NetBalance = b.TotalOwed - b.TotalDebt
		sortDebts(b.Debts)
		sortCredits(b.Credits)
		balances = append(balances, b)
	}
	return balances
}

func sortDebts(debts []model.DebtDetail) {
	sort.Slice(debts, func(i, j int) bool {
		if debts[i].ToName != debts[j].ToName {
			return debts[i].ToName < debts[j].ToName
		}
		return debts[i].ToID < debts[j].ToID
	})
}

func sortCredits(credits []model.CreditDetail) {
	sort.Slice(credits, func(i, j int) bool {
		if credits[i].FromName != credits[j].FromName {
			return credits[i].FromName < credits[j].FromName
		}
		return credits[i].FromID < credits[j].FromID
	})
}
