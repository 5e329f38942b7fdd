package balance

import "math"

// pairEpsilon is the threshold below which a pairwise debt counts as settled.
const pairEpsilon = 0.001

// sumEpsilon bounds the family-wide net sum when checking consistency.
// Looser than pairEpsilon because it accumulates float error across members.
const sumEpsilon = 0.01

// debtGraph maps debtor -> creditor -> outstanding amount. Entries are
// always positive; anything at or below pairEpsilon is removed.
type debtGraph map[string]map[string]float64

func (g debtGraph) add(debtor, creditor string, amount float64) {
	if g[debtor] == nil {
		g[debtor] = make(map[string]float64)
	}
	g[debtor][creditor] += amount
}

func (g debtGraph) amount(debtor, creditor string) float64 {
	return g[debtor][creditor]
}

func (g debtGraph) set(debtor, creditor string, amount float64) {
	if g[debtor] == nil {
		g[debtor] = make(map[string]float64)
	}
	g[debtor][creditor] = amount
}

func (g debtGraph) remove(debtor, creditor string) {
	delete(g[debtor], creditor)
	if len(g[debtor]) == 0 {
		delete(g, debtor)
	}
}

// reduce lowers the debt from debtor to creditor by at most amount and
// returns the reduction actually applied. The entry is dropped once the
// remainder falls to pairEpsilon or below; reducing a debt that does not
// exist is a no-op.
func (g debtGraph) reduce(debtor, creditor string, amount float64) float64 {
	current, ok := g[debtor][creditor]
	if !ok {
		return 0
	}
	applied := math.Min(current, amount)
	if current-applied <= pairEpsilon {
		g.remove(debtor, creditor)
		return current
	}
	g[debtor][creditor] = current - applied
	return applied
}

// net collapses mutual debts so at most one direction survives per pair.
// It runs exactly once, after every expense and payment has been folded
// in; netting earlier would make results depend on event order.
func (g debtGraph) net() {
	type pair struct{ a, b string }
	var mutual []pair
	for debtor, creditors := range g {
		for creditor := range creditors {
			if debtor < creditor {
				if _, ok := g[creditor][debtor]; ok {
					mutual = append(mutual, pair{debtor, creditor})
				}
			}
		}
	}
	for _, p := range mutual {
		ab := g[p.a][p.b]
		ba := g[p.b][p.a]
		switch {
		case math.Abs(ab-ba) <= pairEpsilon:
			g.remove(p.a, p.b)
			g.remove(p.b, p.a)
		case ab > ba:
			g.remove(p.b, p.a)
			g.set(p.a, p.b, ab-ba)
		default:
			g.remove(p.a, p.b)
			g.set(p.b, p.a, ba-ab)
		}
	}
}
