package balance

import "testing"

func TestGraphReduceCapsAtOutstanding(t *testing.T) {
	g := make(debtGraph)
	g.add("bob", "alice", 50)

	applied := g.reduce("bob", "alice", 80)
	if applied != 50 {
		t.Errorf("applied = %f, want 50", applied)
	}
	if g.amount("bob", "alice") != 0 {
		t.Errorf("remaining = %f, want entry removed", g.amount("bob", "alice"))
	}
}

func TestGraphReduceDropsSettledEntry(t *testing.T) {
	g := make(debtGraph)
	g.add("bob", "alice", 50)

	// 49.9995 leaves less than pairEpsilon outstanding; the entry goes
	// away entirely rather than lingering as float dust.
	applied := g.reduce("bob", "alice", 49.9995)
	if applied != 50 {
		t.Errorf("applied = %f, want the full 50", applied)
	}
	if _, ok := g["bob"]; ok {
		t.Error("expected bob's debt map to be removed once empty")
	}
}

func TestGraphReduceMissingDebtIsNoop(t *testing.T) {
	g := make(debtGraph)
	if applied := g.reduce("bob", "alice", 25); applied != 0 {
		t.Errorf("applied = %f, want 0", applied)
	}
}

func TestGraphNetCollapsesMutualPair(t *testing.T) {
	g := make(debtGraph)
	g.add("alice", "bob", 75)
	g.add("bob", "alice", 50)
	g.net()

	if got := g.amount("alice", "bob"); !approx(got, 25) {
		t.Errorf("alice->bob = %f, want 25", got)
	}
	if got := g.amount("bob", "alice"); got != 0 {
		t.Errorf("bob->alice = %f, want 0", got)
	}
}

func TestGraphNetRemovesEqualPair(t *testing.T) {
	g := make(debtGraph)
	g.add("alice", "bob", 40)
	g.add("bob", "alice", 40)
	g.net()

	if len(g) != 0 {
		t.Errorf("graph = %v, want empty after equal netting", g)
	}
}

func TestGraphNetLeavesOneWayDebtsAlone(t *testing.T) {
	g := make(debtGraph)
	g.add("alice", "bob", 40)
	g.add("carol", "bob", 10)
	g.net()

	if got := g.amount("alice", "bob"); !approx(got, 40) {
		t.Errorf("alice->bob = %f, want 40", got)
	}
	if got := g.amount("carol", "bob"); !approx(got, 10) {
		t.Errorf("carol->bob = %f, want 10", got)
	}
}
