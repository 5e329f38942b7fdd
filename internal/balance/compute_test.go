package balance

import (
	"math"
	"testing"

	"github.com/mvale/housetab/internal/model"
)

func testMembers() []model.Member {
	return []model.Member{
		{ID: "m-alice", Name: "Alice", FamilyID: "fam-1"},
		{ID: "m-bob", Name: "Bob", FamilyID: "fam-1"},
		{ID: "m-carol", Name: "Carol", FamilyID: "fam-1"},
	}
}

func expense(paidBy string, amount float64, split ...string) model.Expense {
	return model.Expense{
		ID:          "e-" + paidBy,
		Description: "test expense",
		Amount:      amount,
		PaidBy:      paidBy,
		FamilyID:    "fam-1",
		SplitAmong:  split,
	}
}

func confirmedPayment(from, to string, amount float64) model.Payment {
	return model.Payment{
		FromMemberID: from,
		ToMemberID:   to,
		Amount:       amount,
		FamilyID:     "fam-1",
		Status:       model.PaymentStatusConfirm,
		Type:         model.PaymentTypePayment,
	}
}

func findBalance(t *testing.T, balances []model.MemberBalance, memberID string) model.MemberBalance {
	t.Helper()
	for _, b := range balances {
		if b.MemberID == memberID {
			return b
		}
	}
	t.Fatalf("no balance for member %s", memberID)
	return model.MemberBalance{}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) <= pairEpsilon
}

func assertZeroSum(t *testing.T, balances []model.MemberBalance) {
	t.Helper()
	var sum float64
	for _, b := range balances {
		sum += b.NetBalance
	}
	if math.Abs(sum) > sumEpsilon {
		t.Errorf("net balances sum to %f, want 0", sum)
	}
}

func TestComputeSingleExpenseSplitEvenly(t *testing.T) {
	members := testMembers()[:2]
	balances := Compute(members, []model.Expense{
		expense("m-alice", 100, "m-alice", "m-bob"),
	}, nil)

	alice := findBalance(t, balances, "m-alice")
	bob := findBalance(t, balances, "m-bob")
	if !approx(alice.NetBalance, 50) {
		t.Errorf("alice net = %f, want 50", alice.NetBalance)
	}
	if !approx(bob.NetBalance, -50) {
		t.Errorf("bob net = %f, want -50", bob.NetBalance)
	}
	if len(bob.Debts) != 1 || bob.Debts[0].ToID != "m-alice" || !approx(bob.Debts[0].Amount, 50) {
		t.Errorf("bob debts = %+v, want 50 to alice", bob.Debts)
	}
	if len(alice.Credits) != 1 || alice.Credits[0].FromID != "m-bob" || !approx(alice.Credits[0].Amount, 50) {
		t.Errorf("alice credits = %+v, want 50 from bob", alice.Credits)
	}
	assertZeroSum(t, balances)
}

func TestComputeConfirmedPaymentReducesDebt(t *testing.T) {
	members := testMembers()[:2]
	balances := Compute(members,
		[]model.Expense{expense("m-alice", 100, "m-alice", "m-bob")},
		[]model.Payment{confirmedPayment("m-bob", "m-alice", 30)},
	)

	bob := findBalance(t, balances, "m-bob")
	if !approx(bob.NetBalance, -20) {
		t.Errorf("bob net = %f, want -20", bob.NetBalance)
	}
	if !approx(bob.TotalDebt, 20) {
		t.Errorf("bob total debt = %f, want 20", bob.TotalDebt)
	}
	assertZeroSum(t, balances)
}

func TestComputePendingPaymentHasNoEffect(t *testing.T) {
	members := testMembers()[:2]
	pending := confirmedPayment("m-bob", "m-alice", 30)
	pending.Status = model.PaymentStatusPending

	balances := Compute(members,
		[]model.Expense{expense("m-alice", 100, "m-alice", "m-bob")},
		[]model.Payment{pending},
	)
	if bob := findBalance(t, balances, "m-bob"); !approx(bob.NetBalance, -50) {
		t.Errorf("bob net = %f, want -50 with pending payment", bob.NetBalance)
	}
}

func TestComputeRejectedPaymentHasNoEffect(t *testing.T) {
	members := testMembers()[:2]
	rejected := confirmedPayment("m-bob", "m-alice", 30)
	rejected.Status = model.PaymentStatusInactive

	balances := Compute(members,
		[]model.Expense{expense("m-alice", 100, "m-alice", "m-bob")},
		[]model.Payment{rejected},
	)
	if bob := findBalance(t, balances, "m-bob"); !approx(bob.NetBalance, -50) {
		t.Errorf("bob net = %f, want -50 with rejected payment", bob.NetBalance)
	}
}

func TestComputeMutualDebtsNet(t *testing.T) {
	members := testMembers()[:2]
	// Bob owes Alice 75 from the first expense, Alice owes Bob 50 from
	// the second; only the 25 difference survives.
	balances := Compute(members, []model.Expense{
		{ID: "e-1", Amount: 150, PaidBy: "m-alice", FamilyID: "fam-1", SplitAmong: []string{"m-alice", "m-bob"}},
		{ID: "e-2", Amount: 100, PaidBy: "m-bob", FamilyID: "fam-1", SplitAmong: []string{"m-alice", "m-bob"}},
	}, nil)

	alice := findBalance(t, balances, "m-alice")
	bob := findBalance(t, balances, "m-bob")
	if !approx(bob.TotalDebt, 25) || !approx(bob.TotalOwed, 0) {
		t.Errorf("bob debt/owed = %f/%f, want 25/0", bob.TotalDebt, bob.TotalOwed)
	}
	if !approx(alice.TotalOwed, 25) || !approx(alice.TotalDebt, 0) {
		t.Errorf("alice owed/debt = %f/%f, want 25/0", alice.TotalOwed, alice.TotalDebt)
	}
	if len(bob.Debts) != 1 || len(alice.Debts) != 0 {
		t.Errorf("debt lists = %+v / %+v, want one bob debt and none for alice", bob.Debts, alice.Debts)
	}
	assertZeroSum(t, balances)
}

func TestComputeEqualMutualDebtsCancel(t *testing.T) {
	members := testMembers()[:2]
	balances := Compute(members, []model.Expense{
		{ID: "e-1", Amount: 100, PaidBy: "m-alice", FamilyID: "fam-1", SplitAmong: []string{"m-alice", "m-bob"}},
		{ID: "e-2", Amount: 100, PaidBy: "m-bob", FamilyID: "fam-1", SplitAmong: []string{"m-alice", "m-bob"}},
	}, nil)

	for _, b := range balances {
		if !approx(b.NetBalance, 0) || len(b.Debts) != 0 || len(b.Credits) != 0 {
			t.Errorf("%s = %+v, want fully settled", b.MemberName, b)
		}
	}
}

func TestComputeThreeMemberHousehold(t *testing.T) {
	members := testMembers()
	expenses := []model.Expense{
		{ID: "e-1", Amount: 120, PaidBy: "m-alice", FamilyID: "fam-1", SplitAmong: []string{"m-alice", "m-bob", "m-carol"}},
		{ID: "e-2", Amount: 60, PaidBy: "m-bob", FamilyID: "fam-1", SplitAmong: []string{"m-bob", "m-carol"}},
		{ID: "e-3", Amount: 90, PaidBy: "m-carol", FamilyID: "fam-1", SplitAmong: []string{"m-alice", "m-bob", "m-carol"}},
	}
	payments := []model.Payment{
		confirmedPayment("m-carol", "m-alice", 20),
		confirmedPayment("m-bob", "m-carol", 15),
	}

	balances := Compute(members, expenses, payments)
	alice := findBalance(t, balances, "m-alice")
	bob := findBalance(t, balances, "m-bob")
	carol := findBalance(t, balances, "m-carol")

	if !approx(alice.NetBalance, 30) {
		t.Errorf("alice net = %f, want 30", alice.NetBalance)
	}
	if !approx(bob.NetBalance, -25) {
		t.Errorf("bob net = %f, want -25", bob.NetBalance)
	}
	if !approx(carol.NetBalance, -5) {
		t.Errorf("carol net = %f, want -5", carol.NetBalance)
	}
	assertZeroSum(t, balances)
	assertNettingInvariant(t, balances)

	// Bob still owes Alice the full 40 from the two shared expenses;
	// his payment to Carol settled part of that pair instead.
	if len(bob.Debts) != 1 || bob.Debts[0].ToID != "m-alice" || !approx(bob.Debts[0].Amount, 40) {
		t.Errorf("bob debts = %+v, want 40 to alice", bob.Debts)
	}
}

// assertNettingInvariant checks that no pair of members owe each other
// at the same time.
func assertNettingInvariant(t *testing.T, balances []model.MemberBalance) {
	t.Helper()
	owes := make(map[string]map[string]bool)
	for _, b := range balances {
		for _, d := range b.Debts {
			if owes[b.MemberID] == nil {
				owes[b.MemberID] = make(map[string]bool)
			}
			owes[b.MemberID][d.ToID] = true
		}
	}
	for debtor, creditors := range owes {
		for creditor := range creditors {
			if owes[creditor][debtor] {
				t.Errorf("mutual debt between %s and %s", debtor, creditor)
			}
		}
	}
}

func TestComputeEmptySplitUsesAllMembers(t *testing.T) {
	members := testMembers()
	balances := Compute(members, []model.Expense{
		{ID: "e-1", Amount: 90, PaidBy: "m-alice", FamilyID: "fam-1"},
	}, nil)

	if alice := findBalance(t, balances, "m-alice"); !approx(alice.NetBalance, 60) {
		t.Errorf("alice net = %f, want 60", alice.NetBalance)
	}
	for _, id := range []string{"m-bob", "m-carol"} {
		if b := findBalance(t, balances, id); !approx(b.NetBalance, -30) {
			t.Errorf("%s net = %f, want -30", id, b.NetBalance)
		}
	}
}

func TestComputePayerOnlySplitIsNoop(t *testing.T) {
	members := testMembers()[:2]
	balances := Compute(members, []model.Expense{
		expense("m-alice", 50, "m-alice"),
	}, nil)
	for _, b := range balances {
		if !approx(b.NetBalance, 0) {
			t.Errorf("%s net = %f, want 0", b.MemberName, b.NetBalance)
		}
	}
}

func TestComputePayerOutsideSplit(t *testing.T) {
	members := testMembers()
	balances := Compute(members, []model.Expense{
		expense("m-alice", 60, "m-bob", "m-carol"),
	}, nil)

	if alice := findBalance(t, balances, "m-alice"); !approx(alice.TotalOwed, 60) {
		t.Errorf("alice owed = %f, want 60", alice.TotalOwed)
	}
	if bob := findBalance(t, balances, "m-bob"); !approx(bob.TotalDebt, 30) {
		t.Errorf("bob debt = %f, want 30", bob.TotalDebt)
	}
}

func TestComputeOverpaymentCappedAtOutstanding(t *testing.T) {
	members := testMembers()[:2]
	balances := Compute(members,
		[]model.Expense{expense("m-alice", 100, "m-alice", "m-bob")},
		[]model.Payment{confirmedPayment("m-bob", "m-alice", 80)},
	)
	bob := findBalance(t, balances, "m-bob")
	if !approx(bob.NetBalance, 0) || !approx(bob.TotalDebt, 0) {
		t.Errorf("bob net/debt = %f/%f, want 0/0 after overpayment", bob.NetBalance, bob.TotalDebt)
	}
	if alice := findBalance(t, balances, "m-alice"); !approx(alice.TotalOwed, 0) {
		t.Errorf("alice owed = %f, want 0", alice.TotalOwed)
	}
}

func TestComputePaymentWithNoDebtIsNoop(t *testing.T) {
	members := testMembers()[:2]
	balances := Compute(members, nil,
		[]model.Payment{confirmedPayment("m-bob", "m-alice", 25)},
	)
	for _, b := range balances {
		if !approx(b.NetBalance, 0) {
			t.Errorf("%s net = %f, want 0", b.MemberName, b.NetBalance)
		}
	}
}

func TestComputeAdjustmentFlipsDirection(t *testing.T) {
	members := testMembers()[:2]
	// Bob owes Alice 50. The adjustment is recorded by Alice (the
	// creditor) against Bob, and must reduce Bob's debt.
	adjustment := model.Payment{
		FromMemberID: "m-alice",
		ToMemberID:   "m-bob",
		Amount:       50,
		FamilyID:     "fam-1",
		Status:       model.PaymentStatusConfirm,
		Type:         model.PaymentTypeAdjustment,
	}
	balances := Compute(members,
		[]model.Expense{expense("m-alice", 100, "m-alice", "m-bob")},
		[]model.Payment{adjustment},
	)
	if bob := findBalance(t, balances, "m-bob"); !approx(bob.NetBalance, 0) {
		t.Errorf("bob net = %f, want 0 after adjustment", bob.NetBalance)
	}
}

func TestComputeMembersWithNoActivity(t *testing.T) {
	members := testMembers()
	balances := Compute(members, nil, nil)
	if len(balances) != 3 {
		t.Fatalf("got %d balances, want 3", len(balances))
	}
	for _, b := range balances {
		if b.NetBalance != 0 || b.TotalDebt != 0 || b.TotalOwed != 0 {
			t.Errorf("%s = %+v, want all zeros", b.MemberName, b)
		}
		if b.Debts == nil || b.Credits == nil {
			t.Errorf("%s detail lists should be empty, not nil", b.MemberName)
		}
	}
}

func TestComputeDetailsSortedByName(t *testing.T) {
	members := []model.Member{
		{ID: "m-1", Name: "Zoe", FamilyID: "fam-1"},
		{ID: "m-2", Name: "Ann", FamilyID: "fam-1"},
		{ID: "m-3", Name: "Mia", FamilyID: "fam-1"},
	}
	// Zoe and Ann each cover an expense so Mia owes both.
	balances := Compute(members, []model.Expense{
		{ID: "e-1", Amount: 30, PaidBy: "m-1", FamilyID: "fam-1", SplitAmong: []string{"m-1", "m-3"}},
		{ID: "e-2", Amount: 30, PaidBy: "m-2", FamilyID: "fam-1", SplitAmong: []string{"m-2", "m-3"}},
	}, nil)

	mia := findBalance(t, balances, "m-3")
	if len(mia.Debts) != 2 {
		t.Fatalf("mia has %d debts, want 2", len(mia.Debts))
	}
	if mia.Debts[0].ToName != "Ann" || mia.Debts[1].ToName != "Zoe" {
		t.Errorf("debts ordered %s, %s; want Ann, Zoe", mia.Debts[0].ToName, mia.Debts[1].ToName)
	}
}

func TestComputeZeroSumAcrossMixedHistory(t *testing.T) {
	members := testMembers()
	expenses := []model.Expense{
		{ID: "e-1", Amount: 33.35, PaidBy: "m-alice", FamilyID: "fam-1", SplitAmong: []string{"m-alice", "m-bob", "m-carol"}},
		{ID: "e-2", Amount: 71.50, PaidBy: "m-bob", FamilyID: "fam-1"},
		{ID: "e-3", Amount: 12.99, PaidBy: "m-carol", FamilyID: "fam-1", SplitAmong: []string{"m-alice"}},
		{ID: "e-4", Amount: 240.10, PaidBy: "m-carol", FamilyID: "fam-1", SplitAmong: []string{"m-bob", "m-carol"}},
	}
	payments := []model.Payment{
		confirmedPayment("m-alice", "m-carol", 5),
		confirmedPayment("m-bob", "m-carol", 60.55),
	}
	balances := Compute(members, expenses, payments)
	assertZeroSum(t, balances)
	assertNettingInvariant(t, balances)
}
