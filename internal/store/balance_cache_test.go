package store

import (
	"testing"
	"time"

	"github.com/mvale/housetab/internal/database"
	"github.com/mvale/housetab/internal/model"
)

type cacheTestEnv struct {
	cache    *BalanceCacheStore
	familyID string
	alice    string
	bob      string
}

func setupCacheTestDB(t *testing.T) cacheTestEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f, err := NewFamilyStore(db).Create("Test Family", []MemberInit{
		{Name: "Alice"}, {Name: "Bob"},
	})
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	return cacheTestEnv{
		cache:    NewBalanceCacheStore(db),
		familyID: f.ID,
		alice:    f.Members[0].ID,
		bob:      f.Members[1].ID,
	}
}

func TestBalanceCacheMemberRowUpsert(t *testing.T) {
	env := setupCacheTestDB(t)
	now := time.Now().UTC()

	row := model.MemberBalanceRow{
		MemberID: env.alice, FamilyID: env.familyID,
		TotalDebt: 0, TotalOwed: 50, NetBalance: 50, LastUpdated: now,
	}
	if err := env.cache.SaveMemberRow(row); err != nil {
		t.Fatalf("save member row: %v", err)
	}

	got, err := env.cache.GetMemberRow(env.alice)
	if err != nil {
		t.Fatalf("get member row: %v", err)
	}
	if got == nil {
		t.Fatal("expected row, got nil")
	}
	if got.NetBalance != 50 {
		t.Errorf("net_balance = %v, want 50", got.NetBalance)
	}

	// Saving again replaces, not duplicates
	row.TotalOwed = 30
	row.NetBalance = 30
	if err := env.cache.SaveMemberRow(row); err != nil {
		t.Fatalf("save member row again: %v", err)
	}

	rows, err := env.cache.ListMemberRows(env.familyID)
	if err != nil {
		t.Fatalf("list member rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].NetBalance != 30 {
		t.Errorf("net_balance = %v, want 30", rows[0].NetBalance)
	}
}

func TestBalanceCacheMemberRowMissing(t *testing.T) {
	env := setupCacheTestDB(t)

	got, err := env.cache.GetMemberRow(env.alice)
	if err != nil {
		t.Fatalf("get member row: %v", err)
	}
	if got != nil {
		t.Error("expected nil for missing row")
	}
}

func TestBalanceCacheDebtRowUpsertAndDelete(t *testing.T) {
	env := setupCacheTestDB(t)
	now := time.Now().UTC()

	row := model.DebtRow{
		FromMemberID: env.bob, ToMemberID: env.alice,
		FamilyID: env.familyID, Amount: 25, LastUpdated: now,
	}
	if err := env.cache.SaveDebtRow(row); err != nil {
		t.Fatalf("save debt row: %v", err)
	}

	got, err := env.cache.GetDebtRow(env.bob, env.alice)
	if err != nil {
		t.Fatalf("get debt row: %v", err)
	}
	if got == nil {
		t.Fatal("expected row, got nil")
	}
	if got.Amount != 25 {
		t.Errorf("amount = %v, want 25", got.Amount)
	}

	// Direction matters
	reverse, err := env.cache.GetDebtRow(env.alice, env.bob)
	if err != nil {
		t.Fatalf("get reverse debt row: %v", err)
	}
	if reverse != nil {
		t.Error("expected nil for reverse direction")
	}

	// Upsert updates in place
	row.Amount = 10
	if err := env.cache.SaveDebtRow(row); err != nil {
		t.Fatalf("save debt row again: %v", err)
	}
	rows, _ := env.cache.ListDebtRows(env.familyID)
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].Amount != 10 {
		t.Errorf("amount = %v, want 10", rows[0].Amount)
	}

	if err := env.cache.DeleteDebtRow(env.bob, env.alice); err != nil {
		t.Fatalf("delete debt row: %v", err)
	}
	got, _ = env.cache.GetDebtRow(env.bob, env.alice)
	if got != nil {
		t.Error("expected nil after delete")
	}
}

func TestBalanceCacheReplaceFamily(t *testing.T) {
	env := setupCacheTestDB(t)
	now := time.Now().UTC()

	// Seed stale rows
	env.cache.SaveMemberRow(model.MemberBalanceRow{
		MemberID: env.alice, FamilyID: env.familyID,
		TotalDebt: 99, TotalOwed: 0, NetBalance: -99, LastUpdated: now,
	})
	env.cache.SaveDebtRow(model.DebtRow{
		FromMemberID: env.alice, ToMemberID: env.bob,
		FamilyID: env.familyID, Amount: 99, LastUpdated: now,
	})

	memberRows := []model.MemberBalanceRow{
		{MemberID: env.alice, FamilyID: env.familyID, TotalOwed: 50, NetBalance: 50, LastUpdated: now},
		{MemberID: env.bob, FamilyID: env.familyID, TotalDebt: 50, NetBalance: -50, LastUpdated: now},
	}
	debtRows := []model.DebtRow{
		{FromMemberID: env.bob, ToMemberID: env.alice, FamilyID: env.familyID, Amount: 50, LastUpdated: now},
	}
	if err := env.cache.ReplaceFamily(env.familyID, memberRows, debtRows); err != nil {
		t.Fatalf("replace family: %v", err)
	}

	members, _ := env.cache.ListMemberRows(env.familyID)
	if len(members) != 2 {
		t.Fatalf("member rows = %d, want 2", len(members))
	}
	debts, _ := env.cache.ListDebtRows(env.familyID)
	if len(debts) != 1 {
		t.Fatalf("debt rows = %d, want 1", len(debts))
	}
	if debts[0].FromMemberID != env.bob || debts[0].Amount != 50 {
		t.Errorf("debt row = %s owes %v, want %s owes 50", debts[0].FromMemberID, debts[0].Amount, env.bob)
	}

	// Stale reverse-direction row must be gone
	stale, _ := env.cache.GetDebtRow(env.alice, env.bob)
	if stale != nil {
		t.Error("expected stale debt row to be removed")
	}
}

func TestBalanceCacheMemberDeleteCascades(t *testing.T) {
	env := setupCacheTestDB(t)
	now := time.Now().UTC()

	env.cache.SaveMemberRow(model.MemberBalanceRow{
		MemberID: env.alice, FamilyID: env.familyID, LastUpdated: now,
	})
	env.cache.SaveDebtRow(model.DebtRow{
		FromMemberID: env.bob, ToMemberID: env.alice,
		FamilyID: env.familyID, Amount: 5, LastUpdated: now,
	})

	// Deleting the member removes their cache rows via FK cascade
	ms := NewMemberStore(env.cache.q)
	if err := ms.Delete(env.alice); err != nil {
		t.Fatalf("delete member: %v", err)
	}

	row, _ := env.cache.GetMemberRow(env.alice)
	if row != nil {
		t.Error("expected member row cascade delete")
	}
	debt, _ := env.cache.GetDebtRow(env.bob, env.alice)
	if debt != nil {
		t.Error("expected debt row cascade delete")
	}
}
