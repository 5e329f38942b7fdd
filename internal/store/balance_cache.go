package store

import (
	"database/sql"
	"fmt"

	"github.com/mvale/housetab/internal/model"
)

// BalanceCacheStore persists derived balance rows. The cache is never
// authoritative; callers rebuild it from expenses and payments whenever
// its state is in doubt.
type BalanceCacheStore struct {
	q Querier
}

func NewBalanceCacheStore(q Querier) *BalanceCacheStore {
	return &BalanceCacheStore{q: q}
}

const memberBalanceCols = `member_id, family_id, total_debt, total_owed, net_balance, last_updated`
const debtCols = `from_member_id, to_member_id, family_id, amount, last_updated`

func scanMemberBalanceRow(scanner interface{ Scan(...any) error }) (*model.MemberBalanceRow, error) {
	var r model.MemberBalanceRow
	err := scanner.Scan(&r.MemberID, &r.FamilyID, &r.TotalDebt, &r.TotalOwed, &r.NetBalance, &r.LastUpdated)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanDebtRow(scanner interface{ Scan(...any) error }) (*model.DebtRow, error) {
	var r model.DebtRow
	err := scanner.Scan(&r.FromMemberID, &r.ToMemberID, &r.FamilyID, &r.Amount, &r.LastUpdated)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *BalanceCacheStore) GetMemberRow(memberID string) (*model.MemberBalanceRow, error) {
	row := s.q.QueryRow(
		`SELECT `+memberBalanceCols+` FROM member_balance_cache WHERE member_id = ?`, memberID,
	)
	r, err := scanMemberBalanceRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member balance row: %w", err)
	}
	return r, nil
}

func (s *BalanceCacheStore) ListMemberRows(familyID string) ([]model.MemberBalanceRow, error) {
	rows, err := s.q.Query(
		`SELECT `+memberBalanceCols+` FROM member_balance_cache WHERE family_id = ?`, familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list member balance rows: %w", err)
	}
	defer rows.Close()

	var result []model.MemberBalanceRow
	for rows.Next() {
		r, err := scanMemberBalanceRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member balance row: %w", err)
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}

func (s *BalanceCacheStore) SaveMemberRow(r model.MemberBalanceRow) error {
	_, err := s.q.Exec(
		`INSERT INTO member_balance_cache (member_id, family_id, total_debt, total_owed, net_balance, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(member_id) DO UPDATE SET
		 total_debt = excluded.total_debt, total_owed = excluded.total_owed,
		 net_balance = excluded.net_balance, last_updated = excluded.last_updated`,
		r.MemberID, r.FamilyID, r.TotalDebt, r.TotalOwed, r.NetBalance, r.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("save member balance row: %w", err)
	}
	return nil
}

func (s *BalanceCacheStore) GetDebtRow(fromMemberID, toMemberID string) (*model.DebtRow, error) {
	row := s.q.QueryRow(
		`SELECT `+debtCols+` FROM debt_cache WHERE from_member_id = ? AND to_member_id = ?`,
		fromMemberID, toMemberID,
	)
	r, err := scanDebtRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get debt row: %w", err)
	}
	return r, nil
}

func (s *BalanceCacheStore) ListDebtRows(familyID string) ([]model.DebtRow, error) {
	rows, err := s.q.Query(
		`SELECT `+debtCols+` FROM debt_cache WHERE family_id = ?`, familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list debt rows: %w", err)
	}
	defer rows.Close()

	var result []model.DebtRow
	for rows.Next() {
		r, err := scanDebtRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan debt row: %w", err)
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}

func (s *BalanceCacheStore) SaveDebtRow(r model.DebtRow) error {
	_, err := s.q.Exec(
		`INSERT INTO debt_cache (from_member_id, to_member_id, family_id, amount, last_updated)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(from_member_id, to_member_id) DO UPDATE SET
		 amount = excluded.amount, last_updated = excluded.last_updated`,
		r.FromMemberID, r.ToMemberID, r.FamilyID, r.Amount, r.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("save debt row: %w", err)
	}
	return nil
}

func (s *BalanceCacheStore) DeleteDebtRow(fromMemberID, toMemberID string) error {
	_, err := s.q.Exec(
		`DELETE FROM debt_cache WHERE from_member_id = ? AND to_member_id = ?`,
		fromMemberID, toMemberID,
	)
	if err != nil {
		return fmt.Errorf("delete debt row: %w", err)
	}
	return nil
}

// ReplaceFamily drops every cache row for the family and writes the
// given rows in their place.
func (s *BalanceCacheStore) ReplaceFamily(familyID string, memberRows []model.MemberBalanceRow, debtRows []model.DebtRow) error {
	if _, err := s.q.Exec(`DELETE FROM debt_cache WHERE family_id = ?`, familyID); err != nil {
		return fmt.Errorf("clear debt cache: %w", err)
	}
	if _, err := s.q.Exec(`DELETE FROM member_balance_cache WHERE family_id = ?`, familyID); err != nil {
		return fmt.Errorf("clear member balance cache: %w", err)
	}
	for _, r := range memberRows {
		if _, err := s.q.Exec(
			`INSERT INTO member_balance_cache (member_id, family_id, total_debt, total_owed, net_balance, last_updated)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			r.MemberID, r.FamilyID, r.TotalDebt, r.TotalOwed, r.NetBalance, r.LastUpdated,
		); err != nil {
			return fmt.Errorf("insert member balance row: %w", err)
		}
	}
	for _, r := range debtRows {
		if _, err := s.q.Exec(
			`INSERT INTO debt_cache (from_member_id, to_member_id, family_id, amount, last_updated)
			 VALUES (?, ?, ?, ?, ?)`,
			r.FromMemberID, r.ToMemberID, r.FamilyID, r.Amount, r.LastUpdated,
		); err != nil {
			return fmt.Errorf("insert debt row: %w", err)
		}
	}
	return nil
}
