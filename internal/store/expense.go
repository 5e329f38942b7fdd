package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mvale/housetab/internal/model"
)

type ExpenseStore struct {
	q Querier
}

func NewExpenseStore(q Querier) *ExpenseStore {
	return &ExpenseStore{q: q}
}

const expenseCols = `id, description, amount, paid_by, family_id, created_at`

func scanExpense(scanner interface{ Scan(...any) error }) (*model.Expense, error) {
	var e model.Expense
	err := scanner.Scan(&e.ID, &e.Description, &e.Amount, &e.PaidBy, &e.FamilyID, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserts the expense row and its participant links. The split
// must already be materialized; an expense is never stored without
// participants.
func (s *ExpenseStore) Create(e *model.Expense) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if _, err := s.q.Exec(
		`INSERT INTO expenses (id, description, amount, paid_by, family_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Description, e.Amount, e.PaidBy, e.FamilyID, e.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	if err := s.insertParticipants(e.ID, e.SplitAmong); err != nil {
		return err
	}
	return nil
}

func (s *ExpenseStore) insertParticipants(expenseID string, memberIDs []string) error {
	for _, memberID := range memberIDs {
		if _, err := s.q.Exec(
			`INSERT INTO expense_participants (expense_id, member_id) VALUES (?, ?)`,
			expenseID, memberID,
		); err != nil {
			return fmt.Errorf("insert participant %s: %w", memberID, err)
		}
	}
	return nil
}

func (s *ExpenseStore) GetByID(id string) (*model.Expense, error) {
	row := s.q.QueryRow(`SELECT `+expenseCols+` FROM expenses WHERE id = ?`, id)
	e, err := scanExpense(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}
	participants, err := s.participants(id)
	if err != nil {
		return nil, err
	}
	e.SplitAmong = participants
	return e, nil
}

func (s *ExpenseStore) participants(expenseID string) ([]string, error) {
	rows, err := s.q.Query(
		`SELECT member_id FROM expense_participants WHERE expense_id = ? ORDER BY member_id ASC`,
		expenseID,
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *ExpenseStore) ListByFamily(familyID string) ([]model.Expense, error) {
	rows, err := s.q.Query(
		`SELECT `+expenseCols+` FROM expenses WHERE family_id = ? ORDER BY created_at ASC, id ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	expenses, err := collectExpenses(rows)
	if err != nil {
		return nil, err
	}
	return s.attachParticipants(expenses)
}

func (s *ExpenseStore) ListByPayer(memberID string) ([]model.Expense, error) {
	rows, err := s.q.Query(
		`SELECT `+expenseCols+` FROM expenses WHERE paid_by = ? ORDER BY created_at ASC, id ASC`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("list expenses by payer: %w", err)
	}
	expenses, err := collectExpenses(rows)
	if err != nil {
		return nil, err
	}
	return s.attachParticipants(expenses)
}

func collectExpenses(rows *sql.Rows) ([]model.Expense, error) {
	defer rows.Close()
	var expenses []model.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, *e)
	}
	return expenses, rows.Err()
}

func (s *ExpenseStore) attachParticipants(expenses []model.Expense) ([]model.Expense, error) {
	for i := range expenses {
		participants, err := s.participants(expenses[i].ID)
		if err != nil {
			return nil, err
		}
		expenses[i].SplitAmong = participants
	}
	return expenses, nil
}

// Update rewrites the expense row and replaces its participant links.
func (s *ExpenseStore) Update(e *model.Expense) error {
	if _, err := s.q.Exec(
		`UPDATE expenses SET description = ?, amount = ?, paid_by = ? WHERE id = ?`,
		e.Description, e.Amount, e.PaidBy, e.ID,
	); err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	if _, err := s.q.Exec(`DELETE FROM expense_participants WHERE expense_id = ?`, e.ID); err != nil {
		return fmt.Errorf("clear participants: %w", err)
	}
	return s.insertParticipants(e.ID, e.SplitAmong)
}

func (s *ExpenseStore) Delete(id string) error {
	if _, err := s.q.Exec(`DELETE FROM expenses WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return nil
}
