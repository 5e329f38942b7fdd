package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mvale/housetab/internal/model"
)

type PaymentStore struct {
	q Querier
}

func NewPaymentStore(q Querier) *PaymentStore {
	return &PaymentStore{q: q}
}

const paymentCols = `id, from_member_id, to_member_id, amount, family_id, status, type, created_at`

func scanPayment(scanner interface{ Scan(...any) error }) (*model.Payment, error) {
	var p model.Payment
	err := scanner.Scan(&p.ID, &p.FromMemberID, &p.ToMemberID, &p.Amount, &p.FamilyID, &p.Status, &p.Type, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PaymentStore) Create(p *model.Payment) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.Exec(
		`INSERT INTO payments (id, from_member_id, to_member_id, amount, family_id, status, type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.FromMemberID, p.ToMemberID, p.Amount, p.FamilyID, p.Status, p.Type, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (s *PaymentStore) GetByID(id string) (*model.Payment, error) {
	row := s.q.QueryRow(`SELECT `+paymentCols+` FROM payments WHERE id = ?`, id)
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

func (s *PaymentStore) ListByFamily(familyID string) ([]model.Payment, error) {
	return s.list(
		`SELECT `+paymentCols+` FROM payments WHERE family_id = ? ORDER BY created_at ASC, id ASC`,
		familyID,
	)
}

func (s *PaymentStore) ListByFamilyAndStatus(familyID string, status model.PaymentStatus) ([]model.Payment, error) {
	return s.list(
		`SELECT `+paymentCols+` FROM payments WHERE family_id = ? AND status = ? ORDER BY created_at ASC, id ASC`,
		familyID, status,
	)
}

func (s *PaymentStore) ListByMember(memberID string) ([]model.Payment, error) {
	return s.list(
		`SELECT `+paymentCols+` FROM payments WHERE from_member_id = ? OR to_member_id = ? ORDER BY created_at ASC, id ASC`,
		memberID, memberID,
	)
}

func (s *PaymentStore) list(query string, args ...any) ([]model.Payment, error) {
	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func (s *PaymentStore) UpdateStatus(id string, status model.PaymentStatus) error {
	_, err := s.q.Exec(`UPDATE payments SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}

func (s *PaymentStore) Delete(id string) error {
	_, err := s.q.Exec(`DELETE FROM payments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	return nil
}
