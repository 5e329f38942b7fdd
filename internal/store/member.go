package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mvale/housetab/internal/model"
)

type MemberStore struct {
	q Querier
}

func NewMemberStore(q Querier) *MemberStore {
	return &MemberStore{q: q}
}

const memberCols = `id, name, family_id, language, created_at`

func scanMember(scanner interface{ Scan(...any) error }) (*model.Member, error) {
	var m model.Member
	err := scanner.Scan(&m.ID, &m.Name, &m.FamilyID, &m.Language, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MemberStore) Create(familyID, name string, language model.Language) (*model.Member, error) {
	if language == "" {
		language = model.LanguageEN
	}
	m := &model.Member{
		ID:        uuid.New().String(),
		Name:      name,
		FamilyID:  familyID,
		Language:  language,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.q.Exec(
		`INSERT INTO members (id, name, family_id, language, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.FamilyID, m.Language, m.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}
	return m, nil
}

func (s *MemberStore) GetByID(id string) (*model.Member, error) {
	row := s.q.QueryRow(`SELECT `+memberCols+` FROM members WHERE id = ?`, id)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (s *MemberStore) ListByFamily(familyID string) ([]model.Member, error) {
	rows, err := s.q.Query(
		`SELECT `+memberCols+` FROM members WHERE family_id = ? ORDER BY created_at ASC, id ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (s *MemberStore) Update(id, name string, language model.Language) (*model.Member, error) {
	_, err := s.q.Exec(
		`UPDATE members SET name = ?, language = ? WHERE id = ?`,
		name, language, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update member: %w", err)
	}
	return s.GetByID(id)
}

func (s *MemberStore) Delete(id string) error {
	_, err := s.q.Exec(`DELETE FROM members WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return nil
}
