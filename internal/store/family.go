package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mvale/housetab/internal/model"
)

// FamilyStore holds *sql.DB rather than a Querier because creating a
// family inserts the family row and its initial members in one
// transaction of its own.
type FamilyStore struct {
	db *sql.DB
}

func NewFamilyStore(db *sql.DB) *FamilyStore {
	return &FamilyStore{db: db}
}

// MemberInit describes a member to create alongside a new family.
type MemberInit struct {
	Name     string
	Language model.Language
}

const familyCols = `id, name, created_at`

func scanFamily(scanner interface{ Scan(...any) error }) (*model.Family, error) {
	var f model.Family
	err := scanner.Scan(&f.ID, &f.Name, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *FamilyStore) Create(name string, members []MemberInit) (*model.Family, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	family := &model.Family{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: now,
	}
	if _, err := tx.Exec(
		`INSERT INTO families (id, name, created_at) VALUES (?, ?, ?)`,
		family.ID, family.Name, family.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert family: %w", err)
	}

	for _, init := range members {
		lang := init.Language
		if lang == "" {
			lang = model.LanguageEN
		}
		m := model.Member{
			ID:        uuid.New().String(),
			Name:      init.Name,
			FamilyID:  family.ID,
			Language:  lang,
			CreatedAt: now,
		}
		if _, err := tx.Exec(
			`INSERT INTO members (id, name, family_id, language, created_at) VALUES (?, ?, ?, ?, ?)`,
			m.ID, m.Name, m.FamilyID, m.Language, m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("insert member %q: %w", init.Name, err)
		}
		family.Members = append(family.Members, m)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return family, nil
}

func (s *FamilyStore) GetByID(id string) (*model.Family, error) {
	row := s.db.QueryRow(`SELECT `+familyCols+` FROM families WHERE id = ?`, id)
	f, err := scanFamily(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family: %w", err)
	}
	return f, nil
}

func (s *FamilyStore) List() ([]model.Family, error) {
	rows, err := s.db.Query(`SELECT ` + familyCols + ` FROM families ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list families: %w", err)
	}
	defer rows.Close()

	var families []model.Family
	for rows.Next() {
		f, err := scanFamily(rows)
		if err != nil {
			return nil, fmt.Errorf("scan family: %w", err)
		}
		families = append(families, *f)
	}
	return families, rows.Err()
}

func (s *FamilyStore) Update(id, name string) (*model.Family, error) {
	_, err := s.db.Exec(`UPDATE families SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return nil, fmt.Errorf("update family: %w", err)
	}
	return s.GetByID(id)
}
