package store

import "database/sql"

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Stores built on a Querier work unchanged inside a transaction.
type Querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)
