package adapters

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// SQLXAdapter implements DBAdapter for sqlx.DB.
type SQLXAdapter struct {
	db *sqlx.DB
}

// NewSQLXAdapter creates a new SQLX adapter.
func NewSQLXAdapter(db *sqlx.DB) *SQLXAdapter {
	return &SQLXAdapter{db: db}
}

// Query executes a parameterized query using the sqlx.DB and returns wrapped rows.
func (s *SQLXAdapter) Query(ctx context.Context, query string, args ...any) (DBRows, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return &stdRows{rows: rows}, nil
}

// QueryPrimary is identical to Query; a sqlx.DB adapter has no replica connection.
func (s *SQLXAdapter) QueryPrimary(ctx context.Context, query string, args ...any) (DBRows, error) {
	return s.Query(ctx, query, args...)
}

// Exec executes a parameterized statement using the sqlx.DB and returns wrapped result.
func (s *SQLXAdapter) Exec(ctx context.Context, query string, args ...any) (DBResult, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return &stdResult{result: result}, nil
}
