package adapters

import (
	"context"
	"database/sql"
)

// SQLAdapter implements DBAdapter for sql.DB.
type SQLAdapter struct {
	db *sql.DB
}

// NewSQLAdapter creates a new SQL adapter.
func NewSQLAdapter(db *sql.DB) *SQLAdapter {
	return &SQLAdapter{db: db}
}

// Query executes a parameterized query using the sql.DB and returns wrapped rows.
func (s *SQLAdapter) Query(ctx context.Context, query string, args ...any) (DBRows, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return &stdRows{rows: rows}, nil
}

// QueryPrimary is identical to Query; a sql.DB adapter has no replica connection.
func (s *SQLAdapter) QueryPrimary(ctx context.Context, query string, args ...any) (DBRows, error) {
	return s.Query(ctx, query, args...)
}

// Exec executes a parameterized statement using the sql.DB and returns wrapped result.
func (s *SQLAdapter) Exec(ctx context.Context, query string, args ...any) (DBResult, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return &stdResult{result: result}, nil
}
