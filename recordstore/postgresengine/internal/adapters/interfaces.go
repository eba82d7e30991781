package adapters

import "context"

// DBAdapter defines the interface for database operations needed by the record engine.
// Query may be served by a read replica when the adapter has one; QueryPrimary must
// always reach the primary connection, for row-returning statements that write
// (INSERT ... RETURNING) and for schema introspection backing writes.
type DBAdapter interface {
	Query(ctx context.Context, query string, args ...any) (DBRows, error)
	QueryPrimary(ctx context.Context, query string, args ...any) (DBRows, error)
	Exec(ctx context.Context, query string, args ...any) (DBResult, error)
}

// DBRows defines the interface for query result rows. Err reports an error that
// interrupted the iteration; callers check it after Next returns false.
type DBRows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// DBResult defines the interface for execution results.
type DBResult interface {
	RowsAffected() (int64, error)
}
