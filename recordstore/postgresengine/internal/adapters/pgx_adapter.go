package adapters

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGXAdapter implements DBAdapter for pgxpool.Pool.
type PGXAdapter struct {
	pool        *pgxpool.Pool
	replicaPool *pgxpool.Pool // optional replica for read operations
}

// NewPGXAdapter creates a new PGX adapter with a primary pool.
func NewPGXAdapter(pool *pgxpool.Pool) *PGXAdapter {
	return &PGXAdapter{pool: pool}
}

// NewPGXAdapterWithReplica creates a new PGX adapter with a primary pool and a replica pool.
func NewPGXAdapterWithReplica(pool *pgxpool.Pool, replica *pgxpool.Pool) *PGXAdapter {
	return &PGXAdapter{pool: pool, replicaPool: replica}
}

// Query executes a parameterized query using the replica pool if available, otherwise the primary pool.
func (p *PGXAdapter) Query(ctx context.Context, query string, args ...any) (DBRows, error) {
	pool := p.pool // default to primary

	if p.replicaPool != nil {
		pool = p.replicaPool // use replica for reads
	}

	return p.queryPool(ctx, pool, query, args...)
}

// QueryPrimary executes a parameterized query pinned to the primary pool, even when
// a replica pool is configured. Row-returning writes must use this path: a hot
// standby rejects them.
func (p *PGXAdapter) QueryPrimary(ctx context.Context, query string, args ...any) (DBRows, error) {
	return p.queryPool(ctx, p.pool, query, args...)
}

func (p *PGXAdapter) queryPool(ctx context.Context, pool *pgxpool.Pool, query string, args ...any) (DBRows, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return &pgxRows{rows: rows}, nil
}

// Exec executes a parameterized statement using the pgx pool and returns wrapped result.
func (p *PGXAdapter) Exec(ctx context.Context, query string, args ...any) (DBResult, error) {
	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return &pgxResult{tag: tag}, nil
}

// pgxRows wraps pgx.Rows to implement the DBRows interface.
type pgxRows struct {
	rows pgx.Rows
}

// Columns returns the column names of the result set.
func (p *pgxRows) Columns() ([]string, error) {
	descriptions := p.rows.FieldDescriptions()

	columns := make([]string, 0, len(descriptions))
	for _, description := range descriptions {
		columns = append(columns, description.Name)
	}

	return columns, nil
}

// Next advances to the next row.
func (p *pgxRows) Next() bool {
	return p.rows.Next()
}

// Scan copies row values into provided destinations.
func (p *pgxRows) Scan(dest ...any) error {
	return p.rows.Scan(dest...)
}

// Err reports an error that interrupted the iteration.
func (p *pgxRows) Err() error {
	return p.rows.Err()
}

// Close closes the rows iterator.
func (p *pgxRows) Close() error {
	p.rows.Close()
	return nil
}

// pgxResult wraps pgconn.CommandTag to implement the DBResult interface.
type pgxResult struct {
	tag pgconn.CommandTag
}

// RowsAffected returns the number of rows affected by the command.
func (p *pgxResult) RowsAffected() (int64, error) {
	return p.tag.RowsAffected(), nil
}
