package postgresengine

import (
	"context"
	"errors"

	"github.com/recordkit/fluent-recordstore-go/recordstore"
)

const schemaColumnsQuery = `SELECT column_name FROM information_schema.columns WHERE table_name = $1 ORDER BY ordinal_position`

// Protect registers additional field names that must never be written from
// caller-supplied data; they are stripped by the field authorizer alongside
// the primary key and any field the table schema does not know.
func (e *Engine) Protect(fields ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, field := range fields {
		if field == "" {
			continue
		}
		e.protected[field] = struct{}{}
	}
}

// ProtectedFields returns the currently protected field names.
func (e *Engine) ProtectedFields() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	fields := make([]string, 0, len(e.protected))
	for field := range e.protected {
		fields = append(fields, field)
	}

	return fields
}

func (e *Engine) isProtected(field string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, found := e.protected[field]

	return found
}

// SchemaColumns returns the ordered column names of the bound table, lazily
// introspected once per engine instance and cached for its lifetime.
// An empty introspection result is a fatal configuration error.
func (e *Engine) SchemaColumns(ctx context.Context) ([]string, error) {
	e.schemaOnce.Do(func() {
		e.schemaCols, e.schemaErr = e.introspectColumns(ctx)
		if e.schemaErr != nil {
			return
		}

		e.schemaColSet = make(map[string]struct{}, len(e.schemaCols))
		for _, column := range e.schemaCols {
			e.schemaColSet[column] = struct{}{}
		}
	})

	return e.schemaCols, e.schemaErr
}

func (e *Engine) introspectColumns(ctx context.Context) ([]string, error) {
	// The cached column set authorizes writes, so the introspection reads the
	// primary's schema, never a possibly lagging replica's.
	rows, _, queryErr := e.executeQueryPrimary(ctx, schemaColumnsQuery, []any{e.Table()}, operationCount)
	if queryErr != nil {
		return nil, queryErr
	}
	defer e.closeRows(ctx, rows)

	columns := make([]string, 0)

	for rows.Next() {
		var column string
		if scanErr := rows.Scan(&column); scanErr != nil {
			return nil, errors.Join(recordstore.ErrScanningRowFailed, scanErr)
		}

		columns = append(columns, column)
	}

	if iterErr := rows.Err(); iterErr != nil {
		return nil, errors.Join(recordstore.ErrQueryingRecordsFailed, iterErr)
	}

	if len(columns) == 0 {
		return nil, recordstore.ErrNoSchemaColumns
	}

	return columns, nil
}

// prepareData authorizes an already-validated candidate record for storage:
// it drops the primary-key field, every protected field, and any field not
// present in the introspected table schema.
func (e *Engine) prepareData(ctx context.Context, rec recordstore.Record) (recordstore.Record, error) {
	if _, err := e.SchemaColumns(ctx); err != nil {
		return nil, err
	}

	prepared := make(recordstore.Record, len(rec))

	for field, value := range rec {
		if field == e.primaryKey {
			continue
		}
		if e.isProtected(field) {
			continue
		}
		if _, known := e.schemaColSet[field]; !known {
			continue
		}

		prepared[field] = value
	}

	return prepared, nil
}

// authorizeFieldsHook adapts prepareData into the built-in before-write hook.
func (e *Engine) authorizeFieldsHook() recordstore.Hook {
	return func(ctx context.Context, hc *recordstore.HookContext) error {
		if hc.Record == nil {
			return nil
		}

		prepared, err := e.prepareData(ctx, hc.Record)
		if err != nil {
			return err
		}

		hc.Record = prepared

		return nil
	}
}
