package postgresengine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"

	"github.com/recordkit/fluent-recordstore-go/recordstore"
)

/***** Inserts *****/

// Insert validates the candidate record, runs the beforeInsert chain (which
// auto-stamps the creation timestamp and strips unauthorized fields), executes
// the insert, and runs the afterInsert chain when a row was produced.
// Returns the generated primary-key value.
func (e *Engine) Insert(ctx context.Context, rec recordstore.Record, opts ...WriteOption) (int64, error) {
	return e.insertRecord(ctx, rec, nil, opts)
}

// Replace upserts the record under the given primary-key value: an insert
// that, on primary-key conflict, updates the existing row with the candidate
// fields. An existing row keeps its original creation timestamp and gets the
// modification field stamped instead. The returned identifier is taken from
// the write's own RETURNING value. Insert-stage hooks and insert-only
// validation rules apply.
func (e *Engine) Replace(ctx context.Context, id int64, rec recordstore.Record, opts ...WriteOption) (int64, error) {
	return e.insertRecord(ctx, rec, &id, opts)
}

func (e *Engine) insertRecord(
	ctx context.Context,
	rec recordstore.Record,
	replaceID *int64,
	opts []WriteOption,
) (int64, error) {

	cfg := applyWriteOptions(opts)

	tracing, ctx := e.startOperationTracing(ctx, operationInsert)
	metrics := e.startOperationMetrics(ctx, operationInsert)
	start := time.Now()

	validated, validateErr := e.validate(ctx, rec, operationInsert, cfg)
	if validateErr != nil {
		metrics.recordError(errorTypeValidation, time.Since(start))
		tracing.finishError(errorTypeValidation, time.Since(start))

		return 0, validateErr
	}

	before := &recordstore.HookContext{Table: e.Table(), Operation: operationInsert, Record: copyRecord(validated)}
	if hookErr := e.hooks.Trigger(ctx, recordstore.BeforeInsert, before); hookErr != nil {
		tracing.finishError(errorTypeHook, time.Since(start))
		return 0, hookErr
	}
	if before.Aborted() {
		tracing.finishError(errorTypeHook, time.Since(start))
		return 0, recordstore.ErrAbortedByHook
	}

	row := before.Record
	if len(row) == 0 {
		tracing.finishError(errorTypeBuildStatement, time.Since(start))
		return 0, recordstore.ErrEmptyRecord
	}

	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(e.Table()).
		Prepared(true).
		Returning(goqu.C(e.primaryKey))

	if replaceID != nil {
		// The authorizer has stripped the primary key; a replace targets
		// one row, so the key goes back in and conflicts resolve to an
		// update of the candidate fields. The conflict arm keeps the
		// existing row's creation timestamp: the auto-stamped value is
		// meant for the insert arm only, and the modification field gets
		// stamped instead. A caller-supplied creation value is applied on
		// both arms.
		update := copyRecord(before.Record)
		if _, callerSet := validated[e.createdField]; !callerSet {
			delete(update, e.createdField)
		}
		_, known := e.schemaColSet[e.modifiedField]
		if _, present := update[e.modifiedField]; !present && known {
			update[e.modifiedField] = recordstore.FormatTimestamp(e.now(), e.timestampFormat)
		}

		row = copyRecord(row)
		row[e.primaryKey] = *replaceID
		insertStmt = insertStmt.
			Rows(goqu.Record(row)).
			OnConflict(goqu.DoUpdate(e.primaryKey, goqu.Record(update)))
	} else {
		insertStmt = insertStmt.Rows(goqu.Record(row))
	}

	sqlQuery, args, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		e.logErrorContext(ctx, logMsgBuildStatementFailed, toSQLErr, logAttrTable, e.Table())
		metrics.recordError(errorTypeBuildStatement, time.Since(start))
		tracing.finishError(errorTypeBuildStatement, time.Since(start))

		return 0, errors.Join(recordstore.ErrBuildingStatementFailed, toSQLErr)
	}

	rows, duration, queryErr := e.executeQueryPrimary(ctx, sqlQuery, args, operationInsert)
	if queryErr != nil {
		metrics.recordError(errorTypeDatabase, duration)
		tracing.finishError(errorTypeDatabase, duration)

		return 0, queryErr
	}
	defer e.closeRows(ctx, rows)

	var newID int64
	if !rows.Next() {
		metrics.recordError(errorTypeDatabase, duration)
		tracing.finishError(errorTypeDatabase, duration)

		if iterErr := rows.Err(); iterErr != nil {
			return 0, errors.Join(recordstore.ErrQueryingRecordsFailed, iterErr)
		}

		return 0, recordstore.ErrInsertProducedNoRow
	}

	if scanErr := rows.Scan(&newID); scanErr != nil {
		e.logErrorContext(ctx, logMsgScanRowFailed, scanErr)
		metrics.recordError(errorTypeScan, duration)
		tracing.finishError(errorTypeScan, duration)

		return 0, errors.Join(recordstore.ErrScanningRowFailed, scanErr)
	}

	after := &recordstore.HookContext{
		Table:        e.Table(),
		Operation:    operationInsert,
		Record:       before.Record,
		ID:           newID,
		RowsAffected: 1,
	}
	if hookErr := e.hooks.Trigger(ctx, recordstore.AfterInsert, after); hookErr != nil {
		tracing.finishError(errorTypeHook, duration)
		return 0, hookErr
	}

	e.logOperationContext(ctx, operationInsert,
		logAttrTable, e.Table(),
		logAttrRecordID, newID,
		logAttrDurationMS, e.toMilliseconds(duration))
	metrics.recordSuccess(1, duration)
	tracing.finishSuccess(1, duration)

	return newID, nil
}

/***** Updates *****/

// Update applies the candidate fields to the single record whose primary key
// equals id. The afterUpdate chain runs even when storage reports a failure,
// so hooks can observe failed writes. Returns the affected row count.
func (e *Engine) Update(ctx context.Context, id int64, rec recordstore.Record, opts ...WriteOption) (int64, error) {
	seed := recordstore.HookContext{ID: id}

	return e.updateWhere(ctx, rec, goqu.C(e.primaryKey).Eq(id), seed, applyWriteOptions(opts))
}

// UpdateMany applies identical candidate fields to every record whose primary
// key is contained in ids, in one statement. An empty id list is a no-op
// returning zero without a storage interaction.
func (e *Engine) UpdateMany(ctx context.Context, ids []int64, rec recordstore.Record, opts ...WriteOption) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	seed := recordstore.HookContext{IDs: ids}

	return e.updateWhere(ctx, rec, goqu.C(e.primaryKey).In(ids), seed, applyWriteOptions(opts))
}

// UpdateBy applies the candidate fields to every record matching the spec's
// filters. Fails when the spec carries no filters or the record is empty.
func (e *Engine) UpdateBy(ctx context.Context, spec recordstore.QuerySpec, rec recordstore.Record, opts ...WriteOption) (int64, error) {
	if !spec.HasFilters() {
		return 0, recordstore.ErrEmptyFilterSpec
	}
	if len(rec) == 0 {
		return 0, recordstore.ErrEmptyRecord
	}

	whereExpr, whereErr := e.whereExpression(spec)
	if whereErr != nil {
		return 0, whereErr
	}

	return e.updateWhere(ctx, rec, whereExpr, recordstore.HookContext{}, applyWriteOptions(opts))
}

// UpdateAll applies the candidate fields to every row of the table under the
// tautological always-true condition. This is a deliberately unscoped bulk
// write; no filter state applies.
func (e *Engine) UpdateAll(ctx context.Context, rec recordstore.Record, opts ...WriteOption) (int64, error) {
	return e.updateWhere(ctx, rec, goqu.L(alwaysTrue), recordstore.HookContext{}, applyWriteOptions(opts))
}

func (e *Engine) updateWhere(
	ctx context.Context,
	rec recordstore.Record,
	where exp.Expression,
	seed recordstore.HookContext,
	cfg writeConfig,
) (int64, error) {

	tracing, ctx := e.startOperationTracing(ctx, operationUpdate)
	metrics := e.startOperationMetrics(ctx, operationUpdate)
	start := time.Now()

	validated, validateErr := e.validate(ctx, rec, operationUpdate, cfg)
	if validateErr != nil {
		metrics.recordError(errorTypeValidation, time.Since(start))
		tracing.finishError(errorTypeValidation, time.Since(start))

		return 0, validateErr
	}

	before := &recordstore.HookContext{
		Table:     e.Table(),
		Operation: operationUpdate,
		Record:    copyRecord(validated),
		ID:        seed.ID,
		IDs:       seed.IDs,
	}
	if hookErr := e.hooks.Trigger(ctx, recordstore.BeforeUpdate, before); hookErr != nil {
		tracing.finishError(errorTypeHook, time.Since(start))
		return 0, hookErr
	}
	if before.Aborted() {
		tracing.finishError(errorTypeHook, time.Since(start))
		return 0, recordstore.ErrAbortedByHook
	}

	if len(before.Record) == 0 {
		tracing.finishError(errorTypeBuildStatement, time.Since(start))
		return 0, recordstore.ErrEmptyRecord
	}

	sqlQuery, args, toSQLErr := goqu.Dialect(dialectPostgres).
		Update(e.Table()).
		Prepared(true).
		Set(goqu.Record(before.Record)).
		Where(where).
		ToSQL()
	if toSQLErr != nil {
		e.logErrorContext(ctx, logMsgBuildStatementFailed, toSQLErr, logAttrTable, e.Table())
		metrics.recordError(errorTypeBuildStatement, time.Since(start))
		tracing.finishError(errorTypeBuildStatement, time.Since(start))

		return 0, errors.Join(recordstore.ErrBuildingStatementFailed, toSQLErr)
	}

	rowsAffected, duration, execErr := e.executeStatement(ctx, sqlQuery, args, operationUpdate)

	// afterUpdate always runs so hooks can observe failed writes.
	after := &recordstore.HookContext{
		Table:        e.Table(),
		Operation:    operationUpdate,
		Record:       before.Record,
		ID:           seed.ID,
		IDs:          seed.IDs,
		RowsAffected: rowsAffected,
		Failed:       execErr != nil,
	}
	hookErr := e.hooks.Trigger(ctx, recordstore.AfterUpdate, after)

	if execErr != nil {
		metrics.recordError(errorTypeDatabase, duration)
		tracing.finishError(errorTypeDatabase, duration)

		return 0, execErr
	}
	if hookErr != nil {
		tracing.finishError(errorTypeHook, duration)
		return 0, hookErr
	}

	e.logOperationContext(ctx, operationUpdate,
		logAttrTable, e.Table(),
		logAttrRowsAffected, rowsAffected,
		logAttrDurationMS, e.toMilliseconds(duration))
	metrics.recordSuccess(float64(rowsAffected), duration)
	tracing.finishSuccess(rowsAffected, duration)

	return rowsAffected, nil
}

/***** Deletes *****/

// Delete removes the single record whose primary key equals id.
// Returns the affected row count.
func (e *Engine) Delete(ctx context.Context, id int64) (int64, error) {
	seed := recordstore.HookContext{ID: id}

	return e.deleteWhere(ctx, goqu.C(e.primaryKey).Eq(id), seed)
}

// DeleteMany removes every record whose primary key is contained in ids.
// An empty id list is a no-op returning zero without a storage interaction.
func (e *Engine) DeleteMany(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	seed := recordstore.HookContext{IDs: ids}

	return e.deleteWhere(ctx, goqu.C(e.primaryKey).In(ids), seed)
}

// DeleteBy removes every record matching the spec's filters.
// Fails when the spec carries no filters.
func (e *Engine) DeleteBy(ctx context.Context, spec recordstore.QuerySpec) (int64, error) {
	if !spec.HasFilters() {
		return 0, recordstore.ErrEmptyFilterSpec
	}

	whereExpr, whereErr := e.whereExpression(spec)
	if whereErr != nil {
		return 0, whereErr
	}

	return e.deleteWhere(ctx, whereExpr, recordstore.HookContext{})
}

func (e *Engine) deleteWhere(
	ctx context.Context,
	where exp.Expression,
	seed recordstore.HookContext,
) (int64, error) {

	tracing, ctx := e.startOperationTracing(ctx, operationDelete)
	metrics := e.startOperationMetrics(ctx, operationDelete)
	start := time.Now()

	before := &recordstore.HookContext{
		Table:     e.Table(),
		Operation: operationDelete,
		ID:        seed.ID,
		IDs:       seed.IDs,
	}
	if hookErr := e.hooks.Trigger(ctx, recordstore.BeforeDelete, before); hookErr != nil {
		tracing.finishError(errorTypeHook, time.Since(start))
		return 0, hookErr
	}
	if before.Aborted() {
		tracing.finishError(errorTypeHook, time.Since(start))
		return 0, recordstore.ErrAbortedByHook
	}

	sqlQuery, args, toSQLErr := goqu.Dialect(dialectPostgres).
		Delete(e.Table()).
		Prepared(true).
		Where(where).
		ToSQL()
	if toSQLErr != nil {
		e.logErrorContext(ctx, logMsgBuildStatementFailed, toSQLErr, logAttrTable, e.Table())
		metrics.recordError(errorTypeBuildStatement, time.Since(start))
		tracing.finishError(errorTypeBuildStatement, time.Since(start))

		return 0, errors.Join(recordstore.ErrBuildingStatementFailed, toSQLErr)
	}

	rowsAffected, duration, execErr := e.executeStatement(ctx, sqlQuery, args, operationDelete)

	after := &recordstore.HookContext{
		Table:        e.Table(),
		Operation:    operationDelete,
		ID:           seed.ID,
		IDs:          seed.IDs,
		RowsAffected: rowsAffected,
		Failed:       execErr != nil,
	}
	hookErr := e.hooks.Trigger(ctx, recordstore.AfterDelete, after)

	if execErr != nil {
		metrics.recordError(errorTypeDatabase, duration)
		tracing.finishError(errorTypeDatabase, duration)

		return 0, execErr
	}
	if hookErr != nil {
		tracing.finishError(errorTypeHook, duration)
		return 0, hookErr
	}

	e.logOperationContext(ctx, operationDelete,
		logAttrTable, e.Table(),
		logAttrRowsAffected, rowsAffected,
		logAttrDurationMS, e.toMilliseconds(duration))
	metrics.recordSuccess(float64(rowsAffected), duration)
	tracing.finishSuccess(rowsAffected, duration)

	return rowsAffected, nil
}

/***** Counts *****/

// CountBy returns the number of records matching the spec's filters.
// Count queries bypass the record hook chains by convention.
func (e *Engine) CountBy(ctx context.Context, spec recordstore.QuerySpec) (int64, error) {
	return e.countRecords(ctx, spec)
}

// CountAll returns the number of records in the table.
func (e *Engine) CountAll(ctx context.Context) (int64, error) {
	return e.countRecords(ctx, recordstore.EmptyQuerySpec())
}

// IsUnique reports whether no record carries the given value in the given
// field, optionally excluding one primary-key value (the record being edited).
//
// The result is derived from the actual matching row count; the source
// system's behavior of unconditionally reporting uniqueness was a defect and
// is deliberately not reproduced.
func (e *Engine) IsUnique(ctx context.Context, field string, value any, excludeID ...int64) (bool, error) {
	if strings.TrimSpace(field) == "" {
		return false, recordstore.ErrEmptyFilterKey
	}

	builder := recordstore.BuildQuerySpec().Where(field, value)

	spec, specErr := builder.Finalize()
	if specErr != nil {
		return false, specErr
	}

	extraWhere := make([]goqu.Expression, 0, 1)
	if len(excludeID) > 0 {
		extraWhere = append(extraWhere, goqu.C(e.primaryKey).Neq(excludeID[0]))
	}

	count, countErr := e.countRecords(ctx, spec, extraWhere...)
	if countErr != nil {
		return false, countErr
	}

	return count == 0, nil
}

func (e *Engine) countRecords(
	ctx context.Context,
	spec recordstore.QuerySpec,
	extraWhere ...goqu.Expression,
) (int64, error) {

	tracing, ctx := e.startOperationTracing(ctx, operationCount)
	metrics := e.startOperationMetrics(ctx, operationCount)
	start := time.Now()

	sqlQuery, args, buildErr := e.buildSelectQuery(spec, goqu.COUNT(goqu.Star()), extraWhere...)
	if buildErr != nil {
		e.logErrorContext(ctx, logMsgBuildStatementFailed, buildErr, logAttrTable, e.Table())
		metrics.recordError(errorTypeBuildStatement, time.Since(start))
		tracing.finishError(errorTypeBuildStatement, time.Since(start))

		return 0, buildErr
	}

	rows, duration, queryErr := e.executeQuery(ctx, sqlQuery, args, operationCount)
	if queryErr != nil {
		metrics.recordError(errorTypeDatabase, duration)
		tracing.finishError(errorTypeDatabase, duration)

		return 0, queryErr
	}
	defer e.closeRows(ctx, rows)

	var count int64
	if rows.Next() {
		if scanErr := rows.Scan(&count); scanErr != nil {
			e.logErrorContext(ctx, logMsgScanRowFailed, scanErr)
			metrics.recordError(errorTypeScan, duration)
			tracing.finishError(errorTypeScan, duration)

			return 0, errors.Join(recordstore.ErrScanningRowFailed, scanErr)
		}
	} else if iterErr := rows.Err(); iterErr != nil {
		metrics.recordError(errorTypeDatabase, duration)
		tracing.finishError(errorTypeDatabase, duration)

		return 0, errors.Join(recordstore.ErrQueryingRecordsFailed, iterErr)
	}

	metrics.recordSuccess(float64(count), duration)
	tracing.finishSuccess(count, duration)

	return count, nil
}

/***** Raw statements *****/

// ExecRaw executes a caller-supplied statement with named bindings, e.g.
//
//	affected, err := engine.ExecRaw(ctx,
//		"UPDATE app_users SET status = :status WHERE id IN (:ids)",
//		map[string]any{"status": 2, "ids": []int64{7, 9}})
//
// Named bindings are resolved via sqlx.Named, slice values are expanded via
// sqlx.In, and the bindvars are rebound to the PostgreSQL placeholder style.
// Returns the affected row count. No hook chains or validation apply.
func (e *Engine) ExecRaw(ctx context.Context, query string, bindings map[string]any) (int64, error) {
	if bindings == nil {
		bindings = map[string]any{}
	}

	resolved, args, namedErr := sqlx.Named(query, bindings)
	if namedErr != nil {
		e.logErrorContext(ctx, logMsgResolveBindsFailed, namedErr, logAttrQuery, query)

		return 0, errors.Join(recordstore.ErrResolvingBindingsFailed, namedErr)
	}

	resolved, args, inErr := sqlx.In(resolved, args...)
	if inErr != nil {
		e.logErrorContext(ctx, logMsgResolveBindsFailed, inErr, logAttrQuery, query)

		return 0, errors.Join(recordstore.ErrResolvingBindingsFailed, inErr)
	}

	resolved = sqlx.Rebind(sqlx.DOLLAR, resolved)

	rowsAffected, _, execErr := e.executeStatement(ctx, resolved, args, operationExec)
	if execErr != nil {
		return 0, execErr
	}

	return rowsAffected, nil
}
