package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/recordkit/fluent-recordstore-go/recordstore"
	"github.com/recordkit/fluent-recordstore-go/recordstore/postgresengine/internal/adapters"
)

const (
	defaultPrimaryKey    = "id"
	defaultCreatedField  = "created_on"
	defaultModifiedField = "updated_on"

	dialectPostgres = "postgres"
	alwaysTrue      = "1 = 1"

	operationFind   = "find"
	operationInsert = "insert"
	operationUpdate = "update"
	operationDelete = "delete"
	operationCount  = "count"
	operationExec   = "exec"

	logMsgBuildStatementFailed = "failed to build sql statement"
	logMsgResolveBindsFailed   = "failed to resolve named bindings"
	logMsgDBQueryFailed        = "database query execution failed"
	logMsgDBExecFailed         = "database statement execution failed"
	logMsgCloseRowsFailed      = "failed to close database rows"
	logMsgScanRowFailed        = "failed to scan database row"
	logMsgRowsAffectedFailed   = "failed to get rows affected count"
	logMsgValidationFailed     = "record validation failed"
	logMsgRulesWithoutGate     = "validation rules are declared but no validator is configured"
	logMsgSQLExecuted          = "executed sql for: "
	logMsgOperation            = "recordstore operation: "

	logAttrError        = "error"
	logAttrQuery        = "query"
	logAttrTable        = "table"
	logAttrRecordCount  = "record_count"
	logAttrRowsAffected = "rows_affected"
	logAttrDurationMS   = "duration_ms"
	logAttrRecordID     = "record_id"
	logAttrFields       = "fields"
)

type (
	sqlQueryString    = string
	rowsAffectedInt64 = int64
	queryDuration     = time.Duration
)

// Logger is re-exported from the recordstore package for convenience.
type Logger = recordstore.Logger

// ContextualLogger is re-exported from the recordstore package for convenience.
type ContextualLogger = recordstore.ContextualLogger

// MetricsCollector is re-exported from the recordstore package for convenience.
type MetricsCollector = recordstore.MetricsCollector

// TracingCollector is re-exported from the recordstore package for convenience.
type TracingCollector = recordstore.TracingCollector

// SpanContext is re-exported from the recordstore package for convenience.
type SpanContext = recordstore.SpanContext

// Engine is a record-access engine bound to one PostgreSQL table. It performs
// create/read/update/delete operations described by recordstore.QuerySpec
// values, routing every operation through the lifecycle hook chains and the
// validation and field-protection gate.
//
// An Engine holds no per-call query state; specs are passed into terminal
// operations. The schema column cache is populated once on first write and
// guarded by sync.Once.
type Engine struct {
	db          adapters.DBAdapter
	tableName   string
	tablePrefix string
	primaryKey  string

	timestampFormat recordstore.TimestampFormat
	createdField    string
	modifiedField   string
	now             func() time.Time

	rules                 recordstore.RuleSet
	insertRules           recordstore.RuleSet
	validator             recordstore.Validator
	skipValidationDefault bool

	hooks *recordstore.HookChains

	mu                 sync.Mutex
	protected          map[string]struct{}
	lastValidationErrs recordstore.FieldErrors

	schemaOnce   sync.Once
	schemaCols   []string
	schemaColSet map[string]struct{}
	schemaErr    error

	logger           Logger
	contextualLogger ContextualLogger
	metricsCollector MetricsCollector
	tracingCollector TracingCollector
}

// NewEngineFromPGXPool creates a new Engine for the given table using a pgx
// pool with optional configuration.
func NewEngineFromPGXPool(db *pgxpool.Pool, tableName string, options ...Option) (*Engine, error) {
	if db == nil {
		return nil, recordstore.ErrNilDatabaseConnection
	}

	return newEngine(adapters.NewPGXAdapter(db), tableName, options...)
}

// NewEngineFromPGXPoolWithReplica creates a new Engine routing reads through
// the given replica pool and writes through the primary pool.
func NewEngineFromPGXPoolWithReplica(db *pgxpool.Pool, replica *pgxpool.Pool, tableName string, options ...Option) (*Engine, error) {
	if db == nil || replica == nil {
		return nil, recordstore.ErrNilDatabaseConnection
	}

	return newEngine(adapters.NewPGXAdapterWithReplica(db, replica), tableName, options...)
}

// NewEngineFromSQLDB creates a new Engine for the given table using a sql.DB
// with optional configuration.
func NewEngineFromSQLDB(db *sql.DB, tableName string, options ...Option) (*Engine, error) {
	if db == nil {
		return nil, recordstore.ErrNilDatabaseConnection
	}

	return newEngine(adapters.NewSQLAdapter(db), tableName, options...)
}

// NewEngineFromSQLX creates a new Engine for the given table using a sqlx.DB
// with optional configuration.
func NewEngineFromSQLX(db *sqlx.DB, tableName string, options ...Option) (*Engine, error) {
	if db == nil {
		return nil, recordstore.ErrNilDatabaseConnection
	}

	return newEngine(adapters.NewSQLXAdapter(db), tableName, options...)
}

func newEngine(db adapters.DBAdapter, tableName string, options ...Option) (*Engine, error) {
	if tableName == "" {
		return nil, recordstore.ErrEmptyTableName
	}

	e := &Engine{
		db:              db,
		tableName:       tableName,
		primaryKey:      defaultPrimaryKey,
		timestampFormat: recordstore.TimestampUnix,
		createdField:    defaultCreatedField,
		modifiedField:   defaultModifiedField,
		now:             time.Now,
		hooks:           recordstore.NewHookChains(),
		protected:       make(map[string]struct{}),
	}

	for _, option := range options {
		if err := option(e); err != nil {
			return nil, err
		}
	}

	// Built-in hooks run ahead of caller-registered ones: the relevant
	// timestamp is stamped first, then the candidate passes the field
	// authorizer before anything else sees it.
	e.hooks.RegisterFront(recordstore.BeforeInsert, recordstore.HookNameAuthorizeFields, e.authorizeFieldsHook())
	e.hooks.RegisterFront(recordstore.BeforeInsert, recordstore.HookNameStampCreated,
		recordstore.StampFieldHook(e.createdField, e.timestampFormat, e.now))
	e.hooks.RegisterFront(recordstore.BeforeUpdate, recordstore.HookNameAuthorizeFields, e.authorizeFieldsHook())
	e.hooks.RegisterFront(recordstore.BeforeUpdate, recordstore.HookNameStampModified,
		recordstore.StampFieldHook(e.modifiedField, e.timestampFormat, e.now))

	return e, nil
}

// Table returns the prefixed table name the engine is bound to.
func (e *Engine) Table() string {
	return e.tablePrefix + e.tableName
}

// Hooks exposes the engine's lifecycle hook chains for registration after
// construction.
func (e *Engine) Hooks() *recordstore.HookChains {
	return e.hooks
}

/***** Reads *****/

// Find retrieves the single record whose primary key equals id.
// Returns recordstore.ErrRecordNotFound when no row matches.
func (e *Engine) Find(ctx context.Context, id int64) (recordstore.Record, error) {
	spec, err := recordstore.BuildQuerySpec().
		Where(e.primaryKey, id).
		Limit(1, 0).
		Finalize()
	if err != nil {
		return nil, err
	}

	return e.findOne(ctx, spec)
}

// FindBy retrieves the first record matching the spec's filters, with an
// implicit limit of one. Returns recordstore.ErrRecordNotFound when no row
// matches.
func (e *Engine) FindBy(ctx context.Context, spec recordstore.QuerySpec) (recordstore.Record, error) {
	return e.findOne(ctx, spec.WithLimit(1, 0))
}

// FindMany retrieves the records whose primary key is contained in ids,
// honoring the spec's declared order clause. An empty id list yields an empty
// result without a storage interaction.
func (e *Engine) FindMany(ctx context.Context, ids []int64, spec recordstore.QuerySpec) (recordstore.Records, error) {
	if len(ids) == 0 {
		return recordstore.Records{}, nil
	}

	return e.findRecords(ctx, spec, goqu.C(e.primaryKey).In(ids))
}

// FindAll retrieves every record matching the spec's full filter/order/limit
// state. Every returned record is individually passed through the afterFind
// chain.
func (e *Engine) FindAll(ctx context.Context, spec recordstore.QuerySpec) (recordstore.Records, error) {
	return e.findRecords(ctx, spec)
}

func (e *Engine) findOne(ctx context.Context, spec recordstore.QuerySpec) (recordstore.Record, error) {
	records, err := e.findRecords(ctx, spec)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, recordstore.ErrRecordNotFound
	}

	return records[0], nil
}

// findRecords implements the shared read path:
// trigger beforeFind -> compile/build -> execute -> afterFind per record.
func (e *Engine) findRecords(
	ctx context.Context,
	spec recordstore.QuerySpec,
	extraWhere ...goqu.Expression,
) (recordstore.Records, error) {

	tracing, ctx := e.startOperationTracing(ctx, operationFind)
	metrics := e.startOperationMetrics(ctx, operationFind)
	start := time.Now()

	before := &recordstore.HookContext{Table: e.Table(), Operation: operationFind}
	if err := e.hooks.Trigger(ctx, recordstore.BeforeFind, before); err != nil {
		tracing.finishError(errorTypeHook, time.Since(start))
		return nil, err
	}
	if before.Aborted() {
		tracing.finishError(errorTypeHook, time.Since(start))
		return nil, recordstore.ErrAbortedByHook
	}

	sqlQuery, args, buildErr := e.buildSelectQuery(spec, goqu.Star(), extraWhere...)
	if buildErr != nil {
		e.logErrorContext(ctx, logMsgBuildStatementFailed, buildErr)
		metrics.recordError(errorTypeBuildStatement, time.Since(start))
		tracing.finishError(errorTypeBuildStatement, time.Since(start))

		return nil, buildErr
	}

	rows, duration, queryErr := e.executeQuery(ctx, sqlQuery, args, operationFind)
	if queryErr != nil {
		metrics.recordError(errorTypeDatabase, duration)
		tracing.finishError(errorTypeDatabase, duration)

		return nil, queryErr
	}
	defer e.closeRows(ctx, rows)

	records, scanErr := e.scanRecords(ctx, rows)
	if scanErr != nil {
		metrics.recordError(errorTypeScan, duration)
		tracing.finishError(errorTypeScan, duration)

		return nil, scanErr
	}

	for i, record := range records {
		after := &recordstore.HookContext{Table: e.Table(), Operation: operationFind, Record: record}
		if err := e.hooks.Trigger(ctx, recordstore.AfterFind, after); err != nil {
			tracing.finishError(errorTypeHook, time.Since(start))
			return nil, err
		}

		if after.Record != nil {
			records[i] = after.Record
		}
	}

	e.logOperationContext(ctx, operationFind,
		logAttrTable, e.Table(),
		logAttrRecordCount, len(records),
		logAttrDurationMS, e.toMilliseconds(duration))
	metrics.recordSuccess(float64(len(records)), duration)
	tracing.finishSuccess(int64(len(records)), duration)

	return records, nil
}

/***** Statement building *****/

// whereExpression compiles the spec's filter state into a goqu expression.
// The compiled clause uses named bindings; they are resolved to positional
// bindvars via sqlx.Named, and slice values for IN filters are expanded via
// sqlx.In, before the fragment is handed to goqu as a literal.
func (e *Engine) whereExpression(spec recordstore.QuerySpec) (goqu.Expression, error) {
	clause, bindings := spec.CompileFilters()
	if clause == "" {
		return nil, nil
	}

	query, args, namedErr := sqlx.Named(clause, bindings)
	if namedErr != nil {
		return nil, errors.Join(recordstore.ErrResolvingBindingsFailed, namedErr)
	}

	query, args, inErr := sqlx.In(query, args...)
	if inErr != nil {
		return nil, errors.Join(recordstore.ErrResolvingBindingsFailed, inErr)
	}

	return goqu.L(query, args...), nil
}

func (e *Engine) buildSelectQuery(
	spec recordstore.QuerySpec,
	selection any,
	extraWhere ...goqu.Expression,
) (sqlQueryString, []any, error) {

	selectStmt := goqu.Dialect(dialectPostgres).
		From(e.Table()).
		Select(selection).
		Prepared(true)

	whereExpr, whereErr := e.whereExpression(spec)
	if whereErr != nil {
		return "", nil, whereErr
	}
	if whereExpr != nil {
		selectStmt = selectStmt.Where(whereExpr)
	}
	for _, extra := range extraWhere {
		selectStmt = selectStmt.Where(extra)
	}

	if spec.HasOrder() {
		orderedColumn := goqu.I(spec.OrderField())
		if spec.OrderDirection() == recordstore.OrderDescending {
			selectStmt = selectStmt.Order(orderedColumn.Desc())
		} else {
			selectStmt = selectStmt.Order(orderedColumn.Asc())
		}
	}

	if spec.HasLimit() {
		selectStmt = selectStmt.
			Limit(uint(spec.LimitCount())).
			Offset(uint(spec.LimitOffset()))
	}

	sqlQuery, args, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return "", nil, errors.Join(recordstore.ErrBuildingStatementFailed, toSQLErr)
	}

	return sqlQuery, args, nil
}

/***** Execution *****/

// executeQuery executes the SQL query and returns rows with timing information.
func (e *Engine) executeQuery(
	ctx context.Context,
	sqlQuery sqlQueryString,
	args []any,
	action string,
) (adapters.DBRows, queryDuration, error) {
	return e.runQuery(ctx, e.db.Query, sqlQuery, args, action)
}

// executeQueryPrimary is executeQuery pinned to the primary connection, for
// row-returning statements that must not be served by a read replica.
func (e *Engine) executeQueryPrimary(
	ctx context.Context,
	sqlQuery sqlQueryString,
	args []any,
	action string,
) (adapters.DBRows, queryDuration, error) {
	return e.runQuery(ctx, e.db.QueryPrimary, sqlQuery, args, action)
}

func (e *Engine) runQuery(
	ctx context.Context,
	queryFn func(context.Context, string, ...any) (adapters.DBRows, error),
	sqlQuery sqlQueryString,
	args []any,
	action string,
) (adapters.DBRows, queryDuration, error) {

	start := time.Now()
	rows, queryErr := queryFn(ctx, sqlQuery, args...)
	duration := time.Since(start)
	e.logQueryWithDurationContext(ctx, sqlQuery, action, duration)

	if queryErr != nil {
		e.logErrorContext(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)

		return nil, duration, errors.Join(recordstore.ErrQueryingRecordsFailed, queryErr)
	}

	return rows, duration, nil
}

// executeStatement executes the SQL statement and returns the affected row
// count with timing information.
func (e *Engine) executeStatement(
	ctx context.Context,
	sqlQuery sqlQueryString,
	args []any,
	action string,
) (rowsAffectedInt64, queryDuration, error) {

	start := time.Now()
	result, execErr := e.db.Exec(ctx, sqlQuery, args...)
	duration := time.Since(start)
	e.logQueryWithDurationContext(ctx, sqlQuery, action, duration)

	if execErr != nil {
		e.logErrorContext(ctx, logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)

		return 0, duration, errors.Join(recordstore.ErrExecutingStatementFailed, execErr)
	}

	rowsAffected, rowsAffectedErr := result.RowsAffected()
	if rowsAffectedErr != nil {
		e.logErrorContext(ctx, logMsgRowsAffectedFailed, rowsAffectedErr)

		return 0, duration, errors.Join(recordstore.ErrGettingRowsAffectedFailed, rowsAffectedErr)
	}

	return rowsAffected, duration, nil
}

// closeRows safely closes database rows and logs any errors.
func (e *Engine) closeRows(ctx context.Context, rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		e.logWarnContext(ctx, logMsgCloseRowsFailed, logAttrError, closeErr.Error())
	}
}

// scanRecords converts database rows into raw records keyed by column name.
// Byte-slice values are normalized to strings so the three adapters yield the
// same shape for text columns.
func (e *Engine) scanRecords(ctx context.Context, rows adapters.DBRows) (recordstore.Records, error) {
	columns, columnsErr := rows.Columns()
	if columnsErr != nil {
		e.logErrorContext(ctx, logMsgScanRowFailed, columnsErr)

		return nil, errors.Join(recordstore.ErrScanningRowFailed, columnsErr)
	}

	records := make(recordstore.Records, 0)

	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}

		if scanErr := rows.Scan(pointers...); scanErr != nil {
			e.logErrorContext(ctx, logMsgScanRowFailed, scanErr)

			return nil, errors.Join(recordstore.ErrScanningRowFailed, scanErr)
		}

		record := make(recordstore.Record, len(columns))
		for i, column := range columns {
			if raw, isBytes := values[i].([]byte); isBytes {
				record[column] = string(raw)
				continue
			}
			record[column] = values[i]
		}

		records = append(records, record)
	}

	if iterErr := rows.Err(); iterErr != nil {
		e.logErrorContext(ctx, logMsgDBQueryFailed, iterErr)

		return nil, errors.Join(recordstore.ErrQueryingRecordsFailed, iterErr)
	}

	return records, nil
}

// copyRecord clones a candidate record so hooks never mutate caller-supplied maps.
func copyRecord(rec recordstore.Record) recordstore.Record {
	if rec == nil {
		return nil
	}

	clone := make(recordstore.Record, len(rec))
	for field, value := range rec {
		clone[field] = value
	}

	return clone
}
