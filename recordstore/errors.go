package recordstore

import (
	"errors"
)

var ErrNilDatabaseConnection = errors.New("nil database connection supplied")
var ErrEmptyTableName = errors.New("empty table name supplied")
var ErrEmptyPrimaryKeyName = errors.New("empty primary key name supplied")

var ErrEmptyOrderField = errors.New("empty order field supplied")
var ErrInvalidOrderDirection = errors.New("order direction must be ASC or DESC")
var ErrNegativeLimitOrOffset = errors.New("limit count and offset must not be negative")
var ErrEmptyFilterKey = errors.New("empty filter key supplied")
var ErrEmptyFilterSpec = errors.New("query spec carries no filters")
var ErrEmptyRecord = errors.New("empty record supplied")

var ErrValidationFailed = errors.New("record validation failed")
var ErrAbortedByHook = errors.New("operation aborted by lifecycle hook")

var ErrRecordNotFound = errors.New("no record matched the given criteria")
var ErrNoSchemaColumns = errors.New("schema introspection returned no columns, table is misconfigured")

var ErrBuildingStatementFailed = errors.New("building sql statement failed")
var ErrResolvingBindingsFailed = errors.New("resolving named bindings failed")
var ErrQueryingRecordsFailed = errors.New("querying records failed")
var ErrScanningRowFailed = errors.New("scanning database row failed")
var ErrExecutingStatementFailed = errors.New("executing sql statement failed")
var ErrGettingRowsAffectedFailed = errors.New("getting rows affected count failed")
var ErrInsertProducedNoRow = errors.New("insert statement produced no row")
