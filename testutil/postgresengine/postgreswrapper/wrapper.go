package postgreswrapper

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"

	"github.com/recordkit/fluent-recordstore-go/recordstore/postgresengine"
	"github.com/recordkit/fluent-recordstore-go/testutil/postgresengine/config"
)

// Adapter type constants
const (
	typePGXPool = "pgx.pool"
	typeSQLDB   = "sql.db"
	typeSQLXDB  = "sqlx.db"
)

// TestTableName is the fixture table the test suite operates on.
const TestTableName = "users"

const createTestTableDDL = `
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	email TEXT NOT NULL,
	username TEXT,
	status INT NOT NULL DEFAULT 1,
	age INT,
	password TEXT,
	created_on BIGINT,
	updated_on BIGINT
)`

// Wrapper abstracts over the different engine adapter types.
type Wrapper interface {
	GetEngine() *postgresengine.Engine
	Close()
}

// PGXPoolWrapper wraps pgxpool-based testing.
type PGXPoolWrapper struct {
	pool   *pgxpool.Pool
	engine *postgresengine.Engine
}

func (w *PGXPoolWrapper) GetEngine() *postgresengine.Engine {
	return w.engine
}

func (w *PGXPoolWrapper) Close() {
	w.pool.Close()
}

// SQLDBWrapper wraps sql.DB-based testing.
type SQLDBWrapper struct {
	db     *sql.DB
	engine *postgresengine.Engine
}

func (w *SQLDBWrapper) GetEngine() *postgresengine.Engine {
	return w.engine
}

func (w *SQLDBWrapper) Close() {
	_ = w.db.Close() // ignore error
}

// SQLXWrapper wraps sqlx.DB-based testing.
type SQLXWrapper struct {
	db     *sqlx.DB
	engine *postgresengine.Engine
}

func (w *SQLXWrapper) GetEngine() *postgresengine.Engine {
	return w.engine
}

func (w *SQLXWrapper) Close() {
	_ = w.db.Close() // ignore error
}

// CreateWrapperWithTestConfig creates the appropriate wrapper based on the ADAPTER_TYPE environment variable.
func CreateWrapperWithTestConfig(t testing.TB, options ...postgresengine.Option) Wrapper {
	adapterTypeFromEnv := strings.ToLower(os.Getenv("ADAPTER_TYPE"))

	switch adapterTypeFromEnv {
	case typePGXPool, "":
		connPool, err := pgxpool.NewWithConfig(context.Background(), config.PostgresPGXPoolSingleConfig())
		assert.NoError(t, err, "error connecting to DB pool in test setup")

		engine, err := postgresengine.NewEngineFromPGXPool(connPool, TestTableName, options...)
		assert.NoError(t, err, "error creating record store engine")

		return &PGXPoolWrapper{pool: connPool, engine: engine}

	case typeSQLDB:
		db := config.PostgresSQLDBSingleConfig()

		engine, err := postgresengine.NewEngineFromSQLDB(db, TestTableName, options...)
		assert.NoError(t, err, "error creating record store engine")

		return &SQLDBWrapper{db: db, engine: engine}

	case typeSQLXDB:
		db := config.PostgresSQLXSingleConfig()

		engine, err := postgresengine.NewEngineFromSQLX(db, TestTableName, options...)
		assert.NoError(t, err, "error creating record store engine")

		return &SQLXWrapper{db: db, engine: engine}

	default: // neither one of the known types nor empty
		panic(fmt.Sprintf("unsupported wrapper type from env: %s", adapterTypeFromEnv))
	}
}

// CreateWrapperWithBenchmarkConfig creates a wrapper against the primary benchmark database.
func CreateWrapperWithBenchmarkConfig(t testing.TB, options ...postgresengine.Option) Wrapper {
	adapterTypeFromEnv := strings.ToLower(os.Getenv("ADAPTER_TYPE"))

	switch adapterTypeFromEnv {
	case typePGXPool, "":
		primary, err := pgxpool.NewWithConfig(context.Background(), config.PostgresPGXPoolPrimaryConfig())
		assert.NoError(t, err, "error connecting to primary DB pool in benchmark setup")

		replica, err := pgxpool.NewWithConfig(context.Background(), config.PostgresPGXPoolReplicaConfig())
		assert.NoError(t, err, "error connecting to replica DB pool in benchmark setup")

		engine, err := postgresengine.NewEngineFromPGXPoolWithReplica(primary, replica, TestTableName, options...)
		assert.NoError(t, err, "error creating record store engine")

		return &PGXPoolWrapper{pool: primary, engine: engine}

	case typeSQLDB:
		db := config.PostgresSQLDBPrimaryConfig()

		engine, err := postgresengine.NewEngineFromSQLDB(db, TestTableName, options...)
		assert.NoError(t, err, "error creating record store engine")

		return &SQLDBWrapper{db: db, engine: engine}

	case typeSQLXDB:
		db := config.PostgresSQLXPrimaryConfig()

		engine, err := postgresengine.NewEngineFromSQLX(db, TestTableName, options...)
		assert.NoError(t, err, "error creating record store engine")

		return &SQLXWrapper{db: db, engine: engine}

	default: // neither one of the known types nor empty
		panic(fmt.Sprintf("unsupported wrapper type from env: %s", adapterTypeFromEnv))
	}
}

// EnsureTestTable creates the fixture table if it does not exist yet.
func EnsureTestTable(t testing.TB, wrapper Wrapper) {
	execOnWrapper(t, wrapper, createTestTableDDL, "error creating the fixture table")
}

// CleanUp truncates the fixture table for the given wrapper.
func CleanUp(t testing.TB, wrapper Wrapper) {
	execOnWrapper(t, wrapper, "TRUNCATE TABLE users RESTART IDENTITY", "error cleaning up the fixture table")
}

// SeedUser inserts one fixture row and returns its id.
// The email is randomized with a UUID so unique checks stay meaningful across seeds.
func SeedUser(t testing.TB, wrapper Wrapper, username string, status int, age int) int64 {
	email := fmt.Sprintf("%s-%s@example.com", username, uuid.NewString())
	query := `INSERT INTO users (email, username, status, age, created_on) VALUES ($1, $2, $3, $4, 0) RETURNING id`

	var id int64
	var err error

	switch w := wrapper.(type) {
	case *PGXPoolWrapper:
		err = w.pool.QueryRow(context.Background(), query, email, username, status, age).Scan(&id)

	case *SQLDBWrapper:
		err = w.db.QueryRow(query, email, username, status, age).Scan(&id)

	case *SQLXWrapper:
		err = w.db.QueryRow(query, email, username, status, age).Scan(&id)

	default:
		panic(fmt.Sprintf("unsupported wrapper type: %T", w))
	}

	assert.NoError(t, err, "error in arranging test data")
	assert.NotZero(t, id, "error in arranging test data")

	return id
}

// CountRows returns the number of rows in the fixture table.
func CountRows(t testing.TB, wrapper Wrapper) int {
	var cnt int
	var err error

	switch w := wrapper.(type) {
	case *PGXPoolWrapper:
		err = w.pool.QueryRow(context.Background(), `SELECT count(*) FROM users`).Scan(&cnt)

	case *SQLDBWrapper:
		err = w.db.QueryRow(`SELECT count(*) FROM users`).Scan(&cnt)

	case *SQLXWrapper:
		err = w.db.QueryRow(`SELECT count(*) FROM users`).Scan(&cnt)

	default:
		panic(fmt.Sprintf("unsupported wrapper type: %T", w))
	}

	assert.NoError(t, err, "error counting rows in the fixture table")

	return cnt
}

func execOnWrapper(t testing.TB, wrapper Wrapper, query string, failMsg string) {
	switch w := wrapper.(type) {
	case *PGXPoolWrapper:
		_, err := w.pool.Exec(context.Background(), query)
		assert.NoError(t, err, failMsg)

	case *SQLDBWrapper:
		_, err := w.db.Exec(query)
		assert.NoError(t, err, failMsg)

	case *SQLXWrapper:
		_, err := w.db.Exec(query)
		assert.NoError(t, err, failMsg)

	default:
		panic(fmt.Sprintf("unsupported wrapper type: %T", w))
	}
}
