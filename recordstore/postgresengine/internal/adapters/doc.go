// Package adapters provides database adapter implementations for the PostgreSQL record engine.
//
// This package implements the adapter pattern to support multiple PostgreSQL database libraries:
// pgx.Pool, sql.DB, and sqlx.DB. All adapters provide equivalent functionality through
// a common DBAdapter interface, allowing the record engine to work seamlessly with any
// supported database connection type.
//
// The adapters handle the specifics of each database library while presenting a
// unified interface for parameterized statement execution and result handling.
package adapters
