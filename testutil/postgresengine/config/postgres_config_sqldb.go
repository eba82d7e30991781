package config

import (
	"context"
	"database/sql"
	"log"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

// PostgresSQLDBSingleConfig creates a configured *sql.DB for a single database.
func PostgresSQLDBSingleConfig() *sql.DB {
	return openSQLDB(PostgresSingleDSN(), 50)
}

// PostgresSQLDBPrimaryConfig creates a configured *sql.DB for the primary node of a replicated database.
func PostgresSQLDBPrimaryConfig() *sql.DB {
	return openSQLDB(PostgresPrimaryDSN(), 60)
}

// PostgresSQLDBReplicaConfig creates a configured *sql.DB for the replica node of a replicated database.
func PostgresSQLDBReplicaConfig() *sql.DB {
	return openSQLDB(PostgresReplicaDSN(), 60)
}

func openSQLDB(dsn string, maxOpenConnections int) *sql.DB {
	const defaultMaxIdleConnections = 2
	const defaultMaxConnLifetime = time.Hour
	const defaultMaxConnIdleTime = time.Minute * 5

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal("Failed to open database connection, error: ", err)
	}

	db.SetMaxOpenConns(maxOpenConnections)
	db.SetMaxIdleConns(defaultMaxIdleConnections)
	db.SetConnMaxLifetime(defaultMaxConnLifetime)
	db.SetConnMaxIdleTime(defaultMaxConnIdleTime)

	if pingErr := db.PingContext(context.Background()); pingErr != nil {
		log.Fatal("Failed to ping database, error: ", pingErr)
	}

	return db
}
