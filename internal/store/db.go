// Package store owns the database connection pool and the per-request
// transaction scope every repository operation runs inside.
package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// DB wraps the shared connection pool. Safe for concurrent use; each request
// checks out one connection for the lifetime of its scope.
type DB struct {
	db  *sql.DB
	log *zap.Logger
}

// Open connects to PostgreSQL through the pgx stdlib driver.
func Open(dsn string, log *zap.Logger) (*DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db, log), nil
}

// New wraps an existing pool. Used by tests to inject sqlmock.
func New(db *sql.DB, log *zap.Logger) *DB {
	if log == nil {
		log = zap.NewNop()
	}
	return &DB{db: db, log: log}
}

func (d *DB) Close() error { return d.db.Close() }

// Ping verifies connectivity; used by the readiness probe.
func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }

// Std exposes the raw pool for collaborators that manage their own
// transactions (the migration runner).
func (d *DB) Std() *sql.DB { return d.db }
