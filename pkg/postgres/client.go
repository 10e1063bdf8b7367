// Package postgres holds the connection behind the upload registry. It keeps
// the *sql.DB private so the registry only reaches the database through
// context-bound calls.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/config"
)

const connectTimeout = 5 * time.Second

// DB is a pooled lib/pq connection to the registry database.
type DB struct {
	sql  *sql.DB
	addr string
}

// Open connects to the registry database and fails unless it answers a ping
// within connectTimeout.
func Open(ctx context.Context, cfg config.PostgresConfig) (*DB, error) {
	conn, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("upload registry: open: %w", err)
	}
	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	db := &DB{sql: conn, addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)}
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.Ping(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Ping backs the readiness check.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.sql.PingContext(ctx); err != nil {
		return fmt.Errorf("upload registry: ping %s: %w", db.addr, err)
	}
	return nil
}

func (db *DB) Close() error {
	return db.sql.Close()
}

// Migrate applies schema statements in order inside one transaction.
func (db *DB) Migrate(ctx context.Context, statements ...string) error {
	return db.InTx(ctx, func(tx *sql.Tx) error {
		for i, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("upload registry: schema statement %d: %w", i+1, err)
			}
		}
		return nil
	})
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.sql.QueryContext(ctx, query, args...)
}

// InTx runs fn in a transaction, committing when fn returns nil.
func (db *DB) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upload registry: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("upload registry: rollback after %v: %w", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("upload registry: commit: %w", err)
	}
	return nil
}
