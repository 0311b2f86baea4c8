// Package database centralises sqlx connection helpers.  Three drivers are
// linked in: go-sql-driver/mysql (production), modernc.org/sqlite (CLI and
// tests), and pgx's database/sql adapter for Postgres.
//
// Public entry points:
//
//	Open(driver, dsn)                  – quick helper with conservative pool sizes.
//	OpenWithOptions(ctx, driver, dsn, opts) – fine-grained control and retries.
//	Migrate(ctx, db, stmts)            – run idempotent DDL in order.
//
// Both open helpers Ping the database before returning so callers can fail
// fast during bootstrap.  Callers should Close() the returned *sqlx.DB when
// no longer needed.
package database

import (
	"context"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Options tunes the pool and the startup ping.
type Options struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	PingRetries int
	RetryDelay  time.Duration
}

// Defaults: 15 max open, 5 idle, a 30-minute connection lifetime, and three
// ping attempts one second apart.
func Defaults() Options {
	return Options{
		MaxOpen:     15,
		MaxIdle:     5,
		MaxLifetime: 30 * time.Minute,
		PingRetries: 3,
		RetryDelay:  time.Second,
	}
}

// Open returns a *sqlx.DB with Defaults().
func Open(driver, dsn string) (*sqlx.DB, error) {
	return OpenWithOptions(context.Background(), driver, dsn, Defaults())
}

// OpenWithOptions opens a pool and pings it until it answers or retries run
// out.  SQLite pools are pinned to one connection so an in-memory database
// is shared by every caller.
func OpenWithOptions(ctx context.Context, driver, dsn string, o Options) (*sqlx.DB, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == "sqlite" {
		o.MaxOpen, o.MaxIdle = 1, 1
	}
	db.SetMaxOpenConns(o.MaxOpen)
	db.SetMaxIdleConns(o.MaxIdle)
	if o.MaxLifetime > 0 {
		db.SetConnMaxLifetime(o.MaxLifetime)
	}

	attempts := o.PingRetries
	if attempts < 1 {
		attempts = 1
	}
	for i := 1; ; i++ {
		err = db.PingContext(ctx)
		if err == nil {
			return db, nil
		}
		if i >= attempts {
			break
		}
		zap.S().Warnw("database ping failed, retrying", "driver", driver, "attempt", i, "err", err)
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(o.RetryDelay):
		}
	}
	db.Close()
	return nil, fmt.Errorf("ping %s: %w", driver, err)
}

// Migrate executes stmts in order.  Statements must be idempotent.
func Migrate(ctx context.Context, db *sqlx.DB, stmts []string) error {
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
