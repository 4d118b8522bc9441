// Package database centralises sqlx connection helpers.  The default driver
// is go-sql-driver/mysql, which also works with MariaDB.
//
// Public entry points:
//
//	Open(ctx, dsn)                  – quick helper with conservative pool sizes.
//	OpenWithOptions(ctx, dsn, opts) – fine-grained control plus ping retries.
//	WithTx(ctx, db, fn)             – run fn inside one transaction.
//
// Both Open helpers Ping the database before returning so callers can fail
// fast during bootstrap.  Ping failures are retried with doubling delay
// (juju/retry) to ride out a database that is still starting.  Callers
// should Close() the returned *sqlx.DB when no longer needed.
package database

import (
	"context"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/juju/clock"
	"github.com/juju/retry"
	"go.uber.org/zap"
)

// Options tunes one pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Retries         int           // extra ping attempts after the first
	RetryBackoff    time.Duration // first delay, doubled each attempt
	Clock           clock.Clock   // nil means clock.WallClock
}

// DefaultOptions: 15 max open, 5 idle, 30-minute lifetime, two retries.
var DefaultOptions = Options{
	MaxOpenConns:    15,
	MaxIdleConns:    5,
	ConnMaxLifetime: 30 * time.Minute,
	Retries:         2,
	RetryBackoff:    500 * time.Millisecond,
}

// Open returns a *sqlx.DB configured with DefaultOptions.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	return OpenWithOptions(ctx, dsn, DefaultOptions)
}

// OpenWithOptions opens a MySQL pool and pings it, retrying per opts.
func OpenWithOptions(ctx context.Context, dsn string, opts Options) (*sqlx.DB, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	if err := ping(ctx, db, opts); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Pinger is the subset of *sqlx.DB used by ping; tests substitute sqlmock.
type Pinger interface {
	PingContext(ctx context.Context) error
}

func ping(ctx context.Context, db Pinger, opts Options) error {
	clk := opts.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	delay := opts.RetryBackoff
	if delay <= 0 {
		delay = time.Millisecond
	}

	err := retry.Call(retry.CallArgs{
		Func:        func() error { return db.PingContext(ctx) },
		Attempts:    opts.Retries + 1,
		Delay:       delay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       clk,
		Stop:        ctx.Done(),
		NotifyFunc: func(err error, attempt int) {
			zap.S().Warnw("database ping failed", "attempt", attempt, "err", err)
		},
	})
	if err != nil {
		return fmt.Errorf("database ping: %w", retry.LastError(err))
	}
	return nil
}

// WithTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			zap.S().Errorw("transaction rollback failed", "err", rbErr)
		}
		return err
	}
	return tx.Commit()
}
