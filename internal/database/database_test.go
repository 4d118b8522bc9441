// internal/database/database_test.go
//
// Unit-tests for ping retries and the transaction helper using sqlmock.
//
// Run: go test ./internal/database -v

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

// flakyPinger fails the first n pings.
type flakyPinger struct {
	fails int
	calls int
}

func (p *flakyPinger) PingContext(context.Context) error {
	p.calls++
	if p.calls <= p.fails {
		return errors.New("connection refused")
	}
	return nil
}

func TestPing_RetriesUntilSuccess(t *testing.T) {
	p := &flakyPinger{fails: 2}
	opts := Options{Retries: 2, RetryBackoff: time.Millisecond}

	if err := ping(context.Background(), p, opts); err != nil {
		t.Fatalf("ping error: %v", err)
	}
	if p.calls != 3 {
		t.Fatalf("calls = %d, want 3", p.calls)
	}
}

func TestPing_GivesUpAfterRetries(t *testing.T) {
	p := &flakyPinger{fails: 10}
	opts := Options{Retries: 1, RetryBackoff: time.Millisecond}

	err := ping(context.Background(), p, opts)
	if err == nil {
		t.Fatalf("expected error")
	}
	if p.calls != 2 {
		t.Fatalf("calls = %d, want 2", p.calls)
	}
}

func TestWithTx_CommitAndRollback(t *testing.T) {
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer raw.Close()
	db := sqlx.NewDb(raw, "sqlmock")

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE t").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = WithTx(context.Background(), db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(context.Background(), "UPDATE t SET a = 1")
		return err
	})
	if err != nil {
		t.Fatalf("WithTx commit path: %v", err)
	}

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()
	if err := WithTx(context.Background(), db, func(*sqlx.Tx) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}
