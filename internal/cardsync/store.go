// internal/cardsync/store.go
//
// Persistence seam for the orchestrator and the sweeper.
//
// Context
// -------
// Store gathers the designrequest and synclog helpers behind one interface
// so the sync flow can be exercised against an in-memory fake.  SQLStore is
// the MySQL implementation.  Concluding an attempt (Complete / Fail)
// updates the ledger row and the request's denormalized sync fields in ONE
// transaction, so the two can no longer drift apart on a crash between
// statements.
package cardsync

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/keefcreative/designworks/internal/client"
	"github.com/keefcreative/designworks/internal/database"
	"github.com/keefcreative/designworks/internal/designrequest"
	"github.com/keefcreative/designworks/internal/synclog"
)

// Store is everything the sync flow reads and writes.
type Store interface {
	Load(ctx context.Context, requestID int64) (*designrequest.Record, *client.Record, error)

	ClaimCreate(ctx context.Context, requestID int64, token string, now, staleBefore time.Time) (bool, error)
	ReleaseClaim(ctx context.Context, requestID int64, token string) error

	Begin(ctx context.Context, e *synclog.Entry) (int64, error)
	Complete(ctx context.Context, entryID, requestID int64, response types.JSONText, s designrequest.Success) error
	Fail(ctx context.Context, entryID, requestID int64, f synclog.Failure, at time.Time) error

	DueForRetry(ctx context.Context, now time.Time, maxRetries, limit int) ([]synclog.Entry, error)
	ClaimRetry(ctx context.Context, entryID int64, now time.Time) (bool, error)
	Reschedule(ctx context.Context, entryID int64, f synclog.Failure) error

	Latest(ctx context.Context, requestID int64) (*synclog.Entry, error)
	History(ctx context.Context, requestID int64, limit int) ([]synclog.Entry, error)
	SetSyncStatus(ctx context.Context, requestID int64, s designrequest.SyncStatus) error
}

// SQLStore implements Store on a sqlx pool.
type SQLStore struct {
	DB *sqlx.DB
}

var _ Store = (*SQLStore)(nil)

func (s *SQLStore) Load(ctx context.Context, requestID int64) (*designrequest.Record, *client.Record, error) {
	return designrequest.ByIDWithClient(ctx, s.DB, requestID)
}

func (s *SQLStore) ClaimCreate(ctx context.Context, requestID int64, token string, now, staleBefore time.Time) (bool, error) {
	return designrequest.ClaimCreate(ctx, s.DB, requestID, token, now, staleBefore)
}

func (s *SQLStore) ReleaseClaim(ctx context.Context, requestID int64, token string) error {
	return designrequest.ReleaseClaim(ctx, s.DB, requestID, token)
}

func (s *SQLStore) Begin(ctx context.Context, e *synclog.Entry) (int64, error) {
	return synclog.Insert(ctx, s.DB, e)
}

// Complete concludes entryID as completed and marks the request synced.
func (s *SQLStore) Complete(ctx context.Context, entryID, requestID int64, response types.JSONText, ok designrequest.Success) error {
	return database.WithTx(ctx, s.DB, func(tx *sqlx.Tx) error {
		if err := synclog.MarkCompleted(ctx, tx, entryID, response, ok.At); err != nil {
			return err
		}
		return designrequest.MarkSynced(ctx, tx, requestID, ok)
	})
}

// Fail concludes entryID as failed and marks the request failed.
func (s *SQLStore) Fail(ctx context.Context, entryID, requestID int64, f synclog.Failure, at time.Time) error {
	return database.WithTx(ctx, s.DB, func(tx *sqlx.Tx) error {
		if err := synclog.MarkFailed(ctx, tx, entryID, f); err != nil {
			return err
		}
		return designrequest.MarkFailed(ctx, tx, requestID, f.Message, at)
	})
}

func (s *SQLStore) DueForRetry(ctx context.Context, now time.Time, maxRetries, limit int) ([]synclog.Entry, error) {
	return synclog.DueForRetry(ctx, s.DB, now, maxRetries, limit)
}

func (s *SQLStore) ClaimRetry(ctx context.Context, entryID int64, now time.Time) (bool, error) {
	return synclog.ClaimRetry(ctx, s.DB, entryID, now)
}

func (s *SQLStore) Reschedule(ctx context.Context, entryID int64, f synclog.Failure) error {
	return synclog.Reschedule(ctx, s.DB, entryID, f)
}

func (s *SQLStore) Latest(ctx context.Context, requestID int64) (*synclog.Entry, error) {
	return synclog.Latest(ctx, s.DB, requestID)
}

func (s *SQLStore) History(ctx context.Context, requestID int64, limit int) ([]synclog.Entry, error) {
	return synclog.ByRequest(ctx, s.DB, requestID, limit)
}

func (s *SQLStore) SetSyncStatus(ctx context.Context, requestID int64, st designrequest.SyncStatus) error {
	return designrequest.SetSyncStatus(ctx, s.DB, requestID, st)
}
