// internal/synclog/repository.go
//
// Ledger query helpers.
//
// Context
// -------
//   - `Insert`        — opens an attempt in `in_progress`.
//   - `MarkCompleted` / `MarkFailed` — conclude an open attempt.  Both are
//     guarded on `status = 'in_progress'`, so a row is concluded once.
//   - `DueForRetry`   — the sweeper's selection query.
//   - `ClaimRetry`    — compare-and-set that hands one due row to one sweeper.
//   - `Reschedule`    — puts a claimed row back when a replay could not even
//     start (for example the credentials vanished).
//   - `Latest`, `ByRequest`, `ByID` — read side for reconciliation and the
//     staff API.
//
// Every helper takes a `sqlx` context interface, so it runs on the pool or
// inside a transaction.
package synclog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
)

var (
	// ErrNotFound is returned when no ledger row matches.
	ErrNotFound = errors.New("sync log entry not found")

	// ErrConcluded is returned when a conclude call targets a row that is no
	// longer in the expected state.
	ErrConcluded = errors.New("sync log entry already concluded")
)

const columns = `id, client_id, design_request_id, sync_type, operation, status,
               request_payload, response_data, COALESCE(error_message, '') AS error_message,
               retry_count, next_retry_at, parent_id, created_at, completed_at`

// Insert writes e as a new `in_progress` row and returns its id.  e.Status
// is forced to in_progress.
func Insert(ctx context.Context, db sqlx.ExecerContext, e *Entry) (int64, error) {
	const q = `INSERT INTO sync_logs
            (client_id, design_request_id, sync_type, operation, status,
             request_payload, retry_count, parent_id, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	e.Status = StatusInProgress
	if e.SyncType == "" {
		e.SyncType = SyncTypeTrelloCard
	}
	res, err := db.ExecContext(ctx, q,
		e.ClientID, e.DesignRequestID, e.SyncType, e.Operation, e.Status,
		jsonOrNull(e.RequestPayload), e.RetryCount, e.ParentID, e.CreatedAt)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	e.ID = id
	return id, nil
}

// MarkCompleted concludes an open attempt as completed.
func MarkCompleted(ctx context.Context, db sqlx.ExecerContext, id int64, response types.JSONText, at time.Time) error {
	const q = `UPDATE sync_logs
           SET status = ?, response_data = ?, completed_at = ?
         WHERE id = ? AND status = ?`
	res, err := db.ExecContext(ctx, q, StatusCompleted, jsonOrNull(response), at, id, StatusInProgress)
	return expectOne(res, err, id)
}

// Failure describes how an open attempt failed.  Status must be
// StatusFailed or StatusFailedPermanently; NextRetryAt is nil for the
// latter.
type Failure struct {
	Status      Status
	Message     string
	RetryCount  int
	NextRetryAt *time.Time
}

// MarkFailed concludes an open attempt as failed.
func MarkFailed(ctx context.Context, db sqlx.ExecerContext, id int64, f Failure) error {
	if f.Status != StatusFailed && f.Status != StatusFailedPermanently {
		return fmt.Errorf("synclog: MarkFailed with status %q", f.Status)
	}
	const q = `UPDATE sync_logs
           SET status = ?, error_message = ?, retry_count = ?, next_retry_at = ?
         WHERE id = ? AND status = ?`
	res, err := db.ExecContext(ctx, q, f.Status, f.Message, f.RetryCount, f.NextRetryAt, id, StatusInProgress)
	return expectOne(res, err, id)
}

// DueForRetry selects failed or retrying rows whose next_retry_at has
// passed and whose retry_count is below maxRetries, oldest first.
func DueForRetry(ctx context.Context, db sqlx.QueryerContext, now time.Time, maxRetries, limit int) ([]Entry, error) {
	const q = `SELECT ` + columns + `
        FROM   sync_logs
        WHERE  status IN (?, ?)
          AND  next_retry_at IS NOT NULL
          AND  next_retry_at <= ?
          AND  retry_count < ?
        ORDER  BY created_at ASC, id ASC
        LIMIT  ?`
	var rows []Entry
	if err := sqlx.SelectContext(ctx, db, &rows, q,
		StatusFailed, StatusRetrying, now, maxRetries, limit); err != nil {
		return nil, err
	}
	return rows, nil
}

// ClaimRetry flips a due row to `retrying` and clears next_retry_at so no
// other sweeper pass picks it up.  false, nil means another pass won.
func ClaimRetry(ctx context.Context, db sqlx.ExecerContext, id int64, now time.Time) (bool, error) {
	const q = `UPDATE sync_logs
           SET status = ?, next_retry_at = NULL
         WHERE id = ?
           AND status IN (?, ?)
           AND next_retry_at IS NOT NULL
           AND next_retry_at <= ?`
	res, err := db.ExecContext(ctx, q, StatusRetrying, id, StatusFailed, StatusRetrying, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Reschedule returns a claimed (`retrying`) row to the queue in place.
// Used only when a replay failed before it could open its own row.
func Reschedule(ctx context.Context, db sqlx.ExecerContext, id int64, f Failure) error {
	if f.Status != StatusFailed && f.Status != StatusFailedPermanently {
		return fmt.Errorf("synclog: Reschedule with status %q", f.Status)
	}
	const q = `UPDATE sync_logs
           SET status = ?, error_message = ?, retry_count = ?, next_retry_at = ?
         WHERE id = ? AND status = ?`
	res, err := db.ExecContext(ctx, q, f.Status, f.Message, f.RetryCount, f.NextRetryAt, id, StatusRetrying)
	return expectOne(res, err, id)
}

// Latest returns the newest row for a design request.
func Latest(ctx context.Context, db sqlx.QueryerContext, requestID int64) (*Entry, error) {
	const q = `SELECT ` + columns + `
        FROM   sync_logs
        WHERE  design_request_id = ?
        ORDER  BY created_at DESC, id DESC
        LIMIT  1`
	var e Entry
	if err := sqlx.GetContext(ctx, db, &e, q, requestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// ByRequest returns up to limit rows for a design request, newest first.
func ByRequest(ctx context.Context, db sqlx.QueryerContext, requestID int64, limit int) ([]Entry, error) {
	const q = `SELECT ` + columns + `
        FROM   sync_logs
        WHERE  design_request_id = ?
        ORDER  BY created_at DESC, id DESC
        LIMIT  ?`
	var rows []Entry
	if err := sqlx.SelectContext(ctx, db, &rows, q, requestID, limit); err != nil {
		return nil, err
	}
	return rows, nil
}

// ByID fetches one row.
func ByID(ctx context.Context, db sqlx.QueryerContext, id int64) (*Entry, error) {
	const q = `SELECT ` + columns + `
        FROM   sync_logs
        WHERE  id = ?
        LIMIT  1`
	var e Entry
	if err := sqlx.GetContext(ctx, db, &e, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

// jsonOrNull stores empty JSON as SQL NULL rather than an invalid document.
func jsonOrNull(j types.JSONText) any {
	if len(j) == 0 {
		return nil
	}
	return []byte(j)
}

func expectOne(res sql.Result, err error, id int64) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("sync log %d: %w", id, ErrConcluded)
	}
	return nil
}
