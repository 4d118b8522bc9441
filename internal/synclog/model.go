// internal/synclog/model.go
//
// `sync_logs` table row model: the sync ledger.
//
// Context
// -------
// One row per synchronization attempt.  A row is inserted `in_progress`
// before the provider call and concluded exactly once (completed, failed,
// or failed_permanently).  A sweeper retry never rewrites history: it
// marks the failed row `retrying` (clearing next_retry_at so it is never
// selected again) and appends a new row that points back via parent_id and
// carries retry_count = parent + 1.
//
// Schema reference
//
//	CREATE TABLE sync_logs (
//	    id                BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
//	    client_id         BIGINT UNSIGNED NOT NULL,
//	    design_request_id BIGINT UNSIGNED NOT NULL,
//	    sync_type         VARCHAR(32)  NOT NULL,
//	    operation         VARCHAR(16)  NOT NULL,
//	    status            VARCHAR(24)  NOT NULL,
//	    request_payload   JSON NULL,
//	    response_data     JSON NULL,
//	    error_message     TEXT NULL,
//	    retry_count       INT NOT NULL DEFAULT 0,
//	    next_retry_at     DATETIME(3) NULL,
//	    parent_id         BIGINT UNSIGNED NULL,
//	    created_at        DATETIME(3) NOT NULL,
//	    completed_at      DATETIME(3) NULL,
//	    KEY idx_sweep (status, next_retry_at, created_at),
//	    KEY idx_request (design_request_id, created_at)
//	);
package synclog

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// SyncTypeTrelloCard is the only sync_type this service writes.
const SyncTypeTrelloCard = "trello_card"

// Operation is the provider call an attempt performs.
type Operation string

const (
	OpCreate  Operation = "create"
	OpUpdate  Operation = "update"
	OpComment Operation = "comment"
)

// Valid reports whether op is one of the known operations.
func (op Operation) Valid() bool {
	switch op {
	case OpCreate, OpUpdate, OpComment:
		return true
	}
	return false
}

// Status is the ledger row state.
type Status string

const (
	StatusInProgress        Status = "in_progress"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
	StatusFailedPermanently Status = "failed_permanently"
	// StatusRetrying with a NULL next_retry_at means superseded: the sweeper
	// claimed the row and its outcome lives on the newest row whose
	// parent_id points here.  A retrying row with next_retry_at set is still
	// queued.  See Entry.Superseded.
	StatusRetrying Status = "retrying"
)

// Terminal reports whether rows in this state are never mutated again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailedPermanently
}

// Entry mirrors one row in `sync_logs`.
type Entry struct {
	ID              int64          `db:"id"`
	ClientID        int64          `db:"client_id"`
	DesignRequestID int64          `db:"design_request_id"`
	SyncType        string         `db:"sync_type"`
	Operation       Operation      `db:"operation"`
	Status          Status         `db:"status"`
	RequestPayload  types.JSONText `db:"request_payload"`
	ResponseData    types.JSONText `db:"response_data"`
	ErrorMessage    string         `db:"error_message"`
	RetryCount      int            `db:"retry_count"`
	NextRetryAt     *time.Time     `db:"next_retry_at"`
	ParentID        *int64         `db:"parent_id"`
	CreatedAt       time.Time      `db:"created_at"`
	CompletedAt     *time.Time     `db:"completed_at"`
}

// Superseded reports whether the row was claimed by the sweeper and will
// never be selected again.  Its final outcome is on a child row, or nowhere
// when a newer update already wrote every field.
func (e Entry) Superseded() bool {
	return e.Status == StatusRetrying && e.NextRetryAt == nil
}
