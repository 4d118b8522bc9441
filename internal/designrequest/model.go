// internal/designrequest/model.go
//
// `design_requests` table row model.
//
// Context
// -------
// A Design Request is one client-submitted work order.  Staff move it
// through `status`; the card synchronizer owns the `sync_*` and
// `trello_card_*` columns.  Rows are never deleted by this service.
//
// Schema reference
//
//	CREATE TABLE design_requests (
//	    id               BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
//	    short_id         VARCHAR(16)  NOT NULL UNIQUE,
//	    client_id        BIGINT UNSIGNED NOT NULL,
//	    user_id          BIGINT UNSIGNED NOT NULL,
//	    project_name     VARCHAR(255) NULL,
//	    request_type     VARCHAR(64)  NULL,
//	    context          TEXT NULL,
//	    design_needs     TEXT NULL,
//	    key_message      TEXT NULL,
//	    size_format      TEXT NULL,
//	    additional_notes TEXT NULL,
//	    copy_content     TEXT NULL,
//	    attachments      JSON NULL,
//	    contact_email    VARCHAR(255) NOT NULL,
//	    contact_phone    VARCHAR(64)  NULL,
//	    priority         VARCHAR(16)  NOT NULL DEFAULT 'normal',
//	    status           VARCHAR(16)  NOT NULL DEFAULT 'pending',
//	    deadline         DATE NULL,
//	    sync_status      VARCHAR(16)  NOT NULL DEFAULT 'pending',
//	    sync_error       TEXT NULL,
//	    sync_attempts    INT NOT NULL DEFAULT 0,
//	    last_sync_at     DATETIME(3) NULL,
//	    trello_card_id   VARCHAR(64)  NULL,
//	    trello_card_url  VARCHAR(512) NULL,
//	    sync_claim_token CHAR(36) NULL,
//	    sync_claimed_at  DATETIME(3) NULL,
//	    created_at       DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3)
//	);
//
// Notes
// -----
// • Nullable text columns are COALESCEd to "" in queries, so "" means absent.
// • Nullable timestamps are `*time.Time`; callers must nil-check before use.
package designrequest

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Priority is the requester-chosen urgency.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Status is the staff-managed work state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// SyncStatus is the denormalized projection of the latest ledger row.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
)

// Record mirrors one row in `design_requests`.
type Record struct {
	ID              int64       `db:"id"`
	ShortID         string      `db:"short_id"`
	ClientID        int64       `db:"client_id"`
	UserID          int64       `db:"user_id"`
	ProjectName     string      `db:"project_name"`
	RequestType     string      `db:"request_type"`
	Context         string      `db:"context"`
	DesignNeeds     string      `db:"design_needs"`
	KeyMessage      string      `db:"key_message"`
	SizeFormat      string      `db:"size_format"`
	AdditionalNotes string      `db:"additional_notes"`
	CopyContent     string      `db:"copy_content"`
	Attachments     Attachments `db:"attachments"`
	ContactEmail    string      `db:"contact_email"`
	ContactPhone    string      `db:"contact_phone"`
	Priority        Priority    `db:"priority"`
	Status          Status      `db:"status"`
	Deadline        *time.Time  `db:"deadline"`
	SyncStatus      SyncStatus  `db:"sync_status"`
	SyncError       string      `db:"sync_error"`
	SyncAttempts    int         `db:"sync_attempts"`
	LastSyncAt      *time.Time  `db:"last_sync_at"`
	TrelloCardID    string      `db:"trello_card_id"`
	TrelloCardURL   string      `db:"trello_card_url"`
	CreatedAt       time.Time   `db:"created_at"`
}

// Attachment is one uploaded file reference.
type Attachment struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Attachments is the JSON `attachments` column.
type Attachments []Attachment

// Scan implements sql.Scanner.  NULL yields an empty slice.
func (a *Attachments) Scan(src any) error {
	*a = nil
	var b []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("designrequest: cannot scan %T into attachments", src)
	}
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	return json.Unmarshal(b, a)
}

// Value implements driver.Valuer.
func (a Attachments) Value() (driver.Value, error) {
	if len(a) == 0 {
		return nil, nil
	}
	return json.Marshal(a)
}
