// internal/designrequest/repository.go
//
// Design-request query helpers used by the card synchronizer.
//
// Context
// -------
//   - `ByIDWithClient` — one joined read that feeds every sync attempt.
//   - `ClaimCreate` / `ReleaseClaim` — compare-and-set guard that lets only
//     one caller create a card for a request.
//   - `MarkSynced` / `MarkFailed` — denormalized sync bookkeeping, called
//     inside the same transaction that finalizes the ledger row.
//   - `SetSyncStatus` — reconciliation from the ledger.
//
// Every helper takes a `sqlx` context interface, so it runs on the pool or
// inside a transaction.
//
// Notes
// -----
//   - Column list matches the fields in `Record`; update both together.
//   - Oxford commas, two spaces after periods.
package designrequest

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/keefcreative/designworks/internal/client"
)

// ErrNotFound is returned when no design request matches.
var ErrNotFound = errors.New("design request not found")

const selectJoined = `
        SELECT dr.id, dr.short_id, dr.client_id, dr.user_id,
               COALESCE(dr.project_name, '')     AS project_name,
               COALESCE(dr.request_type, '')     AS request_type,
               COALESCE(dr.context, '')          AS context,
               COALESCE(dr.design_needs, '')     AS design_needs,
               COALESCE(dr.key_message, '')      AS key_message,
               COALESCE(dr.size_format, '')      AS size_format,
               COALESCE(dr.additional_notes, '') AS additional_notes,
               COALESCE(dr.copy_content, '')     AS copy_content,
               dr.attachments, dr.contact_email,
               COALESCE(dr.contact_phone, '')    AS contact_phone,
               dr.priority, dr.status, dr.deadline, dr.sync_status,
               COALESCE(dr.sync_error, '')       AS sync_error,
               dr.sync_attempts, dr.last_sync_at,
               COALESCE(dr.trello_card_id, '')   AS trello_card_id,
               COALESCE(dr.trello_card_url, '')  AS trello_card_url,
               dr.created_at,
               c.id                                AS ` + "`client.id`" + `,
               c.name                              AS ` + "`client.name`" + `,
               COALESCE(c.owner_email, '')         AS ` + "`client.owner_email`" + `,
               c.trello_config                     AS ` + "`client.trello_config`" + `,
               COALESCE(c.trello_board_id, '')     AS ` + "`client.trello_board_id`" + `,
               COALESCE(c.trello_board_url, '')    AS ` + "`client.trello_board_url`" + `,
               c.trello_lists                      AS ` + "`client.trello_lists`" + `,
               c.created_at                        AS ` + "`client.created_at`" + `
        FROM   design_requests dr
        JOIN   clients c ON c.id = dr.client_id`

type joined struct {
	Record
	Client client.Record `db:"client"`
}

// ByIDWithClient loads one request together with its owning client.
func ByIDWithClient(ctx context.Context, db sqlx.QueryerContext, id int64) (*Record, *client.Record, error) {
	const q = selectJoined + `
        WHERE  dr.id = ?
        LIMIT  1`
	var row joined
	if err := sqlx.GetContext(ctx, db, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	rec, cl := row.Record, row.Client
	return &rec, &cl, nil
}

// ClaimCreate marks the request as being card-created by the holder of
// token.  It succeeds only while no card id is stored and no other claim
// newer than staleBefore exists.  false, nil means someone else owns it or
// the card already exists.
func ClaimCreate(ctx context.Context, db sqlx.ExecerContext, id int64, token string, now, staleBefore time.Time) (bool, error) {
	const q = `UPDATE design_requests
           SET sync_claim_token = ?, sync_claimed_at = ?
         WHERE id = ?
           AND trello_card_id IS NULL
           AND (sync_claim_token IS NULL OR sync_claimed_at < ?)`
	res, err := db.ExecContext(ctx, q, token, now, id, staleBefore)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseClaim drops a claim if token still owns it.
func ReleaseClaim(ctx context.Context, db sqlx.ExecerContext, id int64, token string) error {
	const q = `UPDATE design_requests
           SET sync_claim_token = NULL, sync_claimed_at = NULL
         WHERE id = ? AND sync_claim_token = ?`
	_, err := db.ExecContext(ctx, q, id, token)
	return err
}

// Success describes a completed attempt.  CardID/CardURL are set only for
// creates; empty values leave the stored card reference untouched.
type Success struct {
	CardID  string
	CardURL string
	At      time.Time
}

// MarkSynced records a successful attempt: sync_status = synced, sync_error
// cleared, any claim released.
func MarkSynced(ctx context.Context, db sqlx.ExecerContext, id int64, s Success) error {
	const q = `UPDATE design_requests
           SET sync_status = ?, sync_error = NULL, last_sync_at = ?,
               trello_card_id  = COALESCE(NULLIF(?, ''), trello_card_id),
               trello_card_url = COALESCE(NULLIF(?, ''), trello_card_url),
               sync_claim_token = NULL, sync_claimed_at = NULL
         WHERE id = ?`
	_, err := db.ExecContext(ctx, q, SyncSynced, s.At, s.CardID, s.CardURL, id)
	return err
}

// MarkFailed records a failed attempt: sync_status = failed, the error
// message, sync_attempts + 1, and releases any claim.
func MarkFailed(ctx context.Context, db sqlx.ExecerContext, id int64, msg string, at time.Time) error {
	const q = `UPDATE design_requests
           SET sync_status = ?, sync_error = ?, sync_attempts = sync_attempts + 1,
               last_sync_at = ?, sync_claim_token = NULL, sync_claimed_at = NULL
         WHERE id = ?`
	_, err := db.ExecContext(ctx, q, SyncFailed, msg, at, id)
	return err
}

// SetSyncStatus overwrites the denormalized status.  Used by
// reconciliation only.
func SetSyncStatus(ctx context.Context, db sqlx.ExecerContext, id int64, status SyncStatus) error {
	const q = `UPDATE design_requests SET sync_status = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, q, status, id)
	return err
}
