// internal/client/repository.go
//
// Client-table query helpers.
//
// Context
// -------
//   - `ByID`      — board provisioning and the staff API.
//   - `SaveBoard` — persists a freshly provisioned board and the updated
//     trello_config in one statement.
//
// Every helper takes a `sqlx.ExtContext`, so it runs against the pool or
// inside a transaction.  Errors are returned verbatim (ErrNotFound for a
// missing row) so callers can wrap or log them.
package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when no client row matches.
var ErrNotFound = errors.New("client not found")

// columns is the select list for single-table client queries (alias c).
const columns = `c.id, c.name, COALESCE(c.owner_email, '') AS owner_email,
               c.trello_config, COALESCE(c.trello_board_id, '') AS trello_board_id,
               COALESCE(c.trello_board_url, '') AS trello_board_url,
               c.trello_lists, c.created_at`

// ByID fetches one client.
func ByID(ctx context.Context, db sqlx.QueryerContext, id int64) (*Record, error) {
	const q = `SELECT ` + columns + `
        FROM   clients c
        WHERE  c.id = ?
        LIMIT  1`
	var rec Record
	if err := sqlx.GetContext(ctx, db, &rec, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Board is what provisioning stores on the client.
type Board struct {
	ID    string
	URL   string
	Lists BoardLists
}

// SaveBoard overwrites the client's board reference, list map, and
// trello_config.  A previous board is left untouched on the provider side.
func SaveBoard(ctx context.Context, db sqlx.ExecerContext, id int64, b Board, cfg TrelloConfig) error {
	const q = `UPDATE clients
           SET trello_board_id = ?, trello_board_url = ?, trello_lists = ?, trello_config = ?
         WHERE id = ?`
	res, err := db.ExecContext(ctx, q, b.ID, b.URL, b.Lists, cfg, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("save board for client %d: %w", id, ErrNotFound)
	}
	return nil
}
