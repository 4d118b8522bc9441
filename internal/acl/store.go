// internal/acl/store.go
//
// Actor lookup backed by the `users` table.
//
// Context
// -------
// The dashboard's user table carries one role per user and, for client
// users, the owning client:
//
//	users (id PK, email, role, client_id NULL, enabled)
//
// Store implements auth.Lookup so auth.Middleware can turn the proxy's user
// id into an Actor.  Disabled users resolve to auth.ErrUnknownActor.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
// • Max line length 100 columns.
package acl

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/keefcreative/designworks/internal/auth"
)

// Store resolves actors from the users table.
type Store struct {
	DB sqlx.QueryerContext
}

type userRow struct {
	ID       int64  `db:"id"`
	Role     string `db:"role"`
	ClientID int64  `db:"client_id"`
}

// Actor implements auth.Lookup.
func (s Store) Actor(ctx context.Context, userID int64) (auth.Actor, error) {
	const q = `SELECT id, role, COALESCE(client_id, 0) AS client_id
                 FROM users
                WHERE id = ? AND enabled = TRUE
                LIMIT 1`

	var row userRow
	if err := sqlx.GetContext(ctx, s.DB, &row, q, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.Actor{}, auth.ErrUnknownActor
		}
		return auth.Actor{}, err
	}
	return auth.Actor{ID: row.ID, Role: row.Role, ClientID: row.ClientID}, nil
}
