// internal/auth/context.go
//
// Current-actor helpers.
//
// Context
// -------
// Authentication itself lives outside this service; an upstream proxy
// authenticates the user and forwards the user id in a header.  Middleware
// turns that id into an Actor (id, role, client association) through a
// Lookup and stores it in the request context, where the ACL middleware and
// the audit logger read it.
//
// Usage
// -----
//
//	ctx = auth.WithActor(ctx, auth.Actor{ID: 7, Role: auth.RoleStaff})
//	a, ok := auth.ActorFrom(ctx)
//
// Notes
// -----
// • A request without the header passes through with no actor; RequireRole
//   then answers 401.
// • Oxford commas, two spaces after periods.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// Role names.
const (
	RoleAdmin  = "admin"
	RoleStaff  = "staff"
	RoleClient = "client"
)

// UserHeader carries the authenticated user id from the upstream proxy.
const UserHeader = "X-Authenticated-User"

// ErrUnknownActor is returned by a Lookup for ids it cannot resolve.
var ErrUnknownActor = errors.New("unknown actor")

// Actor is the identity behind a request.  ClientID is 0 for agency staff.
type Actor struct {
	ID       int64
	Role     string
	ClientID int64
}

// System is the actor attributed to scheduled work such as the sweeper.
var System = Actor{ID: 0, Role: RoleAdmin}

// actorKey is unexported to avoid context-key collisions.
type actorKey struct{}

// WithActor returns a new context carrying a.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom extracts the actor from ctx.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

// Lookup resolves a user id to an Actor.
type Lookup interface {
	Actor(ctx context.Context, userID int64) (Actor, error)
}

// Middleware resolves UserHeader through lk and attaches the actor.
func Middleware(lk Lookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(UserHeader)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
				return
			}
			a, err := lk.Actor(r.Context(), id)
			switch {
			case errors.Is(err, ErrUnknownActor):
				next.ServeHTTP(w, r)
				return
			case err != nil:
				zap.L().Error("auth lookup", zap.Int64("user_id", id), zap.Error(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), a)))
		})
	}
}
