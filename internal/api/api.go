// internal/api/api.go
//
// Staff-facing JSON API for card sync and board provisioning.
//
// Context
// -------
// Request intake is not part of this module.  An external submission flow
// links the cardsync package and calls Orchestrator.SyncAfterSubmit once the
// request row is committed.  Everything an agency user can trigger by hand
// lives here instead:
//
//	POST  /api/requests/{id}/sync            create the card now
//	PATCH /api/requests/{id}/card            partial card update
//	POST  /api/requests/{id}/comment         add a card comment
//	GET   /api/requests/{id}/sync            sync_status plus ledger history
//	POST  /api/requests/{id}/sync/reconcile  recompute sync_status
//	POST  /api/sync/sweep                    run one retry pass
//	POST  /api/clients/{id}/board            provision a client board
//	POST  /api/clients/{id}/board/reset      replace a client board
//
// Every /api route needs an authenticated staff or admin actor.  /healthz
// and /metrics are open so load balancers and Prometheus can reach them.
//
// Notes
// -----
// • Errors use one envelope: {"error":{"code","message","details"}}.
// • Oxford commas, two spaces after periods.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keefcreative/designworks/internal/acl"
	"github.com/keefcreative/designworks/internal/auth"
	"github.com/keefcreative/designworks/internal/board"
	"github.com/keefcreative/designworks/internal/cardsync"
	"github.com/keefcreative/designworks/internal/designrequest"
	"github.com/keefcreative/designworks/internal/middleware"
	"github.com/keefcreative/designworks/internal/synclog"
)

/*──────────────────────────── collaborators ───────────────────────────────*/

// Syncer is the slice of cardsync.Orchestrator the API drives.
type Syncer interface {
	SyncCard(ctx context.Context, requestID int64, op synclog.Operation, in *cardsync.Input) (*cardsync.Result, error)
	RecomputeStatus(ctx context.Context, requestID int64) (designrequest.SyncStatus, error)
	History(ctx context.Context, requestID int64, limit int) ([]synclog.Entry, error)
}

// Sweeper runs retry passes.
type Sweeper interface {
	ProcessFailedSyncs(ctx context.Context, batchSize int) (*cardsync.SweepResult, error)
}

// Boards provisions client boards.
type Boards interface {
	SetupClientBoard(ctx context.Context, clientID int64, opts board.Options) (*board.Result, error)
	ResetClientBoard(ctx context.Context, clientID int64, opts board.Options) (*board.Result, error)
}

// Handler owns the routes.  Ready backs /healthz; nil means always ready.
type Handler struct {
	Sync      Syncer
	Sweep     Sweeper
	Boards    Boards
	Actors    auth.Lookup
	BatchSize int
	Ready     func(ctx context.Context) error
}

var validate = validator.New(validator.WithRequiredStructEnabled())

/*──────────────────────────── router ──────────────────────────────────────*/

// Routes builds the chi router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.AccessLog)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Security)

	r.Get("/healthz", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(h.Actors))
		r.Use(acl.RequireRole(auth.RoleStaff, auth.RoleAdmin))

		r.Route("/requests/{id}", func(r chi.Router) {
			r.Post("/sync", h.createCard)
			r.Get("/sync", h.syncStatus)
			r.Post("/sync/reconcile", h.reconcile)
			r.Patch("/card", h.updateCard)
			r.Post("/comment", h.addComment)
		})
		r.Post("/sync/sweep", h.sweep)

		r.Route("/clients/{id}/board", func(r chi.Router) {
			r.Post("/", h.setupBoard)
			r.Post("/reset", h.resetBoard)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, newError(http.StatusNotFound, "", "no such route", nil))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, newError(http.StatusMethodNotAllowed, "", "method not allowed", nil))
	})
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.Ready != nil {
		if err := h.Ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
