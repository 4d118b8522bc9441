// internal/cardsync/orchestrator.go
//
// Card synchronization: one design request, one provider operation, one
// ledger row.
//
// Context
// -------
// SyncCard runs an attempt start to finish:
//
//  1. Load the request and its client (NotFoundError).
//  2. Check and resolve the client's credentials (ConfigurationError).
//     Nothing has been written yet; a misconfigured client never reaches
//     the ledger.
//  3. Guard the operation.  create needs the atomic create claim and no
//     stored card id.  update and comment need a stored card id.
//  4. Open an `in_progress` ledger row carrying the replay payload.
//  5. Resolve the target list (create only), call the provider.
//  6. Conclude the row and the request's sync fields in one transaction.
//
// A failed attempt is scheduled for the sweeper via the backoff policy and
// the provider error is returned to the caller.  An external submission
// flow uses SyncAfterSubmit instead, which logs and swallows the error.
//
// Notes
// -----
// • The sweeper replays through the same path (replay in sweeper.go) with a
//   retry ordinal and a parent ledger id.
// • Oxford commas, two spaces after periods.
package cardsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/keefcreative/designworks/internal/activity"
	"github.com/keefcreative/designworks/internal/cardfields"
	"github.com/keefcreative/designworks/internal/client"
	"github.com/keefcreative/designworks/internal/designrequest"
	"github.com/keefcreative/designworks/internal/logger"
	"github.com/keefcreative/designworks/internal/metrics"
	"github.com/keefcreative/designworks/internal/synclog"
	"github.com/keefcreative/designworks/internal/trello"
)

/*──────────────────────────── collaborators ───────────────────────────────*/

// Provider is the slice of trello.Client the sync flow uses.
type Provider interface {
	CreateCard(ctx context.Context, cr trello.Credentials, f trello.CardFields) (*trello.Card, error)
	UpdateCard(ctx context.Context, cr trello.Credentials, cardID string, u trello.CardUpdate) (*trello.Card, error)
	AddComment(ctx context.Context, cr trello.Credentials, cardID, text string) (*trello.Comment, error)
	ListLists(ctx context.Context, cr trello.Credentials, boardID string) ([]trello.List, error)
}

// SecretResolver turns a stored credential value into the real secret.
// vault.Client and vault.Passthrough implement it.
type SecretResolver interface {
	Resolve(ctx context.Context, value string) (string, error)
}

// Auditor records activity.  activity.Logger implements it.
type Auditor interface {
	Log(ctx context.Context, entityType string, entityID int64, action string, details activity.Details)
}

type nopAuditor struct{}

func (nopAuditor) Log(context.Context, string, int64, string, activity.Details) {}

type plainSecrets struct{}

func (plainSecrets) Resolve(_ context.Context, v string) (string, error) { return v, nil }

/*──────────────────────────── configuration ───────────────────────────────*/

// Options tunes retries and the create claim.
type Options struct {
	MaxRetries    int
	Backoff       synclog.Backoff
	ClaimTTL      time.Duration
	ListCacheSize int
	ListCacheTTL  time.Duration
}

// DefaultOptions matches config.Default().
var DefaultOptions = Options{
	MaxRetries:    5,
	Backoff:       synclog.DefaultBackoff,
	ClaimTTL:      10 * time.Minute,
	ListCacheSize: 256,
	ListCacheTTL:  15 * time.Minute,
}

// Deps are the orchestrator's collaborators.  Store and Provider are
// required; the rest default to no-op or wall-clock implementations.
type Deps struct {
	Store    Store
	Provider Provider
	Secrets  SecretResolver
	Audit    Auditor
	Clock    clock.Clock
	Options  Options
}

// Orchestrator runs card sync attempts.  Safe for concurrent use.
type Orchestrator struct {
	store    Store
	provider Provider
	secrets  SecretResolver
	audit    Auditor
	clock    clock.Clock
	opts     Options
	lists    *listResolver
	newToken func() string
}

// New wires an Orchestrator.
func New(d Deps) *Orchestrator {
	o := &Orchestrator{
		store:    d.Store,
		provider: d.Provider,
		secrets:  d.Secrets,
		audit:    d.Audit,
		clock:    d.Clock,
		opts:     d.Options,
		newToken: func() string { return uuid.NewString() },
	}
	if o.secrets == nil {
		o.secrets = plainSecrets{}
	}
	if o.audit == nil {
		o.audit = nopAuditor{}
	}
	if o.clock == nil {
		o.clock = clock.WallClock
	}
	if o.opts.MaxRetries <= 0 {
		o.opts.MaxRetries = DefaultOptions.MaxRetries
	}
	if o.opts.Backoff.Base <= 0 {
		o.opts.Backoff = DefaultOptions.Backoff
	}
	if o.opts.ClaimTTL <= 0 {
		o.opts.ClaimTTL = DefaultOptions.ClaimTTL
	}
	o.lists = newListResolver(d.Provider, o.opts.ListCacheSize, o.opts.ListCacheTTL)
	return o
}

/*──────────────────────────── public API ──────────────────────────────────*/

// Input carries the caller-supplied data for update and comment.  create
// ignores it: every create field is derived from the stored request.
type Input struct {
	Update  trello.CardUpdate
	Comment string
}

// Result describes a completed attempt.
type Result struct {
	EntryID   int64
	Operation synclog.Operation
	CardID    string
	CardURL   string
	CommentID string
}

// SyncCard runs one attempt of op for the design request.
func (o *Orchestrator) SyncCard(ctx context.Context, requestID int64, op synclog.Operation, in *Input) (*Result, error) {
	if !op.Valid() {
		return nil, o.reject("invalid", fmt.Errorf("%w: operation %q", ErrInvalidInput, op))
	}
	p := payload{}
	switch op {
	case synclog.OpUpdate:
		if in == nil || in.Update.Empty() {
			return nil, o.reject("invalid", fmt.Errorf("%w: update without fields", ErrInvalidInput))
		}
		u := in.Update
		p.Update = &u
	case synclog.OpComment:
		if in == nil || in.Comment == "" {
			return nil, o.reject("invalid", fmt.Errorf("%w: empty comment", ErrInvalidInput))
		}
		p.Text = in.Comment
	}
	res, _, err := o.run(ctx, attempt{requestID: requestID, op: op, payload: p})
	return res, err
}

// SyncAfterSubmit is the entry point for an external submission flow: the
// intake service calls it after committing a new request row, and nothing
// in this module does.  A sync failure is already recorded in the ledger
// and on the request, so it is only logged here: card sync must never fail
// the submission.
func (o *Orchestrator) SyncAfterSubmit(ctx context.Context, requestID int64) {
	log := logger.FromContext(ctx)
	if _, err := o.SyncCard(ctx, requestID, synclog.OpCreate, nil); err != nil {
		log.Warnw("card sync after submit failed", "request_id", requestID, "err", err)
	}
}

// RecomputeStatus rewrites the request's sync_status from its latest
// ledger row and returns it.
func (o *Orchestrator) RecomputeStatus(ctx context.Context, requestID int64) (designrequest.SyncStatus, error) {
	st := designrequest.SyncPending
	latest, err := o.store.Latest(ctx, requestID)
	switch {
	case errors.Is(err, synclog.ErrNotFound):
	case err != nil:
		return "", &PersistenceError{Op: "load latest sync log", Err: err}
	default:
		st = Projection(latest.Status)
	}
	if err := o.store.SetSyncStatus(ctx, requestID, st); err != nil {
		return "", &PersistenceError{Op: "set sync status", Err: err}
	}
	return st, nil
}

// History returns the newest ledger rows for a request.
func (o *Orchestrator) History(ctx context.Context, requestID int64, limit int) ([]synclog.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	return o.store.History(ctx, requestID, limit)
}

// Projection maps a ledger row state to the request's sync_status.
func Projection(s synclog.Status) designrequest.SyncStatus {
	switch s {
	case synclog.StatusCompleted:
		return designrequest.SyncSynced
	case synclog.StatusFailed, synclog.StatusFailedPermanently:
		return designrequest.SyncFailed
	}
	return designrequest.SyncPending
}

/*──────────────────────────── one attempt ─────────────────────────────────*/

// payload is the ledger's request_payload: everything needed to replay an
// update or comment.  Create stores its derived fields for the record only;
// a replayed create rebuilds them from the request row.
type payload struct {
	CardID string             `json:"card_id,omitempty"`
	Fields *trello.CardFields `json:"fields,omitempty"`
	Update *trello.CardUpdate `json:"update,omitempty"`
	Text   string             `json:"text,omitempty"`
}

type attempt struct {
	requestID  int64
	op         synclog.Operation
	payload    payload
	retryCount int
	parentID   *int64
}

// run performs one attempt.  The returned entry is the ledger row it opened,
// or nil when the attempt was stopped before reaching the ledger.
func (o *Orchestrator) run(ctx context.Context, a attempt) (*Result, *synclog.Entry, error) {
	log := logger.FromContext(ctx).With("request_id", a.requestID, "operation", a.op)

	req, cl, err := o.store.Load(ctx, a.requestID)
	if errors.Is(err, designrequest.ErrNotFound) {
		return nil, nil, o.reject("not_found", &NotFoundError{RequestID: a.requestID})
	}
	if err != nil {
		return nil, nil, &PersistenceError{Op: "load design request", Err: err}
	}

	cr, err := o.credentials(ctx, cl)
	if err != nil {
		return nil, nil, o.reject("configuration", err)
	}

	var claim string
	switch a.op {
	case synclog.OpCreate:
		if req.TrelloCardID != "" {
			return nil, nil, o.reject("already_synced", ErrAlreadySynced)
		}
		claim = o.newToken()
		now := o.clock.Now()
		ok, err := o.store.ClaimCreate(ctx, req.ID, claim, now, now.Add(-o.opts.ClaimTTL))
		if err != nil {
			return nil, nil, &PersistenceError{Op: "claim create", Err: err}
		}
		if !ok {
			return nil, nil, o.reject("claimed", ErrClaimed)
		}
		f := o.cardFields(req, cl.TrelloConfig)
		a.payload.Fields = &f
	default:
		if req.TrelloCardID == "" {
			return nil, nil, o.reject("no_card", ErrNoCard)
		}
		a.payload.CardID = req.TrelloCardID
	}

	raw, err := json.Marshal(a.payload)
	if err != nil {
		o.release(ctx, req.ID, claim)
		return nil, nil, fmt.Errorf("encode sync payload: %w", err)
	}
	entry := &synclog.Entry{
		ClientID:        cl.ID,
		DesignRequestID: req.ID,
		SyncType:        synclog.SyncTypeTrelloCard,
		Operation:       a.op,
		RequestPayload:  types.JSONText(raw),
		RetryCount:      a.retryCount,
		ParentID:        a.parentID,
		CreatedAt:       o.clock.Now().UTC(),
	}
	if _, err := o.store.Begin(ctx, entry); err != nil {
		o.release(ctx, req.ID, claim)
		return nil, nil, &PersistenceError{Op: "open sync log", Err: err}
	}
	log = log.With("sync_log_id", entry.ID, "retry_count", a.retryCount)

	res, response, callErr := o.call(ctx, cr, cl.TrelloConfig, a)
	if callErr != nil {
		return nil, entry, o.fail(ctx, log, req, entry, callErr)
	}
	res.EntryID = entry.ID
	return res, entry, o.complete(ctx, log, req, entry, res, response)
}

// call performs the provider operation and returns the raw response for the
// ledger.
func (o *Orchestrator) call(ctx context.Context, cr trello.Credentials, cfg client.TrelloConfig, a attempt) (*Result, types.JSONText, error) {
	res := &Result{Operation: a.op}
	switch a.op {
	case synclog.OpCreate:
		f := *a.payload.Fields
		listID, err := o.lists.resolve(ctx, cr, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve target list: %w", err)
		}
		f.IDList = listID
		card, err := o.provider.CreateCard(ctx, cr, f)
		if err != nil {
			if s := trello.StatusOf(err); (s == 400 || s == 404) && cfg.TargetListID() == "" {
				o.lists.forget(cfg.BoardID)
			}
			return nil, nil, err
		}
		res.CardID, res.CardURL = card.ID, cardURL(card)
		return res, marshalResponse(card), nil

	case synclog.OpUpdate:
		card, err := o.provider.UpdateCard(ctx, cr, a.payload.CardID, *a.payload.Update)
		if err != nil {
			return nil, nil, err
		}
		res.CardID, res.CardURL = card.ID, cardURL(card)
		return res, marshalResponse(card), nil

	case synclog.OpComment:
		cm, err := o.provider.AddComment(ctx, cr, a.payload.CardID, a.payload.Text)
		if err != nil {
			return nil, nil, err
		}
		res.CardID, res.CommentID = a.payload.CardID, cm.ID
		return res, marshalResponse(cm), nil
	}
	return nil, nil, fmt.Errorf("%w: operation %q", ErrInvalidInput, a.op)
}

func (o *Orchestrator) complete(ctx context.Context, log *zap.SugaredLogger, req *designrequest.Record, entry *synclog.Entry, res *Result, response types.JSONText) error {
	at := o.clock.Now().UTC()
	ok := designrequest.Success{At: at}
	if entry.Operation == synclog.OpCreate {
		ok.CardID, ok.CardURL = res.CardID, res.CardURL
	}
	metrics.SyncAttemptsTotal.WithLabelValues(string(entry.Operation), string(synclog.StatusCompleted)).Inc()

	if err := o.store.Complete(ctx, entry.ID, req.ID, response, ok); err != nil {
		// The provider side already happened; the card id must not be lost
		// silently.
		log.Errorw("sync succeeded but could not be recorded",
			"card_id", res.CardID, "card_url", res.CardURL, "err", err)
		return &PersistenceError{Op: "complete sync log", Err: err}
	}
	log.Infow("card sync completed", "card_id", res.CardID)

	o.audit.Log(ctx, activity.EntityDesignRequest, req.ID, auditAction(entry.Operation), activity.Details{
		"sync_log_id": entry.ID,
		"card_id":     res.CardID,
		"card_url":    res.CardURL,
		"comment_id":  res.CommentID,
		"retry_count": entry.RetryCount,
	})
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, log *zap.SugaredLogger, req *designrequest.Record, entry *synclog.Entry, callErr error) error {
	now := o.clock.Now().UTC()
	f := synclog.Failure{
		Status:     synclog.StatusFailed,
		Message:    callErr.Error(),
		RetryCount: entry.RetryCount,
	}
	if entry.RetryCount >= o.opts.MaxRetries {
		f.Status = synclog.StatusFailedPermanently
	} else {
		next := o.opts.Backoff.Next(now, entry.RetryCount)
		f.NextRetryAt = &next
	}
	metrics.SyncAttemptsTotal.WithLabelValues(string(entry.Operation), string(f.Status)).Inc()

	log.Warnw("card sync failed",
		"status", f.Status,
		"provider_status", trello.StatusOf(callErr),
		"next_retry_at", f.NextRetryAt,
		"err", callErr)

	if err := o.store.Fail(ctx, entry.ID, req.ID, f, now); err != nil {
		log.Errorw("sync failure could not be recorded", "err", err)
		return errors.Join(callErr, &PersistenceError{Op: "fail sync log", Err: err})
	}

	o.audit.Log(ctx, activity.EntityDesignRequest, req.ID, "trello_sync_failed", activity.Details{
		"sync_log_id": entry.ID,
		"operation":   entry.Operation,
		"status":      f.Status,
		"error":       f.Message,
		"retry_count": entry.RetryCount,
	})
	return fmt.Errorf("%s card for request %d: %w", entry.Operation, req.ID, callErr)
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

// credentials validates the client's integration block and resolves any
// vault references in it.
func (o *Orchestrator) credentials(ctx context.Context, cl *client.Record) (trello.Credentials, error) {
	cfg := cl.TrelloConfig
	if missing := cfg.Missing(); len(missing) > 0 {
		return trello.Credentials{}, &ConfigurationError{ClientID: cl.ID, Missing: missing}
	}
	key, err := o.secrets.Resolve(ctx, cfg.APIKey)
	if err != nil {
		return trello.Credentials{}, &ConfigurationError{ClientID: cl.ID, Err: fmt.Errorf("api_key: %w", err)}
	}
	token, err := o.secrets.Resolve(ctx, cfg.Token)
	if err != nil {
		return trello.Credentials{}, &ConfigurationError{ClientID: cl.ID, Err: fmt.Errorf("token: %w", err)}
	}
	return trello.Credentials{Key: key, Token: token}, nil
}

func (o *Orchestrator) cardFields(req *designrequest.Record, cfg client.TrelloConfig) trello.CardFields {
	return trello.CardFields{
		Name:     cardfields.Title(req),
		Desc:     cardfields.Description(req),
		Due:      cardfields.Due(req),
		IDLabels: cardfields.Labels(req, cfg),
	}
}

// release drops a create claim after a failure that left no ledger row.
func (o *Orchestrator) release(ctx context.Context, requestID int64, token string) {
	if token == "" {
		return
	}
	if err := o.store.ReleaseClaim(ctx, requestID, token); err != nil {
		logger.FromContext(ctx).Warnw("release create claim", "request_id", requestID, "err", err)
	}
}

func (o *Orchestrator) reject(reason string, err error) error {
	metrics.SyncRejectedTotal.WithLabelValues(reason).Inc()
	return err
}

func cardURL(c *trello.Card) string {
	if c.URL != "" {
		return c.URL
	}
	return c.ShortURL
}

func marshalResponse(v any) types.JSONText {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return types.JSONText(b)
}

func auditAction(op synclog.Operation) string {
	switch op {
	case synclog.OpCreate:
		return "trello_card_created"
	case synclog.OpUpdate:
		return "trello_card_updated"
	default:
		return "trello_comment_added"
	}
}
