// internal/cardsync/sweeper.go
//
// Retry sweeper.
//
// Context
// -------
// An external scheduler (cron running `syncctl sweep`, or the staff API)
// calls ProcessFailedSyncs.  One pass:
//
//  1. Selects failed or retrying ledger rows that are due and still under
//     MaxRetries, oldest first, up to batchSize.
//  2. Claims each row (status → retrying, next_retry_at → NULL).  A row
//     another pass already claimed is skipped.
//  3. Replays the operation from persisted state: the request row for a
//     create, request_payload for an update or comment.  The replay opens
//     its own ledger row with parent_id and retry_count = parent + 1, so
//     history is never rewritten.  When that row fails and its count has
//     reached MaxRetries it is failed_permanently and never scheduled again.
//
// An update row only replays the fields no later completed update has
// written.  When nothing is left the row counts as skipped and stays
// claimed, so an old rename can never overwrite a newer one.
//
// A replay stopped before it could open a row (request gone, credentials
// removed, card claimed elsewhere) puts the claimed row back in place via
// Reschedule instead.
//
// Every entry is independent.  Errors are collected in SweepResult and a
// bad entry never aborts the batch.  Only context cancellation ends a pass
// early.
package cardsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/keefcreative/designworks/internal/logger"
	"github.com/keefcreative/designworks/internal/metrics"
	"github.com/keefcreative/designworks/internal/synclog"
	"github.com/keefcreative/designworks/internal/trello"
)

// DefaultBatchSize is the sweep size when the caller passes 0.
const DefaultBatchSize = 10

// EntryError is one entry's failure within a pass.
type EntryError struct {
	EntryID   int64
	RequestID int64
	Err       error
}

// SweepResult summarizes a pass.
type SweepResult struct {
	Selected    int
	Succeeded   int
	Failed      int // replay failed, rescheduled
	Permanent   int // replay failed, retries exhausted
	Skipped     int // claimed elsewhere or nothing left to do
	Rescheduled int // replay stopped before the ledger; row put back
	Errors      []EntryError
}

// Sweeper replays due ledger rows through an Orchestrator.
type Sweeper struct {
	o *Orchestrator
}

// NewSweeper returns a Sweeper sharing o's store, provider, and clock.
func NewSweeper(o *Orchestrator) *Sweeper {
	return &Sweeper{o: o}
}

// ProcessFailedSyncs runs one pass.  The error is non-nil only when the
// selection query fails or ctx ends; per-entry failures are in the result.
func (s *Sweeper) ProcessFailedSyncs(ctx context.Context, batchSize int) (*SweepResult, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	o := s.o
	log := logger.FromContext(ctx)
	metrics.SweepRunsTotal.Inc()

	due, err := o.store.DueForRetry(ctx, o.clock.Now().UTC(), o.opts.MaxRetries, batchSize)
	if err != nil {
		return nil, &PersistenceError{Op: "select due sync logs", Err: err}
	}
	res := &SweepResult{Selected: len(due)}

	for i := range due {
		if err := ctx.Err(); err != nil {
			log.Infow("sweep interrupted", "done", i, "selected", len(due))
			return res, err
		}
		s.one(ctx, &due[i], res)
	}

	log.Infow("sweep finished",
		"selected", res.Selected,
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"permanent", res.Permanent,
		"skipped", res.Skipped,
		"rescheduled", res.Rescheduled)
	return res, nil
}

func (s *Sweeper) one(ctx context.Context, e *synclog.Entry, res *SweepResult) {
	o := s.o
	log := logger.FromContext(ctx).With("sync_log_id", e.ID, "request_id", e.DesignRequestID, "operation", e.Operation)

	ok, err := o.store.ClaimRetry(ctx, e.ID, o.clock.Now().UTC())
	if err != nil {
		s.record(res, e, "error", &PersistenceError{Op: "claim sync log", Err: err})
		return
	}
	if !ok {
		res.Skipped++
		metrics.SweepEntriesTotal.WithLabelValues("skipped").Inc()
		return
	}

	next := e.RetryCount + 1
	var p payload
	if len(e.RequestPayload) > 0 {
		if err := json.Unmarshal(e.RequestPayload, &p); err != nil {
			// Cannot be replayed; retire it.
			s.putBack(ctx, e, e.RetryCount, true, fmt.Errorf("decode request payload: %w", err), res)
			return
		}
	}
	if (e.Operation == synclog.OpUpdate && (p.Update == nil || p.Update.Empty())) ||
		(e.Operation == synclog.OpComment && p.Text == "") {
		s.putBack(ctx, e, e.RetryCount, true, fmt.Errorf("%w: nothing to replay", ErrInvalidInput), res)
		return
	}

	if e.Operation == synclog.OpUpdate {
		rest, err := s.unwritten(ctx, e, *p.Update)
		if err != nil {
			s.putBack(ctx, e, e.RetryCount, false, err, res)
			return
		}
		if rest.Empty() {
			// Every field was written by a later successful update.
			res.Skipped++
			metrics.SweepEntriesTotal.WithLabelValues("superseded").Inc()
			log.Infow("retry skipped, update superseded")
			return
		}
		p.Update = &rest
	}

	id := e.ID
	_, entry, err := o.run(ctx, attempt{
		requestID:  e.DesignRequestID,
		op:         e.Operation,
		payload:    payload{Update: p.Update, Text: p.Text},
		retryCount: next,
		parentID:   &id,
	})

	switch {
	case err == nil:
		res.Succeeded++
		metrics.SweepEntriesTotal.WithLabelValues("succeeded").Inc()
		log.Infow("retry succeeded", "retry_count", next)

	case entry != nil && entry.ID != 0 && !isPersistence(err):
		// The replay opened and concluded its own row.
		if next >= o.opts.MaxRetries {
			res.Permanent++
			s.record(res, e, "permanent", err)
		} else {
			res.Failed++
			s.record(res, e, "failed", err)
		}

	case errors.Is(err, ErrAlreadySynced):
		// A card exists now; the claimed row stays superseded.
		res.Skipped++
		metrics.SweepEntriesTotal.WithLabelValues("skipped").Inc()
		log.Infow("retry skipped, card already exists")

	case errors.Is(err, ErrClaimed):
		// A live create is under way; try again later without spending a retry.
		s.putBack(ctx, e, e.RetryCount, false, err, res)

	case entry == nil:
		s.putBack(ctx, e, next, false, err, res)

	default:
		// Row opened but concluding it failed; the replay's own row is stuck
		// in_progress and needs operator attention.
		s.record(res, e, "error", err)
	}
}

// supersedeDepth bounds how much history unwritten reads per update row.
const supersedeDepth = 100

// unwritten returns u without the fields a completed update newer than e
// has already written to the card.
func (s *Sweeper) unwritten(ctx context.Context, e *synclog.Entry, u trello.CardUpdate) (trello.CardUpdate, error) {
	hist, err := s.o.store.History(ctx, e.DesignRequestID, supersedeDepth)
	if err != nil {
		return u, &PersistenceError{Op: "load sync history", Err: err}
	}
	for _, h := range hist {
		if !newer(h, *e) {
			break // newest first
		}
		if h.Operation != synclog.OpUpdate || h.Status != synclog.StatusCompleted {
			continue
		}
		var hp payload
		if json.Unmarshal(h.RequestPayload, &hp) != nil || hp.Update == nil {
			continue
		}
		w := hp.Update
		if w.Name != nil {
			u.Name = nil
		}
		if w.Desc != nil {
			u.Desc = nil
		}
		if w.Due != nil {
			u.Due = nil
		}
		if w.IDList != nil {
			u.IDList = nil
		}
		if w.Closed != nil {
			u.Closed = nil
		}
	}
	return u, nil
}

func newer(a, b synclog.Entry) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID > b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// putBack reschedules the claimed row in place.  retire forces
// failed_permanently regardless of count.
func (s *Sweeper) putBack(ctx context.Context, e *synclog.Entry, count int, retire bool, cause error, res *SweepResult) {
	o := s.o
	f := synclog.Failure{Status: synclog.StatusFailed, Message: cause.Error(), RetryCount: count}
	if retire || count >= o.opts.MaxRetries {
		f.Status = synclog.StatusFailedPermanently
	} else {
		nx := o.opts.Backoff.Next(o.clock.Now().UTC(), count)
		f.NextRetryAt = &nx
	}
	if err := o.store.Reschedule(ctx, e.ID, f); err != nil {
		s.record(res, e, "error", errors.Join(cause, &PersistenceError{Op: "reschedule sync log", Err: err}))
		return
	}
	if f.Status == synclog.StatusFailedPermanently {
		res.Permanent++
		s.record(res, e, "permanent", cause)
		return
	}
	res.Rescheduled++
	s.record(res, e, "rescheduled", cause)
}

func (s *Sweeper) record(res *SweepResult, e *synclog.Entry, result string, err error) {
	metrics.SweepEntriesTotal.WithLabelValues(result).Inc()
	res.Errors = append(res.Errors, EntryError{EntryID: e.ID, RequestID: e.DesignRequestID, Err: err})
}

func isPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
