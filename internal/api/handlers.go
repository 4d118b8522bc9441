package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keefcreative/designworks/internal/board"
	"github.com/keefcreative/designworks/internal/cardfields"
	"github.com/keefcreative/designworks/internal/cardsync"
	"github.com/keefcreative/designworks/internal/client"
	"github.com/keefcreative/designworks/internal/designrequest"
	"github.com/keefcreative/designworks/internal/synclog"
	"github.com/keefcreative/designworks/internal/trello"
)

const (
	maxBody        = 1 << 20
	defaultHistory = 50
	maxHistory     = 500
	dateLayout     = "2006-01-02"
)

/*──────────────────────────── payloads ────────────────────────────────────*/

// cardPatch is the PATCH body.  Absent fields are left alone; an empty due
// clears the due date.
type cardPatch struct {
	Name   *string `json:"name"    validate:"omitempty,max=16384"`
	Desc   *string `json:"desc"    validate:"omitempty,max=16384"`
	Due    *string `json:"due"`
	ListID *string `json:"list_id" validate:"omitempty,max=64"`
	Closed *bool   `json:"closed"`
}

type commentBody struct {
	Text string `json:"text" validate:"required,max=16384"`
}

type boardBody struct {
	SetupTrello *bool    `json:"setup_trello"`
	BoardName   string   `json:"board_name"   validate:"omitempty,max=512"`
	OwnerEmail  string   `json:"owner_email"  validate:"omitempty,email"`
	Members     []string `json:"members"      validate:"omitempty,dive,email"`
	MemberRole  string   `json:"member_role"  validate:"omitempty,oneof=admin normal observer"`
}

type syncResponse struct {
	EntryID   int64             `json:"sync_log_id"`
	Operation synclog.Operation `json:"operation"`
	CardID    string            `json:"card_id,omitempty"`
	CardURL   string            `json:"card_url,omitempty"`
	CommentID string            `json:"comment_id,omitempty"`
}

type entryView struct {
	ID           int64             `json:"id"`
	Operation    synclog.Operation `json:"operation"`
	Status       synclog.Status    `json:"status"`
	ErrorMessage string            `json:"error_message,omitempty"`
	RetryCount   int               `json:"retry_count"`
	NextRetryAt  *time.Time        `json:"next_retry_at,omitempty"`
	ParentID     *int64            `json:"parent_id,omitempty"`
	Superseded   bool              `json:"superseded,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

type statusResponse struct {
	RequestID  int64                    `json:"request_id"`
	SyncStatus designrequest.SyncStatus `json:"sync_status"`
	History    []entryView              `json:"history"`
}

type sweepResponse struct {
	Selected    int          `json:"selected"`
	Succeeded   int          `json:"succeeded"`
	Failed      int          `json:"failed"`
	Permanent   int          `json:"permanent"`
	Skipped     int          `json:"skipped"`
	Rescheduled int          `json:"rescheduled"`
	Errors      []entryError `json:"errors"`
}

type entryError struct {
	EntryID   int64  `json:"sync_log_id"`
	RequestID int64  `json:"request_id"`
	Error     string `json:"error"`
}

type inviteView struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	Error string `json:"error,omitempty"`
}

type boardResponse struct {
	Status   string            `json:"status"`
	BoardID  string            `json:"board_id,omitempty"`
	BoardURL string            `json:"board_url,omitempty"`
	ListID   string            `json:"list_id,omitempty"`
	Lists    client.BoardLists `json:"lists,omitempty"`
	Invites  []inviteView      `json:"invites,omitempty"`
}

/*──────────────────────────── request sync ────────────────────────────────*/

func (h *Handler) createCard(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.Sync.SyncCard(r.Context(), id, synclog.OpCreate, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSyncResponse(res))
}

func (h *Handler) updateCard(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body cardPatch
	if err := decode(w, r, &body, false); err != nil {
		writeError(w, r, err)
		return
	}
	u := trello.CardUpdate{Name: body.Name, Desc: body.Desc, IDList: body.ListID, Closed: body.Closed}
	if body.Due != nil {
		due := ""
		if *body.Due != "" {
			t, err := time.Parse(dateLayout, *body.Due)
			if err != nil {
				writeError(w, r, newError(http.StatusBadRequest, "validation_failed",
					"due must be YYYY-MM-DD or empty", nil))
				return
			}
			due = cardfields.FormatDue(t)
		}
		u.Due = &due
	}
	res, err := h.Sync.SyncCard(r.Context(), id, synclog.OpUpdate, &cardsync.Input{Update: u})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSyncResponse(res))
}

func (h *Handler) addComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body commentBody
	if err := decode(w, r, &body, false); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.Sync.SyncCard(r.Context(), id, synclog.OpComment, &cardsync.Input{Comment: body.Text})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSyncResponse(res))
}

func (h *Handler) syncStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit := defaultHistory
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxHistory {
			writeError(w, r, newError(http.StatusBadRequest, "", "limit must be 1-500", nil))
			return
		}
		limit = n
	}
	rows, err := h.Sync.History(r.Context(), id, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := statusResponse{RequestID: id, SyncStatus: designrequest.SyncPending, History: make([]entryView, 0, len(rows))}
	if len(rows) > 0 {
		resp.SyncStatus = cardsync.Projection(rows[0].Status)
	}
	for _, e := range rows {
		resp.History = append(resp.History, entryView{
			ID:           e.ID,
			Operation:    e.Operation,
			Status:       e.Status,
			ErrorMessage: e.ErrorMessage,
			RetryCount:   e.RetryCount,
			NextRetryAt:  e.NextRetryAt,
			ParentID:     e.ParentID,
			Superseded:   e.Superseded(),
			CreatedAt:    e.CreatedAt,
			CompletedAt:  e.CompletedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := h.Sync.RecomputeStatus(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"request_id": id, "sync_status": st})
}

/*──────────────────────────── sweeper ─────────────────────────────────────*/

func (h *Handler) sweep(w http.ResponseWriter, r *http.Request) {
	batch := h.BatchSize
	if s := r.URL.Query().Get("batch"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, r, newError(http.StatusBadRequest, "", "batch must be 1-1000", nil))
			return
		}
		batch = n
	}
	res, err := h.Sweep.ProcessFailedSyncs(r.Context(), batch)
	if res == nil {
		writeError(w, r, err)
		return
	}
	out := sweepResponse{
		Selected:    res.Selected,
		Succeeded:   res.Succeeded,
		Failed:      res.Failed,
		Permanent:   res.Permanent,
		Skipped:     res.Skipped,
		Rescheduled: res.Rescheduled,
		Errors:      make([]entryError, 0, len(res.Errors)),
	}
	for _, e := range res.Errors {
		out.Errors = append(out.Errors, entryError{EntryID: e.EntryID, RequestID: e.RequestID, Error: e.Err.Error()})
	}
	// A cancelled pass still reports what it did.
	writeJSON(w, http.StatusOK, out)
}

/*──────────────────────────── boards ──────────────────────────────────────*/

func (h *Handler) setupBoard(w http.ResponseWriter, r *http.Request) {
	h.provision(w, r, false)
}

func (h *Handler) resetBoard(w http.ResponseWriter, r *http.Request) {
	h.provision(w, r, true)
}

func (h *Handler) provision(w http.ResponseWriter, r *http.Request, reset bool) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body boardBody
	if err := decode(w, r, &body, true); err != nil {
		writeError(w, r, err)
		return
	}
	opts := board.Options{
		SetupTrello: body.SetupTrello == nil || *body.SetupTrello,
		BoardName:   body.BoardName,
		OwnerEmail:  body.OwnerEmail,
		Members:     body.Members,
		MemberRole:  body.MemberRole,
	}

	var res *board.Result
	if reset {
		res, err = h.Boards.ResetClientBoard(r.Context(), id, opts)
	} else {
		res, err = h.Boards.SetupClientBoard(r.Context(), id, opts)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := boardResponse{Status: res.Status, BoardID: res.BoardID, BoardURL: res.BoardURL, ListID: res.ListID, Lists: res.Lists}
	for _, in := range res.Invites {
		v := inviteView{Email: in.Email, Role: in.Role}
		if in.Err != nil {
			v.Error = in.Err.Error()
		}
		out.Invites = append(out.Invites, v)
	}
	status := http.StatusCreated
	if res.Status == board.StatusSkipped {
		status = http.StatusOK
	}
	writeJSON(w, status, out)
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, newError(http.StatusBadRequest, "", "id must be a positive integer", nil)
	}
	return id, nil
}

// decode reads a JSON body into dst and validates it.  allowEmpty accepts
// a missing body as the zero value.
func decode(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			return newError(http.StatusBadRequest, "", "malformed JSON body: "+err.Error(), nil)
		}
	}
	return validate.Struct(dst)
}

func toSyncResponse(res *cardsync.Result) syncResponse {
	return syncResponse{
		EntryID:   res.EntryID,
		Operation: res.Operation,
		CardID:    res.CardID,
		CardURL:   res.CardURL,
		CommentID: res.CommentID,
	}
}
