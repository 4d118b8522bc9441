// internal/api/api_test.go
//
// Route, auth, and error-envelope tests against fake collaborators.
//
// Run: go test ./internal/api -v

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/keefcreative/designworks/internal/auth"
	"github.com/keefcreative/designworks/internal/board"
	"github.com/keefcreative/designworks/internal/cardsync"
	"github.com/keefcreative/designworks/internal/designrequest"
	"github.com/keefcreative/designworks/internal/synclog"
	"github.com/keefcreative/designworks/internal/trello"
)

/*──────────────────────────── fakes ───────────────────────────────────────*/

type actors map[int64]auth.Actor

func (a actors) Actor(_ context.Context, id int64) (auth.Actor, error) {
	if act, ok := a[id]; ok {
		return act, nil
	}
	return auth.Actor{}, auth.ErrUnknownActor
}

type syncCall struct {
	id int64
	op synclog.Operation
	in *cardsync.Input
}

type fakeSync struct {
	calls   []syncCall
	err     error
	history []synclog.Entry
}

func (f *fakeSync) SyncCard(_ context.Context, id int64, op synclog.Operation, in *cardsync.Input) (*cardsync.Result, error) {
	f.calls = append(f.calls, syncCall{id, op, in})
	if f.err != nil {
		return nil, f.err
	}
	return &cardsync.Result{EntryID: 9, Operation: op, CardID: "card-1", CardURL: "https://trello.com/c/1"}, nil
}

func (f *fakeSync) RecomputeStatus(context.Context, int64) (designrequest.SyncStatus, error) {
	return designrequest.SyncFailed, f.err
}

func (f *fakeSync) History(_ context.Context, _ int64, limit int) ([]synclog.Entry, error) {
	if limit < len(f.history) {
		return f.history[:limit], nil
	}
	return f.history, nil
}

type fakeSweep struct{ batch int }

func (f *fakeSweep) ProcessFailedSyncs(_ context.Context, batch int) (*cardsync.SweepResult, error) {
	f.batch = batch
	return &cardsync.SweepResult{
		Selected: 2, Succeeded: 1, Failed: 1,
		Errors: []cardsync.EntryError{{EntryID: 4, RequestID: 7, Err: errors.New("status 503")}},
	}, nil
}

type fakeBoards struct {
	opts  board.Options
	reset bool
}

func (f *fakeBoards) SetupClientBoard(_ context.Context, _ int64, o board.Options) (*board.Result, error) {
	f.opts = o
	if !o.SetupTrello {
		return &board.Result{Status: board.StatusSkipped}, nil
	}
	return &board.Result{
		Status: board.StatusCreated, BoardID: "b1", ListID: "L4",
		Invites: []board.Invite{{Email: "x@y.test", Role: "normal", Err: errors.New("invalid email")}},
	}, nil
}

func (f *fakeBoards) ResetClientBoard(_ context.Context, _ int64, o board.Options) (*board.Result, error) {
	f.opts, f.reset = o, true
	return &board.Result{Status: board.StatusCreated, BoardID: "b2"}, nil
}

type harness struct {
	srv    http.Handler
	sync   *fakeSync
	sweep  *fakeSweep
	boards *fakeBoards
}

func newHarness() *harness {
	h := &harness{sync: &fakeSync{}, sweep: &fakeSweep{}, boards: &fakeBoards{}}
	api := &Handler{
		Sync:   h.sync,
		Sweep:  h.sweep,
		Boards: h.boards,
		Actors: actors{
			1: {ID: 1, Role: auth.RoleStaff},
			2: {ID: 2, Role: auth.RoleClient, ClientID: 5},
		},
		BatchSize: 10,
	}
	h.srv = api.Routes()
	return h
}

func (h *harness) do(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set(auth.UserHeader, user)
	}
	rr := httptest.NewRecorder()
	h.srv.ServeHTTP(rr, req)
	return rr
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error errorBody `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rr.Body.String(), err)
	}
	return body.Error.Code
}

/*──────────────────────────── tests ───────────────────────────────────────*/

func TestRoutes_RequireStaff(t *testing.T) {
	h := newHarness()
	cases := []struct {
		name string
		user string
		want int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"client user", "2", http.StatusForbidden},
		{"staff", "1", http.StatusCreated},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rr := h.do(t, http.MethodPost, "/api/requests/11/sync", c.user, "")
			if rr.Code != c.want {
				t.Fatalf("status = %d, want %d", rr.Code, c.want)
			}
		})
	}
}

func TestHealthzIsOpen(t *testing.T) {
	h := newHarness()
	if rr := h.do(t, http.MethodGet, "/healthz", "", ""); rr.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rr.Code)
	}
}

func TestCreateCard(t *testing.T) {
	h := newHarness()
	rr := h.do(t, http.MethodPost, "/api/requests/11/sync", "1", "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	if c := h.sync.calls[0]; c.id != 11 || c.op != synclog.OpCreate || c.in != nil {
		t.Fatalf("call = %#v", c)
	}
	var out syncResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &out)
	if out.CardID != "card-1" || out.EntryID != 9 {
		t.Fatalf("response = %#v", out)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&cardsync.NotFoundError{RequestID: 11}, http.StatusNotFound, "request_not_found"},
		{&cardsync.ConfigurationError{ClientID: 1, Missing: []string{"api_key"}}, http.StatusUnprocessableEntity, "configuration"},
		{cardsync.ErrAlreadySynced, http.StatusConflict, "already_synced"},
		{cardsync.ErrClaimed, http.StatusConflict, "sync_in_progress"},
		{&trello.ProviderError{Op: "create_card", Status: 401}, http.StatusBadGateway, "provider_error"},
		{&cardsync.PersistenceError{Op: "begin", Err: errors.New("deadlock")}, http.StatusInternalServerError, "internal_error"},
	}
	for _, c := range cases {
		t.Run(c.code, func(t *testing.T) {
			h := newHarness()
			h.sync.err = c.err
			rr := h.do(t, http.MethodPost, "/api/requests/11/sync", "1", "")
			if rr.Code != c.status {
				t.Fatalf("status = %d, want %d", rr.Code, c.status)
			}
			if got := errorCode(t, rr); got != c.code {
				t.Fatalf("code = %q, want %q", got, c.code)
			}
		})
	}
}

func TestUpdateCard_BuildsPartialUpdate(t *testing.T) {
	h := newHarness()
	rr := h.do(t, http.MethodPatch, "/api/requests/11/card", "1", `{"name":"Renamed","due":"2025-07-04"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	u := h.sync.calls[0].in.Update
	if u.Name == nil || *u.Name != "Renamed" || u.Desc != nil {
		t.Fatalf("update = %#v", u)
	}
	if u.Due == nil || *u.Due != "2025-07-04T00:00:00.000Z" {
		t.Fatalf("due = %v", u.Due)
	}
}

func TestUpdateCard_RejectsBadBody(t *testing.T) {
	h := newHarness()
	for _, body := range []string{`{"due":"July 4"}`, `{"nope":1}`, `{`} {
		if rr := h.do(t, http.MethodPatch, "/api/requests/11/card", "1", body); rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", body, rr.Code)
		}
	}
	if len(h.sync.calls) != 0 {
		t.Fatalf("bad bodies reached the orchestrator")
	}
}

func TestAddComment_Validates(t *testing.T) {
	h := newHarness()
	if rr := h.do(t, http.MethodPost, "/api/requests/11/comment", "1", `{"text":""}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("empty text status = %d", rr.Code)
	} else if code := errorCode(t, rr); code != "validation_failed" {
		t.Fatalf("code = %q", code)
	}
	rr := h.do(t, http.MethodPost, "/api/requests/11/comment", "1", `{"text":"Client approved"}`)
	if rr.Code != http.StatusCreated || h.sync.calls[0].in.Comment != "Client approved" {
		t.Fatalf("status = %d, calls = %#v", rr.Code, h.sync.calls)
	}
}

func TestSyncStatus_ProjectsLatestRow(t *testing.T) {
	h := newHarness()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	h.sync.history = []synclog.Entry{
		{ID: 3, Operation: synclog.OpCreate, Status: synclog.StatusCompleted, CreatedAt: at},
		{ID: 2, Operation: synclog.OpCreate, Status: synclog.StatusRetrying, CreatedAt: at.Add(-time.Hour)},
	}
	rr := h.do(t, http.MethodGet, "/api/requests/11/sync?limit=5", "1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var out statusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.SyncStatus != designrequest.SyncSynced || len(out.History) != 2 || out.History[0].ID != 3 {
		t.Fatalf("response = %#v", out)
	}
	if out.History[0].Superseded || !out.History[1].Superseded {
		t.Fatalf("superseded flags = %v, %v", out.History[0].Superseded, out.History[1].Superseded)
	}

	if rr := h.do(t, http.MethodGet, "/api/requests/11/sync?limit=0", "1", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("limit=0 status = %d", rr.Code)
	}
}

func TestReconcile(t *testing.T) {
	h := newHarness()
	rr := h.do(t, http.MethodPost, "/api/requests/11/sync/reconcile", "1", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"sync_status":"failed"`) {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
}

func TestSweep(t *testing.T) {
	h := newHarness()
	rr := h.do(t, http.MethodPost, "/api/sync/sweep", "1", "")
	if rr.Code != http.StatusOK || h.sweep.batch != 10 {
		t.Fatalf("status = %d, batch = %d", rr.Code, h.sweep.batch)
	}
	var out sweepResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &out)
	if out.Selected != 2 || len(out.Errors) != 1 || out.Errors[0].EntryID != 4 {
		t.Fatalf("response = %#v", out)
	}

	h.do(t, http.MethodPost, "/api/sync/sweep?batch=3", "1", "")
	if h.sweep.batch != 3 {
		t.Fatalf("batch = %d, want 3", h.sweep.batch)
	}
}

func TestBoard_SetupAndReset(t *testing.T) {
	h := newHarness()

	rr := h.do(t, http.MethodPost, "/api/clients/5/board", "1", "")
	if rr.Code != http.StatusCreated || !h.boards.opts.SetupTrello {
		t.Fatalf("default setup: status = %d, opts = %#v", rr.Code, h.boards.opts)
	}
	if !strings.Contains(rr.Body.String(), `"error":"invalid email"`) {
		t.Fatalf("failed invite not reported: %s", rr.Body)
	}

	rr = h.do(t, http.MethodPost, "/api/clients/5/board", "1", `{"setup_trello":false}`)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"skipped"`) {
		t.Fatalf("skip: status = %d, body = %s", rr.Code, rr.Body)
	}

	rr = h.do(t, http.MethodPost, "/api/clients/5/board", "1", `{"members":["not-an-email"]}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad member status = %d", rr.Code)
	}

	rr = h.do(t, http.MethodPost, "/api/clients/5/board/reset", "1", `{"member_role":"observer"}`)
	if rr.Code != http.StatusCreated || !h.boards.reset || h.boards.opts.MemberRole != "observer" {
		t.Fatalf("reset: status = %d, opts = %#v", rr.Code, h.boards.opts)
	}
}

func TestBadID(t *testing.T) {
	h := newHarness()
	if rr := h.do(t, http.MethodPost, "/api/requests/abc/sync", "1", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}
