package cardsync

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx/types"

	"github.com/keefcreative/designworks/internal/activity"
	"github.com/keefcreative/designworks/internal/client"
	"github.com/keefcreative/designworks/internal/designrequest"
	"github.com/keefcreative/designworks/internal/synclog"
	"github.com/keefcreative/designworks/internal/trello"
)

/*──────────────────────────── store ───────────────────────────────────────*/

type memStore struct {
	mu       sync.Mutex
	requests map[int64]*designrequest.Record
	clients  map[int64]*client.Record
	claims   map[int64]string
	logs     []*synclog.Entry

	beginErr error
}

var _ Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		requests: map[int64]*designrequest.Record{},
		clients:  map[int64]*client.Record{},
		claims:   map[int64]string{},
	}
}

func (m *memStore) Load(_ context.Context, id int64) (*designrequest.Record, *client.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, nil, designrequest.ErrNotFound
	}
	c, ok := m.clients[r.ClientID]
	if !ok {
		return nil, nil, designrequest.ErrNotFound
	}
	rc, cc := *r, *c
	return &rc, &cc, nil
}

func (m *memStore) ClaimCreate(_ context.Context, id int64, token string, _, _ time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.requests[id]
	if r == nil || r.TrelloCardID != "" || m.claims[id] != "" {
		return false, nil
	}
	m.claims[id] = token
	return true, nil
}

func (m *memStore) ReleaseClaim(_ context.Context, id int64, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claims[id] == token {
		delete(m.claims, id)
	}
	return nil
}

func (m *memStore) Begin(_ context.Context, e *synclog.Entry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.beginErr != nil {
		return 0, m.beginErr
	}
	cp := *e
	cp.ID = int64(len(m.logs) + 1)
	cp.Status = synclog.StatusInProgress
	m.logs = append(m.logs, &cp)
	e.ID, e.Status = cp.ID, cp.Status
	return cp.ID, nil
}

func (m *memStore) Complete(_ context.Context, entryID, requestID int64, resp types.JSONText, s designrequest.Success) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.logs[entryID-1]
	if e.Status != synclog.StatusInProgress {
		return synclog.ErrConcluded
	}
	at := s.At
	e.Status, e.ResponseData, e.CompletedAt = synclog.StatusCompleted, resp, &at
	r := m.requests[requestID]
	r.SyncStatus, r.SyncError, r.LastSyncAt = designrequest.SyncSynced, "", &at
	if s.CardID != "" {
		r.TrelloCardID, r.TrelloCardURL = s.CardID, s.CardURL
	}
	delete(m.claims, requestID)
	return nil
}

func (m *memStore) Fail(_ context.Context, entryID, requestID int64, f synclog.Failure, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.logs[entryID-1]
	if e.Status != synclog.StatusInProgress {
		return synclog.ErrConcluded
	}
	e.Status, e.ErrorMessage, e.RetryCount, e.NextRetryAt = f.Status, f.Message, f.RetryCount, f.NextRetryAt
	r := m.requests[requestID]
	r.SyncStatus, r.SyncError, r.LastSyncAt = designrequest.SyncFailed, f.Message, &at
	r.SyncAttempts++
	delete(m.claims, requestID)
	return nil
}

func (m *memStore) DueForRetry(_ context.Context, now time.Time, maxRetries, limit int) ([]synclog.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []synclog.Entry
	for _, e := range m.logs {
		if due(e, now) && e.RetryCount < maxRetries {
			out = append(out, *e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func due(e *synclog.Entry, now time.Time) bool {
	return (e.Status == synclog.StatusFailed || e.Status == synclog.StatusRetrying) &&
		e.NextRetryAt != nil && !e.NextRetryAt.After(now)
}

func (m *memStore) ClaimRetry(_ context.Context, id int64, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.logs[id-1]
	if !due(e, now) {
		return false, nil
	}
	e.Status, e.NextRetryAt = synclog.StatusRetrying, nil
	return true, nil
}

func (m *memStore) Reschedule(_ context.Context, id int64, f synclog.Failure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.logs[id-1]
	if e.Status != synclog.StatusRetrying {
		return synclog.ErrConcluded
	}
	e.Status, e.ErrorMessage, e.RetryCount, e.NextRetryAt = f.Status, f.Message, f.RetryCount, f.NextRetryAt
	return nil
}

func (m *memStore) Latest(_ context.Context, requestID int64) (*synclog.Entry, error) {
	h, _ := m.History(context.Background(), requestID, 1)
	if len(h) == 0 {
		return nil, synclog.ErrNotFound
	}
	return &h[0], nil
}

func (m *memStore) History(_ context.Context, requestID int64, limit int) ([]synclog.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []synclog.Entry
	for _, e := range m.logs {
		if e.DesignRequestID == requestID {
			out = append(out, *e)
		}
	}
	// created_at DESC, id DESC, as the SQL store orders it.
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) SetSyncStatus(_ context.Context, requestID int64, s designrequest.SyncStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r := m.requests[requestID]; r != nil {
		r.SyncStatus = s
	}
	return nil
}

// seed adds a sync log row directly, bypassing Begin's status forcing.
func (m *memStore) seed(e synclog.Entry) *synclog.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.logs) + 1)
	m.logs = append(m.logs, &e)
	return m.logs[len(m.logs)-1]
}

func (m *memStore) entriesFor(requestID int64) []*synclog.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*synclog.Entry
	for _, e := range m.logs {
		if e.DesignRequestID == requestID {
			out = append(out, e)
		}
	}
	return out
}

/*──────────────────────────── provider ────────────────────────────────────*/

type fakeProvider struct {
	mu sync.Mutex

	createErrs []error // consumed in order; nil entries succeed
	updateErr  error
	commentErr error
	lists      []trello.List

	creates   []trello.CardFields
	updates   []trello.CardUpdate
	comments  []string
	listCalls int
	creds     []trello.Credentials
}

func (p *fakeProvider) CreateCard(_ context.Context, cr trello.Credentials, f trello.CardFields) (*trello.Card, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.creds = append(p.creds, cr)
	p.creates = append(p.creates, f)
	if len(p.createErrs) > 0 {
		err := p.createErrs[0]
		p.createErrs = p.createErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	n := len(p.creates)
	id := "card-" + string(rune('0'+n))
	return &trello.Card{ID: id, URL: "https://trello.com/c/" + id, IDList: f.IDList}, nil
}

func (p *fakeProvider) UpdateCard(_ context.Context, cr trello.Credentials, cardID string, u trello.CardUpdate) (*trello.Card, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.creds = append(p.creds, cr)
	p.updates = append(p.updates, u)
	if p.updateErr != nil {
		return nil, p.updateErr
	}
	return &trello.Card{ID: cardID, URL: "https://trello.com/c/" + cardID}, nil
}

func (p *fakeProvider) AddComment(_ context.Context, cr trello.Credentials, _ string, text string) (*trello.Comment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.creds = append(p.creds, cr)
	p.comments = append(p.comments, text)
	if p.commentErr != nil {
		return nil, p.commentErr
	}
	return &trello.Comment{ID: "act-1", Type: "commentCard"}, nil
}

func (p *fakeProvider) ListLists(_ context.Context, _ trello.Credentials, _ string) ([]trello.List, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listCalls++
	return p.lists, nil
}

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creates) + len(p.updates) + len(p.comments) + p.listCalls
}

/*──────────────────────────── misc ────────────────────────────────────────*/

type auditEvent struct {
	entityID int64
	action   string
}

type fakeAudit struct {
	mu     sync.Mutex
	events []auditEvent
}

func (a *fakeAudit) Log(_ context.Context, _ string, id int64, action string, _ activity.Details) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, auditEvent{id, action})
}

type mapSecrets map[string]string

func (m mapSecrets) Resolve(_ context.Context, v string) (string, error) {
	if s, ok := m[v]; ok {
		return s, nil
	}
	if len(v) > 6 && v[:6] == "vault:" {
		return "", errors.New("secret not found")
	}
	return v, nil
}
