// internal/trello/client.go
//
// Trello REST adapter.
//
// Context
// -------
// One method per provider call.  Each turns its arguments into exactly one
// authenticated HTTP request (CreateBoard is the exception: board, then one
// request per list) and either decodes the response or returns a
// *ProviderError.  Nothing here retries; retry policy belongs to the sync
// ledger and the sweeper.
//
// Notes
// -----
// • Credentials go in the `key` and `token` query parameters, never in a
//   body.  Network errors are redacted before they leave this package.
// • A Client holds no mutable state after New and is safe for concurrent
//   use.  Credentials are per call because every agency client has its own.
// • Every call observes metrics.ProviderRequestDuration.
package trello

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/keefcreative/designworks/internal/metrics"
)

// DefaultBaseURL is the public REST root.
const DefaultBaseURL = "https://api.trello.com/1"

// maxErrorBody caps how much of a failed response is kept.
const maxErrorBody = 64 << 10

// Client calls the provider API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client with its own http.Client bounded by timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return NewWithHTTPClient(baseURL, &http.Client{Timeout: timeout})
}

// NewWithHTTPClient lets callers supply the transport.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

/*──────────────────────────── cards ───────────────────────────────────────*/

// CreateCard creates a card in f.IDList.
func (c *Client) CreateCard(ctx context.Context, cr Credentials, f CardFields) (*Card, error) {
	var out Card
	if err := c.do(ctx, "create_card", http.MethodPost, "cards", nil, cr, f, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateCard sends only the fields set in u.
func (c *Client) UpdateCard(ctx context.Context, cr Credentials, cardID string, u CardUpdate) (*Card, error) {
	var out Card
	if err := c.do(ctx, "update_card", http.MethodPut, "cards/"+url.PathEscape(cardID), nil, cr, u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddComment posts text verbatim as a card comment.
func (c *Client) AddComment(ctx context.Context, cr Credentials, cardID, text string) (*Comment, error) {
	var out Comment
	body := map[string]string{"text": text}
	path := "cards/" + url.PathEscape(cardID) + "/actions/comments"
	if err := c.do(ctx, "add_comment", http.MethodPost, path, nil, cr, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

/*──────────────────────────── boards ──────────────────────────────────────*/

// ListLists returns the open lists on a board in the provider's order.
func (c *Client) ListLists(ctx context.Context, cr Credentials, boardID string) ([]List, error) {
	var out []List
	q := url.Values{"filter": {"open"}}
	if err := c.do(ctx, "list_lists", http.MethodGet, "boards/"+url.PathEscape(boardID)+"/lists", q, cr, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateBoard creates an empty board and then spec.Lists in order.  The
// returned lists follow spec.Lists.  When a list create fails the board
// already exists; it is returned alongside the error so callers can record
// it.
func (c *Client) CreateBoard(ctx context.Context, cr Credentials, spec BoardSpec) (*Board, []List, error) {
	body := map[string]any{
		"name":         spec.Name,
		"defaultLists": false,
	}
	if spec.Desc != "" {
		body["desc"] = spec.Desc
	}
	if spec.OrganizationID != "" {
		body["idOrganization"] = spec.OrganizationID
	}
	var b Board
	if err := c.do(ctx, "create_board", http.MethodPost, "boards", nil, cr, body, &b); err != nil {
		return nil, nil, err
	}

	lists := make([]List, 0, len(spec.Lists))
	for _, name := range spec.Lists {
		var l List
		lb := map[string]string{"name": name, "pos": "bottom"}
		if err := c.do(ctx, "create_list", http.MethodPost, "boards/"+url.PathEscape(b.ID)+"/lists", nil, cr, lb, &l); err != nil {
			return &b, lists, err
		}
		lists = append(lists, l)
	}
	return &b, lists, nil
}

// ListBoards lists an organization's boards, or the member's own when
// orgID is empty.
func (c *Client) ListBoards(ctx context.Context, cr Credentials, orgID string) ([]Board, error) {
	path := "members/me/boards"
	if orgID != "" {
		path = "organizations/" + url.PathEscape(orgID) + "/boards"
	}
	var out []Board
	if err := c.do(ctx, "list_boards", http.MethodGet, path, nil, cr, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddMember invites email to the board with the given role.
func (c *Client) AddMember(ctx context.Context, cr Credentials, boardID, email, role string) error {
	if role == "" {
		role = RoleNormal
	}
	body := map[string]string{"email": email, "type": role}
	return c.do(ctx, "add_member", http.MethodPut, "boards/"+url.PathEscape(boardID)+"/members", nil, cr, body, nil)
}

// Ping reports whether the credentials are accepted.
func (c *Client) Ping(ctx context.Context, cr Credentials) (*Member, error) {
	var out Member
	if err := c.do(ctx, "ping", http.MethodGet, "members/me", nil, cr, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

/*──────────────────────────── transport ───────────────────────────────────*/

func (c *Client) do(ctx context.Context, op, method, path string, q url.Values, cr Credentials, body, out any) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.ProviderRequestDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
	}()

	if q == nil {
		q = url.Values{}
	}
	q.Set("key", cr.Key)
	q.Set("token", cr.Token)
	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/") + "?" + q.Encode()

	var rdr io.Reader
	if body != nil {
		buf, merr := json.Marshal(body)
		if merr != nil {
			return &ProviderError{Op: op, Err: merr}
		}
		rdr = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
	if err != nil {
		return &ProviderError{Op: op, Err: redact(err)}
	}
	req.Header.Set("Accept", "application/json")
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &ProviderError{Op: op, Err: redact(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		zap.L().Debug("trello: non-2xx",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode))
		return &ProviderError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ProviderError{Op: op, Status: resp.StatusCode, Err: err}
	}
	return nil
}
