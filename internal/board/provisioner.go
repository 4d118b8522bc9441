// internal/board/provisioner.go
//
// One-time Trello board setup for a newly onboarded client.
//
// Context
// -------
// SetupClientBoard creates a board with the fixed template lists, stores
// board id, url, and list ids on the client, points trello_config.list_id
// at "In Progress" (or the first template list), and invites the owner and
// extra members.  Member invitations are best effort: each failure is
// collected in the Result and never undoes the board.
//
// ResetClientBoard runs the same creation again and overwrites the stored
// reference.  The old board is left on the provider side untouched, and
// card URLs on historical design requests keep pointing at it.
//
// Notes
// -----
// • Credentials come from the client's own trello_config when set, else
//   from the agency-wide config.Trello values, which are then copied into
//   the client's config so later card syncs can use them.
// • Oxford commas, two spaces after periods.
package board

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/keefcreative/designworks/internal/activity"
	"github.com/keefcreative/designworks/internal/client"
	"github.com/keefcreative/designworks/internal/metrics"
	"github.com/keefcreative/designworks/internal/trello"
)

// TemplateLists are created on every new board, in this order.
var TemplateLists = []string{
	"Welcome & Setup",
	"Requirements Gathering",
	"Design Brief",
	"In Progress",
	"Client Review",
	"Completed",
}

// DefaultListName is the list new cards go to when present.
const DefaultListName = "In Progress"

// ErrNoCredentials means neither the client nor the agency config carries
// a Trello key and token.
var ErrNoCredentials = errors.New("no trello credentials configured")

// Result statuses.
const (
	StatusSkipped = "skipped"
	StatusCreated = "created"
)

// Provider is the slice of trello.Client provisioning uses.
type Provider interface {
	CreateBoard(ctx context.Context, cr trello.Credentials, spec trello.BoardSpec) (*trello.Board, []trello.List, error)
	AddMember(ctx context.Context, cr trello.Credentials, boardID, email, role string) error
}

// Store reads and updates clients.
type Store interface {
	Client(ctx context.Context, id int64) (*client.Record, error)
	SaveBoard(ctx context.Context, id int64, b client.Board, cfg client.TrelloConfig) error
}

// SQLStore implements Store with the client repository helpers.
type SQLStore struct {
	DB *sqlx.DB
}

func (s SQLStore) Client(ctx context.Context, id int64) (*client.Record, error) {
	return client.ByID(ctx, s.DB, id)
}

func (s SQLStore) SaveBoard(ctx context.Context, id int64, b client.Board, cfg client.TrelloConfig) error {
	return client.SaveBoard(ctx, s.DB, id, b, cfg)
}

// SecretResolver resolves `vault:` references.
type SecretResolver interface {
	Resolve(ctx context.Context, value string) (string, error)
}

// Auditor records activity.
type Auditor interface {
	Log(ctx context.Context, entityType string, entityID int64, action string, details activity.Details)
}

// Defaults are agency-wide settings used when a client has none of its own.
type Defaults struct {
	APIKey         string
	Token          string
	OrganizationID string
}

// Options controls one provisioning run.
type Options struct {
	SetupTrello bool
	BoardName   string   // default: "<client name> Design Requests"
	OwnerEmail  string   // default: the client's owner_email
	Members     []string // default: trello_config.default_members
	MemberRole  string   // default: normal
}

// Invite is the outcome of one member invitation.
type Invite struct {
	Email string
	Role  string
	Err   error
}

// Result describes a provisioning run.
type Result struct {
	Status   string
	BoardID  string
	BoardURL string
	Lists    client.BoardLists
	ListID   string
	Invites  []Invite
}

// FailedInvites returns the invitations that did not go through.
func (r *Result) FailedInvites() []Invite {
	var out []Invite
	for _, in := range r.Invites {
		if in.Err != nil {
			out = append(out, in)
		}
	}
	return out
}

// Provisioner creates client boards.
type Provisioner struct {
	Store    Store
	Provider Provider
	Secrets  SecretResolver
	Audit    Auditor
	Defaults Defaults
}

// SetupClientBoard provisions a board unless opts.SetupTrello is false.
func (p *Provisioner) SetupClientBoard(ctx context.Context, clientID int64, opts Options) (*Result, error) {
	if !opts.SetupTrello {
		metrics.BoardProvisionTotal.WithLabelValues(StatusSkipped).Inc()
		return &Result{Status: StatusSkipped}, nil
	}
	return p.provision(ctx, clientID, opts, "trello_board_created")
}

// ResetClientBoard creates a fresh board and replaces the stored one.
func (p *Provisioner) ResetClientBoard(ctx context.Context, clientID int64, opts Options) (*Result, error) {
	opts.SetupTrello = true
	return p.provision(ctx, clientID, opts, "trello_board_reset")
}

func (p *Provisioner) provision(ctx context.Context, clientID int64, opts Options, action string) (res *Result, err error) {
	defer func() {
		if err != nil {
			metrics.BoardProvisionTotal.WithLabelValues("failed").Inc()
		}
	}()

	cl, err := p.Store.Client(ctx, clientID)
	if err != nil {
		return nil, err
	}
	cfg := cl.TrelloConfig
	if cfg.APIKey == "" {
		cfg.APIKey = p.Defaults.APIKey
	}
	if cfg.Token == "" {
		cfg.Token = p.Defaults.Token
	}
	if cfg.APIKey == "" || cfg.Token == "" {
		return nil, fmt.Errorf("client %d: %w", clientID, ErrNoCredentials)
	}
	cr, err := p.credentials(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("client %d: %w", clientID, err)
	}

	name := strings.TrimSpace(opts.BoardName)
	if name == "" {
		name = cl.Name + " Design Requests"
	}
	b, lists, err := p.Provider.CreateBoard(ctx, cr, trello.BoardSpec{
		Name:           name,
		OrganizationID: p.Defaults.OrganizationID,
		Lists:          TemplateLists,
	})
	if err != nil {
		if b != nil {
			zap.L().Warn("board created without all lists",
				zap.Int64("client_id", clientID),
				zap.String("board_id", b.ID),
				zap.Error(err))
		}
		return nil, err
	}

	stored := make(client.BoardLists, 0, len(lists))
	for _, l := range lists {
		stored = append(stored, client.BoardList{Name: l.Name, ID: l.ID})
	}
	listID, ok := stored.ByName(DefaultListName)
	if !ok && len(stored) > 0 {
		listID = stored[0].ID
	}

	oldBoard := cl.TrelloBoardID
	cfg.BoardID = b.ID
	cfg.ListID = listID
	boardURL := b.URL
	if boardURL == "" {
		boardURL = b.ShortURL
	}
	if err := p.Store.SaveBoard(ctx, clientID, client.Board{ID: b.ID, URL: boardURL, Lists: stored}, cfg); err != nil {
		zap.L().Error("board created but not saved",
			zap.Int64("client_id", clientID),
			zap.String("board_id", b.ID),
			zap.Error(err))
		return nil, fmt.Errorf("save board %s: %w", b.ID, err)
	}

	res = &Result{
		Status:   StatusCreated,
		BoardID:  b.ID,
		BoardURL: boardURL,
		Lists:    stored,
		ListID:   listID,
	}
	res.Invites = p.invite(ctx, cr, b.ID, cl, cfg, opts)
	metrics.BoardProvisionTotal.WithLabelValues(StatusCreated).Inc()

	failed := len(res.FailedInvites())
	zap.L().Info("board provisioned",
		zap.Int64("client_id", clientID),
		zap.String("board_id", b.ID),
		zap.String("previous_board_id", oldBoard),
		zap.Int("invites", len(res.Invites)),
		zap.Int("invite_failures", failed))

	if p.Audit != nil {
		p.Audit.Log(ctx, activity.EntityClient, clientID, action, activity.Details{
			"board_id":          b.ID,
			"board_url":         boardURL,
			"previous_board_id": oldBoard,
			"invite_failures":   failed,
		})
	}
	return res, nil
}

func (p *Provisioner) credentials(ctx context.Context, cfg client.TrelloConfig) (trello.Credentials, error) {
	if p.Secrets == nil {
		return trello.Credentials{Key: cfg.APIKey, Token: cfg.Token}, nil
	}
	key, err := p.Secrets.Resolve(ctx, cfg.APIKey)
	if err != nil {
		return trello.Credentials{}, fmt.Errorf("api_key: %w", err)
	}
	token, err := p.Secrets.Resolve(ctx, cfg.Token)
	if err != nil {
		return trello.Credentials{}, fmt.Errorf("token: %w", err)
	}
	return trello.Credentials{Key: key, Token: token}, nil
}

// invite adds the owner as admin, then each member with the member role.
// Blank and repeated addresses are skipped.
func (p *Provisioner) invite(ctx context.Context, cr trello.Credentials, boardID string, cl *client.Record, cfg client.TrelloConfig, opts Options) []Invite {
	owner := strings.TrimSpace(opts.OwnerEmail)
	if owner == "" {
		owner = strings.TrimSpace(cl.OwnerEmail)
	}
	members := opts.Members
	if members == nil {
		members = cfg.DefaultMembers
	}
	role := opts.MemberRole
	if role == "" {
		role = trello.RoleNormal
	}

	seen := map[string]bool{}
	var out []Invite
	add := func(email, role string) {
		email = strings.TrimSpace(email)
		key := strings.ToLower(email)
		if email == "" || seen[key] {
			return
		}
		seen[key] = true
		err := p.Provider.AddMember(ctx, cr, boardID, email, role)
		if err != nil {
			zap.L().Warn("board invite failed",
				zap.String("board_id", boardID),
				zap.String("email", email),
				zap.Error(err))
		}
		out = append(out, Invite{Email: email, Role: role, Err: err})
	}

	add(owner, trello.RoleAdmin)
	for _, m := range members {
		add(m, role)
	}
	return out
}
