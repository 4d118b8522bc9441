// internal/app/app.go
//
// Process bootstrap shared by cmd/web and cmd/syncctl.
//
// Context
// -------
// New performs the start-up sequence once, in this order:
//
//  1. Load configuration (conf/.env → conf/global.yaml → DESIGNWORKS_ env).
//  2. Start the daily rotating logger (tees to console when asked).
//  3. Open the MySQL pool, retrying the first ping.
//  4. Pick the credential resolver: Vault when `vault.enabled`, else the
//     passthrough that rejects `vault:` references.
//  5. Wire the Trello adapter, the sync orchestrator, the sweeper, the
//     board provisioner, and the activity logger.
//
// Close stops the Vault watcher and closes the pool.
//
// Notes
// -----
// • A non-default backoff cap or jitter is logged at WARN because it moves
//   retry timing away from the documented schedule.
// • Oxford commas, two spaces after periods.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/keefcreative/designworks/internal/acl"
	"github.com/keefcreative/designworks/internal/activity"
	"github.com/keefcreative/designworks/internal/api"
	"github.com/keefcreative/designworks/internal/board"
	"github.com/keefcreative/designworks/internal/cardsync"
	"github.com/keefcreative/designworks/internal/config"
	"github.com/keefcreative/designworks/internal/database"
	"github.com/keefcreative/designworks/internal/logger"
	"github.com/keefcreative/designworks/internal/synclog"
	"github.com/keefcreative/designworks/internal/trello"
	"github.com/keefcreative/designworks/internal/vault"
)

// Resolver resolves credential references; vault.Client and
// vault.Passthrough both satisfy it.
type Resolver interface {
	Resolve(ctx context.Context, value string) (string, error)
}

// App holds the wired process.
type App struct {
	Config       *config.Config
	Log          *zap.SugaredLogger
	DB           *sqlx.DB
	Trello       *trello.Client
	Secrets      Resolver
	Audit        *activity.Logger
	Orchestrator *cardsync.Orchestrator
	Sweeper      *cardsync.Sweeper
	Boards       *board.Provisioner
	Actors       acl.Store

	stop context.CancelFunc
}

// New runs the start-up sequence.  tee attaches a console core to the
// logger.
func New(ctx context.Context, tee bool) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Log, cfg.Paths.Root, tee)
	if err != nil {
		return nil, fmt.Errorf("start logger: %w", err)
	}

	log.Infow("connecting to database")
	db, err := database.OpenWithOptions(ctx, cfg.Database.DSN, database.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		Retries:         cfg.Database.Retries,
		RetryBackoff:    cfg.Database.RetryBackoff,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	log.Infow("database online")

	bg, stop := context.WithCancel(context.Background())
	var secrets Resolver = vault.Passthrough{}
	if cfg.Vault.Enabled {
		vc, err := vault.New(bg, cfg.Vault.CacheTTL)
		if err != nil {
			stop()
			_ = db.Close()
			return nil, fmt.Errorf("vault: %w", err)
		}
		secrets = vc
		log.Infow("vault credential resolution enabled", "cache_ttl", cfg.Vault.CacheTTL)
	}

	a := &App{
		Config:  cfg,
		Log:     log,
		DB:      db,
		Trello:  trello.New(cfg.Trello.BaseURL, cfg.Trello.Timeout),
		Secrets: secrets,
		Audit:   &activity.Logger{DB: db, Clock: clock.WallClock},
		Actors:  acl.Store{DB: db},
		stop:    stop,
	}

	opts := SyncOptions(cfg.Sync)
	if opts.Backoff.MaxExponent > 0 || opts.Backoff.Jitter > 0 {
		log.Warnw("retry backoff differs from base * 2^retry_count",
			"max_exponent", opts.Backoff.MaxExponent, "jitter", opts.Backoff.Jitter)
	}
	a.Orchestrator = cardsync.New(cardsync.Deps{
		Store:    &cardsync.SQLStore{DB: db},
		Provider: a.Trello,
		Secrets:  secrets,
		Audit:    a.Audit,
		Clock:    clock.WallClock,
		Options:  opts,
	})
	a.Sweeper = cardsync.NewSweeper(a.Orchestrator)
	a.Boards = &board.Provisioner{
		Store:    board.SQLStore{DB: db},
		Provider: a.Trello,
		Secrets:  secrets,
		Audit:    a.Audit,
		Defaults: board.Defaults{
			APIKey:         cfg.Trello.APIKey,
			Token:          cfg.Trello.Token,
			OrganizationID: cfg.Trello.OrganizationID,
		},
	}
	return a, nil
}

// SyncOptions maps the sync config section onto orchestrator options.
func SyncOptions(s config.Sync) cardsync.Options {
	return cardsync.Options{
		MaxRetries: s.MaxRetries,
		Backoff: synclog.Backoff{
			Base:        s.BackoffBase,
			MaxExponent: s.BackoffMaxExponent,
			Jitter:      s.BackoffJitter,
		},
		ClaimTTL:      s.ClaimTTL,
		ListCacheSize: s.ListCacheSize,
		ListCacheTTL:  s.ListCacheTTL,
	}
}

// Handler returns the HTTP API bound to this process.
func (a *App) Handler() http.Handler {
	h := &api.Handler{
		Sync:      a.Orchestrator,
		Sweep:     a.Sweeper,
		Boards:    a.Boards,
		Actors:    a.Actors,
		BatchSize: a.Config.Sync.BatchSize,
		Ready:     func(ctx context.Context) error { return a.DB.PingContext(ctx) },
	}
	return h.Routes()
}

// Close releases background work and the pool.
func (a *App) Close() error {
	a.stop()
	_ = a.Log.Sync()
	return a.DB.Close()
}
