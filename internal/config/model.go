// internal/config/model.go
//
// Typed configuration model for DesignWorks.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                               – dotenv values,
//   • `conf/global.yaml`                            – primary static file,
//   • `DESIGNWORKS_`-prefixed environment overrides – highest precedence.
//
// Trello credentials stored on client rows may be Vault references
// (`vault:<mount>/<path>#<key>`).  Those are resolved at sync time by
// internal/vault, never here.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.
//   • Durations accept Go syntax (“5m”, “30s”).
//   • Oxford commas, two spaces after periods.  No em-dash.

package config

import "time"

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr   string        `koanf:"listen_addr"   validate:"required,hostname_port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"  validate:"gte=0"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"gte=0"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"  validate:"gte=0"`
}

//
// Database section
//

// Database holds the MySQL DSN and pool sizing.  The DSN must carry
// `parseTime=true` so DATETIME columns scan into time.Time.
type Database struct {
	DSN             string        `koanf:"dsn"               validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns"    validate:"gte=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns"    validate:"gte=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" validate:"gte=0"`
	Retries         int           `koanf:"retries"           validate:"gte=0"`
	RetryBackoff    time.Duration `koanf:"retry_backoff"     validate:"gte=0"`
}

//
// Log section
//

// Log controls the zap logger.  An empty Dir means `<root>/logs`.
type Log struct {
	Dir   string `koanf:"dir"`
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
}

//
// Trello section
//

// Trello configures the task-board adapter.  APIKey and Token are the
// agency-wide credentials used to provision boards for clients whose own
// trello_config carries none.
type Trello struct {
	BaseURL        string        `koanf:"base_url"        validate:"required,url"`
	Timeout        time.Duration `koanf:"timeout"         validate:"gt=0"`
	APIKey         string        `koanf:"api_key"`
	Token          string        `koanf:"token"`
	OrganizationID string        `koanf:"organization_id"`
}

//
// Sync section
//

// Sync tunes the orchestrator and the retry sweeper.
//
// BackoffMaxExponent and BackoffJitter default to zero, which keeps the
// historical `base * 2^retry_count` schedule with no cap and no jitter.
// Setting either one changes retry timing and is logged at startup.
type Sync struct {
	MaxRetries         int           `koanf:"max_retries"          validate:"gte=1"`
	BatchSize          int           `koanf:"batch_size"           validate:"gte=1"`
	BackoffBase        time.Duration `koanf:"backoff_base"         validate:"gt=0"`
	BackoffMaxExponent int           `koanf:"backoff_max_exponent" validate:"gte=0"`
	BackoffJitter      float64       `koanf:"backoff_jitter"       validate:"gte=0,lt=1"`
	ClaimTTL           time.Duration `koanf:"claim_ttl"            validate:"gt=0"`
	ListCacheTTL       time.Duration `koanf:"list_cache_ttl"       validate:"gte=0"`
	ListCacheSize      int           `koanf:"list_cache_size"      validate:"gte=1"`
}

//
// Vault section
//

// Vault toggles resolution of `vault:` credential references.  Address and
// token come from the standard VAULT_ADDR and VAULT_TOKEN variables.
type Vault struct {
	Enabled  bool          `koanf:"enabled"`
	CacheTTL time.Duration `koanf:"cache_ttl" validate:"gte=0"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string // DESIGNWORKS_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	HTTP     HTTP     `koanf:"http"`
	Database Database `koanf:"database"`
	Log      Log      `koanf:"log"`
	Trello   Trello   `koanf:"trello"`
	Sync     Sync     `koanf:"sync"`
	Vault    Vault    `koanf:"vault"`
	Paths    Paths    `koanf:"-"` // not loaded from config files
}

// Default returns the baseline tree that YAML and env layers override.
func Default() Config {
	return Config{
		HTTP: HTTP{
			ListenAddr:   ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: Database{
			MaxOpenConns:    15,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			Retries:         2,
			RetryBackoff:    500 * time.Millisecond,
		},
		Log: Log{Level: "info"},
		Trello: Trello{
			BaseURL: "https://api.trello.com/1",
			Timeout: 15 * time.Second,
		},
		Sync: Sync{
			MaxRetries:    5,
			BatchSize:     10,
			BackoffBase:   5 * time.Minute,
			ClaimTTL:      10 * time.Minute,
			ListCacheTTL:  15 * time.Minute,
			ListCacheSize: 256,
		},
		Vault: Vault{CacheTTL: 5 * time.Minute},
	}
}
