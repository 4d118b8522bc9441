// internal/vault/vault.go
//
// Vault-backed resolver for Trello credential references.
//
// Context
// -------
//   - Client `trello_config` rows may store `api_key` and `token` either as
//     plain strings or as references of the form
//     `vault:<mount>/<path>#<key>` (e.g. `vault:secret/clients/42#token`).
//   - The sync orchestrator calls `Resolve` on every credential right before
//     a provider call, so rotated secrets take effect without a restart.
//   - Resolved values are cached per reference for a configurable TTL.
//   - A background lifetime watcher keeps a renewable token alive.
//
// Public workflow
// ---------------
//  1. cli, err := vault.New(ctx, ttl)             // during boot.
//  2. tok, err := cli.Resolve(ctx, cfg.Token)     // anywhere in the app.
//
// Passthrough is the no-Vault implementation used when `vault.enabled` is
// false: it returns plain values unchanged and rejects references.
package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
)

// Prefix marks a credential value that must be looked up in Vault.
const Prefix = "vault:"

// ErrVaultDisabled is returned by Passthrough for `vault:` references.
var ErrVaultDisabled = errors.New("vault reference found but vault is disabled")

// IsRef reports whether value is a Vault reference.
func IsRef(value string) bool { return strings.HasPrefix(value, Prefix) }

// ParseRef splits `vault:<mount>/<path>#<key>` into its parts.
func ParseRef(value string) (mount, path, key string, err error) {
	if !IsRef(value) {
		return "", "", "", fmt.Errorf("not a vault reference")
	}
	ref := strings.TrimPrefix(value, Prefix)
	loc, key, ok := strings.Cut(ref, "#")
	if !ok || key == "" {
		return "", "", "", fmt.Errorf("vault reference %q lacks #key", value)
	}
	mount, path, ok = strings.Cut(loc, "/")
	if !ok || mount == "" || path == "" {
		return "", "", "", fmt.Errorf("vault reference %q lacks mount/path", value)
	}
	return mount, path, key, nil
}

//
// SECTION 1.  Client
//

// kvReader is the slice of the Vault SDK this package needs.  Tests
// substitute a fake.
type kvReader interface {
	Get(ctx context.Context, mount, path string) (map[string]any, error)
}

type sdkReader struct{ api *vault.Client }

func (r sdkReader) Get(ctx context.Context, mount, path string) (map[string]any, error) {
	sec, err := r.api.KVv2(mount).Get(ctx, path)
	if err != nil {
		return nil, err
	}
	return sec.Data, nil
}

// Client is safe for concurrent use.  Create once at startup.
type Client struct {
	kv  kvReader
	ttl time.Duration
	now func() time.Time

	cacheMu sync.RWMutex
	cache   map[string]cached // full reference → value + expiry.
}

type cached struct {
	val string
	exp time.Time
}

// New constructs a Vault client from VAULT_ADDR / VAULT_TOKEN and starts a
// token lifetime watcher bound to ctx.
func New(ctx context.Context, ttl time.Duration) (*Client, error) {
	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault env cfg: %w", err)
	}
	apiCli, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault api: %w", err)
	}

	go renewLoop(ctx, apiCli)
	return newClient(sdkReader{api: apiCli}, ttl), nil
}

func newClient(kv kvReader, ttl time.Duration) *Client {
	return &Client{kv: kv, ttl: ttl, now: time.Now, cache: make(map[string]cached)}
}

// Resolve returns value unchanged unless it is a Vault reference, in which
// case the referenced KV-v2 field is fetched (or served from cache).
func (c *Client) Resolve(ctx context.Context, value string) (string, error) {
	if !IsRef(value) {
		return value, nil
	}

	if c.ttl > 0 {
		c.cacheMu.RLock()
		cv, ok := c.cache[value]
		c.cacheMu.RUnlock()
		if ok && c.now().Before(cv.exp) {
			return cv.val, nil
		}
	}

	mount, path, key, err := ParseRef(value)
	if err != nil {
		return "", err
	}
	data, err := c.kv.Get(ctx, mount, path)
	if err != nil {
		return "", fmt.Errorf("vault get %s/%s: %w", mount, path, err)
	}
	raw, ok := data[key]
	if !ok {
		return "", fmt.Errorf("key %q not found in secret %s/%s", key, mount, path)
	}
	sval, ok := raw.(string)
	if !ok || sval == "" {
		return "", fmt.Errorf("value at %s/%s#%s is not a non-empty string", mount, path, key)
	}

	if c.ttl > 0 {
		c.cacheMu.Lock()
		c.cache[value] = cached{val: sval, exp: c.now().Add(c.ttl)}
		c.cacheMu.Unlock()
	}
	return sval, nil
}

// Passthrough resolves nothing: plain values pass, references fail.
type Passthrough struct{}

// Resolve implements the resolver contract without Vault.
func (Passthrough) Resolve(_ context.Context, value string) (string, error) {
	if IsRef(value) {
		return "", ErrVaultDisabled
	}
	return value, nil
}

//
// SECTION 2.  Background token renewal
//

func renewLoop(ctx context.Context, api *vault.Client) {
	log := zap.S().With("component", "vault")
	for {
		sec, err := api.Auth().Token().LookupSelfWithContext(ctx)
		if err != nil {
			log.Warnw("token lookup failed", "err", err)
			if !sleep(ctx, 30*time.Second) {
				return
			}
			continue
		}
		renewable, _ := sec.TokenIsRenewable()
		if !renewable {
			log.Infow("token is not renewable, watcher idle")
			return
		}

		w, err := api.NewLifetimeWatcher(&vault.LifetimeWatcherInput{
			Secret: &vault.Secret{Auth: &vault.SecretAuth{
				ClientToken: api.Token(),
				Renewable:   true,
			}},
		})
		if err != nil {
			log.Warnw("lifetime watcher init failed", "err", err)
			if !sleep(ctx, 30*time.Second) {
				return
			}
			continue
		}
		go w.Start()

		done := false
		for !done {
			select {
			case <-ctx.Done():
				w.Stop()
				return
			case err := <-w.DoneCh():
				if err != nil {
					log.Warnw("token renewal stopped", "err", err)
				}
				done = true
			case ev := <-w.RenewCh():
				if ev != nil && ev.Secret != nil && ev.Secret.Auth != nil {
					log.Debugw("token renewed", "ttl_s", ev.Secret.Auth.LeaseDuration)
				}
			}
		}
		w.Stop()
		if !sleep(ctx, 15*time.Second) {
			return
		}
	}
}

// sleep waits d or until ctx ends; false means ctx ended.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
