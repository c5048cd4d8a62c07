// internal/vault/vault.go
//
// Vault client wrapper for vidcat.
//
// Context
// -------
//   - Wraps the HashiCorp Vault Go SDK with background token renewal, a
//     KV-v2 helper, and per-key caching.
//   - Configuration values of the form `vault:<mount>/<path>#<key>` are
//     resolved here.  `Lazy` defers dialling Vault until the first such
//     value shows up, so deployments without Vault never need VAULT_ADDR.
//
// Public workflow
// ---------------
//  1. secrets := vault.NewLazy(ctx, log.Infof)           // during boot.
//  2. cfg, err := config.Load(ctx, secrets)              // resolves refs.
//  3. pw, err  := cli.GetKV(ctx, "secret/x", "pw", ttl)  // direct use.
package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
)

// Prefix marks a configuration value as a Vault reference.
const Prefix = "vault:"

// ResolveTTL is how long resolved references stay cached.
const ResolveTTL = 10 * time.Minute

//
// SECTION 1.  Client
//

// Client is safe for concurrent use.  Zero value is invalid.
type Client struct {
	api   *vault.Client
	logFn func(string, ...any)

	cacheMu sync.RWMutex
	cache   map[string]cached // path#key → value + expiry
}

type cached struct {
	val string
	exp time.Time
}

// New constructs a Vault client and starts a background token-renewal
// loop bound to ctx.
//
// Environment expectations
// ------------------------
// • VAULT_ADDR   scheme and host of the Vault server.
// • VAULT_TOKEN  initial token.
func New(ctx context.Context, logFn func(string, ...any)) (*Client, error) {
	if logFn == nil {
		logFn = func(string, ...any) {}
	}

	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault env cfg: %w", err)
	}

	apiCli, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault api: %w", err)
	}
	if tok := os.Getenv("VAULT_TOKEN"); tok != "" {
		apiCli.SetToken(tok)
	}

	c := &Client{
		api:   apiCli,
		logFn: logFn,
		cache: make(map[string]cached),
	}
	go c.renewLoop(ctx)
	return c, nil
}

// GetKV fetches one key from a KV-v2 secret.  If ttl > 0 the value is
// cached for that long.
func (c *Client) GetKV(ctx context.Context, secretPath, key string, ttl time.Duration) (string, error) {
	if secretPath == "" || key == "" {
		return "", errors.New("secret path and key must be non-empty")
	}
	canonical := secretPath + "#" + key

	if ttl > 0 {
		c.cacheMu.RLock()
		cv, ok := c.cache[canonical]
		c.cacheMu.RUnlock()
		if ok && time.Now().Before(cv.exp) {
			return cv.val, nil
		}
	}

	mount, rel := splitMount(secretPath)
	sec, err := c.api.KVv2(mount).Get(ctx, rel)
	if err != nil {
		return "", fmt.Errorf("vault get %s: %w", secretPath, err)
	}
	raw, ok := sec.Data[key]
	if !ok {
		return "", fmt.Errorf("key %q not found in secret %q", key, secretPath)
	}
	sval, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("value at %s is not a string", canonical)
	}

	if ttl > 0 {
		c.cacheMu.Lock()
		c.cache[canonical] = cached{val: sval, exp: time.Now().Add(ttl)}
		c.cacheMu.Unlock()
	}
	return sval, nil
}

// Resolve returns the secret a `vault:` reference names.  Anything else
// is returned unchanged.
func (c *Client) Resolve(ctx context.Context, value string) (string, error) {
	ref, ok, err := ParseRef(value)
	if err != nil || !ok {
		return value, err
	}
	return c.GetKV(ctx, ref.Path, ref.Key, ResolveTTL)
}

//
// SECTION 2.  References
//

// Ref is a parsed `vault:<mount>/<path>#<key>` value.
type Ref struct {
	Path string // mount plus path, e.g. "secret/vidcat/store"
	Key  string
}

// ParseRef parses s.  ok is false when s is not a Vault reference.
func ParseRef(s string) (ref Ref, ok bool, err error) {
	rest, found := strings.CutPrefix(s, Prefix)
	if !found {
		return Ref{}, false, nil
	}
	path, key, _ := strings.Cut(rest, "#")
	path = strings.Trim(path, "/")
	mount, rel := splitMount(path)
	if mount == "" || rel == "" || key == "" {
		return Ref{}, true, fmt.Errorf("vault reference %q: want vault:<mount>/<path>#<key>", s)
	}
	return Ref{Path: path, Key: key}, true, nil
}

// Lazy dials Vault on first use.  It satisfies config.Secrets.
type Lazy struct {
	ctx   context.Context
	logFn func(string, ...any)

	once sync.Once
	cli  *Client
	err  error
}

// NewLazy returns a resolver whose client (and renewal loop) lives as
// long as ctx.
func NewLazy(ctx context.Context, logFn func(string, ...any)) *Lazy {
	return &Lazy{ctx: ctx, logFn: logFn}
}

func (l *Lazy) Resolve(ctx context.Context, value string) (string, error) {
	if _, ok, err := ParseRef(value); err != nil || !ok {
		return value, err
	}
	l.once.Do(func() { l.cli, l.err = New(l.ctx, l.logFn) })
	if l.err != nil {
		return "", l.err
	}
	return l.cli.Resolve(ctx, value)
}

//
// SECTION 3.  Background token renewal
//

func (c *Client) renewLoop(ctx context.Context) {
	for ctx.Err() == nil {
		sec, err := c.api.Auth().Token().RenewSelfWithContext(ctx, 0)
		if err != nil {
			c.logFn("vault: token renew self failed: %v", err)
			backoff(ctx, 30*time.Second)
			continue
		}
		if sec == nil || sec.Auth == nil || !sec.Auth.Renewable {
			c.logFn("vault: token is not renewable, sleeping 1h")
			backoff(ctx, time.Hour)
			continue
		}

		watcher, err := c.api.NewLifetimeWatcher(&vault.LifetimeWatcherInput{
			Secret: sec,
		})
		if err != nil {
			c.logFn("vault: watcher init error: %v", err)
			backoff(ctx, 30*time.Second)
			continue
		}
		c.watch(ctx, watcher)
		backoff(ctx, 15*time.Second)
	}
}

// watch runs one watcher until it gives up or ctx ends.
func (c *Client) watch(ctx context.Context, w *vault.LifetimeWatcher) {
	go w.Start()
	defer w.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-w.DoneCh():
			if err != nil {
				c.logFn("vault: token renewal stopped: %v", err)
			}
			return
		case ev := <-w.RenewCh():
			if ev != nil && ev.Secret != nil && ev.Secret.Auth != nil {
				c.logFn("vault: token renewed, ttl=%ds", ev.Secret.Auth.LeaseDuration)
			}
		}
	}
}

//
// SECTION 4.  Helpers
//

func splitMount(p string) (mount, rel string) {
	mount, rel, _ = strings.Cut(p, "/")
	return mount, rel
}

func backoff(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
