// internal/config/loader.go
//
// Configuration loader.
//
/*
Context
--------
`Load()` builds one immutable `Config` from three layers (highest
precedence last):

  1. Optional `<root>/conf/.env`, exported into the process environment.
  2. `conf/global.yaml`.
  3. Environment variables prefixed `VIDCAT_`, where `__` maps to “.”
     (e.g., `VIDCAT_STORE__URI → store.uri`).

After merging, every string that starts with `vault:` is handed to the
Secrets resolver and replaced by the secret.  The tree is then
unmarshalled, defaulted, validated, stamped with the runtime root, and
cached in an `atomic.Pointer` for lock-free reads.

Instrumentation
---------------
  • DEBUG spans: root discovery, YAML read, secret resolution.
  • ERROR spans: YAML parse, env overlay, unmarshal, validation failures.
  • INFO span: final “config loaded” with key highlights (never secrets).
  • Logs go through `zap.S()` so early boot issues surface before the
    file logger is installed.

Notes
-----
  • `rootDir()` climbs the cwd tree until it finds `conf/global.yaml`, so
    `go run ./cmd/vidcat` works from any sub-directory.
  • Oxford commas, two spaces after periods.
*/
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

const (
	envPrefix   = "VIDCAT_"
	vaultPrefix = "vault:"
)

var current atomic.Pointer[Config]

// Secrets resolves `vault:` references.  *vault.Lazy satisfies it.
type Secrets interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves VIDCAT_ROOT or climbs directories until conf/global.yaml
// is found.  Falls back to the executable heuristic for a bin/ layout.
func rootDir() string {
	if r := os.Getenv(envPrefix + "ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", "global.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	exe, _ := os.Executable()
	if filepath.Base(filepath.Dir(exe)) == "bin" {
		return filepath.Dir(filepath.Dir(exe))
	}
	return wd
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load reads .env, YAML, and env overrides, resolves secrets, validates,
// and caches the Config.  secrets may be nil when no value references
// Vault.
func Load(ctx context.Context, secrets Secrets) (*Config, error) {
	root := rootDir()
	zap.S().Debugw("config root resolved", "root", root)

	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")

	yamlPath := filepath.Join(root, "conf", "global.yaml")
	if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
		zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
		return nil, err
	}
	zap.S().Debugw("config yaml loaded", "file", yamlPath)

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	if err := resolveSecrets(ctx, k, secrets); err != nil {
		zap.S().Errorw("config secret resolution failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, err
	}

	cfg.defaults()
	cfg.Paths.Root = root
	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	current.Store(&cfg)
	zap.S().Infow("config loaded",
		"database", cfg.Store.Database,
		"timezone", cfg.Store.Timezone,
		"listen_addr", cfg.Ops.ListenAddr,
		"geo", cfg.Geo.DBPath != "",
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

// envKey maps VIDCAT_STORE__OP_TIMEOUT to store.op_timeout.
func envKey(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	return strings.ToLower(strings.ReplaceAll(s, "__", "."))
}

// resolveSecrets swaps every `vault:` string in k for its secret.
func resolveSecrets(ctx context.Context, k *koanf.Koanf, secrets Secrets) error {
	for _, key := range k.Keys() {
		raw, ok := k.Get(key).(string)
		if !ok || !strings.HasPrefix(raw, vaultPrefix) {
			continue
		}
		if secrets == nil {
			return fmt.Errorf("config %s references vault but no secret resolver is configured", key)
		}
		val, err := secrets.Resolve(ctx, raw)
		if err != nil {
			return fmt.Errorf("config %s: %w", key, err)
		}
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("config %s: %w", key, err)
		}
		zap.S().Debugw("config secret resolved", "key", key)
	}
	return nil
}

func Get() *Config { return current.Load() }
