// internal/config/model.go
//
// Typed configuration model for vidcat.
//
// Context
// -------
// These structs are the shape of the tree `loader.go` builds from three
// overlay layers: optional `conf/.env`, `conf/global.yaml`, and
// `VIDCAT_`-prefixed environment overrides.  String values of the form
// `vault:<mount>/<path>#<key>` are swapped for the secret before
// unmarshalling, so the model only ever holds plain strings.
//
// Notes
// -----
//   - Struct tags use `koanf:"…"`.  Durations accept Go syntax ("5s").
//   - `Paths` is filled at runtime; YAML must not try to set it.
//   - Oxford commas, two spaces after periods.
package config

import "time"

//
// Store section
//

// Store points at the document store.  URI usually carries credentials,
// so keep it in Vault and reference it from YAML.
type Store struct {
	URI            string        `koanf:"uri"             validate:"required"`
	Database       string        `koanf:"database"        validate:"required"`
	OpTimeout      time.Duration `koanf:"op_timeout"      validate:"gte=0"`
	ConnectTimeout time.Duration `koanf:"connect_timeout" validate:"gte=0"`
	Timezone       string        `koanf:"timezone"        validate:"required,timezone"`
}

// Location resolves Timezone.  Validation has already vetted the name, so
// a failure here falls back to UTC.
func (s Store) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

//
// Ops section
//

// Ops holds the operations HTTP server settings.
type Ops struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
}

//
// Geo section
//

// Geo locates the optional GeoLite2 database.  Empty disables country
// lookups and every visit records the unknown country.
type Geo struct {
	DBPath string `koanf:"db_path"`
}

//
// Log section
//

type Log struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string // VIDCAT_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load().
type Config struct {
	Store Store `koanf:"store"`
	Ops   Ops   `koanf:"ops"`
	Geo   Geo   `koanf:"geo"`
	Log   Log   `koanf:"log"`
	Paths Paths `koanf:"-"`
}

// defaults fills zero values the YAML may omit.
func (c *Config) defaults() {
	if c.Store.OpTimeout == 0 {
		c.Store.OpTimeout = 5 * time.Second
	}
	if c.Store.ConnectTimeout == 0 {
		c.Store.ConnectTimeout = 10 * time.Second
	}
	if c.Store.Timezone == "" {
		c.Store.Timezone = "UTC"
	}
	if c.Ops.ListenAddr == "" {
		c.Ops.ListenAddr = ":9090"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
