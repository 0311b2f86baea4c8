// internal/config/model.go
//
// Typed configuration model for the CRM.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                       – dotenv values,
//   • `conf/global.yaml`                    – primary static file,
//   • `CRM_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the Vault client *before* unmarshalling, so the model never
// stores Vault URIs, only plain strings.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.
//   • Oxford commas, two spaces after periods.  No em-dash.

package config

import "time"

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr   string        `koanf:"listen_addr"   validate:"required,hostname_port"`
	ForceHTTPS   bool          `koanf:"force_https"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"`
}

//
// Database section
//

// Database selects the driver and carries the DSN.  When Password is set,
// every `%s` in DSN is replaced by it so the secret can live in Vault while
// the template stays in YAML.
type Database struct {
	Driver   string `koanf:"driver"   validate:"required,oneof=mysql sqlite pgx"`
	DSN      string `koanf:"dsn"      validate:"required"`
	Password string `koanf:"password"`
	MaxOpen  int    `koanf:"max_open" validate:"gte=0"`
	MaxIdle  int    `koanf:"max_idle" validate:"gte=0"`
}

//
// Auth section
//

// Auth configures staff bearer tokens.
type Auth struct {
	JWTSecret string        `koanf:"jwt_secret" validate:"required,min=16"`
	TokenTTL  time.Duration `koanf:"token_ttl"`
	Issuer    string        `koanf:"issuer"`
}

//
// Funnel section
//

// Funnel tunes the request lifecycle core.
type Funnel struct {
	ArchiveThresholdDays int               `koanf:"archive_threshold_days" validate:"gte=1"`
	RefreshDelay         time.Duration     `koanf:"refresh_delay"`
	BatchConcurrency     int               `koanf:"batch_concurrency"      validate:"gte=0"`
	PendingCapacity      int               `koanf:"pending_capacity"       validate:"gte=0"`
	RefusalReasons       map[string]string `koanf:"refusal_reasons"`
}

//
// Notify and Geo sections
//

// Notify controls trial-assignment messages.
type Notify struct {
	Enabled bool   `koanf:"enabled"`
	From    string `koanf:"from"`
}

// Geo points at an optional MaxMind City database.
type Geo struct {
	DBPath string `koanf:"db_path"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string // CRM_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	HTTP     HTTP     `koanf:"http"`
	Database Database `koanf:"database"`
	Auth     Auth     `koanf:"auth"`
	Funnel   Funnel   `koanf:"funnel"`
	Notify   Notify   `koanf:"notify"`
	Geo      Geo      `koanf:"geo"`
	Paths    Paths    `koanf:"-"`
}

// ResolvedDSN returns the database DSN with the password spliced in.
func (d Database) ResolvedDSN() string {
	if d.Password == "" {
		return d.DSN
	}
	return replaceVerb(d.DSN, d.Password)
}
