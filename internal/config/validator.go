// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// `Load` calls `validateStruct` immediately after it unmarshals the merged
// Koanf tree into a `Config` instance and applies defaults.  Any tag
// mismatch aborts startup, so the binary never runs with partial or
// malformed configuration.
//
// Notes
// -----
//   • Oxford commas, two spaces after periods.

package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

//
// validator instance (package-level singleton)
//

var v = validator.New()

//
// public API
//

// validateStruct returns the first validation error, or nil on success.
func validateStruct(c *Config) error {
	return v.Struct(c)
}

// applyDefaults fills zero values the YAML may omit.
func applyDefaults(c *Config) {
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 15 * time.Second
	}
	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = 60 * time.Second
	}
	if c.Database.MaxOpen == 0 {
		c.Database.MaxOpen = 15
	}
	if c.Database.MaxIdle == 0 {
		c.Database.MaxIdle = 5
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 12 * time.Hour
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "sportcrm"
	}
	if c.Funnel.ArchiveThresholdDays == 0 {
		c.Funnel.ArchiveThresholdDays = 30
	}
	if c.Funnel.RefreshDelay == 0 {
		c.Funnel.RefreshDelay = 500 * time.Millisecond
	}
}

func replaceVerb(tmpl, secret string) string {
	return strings.ReplaceAll(tmpl, "%s", secret)
}
