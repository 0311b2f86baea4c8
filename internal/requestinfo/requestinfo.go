//
//  internal/requestinfo/requestinfo.go
//
//  Lightweight types and helpers that collect per-request metadata
//  (user-agent fingerprint, IP + geolocation, and timestamp).
//  These structs are inert.  They contain no pointers to database
//  handles or large buffers, so they are safe to log or JSON-encode.
//
//  The public inquiry endpoint uses them to reject automated clients and
//  to record where a submission came from.
//
//  Dependencies
//  • internal/ua                         (UA parsing via uasurfer)
//  • github.com/oschwald/geoip2-golang   (MaxMind lookup)
//

package requestinfo

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oschwald/geoip2-golang"

	"github.com/yanizio/sportcrm/internal/ua"
)

//
//  -----------------------------
//  Struct definitions
//  -----------------------------
//

// Geo holds IP-based geolocation hints.
// These are best-effort and may be empty if the DB has no match.
type Geo struct {
	IP         net.IP // Left-most client address
	CountryISO string // "US", "CA", "FR", ...
	City       string // "Chicago", "Paris", ...
}

// RequestInfo is attached to the request context by Enrich.
type RequestInfo struct {
	UA          ua.Info
	PrimaryLang string // First tag from Accept-Language ("en", "es", ...)
	Geo         Geo
	Timestamp   time.Time
}

//
//  -----------------------------
//  Package-level state
//  -----------------------------
//

// cityLookup is the minimal surface of *geoip2.Reader we need.
type cityLookup interface {
	City(ip net.IP) (*geoip2.City, error)
}

// geoReader is a process-wide MaxMind handle, nil when no DB is configured.
var geoReader atomic.Pointer[cityLookup]

// InitGeo opens the GeoLite2-City database.  An empty path disables geo
// lookups; Geo then carries only the IP.
func InitGeo(dbPath string) error {
	if dbPath == "" {
		geoReader.Store(nil)
		return nil
	}
	r, err := geoip2.Open(dbPath)
	if err != nil {
		return fmt.Errorf("requestinfo: open GeoLite2 DB: %w", err)
	}
	var l cityLookup = r
	geoReader.Store(&l)
	return nil
}

//
//  -----------------------------
//  Public helper: FromContext
//  -----------------------------
//

type ctxKey struct{} // unexported, collision-proof

// FromContext returns the pointer previously stored by Enrich.
// It returns nil if the middleware has not run.
func FromContext(ctx context.Context) *RequestInfo {
	v, _ := ctx.Value(ctxKey{}).(*RequestInfo)
	return v
}

//
//  -----------------------------
//  Internal helpers
//  -----------------------------
//

// primaryLang extracts the first language subtag before any ";q=" rule.
func primaryLang(al string) string {
	if al == "" {
		return ""
	}
	parts := strings.Split(al, ",")
	tag := strings.TrimSpace(parts[0])
	if i := strings.Index(tag, ";"); i != -1 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}

// lookupGeo returns best-effort Geo data using the global reader.
func lookupGeo(ip net.IP) Geo {
	p := geoReader.Load()
	if p == nil || ip == nil {
		return Geo{IP: ip}
	}
	rec, err := (*p).City(ip)
	if err != nil {
		return Geo{IP: ip}
	}
	return Geo{
		IP:         ip,
		CountryISO: rec.Country.IsoCode,
		City:       rec.City.Names["en"],
	}
}
