// internal/auth/token.go
//
// Staff bearer tokens (HS256 JWT).
//
// Context
// -------
// Staff clients send `Authorization: Bearer <jwt>`.  The token carries the
// numeric user id in `user_id` plus the standard `exp`, `iat`, and `iss`
// claims.  Roles are not embedded; the acl middleware reads them from the
// database so revoking a role takes effect immediately.
//
// Notes
// -----
// • Only HMAC signing is accepted; any other alg is rejected before the key
//   is handed out.
// • Oxford commas, two spaces after periods.

package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

var (
	ErrNoToken      = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Issuer signs and verifies staff tokens.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer returns an Issuer.
func NewIssuer(secret, issuer string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue signs a token for userID.
func (i *Issuer) Issue(userID int64) (string, error) {
	now := i.now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"iss":     i.issuer,
		"iat":     now.Unix(),
		"exp":     now.Add(i.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Verify parses raw and returns the user id it carries.
func (i *Issuer) Verify(raw string) (int64, error) {
	claims := jwt.MapClaims{}
	parser := jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}}
	_, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if i.issuer != "" && !claims.VerifyIssuer(i.issuer, true) {
		return 0, fmt.Errorf("%w: wrong issuer", ErrInvalidToken)
	}

	// MapClaims decodes numbers as float64.
	uid, ok := claims["user_id"].(float64)
	if !ok || uid <= 0 {
		return 0, fmt.Errorf("%w: missing user_id", ErrInvalidToken)
	}
	return int64(uid), nil
}

// Middleware rejects requests without a valid bearer token and attaches the
// user id to the context.
func (i *Issuer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearer(r)
		if err == nil {
			var uid int64
			if uid, err = i.Verify(raw); err == nil {
				next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), uid)))
				return
			}
		}
		zap.S().Debugw("auth rejected", "path", r.URL.Path, "err", err)
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	})
}

func bearer(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tok) == "" {
		return "", ErrNoToken
	}
	return strings.TrimSpace(tok), nil
}
