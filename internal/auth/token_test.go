package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIssueVerify(t *testing.T) {
	iss := NewIssuer("0123456789abcdef0123", "sportcrm", time.Hour)
	tok, err := iss.Issue(42)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	uid, err := iss.Verify(tok)
	if err != nil || uid != 42 {
		t.Fatalf("Verify = %d, %v", uid, err)
	}

	other := NewIssuer("another-secret-of-length", "sportcrm", time.Hour)
	if _, err := other.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret accepted: %v", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	iss := NewIssuer("0123456789abcdef0123", "sportcrm", time.Minute)
	iss.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, _ := iss.Issue(1)
	iss.now = time.Now
	if _, err := iss.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token accepted: %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	iss := NewIssuer("0123456789abcdef0123", "", time.Hour)
	var seen int64
	h := iss.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status %d", rec.Code)
	}

	tok, _ := iss.Issue(7)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || seen != 7 {
		t.Fatalf("status %d, user %d", rec.Code, seen)
	}
}
