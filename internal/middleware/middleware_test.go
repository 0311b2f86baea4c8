package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/yanizio/sportcrm/internal/logger"
)

func TestForceHTTPS(t *testing.T) {
	h := ForceHTTPS(true, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://crm.example.com/api/requests?x=1", nil))
	if rec.Code != http.StatusPermanentRedirect || rec.Header().Get("Location") != "https://crm.example.com/api/requests?x=1" {
		t.Fatalf("redirect: %d %q", rec.Code, rec.Header().Get("Location"))
	}

	req := httptest.NewRequest(http.MethodGet, "http://crm.example.com/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTeapot {
		t.Fatalf("proxied https redirected: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://localhost:8080/", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("localhost redirected: %d", rec.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := Security(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	for _, k := range []string{"Strict-Transport-Security", "X-Frame-Options", "X-Content-Type-Options"} {
		if rec.Header().Get(k) == "" {
			t.Errorf("missing %s", k)
		}
	}
}

func TestRequestIDAndAccessLog(t *testing.T) {
	var got string
	h := RequestID(nil)(AccessLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if logger.FromContext(r.Context()) == nil {
			t.Error("no logger in context")
		}
		got = w.Header().Get(HeaderRequestID)
		_, _ = w.Write([]byte("ok"))
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if _, err := uuid.Parse(rec.Header().Get(HeaderRequestID)); err != nil || got == "" {
		t.Fatalf("request id = %q", rec.Header().Get(HeaderRequestID))
	}

	keep := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, keep)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get(HeaderRequestID) != keep {
		t.Fatalf("inbound id not kept: %q", rec.Header().Get(HeaderRequestID))
	}
}
