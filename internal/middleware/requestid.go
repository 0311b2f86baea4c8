// internal/middleware/requestid.go
//
// Request id and access log.
//
// Context
// -------
// RequestID accepts an inbound `X-Request-ID` when it looks sane, otherwise
// mints a uuid.  The id is echoed in the response header and bound to a
// request-scoped zap logger (logger.WithContext) so every log line a handler
// writes can be joined back to the request.
//
// AccessLog writes one INFO line per request after the handler returns.
//
// Notes
// -----
// • Place RequestID outermost so AccessLog and handlers see the id.
// • Oxford commas, two spaces after periods.

package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yanizio/sportcrm/internal/logger"
)

// HeaderRequestID is the header carrying the id in both directions.
const HeaderRequestID = "X-Request-ID"

// RequestID attaches an id and a request-scoped logger to the context.
func RequestID(base *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderRequestID)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}
			w.Header().Set(HeaderRequestID, id)

			l := base
			if l == nil {
				l = zap.S()
			}
			ctx := logger.WithContext(r.Context(), l.With("request_id", id))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// AccessLog logs method, path, status, size, and latency.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		if sw.status == 0 {
			sw.status = http.StatusOK
		}
		logger.FromContext(r.Context()).Infow("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"bytes", sw.bytes,
			"dur", time.Since(start),
		)
	})
}
