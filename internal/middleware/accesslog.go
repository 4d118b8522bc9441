// internal/middleware/accesslog.go
//
// Per-request correlation id and access log.
//
/*
Context
--------
AccessLog sits first in the chain.  For every request it:

  1. Reuses an inbound X-Request-ID or mints a UUID, and echoes it back.
  2. Extracts the left-most client IP from X-Forwarded-For or X-Real-IP,
     falling back to `r.RemoteAddr`.
  3. Attaches `request_id` to the context logger (logger.With), so every
     sync attempt logged further down carries it.
  4. Logs one INFO line when the handler returns: method, route, status,
     bytes, and duration.

Notes
-----
  • /healthz and /metrics are logged at DEBUG to keep scrapes quiet.
  • Oxford commas, two spaces after periods.  No em dash.
*/
package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keefcreative/designworks/internal/logger"
)

// RequestIDHeader carries the correlation id in both directions.
const RequestIDHeader = "X-Request-ID"

/*──────────────────────────── middleware ───────────────────────────────────*/

// AccessLog wraps next with correlation and access logging.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := logger.With(r.Context(), "request_id", id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		log := logger.FromContext(ctx)
		fields := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", ClientIP(r),
		}
		switch {
		case r.URL.Path == "/healthz" || r.URL.Path == "/metrics":
			log.Debugw("http request", fields...)
		case rec.status >= 500:
			log.Warnw("http request", fields...)
		default:
			log.Infow("http request", fields...)
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

/*──────────────────────────── client IP helper ─────────────────────────────*/

// ClientIP returns the left-most parseable address from X-Forwarded-For or
// X-Real-IP, falling back to r.RemoteAddr ("ip:port").  Empty when none
// parses.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip.String()
			}
		}
	}
	if xrip := r.Header.Get("X-Real-Ip"); xrip != "" {
		if ip := net.ParseIP(strings.TrimSpace(xrip)); ip != nil {
			return ip.String()
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip.String()
		}
	}
	return ""
}
