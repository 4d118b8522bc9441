// internal/server/timeouts.go
//
// HTTP server helper with robust timeouts.
//
// Production hardening recommends:
//
//   • ReadTimeout   – abort slow-loris headers (10 s)
//   • WriteTimeout  – cap total response time (15 s)
//   • IdleTimeout   – close keep-alives on idle clients (60 s)
//
// Values come from config.HTTP; zero fields fall back to the defaults
// above so cmd/web doesn't repeat boilerplate.
//

package server

import (
	"net/http"
	"time"

	"github.com/keefcreative/designworks/internal/config"
)

// New constructs an *http.Server from the HTTP config section.
func New(cfg config.HTTP, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  orDefault(cfg.ReadTimeout, 10*time.Second),
		WriteTimeout: orDefault(cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:  orDefault(cfg.IdleTimeout, 60*time.Second),
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
