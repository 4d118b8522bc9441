// cmd/web/main.go
//
// DesignWorks sync service – HTTP entry point.
//
// Start-up sequence
// -----------------
//
//  1. Bootstrap via internal/app: config, daily rotating logger (tees to
//     console when running in a TTY), MySQL pool, credential resolver, and
//     the sync, sweeper, and board services.
//
//  2. Build the chi router: access log → recoverer → security headers,
//     then /healthz, /metrics, and the staff-only /api tree.
//
//  3. Serve with the timeouts from config.HTTP.
//
//  4. On SIGINT or SIGTERM stop accepting connections and give in-flight
//     requests up to 20 s to finish.  A sync attempt cut off mid-call
//     leaves its ledger row in_progress, which RecomputeStatus reports as
//     pending.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keefcreative/designworks/internal/app"
	"github.com/keefcreative/designworks/internal/server"
)

const shutdownGrace = 20 * time.Second

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//
	// ── 1.  Bootstrap ───────────────────────────────────────────────────
	//
	a, err := app.New(ctx, runningInTTY())
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer a.Close()

	//
	// ── 2.  Router and server ───────────────────────────────────────────
	//
	srv := server.New(a.Config.HTTP, a.Handler())

	errCh := make(chan error, 1)
	go func() {
		a.Log.Infow("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	//
	// ── 3.  Wait for a signal or a listener failure ─────────────────────
	//
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			a.Log.Errorw("http server", "err", err)
		}
		return
	case <-ctx.Done():
	}

	//
	// ── 4.  Graceful shutdown ───────────────────────────────────────────
	//
	a.Log.Infow("shutting down", "grace", shutdownGrace)
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		a.Log.Warnw("shutdown incomplete", "err", err)
	}
}
