// cmd/web/main.go
//
// Sports-school CRM – HTTP entry point.
//
// Request life-cycle
// ------------------
//
//  1. Load config (conf/global.yaml → .env → CRM_* env → vault: secrets).
//
//  2. Start daily rotating logger (tees to console when running in a TTY).
//
//  3. Open the database, run component migrations, and wire the funnel.
//
//  4. Expose Prometheus /metrics and a /health probe.
//
//  5. Build the chi router:
//
//     • request id + access log   – middleware.RequestID / AccessLog
//     • security headers          – middleware.Security
//     • components                – component.Mount (funnel, inquiry)
//
//  6. Wrap with ForceHTTPS so non-localhost HTTP requests are 308-redirected
//     when http.force_https is set.
//
//  7. Serve until SIGINT/SIGTERM, then drain for up to 20 s.
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

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yanizio/sportcrm/internal/app"
	"github.com/yanizio/sportcrm/internal/component"
	"github.com/yanizio/sportcrm/internal/config"
	"github.com/yanizio/sportcrm/internal/logger"
	"github.com/yanizio/sportcrm/internal/middleware"
	"github.com/yanizio/sportcrm/internal/server"

	_ "github.com/yanizio/sportcrm/components/funnel"
	_ "github.com/yanizio/sportcrm/components/inquiry"
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
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logOut, err := logger.New(cfg.Paths.Root, runningInTTY())
	if err != nil {
		log.Fatalf("start logger: %v", err)
	}
	defer func() { _ = logOut.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//
	// ── 1.  Object graph ────────────────────────────────────────────────
	//
	a, err := app.Build(ctx, cfg, logOut, app.Options{Migrate: true, Geo: true})
	if err != nil {
		logOut.Fatalf("bootstrap: %v", err)
	}
	defer a.Close()

	// Warm the list so the first board read is served from memory.
	if err := a.Funnel.Refresh(ctx); err != nil {
		logOut.Warnw("initial list load failed", "err", err)
	}

	//
	// ── 2.  Router ──────────────────────────────────────────────────────
	//
	r := chi.NewRouter()
	r.Use(middleware.RequestID(logOut))
	r.Use(middleware.AccessLog)
	r.Use(middleware.Security)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := a.DB.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	if err := component.Mount(r, a.Env()); err != nil {
		logOut.Fatalf("mount components: %v", err)
	}

	//
	// ── 3.  Serve with graceful shutdown ────────────────────────────────
	//
	srv := server.New(cfg.HTTP.ListenAddr, middleware.ForceHTTPS(cfg.HTTP.ForceHTTPS, r), server.Timeouts{
		Read:  cfg.HTTP.ReadTimeout,
		Write: cfg.HTTP.WriteTimeout,
		Idle:  cfg.HTTP.IdleTimeout,
	})

	errc := make(chan error, 1)
	go func() {
		logOut.Infow("listening", "addr", cfg.HTTP.ListenAddr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logOut.Errorw("http server", "err", err)
		}
	case <-ctx.Done():
		logOut.Infow("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logOut.Warnw("graceful shutdown", "err", err)
		}
	}
}
