// internal/app/app.go
//
// Process bootstrap shared by cmd/web and cmd/crmctl.
//
// Context
// -------
// Both binaries need the same object graph: a pool, the request
// repository, the list cache, and the funnel service.  Build assembles it
// once from a validated *config.Config, so the CLI exercises exactly the
// code path the server runs.
//
// Workflow
// --------
//  1. Open the pool with retries (database.OpenWithOptions).
//  2. Optionally run component migrations.
//  3. Wire repository → list cache → funnel service → board controller.
//  4. Open the GeoLite2 reader when configured.
//
// Notes
// -----
//   - Close stops the list cache, waits for background notifications, and
//     closes the pool, in that order.
package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yanizio/sportcrm/internal/acl"
	"github.com/yanizio/sportcrm/internal/archive"
	"github.com/yanizio/sportcrm/internal/auth"
	"github.com/yanizio/sportcrm/internal/board"
	"github.com/yanizio/sportcrm/internal/component"
	"github.com/yanizio/sportcrm/internal/config"
	"github.com/yanizio/sportcrm/internal/database"
	"github.com/yanizio/sportcrm/internal/funnel"
	"github.com/yanizio/sportcrm/internal/listcache"
	"github.com/yanizio/sportcrm/internal/notify"
	"github.com/yanizio/sportcrm/internal/requestinfo"
	"github.com/yanizio/sportcrm/internal/transition"
	"github.com/yanizio/sportcrm/internal/trial"
)

// App holds the wired object graph.
type App struct {
	Config *config.Config
	Log    *zap.SugaredLogger
	DB     *sqlx.DB
	Repo   *trial.Repository
	Cache  *listcache.Cache
	Funnel *funnel.Service
	Board  *board.Controller
	Tokens *auth.Issuer
}

// Options controls optional bootstrap steps.
type Options struct {
	Migrate bool // run component.Migrate after connecting
	Geo     bool // open the GeoLite2 database
}

// Build connects and wires everything.  On error nothing is left open.
func Build(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger, o Options) (*App, error) {
	if log == nil {
		log = zap.S()
	}

	dbOpts := database.Defaults()
	if cfg.Database.MaxOpen > 0 {
		dbOpts.MaxOpen = cfg.Database.MaxOpen
	}
	if cfg.Database.MaxIdle > 0 {
		dbOpts.MaxIdle = cfg.Database.MaxIdle
	}
	db, err := database.OpenWithOptions(ctx, cfg.Database.Driver, cfg.Database.ResolvedDSN(), dbOpts)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	log.Infow("database online", "driver", cfg.Database.Driver)

	if o.Migrate {
		if err := component.Migrate(ctx, db, cfg.Database.Driver); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	if o.Geo {
		if err := requestinfo.InitGeo(cfg.Geo.DBPath); err != nil {
			log.Warnw("geo lookups disabled", "err", err)
		}
	}

	repo := trial.NewRepository(db)
	lc := listcache.New(repo,
		listcache.WithRefreshDelay(cfg.Funnel.RefreshDelay),
		listcache.WithLogger(log.Named("listcache")))

	svc := funnel.New(funnel.Deps{
		Store:         repo,
		Creator:       repo,
		Cache:         lc,
		Rules:         transition.New(cfg.Funnel.RefusalReasons),
		Processor:     archive.New(repo, cfg.Funnel.BatchConcurrency, log.Named("archive")),
		Notifier:      notify.New(notify.LogQueue{}, cfg.Notify.From, cfg.Notify.Enabled),
		Log:           log.Named("funnel"),
		ThresholdDays: cfg.Funnel.ArchiveThresholdDays,
	})

	return &App{
		Config: cfg,
		Log:    log,
		DB:     db,
		Repo:   repo,
		Cache:  lc,
		Funnel: svc,
		Board:  board.New(svc, cfg.Funnel.PendingCapacity, log.Named("board")),
		Tokens: auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL),
	}, nil
}

// Env exposes the graph to HTTP components.
func (a *App) Env() component.Env {
	return component.Env{
		DB:     a.DB,
		Config: a.Config,
		Log:    a.Log,
		Funnel: a.Funnel,
		Board:  a.Board,
		Tokens: a.Tokens,
		Roles:  acl.DBSource{DB: a.DB.DB},
	}
}

// Close releases resources.
func (a *App) Close() {
	a.Cache.Close()
	a.Funnel.Wait()
	if err := a.DB.Close(); err != nil {
		a.Log.Warnw("close database", "err", err)
	}
}
