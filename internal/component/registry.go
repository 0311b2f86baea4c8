// internal/component/registry.go
//
// Component registry (cycle-free).
//
// Each concrete component lives under components/<name> and calls
// component.Register() in an init() function.  cmd/web blank-imports the
// components it serves, builds an Env once at boot, and hands it to Mount,
// which runs every Init and then lets each component add its routes to a
// group of the root router.  cmd/crmctl blank-imports the same packages so
// Migrate sees the same schema.

package component

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yanizio/sportcrm/internal/acl"
	"github.com/yanizio/sportcrm/internal/auth"
	"github.com/yanizio/sportcrm/internal/board"
	"github.com/yanizio/sportcrm/internal/config"
	"github.com/yanizio/sportcrm/internal/database"
	"github.com/yanizio/sportcrm/internal/funnel"
)

// Env exposes process-wide resources to Components during Init.
type Env struct {
	DB     *sqlx.DB
	Config *config.Config
	Log    *zap.SugaredLogger
	Funnel *funnel.Service
	Board  *board.Controller
	Tokens *auth.Issuer
	Roles  acl.RoleSource
}

// Component contract.
//
// Migrations(driver) may return nil if the component has no schema.
// Init is called once, before Routes, with the shared Env.  Routes adds
// absolute paths (e.g. "/api/requests") to the group it is given; the
// group is private to the component, so r.Use stays local.
type Component interface {
	Name() string
	Init(Env) error
	Routes(r chi.Router)
	Migrations(driver string) ([]string, error)
}

var (
	mu       sync.RWMutex
	registry = map[string]Component{}
)

// Register is invoked from component init() functions.
func Register(c Component) {
	mu.Lock()
	registry[c.Name()] = c
	mu.Unlock()
}

// All returns every registered component ordered by name.
func All() []Component {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Component, 0, len(registry))
	for _, c := range registry {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Migrate applies every component's schema in registry order.
func Migrate(ctx context.Context, db *sqlx.DB, driver string) error {
	for _, c := range All() {
		stmts, err := c.Migrations(driver)
		if err != nil {
			return fmt.Errorf("component %s: %w", c.Name(), err)
		}
		if len(stmts) == 0 {
			continue
		}
		if err := database.Migrate(ctx, db, stmts); err != nil {
			return fmt.Errorf("component %s: %w", c.Name(), err)
		}
	}
	return nil
}

// Mount initialises every component and mounts its router on r.
func Mount(r chi.Router, env Env) error {
	if env.Log == nil {
		env.Log = zap.S()
	}
	for _, c := range All() {
		if err := c.Init(env); err != nil {
			return fmt.Errorf("init component %s: %w", c.Name(), err)
		}
		r.Group(c.Routes)
		env.Log.Infow("component mounted", "component", c.Name())
	}
	return nil
}
