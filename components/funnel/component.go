// components/funnel/component.go
//
// Staff-facing funnel API: request list, board, transitions, drag-and-drop
// interactions, and archive operations.
//
// Context
// -------
// Every route sits behind a bearer token and the "staff" or "admin" role.
// Handlers are thin.  They decode, call funnel.Service or board.Controller,
// and encode the result through writeJSON / writeError.
//
// Notes
// -----
//   - The component owns the trial_request table and the RBAC tables, so
//     Migrations returns both schemas.
package funnel

import (
	"errors"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/yanizio/sportcrm/internal/acl"
	"github.com/yanizio/sportcrm/internal/auth"
	"github.com/yanizio/sportcrm/internal/board"
	"github.com/yanizio/sportcrm/internal/component"
	svc "github.com/yanizio/sportcrm/internal/funnel"
	"github.com/yanizio/sportcrm/internal/trial"
)

// Compile-time assertion: *Component satisfies component.Component.
var _ component.Component = (*Component)(nil)

var validate = validator.New()

// StaffRoles may use every route in this component.
var StaffRoles = []string{"staff", "admin"}

// Component serves /api/requests and /api/board.
type Component struct {
	svc    *svc.Service
	board  *board.Controller
	tokens *auth.Issuer
	roles  acl.RoleSource
	log    *zap.SugaredLogger
}

/*────────────────── component.Component methods ───────────────────────────*/

// Name returns the canonical component key.
func (c *Component) Name() string { return "funnel" }

// Migrations returns the request table and the RBAC tables.
func (c *Component) Migrations(driver string) ([]string, error) {
	reqs, err := trial.Schema(driver)
	if err != nil {
		return nil, err
	}
	rbac, err := acl.Schema(driver)
	if err != nil {
		return nil, err
	}
	return append(reqs, rbac...), nil
}

// Init captures the shared service and controller.
func (c *Component) Init(env component.Env) error {
	if env.Funnel == nil || env.Board == nil {
		return errors.New("funnel component needs a service and a board controller")
	}
	c.svc = env.Funnel
	c.board = env.Board
	c.tokens = env.Tokens
	c.roles = env.Roles
	c.log = env.Log
	if c.log == nil {
		c.log = zap.S()
	}
	return nil
}

// Routes adds the staff API.  Token and role checks are skipped only when
// Env carried no issuer, which is the test wiring.
func (c *Component) Routes(r chi.Router) {
	if c.tokens != nil {
		r.Use(c.tokens.Middleware)
		if c.roles != nil {
			r.Use(acl.RequireRole(c.roles, StaffRoles...))
		}
	}

	r.Route("/api/requests", func(r chi.Router) {
		r.Get("/", c.list)
		r.Get("/board", c.boardColumns)
		r.Get("/stats", c.stats)
		r.Get("/reasons", c.reasons)
		r.Get("/candidates", c.candidates)

		r.Post("/archive", c.batch(c.svc.ArchiveBatch))
		r.Post("/restore", c.batch(c.svc.RestoreBatch))
		r.Post("/archive-successful", c.batch(c.svc.ArchiveSuccessfulBatch))
		r.Post("/archive-old", c.archiveOld)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", c.get)
			r.Patch("/", c.patch)
			r.Post("/transition", c.transition)
			r.Post("/archive", c.single(c.svc.ArchiveOne))
			r.Post("/restore", c.single(c.svc.RestoreOne))
			r.Post("/archive-successful", c.single(c.svc.ArchiveSuccessfulOne))
		})
	})

	r.Route("/api/board/drops", func(r chi.Router) {
		r.Get("/", c.pending)
		r.Post("/", c.drop)
		r.Get("/{iid}", c.interaction)
		r.Post("/{iid}/submit", c.submit)
		r.Post("/{iid}/cancel", c.cancel)
	})
}

// Register component at program start.
func init() { component.Register(&Component{}) }
