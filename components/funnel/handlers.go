package funnel

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yanizio/sportcrm/internal/archive"
	"github.com/yanizio/sportcrm/internal/board"
	svc "github.com/yanizio/sportcrm/internal/funnel"
	"github.com/yanizio/sportcrm/internal/transition"
	"github.com/yanizio/sportcrm/internal/trial"
)

/*──────────────────────────── reads ────────────────────────────────────────*/

func (c *Component) list(w http.ResponseWriter, r *http.Request) {
	f := svc.ActiveOnly
	switch strings.ToLower(r.URL.Query().Get("archived")) {
	case "", "false":
	case "true":
		f = svc.ArchivedOnly
	case "all":
		f = svc.All
	default:
		badRequest(w, "archived must be true, false, or all")
		return
	}
	rows, err := c.svc.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cards := make([]svc.Card, len(rows))
	for i, row := range rows {
		cards[i] = svc.NewCard(row)
	}
	writeJSON(w, http.StatusOK, cards)
}

func (c *Component) boardColumns(w http.ResponseWriter, r *http.Request) {
	cols, err := c.svc.Board(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cols)
}

func (c *Component) stats(w http.ResponseWriter, r *http.Request) {
	st, err := c.svc.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (c *Component) reasons(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, c.svc.Rules().Reasons())
}

// daysParam reads ?days=N; absent means 0, which the service replaces with
// the configured threshold.
func daysParam(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil && n >= 0
}

func (c *Component) candidates(w http.ResponseWriter, r *http.Request) {
	days, ok := daysParam(r)
	if !ok {
		badRequest(w, "days must be a non-negative integer")
		return
	}
	rows, err := c.svc.Candidates(r.Context(), days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (c *Component) get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		badRequest(w, "invalid id")
		return
	}
	row, err := c.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, svc.NewCard(row))
}

/*──────────────────────────── writes ───────────────────────────────────────*/

func (c *Component) patch(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		badRequest(w, "invalid id")
		return
	}
	var p trial.FieldsPatch
	if err := decode(w, r, &p); err != nil {
		badRequest(w, err.Error())
		return
	}
	if p.Empty() {
		badRequest(w, "nothing to update")
		return
	}
	row, err := c.svc.UpdateFields(r.Context(), id, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, svc.NewCard(row))
}

// transitionBody is the direct transition payload.
type transitionBody struct {
	Status        string     `json:"status"`
	ScheduledDate *time.Time `json:"scheduledDate,omitempty"`
	Reasons       []string   `json:"reasons,omitempty"`
	Comment       string     `json:"comment,omitempty"`
}

func (b transitionBody) aux() *transition.Aux {
	if b.ScheduledDate == nil && len(b.Reasons) == 0 && b.Comment == "" {
		return nil
	}
	return &transition.Aux{ScheduledDate: b.ScheduledDate, Reasons: b.Reasons, Comment: b.Comment}
}

func (c *Component) transition(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		badRequest(w, "invalid id")
		return
	}
	var body transitionBody
	if err := decode(w, r, &body); err != nil {
		badRequest(w, err.Error())
		return
	}
	to, err := trial.ParseStatus(body.Status)
	if err != nil {
		writeError(w, r, &transition.ValidationError{Field: "status", Reason: err.Error()})
		return
	}
	row, err := c.svc.PerformTransition(r.Context(), id, to, body.aux())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, svc.NewCard(row))
}

func (c *Component) single(op func(context.Context, int64) (trial.Request, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r)
		if !ok {
			badRequest(w, "invalid id")
			return
		}
		row, err := op(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, svc.NewCard(row))
	}
}

type idsBody struct {
	IDs []int64 `json:"ids" validate:"required,min=1,max=1000,dive,min=1"`
}

func (c *Component) batch(op func(context.Context, []int64) archive.Summary) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body idsBody
		if err := decode(w, r, &body); err != nil {
			badRequest(w, err.Error())
			return
		}
		if err := validate.Struct(body); err != nil {
			writeError(w, r, &transition.ValidationError{Field: "ids", Reason: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, op(r.Context(), body.IDs))
	}
}

type daysBody struct {
	Days int `json:"days" validate:"min=0,max=3650"`
}

func (c *Component) archiveOld(w http.ResponseWriter, r *http.Request) {
	var body daysBody
	if err := decode(w, r, &body); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := validate.Struct(body); err != nil {
		writeError(w, r, &transition.ValidationError{Field: "days", Reason: err.Error()})
		return
	}
	sum, err := c.svc.ArchiveOld(r.Context(), body.Days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

/*──────────────────────────── board drops ──────────────────────────────────*/

func (c *Component) pending(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, c.board.Pending())
}

func (c *Component) drop(w http.ResponseWriter, r *http.Request) {
	var m board.Move
	if err := decode(w, r, &m); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := validate.Struct(m); err != nil {
		writeError(w, r, &transition.ValidationError{Field: "move", Reason: err.Error()})
		return
	}
	it, err := c.board.Drop(r.Context(), m)
	if err != nil {
		writeError(w, r, err)
		return
	}
	code := http.StatusOK
	if it.State == board.PendingAuxiliary {
		code = http.StatusAccepted
	}
	writeJSON(w, code, it)
}

func (c *Component) interaction(w http.ResponseWriter, r *http.Request) {
	it, err := c.board.Get(chi.URLParam(r, "iid"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (c *Component) submit(w http.ResponseWriter, r *http.Request) {
	var aux transition.Aux
	if err := decode(w, r, &aux); err != nil {
		badRequest(w, err.Error())
		return
	}
	it, err := c.board.Submit(r.Context(), chi.URLParam(r, "iid"), aux)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (c *Component) cancel(w http.ResponseWriter, r *http.Request) {
	it, err := c.board.Cancel(r.Context(), chi.URLParam(r, "iid"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}
