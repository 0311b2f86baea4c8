// components/inquiry/inquiry.go
//
// Public trial-request form endpoint.
//
// Context
// -------
// POST /api/inquiries is the only unauthenticated write.  A parent fills in
// the website form and the submission lands in the funnel as a NEW request.
//
// Workflow
// --------
//  1. requestinfo.Enrich parses the UA and looks up the client IP.
//  2. Automated clients (crawlers, curl, blank UA) are turned away with 403.
//  3. The JSON body is decoded into funnel.Submission and validated there.
//  4. City and country from GeoLite2, when available, are stored with the
//     request.
//
// Notes
// -----
//   - Outcomes are counted in crm_inquiries_total{outcome}.
package inquiry

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/yanizio/sportcrm/internal/component"
	"github.com/yanizio/sportcrm/internal/funnel"
	"github.com/yanizio/sportcrm/internal/logger"
	"github.com/yanizio/sportcrm/internal/metrics"
	"github.com/yanizio/sportcrm/internal/requestinfo"
	"github.com/yanizio/sportcrm/internal/transition"
)

// compile-time assertion
var _ component.Component = (*Comp)(nil)

// Comp implements component.Component.
type Comp struct {
	svc *funnel.Service
	log *zap.SugaredLogger
}

func (c *Comp) Name() string                         { return "inquiry" }
func (c *Comp) Migrations(string) ([]string, error) { return nil, nil }

func (c *Comp) Init(env component.Env) error {
	if env.Funnel == nil {
		return errors.New("inquiry component needs the funnel service")
	}
	c.svc = env.Funnel
	c.log = env.Log
	if c.log == nil {
		c.log = zap.S()
	}
	return nil
}

func (c *Comp) Routes(r chi.Router) {
	r.Use(requestinfo.Enrich)
	r.Post("/api/inquiries", c.create)
}

type created struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

type failure struct {
	Error string `json:"error"`
}

func reply(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (c *Comp) create(w http.ResponseWriter, r *http.Request) {
	ri := requestinfo.FromContext(r.Context())
	if ri == nil || ri.UA.Automated() {
		metrics.InquiriesTotal.WithLabelValues("bot").Inc()
		reply(w, http.StatusForbidden, failure{Error: "automated submissions are not accepted"})
		return
	}

	var sub funnel.Submission
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sub); err != nil {
		metrics.InquiriesTotal.WithLabelValues("rejected").Inc()
		reply(w, http.StatusBadRequest, failure{Error: "malformed submission"})
		return
	}
	sub.SourceCity = ri.Geo.City
	sub.SourceCountry = ri.Geo.CountryISO

	rec, err := c.svc.Create(r.Context(), sub)
	switch {
	case errors.Is(err, transition.ErrValidation):
		metrics.InquiriesTotal.WithLabelValues("rejected").Inc()
		reply(w, http.StatusUnprocessableEntity, failure{Error: err.Error()})
		return
	case err != nil:
		metrics.InquiriesTotal.WithLabelValues("error").Inc()
		logger.FromContext(r.Context()).Errorw("store inquiry", "err", err)
		reply(w, http.StatusBadGateway, failure{Error: "could not store the request, please try again"})
		return
	}

	metrics.InquiriesTotal.WithLabelValues("created").Inc()
	logger.FromContext(r.Context()).Infow("inquiry created",
		"id", rec.ID, "country", sub.SourceCountry, "browser", ri.UA.Browser)
	reply(w, http.StatusCreated, created{ID: rec.ID, Status: string(rec.Status)})
}

// Register component at package init.
func init() {
	component.Register(&Comp{})
}
