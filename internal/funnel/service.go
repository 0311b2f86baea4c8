// internal/funnel/service.go
//
// Funnel service: the single entry point staff-facing code uses to read and
// change trial requests.
//
// Context
// -------
// Service glues the pure pieces together:
//
//	transition.Rules   what a move needs and what it writes
//	listcache.Cache    the owned request list and optimistic writes
//	archive.Processor  marker rewrites, single and batch
//	trial.Store        persistence
//	notify.Notifier    trial-assignment messages
//
// Every single-item write goes through the cache coordinator, so the list a
// view reads always reflects the optimistic value and a failed write always
// rolls back.  Batch writes bypass the coordinator and refresh the list once
// afterwards.
//
// Notes
// -----
//   - Validation runs before any write; a rejected call never reaches the
//     store.
//   - The notification after a TRIAL_ASSIGNED commit runs in the background.
//     Its failure is logged and counted, never returned.
//   - Service implements board.Transitioner.
package funnel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/yanizio/sportcrm/internal/archive"
	"github.com/yanizio/sportcrm/internal/board"
	"github.com/yanizio/sportcrm/internal/listcache"
	"github.com/yanizio/sportcrm/internal/metrics"
	"github.com/yanizio/sportcrm/internal/notify"
	"github.com/yanizio/sportcrm/internal/transition"
	"github.com/yanizio/sportcrm/internal/trial"
)

var validate = validator.New()

// ErrNoCreator is returned by Create when the Service has no trial.Creator.
var ErrNoCreator = errors.New("funnel: submissions are not enabled")

// Deps bundles the collaborators.  Store, Cache, and Rules are required.
type Deps struct {
	Store     trial.Store
	Creator   trial.Creator
	Cache     *listcache.Cache
	Rules     *transition.Rules
	Processor *archive.Processor
	Notifier  notify.Notifier
	Log       *zap.SugaredLogger

	// ThresholdDays is the default age for archive candidates.
	ThresholdDays int
}

// Service is safe for concurrent use.
type Service struct {
	store     trial.Store
	creator   trial.Creator
	cache     *listcache.Cache
	rules     *transition.Rules
	proc      *archive.Processor
	notifier  notify.Notifier
	log       *zap.SugaredLogger
	threshold int
	now       func() time.Time

	bg sync.WaitGroup
}

// New wires a Service.
func New(d Deps) *Service {
	if d.Log == nil {
		d.Log = zap.S()
	}
	if d.Processor == nil {
		d.Processor = archive.New(d.Store, 0, d.Log)
	}
	if d.Rules == nil {
		d.Rules = transition.New(nil)
	}
	return &Service{
		store:     d.Store,
		creator:   d.Creator,
		cache:     d.Cache,
		rules:     d.Rules,
		proc:      d.Processor,
		notifier:  d.Notifier,
		log:       d.Log,
		threshold: d.ThresholdDays,
		now:       time.Now,
	}
}

// Wait blocks until background notifications have finished.
func (s *Service) Wait() { s.bg.Wait() }

// Rules exposes the transition rules (reason catalogue for dialogs).
func (s *Service) Rules() *transition.Rules { return s.rules }

/*──────────────────────────── reads ─────────────────────────────*/

// ArchivedFilter selects which requests List returns.
type ArchivedFilter int

const (
	ActiveOnly ArchivedFilter = iota
	ArchivedOnly
	All
)

// List returns the cached list, loading it on first use.
func (s *Service) List(ctx context.Context, f ArchivedFilter) ([]trial.Request, error) {
	rows, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if f == All {
		return rows, nil
	}
	out := rows[:0]
	for _, r := range rows {
		if isArchived(r) == (f == ArchivedOnly) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Get returns one request, preferring the cached copy.
func (s *Service) Get(ctx context.Context, id int64) (trial.Request, error) {
	if r, ok := s.cache.Get(id); ok {
		return r, nil
	}
	return s.store.Get(ctx, id)
}

// Refresh reloads the cached list.
func (s *Service) Refresh(ctx context.Context) error {
	_, err := s.cache.Refresh(ctx)
	return err
}

func (s *Service) snapshot(ctx context.Context) ([]trial.Request, error) {
	if s.cache.Loaded() {
		return s.cache.Snapshot(), nil
	}
	return s.cache.Refresh(ctx)
}

/*────────────────────────── transitions ─────────────────────────*/

// PerformTransition is the direct entry point.  aux may be nil; a
// reschedule then reuses the known date.
func (s *Service) PerformTransition(ctx context.Context, id int64, to trial.Status, aux *transition.Aux) (trial.Request, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return trial.Request{}, err
	}
	u, err := s.rules.PlanDirect(req, to, aux)
	if err != nil {
		return req, err
	}
	return s.write(ctx, req, u)
}

// Status reads the persisted status of id.  The board checks a drop's
// source column against it.
func (s *Service) Status(ctx context.Context, id int64) (trial.Status, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return r.Status, nil
}

// Stage shows to in the list without persisting it.
func (s *Service) Stage(id int64, to trial.Status) {
	s.cache.Stage(id, func(r *trial.Request) { r.Status = to })
}

// Commit validates aux against the persisted record and writes the move.
// The staged overlay for id is dropped once the write succeeds.
func (s *Service) Commit(ctx context.Context, id int64, to trial.Status, aux transition.Aux) (trial.Request, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return trial.Request{}, err
	}
	u, err := s.rules.Plan(req, to, aux)
	if errors.Is(err, transition.ErrUnchanged) {
		s.cache.Unstage(id, nil)
		return req, err
	}
	if err != nil {
		return req, err
	}
	rec, err := s.write(ctx, req, u)
	if err != nil {
		return trial.Request{}, err
	}
	s.cache.Unstage(id, nil)
	return rec, nil
}

// Revert drops the staged overlay and persists from as a compensating
// write.
func (s *Service) Revert(ctx context.Context, id int64, from trial.Status) (trial.Request, error) {
	setFrom := func(r *trial.Request) { r.Status = from }
	s.cache.Unstage(id, setFrom)
	return s.cache.Mutate(ctx, listcache.Mutation{
		ID:    id,
		Label: "revert",
		Apply: setFrom,
		Commit: func(ctx context.Context) (trial.Request, error) {
			return s.store.UpdateStatus(ctx, id, trial.StatusUpdate{Status: from})
		},
	})
}

func (s *Service) write(ctx context.Context, req trial.Request, u trial.StatusUpdate) (trial.Request, error) {
	rec, err := s.cache.Mutate(ctx, listcache.Mutation{
		ID:    req.ID,
		Label: "transition:" + string(u.Status),
		Apply: u.ApplyTo,
		Commit: func(ctx context.Context) (trial.Request, error) {
			return s.store.UpdateStatus(ctx, req.ID, u)
		},
	})
	if err != nil {
		return trial.Request{}, err
	}
	metrics.TransitionsTotal.WithLabelValues(string(u.Status)).Inc()
	if u.Status == trial.StatusTrialAssigned {
		s.notifyAssigned(ctx, rec)
	}
	return rec, nil
}

func (s *Service) notifyAssigned(ctx context.Context, rec trial.Request) {
	if s.notifier == nil {
		return
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if err := s.notifier.TrialAssigned(nctx, rec); err != nil {
			metrics.NotifyFailuresTotal.Inc()
			s.log.Errorw("trial notification failed", "id", rec.ID, "err", err)
		}
	}()
}

/*──────────────────────────── edits ─────────────────────────────*/

// UpdateFields applies a full-record edit through the coordinator.
func (s *Service) UpdateFields(ctx context.Context, id int64, p trial.FieldsPatch) (trial.Request, error) {
	if err := validate.Struct(p); err != nil {
		return trial.Request{}, &transition.ValidationError{Field: "fields", Reason: err.Error()}
	}
	return s.cache.Mutate(ctx, listcache.Mutation{
		ID:    id,
		Label: "update_fields",
		Apply: p.ApplyTo,
		Commit: func(ctx context.Context) (trial.Request, error) {
			return s.store.UpdateFields(ctx, id, p)
		},
	})
}

// Submission is a public trial request.
type Submission struct {
	ChildName     string    `json:"childName"   validate:"required,max=128"`
	ChildAge      int       `json:"childAge"    validate:"required,min=1,max=99"`
	ParentName    string    `json:"parentName"  validate:"required,max=128"`
	ParentPhone   string    `json:"parentPhone" validate:"required,min=5,max=32"`
	SectionID     int64     `json:"sectionId"   validate:"required,min=1"`
	BranchID      int64     `json:"branchId"    validate:"required,min=1"`
	DesiredDate   time.Time `json:"desiredDate" validate:"required"`
	Comment       string    `json:"comment"     validate:"max=2000"`
	SourceCity    string    `json:"-"`
	SourceCountry string    `json:"-"`
}

// Create stores a public submission as a NEW request.
func (s *Service) Create(ctx context.Context, sub Submission) (trial.Request, error) {
	if s.creator == nil {
		return trial.Request{}, ErrNoCreator
	}
	if err := validate.Struct(sub); err != nil {
		return trial.Request{}, &transition.ValidationError{Field: "submission", Reason: err.Error()}
	}
	rec, err := s.creator.Create(ctx, trial.Request{
		Status:        trial.StatusNew,
		DesiredDate:   sub.DesiredDate,
		Notes:         sub.Comment,
		ChildName:     sub.ChildName,
		ChildAge:      sub.ChildAge,
		ParentName:    sub.ParentName,
		ParentPhone:   sub.ParentPhone,
		SectionID:     sub.SectionID,
		BranchID:      sub.BranchID,
		SourceCity:    sub.SourceCity,
		SourceCountry: sub.SourceCountry,
	})
	if err != nil {
		return trial.Request{}, fmt.Errorf("create submission: %w", err)
	}
	if s.cache.Loaded() {
		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			rctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_, _ = s.cache.Refresh(rctx)
		}()
	}
	return rec, nil
}

var _ board.Transitioner = (*Service)(nil)
