// internal/board/controller.go
//
// Drag-and-drop transition controller.
//
// Context
// -------
// Moving a card between funnel columns is a small state machine:
//
//	Idle ──drop (no aux)──────────────▶ Committed
//	Idle ──drop (aux needed)──▶ PendingAuxiliary ──submit──▶ Committed
//	                                   │
//	                                   └──cancel──▶ Cancelled ──▶ Idle
//
// While PendingAuxiliary the target status is staged in the list cache, so
// the card stays in the destination column, but nothing has been written.
// Cancel issues an explicit compensating write of the source status.
//
// Workflow
// --------
//  1. Drop rejects same-column moves before any state change.
//  2. Targets needing no auxiliary data commit through one call.
//  3. Other targets are staged and parked in a bounded registry keyed by a
//     uuid.  Overflow evicts the oldest drop, which is cancelled.
//  4. Submit validates and commits.  Validation and persistence failures
//     both leave the interaction pending so the dialog can retry.
//
// Notes
// -----
//   - Only one Submit or Cancel runs per interaction at a time (ErrBusy).
//   - Only one drop per request is in flight at a time (ErrAlreadyPending).
//   - The source column is read back from the Transitioner.  A client whose
//     board is stale gets ErrStaleSource, and Cancel reverts to the status
//     read at drop time, never to client input.
//   - The controller holds no request data.  Everything goes through the
//     Transitioner, which owns validation and the cache.
package board

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yanizio/sportcrm/internal/cache"
	"github.com/yanizio/sportcrm/internal/metrics"
	"github.com/yanizio/sportcrm/internal/transition"
	"github.com/yanizio/sportcrm/internal/trial"
)

// DefaultCapacity bounds the number of parked drops.
const DefaultCapacity = 256

var (
	ErrSameColumn         = errors.New("card dropped onto its own column")
	ErrUnknownInteraction = errors.New("unknown or finished interaction")
	ErrNoPending          = errors.New("interaction is not waiting for auxiliary data")
	ErrBusy               = errors.New("interaction is being processed")
	ErrStaleSource        = errors.New("card is no longer in the source column")
	ErrAlreadyPending     = errors.New("request already has a drop in flight")
)

// State of one drop interaction.
type State int

const (
	Idle State = iota
	PendingAuxiliary
	Committed
	Cancelled
)

func (s State) String() string {
	switch s {
	case PendingAuxiliary:
		return "pending_auxiliary"
	case Committed:
		return "committed"
	case Cancelled:
		return "cancelled"
	}
	return "idle"
}

// MarshalText renders State as its snake_case name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Transitioner performs the actual staging and writes.  funnel.Service
// implements it.
type Transitioner interface {
	Status(ctx context.Context, id int64) (trial.Status, error)
	Stage(id int64, to trial.Status)
	Commit(ctx context.Context, id int64, to trial.Status, aux transition.Aux) (trial.Request, error)
	Revert(ctx context.Context, id int64, from trial.Status) (trial.Request, error)
}

// Move is a card drop from one column to another.
type Move struct {
	RequestID int64        `json:"requestId" validate:"required,min=1"`
	From      trial.Status `json:"from"      validate:"required"`
	To        trial.Status `json:"to"        validate:"required"`
}

// Interaction is the public view of one drop.
type Interaction struct {
	ID        string                 `json:"id,omitempty"`
	RequestID int64                  `json:"requestId"`
	From      trial.Status           `json:"from"`
	To        trial.Status           `json:"to"`
	State     State                  `json:"state"`
	Needs     transition.Requirement `json:"-"`
	NeedsName string                 `json:"needs"`
	Request   *trial.Request         `json:"request,omitempty"`
	LastError string                 `json:"lastError,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

type pending struct {
	Interaction
	busy bool
}

// Controller coordinates drops.  Safe for concurrent use.
type Controller struct {
	tr  Transitioner
	log *zap.SugaredLogger

	mu  sync.Mutex
	reg *cache.LRU[string, *pending]
	// request id -> interaction id; "" while a drop is being resolved
	inflight map[int64]string
}

// New returns a Controller parking at most capacity drops.
func New(tr Transitioner, capacity int, log *zap.SugaredLogger) *Controller {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	if log == nil {
		log = zap.S()
	}
	c := &Controller{tr: tr, log: log, inflight: make(map[int64]string)}
	c.reg = cache.New[string, *pending](capacity, c.evicted)
	return c
}

// Drop handles a card released over a column.
func (c *Controller) Drop(ctx context.Context, m Move) (Interaction, error) {
	it := Interaction{
		RequestID: m.RequestID,
		From:      m.From,
		To:        m.To,
		State:     Idle,
		CreatedAt: time.Now().UTC(),
	}
	if m.From == m.To {
		return it, ErrSameColumn
	}
	if !m.To.Valid() {
		return it, &transition.ValidationError{Field: "to", Reason: "unknown status " + string(m.To)}
	}
	it.Needs = transition.Required(m.To)
	it.NeedsName = it.Needs.String()

	c.mu.Lock()
	if _, ok := c.inflight[m.RequestID]; ok {
		c.mu.Unlock()
		return it, ErrAlreadyPending
	}
	c.inflight[m.RequestID] = ""
	c.mu.Unlock()

	parked := false
	defer func() {
		if !parked {
			c.release(m.RequestID, "")
		}
	}()

	cur, err := c.tr.Status(ctx, m.RequestID)
	if err != nil {
		it.LastError = err.Error()
		return it, err
	}
	if cur != m.From {
		it.LastError = "source column is " + string(cur)
		return it, ErrStaleSource
	}
	it.From = cur

	if it.Needs == transition.NeedsNothing {
		rec, err := c.tr.Commit(ctx, m.RequestID, m.To, transition.Aux{})
		if err != nil && !errors.Is(err, transition.ErrUnchanged) {
			it.LastError = err.Error()
			return it, err
		}
		it.State = Committed
		it.Request = &rec
		return it, nil
	}

	c.tr.Stage(m.RequestID, m.To)

	it.ID = uuid.NewString()
	it.State = PendingAuxiliary
	c.mu.Lock()
	c.inflight[m.RequestID] = it.ID
	c.reg.Add(it.ID, &pending{Interaction: it})
	metrics.PendingInteractions.Set(float64(c.reg.Len()))
	c.mu.Unlock()
	parked = true
	return it, nil
}

// release frees the request slot if it still belongs to interaction id.
func (c *Controller) release(reqID int64, id string) {
	c.mu.Lock()
	c.forget(reqID, id)
	c.mu.Unlock()
}

// forget needs c.mu held.
func (c *Controller) forget(reqID int64, id string) {
	if cur, ok := c.inflight[reqID]; ok && cur == id {
		delete(c.inflight, reqID)
	}
}

// Get returns a parked interaction.
func (c *Controller) Get(id string) (Interaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.reg.Peek(id)
	if !ok {
		return Interaction{}, ErrUnknownInteraction
	}
	return p.Interaction, nil
}

// Pending lists parked interactions, most recent first.
func (c *Controller) Pending() []Interaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Interaction, 0, c.reg.Len())
	for _, k := range c.reg.Keys() {
		p, _ := c.reg.Peek(k)
		out = append(out, p.Interaction)
	}
	return out
}

// Submit commits a parked drop with its auxiliary data.
func (c *Controller) Submit(ctx context.Context, id string, aux transition.Aux) (Interaction, error) {
	p, err := c.claim(id)
	if err != nil {
		return Interaction{}, err
	}

	rec, err := c.tr.Commit(ctx, p.RequestID, p.To, aux)

	c.mu.Lock()
	p.busy = false
	if err != nil && !errors.Is(err, transition.ErrUnchanged) {
		p.LastError = err.Error()
		if _, parked := c.reg.Peek(id); parked {
			out := p.Interaction
			c.mu.Unlock()
			return out, err
		}
		// Evicted while the commit was in flight: nobody can retry it, so
		// undo the staged move here.
		c.forget(p.RequestID, id)
		p.State = Cancelled
		out := p.Interaction
		c.mu.Unlock()
		c.log.Infow("evicted drop failed to commit, reverting", "interaction", id, "request", p.RequestID, "err", err)
		if _, rerr := c.tr.Revert(context.WithoutCancel(ctx), p.RequestID, p.From); rerr != nil {
			c.log.Warnw("revert of evicted drop failed", "request", p.RequestID, "err", rerr)
		}
		return out, err
	}
	c.reg.Remove(id)
	c.forget(p.RequestID, id)
	metrics.PendingInteractions.Set(float64(c.reg.Len()))
	p.State = Committed
	p.LastError = ""
	p.Request = &rec
	out := p.Interaction
	c.mu.Unlock()
	return out, nil
}

// Cancel reverts a parked drop to its source column.
func (c *Controller) Cancel(ctx context.Context, id string) (Interaction, error) {
	p, err := c.claim(id)
	if err != nil {
		return Interaction{}, err
	}
	c.mu.Lock()
	c.reg.Remove(id)
	c.forget(p.RequestID, id)
	metrics.PendingInteractions.Set(float64(c.reg.Len()))
	p.busy = false
	p.State = Cancelled
	c.mu.Unlock()

	rec, err := c.tr.Revert(ctx, p.RequestID, p.From)
	if err != nil {
		p.LastError = err.Error()
		return p.Interaction, err
	}
	p.Request = &rec
	return p.Interaction, nil
}

func (c *Controller) claim(id string) (*pending, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.reg.Get(id)
	if !ok {
		return nil, ErrUnknownInteraction
	}
	if p.State != PendingAuxiliary {
		return nil, ErrNoPending
	}
	if p.busy {
		return nil, ErrBusy
	}
	p.busy = true
	return p, nil
}

// evicted runs under c.mu from inside reg.Add.
func (c *Controller) evicted(id string, p *pending) {
	if p.busy {
		// A Submit or Cancel in flight settles this drop itself.
		return
	}
	c.forget(p.RequestID, id)
	c.log.Infow("pending drop evicted, reverting", "interaction", id, "request", p.RequestID)
	go func(reqID int64, from trial.Status) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := c.tr.Revert(ctx, reqID, from); err != nil {
			c.log.Warnw("revert of evicted drop failed", "request", reqID, "err", err)
		}
	}(p.RequestID, p.From)
}
