// internal/listcache/cache.go
//
// Optimistic mutation coordinator for the trial-request list.
//
// Context
// -------
// Staff views read the request list from one in-memory copy owned by Cache.
// Writes never touch that copy directly: they go through Mutate, which
// applies the change locally first, then persists it, then either keeps the
// optimistic value or rolls the whole list back.
//
// Workflow
// --------
//  1. Mutate cancels every in-flight list read, so a slow reload cannot
//     overwrite the optimistic value.
//  2. A deep copy of the list is taken (the snapshot), the change is
//     applied, and subscribers receive the new list.  A Get issued after
//     Mutate has entered Commit always observes the optimistic value.
//  3. Commit runs detached from caller cancellation.  A write, once issued,
//     always runs to completion.
//  4. Failure replaces the list with the snapshot (hard rollback, not a
//     merge) and returns the error.  Success keeps the list and schedules a
//     debounced background Refresh.
//
// Notes
// -----
//   - Rollback restores the whole snapshot.  An unrelated optimistic change
//     applied after the snapshot was taken is discarded with it.
//   - Staged overlays (Stage/Unstage) are local-only edits that survive
//     reloads until removed.  The board uses them for drops still waiting
//     on auxiliary data.
//   - Subscribers get a fresh copy per publish and may keep it.
package listcache

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/sportcrm/internal/metrics"
	"github.com/yanizio/sportcrm/internal/trial"
)

// DefaultRefreshDelay debounces the reconcile reload after a write.
const DefaultRefreshDelay = 500 * time.Millisecond

// ErrClosed is returned by operations on a closed Cache.
var ErrClosed = errors.New("list cache closed")

// Lister loads the authoritative list.  trial.Repository satisfies it.
type Lister interface {
	List(ctx context.Context) ([]trial.Request, error)
}

// Mutation describes one optimistic write against a single request.
type Mutation struct {
	ID     int64
	Label  string
	Apply  func(*trial.Request)
	Commit func(ctx context.Context) (trial.Request, error)
}

// Option customises a Cache.
type Option func(*Cache)

// WithRefreshDelay sets the debounce before the reconcile reload.  Zero or
// negative disables background refresh.
func WithRefreshDelay(d time.Duration) Option { return func(c *Cache) { c.delay = d } }

// WithLogger overrides the global sugared logger.
func WithLogger(l *zap.SugaredLogger) Option { return func(c *Cache) { c.log = l } }

// Cache owns the request list.
type Cache struct {
	lister Lister
	delay  time.Duration
	log    *zap.SugaredLogger
	sfg    singleflight.Group

	mu      sync.Mutex
	items   []trial.Request
	loaded  bool
	gen     uint64
	reads   map[uint64]context.CancelFunc
	readSeq uint64
	staged  map[int64]func(*trial.Request)
	subs    map[uint64]chan []trial.Request
	subSeq  uint64
	timer   *time.Timer
	closed  bool
}

// New returns an empty Cache.  Call Refresh to load it.
func New(l Lister, opts ...Option) *Cache {
	c := &Cache{
		lister: l,
		delay:  DefaultRefreshDelay,
		log:    zap.S(),
		reads:  make(map[uint64]context.CancelFunc),
		staged: make(map[int64]func(*trial.Request)),
		subs:   make(map[uint64]chan []trial.Request),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

/*──────────────────────── reads ────────────────────────*/

// Snapshot returns a deep copy of the current list.
func (c *Cache) Snapshot() []trial.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneAll(c.items)
}

// Get returns one cached request.
func (c *Cache) Get(id int64) (trial.Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexLocked(id); i >= 0 {
		return c.items[i].Clone(), true
	}
	return trial.Request{}, false
}

// Loaded reports whether at least one Refresh has succeeded.
func (c *Cache) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// Subscribe delivers the latest list after every change.  The channel keeps
// only the newest value; slow readers skip intermediate lists.
func (c *Cache) Subscribe() (<-chan []trial.Request, func()) {
	ch := make(chan []trial.Request, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	c.subSeq++
	id := c.subSeq
	c.subs[id] = ch
	if c.loaded {
		ch <- cloneAll(c.items)
	}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if s, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(s)
			}
		})
	}
}

// Refresh reloads the list.  Concurrent callers share one load.  A load
// overtaken by a local write is discarded and the current list returned.
func (c *Cache) Refresh(ctx context.Context) ([]trial.Request, error) {
	v, err, _ := c.sfg.Do("list", func() (interface{}, error) {
		return c.load(ctx)
	})
	if err != nil {
		return nil, err
	}
	return cloneAll(v.([]trial.Request)), nil
}

func (c *Cache) load(ctx context.Context) ([]trial.Request, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	readCtx, cancel := context.WithCancel(ctx)
	c.readSeq++
	token := c.readSeq
	c.reads[token] = cancel
	startGen := c.gen
	c.mu.Unlock()

	rows, err := c.lister.List(readCtx)

	c.mu.Lock()
	defer c.mu.Unlock()
	overtaken := readCtx.Err() != nil && ctx.Err() == nil
	delete(c.reads, token)
	cancel()

	if c.gen != startGen || (err != nil && overtaken) {
		metrics.ListRefreshTotal.WithLabelValues("stale").Inc()
		return cloneAll(c.items), nil
	}
	if err != nil {
		metrics.ListRefreshTotal.WithLabelValues("error").Inc()
		c.log.Warnw("request list refresh failed", "err", err)
		return nil, err
	}

	c.items = cloneAll(rows)
	for id, fn := range c.staged {
		if i := c.indexLocked(id); i >= 0 {
			fn(&c.items[i])
		}
	}
	c.loaded = true
	c.gen++
	c.publishLocked()
	metrics.ListRefreshTotal.WithLabelValues("ok").Inc()
	return cloneAll(c.items), nil
}

/*──────────────────────── writes ───────────────────────*/

// Mutate applies m optimistically, persists it, and reconciles.
func (c *Cache) Mutate(ctx context.Context, m Mutation) (trial.Request, error) {
	if m.Commit == nil {
		return trial.Request{}, errors.New("listcache: mutation without Commit")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return trial.Request{}, ErrClosed
	}
	c.cancelReadsLocked()
	snapshot := cloneAll(c.items)
	if i := c.indexLocked(m.ID); i >= 0 && m.Apply != nil {
		m.Apply(&c.items[i])
	}
	c.gen++
	c.publishLocked()
	c.mu.Unlock()

	stored, err := m.Commit(context.WithoutCancel(ctx))
	if err != nil {
		c.mu.Lock()
		c.items = snapshot
		c.gen++
		c.publishLocked()
		c.mu.Unlock()

		metrics.MutationRollbacksTotal.Inc()
		c.log.Warnw("optimistic mutation rolled back",
			"id", m.ID, "op", m.Label, "err", err)
		return trial.Request{}, err
	}

	c.scheduleRefresh()
	return stored, nil
}

// Stage applies fn locally without persisting.  The overlay is re-applied
// after every reload until Unstage.
func (c *Cache) Stage(id int64, fn func(*trial.Request)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.cancelReadsLocked()
	c.staged[id] = fn
	if i := c.indexLocked(id); i >= 0 {
		fn(&c.items[i])
	}
	c.gen++
	c.publishLocked()
}

// Unstage drops the overlay for id.  When restore is non-nil it is applied
// to the cached row so the list shows the persisted value again.
func (c *Cache) Unstage(id int64, restore func(*trial.Request)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.staged, id)
	if restore == nil {
		return
	}
	if i := c.indexLocked(id); i >= 0 {
		restore(&c.items[i])
	}
	c.gen++
	c.publishLocked()
}

// Close stops the refresh timer and closes every subscription.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
	}
	c.cancelReadsLocked()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
}

/*──────────────────────── helpers ──────────────────────*/

func (c *Cache) scheduleRefresh() {
	if c.delay <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.timer != nil {
		c.timer.Reset(c.delay)
		return
	}
	c.timer = time.AfterFunc(c.delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		// Failures are logged inside load.
		_, _ = c.Refresh(ctx)
	})
}

func (c *Cache) cancelReadsLocked() {
	for token, cancel := range c.reads {
		cancel()
		delete(c.reads, token)
	}
	c.sfg.Forget("list")
}

func (c *Cache) indexLocked(id int64) int {
	for i := range c.items {
		if c.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Cache) publishLocked() {
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- cloneAll(c.items)
	}
}

func cloneAll(in []trial.Request) []trial.Request {
	if in == nil {
		return nil
	}
	out := make([]trial.Request, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}
