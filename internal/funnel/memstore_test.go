package funnel

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/yanizio/sportcrm/internal/trial"
)

var errStoreDown = errors.New("store unavailable")

// memStore is an in-memory trial.Store that records writes.
type memStore struct {
	mu     sync.Mutex
	rows   map[int64]trial.Request
	nextID int64
	writes []string
	fail   map[int64]bool
}

func newMemStore(rows ...trial.Request) *memStore {
	m := &memStore{rows: map[int64]trial.Request{}, fail: map[int64]bool{}, nextID: 100}
	for _, r := range rows {
		m.rows[r.ID] = r.Clone()
	}
	return m
}

func (m *memStore) Get(_ context.Context, id int64) (trial.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return trial.Request{}, trial.NotFound(id)
	}
	return r.Clone(), nil
}

func (m *memStore) List(context.Context) ([]trial.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]trial.Request, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id int64, u trial.StatusUpdate) (trial.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, "status:"+string(u.Status))
	if m.fail[id] {
		return trial.Request{}, errStoreDown
	}
	r, ok := m.rows[id]
	if !ok {
		return trial.Request{}, trial.NotFound(id)
	}
	u.ApplyTo(&r)
	now := time.Now().UTC()
	r.UpdatedAt = &now
	m.rows[id] = r
	return r.Clone(), nil
}

func (m *memStore) UpdateFields(_ context.Context, id int64, p trial.FieldsPatch) (trial.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, "fields")
	if m.fail[id] {
		return trial.Request{}, errStoreDown
	}
	r, ok := m.rows[id]
	if !ok {
		return trial.Request{}, trial.NotFound(id)
	}
	p.ApplyTo(&r)
	m.rows[id] = r
	return r.Clone(), nil
}

func (m *memStore) Create(_ context.Context, r trial.Request) (trial.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	r.ID = m.nextID
	r.CreatedAt = time.Now().UTC()
	m.rows[r.ID] = r
	return r.Clone(), nil
}

func (m *memStore) writeLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.writes...)
}

func (m *memStore) row(id int64) trial.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id].Clone()
}
