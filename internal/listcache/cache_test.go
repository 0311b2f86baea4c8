package listcache

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/yanizio/sportcrm/internal/trial"
)

type fakeLister struct {
	mu      sync.Mutex
	rows    []trial.Request
	calls   int
	entered chan struct{}
	block   chan struct{}
}

func (f *fakeLister) List(ctx context.Context) ([]trial.Request, error) {
	f.mu.Lock()
	f.calls++
	rows := make([]trial.Request, len(f.rows))
	copy(rows, f.rows)
	entered, block := f.entered, f.block
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return rows, nil
}

func seed() []trial.Request {
	return []trial.Request{
		{ID: 1, Status: trial.StatusNew, Notes: "first"},
		{ID: 2, Status: trial.StatusRefused, Notes: "second"},
	}
}

func loaded(t *testing.T, rows []trial.Request) (*Cache, *fakeLister) {
	t.Helper()
	fl := &fakeLister{rows: rows}
	c := New(fl, WithRefreshDelay(0))
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	t.Cleanup(c.Close)
	return c, fl
}

func setStatus(s trial.Status) func(*trial.Request) {
	return func(r *trial.Request) { r.Status = s }
}

func TestMutateAppliesBeforeCommit(t *testing.T) {
	c, _ := loaded(t, seed())

	var seen trial.Status
	_, err := c.Mutate(context.Background(), Mutation{
		ID:    1,
		Apply: setStatus(trial.StatusSigned),
		Commit: func(ctx context.Context) (trial.Request, error) {
			r, _ := c.Get(1)
			seen = r.Status
			return r, nil
		},
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if seen != trial.StatusSigned {
		t.Fatalf("commit observed %s, want optimistic SIGNED", seen)
	}
	if r, _ := c.Get(1); r.Status != trial.StatusSigned {
		t.Fatalf("after success status = %s", r.Status)
	}
}

func TestMutateFailureRestoresSnapshot(t *testing.T) {
	when := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := seed()
	rows[0].ScheduledDate = &when
	c, _ := loaded(t, rows)
	before := c.Snapshot()

	boom := errors.New("server down")
	_, err := c.Mutate(context.Background(), Mutation{
		ID: 1,
		Apply: func(r *trial.Request) {
			r.Status = trial.StatusTrialAssigned
			*r.ScheduledDate = when.AddDate(0, 0, 1)
			r.Notes = "changed"
		},
		Commit: func(context.Context) (trial.Request, error) { return trial.Request{}, boom },
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	if after := c.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Fatalf("cache not restored:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestMutateCommitIgnoresCallerCancel(t *testing.T) {
	c, _ := loaded(t, seed())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Mutate(ctx, Mutation{
		ID:    2,
		Apply: setStatus(trial.StatusSigned),
		Commit: func(ctx context.Context) (trial.Request, error) {
			if ctx.Err() != nil {
				return trial.Request{}, ctx.Err()
			}
			return trial.Request{ID: 2, Status: trial.StatusSigned}, nil
		},
	})
	if err != nil {
		t.Fatalf("commit saw caller cancellation: %v", err)
	}
}

func TestMutateCancelsInFlightRead(t *testing.T) {
	c, fl := loaded(t, seed())

	fl.mu.Lock()
	fl.entered = make(chan struct{}, 1)
	fl.block = make(chan struct{})
	fl.mu.Unlock()

	done := make(chan []trial.Request, 1)
	go func() {
		rows, _ := c.Refresh(context.Background())
		done <- rows
	}()
	<-fl.entered

	_, err := c.Mutate(context.Background(), Mutation{
		ID:     1,
		Apply:  setStatus(trial.StatusTrialAssigned),
		Commit: func(context.Context) (trial.Request, error) { return trial.Request{ID: 1}, nil },
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight read was not cancelled")
	}
	if r, _ := c.Get(1); r.Status != trial.StatusTrialAssigned {
		t.Fatalf("stale read clobbered optimistic value: %s", r.Status)
	}
}

func TestStageSurvivesRefresh(t *testing.T) {
	c, _ := loaded(t, seed())

	c.Stage(1, setStatus(trial.StatusRefused))
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if r, _ := c.Get(1); r.Status != trial.StatusRefused {
		t.Fatalf("staged overlay lost on refresh: %s", r.Status)
	}

	c.Unstage(1, setStatus(trial.StatusNew))
	if r, _ := c.Get(1); r.Status != trial.StatusNew {
		t.Fatalf("unstage did not restore: %s", r.Status)
	}
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if r, _ := c.Get(1); r.Status != trial.StatusNew {
		t.Fatalf("overlay re-applied after unstage: %s", r.Status)
	}
}

func TestSubscribeReceivesLatest(t *testing.T) {
	c, _ := loaded(t, seed())
	ch, stop := c.Subscribe()
	defer stop()

	initial := <-ch
	if len(initial) != 2 {
		t.Fatalf("initial publish = %+v", initial)
	}

	c.Stage(2, setStatus(trial.StatusSigned))
	got := <-ch
	if got[1].Status != trial.StatusSigned {
		t.Fatalf("published list = %+v", got)
	}
}

func TestCloseClosesSubscriptions(t *testing.T) {
	fl := &fakeLister{rows: seed()}
	c := New(fl)
	ch, _ := c.Subscribe()
	c.Close()
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after Close")
	}
	if _, err := c.Refresh(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Refresh after Close = %v", err)
	}
}

func TestBackgroundRefreshAfterSuccess(t *testing.T) {
	fl := &fakeLister{rows: seed()}
	c := New(fl, WithRefreshDelay(10*time.Millisecond))
	defer c.Close()
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	_, err := c.Mutate(context.Background(), Mutation{
		ID:     1,
		Commit: func(context.Context) (trial.Request, error) { return trial.Request{ID: 1}, nil },
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		fl.mu.Lock()
		calls := fl.calls
		fl.mu.Unlock()
		if calls >= 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("background refresh never ran")
}
