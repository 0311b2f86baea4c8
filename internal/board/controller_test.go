package board

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yanizio/sportcrm/internal/transition"
	"github.com/yanizio/sportcrm/internal/trial"
)

type call struct {
	op string
	id int64
	s  trial.Status
}

type fakeTransitioner struct {
	mu        sync.Mutex
	at        map[int64]trial.Status
	calls     []call
	commitErr error
	revertErr error
	reverted  chan int64
	// when set, Commit signals entered and then waits on gate
	entered chan struct{}
	gate    chan struct{}
}

func newFake(at map[int64]trial.Status) *fakeTransitioner {
	return &fakeTransitioner{at: at}
}

func (f *fakeTransitioner) Status(_ context.Context, id int64) (trial.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.at[id]
	if !ok {
		return "", trial.ErrNotFound
	}
	return s, nil
}

func (f *fakeTransitioner) set(id int64, s trial.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.at == nil {
		f.at = make(map[int64]trial.Status)
	}
	f.at[id] = s
}

func (f *fakeTransitioner) record(op string, id int64, s trial.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op, id, s})
}

func (f *fakeTransitioner) Stage(id int64, to trial.Status) { f.record("stage", id, to) }

func (f *fakeTransitioner) Commit(_ context.Context, id int64, to trial.Status, aux transition.Aux) (trial.Request, error) {
	if transition.Required(to) == transition.NeedsSchedule && aux.ScheduledDate == nil {
		return trial.Request{}, &transition.ValidationError{Field: "scheduledDate", Reason: "required"}
	}
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.gate
	}
	f.record("commit", id, to)
	if f.commitErr != nil {
		return trial.Request{}, f.commitErr
	}
	f.set(id, to)
	return trial.Request{ID: id, Status: to, ScheduledDate: aux.ScheduledDate}, nil
}

func (f *fakeTransitioner) Revert(_ context.Context, id int64, from trial.Status) (trial.Request, error) {
	f.record("revert", id, from)
	if f.reverted != nil {
		f.reverted <- id
	}
	if f.revertErr != nil {
		return trial.Request{}, f.revertErr
	}
	f.set(id, from)
	return trial.Request{ID: id, Status: from}, nil
}

func (f *fakeTransitioner) ops() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func TestDropSameColumnRejected(t *testing.T) {
	ft := &fakeTransitioner{}
	c := New(ft, 4, nil)
	it, err := c.Drop(context.Background(), Move{RequestID: 1, From: trial.StatusNew, To: trial.StatusNew})
	if !errors.Is(err, ErrSameColumn) || it.State != Idle {
		t.Fatalf("Drop = %v, %v", it.State, err)
	}
	if len(ft.ops()) != 0 {
		t.Fatalf("unexpected calls: %+v", ft.ops())
	}
}

func TestDropWithoutAuxCommitsDirectly(t *testing.T) {
	ft := newFake(map[int64]trial.Status{3: trial.StatusTrialAssigned})
	c := New(ft, 4, nil)
	it, err := c.Drop(context.Background(), Move{RequestID: 3, From: trial.StatusTrialAssigned, To: trial.StatusSigned})
	if err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if it.State != Committed || it.ID != "" {
		t.Fatalf("interaction = %+v", it)
	}
	ops := ft.ops()
	if len(ops) != 1 || ops[0].op != "commit" {
		t.Fatalf("calls = %+v", ops)
	}
	if len(c.Pending()) != 0 {
		t.Fatal("direct commit must not park an interaction")
	}
}

func TestDropThenCancelReverts(t *testing.T) {
	ft := newFake(map[int64]trial.Status{7: trial.StatusNew})
	c := New(ft, 4, nil)
	ctx := context.Background()

	it, err := c.Drop(ctx, Move{RequestID: 7, From: trial.StatusNew, To: trial.StatusTrialAssigned})
	if err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if it.State != PendingAuxiliary || it.ID == "" || it.Needs != transition.NeedsSchedule {
		t.Fatalf("interaction = %+v", it)
	}

	out, err := c.Cancel(ctx, it.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if out.State != Cancelled || out.Request.Status != trial.StatusNew {
		t.Fatalf("cancel result = %+v", out)
	}
	want := []call{{"stage", 7, trial.StatusTrialAssigned}, {"revert", 7, trial.StatusNew}}
	if got := ft.ops(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("calls = %+v, want %+v", got, want)
	}
	if _, err := c.Get(it.ID); !errors.Is(err, ErrUnknownInteraction) {
		t.Fatalf("interaction still parked: %v", err)
	}
}

func TestSubmitValidationKeepsPending(t *testing.T) {
	ft := newFake(map[int64]trial.Status{5: trial.StatusNew})
	c := New(ft, 4, nil)
	ctx := context.Background()

	it, _ := c.Drop(ctx, Move{RequestID: 5, From: trial.StatusNew, To: trial.StatusTrialAssigned})
	if _, err := c.Submit(ctx, it.ID, transition.Aux{}); !errors.Is(err, transition.ErrValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
	got, err := c.Get(it.ID)
	if err != nil || got.State != PendingAuxiliary || got.LastError == "" {
		t.Fatalf("after failed submit: %+v, %v", got, err)
	}
	for _, op := range ft.ops() {
		if op.op == "commit" {
			t.Fatal("validation failure reached the store")
		}
	}

	when := time.Date(2025, 9, 1, 18, 0, 0, 0, time.UTC)
	done, err := c.Submit(ctx, it.ID, transition.Aux{ScheduledDate: &when})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if done.State != Committed || !done.Request.ScheduledDate.Equal(when) {
		t.Fatalf("submit result = %+v", done)
	}
	if _, err := c.Submit(ctx, it.ID, transition.Aux{ScheduledDate: &when}); !errors.Is(err, ErrUnknownInteraction) {
		t.Fatalf("second submit = %v", err)
	}
}

func TestSubmitPersistenceFailureKeepsPending(t *testing.T) {
	ft := newFake(map[int64]trial.Status{5: trial.StatusTrialAssigned})
	ft.commitErr = errors.New("db down")
	c := New(ft, 4, nil)
	ctx := context.Background()

	it, _ := c.Drop(ctx, Move{RequestID: 5, From: trial.StatusTrialAssigned, To: trial.StatusRefused})
	if _, err := c.Submit(ctx, it.ID, transition.Aux{Comment: "no"}); err == nil {
		t.Fatal("expected persistence error")
	}
	if got, _ := c.Get(it.ID); got.State != PendingAuxiliary {
		t.Fatalf("state = %v", got.State)
	}

	ft.commitErr = nil
	if out, err := c.Submit(ctx, it.ID, transition.Aux{Comment: "no"}); err != nil || out.State != Committed {
		t.Fatalf("retry = %+v, %v", out, err)
	}
}

func TestCancelRevertFailureReported(t *testing.T) {
	ft := newFake(map[int64]trial.Status{2: trial.StatusNew})
	ft.revertErr = errors.New("timeout")
	c := New(ft, 4, nil)
	ctx := context.Background()

	it, _ := c.Drop(ctx, Move{RequestID: 2, From: trial.StatusNew, To: trial.StatusRefused})
	out, err := c.Cancel(ctx, it.ID)
	if err == nil || out.State != Cancelled {
		t.Fatalf("Cancel = %+v, %v", out, err)
	}
}

func TestEvictionRevertsOldest(t *testing.T) {
	ft := newFake(map[int64]trial.Status{1: trial.StatusNew, 2: trial.StatusNew})
	ft.reverted = make(chan int64, 1)
	c := New(ft, 1, nil)
	ctx := context.Background()

	first, _ := c.Drop(ctx, Move{RequestID: 1, From: trial.StatusNew, To: trial.StatusTrialAssigned})
	if _, err := c.Drop(ctx, Move{RequestID: 2, From: trial.StatusNew, To: trial.StatusTrialAssigned}); err != nil {
		t.Fatalf("Drop: %v", err)
	}

	select {
	case id := <-ft.reverted:
		if id != 1 {
			t.Fatalf("reverted %d, want 1", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("evicted drop was not reverted")
	}
	if _, err := c.Get(first.ID); !errors.Is(err, ErrUnknownInteraction) {
		t.Fatalf("evicted interaction still present: %v", err)
	}
}

func TestUnknownInteraction(t *testing.T) {
	c := New(&fakeTransitioner{}, 4, nil)
	if _, err := c.Cancel(context.Background(), "nope"); !errors.Is(err, ErrUnknownInteraction) {
		t.Fatalf("Cancel = %v", err)
	}
}

func TestDropStaleSourceRejected(t *testing.T) {
	ft := newFake(map[int64]trial.Status{4: trial.StatusSigned})
	c := New(ft, 4, nil)
	ctx := context.Background()

	it, err := c.Drop(ctx, Move{RequestID: 4, From: trial.StatusNew, To: trial.StatusRefused})
	if !errors.Is(err, ErrStaleSource) || it.State != Idle {
		t.Fatalf("Drop = %+v, %v", it, err)
	}
	if len(ft.ops()) != 0 {
		t.Fatalf("stale drop reached the transitioner: %+v", ft.ops())
	}

	// The slot is released, so a drop from the real column goes through.
	it, err = c.Drop(ctx, Move{RequestID: 4, From: trial.StatusSigned, To: trial.StatusRefused})
	if err != nil || it.State != PendingAuxiliary {
		t.Fatalf("Drop from real column = %+v, %v", it, err)
	}
	if _, err := c.Cancel(ctx, it.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	ops := ft.ops()
	if last := ops[len(ops)-1]; last.op != "revert" || last.s != trial.StatusSigned {
		t.Fatalf("revert target = %+v, want %s", last, trial.StatusSigned)
	}
}

func TestDropUnknownRequest(t *testing.T) {
	c := New(newFake(nil), 4, nil)
	_, err := c.Drop(context.Background(), Move{RequestID: 99, From: trial.StatusNew, To: trial.StatusSigned})
	if !errors.Is(err, trial.ErrNotFound) {
		t.Fatalf("Drop = %v", err)
	}
}

func TestDoubleDropRejected(t *testing.T) {
	ft := newFake(map[int64]trial.Status{6: trial.StatusNew})
	c := New(ft, 4, nil)
	ctx := context.Background()

	first, err := c.Drop(ctx, Move{RequestID: 6, From: trial.StatusNew, To: trial.StatusTrialAssigned})
	if err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if _, err := c.Drop(ctx, Move{RequestID: 6, From: trial.StatusNew, To: trial.StatusRefused}); !errors.Is(err, ErrAlreadyPending) {
		t.Fatalf("second Drop = %v, want ErrAlreadyPending", err)
	}
	if n := len(c.Pending()); n != 1 {
		t.Fatalf("pending = %d, want 1", n)
	}

	when := time.Date(2025, 9, 1, 18, 0, 0, 0, time.UTC)
	if _, err := c.Submit(ctx, first.ID, transition.Aux{ScheduledDate: &when}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	// Settled, so the request accepts a new drop from its new column.
	if _, err := c.Drop(ctx, Move{RequestID: 6, From: trial.StatusTrialAssigned, To: trial.StatusRefused}); err != nil {
		t.Fatalf("Drop after submit: %v", err)
	}
}

func TestEvictedBusyDropRevertedOnFailedSubmit(t *testing.T) {
	ft := newFake(map[int64]trial.Status{1: trial.StatusNew, 2: trial.StatusNew})
	ft.commitErr = errors.New("db down")
	c := New(ft, 1, nil)
	ctx := context.Background()

	first, err := c.Drop(ctx, Move{RequestID: 1, From: trial.StatusNew, To: trial.StatusRefused})
	if err != nil {
		t.Fatalf("Drop: %v", err)
	}

	ft.entered = make(chan struct{})
	ft.gate = make(chan struct{})
	type result struct {
		it  Interaction
		err error
	}
	done := make(chan result, 1)
	go func() {
		it, err := c.Submit(ctx, first.ID, transition.Aux{Comment: "no"})
		done <- result{it, err}
	}()
	<-ft.entered

	// Overflow evicts the busy drop, which is skipped by the eviction hook.
	if _, err := c.Drop(ctx, Move{RequestID: 2, From: trial.StatusNew, To: trial.StatusRefused}); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	close(ft.gate)

	var r result
	select {
	case r = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit did not return")
	}
	if r.err == nil || r.it.State != Cancelled {
		t.Fatalf("Submit = %+v, %v", r.it, r.err)
	}
	var reverted bool
	for _, op := range ft.ops() {
		if op.op == "revert" && op.id == 1 && op.s == trial.StatusNew {
			reverted = true
		}
	}
	if !reverted {
		t.Fatalf("evicted drop left staged: %+v", ft.ops())
	}
	ft.entered = nil
	// The request slot is free again.
	if _, err := c.Drop(ctx, Move{RequestID: 1, From: trial.StatusNew, To: trial.StatusSigned}); errors.Is(err, ErrAlreadyPending) {
		t.Fatalf("slot still held: %v", err)
	}
}
