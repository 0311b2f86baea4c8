// internal/archive/processor.go
//
// Single-item and batch archival of trial requests.
//
// Context
// -------
// Archival rewrites notes only; status never changes.  Each operation is a
// pure planner (ArchiveNotes, RestoreNotes, SuccessNotes) plus one notes
// write through the NotesWriter.  The processor never touches the list
// cache, so callers decide whether to route writes through the coordinator
// and when to refresh.
//
// Workflow
// --------
//  1. Batch calls fan out with errgroup, bounded by the configured limit.
//  2. Every item runs to completion; one failure never cancels the rest.
//     Items run detached from the caller's context, so a client that goes
//     away mid-batch does not fail the items still queued.
//  3. The Summary is assembled after the join and logged once ("n of m").
//
// Notes
// -----
//   - An item that is already in the requested state counts as a success
//     and issues no write.
//   - Items rejected by validation count as failures, not errors.
package archive

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yanizio/sportcrm/internal/marker"
	"github.com/yanizio/sportcrm/internal/metrics"
	"github.com/yanizio/sportcrm/internal/transition"
	"github.com/yanizio/sportcrm/internal/trial"
)

// DefaultConcurrency bounds in-flight writes per batch.
const DefaultConcurrency = 8

// WriteTimeout bounds one item's load and write once detached from the
// caller.
const WriteTimeout = 30 * time.Second

// NotesWriter persists a notes rewrite.  trial.Repository satisfies it.
type NotesWriter interface {
	UpdateFields(ctx context.Context, id int64, p trial.FieldsPatch) (trial.Request, error)
}

// Summary reports a batch outcome.
type Summary struct {
	Total     int              `json:"total"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Updated   []trial.Request  `json:"updated,omitempty"`
	Errors    map[int64]string `json:"errors,omitempty"`
}

// Loader fetches one request by id.  trial.Repository.Get satisfies it.
type Loader func(ctx context.Context, id int64) (trial.Request, error)

// Planner computes the new notes for one request.
type Planner func(trial.Request) (notes string, changed bool, err error)

// ArchiveNotes plans an archive.  REFUSED and SIGNED only.
func ArchiveNotes(r trial.Request) (string, bool, error) {
	if err := transition.CanArchive(r); err != nil {
		return r.Notes, false, err
	}
	n, changed := marker.Archive(r.Notes)
	return n, changed, nil
}

// RestoreNotes plans a restore.  Active requests come back unchanged.
func RestoreNotes(r trial.Request) (string, bool, error) {
	if err := transition.CanArchive(r); err != nil {
		return r.Notes, false, err
	}
	n, changed := marker.Restore(r.Notes)
	return n, changed, nil
}

// SuccessNotes flags a SIGNED request as a successful enrollment and
// archives it.
func SuccessNotes(r trial.Request) (string, bool, error) {
	if err := transition.CanArchiveSuccessful(r); err != nil {
		return r.Notes, false, err
	}
	n, flagged := marker.MarkSuccess(r.Notes)
	n, archived := marker.Archive(n)
	return n, flagged || archived, nil
}

// Processor applies planners through a NotesWriter.
type Processor struct {
	w     NotesWriter
	limit int
	log   *zap.SugaredLogger
}

// New returns a Processor.  concurrency < 1 uses DefaultConcurrency.
func New(w NotesWriter, concurrency int, log *zap.SugaredLogger) *Processor {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	if log == nil {
		log = zap.S()
	}
	return &Processor{w: w, limit: concurrency, log: log}
}

// Archive archives one request.
func (p *Processor) Archive(ctx context.Context, r trial.Request) (trial.Request, error) {
	return p.Apply(ctx, r, ArchiveNotes)
}

// Restore restores one request.
func (p *Processor) Restore(ctx context.Context, r trial.Request) (trial.Request, error) {
	return p.Apply(ctx, r, RestoreNotes)
}

// ArchiveSuccessful flags and archives one SIGNED request.
func (p *Processor) ArchiveSuccessful(ctx context.Context, r trial.Request) (trial.Request, error) {
	return p.Apply(ctx, r, SuccessNotes)
}

// Apply runs plan against r and writes the result when it changed.
func (p *Processor) Apply(ctx context.Context, r trial.Request, plan Planner) (trial.Request, error) {
	notes, changed, err := plan(r)
	if err != nil {
		return r, err
	}
	if !changed {
		return r, nil
	}
	// An issued write finishes even if the caller gives up.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), WriteTimeout)
	defer cancel()
	return p.w.UpdateFields(wctx, r.ID, trial.FieldsPatch{Notes: &notes})
}

// ArchiveBatch archives every request and reports how many succeeded.
func (p *Processor) ArchiveBatch(ctx context.Context, reqs []trial.Request) Summary {
	return p.Batch(ctx, "archive", reqs, ArchiveNotes)
}

// ArchiveSuccessfulBatch flags and archives every SIGNED request.
func (p *Processor) ArchiveSuccessfulBatch(ctx context.Context, reqs []trial.Request) Summary {
	return p.Batch(ctx, "archive_successful", reqs, SuccessNotes)
}

// Batch runs plan over reqs concurrently and joins before summarising.
func (p *Processor) Batch(ctx context.Context, op string, reqs []trial.Request, plan Planner) Summary {
	ids := make([]int64, len(reqs))
	for i, r := range reqs {
		ids[i] = r.ID
	}
	return p.run(ctx, op, ids, func(ctx context.Context, i int) (trial.Request, error) {
		return p.Apply(ctx, reqs[i], plan)
	})
}

// BatchByID is Batch for callers holding ids.  Each task loads its own
// request, so the reads fan out with the writes.  A failed load counts as
// a failed item.
func (p *Processor) BatchByID(ctx context.Context, op string, ids []int64, load Loader, plan Planner) Summary {
	return p.run(ctx, op, ids, func(ctx context.Context, i int) (trial.Request, error) {
		lctx, cancel := context.WithTimeout(ctx, WriteTimeout)
		r, err := load(lctx, ids[i])
		cancel()
		if err != nil {
			return trial.Request{}, err
		}
		return p.Apply(ctx, r, plan)
	})
}

func (p *Processor) run(ctx context.Context, op string, ids []int64, item func(context.Context, int) (trial.Request, error)) Summary {
	type result struct {
		rec trial.Request
		err error
	}
	results := make([]result, len(ids))
	ctx = context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(p.limit)
	for i := range ids {
		g.Go(func() error {
			rec, err := item(ctx, i)
			results[i] = result{rec, err}
			return nil
		})
	}
	_ = g.Wait()

	sum := Summary{Total: len(ids)}
	for i, res := range results {
		if res.err != nil {
			sum.Failed++
			if sum.Errors == nil {
				sum.Errors = make(map[int64]string)
			}
			sum.Errors[ids[i]] = res.err.Error()
			metrics.BatchItemsTotal.WithLabelValues(op, "failed").Inc()
			continue
		}
		sum.Succeeded++
		sum.Updated = append(sum.Updated, res.rec)
		metrics.BatchItemsTotal.WithLabelValues(op, "ok").Inc()
	}

	if sum.Failed > 0 {
		p.log.Warnw("batch finished with failures", "op", op,
			"succeeded", sum.Succeeded, "total", sum.Total, "failed", sum.Failed)
	} else {
		p.log.Infow("batch finished", "op", op, "succeeded", sum.Succeeded, "total", sum.Total)
	}
	return sum
}
