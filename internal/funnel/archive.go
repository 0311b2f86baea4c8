package funnel

import (
	"context"

	"github.com/yanizio/sportcrm/internal/archive"
	"github.com/yanizio/sportcrm/internal/listcache"
	"github.com/yanizio/sportcrm/internal/marker"
	"github.com/yanizio/sportcrm/internal/transition"
	"github.com/yanizio/sportcrm/internal/trial"
)

func isArchived(r trial.Request) bool { return marker.IsArchived(r) }

// ArchiveOne archives one REFUSED or SIGNED request.
func (s *Service) ArchiveOne(ctx context.Context, id int64) (trial.Request, error) {
	return s.rewriteNotes(ctx, id, "archive", archive.ArchiveNotes)
}

// RestoreOne restores one archived request.
func (s *Service) RestoreOne(ctx context.Context, id int64) (trial.Request, error) {
	return s.rewriteNotes(ctx, id, "restore", archive.RestoreNotes)
}

// ArchiveSuccessfulOne flags a SIGNED request as a successful enrollment
// and archives it.
func (s *Service) ArchiveSuccessfulOne(ctx context.Context, id int64) (trial.Request, error) {
	return s.rewriteNotes(ctx, id, "archive_successful", archive.SuccessNotes)
}

func (s *Service) rewriteNotes(ctx context.Context, id int64, op string, plan archive.Planner) (trial.Request, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return trial.Request{}, err
	}
	notes, changed, err := plan(req)
	if err != nil {
		return req, err
	}
	if !changed {
		return req, nil
	}
	return s.cache.Mutate(ctx, listcache.Mutation{
		ID:    id,
		Label: op,
		Apply: func(r *trial.Request) { r.Notes = notes },
		Commit: func(ctx context.Context) (trial.Request, error) {
			return s.store.UpdateFields(ctx, id, trial.FieldsPatch{Notes: &notes})
		},
	})
}

// ArchiveBatch archives every id.  Unknown ids count as failures.
func (s *Service) ArchiveBatch(ctx context.Context, ids []int64) archive.Summary {
	return s.batch(ctx, "archive", ids, archive.ArchiveNotes)
}

// RestoreBatch restores every id.
func (s *Service) RestoreBatch(ctx context.Context, ids []int64) archive.Summary {
	return s.batch(ctx, "restore", ids, archive.RestoreNotes)
}

// ArchiveSuccessfulBatch flags and archives every SIGNED id.
func (s *Service) ArchiveSuccessfulBatch(ctx context.Context, ids []int64) archive.Summary {
	return s.batch(ctx, "archive_successful", ids, archive.SuccessNotes)
}

// ArchiveOld archives every candidate older than days (the configured
// threshold when days <= 0).
func (s *Service) ArchiveOld(ctx context.Context, days int) (archive.Summary, error) {
	cands, err := s.Candidates(ctx, days)
	if err != nil {
		return archive.Summary{}, err
	}
	sum := s.proc.ArchiveBatch(ctx, cands)
	s.refreshAfter(ctx, sum)
	return sum, nil
}

func (s *Service) batch(ctx context.Context, op string, ids []int64, plan archive.Planner) archive.Summary {
	sum := s.proc.BatchByID(ctx, op, ids, s.store.Get, plan)
	s.refreshAfter(ctx, sum)
	return sum
}

func (s *Service) refreshAfter(ctx context.Context, sum archive.Summary) {
	if sum.Succeeded == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archive.WriteTimeout)
	defer cancel()
	if _, err := s.cache.Refresh(ctx); err != nil {
		s.log.Warnw("refresh after batch failed", "err", err)
	}
}

// Candidates lists REFUSED and SIGNED requests that are not archived and
// are older than days (the configured threshold when days <= 0).
func (s *Service) Candidates(ctx context.Context, days int) ([]trial.Request, error) {
	if days <= 0 {
		days = s.threshold
	}
	rows, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	eligible := rows[:0]
	for _, r := range rows {
		if transition.CanArchive(r) == nil {
			eligible = append(eligible, r)
		}
	}
	return archive.FilterOld(eligible, days, s.now()), nil
}

/*──────────────────────── board and stats ───────────────────────*/

// Card is a request as rendered on the board.
type Card struct {
	trial.Request
	DisplayNotes string              `json:"displayNotes"`
	Archive      marker.ArchiveState `json:"archive"`
}

// NewCard decorates r for display.
func NewCard(r trial.Request) Card {
	return Card{Request: r, DisplayNotes: marker.Display(r), Archive: marker.State(r)}
}

// Column is one funnel column.
type Column struct {
	Status trial.Status `json:"status"`
	Cards  []Card       `json:"cards"`
}

// Board groups active requests by status in funnel order.  Archived cards
// are hidden.
func (s *Service) Board(ctx context.Context) ([]Column, error) {
	rows, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	cols := make([]Column, len(trial.Statuses))
	idx := make(map[trial.Status]int, len(trial.Statuses))
	for i, st := range trial.Statuses {
		cols[i] = Column{Status: st, Cards: []Card{}}
		idx[st] = i
	}
	for _, r := range rows {
		if isArchived(r) {
			continue
		}
		if i, ok := idx[r.Status]; ok {
			cols[i].Cards = append(cols[i].Cards, NewCard(r))
		}
	}
	return cols, nil
}

// Stats summarises the funnel.
type Stats struct {
	Total      int                  `json:"total"`
	ByStatus   map[trial.Status]int `json:"byStatus"`
	Archived   int                  `json:"archived"`
	Restored   int                  `json:"restored"`
	Successful int                  `json:"successful"`
}

// Stats counts requests per status and marker state.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.snapshot(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Total: len(rows), ByStatus: make(map[trial.Status]int, len(trial.Statuses))}
	for _, status := range trial.Statuses {
		st.ByStatus[status] = 0
	}
	for _, r := range rows {
		st.ByStatus[r.Status]++
		switch {
		case marker.IsArchived(r):
			st.Archived++
		case marker.IsRestored(r):
			st.Restored++
		}
		if marker.IsSuccessful(r) {
			st.Successful++
		}
	}
	return st, nil
}
