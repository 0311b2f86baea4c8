// internal/trial/repository.go
//
// sqlx-backed implementation of Store and Creator.
//
// Context
// -------
// The repository speaks plain `?`-placeholder SQL and lets sqlx rebind it
// for the active driver, so the same statements serve MySQL (production),
// SQLite (CLI and tests), and Postgres via pgx.
//
// Workflow
// --------
//  1. Writes run one parameterised UPDATE with a SET list built from the
//     non-nil fields of the payload, always stamping updated_at.
//  2. The fresh row is re-read with Get so callers receive exactly what the
//     database stored.
//  3. A missing row surfaces as ErrNotFound.  MySQL reports zero affected
//     rows for no-op updates, so RowsAffected is never used for that check.
//
// Notes
// -----
//   - Column list matches the fields in Request; update both together.
//   - Errors are returned wrapped; the repository never logs.
package trial

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const selectColumns = `
        SELECT id, status, scheduled_date, desired_date, notes,
               child_name, child_age, parent_name, parent_phone,
               section_id, branch_id, source_city, source_country,
               created_at, updated_at
        FROM   trial_request`

// Repository reads and writes trial_request rows.
type Repository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewRepository wraps an open pool.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Get fetches one row by id.
func (r *Repository) Get(ctx context.Context, id int64) (Request, error) {
	q := r.db.Rebind(selectColumns + `
        WHERE  id = ?
        LIMIT  1`)
	var rec Request
	if err := r.db.GetContext(ctx, &rec, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Request{}, NotFound(id)
		}
		return Request{}, fmt.Errorf("get trial request %d: %w", id, err)
	}
	return rec, nil
}

// List returns every request, newest first.
func (r *Repository) List(ctx context.Context) ([]Request, error) {
	q := selectColumns + `
        ORDER  BY created_at DESC, id DESC`
	rows := make([]Request, 0, 64)
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("list trial requests: %w", err)
	}
	return rows, nil
}

// UpdateStatus writes status plus the optional scheduled date and notes.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, u StatusUpdate) (Request, error) {
	if !u.Status.Valid() {
		return Request{}, fmt.Errorf("update trial request %d: invalid status %q", id, u.Status)
	}
	sets := []string{"status = ?"}
	args := []any{string(u.Status)}
	if u.ScheduledDate != nil {
		sets = append(sets, "scheduled_date = ?")
		args = append(args, u.ScheduledDate.UTC())
	}
	if u.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, *u.Notes)
	}
	return r.update(ctx, id, sets, args)
}

// UpdateFields applies a partial edit.  An empty patch only re-reads the row.
func (r *Repository) UpdateFields(ctx context.Context, id int64, p FieldsPatch) (Request, error) {
	if p.Empty() {
		return r.Get(ctx, id)
	}
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if p.Notes != nil {
		add("notes", *p.Notes)
	}
	if p.ChildName != nil {
		add("child_name", *p.ChildName)
	}
	if p.ChildAge != nil {
		add("child_age", *p.ChildAge)
	}
	if p.ParentName != nil {
		add("parent_name", *p.ParentName)
	}
	if p.ParentPhone != nil {
		add("parent_phone", *p.ParentPhone)
	}
	if p.SectionID != nil {
		add("section_id", *p.SectionID)
	}
	if p.BranchID != nil {
		add("branch_id", *p.BranchID)
	}
	return r.update(ctx, id, sets, args)
}

func (r *Repository) update(ctx context.Context, id int64, sets []string, args []any) (Request, error) {
	sets = append(sets, "updated_at = ?")
	args = append(args, r.now(), id)
	q := r.db.Rebind(`UPDATE trial_request SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return Request{}, fmt.Errorf("update trial request %d: %w", id, err)
	}
	return r.Get(ctx, id)
}

// Create inserts a NEW request and returns the stored row.
func (r *Repository) Create(ctx context.Context, rec Request) (Request, error) {
	if rec.Status == "" {
		rec.Status = StatusNew
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}
	const insert = `
        INSERT INTO trial_request
               (status, scheduled_date, desired_date, notes,
                child_name, child_age, parent_name, parent_phone,
                section_id, branch_id, source_city, source_country,
                created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args := []any{
		string(rec.Status), rec.ScheduledDate, rec.DesiredDate.UTC(), rec.Notes,
		rec.ChildName, rec.ChildAge, rec.ParentName, rec.ParentPhone,
		rec.SectionID, rec.BranchID, rec.SourceCity, rec.SourceCountry,
		rec.CreatedAt.UTC(),
	}

	var id int64
	if r.db.DriverName() == "pgx" {
		// pgx has no LastInsertId; ask Postgres for the key instead.
		q := r.db.Rebind(insert + ` RETURNING id`)
		if err := r.db.QueryRowxContext(ctx, q, args...).Scan(&id); err != nil {
			return Request{}, fmt.Errorf("create trial request: %w", err)
		}
	} else {
		res, err := r.db.ExecContext(ctx, r.db.Rebind(insert), args...)
		if err != nil {
			return Request{}, fmt.Errorf("create trial request: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return Request{}, fmt.Errorf("create trial request: %w", err)
		}
	}
	return r.Get(ctx, id)
}

// compile-time assertions
var (
	_ Store   = (*Repository)(nil)
	_ Creator = (*Repository)(nil)
)
