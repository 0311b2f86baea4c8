// internal/trial/store.go
//
// Persistence contract consumed by the funnel core.
//
// Every call is a suspension point: it blocks the calling goroutine until
// the database answers or ctx expires.  Implementations return the stored
// record after each write so callers never have to re-read.
package trial

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no row matches the requested id.
var ErrNotFound = errors.New("trial request not found")

// NotFound wraps ErrNotFound with the offending id.
func NotFound(id int64) error {
	return fmt.Errorf("trial request %d: %w", id, ErrNotFound)
}

// Store is the persistence collaborator.
type Store interface {
	Get(ctx context.Context, id int64) (Request, error)
	List(ctx context.Context) ([]Request, error)
	UpdateStatus(ctx context.Context, id int64, u StatusUpdate) (Request, error)
	UpdateFields(ctx context.Context, id int64, p FieldsPatch) (Request, error)
}

// Creator persists new public submissions.
type Creator interface {
	Create(ctx context.Context, r Request) (Request, error)
}
