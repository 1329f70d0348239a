package lifecycle

import (
	"context"
	"errors"
	"time"

	"jobmate/listing-service/internal/model"
)

// ErrNoJob is returned by a Store when the addressed job does not exist.
var ErrNoJob = errors.New("job does not exist")

// ErrDuplicateExternalID is returned by Insert when another job already
// carries the same external id.
var ErrDuplicateExternalID = errors.New("external id already in use")

// Counter selects which interaction counter Increment bumps.
type Counter string

const (
	CounterViews  Counter = "views"
	CounterClicks Counter = "clicks"
)

// Store is the persistence contract of the engine. Every method is a single
// atomic operation on the underlying storage.
type Store interface {
	Insert(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, id string) (*model.Job, error)
	// List returns jobs newest first. An empty status lists every job.
	List(ctx context.Context, status model.Status) ([]model.Job, error)
	// Lookup returns the subset of ids that still exist, keyed by id.
	Lookup(ctx context.Context, ids []string) (map[string]model.Job, error)

	// MoveActiveToDump moves every active job posted at or before cutoff to
	// dump, stamping movedToDumpAt and lastStatusChange with now.
	MoveActiveToDump(ctx context.Context, cutoff, now time.Time) (int64, error)
	// MoveDumpToInactive deactivates every dumped job whose movedToDumpAt is
	// at or before cutoff, stamping lastStatusChange with now.
	MoveDumpToInactive(ctx context.Context, cutoff, now time.Time) (int64, error)

	// Transition unconditionally sets one job's status, following Apply.
	// It returns the status the job had before and the updated job.
	Transition(ctx context.Context, id string, target model.Status, now time.Time) (model.Status, *model.Job, error)
	Increment(ctx context.Context, id string, c Counter, now time.Time) (*model.Job, error)

	Ping(ctx context.Context) error
}
