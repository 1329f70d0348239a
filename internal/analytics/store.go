// Package analytics tallies site visits, listing views and outbound clicks
// into one bucket per UTC day and builds reports over those buckets.
package analytics

import (
	"context"
	"time"

	"jobmate/listing-service/internal/model"
)

// EventKind selects the per-job counter of a bucket.
type EventKind string

const (
	EventView  EventKind = "view"
	EventClick EventKind = "click"
)

// Store persists day buckets. Every write is an atomic increment on the
// bucket keyed by day; implementations never read-modify-write without a
// lock on that key.
type Store interface {
	// RecordVisit adds one visit to day, adds v to the day's unique set when
	// absent and counts the device and browser categories.
	RecordVisit(ctx context.Context, day time.Time, v model.Visitor, device, browser string) error
	// IncrementJob adds one view or click for jobID to day.
	IncrementJob(ctx context.Context, day time.Time, kind EventKind, jobID string) error
	// Buckets returns the buckets with from <= date <= to, ordered by date.
	Buckets(ctx context.Context, from, to time.Time) ([]model.Bucket, error)
	Ping(ctx context.Context) error
}

// JobResolver resolves job ids to the jobs that still exist.
type JobResolver interface {
	Lookup(ctx context.Context, ids []string) (map[string]model.Job, error)
}

const dayLayout = "2006-01-02"
