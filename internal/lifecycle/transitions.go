// Package lifecycle defines the job posting state machine and the engine that
// applies it.
//
// Status graph:
//
//	active ──(7d since datePosted)──► dump ──(30d since movedToDumpAt)──► inactive
//	   ▲                                │                                   │
//	   └──────────── reactivate (manual) ┴───────────────────────────────────┘
//
// Automatic moves only go forward. Any status can be set manually.
package lifecycle

import (
	"fmt"
	"time"

	"jobmate/listing-service/internal/model"
)

const (
	// DumpAfter is the elapsed time since datePosted after which an active
	// job is moved to dump.
	DumpAfter = 7 * 24 * time.Hour
	// InactiveAfter is the elapsed time since movedToDumpAt after which a
	// dumped job is deactivated.
	InactiveAfter = 30 * 24 * time.Hour
)

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (model.Status, error) {
	st := model.Status(s)
	switch st {
	case model.StatusActive, model.StatusDump, model.StatusInactive:
		return st, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// ShouldMoveToDump reports whether the automatic pass moves job to dump at now.
// Age is elapsed duration, not calendar-day difference.
func ShouldMoveToDump(job *model.Job, now time.Time) bool {
	return job.Status == model.StatusActive && now.Sub(job.DatePosted) >= DumpAfter
}

// ShouldMoveToInactive reports whether the automatic pass deactivates job at now.
func ShouldMoveToInactive(job *model.Job, now time.Time) bool {
	if job.Status != model.StatusDump || job.MovedToDumpAt == nil {
		return false
	}
	return now.Sub(*job.MovedToDumpAt) >= InactiveAfter
}

// Apply sets job to the target status as of now, keeping the lifecycle
// fields consistent:
//   - movedToDumpAt is set iff status is dump or inactive
//   - isActive is false iff status is inactive
//   - lastStatusChange is always stamped
//
// Moving to dump always restamps movedToDumpAt. Moving to inactive keeps an
// existing movedToDumpAt. Reactivation restarts the 7-day clock.
func Apply(job *model.Job, target model.Status, now time.Time) {
	switch target {
	case model.StatusActive:
		job.MovedToDumpAt = nil
		job.DatePosted = now
		job.IsActive = true
	case model.StatusDump:
		t := now
		job.MovedToDumpAt = &t
		job.IsActive = true
	case model.StatusInactive:
		if job.MovedToDumpAt == nil {
			t := now
			job.MovedToDumpAt = &t
		}
		job.IsActive = false
	}
	job.Status = target
	job.LastStatusChange = now
	job.UpdatedAt = now
}
