package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"jobmate/listing-service/internal/model"
)

// MemoryStore keeps jobs in process memory. It backs local development
// (STORE_BACKEND=memory) and the package tests. All methods are serialised
// by one mutex, which gives the same per-document atomicity as the SQL store.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*model.Job)}
}

func (s *MemoryStore) Insert(_ context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	for _, other := range s.jobs {
		if other.ExternalID == job.ExternalID {
			return ErrDuplicateExternalID
		}
	}
	s.jobs[job.ID] = copyJob(job)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNoJob
	}
	return copyJob(job), nil
}

func (s *MemoryStore) List(_ context.Context, status model.Status) ([]model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if status != "" && job.Status != status {
			continue
		}
		out = append(out, *copyJob(job))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DatePosted.Equal(out[j].DatePosted) {
			return out[i].DatePosted.After(out[j].DatePosted)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) Lookup(_ context.Context, ids []string) (map[string]model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.Job, len(ids))
	for _, id := range ids {
		if job, ok := s.jobs[id]; ok {
			out[id] = *copyJob(job)
		}
	}
	return out, nil
}

func (s *MemoryStore) MoveActiveToDump(_ context.Context, cutoff, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, job := range s.jobs {
		if job.Status == model.StatusActive && !job.DatePosted.After(cutoff) {
			Apply(job, model.StatusDump, now)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) MoveDumpToInactive(_ context.Context, cutoff, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, job := range s.jobs {
		if job.Status == model.StatusDump && job.MovedToDumpAt != nil && !job.MovedToDumpAt.After(cutoff) {
			Apply(job, model.StatusInactive, now)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Transition(_ context.Context, id string, target model.Status, now time.Time) (model.Status, *model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return "", nil, ErrNoJob
	}
	from := job.Status
	Apply(job, target, now)
	return from, copyJob(job), nil
}

func (s *MemoryStore) Increment(_ context.Context, id string, c Counter, now time.Time) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNoJob
	}
	t := now
	switch c {
	case CounterViews:
		job.Views++
		job.LastViewedAt = &t
	case CounterClicks:
		job.Clicks++
		job.LastClickedAt = &t
	default:
		return nil, fmt.Errorf("unknown counter %q", c)
	}
	return copyJob(job), nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func copyJob(j *model.Job) *model.Job {
	c := *j
	c.Skills = append([]string{}, j.Skills...)
	c.Keywords = append([]string{}, j.Keywords...)
	c.MovedToDumpAt = copyTime(j.MovedToDumpAt)
	c.LastViewedAt = copyTime(j.LastViewedAt)
	c.LastClickedAt = copyTime(j.LastClickedAt)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
