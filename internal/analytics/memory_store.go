package analytics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"jobmate/listing-service/internal/model"
)

type memBucket struct {
	mu       sync.Mutex
	day      time.Time
	visits   int64
	seen     map[model.Visitor]struct{}
	visitors []model.Visitor
	views    map[string]int64
	clicks   map[string]int64
	devices  map[string]int64
	browsers map[string]int64
}

// MemoryStore keeps buckets in process memory, each guarded by its own lock
// so concurrent events on one day serialise while other days proceed.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*memBucket
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]*memBucket)}
}

// bucket returns the day's bucket, creating it on first use.
func (s *MemoryStore) bucket(day time.Time) *memBucket {
	key := day.Format(dayLayout)
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[key]
	if !ok {
		b = &memBucket{
			day:      day,
			seen:     make(map[model.Visitor]struct{}),
			views:    make(map[string]int64),
			clicks:   make(map[string]int64),
			devices:  make(map[string]int64),
			browsers: make(map[string]int64),
		}
		s.buckets[key] = b
	}
	return b
}

func (s *MemoryStore) RecordVisit(_ context.Context, day time.Time, v model.Visitor, device, browser string) error {
	b := s.bucket(day)
	b.mu.Lock()
	defer b.mu.Unlock()

	b.visits++
	if _, ok := b.seen[v]; !ok {
		b.seen[v] = struct{}{}
		b.visitors = append(b.visitors, v)
	}
	b.devices[device]++
	b.browsers[browser]++
	return nil
}

func (s *MemoryStore) IncrementJob(_ context.Context, day time.Time, kind EventKind, jobID string) error {
	b := s.bucket(day)
	b.mu.Lock()
	defer b.mu.Unlock()

	switch kind {
	case EventView:
		b.views[jobID]++
	case EventClick:
		b.clicks[jobID]++
	default:
		return fmt.Errorf("unknown event kind %q", kind)
	}
	return nil
}

func (s *MemoryStore) Buckets(_ context.Context, from, to time.Time) ([]model.Bucket, error) {
	s.mu.Lock()
	selected := make([]*memBucket, 0, len(s.buckets))
	for _, b := range s.buckets {
		if !b.day.Before(from) && !b.day.After(to) {
			selected = append(selected, b)
		}
	}
	s.mu.Unlock()

	sort.Slice(selected, func(i, j int) bool { return selected[i].day.Before(selected[j].day) })

	out := make([]model.Bucket, 0, len(selected))
	for _, b := range selected {
		out = append(out, b.snapshot())
	}
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (b *memBucket) snapshot() model.Bucket {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := *model.NewBucket(b.day)
	out.WebsiteVisits = b.visits
	out.UniqueVisitors = append(out.UniqueVisitors, b.visitors...)
	copyCounts(out.JobViews, b.views)
	copyCounts(out.JobClicks, b.clicks)
	copyCounts(out.DeviceInfo, b.devices)
	copyCounts(out.BrowserInfo, b.browsers)
	return out
}

func copyCounts(dst, src map[string]int64) {
	for k, v := range src {
		dst[k] = v
	}
}
