package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jobmate/listing-service/internal/clock"
	"jobmate/listing-service/internal/lifecycle"
	"jobmate/listing-service/internal/scheduler"
)

var now = time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)

type fakeProcessor struct {
	calls   atomic.Int32
	release chan struct{}
	entered chan struct{}
	err     error
	panics  bool

	mu  sync.Mutex
	got []time.Time
}

func (p *fakeProcessor) ProcessTransitions(ctx context.Context, at time.Time) (lifecycle.TransitionResult, error) {
	p.calls.Add(1)
	p.mu.Lock()
	p.got = append(p.got, at)
	p.mu.Unlock()
	if p.panics {
		panic("boom")
	}
	if p.entered != nil {
		p.entered <- struct{}{}
	}
	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return lifecycle.TransitionResult{}, ctx.Err()
		}
	}
	return lifecycle.TransitionResult{MovedToDump: 2, MovedToInactive: 1}, p.err
}

func newScheduler(t *testing.T, p *fakeProcessor) *scheduler.Scheduler {
	t.Helper()
	s, err := scheduler.New(p, clock.NewFixed(now), zap.NewNop(), "03:00", time.Second)
	require.NoError(t, err)
	return s
}

func TestDailySpec(t *testing.T) {
	cases := map[string]string{
		"03:00": "0 3 * * *",
		"00:00": "0 0 * * *",
		"23:59": "59 23 * * *",
		"7:05":  "5 7 * * *",
	}
	for in, want := range cases {
		got, err := scheduler.DailySpec(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestDailySpec_Invalid(t *testing.T) {
	for _, in := range []string{"", "24:00", "12:60", "noon", "3pm"} {
		_, err := scheduler.DailySpec(in)
		assert.Error(t, err, in)
	}
}

func TestRunNow_UsesClock(t *testing.T) {
	p := &fakeProcessor{}
	s := newScheduler(t, p)

	res, ran, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, lifecycle.TransitionResult{MovedToDump: 2, MovedToInactive: 1}, res)
	require.Len(t, p.got, 1)
	assert.True(t, p.got[0].Equal(now))
}

func TestRunNow_SingleFlight(t *testing.T) {
	p := &fakeProcessor{release: make(chan struct{}), entered: make(chan struct{}, 1)}
	s := newScheduler(t, p)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ran, err := s.RunNow(context.Background())
		assert.True(t, ran)
		assert.NoError(t, err)
	}()
	<-p.entered

	_, ran, err := s.RunNow(context.Background())
	assert.False(t, ran)
	assert.NoError(t, err)

	close(p.release)
	<-done
	assert.Equal(t, int32(1), p.calls.Load())

	// The flag clears once the first pass returns.
	p.release, p.entered = nil, nil
	_, ran, _ = s.RunNow(context.Background())
	assert.True(t, ran)
}

func TestRunNow_FailureIsReturnedAndNextRunProceeds(t *testing.T) {
	p := &fakeProcessor{err: errors.New("db down")}
	s := newScheduler(t, p)

	res, ran, err := s.RunNow(context.Background())
	assert.True(t, ran)
	assert.Error(t, err)
	assert.Equal(t, int64(2), res.MovedToDump)

	p.err = nil
	_, ran, err = s.RunNow(context.Background())
	assert.True(t, ran)
	assert.NoError(t, err)
}

func TestRunNow_Timeout(t *testing.T) {
	p := &fakeProcessor{release: make(chan struct{})}
	s, err := scheduler.New(p, clock.NewFixed(now), zap.NewNop(), "03:00", 20*time.Millisecond)
	require.NoError(t, err)

	_, ran, err := s.RunNow(context.Background())
	assert.True(t, ran)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStart_RunsImmediately(t *testing.T) {
	p := &fakeProcessor{}
	s := newScheduler(t, p)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	assert.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	next := s.Next()
	assert.Equal(t, 3, next.Hour())
	assert.Equal(t, 0, next.Minute())
	assert.Equal(t, time.UTC, next.Location())
}

func TestStart_RecoversFromPanic(t *testing.T) {
	p := &fakeProcessor{panics: true}
	s := newScheduler(t, p)

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestNew_RejectsBadRunAt(t *testing.T) {
	_, err := scheduler.New(&fakeProcessor{}, clock.NewFixed(now), zap.NewNop(), "25:00", time.Second)
	assert.Error(t, err)
}
