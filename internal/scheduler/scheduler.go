// Package scheduler wires up the cron job that runs the lifecycle pass once a
// day at a fixed UTC time, plus once at startup to absorb any backlog.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"jobmate/listing-service/internal/clock"
	"jobmate/listing-service/internal/lifecycle"
)

// Processor runs one lifecycle pass.
type Processor interface {
	ProcessTransitions(ctx context.Context, now time.Time) (lifecycle.TransitionResult, error)
}

// Scheduler wraps robfig/cron and keeps at most one pass in flight.
type Scheduler struct {
	cron      *cron.Cron
	job       cron.Job
	processor Processor
	clock     clock.Clock
	logger    *zap.Logger
	spec      string // cron spec, e.g. "0 3 * * *"
	timeout   time.Duration

	running atomic.Bool
	wg      sync.WaitGroup
	ctx     context.Context
}

// DailySpec turns an "HH:MM" time of day into a five-field cron spec.
func DailySpec(runAt string) (string, error) {
	t, err := time.Parse("15:04", runAt)
	if err != nil {
		return "", fmt.Errorf("run-at %q: want HH:MM", runAt)
	}
	return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), nil
}

// New creates a Scheduler that fires every day at runAt UTC. Each pass is
// bounded by timeout.
func New(processor Processor, clk clock.Clock, logger *zap.Logger, runAt string, timeout time.Duration) (*Scheduler, error) {
	spec, err := DailySpec(runAt)
	if err != nil {
		return nil, err
	}
	cl := cronLogger{logger.Sugar()}
	s := &Scheduler{
		cron:      cron.New(cron.WithLocation(time.UTC), cron.WithLogger(cl)),
		processor: processor,
		clock:     clk,
		logger:    logger,
		spec:      spec,
		timeout:   timeout,
		ctx:       context.Background(),
	}
	s.job = cron.NewChain(cron.Recover(cl)).Then(cron.FuncJob(s.tick))
	return s, nil
}

// Start registers the job and starts the scheduler. Also runs one pass
// immediately so jobs that aged while the process was down move without
// waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx = ctx
	if _, err := s.cron.AddJob(s.spec, s.job); err != nil {
		return fmt.Errorf("cron.AddJob: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.spec), zap.Time("next", s.Next()))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.job.Run()
	}()
	return nil
}

// Stop halts the cron loop and waits for an in-flight pass, up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		<-s.cron.Stop().Done()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out with a pass still running")
	}
}

// Next reports when the next scheduled pass fires, or the zero time before
// Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunNow runs a pass synchronously unless one is already in flight, in which
// case it returns ran=false without waiting.
func (s *Scheduler) RunNow(ctx context.Context) (res lifecycle.TransitionResult, ran bool, err error) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Info("lifecycle pass already running, skipping")
		return res, false, nil
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	began := time.Now()
	res, err = s.processor.ProcessTransitions(ctx, s.clock.Now())
	if err != nil {
		s.logger.Error("lifecycle pass failed",
			zap.Int64("moved_to_dump", res.MovedToDump),
			zap.Int64("moved_to_inactive", res.MovedToInactive),
			zap.Error(err))
		return res, true, err
	}
	s.logger.Info("lifecycle pass finished", zap.Duration("took", time.Since(began)))
	return res, true, nil
}

// tick is the cron entry point. Failures are logged by RunNow and retried at
// the next tick.
func (s *Scheduler) tick() {
	_, _, _ = s.RunNow(s.ctx)
}

// cronLogger adapts zap to cron.Logger. Cron's own scheduling chatter goes
// to debug.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
