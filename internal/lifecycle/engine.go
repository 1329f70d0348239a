package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"jobmate/listing-service/internal/clock"
	apperr "jobmate/listing-service/internal/errors"
	"jobmate/listing-service/internal/events"
	"jobmate/listing-service/internal/model"
	"jobmate/listing-service/internal/telemetry"
)

var tracer = telemetry.GetTracer("jobmate/listing-service/lifecycle")

// ─── Engine ──────────────────────────────────────────────────────────────────

// Engine applies the lifecycle state machine to stored jobs.
// It is transport-agnostic and keeps no job state between calls.
type Engine struct {
	store     Store
	clock     clock.Clock
	publisher events.Publisher
	logger    *zap.Logger
}

// NewEngine returns a configured Engine. A nil publisher drops events.
func NewEngine(store Store, clk clock.Clock, publisher events.Publisher, logger *zap.Logger) *Engine {
	if publisher == nil {
		publisher = events.Nop()
	}
	return &Engine{store: store, clock: clk, publisher: publisher, logger: logger}
}

// TransitionResult reports how many jobs one automatic pass moved.
type TransitionResult struct {
	MovedToDump     int64 `json:"movedToDump"`
	MovedToInactive int64 `json:"movedToInactive"`
}

// ─── Automatic pass ──────────────────────────────────────────────────────────

// ProcessTransitions moves aged active jobs to dump, then aged dumped jobs to
// inactive. The dump step stamps movedToDumpAt = now, so a job moved in the
// first step is never eligible for the second one in the same pass; calling
// it twice with the same now moves nothing the second time.
//
// Each step is a single bulk update. When the second step fails the result
// still carries the count of the first.
func (e *Engine) ProcessTransitions(ctx context.Context, now time.Time) (TransitionResult, error) {
	ctx, span := tracer.Start(ctx, "Engine.ProcessTransitions")
	defer span.End()

	var res TransitionResult

	dumped, err := e.store.MoveActiveToDump(ctx, now.Add(-DumpAfter), now)
	if err != nil {
		span.RecordError(err)
		return res, apperr.StorageFailure("move active jobs to dump", err)
	}
	res.MovedToDump = dumped

	deactivated, err := e.store.MoveDumpToInactive(ctx, now.Add(-InactiveAfter), now)
	if err != nil {
		span.RecordError(err)
		return res, apperr.StorageFailure("move dumped jobs to inactive", err)
	}
	res.MovedToInactive = deactivated

	span.SetAttributes(
		telemetry.Int64("jobs.moved_to_dump", res.MovedToDump),
		telemetry.Int64("jobs.moved_to_inactive", res.MovedToInactive),
	)
	e.logger.Info("lifecycle pass complete",
		zap.Time("now", now),
		zap.Int64("moved_to_dump", res.MovedToDump),
		zap.Int64("moved_to_inactive", res.MovedToInactive))

	e.publish(ctx, events.SubjectLifecyclePass, events.LifecyclePass{
		Type:            events.SubjectLifecyclePass,
		MovedToDump:     res.MovedToDump,
		MovedToInactive: res.MovedToInactive,
		At:              now,
	})

	return res, nil
}

// ─── Manual transitions ──────────────────────────────────────────────────────

// ReactivateJob moves a job back to active from any status and restarts its
// 7-day clock. View and click counters are kept.
func (e *Engine) ReactivateJob(ctx context.Context, id string) (*model.Job, error) {
	return e.transition(ctx, id, model.StatusActive)
}

// MoveToDump moves a job to dump regardless of its age.
func (e *Engine) MoveToDump(ctx context.Context, id string) (*model.Job, error) {
	return e.transition(ctx, id, model.StatusDump)
}

// MoveToInactive deactivates a job regardless of its age.
func (e *Engine) MoveToInactive(ctx context.Context, id string) (*model.Job, error) {
	return e.transition(ctx, id, model.StatusInactive)
}

func (e *Engine) transition(ctx context.Context, id string, target model.Status) (*model.Job, error) {
	ctx, span := tracer.Start(ctx, "Engine.transition")
	defer span.End()
	span.SetAttributes(telemetry.String("job.id", id), telemetry.String("job.target", string(target)))

	now := e.clock.Now()
	from, job, err := e.store.Transition(ctx, id, target, now)
	if err != nil {
		span.RecordError(err)
		return nil, e.storeError(err, id, "transition job")
	}

	e.logger.Info("job status changed",
		zap.String("job_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(target)))

	e.publish(ctx, events.SubjectJobStatusChanged, events.JobStatusChanged{
		Type:  events.SubjectJobStatusChanged,
		JobID: id,
		From:  string(from),
		To:    string(target),
		At:    now,
	})

	return job, nil
}

// ─── Counters ────────────────────────────────────────────────────────────────

// IncrementView bumps views and lastViewedAt. It does not check status.
func (e *Engine) IncrementView(ctx context.Context, id string) (*model.Job, error) {
	return e.increment(ctx, id, CounterViews)
}

// IncrementClick bumps clicks and lastClickedAt. It does not check status.
func (e *Engine) IncrementClick(ctx context.Context, id string) (*model.Job, error) {
	return e.increment(ctx, id, CounterClicks)
}

func (e *Engine) increment(ctx context.Context, id string, c Counter) (*model.Job, error) {
	job, err := e.store.Increment(ctx, id, c, e.clock.Now())
	if err != nil {
		return nil, e.storeError(err, id, "increment "+string(c))
	}
	return job, nil
}

// ─── Catalogue ───────────────────────────────────────────────────────────────

// JobInput carries the descriptive fields of a new posting.
type JobInput struct {
	ExternalID     string   `json:"externalId"`
	Company        string   `json:"company"`
	Role           string   `json:"role"`
	Location       string   `json:"location"`
	Experience     string   `json:"experience"`
	Description    string   `json:"description"`
	Degree         string   `json:"degree"`
	EmploymentType string   `json:"employmentType"`
	HiringLink     string   `json:"hiringLink"`
	Skills         []string `json:"skills"`
	Keywords       []string `json:"keywords"`
}

func (in JobInput) validate() error {
	if strings.TrimSpace(in.Company) == "" {
		return apperr.InvalidInput("company is required", nil)
	}
	if strings.TrimSpace(in.Role) == "" {
		return apperr.InvalidInput("role is required", nil)
	}
	u, err := url.Parse(in.HiringLink)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperr.InvalidInput("hiringLink must be an absolute http(s) URL", err)
	}
	return nil
}

// CreateJob inserts a new active posting dated now.
func (e *Engine) CreateJob(ctx context.Context, in JobInput) (*model.Job, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	job := &model.Job{
		ID:               uuid.NewString(),
		ExternalID:       in.ExternalID,
		Company:          strings.TrimSpace(in.Company),
		Role:             strings.TrimSpace(in.Role),
		Location:         in.Location,
		Experience:       in.Experience,
		Description:      in.Description,
		Degree:           in.Degree,
		EmploymentType:   in.EmploymentType,
		HiringLink:       in.HiringLink,
		Skills:           nonNil(in.Skills),
		Keywords:         nonNil(in.Keywords),
		Status:           model.StatusActive,
		DatePosted:       now,
		LastStatusChange: now,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if job.ExternalID == "" {
		job.ExternalID = "JOB-" + strings.ToUpper(strings.ReplaceAll(job.ID, "-", "")[:10])
	}

	if err := e.store.Insert(ctx, job); err != nil {
		if errors.Is(err, ErrDuplicateExternalID) {
			return nil, apperr.InvalidInput(fmt.Sprintf("externalId %s is already in use", job.ExternalID), err)
		}
		return nil, apperr.StorageFailure("insert job", err)
	}
	e.logger.Info("job created", zap.String("job_id", job.ID), zap.String("external_id", job.ExternalID))
	return job, nil
}

// GetJob returns one job by internal id.
func (e *Engine) GetJob(ctx context.Context, id string) (*model.Job, error) {
	job, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, e.storeError(err, id, "get job")
	}
	return job, nil
}

// ListJobs lists jobs, optionally filtered by a status string.
func (e *Engine) ListJobs(ctx context.Context, status string) ([]model.Job, error) {
	var st model.Status
	if status != "" {
		parsed, err := ParseStatus(status)
		if err != nil {
			return nil, apperr.InvalidInput(err.Error(), nil)
		}
		st = parsed
	}
	jobs, err := e.store.List(ctx, st)
	if err != nil {
		return nil, apperr.StorageFailure("list jobs", err)
	}
	return jobs, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func (e *Engine) storeError(err error, id, op string) error {
	if errors.Is(err, ErrNoJob) {
		return apperr.NotFound(fmt.Sprintf("job %s not found", id), nil)
	}
	return apperr.StorageFailure(op, err)
}

// publish sends an event; failures are logged only.
func (e *Engine) publish(ctx context.Context, subject string, event any) {
	if err := e.publisher.Publish(ctx, subject, event); err != nil {
		e.logger.Warn("publish failed", zap.String("subject", subject), zap.Error(err))
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
