package analytics

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"jobmate/listing-service/internal/clock"
	apperr "jobmate/listing-service/internal/errors"
	"jobmate/listing-service/internal/model"
	"jobmate/listing-service/internal/telemetry"
)

var tracer = telemetry.GetTracer("jobmate/listing-service/analytics")

// MaxDashboardDays bounds Dashboard's look-back window.
const MaxDashboardDays = 366

// ─── Report types ────────────────────────────────────────────────────────────

// JobStat is one per-job counter resolved against the job catalogue.
type JobStat struct {
	JobID      string `json:"jobId"`
	ExternalID string `json:"externalId"`
	Company    string `json:"company"`
	Role       string `json:"role"`
	Status     string `json:"status"`
	Count      int64  `json:"count"`
}

// DailyReport is a bucket as surfaced to reporting: visitor identities are
// reduced to a count and per-job entries only cover jobs that still exist.
type DailyReport struct {
	Date           time.Time        `json:"date"`
	WebsiteVisits  int64            `json:"websiteVisits"`
	UniqueVisitors int64            `json:"uniqueVisitors"`
	JobViews       []JobStat        `json:"jobViews"`
	JobClicks      []JobStat        `json:"jobClicks"`
	DeviceInfo     map[string]int64 `json:"deviceInfo"`
	BrowserInfo    map[string]int64 `json:"browserInfo"`
}

// Dashboard rolls up the last Days calendar days, today included.
type Dashboard struct {
	Days                int              `json:"days"`
	From                time.Time        `json:"from"`
	To                  time.Time        `json:"to"`
	TotalVisits         int64            `json:"totalVisits"`
	TotalUniqueVisitors int64            `json:"totalUniqueVisitors"`
	TotalJobViews       int64            `json:"totalJobViews"`
	TotalJobClicks      int64            `json:"totalJobClicks"`
	ConversionRate      float64          `json:"conversionRate"`
	Devices             map[string]int64 `json:"devices"`
	Browsers            map[string]int64 `json:"browsers"`
	DailyBuckets        []DailyReport    `json:"dailyBuckets"`
}

// ─── Aggregator ──────────────────────────────────────────────────────────────

// Aggregator records interaction events into day buckets and reports on them.
// Recording is best-effort: failures are logged, never returned.
type Aggregator struct {
	store  Store
	jobs   JobResolver
	clock  clock.Clock
	logger *zap.Logger
}

func NewAggregator(store Store, jobs JobResolver, clk clock.Clock, logger *zap.Logger) *Aggregator {
	return &Aggregator{store: store, jobs: jobs, clock: clk, logger: logger}
}

// RecordVisit counts one site visit on now's day. The (clientID, userAgent)
// pair joins the day's unique set only once; the visit counter always moves.
func (a *Aggregator) RecordVisit(ctx context.Context, clientID, userAgent string, now time.Time) {
	ctx, span := tracer.Start(ctx, "Aggregator.RecordVisit")
	defer span.End()

	day := clock.Day(now)
	device := ClassifyDevice(userAgent)
	browser := ClassifyBrowser(userAgent)
	span.SetAttributes(telemetry.String("device", device), telemetry.String("browser", browser))

	v := model.Visitor{ClientID: clientID, UserAgent: userAgent}
	if err := a.store.RecordVisit(ctx, day, v, device, browser); err != nil {
		span.RecordError(err)
		a.logger.Warn("record visit failed",
			zap.Time("day", day),
			zap.String("device", device),
			zap.String("browser", browser),
			zap.Error(err))
	}
}

// RecordJobView counts one listing view for jobID on now's day.
func (a *Aggregator) RecordJobView(ctx context.Context, jobID string, now time.Time) {
	a.recordJob(ctx, EventView, jobID, now)
}

// RecordJobClick counts one outbound click for jobID on now's day.
func (a *Aggregator) RecordJobClick(ctx context.Context, jobID string, now time.Time) {
	a.recordJob(ctx, EventClick, jobID, now)
}

func (a *Aggregator) recordJob(ctx context.Context, kind EventKind, jobID string, now time.Time) {
	ctx, span := tracer.Start(ctx, "Aggregator.recordJob")
	defer span.End()
	span.SetAttributes(telemetry.String("event.kind", string(kind)), telemetry.String("job.id", jobID))

	day := clock.Day(now)
	if err := a.store.IncrementJob(ctx, day, kind, jobID); err != nil {
		span.RecordError(err)
		a.logger.Warn("record job event failed",
			zap.String("kind", string(kind)),
			zap.String("job_id", jobID),
			zap.Time("day", day),
			zap.Error(err))
	}
}

// RangeQuery returns the reports of every bucket dated within [start, end],
// both ends truncated to their UTC day, ordered by date. Per-job entries
// whose job no longer exists are dropped from the result; stored counts are
// not touched.
func (a *Aggregator) RangeQuery(ctx context.Context, start, end time.Time) ([]DailyReport, error) {
	ctx, span := tracer.Start(ctx, "Aggregator.RangeQuery")
	defer span.End()

	from, to := clock.Day(start), clock.Day(end)
	if to.Before(from) {
		return nil, apperr.InvalidInput("end date is before start date", nil)
	}

	buckets, err := a.store.Buckets(ctx, from, to)
	if err != nil {
		span.RecordError(err)
		return nil, apperr.StorageFailure("load analytics buckets", err)
	}

	jobs, err := a.resolveJobs(ctx, buckets)
	if err != nil {
		span.RecordError(err)
		return nil, apperr.StorageFailure("resolve jobs", err)
	}

	reports := make([]DailyReport, 0, len(buckets))
	for i := range buckets {
		reports = append(reports, buildReport(&buckets[i], jobs))
	}
	span.SetAttributes(telemetry.Int("buckets.count", len(reports)))
	return reports, nil
}

// Dashboard rolls up the last days calendar days including today.
// ConversionRate is clicks per hundred views, rounded to two decimals, and 0
// when there were no views.
func (a *Aggregator) Dashboard(ctx context.Context, days int) (*Dashboard, error) {
	if days < 1 || days > MaxDashboardDays {
		return nil, apperr.InvalidInput("days must be between 1 and 366", nil)
	}

	to := clock.Day(a.clock.Now())
	from := to.AddDate(0, 0, -(days - 1))

	reports, err := a.RangeQuery(ctx, from, to)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{
		Days:         days,
		From:         from,
		To:           to,
		Devices:      map[string]int64{},
		Browsers:     map[string]int64{},
		DailyBuckets: reports,
	}
	for _, r := range reports {
		d.TotalVisits += r.WebsiteVisits
		d.TotalUniqueVisitors += r.UniqueVisitors
		for _, s := range r.JobViews {
			d.TotalJobViews += s.Count
		}
		for _, s := range r.JobClicks {
			d.TotalJobClicks += s.Count
		}
		for k, v := range r.DeviceInfo {
			d.Devices[k] += v
		}
		for k, v := range r.BrowserInfo {
			d.Browsers[k] += v
		}
	}
	d.ConversionRate = ConversionRate(d.TotalJobClicks, d.TotalJobViews)
	return d, nil
}

// ConversionRate returns 100*clicks/views rounded to two decimals, or 0 when
// views is 0.
func ConversionRate(clicks, views int64) float64 {
	if views == 0 {
		return 0
	}
	return math.Round(float64(clicks)/float64(views)*100*100) / 100
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func (a *Aggregator) resolveJobs(ctx context.Context, buckets []model.Bucket) (map[string]model.Job, error) {
	seen := make(map[string]struct{})
	var ids []string
	for i := range buckets {
		for _, m := range []map[string]int64{buckets[i].JobViews, buckets[i].JobClicks} {
			for id := range m {
				if _, ok := seen[id]; !ok {
					seen[id] = struct{}{}
					ids = append(ids, id)
				}
			}
		}
	}
	if len(ids) == 0 {
		return map[string]model.Job{}, nil
	}
	return a.jobs.Lookup(ctx, ids)
}

func buildReport(b *model.Bucket, jobs map[string]model.Job) DailyReport {
	return DailyReport{
		Date:           b.Date,
		WebsiteVisits:  b.WebsiteVisits,
		UniqueVisitors: int64(len(b.UniqueVisitors)),
		JobViews:       resolveStats(b.JobViews, jobs),
		JobClicks:      resolveStats(b.JobClicks, jobs),
		DeviceInfo:     b.DeviceInfo,
		BrowserInfo:    b.BrowserInfo,
	}
}

// resolveStats keeps only counts whose job exists, highest count first.
func resolveStats(counts map[string]int64, jobs map[string]model.Job) []JobStat {
	stats := make([]JobStat, 0, len(counts))
	for id, n := range counts {
		job, ok := jobs[id]
		if !ok {
			continue
		}
		stats = append(stats, JobStat{
			JobID:      id,
			ExternalID: job.ExternalID,
			Company:    job.Company,
			Role:       job.Role,
			Status:     string(job.Status),
			Count:      n,
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].JobID < stats[j].JobID
	})
	return stats
}
