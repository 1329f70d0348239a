package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobmate/listing-service/internal/model"
)

// PostgresStore keeps buckets in the analytics_* tables. Counters are
// incremented with INSERT ... ON CONFLICT DO UPDATE, so concurrent writers
// never lose updates.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) RecordVisit(ctx context.Context, day time.Time, v model.Visitor, device, browser string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		b.Queue(
			`INSERT INTO analytics_days (day, website_visits) VALUES ($1, 1)
			 ON CONFLICT (day) DO UPDATE SET website_visits = analytics_days.website_visits + 1`,
			day)
		b.Queue(
			`INSERT INTO analytics_visitors (day, client_id, user_agent) VALUES ($1, $2, $3)
			 ON CONFLICT (day, client_id, user_agent) DO NOTHING`,
			day, v.ClientID, v.UserAgent)
		b.Queue(
			`INSERT INTO analytics_breakdowns (day, dimension, category, count)
			 VALUES ($1, 'device', $2, 1), ($1, 'browser', $3, 1)
			 ON CONFLICT (day, dimension, category) DO UPDATE SET count = analytics_breakdowns.count + 1`,
			day, device, browser)

		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("record visit: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) IncrementJob(ctx context.Context, day time.Time, kind EventKind, jobID string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		b.Queue(`INSERT INTO analytics_days (day) VALUES ($1) ON CONFLICT (day) DO NOTHING`, day)
		b.Queue(
			`INSERT INTO analytics_job_events (day, kind, job_id, count) VALUES ($1, $2, $3, 1)
			 ON CONFLICT (day, kind, job_id) DO UPDATE SET count = analytics_job_events.count + 1`,
			day, string(kind), jobID)

		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("increment job %s: %w", kind, err)
		}
		return nil
	})
}

func (s *PostgresStore) Buckets(ctx context.Context, from, to time.Time) ([]model.Bucket, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT day, website_visits FROM analytics_days
		 WHERE day BETWEEN $1 AND $2
		 ORDER BY day`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("buckets query: %w", err)
	}

	var ordered []*model.Bucket
	index := make(map[string]*model.Bucket)
	for rows.Next() {
		var (
			day    time.Time
			visits int64
		)
		if err := rows.Scan(&day, &visits); err != nil {
			rows.Close()
			return nil, fmt.Errorf("buckets scan: %w", err)
		}
		b := model.NewBucket(day.UTC())
		b.WebsiteVisits = visits
		ordered = append(ordered, b)
		index[b.Date.Format(dayLayout)] = b
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("buckets rows: %w", err)
	}
	buckets := make([]model.Bucket, 0, len(ordered))
	if len(ordered) == 0 {
		return buckets, nil
	}

	if err := s.scanVisitors(ctx, from, to, index); err != nil {
		return nil, err
	}
	if err := s.scanCounts(ctx,
		`SELECT day, kind, job_id, count FROM analytics_job_events WHERE day BETWEEN $1 AND $2`,
		from, to, index, func(b *model.Bucket, dim string) map[string]int64 {
			if dim == string(EventClick) {
				return b.JobClicks
			}
			return b.JobViews
		}); err != nil {
		return nil, err
	}
	if err := s.scanCounts(ctx,
		`SELECT day, dimension, category, count FROM analytics_breakdowns WHERE day BETWEEN $1 AND $2`,
		from, to, index, func(b *model.Bucket, dim string) map[string]int64 {
			if dim == "browser" {
				return b.BrowserInfo
			}
			return b.DeviceInfo
		}); err != nil {
		return nil, err
	}

	for _, b := range ordered {
		buckets = append(buckets, *b)
	}
	return buckets, nil
}

func (s *PostgresStore) scanVisitors(ctx context.Context, from, to time.Time, index map[string]*model.Bucket) error {
	rows, err := s.pool.Query(ctx,
		`SELECT day, client_id, user_agent FROM analytics_visitors
		 WHERE day BETWEEN $1 AND $2
		 ORDER BY day, client_id, user_agent`,
		from, to)
	if err != nil {
		return fmt.Errorf("visitors query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			day time.Time
			v   model.Visitor
		)
		if err := rows.Scan(&day, &v.ClientID, &v.UserAgent); err != nil {
			return fmt.Errorf("visitors scan: %w", err)
		}
		if b, ok := index[day.UTC().Format(dayLayout)]; ok {
			b.UniqueVisitors = append(b.UniqueVisitors, v)
		}
	}
	return rows.Err()
}

func (s *PostgresStore) scanCounts(
	ctx context.Context,
	query string,
	from, to time.Time,
	index map[string]*model.Bucket,
	target func(b *model.Bucket, dim string) map[string]int64,
) error {
	rows, err := s.pool.Query(ctx, query, from, to)
	if err != nil {
		return fmt.Errorf("counts query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			day      time.Time
			dim, key string
			count    int64
		)
		if err := rows.Scan(&day, &dim, &key, &count); err != nil {
			return fmt.Errorf("counts scan: %w", err)
		}
		if b, ok := index[day.UTC().Format(dayLayout)]; ok {
			target(b, dim)[key] = count
		}
	}
	return rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
