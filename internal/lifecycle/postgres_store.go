package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobmate/listing-service/internal/model"
)

const jobColumns = `
	id::text, external_id, company, role, location, experience, description,
	degree, employment_type, hiring_link, skills, keywords,
	status::text, date_posted, moved_to_dump_at, last_status_change, is_active,
	views, clicks, last_viewed_at, last_clicked_at, created_at, updated_at`

const (
	uniqueViolation      = "23505"
	externalIDConstraint = "jobs_external_id_key"
)

// PostgresStore persists jobs in the jobs table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Insert(ctx context.Context, job *model.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (
		   id, external_id, company, role, location, experience, description,
		   degree, employment_type, hiring_link, skills, keywords,
		   status, date_posted, moved_to_dump_at, last_status_change, is_active,
		   created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		         $13::job_status, $14, $15, $16, $17, $18, $19)`,
		job.ID, job.ExternalID, job.Company, job.Role, job.Location, job.Experience, job.Description,
		job.Degree, job.EmploymentType, job.HiringLink, job.Skills, job.Keywords,
		string(job.Status), job.DatePosted, job.MovedToDumpAt, job.LastStatusChange, job.IsActive,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == externalIDConstraint {
			return ErrDuplicateExternalID
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNoJob
	}
	job, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "get job")
	}
	return job, nil
}

func (s *PostgresStore) List(ctx context.Context, status model.Status) ([]model.Job, error) {
	const base = `SELECT ` + jobColumns + ` FROM jobs`

	var (
		rows pgx.Rows
		err  error
	)
	if status != "" {
		rows, err = s.pool.Query(ctx, base+` WHERE status = $1::job_status ORDER BY date_posted DESC, id`, string(status))
	} else {
		rows, err = s.pool.Query(ctx, base+` ORDER BY date_posted DESC, id`)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs query: %w", err)
	}
	return collectJobs(rows)
}

func (s *PostgresStore) Lookup(ctx context.Context, ids []string) (map[string]model.Job, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	out := make(map[string]model.Job, len(valid))
	if len(valid) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ANY($1::uuid[])`, valid)
	if err != nil {
		return nil, fmt.Errorf("lookup jobs query: %w", err)
	}
	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		out[j.ID] = j
	}
	return out, nil
}

func (s *PostgresStore) MoveActiveToDump(ctx context.Context, cutoff, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs
		 SET status             = 'dump',
		     moved_to_dump_at   = $2,
		     last_status_change = $2,
		     updated_at         = $2
		 WHERE status = 'active'
		   AND date_posted <= $1`,
		cutoff, now,
	)
	if err != nil {
		return 0, fmt.Errorf("move active to dump: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) MoveDumpToInactive(ctx context.Context, cutoff, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs
		 SET status             = 'inactive',
		     is_active          = false,
		     last_status_change = $2,
		     updated_at         = $2
		 WHERE status = 'dump'
		   AND moved_to_dump_at <= $1`,
		cutoff, now,
	)
	if err != nil {
		return 0, fmt.Errorf("move dump to inactive: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Transition locks the row, records its previous status and applies the
// target status in one transaction.
func (s *PostgresStore) Transition(ctx context.Context, id string, target model.Status, now time.Time) (model.Status, *model.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", nil, ErrNoJob
	}

	var (
		from model.Status
		job  *model.Job
	)
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var prev string
		if err := tx.QueryRow(ctx, `SELECT status::text FROM jobs WHERE id = $1 FOR UPDATE`, id).Scan(&prev); err != nil {
			return err
		}
		from = model.Status(prev)

		updated, err := scanJob(tx.QueryRow(ctx,
			`UPDATE jobs
			 SET status             = $2::text::job_status,
			     moved_to_dump_at   = CASE
			                            WHEN $2::text = 'active' THEN NULL
			                            WHEN $2::text = 'dump'   THEN $3
			                            ELSE COALESCE(moved_to_dump_at, $3)
			                          END,
			     date_posted        = CASE WHEN $2::text = 'active' THEN $3 ELSE date_posted END,
			     is_active          = ($2::text <> 'inactive'),
			     last_status_change = $3,
			     updated_at         = $3
			 WHERE id = $1
			 RETURNING `+jobColumns,
			id, string(target), now,
		))
		if err != nil {
			return err
		}
		job = updated
		return nil
	})
	if err != nil {
		return "", nil, notFoundOr(err, "transition job")
	}
	return from, job, nil
}

func (s *PostgresStore) Increment(ctx context.Context, id string, c Counter, now time.Time) (*model.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNoJob
	}

	var query string
	switch c {
	case CounterViews:
		query = `UPDATE jobs SET views = views + 1, last_viewed_at = $2 WHERE id = $1 RETURNING ` + jobColumns
	case CounterClicks:
		query = `UPDATE jobs SET clicks = clicks + 1, last_clicked_at = $2 WHERE id = $1 RETURNING ` + jobColumns
	default:
		return nil, fmt.Errorf("unknown counter %q", c)
	}

	job, err := scanJob(s.pool.QueryRow(ctx, query, id, now))
	if err != nil {
		return nil, notFoundOr(err, "increment "+string(c))
	}
	return job, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ─── Scanning ────────────────────────────────────────────────────────────────

func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		j      model.Job
		status string
	)
	if err := row.Scan(
		&j.ID, &j.ExternalID, &j.Company, &j.Role, &j.Location, &j.Experience, &j.Description,
		&j.Degree, &j.EmploymentType, &j.HiringLink, &j.Skills, &j.Keywords,
		&status, &j.DatePosted, &j.MovedToDumpAt, &j.LastStatusChange, &j.IsActive,
		&j.Views, &j.Clicks, &j.LastViewedAt, &j.LastClickedAt, &j.CreatedAt, &j.UpdatedAt,
	); err != nil {
		return nil, err
	}
	j.Status = model.Status(status)
	return &j, nil
}

func collectJobs(rows pgx.Rows) ([]model.Job, error) {
	defer rows.Close()

	jobs := make([]model.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func notFoundOr(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNoJob
	}
	return fmt.Errorf("%s: %w", op, err)
}
