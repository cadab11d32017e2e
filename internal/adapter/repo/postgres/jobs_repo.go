package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"

	"github.com/TranslatorSRI/cqs/internal/domain"
)

// JobRepo persists and loads jobs using a minimal pgx pool.
type JobRepo struct{ Pool PgxPool }

// PgxPool is the subset of *pgxpool.Pool the repo needs; tests substitute it.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewJobRepo constructs a JobRepo with the given pool.
func NewJobRepo(p PgxPool) *JobRepo { return &JobRepo{Pool: p} }

const jobColumns = `id, status, date_submitted, date_started, date_finished, query, response`

// Insert creates a Queued job and returns its id.
func (r *JobRepo) Insert(ctx context.Context, nj domain.NewJob) (int64, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Insert")
	defer span.End()
	q := `INSERT INTO jobs (status, query) VALUES ($1, $2) RETURNING id`
	var id int64
	if err := r.Pool.QueryRow(ctx, q, domain.JobQueued, nj.Query).Scan(&id); err != nil {
		return 0, fmt.Errorf("op=job.insert: %w", err)
	}
	return id, nil
}

// FindByID loads a job by id.
func (r *JobRepo) FindByID(ctx context.Context, id int64) (domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.FindByID")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=$1`, id)
	j, err := scanJob(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Job{}, fmt.Errorf("op=job.find_by_id id=%d: %w", id, domain.ErrNotFound)
		}
		return domain.Job{}, fmt.Errorf("op=job.find_by_id id=%d: %w", id, err)
	}
	return j, nil
}

// FindUndone returns Queued jobs ordered by submission time ascending.
func (r *JobRepo) FindUndone(ctx context.Context) ([]domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.FindUndone")
	defer span.End()
	rows, err := r.Pool.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status=$1 ORDER BY date_submitted ASC`, domain.JobQueued)
	if err != nil {
		return nil, fmt.Errorf("op=job.find_undone: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// FindAll returns every job ordered by submission time ascending.
func (r *JobRepo) FindAll(ctx context.Context) ([]domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.FindAll")
	defer span.End()
	rows, err := r.Pool.Query(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY date_submitted ASC`)
	if err != nil {
		return nil, fmt.Errorf("op=job.find_all: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// Update persists a job's mutable columns keyed by id.
func (r *JobRepo) Update(ctx context.Context, j domain.Job) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Update")
	defer span.End()
	q := `UPDATE jobs SET status=$2, date_started=$3, date_finished=$4, response=$5 WHERE id=$1`
	if _, err := r.Pool.Exec(ctx, q, j.ID, j.Status, j.DateStarted, j.DateFinished, j.Response); err != nil {
		return fmt.Errorf("op=job.update id=%d: %w", j.ID, err)
	}
	return nil
}

// Delete removes a job by id.
func (r *JobRepo) Delete(ctx context.Context, id int64) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Delete")
	defer span.End()
	if _, err := r.Pool.Exec(ctx, `DELETE FROM jobs WHERE id=$1`, id); err != nil {
		return fmt.Errorf("op=job.delete id=%d: %w", id, err)
	}
	return nil
}

// DeleteMany removes all jobs whose id is in ids.
func (r *JobRepo) DeleteMany(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.DeleteMany")
	defer span.End()
	if _, err := r.Pool.Exec(ctx, `DELETE FROM jobs WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("op=job.delete_many: %w", err)
	}
	return nil
}

// RequeueOrphans resets Running jobs back to Queued. Called once at startup:
// a job can only be Running while a worker tick owns it, so anything Running
// at boot was orphaned by a crash.
func (r *JobRepo) RequeueOrphans(ctx context.Context) (int64, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.RequeueOrphans")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `UPDATE jobs SET status=$1, date_started=NULL WHERE status=$2`, domain.JobQueued, domain.JobRunning)
	if err != nil {
		return 0, fmt.Errorf("op=job.requeue_orphans: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanJob(row pgx.Row) (domain.Job, error) {
	var j domain.Job
	if err := row.Scan(&j.ID, &j.Status, &j.DateSubmitted, &j.DateStarted, &j.DateFinished, &j.Query, &j.Response); err != nil {
		return domain.Job{}, err
	}
	return j, nil
}

func collectJobs(rows pgx.Rows) ([]domain.Job, error) {
	var out []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
