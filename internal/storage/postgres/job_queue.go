package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/ternarybob/arbor"

	"github.com/easyvinted/publisher/internal/interfaces"
	"github.com/easyvinted/publisher/internal/models"
)

const jobsTable = "publication_jobs"

var jobColumns = []string{
	"id", "article_id", "status", "run_at", "vinted_url", "error_message",
	"claimed_by", "started_at", "finished_at", "created_at", "updated_at",
}

// JobQueue implements interfaces.JobQueue on Postgres.
// Every transition is a single conditional UPDATE, so the row status is the lock.
type JobQueue struct {
	db     *PostgresDB
	logger arbor.ILogger
}

// NewJobQueue creates a new JobQueue instance
func NewJobQueue(db *PostgresDB, logger arbor.ILogger) interfaces.JobQueue {
	return &JobQueue{db: db, logger: logger}
}

func insertJobQuery(job *models.PublicationJob) sq.InsertBuilder {
	return psql.Insert(jobsTable).
		Columns("id", "article_id", "status", "run_at", "created_at", "updated_at").
		Values(job.ID, job.ArticleID, string(job.Status), job.RunAt, job.CreatedAt, job.UpdatedAt)
}

func dueJobsQuery(now time.Time, limit int) sq.SelectBuilder {
	query := psql.Select(jobColumns...).
		From(jobsTable).
		Where(sq.Eq{"status": string(models.JobStatusPending)}).
		Where(sq.LtOrEq{"run_at": now}).
		OrderBy("run_at ASC", "created_at ASC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}
	return query
}

func listJobsQuery(opts *interfaces.JobListOptions) sq.SelectBuilder {
	query := psql.Select(jobColumns...).From(jobsTable).OrderBy("created_at DESC")
	if opts == nil {
		return query
	}
	if opts.Status != "" {
		query = query.Where(sq.Eq{"status": string(opts.Status)})
	}
	if opts.ArticleID != "" {
		query = query.Where(sq.Eq{"article_id": opts.ArticleID})
	}
	if opts.Limit > 0 {
		query = query.Limit(uint64(opts.Limit))
	}
	return query
}

func claimJobQuery(id, workerID string, at time.Time) sq.UpdateBuilder {
	return psql.Update(jobsTable).
		Set("status", string(models.JobStatusRunning)).
		Set("claimed_by", workerID).
		Set("started_at", at).
		Set("updated_at", at).
		Where(sq.Eq{"id": id, "status": string(models.JobStatusPending)}).
		Suffix("RETURNING " + strings.Join(jobColumns, ", "))
}

func completeJobQuery(id, vintedURL string, at time.Time) sq.UpdateBuilder {
	return psql.Update(jobsTable).
		Set("status", string(models.JobStatusSuccess)).
		Set("vinted_url", vintedURL).
		Set("error_message", nil).
		Set("finished_at", at).
		Set("updated_at", at).
		Where(sq.Eq{"id": id, "status": string(models.JobStatusRunning)})
}

func failJobQuery(id, message string, at time.Time) sq.UpdateBuilder {
	return psql.Update(jobsTable).
		Set("status", string(models.JobStatusFailed)).
		Set("error_message", message).
		Set("finished_at", at).
		Set("updated_at", at).
		Where(sq.Eq{"id": id, "status": string(models.JobStatusRunning)})
}

func (q *JobQueue) Enqueue(ctx context.Context, job *models.PublicationJob) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if job.ArticleID == "" {
		return fmt.Errorf("article ID is required")
	}
	sql, args, err := insertJobQuery(job).ToSql()
	if err != nil {
		return err
	}
	if _, err := q.db.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

func (q *JobQueue) GetJob(ctx context.Context, id string) (*models.PublicationJob, error) {
	sql, args, err := psql.Select(jobColumns...).From(jobsTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	job, err := scanJob(q.db.pool.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (q *JobQueue) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.PublicationJob, error) {
	jobs, err := q.query(ctx, dueJobsQuery(now, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list due jobs: %w", err)
	}
	return jobs, nil
}

func (q *JobQueue) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.PublicationJob, error) {
	jobs, err := q.query(ctx, listJobsQuery(opts))
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

func (q *JobQueue) Claim(ctx context.Context, id string, workerID string) (*models.PublicationJob, error) {
	sql, args, err := claimJobQuery(id, workerID, time.Now().UTC()).ToSql()
	if err != nil {
		return nil, err
	}
	job, err := scanJob(q.db.pool.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		// either missing or no longer pending
		if _, getErr := q.GetJob(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: %s", models.ErrAlreadyClaimed, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job %s: %w", id, err)
	}
	return job, nil
}

func (q *JobQueue) Complete(ctx context.Context, id string, vintedURL string) error {
	return q.finish(ctx, id, completeJobQuery(id, vintedURL, time.Now().UTC()))
}

func (q *JobQueue) Fail(ctx context.Context, id string, message string) error {
	return q.finish(ctx, id, failJobQuery(id, message, time.Now().UTC()))
}

func (q *JobQueue) finish(ctx context.Context, id string, update sq.UpdateBuilder) error {
	sql, args, err := update.ToSql()
	if err != nil {
		return err
	}
	tag, err := q.db.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := q.GetJob(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: job %s is not running", models.ErrInvalidTransition, id)
	}
	return nil
}

func (q *JobQueue) query(ctx context.Context, builder sq.SelectBuilder) ([]*models.PublicationJob, error) {
	sql, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := q.db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.PublicationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*models.PublicationJob, error) {
	var (
		job    models.PublicationJob
		status string
	)
	err := row.Scan(
		&job.ID, &job.ArticleID, &status, &job.RunAt, &job.VintedURL, &job.ErrorMessage,
		&job.ClaimedBy, &job.StartedAt, &job.FinishedAt, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Status = models.JobStatus(status)
	return &job, nil
}
