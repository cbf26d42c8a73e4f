package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/easyvinted/publisher/internal/interfaces"
	"github.com/easyvinted/publisher/internal/models"
)

// JobQueue implements interfaces.JobQueue on badgerhold
type JobQueue struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobQueue creates a new JobQueue instance
func NewJobQueue(db *BadgerDB, logger arbor.ILogger) interfaces.JobQueue {
	return &JobQueue{
		db:     db,
		logger: logger,
	}
}

func (s *JobQueue) Enqueue(ctx context.Context, job *models.PublicationJob) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if job.ArticleID == "" {
		return fmt.Errorf("article ID is required")
	}
	if err := s.db.Store().Insert(job.ID, job); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("job %s already exists", job.ID)
		}
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

func (s *JobQueue) GetJob(ctx context.Context, id string) (*models.PublicationJob, error) {
	var job models.PublicationJob
	if err := s.db.Store().Get(id, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// ListDue returns pending jobs due at now, RunAt ascending with CreatedAt as tiebreak
func (s *JobQueue) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.PublicationJob, error) {
	var pending []models.PublicationJob
	query := badgerhold.Where("Status").Eq(models.JobStatusPending).Index("Status")
	if err := s.db.Store().Find(&pending, query); err != nil {
		return nil, fmt.Errorf("failed to list due jobs: %w", err)
	}

	due := make([]*models.PublicationJob, 0, len(pending))
	for i := range pending {
		if pending[i].IsDue(now) {
			due = append(due, &pending[i])
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		if !due[i].RunAt.Equal(due[j].RunAt) {
			return due[i].RunAt.Before(due[j].RunAt)
		}
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *JobQueue) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.PublicationJob, error) {
	query := badgerhold.Where("ID").Ne("")

	if opts != nil {
		if opts.Status != "" {
			query = query.And("Status").Eq(opts.Status)
		}
		if opts.ArticleID != "" {
			query = query.And("ArticleID").Eq(opts.ArticleID)
		}
	}
	query = query.SortBy("CreatedAt").Reverse()
	if opts != nil && opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}

	var jobs []models.PublicationJob
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.PublicationJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// Claim moves a job from pending to running inside one Badger transaction.
// A concurrent writer surfaces as ErrConflict and is reported as already claimed.
func (s *JobQueue) Claim(ctx context.Context, id string, workerID string) (*models.PublicationJob, error) {
	var claimed models.PublicationJob
	err := s.db.Store().Badger().Update(func(tx *badger.Txn) error {
		if err := s.db.Store().TxGet(tx, id, &claimed); err != nil {
			return err
		}
		if err := claimed.Claim(workerID, time.Now().UTC()); err != nil {
			return err
		}
		return s.db.Store().TxUpdate(tx, id, &claimed)
	})

	switch {
	case err == nil:
		return &claimed, nil
	case errors.Is(err, badgerhold.ErrNotFound):
		return nil, fmt.Errorf("%w: %s", models.ErrJobNotFound, id)
	case errors.Is(err, badger.ErrConflict):
		return nil, fmt.Errorf("%w: %s", models.ErrAlreadyClaimed, id)
	case errors.Is(err, models.ErrAlreadyClaimed):
		return nil, err
	default:
		return nil, fmt.Errorf("failed to claim job %s: %w", id, err)
	}
}

func (s *JobQueue) Complete(ctx context.Context, id string, vintedURL string) error {
	return s.finish(id, func(job *models.PublicationJob, at time.Time) error {
		return job.Complete(vintedURL, at)
	})
}

func (s *JobQueue) Fail(ctx context.Context, id string, message string) error {
	return s.finish(id, func(job *models.PublicationJob, at time.Time) error {
		return job.Fail(message, at)
	})
}

func (s *JobQueue) finish(id string, transition func(job *models.PublicationJob, at time.Time) error) error {
	err := s.db.Store().Badger().Update(func(tx *badger.Txn) error {
		var job models.PublicationJob
		if err := s.db.Store().TxGet(tx, id, &job); err != nil {
			return err
		}
		if err := transition(&job, time.Now().UTC()); err != nil {
			return err
		}
		return s.db.Store().TxUpdate(tx, id, &job)
	})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("%w: %s", models.ErrJobNotFound, id)
	}
	return err
}
