package interfaces

import (
	"context"
	"time"

	"github.com/easyvinted/publisher/internal/models"
)

// JobListOptions filters ListJobs
type JobListOptions struct {
	Status    models.JobStatus
	ArticleID string
	Limit     int
}

// JobQueue is the durable table of publication requests
type JobQueue interface {
	Enqueue(ctx context.Context, job *models.PublicationJob) error
	GetJob(ctx context.Context, id string) (*models.PublicationJob, error)

	// ListDue returns pending jobs with RunAt <= now, earliest first
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.PublicationJob, error)
	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.PublicationJob, error)

	// Claim atomically moves a job from pending to running.
	// Returns models.ErrAlreadyClaimed when the row is no longer pending.
	Claim(ctx context.Context, id string, workerID string) (*models.PublicationJob, error)

	Complete(ctx context.Context, id string, vintedURL string) error
	Fail(ctx context.Context, id string, message string) error
}

// ArticleStore reads articles and records publication outcomes on them
type ArticleStore interface {
	SaveArticle(ctx context.Context, article *models.Article) error
	GetArticle(ctx context.Context, id string) (*models.Article, error)
	MarkPublished(ctx context.Context, id string, vintedURL string, at time.Time) error
	MarkFailed(ctx context.Context, id string, message string, revert bool) error
}

// CredentialStore holds marketplace accounts and their reusable sessions
type CredentialStore interface {
	SaveCredentials(ctx context.Context, creds *models.Credentials) error
	GetCredentials(ctx context.Context, userID string) (*models.Credentials, error)
	SaveSession(ctx context.Context, userID string, session *models.Session) error
}

// StorageManager groups the storage backends of one database
type StorageManager interface {
	JobQueue() JobQueue
	ArticleStore() ArticleStore
	CredentialStore() CredentialStore
	Close() error
}
