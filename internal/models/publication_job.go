// -----------------------------------------------------------------------
// Publication Job - one request to publish an article at or after RunAt
// -----------------------------------------------------------------------

package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the state of a publication job
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusSuccess JobStatus = "success"
	JobStatusFailed  JobStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailed
}

// IsValid checks s against the known statuses
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusSuccess, JobStatusFailed:
		return true
	default:
		return false
	}
}

// PublicationJob is one publication attempt for a single article.
//
// Lifecycle:
//
//	pending --(claimed)--> running --(publish ok)--> success
//	running --(publish error)--> failed
//
// success and failed are terminal; a retry needs a new job.
type PublicationJob struct {
	ID           string     `json:"id"`
	ArticleID    string     `json:"article_id" badgerhold:"index"`
	Status       JobStatus  `json:"status" badgerhold:"index"`
	RunAt        time.Time  `json:"run_at"`
	VintedURL    *string    `json:"vinted_url,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	ClaimedBy    string     `json:"claimed_by,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewPublicationJob creates a pending job for articleID due at runAt
func NewPublicationJob(articleID string, runAt time.Time) *PublicationJob {
	now := time.Now().UTC()
	if runAt.IsZero() {
		runAt = now
	}
	return &PublicationJob{
		ID:        uuid.New().String(),
		ArticleID: articleID,
		Status:    JobStatusPending,
		RunAt:     runAt.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsDue reports whether the job is pending and its run time has arrived
func (j *PublicationJob) IsDue(now time.Time) bool {
	return j.Status == JobStatusPending && !j.RunAt.After(now)
}

// Claim flips a pending job to running for workerID
func (j *PublicationJob) Claim(workerID string, at time.Time) error {
	if j.Status != JobStatusPending {
		return ErrAlreadyClaimed
	}
	j.Status = JobStatusRunning
	j.ClaimedBy = workerID
	j.StartedAt = &at
	j.UpdatedAt = at
	return nil
}

// Complete sets the terminal success state
func (j *PublicationJob) Complete(vintedURL string, at time.Time) error {
	if j.Status != JobStatusRunning {
		return ErrInvalidTransition
	}
	j.Status = JobStatusSuccess
	j.VintedURL = &vintedURL
	j.ErrorMessage = nil
	j.FinishedAt = &at
	j.UpdatedAt = at
	return nil
}

// Fail sets the terminal failed state
func (j *PublicationJob) Fail(message string, at time.Time) error {
	if j.Status != JobStatusRunning {
		return ErrInvalidTransition
	}
	j.Status = JobStatusFailed
	j.ErrorMessage = &message
	j.FinishedAt = &at
	j.UpdatedAt = at
	return nil
}
