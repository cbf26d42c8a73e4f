package models

import "time"

// ListingResult is the outcome of one submission through the listing form
type ListingResult struct {
	Success   bool   `json:"success"`
	VintedURL string `json:"vinted_url,omitempty"`
	Error     string `json:"error,omitempty"`
}

// BatchReport aggregates one worker run
type BatchReport struct {
	WorkerID  string `json:"worker_id"`
	Due       int    `json:"due"`
	Processed int    `json:"processed"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	// Unpersisted counts jobs whose final status could not be saved; they stay running
	Unpersisted int       `json:"unpersisted"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// JobEvent is the payload published for job transitions
type JobEvent struct {
	JobID     string    `json:"job_id,omitempty"`
	ArticleID string    `json:"article_id,omitempty"`
	Status    JobStatus `json:"status,omitempty"`
	VintedURL string    `json:"vinted_url,omitempty"`
	Error     string    `json:"error,omitempty"`
	Time      time.Time `json:"time"`
}
