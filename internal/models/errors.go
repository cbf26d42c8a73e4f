package models

import "errors"

var (
	// ErrConfiguration is returned before any job is touched
	ErrConfiguration = errors.New("configuration error")

	ErrMissingCredentials = errors.New("missing marketplace credentials")
	ErrAuthentication     = errors.New("marketplace authentication failed")

	ErrArticleNotFound = errors.New("article not found")
	ErrJobNotFound     = errors.New("job not found")
	ErrInvalidArticle  = errors.New("invalid article")

	// ErrAlreadyClaimed means another run moved the job out of pending first
	ErrAlreadyClaimed    = errors.New("job already claimed")
	ErrInvalidTransition = errors.New("invalid job status transition")

	ErrUnsupportedPhoto = errors.New("unsupported photo path")
	ErrBatchRunning     = errors.New("a publication batch is already running")
)
