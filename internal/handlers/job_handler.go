package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/easyvinted/publisher/internal/common"
	"github.com/easyvinted/publisher/internal/interfaces"
	"github.com/easyvinted/publisher/internal/models"
)

// BatchTrigger starts publication batches on demand
type BatchTrigger interface {
	interfaces.BatchRunner
	IsRunning() bool
}

// JobHandler handles publication job API requests
type JobHandler struct {
	jobs     interfaces.JobQueue
	articles interfaces.ArticleStore
	runner   BatchTrigger
	events   interfaces.EventService
	logger   arbor.ILogger

	// batchCtx outlives the request that triggered the batch
	batchCtx context.Context
}

// NewJobHandler creates a new job handler; events may be nil
func NewJobHandler(ctx context.Context, storage interfaces.StorageManager, runner BatchTrigger, events interfaces.EventService, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		jobs:     storage.JobQueue(),
		articles: storage.ArticleStore(),
		runner:   runner,
		events:   events,
		logger:   logger,
		batchCtx: ctx,
	}
}

// CreateJobRequest is the body of POST /api/jobs
type CreateJobRequest struct {
	ArticleID string     `json:"article_id"`
	RunAt     *time.Time `json:"run_at,omitempty"`
}

// ListJobsHandler returns jobs newest first
// GET /api/jobs?status=pending&article_id=...&limit=50
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	status := models.JobStatus(r.URL.Query().Get("status"))
	if status != "" && !status.IsValid() {
		WriteError(w, http.StatusBadRequest, "Unknown job status: "+string(status))
		return
	}

	opts := &interfaces.JobListOptions{
		Status:    status,
		ArticleID: r.URL.Query().Get("article_id"),
		Limit:     queryInt(r, "limit", 50),
	}

	jobs, err := h.jobs.ListJobs(r.Context(), opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []*models.PublicationJob{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// CreateJobHandler enqueues a publication job for an existing article
// POST /api/jobs {"article_id": "...", "run_at": "2026-01-02T15:04:05Z"}
func (h *JobHandler) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.ArticleID = strings.TrimSpace(req.ArticleID)
	if req.ArticleID == "" {
		WriteError(w, http.StatusBadRequest, "article_id is required")
		return
	}

	ctx := r.Context()
	if _, err := h.articles.GetArticle(ctx, req.ArticleID); err != nil {
		if errors.Is(err, models.ErrArticleNotFound) {
			WriteError(w, http.StatusNotFound, "Article not found")
			return
		}
		h.logger.Error().Err(err).Str("article_id", req.ArticleID).Msg("Failed to load article")
		WriteError(w, http.StatusInternalServerError, "Failed to load article")
		return
	}

	var runAt time.Time
	if req.RunAt != nil {
		runAt = *req.RunAt
	}
	job := models.NewPublicationJob(req.ArticleID, runAt)
	if err := h.jobs.Enqueue(ctx, job); err != nil {
		h.logger.Error().Err(err).Str("article_id", req.ArticleID).Msg("Failed to enqueue job")
		WriteError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	h.logger.Info().
		Str("job_id", job.ID).
		Str("article_id", job.ArticleID).
		Str("run_at", job.RunAt.Format(time.RFC3339)).
		Msg("Publication job enqueued")

	if h.events != nil {
		h.events.Publish(ctx, interfaces.Event{
			Type: interfaces.EventJobEnqueued,
			Payload: models.JobEvent{
				JobID:     job.ID,
				ArticleID: job.ArticleID,
				Status:    job.Status,
				Time:      job.CreatedAt,
			},
		})
	}

	WriteJSON(w, http.StatusCreated, job)
}

// GetJobHandler returns a single job by ID
// GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	jobID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/jobs/"), "/")
	if jobID == "" || strings.Contains(jobID, "/") {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// RunBatchHandler starts a batch in the background
// POST /api/run
func (h *JobHandler) RunBatchHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if h.runner.IsRunning() {
		WriteError(w, http.StatusConflict, models.ErrBatchRunning.Error())
		return
	}

	common.SafeGo(h.logger, "manual-batch", func() {
		report, err := h.runner.RunBatch(h.batchCtx)
		if err != nil {
			h.logger.Error().Err(err).Msg("Manual publication batch failed")
			return
		}
		h.logger.Info().
			Int("processed", report.Processed).
			Int("failed", report.Failed).
			Msg("Manual publication batch complete")
	})

	WriteStarted(w, "Publication batch started")
}
