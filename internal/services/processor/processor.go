// -----------------------------------------------------------------------
// Processor - runs one publication batch against a single browser session
// -----------------------------------------------------------------------

package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/easyvinted/publisher/internal/common"
	"github.com/easyvinted/publisher/internal/interfaces"
	"github.com/easyvinted/publisher/internal/models"
	"github.com/easyvinted/publisher/internal/services/browser"
)

var _ interfaces.BatchRunner = (*Processor)(nil)

// Options are the per-run knobs taken from worker configuration
type Options struct {
	WorkerID          string
	MaxArticlesPerRun int
	PostDelay         time.Duration
	RevertOnFailure   bool

	// PersistAttempts bounds the writes of a job's final status; the delay
	// between attempts starts at PersistBackoff and doubles
	PersistAttempts int
	PersistBackoff  time.Duration
}

const (
	defaultPersistAttempts = 5
	defaultPersistBackoff  = 250 * time.Millisecond
)

// OptionsFromConfig maps the worker section onto Options
func OptionsFromConfig(config *common.Config) Options {
	return Options{
		WorkerID:          common.NewWorkerID(),
		MaxArticlesPerRun: config.Worker.MaxArticlesPerRun,
		PostDelay:         common.Duration(config.Worker.PostDelay, 0),
		RevertOnFailure:   config.Worker.FailurePolicy != common.FailurePolicyKeepStatus,
	}
}

// Processor is the batch orchestration loop. Jobs run strictly one at a
// time on one browser session; a failing job never stops the batch.
type Processor struct {
	opts      Options
	jobs      interfaces.JobQueue
	articles  interfaces.ArticleStore
	accounts  interfaces.AccountResolver
	browsers  interfaces.BrowserFactory
	publisher interfaces.ListingPublisher
	events    interfaces.EventService
	logger    arbor.ILogger

	now     func() time.Time
	running sync.Mutex  // held for the whole batch
	busy    atomic.Bool // mirrors running for observers
}

// NewProcessor wires a processor; events may be nil
func NewProcessor(
	opts Options,
	storage interfaces.StorageManager,
	accounts interfaces.AccountResolver,
	browsers interfaces.BrowserFactory,
	publisher interfaces.ListingPublisher,
	events interfaces.EventService,
	logger arbor.ILogger,
) *Processor {
	if opts.WorkerID == "" {
		opts.WorkerID = common.NewWorkerID()
	}
	if opts.PersistAttempts <= 0 {
		opts.PersistAttempts = defaultPersistAttempts
	}
	if opts.PersistBackoff <= 0 {
		opts.PersistBackoff = defaultPersistBackoff
	}
	return &Processor{
		opts:      opts,
		jobs:      storage.JobQueue(),
		articles:  storage.ArticleStore(),
		accounts:  accounts,
		browsers:  browsers,
		publisher: publisher,
		events:    events,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RunBatch publishes every job due now, up to MaxArticlesPerRun.
// The returned error is batch-level only; per-job outcomes are in the report.
func (p *Processor) RunBatch(ctx context.Context) (*models.BatchReport, error) {
	if !p.acquire() {
		return nil, models.ErrBatchRunning
	}
	defer p.release()

	account, err := p.accounts.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	due, err := p.jobs.ListDue(ctx, p.now(), p.opts.MaxArticlesPerRun)
	if err != nil {
		return nil, fmt.Errorf("failed to query due jobs: %w", err)
	}

	return p.run(ctx, account, due)
}

// IsRunning reports whether a batch currently holds the processor
func (p *Processor) IsRunning() bool {
	return p.busy.Load()
}

func (p *Processor) acquire() bool {
	if !p.running.TryLock() {
		return false
	}
	p.busy.Store(true)
	return true
}

func (p *Processor) release() {
	p.busy.Store(false)
	p.running.Unlock()
}

// PublishOne enqueues a job due now for articleID and runs a batch holding only that job
func (p *Processor) PublishOne(ctx context.Context, articleID string) (*models.PublicationJob, *models.BatchReport, error) {
	if !p.acquire() {
		return nil, nil, models.ErrBatchRunning
	}
	defer p.release()

	account, err := p.accounts.Resolve(ctx)
	if err != nil {
		return nil, nil, err
	}
	if _, err := p.articles.GetArticle(ctx, articleID); err != nil {
		return nil, nil, err
	}

	job := models.NewPublicationJob(articleID, p.now())
	if err := p.jobs.Enqueue(ctx, job); err != nil {
		return nil, nil, err
	}
	p.publish(ctx, interfaces.EventJobEnqueued, jobEvent(job, p.now()))

	report, err := p.run(ctx, account, []*models.PublicationJob{job})
	if err != nil {
		return job, report, err
	}

	final, err := p.jobs.GetJob(ctx, job.ID)
	if err != nil {
		return job, report, err
	}
	return final, report, nil
}

func (p *Processor) run(ctx context.Context, account *models.Account, due []*models.PublicationJob) (*models.BatchReport, error) {
	report := &models.BatchReport{
		WorkerID:  p.opts.WorkerID,
		Due:       len(due),
		StartedAt: p.now(),
	}

	if len(due) == 0 {
		report.FinishedAt = p.now()
		p.logger.Info().Str("worker_id", p.opts.WorkerID).Msg("No due publication jobs")
		return report, nil
	}

	p.logger.Info().
		Str("worker_id", p.opts.WorkerID).
		Int("due", len(due)).
		Msg("Starting publication batch")
	p.publish(ctx, interfaces.EventBatchStarted, snapshot(report))

	session := p.browsers()
	defer func() {
		if err := session.Close(); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to close browser session")
		}
	}()

	if err := session.Initialize(ctx); err != nil {
		return report, fmt.Errorf("failed to initialize browser session: %w", err)
	}
	if err := browser.EnsureAuthenticated(ctx, session, account, p.logger); err != nil {
		return report, err
	}
	page := session.Page()
	if page == nil {
		return report, fmt.Errorf("browser session has no page after initialization")
	}

	throttle := newThrottle(p.opts.PostDelay)

	for _, job := range due {
		if ctx.Err() != nil {
			p.logger.Warn().
				Int("remaining", report.Due-report.Processed-report.Skipped-report.Unpersisted).
				Msg("Batch cancelled, leaving remaining jobs pending")
			break
		}
		// wait before claiming so a cancelled wait leaves the job pending
		if err := throttle.wait(ctx); err != nil {
			p.logger.Warn().Err(err).Msg("Stopping batch while throttling, leaving remaining jobs pending")
			break
		}

		switch p.processJob(ctx, page, job, throttle) {
		case outcomeSucceeded:
			report.Processed++
			report.Succeeded++
		case outcomeFailed:
			report.Processed++
			report.Failed++
		case outcomeUnpersisted:
			report.Unpersisted++
		default:
			report.Skipped++
		}
	}

	report.FinishedAt = p.now()
	p.logger.Info().
		Str("worker_id", p.opts.WorkerID).
		Int("processed", report.Processed).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Int("unpersisted", report.Unpersisted).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("Publication batch finished")
	p.publish(ctx, interfaces.EventBatchFinished, snapshot(report))

	return report, nil
}

// outcome is what one job contributed to the batch
type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSucceeded
	outcomeFailed
	// outcomeUnpersisted: the final status could not be written and the job is still running
	outcomeUnpersisted
)

func (p *Processor) processJob(ctx context.Context, page interfaces.Page, job *models.PublicationJob, throttle *throttle) outcome {
	jobLogger := p.logger.WithCorrelationId(job.ID)

	claimed, err := p.jobs.Claim(ctx, job.ID, p.opts.WorkerID)
	if err != nil {
		if errors.Is(err, models.ErrAlreadyClaimed) {
			jobLogger.Info().Str("job_id", job.ID).Msg("Job claimed by another run, skipping")
		} else {
			jobLogger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to claim job")
		}
		return outcomeSkipped
	}
	throttle.take()
	p.publish(ctx, interfaces.EventJobClaimed, jobEvent(claimed, p.now()))

	jobLogger.Info().
		Str("job_id", claimed.ID).
		Str("article_id", claimed.ArticleID).
		Msg("Publishing article")

	vintedURL, err := p.publishArticle(ctx, page, claimed)

	// outcomes are persisted even when the batch context was cancelled mid-job
	persistCtx := context.WithoutCancel(ctx)
	if err != nil {
		return p.recordFailure(persistCtx, jobLogger, claimed, err.Error())
	}
	return p.recordSuccess(persistCtx, jobLogger, claimed, vintedURL)
}

func (p *Processor) publishArticle(ctx context.Context, page interfaces.Page, job *models.PublicationJob) (vintedURL string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("publication panicked: %v", r)
		}
	}()

	article, err := p.articles.GetArticle(ctx, job.ArticleID)
	if err != nil {
		return "", err
	}
	if err := article.Validate(); err != nil {
		return "", err
	}

	result := p.publisher.Publish(ctx, page, article)
	if !result.Success {
		if result.Error == "" {
			return "", fmt.Errorf("listing submission failed")
		}
		return "", errors.New(result.Error)
	}
	if result.VintedURL == "" {
		return "", fmt.Errorf("listing submission reported success without a listing URL")
	}
	return result.VintedURL, nil
}

func (p *Processor) recordSuccess(ctx context.Context, logger arbor.ILogger, job *models.PublicationJob, vintedURL string) outcome {
	at := p.now()
	jobErr := p.finishJob(ctx, logger, job.ID, models.JobStatusSuccess, func(ctx context.Context) error {
		return p.jobs.Complete(ctx, job.ID, vintedURL)
	})
	if err := p.persist(ctx, logger, "article_published", func(ctx context.Context) error {
		return p.articles.MarkPublished(ctx, job.ArticleID, vintedURL, at)
	}); err != nil {
		logger.Error().Err(err).Str("article_id", job.ArticleID).Msg("Failed to mark article published")
	}

	event := jobEvent(job, at)
	event.VintedURL = vintedURL
	if jobErr != nil {
		// the listing is live; keep the URL in the log so the job can be settled by hand
		logger.Error().
			Err(jobErr).
			Str("job_id", job.ID).
			Str("vinted_url", vintedURL).
			Msg("Article published but job status could not be saved, job left running")
		return outcomeUnpersisted
	}

	logger.Info().
		Str("job_id", job.ID).
		Str("article_id", job.ArticleID).
		Str("vinted_url", vintedURL).
		Msg("Article published")

	event.Status = models.JobStatusSuccess
	p.publish(ctx, interfaces.EventJobSucceeded, event)
	return outcomeSucceeded
}

func (p *Processor) recordFailure(ctx context.Context, logger arbor.ILogger, job *models.PublicationJob, message string) outcome {
	jobErr := p.finishJob(ctx, logger, job.ID, models.JobStatusFailed, func(ctx context.Context) error {
		return p.jobs.Fail(ctx, job.ID, message)
	})
	if err := p.persist(ctx, logger, "article_failed", func(ctx context.Context) error {
		return p.articles.MarkFailed(ctx, job.ArticleID, message, p.opts.RevertOnFailure)
	}); err != nil {
		logger.Warn().Err(err).Str("article_id", job.ArticleID).Msg("Failed to record failure on article")
	}

	if jobErr != nil {
		logger.Error().
			Err(jobErr).
			Str("job_id", job.ID).
			Str("error", message).
			Msg("Publication failed and job status could not be saved, job left running")
		return outcomeUnpersisted
	}

	logger.Error().
		Str("job_id", job.ID).
		Str("article_id", job.ArticleID).
		Str("error", message).
		Msg("Article publication failed")

	event := jobEvent(job, p.now())
	event.Status = models.JobStatusFailed
	event.Error = message
	p.publish(ctx, interfaces.EventJobFailed, event)
	return outcomeFailed
}

// finishJob writes a terminal status. A retry that finds the job already in
// that status means an earlier attempt landed despite reporting an error.
func (p *Processor) finishJob(ctx context.Context, logger arbor.ILogger, jobID string, target models.JobStatus, write func(context.Context) error) error {
	return p.persist(ctx, logger, "job_"+string(target), func(ctx context.Context) error {
		err := write(ctx)
		if !errors.Is(err, models.ErrInvalidTransition) {
			return err
		}
		current, getErr := p.jobs.GetJob(ctx, jobID)
		if getErr == nil && current.Status == target {
			return nil
		}
		return err
	})
}

// persist retries a store write with doubling backoff. Not-found and
// transition errors are final and returned at once.
func (p *Processor) persist(ctx context.Context, logger arbor.ILogger, what string, write func(context.Context) error) error {
	delay := p.opts.PersistBackoff
	for attempt := 1; ; attempt++ {
		err := write(ctx)
		if err == nil || !retryable(err) || attempt >= p.opts.PersistAttempts {
			return err
		}

		logger.Warn().
			Err(err).
			Str("write", what).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("Store write failed, retrying")

		if err := sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
	}
}

func retryable(err error) bool {
	return !errors.Is(err, models.ErrInvalidTransition) &&
		!errors.Is(err, models.ErrJobNotFound) &&
		!errors.Is(err, models.ErrArticleNotFound)
}

func (p *Processor) publish(ctx context.Context, eventType interfaces.EventType, payload interface{}) {
	if p.events == nil {
		return
	}
	if err := p.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		p.logger.Debug().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish event")
	}
}

// snapshot copies the report so async subscribers never see later mutations
func snapshot(report *models.BatchReport) *models.BatchReport {
	copied := *report
	return &copied
}

func jobEvent(job *models.PublicationJob, at time.Time) models.JobEvent {
	return models.JobEvent{
		JobID:     job.ID,
		ArticleID: job.ArticleID,
		Status:    job.Status,
		Time:      at,
	}
}
