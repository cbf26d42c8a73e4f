package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/easyvinted/publisher/internal/common"
	"github.com/easyvinted/publisher/internal/interfaces"
	"github.com/easyvinted/publisher/internal/models"
)

// Service runs the publication batch on a cron schedule
type Service struct {
	runner interfaces.BatchRunner
	logger arbor.ILogger

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// NewService creates a stopped scheduler
func NewService(runner interfaces.BatchRunner, logger arbor.ILogger) *Service {
	return &Service{
		runner: runner,
		logger: logger,
	}
}

// Start registers the batch under cronExpr and starts ticking.
// A tick that fires while the previous batch is still running is skipped.
func (s *Service) Start(cronExpr string) error {
	if err := common.ValidateJobSchedule(cronExpr); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	cronLogger := &cronLogger{logger: s.logger}
	s.cron = cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))
	s.ctx, s.cancel = context.WithCancel(context.Background())

	entryID, err := s.cron.AddFunc(cronExpr, s.runScheduledBatch)
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	s.entryID = entryID

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("cron_expr", cronExpr).
		Str("next_run", s.cron.Entry(entryID).Next.Format(time.RFC3339)).
		Msg("Scheduler started")
	return nil
}

// Stop halts the schedule, cancels a running batch and waits for it to return
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	c := s.cron
	s.cancel()
	s.mu.Unlock()

	<-c.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// IsRunning returns true if scheduler is active
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled tick, zero when stopped
func (s *Service) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// TriggerNow runs one batch synchronously outside the schedule
func (s *Service) TriggerNow(ctx context.Context) (*models.BatchReport, error) {
	s.logger.Info().Msg("Manual publication batch requested")
	return s.runner.RunBatch(ctx)
}

func (s *Service) runScheduledBatch() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	report, err := s.runner.RunBatch(ctx)
	switch {
	case errors.Is(err, models.ErrBatchRunning):
		s.logger.Info().Msg("Batch already running, skipping scheduled tick")
	case err != nil:
		s.logger.Error().Err(err).Msg("Scheduled publication batch failed")
	default:
		s.logger.Debug().
			Int("processed", report.Processed).
			Msg("Scheduled publication batch complete")
	}
}

// cronLogger adapts arbor to cron.Logger
type cronLogger struct {
	logger arbor.ILogger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Str("cron", fmt.Sprint(keysAndValues...)).Msg(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Str("cron", fmt.Sprint(keysAndValues...)).Msg(msg)
}
