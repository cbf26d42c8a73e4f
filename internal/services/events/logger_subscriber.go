package events

import (
	"context"
	"fmt"

	"github.com/easyvinted/publisher/internal/interfaces"
	"github.com/easyvinted/publisher/internal/models"
	"github.com/ternarybob/arbor"
)

// NewLoggerSubscriber creates an event handler that logs job and batch events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		logEvent := logger.Debug().
			Str("event_type", string(event.Type))

		switch p := event.Payload.(type) {
		case models.JobEvent:
			if p.JobID != "" {
				logEvent = logEvent.Str("job_id", p.JobID)
			}
			if p.ArticleID != "" {
				logEvent = logEvent.Str("article_id", p.ArticleID)
			}
			if p.Status != "" {
				logEvent = logEvent.Str("status", string(p.Status))
			}
			if p.Error != "" {
				logEvent = logEvent.Str("error", p.Error)
			}
		case *models.BatchReport:
			logEvent = logEvent.
				Str("worker_id", p.WorkerID).
				Int("processed", p.Processed).
				Int("failed", p.Failed)
		}

		logEvent.Msg("Event published")
		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to every publisher event type
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	for _, eventType := range interfaces.AllEventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}

	logger.Debug().
		Int("event_type_count", len(interfaces.AllEventTypes)).
		Msg("Logger subscribed to all event types")

	return nil
}
