package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/easyvinted/publisher/internal/interfaces"
	"github.com/easyvinted/publisher/internal/models"
)

func runEnqueue(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("enqueue", flag.ContinueOnError)
	at := fs.String("at", "", "Run time in RFC3339 (default: now)")

	// accept flags on either side of the article id
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: easyvinted enqueue <article-id> [-at RFC3339]")
		return exitConfig
	}
	articleID := fs.Arg(0)
	if err := fs.Parse(fs.Args()[1:]); err != nil || fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "usage: easyvinted enqueue <article-id> [-at RFC3339]")
		return exitConfig
	}

	var runAt time.Time
	if *at != "" {
		parsed, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -at value: %v\n", err)
			return exitConfig
		}
		runAt = parsed
	}

	application, code := newApp()
	if code != exitOK {
		return code
	}
	defer application.Close()

	if _, err := application.StorageManager.ArticleStore().GetArticle(ctx, articleID); err != nil {
		logger.Error().Err(err).Str("article_id", articleID).Msg("Cannot enqueue article")
		return exitBatch
	}

	job := models.NewPublicationJob(articleID, runAt)
	if err := application.StorageManager.JobQueue().Enqueue(ctx, job); err != nil {
		logger.Error().Err(err).Msg("Failed to enqueue job")
		return exitBatch
	}
	application.EventService.PublishSync(ctx, interfaces.Event{
		Type:    interfaces.EventJobEnqueued,
		Payload: models.JobEvent{JobID: job.ID, ArticleID: job.ArticleID, Status: job.Status, Time: job.CreatedAt},
	})

	fmt.Printf("%s %s\n", job.ID, job.RunAt.Format(time.RFC3339))
	return exitOK
}
