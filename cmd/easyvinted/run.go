package main

import (
	"context"
	"fmt"
	"os"

	"github.com/easyvinted/publisher/internal/models"
)

func runBatch(ctx context.Context, args []string) int {
	if len(args) != 0 {
		fmt.Fprintln(os.Stderr, "run takes no arguments")
		return exitConfig
	}

	application, code := newApp()
	if code != exitOK {
		return code
	}
	defer application.Close()

	report, err := application.Processor.RunBatch(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Publication batch failed")
		return exitCode(err)
	}

	fmt.Printf("processed=%d succeeded=%d failed=%d skipped=%d unpersisted=%d\n",
		report.Processed, report.Succeeded, report.Failed, report.Skipped, report.Unpersisted)
	if report.Unpersisted > 0 {
		return exitBatch
	}
	return exitOK
}

func runPublish(ctx context.Context, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: easyvinted publish <article-id>")
		return exitConfig
	}

	application, code := newApp()
	if code != exitOK {
		return code
	}
	defer application.Close()

	job, _, err := application.Processor.PublishOne(ctx, args[0])
	if err != nil {
		logger.Error().Err(err).Str("article_id", args[0]).Msg("Publication failed")
		return exitCode(err)
	}

	switch job.Status {
	case models.JobStatusSuccess:
		fmt.Println(*job.VintedURL)
		return exitOK
	case models.JobStatusFailed:
		fmt.Fprintf(os.Stderr, "publication failed: %s\n", *job.ErrorMessage)
		return exitBatch
	default:
		fmt.Fprintf(os.Stderr, "job %s left in status %s\n", job.ID, job.Status)
		return exitBatch
	}
}
