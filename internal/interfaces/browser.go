package interfaces

import (
	"context"

	"github.com/easyvinted/publisher/internal/models"
)

// Page is the single tab the automation drives.
// Selectors are CSS selectors unless stated otherwise.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitReady(ctx context.Context) error
	CurrentURL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Count(ctx context.Context, selector string) (int, error)
	SetFiles(ctx context.Context, selector string, paths []string) error
	SetValue(ctx context.Context, selector string, value string) error
	Click(ctx context.Context, selector string) error

	// SelectOption opens a dropdown via trigger (skipped when empty) and
	// clicks the option whose visible text equals option.
	SelectOption(ctx context.Context, trigger string, option string) error
}

// BrowserSession owns one browser process and one authenticated context
type BrowserSession interface {
	Initialize(ctx context.Context) error
	CheckAuthentication(ctx context.Context) (bool, error)
	LoginWithCredentials(ctx context.Context, email, password string) error
	SaveSession(ctx context.Context) error
	Page() Page

	// Close must be safe after a partial or missing Initialize
	Close() error
}

// BrowserFactory creates a fresh, uninitialized session per batch
type BrowserFactory func() BrowserSession

// ListingPublisher drives the create-listing flow for one article
type ListingPublisher interface {
	Publish(ctx context.Context, page Page, article *models.Article) models.ListingResult
}

// AccountResolver yields the decrypted marketplace login for a run
type AccountResolver interface {
	Resolve(ctx context.Context) (*models.Account, error)
}

// BatchRunner runs one publication batch
type BatchRunner interface {
	RunBatch(ctx context.Context) (*models.BatchReport, error)
}
