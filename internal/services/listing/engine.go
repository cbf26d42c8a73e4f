package listing

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/easyvinted/publisher/internal/common"
	"github.com/easyvinted/publisher/internal/interfaces"
	"github.com/easyvinted/publisher/internal/models"
	"github.com/easyvinted/publisher/internal/services/browser"
)

var _ interfaces.ListingPublisher = (*Engine)(nil)

var itemURLPattern = regexp.MustCompile(`/items/(\d+)`)

// Options are the engine's selectors and timings
type Options struct {
	NewListingURL      string
	PhotoInputSelector string
	PhotoThumbSelector string
	SubmitSelector     string
	Readiness          browser.Backoff // Fallback is the settle delay
	UploadWait         browser.Backoff // Fallback is the per-photo upload delay
	SubmitTimeout      time.Duration
}

// OptionsFromConfig derives engine options from the application config
func OptionsFromConfig(config *common.Config) Options {
	readiness := browser.DefaultBackoff()
	readiness.Timeout = common.Duration(config.Listing.ReadinessTimeout, readiness.Timeout)
	readiness.Fallback = common.Duration(config.Listing.SettleDelay, 0)

	upload := browser.DefaultBackoff()
	upload.Timeout = readiness.Timeout
	upload.Fallback = common.Duration(config.Listing.UploadDelay, 0)

	return Options{
		NewListingURL:      strings.TrimRight(config.Vinted.BaseURL, "/") + config.Vinted.NewListingPath,
		PhotoInputSelector: config.Listing.PhotoInputSelector,
		PhotoThumbSelector: config.Listing.PhotoThumbSelector,
		SubmitSelector:     config.Listing.SubmitSelector,
		Readiness:          readiness,
		UploadWait:         upload,
		SubmitTimeout:      common.Duration(config.Listing.SubmitTimeout, 30*time.Second),
	}
}

// Engine turns one validated article into a published listing
type Engine struct {
	opts       Options
	downloader *Downloader
	filler     Filler
	logger     arbor.ILogger
}

// NewEngine creates a listing engine
func NewEngine(opts Options, downloader *Downloader, filler Filler, logger arbor.ILogger) *Engine {
	return &Engine{
		opts:       opts,
		downloader: downloader,
		filler:     filler,
		logger:     logger,
	}
}

// Publish runs the create-listing flow. It never returns an error value or
// panics; every failure ends up in ListingResult.Error.
func (e *Engine) Publish(ctx context.Context, page interfaces.Page, article *models.Article) (result models.ListingResult) {
	defer func() {
		if r := recover(); r != nil {
			result = models.ListingResult{Success: false, Error: fmt.Sprint(r)}
		}
	}()

	listingURL, err := e.publish(ctx, page, article)
	if err != nil {
		return models.ListingResult{Success: false, Error: err.Error()}
	}
	return models.ListingResult{Success: true, VintedURL: listingURL}
}

func (e *Engine) publish(ctx context.Context, page interfaces.Page, article *models.Article) (string, error) {
	if page == nil {
		return "", fmt.Errorf("browser page is not available")
	}
	// Reject local paths before any navigation or upload
	if err := ValidatePhotoRefs(article.Photos); err != nil {
		return "", err
	}

	if err := page.Navigate(ctx, e.opts.NewListingURL); err != nil {
		return "", err
	}
	if err := e.waitReady(ctx, page); err != nil {
		return "", err
	}

	for i, ref := range article.Photos {
		if err := e.uploadPhoto(ctx, page, ref, i+1); err != nil {
			return "", fmt.Errorf("photo %d of %d: %w", i+1, len(article.Photos), err)
		}
	}

	if err := e.filler.Fill(ctx, page, article); err != nil {
		return "", err
	}

	return e.submit(ctx, page)
}

func (e *Engine) waitReady(ctx context.Context, page interfaces.Page) error {
	return browser.WaitFor(ctx, func(ctx context.Context) (bool, error) {
		if err := page.WaitReady(ctx); err != nil {
			return false, err
		}
		n, err := page.Count(ctx, e.opts.PhotoInputSelector)
		return n > 0, err
	}, e.opts.Readiness)
}

// uploadPhoto downloads one photo, hands it to the file input and waits for
// the thumbnail count to reach expected. The temp file is always removed.
func (e *Engine) uploadPhoto(ctx context.Context, page interfaces.Page, ref string, expected int) error {
	localPath, err := e.downloader.Download(ctx, ref)
	if err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(localPath); err != nil {
			e.logger.Warn().
				Err(err).
				Str("path", localPath).
				Msg("Failed to delete temp photo")
		}
	}()

	if err := page.SetFiles(ctx, e.opts.PhotoInputSelector, []string{localPath}); err != nil {
		return err
	}

	err = browser.WaitFor(ctx, func(ctx context.Context) (bool, error) {
		n, err := page.Count(ctx, e.opts.PhotoThumbSelector)
		return n >= expected, err
	}, e.opts.UploadWait)
	if err != nil {
		return fmt.Errorf("upload did not register: %w", err)
	}

	e.logger.Debug().
		Str("photo", ref).
		Int("position", expected).
		Msg("Photo uploaded")
	return nil
}

func (e *Engine) submit(ctx context.Context, page interfaces.Page) (string, error) {
	if err := page.Click(ctx, e.opts.SubmitSelector); err != nil {
		return "", err
	}

	var listingURL string
	wait := browser.Backoff{
		Initial:    250 * time.Millisecond,
		Max:        2 * time.Second,
		Multiplier: 1.5,
		Timeout:    e.opts.SubmitTimeout,
	}
	err := browser.WaitFor(ctx, func(ctx context.Context) (bool, error) {
		current, err := page.CurrentURL(ctx)
		if err != nil {
			return false, err
		}
		if u, ok := CanonicalItemURL(current); ok {
			listingURL = u
			return true, nil
		}
		return false, nil
	}, wait)
	if err == nil {
		return listingURL, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	msg := fmt.Sprintf("listing was not published within %s", e.opts.SubmitTimeout)
	if html, herr := page.HTML(ctx); herr == nil {
		if formErrors := ExtractFormErrors(html); len(formErrors) > 0 {
			msg += ": " + strings.Join(formErrors, "; ")
		}
	}
	return "", errors.New(msg)
}

// CanonicalItemURL reduces a listing page URL to scheme://host/items/<id>
func CanonicalItemURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	m := itemURLPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return "", false
	}
	return fmt.Sprintf("%s://%s/items/%s", u.Scheme, u.Host, m[1]), true
}
