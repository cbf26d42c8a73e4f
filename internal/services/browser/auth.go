package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/easyvinted/publisher/internal/models"
)

// HasSignedInIndicator reports whether any selector matches in the document
func HasSignedInIndicator(html string, selectors []string) (bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false, fmt.Errorf("failed to parse page HTML: %w", err)
	}
	for _, selector := range selectors {
		if selector == "" {
			continue
		}
		if doc.Find(selector).Length() > 0 {
			return true, nil
		}
	}
	return false, nil
}

// Authenticator is the login surface of a browser session
type Authenticator interface {
	CheckAuthentication(ctx context.Context) (bool, error)
	LoginWithCredentials(ctx context.Context, email, password string) error
	SaveSession(ctx context.Context) error
}

// EnsureAuthenticated reuses a restored session when the probe succeeds and
// otherwise logs in with account and persists the new session.
// A failed session save is logged only.
func EnsureAuthenticated(ctx context.Context, auth Authenticator, account *models.Account, logger arbor.ILogger) error {
	ok, err := auth.CheckAuthentication(ctx)
	if err != nil {
		return fmt.Errorf("%w: authentication probe failed: %w", models.ErrAuthentication, err)
	}
	if ok {
		logger.Info().Msg("Restored marketplace session is authenticated")
		return nil
	}

	if account == nil || account.Email == "" || account.Password == "" {
		return fmt.Errorf("%w: session expired and no account to log in with", models.ErrMissingCredentials)
	}

	logger.Info().
		Str("email", account.Email).
		Msg("No valid session, logging in with credentials")

	if err := auth.LoginWithCredentials(ctx, account.Email, account.Password); err != nil {
		return err
	}

	if err := auth.SaveSession(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to save session after login")
	}
	return nil
}
