package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/easyvinted/publisher/internal/common"
	"github.com/easyvinted/publisher/internal/interfaces"
	"github.com/easyvinted/publisher/internal/models"
)

var _ interfaces.BrowserSession = (*Manager)(nil)
var _ interfaces.Page = (*chromePage)(nil)

// Manager owns one Chrome process and one authenticated tab for a worker run
type Manager struct {
	browser    common.BrowserConfig
	baseURL    string
	loginURL   string
	navTimeout time.Duration
	readiness  Backoff

	// optional secondary session source/sink
	store  interfaces.CredentialStore
	userID string

	logger arbor.ILogger

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	page          *chromePage
}

// NewManager creates an uninitialized manager; store may be nil
func NewManager(config *common.Config, store interfaces.CredentialStore, logger arbor.ILogger) *Manager {
	readiness := DefaultBackoff()
	readiness.Timeout = common.Duration(config.Listing.ReadinessTimeout, readiness.Timeout)

	baseURL := strings.TrimRight(config.Vinted.BaseURL, "/")
	return &Manager{
		browser:    config.Browser,
		baseURL:    baseURL,
		loginURL:   baseURL + config.Vinted.LoginPath,
		navTimeout: common.Duration(config.Browser.NavigationTimeout, 30*time.Second),
		readiness:  readiness,
		store:      store,
		userID:     config.Worker.UserID,
		logger:     logger,
	}
}

// NewFactory returns a BrowserFactory building fresh managers
func NewFactory(config *common.Config, store interfaces.CredentialStore, logger arbor.ILogger) interfaces.BrowserFactory {
	return func() interfaces.BrowserSession {
		return NewManager(config, store, logger)
	}
}

// Initialize launches Chrome, fixes viewport and locale, and restores the
// persisted session when one exists
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.page != nil {
		return fmt.Errorf("browser already initialized")
	}

	startTime := time.Now()

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", m.browser.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("lang", m.browser.Locale),
		chromedp.UserAgent(m.browser.UserAgent),
		chromedp.WindowSize(m.browser.WindowWidth, m.browser.WindowHeight),
	)
	if m.browser.ExecPath != "" {
		allocatorOpts = append(allocatorOpts, chromedp.ExecPath(m.browser.ExecPath))
	}

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	m.allocCancel = allocatorCancel

	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	m.browserCancel = browserCancel

	// Allocate on the long-lived context; a timeout context here would kill the browser on cancel
	if err := chromedp.Run(browserCtx); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}

	page := newChromePage(browserCtx, m.navTimeout, m.readiness)

	// Startup probe also pins viewport and locale for the tab
	err := page.run(ctx,
		chromedp.Navigate("about:blank"),
		emulation.SetDeviceMetricsOverride(int64(m.browser.WindowWidth), int64(m.browser.WindowHeight), 1, false),
		emulation.SetLocaleOverride().WithLocale(strings.ReplaceAll(m.browser.Locale, "-", "_")),
		network.Enable(),
	)
	if err != nil {
		return fmt.Errorf("browser failed startup test: %w", err)
	}
	m.page = page

	m.logger.Info().
		Bool("headless", m.browser.Headless).
		Str("locale", m.browser.Locale).
		Dur("startup_time", time.Since(startTime)).
		Msg("Browser started")

	session := m.loadSession(ctx)
	if session == nil {
		m.logger.Info().Msg("No persisted session, continuing unauthenticated")
		return nil
	}

	return m.injectSession(ctx, session)
}

// loadSession prefers the session file and falls back to the credential store.
// Unreadable sessions are logged and ignored.
func (m *Manager) loadSession(ctx context.Context) *models.Session {
	session, err := LoadSessionFile(m.browser.SessionFile)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Ignoring unreadable session file")
	}
	if session != nil && len(session.Cookies) > 0 {
		return session
	}

	if m.store == nil {
		return nil
	}
	creds, err := m.store.GetCredentials(ctx, m.userID)
	if err != nil || creds == nil || creds.Session == nil {
		return nil
	}
	m.logger.Debug().Str("user_id", m.userID).Msg("Using session from credential store")
	return creds.Session
}

func (m *Manager) injectSession(ctx context.Context, session *models.Session) error {
	fallbackDomain := ""
	if u, err := url.Parse(m.baseURL); err == nil {
		fallbackDomain = u.Hostname()
	}
	params := toCookieParams(session, fallbackDomain, time.Now())

	failed := 0
	err := m.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, cookie := range params {
			if err := network.SetCookie(cookie.Name, cookie.Value).
				WithDomain(cookie.Domain).
				WithPath(cookie.Path).
				WithSecure(cookie.Secure).
				WithHTTPOnly(cookie.HTTPOnly).
				WithSameSite(cookie.SameSite).
				WithExpires(cookie.Expires).
				Do(ctx); err != nil {
				failed++
				m.logger.Warn().
					Err(err).
					Str("cookie_name", cookie.Name).
					Str("domain", cookie.Domain).
					Msg("Failed to inject cookie")
			}
		}
		return nil
	}))
	if err != nil {
		return fmt.Errorf("failed to inject session cookies: %w", err)
	}

	m.logger.Info().
		Int("cookies_injected", len(params)-failed).
		Int("cookies_dropped", len(session.Cookies)-len(params)).
		Msg("Session cookies restored")
	return nil
}

func (m *Manager) requirePage() (*chromePage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.page == nil {
		return nil, fmt.Errorf("browser not initialized")
	}
	return m.page, nil
}

// CheckAuthentication navigates to the home page and looks for a signed-in indicator
func (m *Manager) CheckAuthentication(ctx context.Context) (bool, error) {
	page, err := m.requirePage()
	if err != nil {
		return false, err
	}
	if err := page.Navigate(ctx, m.baseURL+"/"); err != nil {
		return false, err
	}
	if err := page.WaitReady(ctx); err != nil {
		return false, err
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return false, err
	}
	ok, err := HasSignedInIndicator(html, m.browser.SignedInSelectors)
	if err != nil {
		return false, err
	}

	m.logger.Debug().Bool("authenticated", ok).Msg("Authentication probe complete")
	return ok, nil
}

// LoginWithCredentials submits the login form and verifies the result
func (m *Manager) LoginWithCredentials(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return models.ErrMissingCredentials
	}
	page, err := m.requirePage()
	if err != nil {
		return err
	}

	if err := page.Navigate(ctx, m.loginURL); err != nil {
		return err
	}
	if err := page.WaitReady(ctx); err != nil {
		return err
	}
	if err := page.SetValue(ctx, m.browser.EmailSelector, email); err != nil {
		return err
	}
	if err := page.SetValue(ctx, m.browser.PasswordSelector, password); err != nil {
		return err
	}
	if err := page.Click(ctx, m.browser.LoginSelector); err != nil {
		return err
	}

	// Settle: either the signed-in indicator shows up or we give up and re-probe
	settle := m.readiness
	settle.Timeout = m.navTimeout
	settle.Fallback = 0
	signedIn := selectorPresentJS(m.browser.SignedInSelectors)
	if err := WaitFor(ctx, func(ctx context.Context) (bool, error) {
		return page.evaluateBool(ctx, signedIn)
	}, settle); err != nil {
		m.logger.Debug().Err(err).Msg("No signed-in indicator after login submit")
	}

	ok, err := m.CheckAuthentication(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrAuthentication, err)
	}
	if !ok {
		return fmt.Errorf("%w: still signed out after credential login", models.ErrAuthentication)
	}

	m.logger.Info().Msg("Logged in with credentials")
	return nil
}

// SaveSession captures every browser cookie and overwrites the session file.
// The credential store copy is best effort.
func (m *Manager) SaveSession(ctx context.Context) error {
	page, err := m.requirePage()
	if err != nil {
		return err
	}

	var cookies []*network.Cookie
	err = page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return fmt.Errorf("failed to read browser cookies: %w", err)
	}

	session := fromNetworkCookies(cookies)
	if err := SaveSessionFile(m.browser.SessionFile, session); err != nil {
		return err
	}

	if m.store != nil {
		if err := m.store.SaveSession(ctx, m.userID, session); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to persist session to credential store")
		}
	}

	m.logger.Info().
		Int("cookie_count", len(session.Cookies)).
		Str("path", m.browser.SessionFile).
		Msg("Session saved")
	return nil
}

// CaptureInteractive opens the login page and waits for an operator to sign
// in, then saves the session. The manager should be built with headless off.
func (m *Manager) CaptureInteractive(ctx context.Context, timeout time.Duration) error {
	page, err := m.requirePage()
	if err != nil {
		return err
	}
	if err := page.Navigate(ctx, m.loginURL); err != nil {
		return err
	}

	m.logger.Info().
		Dur("timeout", timeout).
		Msg("Waiting for manual sign-in in the browser window")

	signedIn := selectorPresentJS(m.browser.SignedInSelectors)
	wait := Backoff{Initial: time.Second, Max: 5 * time.Second, Multiplier: 1.5, Timeout: timeout}
	if err := WaitFor(ctx, func(ctx context.Context) (bool, error) {
		return page.evaluateBool(ctx, signedIn)
	}, wait); err != nil {
		return fmt.Errorf("%w: %w", models.ErrAuthentication, err)
	}

	return m.SaveSession(ctx)
}

// Page returns the active tab, nil before Initialize
func (m *Manager) Page() interfaces.Page {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.page == nil {
		return nil
	}
	return m.page
}

// Close tears the browser down; safe to call repeatedly and before Initialize
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browserCancel != nil {
		m.browserCancel()
		m.browserCancel = nil
	}
	if m.allocCancel != nil {
		m.allocCancel()
		m.allocCancel = nil
		m.logger.Debug().Msg("Browser closed")
	}
	m.page = nil
	return nil
}
