package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/easyvinted/publisher/internal/common"
	"github.com/easyvinted/publisher/internal/handlers"
	"github.com/easyvinted/publisher/internal/httpclient"
	"github.com/easyvinted/publisher/internal/interfaces"
	"github.com/easyvinted/publisher/internal/services/browser"
	"github.com/easyvinted/publisher/internal/services/credentials"
	"github.com/easyvinted/publisher/internal/services/events"
	"github.com/easyvinted/publisher/internal/services/listing"
	"github.com/easyvinted/publisher/internal/services/processor"
	"github.com/easyvinted/publisher/internal/services/scheduler"
	"github.com/easyvinted/publisher/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	ctx            context.Context
	cancelCtx      context.CancelFunc
	StorageManager interfaces.StorageManager

	// Event-driven services
	EventService     interfaces.EventService
	SchedulerService *scheduler.Service

	// Publication pipeline
	Accounts  *credentials.Resolver
	Browsers  interfaces.BrowserFactory
	Engine    *listing.Engine
	Processor *processor.Processor

	// HTTP handlers
	StatusHandler *handlers.StatusHandler
	JobHandler    *handlers.JobHandler
	WSHandler     *handlers.WebSocketHandler
}

// Options adjust how the application is assembled
type Options struct {
	// Stdin and Stdout drive the manual filler when listing.manual_fill is on
	Stdin  io.Reader
	Stdout io.Writer
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	if err := app.initDatabase(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(opts); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initHandlers(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	logger.Info().
		Str("storage", cfg.Storage.Type).
		Bool("headless", cfg.Browser.Headless).
		Bool("manual_fill", cfg.Listing.ManualFill).
		Int("max_articles_per_run", cfg.Worker.MaxArticlesPerRun).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the configured storage backend
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.ctx, a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", a.Config.Storage.Type).
		Msg("Storage layer initialized")
	return nil
}

// initServices wires the publication pipeline in dependency order:
// events, credentials, browser factory, listing engine, processor, scheduler
func (a *App) initServices(opts Options) error {
	a.EventService = events.NewService(a.Logger)
	if err := events.SubscribeLoggerToAllEvents(a.EventService, a.Logger); err != nil {
		return err
	}

	a.Accounts = credentials.NewResolver(a.Config, a.StorageManager.CredentialStore(), a.Logger)
	a.Browsers = browser.NewFactory(a.Config, a.StorageManager.CredentialStore(), a.Logger)

	fields := listing.DefaultFieldMap()
	if a.Config.Listing.FieldMapFile != "" {
		loaded, err := listing.LoadFieldMap(a.Config.Listing.FieldMapFile)
		if err != nil {
			return err
		}
		fields = loaded
		a.Logger.Debug().Str("path", a.Config.Listing.FieldMapFile).Msg("Loaded listing field map")
	}

	var filler listing.Filler = listing.NewAutoFiller(fields, a.Logger)
	if a.Config.Listing.ManualFill {
		filler = listing.NewManualFiller(opts.Stdin, opts.Stdout, a.Logger)
	}

	client := httpclient.NewDefaultHTTPClient(
		common.Duration(a.Config.Listing.DownloadTimeout, 60*time.Second),
		a.Config.Browser.UserAgent,
	)
	downloader := listing.NewDownloader(client, a.Config.Listing.TempDir)
	a.Engine = listing.NewEngine(listing.OptionsFromConfig(a.Config), downloader, filler, a.Logger)

	a.Processor = processor.NewProcessor(
		processor.OptionsFromConfig(a.Config),
		a.StorageManager,
		a.Accounts,
		a.Browsers,
		a.Engine,
		a.EventService,
		a.Logger,
	)
	a.SchedulerService = scheduler.NewService(a.Processor, a.Logger)
	return nil
}

// initHandlers builds the HTTP handlers and hooks the WebSocket hub to the bus
func (a *App) initHandlers() error {
	a.WSHandler = handlers.NewWebSocketHandler(a.Logger, a.Config.Server.AllowedOrigins...)
	if err := a.WSHandler.SubscribeToEvents(a.EventService); err != nil {
		return err
	}
	a.StatusHandler = handlers.NewStatusHandler(a.SchedulerService)
	a.JobHandler = handlers.NewJobHandler(a.ctx, a.StorageManager, a.Processor, a.EventService, a.Logger)
	return nil
}

// StartScheduler starts the cron schedule when enabled in config
func (a *App) StartScheduler() error {
	if !a.Config.Scheduler.Enabled {
		a.Logger.Info().Msg("Scheduler disabled")
		return nil
	}
	return a.SchedulerService.Start(a.Config.Scheduler.Schedule)
}

// NewSessionManager builds a standalone browser manager for session capture
func (a *App) NewSessionManager() *browser.Manager {
	return browser.NewManager(a.Config, a.StorageManager.CredentialStore(), a.Logger)
}

// Close stops background work and releases storage
func (a *App) Close() error {
	if a.cancelCtx != nil {
		a.cancelCtx()
	}

	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
