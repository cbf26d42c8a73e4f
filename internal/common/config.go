package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"

	"github.com/easyvinted/publisher/internal/models"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Vinted      VintedConfig    `toml:"vinted"`
	Secrets     SecretsConfig   `toml:"secrets"`
	Browser     BrowserConfig   `toml:"browser"`
	Listing     ListingConfig   `toml:"listing"`
	Worker      WorkerConfig    `toml:"worker"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
}

type ServerConfig struct {
	Port           int      `toml:"port"`
	Host           string   `toml:"host"`
	AllowedOrigins []string `toml:"allowed_origins"` // dashboard origins for CORS and /ws; "*" allows any
}

// StorageConfig selects the persistence backend for jobs, articles and credentials
type StorageConfig struct {
	Type     string         `toml:"type"` // "badger" or "postgres"
	Badger   BadgerConfig   `toml:"badger"`
	Postgres PostgresConfig `toml:"postgres"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// PostgresConfig points at the hosted Supabase database
type PostgresConfig struct {
	DSN       string `toml:"dsn"`
	MaxConns  int32  `toml:"max_conns"`
	ViaPooler bool   `toml:"via_pooler"` // transaction pooler: no prepared statements
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
	File   string   `toml:"file"`   // log file name under ./logs
}

// VintedConfig holds the marketplace endpoints and the account used when no
// credential record is stored for the worker's user.
type VintedConfig struct {
	BaseURL           string `toml:"base_url"`
	LoginPath         string `toml:"login_path"`
	NewListingPath    string `toml:"new_listing_path"`
	Email             string `toml:"email"`
	Password          string `toml:"password"`
	EncryptedPassword string `toml:"encrypted_password"`
}

type SecretsConfig struct {
	Key string `toml:"key"` // base64 or hex AES-256 key
}

// BrowserConfig controls the chromedp allocator and the login selectors
type BrowserConfig struct {
	Headless          bool     `toml:"headless"`
	ExecPath          string   `toml:"exec_path"`
	SessionFile       string   `toml:"session_file"`
	Locale            string   `toml:"locale"`
	UserAgent         string   `toml:"user_agent"`
	WindowWidth       int      `toml:"window_width"`
	WindowHeight      int      `toml:"window_height"`
	NavigationTimeout string   `toml:"navigation_timeout"` // e.g. "30s"
	SignedInSelectors []string `toml:"signed_in_selectors"`
	EmailSelector     string   `toml:"email_selector"`
	PasswordSelector  string   `toml:"password_selector"`
	LoginSelector     string   `toml:"login_selector"`
	CaptureTimeout    string   `toml:"capture_timeout"` // interactive session capture
}

// ListingConfig tunes the create-listing flow
type ListingConfig struct {
	FieldMapFile       string `toml:"field_map_file"` // optional YAML override of the field mapping
	ManualFill         bool   `toml:"manual_fill"`
	TempDir            string `toml:"temp_dir"`
	DownloadTimeout    string `toml:"download_timeout"`
	SettleDelay        string `toml:"settle_delay"` // fallback only, after readiness polling gives up
	UploadDelay        string `toml:"upload_delay"` // fallback only
	ReadinessTimeout   string `toml:"readiness_timeout"`
	SubmitTimeout      string `toml:"submit_timeout"`
	PhotoInputSelector string `toml:"photo_input_selector"`
	PhotoThumbSelector string `toml:"photo_thumb_selector"`
	SubmitSelector     string `toml:"submit_selector"`
}

// Failure policies applied to the article when its job fails
const (
	FailurePolicyRevertToDraft = "revert_to_draft"
	FailurePolicyKeepStatus    = "keep_status"
)

type WorkerConfig struct {
	UserID            string `toml:"user_id"`
	MaxArticlesPerRun int    `toml:"max_articles_per_run"`
	PostDelay         string `toml:"post_delay"` // e.g. "30s"; 0 disables throttling
	FailurePolicy     string `toml:"failure_policy"`
}

type SchedulerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // Cron schedule format
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port:           8086,
			Host:           "localhost",
			AllowedOrigins: []string{"http://localhost:8086"},
		},
		Storage: StorageConfig{
			Type: "badger",
			Badger: BadgerConfig{
				Path: "./data/easyvinted",
			},
			Postgres: PostgresConfig{
				MaxConns:  4,
				ViaPooler: true,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
			File:   "easyvinted.log",
		},
		Vinted: VintedConfig{
			BaseURL:        "https://www.vinted.fr",
			LoginPath:      "/member/signup/select_type?ref_url=%2F",
			NewListingPath: "/items/new",
		},
		Browser: BrowserConfig{
			Headless:          true,
			SessionFile:       "./data/vinted-session.json",
			Locale:            "fr-FR",
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			WindowWidth:       1280,
			WindowHeight:      800,
			NavigationTimeout: "30s",
			SignedInSelectors: []string{
				`[data-testid="header--user-menu"]`,
				`[data-testid="user-menu-button"]`,
				`#user-menu-button`,
			},
			EmailSelector:    `input[name="username"], input#username, input[type="email"]`,
			PasswordSelector: `input[name="password"], input#password`,
			LoginSelector:    `button[type="submit"]`,
			CaptureTimeout:   "5m",
		},
		Listing: ListingConfig{
			TempDir:            os.TempDir(),
			DownloadTimeout:    "30s",
			SettleDelay:        "3s",
			UploadDelay:        "2s",
			ReadinessTimeout:   "20s",
			SubmitTimeout:      "30s",
			PhotoInputSelector: `input[type="file"]`,
			PhotoThumbSelector: `[data-testid^="media-select-grid-item"]`,
			SubmitSelector:     `button[data-testid="upload-form-save-button"]`,
		},
		Worker: WorkerConfig{
			UserID:            "default",
			MaxArticlesPerRun: 10,
			PostDelay:         "30s",
			FailurePolicy:     FailurePolicyRevertToDraft,
		},
		Scheduler: SchedulerConfig{
			Enabled:  false,
			Schedule: "*/15 * * * *",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files. CLI flags are applied afterwards by ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// firstEnv returns the first non-empty variable among names
func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// splitList splits a comma separated env value, dropping blanks
func splitList(value string) []string {
	items := []string{}
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// applyEnvOverrides applies environment variable overrides to config.
// EASYVINTED_* names win over the bare names the worker historically read.
func applyEnvOverrides(config *Config) {
	if env := firstEnv("EASYVINTED_ENV", "GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("EASYVINTED_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("EASYVINTED_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if origins := os.Getenv("EASYVINTED_SERVER_ALLOWED_ORIGINS"); origins != "" {
		config.Server.AllowedOrigins = splitList(origins)
	}

	// Storage configuration
	if storageType := os.Getenv("EASYVINTED_STORAGE_TYPE"); storageType != "" {
		config.Storage.Type = storageType
	}
	if badgerPath := os.Getenv("EASYVINTED_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if dsn := firstEnv("EASYVINTED_DATABASE_URL", "DATABASE_URL"); dsn != "" {
		config.Storage.Postgres.DSN = dsn
	}

	// Logging configuration
	if level := os.Getenv("EASYVINTED_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("EASYVINTED_LOG_OUTPUT"); output != "" {
		config.Logging.Output = splitList(output)
	}

	// Marketplace account
	if email := firstEnv("EASYVINTED_VINTED_EMAIL", "VINTED_EMAIL"); email != "" {
		config.Vinted.Email = email
	}
	if password := firstEnv("EASYVINTED_VINTED_PASSWORD", "VINTED_PASSWORD"); password != "" {
		config.Vinted.Password = password
	}
	if enc := os.Getenv("EASYVINTED_VINTED_ENCRYPTED_PASSWORD"); enc != "" {
		config.Vinted.EncryptedPassword = enc
	}
	if baseURL := os.Getenv("EASYVINTED_VINTED_BASE_URL"); baseURL != "" {
		config.Vinted.BaseURL = baseURL
	}
	if key := firstEnv("EASYVINTED_SECRETS_KEY", "ENCRYPTION_KEY"); key != "" {
		config.Secrets.Key = key
	}

	// Browser configuration
	if headless := firstEnv("EASYVINTED_BROWSER_HEADLESS", "HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if sessionFile := firstEnv("EASYVINTED_BROWSER_SESSION_FILE", "SESSION_FILE"); sessionFile != "" {
		config.Browser.SessionFile = sessionFile
	}
	if execPath := os.Getenv("EASYVINTED_BROWSER_EXEC_PATH"); execPath != "" {
		config.Browser.ExecPath = execPath
	}

	// Worker configuration
	if limit := firstEnv("EASYVINTED_WORKER_MAX_ARTICLES_PER_RUN", "MAX_ARTICLES_PER_RUN"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			config.Worker.MaxArticlesPerRun = l
		}
	}
	if delay := os.Getenv("EASYVINTED_WORKER_POST_DELAY"); delay != "" {
		config.Worker.PostDelay = delay
	} else if ms := os.Getenv("POST_DELAY_MS"); ms != "" {
		// legacy variable is in milliseconds
		if n, err := strconv.Atoi(ms); err == nil {
			config.Worker.PostDelay = (time.Duration(n) * time.Millisecond).String()
		}
	}
	if policy := os.Getenv("EASYVINTED_WORKER_FAILURE_POLICY"); policy != "" {
		config.Worker.FailurePolicy = policy
	}
	if userID := os.Getenv("EASYVINTED_WORKER_USER_ID"); userID != "" {
		config.Worker.UserID = userID
	}

	// Scheduler configuration
	if schedule := os.Getenv("EASYVINTED_SCHEDULER_SCHEDULE"); schedule != "" {
		config.Scheduler.Schedule = schedule
	}
	if enabled := os.Getenv("EASYVINTED_SCHEDULER_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Scheduler.Enabled = e
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string, headless *bool) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
	if headless != nil {
		config.Browser.Headless = *headless
	}
}

// Validate checks the settings every worker run depends on.
// Errors wrap models.ErrConfiguration.
func (c *Config) Validate() error {
	var problems []string

	if c.Worker.MaxArticlesPerRun <= 0 {
		problems = append(problems, "worker.max_articles_per_run must be positive")
	}
	switch c.Worker.FailurePolicy {
	case FailurePolicyRevertToDraft, FailurePolicyKeepStatus:
	default:
		problems = append(problems, fmt.Sprintf("worker.failure_policy %q is not one of %s, %s",
			c.Worker.FailurePolicy, FailurePolicyRevertToDraft, FailurePolicyKeepStatus))
	}
	switch c.Storage.Type {
	case "badger":
		if c.Storage.Badger.Path == "" {
			problems = append(problems, "storage.badger.path is required")
		}
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			problems = append(problems, "storage.postgres.dsn is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("storage.type %q is not supported", c.Storage.Type))
	}
	if c.Vinted.BaseURL == "" {
		problems = append(problems, "vinted.base_url is required")
	}
	selectors := map[string]string{
		"listing.photo_input_selector": c.Listing.PhotoInputSelector,
		"listing.photo_thumb_selector": c.Listing.PhotoThumbSelector,
		"listing.submit_selector":      c.Listing.SubmitSelector,
	}
	for key, value := range selectors {
		if strings.TrimSpace(value) == "" {
			problems = append(problems, key+" is required")
		}
	}

	durations := map[string]string{
		"worker.post_delay":          c.Worker.PostDelay,
		"browser.navigation_timeout": c.Browser.NavigationTimeout,
		"browser.capture_timeout":    c.Browser.CaptureTimeout,
		"listing.download_timeout":   c.Listing.DownloadTimeout,
		"listing.settle_delay":       c.Listing.SettleDelay,
		"listing.upload_delay":       c.Listing.UploadDelay,
		"listing.readiness_timeout":  c.Listing.ReadinessTimeout,
		"listing.submit_timeout":     c.Listing.SubmitTimeout,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", key, err))
		}
	}

	if c.Scheduler.Enabled {
		if err := ValidateJobSchedule(c.Scheduler.Schedule); err != nil {
			problems = append(problems, fmt.Sprintf("scheduler.schedule: %v", err))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", models.ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// Duration parses a duration setting, returning fallback when empty or invalid
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// ValidateJobSchedule validates a cron schedule expression and ensures minimum 5-minute interval
func ValidateJobSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	parts := strings.Fields(schedule)
	if len(parts) < 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}

	minuteField := parts[0]

	if minuteField == "*" {
		return fmt.Errorf("schedule must have minimum 5-minute interval (every minute is not allowed)")
	}

	// */n with n < 5
	if strings.HasPrefix(minuteField, "*/") {
		interval, err := strconv.Atoi(strings.TrimPrefix(minuteField, "*/"))
		if err == nil && interval < 5 {
			return fmt.Errorf("schedule interval must be at least 5 minutes, got %d", interval)
		}
	}

	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
