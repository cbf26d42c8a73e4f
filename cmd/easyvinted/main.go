package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/easyvinted/publisher/internal/app"
	"github.com/easyvinted/publisher/internal/common"
	"github.com/easyvinted/publisher/internal/models"
)

// Exit codes
const (
	exitOK     = 0
	exitBatch  = 1
	exitConfig = 2
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

// command is one CLI verb; it returns the process exit code
type command struct {
	usage string
	run   func(ctx context.Context, args []string) int
}

var commands = map[string]command{
	"run":     {"run                          publish every due job now", runBatch},
	"publish": {"publish <article-id>         publish one article immediately", runPublish},
	"session": {"session                      capture or refresh the marketplace session", runSession},
	"enqueue": {"enqueue <article-id> [-at T] schedule an article (T is RFC3339)", runEnqueue},
	"serve":   {"serve                        run the scheduler and HTTP API", runServe},
	"version": {"version                      print version information", runVersion},
}

var commandOrder = []string{"run", "publish", "session", "enqueue", "serve", "version"}

var (
	configFiles configPaths
	serverPort  int
	serverHost  string
	headless    bool

	config *common.Config
	logger arbor.ILogger
)

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: easyvinted [flags] <command> [args]\n\nCommands:\n")
	for _, name := range commandOrder {
		fmt.Fprintf(out, "  %s\n", commands[name].usage)
	}
	fmt.Fprintf(out, "\nFlags:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
	flag.IntVar(&serverPort, "port", 0, "Server port (overrides config)")
	flag.StringVar(&serverHost, "host", "", "Server host (overrides config)")
	flag.BoolVar(&headless, "headless", true, "Run Chrome headless (overrides config)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(exitConfig)
	}
	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", flag.Arg(0))
		usage()
		os.Exit(exitConfig)
	}
	if flag.Arg(0) == "version" {
		os.Exit(cmd.run(context.Background(), nil))
	}

	if code := loadConfig(); code != exitOK {
		os.Exit(code)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cmd.run(ctx, flag.Args()[1:])
	stop()
	os.Exit(code)
}

// loadConfig resolves defaults -> files -> env -> flags, then starts logging
func loadConfig() int {
	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("easyvinted.toml"); err == nil {
			configFiles = append(configFiles, "easyvinted.toml")
		} else if _, err := os.Stat("deployments/local/easyvinted.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/easyvinted.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Error().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration files")
		return exitConfig
	}

	var headlessOverride *bool
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "headless" {
			headlessOverride = &headless
		}
	})
	common.ApplyFlagOverrides(config, serverPort, serverHost, headlessOverride)

	logger = common.InitLogger(config)
	common.PrintBanner(config, logger)

	logger.Debug().
		Strs("config_files", configFiles).
		Str("storage_type", config.Storage.Type).
		Str("log_level", config.Logging.Level).
		Bool("headless", config.Browser.Headless).
		Msg("Resolved configuration")
	return exitOK
}

// newApp builds the application, mapping failures to exit codes
func newApp() (*app.App, int) {
	application, err := app.New(config, logger, app.Options{})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		return nil, exitCode(err)
	}
	return application, exitOK
}

// exitCode maps an error to the CLI exit code
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, models.ErrConfiguration), errors.Is(err, models.ErrMissingCredentials):
		return exitConfig
	default:
		return exitBatch
	}
}
