package common

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and logs the effective settings
func PrintBanner(config *Config, logger arbor.ILogger) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorCyan).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(60)

	b.PrintTopLine()
	b.PrintCenteredText("EASYVINTED")
	b.PrintCenteredText("Vinted listing publisher")
	b.PrintSeparatorLine()
	b.PrintKeyValue("Version", GetVersion(), 12)
	b.PrintKeyValue("Storage", config.Storage.Type, 12)
	b.PrintKeyValue("Headless", fmt.Sprintf("%t", config.Browser.Headless), 12)
	if config.Scheduler.Enabled {
		b.PrintKeyValue("Schedule", config.Scheduler.Schedule, 12)
	}
	b.PrintBottomLine()
	fmt.Println()

	logger.Info().
		Str("version", GetFullVersion()).
		Str("environment", config.Environment).
		Str("storage", config.Storage.Type).
		Bool("headless", config.Browser.Headless).
		Int("max_articles_per_run", config.Worker.MaxArticlesPerRun).
		Str("post_delay", config.Worker.PostDelay).
		Str("failure_policy", config.Worker.FailurePolicy).
		Msg("EasyVinted publisher starting")
}
