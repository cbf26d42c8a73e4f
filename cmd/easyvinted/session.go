package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/easyvinted/publisher/internal/common"
)

// runSession opens a visible browser; a still-valid session is just re-saved
func runSession(ctx context.Context, args []string) int {
	if len(args) != 0 {
		fmt.Fprintln(os.Stderr, "session takes no arguments")
		return exitConfig
	}

	config.Browser.Headless = false
	application, code := newApp()
	if code != exitOK {
		return code
	}
	defer application.Close()

	manager := application.NewSessionManager()
	defer manager.Close()

	if err := manager.Initialize(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to start browser")
		return exitBatch
	}

	ok, err := manager.CheckAuthentication(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Authentication probe failed, falling back to manual sign-in")
	}
	if ok {
		if err := manager.SaveSession(ctx); err != nil {
			logger.Error().Err(err).Msg("Failed to save session")
			return exitBatch
		}
		fmt.Println("Existing session is valid and was refreshed")
		return exitOK
	}

	timeout := common.Duration(config.Browser.CaptureTimeout, 5*time.Minute)
	fmt.Printf("Sign in to Vinted in the browser window (waiting up to %s)\n", timeout)
	if err := manager.CaptureInteractive(ctx, timeout); err != nil {
		logger.Error().Err(err).Msg("Session capture failed")
		return exitBatch
	}

	fmt.Printf("Session saved to %s\n", config.Browser.SessionFile)
	return exitOK
}
