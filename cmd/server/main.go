// Package main is the entry point for the snippets HTTP server.
//
// main stays minimal: read configuration, build the logger, hand both to the
// server package. Everything else (store, service, routes, background
// router) is wired in internal/server.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/sakif/snippet-sync/internal/config"
	"github.com/sakif/snippet-sync/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// SNIPPETS_* environment variables, optionally from a .env file.
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	// === 3. CREATE AND START THE SERVER ===
	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
