// Package cli implements the snippets terminal client.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/sakif/snippet-sync/internal/backend"
	"github.com/sakif/snippet-sync/internal/config"
	"github.com/sakif/snippet-sync/internal/repository"
	"github.com/sakif/snippet-sync/internal/service"
)

var rootCmd = &cobra.Command{
	Use:   "snippets",
	Short: "Save, list, copy and delete code snippets",
	Long: "snippets manages a collection of labeled code snippets kept in a store shared " +
		"with the snippets server and other snippets clients.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "Environment file loaded before reading SNIPPETS_* variables")
}

// Execute runs the command line.
func Execute(ctx context.Context) error {
	return fang.Execute(ctx, rootCmd)
}

// app is everything a command needs to talk to the store.
type app struct {
	cfg     *config.Config
	backend *backend.Backend
	svc     *service.SnippetService
}

func openApp(cmd *cobra.Command) (*app, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}

	// Logs go to stderr so stdout stays clean for tables and exports.
	logger := cfg.NewLogger(os.Stderr)

	b, err := backend.Open(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	svc := service.NewSnippetService(repository.NewKV(b.Store), logger,
		service.WithDefaultLanguage(cfg.DefaultLanguage),
	)
	return &app{cfg: cfg, backend: b, svc: svc}, nil
}

func (a *app) Close() error {
	return a.backend.Close()
}
