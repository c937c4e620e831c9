// Command router runs the background router on its own: it answers
// getSnippets / saveSnippet / deleteSnippet messages on NATS against the
// configured store, without serving HTTP.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/snippet-sync/internal/backend"
	"github.com/sakif/snippet-sync/internal/config"
	"github.com/sakif/snippet-sync/internal/repository"
	"github.com/sakif/snippet-sync/internal/router"
	"github.com/sakif/snippet-sync/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("router stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}
	logger := cfg.NewLogger(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	natsURL := cfg.NatsURL
	if natsURL == "" {
		natsURL = "nats://127.0.0.1:4222"
		logger.Warn("SNIPPETS_NATS_URL not set, using local default", slog.String("url", natsURL))
	}

	b, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	svc := service.NewSnippetService(repository.NewKV(b.Store), logger,
		service.WithDefaultLanguage(cfg.DefaultLanguage),
	)
	// Seeds a fresh store the same way a first install does.
	if err := svc.Initialize(ctx); err != nil {
		return err
	}

	nc, err := router.Connect(natsURL, logger)
	if err != nil {
		return err
	}
	defer nc.Close()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return b.Watch(groupCtx) })
	group.Go(func() error {
		return router.New(svc, logger.With(slog.String("backend", b.Name)), nil).ServeNATS(groupCtx, nc, cfg.NatsSubject)
	})
	return group.Wait()
}
