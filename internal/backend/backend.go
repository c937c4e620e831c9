// Package backend opens the key-value store selected by configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/snippet-sync/internal/config"
	"github.com/sakif/snippet-sync/internal/kvstore"
	"github.com/sakif/snippet-sync/internal/kvstore/redis"
	"github.com/sakif/snippet-sync/internal/kvstore/sqlite"
)

// Backend is an open store plus its lifecycle hooks.
type Backend struct {
	Name  string
	Store kvstore.Store

	watch func(ctx context.Context) error
	close func() error
}

// Open connects to the backend named by cfg.StoreBackend.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	logger = logger.With(slog.String("backend", cfg.StoreBackend))

	switch cfg.StoreBackend {
	case config.BackendMemory:
		return &Backend{
			Name:  cfg.StoreBackend,
			Store: kvstore.NewMemory(),
			watch: waitDone,
			close: func() error { return nil },
		}, nil

	case config.BackendSQLite:
		if cfg.DBPath != ":memory:" {
			dir := filepath.Dir(cfg.DBPath)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}
		store, err := sqlite.New(cfg.DBPath, logger, sqlite.WithPollInterval(cfg.WatchPollInterval))
		if err != nil {
			return nil, err
		}
		logger.Info("store opened", slog.String("path", cfg.DBPath))
		return &Backend{Name: cfg.StoreBackend, Store: store, watch: store.Watch, close: store.Close}, nil

	case config.BackendRedis:
		client, err := redis.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		store := redis.New(client, cfg.RedisPrefix, logger)
		logger.Info("store opened", slog.String("prefix", cfg.RedisPrefix))
		return &Backend{Name: cfg.StoreBackend, Store: store, watch: store.Watch, close: store.Close}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// Watch blocks until ctx is cancelled, turning writes made by other
// processes into change events on Store.
func (b *Backend) Watch(ctx context.Context) error {
	return b.watch(ctx)
}

func (b *Backend) Close() error {
	return b.close()
}

func waitDone(ctx context.Context) error {
	<-ctx.Done()
	return nil
}
