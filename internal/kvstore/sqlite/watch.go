package sqlite

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch publishes changes written to the database by other processes until
// ctx is cancelled.
//
// The database directory is watched with fsnotify; writes to the database
// file or its -wal/-shm companions trigger a debounced refresh. A poll loop
// runs alongside as a safety net, and on its own if fsnotify cannot start.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == ":memory:" || s.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("sqlite watch: fsnotify init failed, using poll-only",
			slog.String("error", err.Error()),
		)
		watcher = nil
	} else if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		s.logger.Warn("sqlite watch: fsnotify add failed, using poll-only",
			slog.String("dir", filepath.Dir(s.path)),
			slog.String("error", err.Error()),
		)
		_ = watcher.Close()
		watcher = nil
	}

	trigger := newDebouncer(s.debounce, func() { s.refreshLogged(ctx) })
	defer trigger.stop()

	if watcher != nil {
		defer watcher.Close()
		go s.watchLoop(ctx, watcher, trigger)
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.refreshLogged(ctx)
		}
	}
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, trigger *debouncer) {
	base := filepath.Base(s.path)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !strings.HasPrefix(filepath.Base(event.Name), base) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			trigger.fire()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("sqlite watch: fsnotify error", slog.String("error", err.Error()))
		}
	}
}

func (s *Store) refreshLogged(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	changed, err := s.refresh(ctx)
	if err != nil {
		s.logger.Warn("sqlite watch: refresh failed", slog.String("error", err.Error()))
		return
	}
	if changed {
		s.logger.Debug("sqlite watch: external change detected", slog.String("path", s.path))
	}
}

// debouncer collapses bursts of fire() calls into one fn call.
type debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	fn      func()
	timer   *time.Timer
	stopped bool
}

func newDebouncer(delay time.Duration, fn func()) *debouncer {
	return &debouncer{delay: delay, fn: fn}
}

func (d *debouncer) fire() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fn)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
