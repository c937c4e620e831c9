// Package sqlite implements kvstore.Store on top of a SQLite database file.
//
// Every process on the host that opens the same file shares one store. Writes
// made through this Store are announced to local subscribers right away;
// writes made by OTHER processes are picked up by Watch, which watches the
// database directory with fsnotify (falling back to polling) and diffs the
// table against the last snapshot it saw.
//
// The database is the pure Go modernc.org/sqlite driver, so no C toolchain is
// needed to build the binaries.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"

	"github.com/sakif/snippet-sync/internal/kvstore"
)

var _ kvstore.Store = (*Store)(nil)

const (
	defaultPollInterval = 5 * time.Second
	defaultDebounce     = 100 * time.Millisecond
)

// Store is a kvstore.Store persisted in a single "kv" table.
type Store struct {
	kvstore.Hub

	conn   *sql.DB
	path   string
	logger *slog.Logger

	pollInterval time.Duration
	debounce     time.Duration

	// syncMu serializes snapshot refreshes so that every change is announced once.
	syncMu   sync.Mutex
	snapshot map[string]json.RawMessage
}

// Option configures a Store.
type Option func(*Store)

// WithPollInterval sets how often Watch re-reads the table when no file
// event arrives.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/snippets.db" → file-based, shared with other processes
//   - ":memory:"         → private to this Store, lost on Close (tests)
func New(dbPath string, logger *slog.Logger, opts ...Option) (*Store, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// A single connection keeps ":memory:" databases coherent and turns
	// concurrent writers inside this process into a queue.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets another process read while we write; busy_timeout makes a
	// second writer wait for the lock instead of failing immediately.
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	s := &Store{
		conn:         conn,
		path:         dbPath,
		logger:       logger,
		pollInterval: defaultPollInterval,
		debounce:     defaultDebounce,
		snapshot:     make(map[string]json.RawMessage),
	}
	for _, o := range opts {
		o(s)
	}

	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	if _, err := s.refresh(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: loading snapshot: %w", err)
	}

	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating kv table: %w", err)
	}
	return nil
}

// Get implements kvstore.Store.
func (s *Store) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT key, value FROM kv WHERE key IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("sqlite: scanning kv row: %w", err)
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating kv rows: %w", err)
	}

	return out, nil
}

// Set implements kvstore.Store. All keys are written in one transaction.
func (s *Store) Set(ctx context.Context, items map[string]json.RawMessage) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning write: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	now := time.Now().UTC()
	for k, v := range items {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			k, []byte(v), now,
		)
		if err != nil {
			return fmt.Errorf("sqlite: writing key %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing write: %w", err)
	}

	if _, err := s.refresh(ctx); err != nil {
		// The write itself succeeded; only the notification is lost, and
		// the next refresh will report it.
		s.logger.Warn("sqlite: refreshing snapshot after write failed",
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// refresh re-reads the whole table, publishes what changed since the last
// snapshot and reports whether anything did.
func (s *Store) refresh(ctx context.Context) (bool, error) {
	s.syncMu.Lock()

	rows, err := s.conn.QueryContext(ctx, `SELECT key, value FROM kv`)
	if err != nil {
		s.syncMu.Unlock()
		return false, err
	}

	current := make(map[string]json.RawMessage)
	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			rows.Close()
			s.syncMu.Unlock()
			return false, err
		}
		current[key] = value
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		s.syncMu.Unlock()
		return false, err
	}

	ev := kvstore.Diff(s.snapshot, current)
	s.snapshot = current
	s.syncMu.Unlock()

	s.Publish(ev)
	return len(ev.Changes) > 0, nil
}
