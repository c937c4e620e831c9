// Package redis implements kvstore.Store on a Redis server.
//
// Keys are stored as plain strings under a prefix. Each Set is an optimistic
// WATCH/MULTI/EXEC transaction that also PUBLISHes the change event on a channel,
// so every instance sharing the server learns about every write. Watch
// subscribes to that channel and re-announces events that came from other
// instances; each instance tags its own events with an xid origin.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gojson "github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/xid"

	"github.com/sakif/snippet-sync/internal/kvstore"
)

var _ kvstore.Store = (*Store)(nil)

// DefaultPrefix namespaces the store's keys on a shared server.
const DefaultPrefix = "snippet-sync:"

// Store is a kvstore.Store backed by Redis.
type Store struct {
	kvstore.Hub

	client  *goredis.Client
	prefix  string
	channel string
	origin  string
	logger  *slog.Logger
}

// envelope is what travels over the change channel.
type envelope struct {
	Origin  string                    `json:"origin"`
	Changes map[string]kvstore.Change `json:"changes"`
}

// Connect parses a redis:// URL and verifies the server answers.
func Connect(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parsing url: %w", err)
	}

	client := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: pinging server: %w", err)
	}
	return client, nil
}

// New wraps client. An empty prefix selects DefaultPrefix.
func New(client *goredis.Client, prefix string, logger *slog.Logger) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{
		client:  client,
		prefix:  prefix,
		channel: prefix + "changes",
		origin:  xid.New().String(),
		logger:  logger,
	}
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Get implements kvstore.Store.
func (s *Store) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	return s.read(ctx, s.client, keys)
}

// mgetter is satisfied by both the client and a WATCH transaction.
type mgetter interface {
	MGet(ctx context.Context, keys ...string) *goredis.SliceCmd
}

func (s *Store) read(ctx context.Context, c mgetter, keys []string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	vals, err := c.MGet(ctx, s.prefixed(keys)...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: reading keys: %w", err)
	}

	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue // nil: key was never written
		}
		out[keys[i]] = json.RawMessage(str)
	}
	return out, nil
}

// maxTxAttempts bounds how often Set retries after another client touched
// one of its keys between the read and the commit.
const maxTxAttempts = 10

// Set implements kvstore.Store. The old values are read under WATCH and the
// new values go out with the change announcement in one MULTI/EXEC, so the
// event's old values are exactly what the write replaced.
func (s *Store) Set(ctx context.Context, items map[string]json.RawMessage) error {
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}

	var ev kvstore.ChangeEvent
	err := retryTx(maxTxAttempts, func() error {
		return s.client.Watch(ctx, func(tx *goredis.Tx) error {
			old, err := s.read(ctx, tx, keys)
			if err != nil {
				return err
			}
			ev = kvstore.Diff(old, items)

			payload, err := gojson.Marshal(envelope{Origin: s.origin, Changes: ev.Changes})
			if err != nil {
				return fmt.Errorf("redis: encoding change event: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				for k, v := range items {
					pipe.Set(ctx, s.prefix+k, []byte(v), 0)
				}
				if len(ev.Changes) > 0 {
					pipe.Publish(ctx, s.channel, payload)
				}
				return nil
			})
			return err
		}, s.prefixed(keys)...)
	})
	if err != nil {
		return fmt.Errorf("redis: writing keys: %w", err)
	}

	s.Publish(ev)
	return nil
}

// retryTx runs fn until it stops failing with goredis.TxFailedErr, at most
// attempts times.
func retryTx(attempts int, fn func() error) error {
	var err error
	for range attempts {
		err = fn()
		if !errors.Is(err, goredis.TxFailedErr) {
			return err
		}
	}
	return err
}

// Watch re-announces changes made by other instances until ctx is cancelled.
func (s *Store) Watch(ctx context.Context) error {
	sub := s.client.Subscribe(ctx, s.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("redis: subscribing to %s: %w", s.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.dispatch(msg.Payload)
		}
	}
}

func (s *Store) dispatch(payload string) {
	var env envelope
	if err := gojson.Unmarshal([]byte(payload), &env); err != nil {
		s.logger.Warn("redis watch: malformed change event", slog.String("error", err.Error()))
		return
	}
	if env.Origin == s.origin {
		return // already announced locally by Set
	}
	s.Publish(kvstore.ChangeEvent{Changes: env.Changes})
}

func (s *Store) prefixed(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = s.prefix + k
	}
	return out
}
