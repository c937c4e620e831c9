// Package kvstore defines the contract of the synchronized key-value store the
// snippet collection is persisted in, plus an in-memory implementation.
//
// The store is deliberately dumb: it maps top-level key names to opaque JSON
// values, applies each Set as a single shot, and tells subscribers which keys
// changed. Typing, defaults and business rules live in the repository and
// service layers above it.
//
// Backends:
//   - Memory          : in-process, used by tests and the "memory" backend
//   - kvstore/sqlite  : a single database file shared by every process on the host
//   - kvstore/redis   : a Redis server shared by every process that can reach it
package kvstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
)

// ErrQuotaExceeded is returned by a Set that would grow the store past its quota.
var ErrQuotaExceeded = errors.New("kvstore: quota exceeded")

// Store is implemented by every backend.
type Store interface {
	// Get returns the values of the requested keys. Keys that have never been
	// written are absent from the result; absence is not an error.
	Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)

	// Set writes every key in items as one call. Backends that can apply the
	// write atomically do so; callers must not rely on it.
	Set(ctx context.Context, items map[string]json.RawMessage) error

	// Subscribe registers l for change events and returns a function that
	// removes it again.
	Subscribe(l Listener) (unsubscribe func())
}

// Change describes one key of a ChangeEvent. A nil value means "absent".
type Change struct {
	OldValue json.RawMessage `json:"oldValue,omitempty"`
	NewValue json.RawMessage `json:"newValue,omitempty"`
}

// ChangeEvent lists the keys whose value changed in one write.
type ChangeEvent struct {
	Changes map[string]Change `json:"changes"`
}

// Has reports whether key is part of the event.
func (e ChangeEvent) Has(key string) bool {
	_, ok := e.Changes[key]
	return ok
}

// Keys returns the changed keys in sorted order.
func (e ChangeEvent) Keys() []string {
	keys := make([]string, 0, len(e.Changes))
	for k := range e.Changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Listener receives change events. It is called outside the store's locks,
// so it may call Get; it must not block for long.
type Listener func(ChangeEvent)

// Diff builds the event describing the transition from old to next for every
// key in next. Keys whose bytes are unchanged are left out.
func Diff(old, next map[string]json.RawMessage) ChangeEvent {
	ev := ChangeEvent{Changes: make(map[string]Change)}
	for k, v := range next {
		prev, had := old[k]
		if had && bytes.Equal(prev, v) {
			continue
		}
		ev.Changes[k] = Change{OldValue: prev, NewValue: v}
	}
	return ev
}

// Hub fans change events out to listeners. The zero value is ready to use;
// backends embed it to get Subscribe for free.
type Hub struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]Listener
}

// Subscribe implements Store.Subscribe.
func (h *Hub) Subscribe(l Listener) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.listeners == nil {
		h.listeners = make(map[int]Listener)
	}
	id := h.nextID
	h.nextID++
	h.listeners[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners, id)
			h.mu.Unlock()
		})
	}
}

// Publish delivers ev to every listener registered at the time of the call.
// Empty events are dropped.
func (h *Hub) Publish(ev ChangeEvent) {
	if len(ev.Changes) == 0 {
		return
	}

	h.mu.Lock()
	ids := make([]int, 0, len(h.listeners))
	for id := range h.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	snapshot := make([]Listener, 0, len(ids))
	for _, id := range ids {
		snapshot = append(snapshot, h.listeners[id])
	}
	h.mu.Unlock()

	for _, l := range snapshot {
		l(ev)
	}
}

func clone(v json.RawMessage) json.RawMessage {
	if v == nil {
		return nil
	}
	return append(json.RawMessage(nil), v...)
}
