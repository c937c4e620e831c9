package kvstore

import (
	"context"
	"encoding/json"
	"sync"
)

var _ Store = (*Memory)(nil)

// Memory is an in-process Store.
//
// A quota (in bytes, keys plus values) can be configured to reproduce the
// "quota exceeded" failures of a real synchronized store.
type Memory struct {
	Hub

	mu    sync.RWMutex
	data  map[string]json.RawMessage
	quota int
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithQuota limits the total size of the store. Zero means unlimited.
func WithQuota(bytes int) MemoryOption {
	return func(m *Memory) {
		m.quota = bytes
	}
}

// NewMemory returns an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{data: make(map[string]json.RawMessage)}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Memory) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		if v, ok := m.data[k]; ok {
			out[k] = clone(v)
		}
	}
	return out, nil
}

func (m *Memory) Set(ctx context.Context, items map[string]json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.quota > 0 && m.sizeAfter(items) > m.quota {
		m.mu.Unlock()
		return ErrQuotaExceeded
	}

	old := make(map[string]json.RawMessage, len(items))
	next := make(map[string]json.RawMessage, len(items))
	for k, v := range items {
		if prev, ok := m.data[k]; ok {
			old[k] = prev
		}
		m.data[k] = clone(v)
		next[k] = clone(v)
	}
	m.mu.Unlock()

	m.Publish(Diff(old, next))
	return nil
}

// sizeAfter must be called with m.mu held.
func (m *Memory) sizeAfter(items map[string]json.RawMessage) int {
	size := 0
	for k, v := range m.data {
		if _, replaced := items[k]; replaced {
			continue
		}
		size += len(k) + len(v)
	}
	for k, v := range items {
		size += len(k) + len(v)
	}
	return size
}
