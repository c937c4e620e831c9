package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_GetMissingKeysAreAbsent(t *testing.T) {
	m := NewMemory()

	got, err := m.Get(context.Background(), "snippets", "nextSnippetId")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemory_SetThenGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	err := m.Set(ctx, map[string]json.RawMessage{
		"snippets":      json.RawMessage(`[]`),
		"nextSnippetId": json.RawMessage(`1`),
	})
	require.NoError(t, err)

	got, err := m.Get(ctx, "snippets", "nextSnippetId", "settings")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(got["snippets"]))
	assert.JSONEq(t, `1`, string(got["nextSnippetId"]))
	assert.NotContains(t, got, "settings")
}

func TestMemory_GetReturnsCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, map[string]json.RawMessage{"k": json.RawMessage(`"abc"`)}))

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	got["k"][1] = 'z'

	again, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `"abc"`, string(again["k"]))
}

func TestMemory_QuotaExceeded(t *testing.T) {
	m := NewMemory(WithQuota(16))
	ctx := context.Background()

	err := m.Set(ctx, map[string]json.RawMessage{"k": json.RawMessage(`"short"`)})
	require.NoError(t, err)

	err = m.Set(ctx, map[string]json.RawMessage{"k": json.RawMessage(`"this value is far too long"`)})
	assert.True(t, errors.Is(err, ErrQuotaExceeded))

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `"short"`, string(got["k"]), "failed write must not be applied")
}

func TestMemory_ChangeEvents(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var events []ChangeEvent
	unsubscribe := m.Subscribe(func(ev ChangeEvent) { events = append(events, ev) })

	require.NoError(t, m.Set(ctx, map[string]json.RawMessage{
		"snippets":      json.RawMessage(`[]`),
		"nextSnippetId": json.RawMessage(`1`),
	}))
	require.Len(t, events, 1)
	assert.Equal(t, []string{"nextSnippetId", "snippets"}, events[0].Keys())
	assert.Nil(t, events[0].Changes["snippets"].OldValue)

	// Rewriting identical bytes is not a change.
	require.NoError(t, m.Set(ctx, map[string]json.RawMessage{"snippets": json.RawMessage(`[]`)}))
	assert.Len(t, events, 1)

	require.NoError(t, m.Set(ctx, map[string]json.RawMessage{
		"snippets":      json.RawMessage(`[{"id":1}]`),
		"nextSnippetId": json.RawMessage(`1`),
	}))
	require.Len(t, events, 2)
	assert.True(t, events[1].Has("snippets"))
	assert.False(t, events[1].Has("nextSnippetId"))
	assert.Equal(t, `[]`, string(events[1].Changes["snippets"].OldValue))

	unsubscribe()
	unsubscribe() // idempotent
	require.NoError(t, m.Set(ctx, map[string]json.RawMessage{"snippets": json.RawMessage(`[]`)}))
	assert.Len(t, events, 2)
}

func TestMemory_CancelledContext(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, m.Set(ctx, map[string]json.RawMessage{"k": json.RawMessage(`1`)}), context.Canceled)
}

func TestDiff(t *testing.T) {
	old := map[string]json.RawMessage{"a": json.RawMessage(`1`), "b": json.RawMessage(`2`)}
	next := map[string]json.RawMessage{"a": json.RawMessage(`1`), "b": json.RawMessage(`3`), "c": json.RawMessage(`4`)}

	ev := Diff(old, next)
	assert.Equal(t, []string{"b", "c"}, ev.Keys())
	assert.Equal(t, `2`, string(ev.Changes["b"].OldValue))
	assert.Nil(t, ev.Changes["c"].OldValue)
}
