package repository

import (
	"context"
	"encoding/json"
	"fmt"

	gojson "github.com/goccy/go-json"
	"github.com/samber/lo"

	"github.com/sakif/snippet-sync/internal/apperror"
	"github.com/sakif/snippet-sync/internal/kvstore"
	"github.com/sakif/snippet-sync/internal/model"
)

var _ SnippetRepository = (*KV)(nil)

// KV implements SnippetRepository over any kvstore.Store.
type KV struct {
	store kvstore.Store
}

// NewKV wraps store.
func NewKV(store kvstore.Store) *KV {
	return &KV{store: store}
}

// Load reads the collection and the counter in one call.
func (r *KV) Load(ctx context.Context) (State, error) {
	values, err := r.store.Get(ctx, KeySnippets, KeyNextSnippetID)
	if err != nil {
		return State{}, apperror.StorageFailed("loading snippets", err)
	}

	state := State{Snippets: []model.Snippet{}, NextID: FirstSnippetID}

	if raw, ok := values[KeySnippets]; ok && !isNull(raw) {
		if err := gojson.Unmarshal(raw, &state.Snippets); err != nil {
			return State{}, apperror.StorageFailed("decoding snippets", err)
		}
		if state.Snippets == nil {
			state.Snippets = []model.Snippet{}
		}
	}

	if raw, ok := values[KeyNextSnippetID]; ok && !isNull(raw) {
		if err := gojson.Unmarshal(raw, &state.NextID); err != nil {
			return State{}, apperror.StorageFailed("decoding snippet counter", err)
		}
	}

	// A collection written without its counter (or with a stale one) must
	// never hand out an id that is already taken.
	state.NextID = max(state.NextID, nextFree(state.Snippets))
	return state, nil
}

// Save writes the collection and the counter as one combined write.
func (r *KV) Save(ctx context.Context, state State) error {
	snippets, err := encodeSnippets(state.Snippets)
	if err != nil {
		return err
	}
	counter, err := gojson.Marshal(state.NextID)
	if err != nil {
		return apperror.StorageFailed("encoding snippet counter", err)
	}

	err = r.store.Set(ctx, map[string]json.RawMessage{
		KeySnippets:      snippets,
		KeyNextSnippetID: counter,
	})
	if err != nil {
		return apperror.StorageFailed("saving snippet", err)
	}
	return nil
}

// SaveSnippets writes only the collection; the counter is left untouched.
func (r *KV) SaveSnippets(ctx context.Context, snippets []model.Snippet) error {
	raw, err := encodeSnippets(snippets)
	if err != nil {
		return err
	}
	if err := r.store.Set(ctx, map[string]json.RawMessage{KeySnippets: raw}); err != nil {
		return apperror.StorageFailed("deleting snippet", err)
	}
	return nil
}

// Settings returns the stored settings; missing fields take their defaults.
func (r *KV) Settings(ctx context.Context) (model.Settings, error) {
	values, err := r.store.Get(ctx, KeySettings)
	if err != nil {
		return model.Settings{}, apperror.StorageFailed("loading settings", err)
	}

	settings := model.DefaultSettings()
	if raw, ok := values[KeySettings]; ok && !isNull(raw) {
		if err := gojson.Unmarshal(raw, &settings); err != nil {
			return model.Settings{}, apperror.StorageFailed("decoding settings", err)
		}
	}
	defaults := model.DefaultSettings()
	if settings.Theme == "" {
		settings.Theme = defaults.Theme
	}
	if settings.DefaultLanguage == "" {
		settings.DefaultLanguage = defaults.DefaultLanguage
	}
	return settings, nil
}

// SaveSettings overwrites the settings key.
func (r *KV) SaveSettings(ctx context.Context, settings model.Settings) error {
	raw, err := gojson.Marshal(settings)
	if err != nil {
		return apperror.StorageFailed("encoding settings", err)
	}
	if err := r.store.Set(ctx, map[string]json.RawMessage{KeySettings: raw}); err != nil {
		return apperror.StorageFailed("saving settings", err)
	}
	return nil
}

// Initialize seeds a fresh store: empty collection, counter 1 and defaults.
// Keys that already exist are left alone, so running it on every start is safe.
func (r *KV) Initialize(ctx context.Context, defaults model.Settings) error {
	values, err := r.store.Get(ctx, KeySnippets, KeyNextSnippetID, KeySettings)
	if err != nil {
		return apperror.StorageFailed("initializing storage", err)
	}

	seed := make(map[string]json.RawMessage, 3)
	if _, ok := values[KeySnippets]; !ok {
		seed[KeySnippets] = json.RawMessage(`[]`)
	}
	if _, ok := values[KeyNextSnippetID]; !ok {
		next := FirstSnippetID
		if raw, ok := values[KeySnippets]; ok && !isNull(raw) {
			var existing []model.Snippet
			if err := gojson.Unmarshal(raw, &existing); err != nil {
				return apperror.StorageFailed("decoding snippets", err)
			}
			next = nextFree(existing)
		}
		seed[KeyNextSnippetID] = json.RawMessage(fmt.Sprint(next))
	}
	if _, ok := values[KeySettings]; !ok {
		raw, err := gojson.Marshal(defaults)
		if err != nil {
			return apperror.StorageFailed("encoding settings", err)
		}
		seed[KeySettings] = raw
	}
	if len(seed) == 0 {
		return nil
	}

	if err := r.store.Set(ctx, seed); err != nil {
		return apperror.StorageFailed("initializing storage", err)
	}
	return nil
}

// nextFree is the smallest counter value above every id in snippets.
func nextFree(snippets []model.Snippet) int64 {
	ids := lo.Map(snippets, func(s model.Snippet, _ int) int64 { return s.ID })
	return max(FirstSnippetID, lo.Max(ids)+1)
}

func encodeSnippets(snippets []model.Snippet) (json.RawMessage, error) {
	if snippets == nil {
		snippets = []model.Snippet{}
	}
	raw, err := gojson.Marshal(snippets)
	if err != nil {
		return nil, apperror.StorageFailed("encoding snippets", err)
	}
	return raw, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
