// Package repository is the typed adapter between the snippet service and the
// synchronized key-value store.
//
// The store only knows opaque JSON values under top-level keys. This package
// owns the key names, the encoding, and the "missing key means empty default"
// rule:
//
//	snippets      → []model.Snippet   (missing: empty)
//	nextSnippetId → int64             (missing: 1)
//	settings      → model.Settings    (missing: model.DefaultSettings())
//
// Every failure of the underlying store is reported as apperror.StorageFailed
// with the store's message. Nothing is retried.
package repository

import (
	"context"

	"github.com/sakif/snippet-sync/internal/model"
)

// Storage keys.
const (
	KeySnippets      = "snippets"
	KeyNextSnippetID = "nextSnippetId"
	KeySettings      = "settings"
)

// FirstSnippetID is the counter value of an empty store.
const FirstSnippetID int64 = 1

// State is the snippet collection together with its id counter. The two are
// always written together when a snippet is created.
type State struct {
	Snippets []model.Snippet
	NextID   int64
}

// SnippetRepository is the contract the service layer depends on.
type SnippetRepository interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
	SaveSnippets(ctx context.Context, snippets []model.Snippet) error

	Settings(ctx context.Context) (model.Settings, error)
	SaveSettings(ctx context.Context, settings model.Settings) error

	Initialize(ctx context.Context, defaults model.Settings) error
}
