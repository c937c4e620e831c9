package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippet-sync/internal/apperror"
	"github.com/sakif/snippet-sync/internal/kvstore"
	"github.com/sakif/snippet-sync/internal/metrics"
	"github.com/sakif/snippet-sync/internal/model"
	"github.com/sakif/snippet-sync/internal/repository"
	"github.com/sakif/snippet-sync/internal/service"
)

func newTestRouter(t *testing.T) (*Router, *service.SnippetService) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewSnippetService(repository.NewKV(kvstore.NewMemory()), logger)
	return New(svc, logger, nil), svc
}

func id(v int64) *int64 { return &v }

func TestHandle_GetSnippetsEmpty(t *testing.T) {
	r, _ := newTestRouter(t)

	resp := r.Handle(context.Background(), Request{Action: ActionGetSnippets})
	assert.Empty(t, resp.Error)
	assert.NotNil(t, resp.Snippets)
	assert.Empty(t, resp.Snippets)
}

func TestHandle_SaveSnippetPrependsAndAssignsID(t *testing.T) {
	r, _ := newTestRouter(t)
	ctx := context.Background()

	first := r.Handle(ctx, Request{Action: ActionSaveSnippet, Snippet: &service.CreateInput{Title: "A", Language: "go", Code: "a"}})
	require.Empty(t, first.Error)
	require.NotNil(t, first.Success)
	assert.True(t, *first.Success)

	second := r.Handle(ctx, Request{Action: ActionSaveSnippet, Snippet: &service.CreateInput{Title: "B", Language: "go", Code: "b"}})
	require.Empty(t, second.Error)
	require.Len(t, second.Snippets, 2)
	assert.Equal(t, "B", second.Snippets[0].Title)
	assert.Equal(t, int64(2), second.Snippets[0].ID)
	assert.Equal(t, int64(1), second.Snippets[1].ID)
}

func TestHandle_SaveSnippetValidation(t *testing.T) {
	r, _ := newTestRouter(t)
	ctx := context.Background()

	resp := r.Handle(ctx, Request{Action: ActionSaveSnippet, Snippet: &service.CreateInput{Title: "", Code: "x"}})
	assert.Equal(t, "title is required", resp.Error)
	assert.Nil(t, resp.Success)

	resp = r.Handle(ctx, Request{Action: ActionSaveSnippet})
	assert.Equal(t, "snippet is required", resp.Error)
}

func TestHandle_DeleteSnippet(t *testing.T) {
	r, svc := newTestRouter(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, service.CreateInput{Title: "A", Code: "a"})
	require.NoError(t, err)

	resp := r.Handle(ctx, Request{Action: ActionDeleteSnippet, SnippetID: id(1)})
	require.Empty(t, resp.Error)
	assert.True(t, *resp.Success)
	assert.Empty(t, resp.Snippets)

	// Absent ids are not an error.
	resp = r.Handle(ctx, Request{Action: ActionDeleteSnippet, SnippetID: id(1)})
	assert.Empty(t, resp.Error)
	assert.True(t, *resp.Success)

	resp = r.Handle(ctx, Request{Action: ActionDeleteSnippet})
	assert.Equal(t, "snippetId is required", resp.Error)
}

func TestHandle_UnknownAction(t *testing.T) {
	r, _ := newTestRouter(t)

	resp := r.Handle(context.Background(), Request{Action: "renameSnippet"})
	assert.Equal(t, Response{Error: ErrUnknownAction}, resp)
}

// failingService returns err from every call.
type failingService struct{ err error }

func (f failingService) List(context.Context) ([]model.Snippet, error) { return nil, f.err }
func (f failingService) Create(context.Context, service.CreateInput) (*model.Snippet, error) {
	return nil, f.err
}
func (f failingService) Delete(context.Context, int64) error { return f.err }

func TestHandle_StorageErrorsBecomeErrorResponses(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := New(failingService{err: apperror.StorageFailed("saving snippet", errors.New("quota exceeded"))}, logger, nil)
	ctx := context.Background()

	for _, req := range []Request{
		{Action: ActionGetSnippets},
		{Action: ActionSaveSnippet, Snippet: &service.CreateInput{Title: "t", Code: "c"}},
		{Action: ActionDeleteSnippet, SnippetID: id(1)},
	} {
		resp := r.Handle(ctx, req)
		assert.Equal(t, "error saving snippet: quota exceeded", resp.Error, req.Action)
		assert.Nil(t, resp.Success)
		assert.Nil(t, resp.Snippets)
	}
}

func TestHandleMessage_WireFormat(t *testing.T) {
	r, _ := newTestRouter(t)
	ctx := context.Background()

	out := r.HandleMessage(ctx, []byte(`{"action":"getSnippets"}`))
	assert.JSONEq(t, `{"snippets":[]}`, string(out))

	out = r.HandleMessage(ctx, []byte(`{"action":"saveSnippet","snippet":{"title":"Hello","language":"python","code":"print(1)"}}`))
	var resp Response
	require.NoError(t, gojson.Unmarshal(out, &resp))
	require.True(t, *resp.Success)
	require.Len(t, resp.Snippets, 1)
	assert.Equal(t, int64(1), resp.Snippets[0].ID)
	assert.Equal(t, "python", resp.Snippets[0].Language)

	out = r.HandleMessage(ctx, []byte(`{"action":"deleteSnippet","snippetId":1}`))
	assert.JSONEq(t, `{"success":true,"snippets":[]}`, string(out))

	out = r.HandleMessage(ctx, []byte(`{"action":"nope"}`))
	assert.JSONEq(t, `{"error":"Unknown action"}`, string(out))

	out = r.HandleMessage(ctx, []byte(`{not json`))
	assert.Contains(t, string(out), `"error":"malformed message`)
}

func TestHandle_UnknownActionsShareOneMetricSeries(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewSnippetService(repository.NewKV(kvstore.NewMemory()), logger)
	reg := prometheus.NewRegistry()
	r := New(svc, logger, metrics.New(reg))
	ctx := context.Background()

	for i := range 50 {
		resp := r.Handle(ctx, Request{Action: fmt.Sprintf("junk-%d", i)})
		assert.Equal(t, ErrUnknownAction, resp.Error)
	}

	n, err := testutil.GatherAndCount(reg, "snippets_router_messages_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	r.Handle(ctx, Request{Action: ActionGetSnippets})
	n, err = testutil.GatherAndCount(reg, "snippets_router_messages_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
