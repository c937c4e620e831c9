package server

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippet-sync/internal/backend"
	"github.com/sakif/snippet-sync/internal/config"
	"github.com/sakif/snippet-sync/internal/kvstore"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{StoreBackend: config.BackendMemory, DefaultLanguage: "python"}
	b := &backend.Backend{Name: config.BackendMemory, Store: kvstore.NewMemory()}
	s := newServer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), b)
	t.Cleanup(s.unsubscribe)
	return s
}

func (s *Server) do(method, path, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(method, path, bytes.NewBufferString(body)))
	return rr
}

func TestRoutes(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"health", http.MethodGet, "/healthz", "", http.StatusOK},
		{"list", http.MethodGet, "/api/snippets", "", http.StatusOK},
		{"create", http.MethodPost, "/api/snippets", `{"title":"a","code":"b"}`, http.StatusCreated},
		{"get", http.MethodGet, "/api/snippets/1", "", http.StatusOK},
		{"settings", http.MethodGet, "/api/settings", "", http.StatusOK},
		{"message", http.MethodPost, "/api/messages", `{"action":"getSnippets"}`, http.StatusOK},
		{"delete", http.MethodDelete, "/api/snippets/1", "", http.StatusNoContent},
		{"unknown", http.MethodGet, "/api/nope", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := s.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
		})
	}
}

func TestConfiguredDefaultLanguage(t *testing.T) {
	s := newTestServer(t)
	// Start seeds the settings with the configured language.
	require.NoError(t, s.service.Initialize(context.Background()))

	rr := s.do(http.MethodPost, "/api/snippets", `{"title":"a","code":"b"}`)

	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), `"language":"python"`)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodPost, "/api/snippets", `{"title":"a","code":"b"}`)
	s.do(http.MethodPost, "/api/messages", `{"action":"getSnippets"}`)

	rr := s.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	for _, name := range []string{
		"snippets_operations_total",
		"snippets_http_request_duration_seconds",
		"snippets_router_messages_total",
		"snippets_store_change_events_total",
		"go_goroutines",
	} {
		assert.True(t, strings.Contains(body, name), "missing %s", name)
	}
}
