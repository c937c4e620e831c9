package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/snippet-sync/internal/model"
	"github.com/sakif/snippet-sync/internal/service"
)

// SnippetService is what the HTTP handlers need from the service layer.
// Declaring it here (consumer side) lets tests pass a mock.
type SnippetService interface {
	List(ctx context.Context) ([]model.Snippet, error)
	Get(ctx context.Context, id int64) (*model.Snippet, error)
	Create(ctx context.Context, in service.CreateInput) (*model.Snippet, error)
	Delete(ctx context.Context, id int64) error
	Settings(ctx context.Context) (model.Settings, error)
	UpdateSettings(ctx context.Context, settings model.Settings) (model.Settings, error)
}

// SnippetHandler exposes the snippet collection over JSON.
type SnippetHandler struct {
	svc    SnippetService
	logger *slog.Logger
}

// NewSnippetHandler creates a new SnippetHandler.
func NewSnippetHandler(svc SnippetService, logger *slog.Logger) *SnippetHandler {
	return &SnippetHandler{svc: svc, logger: logger}
}

// HandleList returns all saved snippets, newest first.
//
// HTTP: GET /api/snippets
func (h *SnippetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	snippets, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippets)
}

// HandleGetByID returns a single snippet.
//
// HTTP: GET /api/snippets/{id}
func (h *SnippetHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := snippetID(w, r)
	if !ok {
		return
	}

	snippet, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// HandleCreate saves a new snippet.
//
// HTTP: POST /api/snippets
// REQUEST BODY: {"title": "hello", "language": "go", "code": "fmt.Println(1)"}
//
// The id and createdAt are assigned by the service; any sent by the client
// are ignored because CreateInput has no such fields.
func (h *SnippetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.CreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.logger.Warn("invalid snippet JSON", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_json", Message: "Invalid JSON body"})
		return
	}

	snippet, err := h.svc.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snippet) // 201 Created
}

// HandleDelete removes a snippet. Deleting an id that does not exist
// succeeds too, so the response is always 204 unless storage fails.
//
// HTTP: DELETE /api/snippets/{id}
func (h *SnippetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := snippetID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// snippetID parses the {id} URL parameter and answers 400 if it is not an integer.
func snippetID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "snippet id must be an integer",
			Field:   "id",
		})
		return 0, false
	}
	return id, true
}
