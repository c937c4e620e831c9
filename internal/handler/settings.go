package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/snippet-sync/internal/model"
)

// SettingsHandler reads and writes the user's settings.
type SettingsHandler struct {
	svc    SnippetService
	logger *slog.Logger
}

func NewSettingsHandler(svc SnippetService, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{svc: svc, logger: logger}
}

// HandleGet answers GET /api/settings.
func (h *SettingsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.Settings(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// HandleUpdate answers PUT /api/settings.
func (h *SettingsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var in model.Settings
	if err := decodeJSON(w, r, &in); err != nil {
		h.logger.Warn("invalid settings JSON", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_json", Message: "Invalid JSON body"})
		return
	}

	settings, err := h.svc.UpdateSettings(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
