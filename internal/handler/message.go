package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
)

// MessageRouter turns one raw request message into one raw response.
type MessageRouter interface {
	HandleMessage(ctx context.Context, data []byte) []byte
}

// MessageHandler is the HTTP transport for the background router. The body
// is passed through unchanged, and the router's reply is always returned with
// 200: protocol errors travel inside the {"error": ...} response, not in the
// status code.
type MessageHandler struct {
	router MessageRouter
	logger *slog.Logger
}

func NewMessageHandler(router MessageRouter, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{router: router, logger: logger}
}

// HandleMessage answers POST /api/messages.
func (h *MessageHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Warn("reading message body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_body", Message: "could not read request body"})
		return
	}

	reply := h.router.HandleMessage(r.Context(), body)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(reply); err != nil {
		h.logger.Error("writing message reply", slog.String("error", err.Error()))
	}
}
