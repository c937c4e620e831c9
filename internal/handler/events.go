package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/rs/xid"

	"github.com/sakif/snippet-sync/internal/kvstore"
)

// DefaultHeartbeat is how often an idle event stream sends a comment line
// so proxies keep the connection open.
const DefaultHeartbeat = 25 * time.Second

// eventBuffer bounds how many change events may queue for a slow client
// before new ones are dropped.
const eventBuffer = 16

// Subscriber delivers store change events.
type Subscriber interface {
	Subscribe(l kvstore.Listener) (unsubscribe func())
}

// EventsHandler streams store change events to browsers as server-sent
// events. A web front-end reloads its list when it sees a change to
// "snippets", exactly like the terminal controller does.
type EventsHandler struct {
	subscriber Subscriber
	logger     *slog.Logger
	heartbeat  time.Duration
}

func NewEventsHandler(subscriber Subscriber, logger *slog.Logger, heartbeat time.Duration) *EventsHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &EventsHandler{subscriber: subscriber, logger: logger, heartbeat: heartbeat}
}

// changeMessage is the data of one "change" event.
type changeMessage struct {
	Keys    []string                  `json:"keys"`
	Changes map[string]kvstore.Change `json:"changes"`
}

// HandleEvents answers GET /api/events.
//
// Stream format:
//
//	event: ready
//	data: {"client":"<xid>"}
//
//	event: change
//	data: {"keys":["nextSnippetId","snippets"],"changes":{...}}
func (h *EventsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "streaming unsupported"})
		return
	}

	clientID := xid.New().String()
	logger := h.logger.With(slog.String("client", clientID))

	events := make(chan kvstore.ChangeEvent, eventBuffer)
	unsubscribe := h.subscriber.Subscribe(func(ev kvstore.ChangeEvent) {
		select {
		case events <- ev:
		default:
			logger.Warn("event stream client too slow, dropping change", slog.Any("keys", ev.Keys()))
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "ready", map[string]string{"client": clientID}); err != nil {
		return
	}
	flusher.Flush()
	logger.Debug("event stream opened")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Debug("event stream closed")
			return
		case ev := <-events:
			msg := changeMessage{Keys: ev.Keys(), Changes: ev.Changes}
			if err := writeEvent(w, "change", msg); err != nil {
				logger.Debug("event stream write failed", slog.String("error", err.Error()))
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, data any) error {
	payload, err := gojson.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
	return err
}
