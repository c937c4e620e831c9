// Package router is the background entry point to the snippet service.
//
// Callers other than the foreground UI talk to it with request-tagged
// messages:
//
//	{"action":"getSnippets"}
//	{"action":"saveSnippet","snippet":{"title":"…","language":"…","code":"…"}}
//	{"action":"deleteSnippet","snippetId":3}
//
// and get exactly one response per request, sent after the service call has
// finished:
//
//	{"snippets":[…]}
//	{"success":true,"snippets":[…]}
//	{"error":"…"}
//
// The Router itself is transport-free; NATS and HTTP transports feed it raw
// message bytes.
package router

import (
	"context"
	"log/slog"

	gojson "github.com/goccy/go-json"

	"github.com/sakif/snippet-sync/internal/apperror"
	"github.com/sakif/snippet-sync/internal/metrics"
	"github.com/sakif/snippet-sync/internal/model"
	"github.com/sakif/snippet-sync/internal/service"
)

// Actions understood by the router.
const (
	ActionGetSnippets   = "getSnippets"
	ActionSaveSnippet   = "saveSnippet"
	ActionDeleteSnippet = "deleteSnippet"
)

// ErrUnknownAction is the error text for unrecognized actions.
const ErrUnknownAction = "Unknown action"

// Request is one incoming message.
type Request struct {
	Action    string               `json:"action"`
	Snippet   *service.CreateInput `json:"snippet,omitempty"`
	SnippetID *int64               `json:"snippetId,omitempty"`
}

// Response is the single reply to a Request.
type Response struct {
	Success  *bool           `json:"success"`
	Snippets []model.Snippet `json:"snippets"`
	Error    string          `json:"error"`
}

// MarshalJSON emits only the fields that are set. A non-nil empty Snippets
// is kept as [] so "no snippets" is distinguishable from "not included".
func (r Response) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 2)
	if r.Error != "" {
		out["error"] = r.Error
		return gojson.Marshal(out)
	}
	if r.Success != nil {
		out["success"] = *r.Success
	}
	if r.Snippets != nil {
		out["snippets"] = r.Snippets
	}
	return gojson.Marshal(out)
}

// SnippetService is the subset of service.SnippetService the router needs.
type SnippetService interface {
	List(ctx context.Context) ([]model.Snippet, error)
	Create(ctx context.Context, in service.CreateInput) (*model.Snippet, error)
	Delete(ctx context.Context, id int64) error
}

// Router dispatches messages to the service.
type Router struct {
	svc     SnippetService
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a Router. m may be nil.
func New(svc SnippetService, logger *slog.Logger, m *metrics.Metrics) *Router {
	return &Router{svc: svc, logger: logger, metrics: m}
}

// Handle runs one request to completion and returns its response.
func (r *Router) Handle(ctx context.Context, req Request) Response {
	r.logger.Debug("message received", slog.String("action", req.Action))

	resp := r.dispatch(ctx, req)

	outcome := "ok"
	if resp.Error != "" {
		outcome = "error"
	}
	r.metrics.ObserveMessage(metricAction(req.Action), outcome)
	return resp
}

// metricAction folds anything outside the known actions into one label value
// so callers cannot grow the label set.
func metricAction(action string) string {
	switch action {
	case ActionGetSnippets, ActionSaveSnippet, ActionDeleteSnippet:
		return action
	default:
		return "unknown"
	}
}

func (r *Router) dispatch(ctx context.Context, req Request) Response {
	switch req.Action {
	case ActionGetSnippets:
		snippets, err := r.svc.List(ctx)
		if err != nil {
			return failure(err)
		}
		return Response{Snippets: nonNil(snippets)}

	case ActionSaveSnippet:
		if req.Snippet == nil {
			return failure(apperror.ValidationFailed("snippet", "snippet is required"))
		}
		if _, err := r.svc.Create(ctx, *req.Snippet); err != nil {
			return failure(err)
		}
		return r.successWithList(ctx)

	case ActionDeleteSnippet:
		if req.SnippetID == nil {
			return failure(apperror.ValidationFailed("snippetId", "snippetId is required"))
		}
		if err := r.svc.Delete(ctx, *req.SnippetID); err != nil {
			return failure(err)
		}
		return r.successWithList(ctx)

	default:
		return Response{Error: ErrUnknownAction}
	}
}

// HandleMessage decodes a raw message, handles it and encodes the reply.
// Undecodable input still gets exactly one (error) response.
func (r *Router) HandleMessage(ctx context.Context, data []byte) []byte {
	var req Request
	var resp Response
	if err := gojson.Unmarshal(data, &req); err != nil {
		r.logger.Warn("malformed message", slog.String("error", err.Error()))
		r.metrics.ObserveMessage("malformed", "error")
		resp = Response{Error: "malformed message: " + err.Error()}
	} else {
		resp = r.Handle(ctx, req)
	}

	out, err := gojson.Marshal(resp)
	if err != nil {
		r.logger.Error("failed to encode response", slog.String("error", err.Error()))
		return []byte(`{"error":"internal error"}`)
	}
	return out
}

// successWithList reports success together with the collection as it is
// after the mutation. If re-reading fails the mutation still succeeded, so
// the response says so without snippets.
func (r *Router) successWithList(ctx context.Context) Response {
	ok := true
	snippets, err := r.svc.List(ctx)
	if err != nil {
		r.logger.Warn("listing after mutation failed", slog.String("error", err.Error()))
		return Response{Success: &ok}
	}
	return Response{Success: &ok, Snippets: nonNil(snippets)}
}

func failure(err error) Response {
	return Response{Error: apperror.Message(err)}
}

func nonNil(s []model.Snippet) []model.Snippet {
	if s == nil {
		return []model.Snippet{}
	}
	return s
}
