package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
)

// DefaultSubject is the NATS subject the router listens on.
const DefaultSubject = "snippets.router"

// Connect dials a NATS server with the error handler and ping interval used
// by every process of the system.
func Connect(url string, logger *slog.Logger) (*nats.Conn, error) {
	errorHandler := func(conn *nats.Conn, sub *nats.Subscription, err error) {
		subject := ""
		if sub != nil {
			subject = sub.Subject
		}
		logger.Error("nats error",
			slog.String("url", conn.ConnectedUrlRedacted()),
			slog.String("subject", subject),
			slog.String("error", err.Error()),
		)
	}

	nc, err := nats.Connect(url,
		nats.Name("snippet-sync"),
		nats.PingInterval(20*time.Second),
		nats.ErrorHandler(errorHandler),
	)
	if err != nil {
		return nil, fmt.Errorf("nats: connecting to %s: %w", url, err)
	}
	return nc, nil
}

// ServeNATS answers requests published on subject until ctx is cancelled.
// Every message is handled in its own goroutine and answered exactly once;
// ServeNATS waits for in-flight messages before returning.
func (r *Router) ServeNATS(ctx context.Context, nc *nats.Conn, subject string) error {
	if subject == "" {
		subject = DefaultSubject
	}

	// In-flight messages finish even after ctx is cancelled.
	msgCtx := context.WithoutCancel(ctx)

	var (
		mu      sync.Mutex
		closing bool
		wg      sync.WaitGroup
	)
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		mu.Lock()
		if closing {
			mu.Unlock()
			return
		}
		wg.Add(1)
		mu.Unlock()

		go func() {
			defer wg.Done()
			reply := r.HandleMessage(msgCtx, msg.Data)
			if msg.Reply == "" {
				r.logger.Warn("message without reply subject dropped", slog.String("subject", msg.Subject))
				return
			}
			if err := msg.Respond(reply); err != nil {
				r.logger.Error("failed to send response", slog.String("error", err.Error()))
			}
		}()
	})
	if err != nil {
		return fmt.Errorf("nats: subscribing to %s: %w", subject, err)
	}

	r.logger.Info("router listening", slog.String("subject", subject))
	<-ctx.Done()

	if err := sub.Unsubscribe(); err != nil {
		r.logger.Warn("nats unsubscribe failed", slog.String("error", err.Error()))
	}
	mu.Lock()
	closing = true
	mu.Unlock()
	wg.Wait()
	return nil
}

// Client sends router requests over NATS.
type Client struct {
	nc      *nats.Conn
	subject string
}

// NewClient creates a Client publishing on subject (DefaultSubject if empty).
func NewClient(nc *nats.Conn, subject string) *Client {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Client{nc: nc, subject: subject}
}

// Send publishes req and waits for its response or ctx's deadline.
func (c *Client) Send(ctx context.Context, req Request) (Response, error) {
	data, err := gojson.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("router client: encoding request: %w", err)
	}

	msg, err := c.nc.RequestWithContext(ctx, c.subject, data)
	if err != nil {
		return Response{}, fmt.Errorf("router client: %s: %w", req.Action, err)
	}

	var resp Response
	if err := gojson.Unmarshal(msg.Data, &resp); err != nil {
		return Response{}, fmt.Errorf("router client: decoding response: %w", err)
	}
	return resp, nil
}
