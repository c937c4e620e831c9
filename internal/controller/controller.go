// Package controller is the foreground side of the application: it keeps a
// renderable View of the snippet collection and turns user intents (save,
// copy, delete) into service calls.
//
// The controller knows nothing about terminals or browsers. A front-end
// supplies a Renderer, a Clipboard and a Confirmer; the controller calls
// Renderer.Render with a fresh View whenever something visible changes,
// including changes written by other processes, which arrive as store change
// events.
package controller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/sakif/snippet-sync/internal/apperror"
	"github.com/sakif/snippet-sync/internal/kvstore"
	"github.com/sakif/snippet-sync/internal/model"
	"github.com/sakif/snippet-sync/internal/repository"
	"github.com/sakif/snippet-sync/internal/service"
)

// DefaultNotificationDelay is how long a notification stays visible.
const DefaultNotificationDelay = 3 * time.Second

// User-facing messages.
const (
	MsgSaved         = "Snippet saved successfully!"
	MsgDeleted       = "Snippet deleted"
	MsgCopied        = "Code copied to clipboard!"
	MsgCopyFailed    = "Failed to copy code"
	MsgConfirmDelete = "Are you sure you want to delete this snippet?"
)

// SnippetService is the subset of service.SnippetService the controller uses.
type SnippetService interface {
	List(ctx context.Context) ([]model.Snippet, error)
	Create(ctx context.Context, in service.CreateInput) (*model.Snippet, error)
	Delete(ctx context.Context, id int64) error
}

// Subscriber delivers store change events.
type Subscriber interface {
	Subscribe(l kvstore.Listener) (unsubscribe func())
}

// Renderer draws a View.
type Renderer interface {
	Render(v View)
}

// Clipboard receives copied code.
type Clipboard interface {
	Copy(ctx context.Context, text string) error
}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, message string) (bool, error)
}

// Kind classifies a notification.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// Notification is a transient message shown to the user.
type Notification struct {
	ID      int
	Kind    Kind
	Message string
}

// Card is one rendered snippet.
type Card struct {
	ID        int64
	Title     string
	Language  string
	Code      string
	CreatedAt time.Time
}

// Form holds the input fields of the save form.
type Form struct {
	Title    string
	Language string
	Code     string
}

// View is everything a front-end needs to draw the screen. Empty is set
// instead of an empty Cards slice so the empty state can be drawn distinctly.
type View struct {
	Cards         []Card
	Empty         bool
	Loading       bool
	Notifications []Notification
	Form          Form
}

// Controller is safe for concurrent use.
type Controller struct {
	svc        SnippetService
	subscriber Subscriber
	renderer   Renderer
	clipboard  Clipboard
	confirmer  Confirmer
	logger     *slog.Logger

	notifyDelay     time.Duration
	defaultLanguage string

	renderMu sync.Mutex // keeps renders in state order

	mu          sync.Mutex
	view        View
	nextNoteID  int
	timers      map[int]*time.Timer
	unsubscribe func()
	closed      bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithNotificationDelay overrides DefaultNotificationDelay.
func WithNotificationDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.notifyDelay = d
		}
	}
}

// WithDefaultLanguage sets the language the form is reset to after a save.
func WithDefaultLanguage(lang string) Option {
	return func(c *Controller) {
		if lang != "" {
			c.defaultLanguage = lang
		}
	}
}

// New creates a Controller. Call Activate to load and start listening.
func New(svc SnippetService, subscriber Subscriber, renderer Renderer, clipboard Clipboard, confirmer Confirmer, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		svc:             svc,
		subscriber:      subscriber,
		renderer:        renderer,
		clipboard:       clipboard,
		confirmer:       confirmer,
		logger:          logger,
		notifyDelay:     DefaultNotificationDelay,
		defaultLanguage: model.DefaultLanguage,
		timers:          make(map[int]*time.Timer),
	}
	for _, o := range opts {
		o(c)
	}
	c.view.Form.Language = c.defaultLanguage
	return c
}

// Activate renders the collection and subscribes to external changes.
// Calling it again only reloads.
func (c *Controller) Activate(ctx context.Context) error {
	c.mu.Lock()
	if c.unsubscribe == nil && !c.closed {
		c.unsubscribe = c.subscriber.Subscribe(c.onChange)
	}
	c.mu.Unlock()

	return c.Reload(ctx)
}

// Close stops listening for changes and cancels pending notification timers.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}

// View returns a copy of the current view.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Reload re-reads the collection and renders it.
func (c *Controller) Reload(ctx context.Context) error {
	c.setLoading(true)

	snippets, err := c.svc.List(ctx)
	if err != nil {
		c.setLoading(false)
		c.notify(KindError, apperror.Message(err))
		return err
	}

	cards := lo.Map(snippets, func(s model.Snippet, _ int) Card {
		return Card{ID: s.ID, Title: s.Title, Language: s.Language, Code: s.Code, CreatedAt: s.CreatedAt}
	})

	c.mu.Lock()
	c.view.Cards = cards
	c.view.Empty = len(cards) == 0
	c.view.Loading = false
	c.mu.Unlock()

	c.render()
	return nil
}

// Save creates a snippet from form. On success the form is cleared (the
// language goes back to the default); on failure the form is kept and the
// error is shown.
func (c *Controller) Save(ctx context.Context, form Form) error {
	c.mu.Lock()
	c.view.Form = form
	c.mu.Unlock()
	c.setLoading(true)

	_, err := c.svc.Create(ctx, service.CreateInput{
		Title:    form.Title,
		Language: form.Language,
		Code:     form.Code,
	})
	if err != nil {
		c.setLoading(false)
		c.notify(KindError, apperror.Message(err))
		return err
	}

	c.mu.Lock()
	c.view.Form = Form{Language: c.defaultLanguage}
	c.mu.Unlock()

	if err := c.Reload(ctx); err != nil {
		return err
	}
	c.notify(KindSuccess, MsgSaved)
	return nil
}

// Delete asks for confirmation and then deletes the snippet. A declined
// confirmation is not an error.
func (c *Controller) Delete(ctx context.Context, id int64) error {
	ok, err := c.confirmer.Confirm(ctx, MsgConfirmDelete)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	c.setLoading(true)
	if err := c.svc.Delete(ctx, id); err != nil {
		c.setLoading(false)
		c.notify(KindError, apperror.Message(err))
		return err
	}

	if err := c.Reload(ctx); err != nil {
		return err
	}
	c.notify(KindSuccess, MsgDeleted)
	return nil
}

// Copy puts the code of the snippet shown with id on the clipboard.
func (c *Controller) Copy(ctx context.Context, id int64) error {
	c.mu.Lock()
	card, found := lo.Find(c.view.Cards, func(card Card) bool { return card.ID == id })
	c.mu.Unlock()

	if !found {
		err := apperror.NotFound("snippet", id)
		c.notify(KindError, MsgCopyFailed)
		return err
	}

	if err := c.clipboard.Copy(ctx, card.Code); err != nil {
		c.logger.Error("failed to copy", slog.Int64("id", id), slog.String("error", err.Error()))
		c.notify(KindError, MsgCopyFailed)
		return err
	}
	c.notify(KindSuccess, MsgCopied)
	return nil
}

func (c *Controller) onChange(ev kvstore.ChangeEvent) {
	if !ev.Has(repository.KeySnippets) {
		return
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	c.logger.Debug("storage updated, reloading snippets")
	if err := c.Reload(context.Background()); err != nil {
		c.logger.Warn("reload after change failed", slog.String("error", err.Error()))
	}
}

// notify shows a message and schedules its removal.
func (c *Controller) notify(kind Kind, message string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.nextNoteID++
	id := c.nextNoteID
	c.view.Notifications = append(c.view.Notifications, Notification{ID: id, Kind: kind, Message: message})
	c.timers[id] = time.AfterFunc(c.notifyDelay, func() { c.dismiss(id) })
	c.mu.Unlock()

	c.render()
}

func (c *Controller) dismiss(id int) {
	c.mu.Lock()
	delete(c.timers, id)
	before := len(c.view.Notifications)
	c.view.Notifications = lo.Filter(c.view.Notifications, func(n Notification, _ int) bool { return n.ID != id })
	changed := len(c.view.Notifications) != before && !c.closed
	c.mu.Unlock()

	if changed {
		c.render()
	}
}

func (c *Controller) setLoading(loading bool) {
	c.mu.Lock()
	c.view.Loading = loading
	c.mu.Unlock()
	c.render()
}

func (c *Controller) render() {
	c.renderMu.Lock()
	defer c.renderMu.Unlock()

	c.mu.Lock()
	v := c.snapshotLocked()
	c.mu.Unlock()

	c.renderer.Render(v)
}

func (c *Controller) snapshotLocked() View {
	v := c.view
	v.Cards = append([]Card(nil), c.view.Cards...)
	v.Notifications = append([]Notification(nil), c.view.Notifications...)
	return v
}
