// Package service contains the snippet business rules.
//
// SnippetService is the only component allowed to mutate the collection. It
// owns id assignment (persistent, incrementing, never reused), ordering
// (newest first, by prepending), and validation. Storage goes through the
// repository.SnippetRepository interface, so the same service runs against
// SQLite, Redis or an in-memory fake.
//
// SINGLE WRITER:
// Create and Delete are read-modify-write sequences against the store. Inside
// one process they are serialized by a mutex, so two concurrent creates can
// never read the same counter. Processes sharing a store still race with each
// other; see DESIGN.md.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/sakif/snippet-sync/internal/apperror"
	"github.com/sakif/snippet-sync/internal/metrics"
	"github.com/sakif/snippet-sync/internal/model"
	"github.com/sakif/snippet-sync/internal/repository"
)

// CreateInput is what a caller provides to save a snippet.
type CreateInput struct {
	Title    string `json:"title" yaml:"title" validate:"required"`
	Language string `json:"language,omitempty" yaml:"language,omitempty"`
	Code     string `json:"code" yaml:"code" validate:"required"`
}

// SnippetService handles business logic for code snippets.
type SnippetService struct {
	repo     repository.SnippetRepository
	logger   *slog.Logger
	metrics  *metrics.Metrics
	validate *validator.Validate
	now      func() time.Time

	defaultLanguage string

	mu sync.Mutex // serializes mutations
}

// Option configures a SnippetService.
type Option func(*SnippetService)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *SnippetService) {
		s.now = now
	}
}

// WithMetrics records every operation in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *SnippetService) {
		s.metrics = m
	}
}

// WithDefaultLanguage sets the language used when neither the caller nor the
// stored settings provide one.
func WithDefaultLanguage(lang string) Option {
	return func(s *SnippetService) {
		if lang = strings.TrimSpace(lang); lang != "" {
			s.defaultLanguage = lang
		}
	}
}

// NewSnippetService creates a new SnippetService.
func NewSnippetService(repo repository.SnippetRepository, logger *slog.Logger, opts ...Option) *SnippetService {
	s := &SnippetService{
		repo:            repo,
		logger:          logger,
		validate:        newValidator(),
		now:             time.Now,
		defaultLanguage: model.DefaultLanguage,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// newValidator reports fields by their JSON name ("title", not "Title").
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Initialize seeds an empty store with the default collection, counter and
// settings. Existing keys are kept.
func (s *SnippetService) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	defaults := model.DefaultSettings()
	defaults.DefaultLanguage = s.defaultLanguage

	err := s.repo.Initialize(ctx, defaults)
	s.metrics.ObserveOperation("initialize", err)
	if err != nil {
		s.logger.Error("failed to initialize storage", slog.String("error", err.Error()))
		return fmt.Errorf("initializing storage: %w", err)
	}
	return nil
}

// List returns the collection in display order (newest first).
func (s *SnippetService) List(ctx context.Context) ([]model.Snippet, error) {
	state, err := s.repo.Load(ctx)
	s.metrics.ObserveOperation("list", err)
	if err != nil {
		s.logger.Error("failed to list snippets", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing snippets: %w", err)
	}
	return state.Snippets, nil
}

// Get returns the snippet with the given id, or apperror.ErrNotFound.
func (s *SnippetService) Get(ctx context.Context, id int64) (*model.Snippet, error) {
	state, err := s.repo.Load(ctx)
	if err != nil {
		s.metrics.ObserveOperation("get", err)
		return nil, fmt.Errorf("getting snippet: %w", err)
	}

	snippet, ok := lo.Find(state.Snippets, func(sn model.Snippet) bool { return sn.ID == id })
	if !ok {
		err := apperror.NotFound("snippet", id)
		s.metrics.ObserveOperation("get", err)
		return nil, err
	}
	s.metrics.ObserveOperation("get", nil)
	return &snippet, nil
}

// Create validates in and saves a new snippet at the head of the collection.
//
// The new snippet takes the current counter as its id, and the collection
// and the incremented counter are written back in one combined write. If
// that write fails nothing is kept and the error wraps apperror.ErrStorage.
func (s *SnippetService) Create(ctx context.Context, in CreateInput) (*model.Snippet, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Code = strings.TrimSpace(in.Code)
	in.Language = strings.TrimSpace(in.Language)

	if err := s.validateInput(in); err != nil {
		s.metrics.ObserveOperation("create", err)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if in.Language == "" {
		in.Language = s.storedDefaultLanguage(ctx)
	}

	state, err := s.repo.Load(ctx)
	if err != nil {
		s.metrics.ObserveOperation("create", err)
		s.logger.Error("failed to load snippets", slog.String("error", err.Error()))
		return nil, fmt.Errorf("creating snippet: %w", err)
	}

	snippet := model.Snippet{
		ID:        state.NextID,
		Title:     in.Title,
		Language:  in.Language,
		Code:      in.Code,
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
	}

	next := repository.State{
		Snippets: append([]model.Snippet{snippet}, state.Snippets...),
		NextID:   state.NextID + 1,
	}
	if err := s.repo.Save(ctx, next); err != nil {
		s.metrics.ObserveOperation("create", err)
		s.logger.Error("failed to create snippet",
			slog.String("title", in.Title),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating snippet: %w", err)
	}

	s.metrics.ObserveOperation("create", nil)
	s.logger.Info("snippet created",
		slog.Int64("id", snippet.ID),
		slog.String("title", snippet.Title),
		slog.String("language", snippet.Language),
	)
	return &snippet, nil
}

// Delete removes the snippet with the given id. Deleting an id that is not
// in the collection succeeds and changes nothing. The counter is never
// decremented, so ids are not reused.
func (s *SnippetService) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.repo.Load(ctx)
	if err != nil {
		s.metrics.ObserveOperation("delete", err)
		return fmt.Errorf("deleting snippet: %w", err)
	}

	if !lo.ContainsBy(state.Snippets, func(sn model.Snippet) bool { return sn.ID == id }) {
		s.metrics.ObserveOperation("delete", nil)
		s.logger.Debug("snippet already absent", slog.Int64("id", id))
		return nil
	}

	remaining := lo.Filter(state.Snippets, func(sn model.Snippet, _ int) bool { return sn.ID != id })
	if err := s.repo.SaveSnippets(ctx, remaining); err != nil {
		s.metrics.ObserveOperation("delete", err)
		s.logger.Error("failed to delete snippet",
			slog.Int64("id", id),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("deleting snippet: %w", err)
	}

	s.metrics.ObserveOperation("delete", nil)
	s.logger.Info("snippet deleted", slog.Int64("id", id))
	return nil
}

// Settings returns the stored settings.
func (s *SnippetService) Settings(ctx context.Context) (model.Settings, error) {
	settings, err := s.repo.Settings(ctx)
	s.metrics.ObserveOperation("settings", err)
	if err != nil {
		return model.Settings{}, fmt.Errorf("loading settings: %w", err)
	}
	return settings, nil
}

// UpdateSettings validates and stores settings.
func (s *SnippetService) UpdateSettings(ctx context.Context, settings model.Settings) (model.Settings, error) {
	settings.Theme = strings.TrimSpace(settings.Theme)
	settings.DefaultLanguage = strings.TrimSpace(settings.DefaultLanguage)
	if settings.Theme == "" {
		settings.Theme = model.DefaultTheme
	}

	if err := s.validate.Struct(settings); err != nil {
		err = translate(err)
		s.metrics.ObserveOperation("update_settings", err)
		return model.Settings{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.SaveSettings(ctx, settings); err != nil {
		s.metrics.ObserveOperation("update_settings", err)
		return model.Settings{}, fmt.Errorf("saving settings: %w", err)
	}

	s.metrics.ObserveOperation("update_settings", nil)
	s.logger.Info("settings updated",
		slog.String("theme", settings.Theme),
		slog.String("defaultLanguage", settings.DefaultLanguage),
	)
	return settings, nil
}

func (s *SnippetService) validateInput(in CreateInput) error {
	if err := s.validate.Struct(in); err != nil {
		return translate(err)
	}
	return nil
}

// storedDefaultLanguage reads settings.defaultLanguage. A failed read falls
// back to the configured default; the write that follows will surface a
// broken store anyway.
func (s *SnippetService) storedDefaultLanguage(ctx context.Context) string {
	settings, err := s.repo.Settings(ctx)
	if err != nil {
		s.logger.Warn("failed to read default language, using configured default",
			slog.String("error", err.Error()),
		)
		return s.defaultLanguage
	}
	if settings.DefaultLanguage == "" {
		return s.defaultLanguage
	}
	return settings.DefaultLanguage
}

// translate turns validator errors into apperror.ValidationFailed for the
// first failing field.
func translate(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperror.ValidationFailed("", err.Error())
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return apperror.ValidationFailed(fe.Field(), fmt.Sprintf("%s is required", fe.Field()))
	case "oneof":
		return apperror.ValidationFailed(fe.Field(),
			fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", ")))
	default:
		return apperror.ValidationFailed(fe.Field(), fmt.Sprintf("%s is invalid", fe.Field()))
	}
}
