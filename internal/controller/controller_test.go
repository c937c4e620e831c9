package controller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippet-sync/internal/apperror"
	"github.com/sakif/snippet-sync/internal/kvstore"
	"github.com/sakif/snippet-sync/internal/repository"
	"github.com/sakif/snippet-sync/internal/service"
)

// =========================================================================
// FAKES
// =========================================================================

type recordingRenderer struct {
	mu    sync.Mutex
	views []View
}

func (r *recordingRenderer) Render(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *recordingRenderer) last() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.views) == 0 {
		return View{}
	}
	return r.views[len(r.views)-1]
}

func (r *recordingRenderer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

type fakeClipboard struct {
	text string
	err  error
}

func (c *fakeClipboard) Copy(_ context.Context, text string) error {
	if c.err != nil {
		return c.err
	}
	c.text = text
	return nil
}

type fakeConfirmer struct {
	answer   bool
	asked    []string
	askedErr error
}

func (c *fakeConfirmer) Confirm(_ context.Context, message string) (bool, error) {
	c.asked = append(c.asked, message)
	return c.answer, c.askedErr
}

type fixture struct {
	store     *kvstore.Memory
	svc       *service.SnippetService
	renderer  *recordingRenderer
	clipboard *fakeClipboard
	confirmer *fakeConfirmer
	ctrl      *Controller
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	store := kvstore.NewMemory()
	svc := service.NewSnippetService(repository.NewKV(store), discardLogger())
	f := &fixture{
		store:     store,
		svc:       svc,
		renderer:  &recordingRenderer{},
		clipboard: &fakeClipboard{},
		confirmer: &fakeConfirmer{answer: true},
	}
	f.ctrl = New(svc, store, f.renderer, f.clipboard, f.confirmer, discardLogger(), opts...)
	t.Cleanup(f.ctrl.Close)
	return f
}

func messages(v View) []string {
	out := make([]string, 0, len(v.Notifications))
	for _, n := range v.Notifications {
		out = append(out, n.Message)
	}
	return out
}

// =========================================================================
// TESTS
// =========================================================================

func TestActivate_EmptyState(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.Activate(context.Background()))

	v := f.renderer.last()
	assert.True(t, v.Empty)
	assert.Empty(t, v.Cards)
	assert.False(t, v.Loading)
	assert.Equal(t, "javascript", v.Form.Language)
}

func TestActivate_ShowsLoadingFirst(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.Activate(context.Background()))

	require.GreaterOrEqual(t, f.renderer.count(), 2)
	assert.True(t, f.renderer.views[0].Loading)
}

func TestSave_ClearsFormAndNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Activate(ctx))

	err := f.ctrl.Save(ctx, Form{Title: "Hello", Language: "go", Code: "fmt.Println(1)"})
	require.NoError(t, err)

	v := f.ctrl.View()
	require.Len(t, v.Cards, 1)
	assert.False(t, v.Empty)
	assert.Equal(t, int64(1), v.Cards[0].ID)
	assert.Equal(t, "Hello", v.Cards[0].Title)
	assert.Equal(t, Form{Language: "javascript"}, v.Form)
	assert.Contains(t, messages(v), MsgSaved)
}

func TestSave_NewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Activate(ctx))

	require.NoError(t, f.ctrl.Save(ctx, Form{Title: "A", Code: "a"}))
	require.NoError(t, f.ctrl.Save(ctx, Form{Title: "B", Code: "b"}))

	v := f.ctrl.View()
	require.Len(t, v.Cards, 2)
	assert.Equal(t, "B", v.Cards[0].Title)
	assert.Equal(t, "A", v.Cards[1].Title)
}

func TestSave_ValidationKeepsForm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Activate(ctx))

	form := Form{Title: "  ", Language: "go", Code: "x"}
	err := f.ctrl.Save(ctx, form)

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	v := f.ctrl.View()
	assert.Equal(t, form, v.Form)
	assert.True(t, v.Empty)
	assert.False(t, v.Loading)
	require.Len(t, v.Notifications, 1)
	assert.Equal(t, KindError, v.Notifications[0].Kind)
}

func TestDelete_Confirmed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Activate(ctx))
	require.NoError(t, f.ctrl.Save(ctx, Form{Title: "A", Code: "a"}))

	require.NoError(t, f.ctrl.Delete(ctx, 1))

	v := f.ctrl.View()
	assert.True(t, v.Empty)
	assert.Equal(t, []string{MsgConfirmDelete}, f.confirmer.asked)
	assert.Contains(t, messages(v), MsgDeleted)
}

func TestDelete_DeclinedDoesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Activate(ctx))
	require.NoError(t, f.ctrl.Save(ctx, Form{Title: "A", Code: "a"}))
	f.confirmer.answer = false

	require.NoError(t, f.ctrl.Delete(ctx, 1))

	snippets, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, snippets, 1)
	assert.NotContains(t, messages(f.ctrl.View()), MsgDeleted)
}

func TestCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Activate(ctx))
	require.NoError(t, f.ctrl.Save(ctx, Form{Title: "A", Code: "echo hi"}))

	require.NoError(t, f.ctrl.Copy(ctx, 1))
	assert.Equal(t, "echo hi", f.clipboard.text)
	assert.Contains(t, messages(f.ctrl.View()), MsgCopied)
}

func TestCopy_Failure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Activate(ctx))
	require.NoError(t, f.ctrl.Save(ctx, Form{Title: "A", Code: "echo hi"}))
	f.clipboard.err = errors.New("no clipboard")

	err := f.ctrl.Copy(ctx, 1)
	require.Error(t, err)
	assert.Contains(t, messages(f.ctrl.View()), MsgCopyFailed)
}

func TestCopy_UnknownID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Activate(ctx))

	err := f.ctrl.Copy(ctx, 42)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
	assert.Contains(t, messages(f.ctrl.View()), MsgCopyFailed)
}

func TestNotifications_AutoDismiss(t *testing.T) {
	f := newFixture(t, WithNotificationDelay(20*time.Millisecond))
	ctx := context.Background()
	require.NoError(t, f.ctrl.Activate(ctx))
	require.NoError(t, f.ctrl.Save(ctx, Form{Title: "A", Code: "a"}))
	require.NotEmpty(t, f.ctrl.View().Notifications)

	require.Eventually(t, func() bool {
		return len(f.ctrl.View().Notifications) == 0 && len(f.renderer.last().Notifications) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestExternalChange_Rerenders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Activate(ctx))

	// Another writer on the same store, e.g. the background router.
	other := service.NewSnippetService(repository.NewKV(f.store), discardLogger())
	_, err := other.Create(ctx, service.CreateInput{Title: "From router", Code: "x"})
	require.NoError(t, err)

	v := f.renderer.last()
	require.Len(t, v.Cards, 1)
	assert.Equal(t, "From router", v.Cards[0].Title)
}

func TestExternalChange_IgnoresOtherKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Activate(ctx))
	before := f.renderer.count()

	require.NoError(t, f.store.Set(ctx, map[string]json.RawMessage{repository.KeySettings: json.RawMessage(`{"theme":"dark"}`)}))

	assert.Equal(t, before, f.renderer.count())
}

func TestClose_StopsListening(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Activate(ctx))
	f.ctrl.Close()
	before := f.renderer.count()

	_, err := f.svc.Create(ctx, service.CreateInput{Title: "A", Code: "a"})
	require.NoError(t, err)

	assert.Equal(t, before, f.renderer.count())
}
