package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippet-sync/internal/apperror"
	"github.com/sakif/snippet-sync/internal/kvstore"
	"github.com/sakif/snippet-sync/internal/model"
	"github.com/sakif/snippet-sync/internal/repository"
	"github.com/sakif/snippet-sync/internal/service"
)

// plainOutput turns off pterm colors for the duration of the test so
// messages can be matched as plain text.
func plainOutput(t *testing.T) {
	t.Helper()
	pterm.DisableStyling()
	t.Cleanup(pterm.EnableStyling)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService() (*service.SnippetService, *kvstore.Memory) {
	store := kvstore.NewMemory()
	return service.NewSnippetService(repository.NewKV(store), discardLogger()), store
}

type cmdFixture struct {
	cmd       SnippetsCmd
	svc       *service.SnippetService
	out       *bytes.Buffer
	copied    string
	confirmed bool
	asked     int
}

func newCmdFixture(t *testing.T) *cmdFixture {
	t.Helper()
	svc, _ := newService()
	f := &cmdFixture{svc: svc, out: &bytes.Buffer{}, confirmed: true}
	f.cmd = SnippetsCmd{
		svc: svc,
		confirm: func(string) (bool, error) {
			f.asked++
			return f.confirmed, nil
		},
		clipboard: func(_ context.Context, text string) error {
			f.copied = text
			return nil
		},
		out: f.out,
	}
	return f
}

func (f *cmdFixture) listJSON(t *testing.T) []model.Snippet {
	t.Helper()
	f.out.Reset()
	require.NoError(t, f.cmd.List(context.Background(), ListInput{Output: "json"}))
	var snippets []model.Snippet
	require.NoError(t, gojson.Unmarshal(f.out.Bytes(), &snippets))
	return snippets
}

// =========================================================================
// SNIPPET COMMANDS
// =========================================================================

func TestSnippetsCmd_SaveAndList(t *testing.T) {
	plainOutput(t)
	f := newCmdFixture(t)
	ctx := context.Background()

	require.NoError(t, f.cmd.Save(ctx, SaveInput{Title: "first", Code: "a"}))
	require.NoError(t, f.cmd.Save(ctx, SaveInput{Title: "second", Language: "go", Code: "b"}))

	assert.Contains(t, f.out.String(), "Snippet saved successfully! (id 2)")

	snippets := f.listJSON(t)
	require.Len(t, snippets, 2)
	assert.Equal(t, "second", snippets[0].Title)
	assert.Equal(t, int64(2), snippets[0].ID)
	assert.Equal(t, "javascript", snippets[1].Language)
}

func TestSnippetsCmd_ListEmpty(t *testing.T) {
	plainOutput(t)
	f := newCmdFixture(t)

	require.NoError(t, f.cmd.List(context.Background(), ListInput{}))
	assert.Contains(t, f.out.String(), "No snippets saved yet")

	assert.Empty(t, f.listJSON(t))
}

func TestSnippetsCmd_ListRejectsUnknownOutput(t *testing.T) {
	f := newCmdFixture(t)

	err := f.cmd.List(context.Background(), ListInput{Output: "xml"})
	assert.Error(t, err)
}

func TestSnippetsCmd_SaveValidation(t *testing.T) {
	plainOutput(t)
	f := newCmdFixture(t)

	err := f.cmd.Save(context.Background(), SaveInput{Title: "x", Code: "  "})
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestSnippetsCmd_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("confirmed", func(t *testing.T) {
		plainOutput(t)
		f := newCmdFixture(t)
		require.NoError(t, f.cmd.Save(ctx, SaveInput{Title: "a", Code: "a"}))

		require.NoError(t, f.cmd.Delete(ctx, DeleteInput{ID: 1}))

		assert.Equal(t, 1, f.asked)
		assert.Contains(t, f.out.String(), "Snippet deleted")
		assert.Empty(t, f.listJSON(t))
	})

	t.Run("declined", func(t *testing.T) {
		plainOutput(t)
		f := newCmdFixture(t)
		require.NoError(t, f.cmd.Save(ctx, SaveInput{Title: "a", Code: "a"}))
		f.confirmed = false

		require.NoError(t, f.cmd.Delete(ctx, DeleteInput{ID: 1}))

		assert.Contains(t, f.out.String(), "Deletion cancelled")
		assert.Len(t, f.listJSON(t), 1)
	})

	t.Run("skip confirm", func(t *testing.T) {
		plainOutput(t)
		f := newCmdFixture(t)
		require.NoError(t, f.cmd.Save(ctx, SaveInput{Title: "a", Code: "a"}))

		require.NoError(t, f.cmd.Delete(ctx, DeleteInput{ID: 1, SkipConfirm: true}))

		assert.Zero(t, f.asked)
		assert.Empty(t, f.listJSON(t))
	})
}

func TestSnippetsCmd_Copy(t *testing.T) {
	ctx := context.Background()
	plainOutput(t)
	f := newCmdFixture(t)
	require.NoError(t, f.cmd.Save(ctx, SaveInput{Title: "a", Code: "echo hi"}))

	require.NoError(t, f.cmd.Copy(ctx, CopyInput{ID: 1}))
	assert.Equal(t, "echo hi", f.copied)
	assert.Contains(t, f.out.String(), "Code copied to clipboard!")

	f.out.Reset()
	require.NoError(t, f.cmd.Copy(ctx, CopyInput{ID: 1, Print: true}))
	assert.Equal(t, "echo hi\n", f.out.String())

	err := f.cmd.Copy(ctx, CopyInput{ID: 9})
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestSnippetsCmd_Init(t *testing.T) {
	plainOutput(t)
	f := newCmdFixture(t)

	require.NoError(t, f.cmd.Init(context.Background()))
	assert.Contains(t, f.out.String(), "Store initialized")

	settings, err := f.svc.Settings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.DefaultSettings(), settings)
}

func TestPreview(t *testing.T) {
	tests := []struct {
		name, code, want string
	}{
		{"single line", "echo hi", "echo hi"},
		{"multi line", "line one\nline two", "line one …"},
		{"long", strings.Repeat("x", 50), strings.Repeat("x", 9) + "…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, preview(tt.code, 10))
		})
	}
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = parseID("42abc")
	assert.Error(t, err)
}

// =========================================================================
// EXPORT / IMPORT
// =========================================================================

func TestExportImport(t *testing.T) {
	plainOutput(t)
	ctx := context.Background()
	src := newCmdFixture(t)
	require.NoError(t, src.cmd.Save(ctx, SaveInput{Title: "old", Language: "go", Code: "package main"}))
	require.NoError(t, src.cmd.Save(ctx, SaveInput{Title: "new", Language: "sh", Code: "echo 1\necho 2"}))

	var exported bytes.Buffer
	require.NoError(t, src.cmd.Export(ctx, &exported))
	assert.Contains(t, exported.String(), "title: new")

	dst := newCmdFixture(t)
	n, err := dst.cmd.Import(ctx, &exported)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got := dst.listJSON(t)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].Title)
	assert.Equal(t, "echo 1\necho 2", got[0].Code)
	assert.Equal(t, "old", got[1].Title)
	assert.Equal(t, "go", got[1].Language)
}

func TestImport_StopsAtInvalid(t *testing.T) {
	f := newCmdFixture(t)
	doc := "snippets:\n  - title: bad\n    code: ''\n  - title: good\n    code: x\n"

	n, err := f.cmd.Import(context.Background(), strings.NewReader(doc))

	assert.Equal(t, 1, n)
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestImport_Empty(t *testing.T) {
	f := newCmdFixture(t)

	n, err := f.cmd.Import(context.Background(), strings.NewReader(""))

	require.NoError(t, err)
	assert.Zero(t, n)
}

