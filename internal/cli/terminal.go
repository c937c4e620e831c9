package cli

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/pterm/pterm"

	"github.com/sakif/snippet-sync/internal/controller"
)

// Clipboard copies text through the terminal with an OSC 52 escape
// sequence, which works over SSH and inside tmux without a local clipboard
// helper.
type Clipboard struct {
	mu  sync.Mutex
	out io.Writer
}

func NewClipboard(out io.Writer) *Clipboard {
	return &Clipboard{out: out}
}

// Copy implements controller.Clipboard.
func (c *Clipboard) Copy(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.out, ansi.SetSystemClipboard(text))
	return err
}

// Renderer draws controller views with pterm.
//
// Views arriving while the renderer is suspended are not drawn; the latest
// one is kept and drawn on Resume. An open prompt suspends the renderer so a
// background refresh cannot clear it off the screen.
type Renderer struct {
	mu        sync.Mutex
	out       io.Writer
	clear     bool
	suspended int
	pending   *controller.View
}

// NewRenderer returns a Renderer writing to out. With clear set, every
// render starts on a blank screen.
func NewRenderer(out io.Writer, clear bool) *Renderer {
	return &Renderer{out: out, clear: clear}
}

// Render implements controller.Renderer.
func (r *Renderer) Render(v controller.View) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.suspended > 0 {
		r.pending = &v
		return
	}
	r.draw(v)
}

// Suspend holds back drawing until the matching Resume.
func (r *Renderer) Suspend() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suspended++
}

// Resume undoes one Suspend and draws the view held back meanwhile, if any.
func (r *Renderer) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.suspended == 0 {
		return
	}
	r.suspended--
	if r.suspended == 0 && r.pending != nil {
		v := *r.pending
		r.pending = nil
		r.draw(v)
	}
}

// draw must be called with mu held.
func (r *Renderer) draw(v controller.View) {
	if r.clear {
		_, _ = io.WriteString(r.out, "\033[H\033[2J")
	}
	pterm.DefaultSection.WithWriter(r.out).Println("Saved snippets")

	info := pterm.Info.WithWriter(r.out)
	switch {
	case v.Loading && len(v.Cards) == 0:
		info.Println("Loading…")
	case v.Empty:
		info.Println("No snippets saved yet")
	default:
		rows := pterm.TableData{{"ID", "Title", "Language", "Created", "Code"}}
		for _, c := range v.Cards {
			rows = append(rows, []string{
				fmt.Sprint(c.ID),
				c.Title,
				c.Language,
				c.CreatedAt.Local().Format(time.DateTime),
				preview(c.Code, 40),
			})
		}
		_ = pterm.DefaultTable.WithWriter(r.out).WithHasHeader().WithData(rows).Render()
	}

	for _, n := range v.Notifications {
		switch n.Kind {
		case controller.KindSuccess:
			pterm.Success.WithWriter(r.out).Println(n.Message)
		case controller.KindError:
			pterm.Error.WithWriter(r.out).Println(n.Message)
		default:
			info.Println(n.Message)
		}
	}
}

// Prompter asks the user for input. The UI loop only talks to this
// interface so it can be driven by a script in tests.
type Prompter interface {
	Select(label string, options []string) (string, error)
	Text(label string) (string, error)
	MultiLine(label string) (string, error)
	Confirm(message string) (bool, error)
}

// ptermPrompter is the interactive Prompter.
type ptermPrompter struct{}

func (ptermPrompter) Select(label string, options []string) (string, error) {
	return pterm.DefaultInteractiveSelect.WithOptions(options).WithDefaultText(label).Show()
}

func (ptermPrompter) Text(label string) (string, error) {
	return pterm.DefaultInteractiveTextInput.WithDefaultText(label).Show()
}

func (ptermPrompter) MultiLine(label string) (string, error) {
	return pterm.DefaultInteractiveTextInput.WithMultiLine().WithDefaultText(label).Show()
}

func (ptermPrompter) Confirm(message string) (bool, error) {
	return confirmPrompt(message)
}

// suspender is implemented by renderers that can hold back drawing.
type suspender interface {
	Suspend()
	Resume()
}

// holdingPrompter keeps the renderer suspended while each prompt is open.
type holdingPrompter struct {
	Prompter
	hold suspender
}

func (p holdingPrompter) Select(label string, options []string) (string, error) {
	p.hold.Suspend()
	defer p.hold.Resume()
	return p.Prompter.Select(label, options)
}

func (p holdingPrompter) Text(label string) (string, error) {
	p.hold.Suspend()
	defer p.hold.Resume()
	return p.Prompter.Text(label)
}

func (p holdingPrompter) MultiLine(label string) (string, error) {
	p.hold.Suspend()
	defer p.hold.Resume()
	return p.Prompter.MultiLine(label)
}

func (p holdingPrompter) Confirm(message string) (bool, error) {
	p.hold.Suspend()
	defer p.hold.Resume()
	return p.Prompter.Confirm(message)
}

// promptConfirmer adapts a Prompter to controller.Confirmer.
type promptConfirmer struct {
	prompter Prompter
}

func (c promptConfirmer) Confirm(_ context.Context, message string) (bool, error) {
	return c.prompter.Confirm(message)
}
