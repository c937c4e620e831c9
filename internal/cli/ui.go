package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/sakif/snippet-sync/internal/controller"
)

// UI menu entries.
const (
	menuSave   = "Save a snippet"
	menuCopy   = "Copy a snippet"
	menuDelete = "Delete a snippet"
	menuReload = "Reload"
	menuQuit   = "Quit"
)

// errQuit ends the UI loop without an error.
var errQuit = errors.New("quit")

// UI is the interactive terminal front-end around a controller.
type UI struct {
	ctrl     *controller.Controller
	prompter Prompter
	logger   *slog.Logger
}

func NewUI(ctrl *controller.Controller, prompter Prompter, logger *slog.Logger) *UI {
	return &UI{ctrl: ctrl, prompter: prompter, logger: logger}
}

// Run shows the collection and handles menu choices until the user quits
// or a prompt fails. Errors of individual actions are shown as
// notifications by the controller and do not end the loop.
func (u *UI) Run(ctx context.Context) error {
	if err := u.ctrl.Activate(ctx); err != nil {
		return err
	}
	defer u.ctrl.Close()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		err := u.step(ctx)
		switch {
		case errors.Is(err, errQuit):
			return nil
		case err != nil:
			return err
		}
	}
}

// step runs one menu choice. Only prompt failures and errQuit are returned.
func (u *UI) step(ctx context.Context) error {
	options := []string{menuSave}
	if len(u.ctrl.View().Cards) > 0 {
		options = append(options, menuCopy, menuDelete)
	}
	options = append(options, menuReload, menuQuit)

	choice, err := u.prompter.Select("What next?", options)
	if err != nil {
		return err
	}

	switch choice {
	case menuSave:
		form, err := u.readForm()
		if err != nil {
			return err
		}
		u.logged("save", u.ctrl.Save(ctx, form))

	case menuCopy:
		id, ok, err := u.pickSnippet()
		if err != nil || !ok {
			return err
		}
		u.logged("copy", u.ctrl.Copy(ctx, id))

	case menuDelete:
		id, ok, err := u.pickSnippet()
		if err != nil || !ok {
			return err
		}
		u.logged("delete", u.ctrl.Delete(ctx, id))

	case menuReload:
		u.logged("reload", u.ctrl.Reload(ctx))

	case menuQuit:
		return errQuit
	}
	return nil
}

// readForm asks for the title first and then the code, the same order as
// the save form. An empty language keeps the form's current default.
func (u *UI) readForm() (controller.Form, error) {
	form := u.ctrl.View().Form

	title, err := u.prompter.Text("Title")
	if err != nil {
		return form, err
	}
	code, err := u.prompter.MultiLine("Code")
	if err != nil {
		return form, err
	}
	language, err := u.prompter.Text(fmt.Sprintf("Language (%s)", form.Language))
	if err != nil {
		return form, err
	}

	form.Title = title
	form.Code = code
	if language = strings.TrimSpace(language); language != "" {
		form.Language = language
	}
	return form, nil
}

// pickSnippet lets the user choose one of the shown cards.
func (u *UI) pickSnippet() (int64, bool, error) {
	cards := u.ctrl.View().Cards
	if len(cards) == 0 {
		return 0, false, nil
	}

	labels := lo.Map(cards, func(c controller.Card, _ int) string {
		return fmt.Sprintf("#%d %s (%s)", c.ID, c.Title, c.Language)
	})
	choice, err := u.prompter.Select("Which snippet?", labels)
	if err != nil {
		return 0, false, err
	}

	_, idx, found := lo.FindIndexOf(labels, func(l string) bool { return l == choice })
	if !found {
		return 0, false, nil
	}
	return cards[idx].ID, true, nil
}

func (u *UI) logged(action string, err error) {
	if err != nil {
		u.logger.Debug("ui action failed", slog.String("action", action), slog.String("error", err.Error()))
	}
}

// --- Cobra wiring ---

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Browse and edit snippets interactively",
	Long: "Open an interactive view of the collection. The view refreshes when another " +
		"process changes the store.",
	Args: cobra.NoArgs,
	RunE: runUI,
}

func init() {
	rootCmd.AddCommand(uiCmd)
}

func runUI(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	logger := a.cfg.NewLogger(os.Stderr)
	go func() {
		if err := a.backend.Watch(ctx); err != nil {
			logger.Warn("store watch stopped", slog.String("error", err.Error()))
		}
	}()

	defaultLanguage := a.cfg.DefaultLanguage
	if settings, err := a.svc.Settings(ctx); err == nil {
		defaultLanguage = settings.DefaultLanguage
	}

	renderer := NewRenderer(os.Stdout, true)
	prompter := holdingPrompter{Prompter: ptermPrompter{}, hold: renderer}
	ctrl := controller.New(a.svc, a.backend.Store,
		renderer,
		NewClipboard(os.Stdout),
		promptConfirmer{prompter: prompter},
		logger,
		controller.WithNotificationDelay(a.cfg.NotifyDelay),
		controller.WithDefaultLanguage(defaultLanguage),
	)
	return NewUI(ctrl, prompter, logger).Run(ctx)
}
