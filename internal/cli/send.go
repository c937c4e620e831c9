package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/sakif/snippet-sync/internal/config"
	"github.com/sakif/snippet-sync/internal/router"
	"github.com/sakif/snippet-sync/internal/service"
)

// sendTimeout bounds how long send waits for the router's response.
const sendTimeout = 10 * time.Second

// Sender delivers one router request and waits for its response.
type Sender interface {
	Send(ctx context.Context, req router.Request) (router.Response, error)
}

// SendInput holds input for sending a router message.
type SendInput struct {
	Action    string
	Title     string
	Language  string
	Code      string
	SnippetID int64
}

// Request builds the router message for in. Fields that do not belong to
// the action are left out.
func (in SendInput) Request() router.Request {
	req := router.Request{Action: in.Action}
	switch in.Action {
	case router.ActionSaveSnippet:
		req.Snippet = &service.CreateInput{Title: in.Title, Language: in.Language, Code: in.Code}
	case router.ActionDeleteSnippet:
		id := in.SnippetID
		req.SnippetID = &id
	}
	return req
}

// Send delivers a message to a running background router and prints the
// response as JSON.
func Send(ctx context.Context, s Sender, in SendInput, w io.Writer) error {
	resp, err := s.Send(ctx, in.Request())
	if err != nil {
		return err
	}

	data, err := gojson.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, string(data)); err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("router: %s", resp.Error)
	}
	return nil
}

// --- Cobra wiring ---

var sendCmd = &cobra.Command{
	Use:   "send <action>",
	Short: "Send a message to the background router over NATS",
	Long: "Send one message (getSnippets, saveSnippet or deleteSnippet) to a background " +
		"router and print its response. Requires SNIPPETS_NATS_URL.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{router.ActionGetSnippets, router.ActionSaveSnippet, router.ActionDeleteSnippet},
	RunE:      runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().String("title", "", "Snippet title (saveSnippet)")
	sendCmd.Flags().String("language", "", "Snippet language (saveSnippet)")
	sendCmd.Flags().String("code", "", "Snippet code (saveSnippet)")
	sendCmd.Flags().Int64("id", 0, "Snippet id (deleteSnippet)")
}

func runSend(cmd *cobra.Command, args []string) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if cfg.NatsURL == "" {
		return fmt.Errorf("SNIPPETS_NATS_URL is not set")
	}

	nc, err := router.Connect(cfg.NatsURL, cfg.NewLogger(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer nc.Close()

	title, _ := cmd.Flags().GetString("title")
	language, _ := cmd.Flags().GetString("language")
	code, _ := cmd.Flags().GetString("code")
	id, _ := cmd.Flags().GetInt64("id")

	ctx, cancel := context.WithTimeout(cmd.Context(), sendTimeout)
	defer cancel()

	return Send(ctx, router.NewClient(nc, cfg.NatsSubject), SendInput{
		Action:    args[0],
		Title:     title,
		Language:  language,
		Code:      code,
		SnippetID: id,
	}, cmd.OutOrStdout())
}
