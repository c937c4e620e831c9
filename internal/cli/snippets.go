package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/sakif/snippet-sync/internal/model"
	"github.com/sakif/snippet-sync/internal/service"
)

// SnippetService is the subset of the snippet service the commands use.
type SnippetService interface {
	Initialize(ctx context.Context) error
	List(ctx context.Context) ([]model.Snippet, error)
	Get(ctx context.Context, id int64) (*model.Snippet, error)
	Create(ctx context.Context, in service.CreateInput) (*model.Snippet, error)
	Delete(ctx context.Context, id int64) error
}

// SnippetsCmd implements the non-interactive snippet commands.
type SnippetsCmd struct {
	svc       SnippetService
	confirm   func(message string) (bool, error)
	clipboard func(ctx context.Context, text string) error
	out       io.Writer
}

// ListInput holds input for listing snippets.
type ListInput struct {
	Output string
}

// List prints the collection, newest first.
func (c SnippetsCmd) List(ctx context.Context, in ListInput) error {
	if in.Output != "" && in.Output != "json" {
		return fmt.Errorf("unsupported --output value: use 'json'")
	}

	snippets, err := c.svc.List(ctx)
	if err != nil {
		return err
	}

	if in.Output == "json" {
		data, err := gojson.MarshalIndent(snippets, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(c.out, string(data))
		return err
	}

	if len(snippets) == 0 {
		c.info().Println("No snippets saved yet")
		return nil
	}

	rows := pterm.TableData{{"ID", "Title", "Language", "Created", "Code"}}
	for _, s := range snippets {
		rows = append(rows, []string{
			fmt.Sprint(s.ID),
			s.Title,
			s.Language,
			s.CreatedAt.Local().Format(time.DateTime),
			preview(s.Code, 40),
		})
	}
	return pterm.DefaultTable.WithWriter(c.out).WithHasHeader().WithData(rows).Render()
}

// SaveInput holds input for saving a snippet.
type SaveInput struct {
	Title    string
	Language string
	Code     string
}

// Save creates a snippet.
func (c SnippetsCmd) Save(ctx context.Context, in SaveInput) error {
	snippet, err := c.svc.Create(ctx, service.CreateInput{
		Title:    in.Title,
		Language: in.Language,
		Code:     in.Code,
	})
	if err != nil {
		return err
	}
	c.success().Printf("Snippet saved successfully! (id %d)\n", snippet.ID)
	return nil
}

// DeleteInput holds input for deleting a snippet.
type DeleteInput struct {
	ID          int64
	SkipConfirm bool
}

// Delete removes a snippet after confirmation.
func (c SnippetsCmd) Delete(ctx context.Context, in DeleteInput) error {
	if !in.SkipConfirm {
		ok, err := c.confirm("Are you sure you want to delete this snippet?")
		if err != nil {
			return err
		}
		if !ok {
			c.info().Println("Deletion cancelled")
			return nil
		}
	}

	if err := c.svc.Delete(ctx, in.ID); err != nil {
		return err
	}
	c.success().Println("Snippet deleted")
	return nil
}

// CopyInput holds input for copying a snippet.
type CopyInput struct {
	ID    int64
	Print bool
}

// Copy puts a snippet's code on the clipboard, or prints it with Print.
func (c SnippetsCmd) Copy(ctx context.Context, in CopyInput) error {
	snippet, err := c.svc.Get(ctx, in.ID)
	if err != nil {
		return err
	}

	if in.Print {
		_, err := fmt.Fprintln(c.out, snippet.Code)
		return err
	}

	if err := c.clipboard(ctx, snippet.Code); err != nil {
		pterm.Error.WithWriter(c.out).Println("Failed to copy code")
		return err
	}
	c.success().Println("Code copied to clipboard!")
	return nil
}

// Init seeds an empty store with defaults.
func (c SnippetsCmd) Init(ctx context.Context) error {
	if err := c.svc.Initialize(ctx); err != nil {
		return err
	}
	c.success().Println("Store initialized")
	return nil
}

func (c SnippetsCmd) info() *pterm.PrefixPrinter    { return pterm.Info.WithWriter(c.out) }
func (c SnippetsCmd) success() *pterm.PrefixPrinter { return pterm.Success.WithWriter(c.out) }

// preview returns the first line of code, cut to max runes.
func preview(code string, max int) string {
	line, _, more := strings.Cut(code, "\n")
	runes := []rune(line)
	if len(runes) > max {
		return string(runes[:max-1]) + "…"
	}
	if more {
		return line + " …"
	}
	return line
}

// --- Cobra wiring ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved snippets",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save a snippet",
	Long:  "Save a snippet. The code comes from --code, or from --file (use - for stdin).",
	Args:  cobra.NoArgs,
	RunE:  runSave,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a snippet",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var copyCmd = &cobra.Command{
	Use:   "copy <id>",
	Short: "Copy a snippet's code to the clipboard",
	Long:  "Copy a snippet's code to the system clipboard using the terminal's OSC 52 support.",
	Args:  cobra.ExactArgs(1),
	RunE:  runCopy,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Seed an empty store with default settings",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(copyCmd)
	rootCmd.AddCommand(initCmd)

	listCmd.Flags().StringP("output", "o", "", "Output format: json")

	saveCmd.Flags().String("title", "", "Snippet title (required)")
	saveCmd.Flags().String("language", "", "Language tag (defaults to the configured default language)")
	saveCmd.Flags().String("code", "", "Snippet code")
	saveCmd.Flags().String("file", "", "Read the code from a file, or - for stdin")
	_ = saveCmd.MarkFlagRequired("title")
	saveCmd.MarkFlagsMutuallyExclusive("code", "file")

	deleteCmd.Flags().BoolP("yes", "y", false, "Skip confirmation")

	copyCmd.Flags().Bool("print", false, "Print the code instead of copying it")
}

func newSnippetsCmd(cmd *cobra.Command, a *app) SnippetsCmd {
	return SnippetsCmd{
		svc:       a.svc,
		confirm:   confirmPrompt,
		clipboard: NewClipboard(os.Stdout).Copy,
		out:       cmd.OutOrStdout(),
	}
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	output, _ := cmd.Flags().GetString("output")
	return newSnippetsCmd(cmd, a).List(cmd.Context(), ListInput{Output: output})
}

func runSave(cmd *cobra.Command, args []string) error {
	title, _ := cmd.Flags().GetString("title")
	language, _ := cmd.Flags().GetString("language")
	code, _ := cmd.Flags().GetString("code")
	file, _ := cmd.Flags().GetString("file")

	if file != "" {
		data, err := readInput(cmd, file)
		if err != nil {
			return err
		}
		code = string(data)
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	return newSnippetsCmd(cmd, a).Save(cmd.Context(), SaveInput{Title: title, Language: language, Code: code})
}

func runDelete(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	yes, _ := cmd.Flags().GetBool("yes")

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	return newSnippetsCmd(cmd, a).Delete(cmd.Context(), DeleteInput{ID: id, SkipConfirm: yes})
}

func runCopy(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	printCode, _ := cmd.Flags().GetBool("print")

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	return newSnippetsCmd(cmd, a).Copy(cmd.Context(), CopyInput{ID: id, Print: printCode})
}

func runInit(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	return newSnippetsCmd(cmd, a).Init(cmd.Context())
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid snippet id %q", s)
	}
	return id, nil
}

// readInput reads path, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func confirmPrompt(message string) (bool, error) {
	return pterm.DefaultInteractiveConfirm.WithDefaultText(message).Show()
}
