package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sakif/snippet-sync/internal/service"
)

// exportFile is the YAML document written by export and read by import.
type exportFile struct {
	Snippets []exportedSnippet `yaml:"snippets"`
}

type exportedSnippet struct {
	ID        int64     `yaml:"id,omitempty"`
	Title     string    `yaml:"title"`
	Language  string    `yaml:"language,omitempty"`
	CreatedAt time.Time `yaml:"createdAt,omitempty"`
	Code      string    `yaml:"code"`
}

// Export writes the collection as YAML, newest first.
func (c SnippetsCmd) Export(ctx context.Context, w io.Writer) error {
	snippets, err := c.svc.List(ctx)
	if err != nil {
		return err
	}

	doc := exportFile{Snippets: make([]exportedSnippet, 0, len(snippets))}
	for _, s := range snippets {
		doc.Snippets = append(doc.Snippets, exportedSnippet{
			ID:        s.ID,
			Title:     s.Title,
			Language:  s.Language,
			CreatedAt: s.CreatedAt,
			Code:      s.Code,
		})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}
	return enc.Close()
}

// Import creates every snippet of a YAML export. Snippets are created
// oldest first so the collection keeps the exported order; each one gets a
// new id and creation time. Import stops at the first invalid snippet.
func (c SnippetsCmd) Import(ctx context.Context, r io.Reader) (int, error) {
	var doc exportFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("decoding import: %w", err)
	}

	imported := 0
	for i := len(doc.Snippets) - 1; i >= 0; i-- {
		s := doc.Snippets[i]
		if _, err := c.svc.Create(ctx, service.CreateInput{Title: s.Title, Language: s.Language, Code: s.Code}); err != nil {
			return imported, fmt.Errorf("importing %q: %w", s.Title, err)
		}
		imported++
	}
	return imported, nil
}

// --- Cobra wiring ---

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export snippets as YAML",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import snippets from a YAML export (use - for stdin)",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)

	exportCmd.Flags().StringP("file", "f", "", "Write to a file instead of stdout")
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	w := cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return newSnippetsCmd(cmd, a).Export(cmd.Context(), w)
}

func runImport(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	c := newSnippetsCmd(cmd, a)
	n, err := c.Import(cmd.Context(), bytes.NewReader(data))
	if n > 0 {
		c.success().Printf("Imported %d snippets\n", n)
	}
	return err
}
