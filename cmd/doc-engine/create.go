package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/doc-engine/internal/creator"
	"github.com/pdiddy/doc-engine/internal/wiki"
)

// --- create subcommand ---

var createCmd = &cobra.Command{
	Use:   "create [topic]",
	Short: "Create a new Markdown document about a topic",
	Long: `Create plans a section outline for the topic, composes each section
with the writer agent grounded in encyclopedia research, and finishes
with an editorial review. An outline file skips the planning stage and
fixes the section structure up front.

The document goes to stdout or to -o; composition progress goes to
stderr.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCreate,
}

func runCreate(cmd *cobra.Command, args []string) error {
	topic := strings.TrimSpace(strings.Join(args, " "))

	cfg := loadConfig()
	if lang, _ := cmd.Flags().GetString("language"); lang != "" {
		cfg.Lookup.Language = lang
	}

	ctx := cmd.Context()
	runner, roles, err := buildRunner(ctx, cfg.Agent)
	if err != nil {
		return err
	}

	c, err := creator.New(runner, roles, wiki.New(cfg.Lookup), creator.Options{
		Policy:   cfg.Policy,
		Progress: os.Stderr,
	})
	if err != nil {
		return err
	}

	output, _ := cmd.Flags().GetString("output")
	outlinePath, _ := cmd.Flags().GetString("outline")

	if outlinePath != "" {
		outline, err := creator.LoadOutline(outlinePath)
		if err != nil {
			return err
		}
		doc, err := c.CreateFromOutline(ctx, topic, outline)
		if err != nil {
			return err
		}
		return writeDocument(cmd, output, doc)
	}

	doc, err := c.Create(ctx, topic)
	if err != nil {
		return err
	}
	return writeDocument(cmd, output, doc)
}

func init() {
	createCmd.Flags().StringP("output", "o", "", "write the document to this file instead of stdout")
	createCmd.Flags().String("outline", "", "YAML outline file fixing the section structure")
	createCmd.Flags().String("language", "", "encyclopedia language edition (default from config)")
	createCmd.Flags().Bool("render", false, "render stdout output for the terminal")

	rootCmd.AddCommand(createCmd)
}
