// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/doc-engine/internal/memory"
	"github.com/pdiddy/doc-engine/internal/pipeline"
	"github.com/pdiddy/doc-engine/internal/wiki"
	"github.com/pdiddy/doc-engine/pkg/types"
)

// --- enhance subcommand ---

var enhanceCmd = &cobra.Command{
	Use:   "enhance [file]",
	Short: "Enhance a Markdown document section by section",
	Long: `Enhance parses a Markdown document into sections, runs each section
through the enrich, verify (optional), and link agent stages, and merges
the results with a final editorial pass. On any failure the output
degrades toward the unmodified input, never below it.

Reads from stdin when file is "-". The enhanced document goes to stdout
or to -o; the run report goes to stderr. Degraded runs still exit 0:
only configuration errors fail the command.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnhance,
}

func runEnhance(cmd *cobra.Command, args []string) error {
	doc, err := readDocument(args[0])
	if err != nil {
		return err
	}

	cfg := loadConfig()
	if cmd.Flags().Changed("verify") {
		cfg.Enhance.Verify, _ = cmd.Flags().GetBool("verify")
	}
	if cmd.Flags().Changed("max-sections") {
		cfg.Enhance.MaxSections, _ = cmd.Flags().GetInt("max-sections")
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Enhance.Concurrency, _ = cmd.Flags().GetInt("concurrency")
	}
	if lang, _ := cmd.Flags().GetString("language"); lang != "" {
		cfg.Lookup.Language = lang
	}

	ctx := cmd.Context()
	runner, roles, err := buildRunner(ctx, cfg.Agent)
	if err != nil {
		return err
	}

	var store *memory.Store
	noMemory, _ := cmd.Flags().GetBool("no-memory")
	if cfg.Memory.Enabled && !noMemory {
		store, err = openStore(ctx, cfg.Memory, cfg.Agent)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  warning: memory store unavailable: %v\n", err)
			store = nil
		}
		defer store.Close()
	}

	enhancer, err := pipeline.New(runner, roles, wiki.New(cfg.Lookup), store, pipeline.Options{
		Enhance:    cfg.Enhance,
		Policy:     cfg.Policy,
		MaxRetries: cfg.Agent.MaxRetries,
		Progress:   progressWriter(cmd),
	})
	if err != nil {
		return err
	}

	final, report := enhancer.Enhance(ctx, doc)
	printReport(os.Stderr, report)

	output, _ := cmd.Flags().GetString("output")
	return writeDocument(cmd, output, final)
}

// printReport writes the run summary for humans. One line per fact so
// shell pipelines can grep single fields out of stderr.
func printReport(w io.Writer, r types.RunReport) {
	fmt.Fprintf(w, "Run %s: %s\n", r.RunID, r.State)
	fmt.Fprintf(w, "  sections %d, enriched %d, failed stages %d, repaired %d\n",
		r.Sections, r.Enriched, r.Failed, len(r.Repaired))
	fmt.Fprintf(w, "  %d -> %d chars in %s\n",
		r.InputChars, r.OutputChars, r.Finished.Sub(r.Started).Round(time.Millisecond))
	if r.Advisory != "" {
		fmt.Fprintf(w, "  note: %s\n", r.Advisory)
	}
}

func init() {
	enhanceCmd.Flags().StringP("output", "o", "", "write the enhanced document to this file instead of stdout")
	enhanceCmd.Flags().Bool("verify", false, "run the fact-check stage between enrich and link")
	enhanceCmd.Flags().Int("max-sections", 0, "process at most this many sections (0 = all)")
	enhanceCmd.Flags().Int("concurrency", 0, "section chains to run in parallel (default from config)")
	enhanceCmd.Flags().String("language", "", "encyclopedia language edition (default from config)")
	enhanceCmd.Flags().Bool("no-memory", false, "skip memory recall and recording for this run")
	enhanceCmd.Flags().Bool("render", false, "render stdout output for the terminal")

	rootCmd.AddCommand(enhanceCmd)
}
