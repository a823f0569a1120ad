// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/doc-engine/internal/memory"
)

// --- memory subcommand ---

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and manage the cross-run memory store",
	Long: `Memory manages the SQLite store where enhancement runs record their
reports and section notes. Later runs recall matching notes as extra
stage context, so the store is what lets repeated enhancements of the
same material build on each other instead of starting over.`,
}

var memoryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print store counts and the most recent run",
	RunE:  runMemoryStats,
}

var memorySearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Keyword-search remembered notes",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runMemorySearch,
}

var memoryExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all runs and notes to stdout",
	RunE:  runMemoryExport,
}

var memoryClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all runs and notes",
	RunE:  runMemoryClear,
}

// openMemory opens the store named by config plus the --dir override.
// Inspection commands never need an embedder: keyword recall is enough.
func openMemory(cmd *cobra.Command) (*memory.Store, error) {
	cfg := loadConfig()
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		cfg.Memory.Dir = dir
	}
	return memory.NewStore(cfg.Memory, nil)
}

func runMemoryStats(cmd *cobra.Command, args []string) error {
	store, err := openMemory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("Runs:     %d\n", stats.Runs)
	fmt.Printf("Notes:    %d (%d embedded)\n", stats.Notes, stats.Embedded)
	if !stats.LastRun.IsZero() {
		fmt.Printf("Last run: %s (%s)\n", stats.LastRun.Format(time.RFC3339), stats.LastState)
	}
	return nil
}

func runMemorySearch(cmd *cobra.Command, args []string) error {
	store, err := openMemory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	results, err := store.Recall(cmd.Context(), strings.Join(args, " "), limit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-4s  %-12s  %-8s  %s\n", "Rank", "Section", "Stage", "Content")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 80))
	for i, r := range results {
		content := strings.Join(strings.Fields(r.Content), " ")
		if len(content) > 50 {
			content = content[:47] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-4d  %-12s  %-8s  %s\n", i+1, r.Section, r.Stage, content)
	}
	fmt.Fprintf(os.Stdout, "\n%d results\n", len(results))
	return nil
}

func runMemoryExport(cmd *cobra.Command, args []string) error {
	store, err := openMemory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	format, _ := cmd.Flags().GetString("format")
	if format != "json" && format != "yaml" {
		return fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
	return store.Export(cmd.Context(), os.Stdout, format)
}

func runMemoryClear(cmd *cobra.Command, args []string) error {
	store, err := openMemory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Clear(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("Memory cleared.")
	return nil
}

func init() {
	memoryCmd.PersistentFlags().String("dir", "", "memory store directory (default from config)")

	memorySearchCmd.Flags().Int("limit", 10, "maximum number of notes")
	memoryExportCmd.Flags().String("format", "json", "export format: json or yaml")

	memoryCmd.AddCommand(memoryStatsCmd)
	memoryCmd.AddCommand(memorySearchCmd)
	memoryCmd.AddCommand(memoryExportCmd)
	memoryCmd.AddCommand(memoryClearCmd)
	rootCmd.AddCommand(memoryCmd)
}
