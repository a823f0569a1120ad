package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/doc-engine/internal/wiki"
)

// --- lookup subcommand ---

var lookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Query the encyclopedia backend directly",
	Long: `Lookup exposes the encyclopedia client the pipeline stages use: title
search, plain-text summaries, whole articles converted to Markdown, and
canonical URLs. Useful for checking what the link stage will find
before running an enhancement.`,
}

var lookupSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search for article titles",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runLookupSearch,
}

var lookupSummaryCmd = &cobra.Command{
	Use:   "summary [title]",
	Short: "Print the plain-text summary of an article",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runLookupSummary,
}

var lookupPageCmd = &cobra.Command{
	Use:   "page [title]",
	Short: "Print a whole article converted to Markdown",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runLookupPage,
}

var lookupURLCmd = &cobra.Command{
	Use:   "url [title]",
	Short: "Print the canonical URL of an article",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runLookupURL,
}

// lookupClient builds the encyclopedia client from config plus the
// --language override.
func lookupClient(cmd *cobra.Command) *wiki.Client {
	cfg := loadConfig()
	if lang, _ := cmd.Flags().GetString("language"); lang != "" {
		cfg.Lookup.Language = lang
	}
	return wiki.New(cfg.Lookup)
}

func runLookupSearch(cmd *cobra.Command, args []string) error {
	client := lookupClient(cmd)
	limit, _ := cmd.Flags().GetInt("limit")

	titles, err := client.Search(cmd.Context(), strings.Join(args, " "), limit)
	if err != nil {
		return err
	}
	if len(titles) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	for i, title := range titles {
		fmt.Printf("%-4d %s\n", i+1, title)
	}
	fmt.Printf("\n%d results (%s edition)\n", len(titles), client.Language())
	return nil
}

func runLookupSummary(cmd *cobra.Command, args []string) error {
	client := lookupClient(cmd)
	sentences, _ := cmd.Flags().GetInt("sentences")

	text, err := client.Summary(cmd.Context(), strings.Join(args, " "), sentences)
	if err != nil {
		return err
	}
	if text == "" {
		fmt.Println("No article found.")
		return nil
	}
	fmt.Println(text)
	return nil
}

func runLookupPage(cmd *cobra.Command, args []string) error {
	client := lookupClient(cmd)

	doc, err := client.ExtractMarkdown(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	if doc == "" {
		fmt.Println("No article found.")
		return nil
	}
	return writeDocument(cmd, "", doc)
}

func runLookupURL(cmd *cobra.Command, args []string) error {
	client := lookupClient(cmd)

	u, err := client.CanonicalURL(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Println(u)
	return nil
}

func init() {
	lookupCmd.PersistentFlags().String("language", "", "encyclopedia language edition (default from config)")

	lookupSearchCmd.Flags().Int("limit", 10, "maximum number of titles")
	lookupSummaryCmd.Flags().Int("sentences", 0, "summary length in sentences (default from config)")
	lookupPageCmd.Flags().Bool("render", false, "render the article for the terminal")

	lookupCmd.AddCommand(lookupSearchCmd)
	lookupCmd.AddCommand(lookupSummaryCmd)
	lookupCmd.AddCommand(lookupPageCmd)
	lookupCmd.AddCommand(lookupURLCmd)
	rootCmd.AddCommand(lookupCmd)
}
