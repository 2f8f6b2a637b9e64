package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/avasilyev/crawlrag/internal/search"
)

var (
	searchMatchCount int
	searchSource     string
	searchOwner      string
	searchFormat     string
	searchCode       bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search stored content",
	Long: `Search stored page chunks with hybrid vector + keyword retrieval.

Examples:
  # Basic search
  crawlrag search "how to install"

  # Restrict to one source
  crawlrag search "error handling" --source docs.example.com

  # Search code examples instead of page content
  crawlrag search "http middleware" --code

  # JSON output for scripting
  crawlrag search "modules" --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().IntVar(&searchMatchCount, "match-count", 5, "Maximum number of results")
	searchCmd.Flags().StringVar(&searchSource, "source", "", "Restrict results to one source")
	searchCmd.Flags().StringVar(&searchOwner, "owner", "", "Restrict results to one owner")
	searchCmd.Flags().StringVar(&searchFormat, "format", "text", "Output format: text or json")
	searchCmd.Flags().BoolVar(&searchCode, "code", false, "Search code examples instead of page content")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	query := args[0]

	store, err := buildStore()
	if err != nil {
		return err
	}
	engine, err := buildSearch(store)
	if err != nil {
		return err
	}

	opts := search.Options{
		MatchCount: searchMatchCount,
		SourceID:   searchSource,
		Owner:      searchOwner,
	}

	var resp search.Response
	if searchCode {
		resp, err = engine.SearchCodeExamples(ctx, query, opts)
	} else {
		resp, err = engine.SearchDocuments(ctx, query, opts)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(resp.Results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	if searchFormat == "json" {
		output, err := json.MarshalIndent(resp.Results, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Found %d results", len(resp.Results))
	if resp.RerankApplied {
		fmt.Printf(" (reranked)")
	}
	fmt.Printf(":\n\n")

	for i, result := range resp.Results {
		fmt.Printf("─── Result %d ───\n", i+1)
		fmt.Printf("URL:        %s\n", result.URL)
		fmt.Printf("Source:     %s\n", result.SourceID)
		fmt.Printf("Similarity: %.3f\n", result.Similarity)
		if result.RerankScore != nil {
			fmt.Printf("Rerank:     %.3f\n", *result.RerankScore)
		}

		// Truncate content for display
		content := result.Content
		if len(content) > 500 {
			content = content[:500] + "..."
		}
		fmt.Printf("Content:\n%s\n\n", content)
	}

	return nil
}
