package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avasilyev/crawlrag/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the MCP server for crawl and retrieval tools.

The server communicates via stdio and provides these tools:
  - crawl_url: Crawl a URL and store its content
  - perform_rag_query: Hybrid search over stored page chunks
  - search_code_examples: Hybrid search over code examples (when enabled)
  - get_available_sources: List stored sources

Example:
  crawlrag serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	store, err := buildStore()
	if err != nil {
		return err
	}

	searcher, err := buildSearch(store)
	if err != nil {
		return err
	}
	ingestor, err := buildIngestion(store)
	if err != nil {
		return err
	}

	server := mcp.NewServer(mcp.Config{
		Name:             cfg.MCP.Name,
		Version:          cfg.MCP.Version,
		EnableCodeSearch: cfg.RAG.ExtractCodeExamples,
	}, searcher, ingestor, store)

	fmt.Fprintln(cmd.ErrOrStderr(), "Starting MCP server...")

	return server.ServeStdio()
}
