package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var crawlOwner string

var crawlCmd = &cobra.Command{
	Use:   "crawl [url]",
	Short: "Crawl a URL and store its content",
	Long: `Crawl a URL and store its content for retrieval.

The target type is detected from the URL: a .txt file is fetched
verbatim, a sitemap.xml fans out to all of its <loc> entries, and any
other URL gets a bounded-depth crawl of its internal links.

Examples:
  # Crawl a documentation site
  crawlrag crawl https://docs.example.com

  # Crawl every page listed in a sitemap
  crawlrag crawl https://example.com/sitemap.xml

  # Ingest a plain text file
  crawlrag crawl https://example.com/llms.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)

	crawlCmd.Flags().StringVar(&crawlOwner, "owner", "", "Owner identity to attach to stored records")
}

func runCrawl(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	seedURL := args[0]
	slog.Debug("crawl command starting", "url", seedURL)

	store, err := buildStore()
	if err != nil {
		return err
	}
	if err := store.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to prepare indices: %w", err)
	}

	engine, err := buildIngestion(store)
	if err != nil {
		return err
	}

	fmt.Printf("Crawling: %s\n", seedURL)

	summary := engine.IngestURL(ctx, seedURL, crawlOwner)

	fmt.Printf("\nCrawl complete (%s):\n", summary.CrawlType)
	fmt.Printf("  Pages crawled: %d\n", summary.PagesCrawled)
	fmt.Printf("  Chunks stored: %d\n", summary.ChunksStored)
	if summary.CodeExamplesStored > 0 {
		fmt.Printf("  Code examples: %d\n", summary.CodeExamplesStored)
	}
	fmt.Printf("  Sources updated: %d\n", summary.SourcesUpdated)
	if summary.ArchivePrefix != "" {
		fmt.Printf("  Archive prefix: %s\n", summary.ArchivePrefix)
	}

	if len(summary.Errors) > 0 {
		fmt.Printf("  Warnings: %d\n", len(summary.Errors))
		for _, e := range summary.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}

	if !summary.Success {
		return fmt.Errorf("crawl of %s stored no content", seedURL)
	}
	return nil
}
