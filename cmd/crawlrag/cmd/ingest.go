package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	ingestPrefix string
	ingestOwner  string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Re-ingest an archived crawl from object storage",
	Long: `Re-ingest a previously archived crawl into Elasticsearch without
re-crawling the source. Requires the crawl archive to be enabled.

Examples:
  # Re-ingest a specific crawl by prefix
  crawlrag ingest --prefix crawls/docs.example.com/20260829-120000`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&ingestPrefix, "prefix", "", "Archive prefix to ingest (required)")
	ingestCmd.Flags().StringVar(&ingestOwner, "owner", "", "Owner identity to attach to stored records")
	ingestCmd.MarkFlagRequired("prefix")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Debug("ingest command starting", "prefix", ingestPrefix)

	if !cfg.Archive.Enabled {
		return fmt.Errorf("crawl archive is not enabled - check config file")
	}

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

	fmt.Printf("Ingesting: %s\n", ingestPrefix)

	summary, err := engine.IngestArchived(ctx, ingestPrefix, ingestOwner)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Printf("\nIngestion complete:\n")
	fmt.Printf("  Pages recovered: %d\n", summary.PagesCrawled)
	fmt.Printf("  Chunks stored: %d\n", summary.ChunksStored)
	if summary.CodeExamplesStored > 0 {
		fmt.Printf("  Code examples: %d\n", summary.CodeExamplesStored)
	}
	fmt.Printf("  Sources updated: %d\n", summary.SourcesUpdated)

	if len(summary.Errors) > 0 {
		fmt.Printf("  Warnings: %d\n", len(summary.Errors))
		for _, e := range summary.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}

	return nil
}
