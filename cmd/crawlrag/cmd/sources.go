package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var sourcesFormat string

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List stored sources",
	Long: `List all stored sources with their summaries and word counts.

Examples:
  crawlrag sources
  crawlrag sources --format json`,
	RunE: runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)

	sourcesCmd.Flags().StringVar(&sourcesFormat, "format", "text", "Output format: text or json")
}

func runSources(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildStore()
	if err != nil {
		return err
	}

	sources, err := store.GetSources(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}

	if len(sources) == 0 {
		fmt.Println("No sources stored.")
		return nil
	}

	if sourcesFormat == "json" {
		output, err := json.MarshalIndent(sources, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("%d sources:\n\n", len(sources))
	for _, source := range sources {
		fmt.Printf("%s (%d words, updated %s)\n", source.SourceID, source.TotalWordCount, source.UpdatedAt.Format("2006-01-02"))
		if source.Summary != "" {
			fmt.Printf("  %s\n", source.Summary)
		}
	}

	return nil
}
