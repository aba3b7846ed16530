package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/murachan/murachan/internal/ingest"
)

var syncCmd = &cobra.Command{
	Use:   "sync [key]",
	Short: "Re-index the knowledge corpus",
	Long: `Re-indexes markdown documents from the knowledge directory into the
vector index. Without arguments the whole corpus is synced; with a key
only that document is re-indexed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := ""
		if len(args) == 1 {
			key = args[0]
		}
		return runSync(key)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(key string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var result ingest.SyncResult
	if key == "" {
		result, err = a.coordinator.SyncAll(ctx)
		if err != nil {
			return fmt.Errorf("syncing corpus: %w", err)
		}
	} else {
		result = a.coordinator.SyncOne(ctx, key)
	}

	fmt.Printf("Processed %d files, %d chunks\n", result.ProcessedFiles, result.TotalChunks)
	for _, f := range result.Files {
		if f.Error != "" {
			fmt.Printf("  FAIL %s: %s\n", f.File, f.Error)
			continue
		}
		fmt.Printf("  ok   %s (%d chunks)\n", f.File, f.Chunks)
	}
	if !result.Success {
		return fmt.Errorf("sync finished with %d errors", len(result.Errors))
	}
	return nil
}
