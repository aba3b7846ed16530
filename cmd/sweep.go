package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var sweepAll bool

var sweepCmd = &cobra.Command{
	Use:   "sweep [key]",
	Short: "Remove vectors from the index",
	Long: `Removes all vectors for a source key from the vector index, or with
--all every vector in the index. The underlying store has no delete-by-
filter primitive, so removal pages through query-then-delete until the
matching set is exhausted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if sweepAll {
			return runSweep("")
		}
		if len(args) != 1 {
			return fmt.Errorf("provide a source key or --all")
		}
		return runSweep(args[0])
	},
}

func init() {
	sweepCmd.Flags().BoolVar(&sweepAll, "all", false, "remove every vector in the index")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(key string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var deleted int
	if key == "" {
		deleted, err = a.sweeper.DeleteAll(ctx)
	} else {
		deleted, err = a.sweeper.DeleteBySource(ctx, key)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Deleted %d vectors\n", deleted)
	return nil
}
