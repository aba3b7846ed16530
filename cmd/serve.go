package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/murachan/murachan/api"
	"github.com/murachan/murachan/internal/event"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Starts the knowledge API server and, unless disabled, a filesystem
watcher over the knowledge directory that keeps the index in sync with
document changes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	serveCmd.Flags().Bool("watch", true,
		"watch the knowledge directory and re-index on changes (--watch=false disables)")
	rootCmd.AddCommand(serveCmd)
}

// watchEnabled resolves the watch setting: an explicit --watch flag wins
// over the watch_bucket config value.
func watchEnabled(cmd *cobra.Command, fallback bool) bool {
	if !cmd.Flags().Changed("watch") {
		return fallback
	}
	v, err := cmd.Flags().GetBool("watch")
	if err != nil {
		return fallback
	}
	return v
}

func runServe(cmd *cobra.Command) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if watchEnabled(cmd, a.cfg.WatchBucket) {
		handler := event.NewIndexer(a.coordinator, a.sweeper, a.logger.With("component", "event"))
		watcher, err := event.NewWatcher(a.store, handler, event.WatcherConfig{},
			a.logger.With("component", "watch"))
		if err != nil {
			return fmt.Errorf("starting bucket watcher: %w", err)
		}
		defer watcher.Close()
		go watcher.Run(ctx)
		a.logger.Info("watching knowledge directory", "dir", a.store.Root())
	}

	health := api.NewHealthHandler(a.pool, a.logger.With("component", "api"))
	knowledge := api.NewKnowledgeHandler(a.coordinator, a.sweeper, a.searcher,
		a.logger.With("component", "api"))
	server := api.NewServer(health, knowledge, a.logger.With("component", "api"))

	return server.Run(ctx, a.cfg.ListenAddr)
}
