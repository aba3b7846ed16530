package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Query the knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSearch(strings.Join(args, " "))
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
}

func runSearch(query string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out := a.searcher.Search(ctx, query)
	if out.Error != "" {
		return fmt.Errorf("search failed: %s", out.Error)
	}
	if len(out.Results) == 0 {
		fmt.Println("No results.")
		return nil
	}

	for i, r := range out.Results {
		fmt.Printf("%d. [%.3f] %s", i+1, r.Score, r.Source)
		if r.Section != "" {
			fmt.Printf(" § %s", r.Section)
		}
		fmt.Println()
		fmt.Println(indent(r.Content, "   "))
	}
	return nil
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
