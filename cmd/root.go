// Package cmd wires the CLI commands for the murachan knowledge service.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "murachan",
	Short: "murachan - knowledge pipeline for the village assistant",
	Long: `murachan keeps the village assistant's knowledge base in sync: it chunks
markdown documents, embeds them with Gemini, stores the vectors in
PostgreSQL (pgvector) and answers retrieval queries with two-stage
reranked search.

Run "murachan serve" for the HTTP API, or use sync/search/sweep directly.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
