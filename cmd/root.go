// Package cmd defines and implements the CLI commands for the prodex
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prodex",
		Short: "A partitioned professional-directory extractor",
		Long: `prodex extracts professional listing records from a paginated
directory, normalizes them into canonical profile documents, and persists
them with idempotent de-duplication. A run splits the listing index range
across independent workers and merges their statistics into one run log.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (optional; environment variables use the PRODEX prefix)")

	cmd.AddCommand(newCrawlCmd())
	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
