// ba-builder drives the document pipeline: analysis, architecture,
// feature planning, BRD/SRS drafting, validation and refinement.
//
// Usage:
//
//	ba-builder build "<requirements>" [--config=<path>] [--context=<json|path>]
//	ba-builder refine <run-id> <stage> [--feedback=<text>]
//	ba-builder history <run-id> [stage]
//	ba-builder runs
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

// errPartial signals a run that finished but left failing validation
// reports behind. The process exits 2 so callers can tell it apart
// from a hard failure.
var errPartial = errors.New("completed with failing validation")

var rootFlags struct {
	verbose bool
}

var rootCmd = &cobra.Command{
	Use:   "ba-builder",
	Short: "LLM-driven business analysis document pipeline",
	Long: "ba-builder turns raw product requirements into validated BRD and SRS\n" +
		"documents through a staged pipeline with automatic refinement.",
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if rootFlags.verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&rootFlags.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(refineCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errPartial) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
