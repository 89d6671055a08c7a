package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Open-Mobile-Kit/ba-ai-builder/config"
	"github.com/Open-Mobile-Kit/ba-ai-builder/store"
)

var runsFlags struct {
	outputDir string
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List known runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().StringVar(&runsFlags.outputDir, "output-dir", "", "Base directory for run artifacts")
}

func runRuns(cmd *cobra.Command, _ []string) error {
	st := store.New(store.Config{BaseDir: baseDir(runsFlags.outputDir)})
	runs, err := st.ListRuns()
	if err != nil {
		return err
	}
	for _, run := range runs {
		fmt.Printf("%s  %-8s %s  %s\n",
			run.CreatedAt.Format("2006-01-02 15:04:05"), run.Version, run.ID, summarize(run.Requirements, 60))
	}
	return nil
}

// baseDir resolves the storage root: explicit flag, else config default.
func baseDir(override string) string {
	if override != "" {
		return override
	}
	return config.Default().Output.BaseDir
}

func summarize(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > max {
		return text[:max] + "..."
	}
	return text
}
