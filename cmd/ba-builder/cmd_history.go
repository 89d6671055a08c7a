package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Open-Mobile-Kit/ba-ai-builder/store"
)

var historyFlags struct {
	outputDir string
}

var historyCmd = &cobra.Command{
	Use:   "history <run-id> [stage]",
	Short: "Show the transition log, or all iterations of one stage",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyFlags.outputDir, "output-dir", "", "Base directory for run artifacts")
}

func runHistory(_ *cobra.Command, args []string) error {
	st := store.New(store.Config{BaseDir: baseDir(historyFlags.outputDir)})
	runID := args[0]

	if len(args) == 2 {
		kind, ok := store.ParseKind(args[1])
		if !ok {
			return fmt.Errorf("unknown stage %q", args[1])
		}
		artifacts, err := st.History(runID, kind)
		if err != nil {
			return err
		}
		for _, a := range artifacts {
			fmt.Printf("%s  %-12s iter %d  %s  %s\n",
				a.CreatedAt.Format("2006-01-02 15:04:05"), a.Kind, a.Iteration, shortDigest(a.Digest), a.Path)
		}
		return nil
	}

	transitions, err := st.Transitions(runID)
	if err != nil {
		return err
	}
	for _, t := range transitions {
		fmt.Printf("%s  %-12s iter %d  %s\n",
			t.Timestamp.Format("2006-01-02 15:04:05"), t.State, t.Iteration, t.File)
	}
	return nil
}

func shortDigest(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
