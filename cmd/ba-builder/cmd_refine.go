package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	builder "github.com/Open-Mobile-Kit/ba-ai-builder"
	"github.com/Open-Mobile-Kit/ba-ai-builder/store"
)

var refineFlags struct {
	configPath string
	outputDir  string
	feedback   string
}

var refineCmd = &cobra.Command{
	Use:   "refine <run-id> <stage>",
	Short: "Regenerate one stage document with optional feedback",
	Long: "Refine regenerates a single stage artifact at the next iteration,\n" +
		"seeding the prompt with the previous document, its validation\n" +
		"feedback and any user feedback given via --feedback.",
	Args: cobra.ExactArgs(2),
	RunE: runRefine,
}

func init() {
	f := refineCmd.Flags()
	f.StringVar(&refineFlags.configPath, "config", "", "Config file path (YAML)")
	f.StringVar(&refineFlags.outputDir, "output-dir", "", "Base directory for run artifacts")
	f.StringVar(&refineFlags.feedback, "feedback", "", "User feedback to steer the regeneration")
}

func runRefine(cmd *cobra.Command, args []string) error {
	runID := args[0]
	kind, ok := store.ParseKind(args[1])
	if !ok {
		return fmt.Errorf("unknown stage %q (one of: %s)", args[1], stageNames())
	}

	cfg, err := loadConfig(refineFlags.configPath, refineFlags.outputDir)
	if err != nil {
		return err
	}
	o, err := builder.NewOrchestrator(cfg)
	if err != nil {
		return err
	}

	result, err := o.Refine(cmd.Context(), runID, kind, refineFlags.feedback)
	if err != nil {
		return fmt.Errorf("refine: %w", err)
	}

	fmt.Printf("%s iter %d after %d attempt(s)\n", kind, result.Artifact.Iteration, result.Attempts)
	if result.Accepted() {
		fmt.Printf("  validation passed (%.2f)\n", result.Report.Score)
		return nil
	}
	fmt.Printf("  validation FAILED (%.2f), refinement budget exhausted\n", result.Report.Score)
	return errPartial
}

func stageNames() string {
	names := make([]string, len(builder.RefinableStages))
	for i, kind := range builder.RefinableStages {
		names[i] = string(kind)
	}
	return strings.Join(names, ", ")
}
