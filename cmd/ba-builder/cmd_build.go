package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	builder "github.com/Open-Mobile-Kit/ba-ai-builder"
	"github.com/Open-Mobile-Kit/ba-ai-builder/config"
	"github.com/Open-Mobile-Kit/ba-ai-builder/store"
)

var buildFlags struct {
	configPath       string
	contextSpec      string
	runID            string
	version          string
	outputDir        string
	detailedFeatures bool
	validate         bool
}

var buildCmd = &cobra.Command{
	Use:   "build <requirements|file>",
	Short: "Run the full pipeline from raw requirements to final report",
	Long: "Build runs every pipeline stage for the given requirements, which\n" +
		"may be inline text or a file path. With --run the positional argument\n" +
		"is optional and the named run is resumed instead.",
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

func init() {
	f := buildCmd.Flags()
	f.StringVar(&buildFlags.configPath, "config", "", "Config file path (YAML)")
	f.StringVar(&buildFlags.contextSpec, "context", "", "Extra context as inline JSON or a JSON file path")
	f.StringVar(&buildFlags.runID, "run", "", "Resume an existing run by ID")
	f.StringVar(&buildFlags.version, "version", "", "Run version label")
	f.StringVar(&buildFlags.outputDir, "output-dir", "", "Base directory for run artifacts")
	f.BoolVar(&buildFlags.detailedFeatures, "detailed-features", false, "Generate per-feature detail sections")
	f.BoolVar(&buildFlags.validate, "validate", true, "Validate and refine generated documents")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(buildFlags.configPath, buildFlags.outputDir)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("version") {
		cfg.Output.Version = buildFlags.version
	}
	if cmd.Flags().Changed("detailed-features") {
		cfg.Features.Detailed = buildFlags.detailedFeatures
	}
	if cmd.Flags().Changed("validate") {
		cfg.Validation.Enabled = buildFlags.validate
	}

	var requirements string
	if len(args) > 0 {
		requirements, err = readRequirements(args[0])
		if err != nil {
			return err
		}
	} else if buildFlags.runID == "" {
		return fmt.Errorf("requirements are required unless resuming with --run")
	}
	runCtx, err := parseContext(buildFlags.contextSpec)
	if err != nil {
		return err
	}

	o, err := builder.NewOrchestrator(cfg)
	if err != nil {
		return err
	}

	result, err := o.Build(cmd.Context(), builder.BuildRequest{
		Requirements: requirements,
		Context:      runCtx,
		RunID:        buildFlags.runID,
	})
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}

	printBuildSummary(result)

	if !result.Passing() {
		return errPartial
	}
	return nil
}

func printBuildSummary(result *builder.BuildResult) {
	st := result.State
	fmt.Printf("run %s (%s)\n", result.Run.ID, st.Phase)
	fmt.Printf("  tokens in/out: %d/%d over %d completion calls\n",
		st.Metrics.TotalTokensIn, st.Metrics.TotalTokensOut, st.Metrics.CompletionCalls)

	for _, kind := range store.AllKinds {
		outcome, ok := st.Stages[kind]
		if !ok {
			continue
		}
		line := fmt.Sprintf("  %-12s iter %d", kind, outcome.Iteration)
		if outcome.Resumed {
			line += "  (resumed)"
		}
		if report, ok := st.Reports[kind]; ok {
			verdict := "passed"
			if !report.Passed {
				verdict = "FAILED"
			}
			line += fmt.Sprintf("  validation %s (%.2f)", verdict, report.Score)
		}
		fmt.Println(line)
	}
}

// readRequirements accepts either inline text or a path to a file.
func readRequirements(arg string) (string, error) {
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		data, err := os.ReadFile(arg)
		if err != nil {
			return "", fmt.Errorf("read requirements %s: %w", arg, err)
		}
		return string(data), nil
	}
	text := strings.TrimSpace(arg)
	if text == "" {
		return "", fmt.Errorf("requirements must not be empty")
	}
	return text, nil
}

// parseContext decodes the --context value, which is either inline JSON
// or the path to a JSON file holding a string map.
func parseContext(spec string) (map[string]string, error) {
	if spec == "" {
		return nil, nil
	}
	raw := []byte(spec)
	if info, err := os.Stat(spec); err == nil && !info.IsDir() {
		raw, err = os.ReadFile(spec)
		if err != nil {
			return nil, fmt.Errorf("read context %s: %w", spec, err)
		}
	}
	var out map[string]string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse context: %w", err)
	}
	return out, nil
}

// loadConfig loads configuration and applies the shared --output-dir override.
func loadConfig(path, outputDir string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if outputDir != "" {
		cfg.Output.BaseDir = outputDir
	}
	return cfg, nil
}
