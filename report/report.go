// Package report persists machine-readable validation reports and renders
// the final human-readable build summary.
package report

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Open-Mobile-Kit/ba-ai-builder/store"
	"github.com/Open-Mobile-Kit/ba-ai-builder/validate"
)

// validationDir is the state directory holding per-artifact reports.
const validationDir = "state_5_validation"

// reportPath returns the report file location for one validated artifact.
func reportPath(s *store.Store, runID string, kind store.Kind, iteration int) string {
	name := fmt.Sprintf("%s_iter%d_report.yaml", kind, iteration)
	return filepath.Join(s.RunDir(runID), validationDir, name)
}

// SaveValidation writes one machine-readable validation report.
func SaveValidation(s *store.Store, rep validate.Report) error {
	path := reportPath(s, rep.RunID, rep.Kind, rep.Iteration)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("save validation report: %w", err)
	}
	data, err := yaml.Marshal(rep)
	if err != nil {
		return fmt.Errorf("save validation report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("save validation report: %w", err)
	}
	return nil
}

// LoadValidation reads the stored report for one artifact version.
// Returns store.ErrNotFound if the artifact was never validated.
func LoadValidation(s *store.Store, runID string, kind store.Kind, iteration int) (*validate.Report, error) {
	data, err := os.ReadFile(reportPath(s, runID, kind, iteration))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("load validation report: %w", err)
	}
	var rep validate.Report
	if err := yaml.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("load validation report: %w", err)
	}
	return &rep, nil
}
