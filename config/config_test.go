package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("Provider = %q", cfg.LLM.Provider)
	}
	if cfg.Validation.Threshold != 0.8 {
		t.Errorf("Threshold = %v", cfg.Validation.Threshold)
	}
	if !cfg.Validation.Enabled {
		t.Error("validation should be enabled by default")
	}
	if cfg.Refinement.Budget != 3 {
		t.Errorf("Budget = %d", cfg.Refinement.Budget)
	}
	if cfg.Output.BaseDir != ".ba-builder" {
		t.Errorf("BaseDir = %q", cfg.Output.BaseDir)
	}
	if cfg.Retrieval.Enabled {
		t.Error("retrieval should be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
llm:
  provider: mock
  temperature: 0.2
  timeout: 30s
validation:
  threshold: 0.9
refinement:
  budget: 5
output:
  version: v2
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LLM.Provider != "mock" {
		t.Errorf("Provider = %q", cfg.LLM.Provider)
	}
	if cfg.LLM.Temperature != 0.2 {
		t.Errorf("Temperature = %v", cfg.LLM.Temperature)
	}
	if cfg.LLM.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v", cfg.LLM.Timeout)
	}
	if cfg.Validation.Threshold != 0.9 {
		t.Errorf("Threshold = %v", cfg.Validation.Threshold)
	}
	if cfg.Refinement.Budget != 5 {
		t.Errorf("Budget = %d", cfg.Refinement.Budget)
	}
	// Untouched fields keep their defaults.
	if cfg.LLM.MaxTokens != 4096 {
		t.Errorf("MaxTokens = %d, want default", cfg.LLM.MaxTokens)
	}
	if cfg.Output.BaseDir != ".ba-builder" {
		t.Errorf("BaseDir = %q, want default", cfg.Output.BaseDir)
	}
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("llm:\n  modle: opus\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("misspelled key should be rejected")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing file should be an error")
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("Provider = %q, want default", cfg.LLM.Provider)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvPrefix+"LLM_PROVIDER", "mock")
	t.Setenv(EnvPrefix+"VALIDATION_THRESHOLD", "0.5")
	t.Setenv(EnvPrefix+"REFINEMENT_BUDGET", "2")
	t.Setenv(EnvPrefix+"RETRIEVAL_ENABLED", "true")
	t.Setenv(EnvPrefix+"LLM_TIMEOUT", "45s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LLM.Provider != "mock" {
		t.Errorf("Provider = %q", cfg.LLM.Provider)
	}
	if cfg.Validation.Threshold != 0.5 {
		t.Errorf("Threshold = %v", cfg.Validation.Threshold)
	}
	if cfg.Refinement.Budget != 2 {
		t.Errorf("Budget = %d", cfg.Refinement.Budget)
	}
	if !cfg.Retrieval.Enabled {
		t.Error("Retrieval.Enabled should be true")
	}
	if cfg.LLM.Timeout != 45*time.Second {
		t.Errorf("Timeout = %v", cfg.LLM.Timeout)
	}
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("refinement:\n  budget: 5\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv(EnvPrefix+"REFINEMENT_BUDGET", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Refinement.Budget != 7 {
		t.Errorf("Budget = %d, want env value 7", cfg.Refinement.Budget)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"threshold too high", func(c *Config) { c.Validation.Threshold = 1.5 }, "threshold"},
		{"threshold negative", func(c *Config) { c.Validation.Threshold = -0.1 }, "threshold"},
		{"zero budget", func(c *Config) { c.Refinement.Budget = 0 }, "budget"},
		{"zero retries", func(c *Config) { c.LLM.MaxRetries = 0 }, "maxRetries"},
		{"zero timeout", func(c *Config) { c.LLM.Timeout = 0 }, "timeout"},
		{"negative top-k", func(c *Config) { c.Retrieval.TopK = -1 }, "topK"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate should fail")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %s", err, tt.want)
			}
		})
	}
}
