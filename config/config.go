package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to key names for environment overrides.
// For example, llm.model maps to BA_BUILDER_LLM_MODEL.
const EnvPrefix = "BA_BUILDER_"

// LLM configures the completion backend.
type LLM struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"maxTokens"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"maxRetries"`
}

// Validation configures the document validator.
type Validation struct {
	Threshold float64 `yaml:"threshold"`
	Enabled   bool    `yaml:"enabled"`
}

// Refinement configures the refinement loop.
type Refinement struct {
	Budget int `yaml:"budget"`
}

// Retrieval configures the cross-run context index.
type Retrieval struct {
	Enabled bool `yaml:"enabled"`
	TopK    int  `yaml:"topK"`
}

// Output configures where run artifacts land.
type Output struct {
	BaseDir string `yaml:"baseDir"`
	Version string `yaml:"version"`
}

// Notify configures build event notifications.
type Notify struct {
	WebhookURL string `yaml:"webhookUrl"`
}

// Features configures feature-plan generation.
type Features struct {
	Detailed bool `yaml:"detailed"`
}

// Config is the full builder configuration.
type Config struct {
	LLM        LLM        `yaml:"llm"`
	Validation Validation `yaml:"validation"`
	Refinement Refinement `yaml:"refinement"`
	Retrieval  Retrieval  `yaml:"retrieval"`
	Output     Output     `yaml:"output"`
	Notify     Notify     `yaml:"notify"`
	Features   Features   `yaml:"features"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		LLM: LLM{
			Provider:    "anthropic",
			Model:       "",
			Temperature: 0.7,
			MaxTokens:   4096,
			Timeout:     2 * time.Minute,
			MaxRetries:  3,
		},
		Validation: Validation{
			Threshold: 0.8,
			Enabled:   true,
		},
		Refinement: Refinement{
			Budget: 3,
		},
		Retrieval: Retrieval{
			Enabled: false,
			TopK:    3,
		},
		Output: Output{
			BaseDir: ".ba-builder",
			Version: "v1",
		},
	}
}

// Load reads configuration from an optional YAML file and applies
// environment overrides on top of defaults. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c Config) Validate() error {
	if c.Validation.Threshold < 0 || c.Validation.Threshold > 1 {
		return fmt.Errorf("validation.threshold must be in [0,1], got %v", c.Validation.Threshold)
	}
	if c.Refinement.Budget < 1 {
		return fmt.Errorf("refinement.budget must be at least 1, got %d", c.Refinement.Budget)
	}
	if c.LLM.MaxRetries < 1 {
		return fmt.Errorf("llm.maxRetries must be at least 1, got %d", c.LLM.MaxRetries)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive, got %v", c.LLM.Timeout)
	}
	if c.Retrieval.TopK < 0 {
		return fmt.Errorf("retrieval.topK must not be negative, got %d", c.Retrieval.TopK)
	}
	return nil
}

// applyEnv overlays BA_BUILDER_* environment variables.
func applyEnv(cfg *Config) {
	setString(&cfg.LLM.Provider, "LLM_PROVIDER")
	setString(&cfg.LLM.Model, "LLM_MODEL")
	setFloat(&cfg.LLM.Temperature, "LLM_TEMPERATURE")
	setInt(&cfg.LLM.MaxTokens, "LLM_MAX_TOKENS")
	setDuration(&cfg.LLM.Timeout, "LLM_TIMEOUT")
	setInt(&cfg.LLM.MaxRetries, "LLM_MAX_RETRIES")
	setFloat(&cfg.Validation.Threshold, "VALIDATION_THRESHOLD")
	setBool(&cfg.Validation.Enabled, "VALIDATION_ENABLED")
	setInt(&cfg.Refinement.Budget, "REFINEMENT_BUDGET")
	setBool(&cfg.Retrieval.Enabled, "RETRIEVAL_ENABLED")
	setInt(&cfg.Retrieval.TopK, "RETRIEVAL_TOP_K")
	setString(&cfg.Output.BaseDir, "OUTPUT_BASE_DIR")
	setString(&cfg.Output.Version, "OUTPUT_VERSION")
	setString(&cfg.Notify.WebhookURL, "NOTIFY_WEBHOOK_URL")
	setBool(&cfg.Features.Detailed, "FEATURES_DETAILED")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
