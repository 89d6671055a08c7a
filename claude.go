package builder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	llm "github.com/randalmurphal/llmkit/claude"

	"github.com/Open-Mobile-Kit/ba-ai-builder/config"
)

// Claude CLI errors
var (
	// ErrClaudeNotFound indicates the claude CLI binary was not found.
	ErrClaudeNotFound = errors.New("claude CLI not found")

	// ErrUnknownProvider indicates an unsupported completion provider name.
	ErrUnknownProvider = errors.New("unknown completion provider")
)

// ClaudeCLI wraps the claude CLI binary as an llm.Client. Provider identity
// is fixed at construction time; pipeline code never branches on it.
type ClaudeCLI struct {
	binaryPath string
	model      string
}

// ClaudeConfig configures the Claude CLI client.
type ClaudeConfig struct {
	BinaryPath string // Path to claude binary (default: "claude")
	Model      string // Model override (empty = claude default)
}

// NewClaudeCLI creates a Claude CLI client.
// Returns ErrClaudeNotFound if the claude binary is not installed.
func NewClaudeCLI(cfg ClaudeConfig) (*ClaudeCLI, error) {
	binaryPath := cfg.BinaryPath
	if binaryPath == "" {
		binaryPath = "claude"
	}
	if _, err := exec.LookPath(binaryPath); err != nil {
		return nil, ErrClaudeNotFound
	}

	return &ClaudeCLI{
		binaryPath: binaryPath,
		model:      cfg.Model,
	}, nil
}

// claudeOutput is the JSON envelope claude prints with --output-format json.
type claudeOutput struct {
	Result string `json:"result"`
	Usage  struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	IsError bool `json:"is_error"`
}

// Complete implements llm.Client by invoking the claude CLI once.
// Timeouts arrive through ctx; an expired deadline kills the process and
// surfaces as a transient failure upstream.
func (c *ClaudeCLI) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return c.run(ctx, req, CompletionOptions{})
}

// CompleteWithOptions implements OptionsClient. The per-call model overrides
// the constructor default, and MaxTokens is passed through the CLI's output
// budget variable. The claude CLI exposes no temperature control, so
// Temperature is accepted and ignored here.
func (c *ClaudeCLI) CompleteWithOptions(ctx context.Context, req llm.CompletionRequest, opts CompletionOptions) (*llm.CompletionResponse, error) {
	return c.run(ctx, req, opts)
}

func (c *ClaudeCLI) run(ctx context.Context, req llm.CompletionRequest, opts CompletionOptions) (*llm.CompletionResponse, error) {
	var prompt strings.Builder
	for _, msg := range req.Messages {
		prompt.WriteString(msg.Content)
		prompt.WriteString("\n")
	}

	args := []string{"-p", prompt.String(), "--output-format", "json"}
	if req.SystemPrompt != "" {
		args = append(args, "--system-prompt", req.SystemPrompt)
	}
	model := c.model
	if opts.Model != "" {
		model = opts.Model
	}
	if model != "" {
		args = append(args, "--model", model)
	}

	cmd := exec.CommandContext(ctx, c.binaryPath, args...)
	if opts.MaxTokens > 0 {
		cmd.Env = append(os.Environ(), fmt.Sprintf("CLAUDE_CODE_MAX_OUTPUT_TOKENS=%d", opts.MaxTokens))
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "api key") || strings.Contains(lower, "unauthorized") {
			return nil, fmt.Errorf("%w: %s", ErrCompletionFatal, msg)
		}
		return nil, fmt.Errorf("%w: claude CLI: %s", ErrCompletionTransient, msg)
	}

	var out claudeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		// Plain-text output from older CLI versions.
		return &llm.CompletionResponse{Content: stdout.String()}, nil
	}
	if out.IsError {
		return nil, fmt.Errorf("%w: claude CLI reported an error: %s", ErrCompletionTransient, out.Result)
	}

	resp := &llm.CompletionResponse{Content: out.Result}
	resp.Usage.InputTokens = out.Usage.InputTokens
	resp.Usage.OutputTokens = out.Usage.OutputTokens
	return resp, nil
}

// NewCompletionClient constructs the completion client for the configured
// provider. This is the only place provider identity is examined.
func NewCompletionClient(cfg config.LLM) (llm.Client, error) {
	switch cfg.Provider {
	case "", "anthropic", "claude":
		return NewClaudeCLI(ClaudeConfig{Model: cfg.Model})
	case "mock":
		return llm.NewMockClient("mock completion"), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
