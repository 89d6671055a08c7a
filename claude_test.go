package builder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	llm "github.com/randalmurphal/llmkit/claude"

	"github.com/Open-Mobile-Kit/ba-ai-builder/config"
)

// fakeClaude writes an executable script that stands in for the claude
// binary and returns its path.
func fakeClaude(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claude")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("write fake claude: %v", err)
	}
	return path
}

// =============================================================================
// Construction Tests
// =============================================================================

func TestNewClaudeCLI_NotFound(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	_, err := NewClaudeCLI(ClaudeConfig{})
	if !errors.Is(err, ErrClaudeNotFound) {
		t.Errorf("NewClaudeCLI() error = %v, want ErrClaudeNotFound", err)
	}
}

func TestNewCompletionClient(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	tests := []struct {
		name     string
		provider string
		wantErr  error
	}{
		{name: "anthropic without binary", provider: "anthropic", wantErr: ErrClaudeNotFound},
		{name: "default without binary", provider: "", wantErr: ErrClaudeNotFound},
		{name: "mock", provider: "mock"},
		{name: "unknown", provider: "gpt-fax", wantErr: ErrUnknownProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewCompletionClient(config.LLM{Provider: tt.provider})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewCompletionClient() error = %v", err)
			}
			if client == nil {
				t.Fatal("client = nil, want client")
			}
		})
	}
}

// =============================================================================
// Complete Tests
// =============================================================================

func TestClaudeCLI_Complete(t *testing.T) {
	bin := fakeClaude(t, `echo '{"result":"generated text","usage":{"input_tokens":12,"output_tokens":34},"is_error":false}'`)

	client, err := NewClaudeCLI(ClaudeConfig{BinaryPath: bin})
	if err != nil {
		t.Fatalf("NewClaudeCLI() error = %v", err)
	}

	resp, err := client.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "prompt"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "generated text" {
		t.Errorf("Content = %q, want %q", resp.Content, "generated text")
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 34 {
		t.Errorf("Usage = %d/%d, want 12/34", resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}
}

func TestClaudeCLI_Complete_PlainTextFallback(t *testing.T) {
	bin := fakeClaude(t, `echo 'not json at all'`)

	client, err := NewClaudeCLI(ClaudeConfig{BinaryPath: bin})
	if err != nil {
		t.Fatalf("NewClaudeCLI() error = %v", err)
	}

	resp, err := client.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "prompt"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !strings.Contains(resp.Content, "not json at all") {
		t.Errorf("Content = %q, want raw output", resp.Content)
	}
}

func TestClaudeCLI_Complete_ReportedError(t *testing.T) {
	bin := fakeClaude(t, `echo '{"result":"overloaded","is_error":true}'`)

	client, err := NewClaudeCLI(ClaudeConfig{BinaryPath: bin})
	if err != nil {
		t.Fatalf("NewClaudeCLI() error = %v", err)
	}

	_, err = client.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "prompt"}},
	})
	if !errors.Is(err, ErrCompletionTransient) {
		t.Errorf("Complete() error = %v, want ErrCompletionTransient", err)
	}
}

func TestClaudeCLI_Complete_ExitFailure(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		wantErr error
	}{
		{
			name:    "auth failure is fatal",
			script:  `echo 'invalid API key' >&2; exit 1`,
			wantErr: ErrCompletionFatal,
		},
		{
			name:    "other failure is transient",
			script:  `echo 'connection reset' >&2; exit 1`,
			wantErr: ErrCompletionTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bin := fakeClaude(t, tt.script)
			client, err := NewClaudeCLI(ClaudeConfig{BinaryPath: bin})
			if err != nil {
				t.Fatalf("NewClaudeCLI() error = %v", err)
			}

			_, err = client.Complete(context.Background(), llm.CompletionRequest{
				Messages: []llm.Message{{Role: "user", Content: "prompt"}},
			})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Complete() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// The fake script echoes its own invocation back: the resolved model from
// the --model flag and the output budget from the environment.
func TestClaudeCLI_CompleteWithOptions(t *testing.T) {
	script := `model=""
while [ $# -gt 0 ]; do
  if [ "$1" = "--model" ]; then model="$2"; shift; fi
  shift
done
echo "{\"result\":\"model=$model tokens=$CLAUDE_CODE_MAX_OUTPUT_TOKENS\",\"is_error\":false}"`
	bin := fakeClaude(t, script)

	client, err := NewClaudeCLI(ClaudeConfig{BinaryPath: bin, Model: "claude-sonnet-4"})
	if err != nil {
		t.Fatalf("NewClaudeCLI() error = %v", err)
	}

	resp, err := client.CompleteWithOptions(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "prompt"}},
	}, CompletionOptions{Model: "claude-opus-4", MaxTokens: 4096})
	if err != nil {
		t.Fatalf("CompleteWithOptions() error = %v", err)
	}
	if !strings.Contains(resp.Content, "model=claude-opus-4") {
		t.Errorf("Content = %q, want per-call model to win over the default", resp.Content)
	}
	if !strings.Contains(resp.Content, "tokens=4096") {
		t.Errorf("Content = %q, want the output budget exported", resp.Content)
	}
}

// Without per-call options the constructor default model is used.
func TestClaudeCLI_CompleteWithOptions_DefaultModel(t *testing.T) {
	script := `model=""
while [ $# -gt 0 ]; do
  if [ "$1" = "--model" ]; then model="$2"; shift; fi
  shift
done
echo "{\"result\":\"model=$model\",\"is_error\":false}"`
	bin := fakeClaude(t, script)

	client, err := NewClaudeCLI(ClaudeConfig{BinaryPath: bin, Model: "claude-sonnet-4"})
	if err != nil {
		t.Fatalf("NewClaudeCLI() error = %v", err)
	}

	resp, err := client.CompleteWithOptions(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "prompt"}},
	}, CompletionOptions{})
	if err != nil {
		t.Fatalf("CompleteWithOptions() error = %v", err)
	}
	if !strings.Contains(resp.Content, "model=claude-sonnet-4") {
		t.Errorf("Content = %q, want constructor default model", resp.Content)
	}
}

func TestClaudeCLI_Complete_Cancelled(t *testing.T) {
	bin := fakeClaude(t, `sleep 10`)

	client, err := NewClaudeCLI(ClaudeConfig{BinaryPath: bin})
	if err != nil {
		t.Fatalf("NewClaudeCLI() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "prompt"}},
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Complete() error = %v, want context.Canceled", err)
	}
}
