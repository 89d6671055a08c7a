package builder

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestPromptLoader_EmbeddedPrompts(t *testing.T) {
	loader := NewPromptLoader(t.TempDir())

	for _, name := range []string{"analysis", "architecture", "features", "brd", "srs", "refine"} {
		if !loader.Exists(name) {
			t.Errorf("embedded prompt %s should exist", name)
		}
	}
}

func TestPromptLoader_LoadWithVars(t *testing.T) {
	loader := NewPromptLoader(t.TempDir())

	out, err := loader.LoadWithVars("analysis", map[string]any{
		"Requirements": "Build a task tracker",
	})
	if err != nil {
		t.Fatalf("LoadWithVars: %v", err)
	}
	if !strings.Contains(out, "Build a task tracker") {
		t.Errorf("rendered prompt missing variable value:\n%s", out)
	}
	if strings.Contains(out, "{{") {
		t.Errorf("rendered prompt has unexpanded template syntax:\n%s", out)
	}
}

func TestPromptLoader_MissingVariable(t *testing.T) {
	loader := NewPromptLoader(t.TempDir())

	_, err := loader.LoadWithVars("analysis", map[string]any{})
	if !errors.Is(err, ErrMissingVariable) {
		t.Errorf("err = %v, want ErrMissingVariable", err)
	}
}

// Concurrent document drafting loads templates through one shared loader;
// first-use cache fills from several goroutines must be safe. Run with
// -race to catch regressions.
func TestPromptLoader_ConcurrentLoads(t *testing.T) {
	loader := NewPromptLoader(t.TempDir())

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for range 10 {
		for _, name := range []string{"brd", "srs"} {
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				if _, err := loader.Load(name); err != nil {
					errs <- err
				}
			}(name)
		}
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Load: %v", err)
	}
}

func TestPromptLoader_NotFound(t *testing.T) {
	loader := NewPromptLoader(t.TempDir())

	_, err := loader.Load("no-such-prompt")
	if !errors.Is(err, ErrPromptNotFound) {
		t.Errorf("err = %v, want ErrPromptNotFound", err)
	}
}

// Project-local prompts override the embedded defaults.
func TestPromptLoader_ProjectOverride(t *testing.T) {
	dir := t.TempDir()
	promptDir := filepath.Join(dir, ".ba-builder", "prompts")
	if err := os.MkdirAll(promptDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	custom := "Custom analysis prompt for {{.Requirements}}"
	if err := os.WriteFile(filepath.Join(promptDir, "analysis.txt"), []byte(custom), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	loader := NewPromptLoader(dir)
	out, err := loader.LoadWithVars("analysis", map[string]any{"Requirements": "x"})
	if err != nil {
		t.Fatalf("LoadWithVars: %v", err)
	}
	if !strings.HasPrefix(out, "Custom analysis prompt") {
		t.Errorf("project prompt should win: %q", out)
	}
}

func TestPromptLoader_AddSearchDir(t *testing.T) {
	extra := t.TempDir()
	if err := os.WriteFile(filepath.Join(extra, "special.txt"), []byte("special prompt"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	loader := NewPromptLoader(t.TempDir())
	loader.AddSearchDir(extra)

	out, err := loader.Load("special")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out != "special prompt" {
		t.Errorf("out = %q", out)
	}
}

func TestPromptLoader_List(t *testing.T) {
	loader := NewPromptLoader(t.TempDir())

	list, err := loader.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	found := map[string]bool{}
	for _, name := range list {
		found[name] = true
	}
	for _, want := range []string{"analysis", "brd", "srs"} {
		if !found[want] {
			t.Errorf("List missing %s: %v", want, list)
		}
	}
	if !sortedStrings(list) {
		t.Errorf("List should be sorted: %v", list)
	}
}

func sortedStrings(list []string) bool {
	for i := 1; i < len(list); i++ {
		if list[i] < list[i-1] {
			return false
		}
	}
	return true
}
