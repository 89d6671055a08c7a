package builder

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"
)

// embeddedPrompts holds the default stage prompts shipped with the binary.
//
//go:embed prompts/*.txt
var embeddedPrompts embed.FS

// PromptLoader loads and renders prompt templates. Safe for concurrent use:
// stages drafting in parallel share one loader.
type PromptLoader struct {
	dirs []string // Directories to search, first wins

	mu    sync.Mutex
	cache map[string]*template.Template // Cached parsed templates
}

// NewPromptLoader creates a prompt loader for the given project directory.
// It searches for prompts in the following order:
// 1. .ba-builder/prompts/ in project
// 2. prompts/ in project
// 3. Embedded prompts in the binary
func NewPromptLoader(projectDir string) *PromptLoader {
	return &PromptLoader{
		dirs: []string{
			filepath.Join(projectDir, ".ba-builder", "prompts"),
			filepath.Join(projectDir, "prompts"),
		},
		cache: make(map[string]*template.Template),
	}
}

// AddSearchDir adds a directory to search for prompts, ahead of existing ones.
func (l *PromptLoader) AddSearchDir(dir string) {
	l.dirs = append([]string{dir}, l.dirs...)
}

// Load loads a prompt by name without variable substitution.
func (l *PromptLoader) Load(name string) (string, error) {
	return l.LoadWithVars(name, nil)
}

// LoadWithVars loads and renders a prompt with variable substitution.
// A template referencing an unsupplied variable fails with
// ErrMissingVariable; missing variables are never silently ignored.
func (l *PromptLoader) LoadWithVars(name string, vars map[string]any) (string, error) {
	tmpl, err := l.getTemplate(name)
	if err != nil {
		return "", err
	}
	if vars == nil {
		vars = map[string]any{}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("render prompt %s: %w: %v", name, ErrMissingVariable, err)
	}
	return buf.String(), nil
}

// Exists checks if a prompt exists.
func (l *PromptLoader) Exists(name string) bool {
	_, err := l.loadRaw(name)
	return err == nil
}

// getTemplate parses and caches the template for a prompt name.
func (l *PromptLoader) getTemplate(name string) (*template.Template, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if tmpl, ok := l.cache[name]; ok {
		return tmpl, nil
	}

	raw, err := l.loadRaw(name)
	if err != nil {
		return nil, err
	}

	tmpl, err := template.New(name).Option("missingkey=error").Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse prompt %s: %w", name, err)
	}

	l.cache[name] = tmpl
	return tmpl, nil
}

// loadRaw finds the raw prompt text, search dirs first, embedded last.
func (l *PromptLoader) loadRaw(name string) (string, error) {
	filename := name + ".txt"

	for _, dir := range l.dirs {
		path := filepath.Join(dir, filename)
		if data, err := os.ReadFile(path); err == nil {
			return string(data), nil
		}
	}

	if data, err := embeddedPrompts.ReadFile("prompts/" + filename); err == nil {
		return string(data), nil
	}

	return "", fmt.Errorf("%w: %s", ErrPromptNotFound, name)
}

// List returns all available prompt names.
func (l *PromptLoader) List() ([]string, error) {
	names := make(map[string]bool)

	for _, dir := range l.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".txt") {
				names[strings.TrimSuffix(entry.Name(), ".txt")] = true
			}
		}
	}

	entries, err := embeddedPrompts.ReadDir("prompts")
	if err == nil {
		for _, entry := range entries {
			if strings.HasSuffix(entry.Name(), ".txt") {
				names[strings.TrimSuffix(entry.Name(), ".txt")] = true
			}
		}
	}

	var list []string
	for name := range names {
		list = append(list, name)
	}
	sort.Strings(list)
	return list, nil
}
