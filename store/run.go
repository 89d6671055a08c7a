package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"gopkg.in/yaml.v3"
)

// runIDAlphabet keeps run ids filesystem- and URL-safe.
const runIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewRunID generates a short unique run identifier.
func NewRunID() string {
	id, err := gonanoid.Generate(runIDAlphabet, 12)
	if err != nil {
		// nanoid only fails if the entropy source does; fall back to a
		// timestamp-derived id rather than aborting the build.
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return id
}

// Run identifies one end-to-end pipeline execution. Immutable once created.
type Run struct {
	ID           string            `yaml:"id"`
	Version      string            `yaml:"version"`
	Requirements string            `yaml:"requirements"`
	Context      map[string]string `yaml:"context,omitempty"`
	CreatedAt    time.Time         `yaml:"createdAt"`
}

// runMetaFile is the per-run metadata filename.
const runMetaFile = "run.yaml"

// CreateRun registers a run and creates its directory structure. Registering
// the same run id twice is an error.
func (s *Store) CreateRun(run Run) error {
	if run.ID == "" {
		return &StorageError{Op: "create-run", Path: s.baseDir, Err: fmt.Errorf("empty run id")}
	}

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	runDir := s.RunDir(run.ID)
	metaPath := filepath.Join(runDir, runMetaFile)
	if _, err := os.Stat(metaPath); err == nil {
		return &StorageError{Op: "create-run", Path: runDir, Err: fmt.Errorf("run %s already exists", run.ID)}
	}

	dirs := []string{runDir, filepath.Join(runDir, "logs")}
	seen := map[string]bool{}
	for _, kind := range AllKinds {
		dir := filepath.Join(runDir, kind.StateDir())
		if !seen[dir] {
			dirs = append(dirs, dir)
			seen[dir] = true
		}
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &StorageError{Op: "create-run", Path: dir, Err: err}
		}
	}

	data, err := yaml.Marshal(run)
	if err != nil {
		return &StorageError{Op: "create-run", Path: metaPath, Err: err}
	}
	if err := atomicWrite(metaPath, data); err != nil {
		return &StorageError{Op: "create-run", Path: metaPath, Err: err}
	}
	return nil
}

// LoadRun reads the metadata for a registered run.
// Returns ErrRunNotFound if the run was never created.
func (s *Store) LoadRun(runID string) (*Run, error) {
	metaPath := filepath.Join(s.RunDir(runID), runMetaFile)
	data, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRunNotFound
		}
		return nil, &StorageError{Op: "load-run", Path: metaPath, Err: err}
	}

	var run Run
	if err := yaml.Unmarshal(data, &run); err != nil {
		return nil, &StorageError{Op: "load-run", Path: metaPath, Err: err}
	}
	return &run, nil
}

// ListRuns returns every registered run, newest first.
func (s *Store) ListRuns() ([]Run, error) {
	runsDir := filepath.Join(s.baseDir, "runs")
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &StorageError{Op: "list-runs", Path: runsDir, Err: err}
	}

	var runs []Run
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		run, err := s.LoadRun(entry.Name())
		if err != nil {
			continue // skip runs with unreadable metadata
		}
		runs = append(runs, *run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}
