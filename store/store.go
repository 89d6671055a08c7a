package store

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"
)

// Ref points at a source artifact an output was derived from.
type Ref struct {
	Kind      Kind `yaml:"kind" json:"kind"`
	Iteration int  `yaml:"iteration" json:"iteration"`
}

// Artifact is one immutable, versioned stage output.
type Artifact struct {
	RunID     string    `yaml:"runId" json:"runId"`
	Kind      Kind      `yaml:"kind" json:"kind"`
	Iteration int       `yaml:"iteration" json:"iteration"`
	Content   string    `yaml:"-" json:"-"`
	Sources   []Ref     `yaml:"sources,omitempty" json:"sources,omitempty"`
	Digest    string    `yaml:"digest" json:"digest"`
	CreatedAt time.Time `yaml:"createdAt" json:"createdAt"`
	Path      string    `yaml:"-" json:"-"`
}

// Config holds configuration for the artifact store.
type Config struct {
	BaseDir string // Base directory for storage (default: ".ba-builder")
}

// Store manages on-disk artifacts for build runs.
type Store struct {
	baseDir string

	mu    sync.Mutex             // guards locks
	locks map[string]*sync.Mutex // per (runID, kind) write lock
}

// New creates an artifact store with the given config.
func New(cfg Config) *Store {
	if cfg.BaseDir == "" {
		cfg.BaseDir = ".ba-builder"
	}
	return &Store{
		baseDir: cfg.BaseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// BaseDir returns the store's base directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// RunDir returns the directory for a run.
func (s *Store) RunDir(runID string) string {
	return filepath.Join(s.baseDir, "runs", runID)
}

// stageDir returns the state directory for a kind within a run.
func (s *Store) stageDir(runID string, kind Kind) string {
	return filepath.Join(s.RunDir(runID), kind.StateDir())
}

// artifactPath returns the content path for one artifact version.
func (s *Store) artifactPath(runID string, kind Kind, iteration int) string {
	name := fmt.Sprintf("%s_iter%d%s", kind, iteration, kind.Extension())
	return filepath.Join(s.stageDir(runID, kind), name)
}

// metaPath returns the metadata sidecar path for one artifact version.
func (s *Store) metaPath(runID string, kind Kind, iteration int) string {
	name := fmt.Sprintf("%s_iter%d.meta.yaml", kind, iteration)
	return filepath.Join(s.stageDir(runID, kind), name)
}

// keyLock returns the write lock for a (runID, kind) key.
// Only one put may be in flight per key at a time.
func (s *Store) keyLock(runID string, kind Kind) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := runID + "/" + string(kind)
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

// digest computes the content digest used for idempotence checks.
func digest(content string) string {
	sum := blake2b.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Put writes one artifact version. The write is atomic: the content lands
// under a temporary name and is renamed into place, so concurrent readers
// see either the prior latest or the new one.
//
// Putting identical content at an existing (kind, iteration) key is a no-op
// returning the stored artifact; differing content at an existing key fails
// with ErrConflict. Unknown runs fail with ErrRunNotFound.
func (s *Store) Put(runID string, kind Kind, iteration int, content string, sources []Ref) (*Artifact, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if iteration < 0 {
		return nil, &StorageError{Op: "put", Path: s.RunDir(runID), Err: fmt.Errorf("negative iteration %d", iteration)}
	}
	if _, err := s.LoadRun(runID); err != nil {
		return nil, err
	}

	lock := s.keyLock(runID, kind)
	lock.Lock()
	defer lock.Unlock()

	contentPath := s.artifactPath(runID, kind, iteration)
	newDigest := digest(content)

	if existing, err := s.load(runID, kind, iteration); err == nil {
		if existing.Digest == newDigest {
			return existing, nil // idempotent replay, no log append
		}
		return nil, fmt.Errorf("%w: %s/%s iteration %d", ErrConflict, runID, kind, iteration)
	}

	art := &Artifact{
		RunID:     runID,
		Kind:      kind,
		Iteration: iteration,
		Content:   content,
		Sources:   sources,
		Digest:    newDigest,
		CreatedAt: time.Now().UTC(),
		Path:      contentPath,
	}

	if err := os.MkdirAll(filepath.Dir(contentPath), 0o755); err != nil {
		return nil, &StorageError{Op: "put", Path: contentPath, Err: err}
	}
	if err := atomicWrite(contentPath, []byte(content)); err != nil {
		return nil, &StorageError{Op: "put", Path: contentPath, Err: err}
	}

	meta, err := yaml.Marshal(art)
	if err != nil {
		return nil, &StorageError{Op: "put", Path: contentPath, Err: err}
	}
	if err := atomicWrite(s.metaPath(runID, kind, iteration), meta); err != nil {
		return nil, &StorageError{Op: "put", Path: s.metaPath(runID, kind, iteration), Err: err}
	}

	if err := s.appendTransition(runID, Transition{
		Timestamp: art.CreatedAt,
		State:     string(kind),
		Iteration: iteration,
		File:      contentPath,
		Digest:    newDigest,
	}); err != nil {
		return nil, err
	}

	return art, nil
}

// load reads one specific artifact version from disk.
func (s *Store) load(runID string, kind Kind, iteration int) (*Artifact, error) {
	contentPath := s.artifactPath(runID, kind, iteration)
	data, err := os.ReadFile(contentPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, &StorageError{Op: "get", Path: contentPath, Err: err}
	}

	art := &Artifact{
		RunID:     runID,
		Kind:      kind,
		Iteration: iteration,
		Content:   string(data),
		Digest:    digest(string(data)),
		Path:      contentPath,
	}

	// Sidecar carries sources and timestamps; a missing sidecar (crash
	// between content and meta writes) degrades to content-only metadata.
	if meta, err := os.ReadFile(s.metaPath(runID, kind, iteration)); err == nil {
		var stored Artifact
		if yaml.Unmarshal(meta, &stored) == nil {
			art.Sources = stored.Sources
			art.CreatedAt = stored.CreatedAt
			if stored.Digest != "" {
				art.Digest = stored.Digest
			}
		}
	}
	return art, nil
}

// Get reads one specific artifact version.
// Returns ErrNotFound if that iteration does not exist.
func (s *Store) Get(runID string, kind Kind, iteration int) (*Artifact, error) {
	if _, err := s.LoadRun(runID); err != nil {
		return nil, err
	}
	return s.load(runID, kind, iteration)
}

// Latest returns the highest-iteration artifact of a kind.
// Returns ErrNotFound if no artifact of that kind exists yet.
func (s *Store) Latest(runID string, kind Kind) (*Artifact, error) {
	iterations, err := s.iterations(runID, kind)
	if err != nil {
		return nil, err
	}
	if len(iterations) == 0 {
		return nil, ErrNotFound
	}
	return s.load(runID, kind, iterations[len(iterations)-1])
}

// History returns every stored iteration of a kind, oldest to newest.
func (s *Store) History(runID string, kind Kind) ([]*Artifact, error) {
	iterations, err := s.iterations(runID, kind)
	if err != nil {
		return nil, err
	}

	artifacts := make([]*Artifact, 0, len(iterations))
	for _, iter := range iterations {
		art, err := s.load(runID, kind, iter)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, art)
	}
	return artifacts, nil
}

// iterations lists the stored iteration numbers for a kind, ascending.
func (s *Store) iterations(runID string, kind Kind) ([]int, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if _, err := s.LoadRun(runID); err != nil {
		return nil, err
	}

	dir := s.stageDir(runID, kind)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &StorageError{Op: "history", Path: dir, Err: err}
	}

	var iterations []int
	prefix := string(kind) + "_iter"
	suffix := kind.Extension()
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || len(name) <= len(prefix)+len(suffix) {
			continue
		}
		var iter int
		if _, err := fmt.Sscanf(name, prefix+"%d"+suffix, &iter); err != nil {
			continue
		}
		if name != fmt.Sprintf("%s%d%s", prefix, iter, suffix) {
			continue // meta sidecars and strays
		}
		iterations = append(iterations, iter)
	}
	sort.Ints(iterations)
	return iterations, nil
}

// atomicWrite writes data to path via a temp file and rename.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
