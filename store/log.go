package store

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Transition is one append-only history record. The log is the durable
// account of everything a run produced and survives process restarts.
type Transition struct {
	Timestamp time.Time `json:"timestamp"`
	State     string    `json:"state"`
	Iteration int       `json:"iteration"`
	File      string    `json:"file,omitempty"`
	Digest    string    `json:"digest,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// StateFailed marks a failure record on the transition log. The Message
// carries the failing stage and reason.
const StateFailed = "failed"

// LogFailure appends a failure record for a run, so the reason a run
// stopped survives the process. Stage may be empty when the failure
// happened outside any single stage.
func (s *Store) LogFailure(runID string, stage Kind, reason string) error {
	msg := reason
	if stage != "" {
		msg = string(stage) + ": " + reason
	}
	return s.appendTransition(runID, Transition{
		Timestamp: time.Now().UTC(),
		State:     StateFailed,
		Message:   msg,
	})
}

// logPath returns the transition log location for a run.
func (s *Store) logPath(runID string) string {
	return filepath.Join(s.RunDir(runID), "logs", "history.jsonl")
}

// appendTransition appends one record to the run's transition log.
func (s *Store) appendTransition(runID string, t Transition) error {
	path := s.logPath(runID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &StorageError{Op: "log-append", Path: path, Err: err}
	}

	line, err := json.Marshal(t)
	if err != nil {
		return &StorageError{Op: "log-append", Path: path, Err: err}
	}
	line = append(line, '\n')

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &StorageError{Op: "log-append", Path: path, Err: err}
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return &StorageError{Op: "log-append", Path: path, Err: err}
	}
	if err := f.Sync(); err != nil {
		return &StorageError{Op: "log-append", Path: path, Err: err}
	}
	return nil
}

// Transitions replays the run's transition log, oldest first.
// A run with no writes yet has an empty log.
func (s *Store) Transitions(runID string) ([]Transition, error) {
	if _, err := s.LoadRun(runID); err != nil {
		return nil, err
	}

	path := s.logPath(runID)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &StorageError{Op: "log-read", Path: path, Err: err}
	}
	defer f.Close()

	var transitions []Transition
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var t Transition
		if err := json.Unmarshal(line, &t); err != nil {
			continue // tolerate a torn tail line from a crash
		}
		transitions = append(transitions, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, &StorageError{Op: "log-read", Path: path, Err: err}
	}
	return transitions, nil
}
