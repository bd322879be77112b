// Package state persists the flow state snapshot.
//
// The snapshot is a single JSON object at a fixed path. Every write replaces
// the whole file (temp file + rename), so a reader sees either the previous
// record or the new one, never a partial write. It is a snapshot, not a log.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/devicelab-dev/bizflow-runner/pkg/core"
)

// DefaultPath is the state file location relative to the workspace root.
const DefaultPath = ".github/tmp/full-flow-state.json"

// FlowState is the persisted status of the orchestration.
type FlowState struct {
	Status      core.FlowStatus `json:"status"`
	Step        string          `json:"step"`
	Command     string          `json:"command,omitempty"`
	Attempt     int             `json:"attempt,omitempty"`     // Retry-enabled steps only
	MaxAttempts int             `json:"maxAttempts,omitempty"` // Retry-enabled steps only
	PONumber    string          `json:"poNumber,omitempty"`
	RunID       string          `json:"runId,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Store writes FlowState snapshots to a single file.
type Store struct {
	path string
}

// NewStore creates a Store for the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the state file path.
func (s *Store) Path() string {
	return s.path
}

// Write replaces the persisted record with st.
func (s *Store) Write(st FlowState) error {
	if err := atomicWriteJSON(s.path, st); err != nil {
		return core.ErrStateWrite.WithCause(err).WithDetails(map[string]interface{}{"path": s.path})
	}
	return nil
}

// Read loads the persisted record.
func (s *Store) Read() (*FlowState, error) {
	data, err := os.ReadFile(s.path) //#nosec G304 -- configured state path
	if err != nil {
		return nil, err
	}

	var st FlowState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return &st, nil
}

// atomicWriteJSON marshals v and renames a temp file over path.
func atomicWriteJSON(path string, v interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
