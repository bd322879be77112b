// Package runtimedata reads and writes the runtime handoff file shared by
// independently invoked flow steps (PO number, supplier, GRN id, ...).
package runtimedata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultPath is the runtime data location relative to the workspace root.
const DefaultPath = "common/test-data/runtime/runtimeData.json"

// Well-known keys written by the business steps.
const (
	KeyPONumber     = "poNumber"
	KeySupplier     = "supplier"
	KeyRMName       = "rmName"
	KeyQuantity     = "quantity"
	KeyGRNID        = "grnId"
	KeyGRNStartTime = "grnStartTime"
)

// Data is the free-form runtime record.
type Data map[string]interface{}

// String returns the value at key formatted as a string, or "" if absent.
func (d Data) String(key string) string {
	v, ok := d[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers; keep integers free of exponent/decimal noise
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Store accesses the runtime data file.
type Store struct {
	path string
}

// NewStore creates a Store for the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the runtime data file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the runtime record. A missing file yields empty Data.
func (s *Store) Load() (Data, error) {
	raw, err := os.ReadFile(s.path) //#nosec G304 -- configured runtime path
	if errors.Is(err, os.ErrNotExist) {
		return Data{}, nil
	}
	if err != nil {
		return nil, err
	}

	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parse runtime data %s: %w", s.path, err)
	}
	if d == nil {
		d = Data{}
	}
	return d, nil
}

// Save replaces the runtime record.
func (s *Store) Save(d Data) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o644)
}

// Get returns a single key as a string.
func (s *Store) Get(key string) (string, error) {
	d, err := s.Load()
	if err != nil {
		return "", err
	}
	return d.String(key), nil
}

// Clear removes the runtime data file. Removing a missing file is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
