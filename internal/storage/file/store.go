// Package file persists each aggregate as one JSON document with atomic
// replace semantics: write to a temp file, fsync, then rename over the
// target. A concurrent reader or a crash mid-write never observes partial
// state.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"ramp-guard/internal/domain"
	"ramp-guard/internal/storage"
)

const (
	rampStateFile     = "ramp_state.json"
	drawdownStateFile = "drawdown_state.json"
	suiteResultFile   = "suite_result.json"
)

// writeAtomic marshals v and atomically replaces path with the result.
func writeAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// readJSON unmarshals path into out, mapping a missing file to ErrNotFound.
// A present-but-unreadable file is a read failure, never a silent default.
func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// RampStateStore is a file-backed implementation of storage.RampStateStore.
type RampStateStore struct {
	path string
}

// NewRampStateStore creates a ramp state store rooted at dir.
func NewRampStateStore(dir string) *RampStateStore {
	return &RampStateStore{path: filepath.Join(dir, rampStateFile)}
}

// Load retrieves the persisted state. Returns ErrNotFound on first start.
func (s *RampStateStore) Load(_ context.Context) (*domain.RampState, error) {
	var st domain.RampState
	if err := readJSON(s.path, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Save atomically replaces the persisted state.
func (s *RampStateStore) Save(_ context.Context, st *domain.RampState) error {
	if st == nil {
		return storage.ErrInvalidInput
	}
	return writeAtomic(s.path, st)
}

var _ storage.RampStateStore = (*RampStateStore)(nil)

// DrawdownStateStore is a file-backed implementation of storage.DrawdownStateStore.
type DrawdownStateStore struct {
	path string
}

// NewDrawdownStateStore creates a drawdown state store rooted at dir.
func NewDrawdownStateStore(dir string) *DrawdownStateStore {
	return &DrawdownStateStore{path: filepath.Join(dir, drawdownStateFile)}
}

// Load retrieves the persisted state. Returns ErrNotFound on first start.
func (s *DrawdownStateStore) Load(_ context.Context) (*domain.DrawdownState, error) {
	var st domain.DrawdownState
	if err := readJSON(s.path, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Save atomically replaces the persisted state.
func (s *DrawdownStateStore) Save(_ context.Context, st *domain.DrawdownState) error {
	if st == nil {
		return storage.ErrInvalidInput
	}
	return writeAtomic(s.path, st)
}

var _ storage.DrawdownStateStore = (*DrawdownStateStore)(nil)

// SuiteResultStore is a file-backed implementation of storage.SuiteResultStore.
type SuiteResultStore struct {
	path string
}

// NewSuiteResultStore creates a suite result store rooted at dir.
func NewSuiteResultStore(dir string) *SuiteResultStore {
	return &SuiteResultStore{path: filepath.Join(dir, suiteResultFile)}
}

// LoadLatest retrieves the last persisted suite result.
func (s *SuiteResultStore) LoadLatest(_ context.Context) (*domain.SuiteResult, error) {
	var r domain.SuiteResult
	if err := readJSON(s.path, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// SaveLatest atomically replaces the latest suite result.
func (s *SuiteResultStore) SaveLatest(_ context.Context, r *domain.SuiteResult) error {
	if r == nil {
		return storage.ErrInvalidInput
	}
	return writeAtomic(s.path, r)
}

var _ storage.SuiteResultStore = (*SuiteResultStore)(nil)
