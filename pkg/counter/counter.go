// Package counter persists the per-category integers used for collision-free
// identifier allocation.
//
// Stores are written only after an identifier has been accepted externally. They do
// not make read-then-commit atomic; concurrent runs sharing a category are not
// supported.
package counter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store reads and commits counters.
type Store interface {
	// Current returns the next unused value for category. ok is false when the
	// category has never been committed.
	Current(ctx context.Context, category string) (value int64, ok bool, err error)
	// Commit records next as the next unused value for category.
	Commit(ctx context.Context, category string, next int64) error
}

// Memory is an in-process Store.
type Memory struct {
	mu     sync.Mutex
	values map[string]int64
}

// NewMemory returns a store seeded with initial values.
func NewMemory(initial map[string]int64) *Memory {
	values := make(map[string]int64, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &Memory{values: values}
}

func (m *Memory) Current(_ context.Context, category string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[category]
	return v, ok, nil
}

func (m *Memory) Commit(_ context.Context, category string, next int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[category] = next
	return nil
}

// Snapshot returns a copy of every counter.
func (m *Memory) Snapshot() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// File is a Store backed by a JSON object of category to value.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile returns a store persisting to path. The file is created on first commit.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Current(_ context.Context, category string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return 0, false, err
	}
	v, ok := values[category]
	return v, ok, nil
}

func (f *File) Commit(_ context.Context, category string, next int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return err
	}
	values[category] = next

	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal counters: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0750); err != nil {
		return fmt.Errorf("failed to create counter directory: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write counters: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace counter file: %w", err)
	}
	return nil
}

func (f *File) load() (map[string]int64, error) {
	values := make(map[string]int64)
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read counter file: %w", err)
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse counter file %s: %w", f.path, err)
	}
	return values, nil
}
