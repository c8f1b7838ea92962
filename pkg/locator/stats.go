package locator

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// StrategyStats is the observed history of one strategy of one locator.
type StrategyStats struct {
	Kind     Kind      `json:"type"`
	Value    string    `json:"value"`
	Success  int       `json:"success"`
	Failure  int       `json:"failure"`
	LastUsed time.Time `json:"last_used"`
}

// Rate returns the smoothed success rate used for suggestions.
func (s StrategyStats) Rate() float64 {
	return float64(s.Success+1) / float64(s.Success+s.Failure+2)
}

// StatsStore records strategy outcomes.
//
// RecordOutcome errors are reported to the caller for logging only; a store that
// cannot persist must never cause a resolution to fail.
type StatsStore interface {
	RecordOutcome(locator string, s Strategy, success bool, at time.Time) error
	Stats(locator string) []StrategyStats
	Locators() []string
}

// MemoryStats keeps outcomes in memory.
type MemoryStats struct {
	mu   sync.Mutex
	data map[string]map[string]*StrategyStats
}

// NewMemoryStats returns an empty in-memory store.
func NewMemoryStats() *MemoryStats {
	return &MemoryStats{data: make(map[string]map[string]*StrategyStats)}
}

func (m *MemoryStats) RecordOutcome(locator string, s Strategy, success bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(locator, s, success, at)
	return nil
}

func (m *MemoryStats) record(locator string, s Strategy, success bool, at time.Time) {
	byKey, ok := m.data[locator]
	if !ok {
		byKey = make(map[string]*StrategyStats)
		m.data[locator] = byKey
	}
	entry, ok := byKey[s.Key()]
	if !ok {
		entry = &StrategyStats{Kind: s.Kind, Value: s.Value}
		byKey[s.Key()] = entry
	}
	if success {
		entry.Success++
	} else {
		entry.Failure++
	}
	entry.LastUsed = at
}

func (m *MemoryStats) Stats(locator string) []StrategyStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot(locator)
}

func (m *MemoryStats) snapshot(locator string) []StrategyStats {
	byKey := m.data[locator]
	out := make([]StrategyStats, 0, len(byKey))
	for _, entry := range byKey {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Value < out[j].Value
	})
	return out
}

func (m *MemoryStats) Locators() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.data))
	for name := range m.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FileStats is a MemoryStats persisted to a JSON file after every outcome.
type FileStats struct {
	*MemoryStats
	path string
}

// OpenFileStats loads path if it exists and returns a store writing back to it.
func OpenFileStats(path string) (*FileStats, error) {
	fs := &FileStats{MemoryStats: NewMemoryStats(), path: path}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stats file: %w", err)
	}

	var stored map[string][]StrategyStats
	if err := json.Unmarshal(content, &stored); err != nil {
		return nil, fmt.Errorf("failed to parse stats file %s: %w", path, err)
	}
	for name, entries := range stored {
		byKey := make(map[string]*StrategyStats, len(entries))
		for i := range entries {
			e := entries[i]
			byKey[Strategy{Kind: e.Kind, Value: e.Value}.Key()] = &e
		}
		fs.data[name] = byKey
	}
	return fs, nil
}

// Path returns the backing file path.
func (f *FileStats) Path() string {
	return f.path
}

func (f *FileStats) RecordOutcome(locator string, s Strategy, success bool, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(locator, s, success, at)
	return f.save()
}

// save writes the whole store through a temp file and rename. Caller holds f.mu.
func (f *FileStats) save() error {
	out := make(map[string][]StrategyStats, len(f.data))
	for name := range f.data {
		out[name] = f.snapshot(name)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create stats directory: %w", err)
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write stats: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace stats file: %w", err)
	}
	return nil
}

// ApplyStats copies stored counters onto the matching strategies of loc.
func ApplyStats(loc *Locator, stats []StrategyStats) {
	byKey := make(map[string]StrategyStats, len(stats))
	for _, s := range stats {
		byKey[Strategy{Kind: s.Kind, Value: s.Value}.Key()] = s
	}
	for i := range loc.Strategies {
		if s, ok := byKey[loc.Strategies[i].Key()]; ok {
			loc.Strategies[i].SuccessCount = s.Success
			loc.Strategies[i].FailureCount = s.Failure
			loc.Strategies[i].LastUsedAt = s.LastUsed
		}
	}
}

// Suggest returns a copy of loc with strategies reordered by observed success rate and
// priorities renumbered from 1. Strategies without history keep their relative order
// behind those with equal rates. The result is advisory; Resolve never calls it.
func Suggest(loc *Locator) *Locator {
	c := loc.Clone()
	c.Strategies = loc.Ordered()
	sort.SliceStable(c.Strategies, func(i, j int) bool {
		a := StrategyStats{Success: c.Strategies[i].SuccessCount, Failure: c.Strategies[i].FailureCount}
		b := StrategyStats{Success: c.Strategies[j].SuccessCount, Failure: c.Strategies[j].FailureCount}
		return a.Rate() > b.Rate()
	})
	for i := range c.Strategies {
		c.Strategies[i].Priority = i + 1
	}
	return c
}
