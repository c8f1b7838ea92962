package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/pilot/pkg/workflow"
)

// LoadRows reads batch rows from a CSV file with a header row, or from a YAML (or
// JSON) list of maps. The format follows the file extension.
func LoadRows(path string) ([]workflow.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rows file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSVRows(f)
	case ".yaml", ".yml", ".json":
		return readYAMLRows(f)
	}
	return nil, fmt.Errorf("unsupported rows file %s: use .csv, .yaml or .json", path)
}

func readCSVRows(r io.Reader) ([]workflow.Row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	seen := make(map[string]bool, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if name == "" {
			return nil, fmt.Errorf("CSV column %d has no name", i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("CSV column %q appears twice", name)
		}
		seen[name] = true
		header[i] = name
	}

	var rows []workflow.Row
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}
		row := make(workflow.Row, len(header))
		for i, name := range header {
			row[name] = record[i]
		}
		rows = append(rows, row)
	}
}

// readYAMLRows keeps every value as written: 0012 stays "0012" and dates are not
// reformatted.
func readYAMLRows(r io.Reader) ([]workflow.Row, error) {
	var raw []map[string]yaml.Node
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse rows: %w", err)
	}
	rows := make([]workflow.Row, 0, len(raw))
	for i, m := range raw {
		row := make(workflow.Row, len(m))
		for key, node := range m {
			if node.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("row %d: field %s must be a scalar (line %d)", i+1, key, node.Line)
			}
			if node.ShortTag() == "!!null" {
				row[key] = ""
				continue
			}
			row[key] = node.Value
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ParseAssignments builds a row from KEY=VALUE pairs. Later pairs win.
func ParseAssignments(pairs []string) (workflow.Row, error) {
	row := make(workflow.Row, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid row value %q: expected KEY=VALUE", pair)
		}
		row[key] = value
	}
	return row, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
