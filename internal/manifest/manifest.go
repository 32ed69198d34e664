// Package manifest reads notice transition manifest files.
//
// The transition manifest (typically at config/transitions.csv) describes
// which notice statuses each operation accepts and what status a successful
// run commits. It lets a deployment restrict or extend the default routing
// without a rebuild.
//
// CSV format:
//
//	operation,from_status,next_status,description
//	mark-sent,pending,sent,Notice delivered to client
//	mark-na,pending,not-applicable,No rate change for client
//	undo,sent,pending,Revert a delivered notice
//	undo,not-applicable,pending,Revert a not-applicable notice
//	ccl-date,pending,,Push CCL date to matters
//
// An empty next_status means the operation leaves the status unchanged. An
// operation may appear on several rows with different from_status values.
package manifest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// TransitionEntry is a single row in the transition manifest.
type TransitionEntry struct {
	// Operation is the operation name (e.g., "mark-sent").
	Operation string

	// FromStatus is the notice status the operation accepts.
	FromStatus string

	// NextStatus is the status committed after a fully successful run.
	// Empty leaves the status unchanged.
	NextStatus string

	// Description is free text shown in help and dry-run output.
	Description string
}

// Manifest holds the transition entries parsed from a manifest CSV.
type Manifest struct {
	// Entries are the transitions in file order.
	Entries []TransitionEntry
}

// ReadFromFile reads and parses a transition manifest CSV file.
func ReadFromFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	return readFromReader(f)
}

// ReadFromString parses a transition manifest from a CSV string.
func ReadFromString(data string) (*Manifest, error) {
	return readFromReader(strings.NewReader(data))
}

func readFromReader(r io.Reader) (*Manifest, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest header: %w", err)
	}

	colIndex := buildColumnIndex(header)
	if err := validateColumns(colIndex); err != nil {
		return nil, err
	}

	var entries []TransitionEntry
	lineNum := 1
	for {
		lineNum++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest line %d: %w", lineNum, err)
		}

		entry := TransitionEntry{
			Operation:   getField(record, colIndex, "operation"),
			FromStatus:  getField(record, colIndex, "from_status"),
			NextStatus:  getField(record, colIndex, "next_status"),
			Description: getField(record, colIndex, "description"),
		}

		if entry.Operation == "" {
			return nil, fmt.Errorf("manifest line %d: operation is required", lineNum)
		}
		if entry.FromStatus == "" {
			return nil, fmt.Errorf("manifest line %d: from_status is required", lineNum)
		}

		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("manifest contains no transition entries")
	}

	return &Manifest{Entries: entries}, nil
}

// requiredColumns must be present in the manifest header.
var requiredColumns = []string{"operation", "from_status", "next_status"}

func buildColumnIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.TrimSpace(strings.ToLower(col))] = i
	}
	return index
}

func validateColumns(colIndex map[string]int) error {
	for _, col := range requiredColumns {
		if _, ok := colIndex[col]; !ok {
			return fmt.Errorf("manifest missing required column: %s", col)
		}
	}
	return nil
}

func getField(record []string, colIndex map[string]int, column string) string {
	idx, ok := colIndex[column]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// Operations returns the unique operation names in first-appearance order.
func (m *Manifest) Operations() []string {
	seen := make(map[string]bool)
	var ops []string
	for _, e := range m.Entries {
		if !seen[e.Operation] {
			seen[e.Operation] = true
			ops = append(ops, e.Operation)
		}
	}
	return ops
}

// GetEntriesForOperation returns every entry for the named operation.
func (m *Manifest) GetEntriesForOperation(op string) []TransitionEntry {
	var entries []TransitionEntry
	for _, e := range m.Entries {
		if e.Operation == op {
			entries = append(entries, e)
		}
	}
	return entries
}

// HasOperation reports whether the manifest names the operation.
func (m *Manifest) HasOperation(op string) bool {
	return len(m.GetEntriesForOperation(op)) > 0
}

// Description returns the first non-empty description for the operation.
func (m *Manifest) Description(op string) string {
	for _, e := range m.GetEntriesForOperation(op) {
		if e.Description != "" {
			return e.Description
		}
	}
	return ""
}
