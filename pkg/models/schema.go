package models

import (
	"fmt"
	"strings"
)

// DatasetRelation is the single relation name every session dataset is exposed as.
const DatasetRelation = "data"

// ColumnSchema describes one column of an uploaded dataset.
type ColumnSchema struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Sample any    `json:"sample"`
}

// SchemaDescriptor is the ordered column list of a dataset.
// It is produced per session by the query engine and never mutated by routing.
type SchemaDescriptor []ColumnSchema

// ColumnNames returns the column names in declaration order.
func (s SchemaDescriptor) ColumnNames() []string {
	names := make([]string, len(s))
	for i, col := range s {
		names[i] = col.Name
	}
	return names
}

// MentionsColumn reports whether any column name appears in text
// (case-insensitive substring match).
func (s SchemaDescriptor) MentionsColumn(text string) bool {
	lower := strings.ToLower(text)
	for _, col := range s {
		name := strings.ToLower(col.Name)
		if name != "" && strings.Contains(lower, name) {
			return true
		}
	}
	return false
}

// Render formats the schema as the readable column list handed to generation backends:
//
//	- name (TYPE) e.g. sample
func (s SchemaDescriptor) Render() string {
	lines := make([]string, 0, len(s))
	for _, col := range s {
		line := fmt.Sprintf("- %s (%s)", col.Name, col.Type)
		if col.Sample != nil {
			line += fmt.Sprintf(" e.g. %v", col.Sample)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
