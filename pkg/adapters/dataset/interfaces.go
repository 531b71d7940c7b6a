// Package dataset defines the query engine that runs validated SQL against an
// uploaded session dataset.
package dataset

import (
	"context"
	"errors"

	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

// ErrQueryRejected wraps SQL that failed the read-only guard before it reached the engine.
var ErrQueryRejected = errors.New("query rejected")

// FileInfo is the shape of a dataset file.
type FileInfo struct {
	RowCount    int64 `json:"row_count"`
	ColumnCount int   `json:"column_count"`
}

// SchemaInfo holds the column descriptors and row count of a dataset file.
type SchemaInfo struct {
	Columns  models.SchemaDescriptor `json:"columns"`
	RowCount int64                   `json:"row_count"`
}

// QueryResult contains the results of a query execution.
type QueryResult struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated,omitempty"`
}

// QueryEngine executes read-only operations against a dataset file.
// Every call is independent; implementations hold no per-dataset state.
type QueryEngine interface {
	// FileInfo returns the row and column counts of the dataset at path.
	FileInfo(ctx context.Context, path string) (*FileInfo, error)

	// Schema describes the columns of the dataset at path, with a sample value
	// from the first row.
	Schema(ctx context.Context, path string) (*SchemaInfo, error)

	// Execute runs a single read-only statement against the dataset at path,
	// exposed as the relation models.DatasetRelation. SQL that fails the
	// read-only guard returns an error wrapping ErrQueryRejected.
	Execute(ctx context.Context, path string, sqlQuery string) (*QueryResult, error)

	// Version returns the engine version string.
	Version(ctx context.Context) (string, error)
}
