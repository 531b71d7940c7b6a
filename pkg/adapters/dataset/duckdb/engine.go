// Package duckdb runs dataset queries on an in-memory DuckDB over the uploaded CSV file.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/marcboeker/go-duckdb/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/dataset"
	"github.com/ekaya-inc/ekaya-insights/pkg/logging"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	sqlutil "github.com/ekaya-inc/ekaya-insights/pkg/sql"
)

// Opener returns a fresh database handle. Each engine call opens and closes its own.
type Opener func() (*sql.DB, error)

// Engine implements dataset.QueryEngine.
type Engine struct {
	open    Opener
	maxRows int
	logger  *zap.Logger
}

var _ dataset.QueryEngine = (*Engine)(nil)

// NewEngine creates an engine backed by in-memory DuckDB databases.
// maxRows caps the rows returned by Execute; zero means unlimited.
func NewEngine(maxRows int, logger *zap.Logger) *Engine {
	return NewEngineWithOpener(openInMemory, maxRows, logger)
}

// NewEngineWithOpener creates an engine that obtains its handles from open.
func NewEngineWithOpener(open Opener, maxRows int, logger *zap.Logger) *Engine {
	return &Engine{
		open:    open,
		maxRows: maxRows,
		logger:  logger.Named("duckdb"),
	}
}

func openInMemory() (*sql.DB, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, err
	}
	// The dataset table and settings are made on the single connection.
	db.SetMaxOpenConns(1)
	return db, nil
}

func (e *Engine) withDB(ctx context.Context, fn func(db *sql.DB) error) error {
	db, err := e.open()
	if err != nil {
		return fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(db)
}

// FileInfo returns the row and column counts of the CSV at path.
func (e *Engine) FileInfo(ctx context.Context, path string) (*dataset.FileInfo, error) {
	info := &dataset.FileInfo{}
	err := e.withDB(ctx, func(db *sql.DB) error {
		source := readCSV(path)
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+source).Scan(&info.RowCount); err != nil {
			return fmt.Errorf("count rows: %w", err)
		}
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM (DESCRIBE SELECT * FROM "+source+")").Scan(&info.ColumnCount); err != nil {
			return fmt.Errorf("count columns: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// Schema describes the columns of the CSV at path. Sample values come from the
// first row and are nil for an empty file.
func (e *Engine) Schema(ctx context.Context, path string) (*dataset.SchemaInfo, error) {
	info := &dataset.SchemaInfo{}
	err := e.withDB(ctx, func(db *sql.DB) error {
		source := readCSV(path)

		columns, err := describe(ctx, db, source)
		if err != nil {
			return err
		}

		sample, err := firstRow(ctx, db, source, len(columns))
		if err != nil {
			return err
		}
		for i := range columns {
			if sample != nil {
				columns[i].Sample = sample[i]
			}
		}

		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+source).Scan(&info.RowCount); err != nil {
			return fmt.Errorf("count rows: %w", err)
		}
		info.Columns = columns
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func describe(ctx context.Context, db *sql.DB, source string) (models.SchemaDescriptor, error) {
	rows, err := db.QueryContext(ctx, "DESCRIBE SELECT * FROM "+source)
	if err != nil {
		return nil, fmt.Errorf("describe dataset: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("describe columns: %w", err)
	}
	nameIdx, typeIdx := -1, -1
	for i, name := range names {
		switch name {
		case "column_name":
			nameIdx = i
		case "column_type":
			typeIdx = i
		}
	}
	if nameIdx < 0 || typeIdx < 0 {
		return nil, fmt.Errorf("describe dataset: unexpected columns %v", names)
	}

	var columns models.SchemaDescriptor
	for rows.Next() {
		values, err := scanRow(rows, len(names))
		if err != nil {
			return nil, err
		}
		columns = append(columns, models.ColumnSchema{
			Name: fmt.Sprint(values[nameIdx]),
			Type: fmt.Sprint(values[typeIdx]),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate describe rows: %w", err)
	}
	return columns, nil
}

func firstRow(ctx context.Context, db *sql.DB, source string, width int) ([]any, error) {
	rows, err := db.QueryContext(ctx, "SELECT * FROM "+source+" LIMIT 1")
	if err != nil {
		return nil, fmt.Errorf("sample dataset: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return nil, rows.Err()
	}
	values, err := scanRow(rows, width)
	if err != nil {
		return nil, err
	}
	return normalizeValues(values), nil
}

// lockdownStatements run after the dataset is loaded. Once they succeed the
// database can no longer read files, attach databases or change settings, so
// caller SQL only sees the "data" table.
var lockdownStatements = []string{
	"SET enable_external_access = false",
	"SET lock_configuration = true",
}

// loadDataset copies the CSV at path into the table "data" and then cuts the
// database off from the filesystem.
func loadDataset(ctx context.Context, db *sql.DB, path string) error {
	createSQL := fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s", quoteIdent(models.DatasetRelation), readCSV(path))
	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	for _, stmt := range lockdownStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("lock down database: %w", err)
		}
	}
	return nil
}

// Execute runs sqlQuery against the CSV at path loaded as the table "data".
func (e *Engine) Execute(ctx context.Context, path string, sqlQuery string) (*dataset.QueryResult, error) {
	prepared, err := sqlutil.PrepareQuery(sqlQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dataset.ErrQueryRejected, err)
	}

	var result *dataset.QueryResult
	err = e.withDB(ctx, func(db *sql.DB) error {
		if err := loadDataset(ctx, db, path); err != nil {
			return err
		}

		e.logger.Debug("Executing query", zap.String("sql", logging.SanitizeQuery(prepared)))

		rows, err := db.QueryContext(ctx, prepared)
		if err != nil {
			return fmt.Errorf("execute query: %w", err)
		}
		defer func() { _ = rows.Close() }()

		columns, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("query columns: %w", err)
		}

		result = &dataset.QueryResult{
			Columns: columns,
			Rows:    make([]map[string]any, 0),
		}
		for rows.Next() {
			if e.maxRows > 0 && len(result.Rows) >= e.maxRows {
				result.Truncated = true
				break
			}
			values, err := scanRow(rows, len(columns))
			if err != nil {
				return err
			}
			values = normalizeValues(values)

			row := make(map[string]any, len(columns))
			for i, col := range columns {
				row[col] = values[i]
			}
			result.Rows = append(result.Rows, row)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate rows: %w", err)
		}
		result.RowCount = len(result.Rows)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Version returns the DuckDB library version.
func (e *Engine) Version(ctx context.Context) (string, error) {
	var version string
	err := e.withDB(ctx, func(db *sql.DB) error {
		return db.QueryRowContext(ctx, "SELECT version()").Scan(&version)
	})
	if err != nil {
		return "", fmt.Errorf("query duckdb version: %w", err)
	}
	return version, nil
}

func scanRow(rows *sql.Rows, width int) ([]any, error) {
	values := make([]any, width)
	scanTargets := make([]any, width)
	for i := range values {
		scanTargets[i] = &values[i]
	}
	if err := rows.Scan(scanTargets...); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}
	return values, nil
}

// normalizeValues converts driver values into JSON-encodable ones.
func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		normalized[i] = normalizeValue(value)
	}
	return normalized
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			return nil
		}
		return typed
	case float32:
		if math.IsNaN(float64(typed)) || math.IsInf(float64(typed), 0) {
			return nil
		}
		return typed
	case *big.Int:
		if typed == nil {
			return nil
		}
		if typed.IsInt64() {
			return typed.Int64()
		}
		return typed.String()
	case duckdb.Decimal:
		return normalizeValue(typed.Float64())
	case duckdb.Map:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[fmt.Sprint(k)] = normalizeValue(v)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, v := range typed {
			out[i] = normalizeValue(v)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[k] = normalizeValue(v)
		}
		return out
	default:
		return typed
	}
}

func readCSV(path string) string {
	return "read_csv_auto(" + quoteString(path) + ")"
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
