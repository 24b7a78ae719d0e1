// Package query runs generated SQL and shapes the rows for charting.
package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Column struct {
	Name         string `json:"name"`
	DatabaseType string `json:"database_type,omitempty"`
	Kind         Kind   `json:"kind"`
}

// Result is one executed statement. Every row has len(Columns) values.
type Result struct {
	Columns  []Column      `json:"columns"`
	Rows     [][]any       `json:"rows"`
	Duration time.Duration `json:"-"`
}

func (r Result) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, column := range r.Columns {
		names[i] = column.Name
	}
	return names
}

// Values returns column index i across all rows.
func (r Result) Values(i int) []any {
	values := make([]any, len(r.Rows))
	for rowIndex, row := range r.Rows {
		if i < len(row) {
			values[rowIndex] = row[i]
		}
	}
	return values
}

type Executor struct {
	db *sql.DB
}

func NewExecutor(db *sql.DB) *Executor {
	return &Executor{db: db}
}

var errEmptySQL = errors.New("sql is required")

// Execute runs sqlText as given, apart from trailing semicolons. Driver errors
// come back as *ConnectionError or *SQLExecutionError.
func (e *Executor) Execute(ctx context.Context, sqlText string) (Result, error) {
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return Result{}, &SQLExecutionError{Err: errEmptySQL}
	}

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return Result{}, classifyError(sqlText, fmt.Errorf("execute query: %w", err))
	}
	defer func() { _ = rows.Close() }()

	columns, err := describeColumns(rows)
	if err != nil {
		return Result{}, classifyError(sqlText, err)
	}

	numericColumns := make([]bool, len(columns))
	for i, column := range columns {
		numericColumns[i] = column.Kind == KindNumeric
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, classifyError(sqlText, fmt.Errorf("scan row: %w", err))
		}
		resultRows = append(resultRows, normalizeValues(values, numericColumns))
	}
	if err := rows.Err(); err != nil {
		return Result{}, classifyError(sqlText, fmt.Errorf("iterate rows: %w", err))
	}

	for i := range columns {
		if columns[i].Kind == KindUnknown {
			columns[i].Kind = inferKindFromValues(resultRows, i)
		}
	}

	return Result{
		Columns:  columns,
		Rows:     resultRows,
		Duration: time.Since(start),
	}, nil
}

func describeColumns(rows *sql.Rows) ([]Column, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	columns := make([]Column, len(names))
	for i, name := range names {
		columns[i] = Column{Name: name, Kind: KindUnknown}
	}

	// Some drivers cannot report column types; value inference covers them.
	types, err := rows.ColumnTypes()
	if err != nil || len(types) != len(names) {
		return columns, nil
	}
	for i, columnType := range types {
		databaseType := strings.ToUpper(strings.TrimSpace(columnType.DatabaseTypeName()))
		columns[i].DatabaseType = databaseType
		columns[i].Kind = kindFromDatabaseType(databaseType)
	}
	return columns, nil
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
