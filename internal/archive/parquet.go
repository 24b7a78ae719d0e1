package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/sqlassist/sqlassist/internal/query"
)

const (
	MetadataSQL     = "sqlassist.sql"
	MetadataColumns = "sqlassist.columns"
)

// Cell is one value of a result set in long form. Numeric and boolean values
// go to Number, everything else to Text; NULL leaves both empty.
type Cell struct {
	Row    int64    `parquet:"row"`
	Column string   `parquet:"column"`
	Kind   string   `parquet:"kind"`
	Number *float64 `parquet:"number,optional"`
	Text   *string  `parquet:"text,optional"`
}

func EncodeResult(sqlText string, result query.Result) ([]byte, error) {
	columnsJSON, err := json.Marshal(result.Columns)
	if err != nil {
		return nil, fmt.Errorf("marshal columns: %w", err)
	}

	cells := make([]Cell, 0, len(result.Rows)*len(result.Columns))
	for rowIndex, row := range result.Rows {
		for colIndex, column := range result.Columns {
			var value any
			if colIndex < len(row) {
				value = row[colIndex]
			}
			cells = append(cells, toCell(int64(rowIndex), column, value))
		}
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[Cell](buf,
		parquet.KeyValueMetadata(MetadataSQL, sqlText),
		parquet.KeyValueMetadata(MetadataColumns, string(columnsJSON)),
	)
	if _, err := writer.Write(cells); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func toCell(row int64, column query.Column, value any) Cell {
	cell := Cell{Row: row, Column: column.Name, Kind: string(column.Kind)}
	if value == nil {
		return cell
	}
	if number, ok := toNumber(value); ok {
		cell.Number = &number
		return cell
	}
	var text string
	switch typed := value.(type) {
	case string:
		text = typed
	case time.Time:
		text = typed.UTC().Format(time.RFC3339Nano)
	default:
		text = fmt.Sprint(typed)
	}
	cell.Text = &text
	return cell
}

func toNumber(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, !math.IsNaN(typed)
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int8:
		return float64(typed), true
	case int16:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case uint8:
		return float64(typed), true
	case uint16:
		return float64(typed), true
	case uint32:
		return float64(typed), true
	case uint64:
		return float64(typed), true
	case bool:
		if typed {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
