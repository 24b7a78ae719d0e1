package schema

import (
	"fmt"
	"strings"
)

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Description is the ordered table/column listing handed to the prompt.
type Description struct {
	Tables []Table `json:"tables"`
}

// Text renders one line per table, e.g. "orders(id INTEGER, region VARCHAR)".
func (d Description) Text() string {
	var b strings.Builder
	for i, table := range d.Tables {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(table.Name)
		b.WriteByte('(')
		for j, column := range table.Columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(column.Name)
			if column.Type != "" {
				b.WriteByte(' ')
				b.WriteString(column.Type)
			}
		}
		b.WriteByte(')')
	}
	return b.String()
}

func (d Description) ColumnCount() int {
	total := 0
	for _, table := range d.Tables {
		total += len(table.Columns)
	}
	return total
}

// ConnectionError reports that the database could not be reached or its
// catalog could not be read.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("database connection: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
