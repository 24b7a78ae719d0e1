package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const informationSchemaQuery = `
SELECT table_schema, table_name, column_name, data_type
FROM information_schema.columns
WHERE table_schema NOT IN ('pg_catalog', 'information_schema')
ORDER BY table_schema, table_name, ordinal_position`

// DuckDB can attach more catalogs; only the main database is described.
const duckdbCatalogQuery = `
SELECT table_schema, table_name, column_name, data_type
FROM information_schema.columns
WHERE table_catalog = current_database()
  AND table_schema NOT IN ('pg_catalog', 'information_schema')
ORDER BY table_schema, table_name, ordinal_position`

const sqliteCatalogQuery = `
SELECT '' AS table_schema, m.name, p.name, p.type
FROM sqlite_master AS m
JOIN pragma_table_info(m.name) AS p
WHERE m.type IN ('table', 'view') AND m.name NOT LIKE 'sqlite_%'
ORDER BY m.name, p.cid`

// default schemas are left unqualified in table names
var defaultSchemas = map[string]string{
	"postgres": "public",
	"duckdb":   "main",
	"sqlite":   "",
}

type Introspector struct {
	db            *sql.DB
	query         string
	defaultSchema string
}

func NewIntrospector(db *sql.DB, driver string) (*Introspector, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	defaultSchema, ok := defaultSchemas[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	query := informationSchemaQuery
	switch driver {
	case "duckdb":
		query = duckdbCatalogQuery
	case "sqlite":
		query = sqliteCatalogQuery
	}
	return &Introspector{db: db, query: query, defaultSchema: defaultSchema}, nil
}

// Describe lists every user table visible to the connection with its columns
// in ordinal order. Any failure to read the catalog is a *ConnectionError.
func (i *Introspector) Describe(ctx context.Context) (Description, error) {
	rows, err := i.db.QueryContext(ctx, i.query)
	if err != nil {
		return Description{}, &ConnectionError{Err: fmt.Errorf("query catalog: %w", err)}
	}
	defer func() { _ = rows.Close() }()

	var description Description
	index := map[string]int{}
	for rows.Next() {
		var tableSchema, tableName, columnName string
		var dataType sql.NullString
		if err := rows.Scan(&tableSchema, &tableName, &columnName, &dataType); err != nil {
			return Description{}, &ConnectionError{Err: fmt.Errorf("scan catalog row: %w", err)}
		}

		name := tableName
		if tableSchema != "" && tableSchema != i.defaultSchema {
			name = tableSchema + "." + tableName
		}
		pos, ok := index[name]
		if !ok {
			pos = len(description.Tables)
			index[name] = pos
			description.Tables = append(description.Tables, Table{Name: name})
		}
		description.Tables[pos].Columns = append(description.Tables[pos].Columns, Column{
			Name: columnName,
			Type: strings.ToUpper(strings.TrimSpace(dataType.String)),
		})
	}
	if err := rows.Err(); err != nil {
		return Description{}, &ConnectionError{Err: fmt.Errorf("iterate catalog rows: %w", err)}
	}
	return description, nil
}
