package query

import (
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindCategorical Kind = "categorical"
	KindTemporal    Kind = "temporal"
	KindBoolean     Kind = "boolean"
	KindUnknown     Kind = "unknown"
)

var databaseTypeKinds = map[string]Kind{
	"INT": KindNumeric, "INTEGER": KindNumeric, "INT2": KindNumeric, "INT4": KindNumeric, "INT8": KindNumeric,
	"SMALLINT": KindNumeric, "BIGINT": KindNumeric, "TINYINT": KindNumeric, "HUGEINT": KindNumeric,
	"UTINYINT": KindNumeric, "USMALLINT": KindNumeric, "UINTEGER": KindNumeric, "UBIGINT": KindNumeric,
	"SERIAL": KindNumeric, "BIGSERIAL": KindNumeric,
	"FLOAT": KindNumeric, "FLOAT4": KindNumeric, "FLOAT8": KindNumeric, "REAL": KindNumeric,
	"DOUBLE": KindNumeric, "DOUBLE PRECISION": KindNumeric, "NUMERIC": KindNumeric, "DECIMAL": KindNumeric,

	"TEXT": KindCategorical, "VARCHAR": KindCategorical, "CHAR": KindCategorical, "BPCHAR": KindCategorical,
	"CHARACTER": KindCategorical, "CHARACTER VARYING": KindCategorical, "STRING": KindCategorical,
	"NAME": KindCategorical, "UUID": KindCategorical, "ENUM": KindCategorical, "CITEXT": KindCategorical,

	"DATE": KindTemporal, "TIME": KindTemporal, "TIMETZ": KindTemporal, "TIMESTAMP": KindTemporal,
	"TIMESTAMPTZ": KindTemporal, "TIMESTAMP WITH TIME ZONE": KindTemporal, "TIMESTAMP_S": KindTemporal,
	"TIMESTAMP_MS": KindTemporal, "TIMESTAMP_NS": KindTemporal, "DATETIME": KindTemporal, "INTERVAL": KindTemporal,

	"BOOL": KindBoolean, "BOOLEAN": KindBoolean,
}

// kindFromDatabaseType maps a driver type name such as "DECIMAL(18,3)" or
// "VARCHAR(20)" to a Kind, ignoring the parameter list.
func kindFromDatabaseType(databaseType string) Kind {
	base := strings.ToUpper(strings.TrimSpace(databaseType))
	if idx := strings.IndexByte(base, '('); idx >= 0 {
		base = strings.TrimSpace(base[:idx])
	}
	if kind, ok := databaseTypeKinds[base]; ok {
		return kind
	}
	return KindUnknown
}

// inferKindFromValues looks at every non-NULL value of column i. Numbers mixed
// with anything else make the column categorical.
func inferKindFromValues(rows [][]any, i int) Kind {
	kind := KindUnknown
	for _, row := range rows {
		if i >= len(row) || row[i] == nil {
			continue
		}
		valueKind := kindOfValue(row[i])
		switch {
		case kind == KindUnknown:
			kind = valueKind
		case kind != valueKind:
			return KindCategorical
		}
	}
	return kind
}

func kindOfValue(value any) Kind {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return KindNumeric
	case bool:
		return KindBoolean
	case time.Time:
		return KindTemporal
	default:
		return KindCategorical
	}
}

func normalizeValues(values []any, numericColumns []bool) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		normalized[i] = normalizeValue(value, i < len(numericColumns) && numericColumns[i])
	}
	return normalized
}

// normalizeValue converts driver representations to plain Go values. Text in
// numeric columns (NUMERIC over pgx, DECIMAL over sqlite) becomes float64.
func normalizeValue(value any, numericColumn bool) any {
	switch typed := value.(type) {
	case []byte:
		return normalizeText(string(typed), numericColumn)
	case string:
		return normalizeText(typed, numericColumn)
	case *big.Int:
		if typed == nil {
			return nil
		}
		f, _ := new(big.Float).SetInt(typed).Float64()
		return f
	case decimal.Decimal:
		return typed.InexactFloat64()
	case interface{ Float64() float64 }:
		return typed.Float64()
	default:
		return typed
	}
}

func normalizeText(text string, numericColumn bool) any {
	if !numericColumn {
		return text
	}
	parsed, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return text
	}
	return parsed.InexactFloat64()
}
