package chart

import (
	"math"

	"github.com/sqlassist/sqlassist/internal/query"
)

// Correlate computes the Pearson matrix over every column, using for each pair
// only the rows where both values are present. Pairs with fewer than two such
// rows, or with zero variance, are NaN.
func Correlate(frame query.Result) Matrix {
	n := len(frame.Columns)
	columns := make([][]float64, n)
	present := make([][]bool, n)
	for i := range frame.Columns {
		columns[i] = make([]float64, len(frame.Rows))
		present[i] = make([]bool, len(frame.Rows))
		for rowIndex, row := range frame.Rows {
			if i < len(row) {
				columns[i][rowIndex], present[i][rowIndex] = toFloat(row[i])
			}
		}
	}

	values := make([][]float64, n)
	for i := range values {
		values[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			r := pearson(columns[i], columns[j], present[i], present[j])
			if i == j && !math.IsNaN(r) {
				r = 1
			}
			values[i][j] = r
			values[j][i] = r
		}
	}
	return Matrix{Columns: frame.ColumnNames(), Values: values}
}

func pearson(x, y []float64, xOK, yOK []bool) float64 {
	var count int
	var sumX, sumY float64
	for k := range x {
		if xOK[k] && yOK[k] {
			count++
			sumX += x[k]
			sumY += y[k]
		}
	}
	if count < 2 {
		return math.NaN()
	}
	meanX, meanY := sumX/float64(count), sumY/float64(count)

	var cov, varX, varY float64
	for k := range x {
		if !xOK[k] || !yOK[k] {
			continue
		}
		dx, dy := x[k]-meanX, y[k]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return math.NaN()
	}
	r := cov / math.Sqrt(varX*varY)
	return math.Max(-1, math.Min(1, r))
}

func toFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, !math.IsNaN(typed)
	case float32:
		return float64(typed), !math.IsNaN(float64(typed))
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
	case uint:
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
