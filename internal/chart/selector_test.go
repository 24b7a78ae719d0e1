package chart

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sqlassist/sqlassist/internal/query"
)

func frame(columns []query.Column, rows ...[]any) query.Result {
	if rows == nil {
		rows = [][]any{}
	}
	return query.Result{Columns: columns, Rows: rows}
}

func col(name string, kind query.Kind) query.Column {
	return query.Column{Name: name, Kind: kind}
}

func TestSelect_DateValueIsAreaTimeSeries(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	result := frame(
		[]query.Column{col("order_date", query.KindTemporal), col("revenue", query.KindNumeric)},
		[]any{day, 10.0}, []any{day.AddDate(0, 0, 1), 12.5},
	)

	specs := NewSelector(DefaultOptions()).Select(result)
	require.Len(t, specs, 1)
	require.Equal(t, Spec{Kind: KindAreaTimeSeries, Title: "Time Series (Area Chart)", X: "order_date", Y: "revenue", ColumnIndexes: []int{0, 1}}, specs[0])
}

func TestSelect_TimeSeriesMatchesNameCaseInsensitively(t *testing.T) {
	selector := NewSelector(DefaultOptions())
	for _, name := range []string{"OrderDATE", "Timestamp", "created_time", "UPDATE_COUNT"} {
		result := frame(
			[]query.Column{col(name, query.KindCategorical), col("v", query.KindNumeric), col("w", query.KindNumeric)},
			[]any{"a", 1.0, 2.0},
		)
		decision := selector.Decide(result)
		require.Equal(t, "time-series", decision.Rule, name)
		require.Equal(t, KindAreaTimeSeries, decision.Specs[0].Kind, name)
		require.Equal(t, name, decision.Specs[0].X)
		require.Equal(t, "v", decision.Specs[0].Y)
	}
}

func TestSelect_SingleDateColumnIsNotTimeSeries(t *testing.T) {
	specs := NewSelector(DefaultOptions()).Select(frame([]query.Column{col("order_date", query.KindTemporal)}, []any{time.Now()}))
	require.Len(t, specs, 3)
	require.Equal(t, KindHistogram, specs[0].Kind)
}

func TestSelect_CategoryCountIsPie(t *testing.T) {
	result := frame(
		[]query.Column{col("category", query.KindCategorical), col("count", query.KindNumeric)},
		[]any{"books", int64(4)}, []any{"games", int64(9)}, []any{"music", int64(2)},
	)

	specs := NewSelector(DefaultOptions()).Select(result)
	require.Equal(t, []Spec{{Kind: KindPie, Title: "Pie Chart of count by category", Names: "category", Values: "count", ColumnIndexes: []int{0, 1}}}, specs)
}

func TestSelect_CategoricalThresholdBoundary(t *testing.T) {
	columns := []query.Column{col("region", query.KindCategorical), col("sales", query.KindNumeric)}
	rowsWithDistinct := func(n int) [][]any {
		rows := make([][]any, 0, n*2)
		for i := 0; i < n; i++ {
			rows = append(rows, []any{fmt.Sprintf("r%02d", i), float64(i)}, []any{fmt.Sprintf("r%02d", i), float64(i)})
		}
		return rows
	}
	selector := NewSelector(DefaultOptions())

	atThreshold := selector.Select(frame(columns, rowsWithDistinct(10)...))
	require.Equal(t, KindPie, atThreshold[0].Kind)
	require.Equal(t, "region", atThreshold[0].Names)
	require.Equal(t, "sales", atThreshold[0].Values)

	overThreshold := selector.Select(frame(columns, rowsWithDistinct(11)...))
	require.Equal(t, []Spec{{Kind: KindBar, Title: "Bar Chart of sales by region", X: "region", Y: "sales", ColumnIndexes: []int{0, 1}}}, overThreshold)
}

func TestSelect_DistinctCountIgnoresNulls(t *testing.T) {
	columns := []query.Column{col("label", query.KindCategorical), col("n", query.KindNumeric)}
	rows := make([][]any, 0, 12)
	for i := 0; i < 10; i++ {
		rows = append(rows, []any{fmt.Sprintf("l%d", i), 1.0})
	}
	rows = append(rows, []any{nil, 1.0}, []any{nil, 2.0})

	specs := NewSelector(DefaultOptions()).Select(frame(columns, rows...))
	require.Equal(t, KindPie, specs[0].Kind)
}

func TestSelect_ConfigurableThreshold(t *testing.T) {
	result := frame(
		[]query.Column{col("k", query.KindCategorical), col("v", query.KindNumeric)},
		[]any{"a", 1.0}, []any{"b", 2.0}, []any{"c", 3.0},
	)
	specs := NewSelector(Options{CategoryThreshold: 2}).Select(result)
	require.Equal(t, KindBar, specs[0].Kind)
}

func TestSelect_ZeroOptionsUseDefaultThreshold(t *testing.T) {
	result := frame(
		[]query.Column{col("region", query.KindCategorical), col("orders", query.KindNumeric)},
		[]any{"north", 4.0}, []any{"south", 7.0},
	)
	specs := NewSelector(Options{}).Select(result)
	require.Len(t, specs, 1)
	require.Equal(t, KindPie, specs[0].Kind)
}

func TestSelect_NumericFirstColumnIsGenericBar(t *testing.T) {
	result := frame(
		[]query.Column{col("year", query.KindNumeric), col("total", query.KindNumeric)},
		[]any{int64(2023), 1.0}, []any{int64(2024), 2.0},
	)
	specs := NewSelector(DefaultOptions()).Select(result)
	require.Equal(t, []Spec{{Kind: KindBar, Title: "Bar Chart", X: "year", Y: "total", ColumnIndexes: []int{0, 1}}}, specs)
}

func TestSelect_TemporalFirstColumnWithoutDateNameIsGenericBar(t *testing.T) {
	result := frame(
		[]query.Column{col("day", query.KindTemporal), col("total", query.KindNumeric)},
		[]any{time.Now(), 1.0},
	)
	specs := NewSelector(DefaultOptions()).Select(result)
	require.Equal(t, KindBar, specs[0].Kind)
	require.Equal(t, TitleBar, specs[0].Title)
}

func TestSelect_EmptyCategoricalTwoColumns(t *testing.T) {
	result := frame([]query.Column{col("region", query.KindCategorical), col("sales", query.KindNumeric)})

	specs := NewSelector(DefaultOptions()).Select(result)
	require.Equal(t, []Spec{{Kind: KindNoneAmbiguous, Message: MessageNoRows}}, specs)
	require.False(t, specs[0].Renderable())

	specs = NewSelector(Options{CategoryThreshold: 10, PieOnEmpty: true}).Select(result)
	require.Equal(t, KindPie, specs[0].Kind)
}

func TestSelect_EmptyResultStillUsesColumnShape(t *testing.T) {
	selector := NewSelector(DefaultOptions())

	specs := selector.Select(frame([]query.Column{col("order_date", query.KindTemporal), col("n", query.KindNumeric)}))
	require.Equal(t, KindAreaTimeSeries, specs[0].Kind)

	specs = selector.Select(frame([]query.Column{col("a", query.KindNumeric), col("b", query.KindNumeric), col("c", query.KindCategorical)}))
	require.Equal(t, KindScatterColored, specs[0].Kind)
}

func TestSelect_XYColorIsScatter(t *testing.T) {
	result := frame(
		[]query.Column{col("x", query.KindNumeric), col("y", query.KindNumeric), col("color", query.KindCategorical)},
		[]any{1.0, 2.0, "red"}, []any{3.0, 4.0, "blue"},
	)
	specs := NewSelector(DefaultOptions()).Select(result)
	require.Equal(t, []Spec{{Kind: KindScatterColored, Title: "Scatter Plot", X: "x", Y: "y", Color: "color", ColumnIndexes: []int{0, 1, 2}}}, specs)
}

func TestSelect_OneColumnIsDistributionTrio(t *testing.T) {
	result := frame([]query.Column{col("price", query.KindNumeric)}, []any{1.0}, []any{2.0}, []any{2.5})

	specs := NewSelector(DefaultOptions()).Select(result)
	require.Equal(t, []Spec{
		{Kind: KindHistogram, Title: "Histogram", Column: "price", ColumnIndexes: []int{0}},
		{Kind: KindBox, Title: "Box Plot", Column: "price", ColumnIndexes: []int{0}},
		{Kind: KindViolin, Title: "Violin Plot (distribution + density)", Column: "price", ColumnIndexes: []int{0}, BoxOverlay: true, AllPoints: true},
	}, specs)
}

func TestSelect_WideAllNumericIsHeatmap(t *testing.T) {
	result := frame(
		[]query.Column{col("a", query.KindNumeric), col("b", query.KindNumeric), col("c", query.KindNumeric), col("flag", query.KindBoolean)},
		[]any{1.0, 2.0, 3.0, true},
		[]any{2.0, 4.0, 1.0, false},
		[]any{3.0, 6.0, 2.0, true},
	)

	decision := NewSelector(DefaultOptions()).Decide(result)
	require.Equal(t, "wide", decision.Rule)
	require.Len(t, decision.Specs, 1)
	spec := decision.Specs[0]
	require.Equal(t, KindCorrelationHeatmap, spec.Kind)
	require.Equal(t, "Correlation Heatmap", spec.Title)
	require.True(t, spec.TextAuto)
	require.NotNil(t, spec.Correlation)
	require.Equal(t, []string{"a", "b", "c", "flag"}, spec.Correlation.Columns)
	require.InDelta(t, 1.0, spec.Correlation.Values[0][1], 1e-12)
	require.InDelta(t, 1.0, spec.Correlation.Values[2][2], 1e-12)
}

func TestSelect_WideMixedIsNoneAmbiguous(t *testing.T) {
	result := frame(
		[]query.Column{col("a", query.KindNumeric), col("b", query.KindNumeric), col("c", query.KindNumeric), col("label", query.KindCategorical)},
		[]any{1.0, 2.0, 3.0, "x"},
	)
	specs := NewSelector(DefaultOptions()).Select(result)
	require.Equal(t, []Spec{{Kind: KindNoneAmbiguous, Message: MessageMixedWide}}, specs)
}

func TestSelect_ZeroColumnsIsNoneAmbiguous(t *testing.T) {
	decision := NewSelector(DefaultOptions()).Decide(frame(nil))
	require.Equal(t, "no-columns", decision.Rule)
	require.Equal(t, KindNoneAmbiguous, decision.Specs[0].Kind)
}

func TestSelect_IsDeterministic(t *testing.T) {
	result := frame(
		[]query.Column{col("k", query.KindCategorical), col("v", query.KindNumeric)},
		[]any{"a", 1.0}, []any{"b", 2.0},
	)
	selector := NewSelector(DefaultOptions())
	require.Equal(t, selector.Select(result), selector.Select(result))
}

func TestCorrelate_PairwiseCompleteObservations(t *testing.T) {
	result := frame(
		[]query.Column{col("x", query.KindNumeric), col("y", query.KindNumeric), col("z", query.KindNumeric)},
		[]any{1.0, 2.0, 5.0},
		[]any{2.0, 4.0, 5.0},
		[]any{3.0, nil, 5.0},
		[]any{4.0, 8.0, 5.0},
		[]any{int64(5), -10.0, nil},
	)
	matrix := Correlate(result)

	// y against x uses rows 0,1,3,4 only.
	xs := []float64{1, 2, 4, 5}
	ys := []float64{2, 4, 8, -10}
	require.InDelta(t, referencePearson(xs, ys), matrix.Values[0][1], 1e-12)
	require.Equal(t, matrix.Values[0][1], matrix.Values[1][0])

	// z is constant, so its coefficients are undefined.
	require.True(t, math.IsNaN(matrix.Values[0][2]))
	require.True(t, math.IsNaN(matrix.Values[2][2]))
}

func TestMatrixMarshalJSONEncodesNaNAsNull(t *testing.T) {
	raw, err := json.Marshal(Matrix{Columns: []string{"a", "b"}, Values: [][]float64{{1, math.NaN()}, {math.NaN(), 1}}})
	require.NoError(t, err)
	require.JSONEq(t, `{"columns":["a","b"],"values":[[1,null],[null,1]]}`, string(raw))
}

func referencePearson(x, y []float64) float64 {
	n := float64(len(x))
	var sx, sy, sxx, syy, sxy float64
	for i := range x {
		sx += x[i]
		sy += y[i]
		sxx += x[i] * x[i]
		syy += y[i] * y[i]
		sxy += x[i] * y[i]
	}
	return (n*sxy - sx*sy) / math.Sqrt((n*sxx-sx*sx)*(n*syy-sy*sy))
}
