// Package chart picks chart directives for a query result from its shape.
package chart

import (
	"encoding/json"
	"math"
)

type Kind string

const (
	KindAreaTimeSeries     Kind = "area-time-series"
	KindPie                Kind = "pie"
	KindBar                Kind = "bar"
	KindScatterColored     Kind = "scatter-colored"
	KindHistogram          Kind = "histogram"
	KindBox                Kind = "box"
	KindViolin             Kind = "violin"
	KindCorrelationHeatmap Kind = "correlation-heatmap"
	KindNoneAmbiguous      Kind = "none-ambiguous"
)

const (
	TitleTimeSeries  = "Time Series (Area Chart)"
	TitleBar         = "Bar Chart"
	TitleScatter     = "Scatter Plot"
	TitleHistogram   = "Histogram"
	TitleBox         = "Box Plot"
	TitleViolin      = "Violin Plot (distribution + density)"
	TitleCorrelation = "Correlation Heatmap"

	MessageMixedWide = "More than 3 columns and mixed types: please select relevant columns for visualization."
	MessageNoRows    = "query returned no rows"
	MessageNoColumns = "query returned no columns"
)

// Spec is one chart directive. Which column fields are set depends on Kind:
// X/Y for area, bar and scatter, Names/Values for pie, Color for scatter,
// Column for the one-column trio.
//
// ColumnIndexes holds the result positions of those columns in the same
// order, so results with repeated column names still bind correctly.
type Spec struct {
	Kind          Kind    `json:"kind"`
	Title         string  `json:"title,omitempty"`
	X             string  `json:"x,omitempty"`
	Y             string  `json:"y,omitempty"`
	Names         string  `json:"names,omitempty"`
	Values        string  `json:"values,omitempty"`
	Color         string  `json:"color,omitempty"`
	Column        string  `json:"column,omitempty"`
	ColumnIndexes []int   `json:"column_indexes,omitempty"`
	BoxOverlay    bool    `json:"box_overlay,omitempty"`
	AllPoints     bool    `json:"all_points,omitempty"`
	TextAuto      bool    `json:"text_auto,omitempty"`
	Correlation   *Matrix `json:"correlation,omitempty"`
	Message       string  `json:"message,omitempty"`
}

// Renderable reports whether the spec draws anything.
func (s Spec) Renderable() bool {
	return s.Kind != KindNoneAmbiguous
}

// Matrix is a square correlation matrix. Undefined coefficients are NaN and
// encode as JSON null.
type Matrix struct {
	Columns []string
	Values  [][]float64
}

func (m Matrix) MarshalJSON() ([]byte, error) {
	values := make([][]*float64, len(m.Values))
	for i, row := range m.Values {
		values[i] = make([]*float64, len(row))
		for j, value := range row {
			if math.IsNaN(value) || math.IsInf(value, 0) {
				continue
			}
			v := value
			values[i][j] = &v
		}
	}
	return json.Marshal(struct {
		Columns []string     `json:"columns"`
		Values  [][]*float64 `json:"values"`
	}{Columns: m.Columns, Values: values})
}
