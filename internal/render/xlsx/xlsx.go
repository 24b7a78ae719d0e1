// Package xlsx renders an answered question as an Excel workbook with native
// charts.
package xlsx

import (
	"bytes"
	"fmt"
	"math"

	"github.com/xuri/excelize/v2"

	"github.com/sqlassist/sqlassist/internal/chart"
	"github.com/sqlassist/sqlassist/internal/query"
)

const (
	SheetResults     = "Results"
	SheetCharts      = "Charts"
	SheetCorrelation = "Correlation"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	chartRowSpacing = 20
)

var nativeTypes = map[chart.Kind]excelize.ChartType{
	chart.KindAreaTimeSeries: excelize.Area,
	chart.KindPie:            excelize.Pie,
	chart.KindBar:            excelize.Col,
	chart.KindScatterColored: excelize.Scatter,
}

// Workbook carries what gets rendered. Question and SQL are written above the
// chart listing.
type Workbook struct {
	Question string
	SQL      string
	Result   query.Result
	Charts   []chart.Spec
}

func Render(book Workbook) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetResults); err != nil {
		return nil, fmt.Errorf("rename results sheet: %w", err)
	}
	if err := writeResults(f, book.Result); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(SheetCharts); err != nil {
		return nil, fmt.Errorf("create charts sheet: %w", err)
	}
	if err := writeHeader(f, book); err != nil {
		return nil, err
	}

	anchorColumn, err := excelize.ColumnNumberToName(len(book.Result.Columns) + 2)
	if err != nil {
		return nil, fmt.Errorf("chart anchor column: %w", err)
	}
	listRow := 5
	placed := 0
	for _, spec := range book.Charts {
		placement, err := placeChart(f, book.Result, spec, anchorColumn, placed)
		if err != nil {
			return nil, err
		}
		if placement == placementNative {
			placed++
		}
		if err := f.SetSheetRow(SheetCharts, fmt.Sprintf("A%d", listRow), &[]any{
			string(spec.Kind), spec.Title, columnsOf(spec), placement, spec.Message,
		}); err != nil {
			return nil, fmt.Errorf("list chart: %w", err)
		}
		listRow++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return bytes.Clone(buf.Bytes()), nil
}

const (
	placementNative      = "native chart on Results sheet"
	placementListed      = "no native Excel chart"
	placementCorrelation = "values on Correlation sheet"
	placementEmpty       = "no rows to plot"
	placementNone        = "not rendered"
)

func writeResults(f *excelize.File, result query.Result) error {
	header := make([]any, len(result.Columns))
	for i, column := range result.Columns {
		header[i] = column.Name
	}
	if err := f.SetSheetRow(SheetResults, "A1", &header); err != nil {
		return fmt.Errorf("write header row: %w", err)
	}
	for i, row := range result.Rows {
		values := make([]any, len(row))
		copy(values, row)
		if err := f.SetSheetRow(SheetResults, fmt.Sprintf("A%d", i+2), &values); err != nil {
			return fmt.Errorf("write result row %d: %w", i+1, err)
		}
	}
	return nil
}

func writeHeader(f *excelize.File, book Workbook) error {
	rows := [][]any{
		{"Question", book.Question},
		{"SQL", book.SQL},
		{},
		{"Kind", "Title", "Columns", "Rendering", "Message"},
	}
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		if err := f.SetSheetRow(SheetCharts, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return fmt.Errorf("write charts header: %w", err)
		}
	}
	return nil
}

func placeChart(f *excelize.File, result query.Result, spec chart.Spec, anchorColumn string, placed int) (string, error) {
	switch spec.Kind {
	case chart.KindNoneAmbiguous:
		return placementNone, nil
	case chart.KindCorrelationHeatmap:
		if spec.Correlation == nil {
			return placementNone, nil
		}
		return placementCorrelation, writeCorrelation(f, *spec.Correlation)
	}

	chartType, ok := nativeTypes[spec.Kind]
	if !ok {
		return placementListed, nil
	}
	if len(result.Rows) == 0 {
		return placementEmpty, nil
	}

	categoryName, valueName := spec.X, spec.Y
	if spec.Kind == chart.KindPie {
		categoryName, valueName = spec.Names, spec.Values
	}
	categoryIndex, err := boundColumn(result, spec, 0, categoryName)
	if err != nil {
		return "", err
	}
	valueIndex, err := boundColumn(result, spec, 1, valueName)
	if err != nil {
		return "", err
	}
	categories, err := columnRange(result, categoryIndex)
	if err != nil {
		return "", err
	}
	values, err := columnRange(result, valueIndex)
	if err != nil {
		return "", err
	}
	valueLetter, err := excelize.ColumnNumberToName(valueIndex + 1)
	if err != nil {
		return "", err
	}

	title := spec.Title
	if title == "" {
		title = fmt.Sprintf("%s by %s", valueName, categoryName)
	}
	definition := &excelize.Chart{
		Type: chartType,
		Series: []excelize.ChartSeries{{
			Name:       fmt.Sprintf("%s!$%s$1", SheetResults, valueLetter),
			Categories: categories,
			Values:     values,
		}},
		Title:  []excelize.RichTextRun{{Text: title}},
		Legend: excelize.ChartLegend{Position: "bottom"},
	}
	anchor := fmt.Sprintf("%s%d", anchorColumn, 1+placed*chartRowSpacing)
	if err := f.AddChart(SheetResults, anchor, definition); err != nil {
		return "", fmt.Errorf("add %s chart: %w", spec.Kind, err)
	}
	return placementNative, nil
}

func writeCorrelation(f *excelize.File, matrix chart.Matrix) error {
	if _, err := f.NewSheet(SheetCorrelation); err != nil {
		return fmt.Errorf("create correlation sheet: %w", err)
	}
	header := make([]any, len(matrix.Columns)+1)
	for i, name := range matrix.Columns {
		header[i+1] = name
	}
	if err := f.SetSheetRow(SheetCorrelation, "A1", &header); err != nil {
		return fmt.Errorf("write correlation header: %w", err)
	}
	for i, row := range matrix.Values {
		values := make([]any, len(row)+1)
		if i < len(matrix.Columns) {
			values[0] = matrix.Columns[i]
		}
		for j, value := range row {
			if math.IsNaN(value) || math.IsInf(value, 0) {
				continue
			}
			values[j+1] = math.Round(value*1000) / 1000
		}
		if err := f.SetSheetRow(SheetCorrelation, fmt.Sprintf("A%d", i+2), &values); err != nil {
			return fmt.Errorf("write correlation row: %w", err)
		}
	}
	return nil
}

// boundColumn resolves the pos-th column a spec draws from. Positions win
// over names; specs built by hand may carry names only.
func boundColumn(result query.Result, spec chart.Spec, pos int, name string) (int, error) {
	if pos < len(spec.ColumnIndexes) {
		index := spec.ColumnIndexes[pos]
		if index < 0 || index >= len(result.Columns) {
			return -1, fmt.Errorf("chart column index %d out of range", index)
		}
		return index, nil
	}
	for i, column := range result.Columns {
		if column.Name == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("chart column %q not in result", name)
}

func columnRange(result query.Result, index int) (string, error) {
	letter, err := excelize.ColumnNumberToName(index + 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s!$%s$2:$%s$%d", SheetResults, letter, letter, len(result.Rows)+1), nil
}

func columnsOf(spec chart.Spec) string {
	switch spec.Kind {
	case chart.KindPie:
		return spec.Names + ", " + spec.Values
	case chart.KindScatterColored:
		return spec.X + ", " + spec.Y + ", " + spec.Color
	case chart.KindHistogram, chart.KindBox, chart.KindViolin:
		return spec.Column
	case chart.KindNoneAmbiguous, chart.KindCorrelationHeatmap:
		return ""
	default:
		return spec.X + ", " + spec.Y
	}
}
