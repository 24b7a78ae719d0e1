package xlsx

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/sqlassist/sqlassist/internal/chart"
	"github.com/sqlassist/sqlassist/internal/query"
)

func regionRevenue() query.Result {
	return query.Result{
		Columns: []query.Column{
			{Name: "region", Kind: query.KindCategorical},
			{Name: "revenue", Kind: query.KindNumeric},
		},
		Rows: [][]any{{"north", 120.5}, {"south", 80.0}, {"east", 42.0}},
	}
}

func TestRenderWritesResultsAndNativeChart(t *testing.T) {
	data, err := Render(Workbook{
		Question: "revenue by region",
		SQL:      "SELECT region, revenue FROM sales",
		Result:   regionRevenue(),
		Charts:   []chart.Spec{{Kind: chart.KindPie, Names: "region", Values: "revenue"}},
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(SheetResults)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 4 || rows[0][0] != "region" || rows[1][0] != "north" || rows[1][1] != "120.5" {
		t.Fatalf("results rows = %#v", rows)
	}

	listed, err := f.GetCellValue(SheetCharts, "D5")
	if err != nil {
		t.Fatalf("GetCellValue() error = %v", err)
	}
	if listed != placementNative {
		t.Fatalf("rendering = %q", listed)
	}
	if count := chartParts(t, data); count != 1 {
		t.Fatalf("chart parts = %d, want 1", count)
	}
}

func TestRenderListsDistributionTrioWithoutNativeCharts(t *testing.T) {
	result := query.Result{
		Columns: []query.Column{{Name: "amount", Kind: query.KindNumeric}},
		Rows:    [][]any{{1.0}, {2.0}, {3.0}},
	}
	specs := []chart.Spec{
		{Kind: chart.KindHistogram, Title: chart.TitleHistogram, Column: "amount"},
		{Kind: chart.KindBox, Title: chart.TitleBox, Column: "amount"},
		{Kind: chart.KindViolin, Title: chart.TitleViolin, Column: "amount"},
	}
	data, err := Render(Workbook{Result: result, Charts: specs})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if count := chartParts(t, data); count != 0 {
		t.Fatalf("chart parts = %d, want 0", count)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()
	for row, kind := range []string{"histogram", "box", "violin"} {
		cell := fmt.Sprintf("A%d", 5+row)
		got, _ := f.GetCellValue(SheetCharts, cell)
		if got != kind {
			t.Fatalf("%s = %q, want %q", cell, got, kind)
		}
	}
}

func TestRenderWritesCorrelationSheet(t *testing.T) {
	matrix := chart.Matrix{
		Columns: []string{"a", "b"},
		Values:  [][]float64{{1, 0.5}, {0.5, math.NaN()}},
	}
	data, err := Render(Workbook{
		Result: query.Result{Columns: []query.Column{{Name: "a"}, {Name: "b"}}, Rows: [][]any{}},
		Charts: []chart.Spec{{Kind: chart.KindCorrelationHeatmap, Correlation: &matrix}},
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	if got, _ := f.GetCellValue(SheetCorrelation, "C2"); got != "0.5" {
		t.Fatalf("C2 = %q", got)
	}
	if got, _ := f.GetCellValue(SheetCorrelation, "C3"); got != "" {
		t.Fatalf("undefined coefficient should be blank, got %q", got)
	}
}

func TestRenderSkipsChartsForEmptyResult(t *testing.T) {
	result := regionRevenue()
	result.Rows = [][]any{}
	data, err := Render(Workbook{Result: result, Charts: []chart.Spec{{Kind: chart.KindBar, X: "region", Y: "revenue"}}})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if count := chartParts(t, data); count != 0 {
		t.Fatalf("chart parts = %d, want 0", count)
	}
}

func TestRenderRejectsUnknownChartColumn(t *testing.T) {
	_, err := Render(Workbook{Result: regionRevenue(), Charts: []chart.Spec{{Kind: chart.KindBar, X: "region", Y: "missing"}}})
	if err == nil {
		t.Fatal("expected unknown column error")
	}
}

func TestRenderBindsRepeatedColumnNamesByPosition(t *testing.T) {
	result := query.Result{
		Columns: []query.Column{
			{Name: "region", Kind: query.KindCategorical},
			{Name: "total", Kind: query.KindNumeric},
			{Name: "total", Kind: query.KindNumeric},
		},
		Rows: [][]any{{"north", 1.0, 120.5}, {"south", 2.0, 80.0}, {"east", 3.0, 42.0}},
	}
	spec := chart.Spec{Kind: chart.KindBar, X: "region", Y: "total", ColumnIndexes: []int{0, 2}}
	data, err := Render(Workbook{Result: result, Charts: []chart.Spec{spec}})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	xml := chartXML(t, data)
	if !strings.Contains(xml, "$C$2:$C$4") {
		t.Fatalf("chart should plot column C, got %s", xml)
	}
	if strings.Contains(xml, "$B$2:$B$4") {
		t.Fatalf("chart plots the first column named total: %s", xml)
	}
}

func chartXML(t *testing.T, data []byte) string {
	t.Helper()
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader() error = %v", err)
	}
	for _, file := range archive.File {
		if !strings.HasPrefix(file.Name, "xl/charts/chart") {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			t.Fatalf("open %s: %v", file.Name, err)
		}
		raw, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", file.Name, err)
		}
		return string(raw)
	}
	t.Fatal("no chart part in workbook")
	return ""
}

func chartParts(t *testing.T, data []byte) int {
	t.Helper()
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader() error = %v", err)
	}
	count := 0
	for _, file := range archive.File {
		if strings.HasPrefix(file.Name, "xl/charts/chart") {
			count++
		}
	}
	return count
}
