package chart

import (
	"fmt"
	"strings"

	"github.com/sqlassist/sqlassist/internal/query"
)

const DefaultCategoryThreshold = 10

type Options struct {
	// CategoryThreshold is the largest distinct count of a categorical
	// first column that still gets a pie chart. Zero means the default.
	CategoryThreshold int
	// PieOnEmpty keeps the pie branch for a two-column categorical result
	// with no rows instead of reporting it as ambiguous.
	PieOnEmpty bool
}

func DefaultOptions() Options {
	return Options{CategoryThreshold: DefaultCategoryThreshold}
}

// Rule is one row of the decision table. Rules are tried in order and the
// first whose Match returns true builds the directives.
type Rule struct {
	Name  string
	Match func(frame query.Result) bool
	Build func(frame query.Result, opts Options) []Spec
}

type Decision struct {
	Rule  string
	Specs []Spec
}

type Selector struct {
	rules []Rule
	opts  Options
}

func NewSelector(opts Options) *Selector {
	if opts.CategoryThreshold <= 0 {
		opts.CategoryThreshold = DefaultCategoryThreshold
	}
	return &Selector{rules: DefaultRules(), opts: opts}
}

func (s *Selector) Select(frame query.Result) []Spec {
	return s.Decide(frame).Specs
}

// Decide is Select plus the name of the rule that fired.
func (s *Selector) Decide(frame query.Result) Decision {
	for _, rule := range s.rules {
		if rule.Match(frame) {
			return Decision{Rule: rule.Name, Specs: rule.Build(frame, s.opts)}
		}
	}
	return Decision{Rule: "no-columns", Specs: []Spec{none(MessageNoColumns)}}
}

func DefaultRules() []Rule {
	return []Rule{
		{Name: "time-series", Match: isTimeSeries, Build: buildTimeSeries},
		{Name: "two-columns", Match: columnCount(2), Build: buildTwoColumns},
		{Name: "three-columns", Match: columnCount(3), Build: buildScatter},
		{Name: "one-column", Match: columnCount(1), Build: buildDistribution},
		{Name: "wide", Match: func(frame query.Result) bool { return len(frame.Columns) >= 4 }, Build: buildWide},
	}
}

func columnCount(n int) func(query.Result) bool {
	return func(frame query.Result) bool { return len(frame.Columns) == n }
}

func isTimeSeries(frame query.Result) bool {
	if len(frame.Columns) < 2 {
		return false
	}
	name := strings.ToLower(frame.Columns[0].Name)
	return strings.Contains(name, "date") || strings.Contains(name, "time")
}

func buildTimeSeries(frame query.Result, _ Options) []Spec {
	return []Spec{{
		Kind:          KindAreaTimeSeries,
		Title:         TitleTimeSeries,
		X:             frame.Columns[0].Name,
		Y:             frame.Columns[1].Name,
		ColumnIndexes: []int{0, 1},
	}}
}

func buildTwoColumns(frame query.Result, opts Options) []Spec {
	col0, col1 := frame.Columns[0].Name, frame.Columns[1].Name
	if !isCategorical(frame.Columns[0]) {
		return []Spec{{Kind: KindBar, Title: TitleBar, X: col0, Y: col1, ColumnIndexes: []int{0, 1}}}
	}
	if len(frame.Rows) == 0 && !opts.PieOnEmpty {
		return []Spec{none(MessageNoRows)}
	}
	if distinctCount(frame.Values(0)) <= opts.CategoryThreshold {
		return []Spec{{
			Kind:          KindPie,
			Title:         fmt.Sprintf("Pie Chart of %s by %s", col1, col0),
			Names:         col0,
			Values:        col1,
			ColumnIndexes: []int{0, 1},
		}}
	}
	return []Spec{{
		Kind:          KindBar,
		Title:         fmt.Sprintf("Bar Chart of %s by %s", col1, col0),
		X:             col0,
		Y:             col1,
		ColumnIndexes: []int{0, 1},
	}}
}

func buildScatter(frame query.Result, _ Options) []Spec {
	return []Spec{{
		Kind:          KindScatterColored,
		Title:         TitleScatter,
		X:             frame.Columns[0].Name,
		Y:             frame.Columns[1].Name,
		Color:         frame.Columns[2].Name,
		ColumnIndexes: []int{0, 1, 2},
	}}
}

func buildDistribution(frame query.Result, _ Options) []Spec {
	column := frame.Columns[0].Name
	return []Spec{
		{Kind: KindHistogram, Title: TitleHistogram, Column: column, ColumnIndexes: []int{0}},
		{Kind: KindBox, Title: TitleBox, Column: column, ColumnIndexes: []int{0}},
		{Kind: KindViolin, Title: TitleViolin, Column: column, ColumnIndexes: []int{0}, BoxOverlay: true, AllPoints: true},
	}
}

func buildWide(frame query.Result, _ Options) []Spec {
	for _, column := range frame.Columns {
		if !isNumeric(column) {
			return []Spec{none(MessageMixedWide)}
		}
	}
	matrix := Correlate(frame)
	return []Spec{{
		Kind:        KindCorrelationHeatmap,
		Title:       TitleCorrelation,
		TextAuto:    true,
		Correlation: &matrix,
	}}
}

func none(message string) Spec {
	return Spec{Kind: KindNoneAmbiguous, Message: message}
}

// Columns of unknown kind are treated as labels.
func isCategorical(column query.Column) bool {
	return column.Kind == query.KindCategorical || column.Kind == query.KindUnknown
}

func isNumeric(column query.Column) bool {
	return column.Kind == query.KindNumeric || column.Kind == query.KindBoolean
}

func distinctCount(values []any) int {
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		if value == nil {
			continue
		}
		seen[distinctKey(value)] = struct{}{}
	}
	return len(seen)
}

func distinctKey(value any) string {
	if text, ok := value.(string); ok {
		return "s:" + text
	}
	return fmt.Sprintf("%T:%v", value, value)
}
