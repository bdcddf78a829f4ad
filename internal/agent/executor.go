package agent

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/wilson/dataroom/internal/charts"
)

// ExecResult is what the executor hands back for one question.
type ExecResult struct {
	Answer      string
	ResultTable *dataframe.DataFrame
	ChartPath   string
}

// Executor consumes an ExecutionPlan, the active table and the
// question, and produces an answer plus optional table and chart.
type Executor interface {
	Execute(ctx context.Context, plan ExecutionPlan, df *dataframe.DataFrame, question string) (ExecResult, error)
	SetDataFrame(df *dataframe.DataFrame)
	Reset()
}

var aggregationTypes = map[string]dataframe.AggregationType{
	"sum":   dataframe.Aggregation_SUM,
	"mean":  dataframe.Aggregation_MEAN,
	"count": dataframe.Aggregation_COUNT,
	"max":   dataframe.Aggregation_MAX,
	"min":   dataframe.Aggregation_MIN,
}

// LocalExecutor executes plans deterministically against the loaded
// dataframe: column selection, equality filters, aggregation and
// chart production. It caches the table it was last given but does
// not own it.
type LocalExecutor struct {
	Charts *charts.Renderer

	df *dataframe.DataFrame

	previewRows int
}

func NewLocalExecutor(renderer *charts.Renderer) *LocalExecutor {
	return &LocalExecutor{Charts: renderer, previewRows: 10}
}

// SetDataFrame caches the active table for subsequent Execute calls.
func (e *LocalExecutor) SetDataFrame(df *dataframe.DataFrame) {
	e.df = df
}

// Reset drops whatever table state the executor holds.
func (e *LocalExecutor) Reset() {
	e.df = nil
}

// Execute runs the plan. Unknown columns are skipped, unknown chart
// tags auto-detect, and filter values that are not scalars are
// ignored rather than guessed at.
func (e *LocalExecutor) Execute(ctx context.Context, plan ExecutionPlan, df *dataframe.DataFrame, question string) (ExecResult, error) {
	if df == nil {
		df = e.df
	}
	if df == nil {
		return ExecResult{}, fmt.Errorf("no dataframe available")
	}
	if err := ctx.Err(); err != nil {
		return ExecResult{}, err
	}

	working := selectColumns(*df, plan.ColumnsToUse)
	working = applyFilters(working, plan.Filters)
	if working.Err != nil {
		return ExecResult{}, working.Err
	}
	if working.Nrow() == 0 {
		return ExecResult{Answer: "No rows match the requested filters."}, nil
	}

	agg := strings.ToLower(strings.TrimSpace(plan.Aggregation))
	if _, known := aggregationTypes[agg]; !known {
		agg = ""
	}

	var result ExecResult
	var labels []string
	var values []float64

	catCol := firstColumnOfKind(working, false)
	numCol := firstColumnOfKind(working, true)

	switch {
	case agg != "" && catCol != "" && numCol != "" && agg != "count":
		grouped, err := groupAggregate(working, catCol, numCol, agg)
		if err != nil {
			return ExecResult{}, err
		}
		labels, values = grouped.labels, grouped.values
		result.ResultTable = grouped.table
		if len(labels) == 1 {
			result.Answer = fmt.Sprintf("The %s of %s for %s is %s.",
				agg, numCol, labels[0], formatNumber(values[0]))
		} else {
			result.Answer = fmt.Sprintf("Computed the %s of %s by %s across %d groups.",
				agg, numCol, catCol, len(labels))
		}

	case (agg == "count" || charts.Normalize(plan.ChartType) == charts.TagCount) && catCol != "":
		labels, values = valueCounts(working, catCol)
		result.Answer = fmt.Sprintf("Counted occurrences of %s: %d distinct values over %d rows.",
			catCol, len(labels), working.Nrow())

	case agg == "count":
		result.Answer = fmt.Sprintf("The table has %d rows.", working.Nrow())

	case agg != "" && numCol != "":
		value := scalarAggregate(working.Col(numCol), agg)
		result.Answer = fmt.Sprintf("The %s of %s is %s.", agg, numCol, formatNumber(value))

	default:
		head := headRows(working, e.previewRows)
		result.ResultTable = &head
		result.Answer = fmt.Sprintf("Showing the first %d of %d rows for: %s",
			head.Nrow(), working.Nrow(), plan.Goal)
		if numCol != "" {
			labels, values = columnSeries(working, catCol, numCol)
		}
	}

	if plan.NeedsVisualization && e.Charts != nil && len(values) > 0 {
		path, err := e.Charts.Render(plan.ChartType, plan.Goal, labels, values)
		if err != nil {
			return ExecResult{}, fmt.Errorf("chart rendering failed: %w", err)
		}
		result.ChartPath = path
	}

	return result, nil
}

// selectColumns keeps the requested columns that actually exist; an
// empty or fully-unknown request means "use everything".
func selectColumns(df dataframe.DataFrame, requested []string) dataframe.DataFrame {
	known := map[string]bool{}
	for _, name := range df.Names() {
		known[name] = true
	}

	var valid []string
	for _, name := range requested {
		if known[name] {
			valid = append(valid, name)
		}
	}
	if len(valid) == 0 {
		return df
	}
	return df.Select(valid)
}

func applyFilters(df dataframe.DataFrame, filters map[string]any) dataframe.DataFrame {
	if len(filters) == 0 {
		return df
	}

	known := map[string]bool{}
	for _, name := range df.Names() {
		known[name] = true
	}

	// Deterministic filter order; map iteration is not.
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, col := range keys {
		if !known[col] {
			continue
		}
		value := filters[col]
		switch value.(type) {
		case string, float64, int, bool:
		default:
			continue
		}
		filtered := df.Filter(dataframe.F{Colname: col, Comparator: series.Eq, Comparando: value})
		if filtered.Err != nil {
			continue
		}
		df = filtered
	}
	return df
}

func firstColumnOfKind(df dataframe.DataFrame, numeric bool) string {
	for _, name := range df.Names() {
		t := df.Col(name).Type()
		isNumeric := t == series.Int || t == series.Float
		if isNumeric == numeric {
			return name
		}
	}
	return ""
}

type groupedResult struct {
	labels []string
	values []float64
	table  *dataframe.DataFrame
}

func groupAggregate(df dataframe.DataFrame, catCol, numCol, agg string) (groupedResult, error) {
	grouped := df.GroupBy(catCol).Aggregation(
		[]dataframe.AggregationType{aggregationTypes[agg]},
		[]string{numCol},
	)
	if grouped.Err != nil {
		return groupedResult{}, grouped.Err
	}
	grouped = grouped.Arrange(dataframe.Sort(catCol))
	if grouped.Err != nil {
		return groupedResult{}, grouped.Err
	}

	// The aggregated column carries a type suffix (for example
	// "population_SUM"); it is whichever column is not the key.
	valueCol := ""
	for _, name := range grouped.Names() {
		if name != catCol {
			valueCol = name
		}
	}

	keys := grouped.Col(catCol)
	vals := grouped.Col(valueCol)
	res := groupedResult{table: &grouped}
	for i := 0; i < grouped.Nrow(); i++ {
		res.labels = append(res.labels, keys.Elem(i).String())
		res.values = append(res.values, vals.Elem(i).Float())
	}
	return res, nil
}

func valueCounts(df dataframe.DataFrame, col string) ([]string, []float64) {
	counts := map[string]float64{}
	s := df.Col(col)
	for i := 0; i < s.Len(); i++ {
		if s.Elem(i).IsNA() {
			continue
		}
		counts[s.Elem(i).String()]++
	}

	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	values := make([]float64, len(labels))
	for i, label := range labels {
		values[i] = counts[label]
	}
	return labels, values
}

func scalarAggregate(s series.Series, agg string) float64 {
	switch agg {
	case "sum":
		return s.Sum()
	case "mean":
		return s.Mean()
	case "max":
		return s.Max()
	case "min":
		return s.Min()
	default:
		return float64(s.Len())
	}
}

func columnSeries(df dataframe.DataFrame, catCol, numCol string) ([]string, []float64) {
	var labels []string
	var values []float64

	nums := df.Col(numCol)
	var keys series.Series
	if catCol != "" {
		keys = df.Col(catCol)
	}

	for i := 0; i < nums.Len(); i++ {
		if nums.Elem(i).IsNA() {
			continue
		}
		values = append(values, nums.Elem(i).Float())
		if catCol != "" {
			labels = append(labels, keys.Elem(i).String())
		}
	}
	return labels, values
}

func headRows(df dataframe.DataFrame, n int) dataframe.DataFrame {
	if df.Nrow() <= n {
		return df
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return df.Subset(idx)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
