package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/go-gota/gota/dataframe"

	"github.com/wilson/dataroom/internal/charts"
)

func testFrame() *dataframe.DataFrame {
	df := dataframe.LoadRecords([][]string{
		{"city", "population"},
		{"Jakarta", "10500000"},
		{"Surabaya", "2900000"},
		{"Jakarta", "100"},
		{"Bandung", "2500000"},
	})
	return &df
}

func TestExecuteGroupAggregate(t *testing.T) {
	e := NewLocalExecutor(nil)
	plan := ExecutionPlan{
		Goal:         "Total population per city",
		Steps:        []string{"Group by city", "Sum population"},
		ColumnsToUse: []string{"city", "population"},
		Aggregation:  "sum",
	}

	res, err := e.Execute(context.Background(), plan, testFrame(), "population per city?")
	if err != nil {
		t.Fatal(err)
	}
	if res.ResultTable == nil {
		t.Fatal("expected an aggregated result table")
	}
	if res.ResultTable.Nrow() != 3 {
		t.Errorf("expected 3 groups, got %d", res.ResultTable.Nrow())
	}
	if !strings.Contains(res.Answer, "sum") || !strings.Contains(res.Answer, "city") {
		t.Errorf("answer: %q", res.Answer)
	}
}

func TestExecuteScalarAggregate(t *testing.T) {
	e := NewLocalExecutor(nil)
	plan := ExecutionPlan{
		Goal:         "Maximum population",
		Steps:        []string{"Find max"},
		ColumnsToUse: []string{"population"},
		Aggregation:  "max",
	}

	res, err := e.Execute(context.Background(), plan, testFrame(), "max population?")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Answer, "10500000") {
		t.Errorf("answer should contain the max value: %q", res.Answer)
	}
}

func TestExecuteFilters(t *testing.T) {
	e := NewLocalExecutor(nil)
	plan := ExecutionPlan{
		Goal:        "Jakarta total",
		Steps:       []string{"Filter", "Sum"},
		Aggregation: "sum",
		Filters:     map[string]any{"city": "Jakarta", "nonexistent": "x", "weird": []any{1}},
	}

	res, err := e.Execute(context.Background(), plan, testFrame(), "jakarta only")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Answer, "10500100") {
		t.Errorf("expected filtered sum 10500100 in answer: %q", res.Answer)
	}
}

func TestExecuteFiltersNoMatch(t *testing.T) {
	e := NewLocalExecutor(nil)
	plan := ExecutionPlan{
		Goal:    "Nothing",
		Steps:   []string{"Filter"},
		Filters: map[string]any{"city": "Atlantis"},
	}

	res, err := e.Execute(context.Background(), plan, testFrame(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if res.Answer != "No rows match the requested filters." {
		t.Errorf("answer: %q", res.Answer)
	}
}

func TestExecuteUnknownColumnsAreSkipped(t *testing.T) {
	e := NewLocalExecutor(nil)
	plan := ExecutionPlan{
		Goal:         "Preview",
		Steps:        []string{"Show"},
		ColumnsToUse: []string{"no_such_column"},
	}

	res, err := e.Execute(context.Background(), plan, testFrame(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if res.ResultTable == nil || res.ResultTable.Ncol() != 2 {
		t.Error("fully-unknown column request should fall back to all columns")
	}
}

func TestExecuteValueCounts(t *testing.T) {
	e := NewLocalExecutor(nil)
	plan := ExecutionPlan{
		Goal:         "Count cities",
		Steps:        []string{"Count"},
		ColumnsToUse: []string{"city"},
		Aggregation:  "count",
	}

	res, err := e.Execute(context.Background(), plan, testFrame(), "how many per city?")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Answer, "3 distinct values") {
		t.Errorf("answer: %q", res.Answer)
	}
}

func TestExecuteRendersChart(t *testing.T) {
	e := NewLocalExecutor(charts.NewRenderer(t.TempDir()))
	plan := ExecutionPlan{
		Goal:               "Population per city",
		Steps:              []string{"Group", "Sum", "Chart"},
		NeedsVisualization: true,
		ChartType:          "bar_chart",
		ColumnsToUse:       []string{"city", "population"},
		Aggregation:        "sum",
	}

	res, err := e.Execute(context.Background(), plan, testFrame(), "chart it")
	if err != nil {
		t.Fatal(err)
	}
	if res.ChartPath == "" {
		t.Fatal("expected a chart path")
	}
	if !strings.HasSuffix(res.ChartPath, ".html") {
		t.Errorf("chart path: %q", res.ChartPath)
	}
}

func TestExecuteUsesCachedFrame(t *testing.T) {
	e := NewLocalExecutor(nil)
	e.SetDataFrame(testFrame())

	res, err := e.Execute(context.Background(), ExecutionPlan{Goal: "g", Steps: []string{"s"}}, nil, "q")
	if err != nil {
		t.Fatal(err)
	}
	if res.Answer == "" {
		t.Error("expected an answer from the cached frame")
	}

	e.Reset()
	if _, err := e.Execute(context.Background(), ExecutionPlan{Goal: "g", Steps: []string{"s"}}, nil, "q"); err == nil {
		t.Error("expected error after Reset with no frame")
	}
}
