package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gota/gota/dataframe"

	"github.com/wilson/dataroom/internal/observability"
)

const citiesCSV = "city,population\nJakarta,10500000\nSurabaya,2900000\nBandung,2500000\n"

type stubPlanner struct {
	plan  ExecutionPlan
	calls int
}

func (s *stubPlanner) CreatePlan(ctx context.Context, question, dataSchema, conversationContext string) ExecutionPlan {
	s.calls++
	if s.plan.Goal == "" {
		return ExecutionPlan{Goal: "Answer: " + question, Steps: []string{"Analyze the data to answer the question"}, ColumnsToUse: []string{}}
	}
	return s.plan
}

type stubExecutor struct {
	result    ExecResult
	err       error
	setCalls  int
	resetDone bool
	lastFrame *dataframe.DataFrame
}

func (s *stubExecutor) Execute(ctx context.Context, plan ExecutionPlan, df *dataframe.DataFrame, question string) (ExecResult, error) {
	return s.result, s.err
}

func (s *stubExecutor) SetDataFrame(df *dataframe.DataFrame) {
	s.setCalls++
	s.lastFrame = df
}

func (s *stubExecutor) Reset() {
	s.resetDone = true
	s.lastFrame = nil
}

func newTestOrchestrator(planner Planner, executor Executor) *Orchestrator {
	return NewOrchestrator("test-session", planner, executor, nil, nil, 5)
}

func TestProcessQueryWithoutData(t *testing.T) {
	planner := &stubPlanner{}
	o := newTestOrchestrator(planner, &stubExecutor{})

	result := o.ProcessQuery(context.Background(), "how many rows?")

	if result.Success {
		t.Fatal("expected failure without data")
	}
	if result.Error != "Please upload a data file first." {
		t.Errorf("error: %q", result.Error)
	}
	if len(o.ConversationHistory()) != 0 {
		t.Error("memory must not be mutated when no data is loaded")
	}
	if planner.calls != 0 {
		t.Error("planner must not be invoked when no data is loaded")
	}
}

func TestLoadDataSuccess(t *testing.T) {
	executor := &stubExecutor{}
	o := newTestOrchestrator(&stubPlanner{}, executor)

	ok, msg := o.LoadData([]byte(citiesCSV), "cities.csv")
	if !ok {
		t.Fatalf("load failed: %s", msg)
	}
	if executor.setCalls != 1 || executor.lastFrame == nil {
		t.Error("executor must receive the loaded table")
	}

	info := o.DataInfo()
	for _, want := range []string{"Total Rows: 3", "Total Columns: 2", "city", "population"} {
		if !strings.Contains(info, want) {
			t.Errorf("info missing %q:\n%s", want, info)
		}
	}
}

func TestLoadDataFailureHasNoSideEffects(t *testing.T) {
	executor := &stubExecutor{result: ExecResult{Answer: "ok"}}
	o := newTestOrchestrator(&stubPlanner{}, executor)

	if ok, _ := o.LoadData([]byte(citiesCSV), "cities.csv"); !ok {
		t.Fatal("initial load failed")
	}
	o.ProcessQuery(context.Background(), "first question")
	historyBefore := len(o.ConversationHistory())
	setCallsBefore := executor.setCalls

	// Wrong extension: rejected at validation.
	if ok, msg := o.LoadData([]byte("x"), "data.txt"); ok {
		t.Fatalf("expected validation failure, got %q", msg)
	}
	// Header-only file: rejected at parse.
	if ok, msg := o.LoadData([]byte("a,b\n"), "empty.csv"); ok {
		t.Fatalf("expected parse failure, got %q", msg)
	}

	if len(o.ConversationHistory()) != historyBefore {
		t.Error("failed load must not touch conversation history")
	}
	if executor.setCalls != setCallsBefore {
		t.Error("failed load must not hand a table to the executor")
	}
	if !strings.Contains(o.DataInfo(), "Total Rows: 3") {
		t.Error("failed load must keep the previous table")
	}
}

func TestLoadDataReplacesTableAndClearsChat(t *testing.T) {
	executor := &stubExecutor{result: ExecResult{Answer: "ok"}}
	o := newTestOrchestrator(&stubPlanner{}, executor)

	o.LoadData([]byte(citiesCSV), "cities.csv")
	o.ProcessQuery(context.Background(), "a question")
	if len(o.ConversationHistory()) == 0 {
		t.Fatal("expected recorded turns")
	}

	ok, _ := o.LoadData([]byte("item,price\npen,2\n"), "items.csv")
	if !ok {
		t.Fatal("reload failed")
	}
	if len(o.ConversationHistory()) != 0 {
		t.Error("new file must clear the conversation window")
	}
	if !strings.Contains(o.DataInfo(), "Total Rows: 1") {
		t.Error("table must be replaced in place")
	}
}

func TestProcessQuerySuccess(t *testing.T) {
	executor := &stubExecutor{result: ExecResult{Answer: "There are 3 rows.", ChartPath: "exports/charts/x.html"}}
	planner := &stubPlanner{plan: ExecutionPlan{
		Goal:               "Count rows",
		Steps:              []string{"Count them"},
		NeedsVisualization: true,
		ChartType:          "bar",
		ColumnsToUse:       []string{},
	}}
	o := newTestOrchestrator(planner, executor)
	o.LoadData([]byte(citiesCSV), "cities.csv")

	result := o.ProcessQuery(context.Background(), "how many rows?")

	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.Answer != "There are 3 rows." {
		t.Errorf("answer: %q", result.Answer)
	}
	if !strings.Contains(result.PlanDisplay, "**Goal:** Count rows") {
		t.Errorf("plan display: %q", result.PlanDisplay)
	}
	if result.ImagePath != "exports/charts/x.html" {
		t.Errorf("image path: %q", result.ImagePath)
	}

	history := o.ConversationHistory()
	if len(history) != 2 {
		t.Fatalf("expected user+assistant turns, got %d", len(history))
	}
	if history[0].Role != "user" || history[1].Role != "assistant" {
		t.Errorf("roles: %s/%s", history[0].Role, history[1].Role)
	}
	if history[1].ChartData["path"] != "exports/charts/x.html" {
		t.Error("assistant turn must carry the chart descriptor")
	}
}

func TestProcessQueryExecutorFailureKeepsUserTurn(t *testing.T) {
	executor := &stubExecutor{err: errors.New("panic in generated code")}
	o := newTestOrchestrator(&stubPlanner{}, executor)
	o.LoadData([]byte(citiesCSV), "cities.csv")

	result := o.ProcessQuery(context.Background(), "break please")

	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Error == "" || result.Answer != result.Error {
		t.Errorf("failure must set answer and error to the wrapped message: %+v", result)
	}
	if !strings.Contains(result.Error, "Error processing query") {
		t.Errorf("error: %q", result.Error)
	}
	if result.ResultTable != nil || result.ImagePath != "" {
		t.Error("failure must not populate partial fields")
	}

	history := o.ConversationHistory()
	if len(history) != 1 || history[0].Role != "user" {
		t.Fatalf("user turn must be recorded before planning, got %d messages", len(history))
	}
	if history[0].Content != "break please" {
		t.Errorf("user turn content: %q", history[0].Content)
	}
}

func TestClearConversationKeepsData(t *testing.T) {
	executor := &stubExecutor{result: ExecResult{Answer: "ok"}}
	o := newTestOrchestrator(&stubPlanner{}, executor)
	o.LoadData([]byte(citiesCSV), "cities.csv")
	o.ProcessQuery(context.Background(), "q")

	o.ClearConversation()

	if len(o.ConversationHistory()) != 0 {
		t.Error("history must be empty after clear")
	}
	if o.DataPreview(2) == nil {
		t.Error("table must survive ClearConversation")
	}
}

func TestReset(t *testing.T) {
	executor := &stubExecutor{result: ExecResult{Answer: "ok"}}
	o := newTestOrchestrator(&stubPlanner{}, executor)
	o.LoadData([]byte(citiesCSV), "cities.csv")
	o.ProcessQuery(context.Background(), "q")

	o.Reset()

	if o.DataPreview(5) != nil {
		t.Error("preview must be absent after reset")
	}
	if len(o.ConversationHistory()) != 0 {
		t.Error("history must be empty after reset")
	}
	if !executor.resetDone {
		t.Error("executor state must be cleared on reset")
	}
	if o.DataInfo() != "No data loaded." {
		t.Errorf("info after reset: %q", o.DataInfo())
	}
}

func TestProcessQueryMirrorsLLMExchange(t *testing.T) {
	llmLog := filepath.Join(t.TempDir(), "llm.jsonl")
	logger := observability.NewLoggerWithPath(llmLog)

	planner := &stubPlanner{plan: ExecutionPlan{
		Goal:        "Count rows",
		Steps:       []string{"Count them"},
		RawResponse: `{"goal":"Count rows"}`,
	}}
	o := NewOrchestrator("test-session", planner, &stubExecutor{result: ExecResult{Answer: "3"}}, nil, logger, 5)
	o.LoadData([]byte(citiesCSV), "cities.csv")

	o.ProcessQuery(context.Background(), "how many rows?")

	data, err := os.ReadFile(llmLog)
	if err != nil {
		t.Fatalf("llm exchange not mirrored to disk: %v", err)
	}
	for _, want := range []string{"how many rows?", "Count rows", `"type":"llm"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("llm log missing %q:\n%s", want, data)
		}
	}
}

func TestDataPreview(t *testing.T) {
	o := newTestOrchestrator(&stubPlanner{}, &stubExecutor{})

	if o.DataPreview(5) != nil {
		t.Error("preview must be nil before any load")
	}

	o.LoadData([]byte(citiesCSV), "cities.csv")
	preview := o.DataPreview(2)
	if preview == nil || preview.Nrow() != 2 {
		t.Fatalf("expected 2-row preview, got %v", preview)
	}
}
