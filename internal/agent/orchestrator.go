package agent

import (
	"context"
	"fmt"
	"log"

	"github.com/go-gota/gota/dataframe"

	"github.com/wilson/dataroom/internal/dataloader"
	"github.com/wilson/dataroom/internal/memory"
	"github.com/wilson/dataroom/internal/observability"
	"github.com/wilson/dataroom/internal/store"
)

const noDataError = "Please upload a data file first."

// Result is the uniform shape every ProcessQuery call resolves to.
// The caller never sees a raw error: failures arrive with Success
// false and Answer/Error both carrying a wrapped description.
type Result struct {
	Success     bool
	Answer      string
	PlanDisplay string
	ResultTable *dataframe.DataFrame
	ImagePath   string
	Error       string
}

// Orchestrator sequences load → plan → execute → record for one
// conversation. It exclusively owns its memory, loader and active
// table; the planner and executor are stateless collaborators. One
// orchestrator serves one session — there is no internal locking, so
// concurrent sessions each get their own instance via the registry.
type Orchestrator struct {
	sessionID string

	loader   *dataloader.Loader
	memory   *memory.ConversationMemory
	planner  Planner
	executor Executor

	audit  *store.AuditStore     // optional plan diagnostics
	logger *observability.Logger // optional event log

	currentDF *dataframe.DataFrame
}

func NewOrchestrator(sessionID string, planner Planner, executor Executor, audit *store.AuditStore, logger *observability.Logger, memoryWindow int) *Orchestrator {
	return &Orchestrator{
		sessionID: sessionID,
		loader:    dataloader.New(),
		memory:    memory.New(memoryWindow),
		planner:   planner,
		executor:  executor,
		audit:     audit,
		logger:    logger,
	}
}

// LoadData validates and parses an upload. On success it atomically
// replaces the active table, clears the conversation window, refreshes
// the schema/info caches and hands the table to the executor. On any
// failure no state changes at all.
func (o *Orchestrator) LoadData(fileBytes []byte, fileName string) (bool, string) {
	if ok, msg := o.loader.Validate(fileName, int64(len(fileBytes))); !ok {
		return false, msg
	}

	ok, msg, df := o.loader.Load(fileBytes, fileName)
	if !ok {
		return false, msg
	}

	o.currentDF = df
	o.memory.ClearMessages()
	o.memory.SetDataSchema(o.loader.Schema(df))
	o.memory.SetDataframeInfo(o.loader.Info(df))
	o.executor.SetDataFrame(df)

	if o.logger != nil {
		o.logger.LogLoad(o.sessionID, fileName, df.Nrow(), df.Ncol())
	}
	return true, msg
}

// ProcessQuery runs one conversational turn. With no table loaded it
// fails fast without touching memory. Otherwise the user turn is
// recorded before planning, so a later failure still leaves the
// question in history — deliberate, pinned by test.
func (o *Orchestrator) ProcessQuery(ctx context.Context, question string) (result Result) {
	if o.currentDF == nil {
		return Result{Error: noDataError}
	}

	// Anything unexpected below this point still resolves to the
	// uniform failure shape.
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("Error processing query: %v", r)
			result = Result{Answer: msg, Error: msg, PlanDisplay: result.PlanDisplay}
		}
	}()

	o.memory.AddMessage("user", question)

	schema := o.loader.Schema(o.currentDF)
	conversation := o.memory.Context()

	plan := o.planner.CreatePlan(ctx, question, schema, conversation)
	planDisplay := FormatPlanDisplay(plan)
	result.PlanDisplay = planDisplay

	if o.logger != nil {
		o.logger.LogPlan(o.sessionID, question, plan.Goal, plan.Fallback)
		o.logger.LogLLM(o.sessionID, question, plan.RawResponse)
	}
	if o.audit != nil {
		if err := o.audit.RecordPlan(o.sessionID, question, plan.Goal, plan.Fallback, plan.RawResponse); err != nil {
			log.Printf("Warning: failed to record plan audit: %v", err)
		}
	}

	execRes, err := o.executor.Execute(ctx, plan, o.currentDF, question)
	if err != nil {
		msg := fmt.Sprintf("Error processing query: %v", err)
		return Result{Answer: msg, Error: msg, PlanDisplay: planDisplay}
	}

	opts := []memory.Option{memory.WithPlanDisplay(planDisplay)}
	if execRes.ChartPath != "" {
		opts = append(opts, memory.WithChartData(map[string]any{
			"path": execRes.ChartPath,
			"type": plan.ChartType,
		}))
	}
	o.memory.AddMessage("assistant", execRes.Answer, opts...)

	return Result{
		Success:     true,
		Answer:      execRes.Answer,
		PlanDisplay: planDisplay,
		ResultTable: execRes.ResultTable,
		ImagePath:   execRes.ChartPath,
	}
}

// DataPreview returns the first n rows of the active table, or nil
// when nothing is loaded.
func (o *Orchestrator) DataPreview(n int) *dataframe.DataFrame {
	if o.currentDF == nil {
		return nil
	}
	if n <= 0 {
		n = 5
	}
	head := headRows(*o.currentDF, n)
	return &head
}

func (o *Orchestrator) DataSchema() string {
	return o.loader.Schema(o.currentDF)
}

func (o *Orchestrator) DataInfo() string {
	return o.loader.Info(o.currentDF)
}

// ConversationHistory returns the retained window in order.
func (o *Orchestrator) ConversationHistory() []memory.Message {
	return o.memory.Messages()
}

// ClearConversation drops the chat window but keeps the table and the
// cached schema/info strings.
func (o *Orchestrator) ClearConversation() {
	o.memory.ClearMessages()
}

// Reset returns the orchestrator to its initial no-data state.
func (o *Orchestrator) Reset() {
	o.currentDF = nil
	o.memory.Clear()
	o.executor.Reset()
}
