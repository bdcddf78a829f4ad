package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

// ExecutionPlan is the structured output of planning and the single
// contract between the planner and the executor. A plan is always
// fully constructed: generation failures degrade to a fallback plan
// instead of propagating, so consumers never need a nil check.
type ExecutionPlan struct {
	Goal               string         `json:"goal"`
	Steps              []string       `json:"steps"`
	NeedsVisualization bool           `json:"needs_visualization"`
	ChartType          string         `json:"chart_type,omitempty"`
	ColumnsToUse       []string       `json:"columns_to_use"`
	Aggregation        string         `json:"aggregation,omitempty"`
	Filters            map[string]any `json:"filters,omitempty"`

	// RawResponse keeps the verbatim model output for diagnostics; on
	// fallback it holds the stringified failure instead.
	RawResponse string `json:"-"`
	// Fallback marks plans substituted after a generation or parse
	// failure.
	Fallback bool `json:"-"`
}

// Planner turns a question plus dataset context into an ExecutionPlan.
type Planner interface {
	CreatePlan(ctx context.Context, question, dataSchema, conversationContext string) ExecutionPlan
}

const plannerSystemPrompt = `You are a Data Analysis Planner Agent. Your role is to analyze the user's question about their data and create a clear, structured execution plan.

IMPORTANT RULES:
1. Analyze the user's natural language question carefully
2. Consider the data schema provided to understand available columns
3. Consider conversation history for context in follow-up questions
4. Create a step-by-step plan that an executor can follow
5. Determine if visualization is needed and what type

CHART TYPE GUIDELINES:
- Use "bar" for comparing categories or showing totals
- Use "horizontal_bar" for ranking (top N) or when labels are long
- Use "line" for trends over time or continuous data
- Use "pie" for showing proportions/percentages
- Use "scatter" for correlations between two numeric variables
- Use "histogram" for distributions
- Use "count" for counting occurrences of categories

CONTEXT HANDLING:
- If the user says "show that on a chart" or refers to previous results, use the conversation history
- If the user mentions "top 5" or "top 10", include proper sorting in steps
- If the user asks to compare, identify the comparison groups

Always submit your plan through the submit_plan function and nothing else.`

// PlannerAgent produces execution plans through a language model call
// constrained to the plan shape. It is stateless; dataset context is
// passed in per call as plain strings.
type PlannerAgent struct {
	Model llms.Model
}

// NewPlannerAgent builds the planner for the configured provider.
// Credentials come from the process environment: GEMINI_API_KEY for
// the googleai provider, OPENAI_API_KEY plus optional OPENAI_BASE_URL
// (proxy endpoint) for openai-compatible ones. Construction fails
// immediately when the key is absent.
func NewPlannerAgent(ctx context.Context, provider, model string) (*PlannerAgent, error) {
	var llm llms.Model
	var err error

	switch provider {
	case "googleai", "gemini":
		key := os.Getenv("GEMINI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY not found in environment")
		}
		llm, err = googleai.New(ctx,
			googleai.WithAPIKey(key),
			googleai.WithDefaultModel(model),
		)
	case "openai", "openrouter":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY not found in environment")
		}
		opts := []openai.Option{
			openai.WithToken(key),
			openai.WithModel(model),
		}
		if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
			opts = append(opts, openai.WithBaseURL(baseURL))
		}
		llm, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown planner provider %q", provider)
	}
	if err != nil {
		return nil, err
	}

	return &PlannerAgent{Model: llm}, nil
}

// planTools constrains the model output to the ExecutionPlan shape at
// the generation boundary. The chart_type and aggregation enums are
// advisory: the executor normalizes or passes unknown tags through.
var planTools = []llms.Tool{
	{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        "submit_plan",
			Description: "Submit the structured execution plan for the user's data question.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"goal": map[string]any{
						"type":        "string",
						"description": "Clear description of what the user wants to achieve",
					},
					"steps": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Step-by-step execution plan",
					},
					"needs_visualization": map[string]any{
						"type": "boolean",
					},
					"chart_type": map[string]any{
						"type": []string{"string", "null"},
						"enum": []any{
							"bar", "line", "pie", "scatter", "horizontal_bar",
							"histogram", "area", "count", nil,
						},
					},
					"columns_to_use": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "string"},
					},
					"aggregation": map[string]any{
						"type": []string{"string", "null"},
						"enum": []any{"sum", "mean", "count", "max", "min", nil},
					},
					"filters": map[string]any{
						"type":                 []string{"object", "null"},
						"additionalProperties": true,
					},
				},
				"required": []string{
					"goal", "steps", "needs_visualization", "chart_type",
					"columns_to_use", "aggregation", "filters",
				},
			},
		},
	},
}

// planPayload mirrors the JSON the model returns before defaulting
// rules are applied.
type planPayload struct {
	Goal               string         `json:"goal"`
	Steps              []string       `json:"steps"`
	NeedsVisualization bool           `json:"needs_visualization"`
	ChartType          *string        `json:"chart_type"`
	ColumnsToUse       []string       `json:"columns_to_use"`
	Aggregation        *string        `json:"aggregation"`
	Filters            map[string]any `json:"filters"`
}

// CreatePlan never fails outward: any call or parse failure yields a
// minimal fallback plan carrying the failure text in RawResponse.
func (p *PlannerAgent) CreatePlan(ctx context.Context, question, dataSchema, conversationContext string) ExecutionPlan {
	prompt := buildPlannerPrompt(question, dataSchema, conversationContext)

	payload, raw, err := p.generate(ctx, prompt)
	if err != nil {
		return fallbackPlan(question, err)
	}
	return payload.toPlan(raw)
}

func buildPlannerPrompt(question, dataSchema, conversationContext string) string {
	parts := []string{"DATA SCHEMA:", dataSchema, ""}

	if conversationContext != "" {
		parts = append(parts, "CONVERSATION HISTORY:", conversationContext, "")
	}

	parts = append(parts,
		"USER QUESTION:",
		question,
		"",
		"Create an execution plan as a JSON object:",
	)
	return strings.Join(parts, "\n")
}

func (p *PlannerAgent) generate(ctx context.Context, prompt string) (*planPayload, string, error) {
	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(plannerSystemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(prompt)},
		},
	}

	resp, err := p.Model.GenerateContent(ctx, messages,
		llms.WithTools(planTools),
		llms.WithTemperature(0.2),
		llms.WithMaxTokens(1024),
	)
	if err != nil {
		return nil, "", err
	}
	if len(resp.Choices) == 0 {
		return nil, "", fmt.Errorf("model returned no choices")
	}
	choice := resp.Choices[0]

	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil || tc.FunctionCall.Name != "submit_plan" {
			continue
		}
		var payload planPayload
		if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &payload); err != nil {
			return nil, "", fmt.Errorf("failed to parse submit_plan arguments: %w", err)
		}
		return &payload, tc.FunctionCall.Arguments, nil
	}

	// Some providers answer with a bare JSON object instead of the
	// tool call; accept that before giving up.
	if choice.Content != "" {
		var payload planPayload
		text := stripCodeFence(choice.Content)
		if err := json.Unmarshal([]byte(text), &payload); err != nil {
			return nil, "", fmt.Errorf("model response is not a valid plan: %w", err)
		}
		return &payload, choice.Content, nil
	}

	return nil, "", fmt.Errorf("model provided neither a plan nor a response")
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// toPlan applies the per-field defaulting rules so downstream code
// never inspects raw untyped JSON.
func (pp *planPayload) toPlan(raw string) ExecutionPlan {
	plan := ExecutionPlan{
		Goal:               pp.Goal,
		Steps:              pp.Steps,
		NeedsVisualization: pp.NeedsVisualization,
		ColumnsToUse:       pp.ColumnsToUse,
		Filters:            pp.Filters,
		RawResponse:        raw,
	}
	if plan.Goal == "" {
		plan.Goal = "Analyze the data"
	}
	if len(plan.Steps) == 0 {
		plan.Steps = []string{"Analyze the data"}
	}
	if plan.ColumnsToUse == nil {
		plan.ColumnsToUse = []string{}
	}
	if pp.ChartType != nil {
		plan.ChartType = *pp.ChartType
	}
	if pp.Aggregation != nil {
		plan.Aggregation = *pp.Aggregation
	}
	return plan
}

func fallbackPlan(question string, cause error) ExecutionPlan {
	return ExecutionPlan{
		Goal:         "Answer: " + question,
		Steps:        []string{"Analyze the data to answer the question"},
		ColumnsToUse: []string{},
		RawResponse:  cause.Error(),
		Fallback:     true,
	}
}

// FormatPlanDisplay renders a plan for the user: goal, numbered steps,
// optional visualization and columns lines.
func FormatPlanDisplay(plan ExecutionPlan) string {
	lines := []string{
		fmt.Sprintf("**Goal:** %s", plan.Goal),
		"",
		"**Execution Steps:**",
	}

	for i, step := range plan.Steps {
		lines = append(lines, fmt.Sprintf("   %d. %s", i+1, step))
	}

	if plan.NeedsVisualization {
		chartType := plan.ChartType
		if chartType == "" {
			chartType = "auto"
		}
		lines = append(lines, "", fmt.Sprintf("**Visualization:** %s chart", chartType))
	}

	if len(plan.ColumnsToUse) > 0 {
		lines = append(lines, "", fmt.Sprintf("**Columns:** %s", strings.Join(plan.ColumnsToUse, ", ")))
	}

	return strings.Join(lines, "\n")
}
