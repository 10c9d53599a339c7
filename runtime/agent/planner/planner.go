// Package planner turns a user query into a validated Plan. It calls a model
// client with a strict-JSON system prompt, validates the response against the
// plan data model, retries once on failure, and falls back to a minimal
// single-step plan when the model cannot produce usable JSON.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Atomheart-Father/agentflow/runtime/agent/model"
	"github.com/Atomheart-Father/agentflow/runtime/agent/plan"
	"github.com/Atomheart-Father/agentflow/runtime/agent/telemetry"
	"github.com/Atomheart-Father/agentflow/runtime/agent/tools"
)

// DefaultMaxRetries is the number of additional attempts after the first
// before the Planner gives up and falls back to a minimal plan.
const DefaultMaxRetries = 1

// DefaultMaxTokens bounds the model's output for a planning call.
const DefaultMaxTokens = 2048

// Planner produces Plans for user queries by calling a model.Client with a
// forced-JSON request and validating the response.
type Planner struct {
	Model      model.Client
	Registry   *tools.Registry
	Logger     telemetry.Logger
	MaxRetries int
	MaxTokens  int
	ModelClass model.ModelClass
}

// New builds a Planner. logger may be telemetry.NewNoopLogger() when no
// logging sink is configured.
func New(client model.Client, registry *tools.Registry, logger telemetry.Logger) *Planner {
	return &Planner{
		Model:      client,
		Registry:   registry,
		Logger:     logger,
		MaxRetries: DefaultMaxRetries,
		MaxTokens:  DefaultMaxTokens,
	}
}

// CreatePlan builds a Plan satisfying the data model's invariants for the
// given user query. hints carries caller-supplied context (e.g. a resolved
// timezone) surfaced to the prompt but not validated.
func (p *Planner) CreatePlan(ctx context.Context, userQuery string, hints map[string]any) (plan.Plan, error) {
	systemPrompt := p.buildSystemPrompt()
	userPrompt := p.buildUserPrompt(userQuery, hints)

	maxRetries := p.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		raw, err := p.callModel(ctx, systemPrompt, userPrompt)
		if err != nil {
			lastErr = err
			p.Logger.Warn(ctx, "planner model call failed", "attempt", attempt, "error", err.Error())
			continue
		}

		parsed, err := parsePlanResponse(raw)
		if err != nil {
			lastErr = err
			p.Logger.Warn(ctx, "PLANNER_NON_JSON", "attempt", attempt, "error", err.Error())
			continue
		}

		if err := parsed.Validate(); err != nil {
			lastErr = err
			p.Logger.Warn(ctx, "PLANNER_NON_JSON", "attempt", attempt, "error", err.Error())
			continue
		}

		if len(parsed.Steps) == 0 {
			p.Logger.Warn(ctx, "PLAN_EMPTY_OR_USELESS", "goal", parsed.Goal)
		}

		return parsed, nil
	}

	p.Logger.Error(ctx, "planner exhausted retries, falling back", "error", fmt.Sprintf("%v", lastErr))
	return fallbackPlan(userQuery), nil
}

func (p *Planner) callModel(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := &model.Request{
		ModelClass: p.ModelClass,
		Messages: []*model.Message{
			{Role: model.ConversationRoleSystem, Parts: []model.Part{model.TextPart{Text: systemPrompt}}},
			{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: userPrompt}}},
		},
		MaxTokens: p.MaxTokens,
	}

	resp, err := p.Model.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("model complete: %w", err)
	}

	var sb strings.Builder
	for _, msg := range resp.Content {
		for _, part := range msg.Parts {
			if tp, ok := part.(model.TextPart); ok {
				sb.WriteString(tp.Text)
			}
		}
	}
	return sb.String(), nil
}

// buildSystemPrompt enumerates registered tools and the hard planning rules.
func (p *Planner) buildSystemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You are the planning stage of a task-orchestration engine. ")
	sb.WriteString("Analyze the user query and emit a plan of steps that satisfy it. ")
	sb.WriteString("Output ONLY a JSON object matching the schema below, no prose, no markdown fences.\n\n")

	sb.WriteString("Available tools:\n")
	for _, spec := range p.specsSortedByName() {
		desc := spec.Description
		if desc == "" {
			desc = "(no description)"
		}
		fmt.Fprintf(&sb, "- %s: %s\n", spec.Name, desc)
	}

	sb.WriteString("\nHard rules:\n")
	sb.WriteString("1. If the query involves a current or relative date/time, the first step must call the time tool in the configured timezone.\n")
	sb.WriteString("2. ask_user is reserved for subjective information the system cannot derive (city, preferences, budget) — never for dates or times.\n")
	sb.WriteString("3. A plan contains at most one ask_user step and at most two web_search steps.\n")
	sb.WriteString("4. A plan that produces a file must include a write_file step whose content input references the output_key of an earlier synthesis step via {{output_key}}.\n")
	sb.WriteString("5. max_steps must be between 1 and 10. Every step needs a unique id, and depends_on may only reference strictly earlier step ids.\n")

	sb.WriteString("\nJSON schema:\n")
	sb.WriteString(`{"goal": "string", "success_criteria": ["string"], "max_steps": 6, "steps": [{"id": "s1", "type": "tool_call|web_search|summarize|write_file|ask_user", "tool": "tool_name", "inputs": {}, "depends_on": [], "expect": "string", "output_key": "string", "retry": 0}], "final_answer_template": "string with {{output_key}} placeholders"}`)
	sb.WriteString("\n")
	return sb.String()
}

func (p *Planner) buildUserPrompt(userQuery string, ctxHints map[string]any) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "User query: %s\n", userQuery)
	if len(ctxHints) > 0 {
		b, err := json.Marshal(ctxHints)
		if err == nil {
			fmt.Fprintf(&sb, "Context: %s\n", b)
		}
	}
	sb.WriteString("Respond with the plan JSON only.")
	return sb.String()
}

func (p *Planner) specsSortedByName() []tools.Spec {
	if p.Registry == nil {
		return nil
	}
	specs := p.Registry.List()
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// fallbackPlan returns the minimal single-step "summarize" plan used when the
// model cannot be coaxed into valid JSON within the retry budget.
func fallbackPlan(userQuery string) plan.Plan {
	return plan.Plan{
		Goal:            fmt.Sprintf("Answer the user's query: %s", userQuery),
		SuccessCriteria: []string{"Provide a reasonable answer"},
		MaxSteps:        1,
		Steps: []plan.Step{
			{
				ID:        "s1",
				Type:      plan.StepTypeSummarize,
				Inputs:    map[string]any{"query": userQuery},
				Expect:    "Understand the user query well enough to answer it",
				OutputKey: "analysis",
				Retry:     0,
			},
		},
		FinalAnswerTemplate: "{{analysis}}",
	}
}
