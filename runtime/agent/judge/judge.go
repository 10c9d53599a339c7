// Package judge evaluates whether an execution state satisfies a plan's
// success criteria and decides whether the orchestration is done, needs a
// plan patch, or needs to ask the user more questions.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Atomheart-Father/agentflow/runtime/agent/execstate"
	"github.com/Atomheart-Father/agentflow/runtime/agent/model"
	"github.com/Atomheart-Father/agentflow/runtime/agent/plan"
	"github.com/Atomheart-Father/agentflow/runtime/agent/telemetry"
)

// DefaultMaxRetries is the number of additional attempts after the first
// before the Judge falls back to a conservative verdict.
const DefaultMaxRetries = 1

// DefaultMaxTokens bounds the model's output for a judging call.
const DefaultMaxTokens = 1024

// maxQuestionsPerVerdict caps how many clarifying questions a verdict may
// surface to the orchestrator, matching the prompt discipline.
const maxQuestionsPerVerdict = 2

// artifactExcerptLimit bounds how much of each artifact's rendering is
// included in the prompt.
const artifactExcerptLimit = 200

// Verdict is the Judge's decision about an execution state.
type Verdict struct {
	Satisfied  bool           `json:"satisfied"`
	Missing    []string       `json:"missing"`
	PlanPatch  map[string]any `json:"plan_patch"`
	Questions  []string       `json:"questions"`
	Confidence float64        `json:"confidence"`
}

// fallbackVerdict is returned when the model cannot produce valid JSON
// within the retry budget.
func fallbackVerdict() Verdict {
	return Verdict{
		Satisfied:  false,
		Missing:    []string{"evaluation error"},
		PlanPatch:  map[string]any{},
		Questions:  []string{"Could you restate your request?"},
		Confidence: 0,
	}
}

// Judge evaluates ExecutionState against a Plan by calling a model.Client
// with a strict-JSON system prompt.
type Judge struct {
	Model      model.Client
	ModelClass model.ModelClass
	Logger     telemetry.Logger
	MaxRetries int
	MaxTokens  int
}

// New builds a Judge. logger may be telemetry.NewNoopLogger() when no
// logging sink is configured.
func New(client model.Client, logger telemetry.Logger) *Judge {
	return &Judge{
		Model:      client,
		Logger:     logger,
		MaxRetries: DefaultMaxRetries,
		MaxTokens:  DefaultMaxTokens,
	}
}

// Evaluate decides whether state satisfies p's success criteria, given the
// current plan iteration (1-indexed) and the questions already asked in
// prior iterations (to discourage repetition).
func (j *Judge) Evaluate(ctx context.Context, p plan.Plan, state *execstate.State, iteration int, askedQuestions []string) Verdict {
	systemPrompt := j.buildSystemPrompt()
	userPrompt := j.buildUserPrompt(p, state, iteration, askedQuestions)

	maxRetries := j.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		raw, err := j.callModel(ctx, systemPrompt, userPrompt)
		if err != nil {
			j.Logger.Warn(ctx, "judge model call failed", "attempt", attempt, "error", err.Error())
			continue
		}

		verdict, err := parseVerdict(raw)
		if err != nil {
			j.Logger.Warn(ctx, "judge response invalid", "attempt", attempt, "error", err.Error())
			continue
		}

		if len(verdict.Questions) > maxQuestionsPerVerdict {
			verdict.Questions = verdict.Questions[:maxQuestionsPerVerdict]
		}
		if !verdict.Satisfied {
			j.Logger.Warn(ctx, "SPEC_MISMATCH", "goal", p.Goal, "missing", strings.Join(verdict.Missing, ";"))
		}
		return verdict
	}

	j.Logger.Error(ctx, "judge exhausted retries, falling back to conservative verdict", "goal", p.Goal)
	return fallbackVerdict()
}

func (j *Judge) callModel(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := &model.Request{
		ModelClass: j.ModelClass,
		Messages: []*model.Message{
			{Role: model.ConversationRoleSystem, Parts: []model.Part{model.TextPart{Text: systemPrompt}}},
			{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: userPrompt}}},
		},
		MaxTokens: j.MaxTokens,
	}

	resp, err := j.Model.Complete(ctx, req)
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

func (j *Judge) buildSystemPrompt() string {
	return strings.Join([]string{
		"You are the evaluation stage of a task-orchestration engine.",
		"Decide whether the execution state satisfies the plan's success criteria.",
		"Prefer asking the user a clarifying question over guessing when evidence is incomplete.",
		"Prefer a plan_patch over questions when the evidence is only partially complete and more tool calls could resolve it.",
		fmt.Sprintf("Never repeat a question already asked. Cap questions at %d.", maxQuestionsPerVerdict),
		"Output ONLY a JSON object matching this schema, no prose:",
		`{"satisfied": true, "missing": ["string"], "plan_patch": {}, "questions": ["string"], "confidence": 0.85}`,
	}, "\n")
}

func (j *Judge) buildUserPrompt(p plan.Plan, state *execstate.State, iteration int, askedQuestions []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Goal: %s\n\nSuccess criteria:\n", p.Goal)
	for i, c := range p.SuccessCriteria {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, c)
	}

	fmt.Fprintf(&sb, "\nCompleted steps: %d/%d\n", len(state.CompletedSteps), len(p.Steps))

	sb.WriteString("\nArtifacts:\n")
	keys := make([]string, 0, len(state.Artifacts))
	for k := range state.Artifacts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rendered := execstate.Render(state.Artifacts[k])
		fmt.Fprintf(&sb, "- %s: %s\n", k, truncate(rendered, artifactExcerptLimit))
	}

	if len(state.Errors) > 0 {
		sb.WriteString("\nErrors:\n")
		for _, e := range state.Errors {
			fmt.Fprintf(&sb, "- %s: %s\n", e.StepID, e.Message)
		}
	}

	if len(askedQuestions) > 0 {
		sb.WriteString("\nQuestions already asked (do not repeat):\n")
		for _, q := range askedQuestions {
			fmt.Fprintf(&sb, "- %s\n", q)
		}
	}

	fmt.Fprintf(&sb, "\nThis is evaluation iteration %d.\nRespond with the verdict JSON only.", iteration)
	return sb.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func parseVerdict(raw string) (Verdict, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var raw2 map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &raw2); err != nil {
		return Verdict{}, fmt.Errorf("judge: response is not a JSON object: %w", err)
	}
	if _, ok := raw2["satisfied"]; !ok {
		return Verdict{}, fmt.Errorf("judge: response missing required field \"satisfied\"")
	}
	if _, ok := raw2["confidence"]; !ok {
		return Verdict{}, fmt.Errorf("judge: response missing required field \"confidence\"")
	}

	var v Verdict
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return Verdict{}, fmt.Errorf("judge: decode verdict: %w", err)
	}
	if v.Missing == nil {
		v.Missing = []string{}
	}
	if v.PlanPatch == nil {
		v.PlanPatch = map[string]any{}
	}
	if v.Questions == nil {
		v.Questions = []string{}
	}
	return v, nil
}
