// Package executor runs a Plan's steps in dependency order against the tool
// dispatcher, writing artifacts and suspension markers into an
// execstate.State.
package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Atomheart-Father/agentflow/runtime/agent/execstate"
	"github.com/Atomheart-Father/agentflow/runtime/agent/model"
	"github.com/Atomheart-Father/agentflow/runtime/agent/plan"
	"github.com/Atomheart-Father/agentflow/runtime/agent/telemetry"
	"github.com/Atomheart-Father/agentflow/runtime/agent/tools"
	"github.com/Atomheart-Father/agentflow/runtime/agent/tools/builtin"
)

// Executor runs a Plan's steps against a tool Dispatcher. Model is optional:
// when nil, summarize steps degrade to returning their interpolated input
// text instead of calling an LLM, which keeps the executor usable in tests
// and in deployments without a configured summarization model.
type Executor struct {
	Dispatcher *tools.Dispatcher
	Model      model.Client
	ModelClass model.ModelClass
	Logger     telemetry.Logger
	// Timezone is used to resolve relative date tokens ("today", "tomorrow")
	// during argument coercion. Defaults to UTC when empty.
	Timezone string
}

// New builds an Executor around a dispatcher. logger may be
// telemetry.NewNoopLogger() when no logging sink is configured.
func New(dispatcher *tools.Dispatcher, logger telemetry.Logger) *Executor {
	return &Executor{Dispatcher: dispatcher, Logger: logger}
}

// Execute runs every not-yet-completed step of p whose dependencies are
// satisfied, in topological order, until the plan is exhausted, a step
// suspends on ask_user_pending, or maxToolCalls is reached. It returns the
// number of tool_call/web_search dispatches consumed in this call, which the
// caller accumulates against the orchestration's total budget.
func (e *Executor) Execute(ctx context.Context, p plan.Plan, state *execstate.State, maxToolCalls int) (int, error) {
	ordered := topologicalSort(p.Steps)
	consumed := 0

	for _, step := range ordered {
		if state.CompletedSteps[step.ID] {
			continue
		}
		if _, pending := state.PendingAsk(); pending {
			return consumed, nil
		}
		if !dependenciesSatisfied(step, state) {
			continue
		}

		isDispatchStep := step.Type == plan.StepTypeToolCall || step.Type == plan.StepTypeWebSearch
		if isDispatchStep && consumed >= maxToolCalls {
			return consumed, nil
		}

		used, err := e.executeStep(ctx, step, state)
		consumed += used
		if err != nil {
			e.Logger.Warn(ctx, "step failed", "step_id", step.ID, "error", err.Error())
			continue
		}

		if _, pending := state.PendingAsk(); pending {
			return consumed, nil
		}
	}

	return consumed, nil
}

func dependenciesSatisfied(step plan.Step, state *execstate.State) bool {
	for _, dep := range step.DependsOn {
		if !state.CompletedSteps[dep] {
			return false
		}
	}
	return true
}

func (e *Executor) executeStep(ctx context.Context, step plan.Step, state *execstate.State) (int, error) {
	switch step.Type {
	case plan.StepTypeToolCall, plan.StepTypeWebSearch:
		return e.executeDispatch(ctx, step, state)
	case plan.StepTypeSummarize:
		return 0, e.executeSummarize(ctx, step, state)
	case plan.StepTypeWriteFile:
		return 0, e.executeWriteFile(ctx, step, state)
	case plan.StepTypeAskUser:
		e.executeAskUser(step, state)
		return 0, nil
	default:
		return 0, fmt.Errorf("step %s: unsupported step type %q", step.ID, step.Type)
	}
}

// executeDispatch handles both tool_call and web_search: they share the same
// dispatch path and differ only in the Planner's prompt-discipline caps.
//
// weather_get is the one tool-aware policy carve-out: when location is
// absent, the step is not dispatched at all and instead synthesizes an
// ask_user_pending marker, which is why this path can legitimately return
// zero consumed dispatches without an error.
func (e *Executor) executeDispatch(ctx context.Context, step plan.Step, state *execstate.State) (int, error) {
	args := e.coerceArgs(state.InterpolateArgs(step.Inputs))

	if step.Tool == builtin.WeatherToolName {
		if loc, ok := args["location"].(string); !ok || strings.TrimSpace(loc) == "" {
			state.SetPendingAsk(execstate.AskUserPending{
				AskID:     step.ID,
				Questions: []string{"Which city would you like the forecast for?"},
				Expects:   "city",
				StepID:    step.ID,
				OutputKey: step.OutputKey,
			})
			return 0, nil
		}
	}

	attempts := step.Retry + 1
	var result tools.Result
	for i := 0; i < attempts; i++ {
		result = e.Dispatcher.Invoke(ctx, step.Tool, args)
		if result.Ok {
			break
		}
	}

	state.SetArtifact(step.OutputKey, result)
	if !result.Ok {
		message := "unknown error"
		if result.Error != nil {
			message = result.Error.Message
		}
		state.AddError(step.ID, message)
		return 1, fmt.Errorf("tool %s failed: %s", step.Tool, message)
	}
	state.MarkCompleted(step.ID)
	return 1, nil
}

// paramAliases maps argument names a Planner might reasonably write onto the
// canonical name the matching builtin tool actually declares in its schema,
// so a plan written against the tool's intent ("city") still dispatches
// correctly against its spec ("location"). An alias only takes effect when
// the canonical key isn't already present.
var paramAliases = map[string]string{
	"city":  "location",
	"town":  "location",
	"place": "location",
}

// coerceArgs applies the executor's parameter coercion pass: alias
// translation followed by relative-date normalization. It runs after
// interpolation so it sees the user's literal answer text, not {{key}}
// placeholders.
func (e *Executor) coerceArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	for alias, canon := range paramAliases {
		v, ok := out[alias]
		if !ok {
			continue
		}
		if _, taken := out[canon]; !taken {
			out[canon] = v
		}
		delete(out, alias)
	}
	// Every string value goes through builtin.NormalizeDate, which rewrites a
	// relative date token like "tomorrow" into an ISO date in the executor's
	// timezone and returns any other string unchanged.
	for key := range out {
		if s, ok := out[key].(string); ok {
			out[key] = builtin.NormalizeDate(s, e.timezone())
		}
	}
	return out
}

func (e *Executor) timezone() string {
	if e.Timezone == "" {
		return "UTC"
	}
	return e.Timezone
}

// executeSummarize condenses prior artifacts into text. When any of
// data/text/content is present in the interpolated inputs it is used
// verbatim as the text to summarize; otherwise every input key/value pair is
// concatenated.
func (e *Executor) executeSummarize(ctx context.Context, step plan.Step, state *execstate.State) error {
	args := state.InterpolateArgs(step.Inputs)

	text := firstPresent(args, "data", "text", "content")
	if text == "" {
		var parts []string
		keys := make([]string, 0, len(args))
		for k := range args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s: %v", k, args[k]))
		}
		text = strings.Join(parts, "\n")
	}

	summary := text
	if e.Model != nil {
		generated, err := e.callSummarizeModel(ctx, text)
		if err != nil {
			state.AddError(step.ID, fmt.Sprintf("summarize: %s", err.Error()))
			return err
		}
		summary = generated
	}

	state.SetArtifact(step.OutputKey, strings.TrimSpace(summary))
	state.MarkCompleted(step.ID)
	return nil
}

func (e *Executor) callSummarizeModel(ctx context.Context, text string) (string, error) {
	req := &model.Request{
		ModelClass: e.ModelClass,
		Messages: []*model.Message{
			{Role: model.ConversationRoleSystem, Parts: []model.Part{model.TextPart{Text: "Summarize the following content concisely and accurately."}}},
			{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: text}}},
		},
		MaxTokens: 512,
	}
	resp, err := e.Model.Complete(ctx, req)
	if err != nil {
		return "", err
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

func (e *Executor) executeWriteFile(ctx context.Context, step plan.Step, state *execstate.State) error {
	args := state.InterpolateArgs(step.Inputs)

	attempts := step.Retry + 1
	var result tools.Result
	for i := 0; i < attempts; i++ {
		result = e.Dispatcher.Invoke(ctx, builtin.FileWriteToolName, args)
		if result.Ok {
			break
		}
	}

	state.SetArtifact(step.OutputKey, result)
	if !result.Ok {
		message := "unknown error"
		if result.Error != nil {
			message = result.Error.Message
		}
		state.AddError(step.ID, message)
		return fmt.Errorf("write_file step %s failed: %s", step.ID, message)
	}
	state.MarkCompleted(step.ID)
	return nil
}

func (e *Executor) executeAskUser(step plan.Step, state *execstate.State) {
	args := state.InterpolateArgs(step.Inputs)
	question := "Could you provide more information?"
	if q, ok := args["question"].(string); ok && q != "" {
		question = q
	}
	expects := "user_answer"
	if x, ok := args["expects"].(string); ok && x != "" {
		expects = x
	}
	contextText := ""
	if c, ok := args["context"].(string); ok {
		contextText = c
	}

	state.SetPendingAsk(execstate.AskUserPending{
		AskID:     step.ID,
		Questions: []string{question},
		Expects:   expects,
		StepID:    step.ID,
		OutputKey: step.OutputKey,
		Context:   contextText,
	})
}

func firstPresent(args map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := args[k]; ok {
			return fmt.Sprintf("%v", v)
		}
	}
	return ""
}

// topologicalSort orders steps so each one follows every step it depends on.
// It is a simple iterative dependency-satisfaction pass rather than a
// textbook Kahn's algorithm: each pass appends every step whose dependencies
// are already ordered. If a pass makes no progress — a cycle, or a dangling
// dependency — the remaining steps are appended in their original order
// instead of rejecting the plan outright.
func topologicalSort(steps []plan.Step) []plan.Step {
	ordered := make([]plan.Step, 0, len(steps))
	orderedIDs := make(map[string]bool, len(steps))
	remaining := make([]plan.Step, len(steps))
	copy(remaining, steps)

	for len(remaining) > 0 {
		var executable []plan.Step
		var stillRemaining []plan.Step

		for _, step := range remaining {
			satisfied := true
			for _, dep := range step.DependsOn {
				if !orderedIDs[dep] {
					satisfied = false
					break
				}
			}
			if satisfied {
				executable = append(executable, step)
			} else {
				stillRemaining = append(stillRemaining, step)
			}
		}

		if len(executable) == 0 {
			ordered = append(ordered, remaining...)
			break
		}

		sort.Slice(executable, func(i, j int) bool { return executable[i].ID < executable[j].ID })
		for _, step := range executable {
			ordered = append(ordered, step)
			orderedIDs[step.ID] = true
		}
		remaining = stillRemaining
	}

	return ordered
}
