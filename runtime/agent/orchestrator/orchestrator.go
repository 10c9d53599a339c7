// Package orchestrator implements the PLAN -> ACT -> JUDGE state machine that
// turns a user query into a final answer, suspending at ASK_USER when the
// Judge or the Executor needs more information from the user.
package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/Atomheart-Father/agentflow/runtime/agent/execstate"
	"github.com/Atomheart-Father/agentflow/runtime/agent/executor"
	"github.com/Atomheart-Father/agentflow/runtime/agent/judge"
	"github.com/Atomheart-Father/agentflow/runtime/agent/plan"
	"github.com/Atomheart-Father/agentflow/runtime/agent/planner"
	"github.com/Atomheart-Father/agentflow/runtime/agent/telemetry"
	"github.com/Atomheart-Father/agentflow/runtime/agent/tools"
)

// state is the internal state-machine tag. It is unexported: callers only
// ever observe a Status on the returned Result.
type state string

const (
	statePlan    state = "PLAN"
	stateAct     state = "ACT"
	stateJudge   state = "JUDGE"
	stateAskUser state = "ASK_USER"
	stateDone    state = "DONE"
	stateFailed  state = "FAILED"
)

// Status is the externally visible outcome of a Run or Resume call.
type Status string

const (
	// StatusWaitingForUser means the orchestration suspended on an
	// ask_user_pending marker; the caller must record the PendingAsk and
	// call Resume with the user's answer to continue.
	StatusWaitingForUser Status = "waiting_for_user"
	// StatusDone means the plan's success criteria were satisfied and
	// FinalAnswer is populated.
	StatusDone Status = "done"
	// StatusFailed means a budget was exhausted, the wall-clock deadline
	// passed, or a stage could not recover. ErrorMessage is populated.
	StatusFailed Status = "failed"
)

// Result is what a Run or Resume call reports back to the Session Manager.
type Result struct {
	Status       Status
	FinalAnswer  string
	ErrorMessage string
	// AskID and Questions are populated when Status is StatusWaitingForUser,
	// mirroring the PendingAsk the Session Manager must record against the
	// Session so a later reply can be routed back via Resume.
	AskID     string
	Questions []string
	Expects   string
}

// ActiveTask is the durable state a Session keeps for its in-progress
// orchestration: the current Plan, its ExecutionState, and the counters the
// state machine budgets against. It has no back-pointer to its owning
// Session; the Session Manager keys Sessions by session id and checks an
// answer's ask_id against the pending question instead.
type ActiveTask struct {
	Plan           plan.Plan
	State          *execstate.State
	PlanIterations int
	TotalToolCalls int
	AskedQuestions []string
	CreatedAt      time.Time
	LastActivity   time.Time
}

// NewActiveTask builds an empty ActiveTask ready for its first PLAN entry.
func NewActiveTask() *ActiveTask {
	now := time.Now()
	return &ActiveTask{
		State:        execstate.New(),
		CreatedAt:    now,
		LastActivity: now,
	}
}

// Expired reports whether the task has been idle longer than ttl, matching
// the one-hour inactivity expiry.
func (t *ActiveTask) Expired(ttl time.Duration) bool {
	return time.Since(t.LastActivity) > ttl
}

// Budgets bounds a single orchestration slice. All dimensions are
// configurable; the zero value is not usable, construct with DefaultBudgets.
type Budgets struct {
	MaxPlanIters       int
	MaxToolCallsPerAct int
	MaxTotalToolCalls  int
	MaxExecutionTime   time.Duration
}

// DefaultBudgets returns the representative defaults.
func DefaultBudgets() Budgets {
	return Budgets{
		MaxPlanIters:       2,
		MaxToolCallsPerAct: 3,
		MaxTotalToolCalls:  6,
		MaxExecutionTime:   20 * time.Second,
	}
}

// EventSink delivers the eight UI-facing event variants. Status, ToolTrace,
// and Debug feed side panels; AssistantContent is the only variant that
// appends to the chat bubble. A nil-safe no-op implementation is provided by
// NewNoopEventSink for orchestrations run without a wired transport.
type EventSink interface {
	AssistantContent(ctx context.Context, delta string)
	Status(ctx context.Context, message string)
	ToolTrace(ctx context.Context, tool, action string, result any)
	Debug(ctx context.Context, level, message string)
	AskUserOpen(ctx context.Context, askID, question string, hints map[string]any)
	AskUserClose(ctx context.Context, askID string, accepted bool)
	FinalAnswer(ctx context.Context, answer, summary string)
	Error(ctx context.Context, code, message string)
}

type noopEventSink struct{}

// NewNoopEventSink returns an EventSink that discards every event.
func NewNoopEventSink() EventSink { return noopEventSink{} }

func (noopEventSink) AssistantContent(context.Context, string)                   {}
func (noopEventSink) Status(context.Context, string)                             {}
func (noopEventSink) ToolTrace(context.Context, string, string, any)             {}
func (noopEventSink) Debug(context.Context, string, string)                      {}
func (noopEventSink) AskUserOpen(context.Context, string, string, map[string]any) {}
func (noopEventSink) AskUserClose(context.Context, string, bool)                 {}
func (noopEventSink) FinalAnswer(context.Context, string, string)                {}
func (noopEventSink) Error(context.Context, string, string)                      {}

// Orchestrator wires the three stateless stages into the PLAN/ACT/JUDGE/
// ASK_USER/DONE/FAILED state machine.
type Orchestrator struct {
	Planner  *planner.Planner
	Executor *executor.Executor
	Judge    *judge.Judge
	Budgets  Budgets
	Events   EventSink
	Logger   telemetry.Logger
}

// New builds an Orchestrator with DefaultBudgets and a no-op event sink.
// Callers wire a transport-backed EventSink and override Budgets as needed.
func New(p *planner.Planner, e *executor.Executor, j *judge.Judge, logger telemetry.Logger) *Orchestrator {
	return &Orchestrator{
		Planner:  p,
		Executor: e,
		Judge:    j,
		Budgets:  DefaultBudgets(),
		Events:   NewNoopEventSink(),
		Logger:   logger,
	}
}

// Run starts a fresh orchestration slice for task from state PLAN.
// userQuery is the triggering message; task is a freshly constructed
// ActiveTask (see NewActiveTask) or one carried forward by the Session
// Manager for a continuation message.
func (o *Orchestrator) Run(ctx context.Context, userQuery string, task *ActiveTask) Result {
	return o.loop(ctx, userQuery, task, statePlan)
}

// Resume continues a suspended orchestration after the user supplies the
// answer to an outstanding ask_user_pending. It implements the four-step
// resume contract: store the answer under the expects-derived input key,
// clear the suspension marker, then force a replan (not a bare resume of
// ACT) since the new information may change the plan's shape.
func (o *Orchestrator) Resume(ctx context.Context, task *ActiveTask, answer string) Result {
	pending, ok := task.State.PendingAsk()
	if !ok {
		return Result{Status: StatusFailed, ErrorMessage: "no question is pending for this task"}
	}

	o.Events.AskUserClose(ctx, pending.AskID, true)

	// expects={city,date} names a well-known input slot that later plan
	// steps reference by convention ({{user_city}}, {{user_date}})
	// regardless of which step's output_key happened to trigger the ask
	// (e.g. a weather tool_call's own "forecast" output_key). Anything else
	// defers to the output_key the Planner chose for the ask_user step
	// itself, since that is the slot the rest of the plan interpolates.
	var inputKey string
	switch pending.Expects {
	case "city":
		inputKey = "user_city"
	case "date":
		inputKey = "user_date"
	default:
		if pending.OutputKey != "" {
			inputKey = pending.OutputKey
		} else {
			inputKey = "user_answer"
		}
	}
	task.State.Inputs[inputKey] = answer
	task.State.ClearPendingAsk()

	return o.loop(ctx, answer, task, statePlan)
}

func (o *Orchestrator) loop(ctx context.Context, userQuery string, task *ActiveTask, start state) Result {
	deadline := time.Now().Add(o.Budgets.MaxExecutionTime)
	cur := start
	// patched is set when JUDGE applied a plan_patch. The PLAN state then
	// skips invoking the Planner for that iteration — the patch already
	// replaced the remaining steps and calling the Planner again would
	// discard it with a brand new plan.
	patched := false

	for {
		if err := ctx.Err(); err != nil {
			return o.fail(ctx, task, "the request was canceled")
		}
		if time.Now().After(deadline) {
			return o.fail(ctx, task, "the request took too long to process")
		}

		switch cur {
		case statePlan:
			task.PlanIterations++
			if task.PlanIterations > o.Budgets.MaxPlanIters {
				o.Logger.Warn(ctx, "JUDGE_LOOP", "plan_iterations", task.PlanIterations)
				return o.fail(ctx, task, "I wasn't able to settle on a plan that satisfies this request")
			}

			if patched {
				patched = false
				cur = stateAct
				continue
			}

			o.Events.Status(ctx, "planning")
			p, err := o.Planner.CreatePlan(ctx, userQuery, task.State.Inputs)
			if err != nil {
				o.Logger.Error(ctx, "planner returned an error", "error", err.Error())
				return o.fail(ctx, task, "I couldn't come up with a plan for this request")
			}
			if err := validateTemplate(p); err != nil {
				o.Logger.Warn(ctx, "SPEC_MISMATCH", "error", err.Error())
				return o.fail(ctx, task, "the plan's final answer referenced information that was never produced")
			}
			task.Plan = p
			cur = stateAct

		case stateAct:
			o.Events.Status(ctx, "executing")
			used, err := o.Executor.Execute(ctx, task.Plan, task.State, o.Budgets.MaxToolCallsPerAct)
			task.TotalToolCalls += used
			if err != nil {
				o.Logger.Warn(ctx, "executor returned an error", "error", err.Error())
			}

			if _, pending := task.State.PendingAsk(); pending {
				cur = stateAskUser
				continue
			}
			if task.TotalToolCalls >= o.Budgets.MaxTotalToolCalls {
				o.Logger.Warn(ctx, "BUDGET_EXCEEDED", "total_tool_calls", task.TotalToolCalls)
				return o.fail(ctx, task, "this request needed more tool calls than I'm allowed to make")
			}
			cur = stateJudge

		case stateJudge:
			verdict := o.Judge.Evaluate(ctx, task.Plan, task.State, task.PlanIterations, task.AskedQuestions)
			if verdict.Satisfied {
				cur = stateDone
				continue
			}
			if len(verdict.Questions) > 0 {
				task.AskedQuestions = append(task.AskedQuestions, verdict.Questions...)
				task.State.SetPendingAsk(execstate.AskUserPending{
					AskID:     uuid.NewString(),
					Questions: verdict.Questions,
					Expects:   "answer",
					OutputKey: "user_answer",
				})
				cur = stateAskUser
				continue
			}
			if applyPlanPatch(task, verdict.PlanPatch) {
				if err := validateTemplate(task.Plan); err != nil {
					o.Logger.Warn(ctx, "SPEC_MISMATCH", "error", err.Error())
					return o.fail(ctx, task, "the plan's final answer referenced information that was never produced")
				}
				patched = true
			}
			cur = statePlan

		case stateAskUser:
			task.LastActivity = time.Now()
			pending, ok := task.State.PendingAsk()
			if !ok {
				return o.fail(ctx, task, "internal error: no pending question recorded")
			}
			question := ""
			if len(pending.Questions) > 0 {
				question = pending.Questions[0]
			}
			o.Events.AskUserOpen(ctx, pending.AskID, question, map[string]any{"expects": pending.Expects})
			return Result{
				Status:    StatusWaitingForUser,
				AskID:     pending.AskID,
				Questions: pending.Questions,
				Expects:   pending.Expects,
			}

		case stateDone:
			answer := task.State.Interpolate(task.Plan.FinalAnswerTemplate)
			task.LastActivity = time.Now()
			o.Events.AssistantContent(ctx, answer)
			o.Events.FinalAnswer(ctx, answer, "")
			return Result{Status: StatusDone, FinalAnswer: answer}

		default:
			return o.fail(ctx, task, fmt.Sprintf("internal error: unknown state %q", cur))
		}
	}
}

func (o *Orchestrator) fail(ctx context.Context, task *ActiveTask, message string) Result {
	task.LastActivity = time.Now()
	o.Events.Error(ctx, "ORCHESTRATION_FAILED", message)
	return Result{Status: StatusFailed, ErrorMessage: message}
}

// templatePlaceholderPattern matches the {{key}} interpolation tokens
// execstate.Interpolate recognizes.
var templatePlaceholderPattern = regexp.MustCompile(`\{\{([a-zA-Z0-9_\.]+)\}\}`)

// reservedInputKeys names the input slots Resume may populate regardless of
// which step's ask_user triggered the suspension (see Resume's
// expects-to-input-key mapping). A plan cannot know in advance whether its
// ask_user steps will fire, so these three are always treated as available.
var reservedInputKeys = map[string]bool{
	"user_city":   true,
	"user_date":   true,
	"user_answer": true,
}

// validateTemplate rejects a plan whose final_answer_template references a
// {{key}} that nothing in the plan can ever produce: neither a step's
// output_key nor one of the reserved ask_user input slots. This is the
// check plan.Validate's doc comment defers to, since it requires knowing
// the full set of steps rather than just one.
func validateTemplate(p plan.Plan) error {
	placeholders := templatePlaceholderPattern.FindAllStringSubmatch(p.FinalAnswerTemplate, -1)
	if len(placeholders) == 0 {
		return nil
	}
	known := make(map[string]bool, len(p.Steps)+len(reservedInputKeys))
	for k := range reservedInputKeys {
		known[k] = true
	}
	for _, s := range p.Steps {
		if s.OutputKey != "" {
			known[s.OutputKey] = true
		}
	}
	seen := make(map[string]bool, len(placeholders))
	var unresolved []string
	for _, m := range placeholders {
		key := m[1]
		if seen[key] {
			continue
		}
		seen[key] = true
		if !known[key] {
			unresolved = append(unresolved, key)
		}
	}
	if len(unresolved) > 0 {
		return fmt.Errorf("final_answer_template references undeclared key(s) %v", unresolved)
	}
	return nil
}

// applyPlanPatch replaces the remaining, not-yet-completed steps of the
// current plan with the patch's step list, leaving completed steps and their
// artifacts untouched. It reports whether a patch was actually applied; a
// patch with no "steps" key, or a malformed one, is a no-op and the caller
// falls back to invoking the Planner fresh on the next PLAN iteration.
func applyPlanPatch(task *ActiveTask, patch map[string]any) bool {
	rawSteps, ok := patch["steps"].([]any)
	if !ok || len(rawSteps) == 0 {
		return false
	}

	var patched []plan.Step
	for _, raw := range rawSteps {
		m, ok := raw.(map[string]any)
		if !ok {
			return false
		}
		step, ok := decodeStep(m)
		if !ok {
			return false
		}
		patched = append(patched, step)
	}

	completed := make([]plan.Step, 0, len(task.Plan.Steps))
	for _, s := range task.Plan.Steps {
		if task.State.CompletedSteps[s.ID] {
			completed = append(completed, s)
		}
	}
	task.Plan.Steps = append(completed, patched...)
	return true
}

func decodeStep(m map[string]any) (plan.Step, bool) {
	id, _ := m["id"].(string)
	typ, _ := m["type"].(string)
	if id == "" || typ == "" {
		return plan.Step{}, false
	}
	step := plan.Step{
		ID:   id,
		Type: plan.StepType(typ),
	}
	if tool, ok := m["tool"].(string); ok {
		step.Tool = tools.Ident(tool)
	}
	if inputs, ok := m["inputs"].(map[string]any); ok {
		step.Inputs = inputs
	}
	if dependsOn, ok := m["depends_on"].([]any); ok {
		for _, d := range dependsOn {
			if s, ok := d.(string); ok {
				step.DependsOn = append(step.DependsOn, s)
			}
		}
	}
	if expect, ok := m["expect"].(string); ok {
		step.Expect = expect
	}
	if outputKey, ok := m["output_key"].(string); ok {
		step.OutputKey = outputKey
	}
	if retry, ok := m["retry"].(float64); ok {
		step.Retry = int(retry)
	}
	return step, true
}
