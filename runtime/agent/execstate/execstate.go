// Package execstate holds per-task artifact state and implements the
// {{key}} variable interpolation rule shared by the Executor and the
// Orchestrator's final-answer renderer.
package execstate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Atomheart-Father/agentflow/runtime/agent/tools"
)

// AskUserPending is the suspension marker recorded in artifacts when a step
// needs a clarifying answer from the user. Its presence at the top of an
// Executor iteration halts step execution immediately.
type AskUserPending struct {
	AskID     string   `json:"ask_id"`
	Questions []string `json:"questions"`
	Expects   string   `json:"expects"`
	StepID    string   `json:"step_id"`
	OutputKey string   `json:"output_key"`
	Context   string   `json:"context,omitempty"`
}

// AskUserPendingKey is the well-known artifact key under which a pending ask
// is stored, mirroring the "artifacts.ask_user_pending" field from the data
// model.
const AskUserPendingKey = "ask_user_pending"

// Failure records one step's error for the error log.
type Failure struct {
	StepID  string
	Message string
}

// State is the per-active-task execution state: artifacts, completed steps,
// errors, and user-input slots. It is owned exclusively by its ActiveTask and
// is not safe for concurrent use — the session manager rejects a second
// concurrent message on the same session rather than letting two goroutines
// touch the same State.
type State struct {
	Artifacts      map[string]any
	CompletedSteps map[string]bool
	Errors         []Failure
	Inputs         map[string]any
}

// New builds an empty State.
func New() *State {
	return &State{
		Artifacts:      make(map[string]any),
		CompletedSteps: make(map[string]bool),
		Inputs:         make(map[string]any),
	}
}

// SetArtifact records a step's output.
func (s *State) SetArtifact(outputKey string, value any) {
	s.Artifacts[outputKey] = value
}

// GetArtifact looks up an artifact or a user-input slot, artifacts taking
// precedence on key collision.
func (s *State) GetArtifact(key string) (any, bool) {
	if v, ok := s.Artifacts[key]; ok {
		return v, true
	}
	if v, ok := s.Inputs[key]; ok {
		return v, true
	}
	return nil, false
}

// MarkCompleted records that a step produced output successfully.
func (s *State) MarkCompleted(stepID string) {
	s.CompletedSteps[stepID] = true
}

// AddError appends a step failure to the error log.
func (s *State) AddError(stepID, message string) {
	s.Errors = append(s.Errors, Failure{StepID: stepID, Message: message})
}

// PendingAsk returns the current ask_user_pending marker, if any.
func (s *State) PendingAsk() (AskUserPending, bool) {
	v, ok := s.Artifacts[AskUserPendingKey]
	if !ok {
		return AskUserPending{}, false
	}
	pending, ok := v.(AskUserPending)
	return pending, ok
}

// SetPendingAsk records a new suspension marker.
func (s *State) SetPendingAsk(p AskUserPending) {
	s.Artifacts[AskUserPendingKey] = p
}

// ClearPendingAsk removes the suspension marker, called when the Orchestrator
// resumes a suspended task with a user answer.
func (s *State) ClearPendingAsk() {
	delete(s.Artifacts, AskUserPendingKey)
}

var placeholderPattern = regexp.MustCompile(`\{\{([a-zA-Z0-9_\.]+)\}\}`)

// Interpolate replaces every {{key}} occurrence in input with a rendering of
// the corresponding artifact or input slot. Unresolved placeholders are left
// as literal text — they are not errors; the Judge observes their semantic
// effect on downstream artifacts instead.
func (s *State) Interpolate(input string) string {
	return placeholderPattern.ReplaceAllStringFunc(input, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := s.GetArtifact(key)
		if !ok {
			return match
		}
		return Render(value)
	})
}

// InterpolateArgs applies Interpolate to every string value in args,
// recursing into nested maps and slices so a tool_call step's inputs
// interpolate regardless of nesting depth. Non-string scalars pass through
// unchanged.
func (s *State) InterpolateArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = s.interpolateValue(v)
	}
	return out
}

func (s *State) interpolateValue(v any) any {
	switch val := v.(type) {
	case string:
		return s.Interpolate(val)
	case map[string]any:
		return s.InterpolateArgs(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = s.interpolateValue(item)
		}
		return out
	default:
		return v
	}
}

// Render produces the textual form of an artifact value per the
// interpolation rendering discipline:
//   - a failed ToolResult renders as "[tool failed: <message>]" so the
//     failure is visible to downstream steps and the Judge;
//   - a successful ToolResult renders a well-known scalar field when present,
//     otherwise its data as compact JSON;
//   - dicts/lists render as compact JSON;
//   - everything else stringifies with fmt.Sprintf("%v", ...).
func Render(value any) string {
	switch v := value.(type) {
	case tools.Result:
		return renderToolResult(v)
	case string:
		return v
	case map[string]any, []any:
		return renderJSON(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// wellKnownScalarFields lists the data fields, in priority order, that make a
// successful tool result renderable as a single scalar instead of full JSON.
var wellKnownScalarFields = []string{"current_time", "temperature", "result", "summary", "answer", "value"}

func renderToolResult(r tools.Result) string {
	if !r.Ok {
		message := "unknown error"
		if r.Error != nil {
			message = r.Error.Message
		}
		return fmt.Sprintf("[tool failed: %s]", message)
	}
	if data, ok := r.Data.(map[string]any); ok {
		for _, field := range wellKnownScalarFields {
			if v, present := data[field]; present {
				return fmt.Sprintf("%v", v)
			}
		}
	}
	return renderJSON(r.Data)
}

func renderJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return strings.TrimSpace(string(b))
}
