// Package plan defines the Plan/PlanStep data model produced by the Planner
// and consumed by the Executor and Judge.
package plan

import (
	"fmt"

	"github.com/Atomheart-Father/agentflow/runtime/agent/tools"
)

// StepType tags the kind of work a PlanStep performs. It is a closed set:
// the Executor switches on it exhaustively instead of relying on runtime type
// inspection.
type StepType string

const (
	// StepTypeToolCall invokes a registered tool through the dispatcher.
	StepTypeToolCall StepType = "tool_call"
	// StepTypeWebSearch invokes a search tool through the dispatcher; it is a
	// distinct tag only for Planner prompt-discipline purposes (capped at two
	// per plan), not a distinct Executor code path.
	StepTypeWebSearch StepType = "web_search"
	// StepTypeSummarize asks the LLM to condense prior artifacts into text.
	StepTypeSummarize StepType = "summarize"
	// StepTypeWriteFile writes interpolated content to the sandboxed file-write tool.
	StepTypeWriteFile StepType = "write_file"
	// StepTypeAskUser suspends execution to request clarifying input from the user.
	StepTypeAskUser StepType = "ask_user"
)

// Valid reports whether t is one of the five recognized step types.
func (t StepType) Valid() bool {
	switch t {
	case StepTypeToolCall, StepTypeWebSearch, StepTypeSummarize, StepTypeWriteFile, StepTypeAskUser:
		return true
	default:
		return false
	}
}

// Step is one node of a Plan's directed acyclic step graph.
type Step struct {
	ID         string         `json:"id"`
	Type       StepType       `json:"type"`
	Tool       tools.Ident    `json:"tool,omitempty"`
	Inputs     map[string]any `json:"inputs,omitempty"`
	DependsOn  []string       `json:"depends_on,omitempty"`
	Expect     string         `json:"expect,omitempty"`
	OutputKey  string         `json:"output_key"`
	Retry      int            `json:"retry"`
}

// Plan is the Planner's output: a bounded, ordered set of steps plus the
// success criteria the Judge will evaluate against.
type Plan struct {
	Goal                string   `json:"goal"`
	SuccessCriteria     []string `json:"success_criteria"`
	MaxSteps            int      `json:"max_steps"`
	Steps               []Step   `json:"steps"`
	FinalAnswerTemplate string   `json:"final_answer_template"`
}

// Validate enforces the invariants from the data model: step count within
// max_steps, every depends_on referencing a strictly earlier step ID, and no
// cycles. It does not check final_answer_template placeholders — that
// requires knowing which of the plan's output_keys a step will actually
// populate versus the reserved ask_user input slots, and is checked
// separately by the caller once the full Plan is available (see
// orchestrator.validateTemplate).
func (p Plan) Validate() error {
	if p.MaxSteps < 1 || p.MaxSteps > 10 {
		return fmt.Errorf("plan: max_steps %d out of range [1,10]", p.MaxSteps)
	}
	if len(p.Steps) > p.MaxSteps {
		return fmt.Errorf("plan: %d steps exceeds max_steps %d", len(p.Steps), p.MaxSteps)
	}
	seen := make(map[string]int, len(p.Steps))
	for i, s := range p.Steps {
		if s.ID == "" {
			return fmt.Errorf("plan: step %d has empty id", i)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("plan: duplicate step id %q", s.ID)
		}
		seen[s.ID] = i
		if !s.Type.Valid() {
			return fmt.Errorf("plan: step %q has unknown type %q", s.ID, s.Type)
		}
		if s.Type == StepTypeToolCall && s.Tool == "" {
			return fmt.Errorf("plan: tool_call step %q requires a tool name", s.ID)
		}
		for _, dep := range s.DependsOn {
			idx, ok := seen[dep]
			if !ok {
				return fmt.Errorf("plan: step %q depends_on unknown or later step %q", s.ID, dep)
			}
			if idx >= i {
				return fmt.Errorf("plan: step %q depends_on non-earlier step %q", s.ID, dep)
			}
		}
	}
	return nil
}
