package executor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Atomheart-Father/agentflow/runtime/agent/execstate"
	"github.com/Atomheart-Father/agentflow/runtime/agent/executor"
	"github.com/Atomheart-Father/agentflow/runtime/agent/plan"
	"github.com/Atomheart-Father/agentflow/runtime/agent/telemetry"
	"github.com/Atomheart-Father/agentflow/runtime/agent/tools"
	"github.com/Atomheart-Father/agentflow/runtime/agent/tools/builtin"
)

func newDispatcher(t *testing.T) *tools.Dispatcher {
	t.Helper()
	r := tools.NewRegistry()
	require.NoError(t, r.Register(builtin.NewClock("UTC")))
	require.NoError(t, r.Register(builtin.NewWeather()))
	require.NoError(t, r.Register(builtin.NewFileWrite(t.TempDir())))
	return tools.NewDispatcher(r)
}

func TestExecuteSimpleToolCallPlan(t *testing.T) {
	e := executor.New(newDispatcher(t), telemetry.NewNoopLogger())
	p := plan.Plan{
		MaxSteps: 1,
		Steps: []plan.Step{
			{ID: "s1", Type: plan.StepTypeToolCall, Tool: builtin.ClockToolName, OutputKey: "now"},
		},
	}
	state := execstate.New()

	consumed, err := e.Execute(context.Background(), p, state, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, consumed)
	assert.True(t, state.CompletedSteps["s1"])
	result, ok := state.GetArtifact("now")
	require.True(t, ok)
	assert.True(t, result.(tools.Result).Ok)
}

func TestExecuteWeatherWithoutLocationSuspendsForAsk(t *testing.T) {
	e := executor.New(newDispatcher(t), telemetry.NewNoopLogger())
	p := plan.Plan{
		MaxSteps: 1,
		Steps: []plan.Step{
			{ID: "s1", Type: plan.StepTypeToolCall, Tool: builtin.WeatherToolName, Inputs: map[string]any{}, OutputKey: "forecast"},
		},
	}
	state := execstate.New()

	consumed, err := e.Execute(context.Background(), p, state, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, consumed)
	assert.False(t, state.CompletedSteps["s1"])
	pending, ok := state.PendingAsk()
	require.True(t, ok)
	assert.Equal(t, "city", pending.Expects)
}

func TestExecuteRespectsBudget(t *testing.T) {
	e := executor.New(newDispatcher(t), telemetry.NewNoopLogger())
	p := plan.Plan{
		MaxSteps: 2,
		Steps: []plan.Step{
			{ID: "s1", Type: plan.StepTypeToolCall, Tool: builtin.ClockToolName, OutputKey: "a"},
			{ID: "s2", Type: plan.StepTypeToolCall, Tool: builtin.ClockToolName, OutputKey: "b", DependsOn: []string{"s1"}},
		},
	}
	state := execstate.New()

	consumed, err := e.Execute(context.Background(), p, state, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, consumed)
	assert.True(t, state.CompletedSteps["s1"])
	assert.False(t, state.CompletedSteps["s2"])
}

func TestExecuteSummarizeWithoutModelUsesInterpolatedText(t *testing.T) {
	e := executor.New(newDispatcher(t), telemetry.NewNoopLogger())
	p := plan.Plan{
		MaxSteps: 1,
		Steps: []plan.Step{
			{ID: "s1", Type: plan.StepTypeSummarize, Inputs: map[string]any{"text": "hello world"}, OutputKey: "summary"},
		},
	}
	state := execstate.New()

	_, err := e.Execute(context.Background(), p, state, 3)
	require.NoError(t, err)
	summary, ok := state.GetArtifact("summary")
	require.True(t, ok)
	assert.Equal(t, "hello world", summary)
}

func TestExecuteAskUserStepSuspendsWithoutDispatch(t *testing.T) {
	e := executor.New(newDispatcher(t), telemetry.NewNoopLogger())
	p := plan.Plan{
		MaxSteps: 1,
		Steps: []plan.Step{
			{ID: "s1", Type: plan.StepTypeAskUser, Inputs: map[string]any{"question": "What is your budget?"}, OutputKey: "user_budget"},
		},
	}
	state := execstate.New()

	consumed, err := e.Execute(context.Background(), p, state, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, consumed)
	pending, ok := state.PendingAsk()
	require.True(t, ok)
	assert.Equal(t, "What is your budget?", pending.Questions[0])
	assert.Equal(t, "user_budget", pending.OutputKey)
}

func TestExecuteDispatchCoercesCityAliasAndRelativeDate(t *testing.T) {
	e := executor.New(newDispatcher(t), telemetry.NewNoopLogger())
	p := plan.Plan{
		MaxSteps: 1,
		Steps: []plan.Step{
			{
				ID:        "s1",
				Type:      plan.StepTypeToolCall,
				Tool:      builtin.WeatherToolName,
				Inputs:    map[string]any{"city": "Rotterdam", "date": "tomorrow"},
				OutputKey: "forecast",
			},
		},
	}
	state := execstate.New()

	consumed, err := e.Execute(context.Background(), p, state, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, consumed)
	assert.True(t, state.CompletedSteps["s1"])

	artifact, ok := state.GetArtifact("forecast")
	require.True(t, ok)
	result := artifact.(tools.Result)
	require.True(t, result.Ok)
	data := result.Data.(map[string]any)
	assert.Equal(t, "Rotterdam", data["location"])
	assert.NotEqual(t, "tomorrow", data["date"])
}

func TestExecuteWriteFileDoesNotCountAgainstToolBudget(t *testing.T) {
	e := executor.New(newDispatcher(t), telemetry.NewNoopLogger())
	p := plan.Plan{
		MaxSteps: 1,
		Steps: []plan.Step{
			{ID: "s1", Type: plan.StepTypeWriteFile, Inputs: map[string]any{"path": "report.txt", "content": "done"}, OutputKey: "write_result"},
		},
	}
	state := execstate.New()

	consumed, err := e.Execute(context.Background(), p, state, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, consumed)
	assert.True(t, state.CompletedSteps["s1"])
}
