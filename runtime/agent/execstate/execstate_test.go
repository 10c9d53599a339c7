package execstate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Atomheart-Father/agentflow/runtime/agent/execstate"
	"github.com/Atomheart-Father/agentflow/runtime/agent/tools"
)

func TestInterpolateScalarArtifact(t *testing.T) {
	s := execstate.New()
	s.SetArtifact("city", "Rotterdam")
	assert.Equal(t, "Weather in Rotterdam", s.Interpolate("Weather in {{city}}"))
}

func TestInterpolateUnresolvedPlaceholderLeftLiteral(t *testing.T) {
	s := execstate.New()
	assert.Equal(t, "Weather in {{city}}", s.Interpolate("Weather in {{city}}"))
}

func TestInterpolateSuccessfulToolResultWellKnownField(t *testing.T) {
	s := execstate.New()
	s.SetArtifact("now", tools.Success("time_now", map[string]any{"current_time": "10:00:00"}))
	assert.Equal(t, "It is 10:00:00", s.Interpolate("It is {{now}}"))
}

func TestInterpolateSuccessfulToolResultFallsBackToJSON(t *testing.T) {
	s := execstate.New()
	s.SetArtifact("data", tools.Success("x", map[string]any{"a": 1}))
	assert.Equal(t, `{"a":1}`, s.Interpolate("{{data}}"))
}

func TestInterpolateFailedToolResult(t *testing.T) {
	s := execstate.New()
	s.SetArtifact("weather", tools.Failed("weather_get", tools.ErrorCodeNotFound, "unknown city"))
	assert.Equal(t, "[tool failed: unknown city]", s.Interpolate("{{weather}}"))
}

func TestInterpolateInputsTakeEffectAsUserSlots(t *testing.T) {
	s := execstate.New()
	s.Inputs["user_city"] = "Paris"
	assert.Equal(t, "Paris", s.Interpolate("{{user_city}}"))
}

func TestInterpolateArgsRecursesNestedStructures(t *testing.T) {
	s := execstate.New()
	s.SetArtifact("city", "Berlin")
	out := s.InterpolateArgs(map[string]any{
		"location": "{{city}}",
		"nested":   map[string]any{"inner": "{{city}}"},
		"list":     []any{"{{city}}", 5},
	})
	assert.Equal(t, "Berlin", out["location"])
	assert.Equal(t, "Berlin", out["nested"].(map[string]any)["inner"])
	assert.Equal(t, "Berlin", out["list"].([]any)[0])
	assert.Equal(t, 5, out["list"].([]any)[1])
}

func TestPendingAskLifecycle(t *testing.T) {
	s := execstate.New()
	_, ok := s.PendingAsk()
	require.False(t, ok)

	s.SetPendingAsk(execstate.AskUserPending{AskID: "a1", Expects: "city"})
	pending, ok := s.PendingAsk()
	require.True(t, ok)
	assert.Equal(t, "a1", pending.AskID)

	s.ClearPendingAsk()
	_, ok = s.PendingAsk()
	assert.False(t, ok)
}
