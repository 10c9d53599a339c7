package planner_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Atomheart-Father/agentflow/runtime/agent/model"
	"github.com/Atomheart-Father/agentflow/runtime/agent/plan"
	"github.com/Atomheart-Father/agentflow/runtime/agent/planner"
	"github.com/Atomheart-Father/agentflow/runtime/agent/telemetry"
	"github.com/Atomheart-Father/agentflow/runtime/agent/tools"
)

// scriptedClient returns successive text responses on each Complete call.
type scriptedClient struct {
	responses []string
	calls     int
}

func (c *scriptedClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	idx := c.calls
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	c.calls++
	return &model.Response{
		Content: []model.Message{
			{Role: model.ConversationRoleAssistant, Parts: []model.Part{model.TextPart{Text: c.responses[idx]}}},
		},
	}, nil
}

func (c *scriptedClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	return nil, nil
}

func newRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	require.NoError(t, r.Register(tools.Spec{
		Name:        "time_now",
		Description: "returns the current time",
		Payload:     tools.TypeSpec{Codec: tools.AnyJSONCodec},
		Invoke:      func(args map[string]any) tools.Result { return tools.Success("time_now", nil) },
	}))
	return r
}

func TestCreatePlanParsesValidJSON(t *testing.T) {
	validJSON := `{"goal":"tell the time","success_criteria":["gave the time"],"max_steps":2,"steps":[{"id":"s1","type":"tool_call","tool":"time_now","inputs":{},"depends_on":[],"expect":"current time","output_key":"now","retry":0}],"final_answer_template":"It is {{now}}"}`

	client := &scriptedClient{responses: []string{validJSON}}
	p := planner.New(client, newRegistry(t), telemetry.NewNoopLogger())

	result, err := p.CreatePlan(context.Background(), "what time is it?", nil)
	require.NoError(t, err)
	assert.Equal(t, "tell the time", result.Goal)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, plan.StepTypeToolCall, result.Steps[0].Type)
}

func TestCreatePlanExtractsJSONFromProse(t *testing.T) {
	wrapped := "Sure, here is the plan:\n```json\n" +
		`{"goal":"g","success_criteria":["c"],"max_steps":1,"steps":[{"id":"s1","type":"summarize","inputs":{},"depends_on":[],"expect":"e","output_key":"analysis","retry":0}],"final_answer_template":"{{analysis}}"}` +
		"\n```"

	client := &scriptedClient{responses: []string{wrapped}}
	p := planner.New(client, newRegistry(t), telemetry.NewNoopLogger())

	result, err := p.CreatePlan(context.Background(), "anything", nil)
	require.NoError(t, err)
	assert.Equal(t, "g", result.Goal)
}

func TestCreatePlanRetriesThenFallsBack(t *testing.T) {
	client := &scriptedClient{responses: []string{"not json at all", "still not json"}}
	p := planner.New(client, newRegistry(t), telemetry.NewNoopLogger())
	p.MaxRetries = 1

	result, err := p.CreatePlan(context.Background(), "do something vague", nil)
	require.NoError(t, err)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, plan.StepTypeSummarize, result.Steps[0].Type)
}

func TestCreatePlanRejectsPlanFailingValidation(t *testing.T) {
	invalid := `{"goal":"g","success_criteria":["c"],"max_steps":1,"steps":[{"id":"s1","type":"tool_call","inputs":{},"depends_on":[],"expect":"e","output_key":"k","retry":0}],"final_answer_template":"{{k}}"}`

	client := &scriptedClient{responses: []string{invalid, invalid}}
	p := planner.New(client, newRegistry(t), telemetry.NewNoopLogger())
	p.MaxRetries = 1

	result, err := p.CreatePlan(context.Background(), "broken tool call", nil)
	require.NoError(t, err)
	assert.Equal(t, plan.StepTypeSummarize, result.Steps[0].Type)
}
