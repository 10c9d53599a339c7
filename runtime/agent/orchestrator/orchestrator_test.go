package orchestrator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Atomheart-Father/agentflow/runtime/agent/executor"
	"github.com/Atomheart-Father/agentflow/runtime/agent/judge"
	"github.com/Atomheart-Father/agentflow/runtime/agent/model"
	"github.com/Atomheart-Father/agentflow/runtime/agent/orchestrator"
	"github.com/Atomheart-Father/agentflow/runtime/agent/planner"
	"github.com/Atomheart-Father/agentflow/runtime/agent/telemetry"
	"github.com/Atomheart-Father/agentflow/runtime/agent/tools"
	"github.com/Atomheart-Father/agentflow/runtime/agent/tools/builtin"
)

// scriptedClient returns successive canned text responses, one per Complete
// call, repeating the last once exhausted.
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

func TestRunSimpleToolCallReachesDone(t *testing.T) {
	planJSON := `{"goal":"tell the time","success_criteria":["gave a time"],"max_steps":1,"steps":[{"id":"s1","type":"tool_call","tool":"time_now","inputs":{},"depends_on":[],"expect":"current time","output_key":"now","retry":0}],"final_answer_template":"It is {{now}}"}`
	judgeJSON := `{"satisfied":true,"missing":[],"plan_patch":{},"questions":[],"confidence":0.95}`

	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(builtin.NewClock("UTC")))
	dispatcher := tools.NewDispatcher(registry)

	p := planner.New(&scriptedClient{responses: []string{planJSON}}, registry, telemetry.NewNoopLogger())
	e := executor.New(dispatcher, telemetry.NewNoopLogger())
	j := judge.New(&scriptedClient{responses: []string{judgeJSON}}, telemetry.NewNoopLogger())

	o := orchestrator.New(p, e, j, telemetry.NewNoopLogger())
	task := orchestrator.NewActiveTask()

	result := o.Run(context.Background(), "what time is it?", task)
	require.Equal(t, orchestrator.StatusDone, result.Status)
	assert.Contains(t, result.FinalAnswer, "It is")
	assert.Equal(t, 1, task.TotalToolCalls)
	assert.Equal(t, 1, task.PlanIterations)
}

func TestRunWeatherMissingLocationSuspendsThenResumeCompletes(t *testing.T) {
	firstPlan := `{"goal":"will it rain tomorrow","success_criteria":["gave a forecast"],"max_steps":1,"steps":[{"id":"s1","type":"tool_call","tool":"weather_get","inputs":{},"depends_on":[],"expect":"forecast","output_key":"forecast","retry":0}],"final_answer_template":"{{forecast}}"}`
	secondPlan := `{"goal":"will it rain tomorrow","success_criteria":["gave a forecast"],"max_steps":1,"steps":[{"id":"s1","type":"tool_call","tool":"weather_get","inputs":{"location":"{{user_city}}"},"depends_on":[],"expect":"forecast","output_key":"forecast","retry":0}],"final_answer_template":"Forecast for Rotterdam: {{forecast}}"}`
	judgeJSON := `{"satisfied":true,"missing":[],"plan_patch":{},"questions":[],"confidence":0.9}`

	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(builtin.NewWeather()))
	dispatcher := tools.NewDispatcher(registry)

	plannerClient := &scriptedClient{responses: []string{firstPlan, secondPlan}}
	p := planner.New(plannerClient, registry, telemetry.NewNoopLogger())
	e := executor.New(dispatcher, telemetry.NewNoopLogger())
	j := judge.New(&scriptedClient{responses: []string{judgeJSON}}, telemetry.NewNoopLogger())

	o := orchestrator.New(p, e, j, telemetry.NewNoopLogger())
	task := orchestrator.NewActiveTask()

	first := o.Run(context.Background(), "will it rain tomorrow?", task)
	require.Equal(t, orchestrator.StatusWaitingForUser, first.Status)
	assert.Equal(t, "city", first.Expects)
	assert.NotEmpty(t, first.AskID)

	second := o.Resume(context.Background(), task, "Rotterdam")
	require.Equal(t, orchestrator.StatusDone, second.Status)
	assert.Equal(t, "Rotterdam", task.State.Inputs["user_city"])
	assert.Contains(t, second.FinalAnswer, "Rotterdam")
}

func TestRunBudgetOverflowFails(t *testing.T) {
	planJSON := `{"goal":"chain of calls","success_criteria":["done"],"max_steps":1,"steps":[{"id":"s1","type":"tool_call","tool":"time_now","inputs":{},"depends_on":[],"expect":"current time","output_key":"t","retry":0}],"final_answer_template":"{{t}}"}`
	replanJSON := `{"goal":"chain of calls","success_criteria":["done"],"max_steps":1,"steps":[{"id":"s2","type":"tool_call","tool":"time_now","inputs":{},"depends_on":[],"expect":"current time","output_key":"t2","retry":0}],"final_answer_template":"{{t2}}"}`
	judgeJSON := `{"satisfied":false,"missing":["more evidence"],"plan_patch":{"steps":[{"id":"s2","type":"tool_call","tool":"time_now","inputs":{},"depends_on":[],"expect":"current time","output_key":"t2","retry":0}]},"questions":[],"confidence":0.4}`

	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(builtin.NewClock("UTC")))
	dispatcher := tools.NewDispatcher(registry)

	p := planner.New(&scriptedClient{responses: []string{planJSON, replanJSON}}, registry, telemetry.NewNoopLogger())
	e := executor.New(dispatcher, telemetry.NewNoopLogger())
	j := judge.New(&scriptedClient{responses: []string{judgeJSON}}, telemetry.NewNoopLogger())

	o := orchestrator.New(p, e, j, telemetry.NewNoopLogger())
	o.Budgets.MaxPlanIters = 5
	o.Budgets.MaxTotalToolCalls = 1
	task := orchestrator.NewActiveTask()

	result := o.Run(context.Background(), "chain of calls", task)
	require.Equal(t, orchestrator.StatusFailed, result.Status)
	assert.Contains(t, result.ErrorMessage, "tool calls")
}

func TestRunExceedsPlanIterationsFails(t *testing.T) {
	planJSON := `{"goal":"never satisfied","success_criteria":["impossible"],"max_steps":1,"steps":[{"id":"s1","type":"summarize","inputs":{"text":"hi"},"depends_on":[],"expect":"summary","output_key":"s","retry":0}],"final_answer_template":"{{s}}"}`
	judgeJSON := `{"satisfied":false,"missing":["more evidence"],"plan_patch":{},"questions":[],"confidence":0.2}`

	registry := tools.NewRegistry()
	dispatcher := tools.NewDispatcher(registry)

	p := planner.New(&scriptedClient{responses: []string{planJSON, planJSON, planJSON}}, registry, telemetry.NewNoopLogger())
	e := executor.New(dispatcher, telemetry.NewNoopLogger())
	j := judge.New(&scriptedClient{responses: []string{judgeJSON, judgeJSON, judgeJSON}}, telemetry.NewNoopLogger())

	o := orchestrator.New(p, e, j, telemetry.NewNoopLogger())
	task := orchestrator.NewActiveTask()

	result := o.Run(context.Background(), "never satisfied", task)
	require.Equal(t, orchestrator.StatusFailed, result.Status)
	assert.Equal(t, 3, task.PlanIterations)
}
