package gateway_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Atomheart-Father/agentflow/runtime/agent/executor"
	"github.com/Atomheart-Father/agentflow/runtime/agent/gateway"
	"github.com/Atomheart-Father/agentflow/runtime/agent/judge"
	"github.com/Atomheart-Father/agentflow/runtime/agent/model"
	"github.com/Atomheart-Father/agentflow/runtime/agent/orchestrator"
	"github.com/Atomheart-Father/agentflow/runtime/agent/planner"
	"github.com/Atomheart-Father/agentflow/runtime/agent/router"
	"github.com/Atomheart-Father/agentflow/runtime/agent/session"
	"github.com/Atomheart-Father/agentflow/runtime/agent/telemetry"
	"github.com/Atomheart-Father/agentflow/runtime/agent/tools"
	"github.com/Atomheart-Father/agentflow/runtime/agent/tools/builtin"
)

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
	return nil, model.ErrStreamingUnsupported
}

func newGateway(t *testing.T, plans, judges, chat []string) *gateway.Gateway {
	t.Helper()
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(builtin.NewClock("UTC")))
	dispatcher := tools.NewDispatcher(registry)

	p := planner.New(&scriptedClient{responses: plans}, registry, telemetry.NewNoopLogger())
	e := executor.New(dispatcher, telemetry.NewNoopLogger())
	j := judge.New(&scriptedClient{responses: judges}, telemetry.NewNoopLogger())
	orch := orchestrator.New(p, e, j, telemetry.NewNoopLogger())
	mgr := session.NewManager(orch)

	return gateway.New(mgr, &scriptedClient{responses: chat})
}

func TestHandleRoutesChitChatToChatMode(t *testing.T) {
	gw := newGateway(t, nil, nil, []string{"Hi there! How can I help?"})

	resp, err := gw.Handle(context.Background(), "sess-1", "hey, how are you?", "")
	require.NoError(t, err)
	assert.Equal(t, router.ModeChat, resp.Mode)
	assert.Equal(t, "Hi there! How can I help?", resp.Answer)
}

func TestHandleRoutesTaskLikeQueryToOrchestrator(t *testing.T) {
	planJSON := `{"goal":"tell the time","success_criteria":["gave a time"],"max_steps":1,"steps":[{"id":"s1","type":"tool_call","tool":"time_now","inputs":{},"depends_on":[],"expect":"current time","output_key":"now","retry":0}],"final_answer_template":"It is {{now}}"}`
	judgeJSON := `{"satisfied":true,"missing":[],"plan_patch":{},"questions":[],"confidence":0.95}`

	gw := newGateway(t, []string{planJSON}, []string{judgeJSON}, nil)

	resp, err := gw.Handle(context.Background(), "sess-2", "please write a note with the current time", "")
	require.NoError(t, err)
	assert.Equal(t, router.ModeOrchestrate, resp.Mode)
	assert.Equal(t, session.ClassificationNewTask, resp.Classification)
	assert.Equal(t, orchestrator.StatusDone, resp.Result.Status)
}

func TestHandleForcePrefixOverridesHeuristic(t *testing.T) {
	gw := newGateway(t, nil, nil, []string{"Sure, here's a quick answer."})

	resp, err := gw.Handle(context.Background(), "sess-3", "/chat search for the weather report", "")
	require.NoError(t, err)
	assert.Equal(t, router.ModeChat, resp.Mode)
}

func TestHandlePendingAskBypassesHeuristicEvenWhenMessageLooksLikeChitChat(t *testing.T) {
	firstPlan := `{"goal":"will it rain tomorrow","success_criteria":["gave a forecast"],"max_steps":1,"steps":[{"id":"s1","type":"tool_call","tool":"weather_get","inputs":{},"depends_on":[],"expect":"forecast","output_key":"forecast","retry":0}],"final_answer_template":"{{forecast}}"}`
	secondPlan := `{"goal":"will it rain tomorrow","success_criteria":["gave a forecast"],"max_steps":1,"steps":[{"id":"s1","type":"tool_call","tool":"weather_get","inputs":{"location":"{{user_city}}"},"depends_on":[],"expect":"forecast","output_key":"forecast","retry":0}],"final_answer_template":"Forecast for Rotterdam: {{forecast}}"}`
	judgeJSON := `{"satisfied":true,"missing":[],"plan_patch":{},"questions":[],"confidence":0.9}`

	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(builtin.NewWeather()))
	dispatcher := tools.NewDispatcher(registry)
	p := planner.New(&scriptedClient{responses: []string{firstPlan, secondPlan}}, registry, telemetry.NewNoopLogger())
	e := executor.New(dispatcher, telemetry.NewNoopLogger())
	j := judge.New(&scriptedClient{responses: []string{judgeJSON}}, telemetry.NewNoopLogger())
	orch := orchestrator.New(p, e, j, telemetry.NewNoopLogger())
	mgr := session.NewManager(orch)
	gw := gateway.New(mgr, &scriptedClient{responses: []string{"this would be wrong if used"}})

	first, err := gw.Handle(context.Background(), "sess-4", "will it rain tomorrow?", "")
	require.NoError(t, err)
	require.Equal(t, orchestrator.StatusWaitingForUser, first.Result.Status)

	second, err := gw.Handle(context.Background(), "sess-4", "thanks, Rotterdam", "")
	require.NoError(t, err)
	assert.Equal(t, router.ModeOrchestrate, second.Mode)
	assert.Equal(t, orchestrator.StatusDone, second.Result.Status)
}

func TestHandleChatModeErrorsWithoutChatClient(t *testing.T) {
	orch := orchestrator.New(planner.New(&scriptedClient{}, tools.NewRegistry(), telemetry.NewNoopLogger()),
		executor.New(tools.NewDispatcher(tools.NewRegistry()), telemetry.NewNoopLogger()),
		judge.New(&scriptedClient{}, telemetry.NewNoopLogger()),
		telemetry.NewNoopLogger())
	mgr := session.NewManager(orch)
	gw := gateway.New(mgr, nil)

	_, err := gw.Handle(context.Background(), "sess-5", "hello there", "")
	assert.Error(t, err)
}
