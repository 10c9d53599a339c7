package stream_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Atomheart-Father/agentflow/runtime/agent/stream"
)

type recordingSink struct {
	mu     sync.Mutex
	events []stream.Event
	closed bool
}

func (s *recordingSink) Send(ctx context.Context, e stream.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) Close(ctx context.Context) error {
	s.closed = true
	return nil
}

func TestSubscriberForwardsAllEightVariants(t *testing.T) {
	sink := &recordingSink{}
	sub, err := stream.NewSubscriber(sink, "sess-1")
	require.NoError(t, err)

	ctx := context.Background()
	sub.AssistantContent(ctx, "hello")
	sub.Status(ctx, "planning")
	sub.ToolTrace(ctx, "weather_get", "dispatch", map[string]any{"ok": true})
	sub.Debug(ctx, "info", "planner retry 1")
	sub.AskUserOpen(ctx, "ask-1", "which city?", map[string]any{"expects": "city"})
	sub.AskUserClose(ctx, "ask-1", true)
	sub.FinalAnswer(ctx, "It will rain.", "")
	sub.Error(ctx, "BUDGET_EXCEEDED", "too many tool calls")

	require.Len(t, sink.events, 8)

	wantTypes := []stream.EventType{
		stream.EventAssistantContent,
		stream.EventStatus,
		stream.EventToolTrace,
		stream.EventDebug,
		stream.EventAskUserOpen,
		stream.EventAskUserClose,
		stream.EventFinalAnswer,
		stream.EventError,
	}
	for i, want := range wantTypes {
		assert.Equal(t, want, sink.events[i].Type())
		assert.Equal(t, "sess-1", sink.events[i].SessionID())
	}
}

func TestNewSubscriberRejectsNilSink(t *testing.T) {
	_, err := stream.NewSubscriber(nil, "sess-1")
	assert.Error(t, err)
}

func TestAskUserOpenPayloadCarriesHints(t *testing.T) {
	sink := &recordingSink{}
	sub, err := stream.NewSubscriber(sink, "sess-1")
	require.NoError(t, err)

	sub.AskUserOpen(context.Background(), "ask-2", "what's your budget?", map[string]any{"expects": "answer"})
	require.Len(t, sink.events, 1)

	payload, ok := sink.events[0].Payload().(stream.AskUserOpenPayload)
	require.True(t, ok)
	assert.Equal(t, "ask-2", payload.AskID)
	assert.Equal(t, "answer", payload.Hints["expects"])
}
