package stream

import (
	"context"
	"errors"
)

// Subscriber adapts an Orchestrator run to a Sink, implementing the
// collaborator interface the orchestrator package expects
// (AssistantContent/Status/ToolTrace/Debug/AskUserOpen/AskUserClose/
// FinalAnswer/Error) by wrapping each call into the matching Event and
// forwarding it to Send.
//
// Unlike the teacher's hook-bus Subscriber, there is no internal event bus
// to bridge from: the orchestrator calls these methods directly as it runs
// the PLAN/ACT/JUDGE loop, one session at a time.
type Subscriber struct {
	sink      Sink
	sessionID string
}

// NewSubscriber constructs a Subscriber that forwards events for the given
// session to sink. Returns an error if sink is nil.
func NewSubscriber(sink Sink, sessionID string) (*Subscriber, error) {
	if sink == nil {
		return nil, errors.New("stream sink is required")
	}
	return &Subscriber{sink: sink, sessionID: sessionID}, nil
}

func (s *Subscriber) send(ctx context.Context, e Event) {
	// Streaming is best-effort: a disconnected client must not abort
	// orchestration. Send errors are swallowed here; callers that need to
	// react to sink failures should wrap Sink themselves.
	_ = s.sink.Send(ctx, e)
}

// AssistantContent forwards an assistant text delta.
func (s *Subscriber) AssistantContent(ctx context.Context, delta string) {
	data := AssistantContentPayload{Delta: delta}
	s.send(ctx, AssistantContent{Base: NewBase(EventAssistantContent, s.sessionID, data), Data: data})
}

// Status forwards a status-bar message.
func (s *Subscriber) Status(ctx context.Context, message string) {
	data := StatusPayload{Message: message}
	s.send(ctx, Status{Base: NewBase(EventStatus, s.sessionID, data), Data: data})
}

// ToolTrace forwards a tool invocation and its result.
func (s *Subscriber) ToolTrace(ctx context.Context, tool, action string, result any) {
	data := ToolTracePayload{Tool: tool, Action: action, Result: result}
	s.send(ctx, ToolTrace{Base: NewBase(EventToolTrace, s.sessionID, data), Data: data})
}

// Debug forwards an internal diagnostic line.
func (s *Subscriber) Debug(ctx context.Context, level, message string) {
	data := DebugPayload{Level: level, Message: message}
	s.send(ctx, Debug{Base: NewBase(EventDebug, s.sessionID, data), Data: data})
}

// AskUserOpen forwards a pending question.
func (s *Subscriber) AskUserOpen(ctx context.Context, askID, question string, hints map[string]any) {
	data := AskUserOpenPayload{AskID: askID, Question: question, Hints: hints}
	s.send(ctx, AskUserOpen{Base: NewBase(EventAskUserOpen, s.sessionID, data), Data: data})
}

// AskUserClose forwards a question's resolution.
func (s *Subscriber) AskUserClose(ctx context.Context, askID string, accepted bool) {
	data := AskUserClosePayload{AskID: askID, Accepted: accepted}
	s.send(ctx, AskUserClose{Base: NewBase(EventAskUserClose, s.sessionID, data), Data: data})
}

// FinalAnswer forwards the orchestrator's terminal answer.
func (s *Subscriber) FinalAnswer(ctx context.Context, answer, summary string) {
	data := FinalAnswerPayload{Answer: answer, Summary: summary}
	s.send(ctx, FinalAnswer{Base: NewBase(EventFinalAnswer, s.sessionID, data), Data: data})
}

// Error forwards a terminal or recoverable error.
func (s *Subscriber) Error(ctx context.Context, code, message string) {
	data := ErrorPayload{Code: code, Message: message}
	s.send(ctx, Error{Base: NewBase(EventError, s.sessionID, data), Data: data})
}
