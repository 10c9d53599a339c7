// Package stream delivers real-time orchestration updates to clients over a
// transport (SSE, WebSocket, gRPC). The Orchestrator calls an EventSink
// directly as it runs — there is no internal hook bus to bridge from, so a
// Subscriber emits stream.Event values straight onto a Sink.
//
// All event types implement the Event interface and can be sent concurrently
// through a Sink implementation. Implementations are responsible for
// marshaling events into their wire format.
package stream

import (
	"context"
)

type (
	// Sink delivers streaming updates to clients over a transport. Implementations
	// must be thread-safe: the runtime may call Send concurrently when multiple
	// sessions are in flight.
	Sink interface {
		// Send publishes an event to the sink's underlying transport. Send should
		// return an error if delivery fails (connection closed, serialization
		// error, transport unavailable).
		Send(ctx context.Context, event Event) error

		// Close releases resources owned by the sink (connections, buffers,
		// background goroutines). Idempotent.
		Close(ctx context.Context) error
	}

	// Event describes a streaming event delivered to clients through a Sink.
	// All concrete event types embed Base to provide standard metadata.
	Event interface {
		// Type returns the event type constant.
		Type() EventType
		// SessionID returns the session the event belongs to.
		SessionID() string
		// Payload returns the event-specific data in JSON-serializable form.
		Payload() any
	}

	// Base carries the metadata common to every event.
	Base struct {
		t EventType
		s string
		p any
	}

	// AssistantContent streams incremental assistant text as the orchestrator
	// produces the final answer. Clients concatenate Data.Delta across
	// sequential events to reconstruct the full message.
	AssistantContent struct {
		Base
		Data AssistantContentPayload
	}

	// AssistantContentPayload is the wire payload for AssistantContent.
	AssistantContentPayload struct {
		Delta string `json:"delta"`
	}

	// Status streams a short human-facing status line ("planning",
	// "executing", ...) for display in a status bar.
	Status struct {
		Base
		Data StatusPayload
	}

	// StatusPayload is the wire payload for Status.
	StatusPayload struct {
		Message string `json:"message"`
	}

	// ToolTrace streams a tool invocation and its result for display in a
	// tool panel.
	ToolTrace struct {
		Base
		Data ToolTracePayload
	}

	// ToolTracePayload is the wire payload for ToolTrace.
	ToolTracePayload struct {
		Tool   string `json:"tool"`
		Action string `json:"action"`
		Result any    `json:"result"`
	}

	// Debug streams an internal diagnostic line for a debug panel. Not
	// intended for end-user display.
	Debug struct {
		Base
		Data DebugPayload
	}

	// DebugPayload is the wire payload for Debug.
	DebugPayload struct {
		Level   string `json:"level"`
		Message string `json:"message"`
	}

	// AskUserOpen streams an open question to the client. Clients render a
	// question card and block further assistant content for this session
	// until the user answers; this event terminates the current slice.
	AskUserOpen struct {
		Base
		Data AskUserOpenPayload
	}

	// AskUserOpenPayload is the wire payload for AskUserOpen.
	AskUserOpenPayload struct {
		AskID    string         `json:"ask_id"`
		Question string         `json:"question"`
		Hints    map[string]any `json:"hints,omitempty"`
	}

	// AskUserClose streams the resolution of a previously-opened question.
	AskUserClose struct {
		Base
		Data AskUserClosePayload
	}

	// AskUserClosePayload is the wire payload for AskUserClose.
	AskUserClosePayload struct {
		AskID    string `json:"ask_id"`
		Accepted bool   `json:"accepted"`
	}

	// FinalAnswer streams the orchestrator's terminal answer for the
	// session's active task.
	FinalAnswer struct {
		Base
		Data FinalAnswerPayload
	}

	// FinalAnswerPayload is the wire payload for FinalAnswer.
	FinalAnswerPayload struct {
		Answer  string `json:"answer"`
		Summary string `json:"summary,omitempty"`
	}

	// Error streams a terminal or recoverable error for client display.
	Error struct {
		Base
		Data ErrorPayload
	}

	// ErrorPayload is the wire payload for Error.
	ErrorPayload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
)

// EventType enumerates the eight stream payload flavors.
type EventType string

const (
	EventAssistantContent EventType = "assistant_content"
	EventStatus           EventType = "status"
	EventToolTrace        EventType = "tool_trace"
	EventDebug            EventType = "debug"
	EventAskUserOpen      EventType = "ask_user_open"
	EventAskUserClose     EventType = "ask_user_close"
	EventFinalAnswer      EventType = "final_answer"
	EventError            EventType = "error"
)

// NewBase constructs a Base event with the given type, session ID, and
// JSON-serializable payload.
func NewBase(t EventType, sessionID string, payload any) Base {
	return Base{t: t, s: sessionID, p: payload}
}

// Type implements Event.Type.
func (e Base) Type() EventType { return e.t }

// SessionID implements Event.SessionID.
func (e Base) SessionID() string { return e.s }

// Payload implements Event.Payload.
func (e Base) Payload() any { return e.p }
