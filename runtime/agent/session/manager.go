package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Atomheart-Father/agentflow/runtime/agent/execstate"
	"github.com/Atomheart-Father/agentflow/runtime/agent/orchestrator"
	"github.com/Atomheart-Father/agentflow/runtime/agent/telemetryrecord"
)

// ActiveTaskExpiry is how long an ActiveTask may sit idle (e.g. waiting on
// an unanswered question) before a new message starts a fresh task instead
// of continuing it.
const ActiveTaskExpiry = time.Hour

// SessionExpiry is how long an entire ActiveSession may sit idle before it
// is considered gone for classification purposes.
const SessionExpiry = 24 * time.Hour

// newTaskKeywords, matched case-insensitively against a trimmed message,
// signal the caller wants to abandon whatever task is in flight and start
// over, discarding any pending question.
var newTaskKeywords = []string{
	"new question", "new task", "reset", "start over", "clear",
}

var (
	// ErrSessionBusy is returned when a message arrives for a session that
	// already has a slice in flight.
	ErrSessionBusy = errors.New("session: a message for this session is already being processed")
	// ErrAskIDMismatch is returned when the caller echoes back an ask_id
	// that does not match the session's pending question.
	ErrAskIDMismatch = errors.New("session: ask_id does not match the pending question")
)

// Classification names the §4.7 routing decision the Manager made for a
// message, exposed mainly for logging/telemetry.
type Classification string

const (
	ClassificationAnswer       Classification = "answer"
	ClassificationNewTask      Classification = "new_task"
	ClassificationContinuation Classification = "continuation"
)

// ActiveSession is the live, in-process counterpart to the durable Session
// record: it owns at most one orchestrator.ActiveTask at a time and a busy
// flag that serializes messages for this session id.
type ActiveSession struct {
	ID           string
	Task         *orchestrator.ActiveTask
	CreatedAt    time.Time
	LastActivity time.Time
	busy         bool
}

func newActiveSession(id string) *ActiveSession {
	now := time.Now()
	return &ActiveSession{ID: id, CreatedAt: now, LastActivity: now}
}

func (s *ActiveSession) expired() bool {
	return time.Since(s.LastActivity) > SessionExpiry
}

func (s *ActiveSession) hasLiveTask() bool {
	return s.Task != nil && !s.Task.Expired(ActiveTaskExpiry)
}

// Manager classifies incoming messages per §4.7 and dispatches them to the
// Orchestrator, serializing per session id and enforcing the ask_id
// invariant on resume.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*ActiveSession
	orch     *orchestrator.Orchestrator

	// OnAskUserIgnored, when set, is called when a new-task message
	// discards a still-pending question (the ASK_USER_IGNORED telemetry
	// event the spec names).
	OnAskUserIgnored func(sessionID, askID string)

	// Telemetry, when set, receives one Record per classification decision
	// that the spec's event enum names (ASK_USER_OPEN, ASK_USER_RESUME,
	// ASK_USER_IGNORED, SESSION_MISMATCH). Nil means no telemetry is
	// recorded, matching the zero-value Manager built by a bare struct
	// literal in tests.
	Telemetry telemetryrecord.Sink

	// Model is stamped onto every emitted Record's Model field. It names
	// the orchestration model, not any one-shot chat model a caller in
	// front of the Manager might use.
	Model string
}

// NewManager constructs a Manager dispatching to orch.
func NewManager(orch *orchestrator.Orchestrator) *Manager {
	return &Manager{
		sessions: make(map[string]*ActiveSession),
		orch:     orch,
	}
}

// Handle classifies message for sessionID and runs it against the
// Orchestrator. ackAskID, when non-empty, must match the session's pending
// question id; a mismatch returns ErrAskIDMismatch without mutating state.
func (m *Manager) Handle(ctx context.Context, sessionID, message, ackAskID string) (orchestrator.Result, Classification, error) {
	requestID := uuid.NewString()

	sess, err := m.acquire(sessionID)
	if err != nil {
		return orchestrator.Result{}, "", err
	}
	defer m.release(sessionID)

	sess.LastActivity = time.Now()
	isNewTaskMsg := isNewTaskRequest(message)
	pending, hasPending := pendingAsk(sess)

	// A non-empty ackAskID must match a question this session currently has
	// open. That holds whether the id is simply wrong, or is stale — a
	// question already resolved by an earlier Resume, whose re-delivery
	// (duplicate request, retried client) would otherwise fall through to
	// the continuation branch below and silently re-run the task instead of
	// being rejected as a session mismatch.
	if ackAskID != "" && !isNewTaskMsg {
		if !hasPending || ackAskID != pending.AskID {
			m.record(ctx, sessionID, requestID, telemetryrecord.StageAskUser, telemetryrecord.EventSessionMismatch, map[string]any{
				"expected_ask_id": pending.AskID,
				"received_ask_id": ackAskID,
			})
			return orchestrator.Result{}, "", ErrAskIDMismatch
		}
	}

	if hasPending && !isNewTaskMsg {
		result := m.orch.Resume(ctx, sess.Task, message)
		m.record(ctx, sessionID, requestID, telemetryrecord.StageAskUser, telemetryrecord.EventAskUserResume, map[string]any{"ask_id": pending.AskID})
		m.recordAskUserOpenIfWaiting(ctx, sessionID, requestID, result)
		return result, ClassificationAnswer, nil
	}

	if !sess.hasLiveTask() {
		sess.Task = orchestrator.NewActiveTask()
		result := m.orch.Run(ctx, message, sess.Task)
		m.recordAskUserOpenIfWaiting(ctx, sessionID, requestID, result)
		return result, ClassificationNewTask, nil
	}

	if isNewTaskMsg {
		if pending, ok := pendingAsk(sess); ok {
			if m.OnAskUserIgnored != nil {
				m.OnAskUserIgnored(sessionID, pending.AskID)
			}
			m.record(ctx, sessionID, requestID, telemetryrecord.StageAskUser, telemetryrecord.EventAskUserIgnored, map[string]any{"ask_id": pending.AskID})
		}
		sess.Task = orchestrator.NewActiveTask()
		result := m.orch.Run(ctx, message, sess.Task)
		m.recordAskUserOpenIfWaiting(ctx, sessionID, requestID, result)
		return result, ClassificationNewTask, nil
	}

	result := m.orch.Run(ctx, message, sess.Task)
	m.recordAskUserOpenIfWaiting(ctx, sessionID, requestID, result)
	return result, ClassificationContinuation, nil
}

func (m *Manager) recordAskUserOpenIfWaiting(ctx context.Context, sessionID, requestID string, result orchestrator.Result) {
	if result.Status != orchestrator.StatusWaitingForUser {
		return
	}
	m.record(ctx, sessionID, requestID, telemetryrecord.StageAskUser, telemetryrecord.EventAskUserOpen, map[string]any{
		"ask_id":    result.AskID,
		"questions": result.Questions,
	})
}

func (m *Manager) record(ctx context.Context, sessionID, requestID string, stage telemetryrecord.Stage, event telemetryrecord.Event, fields map[string]any) {
	if m.Telemetry == nil {
		return
	}
	_ = m.Telemetry.Record(ctx, telemetryrecord.Record{
		Timestamp: time.Now(),
		RequestID: requestID,
		SessionID: sessionID,
		Stage:     stage,
		Event:     event,
		Context:   fields,
		Model:     m.Model,
	})
}

// HasPendingAsk reports whether sessionID currently has an unanswered
// question outstanding. Callers in front of the Manager (gateway.Gateway) use
// this to decide whether an incoming message must be treated as an answer
// regardless of what the pre-router heuristic would otherwise pick.
func (m *Manager) HasPendingAsk(sessionID string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	_, pending := pendingAsk(sess)
	return pending
}

func (m *Manager) acquire(sessionID string) (*ActiveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok || sess.expired() {
		sess = newActiveSession(sessionID)
		m.sessions[sessionID] = sess
	}
	if sess.busy {
		return nil, ErrSessionBusy
	}
	sess.busy = true
	return sess, nil
}

func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[sessionID]; ok {
		sess.busy = false
	}
}

func pendingAsk(sess *ActiveSession) (execstate.AskUserPending, bool) {
	if sess.Task == nil {
		return execstate.AskUserPending{}, false
	}
	return sess.Task.State.PendingAsk()
}

func isNewTaskRequest(message string) bool {
	lower := strings.ToLower(strings.TrimSpace(message))
	for _, kw := range newTaskKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
