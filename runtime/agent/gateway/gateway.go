// Package gateway sits in front of the Session Manager and applies the
// pre-router heuristic: trivial chit-chat queries are answered directly by a
// one-shot model completion, bypassing the PLAN/ACT/JUDGE loop entirely,
// while everything else (and any reply to a pending question, regardless of
// what it looks like) is handed to the Session Manager.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/Atomheart-Father/agentflow/runtime/agent/model"
	"github.com/Atomheart-Father/agentflow/runtime/agent/orchestrator"
	"github.com/Atomheart-Father/agentflow/runtime/agent/router"
	"github.com/Atomheart-Father/agentflow/runtime/agent/session"
)

// Response unifies the two possible outcomes of Handle: a chat-mode
// completion (Answer populated, Result the zero value) or an
// orchestrate-mode Session Manager result (Result populated).
type Response struct {
	Mode           router.Mode
	Answer         string
	Result         orchestrator.Result
	Classification session.Classification
}

// Gateway wires the pre-router heuristic, a one-shot chat completion client,
// and the Session Manager together.
type Gateway struct {
	Sessions *session.Manager
	Chat     model.Client

	// ChatModel selects the model identifier (or ModelClass, via
	// ChatModelClass) used for one-shot chat completions. At least one of
	// ChatModel or ChatModelClass should be set; an empty Request.Model and
	// Request.ModelClass leaves the choice entirely to Chat's defaults.
	ChatModel      string
	ChatModelClass model.ModelClass

	// ChatSystemPrompt, when non-empty, is sent as a system message ahead of
	// the user's query on every chat-mode completion.
	ChatSystemPrompt string
}

// New constructs a Gateway. chat may be nil if chat-mode routing is never
// expected to fire (e.g. in tests that only exercise orchestrate-mode
// messages); Handle returns an error if a chat-mode decision is reached with
// a nil Chat client.
func New(sessions *session.Manager, chat model.Client) *Gateway {
	return &Gateway{Sessions: sessions, Chat: chat}
}

// Handle routes message for sessionID. A reply to a pending question always
// goes to the Session Manager, regardless of the pre-router heuristic's
// verdict, since re-classifying an answer as chit-chat would strand the
// suspended task forever.
func (g *Gateway) Handle(ctx context.Context, sessionID, message, ackAskID string) (Response, error) {
	if ackAskID != "" || g.Sessions.HasPendingAsk(sessionID) {
		result, class, err := g.Sessions.Handle(ctx, sessionID, message, ackAskID)
		return Response{Mode: router.ModeOrchestrate, Result: result, Classification: class}, err
	}

	decision := router.Route(message)
	if decision.Mode == router.ModeChat {
		answer, err := g.completeChat(ctx, decision.Query)
		if err != nil {
			return Response{}, err
		}
		return Response{Mode: router.ModeChat, Answer: answer}, nil
	}

	result, class, err := g.Sessions.Handle(ctx, sessionID, decision.Query, ackAskID)
	return Response{Mode: router.ModeOrchestrate, Result: result, Classification: class}, err
}

func (g *Gateway) completeChat(ctx context.Context, query string) (string, error) {
	if g.Chat == nil {
		return "", errors.New("gateway: chat-mode route reached but no chat model client is configured")
	}
	messages := []*model.Message{}
	if g.ChatSystemPrompt != "" {
		messages = append(messages, &model.Message{
			Role:  model.ConversationRoleSystem,
			Parts: []model.Part{model.TextPart{Text: g.ChatSystemPrompt}},
		})
	}
	messages = append(messages, &model.Message{
		Role:  model.ConversationRoleUser,
		Parts: []model.Part{model.TextPart{Text: query}},
	})

	resp, err := g.Chat.Complete(ctx, &model.Request{
		Model:      g.ChatModel,
		ModelClass: g.ChatModelClass,
		Messages:   messages,
		MaxTokens:  1024,
	})
	if err != nil {
		return "", fmt.Errorf("gateway: chat completion: %w", err)
	}
	return firstText(resp), nil
}

func firstText(resp *model.Response) string {
	if resp == nil {
		return ""
	}
	for _, msg := range resp.Content {
		for _, part := range msg.Parts {
			if t, ok := part.(model.TextPart); ok && t.Text != "" {
				return t.Text
			}
		}
	}
	return ""
}
