package engine

import (
	"context"
	"fmt"

	"github.com/tutorkit/tutorkit/provider"
	"github.com/tutorkit/tutorkit/rag/answer"
	"github.com/tutorkit/tutorkit/session"
)

// AskRequest is one question against a session.
type AskRequest struct {
	SessionID string
	// ConversationID selects an existing conversation; empty starts a
	// new one.
	ConversationID string
	// Mode applies only when a new conversation is started. An existing
	// conversation keeps the mode it was created with.
	Mode     answer.Mode
	Question string
	// Provider and Credential select a caller-supplied backend for this
	// question. Turns asked on the caller's own credential do not
	// consume the free quota.
	Provider   string
	Credential *provider.Credential
	// OnDelta receives incremental output for the streaming modes.
	OnDelta provider.StreamFunc
}

// AskResult is one generated answer with its bookkeeping.
type AskResult struct {
	ConversationID string
	Mode           answer.Mode
	Answer         string
	FollowUps      []string
	UsedChunks     int
	// RemainingTurns is the free quota left after this turn, or
	// session.Unlimited.
	RemainingTurns int
	Degraded       bool
}

// Ask answers one question. The free turn is reserved before generation
// and is not refunded if generation fails; a failed turn also leaves no
// trace in the conversation history. A conversation opened for a turn
// that fails before any message lands is discarded again, so rejected
// asks do not pile up empty conversations.
func (e *Engine) Ask(ctx context.Context, req AskRequest) (*AskResult, error) {
	mode := req.Mode
	if mode == "" {
		mode = answer.ModeChat
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown answer mode %q", mode)
	}

	conv, created, err := e.sessions.OpenConversation(req.SessionID, req.ConversationID, string(mode))
	if err != nil {
		return nil, err
	}
	if conv.Mode != "" {
		mode = answer.Mode(conv.Mode)
	}
	discard := func() {
		if created {
			if derr := e.sessions.DeleteConversation(req.SessionID, conv.ID); derr != nil {
				e.logger.Warn("could not discard empty conversation %s: %v", conv.ID, derr)
			}
		}
	}

	embedder, generator, hasOwnCredential, err := e.resolveBackend(req)
	if err != nil {
		discard()
		return nil, err
	}

	remaining, err := e.sessions.CheckAndReserveTurn(req.SessionID, hasOwnCredential)
	if err != nil {
		discard()
		return nil, err
	}

	history, err := historyTurns(conv.Messages)
	if err != nil {
		discard()
		return nil, err
	}

	answerer := answer.New(generator,
		answer.WithTopK(e.cfg.Retrieval.TopK),
		answer.WithHistoryWindow(e.cfg.Retrieval.HistoryWindow),
		answer.WithLogger(e.logger),
	)

	answerReq := answer.Request{
		Mode:     mode,
		Question: req.Question,
		History:  history,
		Embedder: embedder,
		OnDelta:  req.OnDelta,
	}
	if c := e.getCorpus(req.SessionID); c != nil {
		answerReq.Index = c.index
	}

	genCtx, cancel := context.WithTimeout(ctx, e.cfg.Retrieval.GenerateTimeout())
	defer cancel()

	result, err := answerer.Answer(genCtx, answerReq)
	if err != nil {
		discard()
		return nil, err
	}

	if _, err := e.sessions.AppendMessage(req.SessionID, conv.ID, "user", req.Question); err != nil {
		return nil, err
	}
	if _, err := e.sessions.AppendMessage(req.SessionID, conv.ID, "assistant", result.Answer); err != nil {
		return nil, err
	}

	return &AskResult{
		ConversationID: conv.ID,
		Mode:           mode,
		Answer:         result.Answer,
		FollowUps:      result.FollowUps,
		UsedChunks:     result.UsedChunks,
		RemainingTurns: remaining,
		Degraded:       result.Degraded,
	}, nil
}

// resolveBackend picks the backend pair for one question: the caller's
// own provider when a credential is supplied, the engine default
// otherwise.
func (e *Engine) resolveBackend(req AskRequest) (provider.Embedder, provider.Generator, bool, error) {
	if req.Credential == nil {
		return e.embedder, e.generator, false, nil
	}

	name := req.Provider
	if name == "" {
		name = "openai"
	}
	embedder, generator, err := e.registry.Open(name, *req.Credential)
	if err != nil {
		return nil, nil, false, err
	}
	return embedder, generator, true, nil
}

func historyTurns(messages []session.Message) ([]answer.Turn, error) {
	turns := make([]answer.Turn, 0, len(messages))
	for _, m := range messages {
		var role provider.Role
		switch m.Role {
		case "user":
			role = provider.RoleUser
		case "assistant":
			role = provider.RoleAssistant
		default:
			return nil, fmt.Errorf("unexpected message role %q in history", m.Role)
		}
		turns = append(turns, answer.Turn{Role: role, Content: m.Content})
	}
	return turns, nil
}
