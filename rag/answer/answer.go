// Package answer generates responses to student questions. It supports
// three modes: free chat, document-grounded answering over retrieved
// chunks, and a guided explainer that returns a structured lesson with
// follow-up questions.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/tutorkit/tutorkit/log"
	"github.com/tutorkit/tutorkit/provider"
	"github.com/tutorkit/tutorkit/rag"
	"github.com/tutorkit/tutorkit/rag/index"
)

// Mode selects the answering behavior.
type Mode string

const (
	// ModeChat answers without document context.
	ModeChat Mode = "chat"
	// ModeDocument grounds the answer in retrieved document chunks.
	ModeDocument Mode = "document"
	// ModeExplainer produces a structured lesson with follow-up
	// questions, grounded in document chunks when available.
	ModeExplainer Mode = "explainer"
)

// Valid reports whether m names a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeChat, ModeDocument, ModeExplainer:
		return true
	}
	return false
}

const chatSystemPrompt = `You are a helpful and encouraging study assistant for middle school students.
Explain ideas clearly at an age-appropriate level and keep answers concise.`

const documentSystemPrompt = `You are a helpful assistant that answers questions based on provided context.`

const explainerSystemPrompt = `You are an educational study companion for middle school students.
Your role is to help students understand topics from their class materials in a clear, friendly, and encouraging way.

When answering, always structure the answer in three sections:
1. **Explanation**: a simple, clear explanation based on the provided context, using age-appropriate language.
2. **Real-Life Example**: show how the idea connects to something in the student's everyday life.
3. **Practice Activity**: create a short, fun challenge that helps the student practice.

Respond with a single JSON object of this exact shape and nothing else:
{"answer": "<the three sections as markdown>", "follow_up_questions": ["<question 1>", "<question 2>", "<question 3>"]}`

// Turn is one prior message of the conversation.
type Turn struct {
	Role    provider.Role
	Content string
}

// Request describes one question to answer. Index and Embedder are nil
// for pure chat; when set, the question is embedded and the top matching
// chunks become the prompt context.
type Request struct {
	Mode     Mode
	Question string
	History  []Turn
	Index    *index.Index
	Embedder provider.Embedder
	// OnDelta, when set, receives incremental output. Explainer
	// responses are parsed whole and are not streamed.
	OnDelta provider.StreamFunc
}

// Result is one generated answer.
type Result struct {
	Answer    string
	FollowUps []string
	// UsedChunks counts the retrieved chunks that backed the answer.
	UsedChunks int
	// Degraded is true when structured output parsing fell back to the
	// raw model text.
	Degraded bool
}

// Answerer generates answers through a provider backend.
type Answerer struct {
	generator     provider.Generator
	topK          int
	historyWindow int
	logger        log.Logger
}

// Option configures an Answerer.
type Option func(*Answerer)

// WithTopK sets how many chunks are retrieved per question.
func WithTopK(k int) Option {
	return func(a *Answerer) {
		if k > 0 {
			a.topK = k
		}
	}
}

// WithHistoryWindow caps how many prior turns enter the prompt.
func WithHistoryWindow(n int) Option {
	return func(a *Answerer) {
		if n > 0 {
			a.historyWindow = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(a *Answerer) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Answerer backed by the given generator.
func New(gen provider.Generator, opts ...Option) *Answerer {
	a := &Answerer{
		generator:     gen,
		topK:          4,
		historyWindow: 20,
		logger:        log.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Answer generates a response for one question.
func (a *Answerer) Answer(ctx context.Context, req Request) (*Result, error) {
	if !req.Mode.Valid() {
		return nil, fmt.Errorf("unknown answer mode %q", req.Mode)
	}
	if strings.TrimSpace(req.Question) == "" {
		return nil, fmt.Errorf("empty question")
	}

	contextBlock, used, err := a.retrieve(ctx, req)
	if err != nil {
		return nil, err
	}

	prompt := a.buildPrompt(req, contextBlock)

	switch req.Mode {
	case ModeExplainer:
		return a.answerExplainer(ctx, prompt, used)
	default:
		return a.answerPlain(ctx, prompt, req.OnDelta, used)
	}
}

func (a *Answerer) answerPlain(ctx context.Context, prompt provider.Prompt, onDelta provider.StreamFunc, used int) (*Result, error) {
	var (
		text string
		err  error
	)
	if onDelta != nil {
		text, err = a.generator.Stream(ctx, prompt, onDelta)
	} else {
		text, err = a.generator.Generate(ctx, prompt)
	}
	if err != nil {
		return nil, err
	}
	return &Result{Answer: text, UsedChunks: used}, nil
}

func (a *Answerer) answerExplainer(ctx context.Context, prompt provider.Prompt, used int) (*Result, error) {
	raw, err := a.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	text, followUps, parseErr := parseEnvelope(raw)
	if parseErr != nil {
		a.logger.Warn("explainer output was not structured, using raw text")
	}
	return &Result{
		Answer:     text,
		FollowUps:  followUps,
		UsedChunks: used,
		Degraded:   parseErr != nil,
	}, nil
}

// retrieve embeds the question and collects the matching chunks. Chat
// mode and requests without an index skip retrieval entirely.
func (a *Answerer) retrieve(ctx context.Context, req Request) (string, int, error) {
	if req.Mode == ModeChat || req.Index == nil || req.Index.Len() == 0 {
		return "", 0, nil
	}
	if req.Embedder == nil {
		return "", 0, fmt.Errorf("document retrieval requires an embedder")
	}
	if req.Embedder.Identity() != req.Index.Identity() {
		return "", 0, fmt.Errorf("%w: index %q, embedder %q",
			rag.ErrEmbeddingBackendMismatch, req.Index.Identity(), req.Embedder.Identity())
	}

	vectors, err := req.Embedder.Embed(ctx, []string{req.Question})
	if err != nil {
		return "", 0, err
	}
	scored, err := req.Index.Search(vectors[0], a.topK)
	if err != nil {
		return "", 0, err
	}

	parts := make([]string, len(scored))
	for i, sc := range scored {
		parts[i] = sc.Chunk.Text
	}
	a.logger.Debug("retrieved %d chunks for question", len(scored))
	return strings.Join(parts, "\n\n---\n\n"), len(scored), nil
}

func (a *Answerer) buildPrompt(req Request, contextBlock string) provider.Prompt {
	history := req.History
	if len(history) > a.historyWindow {
		history = history[len(history)-a.historyWindow:]
	}

	msgs := make([]provider.Message, 0, len(history)+1)
	for _, turn := range history {
		msgs = append(msgs, provider.Message{Role: turn.Role, Content: turn.Content})
	}

	switch req.Mode {
	case ModeChat:
		msgs = append(msgs, provider.Message{Role: provider.RoleUser, Content: req.Question})
		return provider.Prompt{System: chatSystemPrompt, Messages: msgs}

	case ModeExplainer:
		msgs = append(msgs, provider.Message{Role: provider.RoleUser, Content: explainerUserPrompt(req.Question, contextBlock)})
		return provider.Prompt{System: explainerSystemPrompt, Messages: msgs}

	default:
		msgs = append(msgs, provider.Message{Role: provider.RoleUser, Content: documentUserPrompt(req.Question, contextBlock)})
		return provider.Prompt{System: documentSystemPrompt, Messages: msgs}
	}
}

func documentUserPrompt(question, contextBlock string) string {
	if contextBlock == "" {
		return fmt.Sprintf(`No document context is available for this question. Answer from general knowledge and mention that the uploaded material did not cover it.

Question:
%s`, question)
	}
	return fmt.Sprintf(`Based on the following context from the uploaded documents, please answer the user's question. If the context doesn't contain enough information to answer the question, please say so.

Context:
%s

Question:
%s`, contextBlock, question)
}

func explainerUserPrompt(question, contextBlock string) string {
	if contextBlock == "" {
		contextBlock = "(no study material uploaded)"
	}
	return fmt.Sprintf(`Student Question:
%s

Context:
%s`, question, contextBlock)
}
