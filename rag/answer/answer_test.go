package answer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorkit/tutorkit/provider"
	"github.com/tutorkit/tutorkit/rag"
	"github.com/tutorkit/tutorkit/rag/index"
)

// scriptedGenerator returns a fixed response and records the last prompt.
type scriptedGenerator struct {
	response string
	err      error
	last     provider.Prompt
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt provider.Prompt) (string, error) {
	g.last = prompt
	return g.response, g.err
}

func (g *scriptedGenerator) Stream(_ context.Context, prompt provider.Prompt, fn provider.StreamFunc) (string, error) {
	g.last = prompt
	if g.err != nil {
		return "", g.err
	}
	if fn != nil {
		if err := fn(g.response); err != nil {
			return "", err
		}
	}
	return g.response, nil
}

func docIndex(t *testing.T, embedder provider.Embedder, texts ...string) *index.Index {
	t.Helper()
	ix := index.New(embedder.Identity())
	vectors, err := embedder.Embed(context.Background(), texts)
	require.NoError(t, err)
	for i, text := range texts {
		c := rag.Chunk{ID: string(rune('a' + i)), DocumentID: "doc", SequenceIndex: i, Text: text}
		require.NoError(t, ix.Insert(c, vectors[i]))
	}
	return ix
}

func TestAnswer_ChatMode(t *testing.T) {
	gen := &scriptedGenerator{response: "hello back"}
	a := New(gen)

	got, err := a.Answer(context.Background(), Request{Mode: ModeChat, Question: "hello"})
	require.NoError(t, err)

	assert.Equal(t, "hello back", got.Answer)
	assert.Zero(t, got.UsedChunks)
	assert.False(t, got.Degraded)

	require.NotEmpty(t, gen.last.Messages)
	assert.Equal(t, "hello", gen.last.Messages[len(gen.last.Messages)-1].Content)
	assert.Contains(t, gen.last.System, "study assistant")
}

func TestAnswer_DocumentMode(t *testing.T) {
	embedder := provider.NewMockBackend()
	ix := docIndex(t, embedder,
		"Photosynthesis converts light into chemical energy.",
		"Mitochondria produce ATP for the cell.",
	)

	gen := &scriptedGenerator{response: "plants use light"}
	a := New(gen, WithTopK(2))

	got, err := a.Answer(context.Background(), Request{
		Mode:     ModeDocument,
		Question: "how do plants make energy?",
		Index:    ix,
		Embedder: embedder,
	})
	require.NoError(t, err)

	assert.Equal(t, "plants use light", got.Answer)
	assert.Equal(t, 2, got.UsedChunks)

	userMsg := gen.last.Messages[len(gen.last.Messages)-1].Content
	assert.Contains(t, userMsg, "Photosynthesis converts light")
	assert.Contains(t, userMsg, "how do plants make energy?")
}

func TestAnswer_RetrievalRanksVerbatimMatchFirst(t *testing.T) {
	embedder := provider.NewMockBackend()
	target := "Chlorophyll absorbs red and blue light while reflecting green."
	ix := docIndex(t, embedder,
		"The water cycle moves moisture between oceans and clouds.",
		"Tectonic plates drift a few centimeters every year.",
		target,
		"Sound needs a medium and cannot travel through a vacuum.",
	)

	gen := &scriptedGenerator{response: "it reflects green light"}
	a := New(gen, WithTopK(2))

	// Asking with one chunk's exact text must surface that chunk ahead
	// of everything else, all the way from embedding through ranking to
	// the prompt.
	got, err := a.Answer(context.Background(), Request{
		Mode:     ModeDocument,
		Question: target,
		Index:    ix,
		Embedder: embedder,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, got.UsedChunks)

	userMsg := gen.last.Messages[len(gen.last.Messages)-1].Content
	_, after, found := strings.Cut(userMsg, "Context:\n")
	require.True(t, found)
	contextBlock, _, found := strings.Cut(after, "\n\nQuestion:")
	require.True(t, found)

	sections := strings.Split(contextBlock, "\n\n---\n\n")
	require.Len(t, sections, 2)
	assert.Equal(t, target, sections[0])
}

func TestAnswer_DocumentModeWithoutIndex(t *testing.T) {
	gen := &scriptedGenerator{response: "general knowledge answer"}
	a := New(gen)

	got, err := a.Answer(context.Background(), Request{
		Mode:     ModeDocument,
		Question: "what is gravity?",
	})
	require.NoError(t, err)

	assert.Zero(t, got.UsedChunks)
	userMsg := gen.last.Messages[len(gen.last.Messages)-1].Content
	assert.Contains(t, userMsg, "No document context is available")
}

func TestAnswer_EmbedderIdentityMismatch(t *testing.T) {
	embedder := provider.NewMockBackend()
	ix := docIndex(t, embedder, "some text here for the index")

	other := &provider.MockBackend{Dimension: 8}
	a := New(&scriptedGenerator{response: "x"})

	_, err := a.Answer(context.Background(), Request{
		Mode:     ModeDocument,
		Question: "anything",
		Index:    ix,
		Embedder: other,
	})
	assert.ErrorIs(t, err, rag.ErrEmbeddingBackendMismatch)
}

func TestAnswer_ExplainerParsesEnvelope(t *testing.T) {
	gen := &scriptedGenerator{
		response: `{"answer": "## Explanation\nGravity pulls things down.", "follow_up_questions": ["Why do astronauts float?", "What is mass?"]}`,
	}
	a := New(gen)

	got, err := a.Answer(context.Background(), Request{Mode: ModeExplainer, Question: "what is gravity?"})
	require.NoError(t, err)

	assert.Contains(t, got.Answer, "Gravity pulls things down.")
	assert.Equal(t, []string{"Why do astronauts float?", "What is mass?"}, got.FollowUps)
	assert.False(t, got.Degraded)
}

func TestAnswer_ExplainerFencedJSON(t *testing.T) {
	gen := &scriptedGenerator{
		response: "```json\n{\"answer\": \"simple answer\", \"follow_up_questions\": [\"q1\"]}\n```",
	}
	a := New(gen)

	got, err := a.Answer(context.Background(), Request{Mode: ModeExplainer, Question: "q"})
	require.NoError(t, err)

	assert.Equal(t, "simple answer", got.Answer)
	assert.Equal(t, []string{"q1"}, got.FollowUps)
}

func TestAnswer_ExplainerMarkdownFallback(t *testing.T) {
	raw := `## Explanation

Water evaporates when heated.

## Follow-Up Questions

- What is condensation?
- Where does rain come from?
`
	gen := &scriptedGenerator{response: raw}
	a := New(gen)

	got, err := a.Answer(context.Background(), Request{Mode: ModeExplainer, Question: "q"})
	require.NoError(t, err)

	assert.Equal(t, raw, got.Answer)
	assert.Equal(t, []string{"What is condensation?", "Where does rain come from?"}, got.FollowUps)
	assert.False(t, got.Degraded)
}

func TestAnswer_ExplainerDegradesGracefully(t *testing.T) {
	gen := &scriptedGenerator{response: `{"answer": truncated and broken json`}
	a := New(gen)

	got, err := a.Answer(context.Background(), Request{Mode: ModeExplainer, Question: "q"})
	require.NoError(t, err)

	// Unparseable output is replaced, never forwarded.
	assert.Equal(t, fallbackAnswer, got.Answer)
	assert.NotContains(t, got.Answer, "truncated")
	assert.Empty(t, got.FollowUps)
	assert.True(t, got.Degraded)
}

func TestAnswer_HistoryWindow(t *testing.T) {
	gen := &scriptedGenerator{response: "ok"}
	a := New(gen, WithHistoryWindow(4))

	history := make([]Turn, 10)
	for i := range history {
		role := provider.RoleUser
		if i%2 == 1 {
			role = provider.RoleAssistant
		}
		history[i] = Turn{Role: role, Content: strings.Repeat("x", i+1)}
	}

	_, err := a.Answer(context.Background(), Request{Mode: ModeChat, Question: "next", History: history})
	require.NoError(t, err)

	// 4 history turns plus the question itself.
	require.Len(t, gen.last.Messages, 5)
	assert.Equal(t, strings.Repeat("x", 7), gen.last.Messages[0].Content)
}

func TestAnswer_Streaming(t *testing.T) {
	gen := &scriptedGenerator{response: "streamed text"}
	a := New(gen)

	var streamed strings.Builder
	got, err := a.Answer(context.Background(), Request{
		Mode:     ModeChat,
		Question: "q",
		OnDelta:  func(chunk string) error { streamed.WriteString(chunk); return nil },
	})
	require.NoError(t, err)

	assert.Equal(t, "streamed text", got.Answer)
	assert.Equal(t, "streamed text", streamed.String())
}

func TestAnswer_GeneratorFailurePropagates(t *testing.T) {
	gen := &scriptedGenerator{err: provider.ErrBackendUnavailable}
	a := New(gen)

	_, err := a.Answer(context.Background(), Request{Mode: ModeChat, Question: "q"})
	assert.ErrorIs(t, err, provider.ErrBackendUnavailable)
}

func TestAnswer_InvalidInput(t *testing.T) {
	a := New(&scriptedGenerator{})

	_, err := a.Answer(context.Background(), Request{Mode: "essay", Question: "q"})
	assert.Error(t, err)

	_, err = a.Answer(context.Background(), Request{Mode: ModeChat, Question: "   "})
	assert.Error(t, err)
}

func TestParseEnvelope_JSONWithSurroundingProse(t *testing.T) {
	raw := `Here is the answer you asked for:
{"answer": "the water cycle", "follow_up_questions": ["  ", "What is dew?"]}
Hope that helps!`

	answer, followUps, err := parseEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, "the water cycle", answer)
	assert.Equal(t, []string{"What is dew?"}, followUps)
}

func TestParseEnvelope_EmptyAnswerFallsThrough(t *testing.T) {
	got, _, err := parseEnvelope(`{"answer": "", "follow_up_questions": []}`)
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
	assert.Equal(t, fallbackAnswer, got)
}

func TestParseEnvelope_SectionHeadingsWithoutFollowUps(t *testing.T) {
	raw := `## Explanation

Sound travels as vibrations through the air.

## Practice Activity

Tap a table and feel the vibration with your other hand.`

	answer, followUps, err := parseEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, answer)
	assert.Empty(t, followUps)
}
