package provider

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_OpenKnownProviders(t *testing.T) {
	r := NewRegistry()

	embedder, generator, err := r.Open("mock", Credential{})
	require.NoError(t, err)
	assert.NotNil(t, embedder)
	assert.NotNil(t, generator)

	embedder, generator, err = r.Open("openai", Credential{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "openai/text-embedding-3-small", embedder.Identity())
	assert.NotNil(t, generator)
}

func TestRegistry_UnknownProvider(t *testing.T) {
	r := NewRegistry()
	_, _, err := r.Open("watson", Credential{})
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestRegistry_OpenAIRequiresKey(t *testing.T) {
	r := NewRegistry()
	_, _, err := r.Open("openai", Credential{})
	assert.ErrorIs(t, err, ErrBackendRejected)

	_, _, err = r.Open("openai-langchain", Credential{})
	assert.ErrorIs(t, err, ErrBackendRejected)
}

func TestRegistry_CustomFactory(t *testing.T) {
	r := NewRegistry()
	r.Register("custom", func(Credential) (Embedder, Generator, error) {
		b := NewMockBackend()
		return b, b, nil
	})

	embedder, _, err := r.Open("custom", Credential{})
	require.NoError(t, err)
	assert.Equal(t, "mock/dim32", embedder.Identity())
}

func TestRegistry_Names(t *testing.T) {
	names := NewRegistry().Names()
	assert.Equal(t, []string{"mock", "ollama", "openai", "openai-langchain"}, names)
}

func TestMockBackend_DeterministicEmbeddings(t *testing.T) {
	b := NewMockBackend()
	ctx := context.Background()

	first, err := b.Embed(ctx, []string{"photosynthesis", "mitosis"})
	require.NoError(t, err)
	second, err := b.Embed(ctx, []string{"photosynthesis", "mitosis"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first[0], 32)
	assert.NotEqual(t, first[0], first[1])
}

func TestMockBackend_Generate(t *testing.T) {
	b := NewMockBackend()
	prompt := Prompt{
		System: "you are a tutor",
		Messages: []Message{
			{Role: RoleUser, Content: "what is osmosis?"},
			{Role: RoleAssistant, Content: "a diffusion process"},
			{Role: RoleUser, Content: "give an example"},
		},
	}

	got, err := b.Generate(context.Background(), prompt)
	require.NoError(t, err)
	assert.Equal(t, "mock answer: give an example", got)
}

func TestMockBackend_StreamDeliversFullText(t *testing.T) {
	b := NewMockBackend()
	prompt := Prompt{Messages: []Message{{Role: RoleUser, Content: "hello there"}}}

	var streamed strings.Builder
	full, err := b.Stream(context.Background(), prompt, func(chunk string) error {
		streamed.WriteString(chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, full, streamed.String())
}

func TestMockBackend_StreamAbort(t *testing.T) {
	b := NewMockBackend()
	prompt := Prompt{Messages: []Message{{Role: RoleUser, Content: "hello there"}}}

	abort := errors.New("stop")
	_, err := b.Stream(context.Background(), prompt, func(string) error { return abort })
	assert.ErrorIs(t, err, abort)
}

func TestMockBackend_FailWith(t *testing.T) {
	b := NewMockBackend()
	b.FailWith = ErrBackendUnavailable

	_, err := b.Embed(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	_, err = b.Generate(context.Background(), Prompt{})
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestMapBackendError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unauthorized", &openai.APIError{HTTPStatusCode: 401}, ErrBackendRejected},
		{"forbidden", &openai.APIError{HTTPStatusCode: 403}, ErrBackendRejected},
		{"bad request", &openai.APIError{HTTPStatusCode: 400}, ErrBackendRejected},
		{"rate limited", &openai.APIError{HTTPStatusCode: 429}, ErrBackendUnavailable},
		{"server error", &openai.APIError{HTTPStatusCode: 503}, ErrBackendUnavailable},
		{"deadline", context.DeadlineExceeded, ErrBackendUnavailable},
		{"canceled", context.Canceled, ErrBackendUnavailable},
		{"dns failure", &net.DNSError{Err: "no such host"}, ErrBackendUnavailable},
		{"unknown", errors.New("connection reset"), ErrBackendUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapBackendError(tt.err), tt.want)
		})
	}
}

func TestMapLangchainError(t *testing.T) {
	assert.ErrorIs(t, mapLangchainError(errors.New("API returned unexpected status code: 401")), ErrBackendRejected)
	assert.ErrorIs(t, mapLangchainError(errors.New("invalid api key provided")), ErrBackendRejected)
	assert.ErrorIs(t, mapLangchainError(errors.New("connection refused")), ErrBackendUnavailable)
	assert.ErrorIs(t, mapLangchainError(context.DeadlineExceeded), ErrBackendUnavailable)
}
