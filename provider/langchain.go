package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

const defaultOllamaModel = "llama3"

// langchainBackend wraps any langchaingo model so the same adapter
// serves both the OpenAI and Ollama providers.
type langchainBackend struct {
	model    llms.Model
	embedder *embeddings.EmbedderImpl
	identity string
}

func newLangchainOpenAI(cred Credential) (Embedder, Generator, error) {
	if cred.APIKey == "" {
		return nil, nil, fmt.Errorf("%w: missing api key", ErrBackendRejected)
	}

	opts := []openai.Option{openai.WithToken(cred.APIKey)}
	model := cred.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	opts = append(opts, openai.WithModel(model))
	embeddingModel := cred.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = defaultEmbeddingModel
	}
	opts = append(opts, openai.WithEmbeddingModel(embeddingModel))
	if cred.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cred.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	b := &langchainBackend{
		model:    llm,
		embedder: embedder,
		identity: fmt.Sprintf(openAIIdentityTemplate, embeddingModel),
	}
	return b, b, nil
}

func newOllama(cred Credential) (Embedder, Generator, error) {
	model := cred.Model
	if model == "" {
		model = defaultOllamaModel
	}
	opts := []ollama.Option{ollama.WithModel(model)}
	if cred.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cred.BaseURL))
	}

	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	b := &langchainBackend{
		model:    llm,
		embedder: embedder,
		identity: fmt.Sprintf("ollama/%s", model),
	}
	return b, b, nil
}

func (b *langchainBackend) Identity() string {
	return b.identity
}

func (b *langchainBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := b.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, mapLangchainError(err)
	}
	return vectors, nil
}

func (b *langchainBackend) Generate(ctx context.Context, prompt Prompt) (string, error) {
	resp, err := b.model.GenerateContent(ctx, toLangchainMessages(prompt))
	if err != nil {
		return "", mapLangchainError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrBackendUnavailable)
	}
	return resp.Choices[0].Content, nil
}

func (b *langchainBackend) Stream(ctx context.Context, prompt Prompt, fn StreamFunc) (string, error) {
	var full strings.Builder
	streaming := func(_ context.Context, chunk []byte) error {
		full.Write(chunk)
		if fn != nil {
			return fn(string(chunk))
		}
		return nil
	}

	resp, err := b.model.GenerateContent(ctx, toLangchainMessages(prompt), llms.WithStreamingFunc(streaming))
	if err != nil {
		return "", mapLangchainError(err)
	}
	if full.Len() > 0 {
		return full.String(), nil
	}
	// Some models ignore the streaming option; fall back to the final
	// choice content.
	if len(resp.Choices) > 0 {
		return resp.Choices[0].Content, nil
	}
	return "", fmt.Errorf("%w: empty completion", ErrBackendUnavailable)
}

func toLangchainMessages(prompt Prompt) []llms.MessageContent {
	msgs := make([]llms.MessageContent, 0, len(prompt.Messages)+1)
	if prompt.System != "" {
		msgs = append(msgs, llms.TextParts(schema.ChatMessageTypeSystem, prompt.System))
	}
	for _, m := range prompt.Messages {
		msgs = append(msgs, llms.TextParts(roleToMessageType(m.Role), m.Content))
	}
	return msgs
}

func roleToMessageType(role Role) schema.ChatMessageType {
	switch role {
	case RoleSystem:
		return schema.ChatMessageTypeSystem
	case RoleAssistant:
		return schema.ChatMessageTypeAI
	default:
		return schema.ChatMessageTypeHuman
	}
}

// mapLangchainError classifies langchaingo failures. The library wraps
// HTTP status codes into error strings, so classification is textual.
func mapLangchainError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "unauthorized") || strings.Contains(msg, "api key"):
		return fmt.Errorf("%w: %v", ErrBackendRejected, err)
	default:
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
}
