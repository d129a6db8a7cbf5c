package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultOpenAIModel     = openai.GPT4oMini
	defaultEmbeddingModel  = "text-embedding-3-small"
	openAIIdentityTemplate = "openai/%s"
)

// openAIBackend talks to the OpenAI API (or any API-compatible server
// reachable through Credential.BaseURL) for both embeddings and chat.
type openAIBackend struct {
	client         *openai.Client
	model          string
	embeddingModel string
}

func newOpenAI(cred Credential) (Embedder, Generator, error) {
	if cred.APIKey == "" {
		return nil, nil, fmt.Errorf("%w: missing api key", ErrBackendRejected)
	}

	cfg := openai.DefaultConfig(cred.APIKey)
	if cred.BaseURL != "" {
		cfg.BaseURL = cred.BaseURL
	}

	b := &openAIBackend{
		client:         openai.NewClientWithConfig(cfg),
		model:          cred.Model,
		embeddingModel: cred.EmbeddingModel,
	}
	if b.model == "" {
		b.model = defaultOpenAIModel
	}
	if b.embeddingModel == "" {
		b.embeddingModel = defaultEmbeddingModel
	}
	return b, b, nil
}

func (b *openAIBackend) Identity() string {
	return fmt.Sprintf(openAIIdentityTemplate, b.embeddingModel)
}

func (b *openAIBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := b.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(b.embeddingModel),
	})
	if err != nil {
		return nil, mapBackendError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrBackendUnavailable, len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

func (b *openAIBackend) Generate(ctx context.Context, prompt Prompt) (string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    b.model,
		Messages: toOpenAIMessages(prompt),
	})
	if err != nil {
		return "", mapBackendError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrBackendUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}

func (b *openAIBackend) Stream(ctx context.Context, prompt Prompt, fn StreamFunc) (string, error) {
	stream, err := b.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    b.model,
		Messages: toOpenAIMessages(prompt),
	})
	if err != nil {
		return "", mapBackendError(err)
	}
	defer stream.Close()

	var full []byte
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", mapBackendError(err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		chunk := resp.Choices[0].Delta.Content
		if chunk == "" {
			continue
		}
		full = append(full, chunk...)
		if fn != nil {
			if err := fn(chunk); err != nil {
				return "", err
			}
		}
	}
	return string(full), nil
}

func toOpenAIMessages(prompt Prompt) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(prompt.Messages)+1)
	if prompt.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: prompt.System,
		})
	}
	for _, m := range prompt.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return msgs
}

// mapBackendError folds transport and API failures into the two backend
// sentinels. Auth and other client-side rejections are permanent; rate
// limits, timeouts and server errors are transient.
func mapBackendError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403:
			return fmt.Errorf("%w: %v", ErrBackendRejected, err)
		case apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500:
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		default:
			return fmt.Errorf("%w: %v", ErrBackendRejected, err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	// Anything else at this point is a transport-level failure.
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}
