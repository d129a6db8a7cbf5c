package provider

import (
	"context"
	"fmt"
	"math"
	"strings"
)

const mockDimension = 32

// MockBackend is a deterministic offline backend for tests and demos.
// Embeddings derive from text content alone, so similar texts score
// alike across runs, and generation echoes the last user message.
type MockBackend struct {
	Dimension int
	// FailWith, when set, makes every call return this error.
	FailWith error
}

func newMock(Credential) (Embedder, Generator, error) {
	b := NewMockBackend()
	return b, b, nil
}

// NewMockBackend creates a MockBackend with the default dimension.
func NewMockBackend() *MockBackend {
	return &MockBackend{Dimension: mockDimension}
}

func (b *MockBackend) Identity() string {
	return fmt.Sprintf("mock/dim%d", b.Dimension)
}

func (b *MockBackend) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if b.FailWith != nil {
		return nil, b.FailWith
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = b.embedOne(text)
	}
	return vectors, nil
}

func (b *MockBackend) embedOne(text string) []float32 {
	vec := make([]float32, b.Dimension)
	for i := range vec {
		var sum float64
		for j, r := range strings.ToLower(text) {
			sum += float64(r) * float64(i+j+1)
		}
		vec[i] = float32(math.Sin(sum / 1000.0))
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}

func (b *MockBackend) Generate(_ context.Context, prompt Prompt) (string, error) {
	if b.FailWith != nil {
		return "", b.FailWith
	}
	return "mock answer: " + lastUserMessage(prompt), nil
}

func (b *MockBackend) Stream(ctx context.Context, prompt Prompt, fn StreamFunc) (string, error) {
	full, err := b.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	if fn != nil {
		for _, word := range strings.SplitAfter(full, " ") {
			if err := fn(word); err != nil {
				return "", err
			}
		}
	}
	return full, nil
}

func lastUserMessage(prompt Prompt) string {
	for i := len(prompt.Messages) - 1; i >= 0; i-- {
		if prompt.Messages[i].Role == RoleUser {
			return prompt.Messages[i].Content
		}
	}
	return ""
}
