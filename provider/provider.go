// Package provider abstracts the embedding and generation backends. A
// registry maps provider names to factories so callers can bring their
// own credentials without the engine knowing which vendor serves them.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnsupportedProvider indicates the requested provider name has
	// no registered factory.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrBackendUnavailable indicates the backend could not be reached
	// or timed out. Retrying later may succeed.
	ErrBackendUnavailable = errors.New("model backend unavailable")

	// ErrBackendRejected indicates the backend refused the request, for
	// example on bad credentials. Retrying will not help.
	ErrBackendRejected = errors.New("model backend rejected the request")
)

// Role identifies who authored a prompt message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a prompt.
type Message struct {
	Role    Role
	Content string
}

// Prompt is the full input to one generation call.
type Prompt struct {
	System   string
	Messages []Message
}

// StreamFunc receives incremental output during streaming generation.
// Returning an error aborts the stream.
type StreamFunc func(chunk string) error

// Embedder turns texts into vectors. Identity names the backend and
// model pair; indexes built with one identity reject queries embedded
// with another.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Identity() string
}

// Generator produces model completions for prompts.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
	Stream(ctx context.Context, prompt Prompt, fn StreamFunc) (string, error)
}

// Credential carries caller-supplied backend access data. The engine
// passes it through opaquely and never logs the key.
type Credential struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
}

// Factory builds a backend pair from a credential.
type Factory func(cred Credential) (Embedder, Generator, error)

// Registry maps provider names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a registry with the built-in providers registered:
// "openai", "openai-langchain", "ollama" and "mock".
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("openai", newOpenAI)
	r.Register("openai-langchain", newLangchainOpenAI)
	r.Register("ollama", newOllama)
	r.Register("mock", newMock)
	return r
}

// Register adds or replaces a provider factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Open builds a backend pair for the named provider.
func (r *Registry) Open(name string, cred Credential) (Embedder, Generator, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, name)
	}
	return f(cred)
}

// Names lists the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
