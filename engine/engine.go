// Package engine is the public facade of the module. It owns the
// session store, the per-session document corpora and the provider
// backends, and exposes the upload and ask operations everything else
// exists for.
package engine

import (
	"fmt"
	"os"
	"sync"

	"github.com/tutorkit/tutorkit/config"
	"github.com/tutorkit/tutorkit/log"
	"github.com/tutorkit/tutorkit/provider"
	"github.com/tutorkit/tutorkit/rag"
	"github.com/tutorkit/tutorkit/rag/chunker"
	"github.com/tutorkit/tutorkit/rag/extract"
	"github.com/tutorkit/tutorkit/rag/index"
	"github.com/tutorkit/tutorkit/session"
)

// corpus is one session's uploaded documents and their vector index.
type corpus struct {
	mu       sync.Mutex
	index    *index.Index
	docs     map[string]rag.Document
	docOrder []string
}

// Engine coordinates ingestion, retrieval, generation and session
// state. Create one per process and share it between callers.
type Engine struct {
	cfg       *config.Config
	registry  *provider.Registry
	sessions  *session.Store
	extractor *extract.Extractor
	chunker   *chunker.Chunker
	logger    log.Logger

	embedder  provider.Embedder
	generator provider.Generator

	mu      sync.RWMutex
	corpora map[string]*corpus
}

// Option configures an Engine.
type Option func(*Engine) error

// WithProvider selects the default backend by registry name.
func WithProvider(name string, cred provider.Credential) Option {
	return func(e *Engine) error {
		embedder, generator, err := e.registry.Open(name, cred)
		if err != nil {
			return err
		}
		e.embedder = embedder
		e.generator = generator
		return nil
	}
}

// WithBackend injects an already-built backend pair.
func WithBackend(embedder provider.Embedder, generator provider.Generator) Option {
	return func(e *Engine) error {
		e.embedder = embedder
		e.generator = generator
		return nil
	}
}

// WithRegistry replaces the provider registry.
func WithRegistry(r *provider.Registry) Option {
	return func(e *Engine) error {
		if r != nil {
			e.registry = r
		}
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(e *Engine) error {
		if l != nil {
			e.logger = l
		}
		return nil
	}
}

// New creates an Engine. Without an explicit backend option it uses the
// OpenAI provider when OPENAI_API_KEY is set, and the offline mock
// backend otherwise.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	e := &Engine{
		cfg:      cfg,
		registry: provider.NewRegistry(),
		logger:   log.GetDefaultLogger(),
		corpora:  make(map[string]*corpus),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	if e.embedder == nil || e.generator == nil {
		name, cred := defaultProvider()
		embedder, generator, err := e.registry.Open(name, cred)
		if err != nil {
			return nil, fmt.Errorf("default provider %q: %w", name, err)
		}
		e.embedder = embedder
		e.generator = generator
		e.logger.Info("using %s as the default model provider", name)
	}

	e.extractor = extract.New(
		extract.WithMaxBytes(cfg.Ingest.MaxUploadBytes),
		extract.WithMaxPages(cfg.Ingest.MaxPages),
		extract.WithLogger(e.logger),
	)

	counter, err := buildCounter(cfg.Chunker.Counter)
	if err != nil {
		return nil, err
	}
	e.chunker = chunker.New(
		chunker.WithTargetTokens(cfg.Chunker.TargetTokens),
		chunker.WithOverlapTokens(cfg.Chunker.OverlapTokens),
		chunker.WithMinChunkTokens(cfg.Chunker.MinChunkTokens),
		chunker.WithTokenCounter(counter),
	)

	e.sessions = session.NewStore(
		session.WithIdleWindow(cfg.Session.IdleWindow()),
		session.WithSweepInterval(cfg.Session.SweepInterval()),
		session.WithGuestTurns(cfg.Session.GuestFreeTurns),
		session.WithLimitedTurns(cfg.Session.LimitedFreeTurns),
		session.WithMaxConversations(cfg.Session.MaxConversations),
		session.WithLogger(e.logger),
		session.WithEvictFunc(e.dropCorpus),
	)
	return e, nil
}

func defaultProvider() (string, provider.Credential) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return "openai", provider.Credential{
			APIKey:  key,
			BaseURL: os.Getenv("OPENAI_API_BASE"),
			Model:   os.Getenv("OPENAI_MODEL"),
		}
	}
	return "mock", provider.Credential{}
}

func buildCounter(name string) (chunker.TokenCounter, error) {
	switch name {
	case "", "estimate":
		return chunker.Estimator{}, nil
	case "tiktoken":
		return chunker.NewTiktoken()
	default:
		return nil, fmt.Errorf("unknown token counter %q", name)
	}
}

// Start launches background maintenance (the session expiry sweep).
func (e *Engine) Start() {
	e.sessions.Start()
}

// Shutdown stops background work. Session state stays in memory until
// the process exits.
func (e *Engine) Shutdown() {
	e.sessions.Shutdown()
}

// Providers lists the names the engine can open backends for.
func (e *Engine) Providers() []string {
	return e.registry.Names()
}

// SessionInfo describes a session to callers without exposing the
// store's internal object.
type SessionInfo struct {
	ID        string
	Kind      session.Kind
	FreeTurns int
}

// CreateGuestSession starts an anonymous session with the guest quota.
func (e *Engine) CreateGuestSession() SessionInfo {
	sess := e.sessions.CreateGuest()
	return SessionInfo{ID: sess.ID, Kind: sess.Kind, FreeTurns: sess.FreeTurns()}
}

// Authenticate starts a session for a known user.
func (e *Engine) Authenticate(userID string, unlimited bool) SessionInfo {
	sess := e.sessions.CreateAuthenticated(userID, unlimited)
	return SessionInfo{ID: sess.ID, Kind: sess.Kind, FreeTurns: sess.FreeTurns()}
}

// Session returns current info for a live session.
func (e *Engine) Session(sessionID string) (SessionInfo, error) {
	sess, err := e.sessions.Get(sessionID)
	if err != nil {
		return SessionInfo{}, err
	}
	return SessionInfo{ID: sess.ID, Kind: sess.Kind, FreeTurns: sess.FreeTurns()}, nil
}

// EndSession removes a session and everything it owns.
func (e *Engine) EndSession(sessionID string) error {
	return e.sessions.Delete(sessionID)
}

// ListConversations lists a session's conversations in creation order.
func (e *Engine) ListConversations(sessionID string) ([]session.Summary, error) {
	return e.sessions.ListConversations(sessionID)
}

// GetConversation returns one conversation with its full history.
func (e *Engine) GetConversation(sessionID, conversationID string) (session.Conversation, error) {
	return e.sessions.GetConversation(sessionID, conversationID)
}

// DeleteConversation removes one conversation.
func (e *Engine) DeleteConversation(sessionID, conversationID string) error {
	return e.sessions.DeleteConversation(sessionID, conversationID)
}

// DocumentInfo summarizes a session's document corpus.
type DocumentInfo struct {
	Documents        int
	Chunks           int
	Dimension        int
	EmbedderIdentity string
}

// DocumentInfo reports corpus totals for a live session. A session that
// never uploaded anything reports the engine's embedder identity with
// zero counts.
func (e *Engine) DocumentInfo(sessionID string) (DocumentInfo, error) {
	if _, err := e.sessions.Get(sessionID); err != nil {
		return DocumentInfo{}, err
	}

	c := e.getCorpus(sessionID)
	if c == nil {
		return DocumentInfo{EmbedderIdentity: e.embedder.Identity()}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.index.Stats()
	return DocumentInfo{
		Documents:        len(c.docs),
		Chunks:           stats.Chunks,
		Dimension:        stats.Dimension,
		EmbedderIdentity: stats.Identity,
	}, nil
}

// ListDocuments lists a session's uploads in upload order.
func (e *Engine) ListDocuments(sessionID string) ([]rag.Document, error) {
	if _, err := e.sessions.Get(sessionID); err != nil {
		return nil, err
	}

	c := e.getCorpus(sessionID)
	if c == nil {
		return []rag.Document{}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	docs := make([]rag.Document, 0, len(c.docOrder))
	for _, id := range c.docOrder {
		docs = append(docs, c.docs[id])
	}
	return docs, nil
}

func (e *Engine) getCorpus(sessionID string) *corpus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.corpora[sessionID]
}

// corpusFor returns the session's corpus, creating it bound to the
// engine's embedder identity on first use.
func (e *Engine) corpusFor(sessionID string) *corpus {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.corpora[sessionID]
	if !ok {
		c = &corpus{
			index: index.New(e.embedder.Identity()),
			docs:  make(map[string]rag.Document),
		}
		e.corpora[sessionID] = c
	}
	return c
}

// dropCorpus discards a session's documents when the session goes away.
func (e *Engine) dropCorpus(sessionID string) {
	e.mu.Lock()
	_, ok := e.corpora[sessionID]
	delete(e.corpora, sessionID)
	e.mu.Unlock()
	if ok {
		e.logger.Debug("dropped document corpus for session %s", sessionID)
	}
}
