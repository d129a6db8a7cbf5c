// Package config holds the runtime configuration for the RAG engine and
// the session store. Configuration is read from a YAML file with an
// optional .env overlay; every field has a sensible default so a zero
// setup still works.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// IngestConfig configures document ingestion.
type IngestConfig struct {
	// MaxUploadBytes rejects oversized files before extraction buffers
	// are allocated.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	// MaxPages caps how many PDF pages are extracted from large files.
	MaxPages int `yaml:"max_pages"`
}

// ChunkerConfig configures how extracted text is split into chunks.
type ChunkerConfig struct {
	TargetTokens   int `yaml:"target_tokens"`
	OverlapTokens  int `yaml:"overlap_tokens"`
	MinChunkTokens int `yaml:"min_chunk_tokens"`
	// Counter selects the token counter: "estimate" or "tiktoken".
	Counter string `yaml:"counter"`
}

// RetrievalConfig configures question answering.
type RetrievalConfig struct {
	TopK                int `yaml:"top_k"`
	HistoryWindow       int `yaml:"history_window"`
	EmbedTimeoutSecs    int `yaml:"embed_timeout_secs"`
	GenerateTimeoutSecs int `yaml:"generate_timeout_secs"`
}

// EmbedTimeout returns the bounded wait for embedding calls.
func (c RetrievalConfig) EmbedTimeout() time.Duration {
	return time.Duration(c.EmbedTimeoutSecs) * time.Second
}

// GenerateTimeout returns the bounded wait for generation calls.
func (c RetrievalConfig) GenerateTimeout() time.Duration {
	return time.Duration(c.GenerateTimeoutSecs) * time.Second
}

// SessionConfig configures session lifetimes and quotas.
type SessionConfig struct {
	GuestFreeTurns    int `yaml:"guest_free_turns"`
	LimitedFreeTurns  int `yaml:"limited_free_turns"`
	IdleWindowSecs    int `yaml:"idle_window_secs"`
	SweepIntervalSecs int `yaml:"sweep_interval_secs"`
	MaxConversations  int `yaml:"max_conversations"`
}

// IdleWindow returns how long a session may stay idle before eviction.
func (c SessionConfig) IdleWindow() time.Duration {
	return time.Duration(c.IdleWindowSecs) * time.Second
}

// SweepInterval returns how often the expiration sweep runs.
func (c SessionConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSecs) * time.Second
}

// Config is the root configuration structure.
type Config struct {
	Ingest    IngestConfig    `yaml:"ingest"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Session   SessionConfig   `yaml:"session"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Ingest: IngestConfig{
			MaxUploadBytes: 15 << 20,
			MaxPages:       100,
		},
		Chunker: ChunkerConfig{
			TargetTokens:   300,
			OverlapTokens:  50,
			MinChunkTokens: 60,
			Counter:        "estimate",
		},
		Retrieval: RetrievalConfig{
			TopK:                4,
			HistoryWindow:       20,
			EmbedTimeoutSecs:    30,
			GenerateTimeoutSecs: 120,
		},
		Session: SessionConfig{
			GuestFreeTurns:    3,
			LimitedFreeTurns:  10,
			IdleWindowSecs:    1800,
			SweepIntervalSecs: 300,
			MaxConversations:  50,
		},
	}
}

// Load reads a config from the given path. A missing file yields defaults.
// A .env file next to the process, if any, is loaded first so that
// environment overrides win over file values.
func Load(path string) (*Config, error) {
	// Best effort: absence of a .env file is not an error.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Ingest.MaxUploadBytes <= 0 {
		cfg.Ingest.MaxUploadBytes = def.Ingest.MaxUploadBytes
	}
	if cfg.Ingest.MaxPages <= 0 {
		cfg.Ingest.MaxPages = def.Ingest.MaxPages
	}
	if cfg.Chunker.TargetTokens <= 0 {
		cfg.Chunker.TargetTokens = def.Chunker.TargetTokens
	}
	if cfg.Chunker.OverlapTokens < 0 || cfg.Chunker.OverlapTokens >= cfg.Chunker.TargetTokens {
		cfg.Chunker.OverlapTokens = def.Chunker.OverlapTokens
	}
	if cfg.Chunker.MinChunkTokens <= 0 {
		cfg.Chunker.MinChunkTokens = def.Chunker.MinChunkTokens
	}
	if cfg.Chunker.Counter == "" {
		cfg.Chunker.Counter = def.Chunker.Counter
	}
	if cfg.Retrieval.TopK <= 0 {
		cfg.Retrieval.TopK = def.Retrieval.TopK
	}
	if cfg.Retrieval.HistoryWindow <= 0 {
		cfg.Retrieval.HistoryWindow = def.Retrieval.HistoryWindow
	}
	if cfg.Retrieval.EmbedTimeoutSecs <= 0 {
		cfg.Retrieval.EmbedTimeoutSecs = def.Retrieval.EmbedTimeoutSecs
	}
	if cfg.Retrieval.GenerateTimeoutSecs <= 0 {
		cfg.Retrieval.GenerateTimeoutSecs = def.Retrieval.GenerateTimeoutSecs
	}
	if cfg.Session.GuestFreeTurns <= 0 {
		cfg.Session.GuestFreeTurns = def.Session.GuestFreeTurns
	}
	if cfg.Session.LimitedFreeTurns <= 0 {
		cfg.Session.LimitedFreeTurns = def.Session.LimitedFreeTurns
	}
	if cfg.Session.IdleWindowSecs <= 0 {
		cfg.Session.IdleWindowSecs = def.Session.IdleWindowSecs
	}
	if cfg.Session.SweepIntervalSecs <= 0 {
		cfg.Session.SweepIntervalSecs = def.Session.SweepIntervalSecs
	}
	if cfg.Session.MaxConversations <= 0 {
		cfg.Session.MaxConversations = def.Session.MaxConversations
	}
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := envInt64("TUTORKIT_MAX_UPLOAD_BYTES"); ok {
		cfg.Ingest.MaxUploadBytes = v
	}
	if v, ok := envInt("TUTORKIT_GUEST_FREE_TURNS"); ok {
		cfg.Session.GuestFreeTurns = v
	}
	if v, ok := envInt("TUTORKIT_IDLE_WINDOW_SECS"); ok {
		cfg.Session.IdleWindowSecs = v
	}
	if v, ok := envInt("TUTORKIT_SWEEP_INTERVAL_SECS"); ok {
		cfg.Session.SweepIntervalSecs = v
	}
	if v, ok := envInt("TUTORKIT_TOP_K"); ok {
		cfg.Retrieval.TopK = v
	}
}

func envInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envInt64(key string) (int64, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
