// Package session keeps all conversational state in memory: sessions,
// their conversations and message history, free-turn quotas and idle
// expiry. Nothing is persisted; an evicted session is gone.
package session

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrSessionNotFound indicates the session id is unknown or the
	// session has expired.
	ErrSessionNotFound = errors.New("session not found")

	// ErrConversationNotFound indicates the conversation id is unknown
	// within the session.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrQuotaExhausted indicates the session has no free turns left.
	ErrQuotaExhausted = errors.New("free turn quota exhausted")
)

// Unlimited marks a session without a turn quota.
const Unlimited = -1

// Kind classifies a session's entitlement level.
type Kind string

const (
	// KindGuest sessions get a small free-turn quota and no identity.
	KindGuest Kind = "guest"
	// KindLimited sessions belong to an authenticated user on the free
	// tier.
	KindLimited Kind = "authenticated-limited"
	// KindUnlimited sessions belong to an authenticated user without a
	// turn quota.
	KindUnlimited Kind = "authenticated-unlimited"
)

// Message is one turn of a conversation.
type Message struct {
	ID        string
	Role      string
	Content   string
	Timestamp time.Time
}

// Conversation is an ordered message history in a fixed answering mode.
// The mode is set at creation and never changes.
type Conversation struct {
	ID        string
	Mode      string
	Messages  []Message
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Summary is a lightweight view of a conversation for listings.
type Summary struct {
	ID           string
	Mode         string
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is one user's ephemeral workspace. Immutable identity fields
// are exported; mutable state is guarded by the session's own mutex so
// operations on different sessions never contend.
type Session struct {
	ID        string
	Kind      Kind
	UserID    string
	CreatedAt time.Time

	mu            sync.Mutex
	lastActive    time.Time
	freeTurns     int
	conversations map[string]*Conversation
	convOrder     []string
}

// LastActive returns when the session was last used.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// FreeTurns returns the remaining quota, or Unlimited.
func (s *Session) FreeTurns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.freeTurns
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

func (s *Session) expired(now time.Time, idleWindow time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActive) > idleWindow
}

func snapshotConversation(c *Conversation) Conversation {
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return out
}
