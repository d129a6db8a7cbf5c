package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tutorkit/tutorkit/log"
)

// EvictFunc runs after a session is removed, whether by explicit delete
// or by the idle sweep. It receives the session id.
type EvictFunc func(sessionID string)

// Store owns every live session. A background sweeper evicts sessions
// idle past the configured window; lookups also evict lazily so an
// expired session is never observable between sweeps.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	idleWindow       time.Duration
	sweepInterval    time.Duration
	guestTurns       int
	limitedTurns     int
	maxConversations int

	logger  log.Logger
	onEvict []EvictFunc
	now     func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithIdleWindow sets how long a session may stay idle.
func WithIdleWindow(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.idleWindow = d
		}
	}
}

// WithSweepInterval sets how often the background sweep runs.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithGuestTurns sets the guest free-turn quota.
func WithGuestTurns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.guestTurns = n
		}
	}
}

// WithLimitedTurns sets the authenticated free-tier quota.
func WithLimitedTurns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.limitedTurns = n
		}
	}
}

// WithMaxConversations caps conversations per session.
func WithMaxConversations(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxConversations = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithEvictFunc registers a callback for evicted sessions.
func WithEvictFunc(fn EvictFunc) Option {
	return func(s *Store) {
		if fn != nil {
			s.onEvict = append(s.onEvict, fn)
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a Store. Call Start to run the background sweeper.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions:         make(map[string]*Session),
		idleWindow:       30 * time.Minute,
		sweepInterval:    5 * time.Minute,
		guestTurns:       3,
		limitedTurns:     10,
		maxConversations: 50,
		logger:           log.GetDefaultLogger(),
		now:              time.Now,
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the background expiry sweep.
func (s *Store) Start() {
	go func() {
		defer close(s.doneCh)
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := s.SweepExpired(); n > 0 {
					s.logger.Info("evicted %d idle sessions", n)
				}
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Shutdown stops the sweeper. Safe to call more than once; a no-op if
// Start was never called other than closing the channels.
func (s *Store) Shutdown() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// CreateGuest creates a session with the guest quota.
func (s *Store) CreateGuest() *Session {
	return s.create(KindGuest, "", s.guestTurns)
}

// CreateAuthenticated creates a session for a known user. Unlimited
// users get no quota; limited users get the free-tier quota.
func (s *Store) CreateAuthenticated(userID string, unlimited bool) *Session {
	if unlimited {
		return s.create(KindUnlimited, userID, Unlimited)
	}
	return s.create(KindLimited, userID, s.limitedTurns)
}

func (s *Store) create(kind Kind, userID string, turns int) *Session {
	now := s.now()
	sess := &Session{
		ID:            uuid.New().String(),
		Kind:          kind,
		UserID:        userID,
		CreatedAt:     now,
		lastActive:    now,
		freeTurns:     turns,
		conversations: make(map[string]*Conversation),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.logger.Debug("created %s session %s", kind, sess.ID)
	return sess
}

// Get returns a live session and refreshes its activity stamp. Expired
// sessions are evicted on the spot and reported as not found.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	now := s.now()
	if sess.expired(now, s.idleWindow) {
		s.evict(id)
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.touch(now)
	return sess, nil
}

// Delete removes a session and fires the evict callbacks.
func (s *Store) Delete(id string) error {
	s.mu.RLock()
	_, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.evict(id)
	return nil
}

func (s *Store) evict(id string) {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return
	}
	for _, fn := range s.onEvict {
		fn(id)
	}
	s.logger.Debug("evicted session %s", id)
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// SweepExpired evicts every session idle past the window and returns
// how many were removed.
func (s *Store) SweepExpired() int {
	now := s.now()

	s.mu.RLock()
	var expired []string
	for id, sess := range s.sessions {
		if sess.expired(now, s.idleWindow) {
			expired = append(expired, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range expired {
		s.evict(id)
	}
	return len(expired)
}

// CheckAndReserveTurn atomically verifies and consumes one free turn.
// Sessions with their own backend credential bypass the quota, as do
// unlimited sessions. The returned count is the remaining quota after
// the reservation, or Unlimited.
func (s *Store) CheckAndReserveTurn(id string, hasOwnCredential bool) (int, error) {
	sess, err := s.Get(id)
	if err != nil {
		return 0, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if hasOwnCredential || sess.freeTurns == Unlimited {
		return Unlimited, nil
	}
	if sess.freeTurns <= 0 {
		return 0, fmt.Errorf("%w: session %s", ErrQuotaExhausted, id)
	}
	sess.freeTurns--
	return sess.freeTurns, nil
}

// OpenConversation returns the conversation with the given id, creating
// it when the id is empty or unknown; the second return reports whether
// it was created by this call. The mode argument only applies at
// creation; an existing conversation keeps its original mode no matter
// what is asked for.
func (s *Store) OpenConversation(sessionID, convID, mode string) (Conversation, bool, error) {
	sess, err := s.Get(sessionID)
	if err != nil {
		return Conversation{}, false, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if convID != "" {
		if conv, ok := sess.conversations[convID]; ok {
			return snapshotConversation(conv), false, nil
		}
	}

	if len(sess.conversations) >= s.maxConversations {
		return Conversation{}, false, fmt.Errorf("session %s is at its conversation limit (%d)", sessionID, s.maxConversations)
	}

	if convID == "" {
		convID = uuid.New().String()
	}
	now := s.now()
	conv := &Conversation{
		ID:        convID,
		Mode:      mode,
		CreatedAt: now,
		UpdatedAt: now,
	}
	sess.conversations[convID] = conv
	sess.convOrder = append(sess.convOrder, convID)
	return snapshotConversation(conv), true, nil
}

// GetConversation returns a snapshot of one conversation.
func (s *Store) GetConversation(sessionID, convID string) (Conversation, error) {
	sess, err := s.Get(sessionID)
	if err != nil {
		return Conversation{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	conv, ok := sess.conversations[convID]
	if !ok {
		return Conversation{}, fmt.Errorf("%w: %s", ErrConversationNotFound, convID)
	}
	return snapshotConversation(conv), nil
}

// AppendMessage adds one message to a conversation's history.
func (s *Store) AppendMessage(sessionID, convID, role, content string) (Message, error) {
	sess, err := s.Get(sessionID)
	if err != nil {
		return Message{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	conv, ok := sess.conversations[convID]
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrConversationNotFound, convID)
	}

	msg := Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
	}
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = msg.Timestamp
	return msg, nil
}

// ListConversations returns summaries in creation order.
func (s *Store) ListConversations(sessionID string) ([]Summary, error) {
	sess, err := s.Get(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	summaries := make([]Summary, 0, len(sess.convOrder))
	for _, id := range sess.convOrder {
		conv, ok := sess.conversations[id]
		if !ok {
			continue
		}
		summaries = append(summaries, Summary{
			ID:           conv.ID,
			Mode:         conv.Mode,
			MessageCount: len(conv.Messages),
			CreatedAt:    conv.CreatedAt,
			UpdatedAt:    conv.UpdatedAt,
		})
	}
	return summaries, nil
}

// DeleteConversation removes one conversation from a session.
func (s *Store) DeleteConversation(sessionID, convID string) error {
	sess, err := s.Get(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if _, ok := sess.conversations[convID]; !ok {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, convID)
	}
	delete(sess.conversations, convID)
	for i, id := range sess.convOrder {
		if id == convID {
			sess.convOrder = append(sess.convOrder[:i], sess.convOrder[i+1:]...)
			break
		}
	}
	return nil
}
