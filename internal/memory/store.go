package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"

	"handbook-agent/internal/domain"
)

const (
	DefaultMaxConversations = 1000
	DefaultTTL              = 30 * time.Minute
)

// HistorySource loads previously completed turns for a conversation,
// oldest first.
type HistorySource interface {
	GetHistory(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)
}

// Store keeps one Window per conversation ID. Idle conversations expire
// after the TTL and the least recently used are evicted past the cap.
type Store struct {
	windowSize int
	history    HistorySource

	mu      sync.Mutex
	windows *expirable.LRU[string, *Window]
}

type Option func(*Store)

// WithHistory hydrates newly created windows from persisted turns.
func WithHistory(h HistorySource) Option {
	return func(s *Store) {
		s.history = h
	}
}

func NewStore(windowSize, maxConversations int, ttl time.Duration, opts ...Option) (*Store, error) {
	if windowSize <= 0 {
		return nil, errors.New("memory: window size must be positive")
	}
	if maxConversations <= 0 {
		maxConversations = DefaultMaxConversations
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		windowSize: windowSize,
		windows:    expirable.NewLRU[string, *Window](maxConversations, nil, ttl),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Window returns the window for conversationID, creating it on first use.
// Each call renews the conversation's expiry. Hydration failures are logged
// and leave the new window empty.
func (s *Store) Window(ctx context.Context, conversationID string) *Window {
	if w, ok := s.lookup(conversationID); ok {
		return w
	}
	w := NewWindow(s.windowSize)
	if s.history != nil {
		s.hydrate(ctx, conversationID, w)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// another request may have created it while we were hydrating
	if existing, ok := s.windows.Get(conversationID); ok {
		s.windows.Add(conversationID, existing)
		return existing
	}
	s.windows.Add(conversationID, w)
	return w
}

// lookup returns a live window and resets its expiry.
func (s *Store) lookup(conversationID string) (*Window, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows.Get(conversationID)
	if ok {
		s.windows.Add(conversationID, w)
	}
	return w, ok
}

func (s *Store) hydrate(ctx context.Context, conversationID string, w *Window) {
	msgs, err := s.history.GetHistory(ctx, conversationID, s.windowSize)
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("memory: hydrate window")
		return
	}
	for _, m := range msgs {
		if m.Status != domain.StatusComplete || m.Answer == "" {
			continue
		}
		t := m.Turn()
		w.Record(t.Input, t.Output)
	}
}

// Len reports the number of live conversations.
func (s *Store) Len() int {
	return s.windows.Len()
}
