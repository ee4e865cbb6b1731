package flow

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"handbook-agent/internal/domain"
)

const defaultMaxSessions = 10000

// MemoryStore keeps sessions in process. Idle sessions expire after the TTL.
type MemoryStore struct {
	sessions *expirable.LRU[string, domain.FlowSession]
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryStore{sessions: expirable.NewLRU[string, domain.FlowSession](defaultMaxSessions, nil, ttl)}
}

func (m *MemoryStore) Load(_ context.Context, sessionID string) (domain.FlowSession, bool, error) {
	sess, ok := m.sessions.Get(sessionID)
	if !ok {
		return domain.FlowSession{}, false, nil
	}
	return clone(sess), true, nil
}

func (m *MemoryStore) Save(_ context.Context, sessionID string, sess domain.FlowSession) error {
	m.sessions.Add(sessionID, clone(sess))
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.sessions.Remove(sessionID)
	return nil
}

func clone(sess domain.FlowSession) domain.FlowSession {
	out := sess
	out.Answers = make(map[string]string, len(sess.Answers))
	for k, v := range sess.Answers {
		out.Answers[k] = v
	}
	return out
}
