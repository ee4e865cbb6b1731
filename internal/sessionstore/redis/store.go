// Package redis stores scripted-flow sessions in Redis as JSON values.
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"handbook-agent/internal/domain"
)

const (
	keyPrefix  = "handbook-agent:flow:"
	defaultTTL = 24 * time.Hour
)

// redisAPI is the subset of *goredis.Client used by Store.
type redisAPI interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

type Store struct {
	client redisAPI
	ttl    time.Duration
}

func New(client redisAPI, ttl time.Duration) (*Store, error) {
	if client == nil {
		return nil, errors.New("redis: client must not be nil")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{client: client, ttl: ttl}, nil
}

// NewClient connects to addr. The caller owns Close.
func NewClient(addr string) *goredis.Client {
	return goredis.NewClient(&goredis.Options{Addr: addr})
}

func sessionKey(sessionID string) string {
	return keyPrefix + sessionID
}

func (s *Store) Load(ctx context.Context, sessionID string) (domain.FlowSession, bool, error) {
	raw, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.FlowSession{}, false, nil
	}
	if err != nil {
		return domain.FlowSession{}, false, errors.Wrap(err, "redis: get session")
	}
	sess := domain.NewFlowSession()
	if err := json.Unmarshal(raw, &sess); err != nil {
		return domain.FlowSession{}, false, errors.Wrap(err, "redis: decode session")
	}
	if sess.Answers == nil {
		sess.Answers = map[string]string{}
	}
	return sess, true, nil
}

func (s *Store) Save(ctx context.Context, sessionID string, sess domain.FlowSession) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "redis: encode session")
	}
	if err := s.client.Set(ctx, sessionKey(sessionID), raw, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis: set session")
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return errors.Wrap(err, "redis: delete session")
	}
	return nil
}
