package implementation

import (
	"context"
	"errors"
	"time"

	"legal-assistant-be/pkg/legal/session"
	"legal-assistant-be/pkg/legal/state"

	"github.com/redis/go-redis/v9"
)

const redisSessionPrefix = "legal:session:"

// RedisSessionStore keeps each session under its own key with a sliding TTL.
type RedisSessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ session.Store = (*RedisSessionStore)(nil)

func NewRedisSessionStore(rdb *redis.Client, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	return &RedisSessionStore{rdb: rdb, ttl: ttl}
}

func (s *RedisSessionStore) Load(ctx context.Context, id string) (*state.State, error) {
	raw, err := s.rdb.Get(ctx, redisSessionPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return session.Decode(id, raw)
}

func (s *RedisSessionStore) Save(ctx context.Context, st *state.State) error {
	raw, err := session.Encode(st)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, redisSessionPrefix+st.SessionID, raw, s.ttl).Err()
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, redisSessionPrefix+id).Err()
}
