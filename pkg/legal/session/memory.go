package session

import (
	"context"
	"time"

	"legal-assistant-be/pkg/legal/state"

	"github.com/patrickmn/go-cache"
)

const (
	DefaultTTL     = 24 * time.Hour
	defaultCleanup = 10 * time.Minute
)

// MemoryStore keeps encoded sessions in process memory. Records expire after
// ttl without a save.
type MemoryStore struct {
	cache *cache.Cache
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{cache: cache.New(ttl, defaultCleanup)}
}

func (s *MemoryStore) Load(_ context.Context, id string) (*state.State, error) {
	x, found := s.cache.Get(id)
	if !found {
		return nil, ErrNotFound
	}
	return Decode(id, x.([]byte))
}

func (s *MemoryStore) Save(_ context.Context, st *state.State) error {
	raw, err := Encode(st)
	if err != nil {
		return err
	}
	s.cache.Set(st.SessionID, raw, cache.DefaultExpiration)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.cache.Delete(id)
	return nil
}

// Len reports how many sessions are held.
func (s *MemoryStore) Len() int { return s.cache.ItemCount() }
