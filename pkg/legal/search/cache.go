package search

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedSearcher memoises successful searches in a bounded LRU.
type CachedSearcher struct {
	next  Searcher
	cache *lru.Cache[string, Response]
}

func NewCachedSearcher(next Searcher, size int) (*CachedSearcher, error) {
	if size <= 0 {
		size = 256
	}
	c, err := lru.New[string, Response](size)
	if err != nil {
		return nil, err
	}
	return &CachedSearcher{next: next, cache: c}, nil
}

func (s *CachedSearcher) Search(ctx context.Context, query, jurisdiction string, topK int) (Response, error) {
	key := fmt.Sprintf("%s|%d|%s", jurisdiction, topK, strings.ToLower(strings.TrimSpace(query)))
	if resp, ok := s.cache.Get(key); ok {
		return resp, nil
	}
	resp, err := s.next.Search(ctx, query, jurisdiction, topK)
	if err != nil {
		return resp, err
	}
	s.cache.Add(key, resp)
	return resp, nil
}

func (s *CachedSearcher) Len() int { return s.cache.Len() }
