// Package archive keeps generated briefs as objects so the intake desk can
// retrieve them after the session has expired.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

var ErrNotFound = errors.New("archived brief not found")

// ObjectStore is the blob storage the archive writes to.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// Record is one archived brief.
type Record struct {
	SessionID  string                 `json:"session_id"`
	BriefID    string                 `json:"brief_id"`
	Urgency    string                 `json:"urgency"`
	ArchivedAt time.Time              `json:"archived_at"`
	Brief      map[string]interface{} `json:"brief"`
	// Markdown is stored alongside the JSON as its own object.
	Markdown string `json:"-"`
}

type Archive struct {
	store ObjectStore
	now   func() time.Time
}

func New(store ObjectStore) *Archive {
	return &Archive{store: store, now: time.Now}
}

func prefix(sessionID string) string { return path.Join("briefs", sessionID) + "/" }

func key(sessionID, briefID, ext string) string {
	return path.Join("briefs", sessionID, briefID+ext)
}

// Save writes the record as JSON and, when present, its markdown rendering.
// It returns the JSON object key.
func (a *Archive) Save(ctx context.Context, r Record) (string, error) {
	if strings.TrimSpace(r.SessionID) == "" || strings.TrimSpace(r.BriefID) == "" {
		return "", fmt.Errorf("archive brief: session and brief id are required")
	}
	if r.ArchivedAt.IsZero() {
		r.ArchivedAt = a.now().UTC()
	}

	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("archive brief %s: %w", r.BriefID, err)
	}
	jsonKey := key(r.SessionID, r.BriefID, ".json")
	if err := a.store.Put(ctx, jsonKey, "application/json", raw); err != nil {
		return "", fmt.Errorf("archive brief %s: %w", r.BriefID, err)
	}
	if r.Markdown != "" {
		if err := a.store.Put(ctx, key(r.SessionID, r.BriefID, ".md"), "text/markdown; charset=utf-8", []byte(r.Markdown)); err != nil {
			return "", fmt.Errorf("archive brief %s markdown: %w", r.BriefID, err)
		}
	}
	return jsonKey, nil
}

func (a *Archive) Load(ctx context.Context, sessionID, briefID string) (Record, error) {
	raw, err := a.store.Get(ctx, key(sessionID, briefID, ".json"))
	if err != nil {
		return Record{}, err
	}
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return Record{}, fmt.Errorf("decode archived brief %s: %w", briefID, err)
	}
	if md, err := a.store.Get(ctx, key(sessionID, briefID, ".md")); err == nil {
		r.Markdown = string(md)
	}
	return r, nil
}

// BriefIDs lists the briefs archived for a session, sorted.
func (a *Archive) BriefIDs(ctx context.Context, sessionID string) ([]string, error) {
	keys, err := a.store.List(ctx, prefix(sessionID))
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, k := range keys {
		if strings.HasSuffix(k, ".json") {
			ids = append(ids, strings.TrimSuffix(path.Base(k), ".json"))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// MemoryStore is an ObjectStore held in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (m *MemoryStore) Put(_ context.Context, key, _ string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
