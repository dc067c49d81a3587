// Package session persists conversation state between turns and serialises
// turns that share a session id.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"legal-assistant-be/internal/pkg/logger"
	"legal-assistant-be/pkg/legal/state"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrCorrupt  = errors.New("session record corrupt")
)

// Store keeps one state record per session id.
type Store interface {
	Load(ctx context.Context, id string) (*state.State, error)
	Save(ctx context.Context, st *state.State) error
	Delete(ctx context.Context, id string) error
}

// Encode is the wire form every store persists.
func Encode(st *state.State) ([]byte, error) {
	raw, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode session %s: %w", st.SessionID, err)
	}
	return raw, nil
}

// Decode parses a stored record. A record that does not parse, or that
// belongs to another session, is ErrCorrupt.
func Decode(id string, raw []byte) (*state.State, error) {
	var st state.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, id, err)
	}
	if st.SessionID != id {
		return nil, fmt.Errorf("%w: %s holds session %q", ErrCorrupt, id, st.SessionID)
	}
	if st.Phase == "" {
		st.Phase = state.PhaseIdle
	}
	return &st, nil
}

// TurnFunc runs one turn against the loaded state.
type TurnFunc func(ctx context.Context, st *state.State) error

// Manager loads, runs and saves turns. Turns for the same session id never
// overlap; different sessions run in parallel.
type Manager struct {
	store  Store
	logger logger.ILogger
	newID  func() string

	mu    sync.Mutex
	locks map[string]*turnLock
}

type turnLock struct {
	ch   chan struct{}
	refs int
}

func NewManager(store Store, log logger.ILogger) *Manager {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Manager{store: store, logger: log, newID: uuid.NewString, locks: make(map[string]*turnLock)}
}

// Turn runs fn on the state of session id. An empty id starts a new session.
// A missing or unreadable record starts fresh under the same id. The state is
// saved only when fn succeeds; a failed save is returned.
func (m *Manager) Turn(ctx context.Context, id string, fn TurnFunc) (*state.State, error) {
	if id == "" {
		id = m.newID()
	}

	release, err := m.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	st, err := m.store.Load(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		st = state.New(id)
	case err != nil:
		m.logger.Warn("session", "session unreadable, starting fresh", map[string]interface{}{
			"session_id": id,
			"error":      err.Error(),
		})
		st = state.New(id)
	}

	if err := fn(ctx, st); err != nil {
		return st, err
	}

	if err := m.store.Save(ctx, st); err != nil {
		m.logger.Error("session", "failed to save session", map[string]interface{}{
			"session_id": id,
			"error":      err.Error(),
		})
		return st, fmt.Errorf("save session %s: %w", id, err)
	}
	return st, nil
}

// Get returns the stored state without taking the turn lock.
func (m *Manager) Get(ctx context.Context, id string) (*state.State, error) {
	return m.store.Load(ctx, id)
}

func (m *Manager) Delete(ctx context.Context, id string) error {
	release, err := m.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()
	return m.store.Delete(ctx, id)
}

func (m *Manager) acquire(ctx context.Context, id string) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &turnLock{ch: make(chan struct{}, 1)}
		m.locks[id] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			m.unref(id, l)
		}, nil
	case <-ctx.Done():
		m.unref(id, l)
		return nil, ctx.Err()
	}
}

func (m *Manager) unref(id string, l *turnLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, id)
	}
}
