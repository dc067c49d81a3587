package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"legal-assistant-be/pkg/legal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSave struct{ *MemoryStore }

func (failingSave) Save(context.Context, *state.State) error { return errors.New("disk full") }

func appendHuman(text string) TurnFunc {
	return func(_ context.Context, st *state.State) error {
		st.Messages = append(st.Messages, state.Human(text))
		return nil
	}
}

func TestTurnCreatesAndResumes(t *testing.T) {
	m := NewManager(NewMemoryStore(time.Hour), nil)
	ctx := context.Background()

	st, err := m.Turn(ctx, "", appendHuman("hello"))
	require.NoError(t, err)
	require.NotEmpty(t, st.SessionID)

	again, err := m.Turn(ctx, st.SessionID, appendHuman("again"))
	require.NoError(t, err)
	assert.Equal(t, st.SessionID, again.SessionID)
	assert.Len(t, again.Messages, 2)
}

func TestTurnUnknownIDStartsFresh(t *testing.T) {
	m := NewManager(NewMemoryStore(time.Hour), nil)

	st, err := m.Turn(context.Background(), "abc", appendHuman("hi"))

	require.NoError(t, err)
	assert.Equal(t, "abc", st.SessionID)
	assert.Equal(t, state.PhaseIdle, st.Phase)
}

func TestTurnCorruptRecordStartsFresh(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	store.cache.Set("abc", []byte("{not json"), 0)
	m := NewManager(store, nil)

	st, err := m.Turn(context.Background(), "abc", appendHuman("hi"))

	require.NoError(t, err)
	assert.Len(t, st.Messages, 1)
}

func TestTurnDoesNotSaveOnError(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	m := NewManager(store, nil)
	boom := errors.New("boom")

	_, err := m.Turn(context.Background(), "abc", func(context.Context, *state.State) error { return boom })

	assert.ErrorIs(t, err, boom)
	_, err = store.Load(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTurnReturnsSaveFailure(t *testing.T) {
	m := NewManager(failingSave{NewMemoryStore(time.Hour)}, nil)

	_, err := m.Turn(context.Background(), "abc", appendHuman("hi"))

	assert.ErrorContains(t, err, "disk full")
}

func TestTurnsOnOneSessionAreSerialised(t *testing.T) {
	m := NewManager(NewMemoryStore(time.Hour), nil)
	var active, maxActive int32

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Turn(context.Background(), "shared", func(_ context.Context, st *state.State) error {
				n := atomic.AddInt32(&active, 1)
				for {
					old := atomic.LoadInt32(&maxActive)
					if n <= old || atomic.CompareAndSwapInt32(&maxActive, old, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				st.Messages = append(st.Messages, state.Human("x"))
				atomic.AddInt32(&active, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)
	st, err := m.Get(context.Background(), "shared")
	require.NoError(t, err)
	assert.Len(t, st.Messages, 8)
	assert.Empty(t, m.locks)
}

func TestTurnHonoursCancelledWait(t *testing.T) {
	m := NewManager(NewMemoryStore(time.Hour), nil)
	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = m.Turn(context.Background(), "s", func(context.Context, *state.State) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := m.Turn(ctx, "s", appendHuman("late"))
	close(hold)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDecodeRejectsForeignRecord(t *testing.T) {
	raw, err := Encode(state.New("one"))
	require.NoError(t, err)

	_, err = Decode("two", raw)
	assert.ErrorIs(t, err, ErrCorrupt)
}
