package implementation

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"legal-assistant-be/internal/model"
	"legal-assistant-be/pkg/database"
	"legal-assistant-be/pkg/legal/session"
	"legal-assistant-be/pkg/legal/state"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore checks the behaviour every session.Store must share.
func exerciseStore(t *testing.T, store session.Store) {
	ctx := context.Background()
	id := uuid.NewString()

	_, err := store.Load(ctx, id)
	require.ErrorIs(t, err, session.ErrNotFound)

	st := state.New(id)
	st.Messages = append(st.Messages, state.Human("my landlord kept my bond"))
	st.Phase = state.PhaseAwaitingOfferReply
	require.NoError(t, store.Save(ctx, st))

	got, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.SessionID)
	assert.Equal(t, state.PhaseAwaitingOfferReply, got.Phase)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "my landlord kept my bond", got.Messages[0].Content)

	st.Messages = append(st.Messages, state.Human("it was $2000"))
	st.Phase = state.PhaseIdle
	require.NoError(t, store.Save(ctx, st))
	got, err = store.Load(ctx, id)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 2)
	assert.Equal(t, state.PhaseIdle, got.Phase)

	require.NoError(t, store.Delete(ctx, id))
	_, err = store.Load(ctx, id)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func newSqlite(t *testing.T) *SqliteSessionStore {
	t.Helper()
	store, err := NewSqliteSessionStore(filepath.Join(t.TempDir(), "sessions.db"), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSqliteSessionStore(t *testing.T) {
	exerciseStore(t, newSqlite(t))
}

func TestSqliteSessionStoreExpires(t *testing.T) {
	store := newSqlite(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	require.NoError(t, store.Save(ctx, state.New("s1")))
	_, err := store.Load(ctx, "s1")
	require.NoError(t, err)

	store.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, err = store.Load(ctx, "s1")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestSqliteSessionStoreCorruptRecord(t *testing.T) {
	store := newSqlite(t)
	_, err := store.db.Exec(
		`INSERT INTO session_records (session_id, phase, state, expires_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		"s1", "idle", []byte("{oops"), time.Now().Add(time.Hour).Unix(), time.Now().Unix(),
	)
	require.NoError(t, err)

	_, err = store.Load(context.Background(), "s1")

	assert.ErrorIs(t, err, session.ErrCorrupt)
}

func TestSqliteSessionStoreWorksUnderManager(t *testing.T) {
	m := session.NewManager(newSqlite(t), nil)
	ctx := context.Background()

	first, err := m.Turn(ctx, "", func(_ context.Context, st *state.State) error {
		st.Messages = append(st.Messages, state.Human("hello"))
		return nil
	})
	require.NoError(t, err)

	second, err := m.Turn(ctx, first.SessionID, func(_ context.Context, st *state.State) error {
		st.Messages = append(st.Messages, state.Human("again"))
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, second.Messages, 2)
}

func TestRedisSessionStore(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opt)
	t.Cleanup(func() { rdb.Close() })

	exerciseStore(t, NewRedisSessionStore(rdb, time.Minute))
}

func TestGormSessionStore(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	db, err := database.NewGormDBFromDSN(dsn)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.SessionRecord{}))

	exerciseStore(t, NewGormSessionStore(db, time.Minute))
}
