package implementation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"legal-assistant-be/pkg/legal/session"
	"legal-assistant-be/pkg/legal/state"

	_ "modernc.org/sqlite"
)

const sqliteSessionSchema = `
CREATE TABLE IF NOT EXISTS session_records (
	session_id TEXT PRIMARY KEY,
	phase      TEXT NOT NULL,
	state      BLOB NOT NULL,
	expires_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_records_expires_at ON session_records(expires_at);`

// SqliteSessionStore persists sessions in a single-file database for
// deployments without postgres or redis.
type SqliteSessionStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

var _ session.Store = (*SqliteSessionStore)(nil)

func NewSqliteSessionStore(path string, ttl time.Duration) (*SqliteSessionStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// sqlite allows one writer at a time
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSessionSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create session schema: %w", err)
	}
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	return &SqliteSessionStore{db: db, ttl: ttl, now: time.Now}, nil
}

func (s *SqliteSessionStore) Load(ctx context.Context, id string) (*state.State, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM session_records WHERE session_id = ? AND expires_at > ?`,
		id, s.now().Unix(),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return session.Decode(id, raw)
}

func (s *SqliteSessionStore) Save(ctx context.Context, st *state.State) error {
	raw, err := session.Encode(st)
	if err != nil {
		return err
	}
	now := s.now()
	_, err = s.db.ExecContext(ctx, `
INSERT INTO session_records (session_id, phase, state, expires_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
	phase = excluded.phase,
	state = excluded.state,
	expires_at = excluded.expires_at,
	updated_at = excluded.updated_at`,
		st.SessionID, string(st.Phase), raw, now.Add(s.ttl).Unix(), now.Unix(),
	)
	return err
}

func (s *SqliteSessionStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_records WHERE session_id = ?`, id)
	return err
}

func (s *SqliteSessionStore) Close() error {
	return s.db.Close()
}
