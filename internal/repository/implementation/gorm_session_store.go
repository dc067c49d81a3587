package implementation

import (
	"context"
	"errors"
	"time"

	"legal-assistant-be/internal/model"
	"legal-assistant-be/pkg/legal/session"
	"legal-assistant-be/pkg/legal/state"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormSessionStore struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

var _ session.Store = (*GormSessionStore)(nil)

func NewGormSessionStore(db *gorm.DB, ttl time.Duration) *GormSessionStore {
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	return &GormSessionStore{db: db, ttl: ttl, now: time.Now}
}

func (s *GormSessionStore) Load(ctx context.Context, id string) (*state.State, error) {
	var m model.SessionRecord
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND expires_at > ?", id, s.now()).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return session.Decode(id, m.State)
}

func (s *GormSessionStore) Save(ctx context.Context, st *state.State) error {
	raw, err := session.Encode(st)
	if err != nil {
		return err
	}
	m := model.SessionRecord{
		SessionId: st.SessionID,
		Phase:     string(st.Phase),
		State:     datatypes.JSON(raw),
		ExpiresAt: s.now().Add(s.ttl),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"phase", "state", "expires_at", "updated_at"}),
	}).Create(&m).Error
}

func (s *GormSessionStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Where("session_id = ?", id).Delete(&model.SessionRecord{}).Error
}

// PurgeExpired removes records past their expiry and reports how many went.
func (s *GormSessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", s.now()).Delete(&model.SessionRecord{})
	return res.RowsAffected, res.Error
}
