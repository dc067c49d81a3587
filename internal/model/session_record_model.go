package model

import (
	"time"

	"gorm.io/datatypes"
)

// SessionRecord holds the encoded conversation state of one session.
type SessionRecord struct {
	SessionId string         `gorm:"type:varchar(64);primaryKey"`
	Phase     string         `gorm:"type:varchar(32);not null;default:'idle'"`
	State     datatypes.JSON `gorm:"type:jsonb;not null"`
	ExpiresAt time.Time      `gorm:"not null;index"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime"`
}

func (SessionRecord) TableName() string {
	return "session_records"
}
