package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is the persisted record backing one refresh token. A refresh token
// is only usable while a live (non-expired) row with its exact token string
// exists; rotation consumes the row.
type Session struct {
	BaseModel
	UserID    uuid.UUID `json:"userID" gorm:"type:uuid;not null;index"`
	Token     string    `json:"-" gorm:"type:text;uniqueIndex;not null"`
	ExpiresAt time.Time `json:"expiresAt" gorm:"not null;index"`
}
