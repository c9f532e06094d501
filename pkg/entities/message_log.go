package entities

import (
	"time"

	"gorm.io/gorm"
)

// MessageLog is one row per delivery attempt: single sends, every contact of
// a bulk run, scheduled fires and automated replies.
type MessageLog struct {
	gorm.Model
	UserID    uint      `json:"user_id" gorm:"index;not null"`
	Target    string    `json:"target" gorm:"type:varchar(64);not null"`
	Kind      string    `json:"kind" gorm:"type:varchar(20)"` // single, bulk, group, scheduled, auto
	Status    string    `json:"status" gorm:"type:varchar(20)"` // sent, failed, not_authorized
	Detail    string    `json:"detail" gorm:"type:text"`
	SentAt    time.Time `json:"sent_at"`

	User User `json:"user" gorm:"foreignKey:UserID"`
}
