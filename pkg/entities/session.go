package entities

import (
	"time"

	"gorm.io/gorm"
)

// SessionRecord mirrors the in-memory session state so the status survives a
// restart even though the live connection does not.
type SessionRecord struct {
	gorm.Model
	SessionID    string    `json:"session_id" gorm:"uniqueIndex;type:varchar(64);not null"`
	UserID       uint      `json:"user_id" gorm:"index;not null"`
	PhoneNumber  string    `json:"phone_number" gorm:"type:varchar(32)"`
	Status       string    `json:"status" gorm:"type:varchar(20)"`
	LastActiveAt time.Time `json:"last_active_at"`

	User User `json:"user" gorm:"foreignKey:UserID"`
}

// AccountQuota caps how many automated/bulk messages an owner may send per
// calendar month. A zero limit means unlimited.
type AccountQuota struct {
	gorm.Model
	UserID       uint      `json:"user_id" gorm:"uniqueIndex;not null"`
	MonthlyLimit int       `json:"monthly_limit" gorm:"default:0"`
	Used         int       `json:"used" gorm:"default:0"`
	PeriodStart  time.Time `json:"period_start"`

	User User `json:"user" gorm:"foreignKey:UserID"`
}
