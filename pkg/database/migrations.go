package database

import (
	"github.com/wabot/pkg/entities"
	"gorm.io/gorm"
)

// AutoMigrate runs database migrations
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entities.User{},
		&entities.SessionRecord{},
		&entities.AccountQuota{},
		&entities.MessageLog{},
	)
}
