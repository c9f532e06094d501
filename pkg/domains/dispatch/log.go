package dispatch

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/wabot/pkg/entities"
	"gorm.io/gorm"
)

// GormDeliveryLog persists delivery attempts as MessageLog rows.
type GormDeliveryLog struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewGormDeliveryLog(db *gorm.DB, log zerolog.Logger) *GormDeliveryLog {
	return &GormDeliveryLog{db: db, log: log.With().Str("component", "delivery-log").Logger()}
}

func (g *GormDeliveryLog) Record(ownerID uint, target, kind, status, detail string) {
	row := entities.MessageLog{
		UserID: ownerID,
		Target: target,
		Kind:   kind,
		Status: status,
		Detail: detail,
		SentAt: time.Now(),
	}
	if err := g.db.Create(&row).Error; err != nil {
		g.log.Error().Err(err).Str("target", target).Msg("recording delivery failed")
	}
}
