// Package account is the quota collaborator: it answers whether an owner may
// send N more automated messages this month, and records what was sent.
package account

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/wabot/pkg/entities"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewService(db *gorm.DB, log zerolog.Logger) *Service {
	return &Service{db: db, log: log.With().Str("component", "account").Logger()}
}

// MaySend reports whether the owner has quota for n more messages. Unknown
// owners get a default unlimited quota row.
func (s *Service) MaySend(ownerID uint, n int) bool {
	quota, err := s.current(ownerID)
	if err != nil {
		s.log.Error().Err(err).Uint("owner", ownerID).Msg("quota lookup failed")
		// fail open: a broken quota store must not silence every account
		return true
	}
	if quota.MonthlyLimit <= 0 {
		return true
	}
	return quota.Used+n <= quota.MonthlyLimit
}

// RecordSent adds n to the owner's usage counter for the current period.
func (s *Service) RecordSent(ownerID uint, n int) {
	quota, err := s.current(ownerID)
	if err != nil {
		s.log.Error().Err(err).Uint("owner", ownerID).Msg("quota update failed")
		return
	}
	quota.Used += n
	if err := s.db.Save(quota).Error; err != nil {
		s.log.Error().Err(err).Uint("owner", ownerID).Msg("quota save failed")
	}
}

// current loads the owner's quota row, creating it if missing and rolling the
// usage counter over when a new calendar month starts.
func (s *Service) current(ownerID uint) (*entities.AccountQuota, error) {
	var quota entities.AccountQuota
	err := s.db.Where("user_id = ?", ownerID).First(&quota).Error
	if err == gorm.ErrRecordNotFound {
		quota = entities.AccountQuota{
			UserID:      ownerID,
			PeriodStart: monthStart(time.Now()),
		}
		if err := s.db.Create(&quota).Error; err != nil {
			return nil, err
		}
		return &quota, nil
	}
	if err != nil {
		return nil, err
	}

	if start := monthStart(time.Now()); start.After(quota.PeriodStart) {
		quota.PeriodStart = start
		quota.Used = 0
		if err := s.db.Save(&quota).Error; err != nil {
			return nil, err
		}
	}
	return &quota, nil
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
