package utils

import (
	"context"
	"errors"
	"math"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/wabot/pkg/constant"

	"gorm.io/gorm"
)

func LoadEnv() {
	err := godotenv.Load()
	if err != nil {
		// Don't fail if .env file doesn't exist
		// Environment variables can be provided via Docker Compose or system
		log.Info().Msg(".env file not found, using system environment variables")
	}
}

// Pagination fills item with one page of rows matching query and returns the
// total page count.
func Pagination(item interface{}, pageNumber int, db *gorm.DB, c context.Context, query interface{}, args ...interface{}) (int, error) {
	limit := 10
	offset := 0

	var totalCount int64
	if err := db.WithContext(c).Model(item).Where(query, args...).Count(&totalCount).Error; err != nil {
		return 0, err
	}

	totalPages := int(math.Ceil(float64(totalCount) / float64(limit)))

	if pageNumber > totalPages || pageNumber <= 0 {
		return 0, errors.New(constant.PAGE_NUMBER_OUT_OF_RANGE)
	}

	if pageNumber > 0 {
		offset = (pageNumber - 1) * limit
	}

	if err := db.WithContext(c).Limit(limit).Offset(offset).Where(query, args...).Order("id desc").Find(item).Error; err != nil {
		return 0, err
	}
	return totalPages, nil
}
