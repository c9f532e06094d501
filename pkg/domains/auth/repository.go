package auth

import (
	"context"

	"github.com/wabot/pkg/entities"
	"gorm.io/gorm"
)

type Repository interface {
	CreateUser(ctx context.Context, user entities.User) error
	FindUserByEmail(ctx context.Context, email string) (entities.User, error)
	FindUserByEmailOrPhone(ctx context.Context, email, phone string) (entities.User, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateUser(ctx context.Context, user entities.User) error {
	return r.db.WithContext(ctx).Create(&user).Error
}

func (r *repository) FindUserByEmail(ctx context.Context, email string) (entities.User, error) {
	var user entities.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	return user, err
}

func (r *repository) FindUserByEmailOrPhone(ctx context.Context, email, phone string) (entities.User, error) {
	var user entities.User
	err := r.db.WithContext(ctx).Where("email = ? OR phone = ?", email, phone).First(&user).Error
	if err == gorm.ErrRecordNotFound {
		return entities.User{}, nil
	}
	return user, err
}
