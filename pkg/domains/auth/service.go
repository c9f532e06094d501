package auth

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/wabot/pkg/constant"
	"github.com/wabot/pkg/dtos"
	"github.com/wabot/pkg/entities"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Service interface {
	Register(ctx context.Context, req dtos.DTOForUserCreate) (string, error)
	Login(ctx context.Context, req dtos.DTOForUserLogin) (string, error)
}

type service struct {
	repository Repository
}

func NewService(r Repository) Service {
	return &service{
		repository: r,
	}
}

func (s *service) Register(ctx context.Context, req dtos.DTOForUserCreate) (string, error) {
	existingUser, err := s.repository.FindUserByEmailOrPhone(ctx, req.Email, req.Phone)
	if err != nil && err != gorm.ErrRecordNotFound {
		return "", fmt.Errorf(constant.SOMETHING_WENT_WRONG)
	}

	if existingUser.ID != 0 {
		return "", fmt.Errorf(constant.ALREADY_EXISTS, "User")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	user := entities.User{
		Email:    req.Email,
		Password: string(passwordHash),
		Name:     req.Name,
		Surname:  req.Surname,
		Phone:    req.Phone,
	}

	if err := s.repository.CreateUser(ctx, user); err != nil {
		return "", err
	}

	return signToken(user.ID)
}

func (s *service) Login(ctx context.Context, req dtos.DTOForUserLogin) (string, error) {
	user, err := s.repository.FindUserByEmail(ctx, req.Email)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", fmt.Errorf(constant.EMAIL_OR_PHONE)
		}
		return "", fmt.Errorf(constant.SOMETHING_WENT_WRONG)
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password))
	if err != nil {
		return "", fmt.Errorf(constant.UNAUTHORIZED_ACCESS)
	}

	return signToken(user.ID)
}

func signToken(userID uint) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  userID,
		"exp": time.Now().Add(time.Hour * 24).Unix(),
	})
	return token.SignedString([]byte(os.Getenv("SECRET")))
}
