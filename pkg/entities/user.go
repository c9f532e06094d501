package entities

import (
	"gorm.io/gorm"
)

// User is an owner account. Sessions, bulk runs and scheduled jobs all belong
// to exactly one user.
type User struct {
	gorm.Model
	Email    string `json:"email" gorm:"unique;not null"`
	Password string `json:"password" gorm:"not null"`
	Name     string `json:"name" gorm:"type:varchar(255);not null"`
	Surname  string `json:"surname" gorm:"type:varchar(255);not null"`
	Phone    string `json:"phone" gorm:"type:varchar(20)"`
}
