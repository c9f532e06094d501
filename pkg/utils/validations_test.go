package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type phoneHolder struct {
	Phone string `validate:"isphone"`
}

type emailHolder struct {
	Email string `validate:"isemail"`
}

func TestIsValidPhone(t *testing.T) {
	v := NewCustomValidator()

	valid := []string{"905001112233", "+905001112233", "15551234567", "4915112345678"}
	for _, p := range valid {
		assert.NoError(t, v.Validator.Struct(phoneHolder{Phone: p}), p)
	}

	invalid := []string{"", "12345", "not-a-number", "+90500111223344556677", "90500x112233"}
	for _, p := range invalid {
		assert.Error(t, v.Validator.Struct(phoneHolder{Phone: p}), p)
	}
}

func TestIsValidEmail(t *testing.T) {
	v := NewCustomValidator()

	assert.NoError(t, v.Validator.Struct(emailHolder{Email: "ada@example.com"}))
	assert.Error(t, v.Validator.Struct(emailHolder{Email: "not-an-email"}))
}
