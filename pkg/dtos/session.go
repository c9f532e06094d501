package dtos

import "time"

type SessionDTO struct {
	ID        string    `json:"id"`
	OwnerID   uint      `json:"owner_id"`
	Phone     string    `json:"phone,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type QRCodeDTO struct {
	SessionID string `json:"session_id"`
	Code      string `json:"code"`
	PNGBase64 string `json:"png_base64,omitempty"`
}
