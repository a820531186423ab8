package models

import "time"

// RoomSessionStatus defines the status of a durable room session.
type RoomSessionStatus string

const (
	RoomSessionStatusInactive RoomSessionStatus = "inactive"
	RoomSessionStatusActive   RoomSessionStatus = "active"
	RoomSessionStatusExpired  RoomSessionStatus = "expired"
	// RoomSessionStatusPause is reserved and never written by the engine.
	RoomSessionStatusPause RoomSessionStatus = "pause"
)

// RoomSession mirrors the connection roster of a room for expiration bookkeeping.
// It is not used for authorization.
type RoomSession struct {
	AccessCode       string            `json:"access_code"`
	ClientConnected  []string          `json:"client_connected"`
	DisplayConnected []string          `json:"display_connected"`
	ExpiredAt        *time.Time        `json:"expired_at,omitempty"`
	Status           RoomSessionStatus `json:"status"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}
