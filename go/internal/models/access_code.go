package models

import (
	"time"

	"github.com/google/uuid"
)

// AccessCodeStatus defines the lifecycle status of an access code.
type AccessCodeStatus string

const (
	AccessCodeStatusActive   AccessCodeStatus = "active"
	AccessCodeStatusUsed     AccessCodeStatus = "used"
	AccessCodeStatusExpired  AccessCodeStatus = "expired"
	AccessCodeStatusRevoked  AccessCodeStatus = "revoked"
	AccessCodeStatusInactive AccessCodeStatus = "inactive"
)

// Terminal reports whether no further transitions are allowed.
func (s AccessCodeStatus) Terminal() bool {
	return s == AccessCodeStatusExpired || s == AccessCodeStatusRevoked
}

// Joinable reports whether clients may still attach to a room for this status.
func (s AccessCodeStatus) Joinable() bool {
	return s == AccessCodeStatusActive || s == AccessCodeStatusUsed
}

// AccessCode represents the durable access code row that keys a livestream room.
type AccessCode struct {
	Code       string           `json:"code"`
	Status     AccessCodeStatus `json:"status"`
	MaxUses    int              `json:"max_uses"`
	UsageCount int              `json:"usage_count"`
	ExpiredAt  *time.Time       `json:"expired_at,omitempty"`
	UserID     uuid.UUID        `json:"user_id"`
	MatchID    uuid.UUID        `json:"match_id"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}
