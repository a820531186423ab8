package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type AccessCode struct {
	Code       string
	Status     string
	MaxUses    int32
	UsageCount int32
	ExpiredAt  sql.NullTime
	UserID     uuid.UUID
	MatchID    uuid.UUID
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Match struct {
	ID         uuid.UUID
	HomeName   string
	AwayName   string
	HomeLogo   string
	AwayLogo   string
	HomeScore  int32
	AwayScore  int32
	MatchTime  string
	Statistics pqtype.NullRawMessage
	Cards      pqtype.NullRawMessage
	Lineups    pqtype.NullRawMessage
	Penalty    pqtype.NullRawMessage
	Marquee    pqtype.NullRawMessage
	Display    pqtype.NullRawMessage
	Commentary sql.NullString
	UpdatedAt  time.Time
}

type RoomSession struct {
	AccessCode       string
	ClientConnected  []string
	DisplayConnected []string
	ExpiredAt        sql.NullTime
	Status           string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type DisplaySetting struct {
	AccessCode string
	Type       string
	CodeLogo   string
	Name       string
	Url        string
	Position   int32
	CreatedAt  time.Time
}
