package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Match is the durable aggregate behind a room's live state.
// Nested live structures are stored as JSON documents.
type Match struct {
	ID         uuid.UUID       `json:"id"`
	HomeName   string          `json:"home_name"`
	AwayName   string          `json:"away_name"`
	HomeLogo   string          `json:"home_logo"`
	AwayLogo   string          `json:"away_logo"`
	HomeScore  int             `json:"home_score"`
	AwayScore  int             `json:"away_score"`
	MatchTime  string          `json:"match_time"`
	Statistics json.RawMessage `json:"statistics,omitempty"`
	Cards      json.RawMessage `json:"cards,omitempty"`
	Lineups    json.RawMessage `json:"lineups,omitempty"`
	Penalty    json.RawMessage `json:"penalty,omitempty"`
	Marquee    json.RawMessage `json:"marquee,omitempty"`
	Display    json.RawMessage `json:"display,omitempty"`
	Commentary *string         `json:"commentary,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// MatchPatch carries the match columns changed by one mutation.
// Nil fields are left untouched by the store.
type MatchPatch struct {
	HomeName   *string
	AwayName   *string
	HomeLogo   *string
	AwayLogo   *string
	HomeScore  *int
	AwayScore  *int
	MatchTime  *string
	Statistics json.RawMessage
	Cards      json.RawMessage
	Lineups    json.RawMessage
	Penalty    json.RawMessage
	Marquee    json.RawMessage
	Display    json.RawMessage
}

// Empty reports whether the patch changes nothing.
func (p MatchPatch) Empty() bool {
	return p.HomeName == nil && p.AwayName == nil &&
		p.HomeLogo == nil && p.AwayLogo == nil &&
		p.HomeScore == nil && p.AwayScore == nil &&
		p.MatchTime == nil &&
		p.Statistics == nil && p.Cards == nil && p.Lineups == nil &&
		p.Penalty == nil && p.Marquee == nil && p.Display == nil
}

// ApplyTo copies the non-nil patch fields onto m.
func (p MatchPatch) ApplyTo(m *Match) {
	if p.HomeName != nil {
		m.HomeName = *p.HomeName
	}
	if p.AwayName != nil {
		m.AwayName = *p.AwayName
	}
	if p.HomeLogo != nil {
		m.HomeLogo = *p.HomeLogo
	}
	if p.AwayLogo != nil {
		m.AwayLogo = *p.AwayLogo
	}
	if p.HomeScore != nil {
		m.HomeScore = *p.HomeScore
	}
	if p.AwayScore != nil {
		m.AwayScore = *p.AwayScore
	}
	if p.MatchTime != nil {
		m.MatchTime = *p.MatchTime
	}
	if p.Statistics != nil {
		m.Statistics = p.Statistics
	}
	if p.Cards != nil {
		m.Cards = p.Cards
	}
	if p.Lineups != nil {
		m.Lineups = p.Lineups
	}
	if p.Penalty != nil {
		m.Penalty = p.Penalty
	}
	if p.Marquee != nil {
		m.Marquee = p.Marquee
	}
	if p.Display != nil {
		m.Display = p.Display
	}
}
