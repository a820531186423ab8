package models

import "time"

// OverlayType identifies one of the overlay lists rendered by displays.
type OverlayType string

const (
	OverlaySponsors        OverlayType = "sponsors"
	OverlayOrganizing      OverlayType = "organizing"
	OverlayMediaPartners   OverlayType = "media_partners"
	OverlayTournamentLogos OverlayType = "tournament_logos"
)

// Valid reports whether t is a known overlay type.
func (t OverlayType) Valid() bool {
	switch t {
	case OverlaySponsors, OverlayOrganizing, OverlayMediaPartners, OverlayTournamentLogos:
		return true
	}
	return false
}

// DisplaySetting is one overlay row, keyed by (AccessCode, Type, CodeLogo).
type DisplaySetting struct {
	AccessCode string      `json:"access_code"`
	Type       OverlayType `json:"type"`
	CodeLogo   string      `json:"code_logo"`
	Name       string      `json:"name"`
	URL        string      `json:"url"`
	Position   int         `json:"position"`
	CreatedAt  time.Time   `json:"created_at"`
}
