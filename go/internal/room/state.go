package room

import (
	"time"

	"github.com/mcdev12/livescore/go/internal/models"
)

// Side identifies one of the two teams.
type Side string

const (
	SideHome Side = "home"
	SideAway Side = "away"
)

// Valid reports whether s names a team.
func (s Side) Valid() bool { return s == SideHome || s == SideAway }

// CurrentState is the live match and display aggregate broadcast to a room.
type CurrentState struct {
	Teams      Teams           `json:"teams"`
	Clock      ClockView       `json:"clock"`
	Statistics Statistics      `json:"statistics"`
	Cards      []Card          `json:"cards"`
	Lineups    Lineups         `json:"lineups"`
	Display    DisplaySettings `json:"display"`
	Selection  Selection       `json:"selection"`
	Penalty    PenaltyShootout `json:"penalty"`
	Marquee    Marquee         `json:"marquee"`
	Overlays   Overlays        `json:"overlays"`
}

// Team holds one side's identity and score.
type Team struct {
	Name  string `json:"name"`
	Logo  string `json:"logo"`
	Score int    `json:"score"`
}

// Teams holds home and away.
type Teams struct {
	Home Team `json:"home"`
	Away Team `json:"away"`
}

func (t *Teams) side(s Side) *Team {
	if s == SideAway {
		return &t.Away
	}
	return &t.Home
}

// ClockView is the clock as rendered by displays.
type ClockView struct {
	Display string `json:"display"`
	Running bool   `json:"running"`
}

// TeamStats are the per-team statistics counters.
type TeamStats struct {
	Possession    int `json:"possession"`
	Shots         int `json:"shots"`
	ShotsOnTarget int `json:"shots_on_target"`
	Corners       int `json:"corners"`
	Fouls         int `json:"fouls"`
	Offsides      int `json:"offsides"`
	Saves         int `json:"saves"`
	YellowCards   int `json:"yellow_cards"`
	RedCards      int `json:"red_cards"`
}

// Statistics holds both teams' counters.
type Statistics struct {
	Home TeamStats `json:"home"`
	Away TeamStats `json:"away"`
}

func (s *Statistics) side(sd Side) *TeamStats {
	if sd == SideAway {
		return &s.Away
	}
	return &s.Home
}

// CardType is the color of a disciplinary card.
type CardType string

const (
	CardYellow CardType = "yellow"
	CardRed    CardType = "red"
)

// Card is one issued card.
type Card struct {
	ID       string    `json:"id"`
	Team     Side      `json:"team"`
	Player   string    `json:"player"`
	Type     CardType  `json:"type"`
	Minute   int       `json:"minute"`
	IssuedAt time.Time `json:"issued_at"`
}

// Player is one lineup entry.
type Player struct {
	Number   int    `json:"number"`
	Name     string `json:"name"`
	Position string `json:"position,omitempty"`
	Starter  bool   `json:"starter"`
}

// Lineups holds both teams' lineups.
type Lineups struct {
	Home []Player `json:"home"`
	Away []Player `json:"away"`
}

// DisplaySettings are the overlay visibility flags and theme.
type DisplaySettings struct {
	ShowScore    bool   `json:"show_score"`
	ShowClock    bool   `json:"show_clock"`
	ShowStats    bool   `json:"show_stats"`
	ShowCards    bool   `json:"show_cards"`
	ShowLineups  bool   `json:"show_lineups"`
	ShowOverlays bool   `json:"show_overlays"`
	Theme        string `json:"theme"`
	PrimaryColor string `json:"primary_color"`
}

// DefaultDisplaySettings is what a room starts with when nothing is stored.
func DefaultDisplaySettings() DisplaySettings {
	return DisplaySettings{
		ShowScore:    true,
		ShowClock:    true,
		ShowOverlays: true,
		Theme:        "default",
	}
}

// Selection is the currently selected view, poster and template.
type Selection struct {
	View     string `json:"view"`
	Poster   string `json:"poster"`
	Template string `json:"template"`
}

// PenaltyResult is the outcome of one shootout kick.
type PenaltyResult string

const (
	PenaltyScored PenaltyResult = "scored"
	PenaltyMissed PenaltyResult = "missed"
)

// PenaltyKick is one recorded shootout kick.
type PenaltyKick struct {
	Order  int           `json:"order"`
	Player string        `json:"player"`
	Result PenaltyResult `json:"result"`
}

// PenaltyShootout is the penalty shootout sub-state.
type PenaltyShootout struct {
	Active    bool          `json:"active"`
	Home      []PenaltyKick `json:"home"`
	Away      []PenaltyKick `json:"away"`
	HomeGoals int           `json:"home_goals"`
	AwayGoals int           `json:"away_goals"`
}

func (p *PenaltyShootout) recount() {
	p.HomeGoals, p.AwayGoals = 0, 0
	for _, k := range p.Home {
		if k.Result == PenaltyScored {
			p.HomeGoals++
		}
	}
	for _, k := range p.Away {
		if k.Result == PenaltyScored {
			p.AwayGoals++
		}
	}
}

// Marquee is the scrolling ticker sub-state.
type Marquee struct {
	Text    string `json:"text"`
	Enabled bool   `json:"enabled"`
	Speed   int    `json:"speed"`
	Mode    string `json:"mode"`
}

// OverlayItem is one logo in an overlay list.
type OverlayItem struct {
	CodeLogo string `json:"code_logo"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Position int    `json:"position"`
}

// Overlays holds every overlay list.
type Overlays struct {
	Sponsors        []OverlayItem `json:"sponsors"`
	Organizing      []OverlayItem `json:"organizing"`
	MediaPartners   []OverlayItem `json:"media_partners"`
	TournamentLogos []OverlayItem `json:"tournament_logos"`
}

// List returns a pointer to the list for the given overlay type.
func (o *Overlays) List(t models.OverlayType) *[]OverlayItem {
	switch t {
	case models.OverlaySponsors:
		return &o.Sponsors
	case models.OverlayOrganizing:
		return &o.Organizing
	case models.OverlayMediaPartners:
		return &o.MediaPartners
	case models.OverlayTournamentLogos:
		return &o.TournamentLogos
	}
	return nil
}

// NewCurrentState returns an empty live state.
func NewCurrentState() CurrentState {
	return CurrentState{
		Clock:   ClockView{Display: "00:00"},
		Cards:   []Card{},
		Display: DefaultDisplaySettings(),
		Lineups: Lineups{Home: []Player{}, Away: []Player{}},
		Penalty: PenaltyShootout{Home: []PenaltyKick{}, Away: []PenaltyKick{}},
		Overlays: Overlays{
			Sponsors:        []OverlayItem{},
			Organizing:      []OverlayItem{},
			MediaPartners:   []OverlayItem{},
			TournamentLogos: []OverlayItem{},
		},
	}
}

// DisplayDocument is the JSON stored in the match display column.
type DisplayDocument struct {
	Settings  DisplaySettings `json:"settings"`
	Selection Selection       `json:"selection"`
}

func cloneSlice[T any](s []T) []T {
	out := make([]T, len(s))
	copy(out, s)
	return out
}

// Clone returns a deep copy safe to hand outside the room goroutine.
func (s CurrentState) Clone() CurrentState {
	c := s
	c.Cards = cloneSlice(s.Cards)
	c.Lineups.Home = cloneSlice(s.Lineups.Home)
	c.Lineups.Away = cloneSlice(s.Lineups.Away)
	c.Penalty.Home = cloneSlice(s.Penalty.Home)
	c.Penalty.Away = cloneSlice(s.Penalty.Away)
	c.Overlays.Sponsors = cloneSlice(s.Overlays.Sponsors)
	c.Overlays.Organizing = cloneSlice(s.Overlays.Organizing)
	c.Overlays.MediaPartners = cloneSlice(s.Overlays.MediaPartners)
	c.Overlays.TournamentLogos = cloneSlice(s.Overlays.TournamentLogos)
	return c
}
