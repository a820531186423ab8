package room

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/livescore/go/internal/models"
)

// Kind names a mutation and the noun used for its broadcast event.
type Kind string

const (
	KindScore           Kind = "score"
	KindTeamName        Kind = "team_name"
	KindTeamLogo        Kind = "team_logo"
	KindStatistics      Kind = "statistics"
	KindCard            Kind = "card"
	KindLineup          Kind = "lineup"
	KindPenalty         Kind = "penalty"
	KindMarquee         Kind = "marquee"
	KindDisplaySettings Kind = "display_settings"
	KindSponsors        Kind = "sponsors"
	KindOrganizing      Kind = "organizing"
	KindMediaPartners   Kind = "media_partners"
	KindTournamentLogos Kind = "tournament_logos"
	KindView            Kind = "view"
	KindPoster          Kind = "poster"
	KindTemplate        Kind = "template"
)

// UpdatedEvent is the event broadcast after a successful apply.
func (k Kind) UpdatedEvent() string { return string(k) + "_updated" }

// ErrorEvent is the event sent to the sender when the mutation is rejected.
func (k Kind) ErrorEvent() string { return string(k) + "_error" }

// Mutation is one typed change to a room's CurrentState.
type Mutation interface {
	Kind() Kind
	Validate() error
	// Apply merges the mutation into s. Apply is only called after Validate
	// succeeded and must leave fields it does not name untouched.
	Apply(s *CurrentState, at time.Time) (Result, error)
}

// Discrete mutations are guarded against duplicate submissions.
type Discrete interface {
	Fingerprint() string
}

// Result carries what a mutation changed.
type Result struct {
	// Data is the authoritative slice of CurrentState sent to the room.
	Data any
	// Patch holds the match columns to write behind.
	Patch models.MatchPatch
	// Overlay is set for overlay list mutations.
	Overlay *OverlayChange
}

// Behavior selects the operation of an overlay mutation.
type Behavior string

const (
	BehaviorAdd    Behavior = "add"
	BehaviorUpdate Behavior = "update"
	BehaviorRemove Behavior = "remove"
)

// OverlayChange describes the durable row operation for an overlay mutation.
type OverlayChange struct {
	Behavior     Behavior
	Type         models.OverlayType
	PrevCodeLogo string
	Item         OverlayItem
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPayload, fmt.Sprintf(format, args...))
}

func rawJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// ScoresView is the score_updated payload.
type ScoresView struct {
	Scores struct {
		Home int `json:"home"`
		Away int `json:"away"`
	} `json:"scores"`
}

func scoresOf(s *CurrentState) ScoresView {
	var v ScoresView
	v.Scores.Home = s.Teams.Home.Score
	v.Scores.Away = s.Teams.Away.Score
	return v
}

// ScoreUpdate sets one or both scores.
type ScoreUpdate struct {
	Home *int
	Away *int
}

func (ScoreUpdate) Kind() Kind { return KindScore }

func (m ScoreUpdate) Validate() error {
	if m.Home == nil && m.Away == nil {
		return invalid("no score given")
	}
	if (m.Home != nil && *m.Home < 0) || (m.Away != nil && *m.Away < 0) {
		return invalid("score must be non-negative")
	}
	return nil
}

func (m ScoreUpdate) Apply(s *CurrentState, _ time.Time) (Result, error) {
	var patch models.MatchPatch
	if m.Home != nil {
		s.Teams.Home.Score = *m.Home
		patch.HomeScore = m.Home
	}
	if m.Away != nil {
		s.Teams.Away.Score = *m.Away
		patch.AwayScore = m.Away
	}
	return Result{Data: scoresOf(s), Patch: patch}, nil
}

// TeamNameUpdate renames one or both teams.
type TeamNameUpdate struct {
	Home *string
	Away *string
}

func (TeamNameUpdate) Kind() Kind { return KindTeamName }

func (m TeamNameUpdate) Validate() error {
	if m.Home == nil && m.Away == nil {
		return invalid("no team name given")
	}
	if (m.Home != nil && strings.TrimSpace(*m.Home) == "") || (m.Away != nil && strings.TrimSpace(*m.Away) == "") {
		return invalid("team name must not be empty")
	}
	return nil
}

func (m TeamNameUpdate) Apply(s *CurrentState, _ time.Time) (Result, error) {
	var patch models.MatchPatch
	if m.Home != nil {
		s.Teams.Home.Name = strings.TrimSpace(*m.Home)
		patch.HomeName = &s.Teams.Home.Name
	}
	if m.Away != nil {
		s.Teams.Away.Name = strings.TrimSpace(*m.Away)
		patch.AwayName = &s.Teams.Away.Name
	}
	data := map[string]any{"names": map[string]string{"home": s.Teams.Home.Name, "away": s.Teams.Away.Name}}
	return Result{Data: data, Patch: patch}, nil
}

// TeamLogoUpdate replaces one or both team logos.
type TeamLogoUpdate struct {
	Home *string
	Away *string
}

func (TeamLogoUpdate) Kind() Kind { return KindTeamLogo }

func (m TeamLogoUpdate) Validate() error {
	if m.Home == nil && m.Away == nil {
		return invalid("no team logo given")
	}
	return nil
}

func (m TeamLogoUpdate) Apply(s *CurrentState, _ time.Time) (Result, error) {
	var patch models.MatchPatch
	if m.Home != nil {
		s.Teams.Home.Logo = *m.Home
		patch.HomeLogo = m.Home
	}
	if m.Away != nil {
		s.Teams.Away.Logo = *m.Away
		patch.AwayLogo = m.Away
	}
	data := map[string]any{"logos": map[string]string{"home": s.Teams.Home.Logo, "away": s.Teams.Away.Logo}}
	return Result{Data: data, Patch: patch}, nil
}

// TeamStatsPatch names the counters to overwrite for one team.
type TeamStatsPatch struct {
	Possession    *int `json:"possession,omitempty"`
	Shots         *int `json:"shots,omitempty"`
	ShotsOnTarget *int `json:"shots_on_target,omitempty"`
	Corners       *int `json:"corners,omitempty"`
	Fouls         *int `json:"fouls,omitempty"`
	Offsides      *int `json:"offsides,omitempty"`
	Saves         *int `json:"saves,omitempty"`
	YellowCards   *int `json:"yellow_cards,omitempty"`
	RedCards      *int `json:"red_cards,omitempty"`
}

func (p *TeamStatsPatch) fields() []*int {
	return []*int{p.Possession, p.Shots, p.ShotsOnTarget, p.Corners, p.Fouls, p.Offsides, p.Saves, p.YellowCards, p.RedCards}
}

func (p *TeamStatsPatch) applyTo(t *TeamStats) {
	set := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	set(&t.Possession, p.Possession)
	set(&t.Shots, p.Shots)
	set(&t.ShotsOnTarget, p.ShotsOnTarget)
	set(&t.Corners, p.Corners)
	set(&t.Fouls, p.Fouls)
	set(&t.Offsides, p.Offsides)
	set(&t.Saves, p.Saves)
	set(&t.YellowCards, p.YellowCards)
	set(&t.RedCards, p.RedCards)
}

// StatisticsUpdate overwrites statistics counters.
type StatisticsUpdate struct {
	Home *TeamStatsPatch
	Away *TeamStatsPatch
}

func (StatisticsUpdate) Kind() Kind { return KindStatistics }

func (m StatisticsUpdate) Validate() error {
	if m.Home == nil && m.Away == nil {
		return invalid("no statistics given")
	}
	for _, p := range []*TeamStatsPatch{m.Home, m.Away} {
		if p == nil {
			continue
		}
		for _, v := range p.fields() {
			if v != nil && *v < 0 {
				return invalid("statistics must be non-negative")
			}
		}
		if p.Possession != nil && *p.Possession > 100 {
			return invalid("possession must be a percentage")
		}
	}
	return nil
}

func (m StatisticsUpdate) Apply(s *CurrentState, _ time.Time) (Result, error) {
	if m.Home != nil {
		m.Home.applyTo(&s.Statistics.Home)
	}
	if m.Away != nil {
		m.Away.applyTo(&s.Statistics.Away)
	}
	return Result{
		Data:  map[string]any{"statistics": s.Statistics},
		Patch: models.MatchPatch{Statistics: rawJSON(s.Statistics)},
	}, nil
}

// CardIssue records a card for a player.
type CardIssue struct {
	Team   Side
	Player string
	Type   CardType
	Minute int
}

func (CardIssue) Kind() Kind { return KindCard }

func (m CardIssue) Validate() error {
	if !m.Team.Valid() {
		return invalid("team must be home or away")
	}
	if strings.TrimSpace(m.Player) == "" {
		return invalid("player is required")
	}
	if m.Type != CardYellow && m.Type != CardRed {
		return invalid("card type must be yellow or red")
	}
	if m.Minute < 0 {
		return invalid("minute must be non-negative")
	}
	return nil
}

func (m CardIssue) Fingerprint() string {
	return fmt.Sprintf("card|%s|%s|%s|%d", m.Team, strings.ToLower(strings.TrimSpace(m.Player)), m.Type, m.Minute)
}

func (m CardIssue) Apply(s *CurrentState, at time.Time) (Result, error) {
	s.Cards = append(s.Cards, Card{
		ID:       uuid.NewString(),
		Team:     m.Team,
		Player:   strings.TrimSpace(m.Player),
		Type:     m.Type,
		Minute:   m.Minute,
		IssuedAt: at,
	})
	stats := s.Statistics.side(m.Team)
	if m.Type == CardRed {
		stats.RedCards++
	} else {
		stats.YellowCards++
	}
	return Result{
		Data: map[string]any{"cards": s.Cards, "statistics": s.Statistics},
		Patch: models.MatchPatch{
			Cards:      rawJSON(s.Cards),
			Statistics: rawJSON(s.Statistics),
		},
	}, nil
}

// LineupUpdate replaces one team's lineup.
type LineupUpdate struct {
	Team    Side
	Players []Player
}

func (LineupUpdate) Kind() Kind { return KindLineup }

func (m LineupUpdate) Validate() error {
	if !m.Team.Valid() {
		return invalid("team must be home or away")
	}
	seen := make(map[int]bool, len(m.Players))
	for _, p := range m.Players {
		if strings.TrimSpace(p.Name) == "" {
			return invalid("player name is required")
		}
		if p.Number > 0 && seen[p.Number] {
			return invalid("duplicate shirt number %d", p.Number)
		}
		seen[p.Number] = true
	}
	return nil
}

func (m LineupUpdate) Apply(s *CurrentState, _ time.Time) (Result, error) {
	players := make([]Player, len(m.Players))
	copy(players, m.Players)
	if m.Team == SideAway {
		s.Lineups.Away = players
	} else {
		s.Lineups.Home = players
	}
	return Result{
		Data:  map[string]any{"lineups": s.Lineups},
		Patch: models.MatchPatch{Lineups: rawJSON(s.Lineups)},
	}, nil
}

// PenaltyKickInput is one kick to record in a shootout.
type PenaltyKickInput struct {
	Team   Side
	Player string
	Result PenaltyResult
}

// PenaltyUpdate changes the penalty shootout sub-state.
type PenaltyUpdate struct {
	Active *bool
	Reset  bool
	Kick   *PenaltyKickInput
}

func (PenaltyUpdate) Kind() Kind { return KindPenalty }

func (m PenaltyUpdate) Validate() error {
	if m.Active == nil && !m.Reset && m.Kick == nil {
		return invalid("no penalty change given")
	}
	if m.Kick != nil {
		if !m.Kick.Team.Valid() {
			return invalid("team must be home or away")
		}
		if m.Kick.Result != PenaltyScored && m.Kick.Result != PenaltyMissed {
			return invalid("kick result must be scored or missed")
		}
	}
	return nil
}

// Fingerprint only guards kick submissions; toggles are idempotent already.
func (m PenaltyUpdate) Fingerprint() string {
	if m.Kick == nil {
		return ""
	}
	return fmt.Sprintf("penalty|%s|%s|%s", m.Kick.Team, strings.ToLower(strings.TrimSpace(m.Kick.Player)), m.Kick.Result)
}

func (m PenaltyUpdate) Apply(s *CurrentState, _ time.Time) (Result, error) {
	p := &s.Penalty
	if m.Reset {
		p.Home = []PenaltyKick{}
		p.Away = []PenaltyKick{}
	}
	if m.Active != nil {
		p.Active = *m.Active
	}
	if m.Kick != nil {
		kicks := &p.Home
		if m.Kick.Team == SideAway {
			kicks = &p.Away
		}
		*kicks = append(*kicks, PenaltyKick{
			Order:  len(*kicks) + 1,
			Player: strings.TrimSpace(m.Kick.Player),
			Result: m.Kick.Result,
		})
	}
	p.recount()
	return Result{
		Data:  map[string]any{"penalty": *p},
		Patch: models.MatchPatch{Penalty: rawJSON(*p)},
	}, nil
}

// MarqueeUpdate changes the ticker.
type MarqueeUpdate struct {
	Text    *string
	Enabled *bool
	Speed   *int
	Mode    *string
}

func (MarqueeUpdate) Kind() Kind { return KindMarquee }

func (m MarqueeUpdate) Validate() error {
	if m.Text == nil && m.Enabled == nil && m.Speed == nil && m.Mode == nil {
		return invalid("no marquee change given")
	}
	if m.Speed != nil && *m.Speed < 0 {
		return invalid("speed must be non-negative")
	}
	return nil
}

func (m MarqueeUpdate) Apply(s *CurrentState, _ time.Time) (Result, error) {
	if m.Text != nil {
		s.Marquee.Text = *m.Text
	}
	if m.Enabled != nil {
		s.Marquee.Enabled = *m.Enabled
	}
	if m.Speed != nil {
		s.Marquee.Speed = *m.Speed
	}
	if m.Mode != nil {
		s.Marquee.Mode = *m.Mode
	}
	return Result{
		Data:  map[string]any{"marquee": s.Marquee},
		Patch: models.MatchPatch{Marquee: rawJSON(s.Marquee)},
	}, nil
}

// DisplaySettingsUpdate toggles display flags or the theme.
type DisplaySettingsUpdate struct {
	ShowScore    *bool
	ShowClock    *bool
	ShowStats    *bool
	ShowCards    *bool
	ShowLineups  *bool
	ShowOverlays *bool
	Theme        *string
	PrimaryColor *string
}

func (DisplaySettingsUpdate) Kind() Kind { return KindDisplaySettings }

func (m DisplaySettingsUpdate) Validate() error {
	if m.ShowScore == nil && m.ShowClock == nil && m.ShowStats == nil && m.ShowCards == nil &&
		m.ShowLineups == nil && m.ShowOverlays == nil && m.Theme == nil && m.PrimaryColor == nil {
		return invalid("no display setting given")
	}
	return nil
}

func (m DisplaySettingsUpdate) Apply(s *CurrentState, _ time.Time) (Result, error) {
	d := &s.Display
	for _, f := range []struct {
		dst *bool
		src *bool
	}{
		{&d.ShowScore, m.ShowScore},
		{&d.ShowClock, m.ShowClock},
		{&d.ShowStats, m.ShowStats},
		{&d.ShowCards, m.ShowCards},
		{&d.ShowLineups, m.ShowLineups},
		{&d.ShowOverlays, m.ShowOverlays},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
	if m.Theme != nil {
		d.Theme = *m.Theme
	}
	if m.PrimaryColor != nil {
		d.PrimaryColor = *m.PrimaryColor
	}
	return Result{
		Data:  map[string]any{"display": s.Display},
		Patch: models.MatchPatch{Display: rawJSON(DisplayDocument{Settings: s.Display, Selection: s.Selection})},
	}, nil
}

// SelectionSlot names which selection a SelectionUpdate changes.
type SelectionSlot string

const (
	SlotView     SelectionSlot = "view"
	SlotPoster   SelectionSlot = "poster"
	SlotTemplate SelectionSlot = "template"
)

// SelectionUpdate selects a view, poster or template.
type SelectionUpdate struct {
	Slot  SelectionSlot
	Value string
}

func (m SelectionUpdate) Kind() Kind {
	switch m.Slot {
	case SlotPoster:
		return KindPoster
	case SlotTemplate:
		return KindTemplate
	}
	return KindView
}

func (m SelectionUpdate) Validate() error {
	switch m.Slot {
	case SlotView, SlotPoster, SlotTemplate:
	default:
		return invalid("unknown selection %q", m.Slot)
	}
	if m.Slot == SlotView && strings.TrimSpace(m.Value) == "" {
		return invalid("view must not be empty")
	}
	return nil
}

func (m SelectionUpdate) Apply(s *CurrentState, _ time.Time) (Result, error) {
	switch m.Slot {
	case SlotView:
		s.Selection.View = m.Value
	case SlotPoster:
		s.Selection.Poster = m.Value
	case SlotTemplate:
		s.Selection.Template = m.Value
	}
	return Result{
		Data:  map[string]any{"selection": s.Selection},
		Patch: models.MatchPatch{Display: rawJSON(DisplayDocument{Settings: s.Display, Selection: s.Selection})},
	}, nil
}

// OverlayUpdate adds, updates or removes an entry of one overlay list.
type OverlayUpdate struct {
	List     models.OverlayType
	Behavior Behavior
	Item     OverlayItem
	// Index addresses the entry positionally for update and remove.
	// When nil the entry is found by Item.CodeLogo.
	Index *int
}

func (m OverlayUpdate) Kind() Kind {
	switch m.List {
	case models.OverlayOrganizing:
		return KindOrganizing
	case models.OverlayMediaPartners:
		return KindMediaPartners
	case models.OverlayTournamentLogos:
		return KindTournamentLogos
	}
	return KindSponsors
}

func (m OverlayUpdate) Validate() error {
	if !m.List.Valid() {
		return invalid("unknown overlay list %q", m.List)
	}
	switch m.Behavior {
	case BehaviorAdd:
		if strings.TrimSpace(m.Item.CodeLogo) == "" {
			return invalid("code_logo is required")
		}
		if strings.TrimSpace(m.Item.URL) == "" {
			return invalid("url is required")
		}
	case BehaviorUpdate, BehaviorRemove:
		if m.Index == nil && strings.TrimSpace(m.Item.CodeLogo) == "" {
			return invalid("index or code_logo is required")
		}
		if m.Index != nil && *m.Index < 0 {
			return invalid("index must be non-negative")
		}
	default:
		return invalid("behavior must be add, update or remove")
	}
	return nil
}

// Fingerprint guards repeated adds of the same logo.
func (m OverlayUpdate) Fingerprint() string {
	if m.Behavior != BehaviorAdd {
		return ""
	}
	return fmt.Sprintf("overlay|%s|add|%s", m.List, m.Item.CodeLogo)
}

func (m OverlayUpdate) locate(items []OverlayItem) int {
	if m.Index != nil {
		if *m.Index < len(items) {
			return *m.Index
		}
		return -1
	}
	for i, it := range items {
		if it.CodeLogo == m.Item.CodeLogo {
			return i
		}
	}
	return -1
}

func (m OverlayUpdate) Apply(s *CurrentState, _ time.Time) (Result, error) {
	list := s.Overlays.List(m.List)
	change := &OverlayChange{Behavior: m.Behavior, Type: m.List}

	switch m.Behavior {
	case BehaviorAdd:
		for _, it := range *list {
			if it.CodeLogo == m.Item.CodeLogo {
				return Result{}, invalid("%s already contains %q", m.List, m.Item.CodeLogo)
			}
		}
		item := m.Item
		item.Position = len(*list)
		*list = append(*list, item)
		change.Item = item

	case BehaviorUpdate:
		i := m.locate(*list)
		if i < 0 {
			return Result{}, invalid("%s entry not found", m.List)
		}
		for j, it := range *list {
			if j != i && m.Item.CodeLogo != "" && it.CodeLogo == m.Item.CodeLogo {
				return Result{}, invalid("%s already contains %q", m.List, m.Item.CodeLogo)
			}
		}
		current := (*list)[i]
		change.PrevCodeLogo = current.CodeLogo
		if m.Item.CodeLogo != "" {
			current.CodeLogo = m.Item.CodeLogo
		}
		if m.Item.Name != "" {
			current.Name = m.Item.Name
		}
		if m.Item.URL != "" {
			current.URL = m.Item.URL
		}
		(*list)[i] = current
		change.Item = current

	case BehaviorRemove:
		i := m.locate(*list)
		if i < 0 {
			return Result{}, invalid("%s entry not found", m.List)
		}
		change.PrevCodeLogo = (*list)[i].CodeLogo
		change.Item = (*list)[i]
		*list = append((*list)[:i], (*list)[i+1:]...)
		for j := i; j < len(*list); j++ {
			(*list)[j].Position = j
		}
	}

	data := map[string]any{
		"list":     m.List,
		"behavior": m.Behavior,
		"items":    *list,
	}
	return Result{Data: data, Overlay: change}, nil
}
