package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mcdev12/livescore/go/internal/models"
	"github.com/mcdev12/livescore/go/internal/room"
)

// mutationEvents maps inbound event names to their mutation kind.
var mutationEvents = map[string]room.Kind{
	"score_update":            room.KindScore,
	"team_name_update":        room.KindTeamName,
	"team_logo_update":        room.KindTeamLogo,
	"statistics_update":       room.KindStatistics,
	"card_update":             room.KindCard,
	"update_card":             room.KindCard,
	"lineup_update":           room.KindLineup,
	"penalty_update":          room.KindPenalty,
	"marquee_update":          room.KindMarquee,
	"display_settings_update": room.KindDisplaySettings,
	"sponsors_update":         room.KindSponsors,
	"organizing_update":       room.KindOrganizing,
	"media_partners_update":   room.KindMediaPartners,
	"tournament_logos_update": room.KindTournamentLogos,
	"view_update":             room.KindView,
	"poster_update":           room.KindPoster,
	"template_update":         room.KindTemplate,
}

// MutationKind reports whether event is a mutation and which kind.
func MutationKind(event string) (room.Kind, bool) {
	k, ok := mutationEvents[event]
	return k, ok
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", room.ErrInvalidPayload, fmt.Sprintf(format, args...))
}

func unmarshal(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return invalidf("missing data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return invalidf("malformed data: %v", err)
	}
	return nil
}

// parseSide accepts home/away and the teamA/teamB aliases.
func parseSide(s string) (room.Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "home", "teama", "a":
		return room.SideHome, nil
	case "away", "teamb", "b":
		return room.SideAway, nil
	}
	return "", invalidf("unknown team %q", s)
}

// sidePair decodes {"home":x,"away":y} or {"teamA":x,"teamB":y}.
type sidePair[T any] struct {
	Home  *T `json:"home"`
	Away  *T `json:"away"`
	TeamA *T `json:"teamA"`
	TeamB *T `json:"teamB"`
}

func (p sidePair[T]) resolve() (*T, *T) {
	home, away := p.Home, p.Away
	if home == nil {
		home = p.TeamA
	}
	if away == nil {
		away = p.TeamB
	}
	return home, away
}

type cardPayload struct {
	Team   string `json:"team"`
	Player string `json:"player"`
	Type   string `json:"type"`
	Minute int    `json:"minute"`
}

type lineupPayload struct {
	Team    string        `json:"team"`
	Players []room.Player `json:"players"`
}

type kickPayload struct {
	Team   string `json:"team"`
	Player string `json:"player"`
	Result string `json:"result"`
}

type penaltyPayload struct {
	Active *bool        `json:"active"`
	Reset  bool         `json:"reset"`
	Kick   *kickPayload `json:"kick"`
}

type marqueePayload struct {
	Text    *string `json:"text"`
	Enabled *bool   `json:"enabled"`
	Speed   *int    `json:"speed"`
	Mode    *string `json:"mode"`
}

type displayPayload struct {
	ShowScore    *bool   `json:"show_score"`
	ShowClock    *bool   `json:"show_clock"`
	ShowStats    *bool   `json:"show_stats"`
	ShowCards    *bool   `json:"show_cards"`
	ShowLineups  *bool   `json:"show_lineups"`
	ShowOverlays *bool   `json:"show_overlays"`
	Theme        *string `json:"theme"`
	PrimaryColor *string `json:"primary_color"`
}

type overlayPayload struct {
	Behavior string            `json:"behavior"`
	Item     *room.OverlayItem `json:"item"`
	Index    *int              `json:"index"`
	CodeLogo string            `json:"code_logo"`
	Name     string            `json:"name"`
	URL      string            `json:"url"`
}

type selectionPayload struct {
	Value    *string `json:"value"`
	View     *string `json:"view"`
	Poster   *string `json:"poster"`
	Template *string `json:"template"`
}

var overlayLists = map[room.Kind]models.OverlayType{
	room.KindSponsors:        models.OverlaySponsors,
	room.KindOrganizing:      models.OverlayOrganizing,
	room.KindMediaPartners:   models.OverlayMediaPartners,
	room.KindTournamentLogos: models.OverlayTournamentLogos,
}

// decodeMutation turns a wire payload into its typed mutation.
func decodeMutation(kind room.Kind, data json.RawMessage) (room.Mutation, error) {
	switch kind {
	case room.KindScore:
		var p sidePair[int]
		if err := unmarshal(data, &p); err != nil {
			return nil, err
		}
		home, away := p.resolve()
		return room.ScoreUpdate{Home: home, Away: away}, nil

	case room.KindTeamName:
		var p sidePair[string]
		if err := unmarshal(data, &p); err != nil {
			return nil, err
		}
		home, away := p.resolve()
		return room.TeamNameUpdate{Home: home, Away: away}, nil

	case room.KindTeamLogo:
		var p sidePair[string]
		if err := unmarshal(data, &p); err != nil {
			return nil, err
		}
		home, away := p.resolve()
		return room.TeamLogoUpdate{Home: home, Away: away}, nil

	case room.KindStatistics:
		var p sidePair[room.TeamStatsPatch]
		if err := unmarshal(data, &p); err != nil {
			return nil, err
		}
		home, away := p.resolve()
		return room.StatisticsUpdate{Home: home, Away: away}, nil

	case room.KindCard:
		var p cardPayload
		if err := unmarshal(data, &p); err != nil {
			return nil, err
		}
		side, err := parseSide(p.Team)
		if err != nil {
			return nil, err
		}
		return room.CardIssue{
			Team:   side,
			Player: p.Player,
			Type:   room.CardType(strings.ToLower(p.Type)),
			Minute: p.Minute,
		}, nil

	case room.KindLineup:
		var p lineupPayload
		if err := unmarshal(data, &p); err != nil {
			return nil, err
		}
		side, err := parseSide(p.Team)
		if err != nil {
			return nil, err
		}
		return room.LineupUpdate{Team: side, Players: p.Players}, nil

	case room.KindPenalty:
		var p penaltyPayload
		if err := unmarshal(data, &p); err != nil {
			return nil, err
		}
		m := room.PenaltyUpdate{Active: p.Active, Reset: p.Reset}
		if p.Kick != nil {
			side, err := parseSide(p.Kick.Team)
			if err != nil {
				return nil, err
			}
			m.Kick = &room.PenaltyKickInput{
				Team:   side,
				Player: p.Kick.Player,
				Result: room.PenaltyResult(strings.ToLower(p.Kick.Result)),
			}
		}
		return m, nil

	case room.KindMarquee:
		var p marqueePayload
		if err := unmarshal(data, &p); err != nil {
			return nil, err
		}
		return room.MarqueeUpdate{Text: p.Text, Enabled: p.Enabled, Speed: p.Speed, Mode: p.Mode}, nil

	case room.KindDisplaySettings:
		var p displayPayload
		if err := unmarshal(data, &p); err != nil {
			return nil, err
		}
		return room.DisplaySettingsUpdate{
			ShowScore:    p.ShowScore,
			ShowClock:    p.ShowClock,
			ShowStats:    p.ShowStats,
			ShowCards:    p.ShowCards,
			ShowLineups:  p.ShowLineups,
			ShowOverlays: p.ShowOverlays,
			Theme:        p.Theme,
			PrimaryColor: p.PrimaryColor,
		}, nil

	case room.KindSponsors, room.KindOrganizing, room.KindMediaPartners, room.KindTournamentLogos:
		var p overlayPayload
		if err := unmarshal(data, &p); err != nil {
			return nil, err
		}
		item := room.OverlayItem{CodeLogo: p.CodeLogo, Name: p.Name, URL: p.URL}
		if p.Item != nil {
			item = *p.Item
		}
		return room.OverlayUpdate{
			List:     overlayLists[kind],
			Behavior: room.Behavior(strings.ToLower(p.Behavior)),
			Item:     item,
			Index:    p.Index,
		}, nil

	case room.KindView, room.KindPoster, room.KindTemplate:
		var p selectionPayload
		if err := unmarshal(data, &p); err != nil {
			return nil, err
		}
		slot := room.SelectionSlot(kind)
		value := p.Value
		if value == nil {
			switch slot {
			case room.SlotView:
				value = p.View
			case room.SlotPoster:
				value = p.Poster
			case room.SlotTemplate:
				value = p.Template
			}
		}
		if value == nil {
			return nil, invalidf("missing %s", slot)
		}
		return room.SelectionUpdate{Slot: slot, Value: *value}, nil
	}
	return nil, invalidf("unknown mutation %q", kind)
}
