package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mcdev12/livescore/go/internal/matchclock"
	"github.com/mcdev12/livescore/go/internal/models"
	"github.com/mcdev12/livescore/go/internal/room"
	"github.com/mcdev12/livescore/go/internal/store"
	"github.com/rs/zerolog/log"
)

// snapshot is the cached form of a room's live state.
type snapshot struct {
	Current room.CurrentState   `json:"current"`
	Timer   matchclock.Snapshot `json:"timer"`
}

func encodeSnapshot(s *room.State) (json.RawMessage, error) {
	return json.Marshal(snapshot{Current: s.Current, Timer: s.Timer.Snapshot()})
}

// load is the registry loader: it checks the code is still live, ensures the
// durable room session and builds the initial state from cache or store.
func (e *Engine) load(ctx context.Context, code string) (*room.Seed, error) {
	ac, err := e.store.GetAccessCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCodeUnavailable, code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get access code: %w", err)
	}
	now := e.clock.Now()
	if !ac.Status.Joinable() || (ac.ExpiredAt != nil && !now.Before(*ac.ExpiredAt)) {
		return nil, fmt.Errorf("%w: %s is %s", ErrCodeUnavailable, code, ac.Status)
	}

	rs, err := e.store.EnsureRoomSession(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure room session: %w", err)
	}
	if rs.Status == models.RoomSessionStatusExpired || (rs.ExpiredAt != nil && !now.Before(*rs.ExpiredAt)) {
		return nil, fmt.Errorf("%w: session for %s expired", ErrCodeUnavailable, code)
	}

	seed := &room.Seed{SessionDeadline: rs.ExpiredAt, CodeDeadline: ac.ExpiredAt}
	if e.loadCached(ctx, code, seed) {
		return seed, nil
	}

	match, err := e.store.GetMatch(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	settings, err := e.store.ListDisplaySettings(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to list display settings: %w", err)
	}
	seed.Current = currentFromMatch(match, settings)
	seed.Timer = timerFromMatch(match)
	return seed, nil
}

func (e *Engine) loadCached(ctx context.Context, code string, seed *room.Seed) bool {
	if e.cache == nil {
		return false
	}
	raw, ok, err := e.cache.Get(ctx, code)
	if err != nil {
		log.Warn().Err(err).Str("access_code", code).Msg("snapshot cache read failed")
		return false
	}
	if !ok {
		return false
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		log.Warn().Err(err).Str("access_code", code).Msg("discarding corrupt snapshot")
		return false
	}
	seed.Current = snap.Current
	seed.Timer = &snap.Timer
	log.Debug().Str("access_code", code).Msg("room restored from snapshot cache")
	return true
}

// currentFromMatch rebuilds live state from the durable match and overlay rows.
// Malformed documents fall back to their empty values.
func currentFromMatch(m *models.Match, settings []models.DisplaySetting) room.CurrentState {
	cur := room.NewCurrentState()
	cur.Teams.Home = room.Team{Name: m.HomeName, Logo: m.HomeLogo, Score: m.HomeScore}
	cur.Teams.Away = room.Team{Name: m.AwayName, Logo: m.AwayLogo, Score: m.AwayScore}

	decodeColumn(m.Statistics, &cur.Statistics)
	decodeColumn(m.Cards, &cur.Cards)
	decodeColumn(m.Lineups, &cur.Lineups)
	decodeColumn(m.Penalty, &cur.Penalty)
	decodeColumn(m.Marquee, &cur.Marquee)

	doc := room.DisplayDocument{Settings: cur.Display, Selection: cur.Selection}
	decodeColumn(m.Display, &doc)
	cur.Display, cur.Selection = doc.Settings, doc.Selection

	if cur.Cards == nil {
		cur.Cards = []room.Card{}
	}
	for _, s := range settings {
		list := cur.Overlays.List(s.Type)
		if list == nil {
			continue
		}
		*list = append(*list, room.OverlayItem{
			CodeLogo: s.CodeLogo,
			Name:     s.Name,
			URL:      s.URL,
			Position: s.Position,
		})
	}
	return cur
}

func decodeColumn(raw json.RawMessage, v any) {
	if len(raw) == 0 || string(raw) == "null" {
		return
	}
	if err := json.Unmarshal(raw, v); err != nil {
		log.Warn().Err(err).Msg("ignoring malformed match column")
	}
}

// timerFromMatch restores a stopped clock at the persisted match time.
func timerFromMatch(m *models.Match) *matchclock.Snapshot {
	offset, err := matchclock.Parse(m.MatchTime)
	if err != nil || offset == 0 {
		return nil
	}
	return &matchclock.Snapshot{
		State:        matchclock.StatePaused,
		PausedOffset: offset,
		LastDisplay:  matchclock.Format(offset),
	}
}
