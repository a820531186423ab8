package room

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livescore/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }
func strp(v string) *string { return &v }
func boolp(v bool) *bool { return &v }

func TestScoreUpdateMergesOnlyGivenSide(t *testing.T) {
	s := NewCurrentState()
	s.Teams.Home.Name = "Lions"
	s.Teams.Away.Score = 2

	res, err := ScoreUpdate{Home: intp(1)}.Apply(&s, time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, s.Teams.Home.Score)
	assert.Equal(t, 2, s.Teams.Away.Score)
	assert.Equal(t, "Lions", s.Teams.Home.Name)

	view, ok := res.Data.(ScoresView)
	require.True(t, ok)
	assert.Equal(t, 1, view.Scores.Home)
	assert.Equal(t, 2, view.Scores.Away)

	require.NotNil(t, res.Patch.HomeScore)
	assert.Equal(t, 1, *res.Patch.HomeScore)
	assert.Nil(t, res.Patch.AwayScore)
}

func TestValidateRejectsBadPayloads(t *testing.T) {
	cases := map[string]Mutation{
		"empty score":        ScoreUpdate{},
		"negative score":     ScoreUpdate{Away: intp(-1)},
		"blank name":         TeamNameUpdate{Home: strp("  ")},
		"card without team":  CardIssue{Player: "9", Type: CardYellow},
		"card bad type":      CardIssue{Team: SideHome, Player: "9", Type: "green"},
		"possession > 100":   StatisticsUpdate{Home: &TeamStatsPatch{Possession: intp(120)}},
		"lineup dup number":  LineupUpdate{Team: SideAway, Players: []Player{{Number: 7, Name: "a"}, {Number: 7, Name: "b"}}},
		"penalty nothing":    PenaltyUpdate{},
		"overlay no logo":    OverlayUpdate{List: models.OverlaySponsors, Behavior: BehaviorAdd, Item: OverlayItem{URL: "u"}},
		"overlay bad list":   OverlayUpdate{List: "banners", Behavior: BehaviorAdd},
		"overlay bad action": OverlayUpdate{List: models.OverlaySponsors, Behavior: "move"},
		"empty view":         SelectionUpdate{Slot: SlotView},
	}
	for name, m := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, m.Validate(), ErrInvalidPayload)
		})
	}
}

func TestCardIssueCountsAndPersistsCards(t *testing.T) {
	s := NewCurrentState()
	at := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)

	_, err := CardIssue{Team: SideAway, Player: "Silva", Type: CardYellow, Minute: 12}.Apply(&s, at)
	require.NoError(t, err)
	res, err := CardIssue{Team: SideAway, Player: "Silva", Type: CardRed, Minute: 40}.Apply(&s, at)
	require.NoError(t, err)

	require.Len(t, s.Cards, 2)
	assert.NotEqual(t, s.Cards[0].ID, s.Cards[1].ID)
	assert.Equal(t, 1, s.Statistics.Away.YellowCards)
	assert.Equal(t, 1, s.Statistics.Away.RedCards)
	assert.Equal(t, 0, s.Statistics.Home.YellowCards)

	var cards []Card
	require.NoError(t, json.Unmarshal(res.Patch.Cards, &cards))
	assert.Len(t, cards, 2)
	assert.NotNil(t, res.Patch.Statistics)
}

func TestPenaltyShootoutRecount(t *testing.T) {
	s := NewCurrentState()
	steps := []PenaltyUpdate{
		{Active: boolp(true)},
		{Kick: &PenaltyKickInput{Team: SideHome, Player: "A", Result: PenaltyScored}},
		{Kick: &PenaltyKickInput{Team: SideAway, Player: "B", Result: PenaltyMissed}},
		{Kick: &PenaltyKickInput{Team: SideHome, Player: "C", Result: PenaltyScored}},
	}
	for _, m := range steps {
		require.NoError(t, m.Validate())
		_, err := m.Apply(&s, time.Now())
		require.NoError(t, err)
	}
	assert.True(t, s.Penalty.Active)
	assert.Equal(t, 2, s.Penalty.HomeGoals)
	assert.Equal(t, 0, s.Penalty.AwayGoals)
	assert.Equal(t, 2, s.Penalty.Home[1].Order)

	_, err := PenaltyUpdate{Reset: true}.Apply(&s, time.Now())
	require.NoError(t, err)
	assert.Empty(t, s.Penalty.Home)
	assert.Zero(t, s.Penalty.HomeGoals)
	assert.True(t, s.Penalty.Active)
}

func TestOverlayBehaviors(t *testing.T) {
	s := NewCurrentState()
	add := func(logo string) OverlayUpdate {
		return OverlayUpdate{List: models.OverlaySponsors, Behavior: BehaviorAdd, Item: OverlayItem{CodeLogo: logo, Name: logo, URL: "https://cdn/" + logo}}
	}

	for _, logo := range []string{"a", "b", "c"} {
		res, err := add(logo).Apply(&s, time.Now())
		require.NoError(t, err)
		require.NotNil(t, res.Overlay)
		assert.Equal(t, BehaviorAdd, res.Overlay.Behavior)
	}
	require.Len(t, s.Overlays.Sponsors, 3)
	assert.Equal(t, 2, s.Overlays.Sponsors[2].Position)

	_, err := add("b").Apply(&s, time.Now())
	assert.ErrorIs(t, err, ErrInvalidPayload)

	res, err := OverlayUpdate{List: models.OverlaySponsors, Behavior: BehaviorUpdate, Index: intp(1), Item: OverlayItem{Name: "Bravo"}}.Apply(&s, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "Bravo", s.Overlays.Sponsors[1].Name)
	assert.Equal(t, "https://cdn/b", s.Overlays.Sponsors[1].URL)
	assert.Equal(t, "b", res.Overlay.PrevCodeLogo)

	res, err = OverlayUpdate{List: models.OverlaySponsors, Behavior: BehaviorRemove, Item: OverlayItem{CodeLogo: "a"}}.Apply(&s, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "a", res.Overlay.PrevCodeLogo)
	require.Len(t, s.Overlays.Sponsors, 2)
	assert.Equal(t, "b", s.Overlays.Sponsors[0].CodeLogo)
	assert.Equal(t, 0, s.Overlays.Sponsors[0].Position)
	assert.Equal(t, 1, s.Overlays.Sponsors[1].Position)

	_, err = OverlayUpdate{List: models.OverlaySponsors, Behavior: BehaviorRemove, Index: intp(9)}.Apply(&s, time.Now())
	assert.ErrorIs(t, err, ErrInvalidPayload)

	assert.Empty(t, s.Overlays.Organizing)
}

func TestOverlayUpdateRejectsLogoHeldByAnotherEntry(t *testing.T) {
	s := NewCurrentState()
	for _, logo := range []string{"a", "b"} {
		_, err := OverlayUpdate{List: models.OverlaySponsors, Behavior: BehaviorAdd, Item: OverlayItem{CodeLogo: logo, URL: "https://cdn/" + logo}}.Apply(&s, time.Now())
		require.NoError(t, err)
	}

	_, err := OverlayUpdate{List: models.OverlaySponsors, Behavior: BehaviorUpdate, Index: intp(1), Item: OverlayItem{CodeLogo: "a"}}.Apply(&s, time.Now())
	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.Equal(t, "a", s.Overlays.Sponsors[0].CodeLogo)
	assert.Equal(t, "b", s.Overlays.Sponsors[1].CodeLogo)

	// Keeping its own logo is not a collision.
	_, err = OverlayUpdate{List: models.OverlaySponsors, Behavior: BehaviorUpdate, Index: intp(1), Item: OverlayItem{CodeLogo: "b", Name: "Bravo"}}.Apply(&s, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "Bravo", s.Overlays.Sponsors[1].Name)
}

func TestSelectionAndDisplayShareDocument(t *testing.T) {
	s := NewCurrentState()
	_, err := SelectionUpdate{Slot: SlotPoster, Value: "halftime"}.Apply(&s, time.Now())
	require.NoError(t, err)
	res, err := DisplaySettingsUpdate{ShowStats: boolp(true)}.Apply(&s, time.Now())
	require.NoError(t, err)

	var doc DisplayDocument
	require.NoError(t, json.Unmarshal(res.Patch.Display, &doc))
	assert.True(t, doc.Settings.ShowStats)
	assert.True(t, doc.Settings.ShowScore)
	assert.Equal(t, "halftime", doc.Selection.Poster)
}

func TestEventNames(t *testing.T) {
	assert.Equal(t, "score_updated", KindScore.UpdatedEvent())
	assert.Equal(t, "sponsors_error", OverlayUpdate{List: models.OverlaySponsors}.Kind().ErrorEvent())
	assert.Equal(t, "media_partners_updated", OverlayUpdate{List: models.OverlayMediaPartners}.Kind().UpdatedEvent())
	assert.Equal(t, KindTemplate, SelectionUpdate{Slot: SlotTemplate}.Kind())
}

func TestStateApplyRejectsDuplicateCardInsideWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := newState("ABCDE", clock, nil, time.Second)
	card := CardIssue{Team: SideHome, Player: "10", Type: CardYellow, Minute: 5}

	_, err := s.Apply(card)
	require.NoError(t, err)

	clock.Advance(300 * time.Millisecond)
	_, err = s.Apply(card)
	assert.ErrorIs(t, err, ErrDuplicateEvent)
	assert.Len(t, s.Current.Cards, 1)
	assert.Equal(t, 1, s.Current.Statistics.Home.YellowCards)

	clock.Advance(time.Second)
	_, err = s.Apply(card)
	require.NoError(t, err)
	assert.Len(t, s.Current.Cards, 2)
}

func TestStateApplyRejectedEventLeavesNoFingerprint(t *testing.T) {
	s := newState("ABCDE", clockwork.NewFakeClock(), nil, time.Second)
	add := OverlayUpdate{List: models.OverlaySponsors, Behavior: BehaviorAdd, Item: OverlayItem{CodeLogo: "a", URL: "https://cdn/a"}}
	s.Current.Overlays.Sponsors = []OverlayItem{{CodeLogo: "a", URL: "https://cdn/a"}}

	_, err := s.Apply(add)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	s.Current.Overlays.Sponsors = nil
	_, err = s.Apply(add)
	require.NoError(t, err)
	assert.Len(t, s.Current.Overlays.Sponsors, 1)

	_, err = s.Apply(add)
	assert.ErrorIs(t, err, ErrDuplicateEvent)
}

func TestStateApplyDoesNotDedupeScores(t *testing.T) {
	s := newState("ABCDE", clockwork.NewFakeClock(), nil, time.Second)
	for i := 0; i < 3; i++ {
		_, err := s.Apply(ScoreUpdate{Home: intp(1)})
		require.NoError(t, err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := NewCurrentState()
	s.Overlays.Sponsors = append(s.Overlays.Sponsors, OverlayItem{CodeLogo: "a"})
	c := s.Clone()
	c.Overlays.Sponsors[0].CodeLogo = "z"
	assert.Equal(t, "a", s.Overlays.Sponsors[0].CodeLogo)
}
