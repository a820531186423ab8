package session

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livescore/go/internal/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerLifecycle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := NewTracker(clock)

	tr.OnConnect("e1", Identity{UserID: "user-1", Admin: true})
	assert.Equal(t, 1, tr.Len())

	_, switched := tr.OnJoin("e1", "ABCDE", room.RoleAdmin)
	assert.False(t, switched)

	s, ok := tr.Get("e1")
	require.True(t, ok)
	assert.Equal(t, "ABCDE", s.Room)
	assert.Equal(t, room.RoleAdmin, s.Role)
	assert.Equal(t, "user-1", s.UserID)
	assert.True(t, s.Admin)
	require.NotNil(t, s.JoinedAt)

	clock.Advance(time.Minute)
	prior, switched := tr.OnJoin("e1", "FGHIJ", room.RoleViewer)
	assert.True(t, switched)
	assert.Equal(t, "ABCDE", prior)
	assert.Equal(t, []string{"e1"}, tr.InRoom("FGHIJ"))
	assert.Empty(t, tr.InRoom("ABCDE"))

	_, switched = tr.OnJoin("e1", "FGHIJ", room.RoleDisplay)
	assert.False(t, switched)

	left, ok := tr.OnLeave("e1")
	require.True(t, ok)
	assert.Equal(t, "FGHIJ", left)
	_, ok = tr.OnLeave("e1")
	assert.False(t, ok)

	final, ok := tr.OnDisconnect("e1")
	require.True(t, ok)
	assert.Equal(t, "e1", final.EndpointID)
	assert.Zero(t, tr.Len())
	_, ok = tr.OnDisconnect("e1")
	assert.False(t, ok)
}

func TestTouchUpdatesActivity(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := NewTracker(clock)
	start := tr.OnConnect("e1", Identity{})

	clock.Advance(30 * time.Second)
	tr.Touch("e1")
	s, _ := tr.Get("e1")
	assert.Equal(t, start.LastActivity.Add(30*time.Second), s.LastActivity)
}
