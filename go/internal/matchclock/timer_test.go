package matchclock

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimer_PauseResumeDoesNotDrift(t *testing.T) {
	clock := clockwork.NewFakeClock()
	timer := New(clock)
	assert.Equal(t, "00:00", timer.Display())

	timer.Start()
	clock.Advance(5 * time.Second)
	timer.Pause()
	assert.Equal(t, "00:05", timer.Display())

	// Ten seconds of pause must not leak into the displayed time
	clock.Advance(10 * time.Second)
	assert.Equal(t, "00:05", timer.Display())

	timer.Resume()
	clock.Advance(3 * time.Second)
	assert.Equal(t, "00:08", timer.Display())
}

func TestTimer_MonotonicWhileRunning(t *testing.T) {
	clock := clockwork.NewFakeClock()
	timer := New(clock)
	timer.Start()

	last := timer.Elapsed()
	for i := 0; i < 120; i++ {
		clock.Advance(700 * time.Millisecond)
		now := timer.Elapsed()
		assert.GreaterOrEqual(t, now, last)
		last = now
	}
	assert.Equal(t, 84*time.Second, last)
}

func TestTimer_TickReportsOnlyChanges(t *testing.T) {
	clock := clockwork.NewFakeClock()
	timer := New(clock)
	timer.Start()

	_, changed := timer.Tick()
	assert.False(t, changed)

	clock.Advance(400 * time.Millisecond)
	_, changed = timer.Tick()
	assert.False(t, changed)

	clock.Advance(600 * time.Millisecond)
	display, changed := timer.Tick()
	assert.True(t, changed)
	assert.Equal(t, "00:01", display)
}

func TestTimer_ResetAndStartAt(t *testing.T) {
	clock := clockwork.NewFakeClock()
	timer := New(clock)
	timer.Start()
	clock.Advance(30 * time.Second)

	timer.Reset(45 * time.Minute)
	assert.Equal(t, StateStopped, timer.State())
	assert.Equal(t, "45:00", timer.Display())

	clock.Advance(time.Minute)
	assert.Equal(t, "45:00", timer.Display())

	timer.Start()
	clock.Advance(2 * time.Second)
	assert.Equal(t, "45:02", timer.Display())

	timer.StartAt(90 * time.Minute)
	clock.Advance(15 * time.Minute)
	assert.Equal(t, "105:00", timer.Display())
}

func TestTimer_NoOpTransitions(t *testing.T) {
	clock := clockwork.NewFakeClock()
	timer := New(clock)

	timer.Pause()
	timer.Resume()
	assert.Equal(t, StateStopped, timer.State())

	timer.Start()
	clock.Advance(3 * time.Second)
	timer.Start()
	assert.Equal(t, 3*time.Second, timer.Elapsed())
}

func TestTimer_SnapshotRestore(t *testing.T) {
	clock := clockwork.NewFakeClock()
	timer := New(clock)
	timer.Start()
	clock.Advance(12 * time.Second)

	restored := Restore(clock, timer.Snapshot())
	clock.Advance(3 * time.Second)
	assert.True(t, restored.Running())
	assert.Equal(t, "00:15", restored.Display())

	timer.Pause()
	frozen := Restore(clock, timer.Snapshot())
	clock.Advance(time.Hour)
	assert.Equal(t, StatePaused, frozen.State())
	assert.Equal(t, "00:15", frozen.Display())
}

func TestFormatParse(t *testing.T) {
	assert.Equal(t, "00:00", Format(-time.Second))
	assert.Equal(t, "01:05", Format(65*time.Second))

	d, err := Parse("45:30")
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute+30*time.Second, d)

	_, err = Parse("12:75")
	assert.Error(t, err)
	_, err = Parse("garbage")
	assert.Error(t, err)
}
