// Package matchclock tracks the elapsed match time of one room.
//
// Elapsed time is always computed from a start instant and the clock's
// current time rather than accumulated per tick, so pause/resume cycles
// do not drift.
package matchclock

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// State is the run state of a match timer.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
	StatePaused  State = "paused"
)

// Timer is a drift-free elapsed time tracker. It is not safe for concurrent
// use; a room's command goroutine owns it.
type Timer struct {
	clock clockwork.Clock

	state        State
	baseOffset   time.Duration // offset restored by Reset
	startedAt    time.Time     // valid while running
	pausedOffset time.Duration // frozen elapsed while paused or stopped
	lastDisplay  string
}

// Snapshot is the serializable form of a Timer.
type Snapshot struct {
	State        State         `json:"state"`
	BaseOffset   time.Duration `json:"base_offset"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	PausedOffset time.Duration `json:"paused_offset"`
	LastDisplay  string        `json:"last_display"`
}

// New creates a stopped timer reading 00:00.
func New(clock clockwork.Clock) *Timer {
	return &Timer{
		clock:       clock,
		state:       StateStopped,
		lastDisplay: Format(0),
	}
}

// Restore rebuilds a timer from a snapshot.
func Restore(clock clockwork.Clock, s Snapshot) *Timer {
	t := &Timer{
		clock:        clock,
		state:        s.State,
		baseOffset:   s.BaseOffset,
		pausedOffset: s.PausedOffset,
		lastDisplay:  s.LastDisplay,
	}
	if t.state == "" {
		t.state = StateStopped
	}
	if t.state == StateRunning {
		if s.StartedAt == nil {
			// Without a start instant the best we can do is freeze.
			t.state = StatePaused
		} else {
			t.startedAt = *s.StartedAt
		}
	}
	if t.lastDisplay == "" {
		t.lastDisplay = Format(t.Elapsed())
	}
	return t
}

// Snapshot returns the serializable timer state.
func (t *Timer) Snapshot() Snapshot {
	s := Snapshot{
		State:        t.state,
		BaseOffset:   t.baseOffset,
		PausedOffset: t.pausedOffset,
		LastDisplay:  t.lastDisplay,
	}
	if t.state == StateRunning {
		started := t.startedAt
		s.StartedAt = &started
	}
	return s
}

// State returns the current run state.
func (t *Timer) State() State { return t.state }

// Running reports whether the timer is counting.
func (t *Timer) Running() bool { return t.state == StateRunning }

// Start begins counting from the frozen offset. Starting a running timer is a no-op.
func (t *Timer) Start() {
	if t.state == StateRunning {
		return
	}
	t.startedAt = t.clock.Now().Add(-t.pausedOffset)
	t.state = StateRunning
}

// StartAt begins counting from the given offset regardless of the current state.
func (t *Timer) StartAt(offset time.Duration) {
	if offset < 0 {
		offset = 0
	}
	t.pausedOffset = offset
	t.state = StateStopped
	t.Start()
}

// Pause freezes the elapsed time. Pausing a timer that is not running is a no-op.
func (t *Timer) Pause() {
	if t.state != StateRunning {
		return
	}
	t.pausedOffset = t.clock.Since(t.startedAt)
	t.startedAt = time.Time{}
	t.state = StatePaused
}

// Resume continues a paused timer from its frozen value.
func (t *Timer) Resume() {
	if t.state != StatePaused {
		return
	}
	t.Start()
}

// Reset stops the timer at the given base offset.
func (t *Timer) Reset(base time.Duration) {
	if base < 0 {
		base = 0
	}
	t.baseOffset = base
	t.pausedOffset = base
	t.startedAt = time.Time{}
	t.state = StateStopped
	t.lastDisplay = Format(base)
}

// Elapsed computes the current elapsed match time.
func (t *Timer) Elapsed() time.Duration {
	if t.state == StateRunning {
		return t.clock.Since(t.startedAt)
	}
	return t.pausedOffset
}

// Display returns the freshly computed MM:SS string and records it.
func (t *Timer) Display() string {
	t.lastDisplay = Format(t.Elapsed())
	return t.lastDisplay
}

// Tick recomputes the display and reports whether it differs from the last
// string handed out.
func (t *Timer) Tick() (string, bool) {
	display := Format(t.Elapsed())
	if display == t.lastDisplay {
		return display, false
	}
	t.lastDisplay = display
	return display, true
}

// Format renders d as MM:SS, with minutes growing past 99 when needed.
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// Parse reads a MM:SS string back into a duration.
func Parse(s string) (time.Duration, error) {
	var minutes, seconds int
	if _, err := fmt.Sscanf(s, "%d:%d", &minutes, &seconds); err != nil {
		return 0, fmt.Errorf("invalid clock display %q: %w", s, err)
	}
	if minutes < 0 || seconds < 0 || seconds > 59 {
		return 0, fmt.Errorf("invalid clock display %q", s)
	}
	return time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second, nil
}
