package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDue struct {
	mu       sync.Mutex
	sessions []string
	codes    []string
}

func (f *fakeDue) ListDueRoomSessions(context.Context, time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sessions...), nil
}

func (f *fakeDue) ListDueAccessCodes(context.Context, time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.codes...), nil
}

type recorder struct {
	mu    sync.Mutex
	calls map[string]int
	gate  chan struct{}
}

func newRecorder() *recorder { return &recorder{calls: make(map[string]int)} }

func (r *recorder) expire(ctx context.Context, code string) error {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	r.calls[code]++
	r.mu.Unlock()
	return nil
}

func (r *recorder) count(code string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[code]
}

func startScheduler(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestArmFiresOnceAtDeadline(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := newRecorder()
	s := NewScheduler(&fakeDue{}, rec.expire, Config{Clock: clock, SweepInterval: time.Hour})
	startScheduler(t, s)

	s.Arm("ABCDE", clock.Now().Add(2*time.Hour))
	assert.Equal(t, 1, s.Pending())

	clock.Advance(time.Hour)
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, rec.count("ABCDE"))

	clock.Advance(time.Hour)
	require.Eventually(t, func() bool { return rec.count("ABCDE") == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, s.Pending())
}

func TestArmReplacesInsteadOfStacking(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := newRecorder()
	s := NewScheduler(&fakeDue{}, rec.expire, Config{Clock: clock, SweepInterval: time.Hour * 24})
	startScheduler(t, s)

	s.Arm("ABCDE", clock.Now().Add(2*time.Hour))
	s.Arm("ABCDE", clock.Now().Add(30*time.Minute))
	s.Arm("ABCDE", clock.Now().Add(30*time.Minute))
	assert.Equal(t, 1, s.Pending())

	d, ok := s.Deadline("ABCDE")
	require.True(t, ok)
	assert.Equal(t, clock.Now().Add(30*time.Minute), d)

	clock.Advance(3 * time.Hour)
	require.Eventually(t, func() bool { return rec.count("ABCDE") == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rec.count("ABCDE"))
}

func TestCancelPreventsExpiration(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := newRecorder()
	s := NewScheduler(&fakeDue{}, rec.expire, Config{Clock: clock, SweepInterval: time.Hour * 24})
	startScheduler(t, s)

	s.Arm("ABCDE", clock.Now().Add(time.Minute))
	s.Cancel("ABCDE")
	assert.Zero(t, s.Pending())

	clock.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, rec.count("ABCDE"))
}

func TestPastDeadlineEnqueuesImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := newRecorder()
	s := NewScheduler(&fakeDue{}, rec.expire, Config{Clock: clock, SweepInterval: time.Hour * 24})
	startScheduler(t, s)

	s.Arm("ABCDE", clock.Now().Add(-time.Second))
	require.Eventually(t, func() bool { return rec.count("ABCDE") == 1 }, time.Second, 5*time.Millisecond)
}

func TestSweepUnionsSourcesAndDedupesInFlight(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := newRecorder()
	rec.gate = make(chan struct{})
	due := &fakeDue{sessions: []string{"AAAAA", "BBBBB"}, codes: []string{"BBBBB"}}

	// Expiring a code takes it out of the due lists, as the durable store does.
	expire := func(ctx context.Context, code string) error {
		err := rec.expire(ctx, code)
		due.mu.Lock()
		due.sessions = without(due.sessions, code)
		due.codes = without(due.codes, code)
		due.mu.Unlock()
		return err
	}

	var sweeps int
	var mu sync.Mutex
	s := NewScheduler(due, expire, Config{
		Clock:         clock,
		SweepInterval: time.Hour,
		Workers:       2,
		AfterSweep: func(context.Context) {
			mu.Lock()
			sweeps++
			mu.Unlock()
		},
	})

	s.Sweep(context.Background())
	s.Sweep(context.Background())
	mu.Lock()
	assert.Equal(t, 2, sweeps)
	mu.Unlock()

	startScheduler(t, s)
	close(rec.gate)

	require.Eventually(t, func() bool {
		return rec.count("AAAAA") == 1 && rec.count("BBBBB") == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rec.count("BBBBB"))
}

func without(list []string, code string) []string {
	out := list[:0]
	for _, c := range list {
		if c != code {
			out = append(out, c)
		}
	}
	return out
}
