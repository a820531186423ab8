// Package lifecycle expires rooms when their session or access code deadline
// passes. Each room has at most one pending timer; a periodic sweep over the
// durable store catches anything the timers missed (restarts, other nodes).
package lifecycle

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSweepInterval = 5 * time.Minute
	DefaultWorkers       = 4
	workChannelSize      = 256
)

// DueSource lists codes whose durable deadline has passed.
type DueSource interface {
	ListDueRoomSessions(ctx context.Context, now time.Time) ([]string, error)
	ListDueAccessCodes(ctx context.Context, now time.Time) ([]string, error)
}

// ExpireFunc expires one room. It must be idempotent.
type ExpireFunc func(ctx context.Context, code string) error

// Config tunes a Scheduler.
type Config struct {
	Clock         clockwork.Clock
	SweepInterval time.Duration
	Workers       int
	// AfterSweep runs at the end of every sweep.
	AfterSweep func(ctx context.Context)
}

type pending struct {
	timer    clockwork.Timer
	deadline time.Time
	cancel   chan struct{}
}

// Scheduler arms per-room expiration timers and runs the periodic sweep.
type Scheduler struct {
	clock      clockwork.Clock
	due        DueSource
	expire     ExpireFunc
	interval   time.Duration
	numWorkers int
	afterSweep func(ctx context.Context)

	activeTimers   map[string]*pending
	activeTimersMu sync.Mutex

	lastScheduled   map[string]time.Time
	lastScheduledMu sync.Mutex

	inFlight   map[string]struct{}
	inFlightMu sync.Mutex

	workCh chan string
}

func NewScheduler(due DueSource, expire ExpireFunc, cfg Config) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Scheduler{
		clock:         cfg.Clock,
		due:           due,
		expire:        expire,
		interval:      cfg.SweepInterval,
		numWorkers:    cfg.Workers,
		afterSweep:    cfg.AfterSweep,
		activeTimers:  make(map[string]*pending),
		lastScheduled: make(map[string]time.Time),
		inFlight:      make(map[string]struct{}),
		workCh:        make(chan string, workChannelSize),
	}
}

// Arm schedules expiration of code at deadline, replacing any pending timer.
// A deadline already in the past enqueues the code immediately.
func (s *Scheduler) Arm(code string, deadline time.Time) {
	// Same-deadline idempotency guard
	s.lastScheduledMu.Lock()
	if last, exists := s.lastScheduled[code]; exists && last.Equal(deadline) {
		s.lastScheduledMu.Unlock()
		return
	}
	s.lastScheduled[code] = deadline
	s.lastScheduledMu.Unlock()

	duration := deadline.Sub(s.clock.Now())
	if duration <= 0 {
		s.cancelTimer(code)
		s.enqueue(code)
		return
	}

	p := &pending{
		timer:    s.clock.NewTimer(duration),
		deadline: deadline,
		cancel:   make(chan struct{}),
	}
	s.replaceTimer(code, p)

	go func(code string, p *pending) {
		select {
		case <-p.timer.Chan():
			s.removeTimer(code, p)
			s.forget(code)
			s.enqueue(code)
			log.Debug().Str("access_code", code).Msg("expiration timer fired")
		case <-p.cancel:
		}
	}(code, p)

	log.Debug().
		Str("access_code", code).
		Time("deadline", deadline).
		Dur("duration", duration).
		Msg("armed expiration timer")
}

// Cancel drops the pending timer for code, if any.
func (s *Scheduler) Cancel(code string) {
	s.cancelTimer(code)
}

// Deadline returns the pending deadline for code.
func (s *Scheduler) Deadline(code string) (time.Time, bool) {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()
	p, ok := s.activeTimers[code]
	if !ok {
		return time.Time{}, false
	}
	return p.deadline, true
}

// Pending is the number of armed timers.
func (s *Scheduler) Pending() int {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()
	return len(s.activeTimers)
}

// replaceTimer installs p for code, cancelling the previous timer.
func (s *Scheduler) replaceTimer(code string, p *pending) {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()

	if existing, ok := s.activeTimers[code]; ok {
		stop(existing)
		log.Debug().Str("access_code", code).Msg("replaced existing expiration timer")
	}
	s.activeTimers[code] = p
}

func (s *Scheduler) cancelTimer(code string) {
	s.activeTimersMu.Lock()
	if p, ok := s.activeTimers[code]; ok {
		stop(p)
		delete(s.activeTimers, code)
	}
	s.activeTimersMu.Unlock()
	s.forget(code)
}

// removeTimer is called when p fired.
func (s *Scheduler) removeTimer(code string, p *pending) {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()
	if s.activeTimers[code] == p {
		delete(s.activeTimers, code)
	}
}

func (s *Scheduler) forget(code string) {
	s.lastScheduledMu.Lock()
	delete(s.lastScheduled, code)
	s.lastScheduledMu.Unlock()
}

// stop stops the timer, drains its channel and releases the waiting goroutine.
func stop(p *pending) {
	if !p.timer.Stop() {
		select {
		case <-p.timer.Chan():
		default:
		}
	}
	close(p.cancel)
}

// enqueue hands code to the workers unless it is already queued or running.
func (s *Scheduler) enqueue(code string) {
	s.inFlightMu.Lock()
	if _, busy := s.inFlight[code]; busy {
		s.inFlightMu.Unlock()
		log.Debug().Str("access_code", code).Msg("expiration already in flight")
		return
	}
	s.inFlight[code] = struct{}{}
	s.inFlightMu.Unlock()

	select {
	case s.workCh <- code:
	default:
		s.done(code)
		log.Warn().Str("access_code", code).Msg("expiration work channel full")
	}
}

func (s *Scheduler) done(code string) {
	s.inFlightMu.Lock()
	delete(s.inFlight, code)
	s.inFlightMu.Unlock()
}

// Sweep enqueues every code whose durable deadline has passed.
func (s *Scheduler) Sweep(ctx context.Context) {
	now := s.clock.Now()
	codes := make(map[string]struct{})

	sessions, err := s.due.ListDueRoomSessions(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("sweep failed to list due room sessions")
	}
	for _, c := range sessions {
		codes[c] = struct{}{}
	}
	accessCodes, err := s.due.ListDueAccessCodes(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("sweep failed to list due access codes")
	}
	for _, c := range accessCodes {
		codes[c] = struct{}{}
	}

	ordered := make([]string, 0, len(codes))
	for c := range codes {
		ordered = append(ordered, c)
	}
	sort.Strings(ordered)
	for _, c := range ordered {
		s.enqueue(c)
	}

	if len(ordered) > 0 {
		log.Info().Int("due", len(ordered)).Msg("sweep enqueued expirations")
	}
	if s.afterSweep != nil {
		s.afterSweep(ctx)
	}
}

// Run starts the worker pool and the sweep loop. It blocks until ctx is
// cancelled, then cancels every pending timer.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().
		Int("workers", s.numWorkers).
		Dur("sweep_interval", s.interval).
		Msg("expiration scheduler started")

	var wg sync.WaitGroup
	for i := 0; i < s.numWorkers; i++ {
		wg.Add(1)
		go s.worker(ctx, &wg, i)
	}

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			s.activeTimersMu.Lock()
			for code, p := range s.activeTimers {
				stop(p)
				log.Debug().Str("access_code", code).Msg("cancelled expiration timer on shutdown")
			}
			s.activeTimers = make(map[string]*pending)
			s.activeTimersMu.Unlock()

			wg.Wait()
			log.Info().Msg("expiration scheduler stopped")
			return nil
		case <-ticker.Chan():
			s.Sweep(ctx)
		}
	}
}

func (s *Scheduler) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case code := <-s.workCh:
			if err := s.expire(ctx, code); err != nil {
				log.Error().
					Err(err).
					Str("access_code", code).
					Int("worker_id", workerID).
					Msg("room expiration failed")
			}
			s.done(code)
		}
	}
}
