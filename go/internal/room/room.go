package room

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livescore/go/internal/matchclock"
)

// Role is the role an endpoint declared when joining.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleViewer  Role = "viewer"
	RoleDisplay Role = "display"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleViewer, RoleDisplay:
		return true
	}
	return false
}

// Member is one endpoint attached to a room.
type Member struct {
	EndpointID string `json:"endpoint_id"`
	Role       Role   `json:"role"`
}

// State is the room state owned by the room goroutine. It must only be
// touched from inside Room.Do.
type State struct {
	Code         string
	CreatedAt    time.Time
	LastActivity time.Time

	Current CurrentState
	Timer   *matchclock.Timer

	// SessionDeadline is set once, when the first display attaches.
	SessionDeadline *time.Time
	// CodeDeadline is the access code's own expiry.
	CodeDeadline *time.Time

	members map[Role]map[string]struct{}
	dedupe  *Deduper
	clock   clockwork.Clock
	closed  bool
}

func newState(code string, clock clockwork.Clock, seed *Seed, window time.Duration) *State {
	now := clock.Now()
	s := &State{
		Code:         code,
		CreatedAt:    now,
		LastActivity: now,
		Current:      NewCurrentState(),
		members: map[Role]map[string]struct{}{
			RoleAdmin:   {},
			RoleViewer:  {},
			RoleDisplay: {},
		},
		dedupe: NewDeduper(clock, window),
		clock:  clock,
	}
	s.Timer = matchclock.New(clock)
	if seed != nil {
		s.Current = seed.Current
		if seed.Timer != nil {
			s.Timer = matchclock.Restore(clock, *seed.Timer)
		}
		s.SessionDeadline = seed.SessionDeadline
		s.CodeDeadline = seed.CodeDeadline
	}
	s.Current.Clock = ClockView{Display: s.Timer.Display(), Running: s.Timer.Running()}
	return s
}

// Touch records activity.
func (s *State) Touch() { s.LastActivity = s.clock.Now() }

// Now is the room clock's current time.
func (s *State) Now() time.Time { return s.clock.Now() }

// AddMember attaches endpoint under role, moving it out of any other role set.
// It reports whether the display set went from empty to non-empty.
func (s *State) AddMember(endpoint string, role Role) bool {
	for r, set := range s.members {
		if r != role {
			delete(set, endpoint)
		}
	}
	hadDisplays := len(s.members[RoleDisplay]) > 0
	s.members[role][endpoint] = struct{}{}
	s.Touch()
	return role == RoleDisplay && !hadDisplays
}

// RemoveMember detaches endpoint and returns the role it held.
func (s *State) RemoveMember(endpoint string) (Role, bool) {
	for r, set := range s.members {
		if _, ok := set[endpoint]; ok {
			delete(set, endpoint)
			s.Touch()
			return r, true
		}
	}
	return "", false
}

// RoleOf returns the role endpoint holds in this room.
func (s *State) RoleOf(endpoint string) (Role, bool) {
	for r, set := range s.members {
		if _, ok := set[endpoint]; ok {
			return r, true
		}
	}
	return "", false
}

// IsAdmin reports whether endpoint is in the admin set.
func (s *State) IsAdmin(endpoint string) bool {
	_, ok := s.members[RoleAdmin][endpoint]
	return ok
}

// Empty reports whether no endpoint is attached.
func (s *State) Empty() bool {
	for _, set := range s.members {
		if len(set) > 0 {
			return false
		}
	}
	return true
}

// Members lists every attached endpoint ordered by role then id.
func (s *State) Members() []Member {
	var out []Member
	for _, role := range []Role{RoleAdmin, RoleViewer, RoleDisplay} {
		ids := s.Endpoints(role)
		for _, id := range ids {
			out = append(out, Member{EndpointID: id, Role: role})
		}
	}
	return out
}

// Endpoints lists the endpoints holding role, sorted.
func (s *State) Endpoints(role Role) []string {
	ids := make([]string, 0, len(s.members[role]))
	for id := range s.members[role] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Counts is the size of each role set.
type Counts struct {
	Admins   int `json:"admins"`
	Viewers  int `json:"viewers"`
	Displays int `json:"displays"`
}

func (s *State) Counts() Counts {
	return Counts{
		Admins:   len(s.members[RoleAdmin]),
		Viewers:  len(s.members[RoleViewer]),
		Displays: len(s.members[RoleDisplay]),
	}
}

// AttachFirstDisplay sets the session deadline to now+ttl unless it is
// already set. It reports whether the deadline was set by this call.
func (s *State) AttachFirstDisplay(ttl time.Duration) (time.Time, bool) {
	if s.SessionDeadline != nil {
		return *s.SessionDeadline, false
	}
	deadline := s.clock.Now().Add(ttl)
	s.SessionDeadline = &deadline
	return deadline, true
}

// Deadline returns the earlier of the session and code deadlines.
func (s *State) Deadline() (time.Time, bool) {
	switch {
	case s.SessionDeadline == nil && s.CodeDeadline == nil:
		return time.Time{}, false
	case s.SessionDeadline == nil:
		return *s.CodeDeadline, true
	case s.CodeDeadline == nil:
		return *s.SessionDeadline, true
	case s.CodeDeadline.Before(*s.SessionDeadline):
		return *s.CodeDeadline, true
	}
	return *s.SessionDeadline, true
}

// Apply validates m, rejects duplicate discrete events and merges it into
// the current state.
func (s *State) Apply(m Mutation) (Result, error) {
	if err := m.Validate(); err != nil {
		return Result{}, err
	}
	var fp string
	if d, ok := m.(Discrete); ok {
		fp = d.Fingerprint()
	}
	if s.dedupe.Seen(fp) {
		return Result{}, ErrDuplicateEvent
	}
	res, err := m.Apply(&s.Current, s.clock.Now())
	if err != nil {
		return Result{}, err
	}
	// Rejected events leave no fingerprint, so a corrected resend goes through.
	s.dedupe.Record(fp)
	s.Touch()
	return res, nil
}

// SyncClock copies the timer display into the current state.
func (s *State) SyncClock() ClockView {
	s.Current.Clock = ClockView{Display: s.Timer.Display(), Running: s.Timer.Running()}
	return s.Current.Clock
}

// Close marks the room closed. Every later Do returns ErrRoomClosed.
func (s *State) Close() { s.closed = true }

// Room is one live room. All state access is serialized through Do.
type Room struct {
	code      string
	createdAt time.Time

	cmds     chan func()
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	closed   atomic.Bool

	state *State
}

func newRoom(code string, clock clockwork.Clock, seed *Seed, opts Options) *Room {
	r := &Room{
		code:  code,
		cmds:  make(chan func(), opts.QueueSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
		state: newState(code, clock, seed, opts.DedupeWindow),
	}
	r.createdAt = r.state.CreatedAt
	go r.loop()
	return r
}

func (r *Room) loop() {
	defer close(r.done)
	for {
		select {
		case cmd := <-r.cmds:
			cmd()
		case <-r.stop:
			return
		}
	}
}

// Code returns the access code of the room.
func (r *Room) Code() string { return r.code }

// CreatedAt returns when the room was created in memory.
func (r *Room) CreatedAt() time.Time { return r.createdAt }

// Closed reports whether the room has been closed.
func (r *Room) Closed() bool { return r.closed.Load() }

// Do runs fn on the room goroutine and waits for it. fn must not call Do on
// the same room.
func (r *Room) Do(ctx context.Context, fn func(*State) error) error {
	if r.closed.Load() {
		return ErrRoomClosed
	}
	reply := make(chan error, 1)
	cmd := func() {
		if r.state.closed {
			reply <- ErrRoomClosed
			return
		}
		// The caller gave up while the command was queued.
		if err := ctx.Err(); err != nil {
			reply <- err
			return
		}
		err := fn(r.state)
		if r.state.closed {
			r.closed.Store(true)
		}
		reply <- err
	}

	select {
	case r.cmds <- cmd:
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-r.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrRoomClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop terminates the room goroutine and waits for it to exit.
func (r *Room) Stop() {
	r.closed.Store(true)
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}
