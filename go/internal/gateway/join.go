package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mcdev12/livescore/go/internal/persist"
	"github.com/mcdev12/livescore/go/internal/room"
	"github.com/mcdev12/livescore/go/internal/session"
	"github.com/rs/zerolog/log"
)

// evictTimeout bounds the cleanup of a room left behind by a failed join.
const evictTimeout = 5 * time.Second

// Connect registers a newly connected endpoint.
func (e *Engine) Connect(endpoint string, id session.Identity) session.Session {
	sess := e.sessions.OnConnect(endpoint, id)
	e.observeGauges()
	log.Debug().Str("endpoint", endpoint).Str("user_id", id.UserID).Msg("endpoint connected")
	return sess
}

// Disconnect handles an endpoint going away, cleanly or not. It leaves the
// endpoint's room and forgets its session.
func (e *Engine) Disconnect(ctx context.Context, endpoint string) {
	if sess, ok := e.sessions.Get(endpoint); ok && sess.Room != "" {
		e.leave(ctx, endpoint, sess.Room)
	}
	e.sessions.OnDisconnect(endpoint)
	e.observeGauges()
	log.Debug().Str("endpoint", endpoint).Msg("endpoint disconnected")
}

// Join attaches endpoint to the room for code under the declared role. The
// joining endpoint receives room_joined with the current state; the rest of
// the room receives participant_joined.
func (e *Engine) Join(ctx context.Context, endpoint, code string, role room.Role) error {
	start := e.clock.Now()
	err := e.join(ctx, endpoint, code, role)
	e.observe(EventJoinRoom, start, err)
	if err != nil {
		return e.sendError(endpoint, EventJoinError, code, err)
	}
	return nil
}

type joinResult struct {
	state    room.CurrentState
	clock    room.ClockView
	timer    string
	counts   room.Counts
	members  []room.Member
	deadline *time.Time
	first    *time.Time
	clients  []string
	displays []string
}

func (e *Engine) join(ctx context.Context, endpoint, code string, role room.Role) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return newError(CodeInvalidPayload, "accessCode is required", room.ErrInvalidPayload)
	}
	if !role.Valid() {
		return newError(CodeInvalidPayload, fmt.Sprintf("unknown role %q", role), room.ErrInvalidPayload)
	}

	sess, _ := e.sessions.Get(endpoint)
	if e.guard != nil {
		ac, err := e.store.GetAccessCode(ctx, code)
		if err != nil {
			return err
		}
		if err := e.guard.AllowJoin(ctx, sess, *ac, role); err != nil {
			return err
		}
	}

	if sess.Room != "" && sess.Room != code {
		e.leave(ctx, endpoint, sess.Room)
	}

	// Subscribe first so no broadcast between the snapshot and the reply is lost.
	e.transport.Join(endpoint, code)

	var res joinResult
	var err error
	for attempt := 0; attempt < e.cfg.JoinRetries; attempt++ {
		res, err = e.attach(ctx, endpoint, code, role)
		if !errors.Is(err, room.ErrRoomClosed) {
			break
		}
		log.Debug().Str("access_code", code).Int("attempt", attempt+1).Msg("join raced room eviction, retrying")
	}
	if err != nil {
		e.transport.Leave(endpoint, code)
		if errors.Is(err, room.ErrRoomClosed) {
			return fmt.Errorf("%w: %s", ErrRoomNotFound, code)
		}
		e.evictAbandoned(ctx, code)
		return err
	}

	e.sessions.OnJoin(endpoint, code, role)

	if res.first != nil {
		e.persister.Enqueue(persist.Job{
			Code:      code,
			Op:        persist.OpFirstDisplay,
			Origin:    endpoint,
			Event:     EventJoinRoom,
			ExpiredAt: *res.first,
		})
		log.Info().
			Str("access_code", code).
			Time("expired_at", *res.first).
			Msg("first display attached, session deadline set")
	}
	e.syncRoster(code, endpoint, EventJoinRoom, res.clients, res.displays)
	if res.deadline != nil {
		e.scheduler.Arm(code, *res.deadline)
	}

	payload := RoomJoinedPayload{
		Role:       string(role),
		State:      res.state,
		Clock:      ClockPayload{Display: res.clock.Display, Running: res.clock.Running, State: res.timer},
		Counts:     res.counts,
		EndpointID: endpoint,
		Members:    memberIDs(res.members),
	}
	if res.deadline != nil {
		s := res.deadline.UTC().Format(time.RFC3339)
		payload.ExpiresAt = &s
	}
	e.transport.SendTo(endpoint, e.message(EventRoomJoined, code, payload))
	e.publish(code, e.message(EventParticipantJoined, code, ParticipantPayload{
		EndpointID: endpoint,
		Role:       string(role),
		Counts:     res.counts,
	}))
	e.observeGauges()

	log.Info().
		Str("access_code", code).
		Str("endpoint", endpoint).
		Str("role", string(role)).
		Msg("endpoint joined room")
	return nil
}

// evictAbandoned drops a room a failed join may have created and left empty.
// It runs on a fresh deadline since the join's own ctx has usually ended.
func (e *Engine) evictAbandoned(ctx context.Context, code string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), evictTimeout)
	defer cancel()
	if _, err := e.registry.EvictIfEmpty(ctx, code); err != nil {
		log.Warn().Err(err).Str("access_code", code).Msg("eviction after failed join failed")
	}
}

func (e *Engine) attach(ctx context.Context, endpoint, code string, role room.Role) (joinResult, error) {
	rm, err := e.registry.GetOrCreate(ctx, code)
	if err != nil {
		return joinResult{}, err
	}

	var res joinResult
	err = rm.Do(ctx, func(s *room.State) error {
		if s.AddMember(endpoint, role) {
			if deadline, set := s.AttachFirstDisplay(e.cfg.SessionTTL); set {
				res.first = &deadline
			}
		}
		if d, ok := s.Deadline(); ok {
			res.deadline = &d
		}
		res.clock = s.SyncClock()
		res.timer = string(s.Timer.State())
		res.state = s.Current.Clone()
		res.counts = s.Counts()
		res.members = s.Members()
		res.clients, res.displays = roster(s)
		return nil
	})
	return res, err
}

// Leave detaches endpoint from code. A leave for a room the endpoint is not
// in is ignored.
func (e *Engine) Leave(ctx context.Context, endpoint, code string) error {
	start := e.clock.Now()
	if code == "" {
		sess, _ := e.sessions.Get(endpoint)
		code = sess.Room
	}
	if code == "" {
		return nil
	}
	e.leave(ctx, endpoint, code)
	e.transport.SendTo(endpoint, e.message(EventRoomLeft, code, nil))
	e.observe(EventLeaveRoom, start, nil)
	return nil
}

// leave removes endpoint from the room, announces the departure and evicts
// the room when it became empty. The expiration timer stays armed.
func (e *Engine) leave(ctx context.Context, endpoint, code string) {
	if sess, ok := e.sessions.Get(endpoint); ok && sess.Room == code {
		e.sessions.OnLeave(endpoint)
	}
	e.transport.Leave(endpoint, code)

	rm := e.registry.Get(code)
	if rm == nil {
		return
	}

	var (
		role     room.Role
		removed  bool
		counts   room.Counts
		clients  []string
		displays []string
	)
	err := rm.Do(ctx, func(s *room.State) error {
		role, removed = s.RemoveMember(endpoint)
		counts = s.Counts()
		clients, displays = roster(s)
		return nil
	})
	if err != nil {
		if !errors.Is(err, room.ErrRoomClosed) {
			log.Warn().Err(err).Str("access_code", code).Str("endpoint", endpoint).Msg("failed to leave room")
		}
		return
	}
	if !removed {
		return
	}

	e.publish(code, e.message(EventParticipantLeft, code, ParticipantPayload{
		EndpointID: endpoint,
		Role:       string(role),
		Counts:     counts,
	}))
	e.syncRoster(code, endpoint, EventLeaveRoom, clients, displays)

	if _, err := e.registry.EvictIfEmpty(ctx, code); err != nil {
		log.Warn().Err(err).Str("access_code", code).Msg("eviction check failed")
	}
	e.observeGauges()

	log.Info().
		Str("access_code", code).
		Str("endpoint", endpoint).
		Str("role", string(role)).
		Msg("endpoint left room")
}

func (e *Engine) syncRoster(code, origin, event string, clients, displays []string) {
	e.persister.Enqueue(persist.Job{
		Code:     code,
		Op:       persist.OpRoster,
		Origin:   origin,
		Event:    event,
		Clients:  clients,
		Displays: displays,
	})
}

// roster splits members into the durable client and display lists.
func roster(s *room.State) (clients, displays []string) {
	clients = append(s.Endpoints(room.RoleAdmin), s.Endpoints(room.RoleViewer)...)
	displays = s.Endpoints(room.RoleDisplay)
	return clients, displays
}

func memberIDs(members []room.Member) []string {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.EndpointID
	}
	return ids
}
