package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/mcdev12/livescore/go/internal/room"
	"github.com/rs/zerolog/log"
)

// Expiration reasons.
const (
	ReasonDeadline = "deadline"
	ReasonAdmin    = "admin"
	ReasonRevoked  = "revoked"
)

// expireDue is the scheduler's expire function.
func (e *Engine) expireDue(ctx context.Context, code string) error {
	return e.ExpireRoom(ctx, code, ReasonDeadline)
}

// ExpireRoom ends the room for code: it marks the access code and room
// session expired, tells every endpoint, disconnects them and evicts the
// room. Calling it again for an expired code is a no-op apart from the
// durable writes, which are themselves idempotent.
func (e *Engine) ExpireRoom(ctx context.Context, code, reason string) error {
	var errs []error
	codeChanged, err := e.store.ExpireAccessCode(ctx, code)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to expire access code: %w", err))
	}
	sessionChanged, err := e.store.ExpireRoomSession(ctx, code)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to expire room session: %w", err))
	}

	members := e.closeRoom(ctx, code)
	if len(members) > 0 {
		msg := e.message(EventRoomExpired, code, ExpiredPayload{Reason: reason})
		e.publish(code, msg)
		for _, endpoint := range members {
			if sess, ok := e.sessions.Get(endpoint); ok && sess.Room == code {
				e.sessions.OnLeave(endpoint)
			}
			e.transport.Leave(endpoint, code)
			e.transport.Disconnect(endpoint)
		}
	}

	e.scheduler.Cancel(code)
	e.persister.Forget(code)
	if e.cache != nil {
		if err := e.cache.Delete(ctx, code); err != nil {
			log.Warn().Err(err).Str("access_code", code).Msg("failed to drop snapshot")
		}
	}
	e.observeGauges()

	if codeChanged || sessionChanged || len(members) > 0 {
		if e.metrics != nil {
			e.metrics.RoomExpired(reason)
		}
		log.Info().
			Str("access_code", code).
			Str("reason", reason).
			Int("disconnected", len(members)).
			Msg("room expired")
	}
	return errors.Join(errs...)
}

// closeRoom detaches and stops the live room and returns every endpoint
// that was attached to it, in the room or per the session tracker and
// transport.
func (e *Engine) closeRoom(ctx context.Context, code string) []string {
	seen := make(map[string]struct{})
	if rm := e.registry.Detach(code); rm != nil {
		err := rm.Do(ctx, func(s *room.State) error {
			for _, m := range s.Members() {
				seen[m.EndpointID] = struct{}{}
			}
			s.Close()
			return nil
		})
		if err != nil && !errors.Is(err, room.ErrRoomClosed) {
			log.Warn().Err(err).Str("access_code", code).Msg("failed to collect room members")
		}
		rm.Stop()
	}
	for _, endpoint := range e.sessions.InRoom(code) {
		seen[endpoint] = struct{}{}
	}
	for _, endpoint := range e.transport.Members(code) {
		seen[endpoint] = struct{}{}
	}

	members := make([]string, 0, len(seen))
	for endpoint := range seen {
		members = append(members, endpoint)
	}
	sort.Strings(members)
	return members
}
