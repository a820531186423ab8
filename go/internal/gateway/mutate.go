package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mcdev12/livescore/go/internal/models"
	"github.com/mcdev12/livescore/go/internal/persist"
	"github.com/mcdev12/livescore/go/internal/room"
	"github.com/rs/zerolog/log"
)

// HandleMutation authorizes, applies and broadcasts one *_update event, then
// queues its durable writes. Errors go to the sender only.
func (e *Engine) HandleMutation(ctx context.Context, endpoint, code, event string, data json.RawMessage) error {
	start := e.clock.Now()
	kind, ok := MutationKind(event)
	if !ok {
		err := newError(CodeInvalidPayload, fmt.Sprintf("unknown event %q", event), room.ErrInvalidPayload)
		return e.sendError(endpoint, EventError, code, err)
	}

	err := e.mutate(ctx, endpoint, code, event, kind, data)
	e.observe(event, start, err)
	if err != nil {
		return e.sendError(endpoint, kind.ErrorEvent(), code, err)
	}
	return nil
}

func (e *Engine) mutate(ctx context.Context, endpoint, code, event string, kind room.Kind, data json.RawMessage) error {
	rm := e.registry.Get(code)
	if rm == nil {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}
	e.sessions.Touch(endpoint)

	// Decoding happens outside the room goroutine, but a non-admin learns
	// nothing about payload validity.
	m, decodeErr := decodeMutation(kind, data)

	err := rm.Do(ctx, func(s *room.State) error {
		if !s.IsAdmin(endpoint) {
			return ErrUnauthorized
		}
		if decodeErr != nil {
			return decodeErr
		}
		res, err := s.Apply(m)
		if err != nil {
			return err
		}

		// Publishing from the room goroutine keeps broadcast order equal to
		// apply order.
		e.publish(code, e.message(kind.UpdatedEvent(), code, res.Data))
		e.enqueueResult(s, endpoint, event, res)
		return nil
	})
	if errors.Is(err, room.ErrRoomClosed) {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}
	if err != nil {
		return err
	}

	log.Debug().
		Str("access_code", code).
		Str("endpoint", endpoint).
		Str("event", event).
		Msg("mutation applied")
	return nil
}

// enqueueResult queues the durable writes of an applied mutation. It runs on
// the room goroutine.
func (e *Engine) enqueueResult(s *room.State, origin, event string, res room.Result) {
	if !res.Patch.Empty() {
		e.persister.Enqueue(persist.Job{
			Code:   s.Code,
			Op:     persist.OpMatchPatch,
			Origin: origin,
			Event:  event,
			Patch:  res.Patch,
		})
	}
	if o := res.Overlay; o != nil {
		e.persister.Enqueue(persist.Job{
			Code:   s.Code,
			Op:     persist.OpOverlay,
			Origin: origin,
			Event:  event,
			Overlay: &persist.OverlayOp{
				Behavior:     string(o.Behavior),
				PrevCodeLogo: o.PrevCodeLogo,
				Setting: models.DisplaySetting{
					AccessCode: s.Code,
					Type:       o.Type,
					CodeLogo:   o.Item.CodeLogo,
					Name:       o.Item.Name,
					URL:        o.Item.URL,
					Position:   o.Item.Position,
					CreatedAt:  s.Now(),
				},
			},
		})
	}
	e.enqueueSnapshot(s, origin, event)
}

func (e *Engine) enqueueSnapshot(s *room.State, origin, event string) {
	if e.cache == nil {
		return
	}
	raw, err := encodeSnapshot(s)
	if err != nil {
		log.Warn().Err(err).Str("access_code", s.Code).Msg("failed to encode snapshot")
		return
	}
	e.persister.Enqueue(persist.Job{
		Code:     s.Code,
		Op:       persist.OpSnapshot,
		Origin:   origin,
		Event:    event,
		Snapshot: raw,
	})
}

// OnPersistFailure reports a failed durable write to the endpoint that
// caused it. The live state and broadcast are not rolled back.
func (e *Engine) OnPersistFailure(job persist.Job, err error) {
	log.Error().
		Err(err).
		Str("access_code", job.Code).
		Str("op", string(job.Op)).
		Str("event", job.Event).
		Msg("durable write failed, parked for retry")
	if job.Origin == "" {
		return
	}
	e.transport.SendTo(job.Origin, e.message(EventPersistenceError, job.Code, ErrorPayload{
		Code:    CodePersistenceFailure,
		Message: "change applied live but not saved yet",
		Event:   job.Event,
	}))
}
