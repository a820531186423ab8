package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/livescore/go/internal/models"
	"github.com/mcdev12/livescore/go/internal/room"
	"github.com/mcdev12/livescore/go/internal/store"
)

// HandleMessage routes one raw inbound frame from endpoint.
func (e *Engine) HandleMessage(ctx context.Context, endpoint string, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		e.sendError(endpoint, EventError, "", newError(CodeInvalidPayload, "malformed envelope", room.ErrInvalidPayload))
		return
	}
	e.Dispatch(ctx, endpoint, env)
}

// Dispatch routes a decoded envelope. An empty accessCode falls back to the
// room the endpoint is in.
func (e *Engine) Dispatch(ctx context.Context, endpoint string, env Envelope) {
	code := env.AccessCode
	if code == "" && env.Event != EventJoinRoom {
		if sess, ok := e.sessions.Get(endpoint); ok {
			code = sess.Room
		}
	}

	switch {
	case env.Event == EventJoinRoom:
		var p JoinPayload
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &p); err != nil {
				e.sendError(endpoint, EventJoinError, code, newError(CodeInvalidPayload, "malformed join data", room.ErrInvalidPayload))
				return
			}
		}
		_ = e.Join(ctx, endpoint, code, room.Role(p.Role))
	case env.Event == EventLeaveRoom:
		_ = e.Leave(ctx, endpoint, code)
	case IsTimerEvent(env.Event):
		_ = e.HandleTimer(ctx, endpoint, code, env.Event, env.Data)
	default:
		_ = e.HandleMutation(ctx, endpoint, code, env.Event, env.Data)
	}
}

// HandleCodeChange force-expires the room of a code that was revoked or
// expired out of band.
func (e *Engine) HandleCodeChange(ctx context.Context, change store.AccessCodeChange) error {
	reason := ReasonRevoked
	if change.Status == models.AccessCodeStatusExpired {
		reason = ReasonDeadline
	}
	if err := e.ExpireRoom(ctx, change.Code, reason); err != nil {
		return fmt.Errorf("failed to expire room after code change: %w", err)
	}
	return nil
}

func (e *Engine) observe(event string, start time.Time, err error) {
	if e.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(classify(err).Code)
		if errors.Is(err, context.Canceled) {
			outcome = "canceled"
		}
	}
	e.metrics.ObserveEvent(event, outcome, e.clock.Since(start))
}
