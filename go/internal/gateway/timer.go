package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/livescore/go/internal/matchclock"
	"github.com/mcdev12/livescore/go/internal/models"
	"github.com/mcdev12/livescore/go/internal/persist"
	"github.com/mcdev12/livescore/go/internal/room"
	"github.com/rs/zerolog/log"
)

var timerReplies = map[string]string{
	EventTimerStart:  EventTimerStarted,
	EventTimerPause:  EventTimerPaused,
	EventTimerResume: EventTimerResumed,
	EventTimerReset:  EventTimerWasReset,
	EventTimerSync:   EventTimerSynced,
}

// IsTimerEvent reports whether event is a clock command.
func IsTimerEvent(event string) bool {
	_, ok := timerReplies[event]
	return ok
}

// HandleTimer runs one clock command. start/pause/resume/reset are admin-only
// and broadcast; sync is open to every member and answered to the sender.
func (e *Engine) HandleTimer(ctx context.Context, endpoint, code, event string, data json.RawMessage) error {
	start := e.clock.Now()
	err := e.timer(ctx, endpoint, code, event, data)
	e.observe(event, start, err)
	if err != nil {
		return e.sendError(endpoint, EventTimerError, code, err)
	}
	return nil
}

func (e *Engine) timer(ctx context.Context, endpoint, code, event string, data json.RawMessage) error {
	reply, ok := timerReplies[event]
	if !ok {
		return newError(CodeInvalidPayload, fmt.Sprintf("unknown timer event %q", event), room.ErrInvalidPayload)
	}
	rm := e.registry.Get(code)
	if rm == nil {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}
	e.sessions.Touch(endpoint)

	base, parseErr := parseTimerBase(data)

	err := rm.Do(ctx, func(s *room.State) error {
		if event == EventTimerSync {
			if _, member := s.RoleOf(endpoint); !member {
				return ErrUnauthorized
			}
			e.transport.SendTo(endpoint, e.message(reply, code, clockPayload(s)))
			return nil
		}
		if !s.IsAdmin(endpoint) {
			return ErrUnauthorized
		}
		if parseErr != nil {
			return parseErr
		}

		persistTime := false
		switch event {
		case EventTimerStart:
			if base != nil {
				s.Timer.StartAt(*base)
			} else {
				s.Timer.Start()
			}
		case EventTimerPause:
			s.Timer.Pause()
			persistTime = true
		case EventTimerResume:
			s.Timer.Resume()
		case EventTimerReset:
			var offset time.Duration
			if base != nil {
				offset = *base
			}
			s.Timer.Reset(offset)
			persistTime = true
		}
		s.Touch()

		payload := clockPayload(s)
		e.publish(code, e.message(reply, code, payload))
		if persistTime {
			display := payload.Display
			e.persister.Enqueue(persist.Job{
				Code:   code,
				Op:     persist.OpMatchPatch,
				Origin: endpoint,
				Event:  event,
				Patch:  models.MatchPatch{MatchTime: &display},
			})
		}
		e.enqueueSnapshot(s, endpoint, event)
		return nil
	})
	if errors.Is(err, room.ErrRoomClosed) {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}
	return err
}

// clockPayload refreshes the room clock view and renders it.
func clockPayload(s *room.State) ClockPayload {
	view := s.SyncClock()
	return ClockPayload{Display: view.Display, Running: view.Running, State: string(s.Timer.State())}
}

func parseTimerBase(data json.RawMessage) (*time.Duration, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var p TimerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, invalidf("malformed timer data: %v", err)
	}
	if p.Base == "" {
		return nil, nil
	}
	d, err := matchclock.Parse(p.Base)
	if err != nil {
		return nil, invalidf("%v", err)
	}
	return &d, nil
}

// runTicker recomputes every running clock once per interval and broadcasts
// timer_tick when the rendered display changed.
func (e *Engine) runTicker(ctx context.Context) error {
	ticker := e.clock.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			e.Tick(ctx)
		}
	}
}

// Tick runs one clock tick over every live room.
func (e *Engine) Tick(ctx context.Context) {
	for _, rm := range e.registry.List() {
		code := rm.Code()
		err := rm.Do(ctx, func(s *room.State) error {
			if !s.Timer.Running() {
				return nil
			}
			display, changed := s.Timer.Tick()
			if !changed {
				return nil
			}
			s.Current.Clock = room.ClockView{Display: display, Running: true}
			e.publish(code, e.message(EventTimerTick, code, ClockPayload{
				Display: display,
				Running: true,
				State:   string(matchclock.StateRunning),
			}))
			if e.metrics != nil {
				e.metrics.TickBroadcast()
			}
			return nil
		})
		if err != nil && !errors.Is(err, room.ErrRoomClosed) {
			log.Warn().Err(err).Str("access_code", code).Msg("clock tick failed")
		}
	}
}
