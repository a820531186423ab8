package gateway

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/mcdev12/livescore/go/internal/room"
)

// RoomSnapshot is the admin view of one live room.
type RoomSnapshot struct {
	Code         string            `json:"access_code"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActivity time.Time         `json:"last_activity"`
	Counts       room.Counts       `json:"counts"`
	Members      []room.Member     `json:"members"`
	State        room.CurrentState `json:"state"`
	TimerState   string            `json:"timer_state"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`
}

// RoomSummary is one entry of ListActiveRooms.
type RoomSummary struct {
	Code      string      `json:"access_code"`
	CreatedAt time.Time   `json:"created_at"`
	Counts    room.Counts `json:"counts"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
}

// Health is the process health report.
type Health struct {
	Status        string  `json:"status"`
	Rooms         int     `json:"rooms"`
	Sessions      int     `json:"sessions"`
	PendingTimers int     `json:"pending_timers"`
	ParkedWrites  int     `json:"parked_writes"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Goroutines    int     `json:"goroutines"`
	HeapAlloc     uint64  `json:"heap_alloc_bytes"`
	Sys           uint64  `json:"sys_bytes"`
	StoreError    string  `json:"store_error,omitempty"`
}

// ForceExpireRoom expires code immediately.
func (e *Engine) ForceExpireRoom(ctx context.Context, code string) error {
	return e.ExpireRoom(ctx, code, ReasonAdmin)
}

// GetRoomSnapshot returns the live state of the room for code.
func (e *Engine) GetRoomSnapshot(ctx context.Context, code string) (*RoomSnapshot, error) {
	rm := e.registry.Get(code)
	if rm == nil {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}
	var snap RoomSnapshot
	err := rm.Do(ctx, func(s *room.State) error {
		s.SyncClock()
		snap = RoomSnapshot{
			Code:         s.Code,
			CreatedAt:    s.CreatedAt,
			LastActivity: s.LastActivity,
			Counts:       s.Counts(),
			Members:      s.Members(),
			State:        s.Current.Clone(),
			TimerState:   string(s.Timer.State()),
		}
		if d, ok := s.Deadline(); ok {
			snap.ExpiresAt = &d
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}
	return &snap, nil
}

// ListActiveRooms summarizes every live room, ordered by code.
func (e *Engine) ListActiveRooms(ctx context.Context) []RoomSummary {
	rooms := e.registry.List()
	out := make([]RoomSummary, 0, len(rooms))
	for _, rm := range rooms {
		sum := RoomSummary{Code: rm.Code(), CreatedAt: rm.CreatedAt()}
		err := rm.Do(ctx, func(s *room.State) error {
			sum.Counts = s.Counts()
			if d, ok := s.Deadline(); ok {
				sum.ExpiresAt = &d
			}
			return nil
		})
		if err != nil {
			continue
		}
		out = append(out, sum)
	}
	return out
}

// DisconnectEndpoint removes endpoint from its room and closes its connection.
func (e *Engine) DisconnectEndpoint(ctx context.Context, endpoint string) bool {
	if _, ok := e.sessions.Get(endpoint); !ok {
		return false
	}
	e.Disconnect(ctx, endpoint)
	e.transport.Disconnect(endpoint)
	return true
}

// GetHealth reports engine counters and process stats.
func (e *Engine) GetHealth(ctx context.Context) Health {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	h := Health{
		Status:        "ok",
		Rooms:         e.registry.Len(),
		Sessions:      e.sessions.Len(),
		PendingTimers: e.scheduler.Pending(),
		ParkedWrites:  e.persister.Parked(),
		UptimeSeconds: e.clock.Since(e.startedAt).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
		HeapAlloc:     mem.HeapAlloc,
		Sys:           mem.Sys,
	}
	if e.pinger != nil {
		if err := e.pinger.Ping(ctx); err != nil {
			h.Status = "degraded"
			h.StoreError = err.Error()
		}
	}
	return h
}
