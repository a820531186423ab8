package gateway

import (
	"encoding/json"
	"time"
)

// Inbound event names.
const (
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventTimerStart  = "timer_start"
	EventTimerPause  = "timer_pause"
	EventTimerResume = "timer_resume"
	EventTimerReset  = "timer_reset"
	EventTimerSync   = "timer_sync"
)

// Outbound event names.
const (
	EventRoomJoined        = "room_joined"
	EventRoomLeft          = "room_left"
	EventRoomExpired       = "room_expired"
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
	EventTimerStarted      = "timer_started"
	EventTimerPaused       = "timer_paused"
	EventTimerResumed      = "timer_resumed"
	EventTimerWasReset     = "timer_reset"
	EventTimerSynced       = "timer_synced"
	EventTimerTick         = "timer_tick"
	EventJoinError         = "join_error"
	EventTimerError        = "timer_error"
	EventPersistenceError  = "persistence_error"
	EventError             = "error"
)

// Envelope is one inbound client message.
type Envelope struct {
	Event      string          `json:"event"`
	AccessCode string          `json:"accessCode"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Message is one outbound fact or error.
type Message struct {
	Event      string    `json:"event"`
	AccessCode string    `json:"accessCode,omitempty"`
	Data       any       `json:"data,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// JoinPayload is the data of join_room.
type JoinPayload struct {
	Role string `json:"role"`
}

// RoomJoinedPayload is sent to the joining endpoint only.
type RoomJoinedPayload struct {
	Role       string   `json:"role"`
	State      any      `json:"state"`
	Clock      any      `json:"clock"`
	Counts     any      `json:"counts"`
	ExpiresAt  *string  `json:"expiresAt,omitempty"`
	EndpointID string   `json:"endpointId"`
	Members    []string `json:"members,omitempty"`
}

// ParticipantPayload announces a join or departure.
type ParticipantPayload struct {
	EndpointID string `json:"endpointId"`
	Role       string `json:"role"`
	Counts     any    `json:"counts"`
}

// TimerPayload is the data of timer_reset and timer_start.
type TimerPayload struct {
	// Base is the MM:SS offset to reset or start at.
	Base string `json:"base,omitempty"`
}

// ClockPayload is the data of every outbound timer event.
type ClockPayload struct {
	Display string `json:"display"`
	Running bool   `json:"running"`
	State   string `json:"state"`
}

// ExpiredPayload is the data of room_expired.
type ExpiredPayload struct {
	Reason string `json:"reason"`
}

// ErrorPayload is the data of every *_error event.
type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Event   string    `json:"event,omitempty"`
}
