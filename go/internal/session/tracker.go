// Package session tracks which room and role each connected endpoint holds.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livescore/go/internal/room"
)

// Identity is what the transport handshake established about an endpoint.
type Identity struct {
	UserID string
	// Admin is set when the handshake carried a token granting the admin role.
	Admin bool
}

// Session is the in-memory record of one connected endpoint.
type Session struct {
	EndpointID   string     `json:"endpoint_id"`
	UserID       string     `json:"user_id,omitempty"`
	Admin        bool       `json:"admin"`
	Role         room.Role  `json:"role,omitempty"`
	Room         string     `json:"room,omitempty"`
	ConnectedAt  time.Time  `json:"connected_at"`
	JoinedAt     *time.Time `json:"joined_at,omitempty"`
	LastActivity time.Time  `json:"last_activity"`
}

// Tracker maps endpoints to sessions. Safe for concurrent use.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	clock    clockwork.Clock
}

func NewTracker(clock clockwork.Clock) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{sessions: make(map[string]*Session), clock: clock}
}

// OnConnect registers a new endpoint.
func (t *Tracker) OnConnect(endpoint string, id Identity) Session {
	now := t.clock.Now()
	s := &Session{EndpointID: endpoint, UserID: id.UserID, Admin: id.Admin, ConnectedAt: now, LastActivity: now}
	t.mu.Lock()
	t.sessions[endpoint] = s
	t.mu.Unlock()
	return *s
}

// OnJoin records that endpoint joined code under role and returns the room it
// was previously in, if different.
func (t *Tracker) OnJoin(endpoint, code string, role room.Role) (prior string, ok bool) {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	s, exists := t.sessions[endpoint]
	if !exists {
		s = &Session{EndpointID: endpoint, ConnectedAt: now}
		t.sessions[endpoint] = s
	}
	if s.Room != "" && s.Room != code {
		prior, ok = s.Room, true
	}
	s.Room = code
	s.Role = role
	s.JoinedAt = &now
	s.LastActivity = now
	return prior, ok
}

// OnLeave clears the endpoint's room. It returns the room it left.
func (t *Tracker) OnLeave(endpoint string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[endpoint]
	if !ok || s.Room == "" {
		return "", false
	}
	code := s.Room
	s.Room = ""
	s.Role = ""
	s.JoinedAt = nil
	s.LastActivity = t.clock.Now()
	return code, true
}

// OnDisconnect forgets the endpoint and returns its final session.
func (t *Tracker) OnDisconnect(endpoint string) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[endpoint]
	if !ok {
		return Session{}, false
	}
	delete(t.sessions, endpoint)
	return *s, true
}

// Get returns a copy of the endpoint's session.
func (t *Tracker) Get(endpoint string) (Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[endpoint]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Touch records activity for endpoint.
func (t *Tracker) Touch(endpoint string) {
	t.mu.Lock()
	if s, ok := t.sessions[endpoint]; ok {
		s.LastActivity = t.clock.Now()
	}
	t.mu.Unlock()
}

// Len is the number of connected endpoints.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// InRoom lists the endpoints whose current room is code, sorted.
func (t *Tracker) InRoom(code string) []string {
	t.mu.RLock()
	var ids []string
	for id, s := range t.sessions {
		if s.Room == code {
			ids = append(ids, id)
		}
	}
	t.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
