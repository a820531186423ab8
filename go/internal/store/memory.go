package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livescore/go/internal/models"
)

// ErrInjected is returned by a Memory store with failing writes.
var ErrInjected = errors.New("injected write failure")

type overlayKey struct {
	code     string
	typ      models.OverlayType
	codeLogo string
}

// Memory is an in-process store with the same semantics as Postgres. It
// backs tests and STORE_DRIVER=memory runs.
type Memory struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	codes    map[string]*models.AccessCode
	sessions map[string]*models.RoomSession
	matches  map[uuid.UUID]*models.Match
	overlays map[overlayKey]*models.DisplaySetting

	failWrites bool
	writes     int
}

func NewMemory(clock clockwork.Clock) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{
		clock:    clock,
		codes:    make(map[string]*models.AccessCode),
		sessions: make(map[string]*models.RoomSession),
		matches:  make(map[uuid.UUID]*models.Match),
		overlays: make(map[overlayKey]*models.DisplaySetting),
	}
}

// Seed inserts an access code bound to a new match and returns both.
func (m *Memory) Seed(code string, expiredAt *time.Time, match models.Match) (models.AccessCode, models.Match) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	if match.ID == uuid.Nil {
		match.ID = uuid.New()
	}
	if match.MatchTime == "" {
		match.MatchTime = "00:00"
	}
	match.UpdatedAt = now
	mt := match
	m.matches[match.ID] = &mt

	ac := models.AccessCode{
		Code:      code,
		Status:    models.AccessCodeStatusActive,
		MaxUses:   1,
		ExpiredAt: expiredAt,
		UserID:    uuid.New(),
		MatchID:   match.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	stored := ac
	m.codes[code] = &stored
	return ac, match
}

// SetAccessCodeStatus updates a code's status as CRUD tooling would.
func (m *Memory) SetAccessCodeStatus(code string, status models.AccessCodeStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ac, ok := m.codes[code]; ok {
		ac.Status = status
		ac.UpdatedAt = m.clock.Now()
	}
}

// FailWrites makes every subsequent write return ErrInjected.
func (m *Memory) FailWrites(fail bool) {
	m.mu.Lock()
	m.failWrites = fail
	m.mu.Unlock()
}

// Writes counts successful writes.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *Memory) write() error {
	if m.failWrites {
		return ErrInjected
	}
	m.writes++
	return nil
}

func (m *Memory) GetAccessCode(_ context.Context, code string) (*models.AccessCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ac, ok := m.codes[code]
	if !ok {
		return nil, fmt.Errorf("failed to get access code: %w", ErrNotFound)
	}
	c := *ac
	return &c, nil
}

func (m *Memory) EnsureRoomSession(_ context.Context, code string) (*models.RoomSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.codes[code]; !ok {
		return nil, fmt.Errorf("failed to ensure room session: %w", ErrNotFound)
	}
	now := m.clock.Now()
	rs, ok := m.sessions[code]
	if !ok {
		rs = &models.RoomSession{
			AccessCode:       code,
			ClientConnected:  []string{},
			DisplayConnected: []string{},
			CreatedAt:        now,
		}
		m.sessions[code] = rs
	}
	if rs.Status != models.RoomSessionStatusExpired {
		rs.Status = models.RoomSessionStatusActive
	}
	rs.UpdatedAt = now
	c := *rs
	return &c, nil
}

func (m *Memory) GetRoomSession(_ context.Context, code string) (*models.RoomSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.sessions[code]
	if !ok {
		return nil, fmt.Errorf("failed to get room session: %w", ErrNotFound)
	}
	c := *rs
	c.ClientConnected = append([]string{}, rs.ClientConnected...)
	c.DisplayConnected = append([]string{}, rs.DisplayConnected...)
	return &c, nil
}

func (m *Memory) matchFor(code string) (*models.Match, bool) {
	ac, ok := m.codes[code]
	if !ok {
		return nil, false
	}
	mt, ok := m.matches[ac.MatchID]
	return mt, ok
}

func (m *Memory) GetMatch(_ context.Context, code string) (*models.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt, ok := m.matchFor(code)
	if !ok {
		return nil, fmt.Errorf("failed to get match: %w", ErrNotFound)
	}
	c := *mt
	return &c, nil
}

func (m *Memory) ListDisplaySettings(_ context.Context, code string) ([]models.DisplaySetting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DisplaySetting
	for k, s := range m.overlays {
		if k.code == code {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Position < out[j].Position
	})
	return out, nil
}

func (m *Memory) UpdateMatch(_ context.Context, code string, patch models.MatchPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(); err != nil {
		return err
	}
	mt, ok := m.matchFor(code)
	if !ok {
		return fmt.Errorf("failed to update match for %s: %w", code, ErrNotFound)
	}
	patch.ApplyTo(mt)
	mt.UpdatedAt = m.clock.Now()
	return nil
}

func (m *Memory) MarkFirstDisplay(_ context.Context, code string, expiredAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(); err != nil {
		return false, err
	}
	rs, ok := m.sessions[code]
	if !ok || rs.ExpiredAt != nil || rs.Status == models.RoomSessionStatusExpired {
		return false, nil
	}
	at := expiredAt
	rs.ExpiredAt = &at
	rs.Status = models.RoomSessionStatusActive
	if ac, ok := m.codes[code]; ok && ac.Status.Joinable() {
		ac.Status = models.AccessCodeStatusUsed
		ac.UsageCount++
		ac.UpdatedAt = m.clock.Now()
	}
	return true, nil
}

func (m *Memory) SyncRoster(_ context.Context, code string, clients, displays []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(); err != nil {
		return err
	}
	if rs, ok := m.sessions[code]; ok && rs.Status != models.RoomSessionStatusExpired {
		rs.ClientConnected = append([]string{}, clients...)
		rs.DisplayConnected = append([]string{}, displays...)
		rs.UpdatedAt = m.clock.Now()
	}
	return nil
}

func (m *Memory) InsertDisplaySetting(_ context.Context, s models.DisplaySetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(); err != nil {
		return err
	}
	s.CreatedAt = m.clock.Now()
	m.overlays[overlayKey{s.AccessCode, s.Type, s.CodeLogo}] = &s
	return nil
}

func (m *Memory) UpdateDisplaySetting(_ context.Context, prevCodeLogo string, s models.DisplaySetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(); err != nil {
		return err
	}
	key := overlayKey{s.AccessCode, s.Type, prevCodeLogo}
	cur, ok := m.overlays[key]
	if !ok {
		return fmt.Errorf("failed to update display setting %s: %w", prevCodeLogo, ErrNotFound)
	}
	delete(m.overlays, key)
	s.CreatedAt = cur.CreatedAt
	m.overlays[overlayKey{s.AccessCode, s.Type, s.CodeLogo}] = &s
	return nil
}

func (m *Memory) DeleteDisplaySetting(_ context.Context, code string, t models.OverlayType, codeLogo string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(); err != nil {
		return err
	}
	delete(m.overlays, overlayKey{code, t, codeLogo})

	var rest []*models.DisplaySetting
	for k, s := range m.overlays {
		if k.code == code && k.typ == t {
			rest = append(rest, s)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].Position < rest[j].Position })
	for i, s := range rest {
		s.Position = i
	}
	return nil
}

func (m *Memory) ExpireAccessCode(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(); err != nil {
		return false, err
	}
	ac, ok := m.codes[code]
	if !ok || ac.Status.Terminal() {
		return false, nil
	}
	ac.Status = models.AccessCodeStatusExpired
	ac.UpdatedAt = m.clock.Now()
	return true, nil
}

func (m *Memory) ExpireRoomSession(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(); err != nil {
		return false, err
	}
	rs, ok := m.sessions[code]
	if !ok || rs.Status == models.RoomSessionStatusExpired {
		return false, nil
	}
	rs.Status = models.RoomSessionStatusExpired
	rs.ClientConnected = []string{}
	rs.DisplayConnected = []string{}
	rs.UpdatedAt = m.clock.Now()
	return true, nil
}

func (m *Memory) ListDueRoomSessions(_ context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for code, rs := range m.sessions {
		if rs.Status != models.RoomSessionStatusExpired && rs.ExpiredAt != nil && !rs.ExpiredAt.After(now) {
			out = append(out, code)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) ListDueAccessCodes(_ context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for code, ac := range m.codes {
		switch {
		case ac.Status.Joinable() && ac.ExpiredAt != nil && !ac.ExpiredAt.After(now):
			out = append(out, code)
		case !ac.Status.Joinable():
			if rs, ok := m.sessions[code]; ok && rs.Status != models.RoomSessionStatusExpired {
				out = append(out, code)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}
