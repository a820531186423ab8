package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mcdev12/livescore/go/internal/auth"
	"github.com/mcdev12/livescore/go/internal/gateway"
	"github.com/mcdev12/livescore/go/internal/room"
	"github.com/mcdev12/livescore/go/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdmin struct {
	rooms       map[string]*gateway.RoomSnapshot
	expired     []string
	endpoints   map[string]bool
	health      gateway.Health
	expireError error
}

func newFakeAdmin() *fakeAdmin {
	return &fakeAdmin{
		rooms: map[string]*gateway.RoomSnapshot{
			"ABC123": {Code: "ABC123", Counts: room.Counts{Admins: 1, Displays: 2}},
		},
		endpoints: map[string]bool{"ep-1": true},
		health:    gateway.Health{Status: "ok", Rooms: 1},
	}
}

func (f *fakeAdmin) ForceExpireRoom(_ context.Context, code string) error {
	if f.expireError != nil {
		return f.expireError
	}
	f.expired = append(f.expired, code)
	delete(f.rooms, code)
	return nil
}

func (f *fakeAdmin) GetRoomSnapshot(_ context.Context, code string) (*gateway.RoomSnapshot, error) {
	snap, ok := f.rooms[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", gateway.ErrRoomNotFound, code)
	}
	return snap, nil
}

func (f *fakeAdmin) ListActiveRooms(context.Context) []gateway.RoomSummary {
	out := make([]gateway.RoomSummary, 0, len(f.rooms))
	for code, snap := range f.rooms {
		out = append(out, gateway.RoomSummary{Code: code, Counts: snap.Counts})
	}
	return out
}

func (f *fakeAdmin) DisconnectEndpoint(_ context.Context, endpoint string) bool {
	ok := f.endpoints[endpoint]
	delete(f.endpoints, endpoint)
	return ok
}

func (f *fakeAdmin) GetHealth(context.Context) gateway.Health { return f.health }

type fakeUpgrader struct {
	ids []session.Identity
}

func (f *fakeUpgrader) Upgrade(w http.ResponseWriter, _ *http.Request, id session.Identity) error {
	f.ids = append(f.ids, id)
	w.WriteHeader(http.StatusSwitchingProtocols)
	return nil
}

func do(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestOpenAdminAPI(t *testing.T) {
	admin := newFakeAdmin()
	h := NewHandler(Options{Admin: admin, Upgrader: &fakeUpgrader{}})

	rec := do(t, h, http.MethodGet, "/api/rooms", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rooms []gateway.RoomSummary `json:"rooms"`
		Count int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, "ABC123", list.Rooms[0].Code)

	rec = do(t, h, http.MethodGet, "/api/rooms/ABC123", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap gateway.RoomSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 2, snap.Counts.Displays)

	rec = do(t, h, http.MethodGet, "/api/rooms/NOPE", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/rooms/ABC123/expire", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"ABC123"}, admin.expired)

	rec = do(t, h, http.MethodPost, "/api/endpoints/ep-1/disconnect", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/endpoints/ep-1/disconnect", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminAPIRequiresAdminToken(t *testing.T) {
	jwt := auth.New("secret", "")
	adminTok, err := jwt.Sign("u-admin", true, time.Hour)
	require.NoError(t, err)
	viewerTok, err := jwt.Sign("u-viewer", false, time.Hour)
	require.NoError(t, err)

	h := NewHandler(Options{Admin: newFakeAdmin(), Upgrader: &fakeUpgrader{}, Auth: jwt})

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"garbage", "not-a-jwt", http.StatusUnauthorized},
		{"viewer", viewerTok, http.StatusForbidden},
		{"admin", adminTok, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/api/rooms", tt.token)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestWebsocketHandshakeIdentity(t *testing.T) {
	jwt := auth.New("secret", "")
	tok, err := jwt.Sign("u-1", true, time.Hour)
	require.NoError(t, err)

	up := &fakeUpgrader{}
	h := NewHandler(Options{Admin: newFakeAdmin(), Upgrader: up, Auth: jwt})

	rec := do(t, h, http.MethodGet, "/ws?token="+tok, "")
	assert.Equal(t, http.StatusSwitchingProtocols, rec.Code)

	rec = do(t, h, http.MethodGet, "/ws", "")
	assert.Equal(t, http.StatusSwitchingProtocols, rec.Code)

	rec = do(t, h, http.MethodGet, "/ws?token=bad", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	require.Len(t, up.ids, 2)
	assert.Equal(t, session.Identity{UserID: "u-1", Admin: true}, up.ids[0])
	assert.Equal(t, session.Identity{}, up.ids[1])
}

func TestHealthStatus(t *testing.T) {
	admin := newFakeAdmin()
	h := NewHandler(Options{Admin: admin, Upgrader: &fakeUpgrader{}})

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"rooms":1`)

	admin.health = gateway.Health{Status: "degraded", StoreError: "connection refused"}
	rec = do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("livescore_rooms 1\n"))
	})
	h := NewHandler(Options{Admin: newFakeAdmin(), Upgrader: &fakeUpgrader{}, Metrics: metrics})

	rec := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "livescore_rooms")
}
