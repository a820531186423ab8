package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livescore/go/internal/gateway"
	"github.com/mcdev12/livescore/go/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	mu           sync.Mutex
	connected    []string
	frames       map[string][]string
	disconnected []string
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{frames: make(map[string][]string)}
}

func (f *fakeHandler) Connect(endpoint string, id session.Identity) session.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = append(f.connected, endpoint)
	return session.Session{EndpointID: endpoint, UserID: id.UserID}
}

func (f *fakeHandler) HandleMessage(_ context.Context, endpoint string, raw []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames[endpoint] = append(f.frames[endpoint], string(raw))
}

func (f *fakeHandler) Disconnect(_ context.Context, endpoint string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = append(f.disconnected, endpoint)
}

func (f *fakeHandler) endpoints() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.connected...)
}

func (f *fakeHandler) framesFrom(endpoint string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.frames[endpoint]...)
}

func (f *fakeHandler) disconnects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.disconnected...)
}

func startHub(t *testing.T) (*Hub, *fakeHandler, string) {
	t.Helper()
	hub := NewHub(DefaultConfig())
	handler := newFakeHandler()
	hub.SetHandler(handler)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := session.Identity{UserID: r.URL.Query().Get("user")}
		if err := hub.Upgrade(w, r, id); err != nil {
			t.Logf("upgrade failed: %v", err)
		}
	}))
	t.Cleanup(func() {
		hub.Shutdown()
		srv.Close()
	})
	return hub, handler, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string, handler *fakeHandler, known int) (*websocket.Conn, string) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return len(handler.endpoints()) == known+1 }, time.Second, 5*time.Millisecond)
	return conn, handler.endpoints()[known]
}

func readMessage(t *testing.T, conn *websocket.Conn) gateway.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg gateway.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHubStampsConnectionsWithItsClock(t *testing.T) {
	hub, handler, url := startHub(t)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC))
	hub.SetClock(clock)

	_, endpoint := dial(t, url, handler, 0)

	hub.mu.RLock()
	c, ok := hub.conns[endpoint]
	hub.mu.RUnlock()
	require.True(t, ok)
	assert.Equal(t, clock.Now(), c.ConnectedAt)
}

func TestHubRoutesFramesToHandler(t *testing.T) {
	_, handler, url := startHub(t)
	conn, endpoint := dial(t, url+"?user=u1", handler, 0)

	frame := `{"event":"join_room","accessCode":"ABCDE","data":{"role":"viewer"}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))

	require.Eventually(t, func() bool { return len(handler.framesFrom(endpoint)) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, frame, handler.framesFrom(endpoint)[0])
}

func TestHubPublishReachesOnlyRoomMembers(t *testing.T) {
	hub, handler, url := startHub(t)
	connA, a := dial(t, url, handler, 0)
	connB, b := dial(t, url, handler, 1)

	hub.Join(a, "ROOM1")
	hub.Join(b, "ROOM2")
	assert.Equal(t, []string{a}, hub.Members("ROOM1"))

	hub.Publish("ROOM1", gateway.Message{Event: "score_updated", AccessCode: "ROOM1", Timestamp: time.Now()})
	hub.SendTo(b, gateway.Message{Event: "room_joined", AccessCode: "ROOM2", Timestamp: time.Now()})

	assert.Equal(t, "score_updated", readMessage(t, connA).Event)
	assert.Equal(t, "room_joined", readMessage(t, connB).Event)

	// Joining a second room moves the subscription.
	hub.Join(a, "ROOM2")
	assert.Empty(t, hub.Members("ROOM1"))
	assert.ElementsMatch(t, []string{a, b}, hub.Members("ROOM2"))

	hub.Leave(a, "ROOM2")
	assert.Equal(t, []string{b}, hub.Members("ROOM2"))
	assert.Equal(t, 2, hub.Stats().Connections)
}

func TestHubDisconnectClosesSocket(t *testing.T) {
	hub, handler, url := startHub(t)
	conn, endpoint := dial(t, url, handler, 0)
	hub.Join(endpoint, "ROOM1")

	hub.Disconnect(endpoint)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNoStatusReceived, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure))

	require.Eventually(t, func() bool { return len(handler.disconnects()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, endpoint, handler.disconnects()[0])
	assert.Empty(t, hub.Members("ROOM1"))
	assert.Equal(t, 0, hub.Stats().Connections)

	// Sends to a closed endpoint are dropped.
	hub.SendTo(endpoint, gateway.Message{Event: "late"})
	hub.Disconnect(endpoint)
}

func TestHubClosesSlowConsumer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SendBufferSize = 1
	hub := NewHub(cfg)
	c := &Connection{ID: "slow", Send: make(chan []byte, 1), hub: hub}
	hub.register(c)
	hub.Join("slow", "ROOM1")

	hub.Publish("ROOM1", gateway.Message{Event: "one"})
	hub.Publish("ROOM1", gateway.Message{Event: "two"})

	assert.Empty(t, hub.Members("ROOM1"))
	assert.Equal(t, 0, hub.Stats().Connections)
	assert.True(t, c.isClosed())

	// The buffered frame is still drained by the write pump.
	data, ok := <-c.Send
	require.True(t, ok)
	assert.Contains(t, string(data), `"event":"one"`)
	_, ok = <-c.Send
	assert.False(t, ok)
}
