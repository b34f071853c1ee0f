package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/observer/proctord/internal/analysis"
	"github.com/observer/proctord/internal/pubsub"
	"github.com/observer/proctord/internal/room"
	"github.com/observer/proctord/internal/rules"
	rtc "github.com/observer/proctord/internal/webrtc"
)

type fixture struct {
	registry *room.Registry
	engine   *rules.Engine
	srv      *httptest.Server
}

func newFixture(t *testing.T, sfuEnabled bool) *fixture {
	t.Helper()

	ps := pubsub.NewMemoryPubSub()
	registry := room.NewRegistry(100, nil)
	engine := rules.NewEngine(nil)
	media, err := rtc.NewCore(sfuEnabled, nil, ps, nil)
	require.NoError(t, err)
	runner := analysis.NewRunner(registry, engine, nil)

	registry.OnDestroy(engine.DropRoom)
	registry.OnDestroy(media.CloseRoom)
	registry.OnDestroy(runner.StopRoom)

	handler := NewHandler(registry, engine, media, runner, ps, false, nil)

	mux := http.NewServeMux()
	mux.Handle("GET /ws/{roomId}", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Cleanup(func() { ps.Close() })

	return &fixture{registry: registry, engine: engine, srv: srv}
}

func (f *fixture) dial(t *testing.T, roomID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws/" + roomID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (f *fixture) join(t *testing.T, roomID, userID, role string) *websocket.Conn {
	t.Helper()
	conn := f.dial(t, roomID)
	sendJSON(t, conn, map[string]any{"type": "join", "userId": userID, "role": role})
	msg := readJSON(t, conn)
	require.Equal(t, "roster", msg["type"], "expected roster, got %v", msg)
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(payload, &msg))
	return msg
}

// readUntil skips frames until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		msg := readJSON(t, conn)
		if msg["type"] == msgType {
			return msg
		}
	}
	t.Fatalf("no %q frame received", msgType)
	return nil
}

func TestJoin_FirstFrameMustBeJoin(t *testing.T) {
	f := newFixture(t, false)
	conn := f.dial(t, "r1")

	sendJSON(t, conn, map[string]any{"type": "chat", "text": "hi"})
	msg := readJSON(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "expected_join", msg["reason"])

	// Server closes after the protocol error.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestJoin_MissingUserID(t *testing.T) {
	f := newFixture(t, false)
	conn := f.dial(t, "r1")

	sendJSON(t, conn, map[string]any{"type": "join", "role": "candidate"})
	msg := readJSON(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "missing_userId", msg["reason"])
}

func TestJoin_DuplicateUserID(t *testing.T) {
	f := newFixture(t, false)
	f.join(t, "r1", "u1", "candidate")

	dup := f.dial(t, "r1")
	sendJSON(t, dup, map[string]any{"type": "join", "userId": "u1", "role": "observer"})
	msg := readJSON(t, dup)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "user_exists", msg["reason"])
}

func TestJoin_RosterAndPresence(t *testing.T) {
	f := newFixture(t, false)

	c1 := f.join(t, "r1", "c1", "candidate")
	_ = f.join(t, "r1", "p", "proctor")

	joined := readUntil(t, c1, "participant_joined")
	assert.Equal(t, "p", joined["userId"])
	assert.Equal(t, "proctor", joined["role"])

	// A third joiner sees both in its roster snapshot.
	conn := f.dial(t, "r1")
	sendJSON(t, conn, map[string]any{"type": "join", "userId": "obs", "role": "observer"})
	roster := readJSON(t, conn)
	require.Equal(t, "roster", roster["type"])
	assert.Len(t, roster["participants"], 3)
}

func TestChat_FanOutStampsOrigin(t *testing.T) {
	f := newFixture(t, false)

	c1 := f.join(t, "r1", "c1", "candidate")
	c2 := f.join(t, "r1", "c2", "candidate")
	p := f.join(t, "r1", "p", "proctor")

	// Spoofed from is overwritten with the true sender.
	sendJSON(t, p, map[string]any{"type": "chat", "text": "hi", "from": "c2"})

	for _, conn := range []*websocket.Conn{c1, c2} {
		msg := readUntil(t, conn, "chat")
		assert.Equal(t, "p", msg["from"])
		assert.Equal(t, "hi", msg["text"])
	}
}

func TestDirectedRouting(t *testing.T) {
	f := newFixture(t, false)

	c1 := f.join(t, "r1", "c1", "candidate")
	c2 := f.join(t, "r1", "c2", "candidate")
	p := f.join(t, "r1", "p", "proctor")

	// SFU is off, so offers fan out P2P; `to` restricts to one receiver.
	sendJSON(t, p, map[string]any{"type": "offer", "to": "c1", "sdp": "v=0"})

	msg := readUntil(t, c1, "offer")
	assert.Equal(t, "p", msg["from"])
	assert.Equal(t, "v=0", msg["sdp"])

	// c2 sees presence traffic but never the directed offer.
	sendJSON(t, p, map[string]any{"type": "chat", "text": "done"})
	got := readUntil(t, c2, "chat")
	assert.Equal(t, "done", got["text"])
}

func TestUnknownType_KeepsChannelOpen(t *testing.T) {
	f := newFixture(t, false)
	c1 := f.join(t, "r1", "c1", "candidate")

	sendJSON(t, c1, map[string]any{"type": "teleport"})
	msg := readUntil(t, c1, "error")
	assert.Equal(t, "unknown_type", msg["reason"])

	// Channel still works afterwards.
	sendJSON(t, c1, map[string]any{"type": "nonsense"})
	msg = readUntil(t, c1, "error")
	assert.Equal(t, "unknown_type", msg["reason"])
}

func TestInvalidJSON_KeepsChannelOpen(t *testing.T) {
	f := newFixture(t, false)
	c1 := f.join(t, "r1", "c1", "candidate")

	require.NoError(t, c1.WriteMessage(websocket.TextMessage, []byte("{nope")))
	msg := readUntil(t, c1, "error")
	assert.Equal(t, "invalid_json", msg["reason"])
}

func TestIncident_ProcessedAndBroadcast(t *testing.T) {
	f := newFixture(t, false)

	c1 := f.join(t, "r1", "c1", "candidate")
	p := f.join(t, "r1", "p", "proctor")
	readUntil(t, c1, "participant_joined")

	sendJSON(t, c1, map[string]any{
		"type": "incident", "tag": "A3", "note": "tab switch", "ts": 1000, "by": "c1",
	})

	msg := readUntil(t, p, "incident")
	assert.Equal(t, "A3", msg["tag"])
	assert.Equal(t, "S1", msg["level"])
	assert.Equal(t, "c1", msg["from"])
	assert.Equal(t, "r1", msg["roomId"])
	assert.Equal(t, float64(1), msg["escalated"])
	assert.Equal(t, "active", msg["sessionStatus"])

	// The room log retains it.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if rm := f.registry.Get("r1"); rm != nil && len(rm.Incidents()) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Len(t, f.registry.Get("r1").Incidents(), 1)
}

func TestLeave_TeardownAndRegistryConsistency(t *testing.T) {
	f := newFixture(t, false)

	c1 := f.join(t, "r1", "c1", "candidate")
	p := f.join(t, "r1", "p", "proctor")
	readUntil(t, c1, "participant_joined")

	sendJSON(t, c1, map[string]any{"type": "leave"})

	left := readUntil(t, p, "participant_left")
	assert.Equal(t, "c1", left["userId"])

	// Last participant out destroys the room.
	sendJSON(t, p, map[string]any{"type": "leave"})
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.registry.Count() == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 0, f.registry.Count())
}

func TestAbruptDisconnect_BroadcastsLeft(t *testing.T) {
	f := newFixture(t, false)

	c1 := f.join(t, "r1", "c1", "candidate")
	p := f.join(t, "r1", "p", "proctor")
	readUntil(t, c1, "participant_joined")

	c1.Close()

	left := readUntil(t, p, "participant_left")
	assert.Equal(t, "c1", left["userId"])
}
