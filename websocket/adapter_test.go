package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kunalpanche/Collaborative-Whiteboard/domain"
	"github.com/Kunalpanche/Collaborative-Whiteboard/hub"
	"github.com/Kunalpanche/Collaborative-Whiteboard/protocol"
	"github.com/Kunalpanche/Collaborative-Whiteboard/router"
	"github.com/Kunalpanche/Collaborative-Whiteboard/store"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type testServer struct {
	*httptest.Server
	hub *hub.Hub
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	h := hub.New()
	r := router.New(store.NewMemory(), h, router.Config{MaxAppendRetries: 1})
	srv := httptest.NewServer(Handler(r, protocol.NewHandler(r), opts))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, hub: h}
}

func (s *testServer) dial(t *testing.T, query string, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func readHistory(t *testing.T, conn *websocket.Conn) domain.HistoryPayload {
	t.Helper()
	env := read(t, conn)
	require.Equal(t, protocol.TypeHistory, env.Type)
	var h domain.HistoryPayload
	require.NoError(t, json.Unmarshal(env.Data, &h))
	return h
}

func waitSessions(t *testing.T, h *hub.Hub, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, sessions := h.Stats()
		return sessions == want
	}, 2*time.Second, 5*time.Millisecond)
}

const draw = `{"type":"draw","data":{"tool":"pencil","x":10,"y":10,"endX":12,"endY":12,"color":"#000","size":2,"userName":"alice"}}`

func TestGateway_DrawRelayAndReplay(t *testing.T) {
	srv := newTestServer(t, Options{})

	a := srv.dial(t, "board=room1&user=alice", nil)
	b := srv.dial(t, "board=room1&user=bob", nil)
	assert.Empty(t, readHistory(t, a).Events)
	assert.Empty(t, readHistory(t, b).Events)
	waitSessions(t, srv.hub, 2)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(draw)))

	env := read(t, b)
	require.Equal(t, protocol.TypeDraw, env.Type)
	var ev domain.DrawingEvent
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	assert.Equal(t, uint64(1), ev.Sequence)
	assert.Equal(t, "room1", ev.BoardID)
	assert.Equal(t, "alice", ev.UserName)

	d := srv.dial(t, "board=room1&user=dave", nil)
	history := readHistory(t, d)
	assert.Equal(t, "room1", history.Board)
	require.Len(t, history.Events, 1)
	assert.Equal(t, uint64(1), history.Events[0].Sequence)
	assert.Equal(t, domain.ToolPencil, history.Events[0].Tool)
}

func TestGateway_InvalidEventReportedToSenderOnly(t *testing.T) {
	srv := newTestServer(t, Options{})

	a := srv.dial(t, "board=room1&user=alice", nil)
	b := srv.dial(t, "board=room1&user=bob", nil)
	readHistory(t, a)
	readHistory(t, b)
	waitSessions(t, srv.hub, 2)

	bad := strings.Replace(draw, `"pencil"`, `"laser"`, 1)
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(bad)))

	env := read(t, a)
	require.Equal(t, protocol.TypeError, env.Type)
	var payload domain.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, protocol.CodeInvalidEvent, payload.Code)

	b.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := b.ReadMessage()
	var netErr interface{ Timeout() bool }
	require.True(t, errors.As(err, &netErr) && netErr.Timeout(), "peer must not see rejected event")
}

func TestGateway_DefaultBoard(t *testing.T) {
	srv := newTestServer(t, Options{DefaultBoard: "lobby"})

	c := srv.dial(t, "", nil)

	assert.Equal(t, "lobby", readHistory(t, c).Board)
}

func TestGateway_DisconnectUnregisters(t *testing.T) {
	srv := newTestServer(t, Options{})

	c := srv.dial(t, "board=room1", nil)
	readHistory(t, c)
	waitSessions(t, srv.hub, 1)

	c.Close()

	waitSessions(t, srv.hub, 0)
}

func TestGateway_CheckOrigin(t *testing.T) {
	srv := newTestServer(t, Options{AllowedOrigin: "http://localhost:3000"})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	ok, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://localhost:3000"}})
	require.NoError(t, err)
	ok.Close()

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

type stubGateway struct {
	joinErr error
	left    int
}

func (g *stubGateway) Join(ctx context.Context, conn domain.Connection) (int, error) {
	return 0, g.joinErr
}

func (g *stubGateway) Leave(conn domain.Connection) { g.left++ }

func TestConn_StateMachine(t *testing.T) {
	c := NewConn("id", "room1", "alice", nil, &stubGateway{}, nil)
	assert.Equal(t, StateConnecting, c.State())
	assert.False(t, c.Joined())
	assert.True(t, c.JoinedAt().IsZero(), "no join time before joining")

	at := time.Now().UTC()
	require.True(t, c.MarkJoined(at))
	assert.Equal(t, StateJoined, c.State())
	assert.Equal(t, at, c.JoinedAt())
	assert.False(t, c.MarkJoined(time.Now()), "joins once")

	require.NoError(t, c.Send([]byte("queued")))
	require.NoError(t, c.Close())
	assert.Equal(t, StateDisconnected, c.State())
	assert.NoError(t, c.Close(), "close is idempotent")
	assert.ErrorIs(t, c.Send([]byte("late")), domain.ErrConnectionClosed)
	assert.Equal(t, "disconnected", c.State().String())
}

func TestConn_ClosedBeforeJoin(t *testing.T) {
	c := NewConn("id", "room1", "alice", nil, &stubGateway{}, nil)
	require.NoError(t, c.Close())

	assert.False(t, c.MarkJoined(time.Now()))
	assert.Equal(t, StateDisconnected, c.State())
	assert.True(t, c.JoinedAt().IsZero())
}

func TestConn_SlowConsumer(t *testing.T) {
	c := NewConn("id", "room1", "alice", nil, &stubGateway{}, nil)

	for i := 0; i < sendBuffer; i++ {
		require.NoError(t, c.Send([]byte("x")))
	}

	assert.ErrorIs(t, c.Send([]byte("x")), ErrSlowConsumer)
}
