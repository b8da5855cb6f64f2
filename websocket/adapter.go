package websocket

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Kunalpanche/Collaborative-Whiteboard/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

var ErrSlowConsumer = errors.New("send buffer full")

type State int32

const (
	StateConnecting State = iota
	StateJoined
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Gateway onboards and offboards a connection on its board.
type Gateway interface {
	Join(ctx context.Context, conn domain.Connection) (int, error)
	Leave(conn domain.Connection)
}

type Conn struct {
	id       string
	board    string
	user     string
	joinedAt time.Time
	ws       *websocket.Conn
	send     chan []byte
	state    atomic.Int32
	closed   bool
	mu       sync.Mutex
	gateway  Gateway
	handler  domain.MessageHandler
}

func NewConn(id, board, user string, ws *websocket.Conn, g Gateway, h domain.MessageHandler) *Conn {
	c := &Conn{
		id:       id,
		board:    board,
		user:     user,
		ws:       ws,
		send:     make(chan []byte, sendBuffer),
		gateway:  g,
		handler:  h,
	}
	c.state.Store(int32(StateConnecting))
	return c
}

func (c *Conn) ID() string       { return c.id }
func (c *Conn) Board() string    { return c.board }
func (c *Conn) UserName() string { return c.user }
func (c *Conn) State() State     { return State(c.state.Load()) }
func (c *Conn) Joined() bool     { return c.State() == StateJoined }

// JoinedAt is zero until the connection has joined its board.
func (c *Conn) JoinedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joinedAt
}

// MarkJoined moves a Connecting connection to Joined. It is called by the
// gateway once history has been queued, just before registration.
func (c *Conn) MarkJoined(at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateJoined)) {
		return false
	}
	c.joinedAt = at
	return true
}

func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return domain.ErrConnectionClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Close moves the connection to Disconnected and stops the write pump,
// which closes the socket. Later calls are no-ops.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.state.Store(int32(StateDisconnected))
	close(c.send)
	return nil
}

// Start replays the board history and joins the board, then begins
// reading. Inbound messages are only read once the connection is joined.
func (c *Conn) Start(ctx context.Context) error {
	go c.writePump()

	replayed, err := c.gateway.Join(ctx, c)
	if err != nil {
		c.Close()
		return err
	}
	slog.Debug("history replayed", "board", c.board, "clientId", c.id, "events", replayed)

	go c.readPump()
	return nil
}

func (c *Conn) readPump() {
	defer func() {
		c.gateway.Leave(c)
		c.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("read error", "clientId", c.id, "error", err)
			}
			return
		}

		c.handler.Handle(c, data)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
