package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidEvent       = errors.New("invalid event")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrPersistenceFailed  = errors.New("persistence failed")
	ErrReplayUnavailable  = errors.New("replay unavailable")
	ErrConnectionClosed   = errors.New("connection closed")
	ErrNotJoined          = errors.New("connection has not joined a board")
)

type Tool string

const (
	ToolPencil Tool = "pencil"
	ToolEraser Tool = "eraser"
	ToolSquare Tool = "square"
	ToolCircle Tool = "circle"
)

type Kind string

const (
	KindStrokeSegment Kind = "stroke-segment"
	KindShape         Kind = "shape"
)

// DrawingEvent is one immutable unit of drawing input. Sequence and
// CreatedAt are assigned by the board store.
type DrawingEvent struct {
	BoardID   string    `json:"boardId" msgpack:"board_id"`
	Kind      Kind      `json:"kind" msgpack:"kind"`
	X         float64   `json:"x" msgpack:"x"`
	Y         float64   `json:"y" msgpack:"y"`
	EndX      *float64  `json:"endX,omitempty" msgpack:"end_x,omitempty"`
	EndY      *float64  `json:"endY,omitempty" msgpack:"end_y,omitempty"`
	Color     string    `json:"color" msgpack:"color"`
	Size      float64   `json:"size" msgpack:"size"`
	Tool      Tool      `json:"tool" msgpack:"tool"`
	UserName  string    `json:"userName" msgpack:"user_name"`
	Sequence  uint64    `json:"sequence,omitempty" msgpack:"sequence"`
	CreatedAt time.Time `json:"createdAt,omitzero" msgpack:"created_at"`
}

// Message is the wire envelope exchanged with clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HistoryPayload carries a board's full log, in ascending sequence order,
// to a session that just joined.
type HistoryPayload struct {
	Board  string         `json:"board"`
	Events []DrawingEvent `json:"events"`
}

type Connection interface {
	ID() string
	Board() string
	UserName() string
	JoinedAt() time.Time
	Send(data []byte) error
	Close() error
}

// Joiner is implemented by connections that track their own lifecycle.
// MarkJoined moves the connection to joined at the given time and reports
// false if it was already closed.
type Joiner interface {
	MarkJoined(at time.Time) bool
}

// BoardStore is a durable append-only log of events per board.
type BoardStore interface {
	Append(ctx context.Context, boardID string, ev DrawingEvent) (uint64, error)
	Replay(ctx context.Context, boardID string) ([]DrawingEvent, error)
	Close() error
}

type Registry interface {
	Register(conn Connection)
	Unregister(conn Connection)
	MembersOf(boardID string) []Connection
	Stats() (boards, sessions int)
}

type Publisher interface {
	Publish(ctx context.Context, origin Connection, ev DrawingEvent) (DrawingEvent, error)
}

type MessageHandler interface {
	Handle(conn Connection, data []byte)
}
