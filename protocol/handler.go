package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/Kunalpanche/Collaborative-Whiteboard/domain"
)

const (
	TypeDraw    = "draw"
	TypeHistory = "history"
	TypeError   = "error"
	TypePing    = "ping"
	TypePong    = "pong"

	CodeInvalidEvent      = "invalid_event"
	CodePersistenceFailed = "persistence_failed"
	CodeInvalidState      = "invalid_state"
	CodeBadMessage        = "bad_message"
	CodeUnknownType       = "unknown_type"

	publishTimeout = 15 * time.Second
)

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type joiner interface {
	Joined() bool
}

type Handler struct {
	publisher domain.Publisher
}

func NewHandler(p domain.Publisher) *Handler {
	return &Handler{publisher: p}
}

func (h *Handler) Handle(conn domain.Connection, data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Warn("invalid message", "clientId", conn.ID(), "error", err)
		h.reply(conn, TypeError, domain.ErrorPayload{Code: CodeBadMessage, Message: err.Error()})
		return
	}

	switch msg.Type {
	case TypePing:
		h.reply(conn, TypePong, msg.Data)
	case TypeDraw:
		h.handleDraw(conn, msg.Data)
	default:
		h.reply(conn, TypeError, domain.ErrorPayload{Code: CodeUnknownType, Message: "unknown message type " + msg.Type})
	}
}

func (h *Handler) handleDraw(conn domain.Connection, data json.RawMessage) {
	if j, ok := conn.(joiner); ok && !j.Joined() {
		h.reply(conn, TypeError, domain.ErrorPayload{Code: CodeInvalidState, Message: domain.ErrNotJoined.Error()})
		return
	}

	var ev domain.DrawingEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		h.reply(conn, TypeError, domain.ErrorPayload{Code: CodeInvalidEvent, Message: err.Error()})
		return
	}

	// Detached from the connection: an append already submitted completes
	// even if the sender goes away.
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	stored, err := h.publisher.Publish(ctx, conn, ev)
	switch {
	case err == nil:
		slog.Debug("event relayed", "board", stored.BoardID, "sequence", stored.Sequence, "clientId", conn.ID())
	case errors.Is(err, domain.ErrInvalidEvent):
		slog.Info("event rejected", "clientId", conn.ID(), "error", err)
		h.reply(conn, TypeError, domain.ErrorPayload{Code: CodeInvalidEvent, Message: err.Error()})
	default:
		h.reply(conn, TypeError, domain.ErrorPayload{Code: CodePersistenceFailed, Message: err.Error()})
	}
}

func (h *Handler) reply(conn domain.Connection, typ string, payload any) {
	data, err := json.Marshal(domain.Message{Type: typ, Data: payload})
	if err != nil {
		slog.Warn("marshal error", "clientId", conn.ID(), "error", err)
		return
	}
	if err := conn.Send(data); err != nil {
		slog.Debug("reply dropped", "clientId", conn.ID(), "type", typ, "error", err)
	}
}
