package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Kunalpanche/Collaborative-Whiteboard/domain"
)

const (
	anonymousUser = "anonymous"
	joinTimeout   = 10 * time.Second
)

type Options struct {
	DefaultBoard string
	// AllowedOrigin restricts browser origins; empty accepts any.
	AllowedOrigin string
}

// Handler upgrades /ws?board=<id>&user=<name> requests and starts a
// session on the requested board.
func Handler(g Gateway, h domain.MessageHandler, opts Options) http.HandlerFunc {
	if opts.DefaultBoard == "" {
		opts.DefaultBoard = "default"
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(opts.AllowedOrigin),
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("upgrade error", "error", err)
			return
		}

		board := r.URL.Query().Get("board")
		if board == "" {
			board = opts.DefaultBoard
		}
		user := r.URL.Query().Get("user")
		if user == "" {
			user = anonymousUser
		}

		ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
		defer cancel()

		wsConn := NewConn(uuid.New().String(), board, user, conn, g, h)
		if err := wsConn.Start(ctx); err != nil {
			slog.Warn("join failed", "board", board, "clientId", wsConn.ID(), "error", err)
		}
	}
}

func checkOrigin(allowed string) func(r *http.Request) bool {
	if allowed == "" {
		return func(r *http.Request) bool { return true }
	}
	want, err := url.Parse(allowed)
	if err != nil {
		slog.Warn("invalid allowed origin, accepting any", "origin", allowed, "error", err)
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		got, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return got.Scheme == want.Scheme && got.Host == want.Host
	}
}
