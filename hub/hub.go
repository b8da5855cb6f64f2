package hub

import (
	"log/slog"
	"sync"

	"github.com/Kunalpanche/Collaborative-Whiteboard/domain"
)

type room struct {
	clients map[string]domain.Connection
	mu      sync.RWMutex
}

// Hub is the session registry: live connections grouped by board.
type Hub struct {
	rooms map[string]*room
	mu    sync.RWMutex
}

func New() *Hub {
	return &Hub{
		rooms: make(map[string]*room),
	}
}

func (h *Hub) Register(conn domain.Connection) {
	h.mu.Lock()
	r, exists := h.rooms[conn.Board()]
	if !exists {
		r = &room{clients: make(map[string]domain.Connection)}
		h.rooms[conn.Board()] = r
	}
	r.mu.Lock()
	r.clients[conn.ID()] = conn
	count := len(r.clients)
	r.mu.Unlock()
	h.mu.Unlock()

	slog.Info("client joined", "board", conn.Board(), "clientId", conn.ID(), "user", conn.UserName(),
		"joinedAt", conn.JoinedAt(), "clients", count)
}

// Unregister removes conn from its board. Unknown or already removed
// connections are ignored.
func (h *Hub) Unregister(conn domain.Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, exists := h.rooms[conn.Board()]
	if !exists {
		return
	}

	r.mu.Lock()
	current, ok := r.clients[conn.ID()]
	if !ok || current != conn {
		r.mu.Unlock()
		return
	}
	delete(r.clients, conn.ID())
	count := len(r.clients)
	r.mu.Unlock()

	slog.Info("client left", "board", conn.Board(), "clientId", conn.ID(), "user", conn.UserName(), "clients", count)

	if count == 0 {
		delete(h.rooms, conn.Board())
		slog.Debug("board room removed", "board", conn.Board())
	}
}

// MembersOf returns a snapshot of the connections registered on boardID,
// the originator included.
func (h *Hub) MembersOf(boardID string) []domain.Connection {
	h.mu.RLock()
	r, exists := h.rooms[boardID]
	h.mu.RUnlock()

	if !exists {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]domain.Connection, 0, len(r.clients))
	for _, conn := range r.clients {
		members = append(members, conn)
	}
	return members
}

func (h *Hub) Stats() (boards, sessions int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	boards = len(h.rooms)
	for _, r := range h.rooms {
		r.mu.RLock()
		sessions += len(r.clients)
		r.mu.RUnlock()
	}
	return boards, sessions
}
