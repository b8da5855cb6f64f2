// Package router persists inbound drawing events and relays them to the
// other sessions on the same board.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Kunalpanche/Collaborative-Whiteboard/domain"
)

type Config struct {
	// MaxAppendRetries is the total number of append attempts per event.
	MaxAppendRetries int
	RetryBackoff     time.Duration
}

type Router struct {
	store    domain.BoardStore
	registry domain.Registry
	cfg      Config

	// One lock per board, held from append through delivery so relay
	// order equals sequence order, and across join so replay and
	// registration see a consistent log.
	boards map[string]*sync.Mutex
	mu     sync.Mutex
}

func New(store domain.BoardStore, registry domain.Registry, cfg Config) *Router {
	if cfg.MaxAppendRetries < 1 {
		cfg.MaxAppendRetries = 1
	}
	return &Router{
		store:    store,
		registry: registry,
		cfg:      cfg,
		boards:   make(map[string]*sync.Mutex),
	}
}

func (r *Router) lock(boardID string) func() {
	r.mu.Lock()
	l, ok := r.boards[boardID]
	if !ok {
		l = &sync.Mutex{}
		r.boards[boardID] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Publish validates ev, appends it to the origin's board and relays the
// stored event to every other member. Errors are meant for the origin
// only: ErrInvalidEvent or ErrPersistenceFailed.
func (r *Router) Publish(ctx context.Context, origin domain.Connection, ev domain.DrawingEvent) (domain.DrawingEvent, error) {
	if ev.BoardID == "" {
		ev.BoardID = origin.Board()
	}
	if ev.BoardID != origin.Board() {
		return domain.DrawingEvent{}, fmt.Errorf("%w: event board %q does not match session board %q",
			domain.ErrInvalidEvent, ev.BoardID, origin.Board())
	}
	if ev.UserName == "" {
		ev.UserName = origin.UserName()
	}

	ev, err := domain.Validate(ev)
	if err != nil {
		return domain.DrawingEvent{}, err
	}

	unlock := r.lock(ev.BoardID)
	defer unlock()

	seq, err := r.appendWithRetry(ctx, ev)
	if err != nil {
		slog.Error("event dropped", "board", ev.BoardID, "clientId", origin.ID(), "error", err)
		return domain.DrawingEvent{}, err
	}
	ev.Sequence = seq

	r.deliver(origin, ev)
	return ev, nil
}

func (r *Router) appendWithRetry(ctx context.Context, ev domain.DrawingEvent) (uint64, error) {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAppendRetries; attempt++ {
		seq, err := r.store.Append(ctx, ev.BoardID, ev)
		if err == nil {
			return seq, nil
		}
		lastErr = err
		if !errors.Is(err, domain.ErrStorageUnavailable) {
			break
		}

		slog.Warn("append failed", "board", ev.BoardID, "attempt", attempt, "error", err)
		if attempt == r.cfg.MaxAppendRetries {
			break
		}
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("%w: %w", domain.ErrPersistenceFailed, ctx.Err())
		case <-time.After(r.cfg.RetryBackoff * time.Duration(attempt)):
		}
	}
	return 0, fmt.Errorf("%w: %w", domain.ErrPersistenceFailed, lastErr)
}

// deliver relays a stored event to every member of its board except the
// origin. A failed send drops that member and delivery continues.
func (r *Router) deliver(origin domain.Connection, ev domain.DrawingEvent) {
	data, err := json.Marshal(domain.Message{Type: "draw", Data: ev})
	if err != nil {
		slog.Error("marshal error", "board", ev.BoardID, "sequence", ev.Sequence, "error", err)
		return
	}

	for _, conn := range r.registry.MembersOf(ev.BoardID) {
		if conn.ID() == origin.ID() {
			continue
		}
		if err := conn.Send(data); err != nil {
			slog.Warn("delivery failed", "board", ev.BoardID, "clientId", conn.ID(), "sequence", ev.Sequence, "error", err)
			go func(c domain.Connection) {
				r.registry.Unregister(c)
				c.Close()
			}(conn)
		}
	}
}

// Join replays the board history to conn and then registers it, all under
// the board lock, so conn sees every event exactly once: either in the
// history or live. A replay failure yields an empty history.
func (r *Router) Join(ctx context.Context, conn domain.Connection) (int, error) {
	unlock := r.lock(conn.Board())
	defer unlock()

	events, err := r.store.Replay(ctx, conn.Board())
	if err != nil {
		slog.Warn("joining with empty history", "board", conn.Board(), "clientId", conn.ID(),
			"error", fmt.Errorf("%w: %w", domain.ErrReplayUnavailable, err))
		events = []domain.DrawingEvent{}
	}

	data, err := json.Marshal(domain.Message{
		Type: "history",
		Data: domain.HistoryPayload{Board: conn.Board(), Events: events},
	})
	if err != nil {
		return 0, fmt.Errorf("marshal history: %w", err)
	}
	if err := conn.Send(data); err != nil {
		return 0, fmt.Errorf("send history: %w", err)
	}
	if j, ok := conn.(domain.Joiner); ok && !j.MarkJoined(time.Now().UTC()) {
		return 0, domain.ErrConnectionClosed
	}

	r.registry.Register(conn)
	return len(events), nil
}

// Leave removes conn from its board. Once it returns no further event is
// relayed to conn. Safe to call more than once.
func (r *Router) Leave(conn domain.Connection) {
	unlock := r.lock(conn.Board())
	defer unlock()

	r.registry.Unregister(conn)
}

// History returns the persisted log of a board.
func (r *Router) History(ctx context.Context, boardID string) ([]domain.DrawingEvent, error) {
	events, err := r.store.Replay(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrReplayUnavailable, err)
	}
	return events, nil
}
