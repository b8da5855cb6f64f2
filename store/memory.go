package store

import (
	"context"
	"sync"
	"time"

	"github.com/Kunalpanche/Collaborative-Whiteboard/domain"
)

type memBoard struct {
	events []domain.DrawingEvent
	mu     sync.Mutex
}

// Memory keeps board logs in process memory. Appends to one board are
// serialized; different boards never contend beyond the map lookup.
type Memory struct {
	boards map[string]*memBoard
	mu     sync.RWMutex
}

func NewMemory() *Memory {
	return &Memory{
		boards: make(map[string]*memBoard),
	}
}

func (m *Memory) board(boardID string, create bool) *memBoard {
	m.mu.RLock()
	b, exists := m.boards[boardID]
	m.mu.RUnlock()
	if exists || !create {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, exists = m.boards[boardID]; !exists {
		b = &memBoard{}
		m.boards[boardID] = b
	}
	return b
}

func (m *Memory) Append(ctx context.Context, boardID string, ev domain.DrawingEvent) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	b := m.board(boardID, true)
	b.mu.Lock()
	defer b.mu.Unlock()

	ev.BoardID = boardID
	ev.Sequence = uint64(len(b.events)) + 1
	ev.CreatedAt = time.Now().UTC()
	b.events = append(b.events, ev)
	return ev.Sequence, nil
}

func (m *Memory) Replay(ctx context.Context, boardID string) ([]domain.DrawingEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := m.board(boardID, false)
	if b == nil {
		return []domain.DrawingEvent{}, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.DrawingEvent, len(b.events))
	copy(out, b.events)
	return out, nil
}

func (m *Memory) Close() error { return nil }
