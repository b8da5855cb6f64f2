package hub

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kunalpanche/Collaborative-Whiteboard/domain"
)

type mockConn struct {
	id    string
	board string
}

func (m *mockConn) ID() string             { return m.id }
func (m *mockConn) Board() string          { return m.board }
func (m *mockConn) UserName() string       { return m.id }
func (m *mockConn) JoinedAt() time.Time    { return time.Time{} }
func (m *mockConn) Send(data []byte) error { return nil }
func (m *mockConn) Close() error           { return nil }

func ids(conns []domain.Connection) []string {
	out := make([]string, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.ID())
	}
	return out
}

func TestHub_MembersOf(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Hub)
		board string
		want  []string
	}{
		{
			name: "all board members including sender",
			setup: func(h *Hub) {
				h.Register(&mockConn{id: "a", board: "room1"})
				h.Register(&mockConn{id: "b", board: "room1"})
				h.Register(&mockConn{id: "c", board: "room1"})
			},
			board: "room1",
			want:  []string{"a", "b", "c"},
		},
		{
			name: "no cross-board members",
			setup: func(h *Hub) {
				h.Register(&mockConn{id: "a", board: "room1"})
				h.Register(&mockConn{id: "b", board: "room2"})
			},
			board: "room2",
			want:  []string{"b"},
		},
		{
			name:  "unknown board",
			setup: func(h *Hub) {},
			board: "nowhere",
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			tt.setup(h)

			assert.ElementsMatch(t, tt.want, ids(h.MembersOf(tt.board)))
		})
	}
}

func TestHub_Stats(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(*Hub)
		wantBoards   int
		wantSessions int
	}{
		{
			name:         "empty hub",
			setup:        func(h *Hub) {},
			wantBoards:   0,
			wantSessions: 0,
		},
		{
			name: "one board one client",
			setup: func(h *Hub) {
				h.Register(&mockConn{id: "c1", board: "r1"})
			},
			wantBoards:   1,
			wantSessions: 1,
		},
		{
			name: "multiple boards",
			setup: func(h *Hub) {
				h.Register(&mockConn{id: "c1", board: "r1"})
				h.Register(&mockConn{id: "c2", board: "r1"})
				h.Register(&mockConn{id: "c3", board: "r2"})
			},
			wantBoards:   2,
			wantSessions: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			tt.setup(h)

			boards, sessions := h.Stats()

			assert.Equal(t, tt.wantBoards, boards)
			assert.Equal(t, tt.wantSessions, sessions)
		})
	}
}

func TestHub_RoomCleanup(t *testing.T) {
	h := New()
	conn := &mockConn{id: "c1", board: "r1"}

	h.Register(conn)
	boards, _ := h.Stats()
	require.Equal(t, 1, boards)

	h.Unregister(conn)
	boards, sessions := h.Stats()
	assert.Equal(t, 0, boards)
	assert.Equal(t, 0, sessions)
}

func TestHub_UnregisterIdempotent(t *testing.T) {
	h := New()
	a := &mockConn{id: "a", board: "r1"}
	b := &mockConn{id: "b", board: "r1"}
	h.Register(a)
	h.Register(b)

	h.Unregister(a)
	h.Unregister(a)
	h.Unregister(&mockConn{id: "ghost", board: "r1"})
	h.Unregister(&mockConn{id: "ghost", board: "unknown"})

	assert.Equal(t, []string{"b"}, ids(h.MembersOf("r1")))
	boards, sessions := h.Stats()
	assert.Equal(t, 1, boards)
	assert.Equal(t, 1, sessions)
}

func TestHub_UnregisterIgnoresStaleHandle(t *testing.T) {
	h := New()
	old := &mockConn{id: "same", board: "r1"}
	fresh := &mockConn{id: "same", board: "r1"}
	h.Register(old)
	h.Register(fresh)

	h.Unregister(old)

	members := h.MembersOf("r1")
	require.Len(t, members, 1)
	assert.Same(t, fresh, members[0])
}

func TestHub_ConcurrentRegisterUnregister(t *testing.T) {
	h := New()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := &mockConn{id: fmt.Sprintf("c%d", i), board: "r1"}
			h.Register(c)
			_ = h.MembersOf("r1")
			h.Unregister(c)
		}(i)
	}
	wg.Wait()

	boards, sessions := h.Stats()
	assert.Equal(t, 0, boards)
	assert.Equal(t, 0, sessions)
}
