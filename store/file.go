package store

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/Kunalpanche/Collaborative-Whiteboard/domain"
)

const (
	logExt       = ".log"
	headerSize   = 4
	maxRecordLen = 1 << 20
)

// logFile is the part of *os.File a loaded board writes through.
type logFile interface {
	io.WriterAt
	Sync() error
	Truncate(size int64) error
	Close() error
	Name() string
}

type fileBoard struct {
	path   string
	f      logFile
	size   int64
	events []domain.DrawingEvent
	loaded bool
	closed bool
	// dirty is set when bytes past size may remain on disk after a failed
	// append. Appends are refused until a truncate back to size succeeds.
	dirty bool
	mu    sync.Mutex
}

// File is a log-structured board store. Each board owns one append-only
// file of length-prefixed msgpack records; the file is synced after every
// append. Events are also cached in memory so replay does not touch disk.
type File struct {
	dir    string
	boards map[string]*fileBoard
	closed bool
	mu     sync.Mutex
}

func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating board store dir: %w", err)
	}
	return &File{
		dir:    dir,
		boards: make(map[string]*fileBoard),
	}, nil
}

func (s *File) path(boardID string) string {
	return filepath.Join(s.dir, hex.EncodeToString([]byte(boardID))+logExt)
}

// board returns the board entry locked, loading its log from disk on
// first use. The store lock only covers the map, so loading a long log
// never stalls other boards. When create is false and no log exists, it
// returns nil without creating one.
func (s *File) board(boardID string, create bool) (*fileBoard, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: store closed", domain.ErrStorageUnavailable)
	}
	b, ok := s.boards[boardID]
	if !ok {
		path := s.path(boardID)
		if !create {
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				s.mu.Unlock()
				return nil, nil
			}
		}
		b = &fileBoard{path: path}
		s.boards[boardID] = b
	}
	s.mu.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: store closed", domain.ErrStorageUnavailable)
	}
	if !b.loaded {
		if err := b.load(); err != nil {
			b.mu.Unlock()
			return nil, err
		}
		slog.Debug("board log loaded", "board", boardID, "events", len(b.events))
	}
	return b, nil
}

// load opens the board log and reads every complete record. Must be
// called with b.mu held.
func (b *fileBoard) load() error {
	f, err := os.OpenFile(b.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("%w: opening board log: %v", domain.ErrStorageUnavailable, err)
	}
	events, size, err := readLog(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: reading board log: %v", domain.ErrStorageUnavailable, err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return fmt.Errorf("%w: truncating board log: %v", domain.ErrStorageUnavailable, err)
	}

	b.f = f
	b.size = size
	b.events = events
	b.loaded = true
	return nil
}

// readLog decodes every complete record and returns the offset just past
// the last one. A torn trailing record is ignored so the caller can cut it.
func readLog(f *os.File) ([]domain.DrawingEvent, int64, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, 0, err
	}

	r := bufio.NewReader(f)
	var (
		events []domain.DrawingEvent
		offset int64
		header [headerSize]byte
	)
	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return events, offset, nil
			}
			return nil, 0, err
		}
		n := binary.BigEndian.Uint32(header[:])
		if n == 0 || n > maxRecordLen {
			slog.Warn("corrupt record length, truncating board log", "file", f.Name(), "offset", offset)
			return events, offset, nil
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				slog.Warn("torn record, truncating board log", "file", f.Name(), "offset", offset)
				return events, offset, nil
			}
			return nil, 0, err
		}
		var ev domain.DrawingEvent
		if err := msgpack.Unmarshal(buf, &ev); err != nil {
			slog.Warn("undecodable record, truncating board log", "file", f.Name(), "offset", offset, "error", err)
			return events, offset, nil
		}
		events = append(events, ev)
		offset += headerSize + int64(n)
	}
}

func (s *File) Append(ctx context.Context, boardID string, ev domain.DrawingEvent) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	b, err := s.board(boardID, true)
	if err != nil {
		return 0, err
	}
	defer b.mu.Unlock()

	if b.dirty {
		if err := b.f.Truncate(b.size); err != nil {
			return 0, fmt.Errorf("%w: board log not recovered: %v", domain.ErrStorageUnavailable, err)
		}
		b.dirty = false
	}

	ev.BoardID = boardID
	ev.Sequence = uint64(len(b.events)) + 1
	ev.CreatedAt = time.Now().UTC()

	payload, err := msgpack.Marshal(&ev)
	if err != nil {
		return 0, fmt.Errorf("encoding event: %w", err)
	}
	if len(payload) > maxRecordLen {
		return 0, fmt.Errorf("%w: encoded event is %d bytes, limit is %d", domain.ErrInvalidEvent, len(payload), maxRecordLen)
	}
	record := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(record, uint32(len(payload)))
	copy(record[headerSize:], payload)

	if _, err := b.f.WriteAt(record, b.size); err != nil {
		b.rewind()
		return 0, fmt.Errorf("%w: writing record: %v", domain.ErrStorageUnavailable, err)
	}
	if err := b.f.Sync(); err != nil {
		b.rewind()
		return 0, fmt.Errorf("%w: syncing board log: %v", domain.ErrStorageUnavailable, err)
	}

	b.size += int64(len(record))
	b.events = append(b.events, ev)
	return ev.Sequence, nil
}

// rewind drops a partially written or unsynced record. If the truncate
// fails the board stays dirty and refuses appends until it succeeds.
func (b *fileBoard) rewind() {
	if err := b.f.Truncate(b.size); err != nil {
		slog.Error("rewind board log", "file", b.f.Name(), "error", err)
		b.dirty = true
	}
}

func (s *File) Replay(ctx context.Context, boardID string) ([]domain.DrawingEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b, err := s.board(boardID, false)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return []domain.DrawingEvent{}, nil
	}
	defer b.mu.Unlock()

	out := make([]domain.DrawingEvent, len(b.events))
	copy(out, b.events)
	return out, nil
}

func (s *File) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	boards := make(map[string]*fileBoard, len(s.boards))
	for id, b := range s.boards {
		boards[id] = b
	}
	s.mu.Unlock()

	var errs []error
	for id, b := range boards {
		b.mu.Lock()
		b.closed = true
		if b.f != nil {
			if err := b.f.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing board %q: %w", id, err))
			}
			b.f = nil
		}
		b.mu.Unlock()
	}
	return errors.Join(errs...)
}
