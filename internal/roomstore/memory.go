package roomstore

import (
	"context"
	"sync"

	"chesslink/internal/game"
)

// Memory keeps rooms in process. Subscribers are called synchronously on
// the writer's goroutine after the store lock is released.
type Memory struct {
	mu     sync.Mutex
	rooms  map[string]*game.Room
	subs   map[string]map[int]func(*game.Room)
	nextID int
}

func NewMemory() *Memory {
	return &Memory{
		rooms: make(map[string]*game.Room),
		subs:  make(map[string]map[int]func(*game.Room)),
	}
}

func (m *Memory) Create(_ context.Context, room *game.Room) error {
	m.mu.Lock()
	if _, ok := m.rooms[room.Code]; ok {
		m.mu.Unlock()
		return ErrRoomExists
	}
	stored := room.Clone()
	stored.UpdatedAt = nextStamp(0)
	m.rooms[room.Code] = stored
	fns := m.subscribersLocked(room.Code)
	m.mu.Unlock()

	fanOut(fns, stored)
	return nil
}

func (m *Memory) Get(_ context.Context, code string) (*game.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[code]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *Memory) Transact(_ context.Context, code string, fn func(*game.Room) error) (*game.Room, error) {
	m.mu.Lock()
	cur, ok := m.rooms[code]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	next.Code = code
	next.UpdatedAt = nextStamp(cur.UpdatedAt)
	m.rooms[code] = next
	fns := m.subscribersLocked(code)
	m.mu.Unlock()

	fanOut(fns, next)
	return next.Clone(), nil
}

func (m *Memory) Subscribe(_ context.Context, code string, fn func(*game.Room)) (func(), error) {
	fn = latestOnly(fn)

	m.mu.Lock()
	cur, ok := m.rooms[code]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	id := m.nextID
	m.nextID++
	if m.subs[code] == nil {
		m.subs[code] = make(map[int]func(*game.Room))
	}
	m.subs[code][id] = fn
	first := cur.Clone()
	m.mu.Unlock()

	fn(first)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs[code], id)
			if len(m.subs[code]) == 0 {
				delete(m.subs, code)
			}
			m.mu.Unlock()
		})
	}, nil
}

func (m *Memory) subscribersLocked(code string) []func(*game.Room) {
	var fns []func(*game.Room)
	for _, fn := range m.subs[code] {
		fns = append(fns, fn)
	}
	return fns
}

func fanOut(fns []func(*game.Room), r *game.Room) {
	for _, fn := range fns {
		fn(r.Clone())
	}
}
