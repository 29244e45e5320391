package roomstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"chesslink/internal/game"
)

var (
	ErrNotFound   = errors.New("room not found")
	ErrRoomExists = errors.New("room already exists")
	// ErrConflict is returned when a conditional update loses to a
	// concurrent writer.
	ErrConflict = errors.New("room changed concurrently")
)

// Store holds the shared room documents of online games.
type Store interface {
	// Create writes a new room and fails with ErrRoomExists if the code is
	// already in use.
	Create(ctx context.Context, room *game.Room) error
	Get(ctx context.Context, code string) (*game.Room, error)
	// Transact applies fn to the current document and writes the result
	// atomically. An error from fn aborts the write and is returned as is.
	Transact(ctx context.Context, code string, fn func(*game.Room) error) (*game.Room, error)
	// Subscribe delivers the current document right away and then every
	// change until cancel is called.
	Subscribe(ctx context.Context, code string, fn func(*game.Room)) (cancel func(), err error)
}

// nextStamp keeps UpdatedAt strictly increasing per room.
func nextStamp(prev int64) int64 {
	now := time.Now().UnixNano()
	if now <= prev {
		return prev + 1
	}
	return now
}

// latestOnly wraps a subscriber so documents older than the last one it
// saw are dropped.
func latestOnly(fn func(*game.Room)) func(*game.Room) {
	var mu sync.Mutex
	var last int64
	return func(r *game.Room) {
		mu.Lock()
		if r.UpdatedAt < last {
			mu.Unlock()
			return
		}
		last = r.UpdatedAt
		mu.Unlock()
		fn(r)
	}
}
