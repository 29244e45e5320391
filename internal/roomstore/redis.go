package roomstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"chesslink/internal/game"
	"chesslink/internal/logging"
)

const (
	roomKeyPrefix = "room:"
	maxTxRetries  = 8
)

func roomKey(code string) string { return roomKeyPrefix + code }

func changesChannel(code string) string { return roomKeyPrefix + code + ":changes" }

// Redis stores each room as JSON under room:<code> and publishes every
// write on room:<code>:changes.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis returns a redis room store. Rooms expire ttl after their last
// write; zero keeps them forever.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Create(ctx context.Context, room *game.Room) error {
	stored := room.Clone()
	stored.UpdatedAt = nextStamp(0)
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}
	ok, err := r.client.SetNX(ctx, roomKey(room.Code), data, r.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrRoomExists
	}
	r.publish(ctx, room.Code, data)
	return nil
}

func (r *Redis) Get(ctx context.Context, code string) (*game.Room, error) {
	data, err := r.client.Get(ctx, roomKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeRoom(data)
}

// Transact runs fn inside WATCH/MULTI and retries when another client
// writes the room first.
func (r *Redis) Transact(ctx context.Context, code string, fn func(*game.Room) error) (*game.Room, error) {
	key := roomKey(code)
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		var out *game.Room
		var data []byte
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			if err != nil {
				return err
			}
			cur, err := decodeRoom(raw)
			if err != nil {
				return err
			}
			next := cur.Clone()
			if err := fn(next); err != nil {
				return err
			}
			next.Code = code
			next.UpdatedAt = nextStamp(cur.UpdatedAt)
			data, err = json.Marshal(next)
			if err != nil {
				return fmt.Errorf("encode room: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, r.ttl)
				return nil
			})
			out = next
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			logging.Debugf("roomstore: %s busy, retrying", code)
			continue
		}
		if err != nil {
			return nil, err
		}
		r.publish(ctx, code, data)
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrConflict, code, maxTxRetries)
}

func (r *Redis) Subscribe(ctx context.Context, code string, fn func(*game.Room)) (func(), error) {
	fn = latestOnly(fn)

	sub := r.client.Subscribe(ctx, changesChannel(code))
	// wait for the subscription so no change between it and Get is lost
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	first, err := r.Get(ctx, code)
	if err != nil {
		_ = sub.Close()
		return nil, err
	}
	fn(first)

	var stopped atomic.Bool
	go func() {
		for msg := range sub.Channel() {
			if stopped.Load() {
				return
			}
			room, err := decodeRoom([]byte(msg.Payload))
			if err != nil {
				logging.Debugf("roomstore: bad change on %s: %v", code, err)
				continue
			}
			fn(room)
		}
	}()

	// cancel may run inside fn, so it does not wait for the reader
	return func() {
		if stopped.CompareAndSwap(false, true) {
			_ = sub.Close()
		}
	}, nil
}

func (r *Redis) publish(ctx context.Context, code string, data []byte) {
	if err := r.client.Publish(ctx, changesChannel(code), data).Err(); err != nil {
		logging.Errorf("roomstore: publish %s: %v", code, err)
	}
}

func decodeRoom(data []byte) (*game.Room, error) {
	var room game.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	return &room, nil
}
