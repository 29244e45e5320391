package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chesslink/internal/game"
)

func newTestRedisKV(t *testing.T, ttl time.Duration) (*RedisKV, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisKV(client, ttl), mr
}

// exerciseKV runs the same contract against every implementation.
func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	_, err := kv.Get(ctx, "offline:game-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, kv.Set(ctx, "offline:game-1", []byte(`{"position":"x"}`)))
	got, err := kv.Get(ctx, "offline:game-1")
	require.NoError(t, err)
	assert.Equal(t, `{"position":"x"}`, string(got))

	require.NoError(t, kv.Set(ctx, "offline:game-1", []byte(`{"position":"y"}`)))
	got, err = kv.Get(ctx, "offline:game-1")
	require.NoError(t, err)
	assert.Equal(t, `{"position":"y"}`, string(got))

	require.NoError(t, kv.Delete(ctx, "offline:game-1"))
	_, err = kv.Get(ctx, "offline:game-1")
	assert.ErrorIs(t, err, ErrNotFound)

	// deleting a missing key is fine
	assert.NoError(t, kv.Delete(ctx, "offline:game-1"))
}

func TestMemoryKV(t *testing.T) {
	t.Parallel()
	exerciseKV(t, NewMemoryKV())
}

func TestFileKV(t *testing.T) {
	t.Parallel()
	kv, err := NewFileKV(t.TempDir())
	require.NoError(t, err)
	exerciseKV(t, kv)
}

func TestRedisKV(t *testing.T) {
	t.Parallel()
	kv, _ := newTestRedisKV(t, 0)
	exerciseKV(t, kv)
}

func TestRedisKV_TTL(t *testing.T) {
	t.Parallel()
	kv, mr := newTestRedisKV(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "session", []byte("1")))
	assert.True(t, mr.Exists("kv:session"))
	assert.Equal(t, time.Hour, mr.TTL("kv:session"))

	mr.FastForward(2 * time.Hour)
	_, err := kv.Get(ctx, "session")
	assert.ErrorIs(t, err, ErrNotFound)
}

type failingKV struct{}

func (failingKV) Get(context.Context, string) ([]byte, error) { return nil, errors.New("disk gone") }
func (failingKV) Set(context.Context, string, []byte) error   { return errors.New("disk gone") }
func (failingKV) Delete(context.Context, string) error        { return errors.New("disk gone") }

func TestSessionStore_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewSessionStore(NewMemoryKV(), "online-session")

	var rec game.OnlineSession
	assert.False(t, s.Load(ctx, &rec))

	s.Save(ctx, game.OnlineSession{RoomCode: "ABC123", Role: game.Black, ParticipantID: "p1"})
	require.True(t, s.Load(ctx, &rec))
	assert.Equal(t, "ABC123", rec.RoomCode)
	assert.Equal(t, game.Black, rec.Role)

	s.Clear(ctx)
	assert.False(t, s.Load(ctx, &game.OnlineSession{}))
}

func TestSessionStore_FailuresReadAsMissing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewSessionStore(failingKV{}, "k")
	assert.NotPanics(t, func() {
		s.Save(ctx, game.OfflineSession{Position: "x"})
		s.Clear(ctx)
	})
	assert.False(t, s.Load(ctx, &game.OfflineSession{}))

	kv := NewMemoryKV()
	require.NoError(t, kv.Set(ctx, "k", []byte("{not json")))
	assert.False(t, NewSessionStore(kv, "k").Load(ctx, &game.OfflineSession{}))

	var nilStore *SessionStore
	assert.False(t, nilStore.Load(ctx, &game.OfflineSession{}))
	assert.NotPanics(t, func() { nilStore.Save(ctx, 1); nilStore.Clear(ctx) })
}

func TestNilStoreIsNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	var s *Store
	id := uuid.New()

	assert.Nil(t, NewStore(nil))
	assert.NoError(t, s.CreateGame(ctx, id, ModeOffline, "", "fen", time.Now()))
	assert.NoError(t, s.RecordMove(ctx, id, 1, "e2e4", "fen", game.White))
	assert.NoError(t, s.CompleteGame(ctx, id, game.Black, time.Now()))
	assert.NoError(t, s.AbandonGame(ctx, id, time.Now()))

	_, err := s.LoadGame(ctx, id)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	stats, err := s.FetchStats(ctx)
	assert.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}

func TestArchiveIDIsStablePerRoom(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ArchiveID("ABC123"), ArchiveID("ABC123"))
	assert.NotEqual(t, ArchiveID("ABC123"), ArchiveID("XYZ789"))
}
