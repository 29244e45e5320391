package online

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chesslink/internal/board"
	"chesslink/internal/game"
	"chesslink/internal/roomstore"
	"chesslink/internal/rules"
	"chesslink/internal/storage"
)

type player struct {
	board    *board.Board
	ctrl     *Controller
	kv       *storage.MemoryKV
	sessions *storage.SessionStore
}

func newPlayer(rooms roomstore.Store, pid string) *player {
	kv := storage.NewMemoryKV()
	return newPlayerWithKV(rooms, pid, kv)
}

func newPlayerWithKV(rooms roomstore.Store, pid string, kv *storage.MemoryKV) *player {
	p := &player{board: board.New(), kv: kv, sessions: storage.NewSessionStore(kv, "online-session")}
	p.ctrl = New(Config{
		Rooms:         rooms,
		Widget:        p.board,
		Sessions:      p.sessions,
		ParticipantID: pid,
	})
	return p
}

func livePair(t *testing.T, rooms roomstore.Store) (code string, white, black *player) {
	t.Helper()
	white = newPlayer(rooms, "creator")
	black = newPlayer(rooms, "joiner")
	code, err := white.ctrl.Create(context.Background())
	require.NoError(t, err)
	require.NoError(t, black.ctrl.Join(context.Background(), code))
	return code, white, black
}

func TestCreateWaitsForOpponent(t *testing.T) {
	rooms := roomstore.NewMemory()
	p := newPlayer(rooms, "creator")

	code, err := p.ctrl.Create(context.Background())
	require.NoError(t, err)
	assert.Len(t, code, 6)

	room, err := rooms.Get(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, game.StatusWaiting, room.Status)
	assert.Equal(t, "creator", room.Players.Occupant(game.White))
	assert.Equal(t, rules.StartFEN, room.Position)

	assert.Equal(t, game.White, p.ctrl.Role())
	assert.False(t, p.ctrl.BothPresent())
	assert.False(t, p.ctrl.MoveEnabled())
	assert.Contains(t, p.ctrl.Status(), "waiting for an opponent")
	assert.ErrorIs(t, p.board.Drag("e2e4"), board.ErrNotDraggable)

	var rec game.OnlineSession
	require.True(t, p.sessions.Load(context.Background(), &rec))
	assert.Equal(t, game.OnlineSession{RoomCode: code, Role: game.White, ParticipantID: "creator"}, rec)
}

func TestJoinMakesRoomLive(t *testing.T) {
	rooms := roomstore.NewMemory()
	code, white, black := livePair(t, rooms)

	room, err := rooms.Get(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, game.StatusLive, room.Status)
	assert.Equal(t, "joiner", room.Players.Occupant(game.Black))

	assert.Equal(t, game.Black, black.ctrl.Role())
	assert.True(t, black.board.Reversed())
	assert.False(t, white.board.Reversed())
	assert.True(t, white.ctrl.BothPresent())
	assert.True(t, white.ctrl.MoveEnabled())
	assert.False(t, black.ctrl.MoveEnabled())
	assert.Equal(t, "Your move (white).", white.ctrl.Status())
	assert.Equal(t, "Waiting for white to move.", black.ctrl.Status())

	require.NoError(t, white.board.Drag("e2e4"))
	assert.Equal(t, white.board.Position(), black.board.Position())
	assert.False(t, white.ctrl.MoveEnabled())
	assert.True(t, black.ctrl.MoveEnabled())

	require.NoError(t, black.board.Drag("c7c5"))
	room, err = rooms.Get(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, []string{"e2e4", "c7c5"}, room.MoveLog)
	assert.Equal(t, game.White, room.Turn)
	assert.Equal(t, room.Position, white.ctrl.Position())
	assert.Equal(t, room.MoveLog, black.ctrl.MoveLog())
}

func TestJoinFailures(t *testing.T) {
	rooms := roomstore.NewMemory()
	code, _, _ := livePair(t, rooms)

	third := newPlayer(rooms, "third")
	err := third.ctrl.Join(context.Background(), code)
	assert.ErrorIs(t, err, ErrRoomFull)
	assert.Equal(t, "Room already has two players", third.ctrl.Status())

	err = third.ctrl.Join(context.Background(), "ZZZZZZ")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.Equal(t, "Game not found", third.ctrl.Status())
	assert.Empty(t, third.ctrl.Code())

	var re *RoomError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, CodeRoomNotFound, re.Code)
}

func TestCheckmateEndsRoomForBoth(t *testing.T) {
	rooms := roomstore.NewMemory()
	code, white, black := livePair(t, rooms)

	require.NoError(t, white.board.Drag("f2f3"))
	require.NoError(t, black.board.Drag("e7e5"))
	require.NoError(t, white.board.Drag("g2g4"))
	require.NoError(t, black.board.Drag("d8h4"))

	room, err := rooms.Get(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, game.StatusEnded, room.Status)
	assert.Equal(t, game.Black, room.Winner)

	for _, p := range []*player{white, black} {
		assert.True(t, p.ctrl.Over())
		assert.Equal(t, game.Black, p.ctrl.Winner())
		assert.False(t, p.ctrl.MoveEnabled())
		assert.Equal(t, "Checkmate! black wins.", p.ctrl.Status())
		assert.False(t, p.sessions.Load(context.Background(), &game.OnlineSession{}))
	}
	assert.ErrorIs(t, white.board.Drag("a2a3"), board.ErrNotDraggable)
}

func TestResumeReattachesWithoutClaiming(t *testing.T) {
	rooms := roomstore.NewMemory()
	code, white, black := livePair(t, rooms)
	require.NoError(t, white.board.Drag("d2d4"))
	white.ctrl.Close()

	// the reloaded client only has its saved session
	reloaded := newPlayerWithKV(rooms, "", white.kv)
	ok, err := reloaded.ctrl.Resume(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, code, reloaded.ctrl.Code())
	assert.Equal(t, game.White, reloaded.ctrl.Role())
	assert.Equal(t, black.board.Position(), reloaded.board.Position())
	assert.True(t, reloaded.ctrl.BothPresent())
	assert.False(t, reloaded.ctrl.MoveEnabled())

	room, err := rooms.Get(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, "creator", room.Players.Occupant(game.White))

	// the game goes on from where it was
	require.NoError(t, black.board.Drag("d7d5"))
	assert.True(t, reloaded.ctrl.MoveEnabled())
	require.NoError(t, reloaded.board.Drag("c2c4"))
	assert.Equal(t, reloaded.board.Position(), black.board.Position())
}

func TestResumeWithoutSession(t *testing.T) {
	p := newPlayer(roomstore.NewMemory(), "x")
	ok, err := p.ctrl.Resume(context.Background())
	assert.NoError(t, err)
	assert.False(t, ok)

	// a session pointing at a vanished room is dropped
	p.sessions.Save(context.Background(), game.OnlineSession{RoomCode: "GONE42", Role: game.Black, ParticipantID: "x"})
	ok, err = p.ctrl.Resume(context.Background())
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.False(t, ok)
	assert.False(t, p.sessions.Load(context.Background(), &game.OnlineSession{}))
}

func TestLeaveFreesSlot(t *testing.T) {
	rooms := roomstore.NewMemory()
	code, white, black := livePair(t, rooms)

	black.ctrl.Leave(context.Background())

	room, err := rooms.Get(context.Background(), code)
	require.NoError(t, err)
	assert.Empty(t, room.Players.Occupant(game.Black))
	assert.Equal(t, game.StatusWaiting, room.Status)

	assert.Empty(t, black.ctrl.Code())
	assert.Equal(t, game.NoRole, black.ctrl.Role())
	assert.False(t, black.board.Reversed())
	assert.Equal(t, rules.StartFEN, black.board.Position())
	assert.Equal(t, "Left the game.", black.ctrl.Status())
	assert.False(t, black.sessions.Load(context.Background(), &game.OnlineSession{}))

	assert.False(t, white.ctrl.BothPresent())
	assert.False(t, white.ctrl.MoveEnabled())

	// a vacated white slot is reclaimed before black
	white.ctrl.Leave(context.Background())
	newcomer := newPlayer(rooms, "newcomer")
	require.NoError(t, newcomer.ctrl.Join(context.Background(), code))
	assert.Equal(t, game.White, newcomer.ctrl.Role())
}

func TestLeaveDoesNotClobberOtherClaim(t *testing.T) {
	rooms := roomstore.NewMemory()
	code, _, black := livePair(t, rooms)

	_, err := rooms.Transact(context.Background(), code, func(r *game.Room) error {
		r.Players.Set(game.Black, "someone-else")
		return nil
	})
	require.NoError(t, err)

	black.ctrl.Leave(context.Background())
	room, err := rooms.Get(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, "someone-else", room.Players.Occupant(game.Black))
	assert.Equal(t, game.StatusLive, room.Status)
	assert.Empty(t, black.ctrl.Code(), "local state is reset regardless")
}

func TestRejoinKeepsSeat(t *testing.T) {
	rooms := roomstore.NewMemory()
	code, _, black := livePair(t, rooms)
	black.ctrl.Close()

	again := newPlayer(rooms, "joiner")
	require.NoError(t, again.ctrl.Join(context.Background(), code))
	assert.Equal(t, game.Black, again.ctrl.Role())
}

func TestSyncCatchesUpWithoutClaiming(t *testing.T) {
	rooms := roomstore.NewMemory()
	muted := &atomic.Bool{}
	white := newPlayer(rooms, "creator")
	code, err := white.ctrl.Create(context.Background())
	require.NoError(t, err)
	black := newPlayer(mutedStore{Store: rooms, muted: muted}, "joiner")
	require.NoError(t, black.ctrl.Join(context.Background(), code))

	muted.Store(true)
	require.NoError(t, white.board.Drag("e2e4"))
	assert.Equal(t, rules.StartFEN, black.board.Position())
	muted.Store(false)

	require.NoError(t, black.ctrl.Sync(context.Background()))
	assert.Equal(t, white.board.Position(), black.board.Position())
	assert.True(t, black.ctrl.MoveEnabled())
	assert.Equal(t, game.Black, black.ctrl.Role())

	// a player whose seat was taken over stays out of the free white slot
	white.ctrl.Leave(context.Background())
	_, err = rooms.Transact(context.Background(), code, func(r *game.Room) error {
		r.Players.Set(game.Black, "someone-else")
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, black.ctrl.Sync(context.Background()))

	room, err := rooms.Get(context.Background(), code)
	require.NoError(t, err)
	assert.Empty(t, room.Players.Occupant(game.White))
	assert.Equal(t, "someone-else", room.Players.Occupant(game.Black))
	assert.Equal(t, game.Black, black.ctrl.Role())
}

func TestSyncWithoutGame(t *testing.T) {
	p := newPlayer(roomstore.NewMemory(), "x")
	require.NoError(t, p.ctrl.Sync(context.Background()))
	assert.Empty(t, p.ctrl.Code())
	assert.Contains(t, p.ctrl.Status(), "/join")
}

// mutedStore stops delivering changes once muted is set, which leaves its
// subscribers with a stale view.
type mutedStore struct {
	roomstore.Store
	muted *atomic.Bool
}

func (m mutedStore) Subscribe(ctx context.Context, code string, fn func(*game.Room)) (func(), error) {
	return m.Store.Subscribe(ctx, code, func(r *game.Room) {
		if !m.muted.Load() {
			fn(r)
		}
	})
}

func TestStaleMoveConflictsAndReverts(t *testing.T) {
	rooms := roomstore.NewMemory()
	muted := &atomic.Bool{}
	white := newPlayer(rooms, "creator")
	code, err := white.ctrl.Create(context.Background())
	require.NoError(t, err)
	black := newPlayer(mutedStore{Store: rooms, muted: muted}, "joiner")
	require.NoError(t, black.ctrl.Join(context.Background(), code))

	require.NoError(t, white.board.Drag("e2e4"))
	afterE4 := white.board.Position()
	require.True(t, black.ctrl.MoveEnabled())

	// another writer lands black's reply while black is not listening
	muted.Store(true)
	e := rules.NewEngine()
	require.NoError(t, e.Load(afterE4))
	require.NoError(t, e.Move("e7e5"))
	_, err = rooms.Transact(context.Background(), code, func(r *game.Room) error {
		r.Position = e.FEN()
		r.Turn = game.White
		return nil
	})
	require.NoError(t, err)
	muted.Store(false)

	// black moves from the position it last saw; the write must not land
	require.NoError(t, black.board.Drag("c7c5"))

	room, err := rooms.Get(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, e.FEN(), room.Position)
	assert.Equal(t, e.FEN(), black.board.Position(), "board shows the room after a conflict")
	assert.Equal(t, e.FEN(), black.ctrl.Position())
	assert.False(t, black.ctrl.MoveEnabled())
}

func TestOnlineOverRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	rooms := roomstore.NewRedis(client, time.Hour)

	code, white, black := livePair(t, rooms)
	defer white.ctrl.Close()
	defer black.ctrl.Close()

	assert.Eventually(t, white.ctrl.MoveEnabled, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, white.board.Drag("e2e4"))
	assert.Eventually(t, func() bool {
		return black.board.Position() == white.board.Position() && black.ctrl.MoveEnabled()
	}, 2*time.Second, 10*time.Millisecond)

	room, err := rooms.Get(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, game.StatusLive, room.Status)
	assert.Equal(t, []string{"e2e4"}, room.MoveLog)
}

func TestParticipantIDIsStable(t *testing.T) {
	ctx := context.Background()
	sessions := storage.NewSessionStore(storage.NewMemoryKV(), "participant")
	first := ParticipantID(ctx, sessions)
	assert.NotEmpty(t, first)
	assert.Equal(t, first, ParticipantID(ctx, sessions))

	other := storage.NewSessionStore(storage.NewMemoryKV(), "participant")
	assert.NotEqual(t, first, ParticipantID(ctx, other))
}

// fakeWidget reports whatever position the user "drops", legal or not.
type fakeWidget struct {
	position  string
	reversed  bool
	listeners []func(board.Change)
}

func (f *fakeWidget) Position() string { return f.position }

func (f *fakeWidget) SetPosition(position string) error {
	f.position = position
	f.emit(board.Change{Position: position})
	return nil
}

func (f *fakeWidget) Reverse() { f.reversed = !f.reversed }

func (f *fakeWidget) Reset() { _ = f.SetPosition(rules.StartFEN) }

func (f *fakeWidget) OnChange(fn func(board.Change)) { f.listeners = append(f.listeners, fn) }

func (f *fakeWidget) SetDraggable(func(game.Role) bool) {}

func (f *fakeWidget) drop(position string) {
	f.position = position
	f.emit(board.Change{Position: position, User: true})
}

func (f *fakeWidget) emit(c board.Change) {
	for _, fn := range f.listeners {
		fn(c)
	}
}

func TestInvalidLocalPositionReverts(t *testing.T) {
	rooms := roomstore.NewMemory()
	widget := &fakeWidget{position: rules.StartFEN}
	white := New(Config{
		Rooms:         rooms,
		Widget:        widget,
		Sessions:      storage.NewSessionStore(storage.NewMemoryKV(), "online-session"),
		ParticipantID: "creator",
	})
	code, err := white.Create(context.Background())
	require.NoError(t, err)
	black := newPlayer(rooms, "joiner")
	require.NoError(t, black.ctrl.Join(context.Background(), code))
	require.True(t, white.MoveEnabled())

	widget.drop("not a position")

	assert.Equal(t, rules.StartFEN, widget.position)
	room, err := rooms.Get(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, rules.StartFEN, room.Position)
	assert.Empty(t, room.MoveLog)
	assert.True(t, white.MoveEnabled())
	assert.Equal(t, rules.StartFEN, black.board.Position())
}
