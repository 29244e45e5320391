package embedded

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chesslink/internal/board"
	"chesslink/internal/game"
	"chesslink/internal/host"
	"chesslink/internal/protocol"
	"chesslink/internal/rules"
	"chesslink/internal/storage"
)

const origin = "http://localhost:8080"

type side struct {
	board *board.Board
	ctrl  *Controller
	sent  []protocol.MessageType
}

// wire connects a controller to slot of h in-process, the way two frames
// of one page talk to their parent.
func wire(t *testing.T, h *host.Host, slot int) *side {
	t.Helper()
	s := &side{board: board.New()}
	id, err := h.Attach(slot, host.PortFunc(func(m *protocol.Message) {
		s.ctrl.Receive(protocol.Envelope{Source: "host", Origin: origin, Message: m})
	}))
	require.NoError(t, err)
	s.ctrl = New(s.board, origin, func(m *protocol.Message) {
		s.sent = append(s.sent, m.Type)
		h.Receive(context.Background(), protocol.Envelope{Source: id, Origin: origin, Message: m})
	})
	return s
}

func newGame(t *testing.T) (*host.Host, *side, *side) {
	t.Helper()
	sessions := storage.NewSessionStore(storage.NewMemoryKV(), "offline:embedded")
	h := host.New(context.Background(), host.Config{ID: "embedded", Origin: origin, Sessions: sessions})
	white := wire(t, h, 0)
	black := wire(t, h, 1)
	white.ctrl.Activate()
	black.ctrl.Activate()
	return h, white, black
}

func TestActivationAssignsRolesAndOrientation(t *testing.T) {
	_, white, black := newGame(t)

	assert.Equal(t, game.White, white.ctrl.Role())
	assert.False(t, white.ctrl.Reversed())
	assert.False(t, white.board.Reversed())
	assert.True(t, white.ctrl.MoveEnabled())

	assert.Equal(t, game.Black, black.ctrl.Role())
	assert.True(t, black.ctrl.Reversed())
	assert.True(t, black.board.Reversed())
	assert.False(t, black.ctrl.MoveEnabled())

	assert.Equal(t, []protocol.MessageType{protocol.MsgReady, protocol.MsgRequestSync}, white.sent)
	assert.Equal(t, "Your move (white).", white.ctrl.Status())
	assert.Equal(t, "Waiting for white to move.", black.ctrl.Status())
}

func TestMovesConvergeAndAlternate(t *testing.T) {
	h, white, black := newGame(t)
	white.sent, black.sent = nil, nil

	require.NoError(t, white.board.Drag("e2e4"))
	assert.Equal(t, h.State().Position, white.board.Position())
	assert.Equal(t, h.State().Position, black.board.Position())
	assert.False(t, white.ctrl.MoveEnabled())
	assert.True(t, black.ctrl.MoveEnabled())

	// the mirrored position is not echoed back by black
	assert.Equal(t, []protocol.MessageType{protocol.MsgBoardUpdate}, white.sent)
	assert.Empty(t, black.sent)

	// white pieces are locked on both boards now
	assert.ErrorIs(t, white.board.Drag("d2d4"), board.ErrNotDraggable)
	assert.ErrorIs(t, black.board.Drag("d2d4"), board.ErrNotDraggable)

	require.NoError(t, black.board.Drag("e7e5"))
	assert.Equal(t, black.board.Position(), white.board.Position())
	assert.Equal(t, []string{"e2e4", "e7e5"}, h.State().MoveLog)
	assert.True(t, white.ctrl.MoveEnabled())
	assert.True(t, black.board.Reversed(), "sync keeps orientation")
}

func TestCheckmateFreezesBothBoards(t *testing.T) {
	h, white, black := newGame(t)

	require.NoError(t, white.board.Drag("f2f3"))
	require.NoError(t, black.board.Drag("e7e5"))
	require.NoError(t, white.board.Drag("g2g4"))
	require.NoError(t, black.board.Drag("d8h4"))

	for _, s := range []*side{white, black} {
		assert.True(t, s.ctrl.Over())
		assert.Equal(t, game.Black, s.ctrl.Winner())
		assert.False(t, s.ctrl.MoveEnabled())
		assert.Equal(t, "Checkmate! black wins.", s.ctrl.Status())
	}
	assert.Equal(t, black.board.Position(), white.board.Position())
	assert.True(t, h.State().Ended)

	// checkmated white cannot even pick up a piece
	assert.ErrorIs(t, white.board.Drag("a2a3"), board.ErrNotDraggable)

	// a resync after the end keeps the boards frozen
	white.ctrl.Activate()
	assert.False(t, white.ctrl.MoveEnabled())
	assert.True(t, white.ctrl.Over())
}

func TestResetRestoresStartAndTurn(t *testing.T) {
	h, white, black := newGame(t)
	require.NoError(t, white.board.Drag("e2e4"))

	h.Reset(context.Background())

	assert.Equal(t, rules.StartFEN, white.board.Position())
	assert.Equal(t, rules.StartFEN, black.board.Position())
	assert.True(t, white.ctrl.MoveEnabled())
	assert.False(t, black.ctrl.MoveEnabled())
	assert.True(t, black.board.Reversed())
	assert.False(t, white.board.Reversed())
}

func TestOrientationIsIdempotent(t *testing.T) {
	b := board.New()
	var sent []*protocol.Message
	c := New(b, origin, func(m *protocol.Message) { sent = append(sent, m) })

	deliver := func(m *protocol.Message) {
		c.Receive(protocol.Envelope{Source: "host", Origin: origin, Message: m})
	}
	deliver(protocol.RoleAssign(game.Black))
	deliver(protocol.RoleAssign(game.Black))
	deliver(protocol.SyncState(rules.StartFEN, nil))
	deliver(protocol.SyncState(rules.StartFEN, nil))
	deliver(protocol.Reset())

	assert.True(t, b.Reversed())
	assert.True(t, c.Reversed())
	assert.Empty(t, sent, "host-driven changes are never reported")

	// the role is fixed once assigned
	deliver(protocol.RoleAssign(game.White))
	assert.Equal(t, game.Black, c.Role())
	assert.True(t, b.Reversed())
}

func TestIgnoresForeignOriginAndRolelessTurn(t *testing.T) {
	b := board.New()
	c := New(b, origin, func(*protocol.Message) {})

	// no role yet, so turn changes nothing
	c.Receive(protocol.Envelope{Origin: origin, Message: protocol.Turn(game.White)})
	assert.False(t, c.MoveEnabled())
	assert.False(t, c.CanDrag(game.White))

	c.Receive(protocol.Envelope{Origin: "http://evil.example", Message: protocol.RoleAssign(game.White)})
	assert.Equal(t, game.NoRole, c.Role())

	e := rules.NewEngine()
	require.NoError(t, e.Move("e2e4"))
	c.Receive(protocol.Envelope{Origin: "http://evil.example", Message: protocol.SyncState(e.FEN(), nil)})
	assert.Equal(t, rules.StartFEN, b.Position())

	c.Receive(protocol.Envelope{Origin: origin, Message: protocol.RoleAssign(game.White)})
	c.Receive(protocol.Envelope{Origin: origin, Message: protocol.Turn(game.White)})
	assert.True(t, c.CanDrag(game.White))
	assert.False(t, c.CanDrag(game.Black))
}

func TestUserMoveReportsWidgetPosition(t *testing.T) {
	b := board.New()
	var got []*protocol.Message
	c := New(b, origin, func(m *protocol.Message) { got = append(got, m) })
	c.Receive(protocol.Envelope{Origin: origin, Message: protocol.RoleAssign(game.White)})
	c.Receive(protocol.Envelope{Origin: origin, Message: protocol.Turn(game.White)})

	require.NoError(t, b.Drag("g1f3"))
	require.Len(t, got, 1)
	var p protocol.BoardUpdatePayload
	require.NoError(t, got[0].DecodePayload(&p))
	assert.Equal(t, b.Position(), p.Position)
	assert.Equal(t, "g1f3", p.Move)
}
