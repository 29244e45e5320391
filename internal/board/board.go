package board

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"chesslink/internal/game"
	"chesslink/internal/rules"
)

var (
	// ErrIllegalMove is returned when a dropped piece snaps back.
	ErrIllegalMove = errors.New("illegal move")
	// ErrNotDraggable is returned when the moving side's pieces are locked.
	ErrNotDraggable = errors.New("pieces are not draggable")
)

// Change is emitted after the displayed position changes.
type Change struct {
	Position string
	Move     string // UCI, set for user drags only
	User     bool
}

// Widget is what a controller needs from a rendered board.
type Widget interface {
	Position() string
	SetPosition(position string) error
	// Reverse toggles the visual orientation.
	Reverse()
	Reset()
	OnChange(fn func(Change))
	SetDraggable(fn func(side game.Role) bool)
}

// Board is an in-memory board widget. Drops are resolved through the rules
// engine so only legal moves land, the same way a rendered board snaps back
// illegal drops.
type Board struct {
	mu        sync.Mutex
	engine    *rules.Engine
	reversed  bool
	lastMove  string
	draggable func(game.Role) bool
	listeners []func(Change)
}

// New returns a board at the starting position, white at the bottom.
func New() *Board {
	return &Board{engine: rules.NewEngine()}
}

func (b *Board) Position() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.engine.FEN()
}

// SetPosition replaces the displayed position. Orientation is kept.
func (b *Board) SetPosition(position string) error {
	b.mu.Lock()
	if err := b.engine.Load(position); err != nil {
		b.mu.Unlock()
		return err
	}
	b.lastMove = ""
	change := Change{Position: b.engine.FEN()}
	fns := b.snapshotListeners()
	b.mu.Unlock()

	emit(fns, change)
	return nil
}

func (b *Board) Reverse() {
	b.mu.Lock()
	b.reversed = !b.reversed
	b.mu.Unlock()
}

// Reversed reports whether black is shown at the bottom.
func (b *Board) Reversed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reversed
}

// Reset puts the pieces back on their starting squares. Orientation is kept.
func (b *Board) Reset() {
	b.mu.Lock()
	b.engine.Reset()
	b.lastMove = ""
	change := Change{Position: b.engine.FEN()}
	fns := b.snapshotListeners()
	b.mu.Unlock()

	emit(fns, change)
}

// OnChange registers a listener. Listeners run on the caller's goroutine
// after the board lock is released.
func (b *Board) OnChange(fn func(Change)) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	b.listeners = append(b.listeners, fn)
	b.mu.Unlock()
}

func (b *Board) SetDraggable(fn func(side game.Role) bool) {
	b.mu.Lock()
	b.draggable = fn
	b.mu.Unlock()
}

// LastMove returns the UCI of the last user drag, or "" after a
// programmatic change.
func (b *Board) LastMove() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastMove
}

// Drag plays a user drop given in UCI notation (e2e4). Bare pawn moves onto
// the last rank promote to a queen.
func (b *Board) Drag(uci string) error {
	uci = strings.ToLower(strings.TrimSpace(uci))
	rank, file, ok := square(uci)
	if !ok {
		return fmt.Errorf("%w: %q", ErrIllegalMove, uci)
	}

	b.mu.Lock()
	position := b.engine.FEN()
	allow := b.draggable
	b.mu.Unlock()

	// the hook reads controller state, so it runs without the board lock
	side := rules.SideOf(rules.Placement(position)[rank][file])
	if side == game.NoRole || allow == nil || !allow(side) {
		return ErrNotDraggable
	}

	b.mu.Lock()
	if b.engine.FEN() != position {
		b.mu.Unlock()
		return ErrNotDraggable
	}
	uci = rules.AppendPromotion(position, uci)
	next := b.engine.Clone()
	if err := next.Move(uci); err != nil {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}
	b.engine = next
	b.lastMove = uci
	change := Change{Position: next.FEN(), Move: uci, User: true}
	fns := b.snapshotListeners()
	b.mu.Unlock()

	emit(fns, change)
	return nil
}

// Squares returns the board in view order: the top-left cell is a8 for
// white orientation and h1 when reversed.
func (b *Board) Squares() [8][8]byte {
	b.mu.Lock()
	position := b.engine.FEN()
	reversed := b.reversed
	b.mu.Unlock()

	grid := rules.Placement(position)
	if !reversed {
		return grid
	}
	var out [8][8]byte
	for r := 0; r < 8; r++ {
		for f := 0; f < 8; f++ {
			out[r][f] = grid[7-r][7-f]
		}
	}
	return out
}

// square returns the grid coordinates of the origin square of uci.
func square(uci string) (rank, file int, ok bool) {
	if len(uci) < 4 || uci[0] < 'a' || uci[0] > 'h' || uci[1] < '1' || uci[1] > '8' {
		return 0, 0, false
	}
	return int('8' - uci[1]), int(uci[0] - 'a'), true
}

func (b *Board) snapshotListeners() []func(Change) {
	return append([]func(Change){}, b.listeners...)
}

func emit(fns []func(Change), c Change) {
	for _, fn := range fns {
		fn(c)
	}
}
