package embedded

import (
	"fmt"
	"sync"
	"sync/atomic"

	"chesslink/internal/board"
	"chesslink/internal/game"
	"chesslink/internal/logging"
	"chesslink/internal/protocol"
)

// Controller drives one board widget on behalf of a host. It applies host
// commands to the widget and reports user moves back up.
type Controller struct {
	widget board.Widget
	origin string
	up     func(*protocol.Message)

	// applying is set while a host command mutates the widget, so the
	// resulting change notifications are not reported as user moves.
	applying atomic.Bool

	mu          sync.Mutex
	role        game.Role
	moveEnabled bool
	reversed    bool
	over        bool
	winner      game.Role
	onUpdate    func()
}

// New binds a controller to widget. up delivers messages to the host.
func New(widget board.Widget, origin string, up func(*protocol.Message)) *Controller {
	c := &Controller{widget: widget, origin: origin, up: up}
	widget.SetDraggable(c.CanDrag)
	widget.OnChange(c.onBoardChange)
	return c
}

// Activate announces the controller to the host and asks for the current game.
func (c *Controller) Activate() {
	c.up(protocol.Ready())
	c.up(protocol.RequestSync())
}

// OnUpdate registers a hook run after every applied host command.
func (c *Controller) OnUpdate(fn func()) {
	c.mu.Lock()
	c.onUpdate = fn
	c.mu.Unlock()
}

// Receive applies a host command. Commands from other origins are dropped.
func (c *Controller) Receive(env protocol.Envelope) {
	if env.Message == nil {
		return
	}
	if env.Origin != c.origin {
		logging.Debugf("embedded: dropping message from origin %q", env.Origin)
		return
	}

	msg := env.Message
	switch msg.Type {
	case protocol.MsgRoleAssign:
		var p protocol.RoleAssignPayload
		if err := msg.DecodePayload(&p); err != nil || !p.Role.Valid() {
			logging.Debugf("embedded: bad role-assign: %v", err)
			return
		}
		c.assignRole(p.Role)
	case protocol.MsgSyncState:
		var p protocol.SyncStatePayload
		if err := msg.DecodePayload(&p); err != nil {
			logging.Debugf("embedded: %v", err)
			return
		}
		if err := c.applyRemote(func() error { return c.widget.SetPosition(p.Position) }); err != nil {
			logging.Debugf("embedded: cannot show position: %v", err)
			return
		}
		c.mu.Lock()
		c.orientLocked()
		c.mu.Unlock()
	case protocol.MsgTurn:
		var p protocol.TurnPayload
		if err := msg.DecodePayload(&p); err != nil {
			logging.Debugf("embedded: %v", err)
			return
		}
		c.mu.Lock()
		if c.role == game.NoRole {
			c.mu.Unlock()
			return
		}
		c.moveEnabled = !c.over && p.Turn == c.role
		c.mu.Unlock()
	case protocol.MsgReset:
		_ = c.applyRemote(func() error { c.widget.Reset(); return nil })
		c.mu.Lock()
		c.orientLocked()
		c.over = false
		c.winner = game.NoRole
		c.moveEnabled = c.role == game.White
		c.mu.Unlock()
	case protocol.MsgGameOver:
		var p protocol.GameOverPayload
		_ = msg.DecodePayload(&p)
		c.mu.Lock()
		c.moveEnabled = false
		c.over = true
		c.winner = p.Winner
		c.mu.Unlock()
	default:
		logging.Debugf("embedded: ignoring %s", msg.Type)
		return
	}
	c.notify()
}

func (c *Controller) assignRole(role game.Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.role != game.NoRole && c.role != role {
		logging.Debugf("embedded: keeping role %s, ignoring %s", c.role, role)
		return
	}
	c.role = role
	c.orientLocked()
}

// orientLocked shows black at the bottom for the black role. Reverse is a
// toggle, so it only runs when the wanted orientation differs.
func (c *Controller) orientLocked() {
	want := c.role == game.Black
	if want != c.reversed {
		c.widget.Reverse()
		c.reversed = want
	}
}

func (c *Controller) applyRemote(fn func() error) error {
	c.applying.Store(true)
	defer c.applying.Store(false)
	return fn()
}

func (c *Controller) onBoardChange(ch board.Change) {
	if c.applying.Load() {
		return
	}
	// legality is the host's call
	c.up(protocol.BoardUpdate(c.widget.Position(), ch.Move))
}

// CanDrag reports whether pieces of side may be picked up.
func (c *Controller) CanDrag(side game.Role) bool {
	if c.applying.Load() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role != game.NoRole && side == c.role && c.moveEnabled
}

func (c *Controller) notify() {
	c.mu.Lock()
	fn := c.onUpdate
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *Controller) Role() game.Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

func (c *Controller) MoveEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moveEnabled
}

func (c *Controller) Reversed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reversed
}

func (c *Controller) Over() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.over
}

func (c *Controller) Winner() game.Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.winner
}

// Status is a one-line summary for the player.
func (c *Controller) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.over:
		return fmt.Sprintf("Checkmate! %s wins.", c.winner)
	case c.role == game.NoRole:
		return "Waiting for the host..."
	case c.moveEnabled:
		return fmt.Sprintf("Your move (%s).", c.role)
	default:
		return fmt.Sprintf("Waiting for %s to move.", c.role.Opponent())
	}
}
