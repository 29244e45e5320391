package host

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"chesslink/internal/game"
	"chesslink/internal/logging"
	"chesslink/internal/protocol"
	"chesslink/internal/rules"
	"chesslink/internal/storage"
)

var ErrInvalidSlot = errors.New("slot must be 0 or 1")

// Port delivers host messages to one child context. Post must not call
// back into the host.
type Port interface {
	Post(msg *protocol.Message)
}

// closer is implemented by ports that own a connection.
type closer interface {
	Close()
}

// PortFunc adapts a function to Port.
type PortFunc func(msg *protocol.Message)

func (f PortFunc) Post(msg *protocol.Message) { f(msg) }

// Config describes one offline game.
type Config struct {
	ID       string
	Origin   string
	Sessions *storage.SessionStore
	Archive  *storage.Store
}

type child struct {
	id       string
	slot     int
	port     Port
	role     game.Role
	attached bool
}

type delivery struct {
	port Port
	msg  *protocol.Message
}

// Host owns the authoritative position of a two-board offline game and
// relays it between the two child contexts.
type Host struct {
	// sendMu orders deliveries; it is taken before mu is released so
	// children see messages in the order the state changed.
	sendMu sync.Mutex

	mu        sync.Mutex
	cfg       Config
	engine    *rules.Engine
	moveLog   []string
	plies     int
	ended     bool
	winner    game.Role
	slots     [2]*child
	lastSeen  time.Time
	archiveID uuid.UUID
}

// New creates a host, resuming the saved position when one is found.
func New(ctx context.Context, cfg Config) *Host {
	h := &Host{
		cfg:       cfg,
		engine:    rules.NewEngine(),
		lastSeen:  time.Now(),
		archiveID: archiveIDFor(cfg.ID),
	}

	var saved game.OfflineSession
	if cfg.Sessions.Load(ctx, &saved) {
		if err := h.engine.Load(saved.Position); err != nil {
			logging.Debugf("host %s: discarding saved position: %v", cfg.ID, err)
			h.engine.Reset()
		} else {
			h.moveLog = saved.MoveLog
			h.plies = len(saved.MoveLog)
		}
	}
	if h.engine.IsCheckmate() {
		h.ended = true
		h.winner = h.engine.Turn().Opponent()
	}

	if err := cfg.Archive.CreateGame(ctx, h.archiveID, storage.ModeOffline, "", h.engine.FEN(), h.lastSeen); err != nil {
		logging.Errorf("host %s: archive create failed: %v", cfg.ID, err)
	}
	return h
}

func archiveIDFor(id string) uuid.UUID {
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("chesslink:offline:"+id))
}

// slotRole maps the first child context to white and the second to black.
func slotRole(slot int) game.Role {
	if slot == 0 {
		return game.White
	}
	return game.Black
}

// Attach connects a child context to a slot and returns the identifier the
// child must send as its envelope source. Attaching to a slot that is still
// attached replaces the old child: a board that lost its network without a
// close frame reconnects this way. The old port is closed when it can be.
func (h *Host) Attach(slot int, port Port) (string, error) {
	if slot != 0 && slot != 1 {
		return "", ErrInvalidSlot
	}
	h.mu.Lock()
	c := h.slots[slot]
	var old Port
	switch {
	case c == nil:
		c = &child{slot: slot}
		h.slots[slot] = c
	case c.attached:
		old = c.port
		logging.Debugf("host %s: child %s replaced on slot %d", h.cfg.ID, c.id, slot)
	}
	c.id = uuid.NewString()
	c.port = port
	c.attached = true
	h.lastSeen = time.Now()
	id := c.id
	h.mu.Unlock()

	if cl, ok := old.(closer); ok {
		cl.Close()
	}
	logging.Debugf("host %s: child %s attached to slot %d", h.cfg.ID, id, slot)
	return id, nil
}

// Detach disconnects a child. Its slot keeps the assigned role.
func (h *Host) Detach(childID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c := h.childLocked(childID); c != nil {
		c.attached = false
		c.port = nil
		logging.Debugf("host %s: child %s detached", h.cfg.ID, childID)
	}
}

func (h *Host) childLocked(id string) *child {
	for _, c := range h.slots {
		if c != nil && c.attached && c.id == id {
			return c
		}
	}
	return nil
}

// Receive handles a message from a child context. Messages from foreign
// origins, unknown senders and anything malformed are dropped.
func (h *Host) Receive(ctx context.Context, env protocol.Envelope) {
	if env.Message == nil {
		return
	}
	if env.Origin != h.cfg.Origin {
		logging.Debugf("host %s: dropping message from origin %q", h.cfg.ID, env.Origin)
		return
	}

	h.mu.Lock()
	c := h.childLocked(env.Source)
	if c == nil {
		h.mu.Unlock()
		logging.Debugf("host %s: dropping message from unknown child %q", h.cfg.ID, env.Source)
		return
	}
	h.lastSeen = time.Now()

	var out []delivery
	var after func()
	switch env.Message.Type {
	case protocol.MsgReady:
		out = h.handleReadyLocked(c)
	case protocol.MsgRequestSync:
		out = h.handleSyncLocked(c)
	case protocol.MsgBoardUpdate:
		out, after = h.handleBoardUpdateLocked(ctx, c, env.Message)
	default:
		logging.Debugf("host %s: dropping %s from child", h.cfg.ID, env.Message.Type)
	}
	h.deliverAndUnlock(out)

	if after != nil {
		after()
	}
}

func (h *Host) handleReadyLocked(c *child) []delivery {
	if c.role == game.NoRole {
		c.role = slotRole(c.slot)
	}
	out := []delivery{
		{c.port, protocol.RoleAssign(c.role)},
		{c.port, h.syncMessageLocked()},
	}
	out = append(out, h.broadcastLocked(protocol.Turn(h.engine.Turn()))...)
	if h.ended {
		out = append(out, delivery{c.port, protocol.GameOver(h.winner)})
	}
	return out
}

func (h *Host) handleSyncLocked(c *child) []delivery {
	out := []delivery{
		{c.port, h.syncMessageLocked()},
		{c.port, protocol.Turn(h.engine.Turn())},
	}
	if h.ended {
		out = append(out, delivery{c.port, protocol.GameOver(h.winner)})
	}
	return out
}

func (h *Host) handleBoardUpdateLocked(ctx context.Context, c *child, msg *protocol.Message) ([]delivery, func()) {
	if h.ended {
		logging.Debugf("host %s: game over, ignoring move", h.cfg.ID)
		return nil, nil
	}
	if c.role == game.NoRole || c.role != h.engine.Turn() {
		logging.Debugf("host %s: %s moved out of turn", h.cfg.ID, c.role)
		return nil, nil
	}
	var p protocol.BoardUpdatePayload
	if err := msg.DecodePayload(&p); err != nil {
		logging.Debugf("host %s: %v", h.cfg.ID, err)
		return nil, nil
	}
	next := rules.NewEngine()
	if err := next.Load(p.Position); err != nil {
		logging.Debugf("host %s: rejecting position: %v", h.cfg.ID, err)
		return nil, nil
	}

	prev := h.engine.FEN()
	h.engine = next
	if p.Move != "" && rules.Reaches(prev, p.Move, next.FEN()) {
		h.moveLog = append(h.moveLog, p.Move)
	}
	h.plies++
	position := next.FEN()
	mover := c.role
	number := h.plies
	archiveID := h.archiveID

	other := h.slots[1-c.slot]
	var out []delivery
	if other != nil && other.attached {
		out = append(out, delivery{other.port, h.syncMessageLocked()})
	}

	// the session is written under the lock so saves land in move order
	if next.IsCheckmate() {
		h.ended = true
		h.winner = next.Turn().Opponent()
		winner := h.winner
		h.cfg.Sessions.Clear(ctx)
		out = append(out, h.broadcastLocked(protocol.GameOver(winner))...)
		logging.Infof("host %s: checkmate, %s wins", h.cfg.ID, winner)
		return out, func() {
			h.archiveMove(ctx, archiveID, number, p.Move, position, mover)
			if err := h.cfg.Archive.CompleteGame(ctx, archiveID, winner, time.Now()); err != nil {
				logging.Errorf("host %s: archive complete failed: %v", h.cfg.ID, err)
			}
		}
	}

	h.cfg.Sessions.Save(ctx, game.OfflineSession{Position: position, MoveLog: append([]string(nil), h.moveLog...)})
	out = append(out, h.broadcastLocked(protocol.Turn(next.Turn()))...)
	return out, func() {
		h.archiveMove(ctx, archiveID, number, p.Move, position, mover)
	}
}

func (h *Host) archiveMove(ctx context.Context, id uuid.UUID, number int, move, position string, mover game.Role) {
	if err := h.cfg.Archive.RecordMove(ctx, id, number, move, position, mover); err != nil {
		logging.Errorf("host %s: archive move failed: %v", h.cfg.ID, err)
	}
}

// Reset starts a fresh game and pushes it to both children.
func (h *Host) Reset(ctx context.Context) {
	h.mu.Lock()
	wasEnded := h.ended
	oldID := h.archiveID
	h.engine.Reset()
	h.moveLog = nil
	h.plies = 0
	h.ended = false
	h.winner = game.NoRole
	h.archiveID = uuid.New()
	h.lastSeen = time.Now()
	newID := h.archiveID

	out := h.broadcastLocked(protocol.Reset())
	out = append(out, h.broadcastLocked(h.syncMessageLocked())...)
	out = append(out, h.broadcastLocked(protocol.Turn(game.White))...)
	h.cfg.Sessions.Clear(ctx)
	h.deliverAndUnlock(out)

	if !wasEnded {
		if err := h.cfg.Archive.AbandonGame(ctx, oldID, time.Now()); err != nil {
			logging.Errorf("host %s: archive abandon failed: %v", h.cfg.ID, err)
		}
	}
	if err := h.cfg.Archive.CreateGame(ctx, newID, storage.ModeOffline, "", rules.StartFEN, time.Now()); err != nil {
		logging.Errorf("host %s: archive create failed: %v", h.cfg.ID, err)
	}
}

// State returns a snapshot of the game.
func (h *Host) State() game.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	children := 0
	for _, c := range h.slots {
		if c != nil && c.attached {
			children++
		}
	}
	return game.State{
		GameID:   h.cfg.ID,
		Position: h.engine.FEN(),
		Turn:     h.engine.Turn(),
		MoveLog:  append([]string(nil), h.moveLog...),
		Ended:    h.ended,
		Winner:   h.winner,
		Children: children,
		LastSeen: h.lastSeen.Unix(),

		ArchiveID: h.archiveID.String(),
	}
}

// LastSeen returns the time of the last child activity.
func (h *Host) LastSeen() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastSeen
}

func (h *Host) idle(now time.Time, timeout time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.slots {
		if c != nil && c.attached {
			return false
		}
	}
	return now.Sub(h.lastSeen) > timeout
}

func (h *Host) syncMessageLocked() *protocol.Message {
	return protocol.SyncState(h.engine.FEN(), append([]string(nil), h.moveLog...))
}

func (h *Host) broadcastLocked(msg *protocol.Message) []delivery {
	var out []delivery
	for _, c := range h.slots {
		if c != nil && c.attached {
			out = append(out, delivery{c.port, msg})
		}
	}
	return out
}

// deliverAndUnlock releases mu and sends out under sendMu. Ports run outside
// the state lock, and deliveries from consecutive state changes cannot
// interleave.
func (h *Host) deliverAndUnlock(out []delivery) {
	h.sendMu.Lock()
	h.mu.Unlock()
	defer h.sendMu.Unlock()
	send(out)
}

func send(out []delivery) {
	for _, d := range out {
		if d.port != nil {
			d.port.Post(d.msg)
		}
	}
}
