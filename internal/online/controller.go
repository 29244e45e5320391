package online

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"chesslink/internal/board"
	"chesslink/internal/game"
	"chesslink/internal/logging"
	"chesslink/internal/roomstore"
	"chesslink/internal/rules"
	"chesslink/internal/storage"
	"chesslink/pkg/utils"
)

const createAttempts = 5

var errUnchanged = errors.New("nothing to write")

// Config wires a controller to its collaborators.
type Config struct {
	Rooms         roomstore.Store
	Widget        board.Widget
	Sessions      *storage.SessionStore
	ParticipantID string
	Archive       *storage.Store
	CodeLength    int
}

// Controller plays one side of an online game. The room document in the
// store is the only shared state; the controller writes it on local moves
// and mirrors it into the widget on every change.
type Controller struct {
	cfg Config

	applying atomic.Bool

	mu          sync.Mutex
	engine      *rules.Engine // last position known to be good
	moveLog     []string
	code        string
	role        game.Role
	participant string
	bothPresent bool
	moveEnabled bool
	reversed    bool
	over        bool
	winner      game.Role
	status      string
	cancel      func()
	onUpdate    func()
}

// New binds a controller to cfg.Widget.
func New(cfg Config) *Controller {
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = 6
	}
	c := &Controller{
		cfg:         cfg,
		engine:      rules.NewEngine(),
		participant: cfg.ParticipantID,
		status:      "Create a game or join one with a code.",
	}
	cfg.Widget.SetDraggable(c.CanDrag)
	cfg.Widget.OnChange(c.onBoardChange)
	return c
}

// OnUpdate registers a hook run whenever the visible state changes.
func (c *Controller) OnUpdate(fn func()) {
	c.mu.Lock()
	c.onUpdate = fn
	c.mu.Unlock()
}

// Create opens a new room with the local participant playing white.
func (c *Controller) Create(ctx context.Context) (string, error) {
	var code string
	for attempt := 0; ; attempt++ {
		code = utils.RoomCode(c.cfg.CodeLength)
		room := &game.Room{
			Code:     code,
			Position: rules.StartFEN,
			Turn:     game.White,
			Status:   game.StatusWaiting,
		}
		room.Players.Set(game.White, c.participantID())
		err := c.cfg.Rooms.Create(ctx, room)
		if err == nil {
			break
		}
		if !errors.Is(err, roomstore.ErrRoomExists) || attempt+1 >= createAttempts {
			logging.Errorf("online: create room: %v", err)
			c.setStatus(ErrJoinFailed.Message)
			return "", ErrJoinFailed
		}
	}

	if err := c.cfg.Archive.CreateGame(ctx, storage.ArchiveID(code), storage.ModeOnline, code, rules.StartFEN, time.Now()); err != nil {
		logging.Errorf("online: archive create failed: %v", err)
	}
	if err := c.attach(ctx, code, game.White); err != nil {
		return "", err
	}
	logging.Infof("online: created room %s", code)
	return code, nil
}

// Join claims an open slot in an existing room. White is taken only when
// it is free, so a vacated white slot can be reclaimed.
func (c *Controller) Join(ctx context.Context, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	pid := c.participantID()

	var role game.Role
	_, err := c.cfg.Rooms.Transact(ctx, code, func(r *game.Room) error {
		role = r.Players.RoleOf(pid)
		switch {
		case role != game.NoRole:
			// already seated, keep the seat
		case r.Players.Occupant(game.White) == "":
			role = game.White
		case r.Players.Occupant(game.Black) == "":
			role = game.Black
		default:
			return ErrRoomFull
		}
		r.Players.Set(role, pid)
		if r.Status != game.StatusEnded {
			if r.Players.BothPresent() {
				r.Status = game.StatusLive
			} else {
				r.Status = game.StatusWaiting
			}
		}
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, roomstore.ErrNotFound):
		c.setStatus(ErrRoomNotFound.Message)
		return ErrRoomNotFound
	case errors.Is(err, ErrRoomFull):
		c.setStatus(ErrRoomFull.Message)
		return ErrRoomFull
	default:
		logging.Errorf("online: join %s: %v", code, err)
		c.setStatus(ErrJoinFailed.Message)
		return ErrJoinFailed
	}

	logging.Infof("online: joined room %s as %s", code, role)
	return c.attach(ctx, code, role)
}

// Resume reattaches to the room saved in the session record without
// claiming a slot. It reports whether a session was resumed.
func (c *Controller) Resume(ctx context.Context) (bool, error) {
	var rec game.OnlineSession
	if !c.cfg.Sessions.Load(ctx, &rec) || !rec.Complete() {
		return false, nil
	}
	c.mu.Lock()
	c.participant = rec.ParticipantID
	c.mu.Unlock()

	if err := c.attach(ctx, rec.RoomCode, rec.Role); err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			c.cfg.Sessions.Clear(ctx)
		}
		return false, err
	}
	logging.Infof("online: resumed room %s as %s", rec.RoomCode, rec.Role)
	return true, nil
}

// Sync reads the current room again and re-subscribes to it, keeping the
// local role. With no room attached it falls back to the saved session.
// Sync never claims a slot.
func (c *Controller) Sync(ctx context.Context) error {
	c.mu.Lock()
	code, role := c.code, c.role
	c.mu.Unlock()
	if code == "" {
		resumed, err := c.Resume(ctx)
		if err == nil && !resumed {
			c.setStatus("No game to sync. Use /new or /join CODE.")
		}
		return err
	}
	return c.attach(ctx, code, role)
}

func (c *Controller) attach(ctx context.Context, code string, role game.Role) error {
	c.detach()

	c.mu.Lock()
	c.code = code
	c.role = role
	c.over = false
	c.winner = game.NoRole
	c.moveEnabled = false
	c.bothPresent = false
	c.orientLocked()
	pid := c.participantIDLocked()
	c.mu.Unlock()

	c.cfg.Sessions.Save(ctx, game.OnlineSession{RoomCode: code, Role: role, ParticipantID: pid})

	cancel, err := c.cfg.Rooms.Subscribe(ctx, code, c.onRemote)
	if err != nil {
		c.resetLocal("")
		if errors.Is(err, roomstore.ErrNotFound) {
			c.setStatus(ErrRoomNotFound.Message)
			return ErrRoomNotFound
		}
		logging.Errorf("online: subscribe %s: %v", code, err)
		c.setStatus(ErrJoinFailed.Message)
		return ErrJoinFailed
	}

	c.mu.Lock()
	if c.code != code {
		// left while subscribing
		c.mu.Unlock()
		cancel()
		return nil
	}
	c.cancel = cancel
	c.mu.Unlock()
	return nil
}

// Leave frees the local participant's slot and resets the local view. The
// local reset happens even if the remote write fails.
func (c *Controller) Leave(ctx context.Context) {
	c.mu.Lock()
	code, role, pid := c.code, c.role, c.participantIDLocked()
	c.mu.Unlock()

	c.detach()
	if code != "" && role.Valid() {
		_, err := c.cfg.Rooms.Transact(ctx, code, func(r *game.Room) error {
			if r.Players.Occupant(role) != pid {
				return errUnchanged
			}
			r.Players.Clear(role)
			if r.Status != game.StatusEnded {
				r.Status = game.StatusWaiting
			}
			return nil
		})
		if err != nil && !errors.Is(err, errUnchanged) {
			logging.Errorf("online: leave %s: %v", code, err)
		}
	}
	c.cfg.Sessions.Clear(ctx)
	c.resetLocal("Left the game.")
}

// Close stops following the room without giving up the slot, so the game
// can be resumed later.
func (c *Controller) Close() {
	c.detach()
}

func (c *Controller) detach() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Controller) resetLocal(status string) {
	_ = c.applyRemote(func() error { c.cfg.Widget.Reset(); return nil })
	c.mu.Lock()
	c.engine = rules.NewEngine()
	c.moveLog = nil
	c.code = ""
	c.role = game.NoRole
	c.bothPresent = false
	c.moveEnabled = false
	c.over = false
	c.winner = game.NoRole
	c.orientLocked()
	if status != "" {
		c.status = status
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) onRemote(room *game.Room) {
	c.mu.Lock()
	if room.Code != c.code {
		c.mu.Unlock()
		return
	}
	var next *rules.Engine
	if room.Position != "" {
		next = rules.NewEngine()
		if err := next.Load(room.Position); err != nil {
			logging.Debugf("online: room %s holds a bad position: %v", room.Code, err)
			next = nil
		}
	}
	if next != nil {
		c.engine = next
		c.moveLog = append([]string(nil), room.MoveLog...)
	}
	c.mu.Unlock()

	if next != nil {
		if err := c.applyRemote(func() error { return c.cfg.Widget.SetPosition(next.FEN()) }); err != nil {
			logging.Debugf("online: cannot show position: %v", err)
		}
	}

	c.mu.Lock()
	c.orientLocked()
	c.bothPresent = room.Players.BothPresent()
	c.moveEnabled = c.bothPresent && !c.over && room.Status != game.StatusEnded && room.Turn == c.role
	ended := room.Status == game.StatusEnded && room.Winner.Valid()
	if !ended && !c.over {
		c.status = c.turnStatusLocked(room.Turn)
	}
	c.mu.Unlock()

	if ended {
		c.gameOver(context.Background(), room.Winner)
		return
	}
	c.notify()
}

func (c *Controller) onBoardChange(ch board.Change) {
	if c.applying.Load() {
		return
	}
	c.mu.Lock()
	if c.code == "" || c.role == game.NoRole || !c.bothPresent || !c.moveEnabled {
		c.mu.Unlock()
		return
	}
	code, role := c.code, c.role
	prev := c.engine.FEN()
	c.mu.Unlock()

	position := c.cfg.Widget.Position()
	next := rules.NewEngine()
	if err := next.Load(position); err != nil {
		logging.Debugf("online: reverting invalid position: %v", err)
		c.revert(prev)
		return
	}
	fen := next.FEN()
	turn := next.Turn()
	mate := next.IsCheckmate()
	winner := turn.Opponent()
	logged := ch.Move != "" && rules.Reaches(prev, ch.Move, fen)

	c.mu.Lock()
	c.moveEnabled = false
	c.mu.Unlock()

	ctx := context.Background()
	var ply int
	room, err := c.cfg.Rooms.Transact(ctx, code, func(r *game.Room) error {
		// the move was made from prev; anything else means we are stale
		if r.Position != prev || r.Status != game.StatusLive {
			return roomstore.ErrConflict
		}
		r.Position = fen
		if logged {
			r.MoveLog = append(r.MoveLog, ch.Move)
		}
		r.Turn = turn
		if mate {
			r.Status = game.StatusEnded
			r.Winner = winner
		}
		ply = len(r.MoveLog)
		return nil
	})
	if err != nil {
		logging.Debugf("online: move rejected by room %s: %v", code, err)
		c.resync(ctx, code, prev)
		return
	}

	c.mu.Lock()
	if c.code == code {
		c.engine = next
		c.moveLog = append([]string(nil), room.MoveLog...)
	}
	c.mu.Unlock()

	if err := c.cfg.Archive.RecordMove(ctx, storage.ArchiveID(code), ply, ch.Move, fen, role); err != nil {
		logging.Errorf("online: archive move failed: %v", err)
	}
	if mate {
		if err := c.cfg.Archive.CompleteGame(ctx, storage.ArchiveID(code), winner, time.Now()); err != nil {
			logging.Errorf("online: archive complete failed: %v", err)
		}
		c.gameOver(ctx, winner)
	}
}

// resync shows the room's current document after a failed write.
func (c *Controller) resync(ctx context.Context, code, fallback string) {
	room, err := c.cfg.Rooms.Get(ctx, code)
	if err != nil {
		c.revert(fallback)
		return
	}
	c.onRemote(room)
}

func (c *Controller) revert(position string) {
	if err := c.applyRemote(func() error { return c.cfg.Widget.SetPosition(position) }); err != nil {
		logging.Debugf("online: revert failed: %v", err)
	}
	c.mu.Lock()
	c.orientLocked()
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) gameOver(ctx context.Context, winner game.Role) {
	c.mu.Lock()
	c.over = true
	c.winner = winner
	c.moveEnabled = false
	c.status = fmt.Sprintf("Checkmate! %s wins.", winner)
	c.mu.Unlock()

	c.cfg.Sessions.Clear(ctx)
	c.notify()
}

func (c *Controller) applyRemote(fn func() error) error {
	c.applying.Store(true)
	defer c.applying.Store(false)
	return fn()
}

func (c *Controller) orientLocked() {
	want := c.role == game.Black
	if want != c.reversed {
		c.cfg.Widget.Reverse()
		c.reversed = want
	}
}

func (c *Controller) turnStatusLocked(turn game.Role) string {
	switch {
	case !c.bothPresent:
		return fmt.Sprintf("Room %s: waiting for an opponent...", c.code)
	case turn == c.role:
		return fmt.Sprintf("Your move (%s).", c.role)
	default:
		return fmt.Sprintf("Waiting for %s to move.", turn)
	}
}

func (c *Controller) participantID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.participantIDLocked()
}

func (c *Controller) participantIDLocked() string {
	if c.participant == "" {
		c.participant = newParticipantID()
	}
	return c.participant
}

func (c *Controller) setStatus(s string) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) notify() {
	c.mu.Lock()
	fn := c.onUpdate
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// CanDrag reports whether pieces of side may be picked up.
func (c *Controller) CanDrag(side game.Role) bool {
	if c.applying.Load() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code != "" && c.role == side && c.bothPresent && c.moveEnabled && !c.over
}

func (c *Controller) Code() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code
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

func (c *Controller) BothPresent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bothPresent
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

// Position returns the last position confirmed by the room.
func (c *Controller) Position() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.FEN()
}

func (c *Controller) MoveLog() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.moveLog...)
}

// Status is the line shown to the player.
func (c *Controller) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}
