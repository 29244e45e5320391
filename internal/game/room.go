package game

// Player occupies one slot of a room.
type Player struct {
	ID string `json:"id"`
}

// Players maps each role to its occupant, nil when the slot is open.
type Players struct {
	White *Player `json:"white,omitempty"`
	Black *Player `json:"black,omitempty"`
}

// Occupant returns the participant id holding role, or "".
func (p Players) Occupant(role Role) string {
	var slot *Player
	switch role {
	case White:
		slot = p.White
	case Black:
		slot = p.Black
	}
	if slot == nil {
		return ""
	}
	return slot.ID
}

// Set puts participant id into the role's slot.
func (p *Players) Set(role Role, id string) {
	switch role {
	case White:
		p.White = &Player{ID: id}
	case Black:
		p.Black = &Player{ID: id}
	}
}

// Clear frees the role's slot.
func (p *Players) Clear(role Role) {
	switch role {
	case White:
		p.White = nil
	case Black:
		p.Black = nil
	}
}

// BothPresent reports whether both slots are occupied.
func (p Players) BothPresent() bool {
	return p.Occupant(White) != "" && p.Occupant(Black) != ""
}

// RoleOf returns the slot held by participant id.
func (p Players) RoleOf(id string) Role {
	if id == "" {
		return NoRole
	}
	switch id {
	case p.Occupant(White):
		return White
	case p.Occupant(Black):
		return Black
	}
	return NoRole
}

// Room is the shared document of an online game.
type Room struct {
	Code      string   `json:"code"`
	Position  string   `json:"position"`
	MoveLog   []string `json:"moveLog,omitempty"`
	Turn      Role     `json:"turn"`
	Status    Status   `json:"status"`
	Winner    Role     `json:"winner,omitempty"`
	Players   Players  `json:"players"`
	UpdatedAt int64    `json:"updatedAt"`
}

// Clone returns a deep copy so store implementations never share slices or
// slot pointers with callers.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	out := *r
	if r.MoveLog != nil {
		out.MoveLog = append([]string(nil), r.MoveLog...)
	}
	if r.Players.White != nil {
		w := *r.Players.White
		out.Players.White = &w
	}
	if r.Players.Black != nil {
		b := *r.Players.Black
		out.Players.Black = &b
	}
	return &out
}
