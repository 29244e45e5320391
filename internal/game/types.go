package game

import "strings"

// Role is the side a participant plays.
type Role string

const (
	NoRole Role = ""
	White  Role = "white"
	Black  Role = "black"
)

// Valid reports whether r is white or black.
func (r Role) Valid() bool {
	return r == White || r == Black
}

// Opponent returns the other side. NoRole has no opponent.
func (r Role) Opponent() Role {
	switch r {
	case White:
		return Black
	case Black:
		return White
	}
	return NoRole
}

// ParseRole accepts "white"/"w" and "black"/"b" in any case.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White, true
	case "black", "b":
		return Black, true
	}
	return NoRole, false
}

// Status is the lifecycle state of an online room.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusLive    Status = "live"
	StatusEnded   Status = "ended"
)

// State is a snapshot of an offline game held by a host.
type State struct {
	GameID   string   `json:"gameId"`
	Position string   `json:"position"`
	Turn     Role     `json:"turn"`
	MoveLog  []string `json:"moveLog"`
	Ended    bool     `json:"ended"`
	Winner   Role     `json:"winner,omitempty"`
	Children int      `json:"children"`
	LastSeen int64    `json:"lastSeen"`
	// ArchiveID names the row under /games/ that records this game.
	ArchiveID string `json:"archiveId"`
}

// OfflineSession is the persisted record of an offline game.
type OfflineSession struct {
	Position string   `json:"position"`
	MoveLog  []string `json:"moveLog,omitempty"`
}

// OnlineSession is the persisted record that lets a participant reattach
// to a room after a restart.
type OnlineSession struct {
	RoomCode      string `json:"roomCode"`
	Role          Role   `json:"role"`
	ParticipantID string `json:"participantId"`
}

// Complete reports whether every field needed to resume is present.
func (s OnlineSession) Complete() bool {
	return s.RoomCode != "" && s.Role.Valid() && s.ParticipantID != ""
}
