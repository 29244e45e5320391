package storage

import (
	"time"

	"github.com/google/uuid"
)

// GameRecord is an archived game, offline or online.
type GameRecord struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Mode        string    `gorm:"index"`
	RoomCode    string    `gorm:"index"`
	FEN         string
	Status      string
	Winner      string
	Active      bool `gorm:"index"`
	CompletedAt *time.Time
	LastSeen    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Moves       []MoveRecord `gorm:"foreignKey:GameID;constraint:OnDelete:CASCADE;"`
}

// MoveRecord stores a single accepted move.
type MoveRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	GameID    uuid.UUID `gorm:"type:uuid;index"`
	Number    int
	UCI       string
	FEN       string
	Color     string
	CreatedAt time.Time
}

// Archive modes.
const (
	ModeOffline = "offline"
	ModeOnline  = "online"
)

// Archive statuses.
const (
	StatusActive    = "active"
	StatusCheckmate = "checkmate"
	StatusAbandoned = "abandoned"
)
