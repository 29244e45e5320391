package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chesslink/internal/game"
)

// Store wraps a gorm DB instance and archives games and their moves.
// Every method is a no-op on a nil *Store, which is how the archive is
// switched off.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new store helper from a gorm DB.
func NewStore(db *gorm.DB) *Store {
	if db == nil {
		return nil
	}
	return &Store{db: db}
}

// ErrRecordNotFound is returned when an archived game does not exist.
var ErrRecordNotFound = gorm.ErrRecordNotFound

// GameStateUpdate represents a partial update to a game row.
type GameStateUpdate struct {
	FEN         *string
	Status      *string
	Winner      *string
	Active      *bool
	LastSeen    *time.Time
	CompletedAt *time.Time
}

// ArchiveID derives the archive id of an online room, so both participants
// write to the same row.
func ArchiveID(roomCode string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("chesslink:room:"+roomCode))
}

// CreateGame inserts a new game row. Creating an existing id is a no-op.
func (s *Store) CreateGame(ctx context.Context, id uuid.UUID, mode, roomCode, fen string, lastSeen time.Time) error {
	if s == nil {
		return nil
	}
	rec := GameRecord{
		ID:       id,
		Mode:     mode,
		RoomCode: roomCode,
		FEN:      fen,
		Status:   StatusActive,
		Active:   true,
		LastSeen: lastSeen,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error
}

// SaveGameState applies partial updates to the game row.
func (s *Store) SaveGameState(ctx context.Context, id uuid.UUID, upd GameStateUpdate) error {
	if s == nil {
		return nil
	}
	updates := make(map[string]any)
	if upd.FEN != nil {
		updates["fen"] = *upd.FEN
	}
	if upd.Status != nil {
		updates["status"] = *upd.Status
	}
	if upd.Winner != nil {
		updates["winner"] = *upd.Winner
	}
	if upd.Active != nil {
		updates["active"] = *upd.Active
	}
	if upd.LastSeen != nil {
		updates["last_seen"] = *upd.LastSeen
	}
	if upd.CompletedAt != nil {
		updates["completed_at"] = *upd.CompletedAt
	}
	if len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&GameRecord{}).Where("id = ?", id).Updates(updates).Error
}

// RecordMove inserts a move row and moves the game's position forward.
func (s *Store) RecordMove(ctx context.Context, id uuid.UUID, number int, uci, fen string, color game.Role) error {
	if s == nil {
		return nil
	}
	now := time.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		move := MoveRecord{
			GameID: id,
			Number: number,
			UCI:    uci,
			FEN:    fen,
			Color:  string(color),
		}
		if err := tx.Create(&move).Error; err != nil {
			return err
		}
		return tx.Model(&GameRecord{}).Where("id = ?", id).
			Updates(map[string]any{"fen": fen, "last_seen": now}).Error
	})
}

// CompleteGame marks a game as won by checkmate.
func (s *Store) CompleteGame(ctx context.Context, id uuid.UUID, winner game.Role, completedAt time.Time) error {
	if s == nil {
		return nil
	}
	status := StatusCheckmate
	w := string(winner)
	active := false
	return s.SaveGameState(ctx, id, GameStateUpdate{
		Status:      &status,
		Winner:      &w,
		Active:      &active,
		CompletedAt: &completedAt,
	})
}

// AbandonGame marks a game that was reset or left before it ended.
func (s *Store) AbandonGame(ctx context.Context, id uuid.UUID, when time.Time) error {
	if s == nil {
		return nil
	}
	status := StatusAbandoned
	active := false
	return s.db.WithContext(ctx).Model(&GameRecord{}).
		Where("id = ? AND active = ?", id, true).
		Updates(map[string]any{"status": status, "active": active, "completed_at": when}).Error
}

// PersistedGame is an archived game with its moves in order.
type PersistedGame struct {
	Game  GameRecord   `json:"game"`
	Moves []MoveRecord `json:"moves"`
}

// LoadGame fetches an archived game and its moves.
func (s *Store) LoadGame(ctx context.Context, id uuid.UUID) (*PersistedGame, error) {
	if s == nil {
		return nil, gorm.ErrRecordNotFound
	}
	var rec GameRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	var moves []MoveRecord
	if err := s.db.WithContext(ctx).
		Where("game_id = ?", id).
		Order("number asc").
		Find(&moves).Error; err != nil {
		return nil, err
	}
	return &PersistedGame{Game: rec, Moves: moves}, nil
}

// Stats represents aggregate counts for games.
type Stats struct {
	Started   int64 `json:"started"`
	Completed int64 `json:"completed"`
	Active    int64 `json:"active"`
}

// FetchStats aggregates archive counts.
func (s *Store) FetchStats(ctx context.Context) (Stats, error) {
	var stats Stats
	if s == nil {
		return stats, nil
	}
	if err := s.db.WithContext(ctx).Model(&GameRecord{}).Count(&stats.Started).Error; err != nil {
		return stats, err
	}
	if err := s.db.WithContext(ctx).Model(&GameRecord{}).Where("active = ?", true).Count(&stats.Active).Error; err != nil {
		return stats, err
	}
	if err := s.db.WithContext(ctx).Model(&GameRecord{}).Where("status = ?", StatusCheckmate).Count(&stats.Completed).Error; err != nil {
		return stats, err
	}
	return stats, nil
}
