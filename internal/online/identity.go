package online

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"chesslink/internal/storage"
)

type identity struct {
	ID string `json:"id"`
}

// ParticipantID returns the participant id saved in sessions, generating
// and saving one on first use.
func ParticipantID(ctx context.Context, sessions *storage.SessionStore) string {
	var rec identity
	if sessions.Load(ctx, &rec) && rec.ID != "" {
		return rec.ID
	}
	rec.ID = newParticipantID()
	sessions.Save(ctx, rec)
	return rec.ID
}

func newParticipantID() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	return fmt.Sprintf("p-%x-%x", time.Now().UnixNano(), rand.Uint64())
}
