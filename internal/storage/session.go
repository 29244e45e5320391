package storage

import (
	"context"
	"encoding/json"
	"errors"

	"chesslink/internal/logging"
)

// SessionStore persists a single JSON record under one key. Every failure
// is swallowed: a record that cannot be read is a record that does not exist.
type SessionStore struct {
	kv  KV
	key string
}

// NewSessionStore binds a KV and a key.
func NewSessionStore(kv KV, key string) *SessionStore {
	return &SessionStore{kv: kv, key: key}
}

// Load decodes the record into v and reports whether one was found.
func (s *SessionStore) Load(ctx context.Context, v any) bool {
	if s == nil || s.kv == nil {
		return false
	}
	data, err := s.kv.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logging.Debugf("session %s: read failed: %v", s.key, err)
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		logging.Debugf("session %s: corrupt record: %v", s.key, err)
		return false
	}
	return true
}

// Save writes v as the record.
func (s *SessionStore) Save(ctx context.Context, v any) {
	if s == nil || s.kv == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		logging.Debugf("session %s: encode failed: %v", s.key, err)
		return
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		logging.Debugf("session %s: write failed: %v", s.key, err)
	}
}

// Clear deletes the record.
func (s *SessionStore) Clear(ctx context.Context) {
	if s == nil || s.kv == nil {
		return
	}
	if err := s.kv.Delete(ctx, s.key); err != nil {
		logging.Debugf("session %s: clear failed: %v", s.key, err)
	}
}
