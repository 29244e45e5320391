package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"chesslink/internal/game"
)

// Message is the envelope exchanged between a host and its board contexts.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MessageType is the closed set of message tags.
type MessageType string

// child -> host
const (
	MsgReady       MessageType = "ready"
	MsgRequestSync MessageType = "request-sync"
	MsgBoardUpdate MessageType = "board-update"
)

// host -> child
const (
	MsgRoleAssign MessageType = "role-assign"
	MsgSyncState  MessageType = "sync-state"
	MsgTurn       MessageType = "turn"
	MsgReset      MessageType = "reset"
	MsgGameOver   MessageType = "game-over"
)

// ReasonCheckmate is the only game-over reason.
const ReasonCheckmate = "checkmate"

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrMalformed   = errors.New("malformed message")
)

// Known reports whether t belongs to the protocol.
func (t MessageType) Known() bool {
	switch t {
	case MsgReady, MsgRequestSync, MsgBoardUpdate,
		MsgRoleAssign, MsgSyncState, MsgTurn, MsgReset, MsgGameOver:
		return true
	}
	return false
}

type RoleAssignPayload struct {
	Role game.Role `json:"role"`
}

type SyncStatePayload struct {
	Position string   `json:"position"`
	MoveLog  []string `json:"moveLog,omitempty"`
}

type BoardUpdatePayload struct {
	Position string `json:"position"`
	Move     string `json:"move,omitempty"` // UCI, optional
}

type TurnPayload struct {
	Turn game.Role `json:"turn"`
}

type GameOverPayload struct {
	Winner game.Role `json:"winner"`
	Reason string    `json:"reason"`
}

// Envelope carries a message together with who sent it and from which
// origin. Source is the explicit identifier handed out at handshake time.
type Envelope struct {
	Source  string
	Origin  string
	Message *Message
}

// NewMessage builds a message, marshalling payload when it is non-nil.
func NewMessage(t MessageType, payload any) (*Message, error) {
	msg := &Message{Type: t}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		msg.Payload = data
	}
	return msg, nil
}

// MustNewMessage is NewMessage for payloads that cannot fail to marshal.
func MustNewMessage(t MessageType, payload any) *Message {
	msg, err := NewMessage(t, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// DecodePayload unmarshals the payload into v.
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%w: %s has no payload", ErrMalformed, m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// Encode returns the JSON form of m.
func Encode(m *Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses a JSON message and rejects tags outside the protocol.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !m.Type.Known() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	return &m, nil
}

// Convenience constructors used by hosts and controllers.

func Ready() *Message       { return &Message{Type: MsgReady} }
func RequestSync() *Message { return &Message{Type: MsgRequestSync} }
func Reset() *Message       { return &Message{Type: MsgReset} }

func RoleAssign(role game.Role) *Message {
	return MustNewMessage(MsgRoleAssign, RoleAssignPayload{Role: role})
}

func SyncState(position string, moveLog []string) *Message {
	return MustNewMessage(MsgSyncState, SyncStatePayload{Position: position, MoveLog: moveLog})
}

func BoardUpdate(position, move string) *Message {
	return MustNewMessage(MsgBoardUpdate, BoardUpdatePayload{Position: position, Move: move})
}

func Turn(turn game.Role) *Message {
	return MustNewMessage(MsgTurn, TurnPayload{Turn: turn})
}

func GameOver(winner game.Role) *Message {
	return MustNewMessage(MsgGameOver, GameOverPayload{Winner: winner, Reason: ReasonCheckmate})
}
