package protocol

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"chesslink/internal/game"
)

// Field numbers of the binary frame. Every field is length-delimited.
const (
	fieldType     protowire.Number = 1
	fieldRole     protowire.Number = 2
	fieldPosition protowire.Number = 3
	fieldMoveLog  protowire.Number = 4 // repeated
	fieldMove     protowire.Number = 5
	fieldTurn     protowire.Number = 6
	fieldWinner   protowire.Number = 7
	fieldReason   protowire.Number = 8
)

// flatPayload is the union of every payload. Field names never collide
// across payload types, so any payload decodes into it.
type flatPayload struct {
	Role     game.Role `json:"role,omitempty"`
	Position string    `json:"position,omitempty"`
	MoveLog  []string  `json:"moveLog,omitempty"`
	Move     string    `json:"move,omitempty"`
	Turn     game.Role `json:"turn,omitempty"`
	Winner   game.Role `json:"winner,omitempty"`
	Reason   string    `json:"reason,omitempty"`
}

func hasPayload(t MessageType) bool {
	switch t {
	case MsgRoleAssign, MsgSyncState, MsgBoardUpdate, MsgTurn, MsgGameOver:
		return true
	}
	return false
}

// MarshalBinary encodes m in protobuf wire format.
func MarshalBinary(m *Message) ([]byte, error) {
	if !m.Type.Known() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}

	var p flatPayload
	if len(m.Payload) > 0 {
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	b := appendString(nil, fieldType, string(m.Type))
	b = appendString(b, fieldRole, string(p.Role))
	b = appendString(b, fieldPosition, p.Position)
	for _, mv := range p.MoveLog {
		b = protowire.AppendTag(b, fieldMoveLog, protowire.BytesType)
		b = protowire.AppendString(b, mv)
	}
	b = appendString(b, fieldMove, p.Move)
	b = appendString(b, fieldTurn, string(p.Turn))
	b = appendString(b, fieldWinner, string(p.Winner))
	b = appendString(b, fieldReason, p.Reason)
	return b, nil
}

// UnmarshalBinary decodes a frame produced by MarshalBinary. Unknown fields
// are skipped.
func UnmarshalBinary(data []byte) (*Message, error) {
	var (
		t MessageType
		p flatPayload
	)
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		data = data[n:]

		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}

		v, n := protowire.ConsumeString(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldType:
			t = MessageType(v)
		case fieldRole:
			p.Role = game.Role(v)
		case fieldPosition:
			p.Position = v
		case fieldMoveLog:
			p.MoveLog = append(p.MoveLog, v)
		case fieldMove:
			p.Move = v
		case fieldTurn:
			p.Turn = game.Role(v)
		case fieldWinner:
			p.Winner = game.Role(v)
		case fieldReason:
			p.Reason = v
		}
	}

	if !t.Known() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	msg := &Message{Type: t}
	if hasPayload(t) {
		data, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		msg.Payload = data
	}
	return msg, nil
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}
