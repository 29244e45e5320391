package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"chesslink/internal/game"
)

func TestDecodeRejectsUnknownAndMalformed(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(`{"type":"fly-away"}`))
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = Decode([]byte(`{"type":`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestDecodeKnownMessage(t *testing.T) {
	t.Parallel()

	msg, err := Decode([]byte(`{"type":"turn","payload":{"turn":"black"}}`))
	require.NoError(t, err)
	assert.Equal(t, MsgTurn, msg.Type)

	var p TurnPayload
	require.NoError(t, msg.DecodePayload(&p))
	assert.Equal(t, game.Black, p.Turn)
}

func TestDecodePayloadMissing(t *testing.T) {
	t.Parallel()

	var p BoardUpdatePayload
	err := Ready().DecodePayload(&p)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestConstructorsCarryPayloads(t *testing.T) {
	t.Parallel()

	var over GameOverPayload
	require.NoError(t, GameOver(game.Black).DecodePayload(&over))
	assert.Equal(t, GameOverPayload{Winner: game.Black, Reason: ReasonCheckmate}, over)

	var sync SyncStatePayload
	require.NoError(t, SyncState("fen", []string{"e2e4"}).DecodePayload(&sync))
	assert.Equal(t, "fen", sync.Position)
	assert.Equal(t, []string{"e2e4"}, sync.MoveLog)

	var role RoleAssignPayload
	require.NoError(t, RoleAssign(game.White).DecodePayload(&role))
	assert.Equal(t, game.White, role.Role)
}

func TestBinaryCodec(t *testing.T) {
	t.Parallel()

	msgs := []*Message{
		Ready(),
		RequestSync(),
		Reset(),
		RoleAssign(game.Black),
		SyncState("8/8/8/8/8/8/8/K6k w - - 0 1", []string{"e2e4", "e7e5"}),
		BoardUpdate("fen", "g1f3"),
		Turn(game.White),
		GameOver(game.White),
	}
	for _, want := range msgs {
		t.Run(string(want.Type), func(t *testing.T) {
			data, err := MarshalBinary(want)
			require.NoError(t, err)

			got, err := UnmarshalBinary(data)
			require.NoError(t, err)
			assert.Equal(t, want.Type, got.Type)
			if len(want.Payload) == 0 {
				assert.Empty(t, got.Payload)
				return
			}
			assert.JSONEq(t, string(want.Payload), string(got.Payload))
		})
	}
}

func TestUnmarshalBinarySkipsUnknownFields(t *testing.T) {
	t.Parallel()

	data, err := MarshalBinary(Turn(game.Black))
	require.NoError(t, err)
	data = protowire.AppendTag(data, 99, protowire.VarintType)
	data = protowire.AppendVarint(data, 7)

	msg, err := UnmarshalBinary(data)
	require.NoError(t, err)
	var p TurnPayload
	require.NoError(t, msg.DecodePayload(&p))
	assert.Equal(t, game.Black, p.Turn)
}

func TestUnmarshalBinaryErrors(t *testing.T) {
	t.Parallel()

	_, err := UnmarshalBinary([]byte{0xff})
	assert.ErrorIs(t, err, ErrMalformed)

	noType := protowire.AppendTag(nil, fieldPosition, protowire.BytesType)
	noType = protowire.AppendString(noType, "fen")
	_, err = UnmarshalBinary(noType)
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = MarshalBinary(&Message{Type: "bogus"})
	assert.ErrorIs(t, err, ErrUnknownType)
}
