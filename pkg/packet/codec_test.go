package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/transit/pkg/serializer"
)

func TestCodecRoundTripJSON(t *testing.T) {
	codec := NewCodec(serializer.NewJSON())

	original := &RequestPayload{
		Header: Header{Ver: ProtocolVersion, Sender: "nodeA"},
		ID:     "req-1",
		Action: "math.add",
		Params: map[string]any{"a": float64(1), "b": float64(2)},
	}

	data, err := codec.Encode(CmdRequest, original)
	require.NoError(t, err)

	decoded, err := codec.Decode(CmdRequest, data)
	require.NoError(t, err)

	got, ok := decoded.(*RequestPayload)
	require.True(t, ok)
	assert.Equal(t, original.ID, got.ID)
	assert.Equal(t, original.Action, got.Action)
	assert.Equal(t, original.Header, got.Header)
}

func TestCodecRoundTripMsgpack(t *testing.T) {
	codec := NewCodec(serializer.NewMsgpack())

	original := &PongPayload{
		Header:  Header{Ver: ProtocolVersion, Sender: "nodeA"},
		Time:    1000,
		Arrived: 1005,
	}

	data, err := codec.Encode(CmdPong, original)
	require.NoError(t, err)

	decoded, err := codec.Decode(CmdPong, data)
	require.NoError(t, err)

	got, ok := decoded.(*PongPayload)
	require.True(t, ok)
	assert.Equal(t, original, got)
}

func TestCodecDecodeUnknownCommand(t *testing.T) {
	codec := NewCodec(serializer.NewJSON())

	_, err := codec.Decode(Command("BOGUS"), []byte(`{}`))
	require.Error(t, err)

	var unknown *ErrUnknownCommand
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, Command("BOGUS"), unknown.Command)
}

func TestCodecDecodeMalformedPayload(t *testing.T) {
	codec := NewCodec(serializer.NewJSON())

	_, err := codec.Decode(CmdRequest, []byte(`not json`))
	require.Error(t, err)

	var decodeErr *ErrDecodeFailed
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, CmdRequest, decodeErr.Command)
	require.Error(t, decodeErr.Unwrap())
}

func TestHeaderOfEveryCommandShape(t *testing.T) {
	h := Header{Ver: ProtocolVersion, Sender: "nodeA"}

	cases := []any{
		&EventPayload{Header: h},
		&RequestPayload{Header: h},
		&ResponsePayload{Header: h},
		&DiscoverPayload{Header: h},
		&InfoPayload{Header: h},
		&DisconnectPayload{Header: h},
		&HeartbeatPayload{Header: h},
		&PingPayload{Header: h},
		&PongPayload{Header: h},
	}

	for _, payload := range cases {
		got, ok := HeaderOf(payload)
		require.True(t, ok, "%T", payload)
		assert.Equal(t, h, got)
	}
}

func TestHeaderOfUnknownType(t *testing.T) {
	_, ok := HeaderOf("not a payload")
	assert.False(t, ok)
}
