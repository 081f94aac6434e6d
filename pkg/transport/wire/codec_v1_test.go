package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodecV1RoundTripRequest(t *testing.T) {
	codec, ok := CodecFor(V1)
	require.True(t, ok)

	req := Request{
		ID:      42,
		Sender:  Address{Host: "127.0.0.1", Port: 5001},
		Subject: "echo",
		Payload: []byte{0x01, 0x02, 0x03},
	}

	var buf bytes.Buffer
	require.NoError(t, codec.Encode(&buf, req))

	decoded, err := codec.Decode(&buf)
	require.NoError(t, err)

	got, ok := decoded.(Request)
	require.True(t, ok)
	require.Equal(t, req, got)
}

func TestCodecV1RoundTripReply(t *testing.T) {
	codec, _ := CodecFor(V1)

	rep := Reply{ID: 7, Payload: []byte("pong"), Status: StatusErrHandlerException}

	var buf bytes.Buffer
	require.NoError(t, codec.Encode(&buf, rep))

	decoded, err := codec.Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, rep, decoded)
}

func TestCodecV1RoundTripLargePayload(t *testing.T) {
	codec, _ := CodecFor(V1)

	payload := bytes.Repeat([]byte{0xAB}, 1<<20) // 1 MiB payload.
	req := Request{ID: 1, Sender: Address{Host: "h", Port: 1}, Subject: "s", Payload: payload}

	var buf bytes.Buffer
	require.NoError(t, codec.Encode(&buf, req))

	decoded, err := codec.Decode(&buf)
	require.NoError(t, err)
	got := decoded.(Request)
	require.True(t, bytes.Equal(payload, got.Payload))
}

func TestCodecV1RejectsOversizedFrame(t *testing.T) {
	codec, _ := CodecFor(V1)
	huge := Request{ID: 1, Sender: Address{Host: "h", Port: 1}, Subject: "s", Payload: make([]byte, maxFrameSize+1)}
	var buf bytes.Buffer
	require.Error(t, codec.Encode(&buf, huge))
}

func TestNegotiateServer(t *testing.T) {
	v, ok := NegotiateServer([]Version{V1}, V1)
	require.True(t, ok)
	require.Equal(t, V1, v)

	_, ok = NegotiateServer([]Version{V1}, Version(0))
	require.False(t, ok)
}

func TestCodecForUnknownVersion(t *testing.T) {
	_, ok := CodecFor(Version(99))
	require.False(t, ok)
}
