package protocol

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sagecrypto "github.com/sage-x-project/sage-ws/crypto"
)

func TestRoundTripCodecNoKey(t *testing.T) {
	codec := NewCodec(Default)
	msg := &PacketPing{Timestamp: 1234, SequenceID: 7}

	text, err := codec.Encode(msg, nil, -1)
	require.NoError(t, err)

	decoded, err := codec.Decode(text, nil)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
}

func TestRoundTripCodecWithKey(t *testing.T) {
	codec := NewCodec(Default)
	key, err := sagecrypto.GenerateSymmetricKey()
	require.NoError(t, err)

	msg := &PacketAuthSuccess{Message: "welcome"}
	text, err := codec.Encode(msg, key, -1)
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &env))
	assert.Equal(t, true, env["encrypted"])
	_, hasCompressed := env["compressed"]
	assert.False(t, hasCompressed)

	decoded, err := codec.Decode(text, key)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
}

func TestEncryptionWinsOverCompression(t *testing.T) {
	codec := NewCodec(Default)
	key, err := sagecrypto.GenerateSymmetricKey()
	require.NoError(t, err)

	msg := &PacketIdentification{ClientIdentifier: strings.Repeat("x", 2000)}
	text, err := codec.Encode(msg, key, 10)
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &env))
	assert.Equal(t, true, env["encrypted"])
	assert.NotContains(t, env, "compressed")
}

func TestCompressionBelowThresholdStaysPlain(t *testing.T) {
	codec := NewCodec(Default)
	msg := &PacketPing{Timestamp: 1, SequenceID: 1}

	text, err := codec.Encode(msg, nil, 10000)
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &env))
	assert.Equal(t, TagPing, env["type"])
}

func TestCompressionAboveThresholdCompresses(t *testing.T) {
	codec := NewCodec(Default)
	msg := &PacketIdentification{ClientIdentifier: strings.Repeat("a", 2000)}

	text, err := codec.Encode(msg, nil, 100)
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &env))
	assert.Equal(t, true, env["compressed"])

	decoded, err := codec.Decode(text, nil)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
}

func TestDecodeUnknownTagFails(t *testing.T) {
	codec := NewCodec(NewRegistry())
	_, err := codec.Decode(`{"type":"PacketNope","data":{}}`, nil)
	require.Error(t, err)
	var unknown *ErrUnknownPacketType
	assert.ErrorAs(t, err, &unknown)
}

func TestDecodeEncryptedWithoutKeyFails(t *testing.T) {
	codec := NewCodec(Default)
	key, err := sagecrypto.GenerateSymmetricKey()
	require.NoError(t, err)

	text, err := codec.Encode(&PacketPing{Timestamp: 1, SequenceID: 1}, key, -1)
	require.NoError(t, err)

	_, err = codec.Decode(text, nil)
	assert.Error(t, err)
}

func TestCustomApplicationPacket(t *testing.T) {
	registry := NewRegistry()
	registry.Register("PacketGameUpdate", func() Message { return &packetGameUpdate{} })
	codec := NewCodec(registry)

	msg := &packetGameUpdate{Action: "move", Data: "1,2,3"}
	text, err := codec.Encode(msg, nil, -1)
	require.NoError(t, err)

	decoded, err := codec.Decode(text, nil)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
}

type packetGameUpdate struct {
	Action string `json:"action"`
	Data   string `json:"data"`
}

func (*packetGameUpdate) Tag() Tag { return "PacketGameUpdate" }

func TestDecodeFrameReportsEncryptedOuterLayer(t *testing.T) {
	codec := NewCodec(Default)
	key, err := sagecrypto.GenerateSymmetricKey()
	require.NoError(t, err)

	encText, err := codec.Encode(&PacketPing{Timestamp: 1, SequenceID: 1}, key, -1)
	require.NoError(t, err)
	_, encrypted, err := codec.DecodeFrame(encText, key)
	require.NoError(t, err)
	assert.True(t, encrypted)

	plainText, err := codec.Encode(&PacketPing{Timestamp: 1, SequenceID: 1}, nil, -1)
	require.NoError(t, err)
	_, encrypted, err = codec.DecodeFrame(plainText, key)
	require.NoError(t, err)
	assert.False(t, encrypted)

	// A compressed frame is still a plaintext frame.
	bigText, err := codec.Encode(&PacketIdentification{ClientIdentifier: strings.Repeat("z", 2000)}, nil, 100)
	require.NoError(t, err)
	_, encrypted, err = codec.DecodeFrame(bigText, key)
	require.NoError(t, err)
	assert.False(t, encrypted)
}

func TestDecodeRejectsEnvelopeWithBothFlags(t *testing.T) {
	codec := NewCodec(Default)
	_, err := codec.Decode(`{"encrypted":true,"compressed":true,"payload":"aGk=","iv":"aGk="}`, nil)
	require.Error(t, err)
	var codecErr *ErrCodec
	assert.ErrorAs(t, err, &codecErr)
}
