package wsserver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sage-x-project/sage-ws/handshake"
	"github.com/sage-x-project/sage-ws/protocol"
)

func TestCloseCodeForAuthState(t *testing.T) {
	code, reason := closeCodeFor(&handshake.ErrAuthState{Reason: "bad order"})
	assert.Equal(t, handshake.CloseAuthInvalid, code)
	assert.Equal(t, "bad order", reason)
}

func TestCloseCodeForProtocolError(t *testing.T) {
	code, _ := closeCodeFor(&handshake.ErrProtocol{Reason: "after auth"})
	assert.Equal(t, handshake.CloseProtocolError, code)
}

func TestCloseCodeForCodecError(t *testing.T) {
	code, _ := closeCodeFor(&protocol.ErrCodec{Reason: "bad json"})
	assert.Equal(t, handshake.CloseProtocolError, code)
}

func TestCloseCodeForUnknownPacketType(t *testing.T) {
	code, _ := closeCodeFor(&protocol.ErrUnknownPacketType{Tag: "PacketBogus"})
	assert.Equal(t, handshake.CloseProtocolError, code)
}
