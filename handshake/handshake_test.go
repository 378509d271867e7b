package handshake

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/sage-ws/crypto"
	"github.com/sage-x-project/sage-ws/protocol"
	"github.com/sage-x-project/sage-ws/session"
)

// pipeSender wires a Client and a Server directly together in-process, in
// place of a real transport/websocket connection.
type pipeSender struct {
	deliver func(text string) error
	closeFn func(code int, reason string) error
}

func (p *pipeSender) SendText(text string) error { return p.deliver(text) }
func (p *pipeSender) Close(code int, reason string) error {
	if p.closeFn != nil {
		return p.closeFn(code, reason)
	}
	return nil
}

type recordingServerHandler struct {
	mu            sync.Mutex
	authenticated []*session.Session
	identified    []string
	packets       []protocol.Message
	disconnected  int
}

func (h *recordingServerHandler) OnAuthenticated(s *session.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.authenticated = append(h.authenticated, s)
}
func (h *recordingServerHandler) OnIdentified(s *session.Session, identifier string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.identified = append(h.identified, identifier)
}
func (h *recordingServerHandler) OnPacket(s *session.Session, msg protocol.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.packets = append(h.packets, msg)
}
func (h *recordingServerHandler) OnDisconnect(s *session.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnected++
}

type recordingClientHandler struct {
	mu            sync.Mutex
	connected     int
	authenticated int
	disconnected  int
	packets       []protocol.Message
}

func (h *recordingClientHandler) OnConnect(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected++
}
func (h *recordingClientHandler) OnAuthenticated(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.authenticated++
}
func (h *recordingClientHandler) OnPacket(c *Client, msg protocol.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.packets = append(h.packets, msg)
}
func (h *recordingClientHandler) OnDisconnect(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnected++
}

// wireUp links a fresh server session on handle to client c and starts the
// client's handshake, failing t via require.NoError if Opened errors.
func wireUp(t *testing.T, srv *Server, handle string, c *Client) {
	t.Helper()

	var clientSender, serverSender *pipeSender
	clientSender = &pipeSender{
		deliver: func(text string) error {
			return srv.HandleText(handle, text)
		},
	}
	serverSender = &pipeSender{
		deliver: func(text string) error {
			return c.HandleText(text)
		},
	}

	srv.Opened(handle, serverSender)
	require.NoError(t, c.Opened(clientSender))
}

func TestHandshakeHappyPathNoIdentifier(t *testing.T) {
	registry := session.NewRegistry()
	codec := protocol.NewCodec(nil)

	serverHandler := &recordingServerHandler{}
	srv := NewServer("topsecret", registry, codec, serverHandler)

	clientHandler := &recordingClientHandler{}
	c := NewClient("topsecret", "", "", codec, clientHandler)

	wireUp(t, srv, "conn-1", c)

	assert.True(t, c.Authenticated())
	clientHandler.mu.Lock()
	assert.Equal(t, 1, clientHandler.connected)
	assert.Equal(t, 1, clientHandler.authenticated)
	clientHandler.mu.Unlock()

	serverHandler.mu.Lock()
	assert.Len(t, serverHandler.authenticated, 1)
	assert.True(t, serverHandler.authenticated[0].Authenticated())
	assert.Empty(t, serverHandler.authenticated[0].Identifier())
	serverHandler.mu.Unlock()
}

type packetGameUpdate struct {
	Action string `json:"action"`
	Data   string `json:"data"`
}

func (*packetGameUpdate) Tag() protocol.Tag { return "PacketGameUpdate" }

func TestHandshakeCustomApplicationPacketTravelsEncrypted(t *testing.T) {
	registry := session.NewRegistry()
	reg := protocol.NewRegistry()
	reg.Register("PacketPublicKey", func() protocol.Message { return &protocol.PacketPublicKey{} })
	reg.Register("PacketSharedSecret", func() protocol.Message { return &protocol.PacketSharedSecret{} })
	reg.Register("PacketChallenge", func() protocol.Message { return &protocol.PacketChallenge{} })
	reg.Register("PacketChallengeResponse", func() protocol.Message { return &protocol.PacketChallengeResponse{} })
	reg.Register("PacketAuthSuccess", func() protocol.Message { return &protocol.PacketAuthSuccess{} })
	reg.Register("PacketAuthFailed", func() protocol.Message { return &protocol.PacketAuthFailed{} })
	reg.Register("PacketIdentification", func() protocol.Message { return &protocol.PacketIdentification{} })
	reg.Register("PacketVersion", func() protocol.Message { return &protocol.PacketVersion{} })
	reg.Register("PacketPing", func() protocol.Message { return &protocol.PacketPing{} })
	reg.Register("PacketPong", func() protocol.Message { return &protocol.PacketPong{} })
	reg.Register("PacketGameUpdate", func() protocol.Message { return &packetGameUpdate{} })
	codec := protocol.NewCodec(reg)

	var wireFrames []string
	serverHandler := &recordingServerHandler{}
	srv := NewServer("topsecret", registry, codec, serverHandler)

	clientHandler := &recordingClientHandler{}
	c := NewClient("topsecret", "", "", codec, clientHandler)

	clientSender := &pipeSender{deliver: func(text string) error {
		return srv.HandleText("conn-custom", text)
	}}
	serverSender := &pipeSender{deliver: func(text string) error {
		wireFrames = append(wireFrames, text)
		return c.HandleText(text)
	}}

	srv.Opened("conn-custom", serverSender)
	require.NoError(t, c.Opened(clientSender))
	require.True(t, c.Authenticated())

	require.NoError(t, c.Send(&packetGameUpdate{Action: "move", Data: "1,2,3"}, -1))

	serverHandler.mu.Lock()
	require.Len(t, serverHandler.packets, 1)
	got, ok := serverHandler.packets[0].(*packetGameUpdate)
	serverHandler.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, "move", got.Action)
	assert.Equal(t, "1,2,3", got.Data)
}

func TestHandshakeCredentialMismatchClosesWithAuthInvalid(t *testing.T) {
	registry := session.NewRegistry()
	codec := protocol.NewCodec(nil)

	serverHandler := &recordingServerHandler{}
	srv := NewServer("topsecret", registry, codec, serverHandler)

	var closeCode int
	var closeReason string
	clientHandler := &recordingClientHandler{}
	c := NewClient("wrong", "", "", codec, clientHandler)

	clientSender := &pipeSender{deliver: func(text string) error {
		return srv.HandleText("conn-mismatch", text)
	}}
	serverSender := &pipeSender{
		deliver: func(text string) error { return c.HandleText(text) },
		closeFn: func(code int, reason string) error {
			closeCode = code
			closeReason = reason
			return nil
		},
	}

	srv.Opened("conn-mismatch", serverSender)
	require.NoError(t, c.Opened(clientSender))

	assert.False(t, c.Authenticated())
	serverHandler.mu.Lock()
	assert.Empty(t, serverHandler.authenticated)
	serverHandler.mu.Unlock()
	assert.Equal(t, CloseAuthInvalid, closeCode)
	assert.Equal(t, "invalid credentials", closeReason)
}

func TestHandshakeDuplicateIdentifierClosesSecondWithConflict(t *testing.T) {
	registry := session.NewRegistry()
	codec := protocol.NewCodec(nil)
	serverHandler := &recordingServerHandler{}
	srv := NewServer("topsecret", registry, codec, serverHandler)

	// First client claims "smp"; wireUp's synchronous pipe drives the whole
	// handshake (including PacketIdentification) to completion before it
	// returns.
	c1 := NewClient("topsecret", "smp", "", codec, &recordingClientHandler{})
	wireUp(t, srv, "conn-a", c1)
	require.True(t, c1.Authenticated())

	// Second client also claims "smp".
	var closeCode int
	c2Handler := &recordingClientHandler{}
	c2 := NewClient("topsecret", "smp", "", codec, c2Handler)

	var clientSender2, serverSender2 *pipeSender
	clientSender2 = &pipeSender{deliver: func(text string) error {
		return srv.HandleText("conn-b", text)
	}}
	serverSender2 = &pipeSender{
		deliver: func(text string) error { return c2.HandleText(text) },
		closeFn: func(code int, reason string) error {
			closeCode = code
			return nil
		},
	}
	srv.Opened("conn-b", serverSender2)
	require.NoError(t, c2.Opened(clientSender2))

	assert.Equal(t, CloseIdentifierConflict, closeCode)

	owner, ok := registry.GetByIdentifier("smp")
	require.True(t, ok)
	assert.True(t, owner.Authenticated())
}

func TestPostAuthPlaintextFrameRejectedByServer(t *testing.T) {
	registry := session.NewRegistry()
	codec := protocol.NewCodec(nil)
	srv := NewServer("topsecret", registry, codec, &recordingServerHandler{})
	c := NewClient("topsecret", "", "", codec, &recordingClientHandler{})

	wireUp(t, srv, "conn-plain", c)
	require.True(t, c.Authenticated())

	// A well-formed typed envelope that skips encryption must be rejected
	// once the session is authenticated.
	plain, err := codec.Encode(&protocol.PacketPing{Timestamp: 1, SequenceID: 1}, nil, -1)
	require.NoError(t, err)
	err = srv.HandleText("conn-plain", plain)
	require.Error(t, err)
	var protoErr *ErrProtocol
	assert.ErrorAs(t, err, &protoErr)
}

func TestPostAuthPlaintextFrameRejectedByClient(t *testing.T) {
	registry := session.NewRegistry()
	codec := protocol.NewCodec(nil)
	srv := NewServer("topsecret", registry, codec, &recordingServerHandler{})
	c := NewClient("topsecret", "", "", codec, &recordingClientHandler{})

	wireUp(t, srv, "conn-plain-cli", c)
	require.True(t, c.Authenticated())

	plain, err := codec.Encode(&protocol.PacketPong{SequenceID: 1}, nil, -1)
	require.NoError(t, err)
	err = c.HandleText(plain)
	require.Error(t, err)
	var authErr *ErrAuthState
	assert.ErrorAs(t, err, &authErr)
}

type versionRecordingHandler struct {
	recordingClientHandler
	versions []*protocol.PacketVersion
}

func (h *versionRecordingHandler) OnVersionExchange(c *Client, peer *protocol.PacketVersion) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.versions = append(h.versions, peer)
}

func TestVersionPacketIsAdvisoryOnBothSides(t *testing.T) {
	registry := session.NewRegistry()
	codec := protocol.NewCodec(nil)
	srv := NewServer("topsecret", registry, codec, &recordingServerHandler{})

	clientHandler := &versionRecordingHandler{}
	c := NewClient("topsecret", "", "", codec, clientHandler)

	wireUp(t, srv, "conn-version", c)
	require.True(t, c.Authenticated())

	// Server -> client, encrypted since the session is authenticated.
	s, ok := registry.Get("conn-version")
	require.True(t, ok)
	text, err := codec.Encode(&protocol.PacketVersion{
		ProtocolVersion: "1.0", ClientName: "srv", ClientVersion: "2.3",
	}, s.SharedKey(), -1)
	require.NoError(t, err)
	require.NoError(t, c.HandleText(text))

	clientHandler.mu.Lock()
	require.Len(t, clientHandler.versions, 1)
	assert.Equal(t, "srv", clientHandler.versions[0].ClientName)
	clientHandler.mu.Unlock()
	assert.True(t, c.Authenticated())

	// Client -> server: ignored, state unchanged.
	text, err = codec.Encode(&protocol.PacketVersion{ProtocolVersion: "1.0"}, s.SharedKey(), -1)
	require.NoError(t, err)
	require.NoError(t, srv.HandleText("conn-version", text))
}

func TestChallengeFreshnessAcrossSessions(t *testing.T) {
	registry := session.NewRegistry()
	codec := protocol.NewCodec(nil)
	srv := NewServer("topsecret", registry, codec, &recordingServerHandler{})

	// Drive only the first handshake phase for several sessions, stalling
	// each one between PacketChallenge and the response so the pending
	// challenge is still observable.
	seen := make(map[string]bool)
	for i := 0; i < 8; i++ {
		handle := fmt.Sprintf("conn-fresh-%d", i)
		srv.Opened(handle, &pipeSender{deliver: func(string) error { return nil }})

		kp, err := crypto.GenerateKeyPair()
		require.NoError(t, err)
		pubEnc, err := crypto.EncodePublicKey(kp.Public)
		require.NoError(t, err)
		frame, err := codec.Encode(&protocol.PacketPublicKey{PublicKey: pubEnc}, nil, -1)
		require.NoError(t, err)
		require.NoError(t, srv.HandleText(handle, frame))

		challenge, ok := registry.PendingChallenge(handle)
		require.True(t, ok)
		require.Len(t, challenge, crypto.ChallengeSize)
		seen[string(challenge)] = true
	}
	assert.Len(t, seen, 8)
}
