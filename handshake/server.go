// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package handshake

import (
	"encoding/base64"
	"sync"
	"time"

	"github.com/sage-x-project/sage-ws/crypto"
	"github.com/sage-x-project/sage-ws/internal/logger"
	"github.com/sage-x-project/sage-ws/internal/metrics"
	"github.com/sage-x-project/sage-ws/protocol"
	"github.com/sage-x-project/sage-ws/session"
)

// ServerHandler is the application contract surfaced on the server side.
type ServerHandler interface {
	OnAuthenticated(s *session.Session)
	OnIdentified(s *session.Session, identifier string)
	OnPacket(s *session.Session, msg protocol.Message)
	OnDisconnect(s *session.Session)
}

type serverState int

const (
	s0AwaitingPublicKey serverState = iota
	s1AwaitingChallengeResponse
	s2Authenticated
)

// Server drives the server-side handshake state machine for every session
// tracked by its Registry. A single Server instance is shared across all
// sessions; per-session state lives in the states map, keyed by transport
// handle. Callers must serialize HandleText calls per handle (the transport
// adapter guarantees this); concurrent calls for different handles are
// safe.
type Server struct {
	preSharedSecret string
	registry        *session.Registry
	codec           *protocol.Codec
	handler         ServerHandler
	log             logger.Logger

	mu      sync.Mutex
	states  map[session.Handle]serverState
	started map[session.Handle]time.Time
}

// NewServer builds a handshake driver. preSharedSecret is the value every
// legitimate client's challenge response must be MACed against.
func NewServer(preSharedSecret string, registry *session.Registry, codec *protocol.Codec, handler ServerHandler) *Server {
	return &Server{
		preSharedSecret: preSharedSecret,
		registry:        registry,
		codec:           codec,
		handler:         handler,
		log:             logger.GetDefaultLogger(),
		states:          make(map[session.Handle]serverState),
		started:         make(map[session.Handle]time.Time),
	}
}

// Opened registers a fresh session for handle at S0. Call from the
// transport's opened(handle) event.
func (srv *Server) Opened(handle session.Handle, sender session.Sender) *session.Session {
	s := srv.registry.Register(handle, sender)
	srv.mu.Lock()
	srv.states[handle] = s0AwaitingPublicKey
	srv.started[handle] = time.Now()
	srv.mu.Unlock()
	metrics.HandshakesInitiated.WithLabelValues("server").Inc()
	return s
}

// Closed forgets handle's handshake state, drops the session from the
// registry, and invokes the disconnect hook. Call from the transport's
// closed(handle, code, reason) event.
func (srv *Server) Closed(handle session.Handle) {
	s, ok := srv.registry.Get(handle)
	srv.mu.Lock()
	delete(srv.states, handle)
	delete(srv.started, handle)
	srv.mu.Unlock()
	srv.registry.Remove(handle)
	if ok && srv.handler != nil {
		srv.handler.OnDisconnect(s)
	}
}

// HandleText processes one inbound text frame for handle, per the server
// state machine. It returns the error that should drive the transport's
// close decision; nil means the frame was handled. A failed challenge
// response or an identifier conflict also returns nil, after the handshake
// has itself closed the connection with CloseAuthInvalid or
// CloseIdentifierConflict.
func (srv *Server) HandleText(handle session.Handle, text string) error {
	s, ok := srv.registry.Get(handle)
	if !ok {
		return &ErrProtocol{Reason: "text received for unknown session"}
	}

	msg, encrypted, err := srv.codec.DecodeFrame(text, s.SharedKey())
	if err != nil {
		return err
	}
	if s.Authenticated() && !encrypted {
		return &ErrProtocol{Reason: "plaintext frame on authenticated session"}
	}

	// PacketVersion is informational at any state and never touches the
	// state machine.
	if _, ok := msg.(*protocol.PacketVersion); ok {
		return nil
	}

	switch srv.stateOf(handle) {
	case s0AwaitingPublicKey:
		return srv.handleS0(handle, s, msg)
	case s1AwaitingChallengeResponse:
		return srv.handleS1(handle, s, msg)
	case s2Authenticated:
		return srv.handleS2(handle, s, msg)
	default:
		return &ErrAuthState{Reason: "unknown handshake state"}
	}
}

func (srv *Server) handleS0(handle session.Handle, s *session.Session, msg protocol.Message) error {
	pk, ok := msg.(*protocol.PacketPublicKey)
	if !ok {
		return &ErrAuthState{Reason: "expected PacketPublicKey in S0"}
	}

	clientPub, err := crypto.DecodePublicKey(pk.PublicKey)
	if err != nil {
		return err
	}

	sharedKey, err := crypto.GenerateSymmetricKey()
	if err != nil {
		return err
	}
	wrapped, err := crypto.WrapKey(clientPub, sharedKey)
	if err != nil {
		return err
	}
	if err := srv.send(s, &protocol.PacketSharedSecret{
		EncryptedSecret: base64.StdEncoding.EncodeToString(wrapped),
	}, nil); err != nil {
		return err
	}

	s.SetSharedKey(sharedKey)

	challenge, err := crypto.GenerateChallenge()
	if err != nil {
		return err
	}
	s.SetPendingChallenge(challenge)
	srv.registry.SetPendingChallenge(handle, challenge)

	// Advance before sending: the response may race the send's return.
	srv.setState(handle, s1AwaitingChallengeResponse)
	if err := srv.send(s, &protocol.PacketChallenge{
		Challenge: base64.StdEncoding.EncodeToString(challenge),
	}, sharedKey); err != nil {
		return err
	}
	metrics.HandshakeDuration.WithLabelValues("key-exchange").Observe(time.Since(srv.startedAt(handle)).Seconds())
	return nil
}

func (srv *Server) handleS1(handle session.Handle, s *session.Session, msg protocol.Message) error {
	if _, ok := msg.(*protocol.PacketPublicKey); ok {
		return &ErrAuthState{Reason: "second PacketPublicKey after S0"}
	}
	resp, ok := msg.(*protocol.PacketChallengeResponse)
	if !ok {
		return &ErrAuthState{Reason: "expected PacketChallengeResponse in S1"}
	}

	challenge := s.PendingChallenge()
	s.ClearPendingChallenge()
	srv.registry.ClearPendingChallenge(handle)

	valid := challenge != nil && crypto.VerifyMACBase64([]byte(srv.preSharedSecret), challenge, resp.Response)
	if !valid {
		_ = srv.send(s, &protocol.PacketAuthFailed{Reason: "Invalid credentials"}, s.SharedKey())
		srv.closeWith(s, CloseAuthInvalid, "invalid credentials")
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return nil
	}

	s.SetAuthenticated()
	srv.setState(handle, s2Authenticated)
	if err := srv.send(s, &protocol.PacketAuthSuccess{Message: "authenticated"}, s.SharedKey()); err != nil {
		return err
	}
	metrics.HandshakesCompleted.WithLabelValues("success").Inc()
	metrics.HandshakeDuration.WithLabelValues("complete").Observe(time.Since(srv.startedAt(handle)).Seconds())
	if srv.handler != nil {
		srv.handler.OnAuthenticated(s)
	}
	return nil
}

func (srv *Server) handleS2(handle session.Handle, s *session.Session, msg protocol.Message) error {
	switch m := msg.(type) {
	case *protocol.PacketIdentification:
		if s.Identifier() != "" {
			return &ErrProtocol{Reason: "identifier already set for this session"}
		}
		if err := srv.registry.RegisterIdentifier(handle, m.ClientIdentifier); err != nil {
			_ = srv.send(s, &protocol.PacketAuthFailed{Reason: "Identifier already in use"}, s.SharedKey())
			srv.closeWith(s, CloseIdentifierConflict, "identifier already in use")
			return nil
		}
		if m.Metadata != "" {
			s.SetMetadata(m.Metadata)
		}
		if srv.handler != nil {
			srv.handler.OnIdentified(s, m.ClientIdentifier)
		}
		return nil

	case *protocol.PacketPublicKey, *protocol.PacketSharedSecret, *protocol.PacketChallenge,
		*protocol.PacketChallengeResponse, *protocol.PacketAuthSuccess, *protocol.PacketAuthFailed:
		return &ErrProtocol{Reason: "handshake message received after authentication"}

	case *protocol.PacketPing:
		return srv.send(s, &protocol.PacketPong{
			ClientTimestamp: m.Timestamp,
			ServerTimestamp: time.Now().UnixMilli(),
			SequenceID:      m.SequenceID,
		}, s.SharedKey())

	default:
		if srv.handler != nil {
			srv.handler.OnPacket(s, msg)
		}
		return nil
	}
}

func (srv *Server) send(s *session.Session, msg protocol.Message, key []byte) error {
	text, err := srv.codec.Encode(msg, key, -1)
	if err != nil {
		return err
	}
	sender, ok := srv.registry.SenderFor(s.Handle())
	if !ok {
		return &ErrProtocol{Reason: "no transport sender for session"}
	}
	return sender.SendText(text)
}

func (srv *Server) closeWith(s *session.Session, code int, reason string) {
	if sender, ok := srv.registry.SenderFor(s.Handle()); ok {
		if err := sender.Close(code, reason); err != nil {
			srv.log.Warn("handshake close failed", logger.String("session", s.ID()), logger.Error(err))
		}
	}
}

func (srv *Server) setState(handle session.Handle, st serverState) {
	srv.mu.Lock()
	srv.states[handle] = st
	srv.mu.Unlock()
}

func (srv *Server) stateOf(handle session.Handle) serverState {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.states[handle]
}

func (srv *Server) startedAt(handle session.Handle) time.Time {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.started[handle]
}
