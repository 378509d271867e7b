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

// Package wsserver wires transport/websocket to handshake.Server and a
// session.Registry, and owns the one piece of policy the transport layer
// must stay ignorant of: mapping a handshake or codec error to the close
// code the connection is torn down with.
package wsserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/sage-x-project/sage-ws/config"
	"github.com/sage-x-project/sage-ws/crypto"
	"github.com/sage-x-project/sage-ws/handshake"
	"github.com/sage-x-project/sage-ws/internal/logger"
	"github.com/sage-x-project/sage-ws/internal/metrics"
	"github.com/sage-x-project/sage-ws/protocol"
	"github.com/sage-x-project/sage-ws/session"
	wstransport "github.com/sage-x-project/sage-ws/transport/websocket"
)

// Server is the top-level server-side entry point: an http.Handler that
// accepts WebSocket upgrades, runs the handshake, and dispatches
// authenticated application packets to a handshake.ServerHandler.
type Server struct {
	cfg       *config.ServerConfig
	registry  *session.Registry
	handshake *handshake.Server
	transport *wstransport.Server
	log       logger.Logger
}

// NewServer builds a Server. codec should already have every application
// packet type registered, in addition to the ten handshake/liveness kinds:
// protocol.Default is pre-populated with those ten by the protocol package
// itself, while a private Registry wrapped in protocol.NewCodec starts
// empty and needs all of them registered.
func NewServer(cfg *config.ServerConfig, codec *protocol.Codec, handler handshake.ServerHandler) *Server {
	registry := session.NewRegistry()
	hs := handshake.NewServer(cfg.PreSharedSecret, registry, codec, handler)

	s := &Server{
		cfg:       cfg,
		registry:  registry,
		handshake: hs,
		log:       logger.GetDefaultLogger(),
	}
	s.transport = wstransport.NewServer(s, cfg.ReadTimeout, cfg.WriteTimeout)
	return s
}

// Registry exposes the session registry, e.g. for Broadcast or Stats.
func (s *Server) Registry() *session.Registry { return s.registry }

// Handler returns the http.Handler to mount at cfg.Path.
func (s *Server) Handler() http.Handler { return s.transport.Handler() }

// ListenAndServe mounts Handler at cfg.Path and serves on cfg.ListenAddr.
// It blocks until the listener fails.
func (s *Server) ListenAndServe() error {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.Path, s.Handler())
	mux.Handle("/metrics", metrics.Handler())
	s.log.Info("websocket server listening", logger.String("addr", s.cfg.ListenAddr), logger.String("path", s.cfg.Path))
	return http.ListenAndServe(s.cfg.ListenAddr, mux)
}

// Opened implements wstransport.ServerCore.
func (s *Server) Opened(handle session.Handle, sender session.Sender) {
	s.handshake.Opened(handle, sender)
}

// Closed implements wstransport.ServerCore.
func (s *Server) Closed(handle session.Handle) {
	s.handshake.Closed(handle)
}

// HandleText implements wstransport.ServerCore. Any error HandleText
// returns already describes a code/reason the connection must be closed
// with (handshake.ErrProtocol/ErrAuthState, protocol.ErrCodec/
// ErrUnknownPacketType, or a crypto failure); HandleText maps the error to
// a close code, closes the handle, and reports true so the transport read
// loop stops without ever inspecting the error itself.
func (s *Server) HandleText(handle session.Handle, text string) bool {
	start := time.Now()
	metrics.MessageSize.Observe(float64(len(text)))
	err := s.handshake.HandleText(handle, text)
	metrics.MessageProcessingDuration.Observe(time.Since(start).Seconds())
	if err == nil {
		metrics.MessagesProcessed.WithLabelValues("text", "success").Inc()
		return false
	}
	metrics.MessagesProcessed.WithLabelValues("text", "failure").Inc()

	code, reason := closeCodeFor(err)
	sender, ok := s.registry.SenderFor(handle)
	if ok {
		if cerr := sender.Close(code, reason); cerr != nil {
			s.log.Warn("close after protocol error failed", logger.Error(cerr))
		}
	}
	return true
}

// closeCodeFor maps a HandleText error to the application close code and
// reason the frame implies, per the error taxonomy: protocol, codec and
// unknown-tag violations close 4000, auth-state and crypto failures close
// 4001, anything else unrecognized closes 4000 as a generic protocol error.
func closeCodeFor(err error) (int, string) {
	var protoErr *handshake.ErrProtocol
	if errors.As(err, &protoErr) {
		return handshake.CloseProtocolError, protoErr.Reason
	}

	var authErr *handshake.ErrAuthState
	if errors.As(err, &authErr) {
		return handshake.CloseAuthInvalid, authErr.Reason
	}

	var codecErr *protocol.ErrCodec
	if errors.As(err, &codecErr) {
		return handshake.CloseProtocolError, codecErr.Reason
	}

	var unknownErr *protocol.ErrUnknownPacketType
	if errors.As(err, &unknownErr) {
		return handshake.CloseProtocolError, unknownErr.Error()
	}

	var cryptoErr *crypto.Error
	if errors.As(err, &cryptoErr) {
		// A malformed public key or a ciphertext that fails to unwrap/decrypt
		// means the peer either isn't who it claims or never held the secret
		// the envelope was sealed with.
		return handshake.CloseAuthInvalid, cryptoErr.Error()
	}

	return handshake.CloseProtocolError, err.Error()
}
