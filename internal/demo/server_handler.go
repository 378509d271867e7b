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

package demo

import (
	"github.com/sage-x-project/sage-ws/internal/logger"
	"github.com/sage-x-project/sage-ws/protocol"
	"github.com/sage-x-project/sage-ws/session"
)

// ServerHandler implements handshake.ServerHandler for the demo server: it
// logs the connection lifecycle and rebroadcasts every PacketChatMessage it
// receives to every authenticated session, the sender included.
type ServerHandler struct {
	log         logger.Logger
	registry    *session.Registry
	codec       *protocol.Codec
}

// NewServerHandler builds a ServerHandler. Call SetBroadcaster once the
// owning wsserver.Server exists, since the registry isn't available until
// then.
func NewServerHandler(log logger.Logger) *ServerHandler {
	return &ServerHandler{log: log}
}

// SetBroadcaster wires the registry and codec used to rebroadcast chat
// packets.
func (h *ServerHandler) SetBroadcaster(registry *session.Registry, codec *protocol.Codec) {
	h.registry = registry
	h.codec = codec
}

func (h *ServerHandler) OnAuthenticated(s *session.Session) {
	h.log.Info("session authenticated", logger.String("session", s.ID()))
}

func (h *ServerHandler) OnIdentified(s *session.Session, identifier string) {
	h.log.Info("session identified", logger.String("session", s.ID()), logger.String("identifier", identifier))
}

func (h *ServerHandler) OnPacket(s *session.Session, msg protocol.Message) {
	chat, ok := msg.(*PacketChatMessage)
	if !ok {
		h.log.Warn("unhandled packet type", logger.String("tag", string(msg.Tag())))
		return
	}
	h.log.Info("chat message received", logger.String("from", chat.From), logger.String("text", chat.Text))
	if h.registry != nil && h.codec != nil {
		h.registry.Broadcast(h.codec, chat)
	}
}

func (h *ServerHandler) OnDisconnect(s *session.Session) {
	h.log.Info("session disconnected", logger.String("session", s.ID()))
}
