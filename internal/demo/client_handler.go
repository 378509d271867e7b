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
	"github.com/sage-x-project/sage-ws/handshake"
	"github.com/sage-x-project/sage-ws/internal/logger"
	"github.com/sage-x-project/sage-ws/protocol"
)

// ClientHandler implements handshake.ClientHandler and
// handshake.AuthenticatedHandler for the demo client: it logs every event
// and, once authenticated, sends a single greeting chat message carrying
// the configured identifier.
type ClientHandler struct {
	log      logger.Logger
	identity string
	greeting string
}

// NewClientHandler builds a ClientHandler. greeting is sent once, right
// after authentication completes; an empty greeting disables the send.
func NewClientHandler(log logger.Logger, identity, greeting string) *ClientHandler {
	return &ClientHandler{log: log, identity: identity, greeting: greeting}
}

func (h *ClientHandler) OnConnect(c *handshake.Client) {
	h.log.Info("connected, handshake started")
}

func (h *ClientHandler) OnAuthenticated(c *handshake.Client) {
	h.log.Info("authenticated")
	if h.greeting == "" {
		return
	}
	if err := c.Send(&PacketChatMessage{From: h.identity, Text: h.greeting}, -1); err != nil {
		h.log.Warn("failed to send greeting", logger.Error(err))
	}
}

func (h *ClientHandler) OnPacket(c *handshake.Client, msg protocol.Message) {
	chat, ok := msg.(*PacketChatMessage)
	if !ok {
		h.log.Warn("unhandled packet type", logger.String("tag", string(msg.Tag())))
		return
	}
	h.log.Info("chat message received", logger.String("from", chat.From), logger.String("text", chat.Text))
}

func (h *ClientHandler) OnDisconnect(c *handshake.Client) {
	h.log.Info("disconnected")
}
