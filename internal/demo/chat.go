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

// Package demo holds the application-level packet and handler
// implementations shared by the sage-ws-server and sage-ws-client demo
// binaries: a custom, non-handshake packet type that rides the same
// encrypted envelope as every handshake message.
package demo

import "github.com/sage-x-project/sage-ws/protocol"

// TagChatMessage is the wire tag for PacketChatMessage. It is not one of
// the ten built-in handshake/liveness tags, demonstrating that an embedder
// registers its own application packets into the same registry.
const TagChatMessage protocol.Tag = "PacketChatMessage"

// PacketChatMessage is the demo's one application packet: a chat line from
// an identified sender, broadcast to every authenticated session (the
// sender's own included).
type PacketChatMessage struct {
	From string `json:"from"`
	Text string `json:"text"`
}

func (PacketChatMessage) Tag() protocol.Tag { return TagChatMessage }

// RegisterChatPacket adds PacketChatMessage's constructor to registry. Both
// demo binaries call this before building their codec so PacketChatMessage
// round-trips the envelope exactly like the built-in packet kinds.
func RegisterChatPacket(registry *protocol.Registry) {
	registry.Register(TagChatMessage, func() protocol.Message { return &PacketChatMessage{} })
}
