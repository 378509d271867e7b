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

// Package protocol implements the type-tagged envelope protocol that rides
// on top of the raw WebSocket transport: the packet registry (tag <->
// constructor), the message kinds exchanged during the handshake and
// steady state, and the envelope codec (plain / compressed / encrypted).
package protocol

// Tag is the short string identifying a message kind on the wire, e.g.
// "PacketPublicKey". It doubles as the map key in the packet registry.
type Tag = string

// Message is implemented by every registered packet kind. Tag returns the
// constant wire tag for the concrete type; it never varies per instance.
type Message interface {
	Tag() Tag
}

const (
	TagPublicKey         Tag = "PacketPublicKey"
	TagSharedSecret      Tag = "PacketSharedSecret"
	TagChallenge         Tag = "PacketChallenge"
	TagChallengeResponse Tag = "PacketChallengeResponse"
	TagAuthSuccess       Tag = "PacketAuthSuccess"
	TagAuthFailed        Tag = "PacketAuthFailed"
	TagIdentification    Tag = "PacketIdentification"
	TagVersion           Tag = "PacketVersion"
	TagPing              Tag = "PacketPing"
	TagPong              Tag = "PacketPong"
)

// PacketPublicKey: client offers an asymmetric public key (C->S).
type PacketPublicKey struct {
	PublicKey string `json:"publicKey"`
}

func (PacketPublicKey) Tag() Tag { return TagPublicKey }

// PacketSharedSecret: wrapped symmetric key (S->C).
type PacketSharedSecret struct {
	EncryptedSecret string `json:"encryptedSecret"`
}

func (PacketSharedSecret) Tag() Tag { return TagSharedSecret }

// PacketChallenge: proof-of-possession challenge (S->C).
type PacketChallenge struct {
	Challenge string `json:"challenge"`
}

func (PacketChallenge) Tag() Tag { return TagChallenge }

// PacketChallengeResponse: MAC of the challenge under the pre-shared
// secret (C->S).
type PacketChallengeResponse struct {
	Response string `json:"response"`
}

func (PacketChallengeResponse) Tag() Tag { return TagChallengeResponse }

// PacketAuthSuccess: handshake complete (S->C).
type PacketAuthSuccess struct {
	Message string `json:"message"`
}

func (PacketAuthSuccess) Tag() Tag { return TagAuthSuccess }

// PacketAuthFailed: handshake rejected (S->C).
type PacketAuthFailed struct {
	Reason string `json:"reason"`
}

func (PacketAuthFailed) Tag() Tag { return TagAuthFailed }

// PacketIdentification: post-auth client self-label (C->S).
type PacketIdentification struct {
	ClientIdentifier string `json:"clientIdentifier"`
	Metadata         string `json:"metadata,omitempty"`
}

func (PacketIdentification) Tag() Tag { return TagIdentification }

// PacketVersion: peer reports identity (either direction, purely
// advisory — see design note, no enforced compatibility check).
type PacketVersion struct {
	ProtocolVersion string `json:"protocolVersion"`
	ClientName      string `json:"clientName"`
	ClientVersion   string `json:"clientVersion"`
}

func (PacketVersion) Tag() Tag { return TagVersion }

// PacketPing: latency probe (either direction).
type PacketPing struct {
	Timestamp  int64  `json:"timestamp"`
	SequenceID uint32 `json:"sequenceId"`
}

func (PacketPing) Tag() Tag { return TagPing }

// PacketPong: latency response (either direction).
type PacketPong struct {
	ClientTimestamp int64  `json:"clientTimestamp"`
	ServerTimestamp int64  `json:"serverTimestamp"`
	SequenceID      uint32 `json:"sequenceId"`
}

func (PacketPong) Tag() Tag { return TagPong }
