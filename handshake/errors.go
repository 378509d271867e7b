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

// Package handshake implements the server (S0->S1->S2) and client
// (C0->C1->C2->C3->C4) handshake state machines described in the protocol
// design: establishing a symmetric session key over RSA-OAEP, proving
// possession of the pre-shared secret with an HMAC challenge, and handing
// off to steady-state application traffic.
package handshake

import "fmt"

// Close codes the core uses at the transport boundary.
const (
	CloseProtocolError      = 4000
	CloseAuthInvalid        = 4001
	CloseIdentifierConflict = 4002
)

// ErrProtocol marks a message that is well-formed but arrives in a state
// that forbids it entirely (e.g. a handshake packet after authentication).
// Callers close the handle with CloseProtocolError.
type ErrProtocol struct {
	Reason string
}

func (e *ErrProtocol) Error() string {
	return fmt.Sprintf("handshake: protocol error: %s", e.Reason)
}

// ErrAuthState marks a message received out of the expected handshake
// order (wrong packet for the current S/C state, or a second
// PacketPublicKey). Callers close the handle with CloseAuthInvalid.
type ErrAuthState struct {
	Reason string
}

func (e *ErrAuthState) Error() string {
	return fmt.Sprintf("handshake: auth state error: %s", e.Reason)
}
