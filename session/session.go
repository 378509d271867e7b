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

// Package session holds the per-connection Session object and, on the
// server side, the Registry that tracks every live session by transport
// handle, by client-chosen identifier, and by outstanding challenge.
package session

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Handle identifies the underlying transport connection a Session is bound
// to. It is opaque to this package; transport/websocket supplies concrete
// values.
type Handle any

// Session is the per-connection state object: a shared key once derived,
// a pending challenge window, a monotonic authenticated flag, and an
// optional client-chosen identifier/metadata pair.
//
// sharedKey is guarded by mu (see SetSharedKey / SharedKey). The handshake
// writes the key before authenticated flips, so readers that observe
// authenticated==true are guaranteed to see the key.
type Session struct {
	id     string
	handle Handle

	mu               sync.RWMutex
	sharedKey        []byte
	pendingChallenge []byte
	identifier       string
	metadata         string

	authenticated atomic.Bool
}

// New creates a session bound to handle with a fresh process-unique id.
func New(handle Handle) *Session {
	return &Session{
		id:     uuid.NewString(),
		handle: handle,
	}
}

// ID returns the process-unique session identifier minted on acceptance.
func (s *Session) ID() string { return s.id }

// Handle returns the opaque transport handle this session is bound to.
func (s *Session) Handle() Handle { return s.handle }

// SetSharedKey stores the per-session AES-256 key once the handshake
// derives it. It never rotates within a session.
func (s *Session) SetSharedKey(key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sharedKey = key
}

// SharedKey returns the current shared key, or nil if the handshake has
// not reached that phase yet.
func (s *Session) SharedKey() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sharedKey
}

// SetPendingChallenge records the challenge the server expects to be
// MACed back.
func (s *Session) SetPendingChallenge(challenge []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingChallenge = challenge
}

// PendingChallenge returns the outstanding challenge, or nil if there is
// none (outside the window between sending the challenge and processing a
// response).
func (s *Session) PendingChallenge() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingChallenge
}

// ClearPendingChallenge drops the pending challenge. Called as soon as any
// PacketChallengeResponse is processed, regardless of outcome.
func (s *Session) ClearPendingChallenge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingChallenge = nil
}

// Authenticated reports the monotonic false->true authentication flag.
func (s *Session) Authenticated() bool {
	return s.authenticated.Load()
}

// SetAuthenticated flips the flag to true. It never transitions back to
// false; calling it more than once is a no-op past the first call.
func (s *Session) SetAuthenticated() {
	s.authenticated.Store(true)
}

// Identifier returns the client-chosen label, or "" if none was set.
func (s *Session) Identifier() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identifier
}

// SetIdentifier records the client-chosen label. Callers must have already
// reserved the identifier in the Registry before calling this.
func (s *Session) SetIdentifier(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identifier = id
}

// Metadata returns the opaque free-form string supplied alongside the
// identifier, or "" if none was supplied.
func (s *Session) Metadata() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metadata
}

// SetMetadata records the opaque free-form metadata string.
func (s *Session) SetMetadata(metadata string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata = metadata
}
