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

package session

import (
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sage-x-project/sage-ws/internal/logger"
	"github.com/sage-x-project/sage-ws/internal/metrics"
	"github.com/sage-x-project/sage-ws/protocol"
)

// Sender is the minimum capability the registry needs from a transport
// connection: write a text frame, or close with an application code and
// reason. transport/websocket implements this for a live gorilla/websocket
// connection.
type Sender interface {
	SendText(text string) error
	Close(code int, reason string) error
}

// ErrIdentifierTaken is returned by RegisterIdentifier when the identifier
// is already owned by a different authenticated, connected session.
var ErrIdentifierTaken = errors.New("session: identifier already in use")

// Registry is the server-side tracking structure: three concurrent
// mappings (by transport handle, by identifier, and by outstanding
// challenge) plus broadcast fan-out. All operations are safe
// under concurrent calls from per-session receive tasks and application
// threads.
type Registry struct {
	mu                sync.RWMutex
	byHandle          map[Handle]*Session
	byIdentifier      map[string]*Session
	pendingChallenges map[Handle][]byte
	senders           map[Handle]Sender
	log               logger.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byHandle:          make(map[Handle]*Session),
		byIdentifier:      make(map[string]*Session),
		pendingChallenges: make(map[Handle][]byte),
		senders:           make(map[Handle]Sender),
		log:               logger.GetDefaultLogger(),
	}
}

// Register creates a new session for handle, tracks it, and returns it.
// sender is the transport capability used for sends and close during the
// lifetime of this session (including Broadcast).
func (r *Registry) Register(handle Handle, sender Sender) *Session {
	s := New(handle)
	r.mu.Lock()
	r.byHandle[handle] = s
	r.senders[handle] = sender
	r.mu.Unlock()
	metrics.SessionsCreated.WithLabelValues("success").Inc()
	metrics.SessionsActive.Inc()
	return s
}

// Get returns the session tracked for handle, if any.
func (r *Registry) Get(handle Handle) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byHandle[handle]
	return s, ok
}

// GetByIdentifier returns the session registered under id, if any.
func (r *Registry) GetByIdentifier(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byIdentifier[id]
	return s, ok
}

// SenderFor returns the transport capability registered for handle, if any.
// The handshake driver uses this to send handshake frames and to close the
// handle with an application close code.
func (r *Registry) SenderFor(handle Handle) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sender, ok := r.senders[handle]
	return sender, ok
}

// SetPendingChallenge records the outstanding challenge for handle in the
// registry's own map (mirroring Session.SetPendingChallenge so the
// challenge can be inspected without touching the session's lock).
func (r *Registry) SetPendingChallenge(handle Handle, challenge []byte) {
	r.mu.Lock()
	r.pendingChallenges[handle] = challenge
	r.mu.Unlock()
}

// PendingChallenge returns the outstanding challenge for handle, if any.
func (r *Registry) PendingChallenge(handle Handle) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.pendingChallenges[handle]
	return c, ok
}

// ClearPendingChallenge drops the outstanding challenge for handle.
func (r *Registry) ClearPendingChallenge(handle Handle) {
	r.mu.Lock()
	delete(r.pendingChallenges, handle)
	r.mu.Unlock()
}

// RegisterIdentifier reserves id for the session at handle. It fails with
// ErrIdentifierTaken if id is already owned by a different session, per
// the invariant that at most one session with a given identifier is
// registered at any time among authenticated, connected sessions.
func (r *Registry) RegisterIdentifier(handle Handle, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byIdentifier[id]; ok {
		if s, ok := r.byHandle[handle]; !ok || existing != s {
			return ErrIdentifierTaken
		}
	}
	s, ok := r.byHandle[handle]
	if !ok {
		return errors.New("session: unknown handle")
	}
	s.SetIdentifier(id)
	r.byIdentifier[id] = s
	return nil
}

// Remove drops handle from all three maps. It removes the identifier
// mapping only if the removed session currently owns that identifier.
func (r *Registry) Remove(handle Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byHandle[handle]
	delete(r.byHandle, handle)
	delete(r.pendingChallenges, handle)
	delete(r.senders, handle)
	if !ok {
		return
	}
	if id := s.Identifier(); id != "" {
		if owner, ok := r.byIdentifier[id]; ok && owner == s {
			delete(r.byIdentifier, id)
		}
	}
	metrics.SessionsActive.Dec()
	metrics.SessionsClosed.Inc()
}

// Count returns the number of tracked sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byHandle)
}

// Stats reports aggregate session counts for dashboards and the metrics
// endpoint.
func (r *Registry) Stats() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := len(r.byHandle)
	authenticated := 0
	for _, s := range r.byHandle {
		if s.Authenticated() {
			authenticated++
		}
	}
	return Status{
		TotalSessions:         total,
		AuthenticatedSessions: authenticated,
	}
}

// snapshotAuthenticated takes a point-in-time copy of authenticated
// sessions and their senders, so Broadcast never holds the registry lock
// during I/O.
func (r *Registry) snapshotAuthenticated() ([]*Session, []Sender) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.byHandle))
	senders := make([]Sender, 0, len(r.byHandle))
	for handle, s := range r.byHandle {
		if !s.Authenticated() {
			continue
		}
		sender, ok := r.senders[handle]
		if !ok {
			continue
		}
		sessions = append(sessions, s)
		senders = append(senders, sender)
	}
	return sessions, senders
}

// Broadcast encodes msg once per recipient (each authenticated session has
// its own shared key) and sends it concurrently, catching and logging
// per-recipient failures without aborting the sweep.
func (r *Registry) Broadcast(codec *protocol.Codec, msg protocol.Message) {
	sessions, senders := r.snapshotAuthenticated()

	var g errgroup.Group
	for i := range sessions {
		s, sender := sessions[i], senders[i]
		g.Go(func() error {
			text, err := codec.Encode(msg, s.SharedKey(), -1)
			if err != nil {
				r.log.Warn("broadcast encode failed", logger.String("session", s.ID()), logger.Error(err))
				return nil
			}
			if err := sender.SendText(text); err != nil {
				r.log.Warn("broadcast send failed", logger.String("session", s.ID()), logger.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Status is a point-in-time summary of the registry's contents.
type Status struct {
	TotalSessions         int `json:"totalSessions"`
	AuthenticatedSessions int `json:"authenticatedSessions"`
}

// Close closes every tracked transport handle and clears the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	senders := make([]Sender, 0, len(r.senders))
	for _, sender := range r.senders {
		senders = append(senders, sender)
	}
	r.byHandle = make(map[Handle]*Session)
	r.byIdentifier = make(map[string]*Session)
	r.pendingChallenges = make(map[Handle][]byte)
	r.senders = make(map[Handle]Sender)
	r.mu.Unlock()

	for _, sender := range senders {
		_ = sender.Close(1000, "server shutting down")
	}
}
