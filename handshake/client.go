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
	"sync/atomic"
	"time"

	"github.com/sage-x-project/sage-ws/crypto"
	"github.com/sage-x-project/sage-ws/internal/metrics"
	"github.com/sage-x-project/sage-ws/protocol"
	"github.com/sage-x-project/sage-ws/session"
)

// ClientHandler is the mandatory application contract surfaced on the
// client side. VersionHandler and AuthenticatedHandler (and
// wsclient.ReconnectFailedHandler) are optional and detected with a type
// assertion.
type ClientHandler interface {
	OnConnect(c *Client)
	OnPacket(c *Client, msg protocol.Message)
	OnDisconnect(c *Client)
}

// VersionHandler receives PacketVersion exchanges. Implementing it on a
// ClientHandler is optional.
type VersionHandler interface {
	OnVersionExchange(c *Client, peer *protocol.PacketVersion)
}

// AuthenticatedHandler is notified once the client reaches C4. Implementing
// it on a ClientHandler is optional.
type AuthenticatedHandler interface {
	OnAuthenticated(c *Client)
}

type clientState int

const (
	c0JustConnected clientState = iota
	c1AwaitingSharedSecret
	c2AwaitingChallenge
	c3AwaitingAuthSuccess
	c4SteadyState
)

// Client drives the client-side handshake state machine (C0->C1->C2->C3->
// C4) for a single connection. A Client is reusable across reconnects:
// Closed resets its handshake state so Opened can run again against a new
// transport sender.
type Client struct {
	preSharedAPIKey    string
	identifier         string
	identificationMeta string
	codec              *protocol.Codec
	handler            ClientHandler

	mu            sync.Mutex
	state         clientState
	keyPair       *crypto.KeyPair
	sharedKey     []byte
	sender        session.Sender
	pongHandler   func(seq uint32)
	authenticated atomic.Bool
}

// NewClient builds a handshake driver for one connection. identifier may be
// empty, meaning no PacketIdentification is ever sent.
func NewClient(preSharedAPIKey, identifier, identificationMeta string, codec *protocol.Codec, handler ClientHandler) *Client {
	return &Client{
		preSharedAPIKey:    preSharedAPIKey,
		identifier:         identifier,
		identificationMeta: identificationMeta,
		codec:              codec,
		handler:            handler,
	}
}

// SetPongHandler wires the pong correlator (liveness.Controller.HandlePong)
// to inbound PacketPong frames.
func (c *Client) SetPongHandler(h func(seq uint32)) {
	c.mu.Lock()
	c.pongHandler = h
	c.mu.Unlock()
}

// Authenticated reports whether the handshake has reached C4.
func (c *Client) Authenticated() bool { return c.authenticated.Load() }

// Opened begins the handshake over sender: it generates a fresh RSA
// keypair, sends PacketPublicKey, and transitions to C1. Call from the
// transport's opened event, including on every reconnect.
func (c *Client) Opened(sender session.Sender) error {
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.keyPair = kp
	c.sender = sender
	c.state = c0JustConnected
	c.mu.Unlock()

	pubEnc, err := crypto.EncodePublicKey(kp.Public)
	if err != nil {
		return err
	}

	// Advance before sending: the server's reply may race the send's
	// return.
	c.setState(c1AwaitingSharedSecret)
	if err := c.send(&protocol.PacketPublicKey{PublicKey: pubEnc}, nil); err != nil {
		return err
	}

	metrics.HandshakesInitiated.WithLabelValues("client").Inc()
	if c.handler != nil {
		c.handler.OnConnect(c)
	}
	return nil
}

// Closed resets handshake state and invokes the disconnect hook. Call from
// the transport's closed event.
func (c *Client) Closed() {
	c.mu.Lock()
	c.state = c0JustConnected
	c.sharedKey = nil
	c.sender = nil
	c.mu.Unlock()
	c.authenticated.Store(false)

	if c.handler != nil {
		c.handler.OnDisconnect(c)
	}
}

// HandleText processes one inbound text frame, per the client state
// machine.
func (c *Client) HandleText(text string) error {
	c.mu.Lock()
	key := c.sharedKey
	state := c.state
	c.mu.Unlock()

	msg, encrypted, err := c.codec.DecodeFrame(text, key)
	if err != nil {
		return err
	}
	if c.authenticated.Load() && !encrypted {
		return &ErrAuthState{Reason: "plaintext frame on authenticated session"}
	}

	if v, ok := msg.(*protocol.PacketVersion); ok {
		if vh, ok := c.handler.(VersionHandler); ok {
			vh.OnVersionExchange(c, v)
		}
		return nil
	}

	switch state {
	case c0JustConnected:
		return &ErrAuthState{Reason: "message received before handshake started"}
	case c1AwaitingSharedSecret:
		return c.handleC1(msg)
	case c2AwaitingChallenge:
		return c.handleC2(msg)
	case c3AwaitingAuthSuccess:
		return c.handleC3(msg)
	case c4SteadyState:
		return c.handleC4(msg)
	default:
		return &ErrAuthState{Reason: "unknown client state"}
	}
}

func (c *Client) handleC1(msg protocol.Message) error {
	ss, ok := msg.(*protocol.PacketSharedSecret)
	if !ok {
		return &ErrAuthState{Reason: "expected PacketSharedSecret in C1"}
	}
	wrapped, err := base64.StdEncoding.DecodeString(ss.EncryptedSecret)
	if err != nil {
		return err
	}

	c.mu.Lock()
	kp := c.keyPair
	c.mu.Unlock()

	sharedKey, err := crypto.UnwrapKey(kp.Private, wrapped)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.sharedKey = sharedKey
	c.state = c2AwaitingChallenge
	c.mu.Unlock()
	return nil
}

func (c *Client) handleC2(msg protocol.Message) error {
	ch, ok := msg.(*protocol.PacketChallenge)
	if !ok {
		return &ErrAuthState{Reason: "expected PacketChallenge in C2"}
	}
	challenge, err := base64.StdEncoding.DecodeString(ch.Challenge)
	if err != nil {
		return err
	}
	response := crypto.MACBase64([]byte(c.preSharedAPIKey), challenge)

	c.mu.Lock()
	key := c.sharedKey
	c.mu.Unlock()

	c.setState(c3AwaitingAuthSuccess)
	if err := c.send(&protocol.PacketChallengeResponse{Response: response}, key); err != nil {
		return err
	}
	return nil
}

func (c *Client) handleC3(msg protocol.Message) error {
	switch m := msg.(type) {
	case *protocol.PacketAuthSuccess:
		c.setState(c4SteadyState)
		c.authenticated.Store(true)
		metrics.HandshakesCompleted.WithLabelValues("success").Inc()

		if c.identifier != "" {
			c.mu.Lock()
			key := c.sharedKey
			c.mu.Unlock()
			if err := c.send(&protocol.PacketIdentification{
				ClientIdentifier: c.identifier,
				Metadata:         c.identificationMeta,
			}, key); err != nil {
				return err
			}
		}
		if ah, ok := c.handler.(AuthenticatedHandler); ok {
			ah.OnAuthenticated(c)
		}
		return nil

	case *protocol.PacketAuthFailed:
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		c.mu.Lock()
		sender := c.sender
		c.mu.Unlock()
		if c.handler != nil {
			c.handler.OnDisconnect(c)
		}
		if sender != nil {
			return sender.Close(CloseAuthInvalid, m.Reason)
		}
		return nil

	default:
		return &ErrAuthState{Reason: "expected PacketAuthSuccess or PacketAuthFailed in C3"}
	}
}

func (c *Client) handleC4(msg protocol.Message) error {
	switch m := msg.(type) {
	case *protocol.PacketPong:
		c.mu.Lock()
		h := c.pongHandler
		c.mu.Unlock()
		if h != nil {
			h(m.SequenceID)
		}
		return nil

	case *protocol.PacketPing:
		c.mu.Lock()
		key := c.sharedKey
		c.mu.Unlock()
		return c.send(&protocol.PacketPong{
			ClientTimestamp: m.Timestamp,
			ServerTimestamp: time.Now().UnixMilli(),
			SequenceID:      m.SequenceID,
		}, key)

	default:
		if c.handler != nil {
			c.handler.OnPacket(c, msg)
		}
		return nil
	}
}

// SendPing sends a PacketPing; its signature matches liveness.PingSender so
// a liveness.Controller can call it directly.
func (c *Client) SendPing(nowMillis int64, seq uint32) error {
	c.mu.Lock()
	key := c.sharedKey
	c.mu.Unlock()
	return c.send(&protocol.PacketPing{Timestamp: nowMillis, SequenceID: seq}, key)
}

// Send encodes and sends an application message using the current shared
// key (if any) and the caller's compression threshold.
func (c *Client) Send(msg protocol.Message, compressionThreshold int) error {
	c.mu.Lock()
	key := c.sharedKey
	c.mu.Unlock()
	return c.sendWithThreshold(msg, key, compressionThreshold)
}

func (c *Client) send(msg protocol.Message, key []byte) error {
	return c.sendWithThreshold(msg, key, -1)
}

func (c *Client) sendWithThreshold(msg protocol.Message, key []byte, threshold int) error {
	text, err := c.codec.Encode(msg, key, threshold)
	if err != nil {
		return err
	}
	c.mu.Lock()
	sender := c.sender
	c.mu.Unlock()
	if sender == nil {
		return &ErrAuthState{Reason: "no transport sender bound"}
	}
	return sender.SendText(text)
}

func (c *Client) setState(st clientState) {
	c.mu.Lock()
	c.state = st
	c.mu.Unlock()
}
