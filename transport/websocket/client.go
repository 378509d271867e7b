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

package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sage-x-project/sage-ws/internal/logger"
)

// ClientCore is the contract the client-side orchestration layer satisfies.
// Opened runs the handshake's first step (sending PacketPublicKey) against
// the freshly dialed sender; HandleText returns true when it closed the
// connection over an error, mirroring ServerCore (a close the handshake
// makes on its own, such as on PacketAuthFailed, returns false and the read
// loop then ends on the next failed read).
type ClientCore interface {
	Opened(sender interface {
		SendText(text string) error
		Close(code int, reason string) error
	}) error
	HandleText(text string) (closed bool)
	Closed()
}

// Client dials a single WebSocket server connection and feeds
// opened/text/closed events to a ClientCore. One Client is reused across
// reconnects: each call to Connect dials fresh and re-runs ClientCore.Opened.
type Client struct {
	url              string
	core             ClientCore
	handshakeTimeout time.Duration
	readTimeout      time.Duration
	writeTimeout     time.Duration

	log logger.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	sender *connSender
}

// NewClient builds a Client dialing url. handshakeTimeout bounds the
// WebSocket upgrade; readTimeout/writeTimeout bound steady-state I/O, as on
// the server side.
func NewClient(url string, core ClientCore, handshakeTimeout, readTimeout, writeTimeout time.Duration) *Client {
	return &Client{
		url:              url,
		core:             core,
		handshakeTimeout: handshakeTimeout,
		readTimeout:      readTimeout,
		writeTimeout:     writeTimeout,
		log:              logger.GetDefaultLogger(),
	}
}

// Connect dials the server, runs ClientCore.Opened over the new connection,
// and starts the read loop in the background. It returns once Opened
// completes (the connection is dialed and the first handshake frame sent);
// it does not block for the handshake to finish.
func (c *Client) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.handshakeTimeout}

	conn, resp, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	sender := newConnSender(conn, c.writeTimeout)
	if err := c.core.Opened(sender); err != nil {
		_ = conn.Close()
		return fmt.Errorf("handshake start failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.sender = sender
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
			c.sender = nil
		}
		c.mu.Unlock()
		c.core.Closed()
		_ = conn.Close()
	}()

	for {
		if c.readTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
				return
			}
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("websocket read error", logger.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		if closed := c.core.HandleText(string(data)); closed {
			return
		}
	}
}

// Connected reports whether the last dialed connection is still live.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close closes the current connection, if any. It does not prevent a
// subsequent Connect from dialing a new one.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// CloseWithCode closes the current connection with an application close
// code and reason, e.g. one an embedder's ClientCore chose after HandleText
// reported a protocol or authentication error.
func (c *Client) CloseWithCode(code int, reason string) error {
	c.mu.Lock()
	sender := c.sender
	c.mu.Unlock()
	if sender == nil {
		return nil
	}
	return sender.Close(code, reason)
}
