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

// Package wsclient wires transport/websocket's client dialer to
// handshake.Client and the liveness controller/reconnect scheduler, and
// owns the client-side error-to-close-code mapping, mirroring wsserver.
package wsclient

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sage-x-project/sage-ws/config"
	"github.com/sage-x-project/sage-ws/crypto"
	"github.com/sage-x-project/sage-ws/handshake"
	"github.com/sage-x-project/sage-ws/internal/logger"
	"github.com/sage-x-project/sage-ws/internal/metrics"
	"github.com/sage-x-project/sage-ws/liveness"
	"github.com/sage-x-project/sage-ws/protocol"
	wstransport "github.com/sage-x-project/sage-ws/transport/websocket"
)

// Client is the top-level client-side entry point: it owns the handshake
// driver, the WebSocket dialer, and (when enabled) the ping controller and
// reconnect scheduler, starting and stopping the latter two so that at
// most one runs at a time: ping runs only while connected, reconnect only
// while disconnected.
type Client struct {
	cfg             *config.ClientConfig
	handler         handshake.ClientHandler
	handshakeClient *handshake.Client
	transport       *wstransport.Client
	ping            *liveness.Controller
	reconnect       *liveness.ReconnectScheduler
	log             logger.Logger

	closing atomic.Bool
}

// ReconnectFailedHandler is notified exactly once when the reconnect
// scheduler exhausts its attempt budget. Implementing it on a
// handshake.ClientHandler is optional.
type ReconnectFailedHandler interface {
	OnReconnectFailed(c *Client)
}

// NewClient builds a Client. handler receives application packets and the
// mandatory connect/disconnect notifications; it may optionally implement
// handshake.VersionHandler and handshake.AuthenticatedHandler.
func NewClient(cfg *config.ClientConfig, codec *protocol.Codec, handler handshake.ClientHandler) *Client {
	c := &Client{cfg: cfg, handler: handler, log: logger.GetDefaultLogger()}

	hc := handshake.NewClient(cfg.PreSharedAPIKey, cfg.ClientIdentifier, cfg.IdentificationMetadata, codec, &handlerWrapper{inner: handler, c: c})
	c.handshakeClient = hc
	c.transport = wstransport.NewClient(cfg.URL, c, cfg.ConnectionTimeout, 0, cfg.ConnectionTimeout)

	if cfg.EnablePing {
		c.ping = liveness.NewController(cfg.PingInterval, hc.SendPing)
		hc.SetPongHandler(c.ping.HandlePong)
	}
	if cfg.AutoReconnect {
		c.reconnect = liveness.NewReconnectScheduler(cfg.MaxReconnectAttempts, cfg.ReconnectDelay, c.dial, c.onReconnectFailed)
	}
	return c
}

// Connect dials the server and begins the handshake. It returns once the
// first handshake frame (PacketPublicKey) is sent; it does not block until
// authentication completes.
func (c *Client) Connect(ctx context.Context) error {
	c.closing.Store(false)
	return c.transport.Connect(ctx)
}

// Send encodes and sends an application message over the current
// connection, honoring the client's configured compression threshold.
func (c *Client) Send(msg protocol.Message) error {
	return c.handshakeClient.Send(msg, c.cfg.CompressionThreshold)
}

// Authenticated reports whether the handshake has reached steady state.
func (c *Client) Authenticated() bool { return c.handshakeClient.Authenticated() }

// Connected reports whether the underlying WebSocket connection is live.
func (c *Client) Connected() bool { return c.transport.Connected() }

// Close closes the current connection and stops the ping and reconnect
// loops. It is idempotent and does not prevent a later call to Connect.
func (c *Client) Close() error {
	c.closing.Store(true)
	if c.ping != nil {
		c.ping.Stop()
	}
	if c.reconnect != nil {
		c.reconnect.Stop()
	}
	return c.transport.Close()
}

func (c *Client) dial() error {
	return c.transport.Connect(context.Background())
}

func (c *Client) onReconnectFailed() {
	c.log.Warn("reconnect attempts exhausted", logger.String("url", c.cfg.URL))
	if rh, ok := c.handler.(ReconnectFailedHandler); ok {
		rh.OnReconnectFailed(c)
	}
}

// sendVersion reports this client's identity to the peer. Advisory only;
// neither side acts on the contents beyond surfacing them to the optional
// version hook.
func (c *Client) sendVersion() {
	if c.cfg.ProtocolVersion == "" && c.cfg.ClientName == "" && c.cfg.ClientVersion == "" {
		return
	}
	err := c.handshakeClient.Send(&protocol.PacketVersion{
		ProtocolVersion: c.cfg.ProtocolVersion,
		ClientName:      c.cfg.ClientName,
		ClientVersion:   c.cfg.ClientVersion,
	}, -1)
	if err != nil {
		c.log.Warn("version exchange failed", logger.Error(err))
	}
}

// Opened implements wstransport.ClientCore.
func (c *Client) Opened(sender interface {
	SendText(text string) error
	Close(code int, reason string) error
}) error {
	return c.handshakeClient.Opened(sender)
}

// HandleText implements wstransport.ClientCore. Like wsserver, any error
// out of the handshake driver already implies a close code; HandleText
// performs the close itself so the transport read loop never has to know
// about handshake error types.
func (c *Client) HandleText(text string) bool {
	start := time.Now()
	metrics.MessageSize.Observe(float64(len(text)))
	err := c.handshakeClient.HandleText(text)
	metrics.MessageProcessingDuration.Observe(time.Since(start).Seconds())
	if err == nil {
		metrics.MessagesProcessed.WithLabelValues("text", "success").Inc()
		return false
	}
	metrics.MessagesProcessed.WithLabelValues("text", "failure").Inc()
	code, reason := closeCodeFor(err)
	_ = c.transport.CloseWithCode(code, reason)
	return true
}

// Closed implements wstransport.ClientCore: it resets handshake state,
// stops the ping loop (there is nothing to ping), and starts the reconnect
// loop if configured.
func (c *Client) Closed() {
	c.handshakeClient.Closed()
	if c.ping != nil {
		c.ping.Stop()
		c.ping.Reset()
	}
	// A close the embedder asked for never reconnects.
	if c.reconnect != nil && !c.closing.Load() {
		c.reconnect.Start()
	}
}

func closeCodeFor(err error) (int, string) {
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
		return handshake.CloseAuthInvalid, cryptoErr.Error()
	}

	return handshake.CloseProtocolError, err.Error()
}

// handlerWrapper decorates the embedder's handler so the client can start
// the ping loop and stop the reconnect loop the moment authentication
// completes, regardless of whether the embedder implements the optional
// handshake.AuthenticatedHandler/VersionHandler interfaces itself.
type handlerWrapper struct {
	inner handshake.ClientHandler
	c     *Client
}

func (w *handlerWrapper) OnConnect(hc *handshake.Client) {
	if w.inner != nil {
		w.inner.OnConnect(hc)
	}
}

func (w *handlerWrapper) OnPacket(hc *handshake.Client, msg protocol.Message) {
	if w.inner != nil {
		w.inner.OnPacket(hc, msg)
	}
}

func (w *handlerWrapper) OnDisconnect(hc *handshake.Client) {
	if w.inner != nil {
		w.inner.OnDisconnect(hc)
	}
}

func (w *handlerWrapper) OnAuthenticated(hc *handshake.Client) {
	if w.c.reconnect != nil {
		w.c.reconnect.Stop()
	}
	if w.c.ping != nil {
		w.c.ping.Start()
	}
	w.c.sendVersion()
	if ah, ok := w.inner.(handshake.AuthenticatedHandler); ok {
		ah.OnAuthenticated(hc)
	}
}

func (w *handlerWrapper) OnVersionExchange(hc *handshake.Client, peer *protocol.PacketVersion) {
	if vh, ok := w.inner.(handshake.VersionHandler); ok {
		vh.OnVersionExchange(hc, peer)
	}
}
