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
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sage-x-project/sage-ws/internal/logger"
	"github.com/sage-x-project/sage-ws/session"
)

// ServerCore is the contract the server-side orchestration layer satisfies.
// It owns the handshake and application dispatch; HandleText already
// performs any close the inbound frame implied (invalid credentials,
// protocol violation, identifier conflict), so this transport never has to
// interpret a handshake or protocol error itself. HandleText returns true
// when it closed the connection over an error; a close the handshake makes
// on its own (invalid credentials, identifier conflict) returns false, and
// the read loop then ends on the next failed read.
type ServerCore interface {
	Opened(handle session.Handle, sender session.Sender)
	HandleText(handle session.Handle, text string) (closed bool)
	Closed(handle session.Handle)
}

// Server upgrades incoming HTTP requests to WebSocket connections and feeds
// opened/text/closed events to a ServerCore.
type Server struct {
	core ServerCore

	upgrader     websocket.Upgrader
	readTimeout  time.Duration
	writeTimeout time.Duration

	log logger.Logger
}

// NewServer builds a Server. readTimeout bounds how long a connection may
// sit idle between frames (a ping from the client resets it); writeTimeout
// bounds a single write. Either may be zero to disable the corresponding
// deadline.
func NewServer(core ServerCore, readTimeout, writeTimeout time.Duration) *Server {
	return &Server{
		core: core,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		log:          logger.GetDefaultLogger(),
	}
}

// Handler returns the http.Handler that upgrades requests and runs the
// per-connection read loop. Mount it at the configured server path.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, fmt.Sprintf("websocket upgrade failed: %v", err), http.StatusBadRequest)
			return
		}
		s.serve(conn)
	})
}

func (s *Server) serve(conn *websocket.Conn) {
	sender := newConnSender(conn, s.writeTimeout)
	s.core.Opened(conn, sender)

	defer func() {
		s.core.Closed(conn)
		_ = conn.Close()
	}()

	for {
		if s.readTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
				return
			}
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("websocket read error", logger.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		if closed := s.core.HandleText(conn, string(data)); closed {
			return
		}
	}
}
