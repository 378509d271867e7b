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

// Package websocket adapts a raw gorilla/websocket connection to the
// session.Sender capability and drives opened/text/closed events into a
// ServerCore or ClientCore. The rest of the module never touches the
// underlying connection except through these two surfaces.
package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// connSender wraps one gorilla/websocket connection as a session.Sender.
// gorilla forbids concurrent writers on the same connection, so every send
// and close goes through writeMu.
type connSender struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex
}

func newConnSender(conn *websocket.Conn, writeTimeout time.Duration) *connSender {
	return &connSender{conn: conn, writeTimeout: writeTimeout}
}

// SendText implements session.Sender.
func (cs *connSender) SendText(text string) error {
	cs.writeMu.Lock()
	defer cs.writeMu.Unlock()
	if cs.writeTimeout > 0 {
		if err := cs.conn.SetWriteDeadline(time.Now().Add(cs.writeTimeout)); err != nil {
			return err
		}
	}
	return cs.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// Close implements session.Sender. It sends a close frame carrying code and
// reason, then tears down the underlying TCP connection; code may be any of
// the application close codes (CloseProtocolError, CloseAuthInvalid,
// CloseIdentifierConflict) or a standard code such as 1000.
func (cs *connSender) Close(code int, reason string) error {
	cs.writeMu.Lock()
	defer cs.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = cs.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return cs.conn.Close()
}
