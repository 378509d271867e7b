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

// Package liveness implements the client-side liveness controller: a ping
// scheduler, a pong correlator with an exponential moving average latency
// estimator, and a reconnect scheduler. Ping and reconnect are mutually
// exclusive — ping runs only while connected, reconnect only while
// disconnected — and are owned by independent cooperative timer loops so
// neither blocks the other.
package liveness

import (
	"sync"
	"time"

	"github.com/sage-x-project/sage-ws/internal/metrics"
)

// emaWeight divides each new latency sample into the moving average:
// avg <- (avg*7 + sample) / 8.
const emaWeight = 8

// Stats is a point-in-time snapshot of the liveness controller's counters.
type Stats struct {
	PingsSent      uint64
	PongsReceived  uint64
	LastLatency    time.Duration
	AverageLatency time.Duration
	PacketLoss     float64
}

// PingSender sends a PacketPing carrying now (ms since epoch) and seq. The
// controller never blocks the send path on outstanding pings; PingSender
// errors are not retried by the controller.
type PingSender func(nowMillis int64, seq uint32) error

// Controller owns the ping task and the pong correlator for a single
// client connection. A fresh Controller must be created per connection
// (or Reset between reconnects) since all counters reset on reconnect.
type Controller struct {
	interval time.Duration
	send     PingSender

	mu             sync.Mutex
	nextSeq        uint32
	pending        map[uint32]time.Time
	pingsSent      uint64
	pongsReceived  uint64
	lastLatency    time.Duration
	averageLatency time.Duration

	stop    chan struct{}
	running bool
	wg      sync.WaitGroup
}

// NewController builds a ping/pong controller that fires send every
// interval once Start is called.
func NewController(interval time.Duration, send PingSender) *Controller {
	return &Controller{
		interval: interval,
		send:     send,
		pending:  make(map[uint32]time.Time),
	}
}

// Start launches the ping task. It is a no-op if already running.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stop = make(chan struct{})
	stop := c.stop
	c.mu.Unlock()

	c.wg.Add(1)
	go c.runPingLoop(stop)
}

// Stop cancels the ping task. Cancellation is observed within one
// scheduler tick and does not interrupt an in-flight send. Stop is
// idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stop)
	c.mu.Unlock()
	c.wg.Wait()
}

// Reset clears all counters and outstanding pings, per "all counters reset
// on reconnect".
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSeq = 0
	c.pending = make(map[uint32]time.Time)
	c.pingsSent = 0
	c.pongsReceived = 0
	c.lastLatency = 0
	c.averageLatency = 0
}

func (c *Controller) runPingLoop(stop chan struct{}) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.firePing()
		case <-stop:
			return
		}
	}
}

func (c *Controller) firePing() {
	now := time.Now()
	c.mu.Lock()
	seq := c.nextSeq
	c.nextSeq++
	c.pending[seq] = now
	c.pingsSent++
	c.mu.Unlock()

	metrics.PingsSent.Inc()
	_ = c.send(now.UnixMilli(), seq)
}

// HandlePong is the pong correlator. It looks up seq among outstanding
// pings; if found, it computes the round-trip latency and updates both
// lastLatency and the exponential moving average, then clears the pending
// entry so a duplicate pong for the same seq is silently dropped. An
// unknown seq is also silently dropped.
func (c *Controller) HandlePong(seq uint32) {
	now := time.Now()

	c.mu.Lock()
	sentAt, ok := c.pending[seq]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.pending, seq)

	latency := now.Sub(sentAt)
	c.pongsReceived++
	c.lastLatency = latency
	if c.averageLatency == 0 {
		c.averageLatency = latency
	} else {
		c.averageLatency = (c.averageLatency*(emaWeight-1) + latency) / emaWeight
	}
	c.mu.Unlock()

	metrics.PongsReceived.Inc()
	metrics.LatencyMillis.Observe(float64(latency.Milliseconds()))
}

// Stats returns a snapshot of the controller's counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var loss float64
	if c.pingsSent > 0 {
		loss = float64(c.pingsSent-c.pongsReceived) / float64(c.pingsSent)
	}
	return Stats{
		PingsSent:      c.pingsSent,
		PongsReceived:  c.pongsReceived,
		LastLatency:    c.lastLatency,
		AverageLatency: c.averageLatency,
		PacketLoss:     loss,
	}
}
