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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PingsSent tracks pings sent by the client liveness controller.
	PingsSent = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "liveness",
			Name:      "pings_sent_total",
			Help:      "Total number of pings sent",
		},
	)

	// PongsReceived tracks correlated pongs.
	PongsReceived = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "liveness",
			Name:      "pongs_received_total",
			Help:      "Total number of pongs correlated to a prior ping",
		},
	)

	// LatencyMillis tracks the ping/pong round-trip latency samples.
	LatencyMillis = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "liveness",
			Name:      "latency_milliseconds",
			Help:      "Ping/pong round-trip latency in milliseconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1ms to 2s
		},
	)

	// ReconnectAttempts tracks reconnect attempts by outcome.
	ReconnectAttempts = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "liveness",
			Name:      "reconnect_attempts_total",
			Help:      "Total number of reconnect attempts",
		},
		[]string{"outcome"}, // success, failure
	)

	// ReconnectExhausted tracks how often the reconnect budget ran out.
	ReconnectExhausted = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "liveness",
			Name:      "reconnect_exhausted_total",
			Help:      "Total number of times the reconnect attempt budget was exhausted",
		},
	)
)
