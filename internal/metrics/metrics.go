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

// Package metrics defines the Prometheus instrumentation surface shared by
// the handshake, session, crypto, message and liveness subsystems.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// namespace prefixes every metric name registered below.
const namespace = "sagews"

// Registry is the Prometheus registry every metric in this package is
// registered against. Callers embedding this library into a process that
// already runs a Prometheus registry may ignore Handler/StartServer and
// register Registry's collectors into their own registry instead.
var Registry = prometheus.NewRegistry()
