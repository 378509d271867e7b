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

package config

// ValidationIssue is one finding from ValidateConfiguration. Level is
// either "error" (Load fails) or "warning" (Load proceeds, caller may
// still inspect issues).
type ValidationIssue struct {
	Field   string
	Message string
	Level   string
}

// ValidateConfiguration checks a loaded Config against the constraints the
// configuration surface implies (reconnect bounds, positive durations,
// presence of the secret each side needs for the handshake).
func ValidateConfiguration(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.Client != nil {
		c := cfg.Client
		if c.MaxReconnectAttempts < -1 {
			issues = append(issues, ValidationIssue{
				Field: "client.max_reconnect_attempts", Level: "error",
				Message: "must be -1 (unlimited) or >= 0",
			})
		}
		if c.EnablePing && c.PingInterval <= 0 {
			issues = append(issues, ValidationIssue{
				Field: "client.ping_interval", Level: "error",
				Message: "must be positive when ping is enabled",
			})
		}
		if c.AutoReconnect && c.ReconnectDelay <= 0 {
			issues = append(issues, ValidationIssue{
				Field: "client.reconnect_delay", Level: "error",
				Message: "must be positive when auto-reconnect is enabled",
			})
		}
		if c.ConnectionTimeout <= 0 {
			issues = append(issues, ValidationIssue{
				Field: "client.connection_timeout", Level: "error",
				Message: "must be positive",
			})
		}
		if c.PreSharedAPIKey == "" {
			issues = append(issues, ValidationIssue{
				Field: "client.pre_shared_api_key", Level: "warning",
				Message: "empty pre-shared API key will fail every handshake",
			})
		}
		if c.IdentificationMetadata != "" && c.ClientIdentifier == "" {
			issues = append(issues, ValidationIssue{
				Field: "client.identification_metadata", Level: "warning",
				Message: "metadata is ignored unless client_identifier is also set",
			})
		}
	}

	if cfg.Server != nil {
		s := cfg.Server
		if s.PreSharedSecret == "" {
			issues = append(issues, ValidationIssue{
				Field: "server.pre_shared_secret", Level: "error",
				Message: "must be set; every handshake would fail otherwise",
			})
		}
		if s.ListenAddr == "" {
			issues = append(issues, ValidationIssue{
				Field: "server.listen_addr", Level: "error",
				Message: "must be set",
			})
		}
	}

	return issues
}
