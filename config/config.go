// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for either a client or a server process
// embedding this module (or both, in a test harness).
type Config struct {
	Environment string         `yaml:"environment" json:"environment"`
	Client      *ClientConfig  `yaml:"client" json:"client"`
	Server      *ServerConfig  `yaml:"server" json:"server"`
	Logging     *LoggingConfig `yaml:"logging" json:"logging"`
	Metrics     *MetricsConfig `yaml:"metrics" json:"metrics"`
}

// ClientConfig is the configuration surface described for the client:
// reconnect behavior, liveness, transport limits, and version/identity
// fields sent during the handshake.
type ClientConfig struct {
	URL                    string        `yaml:"url" json:"url"`
	PreSharedAPIKey        string        `yaml:"pre_shared_api_key" json:"pre_shared_api_key"`
	AutoReconnect          bool          `yaml:"auto_reconnect" json:"auto_reconnect"`
	MaxReconnectAttempts   int           `yaml:"max_reconnect_attempts" json:"max_reconnect_attempts"`
	ReconnectDelay         time.Duration `yaml:"reconnect_delay" json:"reconnect_delay"`
	EnablePing             bool          `yaml:"enable_ping" json:"enable_ping"`
	PingInterval           time.Duration `yaml:"ping_interval" json:"ping_interval"`
	ConnectionTimeout      time.Duration `yaml:"connection_timeout" json:"connection_timeout"`
	CompressionThreshold   int           `yaml:"compression_threshold" json:"compression_threshold"`
	ProtocolVersion        string        `yaml:"protocol_version" json:"protocol_version"`
	ClientName             string        `yaml:"client_name" json:"client_name"`
	ClientVersion          string        `yaml:"client_version" json:"client_version"`
	ClientIdentifier       string        `yaml:"client_identifier" json:"client_identifier"`
	IdentificationMetadata string        `yaml:"identification_metadata" json:"identification_metadata"`
}

// ServerConfig configures the WebSocket listener and the handshake's
// server-side secret.
type ServerConfig struct {
	ListenAddr           string        `yaml:"listen_addr" json:"listen_addr"`
	Path                 string        `yaml:"path" json:"path"`
	PreSharedSecret      string        `yaml:"pre_shared_secret" json:"pre_shared_secret"`
	CompressionThreshold int           `yaml:"compression_threshold" json:"compression_threshold"`
	ReadTimeout          time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Port    int    `yaml:"port" json:"port"`
	Path    string `yaml:"path" json:"path"`
}

// LoadFromFile loads configuration from a file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Try to parse as YAML first
	probe := &Config{}
	useJSON := false
	if err := yaml.Unmarshal(data, probe); err != nil {
		// Try JSON if YAML fails
		if err := json.Unmarshal(data, probe); err != nil {
			return nil, fmt.Errorf("failed to parse config file (tried YAML and JSON): %w", err)
		}
		useJSON = true
	}

	// Seed the sections the file declares with their defaults, then
	// unmarshal again on top. A field absent from the file keeps its
	// default; an explicit zero (max_reconnect_attempts: 0,
	// enable_ping: false) survives instead of being mistaken for unset.
	cfg := &Config{}
	if probe.Client != nil {
		cfg.Client = DefaultClientConfig()
	}
	if probe.Server != nil {
		cfg.Server = DefaultServerConfig()
	}
	if probe.Logging != nil {
		cfg.Logging = &LoggingConfig{}
	}
	if probe.Metrics != nil {
		cfg.Metrics = &MetricsConfig{}
	}
	if useJSON {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(cfg)

	return cfg, nil
}

// SaveToFile saves configuration to a file
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setDefaults fills the string and duration fields whose zero values are
// never legal configurations. Fields where zero is meaningful
// (MaxReconnectAttempts, EnablePing, CompressionThreshold) are defaulted
// by seeding from DefaultClientConfig/DefaultServerConfig in LoadFromFile
// instead.
func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	if cfg.Client != nil {
		c := cfg.Client
		if c.ReconnectDelay == 0 {
			c.ReconnectDelay = 3 * time.Second
		}
		if c.PingInterval == 0 {
			c.PingInterval = 30 * time.Second
		}
		if c.ConnectionTimeout == 0 {
			c.ConnectionTimeout = 10 * time.Second
		}
		if c.ProtocolVersion == "" {
			c.ProtocolVersion = "1.0"
		}
	}

	if cfg.Server != nil {
		s := cfg.Server
		if s.ReadTimeout == 0 {
			s.ReadTimeout = 60 * time.Second
		}
		if s.WriteTimeout == 0 {
			s.WriteTimeout = 10 * time.Second
		}
		if s.Path == "" {
			s.Path = "/ws"
		}
	}

	if cfg.Logging != nil {
		if cfg.Logging.Level == "" {
			cfg.Logging.Level = "info"
		}
		if cfg.Logging.Format == "" {
			cfg.Logging.Format = "json"
		}
		if cfg.Logging.Output == "" {
			cfg.Logging.Output = "stdout"
		}
	}
}

// DefaultClientConfig returns a ClientConfig with every default from the
// configuration surface applied. Code constructing a Config directly
// (rather than loading one) should start from this; LoadFromFile seeds
// loaded client sections from it before overlaying the file, so values
// like MaxReconnectAttempts=0 or EnablePing=false are honored as written.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		AutoReconnect:        false,
		MaxReconnectAttempts: 5,
		ReconnectDelay:       3 * time.Second,
		EnablePing:           true,
		PingInterval:         30 * time.Second,
		ConnectionTimeout:    10 * time.Second,
		CompressionThreshold: 512,
		ProtocolVersion:      "1.0",
	}
}

// DefaultServerConfig returns a ServerConfig with every default applied.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Path:                 "/ws",
		CompressionThreshold: 512,
		ReadTimeout:          60 * time.Second,
		WriteTimeout:         10 * time.Second,
	}
}
