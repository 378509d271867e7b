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

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sage-x-project/sage-ws/config"
	demo "github.com/sage-x-project/sage-ws/internal/demo"
	"github.com/sage-x-project/sage-ws/internal/logger"
	"github.com/sage-x-project/sage-ws/protocol"
	"github.com/sage-x-project/sage-ws/wsserver"
)

var (
	listenAddr string
	path       string
	secret     string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "sage-ws-server",
	Short: "sage-ws demo server - accepts authenticated WebSocket sessions and echoes chat packets",
	Long: `sage-ws-server runs the reference server side of the sage-ws handshake
protocol: it accepts a WebSocket upgrade, drives the S0->S1->S2 handshake
against a pre-shared secret, and broadcasts custom PacketChatMessage
packets to every authenticated session.`,
	RunE: runServe,
}

func main() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.Flags().StringVar(&listenAddr, "listen", ":8080", "address to listen on")
	rootCmd.Flags().StringVar(&path, "path", "/ws", "HTTP path the WebSocket endpoint is mounted at")
	rootCmd.Flags().StringVar(&secret, "secret", "", "pre-shared secret every client's challenge response is checked against (required)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	if secret == "" {
		return fmt.Errorf("--secret is required")
	}

	demo.RegisterChatPacket(protocol.Default)

	cfg := config.DefaultServerConfig()
	cfg.ListenAddr = listenAddr
	cfg.Path = path
	cfg.PreSharedSecret = secret

	log := logger.GetDefaultLogger()
	if cmd.Flags().Changed("log-level") {
		switch strings.ToLower(logLevel) {
		case "debug":
			log.SetLevel(logger.DebugLevel)
		case "info":
			log.SetLevel(logger.InfoLevel)
		case "warn":
			log.SetLevel(logger.WarnLevel)
		case "error":
			log.SetLevel(logger.ErrorLevel)
		}
	}
	handler := demo.NewServerHandler(log)

	srv := wsserver.NewServer(cfg, protocol.NewCodec(protocol.Default), handler)
	handler.SetBroadcaster(srv.Registry(), protocol.NewCodec(protocol.Default))

	return srv.ListenAndServe()
}
