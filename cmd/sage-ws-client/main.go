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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sage-x-project/sage-ws/config"
	demo "github.com/sage-x-project/sage-ws/internal/demo"
	"github.com/sage-x-project/sage-ws/internal/logger"
	"github.com/sage-x-project/sage-ws/protocol"
	"github.com/sage-x-project/sage-ws/wsclient"
)

var (
	serverURL  string
	apiKey     string
	identifier string
	greeting   string
	reconnect  bool
)

var rootCmd = &cobra.Command{
	Use:   "sage-ws-client",
	Short: "sage-ws demo client - connects, authenticates, and exchanges chat packets",
	Long: `sage-ws-client runs the reference client side of the sage-ws handshake
protocol: it dials the server, completes the public-key / shared-secret /
challenge-response handshake against a pre-shared API key, optionally
identifies itself, and then sends a greeting PacketChatMessage while
printing every chat packet broadcast back to it.`,
	RunE: runConnect,
}

func main() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.Flags().StringVar(&serverURL, "url", "ws://localhost:8080/ws", "WebSocket URL of the server")
	rootCmd.Flags().StringVar(&apiKey, "api-key", "", "pre-shared API key the challenge response is MACed with (required)")
	rootCmd.Flags().StringVar(&identifier, "identifier", "", "optional identifier to claim after authentication")
	rootCmd.Flags().StringVar(&greeting, "greeting", "hello from sage-ws-client", "chat message sent once after authentication")
	rootCmd.Flags().BoolVar(&reconnect, "reconnect", false, "reconnect automatically after an unexpected close")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runConnect(cmd *cobra.Command, args []string) error {
	if apiKey == "" {
		return fmt.Errorf("--api-key is required")
	}

	demo.RegisterChatPacket(protocol.Default)

	cfg := config.DefaultClientConfig()
	cfg.URL = serverURL
	cfg.PreSharedAPIKey = apiKey
	cfg.ClientIdentifier = identifier
	cfg.AutoReconnect = reconnect
	cfg.ClientName = "sage-ws-client"
	cfg.ClientVersion = "1.0.0"

	log := logger.GetDefaultLogger()
	handler := demo.NewClientHandler(log, identifier, greeting)

	client := wsclient.NewClient(cfg, protocol.NewCodec(protocol.Default), handler)
	if err := client.Connect(context.Background()); err != nil {
		return err
	}
	defer client.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")
	return nil
}
