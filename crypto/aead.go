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

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"

	"github.com/sage-x-project/sage-ws/internal/metrics"
)

// SymmetricKeySize is the size in bytes of the AES-256 session key.
const SymmetricKeySize = 32

// NonceSize is the size in bytes of the GCM nonce generated per message.
const NonceSize = 12

var errBadNonceLength = errors.New("nonce has the wrong length")

// GenerateSymmetricKey returns 32 fresh random bytes suitable for AES-256.
func GenerateSymmetricKey() ([]byte, error) {
	key := make([]byte, SymmetricKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, wrapErr("generate-symmetric-key", err)
	}
	return key, nil
}

// EncodeSymmetricKey renders a raw 32-byte key as standard Base64.
func EncodeSymmetricKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// DecodeSymmetricKey parses a standard-Base64 32-byte key.
func DecodeSymmetricKey(b64 string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, wrapErr("decode-symmetric-key", err)
	}
	if len(key) != SymmetricKeySize {
		return nil, wrapErr("decode-symmetric-key", errors.New("wrong key length"))
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt performs AES-256-GCM encryption with a fresh 12-byte nonce drawn
// from a CSPRNG for every call. The returned ciphertext is the sealed
// payload only (it does not carry the nonce); the nonce is returned
// separately so callers can place it in the wire envelope's `iv` field.
func Encrypt(key, plaintext []byte) (ciphertext, nonce []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, wrapErr("encrypt", err)
	}
	nonce = make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, wrapErr("encrypt", err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	metrics.CryptoOperations.WithLabelValues("encrypt", "aes-256-gcm").Inc()
	return sealed, nonce, nil
}

// Decrypt reverses Encrypt given the same key and the nonce that travelled
// alongside the ciphertext.
func Decrypt(key, nonce, ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, wrapErr("decrypt", err)
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, wrapErr("decrypt", errBadNonceLength)
	}
	pt, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, wrapErr("decrypt", err)
	}
	metrics.CryptoOperations.WithLabelValues("decrypt", "aes-256-gcm").Inc()
	return pt, nil
}
