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
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
)

// ChallengeSize is the size in bytes of a proof-of-possession challenge.
const ChallengeSize = 32

// GenerateChallenge returns 32 fresh random bytes from a CSPRNG.
func GenerateChallenge() ([]byte, error) {
	challenge := make([]byte, ChallengeSize)
	if _, err := io.ReadFull(rand.Reader, challenge); err != nil {
		return nil, wrapErr("generate-challenge", err)
	}
	return challenge, nil
}

// MAC computes HMAC-SHA256(message, key) and returns the raw digest.
func MAC(key, message []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return mac.Sum(nil)
}

// MACBase64 computes the HMAC and renders it as standard Base64, the form
// that travels in PacketChallengeResponse.response.
func MACBase64(key, message []byte) string {
	return base64.StdEncoding.EncodeToString(MAC(key, message))
}

// VerifyMACBase64 recomputes the expected MAC and compares it against a
// Base64-encoded candidate using constant-time comparison, as required for
// challenge-response verification (see design note on MAC comparison).
func VerifyMACBase64(key, message []byte, candidateB64 string) bool {
	candidate, err := base64.StdEncoding.DecodeString(candidateB64)
	if err != nil {
		return false
	}
	expected := MAC(key, message)
	return hmac.Equal(expected, candidate)
}
