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
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"

	"github.com/sage-x-project/sage-ws/internal/metrics"
)

// WrapKey wraps a symmetric key under an RSA public key using OAEP with
// SHA-256 for both the hash and MGF1.
func WrapKey(pub *rsa.PublicKey, symmetricKey []byte) ([]byte, error) {
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, symmetricKey, nil)
	if err != nil {
		return nil, wrapErr("wrap-key", err)
	}
	metrics.CryptoOperations.WithLabelValues("wrap", "rsa-oaep-sha256").Inc()
	return ct, nil
}

// UnwrapKey reverses WrapKey using the matching RSA private key.
func UnwrapKey(priv *rsa.PrivateKey, wrapped []byte) ([]byte, error) {
	pt, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		return nil, wrapErr("unwrap-key", err)
	}
	metrics.CryptoOperations.WithLabelValues("unwrap", "rsa-oaep-sha256").Inc()
	return pt, nil
}
