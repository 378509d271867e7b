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

// Package crypto holds the fixed set of cryptographic primitives the wire
// protocol depends on: RSA-2048 keypairs, OAEP wrap/unwrap of a symmetric
// key, AES-256-GCM, HMAC-SHA256, and the canonical encodings used to put
// any of the above on the wire. Every algorithm choice here is part of the
// wire contract and must not drift.
package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
)

const rsaKeyBits = 2048

// KeyPair is an RSA-2048 asymmetric keypair used once per handshake to wrap
// the server-issued symmetric session key.
type KeyPair struct {
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
}

// GenerateKeyPair produces a fresh RSA-2048 keypair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, wrapErr("generate-keypair", err)
	}
	return &KeyPair{Private: priv, Public: &priv.PublicKey}, nil
}

// EncodePublicKey renders a public key as X.509 SubjectPublicKeyInfo,
// Base64-encoded with the standard alphabet and padding.
func EncodePublicKey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", wrapErr("encode-public-key", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// DecodePublicKey parses a Base64(X.509 SPKI) string back into an RSA
// public key.
func DecodePublicKey(b64 string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, wrapErr("decode-public-key", err)
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, wrapErr("decode-public-key", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, wrapErr("decode-public-key", errNotRSAKey)
	}
	return rsaPub, nil
}
