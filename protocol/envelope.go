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

package protocol

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	sagecrypto "github.com/sage-x-project/sage-ws/crypto"
)

// ErrCodec covers malformed JSON, missing envelope fields, and violations
// of the wire format invariants (e.g. both `encrypted` and `compressed`
// set on the same frame).
type ErrCodec struct {
	Reason string
}

func (e *ErrCodec) Error() string {
	return fmt.Sprintf("protocol: codec error: %s", e.Reason)
}

// typedEnvelope is the `{"type": ..., "data": ...}` wire shape.
type typedEnvelope struct {
	Type Tag             `json:"type"`
	Data json.RawMessage `json:"data"`
}

// wireEnvelope is a superset used only for decoding: every field is
// optional so a single Unmarshal can classify the incoming frame by which
// of the encrypted/compressed flags is present.
type wireEnvelope struct {
	Type       *Tag            `json:"type,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Compressed *bool           `json:"compressed,omitempty"`
	Encrypted  *bool           `json:"encrypted,omitempty"`
	Payload    *string         `json:"payload,omitempty"`
	IV         *string         `json:"iv,omitempty"`
}

type compressedEnvelope struct {
	Compressed bool   `json:"compressed"`
	Payload    string `json:"payload"`
}

type encryptedEnvelope struct {
	Encrypted bool   `json:"encrypted"`
	Payload   string `json:"payload"`
	IV        string `json:"iv"`
}

// Codec encodes and decodes envelopes against a Registry. The zero value
// is not usable; construct with NewCodec.
type Codec struct {
	registry *Registry
}

// NewCodec builds a codec bound to registry. Passing nil uses Default.
func NewCodec(registry *Registry) *Codec {
	if registry == nil {
		registry = Default
	}
	return &Codec{registry: registry}
}

// Encode serializes msg into exactly one outer envelope.
//
// If key is non-empty, the result is always an encrypted envelope
// (encryption always wins once the key exists). Otherwise, if threshold is
// >= 0 and the typed-envelope JSON exceeds it, the result is a compressed
// envelope unless compression failed to shrink the payload, in which case
// the typed envelope is emitted uncompressed. threshold < 0 disables
// compression.
func (c *Codec) Encode(msg Message, key []byte, threshold int) (string, error) {
	dataJSON, err := json.Marshal(msg)
	if err != nil {
		return "", &ErrCodec{Reason: err.Error()}
	}
	typedJSON, err := json.Marshal(typedEnvelope{Type: msg.Tag(), Data: dataJSON})
	if err != nil {
		return "", &ErrCodec{Reason: err.Error()}
	}

	if len(key) > 0 {
		ciphertext, nonce, err := sagecrypto.Encrypt(key, typedJSON)
		if err != nil {
			return "", err
		}
		out, err := json.Marshal(encryptedEnvelope{
			Encrypted: true,
			Payload:   base64.StdEncoding.EncodeToString(ciphertext),
			IV:        base64.StdEncoding.EncodeToString(nonce),
		})
		if err != nil {
			return "", &ErrCodec{Reason: err.Error()}
		}
		return string(out), nil
	}

	if threshold >= 0 && len(typedJSON) > threshold {
		compressed, err := gzipCompress(typedJSON)
		if err == nil && len(compressed) < len(typedJSON) {
			out, err := json.Marshal(compressedEnvelope{
				Compressed: true,
				Payload:    base64.StdEncoding.EncodeToString(compressed),
			})
			if err != nil {
				return "", &ErrCodec{Reason: err.Error()}
			}
			return string(out), nil
		}
		// Compression did not shrink the payload (or failed): degrade
		// gracefully to the uncompressed typed envelope.
	}

	return string(typedJSON), nil
}

// Decode inspects the top-level flags and recurses on the unwrapped
// payload until it reaches a typed envelope, then looks up the tag in the
// registry.
func (c *Codec) Decode(text string, key []byte) (Message, error) {
	msg, _, err := c.DecodeFrame(text, key)
	return msg, err
}

// DecodeFrame is Decode plus a report of whether the outermost layer of
// the frame was an encrypted envelope. Receivers that have completed the
// handshake use this to reject plaintext frames: once a session is
// authenticated, every frame on it must arrive encrypted.
func (c *Codec) DecodeFrame(text string, key []byte) (Message, bool, error) {
	var env wireEnvelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return nil, false, &ErrCodec{Reason: err.Error()}
	}

	isEncrypted := env.Encrypted != nil && *env.Encrypted
	isCompressed := env.Compressed != nil && *env.Compressed
	if isEncrypted && isCompressed {
		return nil, false, &ErrCodec{Reason: "envelope has both encrypted and compressed set"}
	}

	switch {
	case isEncrypted:
		if len(key) == 0 {
			return nil, true, &ErrCodec{Reason: "encrypted envelope received without a session key"}
		}
		if env.Payload == nil || env.IV == nil {
			return nil, true, &ErrCodec{Reason: "encrypted envelope missing payload or iv"}
		}
		ciphertext, err := base64.StdEncoding.DecodeString(*env.Payload)
		if err != nil {
			return nil, true, &ErrCodec{Reason: err.Error()}
		}
		nonce, err := base64.StdEncoding.DecodeString(*env.IV)
		if err != nil {
			return nil, true, &ErrCodec{Reason: err.Error()}
		}
		plaintext, err := sagecrypto.Decrypt(key, nonce, ciphertext)
		if err != nil {
			return nil, true, err
		}
		msg, err := c.Decode(string(plaintext), key)
		return msg, true, err

	case isCompressed:
		if env.Payload == nil {
			return nil, false, &ErrCodec{Reason: "compressed envelope missing payload"}
		}
		compressed, err := base64.StdEncoding.DecodeString(*env.Payload)
		if err != nil {
			return nil, false, &ErrCodec{Reason: err.Error()}
		}
		plaintext, err := gzipDecompress(compressed)
		if err != nil {
			return nil, false, &ErrCodec{Reason: err.Error()}
		}
		msg, err := c.Decode(string(plaintext), key)
		return msg, false, err

	default:
		if env.Type == nil {
			return nil, false, &ErrCodec{Reason: "typed envelope missing type"}
		}
		msg, ok := c.registry.New(*env.Type)
		if !ok {
			return nil, false, &ErrUnknownPacketType{Tag: *env.Type}
		}
		if env.Data != nil {
			if err := json.Unmarshal(env.Data, msg); err != nil {
				return nil, false, &ErrCodec{Reason: err.Error()}
			}
		}
		return msg, false, nil
	}
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
