package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyPairEncodeRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	b64, err := EncodePublicKey(kp.Public)
	require.NoError(t, err)
	assert.NotEmpty(t, b64)

	decoded, err := DecodePublicKey(b64)
	require.NoError(t, err)
	assert.True(t, kp.Public.Equal(decoded))
}

func TestWrapUnwrapKeyRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	symKey, err := GenerateSymmetricKey()
	require.NoError(t, err)

	wrapped, err := WrapKey(kp.Public, symKey)
	require.NoError(t, err)

	unwrapped, err := UnwrapKey(kp.Private, wrapped)
	require.NoError(t, err)
	assert.Equal(t, symKey, unwrapped)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := GenerateSymmetricKey()
	require.NoError(t, err)

	plaintext := []byte(`{"hello":"world"}`)
	ciphertext, nonce, err := Encrypt(key, plaintext)
	require.NoError(t, err)
	assert.Len(t, nonce, NonceSize)

	decrypted, err := Decrypt(key, nonce, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	key, err := GenerateSymmetricKey()
	require.NoError(t, err)

	ciphertext, nonce, err := Encrypt(key, []byte("payload"))
	require.NoError(t, err)
	ciphertext[0] ^= 0xFF

	_, err = Decrypt(key, nonce, ciphertext)
	assert.Error(t, err)
}

func TestMACVerification(t *testing.T) {
	key := []byte("topsecret")
	challenge, err := GenerateChallenge()
	require.NoError(t, err)
	assert.Len(t, challenge, ChallengeSize)

	response := MACBase64(key, challenge)
	assert.True(t, VerifyMACBase64(key, challenge, response))

	// Flipping any bit of the response must fail verification.
	raw, err := base64.StdEncoding.DecodeString(response)
	require.NoError(t, err)
	raw[0] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(raw)
	assert.False(t, VerifyMACBase64(key, challenge, tampered))
}

func TestSymmetricKeyEncodeRoundTrip(t *testing.T) {
	key, err := GenerateSymmetricKey()
	require.NoError(t, err)

	encoded := EncodeSymmetricKey(key)
	decoded, err := DecodeSymmetricKey(encoded)
	require.NoError(t, err)
	assert.Equal(t, key, decoded)
}

func TestChallengeFreshness(t *testing.T) {
	a, err := GenerateChallenge()
	require.NoError(t, err)
	b, err := GenerateChallenge()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
