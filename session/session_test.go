package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionLifecycleFields(t *testing.T) {
	s := New("handle")
	assert.NotEmpty(t, s.ID())
	assert.False(t, s.Authenticated())
	assert.Nil(t, s.SharedKey())

	key := []byte("0123456789abcdef0123456789abcdef")
	s.SetSharedKey(key)
	assert.Equal(t, key, s.SharedKey())

	challenge := []byte("challenge-bytes")
	s.SetPendingChallenge(challenge)
	assert.Equal(t, challenge, s.PendingChallenge())
	s.ClearPendingChallenge()
	assert.Nil(t, s.PendingChallenge())

	s.SetAuthenticated()
	assert.True(t, s.Authenticated())

	s.SetIdentifier("smp")
	s.SetMetadata("room=1")
	assert.Equal(t, "smp", s.Identifier())
	assert.Equal(t, "room=1", s.Metadata())
}

func TestSessionIDsAreUnique(t *testing.T) {
	a := New("h1")
	b := New("h2")
	assert.NotEqual(t, a.ID(), b.ID())
}
