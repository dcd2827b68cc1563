package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionSignerRoundTrips(t *testing.T) {
	s := newSessionSigner("key-a")
	token := s.sign("user-1", "admin")

	uid, role, ok := s.verify(token)
	assert.True(t, ok)
	assert.Equal(t, "user-1", uid)
	assert.Equal(t, "admin", role)
}

func TestSessionSignerRejectsTamperedToken(t *testing.T) {
	s := newSessionSigner("key-a")
	token := s.sign("user-1", "admin")

	_, _, ok := s.verify(token + "x")
	assert.False(t, ok)
}

func TestSessionSignerRejectsWrongKey(t *testing.T) {
	token := newSessionSigner("key-a").sign("user-1", "admin")

	_, _, ok := newSessionSigner("key-b").verify(token)
	assert.False(t, ok)
}

func TestSessionSignerRejectsMalformedToken(t *testing.T) {
	s := newSessionSigner("key-a")

	_, _, ok := s.verify("not-a-valid-token")
	assert.False(t, ok)
}

func TestHashPasswordVerifiesWithBcrypt(t *testing.T) {
	hash, err := HashPassword("hunter2")
	assert.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)
}
