package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	issuer := NewSessionIssuer("secret", time.Minute)
	token, err := issuer.Generate(42, "client-a")
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.EntityID)
	assert.Equal(t, "client-a", claims.ClientToken)
	assert.Equal(t, "entity-42", claims.Subject)
}

func TestSessionTokenRejections(t *testing.T) {
	issuer := NewSessionIssuer("secret", time.Minute)
	token, err := issuer.Generate(1, "c")
	require.NoError(t, err)

	_, err = NewSessionIssuer("other", time.Minute).Verify(token)
	assert.True(t, errors.Is(err, ErrInvalidToken), "wrong secret")

	expired := NewSessionIssuer("secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = expired.Verify(token)
	assert.True(t, errors.Is(err, ErrInvalidToken), "expired")

	_, err = issuer.Verify("garbage")
	assert.True(t, errors.Is(err, ErrInvalidToken))
}
