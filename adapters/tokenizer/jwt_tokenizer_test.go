package tokenizer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/keygate/core"
)

func newTokenizer(t *testing.T) *JWTTokenizer {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return NewJWTTokenizer(key).(*JWTTokenizer)
}

func testSession(expiry time.Duration) *core.Session {
	now := time.Now()
	return &core.Session{
		Subject:   "alice",
		TokenID:   "jti-1",
		IssuedAt:  now,
		ExpiresAt: now.Add(expiry),
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	j := newTokenizer(t)

	token, err := j.SignAccessToken(testSession(time.Minute))
	require.NoError(t, err)

	session, err := j.ParseAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", session.Subject)
	assert.Equal(t, "jti-1", session.TokenID)
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	j := newTokenizer(t)

	token, err := j.SignRefreshToken(testSession(time.Hour))
	require.NoError(t, err)

	session, err := j.ParseRefreshToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", session.Subject)
	assert.Equal(t, "jti-1", session.TokenID)
}

func TestAudienceKeepsTokenKindsApart(t *testing.T) {
	j := newTokenizer(t)

	access, err := j.SignAccessToken(testSession(time.Minute))
	require.NoError(t, err)
	refresh, err := j.SignRefreshToken(testSession(time.Hour))
	require.NoError(t, err)

	_, err = j.ParseRefreshToken(access)
	assert.ErrorIs(t, err, core.ErrTokenSignatureInvalid)
	_, err = j.ParseAccessToken(refresh)
	assert.ErrorIs(t, err, core.ErrTokenSignatureInvalid)
}

func TestExpiredTokenRejected(t *testing.T) {
	j := newTokenizer(t)

	token, err := j.SignAccessToken(testSession(-time.Minute))
	require.NoError(t, err)

	_, err = j.ParseAccessToken(token)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
}

func TestForeignSignatureRejected(t *testing.T) {
	j := newTokenizer(t)
	other := newTokenizer(t)

	token, err := other.SignAccessToken(testSession(time.Minute))
	require.NoError(t, err)

	_, err = j.ParseAccessToken(token)
	assert.ErrorIs(t, err, core.ErrTokenSignatureInvalid)
}

func TestGarbageTokenRejected(t *testing.T) {
	j := newTokenizer(t)

	_, err := j.ParseAccessToken("not.a.jwt")
	assert.ErrorIs(t, err, core.ErrTokenSignatureInvalid)
}
