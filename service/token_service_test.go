package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/keygate/adapters/store"
	"github.com/layer-3/keygate/adapters/tokenizer"
	"github.com/layer-3/keygate/core"
	"github.com/layer-3/keygate/ports"
)

func newTestTokenService(t *testing.T) (*TokenService, ports.Tokenizer) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tk := tokenizer.NewJWTTokenizer(key)
	return NewTokenService(tk, store.NewMemoryRefreshStore(), time.Minute, time.Hour), tk
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	s, _ := newTestTokenService(t)
	ctx := context.Background()

	pair, err := s.IssuePair(ctx, "alice")
	require.NoError(t, err)

	subject, err := s.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", subject)
}

func TestRotateReturnsFreshValidPair(t *testing.T) {
	s, _ := newTestTokenService(t)
	ctx := context.Background()

	pair, err := s.IssuePair(ctx, "bob")
	require.NoError(t, err)

	rotated, err := s.Rotate(ctx, pair.RefreshToken)
	require.NoError(t, err)

	subject, err := s.VerifyAccess(rotated.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "bob", subject)
}

func TestSupersededRefreshTokenRejected(t *testing.T) {
	s, _ := newTestTokenService(t)
	ctx := context.Background()

	r1, err := s.IssuePair(ctx, "bob")
	require.NoError(t, err)
	_, err = s.Rotate(ctx, r1.RefreshToken)
	require.NoError(t, err)

	// R1 is still unexpired but no longer current.
	_, err = s.Rotate(ctx, r1.RefreshToken)
	assert.ErrorIs(t, err, core.ErrTokenSuperseded)
}

func TestRotationChain(t *testing.T) {
	s, _ := newTestTokenService(t)
	ctx := context.Background()

	pair, err := s.IssuePair(ctx, "bob")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		next, err := s.Rotate(ctx, pair.RefreshToken)
		require.NoError(t, err)

		_, err = s.Rotate(ctx, pair.RefreshToken)
		assert.ErrorIs(t, err, core.ErrTokenSuperseded)
		pair = next
	}
}

func TestNewLoginSupersedesOldRefreshToken(t *testing.T) {
	s, _ := newTestTokenService(t)
	ctx := context.Background()

	first, err := s.IssuePair(ctx, "bob")
	require.NoError(t, err)
	_, err = s.IssuePair(ctx, "bob")
	require.NoError(t, err)

	_, err = s.Rotate(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, core.ErrTokenSuperseded)
}

func TestExpiredRefreshTokenRejected(t *testing.T) {
	s, tk := newTestTokenService(t)
	ctx := context.Background()

	pair, err := s.IssuePair(ctx, "bob")
	require.NoError(t, err)

	// Forge a token with the same JTI but already expired.
	session, err := tk.ParseRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	expired, err := tk.SignRefreshToken(&core.Session{
		Subject:   session.Subject,
		TokenID:   session.TokenID,
		IssuedAt:  time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	_, err = s.Rotate(ctx, expired)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
}

func TestAccessTokenCannotRotate(t *testing.T) {
	s, _ := newTestTokenService(t)
	ctx := context.Background()

	pair, err := s.IssuePair(ctx, "bob")
	require.NoError(t, err)

	_, err = s.Rotate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, core.ErrTokenSignatureInvalid)
}

func TestRevokeClearsActivePointer(t *testing.T) {
	s, _ := newTestTokenService(t)
	ctx := context.Background()

	pair, err := s.IssuePair(ctx, "bob")
	require.NoError(t, err)

	session, err := s.Revoke(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "bob", session.Subject)

	_, err = s.Rotate(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, core.ErrTokenSuperseded)
}
