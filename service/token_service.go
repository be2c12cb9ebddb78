package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/layer-3/keygate/core"
	"github.com/layer-3/keygate/ports"
)

// Default token lifetimes.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenService issues, verifies and rotates token pairs. Access tokens are
// stateless; refresh tokens are single-active-per-user, tracked by JTI in the
// refresh store.
type TokenService struct {
	tokenizer ports.Tokenizer
	refresh   ports.RefreshTokenStore

	accessTTL  time.Duration
	refreshTTL time.Duration

	now func() time.Time
}

// NewTokenService creates a token service with the given lifetimes; zero
// values fall back to the defaults.
func NewTokenService(tokenizer ports.Tokenizer, refresh ports.RefreshTokenStore, accessTTL, refreshTTL time.Duration) *TokenService {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &TokenService{
		tokenizer:  tokenizer,
		refresh:    refresh,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// AccessTTL reports the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration {
	return s.accessTTL
}

// IssuePair mints a fresh access/refresh pair and makes the refresh token the
// single active one for the user, discarding any previous pointer.
func (s *TokenService) IssuePair(ctx context.Context, userID string) (*core.TokenPair, error) {
	refreshID := uuid.New().String()
	if err := s.refresh.Put(ctx, userID, refreshID, s.refreshTTL); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return s.mint(userID, refreshID)
}

// VerifyAccess checks signature and expiry only and returns the subject.
// Access tokens are never looked up server-side.
func (s *TokenService) VerifyAccess(token string) (string, error) {
	session, err := s.tokenizer.ParseAccessToken(token)
	if err != nil {
		return "", err
	}
	return session.Subject, nil
}

// Rotate exchanges a refresh token for a new pair. The stored pointer is
// swapped atomically from the presented JTI to the new one, so a superseded
// token fails with core.ErrTokenSuperseded even before its expiry, and of two
// concurrent rotations only one can win.
func (s *TokenService) Rotate(ctx context.Context, refreshToken string) (*core.TokenPair, error) {
	session, err := s.tokenizer.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	refreshID := uuid.New().String()
	if err := s.refresh.Swap(ctx, session.Subject, session.TokenID, refreshID, s.refreshTTL); err != nil {
		return nil, err
	}
	return s.mint(session.Subject, refreshID)
}

// Revoke validates the refresh token and clears the user's active pointer.
// An already-expired token is a no-op: its pointer dies with the TTL.
func (s *TokenService) Revoke(ctx context.Context, refreshToken string) (*core.Session, error) {
	session, err := s.tokenizer.ParseRefreshToken(refreshToken)
	if err != nil {
		if errors.Is(err, core.ErrTokenExpired) {
			return nil, nil
		}
		return nil, err
	}
	if err := s.refresh.Clear(ctx, session.Subject); err != nil {
		return nil, fmt.Errorf("clear refresh token: %w", err)
	}
	return session, nil
}

func (s *TokenService) mint(userID, refreshID string) (*core.TokenPair, error) {
	now := s.now()

	access, err := s.tokenizer.SignAccessToken(&core.Session{
		Subject:   userID,
		TokenID:   uuid.New().String(),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.accessTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := s.tokenizer.SignRefreshToken(&core.Session{
		Subject:   userID,
		TokenID:   refreshID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.refreshTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &core.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		Subject:      userID,
	}, nil
}
