package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/layer-3/keygate/ceremony"
	"github.com/layer-3/keygate/core"
	"github.com/layer-3/keygate/ports"
)

// DefaultChallengeTTL bounds the client-side suspension between challenge
// issuance and response submission.
const DefaultChallengeTTL = 60 * time.Second

const (
	methodPasskey  = "passkey"
	methodPassword = "password"
	methodPIN      = "pin"
)

// AuthService coordinates the end-to-end flow: issue challenge, verify the
// ceremony response, issue tokens and rotate them later. It is the only
// surface the transport talks to.
type AuthService struct {
	challenges  ports.ChallengeStore
	credentials ports.CredentialStore
	users       ports.UserStore
	verifier    *ceremony.Verifier
	tokens      *TokenService
	eventPub    ports.EventPublisher
	log         *slog.Logger

	rpID         string
	challengeTTL time.Duration
}

// NewAuthService creates the session coordinator. The verifier must be
// configured with the same challenge and credential stores.
func NewAuthService(
	challenges ports.ChallengeStore,
	credentials ports.CredentialStore,
	users ports.UserStore,
	verifier *ceremony.Verifier,
	tokens *TokenService,
	eventPub ports.EventPublisher,
	log *slog.Logger,
	rpID string,
	challengeTTL time.Duration,
) *AuthService {
	if log == nil {
		log = slog.Default()
	}
	if challengeTTL <= 0 {
		challengeTTL = DefaultChallengeTTL
	}
	return &AuthService{
		challenges:   challenges,
		credentials:  credentials,
		users:        users,
		verifier:     verifier,
		tokens:       tokens,
		eventPub:     eventPub,
		log:          log,
		rpID:         rpID,
		challengeTTL: challengeTTL,
	}
}

// RegistrationChallenge is the server half of a registration ceremony.
type RegistrationChallenge struct {
	Challenge  []byte
	RPID       string
	UserHandle []byte
}

// AssertionChallenge is the server half of an assertion ceremony, listing the
// credential IDs the client may answer with.
type AssertionChallenge struct {
	Challenge     []byte
	RPID          string
	CredentialIDs [][]byte
}

// BeginRegistration issues a registration challenge for the user, replacing
// any outstanding one.
func (s *AuthService) BeginRegistration(ctx context.Context, userID string) (*RegistrationChallenge, error) {
	challenge, err := s.challenges.Issue(ctx, userID, s.challengeTTL)
	if err != nil {
		return nil, fmt.Errorf("issue challenge: %w", err)
	}
	return &RegistrationChallenge{
		Challenge:  challenge,
		RPID:       s.rpID,
		UserHandle: []byte(userID),
	}, nil
}

// FinishRegistration verifies the credential-creation response and registers
// the credential. Any verification failure surfaces as the generic
// authentication error; the taxonomy code is logged only.
func (s *AuthService) FinishRegistration(ctx context.Context, userID string, resp ceremony.RegistrationResponse) error {
	a := newAttempt(s.log, "registration", userID)
	a.transition(StateChallengeIssued)

	cred, err := s.verifier.VerifyRegistration(ctx, userID, resp)
	if err != nil {
		return a.fail(err)
	}
	a.transition(StateVerified)

	s.log.Info("credential registered", "user_id", userID, "credential_bytes", len(cred.ID))
	return nil
}

// BeginAssertion issues an assertion challenge. Unlike ceremony failures,
// a missing credential is reported distinctly: the client needs to know it
// must register first.
func (s *AuthService) BeginAssertion(ctx context.Context, userID string) (*AssertionChallenge, error) {
	cred, err := s.credentials.ByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	challenge, err := s.challenges.Issue(ctx, userID, s.challengeTTL)
	if err != nil {
		return nil, fmt.Errorf("issue challenge: %w", err)
	}
	return &AssertionChallenge{
		Challenge:     challenge,
		RPID:          s.rpID,
		CredentialIDs: [][]byte{cred.ID},
	}, nil
}

// FinishAssertion verifies the assertion response and, bound to the
// credential's owner, issues a fresh token pair.
func (s *AuthService) FinishAssertion(ctx context.Context, userID string, resp ceremony.AssertionResponse) (*core.TokenPair, error) {
	a := newAttempt(s.log, "assertion", userID)
	a.transition(StateChallengeIssued)

	cred, err := s.verifier.VerifyAssertion(ctx, userID, resp)
	if err != nil {
		return nil, a.fail(err)
	}
	a.transition(StateVerified)

	pair, err := s.tokens.IssuePair(ctx, cred.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}
	a.transition(StateTokensIssued)

	s.publishLogin(ctx, cred.OwnerID, methodPasskey)
	return pair, nil
}

// PasswordLogin is the fallback path: it bypasses the ceremony entirely and
// goes straight to token issuance. It can never mint credentials.
func (s *AuthService) PasswordLogin(ctx context.Context, userID, password string) (*core.TokenPair, error) {
	return s.fallbackLogin(ctx, userID, methodPassword, func(u *core.User) []byte { return u.PasswordHash }, password)
}

// PINLogin is the device-local fallback, verified the same way as passwords.
func (s *AuthService) PINLogin(ctx context.Context, userID, pin string) (*core.TokenPair, error) {
	return s.fallbackLogin(ctx, userID, methodPIN, func(u *core.User) []byte { return u.PINHash }, pin)
}

func (s *AuthService) fallbackLogin(ctx context.Context, userID, method string, hash func(*core.User) []byte, secret string) (*core.TokenPair, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		s.log.Warn("fallback login failed", "user_id", userID, "method", method, "code", core.Code(err))
		return nil, core.ErrAuthenticationFailed
	}

	stored := hash(user)
	if len(stored) == 0 || bcrypt.CompareHashAndPassword(stored, []byte(secret)) != nil {
		s.log.Warn("fallback login failed", "user_id", userID, "method", method, "code", "secret_mismatch")
		return nil, core.ErrAuthenticationFailed
	}

	pair, err := s.tokens.IssuePair(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	s.publishLogin(ctx, userID, method)
	return pair, nil
}

// Refresh rotates a token pair. Token failures keep their distinct taxonomy
// so the client knows whether to re-run the ceremony from scratch.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*core.TokenPair, error) {
	pair, err := s.tokens.Rotate(ctx, refreshToken)
	if err != nil {
		s.log.Warn("token rotation rejected", "code", core.Code(err))
		return nil, err
	}
	return pair, nil
}

// Logout revokes the user's active refresh token and notifies other
// instances.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	session, err := s.tokens.Revoke(ctx, refreshToken)
	if err != nil {
		return err
	}
	if session == nil {
		// Revoking an expired token is a no-op.
		return nil
	}

	if s.eventPub != nil {
		if err := s.eventPub.PublishLogout(ctx, session.Subject, session.TokenID); err != nil {
			s.log.Warn("logout event publish failed", "user_id", session.Subject, "err", err)
		}
	}
	return nil
}

// AccessTTL reports the configured access token lifetime, for clients that
// are told how long their token lasts.
func (s *AuthService) AccessTTL() time.Duration {
	return s.tokens.AccessTTL()
}

// ValidateAccess is the middleware hook: signature and expiry only.
func (s *AuthService) ValidateAccess(token string) (string, error) {
	return s.tokens.VerifyAccess(token)
}

// CreateUser provisions an account for the fallback path, storing bcrypt
// hashes of the given secrets. Empty secrets disable the respective login.
func (s *AuthService) CreateUser(ctx context.Context, userID, password, pin string) error {
	user := &core.User{ID: userID}

	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hash
	}
	if pin != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash pin: %w", err)
		}
		user.PINHash = hash
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, core.ErrUserExists) {
			return fmt.Errorf("user %q: %w", userID, core.ErrUserExists)
		}
		return err
	}
	return nil
}

func (s *AuthService) publishLogin(ctx context.Context, userID, method string) {
	if s.eventPub == nil {
		return
	}
	if err := s.eventPub.PublishLogin(ctx, userID, method); err != nil {
		s.log.Warn("login event publish failed", "user_id", userID, "err", err)
	}
}
