package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/keygate/adapters/store"
	"github.com/layer-3/keygate/adapters/tokenizer"
	"github.com/layer-3/keygate/ceremony"
	"github.com/layer-3/keygate/core"
)

type publishedEvent struct {
	kind   string
	userID string
	extra  string
}

type recordingPublisher struct {
	events []publishedEvent
}

func (p *recordingPublisher) PublishLogin(ctx context.Context, userID, method string) error {
	p.events = append(p.events, publishedEvent{kind: "login", userID: userID, extra: method})
	return nil
}

func (p *recordingPublisher) PublishLogout(ctx context.Context, userID, tokenID string) error {
	p.events = append(p.events, publishedEvent{kind: "logout", userID: userID, extra: tokenID})
	return nil
}

func newTestAuthService(t *testing.T) (*AuthService, *recordingPublisher) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	challenges := store.NewMemoryChallengeStore()
	credentials := store.NewMemoryCredentialStore()
	users := store.NewMemoryUserStore()
	tk := tokenizer.NewJWTTokenizer(key)
	tokens := NewTokenService(tk, store.NewMemoryRefreshStore(), time.Minute, time.Hour)
	verifier := ceremony.NewVerifier(challenges, credentials, "example.test", "https://example.test")
	pub := &recordingPublisher{}

	svc := NewAuthService(
		challenges, credentials, users,
		verifier, tokens, pub,
		slog.New(slog.DiscardHandler), "example.test", time.Minute,
	)
	return svc, pub
}

func TestBeginRegistrationIssuesChallenge(t *testing.T) {
	svc, _ := newTestAuthService(t)

	challenge, err := svc.BeginRegistration(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, challenge.Challenge, store.ChallengeSize)
	assert.Equal(t, "example.test", challenge.RPID)
	assert.Equal(t, []byte("alice"), challenge.UserHandle)
}

func TestFinishRegistrationCollapsesFailures(t *testing.T) {
	svc, _ := newTestAuthService(t)

	// No challenge outstanding and garbage payload: the caller sees only the
	// generic outcome.
	err := svc.FinishRegistration(context.Background(), "alice", ceremony.RegistrationResponse{
		ClientDataJSON:    []byte("{"),
		AttestationObject: []byte{0x00},
	})
	assert.ErrorIs(t, err, core.ErrAuthenticationFailed)
}

func TestBeginAssertionRequiresCredential(t *testing.T) {
	svc, _ := newTestAuthService(t)

	_, err := svc.BeginAssertion(context.Background(), "alice")
	assert.ErrorIs(t, err, core.ErrCredentialNotFound)
}

func TestBeginAssertionListsCredential(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	require.NoError(t, svc.credentials.Register(ctx, &core.Credential{
		ID:        []byte("cred-1"),
		OwnerID:   "alice",
		PublicKey: []byte{0x01},
	}))

	challenge, err := svc.BeginAssertion(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, challenge.CredentialIDs, 1)
	assert.Equal(t, []byte("cred-1"), challenge.CredentialIDs[0])
}

func TestPasswordLogin(t *testing.T) {
	svc, pub := newTestAuthService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateUser(ctx, "alice", "hunter2", "1234"))

	pair, err := svc.PasswordLogin(ctx, "alice", "hunter2")
	require.NoError(t, err)

	subject, err := svc.ValidateAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", subject)

	require.Len(t, pub.events, 1)
	assert.Equal(t, publishedEvent{kind: "login", userID: "alice", extra: "password"}, pub.events[0])
}

func TestPasswordLoginRejectsBadSecret(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateUser(ctx, "alice", "hunter2", ""))

	_, err := svc.PasswordLogin(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, core.ErrAuthenticationFailed)

	// Unknown users fail identically.
	_, err = svc.PasswordLogin(ctx, "nobody", "hunter2")
	assert.ErrorIs(t, err, core.ErrAuthenticationFailed)
}

func TestPINLogin(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateUser(ctx, "alice", "", "1234"))

	pair, err := svc.PINLogin(ctx, "alice", "1234")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.RefreshToken)

	_, err = svc.PINLogin(ctx, "alice", "0000")
	assert.ErrorIs(t, err, core.ErrAuthenticationFailed)
}

func TestPINLoginDisabledWithoutHash(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateUser(ctx, "alice", "hunter2", ""))

	_, err := svc.PINLogin(ctx, "alice", "")
	assert.ErrorIs(t, err, core.ErrAuthenticationFailed)
}

func TestRefreshKeepsTokenTaxonomy(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateUser(ctx, "bob", "hunter2", ""))
	r1, err := svc.PasswordLogin(ctx, "bob", "hunter2")
	require.NoError(t, err)

	r2, err := svc.Refresh(ctx, r1.RefreshToken)
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, r1.RefreshToken)
	assert.ErrorIs(t, err, core.ErrTokenSuperseded)

	_, err = svc.Refresh(ctx, r2.AccessToken)
	assert.ErrorIs(t, err, core.ErrTokenSignatureInvalid)
}

func TestLogoutRevokesAndPublishes(t *testing.T) {
	svc, pub := newTestAuthService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateUser(ctx, "bob", "hunter2", ""))
	pair, err := svc.PasswordLogin(ctx, "bob", "hunter2")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, pair.RefreshToken))

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, core.ErrTokenSuperseded)

	last := pub.events[len(pub.events)-1]
	assert.Equal(t, "logout", last.kind)
	assert.Equal(t, "bob", last.userID)
}

func TestCreateUserRejectsDuplicate(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateUser(ctx, "alice", "hunter2", ""))
	assert.ErrorIs(t, svc.CreateUser(ctx, "alice", "other", ""), core.ErrUserExists)

	// The losing create must not replace the existing secrets.
	_, err := svc.PasswordLogin(ctx, "alice", "hunter2")
	assert.NoError(t, err)
}
