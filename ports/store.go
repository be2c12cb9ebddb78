package ports

import (
	"context"
	"time"

	"github.com/layer-3/keygate/core"
)

// ChallengeStore holds the single outstanding ceremony challenge per user.
// Issue overwrites any prior unconsumed challenge. Consume deletes the entry
// on the first attempt regardless of outcome: a challenge is valid for
// exactly one verification attempt. Expiry is checked lazily on consume;
// expired, already-consumed and mismatched challenges are indistinguishable
// to the caller.
type ChallengeStore interface {
	Issue(ctx context.Context, userID string, ttl time.Duration) ([]byte, error)
	Consume(ctx context.Context, userID string, presented []byte) error
}

// CredentialStore is the registry of public-key credentials. Register fails
// when the user already owns a credential or the credential ID belongs to
// anyone. AdvanceCounter is an atomic compare-and-swap: it fails with
// core.ErrReplayDetected unless newCount strictly exceeds the stored counter,
// with both-zero tolerated for authenticators that never report one.
type CredentialStore interface {
	Register(ctx context.Context, cred *core.Credential) error
	ByUser(ctx context.Context, userID string) (*core.Credential, error)
	ByCredentialID(ctx context.Context, credentialID []byte) (*core.Credential, error)
	AdvanceCounter(ctx context.Context, credentialID []byte, newCount uint32) error
}

// RefreshTokenStore tracks the single active refresh token ID per user.
// Swap atomically replaces the pointer only while current still matches,
// which is what makes concurrent rotations lose cleanly.
type RefreshTokenStore interface {
	Put(ctx context.Context, userID, tokenID string, ttl time.Duration) error
	Swap(ctx context.Context, userID, current, next string, ttl time.Duration) error
	Clear(ctx context.Context, userID string) error
}

// UserStore holds accounts for the password/PIN fallback path. Create is
// atomic: of two concurrent creations for the same ID exactly one succeeds,
// the other fails with core.ErrUserExists.
type UserStore interface {
	Create(ctx context.Context, user *core.User) error
	Get(ctx context.Context, userID string) (*core.User, error)
}
