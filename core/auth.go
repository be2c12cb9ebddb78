package core

import "time"

// Challenge is a single-use random value bound to one user for the duration
// of a ceremony attempt.
type Challenge struct {
	UserID    string    // Owner of the outstanding challenge
	Value     []byte    // Random bytes the client must present back
	IssuedAt  time.Time // When the challenge was created
	ExpiresAt time.Time // After this instant consume must fail
}

// Expired reports whether the challenge is past its TTL at the given instant.
func (c Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Credential is a registered public-key credential. A user owns at most one
// credential and a credential ID is unique across all users.
type Credential struct {
	ID        []byte // Credential ID reported by the authenticator
	OwnerID   string // User the credential belongs to
	PublicKey []byte // COSE-encoded verification key
	SignCount uint32 // Monotonic signature counter, advanced on assertion
	CreatedAt time.Time
}

// User is an account that can hold a credential and fallback secrets.
type User struct {
	ID           string
	PasswordHash []byte // bcrypt; empty when password login is disabled
	PINHash      []byte // bcrypt; empty when PIN login is disabled
}

// TokenPair is the result of a successful authentication or rotation.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Subject      string `json:"-"`
}

// Session carries the claims extracted from a verified token.
type Session struct {
	Subject   string // User the token was issued to
	TokenID   string // JTI; for refresh tokens this is the rotation handle
	IssuedAt  time.Time
	ExpiresAt time.Time
}
