package store

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/layer-3/keygate/core"
)

// ChallengeSize is the entropy of an issued challenge in bytes.
const ChallengeSize = 32

// MemoryChallengeStore keeps outstanding challenges in a map. Expiry is
// checked lazily on consume; there is no sweep.
type MemoryChallengeStore struct {
	mu   sync.Mutex
	data map[string]core.Challenge
	now  func() time.Time
}

// NewMemoryChallengeStore creates an empty in-memory challenge store.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{
		data: make(map[string]core.Challenge),
		now:  time.Now,
	}
}

// Issue generates a fresh challenge, replacing any outstanding one for the
// user.
func (s *MemoryChallengeStore) Issue(ctx context.Context, userID string, ttl time.Duration) ([]byte, error) {
	value := make([]byte, ChallengeSize)
	if _, err := rand.Read(value); err != nil {
		return nil, err
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[userID] = core.Challenge{
		UserID:    userID,
		Value:     value,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	return value, nil
}

// Consume deletes the stored challenge on the first attempt and succeeds only
// if it was unexpired and matches the presented bytes. Missing, expired and
// mismatched entries all return core.ErrChallengeInvalid.
func (s *MemoryChallengeStore) Consume(ctx context.Context, userID string, presented []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.data[userID]
	if !ok {
		return core.ErrChallengeInvalid
	}
	delete(s.data, userID)

	if ch.Expired(s.now()) {
		return core.ErrChallengeInvalid
	}
	if subtle.ConstantTimeCompare(ch.Value, presented) != 1 {
		return core.ErrChallengeInvalid
	}
	return nil
}

// MemoryCredentialStore is an in-memory credential registry. The single
// mutex is held across every read-modify-write, which gives AdvanceCounter
// its compare-and-swap semantics.
type MemoryCredentialStore struct {
	mu     sync.Mutex
	byUser map[string]*core.Credential
	byID   map[string]*core.Credential
}

// NewMemoryCredentialStore creates an empty in-memory credential registry.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		byUser: make(map[string]*core.Credential),
		byID:   make(map[string]*core.Credential),
	}
}

// Register stores a new credential. It fails when the user already owns one
// or the credential ID is taken, regardless of by whom.
func (s *MemoryCredentialStore) Register(ctx context.Context, cred *core.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUser[cred.OwnerID]; ok {
		return core.ErrDuplicateRegistration
	}
	if _, ok := s.byID[string(cred.ID)]; ok {
		return core.ErrDuplicateRegistration
	}

	stored := *cred
	stored.SignCount = 0
	s.byUser[stored.OwnerID] = &stored
	s.byID[string(stored.ID)] = &stored
	return nil
}

// ByUser returns the credential owned by the user.
func (s *MemoryCredentialStore) ByUser(ctx context.Context, userID string) (*core.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byUser[userID]
	if !ok {
		return nil, core.ErrCredentialNotFound
	}
	out := *cred
	return &out, nil
}

// ByCredentialID resolves a credential by its globally unique ID.
func (s *MemoryCredentialStore) ByCredentialID(ctx context.Context, credentialID []byte) (*core.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byID[string(credentialID)]
	if !ok {
		return nil, core.ErrCredentialNotFound
	}
	out := *cred
	return &out, nil
}

// AdvanceCounter updates the signature counter, requiring a strict increase.
// Both-zero is a tolerated no-op for authenticators that never report a
// counter.
func (s *MemoryCredentialStore) AdvanceCounter(ctx context.Context, credentialID []byte, newCount uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byID[string(credentialID)]
	if !ok {
		return core.ErrCredentialNotFound
	}
	if newCount == 0 && cred.SignCount == 0 {
		return nil
	}
	if newCount <= cred.SignCount {
		return core.ErrReplayDetected
	}
	cred.SignCount = newCount
	return nil
}

type refreshEntry struct {
	tokenID   string
	expiresAt time.Time
}

// MemoryRefreshStore tracks the active refresh token ID per user.
type MemoryRefreshStore struct {
	mu   sync.Mutex
	data map[string]refreshEntry
	now  func() time.Time
}

// NewMemoryRefreshStore creates an empty in-memory refresh token store.
func NewMemoryRefreshStore() *MemoryRefreshStore {
	return &MemoryRefreshStore{
		data: make(map[string]refreshEntry),
		now:  time.Now,
	}
}

// Put makes tokenID the active refresh token for the user, discarding any
// previous one.
func (s *MemoryRefreshStore) Put(ctx context.Context, userID, tokenID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[userID] = refreshEntry{tokenID: tokenID, expiresAt: s.now().Add(ttl)}
	return nil
}

// Swap replaces the active token ID only while current still matches. A
// stale or missing pointer fails with core.ErrTokenSuperseded, which is what
// makes concurrent rotations from the same token lose cleanly.
func (s *MemoryRefreshStore) Swap(ctx context.Context, userID, current, next string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[userID]
	if !ok || e.tokenID != current || s.now().After(e.expiresAt) {
		return core.ErrTokenSuperseded
	}
	s.data[userID] = refreshEntry{tokenID: next, expiresAt: s.now().Add(ttl)}
	return nil
}

// Clear drops the active refresh token pointer for the user.
func (s *MemoryRefreshStore) Clear(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, userID)
	return nil
}

// MemoryUserStore holds accounts for the password/PIN fallback path.
type MemoryUserStore struct {
	mu   sync.Mutex
	data map[string]core.User
}

// NewMemoryUserStore creates an empty in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{data: make(map[string]core.User)}
}

// Create stores a new user record, failing if the ID is already taken. The
// check and insert run under one lock.
func (s *MemoryUserStore) Create(ctx context.Context, user *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[user.ID]; ok {
		return core.ErrUserExists
	}
	s.data[user.ID] = *user
	return nil
}

// Get returns the user record by ID.
func (s *MemoryUserStore) Get(ctx context.Context, userID string) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.data[userID]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	out := user
	return &out, nil
}
