package store

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/keygate/core"
)

const (
	challengeKeyPrefix  = "keygate:challenge:"
	credentialKeyPrefix = "keygate:credential:user:"
	credentialIDPrefix  = "keygate:credential:id:"
	refreshKeyPrefix    = "keygate:refresh:"
	userKeyPrefix       = "keygate:user:"
)

// RedisChallengeStore keeps outstanding challenges in Redis with a TTL, so
// expiry needs no server-side sweep. Consume is GETDEL: the entry is gone
// after the first attempt whatever the outcome.
type RedisChallengeStore struct {
	client *redis.Client
}

// NewRedisChallengeStore creates a Redis-backed challenge store.
func NewRedisChallengeStore(client *redis.Client) *RedisChallengeStore {
	return &RedisChallengeStore{client: client}
}

// Issue generates a fresh challenge, replacing any outstanding one for the
// user.
func (s *RedisChallengeStore) Issue(ctx context.Context, userID string, ttl time.Duration) ([]byte, error) {
	value := make([]byte, ChallengeSize)
	if _, err := rand.Read(value); err != nil {
		return nil, err
	}

	key := challengeKeyPrefix + userID
	encoded := base64.RawURLEncoding.EncodeToString(value)
	if err := s.client.Set(ctx, key, encoded, ttl).Err(); err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}
	return value, nil
}

// Consume removes the stored challenge and succeeds only on a constant-time
// match against the presented bytes.
func (s *RedisChallengeStore) Consume(ctx context.Context, userID string, presented []byte) error {
	key := challengeKeyPrefix + userID

	encoded, err := s.client.GetDel(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.ErrChallengeInvalid
		}
		return fmt.Errorf("consume challenge: %w", err)
	}

	stored, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return core.ErrChallengeInvalid
	}
	if subtle.ConstantTimeCompare(stored, presented) != 1 {
		return core.ErrChallengeInvalid
	}
	return nil
}

type credentialRecord struct {
	ID        []byte    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	PublicKey []byte    `json:"public_key"`
	SignCount uint32    `json:"sign_count"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisCredentialStore persists credentials as JSON under two keys: one per
// owner and one per credential ID. Counter advances run inside a WATCH
// transaction so concurrent assertions cannot both pass a stale check.
type RedisCredentialStore struct {
	client *redis.Client
}

// NewRedisCredentialStore creates a Redis-backed credential registry.
func NewRedisCredentialStore(client *redis.Client) *RedisCredentialStore {
	return &RedisCredentialStore{client: client}
}

func credentialUserKey(userID string) string {
	return credentialKeyPrefix + userID
}

func credentialIDKey(credentialID []byte) string {
	return credentialIDPrefix + base64.RawURLEncoding.EncodeToString(credentialID)
}

// Register stores a new credential, refusing to overwrite an existing one
// for the same user or reuse a credential ID owned by anyone.
func (s *RedisCredentialStore) Register(ctx context.Context, cred *core.Credential) error {
	userKey := credentialUserKey(cred.OwnerID)
	idKey := credentialIDKey(cred.ID)

	record := credentialRecord{
		ID:        cred.ID,
		OwnerID:   cred.OwnerID,
		PublicKey: cred.PublicKey,
		SignCount: 0,
		CreatedAt: cred.CreatedAt,
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		existing, err := tx.Exists(ctx, userKey, idKey).Result()
		if err != nil {
			return fmt.Errorf("check credential keys: %w", err)
		}
		if existing > 0 {
			return core.ErrDuplicateRegistration
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, userKey, payload, 0)
			pipe.Set(ctx, idKey, cred.OwnerID, 0)
			return nil
		})
		return err
	}, userKey, idKey)

	if errors.Is(err, redis.TxFailedErr) {
		return core.ErrDuplicateRegistration
	}
	return err
}

// ByUser returns the credential owned by the user.
func (s *RedisCredentialStore) ByUser(ctx context.Context, userID string) (*core.Credential, error) {
	payload, err := s.client.Get(ctx, credentialUserKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}
	return decodeCredential(payload)
}

// ByCredentialID resolves the owning user, then loads the credential.
func (s *RedisCredentialStore) ByCredentialID(ctx context.Context, credentialID []byte) (*core.Credential, error) {
	ownerID, err := s.client.Get(ctx, credentialIDKey(credentialID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("resolve credential id: %w", err)
	}
	return s.ByUser(ctx, ownerID)
}

// AdvanceCounter updates the signature counter, requiring a strict increase.
// A lost WATCH race means another assertion advanced the counter first, which
// is reported as a replay.
func (s *RedisCredentialStore) AdvanceCounter(ctx context.Context, credentialID []byte, newCount uint32) error {
	ownerID, err := s.client.Get(ctx, credentialIDKey(credentialID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.ErrCredentialNotFound
		}
		return fmt.Errorf("resolve credential id: %w", err)
	}
	userKey := credentialUserKey(ownerID)

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		payload, err := tx.Get(ctx, userKey).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return core.ErrCredentialNotFound
			}
			return fmt.Errorf("load credential: %w", err)
		}

		var record credentialRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return fmt.Errorf("decode credential: %w", err)
		}

		if newCount == 0 && record.SignCount == 0 {
			return nil
		}
		if newCount <= record.SignCount {
			return core.ErrReplayDetected
		}

		record.SignCount = newCount
		updated, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("encode credential: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, userKey, updated, 0)
			return nil
		})
		return err
	}, userKey)

	if errors.Is(err, redis.TxFailedErr) {
		return core.ErrReplayDetected
	}
	return err
}

func decodeCredential(payload []byte) (*core.Credential, error) {
	var record credentialRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}
	return &core.Credential{
		ID:        record.ID,
		OwnerID:   record.OwnerID,
		PublicKey: record.PublicKey,
		SignCount: record.SignCount,
		CreatedAt: record.CreatedAt,
	}, nil
}

// RedisRefreshStore keeps the active refresh token ID per user with the
// token's TTL. Swap runs inside a WATCH transaction so only one of two
// concurrent rotations from the same token can win.
type RedisRefreshStore struct {
	client *redis.Client
}

// NewRedisRefreshStore creates a Redis-backed refresh token store.
func NewRedisRefreshStore(client *redis.Client) *RedisRefreshStore {
	return &RedisRefreshStore{client: client}
}

// Put makes tokenID the active refresh token for the user.
func (s *RedisRefreshStore) Put(ctx context.Context, userID, tokenID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, refreshKeyPrefix+userID, tokenID, ttl).Err(); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// Swap replaces the active token ID only while current still matches.
func (s *RedisRefreshStore) Swap(ctx context.Context, userID, current, next string, ttl time.Duration) error {
	key := refreshKeyPrefix + userID

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return core.ErrTokenSuperseded
			}
			return fmt.Errorf("load refresh token: %w", err)
		}
		if stored != current {
			return core.ErrTokenSuperseded
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, ttl)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return core.ErrTokenSuperseded
	}
	return err
}

// Clear drops the active refresh token pointer for the user.
func (s *RedisRefreshStore) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, refreshKeyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}

// RedisUserStore persists fallback-login accounts as JSON.
type RedisUserStore struct {
	client *redis.Client
}

// NewRedisUserStore creates a Redis-backed user store.
func NewRedisUserStore(client *redis.Client) *RedisUserStore {
	return &RedisUserStore{client: client}
}

// Create stores a new user record via SETNX, failing if the ID is already
// taken.
func (s *RedisUserStore) Create(ctx context.Context, user *core.User) error {
	payload, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}

	created, err := s.client.SetNX(ctx, userKeyPrefix+user.ID, payload, 0).Result()
	if err != nil {
		return fmt.Errorf("store user: %w", err)
	}
	if !created {
		return core.ErrUserExists
	}
	return nil
}

// Get returns the user record by ID.
func (s *RedisUserStore) Get(ctx context.Context, userID string) (*core.User, error) {
	payload, err := s.client.Get(ctx, userKeyPrefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	var user core.User
	if err := json.Unmarshal(payload, &user); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &user, nil
}
