// internal/pkg/mfa/store.go
package mfa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"identity-service/internal/domain/mfa"
	xerrors "identity-service/internal/pkg/errors"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

const challengeKeyPrefix = "mfa:challenge"

// storedChallenge is the redis representation. Challenge hides OwnerID from
// API responses, so the store keeps its own shape that persists it.
type storedChallenge struct {
	ID        string       `json:"id"`
	OwnerID   string       `json:"owner_id"`
	Methods   []mfa.Method `json:"methods"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Store keeps pending MFA challenges in redis with TTL eviction. A challenge
// never reaches durable storage; redis expiry is the only cleanup.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) key(id string) string {
	return challengeKeyPrefix + ":" + id
}

// Create issues a new challenge for the owner and stores it under the
// configured TTL.
func (s *Store) Create(ctx context.Context, ownerID string, methods []mfa.Method) (*mfa.Challenge, error) {
	now := time.Now()
	challenge := &mfa.Challenge{
		ID:        ulid.Make().String(),
		OwnerID:   ownerID,
		Methods:   methods,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	data, err := json.Marshal(storedChallenge{
		ID:        challenge.ID,
		OwnerID:   challenge.OwnerID,
		Methods:   challenge.Methods,
		CreatedAt: challenge.CreatedAt,
		ExpiresAt: challenge.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal challenge: %w", err)
	}

	if err := s.client.Set(ctx, s.key(challenge.ID), data, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}

	return challenge, nil
}

// Get returns a pending challenge without consuming it. A failed code check
// must leave the challenge usable for another attempt within its TTL.
func (s *Store) Get(ctx context.Context, id string) (*mfa.Challenge, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, xerrors.ErrInvalidChallenge
		}
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}

	return s.decode(data)
}

// Consume atomically removes the challenge and returns it. Exactly one caller
// can consume a given challenge; a replay of the same id after a successful
// verification observes ErrInvalidChallenge.
func (s *Store) Consume(ctx context.Context, id string) (*mfa.Challenge, error) {
	data, err := s.client.GetDel(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, xerrors.ErrInvalidChallenge
		}
		return nil, fmt.Errorf("failed to consume challenge: %w", err)
	}

	return s.decode(data)
}

func (s *Store) decode(data []byte) (*mfa.Challenge, error) {
	var stored storedChallenge
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal challenge: %w", err)
	}

	// Redis TTL is the primary eviction path; the absolute expiry is checked
	// as well so a lagging eviction cannot extend the window.
	if time.Now().After(stored.ExpiresAt) {
		return nil, xerrors.ErrInvalidChallenge
	}

	return &mfa.Challenge{
		ID:        stored.ID,
		OwnerID:   stored.OwnerID,
		Methods:   stored.Methods,
		CreatedAt: stored.CreatedAt,
		ExpiresAt: stored.ExpiresAt,
	}, nil
}
