// Package session binds real-time connection session ids to user ids in Redis, so every
// gateway process resolves the same bidder for a session until the binding expires.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "socket:session#"
	userField = "user"
)

// Store is the session binding contract used by the gateway
type Store interface {
	// Save (re)writes the binding and restarts its TTL
	Save(ctx context.Context, sessionID string, userID uuid.UUID) error
	// Find reports ok=false when the binding was never written or has expired
	Find(ctx context.Context, sessionID string) (userID uuid.UUID, ok bool, err error)
}

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func key(sessionID string) string {
	return keyPrefix + sessionID
}

func (s *RedisStore) Save(ctx context.Context, sessionID string, userID uuid.UUID) error {
	k := key(sessionID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, userField, userID.String())
		pipe.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session %s: %w", sessionID, err)
	}
	return nil
}

func (s *RedisStore) Find(ctx context.Context, sessionID string) (uuid.UUID, bool, error) {
	raw, err := s.client.HGet(ctx, key(sessionID), userField).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("find session %s: %w", sessionID, err)
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("session %s holds malformed user id %q: %w", sessionID, raw, err)
	}
	return userID, true, nil
}

var _ Store = (*RedisStore)(nil)
