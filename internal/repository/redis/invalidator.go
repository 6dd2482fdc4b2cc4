// Package redis holds the session version counter. Redis INCR is atomic
// across all service instances, so concurrent bumps can never be lost.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sealkeep/sessionvault/internal/model"
)

var _ model.SessionInvalidator = (*SessionVersionStore)(nil)

const versionKeyPrefix = "session_version:"

// SessionVersionStore implements SessionInvalidator on a Redis counter.
// The out-of-scope access-credential verifier reads the same keys.
type SessionVersionStore struct {
	client *redis.Client
}

func NewSessionVersionStore(client *redis.Client) *SessionVersionStore {
	return &SessionVersionStore{client: client}
}

func versionKey(key uuid.UUID) string {
	return versionKeyPrefix + key.String()
}

// BumpVersion advances the counter and returns the new version. Counters
// have no TTL: a stale version that silently resets would re-trust
// credentials minted before a compromise.
func (s *SessionVersionStore) BumpVersion(ctx context.Context, key uuid.UUID) (int64, error) {
	v, err := s.client.Incr(ctx, versionKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to bump session version: %w", err)
	}
	return v, nil
}

// CurrentVersion returns the counter value, zero for a never-bumped key.
func (s *SessionVersionStore) CurrentVersion(ctx context.Context, key uuid.UUID) (int64, error) {
	v, err := s.client.Get(ctx, versionKey(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read session version: %w", err)
	}
	return v, nil
}
