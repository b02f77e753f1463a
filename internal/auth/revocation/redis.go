package revocation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shoply/gateway/internal/observability"
)

// Hash field names for Redis entries.
const (
	fieldUserID      = "user_id"
	fieldEmail       = "email"
	fieldRole        = "role"
	fieldCreatedAt   = "created_at"
	fieldBlacklisted = "blacklisted"
)

// scanBatchSize is the COUNT hint for SCAN during sweeps.
const scanBatchSize = 100

// RedisStore is a Redis-backed revocation store. It lets multiple
// gateway instances share revocation state.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	logger    observability.Logger
	now       func() time.Time
}

// RedisOption is a functional option for the Redis store.
type RedisOption func(*RedisStore)

// WithRedisLogger sets the logger for the Redis store.
func WithRedisLogger(logger observability.Logger) RedisOption {
	return func(s *RedisStore) {
		s.logger = logger
	}
}

// WithRedisClock sets the time source for created-at stamps.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(s *RedisStore) {
		s.now = now
	}
}

// NewRedisStore creates a new Redis-backed revocation store.
func NewRedisStore(client redis.UniversalClient, keyPrefix string, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    observability.NopLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// key returns the Redis key for a token.
func (s *RedisStore) key(token string) string {
	return s.keyPrefix + token
}

// Record inserts or overwrites the entry for the token.
func (s *RedisStore) Record(ctx context.Context, token string, userID int64, email, role string) error {
	err := s.client.HSet(ctx, s.key(token),
		fieldUserID, strconv.FormatInt(userID, 10),
		fieldEmail, email,
		fieldRole, role,
		fieldCreatedAt, s.now().UTC().Format(time.RFC3339Nano),
		fieldBlacklisted, "0",
	).Err()
	if err != nil {
		return fmt.Errorf("failed to record token: %w", err)
	}
	return nil
}

// Blacklist marks a known token as revoked.
func (s *RedisStore) Blacklist(ctx context.Context, token string) (bool, error) {
	exists, err := s.client.Exists(ctx, s.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token: %w", err)
	}
	if exists == 0 {
		return false, nil
	}

	if err := s.client.HSet(ctx, s.key(token), fieldBlacklisted, "1").Err(); err != nil {
		return false, fmt.Errorf("failed to blacklist token: %w", err)
	}
	return true, nil
}

// IsBlacklisted reports whether the token has been revoked.
func (s *RedisStore) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	value, err := s.client.HGet(ctx, s.key(token), fieldBlacklisted).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read token: %w", err)
	}
	return value == "1", nil
}

// Sweep scans the key space and removes entries whose token fails
// verification.
func (s *RedisStore) Sweep(ctx context.Context, verify func(token string) error) (int, error) {
	removed := 0
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", scanBatchSize).Iterator()

	for iter.Next(ctx) {
		key := iter.Val()
		token := key[len(s.keyPrefix):]
		if verify(token) == nil {
			continue
		}
		if err := s.client.Del(ctx, key).Err(); err != nil {
			s.logger.Warn("failed to delete swept token", observability.Error(err))
			continue
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("sweep scan failed: %w", err)
	}
	return removed, nil
}

// Len returns the current number of entries.
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	count := 0
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scan failed: %w", err)
	}
	return count, nil
}
