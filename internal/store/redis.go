package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	sessionPrefix = "jas:session:"
	opTimeout     = 2 * time.Second
)

// RedisStore keeps the session in one Redis hash so it survives a restart
// of the host process. Every write refreshes the TTL of the whole hash;
// when the session goes idle for longer than the TTL, Redis forgets it,
// which is the browser-session-end behaviour.
type RedisStore struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewRedisStore scopes a store to sessionID. An empty sessionID starts a
// fresh session.
func NewRedisStore(rdb *redis.Client, sessionID string, ttl time.Duration) *RedisStore {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &RedisStore{
		rdb: rdb,
		key: sessionPrefix + sessionID,
		ttl: ttl,
	}
}

// SessionID returns the id the store is scoped to.
func (s *RedisStore) SessionID() string {
	return strings.TrimPrefix(s.key, sessionPrefix)
}

// Get treats Redis errors as a missing value; the caller degrades the same
// way it does for a key that was never written.
func (s *RedisStore) Get(key string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	v, err := s.rdb.HGet(ctx, s.key, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		slog.Warn("session get failed", "key", key, "error", err)
		return "", false
	}
	return v, true
}

func (s *RedisStore) Set(key, value string) error {
	err := s.write(func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.HSet(ctx, s.key, key, value)
	})
	if err != nil {
		return fmt.Errorf("failed to save session key %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Remove(key string) error {
	err := s.write(func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.HDel(ctx, s.key, key)
	})
	if err != nil {
		return fmt.Errorf("failed to remove session key %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Keys() []string {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	keys, err := s.rdb.HKeys(ctx, s.key).Result()
	if err != nil {
		slog.Warn("session keys failed", "error", err)
		return nil
	}
	sort.Strings(keys)
	return keys
}

func (s *RedisStore) Clear() error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// write runs fn and the TTL refresh in one transaction.
func (s *RedisStore) write(fn func(context.Context, redis.Pipeliner)) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fn(ctx, pipe)
		if s.ttl > 0 {
			pipe.Expire(ctx, s.key, s.ttl)
		}
		return nil
	})
	return err
}
