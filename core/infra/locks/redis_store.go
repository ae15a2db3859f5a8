package locks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cordum/playground/core/infra/redisutil"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisURL = "redis://localhost:6379"
	keyPrefix       = "playground:lock:"
)

// RedisStore shares locks between API replicas.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(url string) (*RedisStore, error) {
	if url == "" {
		url = defaultRedisURL
	}
	client, err := redisutil.NewClient(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Close shuts down the Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Acquire takes the lock when free or already owned by owner.
func (s *RedisStore) Acquire(ctx context.Context, resource, owner string, ttl time.Duration) (*Lock, bool, error) {
	if s == nil || s.client == nil {
		return nil, false, fmt.Errorf("lock store unavailable")
	}
	resource, owner, err := normalizeKey(resource, owner)
	if err != nil {
		return nil, false, err
	}
	ttl = normalizeTTL(ttl)
	res, err := s.client.Eval(ctx, acquireScript, []string{lockKey(resource)}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return nil, false, err
	}
	if res != 1 {
		return nil, false, nil
	}
	return &Lock{Resource: resource, Owner: owner, ExpiresAt: time.Now().UTC().Add(ttl)}, true, nil
}

// Release drops the lock if owner holds it.
func (s *RedisStore) Release(ctx context.Context, resource, owner string) (bool, error) {
	if s == nil || s.client == nil {
		return false, fmt.Errorf("lock store unavailable")
	}
	resource, owner, err := normalizeKey(resource, owner)
	if err != nil {
		return false, err
	}
	res, err := s.client.Eval(ctx, releaseScript, []string{lockKey(resource)}, owner).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// Renew extends the TTL if owner holds the lock.
func (s *RedisStore) Renew(ctx context.Context, resource, owner string, ttl time.Duration) (bool, error) {
	if s == nil || s.client == nil {
		return false, fmt.Errorf("lock store unavailable")
	}
	resource, owner, err := normalizeKey(resource, owner)
	if err != nil {
		return false, err
	}
	ttl = normalizeTTL(ttl)
	res, err := s.client.Eval(ctx, renewScript, []string{lockKey(resource)}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// Get returns the current holder.
func (s *RedisStore) Get(ctx context.Context, resource string) (*Lock, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("lock store unavailable")
	}
	resource = strings.TrimSpace(resource)
	if resource == "" {
		return nil, fmt.Errorf("resource required")
	}
	key := lockKey(resource)
	owner, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotHeld
	}
	if err != nil {
		return nil, err
	}
	lock := &Lock{Resource: resource, Owner: owner}
	if ttl, err := s.client.PTTL(ctx, key).Result(); err == nil && ttl > 0 {
		lock.ExpiresAt = time.Now().UTC().Add(ttl)
	}
	return lock, nil
}

func lockKey(resource string) string {
	return keyPrefix + resource
}

const acquireScript = `
local cur = redis.call("GET", KEYS[1])
if not cur or cur == ARGV[1] then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
  return 1
end
return 0
`

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  redis.call("DEL", KEYS[1])
  return 1
end
return 0
`

const renewScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
  return 1
end
return 0
`
