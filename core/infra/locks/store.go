// Package locks provides exclusive, expiring locks used to keep one chat call
// in flight per remote guard id.
package locks

import (
	"context"
	"errors"
	"time"
)

// ErrNotHeld is returned by Get when nobody holds the resource.
var ErrNotHeld = errors.New("lock not held")

const defaultTTL = 2 * time.Minute

// Lock captures the current owner of a resource.
type Lock struct {
	Resource  string    `json:"resource"`
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store manages exclusive resource locks. Acquire reports false without an
// error when another owner holds the resource.
type Store interface {
	Acquire(ctx context.Context, resource, owner string, ttl time.Duration) (*Lock, bool, error)
	Release(ctx context.Context, resource, owner string) (bool, error)
	Renew(ctx context.Context, resource, owner string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, resource string) (*Lock, error)
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultTTL
	}
	return ttl
}
