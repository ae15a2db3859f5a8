package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cordum/playground/core/infra/logging"
	"github.com/google/uuid"
)

const (
	defaultLockTTL  = 30 * time.Second
	defaultLockWait = 45 * time.Second
	lockPollEvery   = 100 * time.Millisecond
)

// ErrGuardBusy is reported when another submission kept the guard lock past
// the wait budget.
var ErrGuardBusy = errors.New("guard is busy in another session")

func guardResource(guardID string) string {
	return "guard:" + guardID
}

// holdGuard serializes chat calls that build or use the same remote guard,
// across sessions and replicas sharing the lock store. The lock is renewed
// until the returned release runs. A lock store failure degrades to running
// unlocked.
func (d *Dispatcher) holdGuard(ctx context.Context, guardID string) (func(), error) {
	if d.locks == nil || guardID == "" {
		return func() {}, nil
	}
	resource := guardResource(guardID)
	owner := uuid.NewString()
	deadline := d.now().Add(d.lockWait)
	for {
		_, ok, err := d.locks.Acquire(ctx, resource, owner, d.lockTTL)
		if err != nil {
			logging.Error("dispatcher", "guard lock unavailable", "resource", resource, "error", err)
			return func() {}, nil
		}
		if ok {
			break
		}
		if !d.now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrGuardBusy, guardID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollEvery):
		}
	}

	stop := make(chan struct{})
	renewed := make(chan struct{})
	go func() {
		defer close(renewed)
		ticker := time.NewTicker(d.lockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				held, err := d.locks.Renew(context.WithoutCancel(ctx), resource, owner, d.lockTTL)
				if err != nil || !held {
					logging.Error("dispatcher", "guard lock renew failed", "resource", resource, "held", held, "error", err)
				}
			}
		}
	}()
	return func() {
		close(stop)
		<-renewed
		if _, err := d.locks.Release(context.WithoutCancel(ctx), resource, owner); err != nil {
			logging.Error("dispatcher", "release guard lock", "resource", resource, "error", err)
		}
	}, nil
}
