// Package lock provides per-machine mutual exclusion with bounded wait and
// lease expiry. Every mutation path for a machine uses MachineKey.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotAcquired is returned when the key stayed locked for the whole wait budget.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker grants exclusive, lease-bounded ownership of a key.
type Locker interface {
	// Acquire blocks for at most wait. The grant expires after lease even if never released.
	Acquire(ctx context.Context, key string, lease, wait time.Duration) (Handle, error)
}

// Handle is a granted lock. Release is idempotent and never releases a newer holder's grant.
type Handle interface {
	Release()
}

// MachineKey is the lock key shared by signal processing, offline marking and healing.
func MachineKey(machineID string) string {
	return "machine:monitor:" + machineID
}

// sleepCtx waits d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
