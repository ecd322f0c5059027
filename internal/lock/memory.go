package lock

import (
	"context"
	"sync"
	"time"

	"github.com/EagleChen/mapmutex"
	"github.com/google/uuid"
)

// TryLock tuning for one probe round: 5 attempts, 10ms max delay between them.
const (
	probeRetries   = 5
	probeMaxDelay  = 10_000_000 // ns
	probeBaseDelay = 100_000    // ns
	probeFactor    = 1.5
	probeJitter    = 0.2
)

// MapLocker is a single-node Locker on top of a keyed map mutex.
type MapLocker struct {
	mm *mapmutex.Mutex

	mu      sync.Mutex
	holders map[string]*mapHandle
}

// NewMapLocker returns an in-process Locker.
func NewMapLocker() *MapLocker {
	return &MapLocker{
		mm:      mapmutex.NewCustomizedMapMutex(probeRetries, probeMaxDelay, probeBaseDelay, probeFactor, probeJitter),
		holders: make(map[string]*mapHandle),
	}
}

type mapHandle struct {
	owner *MapLocker
	key   string
	token string
	timer *time.Timer
	once  sync.Once
}

// Acquire probes the key until it is granted, ctx is done or wait elapses.
func (l *MapLocker) Acquire(ctx context.Context, key string, lease, wait time.Duration) (Handle, error) {
	deadline := time.Now().Add(wait)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if l.mm.TryLock(key) {
			return l.grant(key, lease), nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrNotAcquired
		}
		if err := sleepCtx(ctx, minDuration(remaining, 5*time.Millisecond)); err != nil {
			return nil, err
		}
	}
}

func (l *MapLocker) grant(key string, lease time.Duration) *mapHandle {
	h := &mapHandle{owner: l, key: key, token: uuid.NewString()}

	l.mu.Lock()
	l.holders[key] = h
	l.mu.Unlock()

	// lease expiry: a holder that never releases loses the key after lease
	h.timer = time.AfterFunc(lease, h.Release)
	return h
}

// Release frees the key if this grant still owns it.
func (h *mapHandle) Release() {
	h.once.Do(func() {
		if h.timer != nil {
			h.timer.Stop()
		}
		l := h.owner
		l.mu.Lock()
		cur, ok := l.holders[h.key]
		owned := ok && cur.token == h.token
		if owned {
			delete(l.holders, h.key)
		}
		l.mu.Unlock()

		if owned {
			l.mm.Unlock(h.key)
		}
	})
}

// held reports whether key is currently granted. Test helper.
func (l *MapLocker) held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.holders[key]
	return ok
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
