// Package locker serializes mutations per instance id. Different instances
// proceed in parallel; callers touching the same instance queue behind a
// single in-process semaphore.
package locker

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const DefaultIdleTTL = 10 * time.Minute

type entry struct {
	sem chan struct{}

	// refs counts holders plus waiters, guarded by the locker mutex. While
	// it is non-zero the entry is pinned and cannot expire.
	refs int
}

// Locker hands out per-key exclusive locks. Idle entries are evicted after
// the TTL; held or contended entries are pinned until the last interested
// caller releases, so a live critical section is never granted twice.
type Locker struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, *entry]
}

func New(idleTTL time.Duration) *Locker {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}

	c := ttlcache.New(
		ttlcache.WithTTL[string, *entry](idleTTL),
	)

	go c.Start()

	return &Locker{cache: c}
}

// Acquire blocks until the lock for key is held or ctx is done. The
// returned function releases the lock.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	var e *entry
	if item := l.cache.Get(key); item != nil {
		e = item.Value()
	} else {
		e = &entry{sem: make(chan struct{}, 1)}
	}

	e.refs++
	l.cache.Set(key, e, ttlcache.NoTTL)
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		return func() {
			<-e.sem
			l.unref(key, e)
		}, nil
	case <-ctx.Done():
		l.unref(key, e)
		return nil, ctx.Err()
	}
}

// unref drops one holder or waiter; the last one restarts the idle clock.
func (l *Locker) unref(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		l.cache.Set(key, e, ttlcache.DefaultTTL)
	}
}

// Len returns the number of tracked keys.
func (l *Locker) Len() int {
	return l.cache.Len()
}

// Close stops the eviction loop.
func (l *Locker) Close() {
	l.cache.Stop()
}
