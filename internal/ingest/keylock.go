package ingest

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// keyLock hands out one binary semaphore per key. Entries are reference
// counted and removed when the last holder or waiter lets go, so the map
// only holds keys that are in use.
type keyLock struct {
	mu      sync.Mutex
	entries map[string]*keyLockEntry
}

type keyLockEntry struct {
	sem  *semaphore.Weighted
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{entries: make(map[string]*keyLockEntry)}
}

// Lock blocks until key is free or ctx is done. The returned func releases
// the lock and must be called exactly once.
func (k *keyLock) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyLockEntry{sem: semaphore.NewWeighted(1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		k.drop(key, e)
		return nil, err
	}

	return func() {
		e.sem.Release(1)
		k.drop(key, e)
	}, nil
}

func (k *keyLock) drop(key string, e *keyLockEntry) {
	k.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
	k.mu.Unlock()
}

// size returns the number of keys currently tracked.
func (k *keyLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
