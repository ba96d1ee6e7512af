package coordinator

import (
	"context"
	"sync"
)

// Locker provides the per-trip exclusive critical section. Every mutating
// operation on a trip runs under its lock; operations on different trips
// never contend.
type Locker interface {
	// Lock acquires the lock for tripID, honoring context cancellation
	// while waiting. The returned function releases the lock.
	Lock(ctx context.Context, tripID string) (func(), error)
}

// KeyedMutex is the in-process Locker for a single-instance deployment.
// A horizontally scaled deployment swaps in the Redis-backed locker.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]chan struct{})}
}

func (k *KeyedMutex) Lock(ctx context.Context, tripID string) (func(), error) {
	k.mu.Lock()
	ch, ok := k.locks[tripID]
	if !ok {
		ch = make(chan struct{}, 1)
		k.locks[tripID] = ch
	}
	k.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
