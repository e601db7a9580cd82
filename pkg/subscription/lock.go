package subscription

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Locker provides mutual exclusion keyed by string.
// The returned unlock function is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

func subscriptionLockKey(id uuid.UUID) string { return "subscription:" + id.String() }

func planLockKey(id PlanID) string { return "plan:" + string(id) }

func ownerLockKey(id uuid.UUID) string { return "owner:" + id.String() }

var _ Locker = (*MemoryLocker)(nil)

// MemoryLocker is an in-process Locker. Waiting honours context cancellation.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewMemoryLocker returns an in-process Locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*keyLock)}
}

// Lock blocks until key is free or ctx is done. A cancelled wait returns
// ErrLockTimeout joined with the context error.
func (l *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-kl.ch
				l.release(key, kl)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, kl)
		return nil, errors.Join(ErrLockTimeout, ctx.Err())
	}
}

func (l *MemoryLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}
