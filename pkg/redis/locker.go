package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/cashier/pkg/subscription"
)

// releaseScript deletes the lock only if it still holds our token, so an
// expired lock taken over by another holder is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lock only while it still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var _ subscription.Locker = (*Locker)(nil)

// Locker is a distributed subscription.Locker built on SET NX PX.
// While a lock is held its TTL is renewed every third of the TTL, so a slow
// critical section keeps the lock. A holder that dies stops renewing and the
// lock expires after one TTL.
type Locker struct {
	client         redis.UniversalClient
	prefix         string
	ttl            time.Duration
	retryInterval  time.Duration
	releaseTimeout time.Duration
}

// LockerOption configures a Locker.
type LockerOption func(*Locker)

// WithLockPrefix sets the key prefix prepended to every lock key.
func WithLockPrefix(prefix string) LockerOption {
	return func(l *Locker) { l.prefix = prefix }
}

// WithLockTTL sets the lease length. Held locks are renewed every ttl/3.
func WithLockTTL(ttl time.Duration) LockerOption {
	return func(l *Locker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithRetryInterval sets how long Lock waits between attempts on a held key.
func WithRetryInterval(d time.Duration) LockerOption {
	return func(l *Locker) {
		if d > 0 {
			l.retryInterval = d
		}
	}
}

// NewLocker returns a Locker on client. It panics if client is nil.
func NewLocker(client redis.UniversalClient, opts ...LockerOption) *Locker {
	if client == nil {
		panic("redis: client is required")
	}
	l := &Locker{
		client:         client,
		prefix:         "cashier:lock:",
		ttl:            30 * time.Second,
		retryInterval:  50 * time.Millisecond,
		releaseTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock blocks until key is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	k := l.prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Join(subscription.ErrLockTimeout, ctx.Err())
			}
			return nil, errors.Join(ErrLockFailed, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(subscription.ErrLockTimeout, ctx.Err())
		case <-time.After(l.retryInterval):
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.renew(k, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			ctx, cancel := context.WithTimeout(context.Background(), l.releaseTimeout)
			defer cancel()
			_ = releaseScript.Run(ctx, l.client, []string{k}, token).Err()
		})
	}, nil
}

// renew keeps extending the lock until stop is closed or the lock is lost.
func (l *Locker) renew(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.releaseTimeout)
			n, err := renewScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int64()
			cancel()
			if err == nil && n == 0 {
				return
			}
		}
	}
}
