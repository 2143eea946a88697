package locks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"
)

// ErrBusy is returned when a mutex is held elsewhere.
var ErrBusy = errors.New("lock is held by another process")

// Locker hands out named mutexes that are tried once and never waited on.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (release func(), err error)
}

// Redsync is a Locker shared across instances through Redis.
type Redsync struct {
	rs *redsync.Redsync
}

func NewRedsync(client *redis.Client) *Redsync {
	pool := goredis.NewPool(client)
	return &Redsync{rs: redsync.New(pool)}
}

func (r *Redsync) TryLock(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	mutex := r.rs.NewMutex(name,
		redsync.WithExpiry(ttl),
		redsync.WithTries(1),
	)
	if err := mutex.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) || strings.Contains(err.Error(), "lock already taken") {
			return nil, ErrBusy
		}
		return nil, fmt.Errorf("acquire %s: %w", name, err)
	}
	return func() {
		// a fresh context so cancellation of the request still releases the lock
		_, _ = mutex.UnlockContext(context.Background())
	}, nil
}

// Local is an in-process Locker and payment gate for single-instance deployments
// without Redis.
type Local struct {
	mu   sync.Mutex
	held map[string]string
}

func NewLocal() *Local {
	return &Local{held: make(map[string]string)}
}

func (l *Local) TryLock(_ context.Context, name string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[name]; ok {
		return nil, ErrBusy
	}
	l.held[name] = name
	return func() {
		l.mu.Lock()
		delete(l.held, name)
		l.mu.Unlock()
	}, nil
}

func (l *Local) LockPayment(_ context.Context, bookingID, owner string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := paymentLockPrefix + bookingID
	if _, ok := l.held[key]; ok {
		return false, nil
	}
	l.held[key] = owner
	return true, nil
}

func (l *Local) UnlockPayment(_ context.Context, bookingID, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := paymentLockPrefix + bookingID
	if l.held[key] == owner {
		delete(l.held, key)
	}
	return nil
}
