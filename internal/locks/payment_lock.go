package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"torashaout/internal/logger"
)

const paymentLockPrefix = "payment_lock:"

// DefaultPaymentLockTTL bounds how long a crashed request can hold a booking.
const DefaultPaymentLockTTL = 30 * time.Second

// Redis holds short-lived per-booking payment locks. The lock only narrows
// contention; the payments table's unique index remains the authority.
type Redis struct {
	Client *redis.Client
	Logger *logger.Logger
	TTL    time.Duration
}

func NewRedis(client *redis.Client, log *logger.Logger) *Redis {
	return &Redis{
		Client: client,
		Logger: log,
		TTL:    DefaultPaymentLockTTL,
	}
}

// LockPayment tries to take the booking's payment lock for owner.
func (r *Redis) LockPayment(ctx context.Context, bookingID, owner string) (bool, error) {
	ttl := r.TTL
	if ttl <= 0 {
		ttl = DefaultPaymentLockTTL
	}
	ok, err := r.Client.SetNX(ctx, paymentLockPrefix+bookingID, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock payment %s: %w", bookingID, err)
	}
	if !ok {
		r.Logger.Debug("REDIS", fmt.Sprintf("payment lock for %s already held", bookingID))
	}
	return ok, nil
}

// UnlockPayment releases the lock if owner still holds it.
func (r *Redis) UnlockPayment(ctx context.Context, bookingID, owner string) error {
	key := paymentLockPrefix + bookingID
	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if val == owner {
		_, err := r.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}
