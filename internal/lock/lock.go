package lock

import (
	"context"
	"time"
)

// Locker runs fn while holding an exclusive lock on key. The ttl bounds how
// long a crashed holder can keep the lock; implementations may ignore it.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}
