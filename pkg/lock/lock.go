// Package lock provides keyed mutual exclusion with a bounded wait.
package lock

import (
	"context"
	"errors"
)

// ErrTimeout is returned when a key could not be acquired within the wait bound.
var ErrTimeout = errors.New("lock: wait exceeded")

// Release gives the key back. It is safe to call more than once.
type Release func()

// Locker serializes work per key.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}
