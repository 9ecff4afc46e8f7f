package lock

import (
	"context"
	"sync"
	"time"
)

type localSlot struct {
	ch   chan struct{}
	refs int
}

// Local is an in-process Locker. Slots are created on demand and dropped once
// nobody holds or waits for them.
type Local struct {
	wait  time.Duration
	mu    sync.Mutex
	slots map[string]*localSlot
}

// NewLocal builds a Local that gives up after wait. A non-positive wait only
// honours ctx.
func NewLocal(wait time.Duration) *Local {
	return &Local{wait: wait, slots: map[string]*localSlot{}}
}

// Acquire blocks until key is free, the wait elapses or ctx ends.
func (l *Local) Acquire(ctx context.Context, key string) (Release, error) {
	slot := l.ref(key)

	var timeout <-chan time.Time
	if l.wait > 0 {
		timer := time.NewTimer(l.wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case slot.ch <- struct{}{}:
	case <-timeout:
		l.unref(key)
		return nil, ErrTimeout
	case <-ctx.Done():
		l.unref(key)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.ch
			l.unref(key)
		})
	}, nil
}

func (l *Local) ref(key string) *localSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &localSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	return slot
}

func (l *Local) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[key]
	if !ok {
		return
	}
	slot.refs--
	if slot.refs <= 0 {
		delete(l.slots, key)
	}
}

func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
