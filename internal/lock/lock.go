package lock

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
)

var ErrNotAcquired = errors.New("lock not acquired")

// Locker serializes work on a single key across callers.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

func ComplaintKey(complaintID string) string {
	return "complaint:" + complaintID
}

const stripes = 256

// Local is an in-process Locker. Keys hash onto a fixed set of mutexes, so
// unrelated keys may occasionally share a stripe.
type Local struct {
	slots [stripes]chan struct{}
	once  sync.Once
}

func (l *Local) init() {
	for i := range l.slots {
		l.slots[i] = make(chan struct{}, 1)
	}
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.once.Do(l.init)
	slot := l.slots[hashKey(key)%stripes]
	select {
	case slot <- struct{}{}:
		var released sync.Once
		return func() { released.Do(func() { <-slot }) }, nil
	case <-ctx.Done():
		return nil, errors.Join(ErrNotAcquired, ctx.Err())
	}
}

func hashKey(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
