package lock

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrLockNotAcquired = errors.New("provider lock not acquired")
)

// Locker is used by the allocation service to run one provider's operations
// one at a time.
type Locker interface {
	WithProviderLock(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context) error) error
}

type memoryLocker struct {
	mu    sync.Mutex
	slots map[uuid.UUID]chan struct{}
}

// NewMemoryLocker creates a locker for a single process. Waiters give up
// when their context is done.
func NewMemoryLocker() Locker {
	return &memoryLocker{
		slots: make(map[uuid.UUID]chan struct{}),
	}
}

func (l *memoryLocker) sem(providerID uuid.UUID) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.slots[providerID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[providerID] = ch
	}
	return ch
}

func (l *memoryLocker) WithProviderLock(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context) error) error {
	ch := l.sem(providerID)

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return errors.Join(ErrLockNotAcquired, ctx.Err())
	}
	defer func() { <-ch }()

	return fn(ctx)
}
