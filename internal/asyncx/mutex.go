package asyncx

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrQueueFull is returned by QueueMutex.Acquire when the pending
// queue has reached its cap.
var ErrQueueFull = errors.New("asyncx: acquisition queue full")

// QueueMutex is a mutual-exclusion lock with a bounded acquisition
// queue. Once the number of waiters (including the holder) reaches the
// cap, further Acquire calls fail fast with ErrQueueFull instead of
// queueing without bound.
type QueueMutex struct {
	sem     chan struct{}
	pending atomic.Int64
	cap     int64
}

// NewQueueMutex creates a QueueMutex allowing at most maxPending
// concurrent holders-plus-waiters. maxPending must be at least 1.
func NewQueueMutex(maxPending int) *QueueMutex {
	if maxPending < 1 {
		maxPending = 1
	}
	return &QueueMutex{
		sem: make(chan struct{}, 1),
		cap: int64(maxPending),
	}
}

// Acquire takes the lock, blocking behind earlier holders. It returns
// a release function that must be called exactly once, or an error if
// the queue is full or the context is done while waiting.
func (m *QueueMutex) Acquire(ctx context.Context) (func(), error) {
	if m.pending.Add(1) > m.cap {
		m.pending.Add(-1)
		return nil, ErrQueueFull
	}

	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		m.pending.Add(-1)
		return nil, ctx.Err()
	}

	var released atomic.Bool
	return func() {
		if released.CompareAndSwap(false, true) {
			<-m.sem
			m.pending.Add(-1)
		}
	}, nil
}

// Pending returns the current number of holders plus waiters.
func (m *QueueMutex) Pending() int {
	return int(m.pending.Load())
}
