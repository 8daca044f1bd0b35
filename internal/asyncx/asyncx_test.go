package asyncx

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFutureResolveOnce(t *testing.T) {
	f := NewFuture[int]()

	assert.True(t, f.Resolve(1))
	assert.False(t, f.Resolve(2))
	assert.False(t, f.Reject(errors.New("late")))

	// Repeated awaits observe the cached resolution.
	for i := 0; i < 3; i++ {
		v, err := f.Await(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, v)
	}
}

func TestFutureReject(t *testing.T) {
	boom := errors.New("boom")
	f := Rejected[string](boom)

	_, err := f.Await(context.Background())
	assert.ErrorIs(t, err, boom)

	_, err, settled := f.Peek()
	assert.True(t, settled)
	assert.ErrorIs(t, err, boom)
}

func TestFutureAwaitContextCancel(t *testing.T) {
	f := NewFuture[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, f.Settled())
}

func TestFutureConcurrentSettlement(t *testing.T) {
	f := NewFuture[int]()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if f.Resolve(n) {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestQueueMutexSerializes(t *testing.T) {
	m := NewQueueMutex(32)

	var inside atomic.Int32
	var max atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := m.Acquire(context.Background())
			require.NoError(t, err)
			n := inside.Add(1)
			if n > max.Load() {
				max.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), max.Load())
	assert.Equal(t, 0, m.Pending())
}

func TestQueueMutexFailsFastWhenFull(t *testing.T) {
	m := NewQueueMutex(2)

	release, err := m.Acquire(context.Background())
	require.NoError(t, err)

	// Second acquisition queues up in the background.
	acquired := make(chan func(), 1)
	go func() {
		r, err := m.Acquire(context.Background())
		require.NoError(t, err)
		acquired <- r
	}()

	// Wait for the waiter to register.
	require.Eventually(t, func() bool { return m.Pending() == 2 },
		time.Second, time.Millisecond)

	// Third attempt exceeds the cap.
	_, err = m.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrQueueFull)

	release()
	r2 := <-acquired
	r2()

	// Capacity is available again.
	r3, err := m.Acquire(context.Background())
	require.NoError(t, err)
	r3()
}

func TestQueueMutexReleaseIdempotent(t *testing.T) {
	m := NewQueueMutex(4)

	release, err := m.Acquire(context.Background())
	require.NoError(t, err)
	release()
	release() // second call is a no-op

	assert.Equal(t, 0, m.Pending())
}

func TestDebounceCoalesces(t *testing.T) {
	d := NewDebounce(20 * time.Millisecond)

	var calls atomic.Int32
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = d.Call(func() error {
				calls.Add(1)
				return nil
			})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestDebounceSharedFailure(t *testing.T) {
	d := NewDebounce(10 * time.Millisecond)
	boom := errors.New("resize failed")

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = d.Call(func() error { return boom })
		}(i)
	}
	wg.Wait()

	// Every coalesced caller observes the same rejection.
	for _, err := range errs {
		assert.ErrorIs(t, err, boom)
	}
}

func TestDebounceLastFunctionWins(t *testing.T) {
	d := NewDebounce(25 * time.Millisecond)

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(n int32) {
			defer wg.Done()
			_ = d.Call(func() error {
				ran.Store(n)
				return nil
			})
		}(int32(i))
		time.Sleep(2 * time.Millisecond)
	}
	wg.Wait()

	// Exactly one invocation happened, and it was one of the supplied
	// functions (the latest registered when the window fired).
	assert.NotZero(t, ran.Load())
}
