package asyncx

import (
	"sync"
	"time"
)

// Debounce coalesces rapid calls into a single invocation of the most
// recently supplied function. Every caller that arrived during the
// debounce window blocks until the window fires and then observes the
// same outcome.
type Debounce struct {
	delay time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	fn      func() error
	waiters []chan error
}

// NewDebounce creates a debouncer with the given quiet window.
func NewDebounce(delay time.Duration) *Debounce {
	return &Debounce{delay: delay}
}

// Call schedules fn and blocks until the debounce window fires. If
// further calls arrive before the window elapses, the window restarts
// and only the last fn runs; all blocked callers share its result.
func (d *Debounce) Call(fn func() error) error {
	ch := make(chan error, 1)

	d.mu.Lock()
	d.fn = fn
	d.waiters = append(d.waiters, ch)
	if d.timer == nil {
		d.timer = time.AfterFunc(d.delay, d.fire)
	} else {
		d.timer.Reset(d.delay)
	}
	d.mu.Unlock()

	return <-ch
}

func (d *Debounce) fire() {
	d.mu.Lock()
	fn := d.fn
	waiters := d.waiters
	d.fn = nil
	d.waiters = nil
	d.timer = nil
	d.mu.Unlock()

	if fn == nil {
		return
	}
	err := fn()
	for _, ch := range waiters {
		ch <- err
	}
}
