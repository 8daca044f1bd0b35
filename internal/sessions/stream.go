package sessions

import (
	"io"
	"sync"
)

// broadcaster fans one byte stream out to any number of subscribers.
// Process output is read once and delivered to every attached viewer,
// which is what lets Pipe be called multiple times on one session.
type broadcaster struct {
	mu   sync.Mutex
	subs map[int]func(string)
	next int
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]func(string))}
}

func (b *broadcaster) subscribe(fn func(string)) (off func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

func (b *broadcaster) publish(chunk string) {
	b.mu.Lock()
	subs := make([]func(string), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		fn(chunk)
	}
}

// pump reads r until EOF or error, publishing each chunk.
func (b *broadcaster) pump(r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			b.publish(string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}
