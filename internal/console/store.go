package console

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultEventCap = 1000
	defaultDepth    = 2
)

// Store is the process-wide log-event history: a bounded append-only
// list plus live subscriptions. Every attached console viewer replays
// it on attach and tails it afterwards.
//
// Recording is synchronous; subscriber notification runs on a single
// dispatch goroutine so a subscriber may itself log without deadlock,
// and events are always delivered in record order.
type Store struct {
	mu     sync.Mutex
	events []*Event
	queue  []*Event
	max    int
	subs   map[int]func(*Event)
	next   int
	seq    int64

	kick  chan struct{}
	done  chan struct{}
	close sync.Once

	depth atomic.Int32
}

// NewStore creates a store keeping at most max events. max <= 0 uses
// the default cap.
func NewStore(max int) *Store {
	if max <= 0 {
		max = defaultEventCap
	}
	s := &Store{
		events: make([]*Event, 0, 64),
		max:    max,
		subs:   make(map[int]func(*Event)),
		kick:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	s.depth.Store(defaultDepth)
	go s.dispatch()
	return s
}

// Close stops the dispatch goroutine. Events already recorded remain
// readable; pending notifications may be dropped.
func (s *Store) Close() {
	s.close.Do(func() { close(s.done) })
}

// Depth returns the current inspection depth used when formatting
// structured values.
func (s *Store) Depth() int { return int(s.depth.Load()) }

// SetDepth changes the inspection depth for future events.
func (s *Store) SetDepth(d int) {
	if d < 0 {
		d = 0
	}
	s.depth.Store(int32(d))
}

// Log records an event and queues subscriber notification.
func (s *Store) Log(kind Level, parts ...any) *Event {
	ev := &Event{
		Kind:  kind,
		Time:  time.Now(),
		Parts: parts,
		depth: s.Depth(),
	}

	s.mu.Lock()
	s.seq++
	ev.seq = s.seq
	s.events = append(s.events, ev)
	if len(s.events) > s.max {
		s.events = s.events[len(s.events)-s.max:]
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
	return ev
}

func (s *Store) Debug(parts ...any) { s.Log(LevelDebug, parts...) }
func (s *Store) Info(parts ...any)  { s.Log(LevelInfo, parts...) }
func (s *Store) Warn(parts ...any)  { s.Log(LevelWarn, parts...) }
func (s *Store) Error(parts ...any) { s.Log(LevelError, parts...) }

// Rejection records an unhandled promise rejection payload.
func (s *Store) Rejection(payload any) { s.Log(LevelRejection, payload) }

// WindowError records an uncaught host error payload.
func (s *Store) WindowError(payload any) { s.Log(LevelWindowError, payload) }

// Events returns a snapshot of the recorded history, oldest first.
func (s *Store) Events() []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Event, len(s.events))
	copy(out, s.events)
	return out
}

// Subscribe attaches a listener for future events. The returned
// function detaches it. Listeners run on the dispatch goroutine.
func (s *Store) Subscribe(fn func(*Event)) (off func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) dispatch() {
	for {
		select {
		case <-s.done:
			return
		case <-s.kick:
		}
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			ev := s.queue[0]
			s.queue = s.queue[1:]
			subs := make([]func(*Event), 0, len(s.subs))
			for _, fn := range s.subs {
				subs = append(subs, fn)
			}
			s.mu.Unlock()
			for _, fn := range subs {
				fn(ev)
			}
		}
	}
}
