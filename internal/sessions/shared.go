package sessions

import (
	"context"
	"sync"

	"github.com/termbed/termbed/internal/asyncx"
	"github.com/termbed/termbed/internal/surface"
)

// refCell is the counter shared by every wrapper in one Dup chain. No
// wrapper individually owns it; it lives as long as the longest-lived
// wrapper. Mutation is synchronous (no suspension inside the
// read-modify-write), so concurrent Dup/Kill cannot race.
type refCell struct {
	mu sync.Mutex
	n  int
}

// Shared is a reference-counted view of one underlying session. Each
// viewer holds its own wrapper; only the last Kill tears the real
// session down, while earlier Kills resolve their own exit future with
// a synthetic success immediately.
type Shared struct {
	inner Pseudoterminal
	cell  *refCell
	exit  *asyncx.Future[ExitStatus]
}

var _ Pseudoterminal = (*Shared)(nil)
var _ Resizable = (*Shared)(nil)

// Share wraps a session with the counter at 1.
func Share(inner Pseudoterminal) *Shared {
	s := &Shared{
		inner: inner,
		cell:  &refCell{n: 1},
		exit:  asyncx.NewFuture[ExitStatus](),
	}
	s.mirror()
	return s
}

// mirror settles this wrapper's exit future from the underlying
// session's, unless a non-final Kill settled it first.
func (s *Shared) mirror() {
	go func() {
		st, err := s.inner.Exit().Await(context.Background())
		if err != nil {
			s.exit.Reject(err)
			return
		}
		s.exit.Resolve(st)
	}()
}

// Dup returns a new wrapper sharing the same underlying session and
// counter cell.
func (s *Shared) Dup() *Shared {
	s.cell.mu.Lock()
	s.cell.n++
	s.cell.mu.Unlock()

	d := &Shared{inner: s.inner, cell: s.cell, exit: asyncx.NewFuture[ExitStatus]()}
	d.mirror()
	return d
}

// Kill decrements the shared counter. The real session is killed only
// when the counter reaches zero or below; otherwise this wrapper's own
// exit resolves with a synthetic success without touching the process.
func (s *Shared) Kill() error {
	s.cell.mu.Lock()
	s.cell.n--
	last := s.cell.n <= 0
	s.cell.mu.Unlock()

	if last {
		return s.inner.Kill()
	}
	s.exit.Resolve(Exited(0))
	return nil
}

func (s *Shared) Handle() Handle { return s.inner.Handle() }

func (s *Shared) Exit() *asyncx.Future[ExitStatus] { return s.exit }

func (s *Shared) Pipe(sf surface.Surface) error { return s.inner.Pipe(sf) }

func (s *Shared) Resize(cols, rows int) error {
	if rz, ok := s.inner.(Resizable); ok {
		return rz.Resize(cols, rows)
	}
	return ErrResizeDisabled
}
