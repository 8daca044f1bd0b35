package adapter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/termbed/termbed/internal/asyncx"
	"github.com/termbed/termbed/internal/logging"
	"github.com/termbed/termbed/internal/sessions"
	"github.com/termbed/termbed/internal/surface"
)

const defaultResizeDelay = 250 * time.Millisecond

// Factory creates the session an adapter drives. It runs at most once,
// on first use.
type Factory func() (sessions.Pseudoterminal, error)

// Options tune an Adapter.
type Options struct {
	Logger *logging.Logger

	// ResizeDelay is the quiet window for coalescing resize bursts.
	ResizeDelay time.Duration

	// Initial restores a previously serialized surface before the
	// session attaches.
	Initial *surface.State
}

// Adapter couples one display surface with one session. The session is
// created lazily on first use and piped to the surface; resize bursts
// are debounced so only the final geometry is applied.
type Adapter struct {
	log     *logging.Logger
	surf    surface.Surface
	factory Factory
	resize  *asyncx.Debounce

	mu  sync.Mutex
	fut *asyncx.Future[sessions.Pseudoterminal]

	geoMu sync.Mutex
	cols  int
	rows  int
}

// New wraps a surface. When initial state is given, the surface is
// resized and replayed before anything attaches to it.
func New(surf surface.Surface, factory Factory, opts Options) (*Adapter, error) {
	if opts.ResizeDelay <= 0 {
		opts.ResizeDelay = defaultResizeDelay
	}
	if opts.Initial != nil {
		if err := surf.Resize(opts.Initial.Columns, opts.Initial.Rows); err != nil {
			return nil, fmt.Errorf("restore geometry: %w", err)
		}
		if opts.Initial.Data != "" {
			data := strings.ReplaceAll(opts.Initial.Data, "\n", "\r\n")
			if err := surf.Write(data); err != nil {
				return nil, fmt.Errorf("restore contents: %w", err)
			}
		}
	}
	return &Adapter{
		log:     opts.Logger.OrNop().Named("adapter"),
		surf:    surf,
		factory: factory,
		resize:  asyncx.NewDebounce(opts.ResizeDelay),
		cols:    surf.Cols(),
		rows:    surf.Rows(),
	}, nil
}

// Surface returns the adapted surface.
func (a *Adapter) Surface() surface.Surface { return a.surf }

// Session returns the adapter's session, creating and piping it on the
// first call. Creation happens once; a creation failure is cached and
// returned to every subsequent caller.
func (a *Adapter) Session(ctx context.Context) (sessions.Pseudoterminal, error) {
	a.mu.Lock()
	fut := a.fut
	if fut == nil {
		fut = asyncx.NewFuture[sessions.Pseudoterminal]()
		a.fut = fut
		a.mu.Unlock()

		term, err := a.factory()
		if err != nil {
			fut.Reject(fmt.Errorf("create session: %w", err))
		} else if err := term.Pipe(a.surf); err != nil {
			fut.Reject(fmt.Errorf("attach surface: %w", err))
		} else {
			fut.Resolve(term)
		}
	} else {
		a.mu.Unlock()
	}
	return fut.Await(ctx)
}

// Started reports whether the session has been created (or its
// creation attempted).
func (a *Adapter) Started() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fut != nil
}

// Resize records the requested geometry and blocks through the
// debounce window. Bursts coalesce: only the most recent geometry is
// applied, to the surface and then to the session when it supports
// resizing. All coalesced callers observe the same outcome.
func (a *Adapter) Resize(cols, rows int) error {
	a.geoMu.Lock()
	a.cols, a.rows = cols, rows
	a.geoMu.Unlock()

	return a.resize.Call(a.applyResize)
}

func (a *Adapter) applyResize() error {
	a.geoMu.Lock()
	cols, rows := a.cols, a.rows
	a.geoMu.Unlock()

	if err := a.surf.Resize(cols, rows); err != nil {
		return err
	}

	a.mu.Lock()
	fut := a.fut
	a.mu.Unlock()
	if fut == nil {
		return nil
	}
	term, err, settled := fut.Peek()
	if !settled || err != nil {
		return nil
	}
	if r, ok := term.(sessions.Resizable); ok {
		if err := r.Resize(cols, rows); err != nil {
			a.log.Warn("session resize failed",
				zap.Int("cols", cols), zap.Int("rows", rows), zap.Error(err))
			return err
		}
	}
	return nil
}

// Close kills the session if it is still running and disposes the
// surface. When the kill fails the surface is left intact so the
// viewer keeps whatever the session last displayed.
func (a *Adapter) Close() error {
	a.mu.Lock()
	fut := a.fut
	a.mu.Unlock()

	if fut != nil {
		term, err, settled := fut.Peek()
		if settled && err == nil && !term.Exit().Settled() {
			if err := term.Kill(); err != nil {
				return fmt.Errorf("could not kill session: %w", err)
			}
		}
	}
	a.surf.Dispose()
	return nil
}

// Serialize snapshots the surface for later restoration.
func (a *Adapter) Serialize() surface.State {
	return a.surf.Serialize()
}
