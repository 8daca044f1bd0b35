package console

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/termbed/termbed/internal/asyncx"
	"github.com/termbed/termbed/internal/logging"
	"github.com/termbed/termbed/internal/monitoring"
	"github.com/termbed/termbed/internal/sessions"
	"github.com/termbed/termbed/internal/surface"
)

const (
	defaultHistoryMax = 100
	defaultQueueDepth = 32
)

// Options configures the developer-console session.
type Options struct {
	// Store is the process-wide log-event history the console tails.
	Store *Store

	Logger *logging.Logger

	Metrics *monitoring.Metrics

	// HistoryMax bounds the command history.
	HistoryMax int

	// QueueDepth caps the buffer-mutation queue; past it, input is
	// dropped rather than queued without bound.
	QueueDepth int
}

// editor is the per-surface render state: where the prompt area begins
// (the render-start marker), the rows drawn last time (the render-end
// bookmark), and where the real cursor was left.
type editor struct {
	startRow  int
	startCol  int
	rendered  []string
	cursorRow int
	cursorCol int
	seen      int64
	offs      []func()
}

// Session is the in-process developer-console pseudoterminal: a REPL
// over an editable line buffer, command history, code evaluation, and
// log-event tailing, synchronized across every attached surface with
// cursor-accurate incremental redraw.
//
// One instance exists per process, created at startup and passed
// explicitly to whoever needs it.
type Session struct {
	log     *logging.Logger
	store   *Store
	metrics *monitoring.Metrics
	lock    *asyncx.QueueMutex
	exit    *asyncx.Future[sessions.ExitStatus]

	// Guarded by lock (the queue mutex is the sole writer).
	buffer   EditBuffer
	history  []string
	histIdx  int
	histMax  int
	vm       *goja.Runtime
	rejected map[*goja.Promise]struct{}

	mu      sync.Mutex
	editors map[surface.Surface]*editor

	unsubStore func()
}

var _ sessions.Pseudoterminal = (*Session)(nil)

// NewSession creates the console session and starts tailing the store.
func NewSession(opts Options) *Session {
	if opts.Store == nil {
		opts.Store = NewStore(0)
	}
	if opts.HistoryMax <= 0 {
		opts.HistoryMax = defaultHistoryMax
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = defaultQueueDepth
	}

	s := &Session{
		log:      opts.Logger.OrNop().Named("console"),
		store:    opts.Store,
		metrics:  opts.Metrics,
		lock:     asyncx.NewQueueMutex(opts.QueueDepth),
		exit:     asyncx.NewFuture[sessions.ExitStatus](),
		history:  []string{""},
		histIdx:  0,
		histMax:  opts.HistoryMax,
		editors:  make(map[surface.Surface]*editor),
		rejected: make(map[*goja.Promise]struct{}),
	}
	s.vm = s.newRuntime()
	s.unsubStore = opts.Store.Subscribe(s.handleEvent)
	return s
}

// Store returns the log store this console tails.
func (s *Session) Store() *Store { return s.store }

// Handle returns nil: the console runs in-process.
func (s *Session) Handle() sessions.Handle { return nil }

// Exit is the session's exit future, resolved by Kill.
func (s *Session) Exit() *asyncx.Future[sessions.ExitStatus] { return s.exit }

// Kill tears the console down: stops tailing log events, disposes the
// edit buffer, and detaches every surface. A second Kill reports that
// nothing live remained.
func (s *Session) Kill() error {
	if !s.exit.Resolve(sessions.Exited(0)) {
		return sessions.ErrKillFailed
	}
	s.unsubStore()

	if release, err := s.lock.Acquire(context.Background()); err == nil {
		s.buffer.Dispose()
		release()
	}

	s.mu.Lock()
	editors := s.editors
	s.editors = make(map[surface.Surface]*editor)
	s.mu.Unlock()
	for _, ed := range editors {
		for _, off := range ed.offs {
			off()
		}
	}
	return nil
}

// Pipe attaches a surface: replays the full log history as styled
// text, records the render-start marker, and installs input, key, and
// resize handlers. Fails if the session has already exited.
func (s *Session) Pipe(sf surface.Surface) error {
	if s.exit.Settled() {
		return sessions.ErrExited
	}

	release, err := s.lock.Acquire(context.Background())
	if err != nil {
		return err
	}
	defer release()

	var replay strings.Builder
	var seen int64
	for _, ev := range s.store.Events() {
		replay.WriteString(strings.ReplaceAll(ev.Format(), "\n", "\r\n"))
		replay.WriteString("\r\n")
		seen = ev.seq
	}
	if replay.Len() > 0 {
		if err := sf.Write(replay.String()); err != nil {
			return err
		}
	}

	ed := &editor{
		startRow:  sf.CursorY(),
		startCol:  sf.CursorX(),
		cursorRow: sf.CursorY(),
		cursorCol: sf.CursorX(),
		seen:      seen,
	}
	ed.offs = []func(){
		sf.OnData(func(data string) { s.handleInput(data) }),
		sf.OnKey(func(ev surface.KeyEvent) { s.handleKey(ev) }),
		sf.OnResize(func(int, int) { s.handleResize() }),
	}

	s.mu.Lock()
	s.editors[sf] = ed
	s.mu.Unlock()

	s.redrawLocked()
	return nil
}

// Detach removes a closing surface from the editor map and drops its
// render bookkeeping.
func (s *Session) Detach(sf surface.Surface) {
	s.mu.Lock()
	ed, ok := s.editors[sf]
	delete(s.editors, sf)
	s.mu.Unlock()
	if ok {
		for _, off := range ed.offs {
			off()
		}
	}
}

// handleInput applies one raw input chunk to the shared buffer,
// mirrors it into the open history entry, and redraws. Serialized
// through the queue mutex; past the queue cap the chunk is dropped.
func (s *Session) handleInput(data string) {
	release, err := s.lock.Acquire(context.Background())
	if err != nil {
		s.log.Warn("input dropped", zap.Error(err))
		return
	}
	defer release()

	s.buffer.Apply(data)
	s.history[len(s.history)-1] = s.buffer.String()
	s.redrawLocked()
}

func (s *Session) handleKey(ev surface.KeyEvent) {
	switch ev.Key {
	case "Enter":
		s.evaluate()
	case "ArrowUp":
		s.navigate(-1)
	case "ArrowDown":
		s.navigate(1)
	}
}

func (s *Session) handleResize() {
	release, err := s.lock.Acquire(context.Background())
	if err != nil {
		return
	}
	defer release()
	s.redrawLocked()
}

// navigate steps the history index by delta modulo the history length.
// Blocked while the open entry spans multiple lines.
func (s *Session) navigate(delta int) {
	release, err := s.lock.Acquire(context.Background())
	if err != nil {
		return
	}
	defer release()

	if strings.Contains(s.history[len(s.history)-1], "\n") {
		return
	}
	n := len(s.history)
	s.histIdx = ((s.histIdx+delta)%n + n) % n
	s.buffer.SetString(s.history[s.histIdx])
	s.redrawLocked()
}

// evaluate commits the buffer as the now-closed history entry, opens a
// fresh entry, and runs the code. Evaluation happens inside the same
// critical section, so no buffer mutation interleaves with it.
func (s *Session) evaluate() {
	release, err := s.lock.Acquire(context.Background())
	if err != nil {
		s.log.Warn("evaluation dropped", zap.Error(err))
		return
	}
	defer release()

	code := s.buffer.String()
	s.buffer.Clear()
	s.history[len(s.history)-1] = code
	s.history = append(s.history, "")
	if len(s.history) > s.histMax {
		s.history = s.history[len(s.history)-s.histMax:]
	}
	s.histIdx = len(s.history) - 1
	s.redrawLocked()

	s.metrics.ConsoleEvaluated()
	s.eval(code)
}

// handleEvent appends a new log event beneath each surface's start
// marker, erasing from the marker forward first, then resynchronizes
// the buffer rendering.
func (s *Session) handleEvent(ev *Event) {
	release, err := s.lock.Acquire(context.Background())
	if err != nil {
		return
	}
	defer release()

	text := strings.ReplaceAll(ev.Format(), "\n", "\r\n")
	lines := strings.Count(text, "\r\n") + 1

	s.mu.Lock()
	editors := make(map[surface.Surface]*editor, len(s.editors))
	for sf, ed := range s.editors {
		editors[sf] = ed
	}
	s.mu.Unlock()

	for sf, ed := range editors {
		// Skip viewers that already saw this event during replay.
		if ev.seq <= ed.seen {
			continue
		}
		ed.seen = ev.seq
		var b strings.Builder
		b.WriteString(vmove(ed.cursorRow, ed.startRow))
		b.WriteString("\r\x1b[0J")
		b.WriteString(text)
		b.WriteString("\r\n")
		if err := sf.Write(b.String()); err != nil {
			s.log.Debug("event write failed", zap.Error(err))
			continue
		}
		ed.startRow += lines
		ed.startCol = 0
		ed.rendered = nil
		ed.cursorRow = ed.startRow
		ed.cursorCol = 0
	}

	s.redrawLocked()
}

// redrawLocked resynchronizes every attached surface with the buffer.
// Caller holds the queue mutex. Each surface gets an independent
// incremental redraw keyed by its own last-known render state.
func (s *Session) redrawLocked() {
	s.mu.Lock()
	editors := make(map[surface.Surface]*editor, len(s.editors))
	for sf, ed := range s.editors {
		editors[sf] = ed
	}
	s.mu.Unlock()

	for sf, ed := range editors {
		s.redrawEditor(sf, ed)
	}
}

// redrawEditor diffs the wrapped buffer against the rows this surface
// last rendered and emits a minimal reposition + erase + rewrite
// sequence, then restores the cursor to the buffer's logical position.
func (s *Session) redrawEditor(sf surface.Surface, ed *editor) {
	lay := s.buffer.Layout(sf.Cols(), ed.startCol)
	i := firstDiff(ed.rendered, lay.Rows)

	var b strings.Builder
	curRow, curCol := ed.cursorRow, ed.cursorCol

	if i < len(ed.rendered) || i < len(lay.Rows) {
		target := ed.startRow + i
		b.WriteString(vmove(curRow, target))
		b.WriteString("\r")
		curRow, curCol = target, 0
		if i == 0 && ed.startCol > 0 {
			fmt.Fprintf(&b, "\x1b[%dC", ed.startCol)
			curCol = ed.startCol
		}
		b.WriteString("\x1b[0J")
		if i < len(lay.Rows) {
			b.WriteString(strings.Join(lay.Rows[i:], "\r\n"))
			curRow = ed.startRow + len(lay.Rows) - 1
			curCol = len([]rune(lay.Rows[len(lay.Rows)-1]))
			if len(lay.Rows) == 1 {
				curCol += ed.startCol
			}
		}
	}

	targetRow := ed.startRow + lay.CursorRow
	targetCol := lay.CursorCol
	b.WriteString(vmove(curRow, targetRow))
	if targetCol != curCol {
		fmt.Fprintf(&b, "\x1b[%dG", targetCol+1)
	}

	if b.Len() > 0 {
		if err := sf.Write(b.String()); err != nil {
			s.log.Debug("redraw failed", zap.Error(err))
			return
		}
	}
	ed.rendered = lay.Rows
	ed.cursorRow = targetRow
	ed.cursorCol = targetCol
}

// attachedSurfaces lists the currently attached surfaces for the
// evaluation context's terminals property.
func (s *Session) attachedSurfaces() []surface.Surface {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]surface.Surface, 0, len(s.editors))
	for sf := range s.editors {
		out = append(out, sf)
	}
	return out
}

// firstDiff returns the first index at which the row slices differ.
func firstDiff(a, b []string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

// vmove emits the vertical cursor movement from one absolute row to
// another.
func vmove(from, to int) string {
	switch {
	case to < from:
		return fmt.Sprintf("\x1b[%dA", from-to)
	case to > from:
		return fmt.Sprintf("\x1b[%dB", to-from)
	default:
		return ""
	}
}
