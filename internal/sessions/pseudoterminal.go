package sessions

import (
	"errors"

	"github.com/termbed/termbed/internal/asyncx"
	"github.com/termbed/termbed/internal/surface"
)

var (
	// ErrExited is returned by Pipe when the session has already exited.
	ErrExited = errors.New("sessions: session already exited")

	// ErrKillFailed is returned by Kill when the process was already
	// dead and the kill had no effect.
	ErrKillFailed = errors.New("sessions: process already dead")

	// ErrNoInterpreter is the rejection surfaced when a session that
	// needs a Python helper is constructed without an interpreter path.
	ErrNoInterpreter = errors.New("sessions: no python interpreter configured")

	// ErrResizeDisabled is returned by Resize on sessions without a
	// working resize channel.
	ErrResizeDisabled = errors.New("sessions: resizing disabled")
)

// clearScreen erases the viewport and scrollback and homes the cursor.
// Written to a surface before attaching it to a session's output.
const clearScreen = "\x1b[2J\x1b[3J\x1b[H"

// Pseudoterminal is the minimal contract every concrete session
// satisfies: the Unix and Windows process-backed sessions, the native
// in-process PTY session, the reference-counted wrapper, and the
// developer-console session.
type Pseudoterminal interface {
	// Handle returns the underlying process handle, or nil for
	// in-process sessions.
	Handle() Handle

	// Kill terminates the session. It returns an error when nothing
	// live was actually terminated.
	Kill() error

	// Exit is the session's one-shot exit future. It is safe to await
	// repeatedly; later awaits observe the cached resolution.
	Exit() *asyncx.Future[ExitStatus]

	// Pipe attaches a display surface: output flows into the surface,
	// surface input flows back into the session. May be called more
	// than once for multi-viewer sessions. Fails, before attaching any
	// listener, if the session has already exited.
	Pipe(sf surface.Surface) error
}

// Resizable is implemented by sessions that support window resizing.
type Resizable interface {
	Resize(cols, rows int) error
}
