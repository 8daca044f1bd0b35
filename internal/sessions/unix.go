package sessions

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"go.uber.org/zap"

	"github.com/termbed/termbed/internal/asyncx"
	"github.com/termbed/termbed/internal/logging"
	"github.com/termbed/termbed/internal/surface"
)

// UnixOptions configures a Unix helper session.
type UnixOptions struct {
	// Python is the interpreter that runs the PTY bootstrap. Required:
	// without it the session's exit future rejects with
	// ErrNoInterpreter.
	Python string

	Shell string
	Args  []string
	Dir   string

	Cols, Rows int

	Logger *logging.Logger
}

// UnixSession runs a shell inside a real PTY device via a Python
// helper. Resize commands travel over the helper's fourth stdio stream
// as "<cols>x<rows>\n" lines.
type UnixSession struct {
	log    *logging.Logger
	handle *asyncx.Future[Handle]
	exit   *asyncx.Future[ExitStatus]
}

var _ Pseudoterminal = (*UnixSession)(nil)
var _ Resizable = (*UnixSession)(nil)

// NewUnixSession spawns the helper. Construction never fails
// synchronously; spawn failures surface through Exit and Pipe.
func NewUnixSession(sp Spawner, opts UnixOptions) *UnixSession {
	s := &UnixSession{
		log:  opts.Logger.OrNop().Named("unix"),
		exit: asyncx.NewFuture[ExitStatus](),
	}

	if opts.Python == "" {
		s.handle = asyncx.Rejected[Handle](ErrNoInterpreter)
		s.exit.Reject(ErrNoInterpreter)
		return s
	}

	cols, rows := opts.Cols, opts.Rows
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}

	args := append(
		[]string{"-c", ptyBootstrap, opts.Shell, strconv.Itoa(cols), strconv.Itoa(rows)},
		opts.Args...)
	s.handle = sp.Spawn(Spec{
		Executable:  opts.Python,
		Args:        args,
		Dir:         opts.Dir,
		ControlPipe: true,
	})

	go func() {
		h, err := s.handle.Await(context.Background())
		if err != nil {
			s.exit.Reject(fmt.Errorf("spawn helper: %w", err))
			return
		}
		st, err := h.Exit().Await(context.Background())
		if err != nil {
			s.exit.Reject(err)
			return
		}
		s.log.Debug("helper exited", zap.Stringer("status", st))
		s.exit.Resolve(st)
	}()

	return s
}

func (s *UnixSession) Handle() Handle {
	h, _, _ := s.handle.Peek()
	return h
}

func (s *UnixSession) Exit() *asyncx.Future[ExitStatus] { return s.exit }

func (s *UnixSession) Kill() error {
	h, err := s.handle.Await(context.Background())
	if err != nil {
		return err
	}
	killed, err := h.Kill()
	if err != nil {
		return err
	}
	if !killed {
		return ErrKillFailed
	}
	return nil
}

// Resize writes a "<cols>x<rows>\n" line to the helper's control
// stream. No acknowledgement is expected; success is assumed unless
// the write itself fails.
func (s *UnixSession) Resize(cols, rows int) error {
	h, err := s.handle.Await(context.Background())
	if err != nil {
		return err
	}
	ctrl := h.Control()
	if ctrl == nil {
		return ErrResizeDisabled
	}
	_, err = io.WriteString(ctrl, fmt.Sprintf("%dx%d\n", cols, rows))
	return err
}

func (s *UnixSession) Pipe(sf surface.Surface) error {
	if s.exit.Settled() {
		if _, err, _ := s.exit.Peek(); err != nil {
			return err
		}
		return ErrExited
	}
	h, err := s.handle.Await(context.Background())
	if err != nil {
		return err
	}

	if err := sf.Write(clearScreen); err != nil {
		return err
	}

	offOut := h.OnStdout(func(chunk string) { _ = sf.Write(chunk) })
	offErr := h.OnStderr(func(chunk string) { _ = sf.Write(chunk) })
	offData := sf.OnData(func(data string) {
		if _, err := io.WriteString(h.Stdin(), data); err != nil {
			s.log.Warn("stdin write failed", zap.Error(err))
		}
	})

	go func() {
		<-s.exit.Done()
		offOut()
		offErr()
		offData()
	}()
	return nil
}
