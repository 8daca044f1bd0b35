package sessions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/creack/pty"
	"go.uber.org/zap"

	"github.com/termbed/termbed/internal/asyncx"
	"github.com/termbed/termbed/internal/logging"
	"github.com/termbed/termbed/internal/surface"
)

// NativeOptions configures an in-process PTY session.
type NativeOptions struct {
	Shell string
	Args  []string
	Dir   string
	Env   map[string]string

	Cols, Rows int

	Logger *logging.Logger
}

// NativeSession runs the shell directly on a PTY device owned by this
// process, with no helper interpreter. Used on Unix when no Python
// path is configured.
type NativeSession struct {
	log  *logging.Logger
	proc *asyncx.Future[*nativeProc]
	out  *broadcaster
	exit *asyncx.Future[ExitStatus]
}

type nativeProc struct {
	cmd  *exec.Cmd
	ptmx *os.File
}

var _ Pseudoterminal = (*NativeSession)(nil)
var _ Resizable = (*NativeSession)(nil)

// NewNativeSession starts the shell. Never fails synchronously.
func NewNativeSession(opts NativeOptions) *NativeSession {
	s := &NativeSession{
		log:  opts.Logger.OrNop().Named("native"),
		proc: asyncx.NewFuture[*nativeProc](),
		out:  newBroadcaster(),
		exit: asyncx.NewFuture[ExitStatus](),
	}
	go s.start(opts)
	return s
}

func (s *NativeSession) start(opts NativeOptions) {
	shell := opts.Shell
	if shell == "" {
		shell = os.Getenv("SHELL")
		if shell == "" {
			shell = "/bin/bash"
		}
	}
	cols, rows := opts.Cols, opts.Rows
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}

	cmd := exec.Command(shell, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	for k, v := range opts.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
	if err != nil {
		err = fmt.Errorf("start pty: %w", err)
		s.proc.Reject(err)
		s.exit.Reject(err)
		return
	}

	s.proc.Resolve(&nativeProc{cmd: cmd, ptmx: ptmx})
	go s.out.pump(ptmx)
	go func() {
		st := statusFromWait(cmd.Wait())
		s.log.Debug("shell exited", zap.Stringer("status", st))
		ptmx.Close()
		s.exit.Resolve(st)
	}()
}

// Handle returns nil: the session owns its process directly rather
// than through a spawner handle.
func (s *NativeSession) Handle() Handle { return nil }

func (s *NativeSession) Exit() *asyncx.Future[ExitStatus] { return s.exit }

func (s *NativeSession) Kill() error {
	p, err := s.proc.Await(context.Background())
	if err != nil {
		return err
	}
	if s.exit.Settled() {
		return ErrKillFailed
	}
	if err := p.cmd.Process.Kill(); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return ErrKillFailed
		}
		return err
	}
	return nil
}

func (s *NativeSession) Resize(cols, rows int) error {
	p, err := s.proc.Await(context.Background())
	if err != nil {
		return err
	}
	return pty.Setsize(p.ptmx, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
}

func (s *NativeSession) Pipe(sf surface.Surface) error {
	if s.exit.Settled() {
		if _, err, _ := s.exit.Peek(); err != nil {
			return err
		}
		return ErrExited
	}
	p, err := s.proc.Await(context.Background())
	if err != nil {
		return err
	}

	if err := sf.Write(clearScreen); err != nil {
		return err
	}

	offOut := s.out.subscribe(func(chunk string) { _ = sf.Write(chunk) })
	offData := sf.OnData(func(data string) {
		if _, err := p.ptmx.WriteString(data); err != nil {
			s.log.Warn("pty write failed", zap.Error(err))
		}
	})

	go func() {
		<-s.exit.Done()
		offOut()
		offData()
	}()
	return nil
}
