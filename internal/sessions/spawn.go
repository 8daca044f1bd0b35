package sessions

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"go.uber.org/zap"

	"github.com/termbed/termbed/internal/asyncx"
	"github.com/termbed/termbed/internal/logging"
)

// Spec describes an external process to launch.
type Spec struct {
	Executable string
	Args       []string
	Dir        string
	Env        map[string]string

	// ControlPipe allocates a fourth stdio stream (fd 3 in the child)
	// used as a dedicated resize control channel.
	ControlPipe bool
}

// Handle exposes a spawned process: its input stream, fanned-out
// output streams, kill, and a one-shot exit future.
type Handle interface {
	Pid() int
	Stdin() io.Writer

	// Control is the fourth stdio stream, or nil when the process was
	// spawned without one.
	Control() io.Writer

	// Kill signals the process. The boolean reports whether a live
	// process was actually terminated.
	Kill() (bool, error)

	Exit() *asyncx.Future[ExitStatus]

	// OnStdout and OnStderr attach output listeners; the returned
	// function detaches them.
	OnStdout(fn func(chunk string)) (off func())
	OnStderr(fn func(chunk string)) (off func())
}

// Spawner launches processes. Spawn never fails synchronously:
// failures surface through the returned future.
type Spawner interface {
	Spawn(spec Spec) *asyncx.Future[Handle]
}

// ExecSpawner is the os/exec-backed Spawner. Spawned processes are not
// tied to the host's lifecycle: closing the host does not force-kill
// them, and the only cancellation primitive afterwards is Kill.
type ExecSpawner struct {
	log *logging.Logger
}

// NewExecSpawner creates a spawner. logger may be nil.
func NewExecSpawner(logger *logging.Logger) *ExecSpawner {
	return &ExecSpawner{log: logger.OrNop().Named("spawn")}
}

func (s *ExecSpawner) Spawn(spec Spec) *asyncx.Future[Handle] {
	fut := asyncx.NewFuture[Handle]()
	go func() {
		h, err := s.start(spec)
		if err != nil {
			s.log.Warn("spawn failed",
				zap.String("executable", spec.Executable), zap.Error(err))
			fut.Reject(err)
			return
		}
		s.log.Debug("spawned",
			zap.String("executable", spec.Executable), zap.Int("pid", h.Pid()))
		fut.Resolve(h)
	}()
	return fut
}

func (s *ExecSpawner) start(spec Spec) (Handle, error) {
	cmd := exec.Command(spec.Executable, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	h := &execHandle{
		cmd:    cmd,
		stdin:  stdin,
		out:    newBroadcaster(),
		errOut: newBroadcaster(),
		exit:   asyncx.NewFuture[ExitStatus](),
	}

	var childControl *os.File
	if spec.ControlPipe {
		r, w, err := os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("control pipe: %w", err)
		}
		cmd.ExtraFiles = []*os.File{r}
		childControl = r
		h.control = w
	}

	if err := cmd.Start(); err != nil {
		if h.control != nil {
			h.control.Close()
		}
		if childControl != nil {
			childControl.Close()
		}
		return nil, err
	}
	if childControl != nil {
		// The child inherited its end; the parent keeps only the writer.
		childControl.Close()
	}

	go h.out.pump(stdout)
	go h.errOut.pump(stderr)
	go func() {
		h.exit.Resolve(statusFromWait(cmd.Wait()))
		if h.control != nil {
			h.control.Close()
		}
	}()

	return h, nil
}

// statusFromWait maps a Wait result to an exit code, a signal name, or
// unknown as a last resort.
func statusFromWait(err error) ExitStatus {
	if err == nil {
		return Exited(0)
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return Signaled(ws.Signal().String())
		}
		if code := ee.ExitCode(); code >= 0 {
			return Exited(code)
		}
	}
	return UnknownExit()
}

type execHandle struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	control *os.File
	out     *broadcaster
	errOut  *broadcaster
	exit    *asyncx.Future[ExitStatus]
}

func (h *execHandle) Pid() int { return h.cmd.Process.Pid }

func (h *execHandle) Stdin() io.Writer { return h.stdin }

func (h *execHandle) Control() io.Writer {
	if h.control == nil {
		return nil
	}
	return h.control
}

func (h *execHandle) Kill() (bool, error) {
	if h.exit.Settled() {
		return false, nil
	}
	if err := h.cmd.Process.Kill(); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (h *execHandle) Exit() *asyncx.Future[ExitStatus] { return h.exit }

func (h *execHandle) OnStdout(fn func(string)) func() { return h.out.subscribe(fn) }
func (h *execHandle) OnStderr(fn func(string)) func() { return h.errOut.subscribe(fn) }
