package sessions

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/termbed/termbed/internal/asyncx"
	"github.com/termbed/termbed/internal/logging"
	"github.com/termbed/termbed/internal/surface"
)

// Notifier surfaces a user-visible, non-fatal warning in the host.
type Notifier func(message string)

const (
	defaultCmdPath     = `C:\Windows\System32\cmd.exe`
	defaultConhostPath = `C:\Windows\System32\conhost.exe`

	defaultGraceDelay = 10 * time.Second
	defaultKeepAlive  = 5 * time.Second
)

// WindowsOptions configures a Windows session.
type WindowsOptions struct {
	Executable string
	Args       []string
	Dir        string

	// Python enables the separate resizer helper. Without it Resize
	// fails with ErrResizeDisabled.
	Python string

	// UseConhost nests the launch inside conhost.exe so the console
	// window can be hidden. Conhost echoes an initial artifact, so the
	// first output chunk of each Pipe is discarded.
	UseConhost bool

	CmdPath     string
	ConhostPath string
	TempDir     string

	// GraceDelay is how long after process exit the exit-code file is
	// kept before deletion, avoiding a race with the writer.
	GraceDelay time.Duration

	// KeepAlive is the watchdog interval for pinging the resizer.
	KeepAlive time.Duration

	Notifier Notifier
	Logger   *logging.Logger
}

// WindowsSession launches the target through a cmd.exe wrapper that
// chains an echo of the error level into a temp file, recovering the
// true exit code regardless of what the hosting console process
// reports.
type WindowsSession struct {
	log     *logging.Logger
	notify  Notifier
	conhost bool

	codeFile   string
	graceDelay time.Duration
	keepAlive  time.Duration

	handle  *asyncx.Future[Handle]
	resizer *asyncx.Future[Handle] // nil when no resizer is configured
	exit    *asyncx.Future[ExitStatus]

	cleanup sync.Once
}

var _ Pseudoterminal = (*WindowsSession)(nil)
var _ Resizable = (*WindowsSession)(nil)

// NewWindowsSession spawns the wrapped shell and, when an interpreter
// is configured, the resizer helper. Never fails synchronously.
func NewWindowsSession(sp Spawner, opts WindowsOptions) *WindowsSession {
	if opts.CmdPath == "" {
		opts.CmdPath = defaultCmdPath
	}
	if opts.ConhostPath == "" {
		opts.ConhostPath = defaultConhostPath
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.GraceDelay <= 0 {
		opts.GraceDelay = defaultGraceDelay
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = defaultKeepAlive
	}

	s := &WindowsSession{
		log:        opts.Logger.OrNop().Named("windows"),
		notify:     opts.Notifier,
		conhost:    opts.UseConhost,
		codeFile:   filepath.Join(opts.TempDir, "termbed-"+uuid.NewString()+".txt"),
		graceDelay: opts.GraceDelay,
		keepAlive:  opts.KeepAlive,
		exit:       asyncx.NewFuture[ExitStatus](),
	}

	exe, args := windowsLaunch(opts, s.codeFile)
	s.handle = sp.Spawn(Spec{Executable: exe, Args: args, Dir: opts.Dir})

	if opts.Python != "" {
		s.resizer = sp.Spawn(Spec{
			Executable: opts.Python,
			Args:       []string{"-c", windowsResizer},
		})
		go s.superviseResizer()
	}

	go s.watchExit()
	return s
}

// windowsLaunch builds the spawn target. The inner command is chained
// with `call echo %ERRORLEVEL%` into the exit-code file; nesting under
// conhost adds a second cmd parse layer, requiring caret escaping.
func windowsLaunch(opts WindowsOptions, codeFile string) (string, []string) {
	inner := quoteArg(opts.Executable)
	for _, a := range opts.Args {
		inner += " " + quoteArg(a)
	}
	chain := fmt.Sprintf(`(%s) & call echo %%^ERRORLEVEL%% >%s`, inner, quoteArg(codeFile))

	if opts.UseConhost {
		return opts.ConhostPath, []string{opts.CmdPath, "/C", caretEscape(chain)}
	}
	return opts.CmdPath, []string{"/C", chain}
}

// quoteArg wraps an argument in double quotes, escaping embedded
// quotes.
func quoteArg(arg string) string {
	return `"` + strings.ReplaceAll(arg, `"`, `\"`) + `"`
}

// cmdMetacharacters are the cmd.exe characters that must be caret
// escaped when a string passes through a second shell parse layer.
const cmdMetacharacters = `()%!^"<>&|`

func caretEscape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(cmdMetacharacters, r) {
			b.WriteByte('^')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// watchExit waits for the wrapper to exit, recovers the true exit code
// from the temp file, and schedules the file's one-time deletion.
func (s *WindowsSession) watchExit() {
	h, err := s.handle.Await(context.Background())
	if err != nil {
		s.exit.Reject(fmt.Errorf("spawn shell: %w", err))
		return
	}
	raw, err := h.Exit().Await(context.Background())
	if err != nil {
		s.exit.Reject(err)
		return
	}

	st := raw
	if data, readErr := os.ReadFile(s.codeFile); readErr == nil {
		if code, parseErr := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 32); parseErr == nil {
			st = Exited(int(code))
		} else {
			// Parse failure falls back to the raw code or signal.
			s.log.Debug("exit-code file unparsable", zap.Error(parseErr))
		}
	} else {
		s.log.Debug("exit-code file unreadable", zap.Error(readErr))
	}
	s.exit.Resolve(st)

	time.AfterFunc(s.graceDelay, s.removeCodeFile)
}

func (s *WindowsSession) removeCodeFile() {
	s.cleanup.Do(func() {
		if err := os.Remove(s.codeFile); err != nil && !os.IsNotExist(err) {
			s.log.Warn("exit-code file cleanup failed", zap.Error(err))
		}
	})
}

// superviseResizer performs the PID handshake, keeps the helper
// responsive with periodic pings, and warns when it dies abnormally.
func (s *WindowsSession) superviseResizer() {
	rh, err := s.resizer.Await(context.Background())
	if err != nil {
		s.log.Warn("resizer spawn failed", zap.Error(err))
		return
	}
	h, err := s.handle.Await(context.Background())
	if err != nil {
		return
	}

	if _, err := fmt.Fprintf(rh.Stdin(), "%d\n", h.Pid()); err != nil {
		s.log.Warn("resizer handshake failed", zap.Error(err))
		return
	}

	// Best-effort keep-alive: write failures are logged, never fatal.
	go func() {
		ticker := time.NewTicker(s.keepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := io.WriteString(rh.Stdin(), "\n"); err != nil {
					s.log.Debug("resizer keep-alive failed", zap.Error(err))
				}
			case <-rh.Exit().Done():
				return
			}
		}
	}()

	st, err := rh.Exit().Await(context.Background())
	if err == nil && !st.Success() {
		s.log.Warn("resizer exited abnormally", zap.Stringer("status", st))
		if s.notify != nil {
			s.notify(fmt.Sprintf("terminal resizer exited with %s", st))
		}
	}
}

func (s *WindowsSession) Handle() Handle {
	h, _, _ := s.handle.Peek()
	return h
}

func (s *WindowsSession) Exit() *asyncx.Future[ExitStatus] { return s.exit }

func (s *WindowsSession) Kill() error {
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

// Resize writes a "<cols>x<rows>\n" command to the resizer helper.
func (s *WindowsSession) Resize(cols, rows int) error {
	if s.resizer == nil {
		return ErrResizeDisabled
	}
	rh, err := s.resizer.Await(context.Background())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResizeDisabled, err)
	}
	_, err = fmt.Fprintf(rh.Stdin(), "%dx%d\n", cols, rows)
	return err
}

func (s *WindowsSession) Pipe(sf surface.Surface) error {
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

	// Conhost echoes an initial artifact: discard the first chunk this
	// attachment sees, at most once per Pipe call.
	var discard atomic.Bool
	discard.Store(s.conhost)

	offOut := h.OnStdout(func(chunk string) {
		if discard.CompareAndSwap(true, false) {
			return
		}
		_ = sf.Write(chunk)
	})
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
