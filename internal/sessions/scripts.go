package sessions

// ptyBootstrap is the Python program the Unix session runs with
// `python -c`. It forks the target shell onto a real PTY device,
// relays stdio, and applies resize commands arriving on fd 3 as
// "<cols>x<rows>\n" lines.
//
// argv: <shell> <cols> <rows> [shell args...]
const ptyBootstrap = `
import array, fcntl, os, pty, select, signal, sys, termios

shell = sys.argv[1]
cols, rows = int(sys.argv[2]), int(sys.argv[3])
argv = [shell] + sys.argv[4:]

pid, fd = pty.fork()
if pid == 0:
    os.execvp(shell, argv)

CONTROL = 3

def set_size(cols, rows):
    fcntl.ioctl(fd, termios.TIOCSWINSZ, array.array("H", [rows, cols, 0, 0]))
    os.kill(pid, signal.SIGWINCH)

set_size(cols, rows)

stdin = sys.stdin.fileno()
stdout = sys.stdout.fileno()
control_buf = b""

while True:
    try:
        ready, _, _ = select.select([fd, stdin, CONTROL], [], [])
    except (OSError, ValueError):
        break
    if fd in ready:
        try:
            data = os.read(fd, 4096)
        except OSError:
            break
        if not data:
            break
        os.write(stdout, data)
    if stdin in ready:
        data = os.read(stdin, 4096)
        if not data:
            break
        os.write(fd, data)
    if CONTROL in ready:
        data = os.read(CONTROL, 64)
        if not data:
            break
        control_buf += data
        while b"\n" in control_buf:
            line, control_buf = control_buf.split(b"\n", 1)
            try:
                c, r = line.split(b"x")
                set_size(int(c), int(r))
            except ValueError:
                pass

_, status = os.waitpid(pid, 0)
if os.WIFSIGNALED(status):
    sys.exit(128 + os.WTERMSIG(status))
sys.exit(os.WEXITSTATUS(status))
`

// windowsResizer is the Python program the Windows session spawns to
// resize the target console. The first stdin line carries the console
// process id; later lines are "<cols>x<rows>" resize commands or blank
// keep-alive pings.
const windowsResizer = `
import ctypes, sys

kernel32 = ctypes.windll.kernel32

class COORD(ctypes.Structure):
    _fields_ = [("X", ctypes.c_short), ("Y", ctypes.c_short)]

class SMALL_RECT(ctypes.Structure):
    _fields_ = [("Left", ctypes.c_short), ("Top", ctypes.c_short),
                ("Right", ctypes.c_short), ("Bottom", ctypes.c_short)]

pid = int(sys.stdin.readline().strip())
kernel32.FreeConsole()
if not kernel32.AttachConsole(pid):
    sys.exit(1)
handle = kernel32.GetStdHandle(-11)

def resize(cols, rows):
    window = SMALL_RECT(0, 0, cols - 1, rows - 1)
    kernel32.SetConsoleScreenBufferSize(handle, COORD(cols, rows))
    kernel32.SetConsoleWindowInfo(handle, True, ctypes.byref(window))
    kernel32.SetConsoleScreenBufferSize(handle, COORD(cols, rows))

for line in sys.stdin:
    line = line.strip()
    if not line:
        continue
    try:
        cols, rows = line.split("x")
        resize(int(cols), int(rows))
    except ValueError:
        pass
`
