package sessions

import "strconv"

type exitKind uint8

const (
	exitCode exitKind = iota
	exitSignal
	exitUnknown
)

// ExitStatus is the final state of a session's process: a numeric exit
// code when known, else the terminating signal name, else unknown.
type ExitStatus struct {
	kind   exitKind
	code   int
	signal string
}

// Exited returns a status carrying a numeric exit code.
func Exited(code int) ExitStatus {
	return ExitStatus{kind: exitCode, code: code}
}

// Signaled returns a status carrying the terminating signal name.
func Signaled(name string) ExitStatus {
	return ExitStatus{kind: exitSignal, signal: name}
}

// UnknownExit returns the last-resort status when neither an exit code
// nor a signal could be determined.
func UnknownExit() ExitStatus {
	return ExitStatus{kind: exitUnknown}
}

// Code returns the numeric exit code, if known.
func (s ExitStatus) Code() (int, bool) {
	return s.code, s.kind == exitCode
}

// Signal returns the terminating signal name, if known.
func (s ExitStatus) Signal() (string, bool) {
	return s.signal, s.kind == exitSignal
}

// Success reports whether the process exited with code zero.
func (s ExitStatus) Success() bool {
	return s.kind == exitCode && s.code == 0
}

func (s ExitStatus) String() string {
	switch s.kind {
	case exitCode:
		return strconv.Itoa(s.code)
	case exitSignal:
		return s.signal
	default:
		return "unknown"
	}
}
