// Package sessions implements the pseudoterminal abstraction and
// process-lifecycle engine.
//
// A session couples one running shell or process (or the in-process
// developer console) with its I/O wiring to display surfaces.
//
// Concrete sessions:
//   - UnixSession: a Python helper hosts the shell on a real PTY
//     device and applies resize commands from a fourth stdio stream.
//   - WindowsSession: a cmd.exe wrapper recovers the true exit code
//     through a temp file, optionally nested under conhost, with a
//     separate resizer helper process.
//   - NativeSession: the shell directly on an in-process PTY device.
//   - Shared: a reference-counted view letting multiple surfaces
//     observe one underlying session.
//
// Processes are launched through the Spawner interface; failures never
// surface synchronously from constructors, only through exit futures
// and Pipe.
package sessions
