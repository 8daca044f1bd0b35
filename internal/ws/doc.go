// Package ws bridges WebSocket clients to terminal sessions.
//
// Each connection hosts at most one session. Session output streams to
// the client as data frames; client input, key, and resize frames feed
// the session, with resizes debounced before reaching the process.
//
// Message Types (Client → Server):
//   - start: create a shell session (or attach the shared console)
//   - data: raw input bytes
//   - key: a named key event (Enter, ArrowUp, ...)
//   - resize: new terminal geometry
//   - kill: terminate the session
//   - serialize: request a surface snapshot
//   - ping: keep-alive ping
//
// Message Types (Server → Client):
//   - system: connection established
//   - started: session attached
//   - data: session output
//   - state: surface snapshot
//   - exit: session finished, with its exit status
//   - error: request failed
//
// Example Usage:
//
//	handler := ws.NewHandler(ws.Options{Factory: factory, Console: console})
//	router.GET("/ws", handler.HandleConnection)
package ws
