// Package adapter binds a display surface to a session for embedding:
// lazy session creation on first use, debounced resize propagation,
// kill-then-dispose teardown, and surface snapshotting for
// save/restore.
package adapter
