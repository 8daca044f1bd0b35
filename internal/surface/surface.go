package surface

// KeyEvent describes a key press reported by a display surface.
type KeyEvent struct {
	Key   string // "Enter", "ArrowUp", "ArrowDown", or the literal key
	Alt   bool
	Ctrl  bool
	Shift bool
}

// State is the serialized form of a surface: geometry plus a rendered
// scrollback snapshot. Alternate-screen content and terminal modes are
// excluded.
type State struct {
	Columns int    `json:"columns"`
	Rows    int    `json:"rows"`
	Data    string `json:"data"`
}

// Surface is the display widget a session renders into. Sessions only
// ever consume this contract; the concrete widget lives in the host.
type Surface interface {
	// Write renders data (text plus escape sequences) and returns once
	// the surface has acknowledged it.
	Write(data string) error

	// Resize changes the surface geometry.
	Resize(cols, rows int) error

	// Geometry and cursor introspection. CursorY is the absolute row
	// within the scrollback, not the viewport-relative row.
	Cols() int
	Rows() int
	CursorX() int
	CursorY() int

	// Event subscriptions. The returned function detaches the listener.
	OnData(fn func(data string)) (off func())
	OnKey(fn func(ev KeyEvent)) (off func())
	OnResize(fn func(cols, rows int)) (off func())

	// Serialize captures geometry and visible scrollback for later
	// restoration.
	Serialize() State

	// Dispose releases the surface. Further writes fail.
	Dispose()
}
