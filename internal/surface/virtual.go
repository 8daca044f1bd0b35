package surface

import (
	"errors"
	"strconv"
	"strings"
	"sync"
)

// ErrDisposed is returned when writing to a disposed surface.
var ErrDisposed = errors.New("surface: disposed")

// Virtual is an in-memory Surface. It interprets the escape-sequence
// subset the session engine emits (cursor movement, erase, clear,
// alternate screen) and keeps a line-oriented scrollback, which makes
// it suitable both as the WebSocket bridge's local model and as the
// surface used throughout the tests.
type Virtual struct {
	mu sync.Mutex

	cols, rows int
	lines      [][]rune
	row, col   int

	// Alternate screen: writes land in altLines and are excluded from
	// serialization.
	alt      bool
	altLines [][]rune
	altRow   int
	altCol   int

	disposed bool

	nextSub  int
	dataSubs map[int]func(string)
	keySubs  map[int]func(KeyEvent)
	sizeSubs map[int]func(int, int)
}

// NewVirtual creates a surface with the given geometry.
func NewVirtual(cols, rows int) *Virtual {
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}
	return &Virtual{
		cols:     cols,
		rows:     rows,
		lines:    [][]rune{{}},
		dataSubs: make(map[int]func(string)),
		keySubs:  make(map[int]func(KeyEvent)),
		sizeSubs: make(map[int]func(int, int)),
	}
}

func (v *Virtual) Write(data string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return ErrDisposed
	}
	v.interpret(data)
	return nil
}

func (v *Virtual) Resize(cols, rows int) error {
	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		return ErrDisposed
	}
	v.cols = cols
	v.rows = rows
	subs := make([]func(int, int), 0, len(v.sizeSubs))
	for _, fn := range v.sizeSubs {
		subs = append(subs, fn)
	}
	v.mu.Unlock()

	for _, fn := range subs {
		fn(cols, rows)
	}
	return nil
}

func (v *Virtual) Cols() int { v.mu.Lock(); defer v.mu.Unlock(); return v.cols }
func (v *Virtual) Rows() int { v.mu.Lock(); defer v.mu.Unlock(); return v.rows }

func (v *Virtual) CursorX() int { v.mu.Lock(); defer v.mu.Unlock(); return v.col }
func (v *Virtual) CursorY() int { v.mu.Lock(); defer v.mu.Unlock(); return v.row }

func (v *Virtual) OnData(fn func(string)) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.nextSub
	v.nextSub++
	v.dataSubs[id] = fn
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		delete(v.dataSubs, id)
	}
}

func (v *Virtual) OnKey(fn func(KeyEvent)) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.nextSub
	v.nextSub++
	v.keySubs[id] = fn
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		delete(v.keySubs, id)
	}
}

func (v *Virtual) OnResize(fn func(int, int)) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.nextSub
	v.nextSub++
	v.sizeSubs[id] = fn
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		delete(v.sizeSubs, id)
	}
}

// EmitData delivers input from the user side of the surface (keystrokes
// already translated to bytes) to every data listener.
func (v *Virtual) EmitData(data string) {
	v.mu.Lock()
	subs := make([]func(string), 0, len(v.dataSubs))
	for _, fn := range v.dataSubs {
		subs = append(subs, fn)
	}
	v.mu.Unlock()
	for _, fn := range subs {
		fn(data)
	}
}

// EmitKey delivers a key event to every key listener.
func (v *Virtual) EmitKey(ev KeyEvent) {
	v.mu.Lock()
	subs := make([]func(KeyEvent), 0, len(v.keySubs))
	for _, fn := range v.keySubs {
		subs = append(subs, fn)
	}
	v.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (v *Virtual) Serialize() State {
	v.mu.Lock()
	defer v.mu.Unlock()

	// Trim trailing blank lines; the alternate screen never appears.
	end := len(v.lines)
	for end > 0 && len(v.lines[end-1]) == 0 {
		end--
	}
	rows := make([]string, end)
	for i := 0; i < end; i++ {
		rows[i] = string(v.lines[i])
	}
	return State{
		Columns: v.cols,
		Rows:    v.rows,
		Data:    strings.Join(rows, "\n"),
	}
}

func (v *Virtual) Dispose() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.disposed = true
	v.dataSubs = map[int]func(string){}
	v.keySubs = map[int]func(KeyEvent){}
	v.sizeSubs = map[int]func(int, int){}
}

// Disposed reports whether Dispose has been called.
func (v *Virtual) Disposed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.disposed
}

// Line returns the scrollback line at absolute row i, or "".
func (v *Virtual) Line(i int) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i < 0 || i >= len(v.lines) {
		return ""
	}
	return string(v.lines[i])
}

// interpret applies text and the supported escape subset to the grid.
// Caller holds the lock.
func (v *Virtual) interpret(data string) {
	runes := []rune(data)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\x1b':
			consumed := v.escape(runes[i:])
			i += consumed - 1
		case r == '\n':
			v.setRow(v.curRow() + 1)
		case r == '\r':
			v.setCol(0)
		case r == '\b':
			if v.curCol() > 0 {
				v.setCol(v.curCol() - 1)
			}
		default:
			v.put(r)
		}
	}
}

// escape handles a CSI or mode sequence at the start of runes and
// returns how many runes it consumed (at least 1).
func (v *Virtual) escape(runes []rune) int {
	if len(runes) < 2 || runes[1] != '[' {
		return 1
	}
	j := 2
	for j < len(runes) && (runes[j] == ';' || runes[j] == '?' ||
		(runes[j] >= '0' && runes[j] <= '9')) {
		j++
	}
	if j >= len(runes) {
		return len(runes)
	}
	params := string(runes[2:j])
	final := runes[j]
	v.csi(params, final)
	return j + 1
}

func (v *Virtual) csi(params string, final rune) {
	private := strings.HasPrefix(params, "?")
	if private {
		params = params[1:]
	}
	n := 1
	if p := strings.Split(params, ";"); len(p) > 0 && p[0] != "" {
		if parsed, err := strconv.Atoi(p[0]); err == nil {
			n = parsed
		}
	}

	switch final {
	case 'A':
		v.setRow(max(0, v.curRow()-n))
	case 'B':
		v.setRow(v.curRow() + n)
	case 'C':
		v.setCol(v.curCol() + n)
	case 'D':
		v.setCol(max(0, v.curCol()-n))
	case 'G':
		v.setCol(max(0, n-1))
	case 'H':
		row, col := 1, 1
		parts := strings.Split(params, ";")
		if len(parts) > 0 && parts[0] != "" {
			row, _ = strconv.Atoi(parts[0])
		}
		if len(parts) > 1 && parts[1] != "" {
			col, _ = strconv.Atoi(parts[1])
		}
		v.setRow(v.viewportTop() + row - 1)
		v.setCol(col - 1)
	case 'J':
		mode := 0
		if params != "" {
			mode, _ = strconv.Atoi(params)
		}
		v.eraseDisplay(mode)
	case 'K':
		v.eraseLine()
	case 'h':
		if private && params == "1049" {
			v.alt = true
			v.altLines = [][]rune{{}}
			v.altRow, v.altCol = 0, 0
		}
	case 'l':
		if private && params == "1049" {
			v.alt = false
		}
	case 'm':
		// Styling is not modeled; SGR sequences are accepted and dropped.
	}
}

func (v *Virtual) grid() *[][]rune {
	if v.alt {
		return &v.altLines
	}
	return &v.lines
}

func (v *Virtual) curRow() int {
	if v.alt {
		return v.altRow
	}
	return v.row
}

func (v *Virtual) curCol() int {
	if v.alt {
		return v.altCol
	}
	return v.col
}

func (v *Virtual) setRow(r int) {
	grid := v.grid()
	for len(*grid) <= r {
		*grid = append(*grid, []rune{})
	}
	if v.alt {
		v.altRow = r
	} else {
		v.row = r
	}
}

func (v *Virtual) setCol(c int) {
	if v.alt {
		v.altCol = c
	} else {
		v.col = c
	}
}

func (v *Virtual) viewportTop() int {
	return max(0, len(*v.grid())-v.rows)
}

func (v *Virtual) put(r rune) {
	if v.curCol() >= v.cols {
		v.setCol(0)
		v.setRow(v.curRow() + 1)
	}
	grid := v.grid()
	row, col := v.curRow(), v.curCol()
	for len(*grid) <= row {
		*grid = append(*grid, []rune{})
	}
	line := (*grid)[row]
	for len(line) <= col {
		line = append(line, ' ')
	}
	line[col] = r
	(*grid)[row] = line
	v.setCol(col + 1)
}

func (v *Virtual) eraseDisplay(mode int) {
	grid := v.grid()
	switch mode {
	case 0: // cursor to end of display
		v.eraseLine()
		if v.curRow()+1 < len(*grid) {
			*grid = (*grid)[:v.curRow()+1]
		}
	case 2: // entire viewport
		top := v.viewportTop()
		for i := top; i < len(*grid); i++ {
			(*grid)[i] = []rune{}
		}
	case 3: // scrollback
		top := v.viewportTop()
		if top > 0 {
			kept := append([][]rune{}, (*grid)[top:]...)
			*grid = kept
			v.setRow(max(0, v.curRow()-top))
		}
	}
}

func (v *Virtual) eraseLine() {
	grid := v.grid()
	row, col := v.curRow(), v.curCol()
	if row < len(*grid) && col < len((*grid)[row]) {
		(*grid)[row] = (*grid)[row][:col]
	}
}
