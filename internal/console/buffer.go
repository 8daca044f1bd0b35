package console

import "strings"

// EditBuffer is the cursor-aware text state of the console's shared
// edit line. It is not safe for concurrent use: the session's queue
// mutex is its sole writer.
type EditBuffer struct {
	runes    []rune
	cursor   int
	pending  []rune
	disposed bool
}

// Apply interprets one raw input chunk: printable text inserts at the
// cursor, backspace deletes, carriage returns insert newlines, and the
// cursor-movement escape sequences adjust the cursor. Unrecognized
// control sequences are dropped. An escape sequence split across
// chunks is held until the next chunk completes it.
func (b *EditBuffer) Apply(chunk string) {
	if b.disposed {
		return
	}
	rs := []rune(chunk)
	if len(b.pending) > 0 {
		rs = append(b.pending, rs...)
		b.pending = nil
	}
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case r == '\x1b':
			i += b.escape(rs[i:]) - 1
		case r == 0x7f || r == '\b':
			b.backspace()
		case r == '\r':
			b.insert('\n')
			// Swallow the LF of a CRLF pair.
			if i+1 < len(rs) && rs[i+1] == '\n' {
				i++
			}
		case r == '\n':
			b.insert('\n')
		case r >= 0x20:
			b.insert(r)
		}
	}
}

// escape handles a cursor-movement sequence at the start of rs and
// returns how many runes it consumed (at least 1).
func (b *EditBuffer) escape(rs []rune) int {
	if len(rs) >= 2 && rs[1] != '[' {
		return 1
	}
	// The chunk ends mid-sequence; stash the fragment for the next
	// Apply call.
	if len(rs) < 3 || (rs[2] == '3' && len(rs) < 4) {
		b.pending = append([]rune(nil), rs...)
		return len(rs)
	}
	switch rs[2] {
	case 'C':
		if b.cursor < len(b.runes) {
			b.cursor++
		}
	case 'D':
		if b.cursor > 0 {
			b.cursor--
		}
	case 'H':
		b.cursor = 0
	case 'F':
		b.cursor = len(b.runes)
	case '3':
		// Forward delete: ESC [ 3 ~
		if len(rs) >= 4 && rs[3] == '~' {
			if b.cursor < len(b.runes) {
				b.runes = append(b.runes[:b.cursor], b.runes[b.cursor+1:]...)
			}
			return 4
		}
		return 3
	}
	return 3
}

func (b *EditBuffer) insert(r rune) {
	b.runes = append(b.runes, 0)
	copy(b.runes[b.cursor+1:], b.runes[b.cursor:])
	b.runes[b.cursor] = r
	b.cursor++
}

func (b *EditBuffer) backspace() {
	if b.cursor == 0 {
		return
	}
	b.runes = append(b.runes[:b.cursor-1], b.runes[b.cursor:]...)
	b.cursor--
}

// String returns the buffer contents.
func (b *EditBuffer) String() string { return string(b.runes) }

// Cursor returns the rune index of the cursor.
func (b *EditBuffer) Cursor() int { return b.cursor }

// SetString replaces the contents, placing the cursor at the end.
func (b *EditBuffer) SetString(s string) {
	if b.disposed {
		return
	}
	b.runes = []rune(s)
	b.cursor = len(b.runes)
}

// Clear empties the buffer.
func (b *EditBuffer) Clear() {
	b.runes = b.runes[:0]
	b.cursor = 0
}

// Dispose empties the buffer and rejects further mutation.
func (b *EditBuffer) Dispose() {
	b.Clear()
	b.disposed = true
}

// Layout is the wrapped-line representation of the buffer against a
// surface's width, plus the visual position of the logical cursor.
// Row 0 begins at StartCol (whatever precedes the buffer on that line);
// rows hold only the buffer's own text.
type Layout struct {
	Rows      []string
	CursorRow int
	CursorCol int
}

// Layout wraps the buffer for the given width and first-row start
// column.
func (b *EditBuffer) Layout(width, startCol int) Layout {
	if width <= 0 {
		width = 80
	}
	if startCol < 0 || startCol >= width {
		startCol = 0
	}

	var rows []string
	var cur strings.Builder
	col := startCol
	curRow, curCol := 0, startCol
	for i, r := range b.runes {
		if i == b.cursor {
			curRow, curCol = len(rows), col
		}
		if r == '\n' {
			rows = append(rows, cur.String())
			cur.Reset()
			col = 0
			continue
		}
		if col >= width {
			rows = append(rows, cur.String())
			cur.Reset()
			col = 0
		}
		cur.WriteRune(r)
		col++
	}
	rows = append(rows, cur.String())
	if b.cursor == len(b.runes) {
		curRow, curCol = len(rows)-1, col
	}

	return Layout{Rows: rows, CursorRow: curRow, CursorCol: curCol}
}
