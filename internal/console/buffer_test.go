package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEditBufferApply(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		cursor int
	}{
		{"plain text", "abc", "abc", 3},
		{"backspace", "abc\x7f", "ab", 2},
		{"backspace control", "abc\b", "ab", 2},
		{"backspace at start", "\x7fab", "ab", 2},
		{"insert at cursor", "ab\x1b[Dc", "acb", 2},
		{"home then type", "ab\x1b[Hx", "xab", 1},
		{"end after home", "ab\x1b[H\x1b[Fc", "abc", 3},
		{"forward delete", "ab\x1b[D\x1b[3~", "a", 1},
		{"forward delete at end", "ab\x1b[3~", "ab", 2},
		{"carriage return is newline", "a\rb", "a\nb", 3},
		{"crlf collapses", "a\r\nb", "a\nb", 3},
		{"bare newline", "a\nb", "a\nb", 3},
		{"control bytes dropped", "a\x01b", "ab", 2},
		{"unknown escape dropped", "a\x1b[Zb", "ab", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b EditBuffer
			b.Apply(tt.input)
			assert.Equal(t, tt.want, b.String())
			assert.Equal(t, tt.cursor, b.Cursor())
		})
	}
}

func TestEditBufferCursorMoves(t *testing.T) {
	var b EditBuffer
	b.SetString("hello")
	assert.Equal(t, 5, b.Cursor())

	b.Apply("\x1b[D\x1b[D")
	assert.Equal(t, 3, b.Cursor())

	b.Apply("\x1b[C")
	assert.Equal(t, 4, b.Cursor())

	// Right at the end is a no-op.
	b.Apply("\x1b[C\x1b[C")
	assert.Equal(t, 5, b.Cursor())
}

func TestEditBufferSplitEscapeSequences(t *testing.T) {
	var b EditBuffer
	b.SetString("ab")

	// Arrow-left split across two chunks.
	b.Apply("\x1b")
	b.Apply("[D")
	assert.Equal(t, 1, b.Cursor())

	// Forward delete split after the parameter byte.
	b.Apply("\x1b[3")
	b.Apply("~")
	assert.Equal(t, "a", b.String())
	assert.Equal(t, 1, b.Cursor())
}

func TestEditBufferStashedEscapeBeforeText(t *testing.T) {
	// A lone ESC at a chunk boundary never leaks into the text.
	var b EditBuffer
	b.Apply("\x1b")
	b.Apply("x")
	assert.Equal(t, "x", b.String())
}

func TestEditBufferDispose(t *testing.T) {
	var b EditBuffer
	b.Apply("abc")
	b.Dispose()
	b.Apply("def")
	b.SetString("xyz")
	assert.Equal(t, "", b.String())
}

func TestLayoutWrapping(t *testing.T) {
	var b EditBuffer
	b.SetString("abcdef")

	lay := b.Layout(5, 2)
	assert.Equal(t, []string{"abc", "def"}, lay.Rows)
	assert.Equal(t, 1, lay.CursorRow)
	assert.Equal(t, 3, lay.CursorCol)
}

func TestLayoutNewlines(t *testing.T) {
	var b EditBuffer
	b.SetString("ab\ncd")

	lay := b.Layout(10, 0)
	assert.Equal(t, []string{"ab", "cd"}, lay.Rows)
	assert.Equal(t, 1, lay.CursorRow)
	assert.Equal(t, 2, lay.CursorCol)
}

func TestLayoutCursorMidBuffer(t *testing.T) {
	var b EditBuffer
	b.SetString("abcd")
	b.Apply("\x1b[D\x1b[D")

	lay := b.Layout(80, 3)
	assert.Equal(t, []string{"abcd"}, lay.Rows)
	assert.Equal(t, 0, lay.CursorRow)
	assert.Equal(t, 5, lay.CursorCol)
}

func TestLayoutEmpty(t *testing.T) {
	var b EditBuffer
	lay := b.Layout(80, 4)
	assert.Equal(t, []string{""}, lay.Rows)
	assert.Equal(t, 0, lay.CursorRow)
	assert.Equal(t, 4, lay.CursorCol)
}

func TestLayoutExactWidthDefersWrap(t *testing.T) {
	// A line exactly filling the width keeps the cursor on that row
	// until the next rune forces the wrap.
	var b EditBuffer
	b.SetString("abcde")

	lay := b.Layout(5, 0)
	assert.Equal(t, []string{"abcde"}, lay.Rows)
	assert.Equal(t, 0, lay.CursorRow)
	assert.Equal(t, 5, lay.CursorCol)
}
