package console

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Level tags a log event variant.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"

	// LevelRejection carries an unhandled promise rejection payload.
	LevelRejection Level = "unhandledRejection"

	// LevelWindowError carries an uncaught host error payload.
	LevelWindowError Level = "windowError"
)

// Event is one recorded log entry. Immutable once recorded; the
// formatted representation is computed once and cached.
type Event struct {
	Kind  Level
	Time  time.Time
	Parts []any

	depth int
	seq   int64

	once      sync.Once
	formatted string
}

const (
	sgrReset  = "\x1b[0m"
	sgrDim    = "\x1b[2m"
	sgrYellow = "\x1b[33m"
	sgrRed    = "\x1b[31m"
)

// Format renders the event as styled text, without a trailing newline.
// Write-once memoized: repeated calls return the cached result.
func (e *Event) Format() string {
	e.once.Do(func() {
		parts := make([]string, len(e.Parts))
		for i, p := range e.Parts {
			parts[i] = formatPart(p, e.depth)
		}
		msg := strings.Join(parts, " ")

		switch e.Kind {
		case LevelDebug:
			e.formatted = sgrDim + msg + sgrReset
		case LevelWarn:
			e.formatted = sgrYellow + msg + sgrReset
		case LevelError:
			e.formatted = sgrRed + msg + sgrReset
		case LevelRejection:
			e.formatted = sgrRed + "Unhandled rejection: " + msg + sgrReset
		case LevelWindowError:
			e.formatted = sgrRed + "Window error: " + msg + sgrReset
		default:
			e.formatted = msg
		}
	})
	return e.formatted
}

// formatPart renders one message part. Top-level strings pass through
// verbatim; everything else goes through depth-limited inspection.
func formatPart(p any, depth int) string {
	switch v := p.(type) {
	case nil:
		return "null"
	case string:
		return v
	case error:
		return v.Error()
	default:
		return inspect(reflect.ValueOf(p), depth)
	}
}

// inspect renders a value with nesting limited to depth, the way the
// console context's inspection-depth setting dictates.
func inspect(rv reflect.Value, depth int) string {
	if !rv.IsValid() {
		return "null"
	}
	switch rv.Kind() {
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return "null"
		}
		return inspect(rv.Elem(), depth)
	case reflect.String:
		return strconv.Quote(rv.String())
	case reflect.Slice, reflect.Array:
		if depth <= 0 {
			return "[...]"
		}
		parts := make([]string, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			parts[i] = inspect(rv.Index(i), depth-1)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case reflect.Map:
		if depth <= 0 {
			return "{...}"
		}
		keys := rv.MapKeys()
		names := make([]string, len(keys))
		byName := make(map[string]reflect.Value, len(keys))
		for i, k := range keys {
			name := fmt.Sprint(k.Interface())
			names[i] = name
			byName[name] = rv.MapIndex(k)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, name := range names {
			parts[i] = name + ": " + inspect(byName[name], depth-1)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64)
	default:
		return fmt.Sprint(rv.Interface())
	}
}
