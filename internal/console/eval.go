package console

import (
	"errors"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
)

// captureVar receives the value of the rewritten trailing expression.
const captureVar = "__replResult"

// newRuntime builds the sandboxed scripting context: module globals
// removed, a console object writing into the store, and the
// conventionally-named "terminal" context object exposing the
// inspection depth and the attached surfaces.
func (s *Session) newRuntime() *goja.Runtime {
	vm := goja.New()

	// Track promises that settle rejected without a handler; eval
	// reports whatever is still pending once a run finishes.
	vm.SetPromiseRejectionTracker(func(p *goja.Promise, op goja.PromiseRejectionOperation) {
		switch op {
		case goja.PromiseRejectionReject:
			s.rejected[p] = struct{}{}
		case goja.PromiseRejectionHandle:
			delete(s.rejected, p)
		}
	})

	vm.Set("require", goja.Undefined())
	vm.Set("process", goja.Undefined())
	vm.Set("module", goja.Undefined())
	vm.Set("exports", goja.Undefined())

	consoleObj := vm.NewObject()
	consoleObj.Set("debug", s.makeConsoleFunc(LevelDebug))
	consoleObj.Set("log", s.makeConsoleFunc(LevelInfo))
	consoleObj.Set("info", s.makeConsoleFunc(LevelInfo))
	consoleObj.Set("warn", s.makeConsoleFunc(LevelWarn))
	consoleObj.Set("error", s.makeConsoleFunc(LevelError))
	vm.Set("console", consoleObj)

	terminal := vm.NewObject()
	terminal.DefineAccessorProperty("depth",
		vm.ToValue(func(goja.FunctionCall) goja.Value {
			return vm.ToValue(s.store.Depth())
		}),
		vm.ToValue(func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) > 0 {
				s.store.SetDepth(int(call.Arguments[0].ToInteger()))
			}
			return goja.Undefined()
		}),
		goja.FLAG_FALSE, goja.FLAG_TRUE)
	terminal.DefineAccessorProperty("terminals",
		vm.ToValue(func(goja.FunctionCall) goja.Value {
			return vm.ToValue(s.attachedSurfaces())
		}),
		nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	vm.Set("terminal", terminal)

	return vm
}

func (s *Session) makeConsoleFunc(kind Level) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]any, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.Export()
		}
		s.store.Log(kind, parts...)
		return goja.Undefined()
	}
}

// eval runs committed console input. Strategy one rewrites a trailing
// expression statement to capture its value; when that rewrite cannot
// be compiled, strategy two evaluates the code unmodified for side
// effects only. Runtime errors are logged, never re-thrown into the
// buffer.
func (s *Session) eval(code string) {
	if strings.TrimSpace(code) == "" {
		return
	}
	defer s.flushRejections()

	if rewritten, ok := rewriteTrailingExpression(code); ok {
		s.vm.Set(captureVar, goja.Undefined())
		_, err := s.vm.RunString(rewritten)
		if err == nil {
			if v := s.vm.Get(captureVar); v != nil && !goja.IsUndefined(v) {
				s.store.Info(v.Export())
			}
			return
		}
		var syntaxErr *goja.CompilerSyntaxError
		if !errors.As(err, &syntaxErr) {
			s.store.Error(err.Error())
			return
		}
		// The rewrite broke compilation; fall back to a plain run.
	}

	if _, err := s.vm.RunString(code); err != nil {
		s.store.Error(err.Error())
	}
}

// flushRejections records every promise still rejected with no handler
// attached by the time the evaluation returned. Runs under the queue
// mutex like eval itself.
func (s *Session) flushRejections() {
	for p := range s.rejected {
		s.store.Rejection(p.Result().Export())
	}
	clear(s.rejected)
}

// rewriteTrailingExpression parses code and, when its last statement
// is an expression, rewrites that statement into an assignment to the
// capture variable. Returns false when the code does not parse or has
// no trailing expression to capture.
func rewriteTrailingExpression(code string) (string, bool) {
	prog, err := parser.ParseFile(nil, "<console>", code, 0)
	if err != nil || len(prog.Body) == 0 {
		return "", false
	}
	es, ok := prog.Body[len(prog.Body)-1].(*ast.ExpressionStatement)
	if !ok {
		return "", false
	}

	start := int(es.Idx0()) - 1
	end := int(es.Idx1()) - 1
	if start < 0 || end > len(code) || start > end {
		return "", false
	}
	return code[:start] + captureVar + " = (" + code[start:end] + ");" + code[end:], true
}
