// Package jsengine evaluates ${...} JavaScript expressions embedded in step
// commands.
package jsengine

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dop251/goja"
)

// Engine holds one goja runtime and the bindings visible to expressions.
// It is safe for concurrent use.
type Engine struct {
	mu sync.Mutex
	vm *goja.Runtime
}

// New creates an Engine with no bindings.
func New() *Engine {
	return &Engine{vm: goja.New()}
}

// Bind makes value visible to expressions as a global named name.
// Rebinding a name replaces the previous value.
func (e *Engine) Bind(name string, value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vm.Set(name, value)
}

// BindAll binds every entry of vars.
func (e *Engine) BindAll(vars map[string]interface{}) {
	for name, v := range vars {
		e.Bind(name, v)
	}
}

// Eval evaluates expr and returns the exported value.
func (e *Engine) Eval(expr string) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.vm.RunString(expr)
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", expr, err)
	}
	return v.Export(), nil
}

// EvalString evaluates expr for substitution into a command line.
// undefined and null become the empty string.
func (e *Engine) EvalString(expr string) (string, error) {
	v, err := e.Eval(expr)
	if err != nil || v == nil {
		return "", err
	}
	return fmt.Sprint(v), nil
}

// Expansion is the result of expanding one command.
type Expansion struct {
	Text string
	// Unresolved lists expressions that failed to evaluate and were kept
	// verbatim, e.g. shell variables like ${HOME}.
	Unresolved []string
}

// Expand substitutes every ${...} in text. Braces may nest inside an
// expression. An expression that does not evaluate stays in the text so the
// shell can still expand it; an unterminated ${ is copied as is.
func (e *Engine) Expand(text string) Expansion {
	var b strings.Builder
	var unresolved []string

	rest := text
	for {
		open := strings.Index(rest, "${")
		if open < 0 {
			b.WriteString(rest)
			break
		}
		end := closingBrace(rest, open+2)
		if end < 0 {
			b.WriteString(rest)
			break
		}

		b.WriteString(rest[:open])
		expr := rest[open+2 : end]
		if value, err := e.EvalString(expr); err == nil {
			b.WriteString(value)
		} else {
			b.WriteString(rest[open : end+1])
			unresolved = append(unresolved, expr)
		}
		rest = rest[end+1:]
	}

	return Expansion{Text: b.String(), Unresolved: unresolved}
}

// closingBrace returns the index of the } that balances an opening brace
// just before from, or -1.
func closingBrace(s string, from int) int {
	depth := 1
	for i := from; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
