package template

import (
	"errors"
	"fmt"
	"strings"
)

// ErrContextPop is the panic value raised when Pop is called with no
// scope left to remove. A mismatched Push/Pop pair is a bug in a tag
// implementation, not a template author error, so it surfaces as a panic
// rather than a render error.
var ErrContextPop = errors.New("template: pop without matching push")

// SyntaxError describes a problem found while compiling a template.
// Compilation never partially succeeds; the first syntax error aborts it.
type SyntaxError struct {
	Msg   string
	Line  int    // 1-based source line, 0 if unknown
	Token string // raw contents of the offending token, if any

	// Info holds the source region around the error. Filled only when
	// the engine compiles in debug mode.
	Info *ExceptionInfo
}

func (e *SyntaxError) Error() string {
	return e.Msg
}

func syntaxErrorf(line int, format string, args ...any) *SyntaxError {
	return &SyntaxError{Msg: fmt.Sprintf(format, args...), Line: line}
}

// contextLines is how much surrounding source ExceptionInfo carries on
// each side of the failing line.
const contextLines = 2

// ExceptionInfo is the source region around a compile error: the line
// the error was reported on plus its neighbors, for display by error
// pages and diagnostics.
type ExceptionInfo struct {
	Name   string   // template name, "<string>" for string templates
	Line   int      // 1-based line of the error
	Before []string // lines preceding the failing line
	During string   // the failing line itself
	After  []string // lines following it
}

func exceptionInfo(src, name string, line int) *ExceptionInfo {
	lines := strings.Split(src, "\n")
	if line < 1 || line > len(lines) {
		return &ExceptionInfo{Name: name, Line: line}
	}
	idx := line - 1
	start := idx - contextLines
	if start < 0 {
		start = 0
	}
	end := idx + 1 + contextLines
	if end > len(lines) {
		end = len(lines)
	}
	return &ExceptionInfo{
		Name:   name,
		Line:   line,
		Before: lines[start:idx],
		During: lines[idx],
		After:  lines[idx+1 : end],
	}
}

// VariableDoesNotExist reports a dotted lookup that failed at some
// segment. FilterExpression.Resolve absorbs it; Variable.Resolve
// returns it to callers that want strict lookups.
type VariableDoesNotExist struct {
	Key       string // the path segment that failed
	Container any    // the value it failed against
}

func (e *VariableDoesNotExist) Error() string {
	return fmt.Sprintf("failed lookup for key [%s] in %#v", e.Key, e.Container)
}

// TemplateDoesNotExist is returned by loaders when no search location
// yields the named template. Tried lists every path consulted.
type TemplateDoesNotExist struct {
	Name  string
	Tried []string
}

func (e *TemplateDoesNotExist) Error() string {
	if len(e.Tried) == 0 {
		return fmt.Sprintf("template %q does not exist", e.Name)
	}
	return fmt.Sprintf("template %q does not exist (tried: %v)", e.Name, e.Tried)
}
