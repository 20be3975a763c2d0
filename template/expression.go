package template

import (
	"errors"
	"fmt"
	"strings"
)

// FilterFunc transforms a value during rendering. arg is nil when the
// filter was written without an argument.
type FilterFunc func(value any, arg any) (any, error)

// Filter pairs a filter function with its argument requirement. Arity is
// checked when the expression compiles, never at render time.
type Filter struct {
	Func          FilterFunc
	TakesArgument bool
}

// FilterExpression is a compiled {{ ... }} body: a variable reference
// plus an ordered filter chain. It is parsed by a single forward scan
// with no backtracking, which is what gives the syntax its strictness:
// no whitespace is tolerated around | or :.
type FilterExpression struct {
	token    string
	variable *Variable
	filters  []filterCall
}

type filterCall struct {
	name      string
	fn        FilterFunc
	hasArg    bool
	arg       string
	translate bool
}

// Var returns the leading variable reference.
func (fe *FilterExpression) Var() *Variable {
	return fe.variable
}

// FilterNames lists the applied filters in order.
func (fe *FilterExpression) FilterNames() []string {
	names := make([]string, len(fe.filters))
	for i, f := range fe.filters {
		names[i] = f.name
	}
	return names
}

func (fe *FilterExpression) String() string {
	return fe.token
}

// Resolve evaluates the expression: variable first, then filters left to
// right. A variable that does not exist is absorbed to the engine's
// invalid-value string before the filters run, so missing data degrades
// the output instead of failing the render.
func (fe *FilterExpression) Resolve(c *Context) (any, error) {
	e := c.Engine()
	value, err := fe.variable.Resolve(c)
	if err != nil {
		var missing *VariableDoesNotExist
		if !errors.As(err, &missing) {
			return nil, err
		}
		e.logSilentFailure(fe.token, err)
		value = any(e.stringIfInvalid)
	}
	for _, f := range fe.filters {
		var arg any
		if f.hasArg {
			if f.translate {
				arg = e.Translate(f.arg)
			} else {
				arg = f.arg
			}
		}
		var ferr error
		value, ferr = f.fn(value, arg)
		if ferr != nil {
			return nil, fmt.Errorf("filter %q: %w", f.name, ferr)
		}
	}
	return value, nil
}

func isVarChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '.'
}

func isFilterChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

type exprScanner struct {
	src string
	i   int
}

func (s *exprScanner) eof() bool {
	return s.i >= len(s.src)
}

func (s *exprScanner) peek() byte {
	if s.eof() {
		return 0
	}
	return s.src[s.i]
}

func (s *exprScanner) next() byte {
	c := s.src[s.i]
	s.i++
	return c
}

func (s *exprScanner) hasPrefix(p string) bool {
	return strings.HasPrefix(s.src[s.i:], p)
}

func (s *exprScanner) readRun(allowed func(byte) bool) string {
	start := s.i
	for !s.eof() && allowed(s.peek()) {
		s.i++
	}
	return s.src[start:s.i]
}

// readQuoted consumes a quoted string starting at the opening quote and
// returns the decoded body. A quote character closes the string only
// when followed by end-of-input, a pipe, or the extra closer (the paren
// of a translation marker); anywhere else it is content. Backslashes
// escape quotes and themselves; any other escape is an error.
func (s *exprScanner) readQuoted(closer byte) (string, error) {
	quote := s.next()
	var b strings.Builder
	for !s.eof() {
		c := s.next()
		switch {
		case c == '\\':
			if s.eof() {
				return "", syntaxErrorf(0, "Invalid character after backslash in '%s'", s.src)
			}
			n := s.next()
			if n != '\\' && n != '"' && n != '\'' {
				return "", syntaxErrorf(0, "Invalid character after backslash in '%s'", s.src)
			}
			b.WriteByte(n)
		case c == quote:
			if s.eof() || s.peek() == '|' || (closer != 0 && s.peek() == closer) {
				return b.String(), nil
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return "", syntaxErrorf(0, "Unterminated string in '%s'", s.src)
}

// parseFilterExpression scans one {{ ... }} body. The filter table is
// consulted during the scan: unknown filters and arity mismatches are
// compile errors.
func parseFilterExpression(token string, filters map[string]Filter) (*FilterExpression, error) {
	s := &exprScanner{src: token}
	fe := &FilterExpression{token: token}

	variable, err := readLeadingVariable(s, token)
	if err != nil {
		return nil, err
	}
	fe.variable = variable

	if s.eof() {
		return fe, nil
	}
	if s.peek() != '|' {
		return nil, syntaxErrorf(0, "Variables may not contain spaces or punctuation: '%s'", token)
	}
	s.next()

	for {
		name := s.readRun(isFilterChar)
		if name == "" {
			return nil, syntaxErrorf(0, "Could not read filter name: '%s'", token)
		}
		reg, ok := filters[name]
		if !ok {
			return nil, syntaxErrorf(0, "Invalid filter: '%s'", name)
		}
		call := filterCall{name: name, fn: reg.Func}
		if !s.eof() && s.peek() == ':' {
			s.next()
			closer := byte(0)
			if s.hasPrefix("_(") {
				call.translate = true
				closer = ')'
				s.i += 2
			}
			if c := s.peek(); c != '"' && c != '\'' {
				return nil, syntaxErrorf(0, "Filter arguments must be quoted: '%s'", token)
			}
			arg, err := s.readQuoted(closer)
			if err != nil {
				return nil, err
			}
			if call.translate {
				if s.eof() || s.next() != ')' {
					return nil, syntaxErrorf(0, "Expected closing ')' in '%s'", token)
				}
			}
			call.hasArg = true
			call.arg = arg
		}
		if reg.TakesArgument && !call.hasArg {
			return nil, syntaxErrorf(0, "'%s' filter requires an argument", name)
		}
		if !reg.TakesArgument && call.hasArg {
			return nil, syntaxErrorf(0, "'%s' filter does not take an argument", name)
		}
		fe.filters = append(fe.filters, call)
		if s.eof() {
			return fe, nil
		}
		if s.next() != '|' {
			return nil, syntaxErrorf(0, "Filters may not contain spaces or punctuation: '%s'", token)
		}
	}
}

// readLeadingVariable reads the variable part of an expression: a quoted
// constant, a translation-marked constant, or a run of name characters
// handed to NewVariable for literal and underscore checks.
func readLeadingVariable(s *exprScanner, token string) (*Variable, error) {
	translate := false
	if s.hasPrefix("_(") {
		translate = true
		s.i += 2
	}
	if c := s.peek(); c == '"' || c == '\'' {
		closer := byte(0)
		if translate {
			closer = ')'
		}
		lit, err := s.readQuoted(closer)
		if err != nil {
			return nil, err
		}
		if translate {
			if s.eof() || s.next() != ')' {
				return nil, syntaxErrorf(0, "Expected closing ')' in '%s'", token)
			}
		}
		return &Variable{name: token, literal: SafeString(lit), isLiteral: true, translate: translate}, nil
	}
	if translate {
		// Not a translation marker after all; rescan as a plain name.
		s.i -= 2
	}
	run := s.readRun(isVarChar)
	if run == "" {
		return nil, syntaxErrorf(0, "Could not read variable name: '%s'", token)
	}
	return NewVariable(run)
}
