package template

import (
	"reflect"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Lookuper lets a value control its own attribute resolution. Context
// implements it, so the context is simply the outermost container of
// every dotted path; application types can implement it to expose
// computed attributes.
type Lookuper interface {
	Lookup(key string) (any, bool)
}

// Variable is one operand of a filter expression: a number literal, a
// quoted string literal, or a dotted lookup path resolved against the
// context at render time.
type Variable struct {
	name      string
	literal   any
	isLiteral bool
	translate bool
	lookups   []string
}

// NewVariable compiles a variable reference. Literals are recognized in
// this order: numbers, then translation-marked strings, then quoted
// strings. Everything else is a lookup path; paths with a leading
// underscore in any segment are reserved and rejected.
func NewVariable(name string) (*Variable, error) {
	v := &Variable{name: name}
	if name == "" {
		return nil, syntaxErrorf(0, "Could not read variable name: '%s'", name)
	}

	if n, err := strconv.Atoi(name); err == nil {
		v.literal = n
		v.isLiteral = true
		return v, nil
	}
	if !strings.HasSuffix(name, ".") {
		if f, err := strconv.ParseFloat(name, 64); err == nil {
			v.literal = f
			v.isLiteral = true
			return v, nil
		}
	}

	raw := name
	if strings.HasPrefix(raw, "_(") && strings.HasSuffix(raw, ")") {
		v.translate = true
		raw = raw[2 : len(raw)-1]
	}
	if unquoted, ok := unescapeStringLiteral(raw); ok {
		// Quoted literals are author-written text, exempt from escaping.
		v.literal = SafeString(unquoted)
		v.isLiteral = true
		return v, nil
	}
	if strings.Contains(raw, VariableAttributeSeparator+"_") || raw[0] == '_' {
		return nil, syntaxErrorf(0, "Variables and attributes may not begin with underscores: '%s'", raw)
	}
	v.lookups = strings.Split(raw, VariableAttributeSeparator)
	return v, nil
}

// MustVariable is NewVariable for known-good references, such as paths
// a tag has already validated.
func MustVariable(name string) *Variable {
	v, err := NewVariable(name)
	if err != nil {
		panic(err)
	}
	return v
}

func (v *Variable) String() string {
	return v.name
}

// unescapeStringLiteral strips matching quotes and decodes backslash
// escapes of the quote character and the backslash itself. The second
// result is false when the input is not a quoted string.
func unescapeStringLiteral(s string) (string, bool) {
	if len(s) < 2 {
		return "", false
	}
	quote := s[0]
	if quote != '"' && quote != '\'' || s[len(s)-1] != quote {
		return "", false
	}
	body := s[1 : len(s)-1]
	body = strings.ReplaceAll(body, `\`+string(quote), string(quote))
	body = strings.ReplaceAll(body, `\\`, `\`)
	return body, true
}

// Resolve evaluates the variable against the context. A miss at any
// path segment returns *VariableDoesNotExist; callers that want the
// lenient behavior go through FilterExpression.Resolve instead.
func (v *Variable) Resolve(c *Context) (any, error) {
	if v.isLiteral {
		if v.translate {
			return c.Engine().Translate(Stringify(v.literal)), nil
		}
		return v.literal, nil
	}
	var current any = c
	for _, bit := range v.lookups {
		next, ok := resolveBit(current, bit)
		if !ok {
			return nil, &VariableDoesNotExist{Key: bit, Container: current}
		}
		current = callIfNeeded(next)
	}
	if v.translate {
		return c.Engine().Translate(Stringify(current)), nil
	}
	return current, nil
}

// lookupStrategy is one way of reading a named part out of a value. Each
// strategy reports found/not-found instead of failing, and the chain
// tries them in a fixed order.
type lookupStrategy func(current any, bit string) (any, bool)

var lookupStrategies = []lookupStrategy{
	lookupLookuper,
	lookupMapping,
	lookupAttribute,
	lookupIndex,
}

func resolveBit(current any, bit string) (any, bool) {
	if current == nil {
		return nil, false
	}
	for _, strategy := range lookupStrategies {
		if v, ok := strategy(current, bit); ok {
			return v, true
		}
	}
	return nil, false
}

func lookupLookuper(current any, bit string) (any, bool) {
	lk, ok := current.(Lookuper)
	if !ok {
		return nil, false
	}
	return lk.Lookup(bit)
}

func lookupMapping(current any, bit string) (any, bool) {
	rv := reflect.ValueOf(current)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if !rv.IsValid() || rv.Kind() != reflect.Map {
		return nil, false
	}
	keyType := rv.Type().Key()
	var key reflect.Value
	switch {
	case keyType.Kind() == reflect.String:
		key = reflect.ValueOf(bit).Convert(keyType)
	case isIntKind(keyType.Kind()):
		n, err := strconv.Atoi(bit)
		if err != nil {
			return nil, false
		}
		key = reflect.ValueOf(n).Convert(keyType)
	case keyType.Kind() == reflect.Interface:
		key = reflect.ValueOf(bit)
	default:
		return nil, false
	}
	val := rv.MapIndex(key)
	if !val.IsValid() {
		return nil, false
	}
	return val.Interface(), true
}

// lookupAttribute reads struct fields and methods. Template paths are
// conventionally lowercase, so a segment that does not match an exported
// name exactly is retried with its first rune upper-cased.
func lookupAttribute(current any, bit string) (any, bool) {
	rv := reflect.ValueOf(current)
	if !rv.IsValid() {
		return nil, false
	}
	if m := methodByName(rv, bit); m.IsValid() {
		return m.Interface(), true
	}
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
		if !rv.IsValid() {
			return nil, false
		}
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}
	if f := fieldByName(rv, bit); f.IsValid() && f.CanInterface() {
		return f.Interface(), true
	}
	return nil, false
}

func lookupIndex(current any, bit string) (any, bool) {
	idx, err := strconv.Atoi(bit)
	if err != nil {
		return nil, false
	}
	rv := reflect.ValueOf(current)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil, false
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if idx < 0 || idx >= rv.Len() {
			return nil, false
		}
		return rv.Index(idx).Interface(), true
	case reflect.String:
		s := rv.String()
		if idx < 0 || idx >= len(s) {
			return nil, false
		}
		return string(s[idx]), true
	}
	return nil, false
}

func methodByName(rv reflect.Value, bit string) reflect.Value {
	if m := rv.MethodByName(bit); m.IsValid() {
		return m
	}
	if exported := capitalize(bit); exported != bit {
		if m := rv.MethodByName(exported); m.IsValid() {
			return m
		}
	}
	return reflect.Value{}
}

func fieldByName(rv reflect.Value, bit string) reflect.Value {
	if f := rv.FieldByName(bit); f.IsValid() {
		return f
	}
	if exported := capitalize(bit); exported != bit {
		if f := rv.FieldByName(exported); f.IsValid() {
			return f
		}
	}
	return reflect.Value{}
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// callIfNeeded invokes zero-argument callables reached through a lookup.
// A callable that needs arguments, has an unusable shape, or returns a
// non-nil error resolves to the empty string; that error return is the
// one sanctioned silent-failure signal. Panics inside the callable are
// not recovered.
func callIfNeeded(v any) any {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Func {
		return v
	}
	t := rv.Type()
	if t.NumIn() != 0 || t.NumOut() == 0 || t.NumOut() > 2 {
		return ""
	}
	if t.NumOut() == 2 && !t.Out(1).Implements(errorType) {
		return ""
	}
	results := rv.Call(nil)
	if len(results) == 2 {
		if err, _ := results[1].Interface().(error); err != nil {
			return ""
		}
	}
	return results[0].Interface()
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func isIntKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}
