package template

import (
	"errors"
	"fmt"
	"math"
	"os"
	"reflect"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/spf13/cast"
)

// BuiltinLibrary returns a fresh library with every default tag and
// filter registered. Each engine takes its own copy, so engines can add
// or remove registrations without affecting one another.
func BuiltinLibrary() *Library {
	lib := NewLibrary()
	registerDefaultTags(lib)
	registerDefaultFilters(lib)
	return lib
}

func registerDefaultTags(lib *Library) {
	lib.Tag("comment", doComment)
	lib.Tag("cycle", doCycle)
	lib.Tag("debug", doDebug)
	lib.Tag("filter", doFilterBlock)
	lib.Tag("firstof", doFirstOf)
	lib.Tag("for", doFor)
	lib.Tag("if", doIf)
	lib.Tag("ifchanged", doIfChanged)
	lib.Tag("ifequal", func(p *Parser, token Token) (Node, error) { return doIfEqual(p, token, false) })
	lib.Tag("ifnotequal", func(p *Parser, token Token) (Node, error) { return doIfEqual(p, token, true) })
	lib.Tag("load", doLoad)
	lib.Tag("now", doNow)
	lib.Tag("regroup", doRegroup)
	lib.Tag("ssi", doSsi)
	lib.Tag("templatetag", doTemplateTag)
	lib.Tag("verbatim", doVerbatim)
	lib.Tag("widthratio", doWidthRatio)
}

// isInvalidMarker reports whether a resolved value is the engine's
// invalid-variable marker. Tags that iterate or test their operands
// treat the marker as absent data.
func isInvalidMarker(v any, c *Context) bool {
	s, ok := v.(string)
	return ok && s == c.Engine().StringIfInvalid()
}

type commentNode struct{}

func (*commentNode) Render(*Context) (string, error) {
	return "", nil
}

func doComment(p *Parser, token Token) (Node, error) {
	if err := p.SkipPast("endcomment"); err != nil {
		return nil, err
	}
	return &commentNode{}, nil
}

// cycleNode emits its values in rotation. The counter lives in the
// RenderContext keyed by node identity, so a named cycle referenced from
// several places advances one shared counter and concurrent renders of
// one template never share state.
type cycleNode struct {
	values []string
}

func (n *cycleNode) Render(c *Context) (string, error) {
	rc := c.RenderContext()
	i := 0
	if prev, ok := rc.Get(n); ok {
		i = prev.(int) + 1
	}
	rc.Set(n, i)
	return n.values[i%len(n.values)], nil
}

func splitCycleValues(raw string) []string {
	var values []string
	for _, v := range strings.Split(raw, ",") {
		if v != "" {
			values = append(values, v)
		}
	}
	return values
}

func doCycle(p *Parser, token Token) (Node, error) {
	args := strings.Fields(token.Contents)
	if len(args) < 2 {
		return nil, syntaxErrorf(token.Line, "'Cycle' statement requires at least two arguments")
	}
	if len(args) >= 4 && args[len(args)-2] == "as" {
		// {% cycle a,b,c as name %}. Values may carry spaces after the
		// commas, so everything before 'as' is joined before splitting.
		values := splitCycleValues(strings.Join(args[1:len(args)-2], ""))
		if len(values) == 0 {
			return nil, syntaxErrorf(token.Line, "Invalid arguments to 'cycle': %s", token.Contents)
		}
		node := &cycleNode{values: values}
		if p.namedCycles == nil {
			p.namedCycles = make(map[string]*cycleNode)
		}
		p.namedCycles[args[len(args)-1]] = node
		return node, nil
	}
	if len(args) == 2 && !strings.Contains(args[1], ",") {
		// {% cycle name %} reuses the node registered under name, so
		// every reference advances the same counter.
		node, ok := p.namedCycles[args[1]]
		if !ok {
			return nil, syntaxErrorf(token.Line, "Named cycle '%s' does not exist", args[1])
		}
		return node, nil
	}
	values := splitCycleValues(strings.Join(args[1:], ""))
	if len(values) == 0 {
		return nil, syntaxErrorf(token.Line, "Invalid arguments to 'cycle': %s", token.Contents)
	}
	return &cycleNode{values: values}, nil
}

// debugNode dumps every context scope, outermost first, followed by
// runtime details. Keys are sorted so the output is stable.
type debugNode struct{}

func (*debugNode) Render(c *Context) (string, error) {
	var b strings.Builder
	for i, scope := range c.Scopes() {
		if i > 0 {
			b.WriteString("\n")
		}
		keys := make([]string, 0, len(scope))
		for k := range scope {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s = %#v\n", k, scope[k])
		}
	}
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	return b.String(), nil
}

func doDebug(p *Parser, token Token) (Node, error) {
	return &debugNode{}, nil
}

// filterBlockNode renders its body, then pushes the result through a
// filter chain as if the body were a single variable.
type filterBlockNode struct {
	expr *FilterExpression
	body NodeList
}

func (n *filterBlockNode) Render(c *Context) (string, error) {
	out, err := n.body.Render(c)
	if err != nil {
		return "", err
	}
	c.Update(map[string]any{"var": out})
	defer c.Pop()
	value, err := n.expr.Resolve(c)
	if err != nil {
		return "", err
	}
	return Stringify(value), nil
}

func doFilterBlock(p *Parser, token Token) (Node, error) {
	_, rest, found := strings.Cut(token.Contents, " ")
	rest = strings.TrimSpace(rest)
	if !found || rest == "" {
		return nil, syntaxErrorf(token.Line, "'filter' statement requires at least one filter")
	}
	expr, err := p.CompileFilter("var|" + rest)
	if err != nil {
		return nil, err
	}
	body, err := p.Parse("endfilter")
	if err != nil {
		return nil, err
	}
	p.DeleteFirstToken()
	return &filterBlockNode{expr: expr, body: body}, nil
}

// firstOfNode outputs the first operand that resolves truthy, or
// nothing when all are missing or falsy.
type firstOfNode struct {
	vars []*Variable
}

func (n *firstOfNode) Render(c *Context) (string, error) {
	for _, v := range n.vars {
		value, err := v.Resolve(c)
		if err != nil {
			var missing *VariableDoesNotExist
			if errors.As(err, &missing) {
				continue
			}
			return "", err
		}
		if IsTrue(value) {
			return Stringify(value), nil
		}
	}
	return "", nil
}

func doFirstOf(p *Parser, token Token) (Node, error) {
	bits := strings.Fields(token.Contents)[1:]
	if len(bits) < 1 {
		return nil, syntaxErrorf(token.Line, "'firstof' statement requires at least one argument")
	}
	vars := make([]*Variable, len(bits))
	for i, bit := range bits {
		v, err := NewVariable(bit)
		if err != nil {
			return nil, err
		}
		vars[i] = v
	}
	return &firstOfNode{vars: vars}, nil
}

// forNode renders its body once per element of the resolved sequence
// and maintains the forloop metadata dict, including the parentloop
// link nested loops read.
type forNode struct {
	loopvar  string
	sequence *FilterExpression
	reversed bool
	body     NodeList
}

func (n *forNode) Render(c *Context) (string, error) {
	parentloop := map[string]any{}
	if v, ok := c.Get("forloop"); ok {
		if m, ok := v.(map[string]any); ok {
			parentloop = m
		}
	}
	resolved, err := n.sequence.Resolve(c)
	if err != nil {
		return "", err
	}
	if isInvalidMarker(resolved, c) {
		resolved = nil
	}
	values := toSlice(resolved)
	if n.reversed {
		for i, j := 0, len(values)-1; i < j; i, j = i+1, j-1 {
			values[i], values[j] = values[j], values[i]
		}
	}
	c.Push()
	defer c.Pop()
	var b strings.Builder
	for i, item := range values {
		c.Set("forloop", map[string]any{
			"counter0":    i,
			"counter":     i + 1,
			"revcounter":  len(values) - i,
			"revcounter0": len(values) - i - 1,
			"first":       i == 0,
			"last":        i == len(values)-1,
			"parentloop":  parentloop,
		})
		c.Set(n.loopvar, item)
		out, err := n.body.Render(c)
		if err != nil {
			return "", err
		}
		b.WriteString(out)
	}
	return b.String(), nil
}

// toSlice normalizes an iterable value to a fresh []any. Strings
// iterate per rune, maps yield their keys sorted by string form, and
// non-iterable values iterate zero times rather than failing.
func toSlice(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]any, len(t))
		copy(out, t)
		return out
	case string:
		out := make([]any, 0, len(t))
		for _, r := range t {
			out = append(out, string(r))
		}
		return out
	case SafeString:
		return toSlice(string(t))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return Stringify(keys[i].Interface()) < Stringify(keys[j].Interface())
		})
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = k.Interface()
		}
		return out
	}
	return nil
}

func doFor(p *Parser, token Token) (Node, error) {
	bits := strings.Fields(token.Contents)
	if len(bits) == 5 && bits[4] != "reversed" {
		return nil, syntaxErrorf(token.Line, "'for' statements with five words should end in 'reversed': %s", token.Contents)
	}
	if len(bits) != 4 && len(bits) != 5 {
		return nil, syntaxErrorf(token.Line, "'for' statements should have either four or five words: %s", token.Contents)
	}
	if bits[2] != "in" {
		return nil, syntaxErrorf(token.Line, "'for' statement must contain 'in' as the second word: %s", token.Contents)
	}
	sequence, err := p.CompileFilter(bits[3])
	if err != nil {
		return nil, err
	}
	body, err := p.Parse("endfor")
	if err != nil {
		return nil, err
	}
	p.DeleteFirstToken()
	return &forNode{loopvar: bits[1], sequence: sequence, reversed: len(bits) == 5, body: body}, nil
}

type condition struct {
	negate bool
	expr   *FilterExpression
}

// ifNode renders its true branch when any condition holds. Conditions
// join with or only; and is expressed by nesting if tags.
type ifNode struct {
	conditions []condition
	truePart   NodeList
	falsePart  NodeList
}

func (n *ifNode) Render(c *Context) (string, error) {
	for _, cond := range n.conditions {
		value, err := cond.expr.Resolve(c)
		if err != nil {
			return "", err
		}
		if isInvalidMarker(value, c) {
			value = nil
		}
		if IsTrue(value) != cond.negate {
			return n.truePart.Render(c)
		}
	}
	return n.falsePart.Render(c)
}

func doIf(p *Parser, token Token) (Node, error) {
	bits := strings.Fields(token.Contents)[1:]
	if len(bits) == 0 {
		return nil, syntaxErrorf(token.Line, "'if' statement requires at least one argument")
	}
	var conditions []condition
	for _, clause := range strings.Split(strings.Join(bits, " "), " or ") {
		words := strings.Fields(clause)
		var cond condition
		var operand string
		switch len(words) {
		case 1:
			operand = words[0]
		case 2:
			if words[0] != "not" {
				return nil, syntaxErrorf(token.Line, "Expected 'not' in if statement")
			}
			cond.negate = true
			operand = words[1]
		default:
			return nil, syntaxErrorf(token.Line, "Expected 'not' in if statement")
		}
		expr, err := p.CompileFilter(operand)
		if err != nil {
			return nil, err
		}
		cond.expr = expr
		conditions = append(conditions, cond)
	}
	truePart, err := p.Parse("else", "endif")
	if err != nil {
		return nil, err
	}
	var falsePart NodeList
	if next := p.NextToken(); next.Contents == "else" {
		falsePart, err = p.Parse("endif")
		if err != nil {
			return nil, err
		}
		p.DeleteFirstToken()
	}
	return &ifNode{conditions: conditions, truePart: truePart, falsePart: falsePart}, nil
}

// ifChangedNode suppresses output when its rendered body matches the
// previous visit within the same render. On change, the body renders a
// second time with the ifchanged dict in scope, and that second pass is
// what the reader sees.
type ifChangedNode struct {
	body NodeList
}

func (n *ifChangedNode) Render(c *Context) (string, error) {
	content, err := n.body.Render(c)
	if err != nil {
		return "", err
	}
	rc := c.RenderContext()
	last, seen := rc.Get(n)
	if seen && last.(string) == content {
		return "", nil
	}
	rc.Set(n, content)
	c.Update(map[string]any{"ifchanged": map[string]any{"firstloop": !seen}})
	defer c.Pop()
	return n.body.Render(c)
}

func doIfChanged(p *Parser, token Token) (Node, error) {
	if len(strings.Fields(token.Contents)) != 1 {
		return nil, syntaxErrorf(token.Line, "'ifchanged' tag takes no arguments")
	}
	body, err := p.Parse("endifchanged")
	if err != nil {
		return nil, err
	}
	p.DeleteFirstToken()
	return &ifChangedNode{body: body}, nil
}

type ifEqualNode struct {
	var1, var2 *Variable
	negate     bool
	truePart   NodeList
	falsePart  NodeList
}

func (n *ifEqualNode) operand(v *Variable, c *Context) (any, error) {
	value, err := v.Resolve(c)
	if err != nil {
		var missing *VariableDoesNotExist
		if errors.As(err, &missing) {
			return nil, nil
		}
		return nil, err
	}
	return value, nil
}

func (n *ifEqualNode) Render(c *Context) (string, error) {
	v1, err := n.operand(n.var1, c)
	if err != nil {
		return "", err
	}
	v2, err := n.operand(n.var2, c)
	if err != nil {
		return "", err
	}
	if equalValues(v1, v2) != n.negate {
		return n.truePart.Render(c)
	}
	return n.falsePart.Render(c)
}

// equalValues compares the way template authors expect: numbers compare
// by value across int and float, strings by content regardless of
// safety marking, everything else by deep equality.
func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	af, aNum := numericValue(a)
	bf, bNum := numericValue(b)
	if aNum || bNum {
		return aNum && bNum && af == bf
	}
	as, aStr := stringContent(a)
	bs, bStr := stringContent(b)
	if aStr || bStr {
		return aStr && bStr && as == bs
	}
	return reflect.DeepEqual(a, b)
}

func numericValue(v any) (float64, bool) {
	switch v.(type) {
	case bool, string, SafeString:
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func stringContent(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case SafeString:
		return string(t), true
	}
	return "", false
}

func doIfEqual(p *Parser, token Token, negate bool) (Node, error) {
	bits := token.SplitContents()
	if len(bits) != 3 {
		return nil, syntaxErrorf(token.Line, "'%s' takes two arguments", bits[0])
	}
	var1, err := NewVariable(bits[1])
	if err != nil {
		return nil, err
	}
	var2, err := NewVariable(bits[2])
	if err != nil {
		return nil, err
	}
	endTag := "end" + bits[0]
	truePart, err := p.Parse("else", endTag)
	if err != nil {
		return nil, err
	}
	var falsePart NodeList
	if next := p.NextToken(); next.Contents == "else" {
		falsePart, err = p.Parse(endTag)
		if err != nil {
			return nil, err
		}
		p.DeleteFirstToken()
	}
	return &ifEqualNode{var1: var1, var2: var2, negate: negate, truePart: truePart, falsePart: falsePart}, nil
}

// loadNode is a no-op at render time; the library merge happened into
// the parse-local tables when the tag compiled.
type loadNode struct {
	library string
}

func (*loadNode) Render(*Context) (string, error) {
	return "", nil
}

func doLoad(p *Parser, token Token) (Node, error) {
	bits := strings.Fields(token.Contents)
	if len(bits) != 2 {
		return nil, syntaxErrorf(token.Line, "'load' statement takes one argument")
	}
	lib, ok := p.Engine().Library(bits[1])
	if !ok {
		return nil, syntaxErrorf(token.Line, "'%s' is not a valid tag library: library is not registered", bits[1])
	}
	p.AddLibrary(lib)
	return &loadNode{library: bits[1]}, nil
}

type nowNode struct {
	format string
}

func (n *nowNode) Render(c *Context) (string, error) {
	return FormatDate(c.Engine().Now(), n.format), nil
}

func doNow(p *Parser, token Token) (Node, error) {
	bits := strings.Split(token.Contents, "\"")
	if len(bits) != 3 {
		return nil, syntaxErrorf(token.Line, "'now' statement takes one argument")
	}
	return &nowNode{format: bits[1]}, nil
}

// regroupNode buckets consecutive elements of a sequence by a common
// attribute into grouper/list dicts bound under the output name. The
// input must already be sorted by that attribute; only adjacent equal
// groupers merge.
type regroupNode struct {
	target  *FilterExpression
	attr    *Variable
	varName string
}

func (n *regroupNode) Render(c *Context) (string, error) {
	resolved, err := n.target.Resolve(c)
	if err != nil {
		return "", err
	}
	if isInvalidMarker(resolved, c) {
		c.Set(n.varName, []map[string]any{})
		return "", nil
	}
	var groups []map[string]any
	for _, obj := range toSlice(resolved) {
		scratch := NewContext(map[string]any{"var": obj})
		scratch.bind(c.Engine())
		grouper, err := n.attr.Resolve(scratch)
		if err != nil {
			var missing *VariableDoesNotExist
			if !errors.As(err, &missing) {
				return "", err
			}
			grouper = nil
		}
		if len(groups) > 0 && repr(groups[len(groups)-1]["grouper"]) == repr(grouper) {
			last := groups[len(groups)-1]
			last["list"] = append(last["list"].([]any), obj)
		} else {
			groups = append(groups, map[string]any{"grouper": grouper, "list": []any{obj}})
		}
	}
	c.Set(n.varName, groups)
	return "", nil
}

// repr gives the stable form used for grouper equality, so values of
// different dynamic types never merge by accident.
func repr(v any) string {
	return fmt.Sprintf("%#v", v)
}

func doRegroup(p *Parser, token Token) (Node, error) {
	first := splitWords(token.Contents, 4)
	if len(first) != 4 {
		return nil, syntaxErrorf(token.Line, "'regroup' tag takes five arguments")
	}
	if first[2] != "by" {
		return nil, syntaxErrorf(token.Line, "second argument to 'regroup' tag must be 'by'")
	}
	rest := strings.Fields(first[3])
	if len(rest) < 3 || rest[len(rest)-2] != "as" {
		return nil, syntaxErrorf(token.Line, "next-to-last argument to 'regroup' tag must be 'as'")
	}
	target, err := p.CompileFilter(first[1])
	if err != nil {
		return nil, err
	}
	attr, err := NewVariable("var." + strings.Join(rest[:len(rest)-2], " "))
	if err != nil {
		return nil, err
	}
	return &regroupNode{target: target, attr: attr, varName: rest[len(rest)-1]}, nil
}

// splitWords splits on whitespace runs into at most n fields, with the
// remainder preserved verbatim in the last field.
func splitWords(s string, n int) []string {
	var out []string
	s = strings.TrimSpace(s)
	for s != "" && len(out) < n-1 {
		i := strings.IndexFunc(s, unicode.IsSpace)
		if i < 0 {
			break
		}
		out = append(out, s[:i])
		s = strings.TrimLeftFunc(s[i:], unicode.IsSpace)
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

// ssiNode inlines a file by absolute path at render time. Reads are
// restricted to the engine's allowed include roots; failures render as
// empty output, or as a bracketed notice when debug is on.
type ssiNode struct {
	filepath string
	parsed   bool
}

func (n *ssiNode) Render(c *Context) (string, error) {
	e := c.Engine()
	if !includeAllowed(n.filepath, e.AllowedIncludeRoots()) {
		if e.Debug() {
			return "[Didn't have permission to include file]", nil
		}
		return "", nil
	}
	raw, err := os.ReadFile(n.filepath)
	if err != nil {
		return "", nil
	}
	output := string(raw)
	if !n.parsed {
		return output, nil
	}
	t, err := e.FromString(output)
	if err != nil {
		if e.Debug() {
			return fmt.Sprintf("[Included template had syntax error: %s]", err), nil
		}
		return "", nil
	}
	// Render against the live context so enclosing loop and cycle state
	// stays visible to the included template.
	return t.nodelist.Render(c)
}

func includeAllowed(path string, roots []string) bool {
	for _, root := range roots {
		if root != "" && strings.HasPrefix(path, root) {
			return true
		}
	}
	return false
}

func doSsi(p *Parser, token Token) (Node, error) {
	bits := strings.Fields(token.Contents)
	if len(bits) != 2 && len(bits) != 3 {
		return nil, syntaxErrorf(token.Line, "'ssi' tag takes one argument: the path to the file to be included")
	}
	parsed := false
	if len(bits) == 3 {
		if bits[2] != "parsed" {
			return nil, syntaxErrorf(token.Line, "Second (optional) argument to %s tag must be 'parsed'", bits[0])
		}
		parsed = true
	}
	return &ssiNode{filepath: bits[1], parsed: parsed}, nil
}

var templateTagMapping = map[string]string{
	"openblock":     BlockTagStart,
	"closeblock":    BlockTagEnd,
	"openvariable":  VariableTagStart,
	"closevariable": VariableTagEnd,
	"openbrace":     "{",
	"closebrace":    "}",
	"opencomment":   CommentTagStart,
	"closecomment":  CommentTagEnd,
}

// templateTagNode emits one of the delimiter sequences literally, since
// the template syntax has no escape character.
type templateTagNode struct {
	tagtype string
}

func (n *templateTagNode) Render(*Context) (string, error) {
	return templateTagMapping[n.tagtype], nil
}

func doTemplateTag(p *Parser, token Token) (Node, error) {
	bits := strings.Fields(token.Contents)
	if len(bits) != 2 {
		return nil, syntaxErrorf(token.Line, "'templatetag' statement takes one argument")
	}
	if _, ok := templateTagMapping[bits[1]]; !ok {
		names := make([]string, 0, len(templateTagMapping))
		for name := range templateTagMapping {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, syntaxErrorf(token.Line, "Invalid templatetag argument: '%s'. Must be one of: %s",
			bits[1], strings.Join(names, ", "))
	}
	return &templateTagNode{tagtype: bits[1]}, nil
}

// verbatimNode holds pre-rendered literal output. The lexer already
// demoted everything inside the block to text, so the body flattens to
// one string at compile time.
type verbatimNode struct {
	content string
}

func (n *verbatimNode) Render(*Context) (string, error) {
	return n.content, nil
}

func doVerbatim(p *Parser, token Token) (Node, error) {
	body, err := p.Parse("endverbatim")
	if err != nil {
		return nil, err
	}
	p.DeleteFirstToken()
	var b strings.Builder
	for _, node := range body {
		if text, ok := node.(*TextNode); ok {
			b.WriteString(text.Text)
		}
	}
	return &verbatimNode{content: b.String()}, nil
}

// widthRatioNode scales value/maxvalue to a width, rounding half away
// from zero. Any resolution or numeric failure renders as empty.
type widthRatioNode struct {
	value    *FilterExpression
	maxValue *FilterExpression
	maxWidth int
}

func (n *widthRatioNode) Render(c *Context) (string, error) {
	value, err := n.value.Resolve(c)
	if err != nil {
		return "", err
	}
	maxValue, err := n.maxValue.Resolve(c)
	if err != nil {
		return "", err
	}
	v, verr := cast.ToFloat64E(value)
	m, merr := cast.ToFloat64E(maxValue)
	if verr != nil || merr != nil || m == 0 {
		return "", nil
	}
	ratio := v / m * float64(n.maxWidth)
	return strconv.Itoa(int(math.Round(ratio))), nil
}

func doWidthRatio(p *Parser, token Token) (Node, error) {
	bits := strings.Fields(token.Contents)
	if len(bits) != 4 {
		return nil, syntaxErrorf(token.Line, "widthratio takes three arguments")
	}
	width, err := strconv.Atoi(bits[3])
	if err != nil {
		return nil, syntaxErrorf(token.Line, "widthratio final argument must be an integer")
	}
	value, err := p.CompileFilter(bits[1])
	if err != nil {
		return nil, err
	}
	maxValue, err := p.CompileFilter(bits[2])
	if err != nil {
		return nil, err
	}
	return &widthRatioNode{value: value, maxValue: maxValue, maxWidth: width}, nil
}
