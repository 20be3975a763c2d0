package template

import (
	"fmt"
	"math"
	"math/rand/v2"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cast"
	xhtml "golang.org/x/net/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

func registerDefaultFilters(lib *Library) {
	lib.Filter("add", filterAdd, true)
	lib.Filter("addslashes", filterAddSlashes, false)
	lib.Filter("capfirst", filterCapFirst, false)
	lib.Filter("center", filterCenter, true)
	lib.Filter("cut", filterCut, true)
	lib.Filter("date", filterDate, true)
	lib.Filter("default", filterDefault, true)
	lib.Filter("default_if_none", filterDefaultIfNone, true)
	lib.Filter("dictsort", filterDictSort, true)
	lib.Filter("dictsortreversed", filterDictSortReversed, true)
	lib.Filter("divisibleby", filterDivisibleBy, true)
	lib.Filter("escape", filterEscape, false)
	lib.Filter("filesizeformat", filterFileSizeFormat, false)
	lib.Filter("first", filterFirst, false)
	lib.Filter("floatformat", filterFloatFormat, false)
	lib.Filter("get_digit", filterGetDigit, true)
	lib.Filter("join", filterJoin, true)
	lib.Filter("last", filterLast, false)
	lib.Filter("length", filterLength, false)
	lib.Filter("length_is", filterLengthIs, true)
	lib.Filter("linebreaksbr", filterLineBreaksBr, false)
	lib.Filter("ljust", filterLjust, true)
	lib.Filter("lower", filterLower, false)
	lib.Filter("pluralize", filterPluralize, false)
	lib.Filter("random", filterRandom, false)
	lib.Filter("rjust", filterRjust, true)
	lib.Filter("safe", filterSafe, false)
	lib.Filter("slice", filterSlice, true)
	lib.Filter("slugify", filterSlugify, false)
	lib.Filter("stringformat", filterStringFormat, true)
	lib.Filter("striptags", filterStripTags, false)
	lib.Filter("time", filterTime, true)
	lib.Filter("timesince", filterTimeSince, false)
	lib.Filter("title", filterTitle, false)
	lib.Filter("truncatewords", filterTruncateWords, true)
	lib.Filter("upper", filterUpper, false)
	lib.Filter("urlencode", filterURLEncode, false)
	lib.Filter("wordcount", filterWordCount, false)
	lib.Filter("wordwrap", filterWordWrap, true)
	lib.Filter("yesno", filterYesNo, true)
}

// String filters. Each works on the value's string form; failures fall
// back to the untouched value or empty output rather than erroring,
// matching how template authors expect filters to degrade.

func filterAddSlashes(value any, _ any) (any, error) {
	s := Stringify(value)
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return s, nil
}

func filterCapFirst(value any, _ any) (any, error) {
	return capitalize(Stringify(value)), nil
}

func filterCut(value any, arg any) (any, error) {
	return strings.ReplaceAll(Stringify(value), Stringify(arg), ""), nil
}

func filterEscape(value any, _ any) (any, error) {
	return SafeString(conditionalEscape(value)), nil
}

func filterLower(value any, _ any) (any, error) {
	return strings.ToLower(Stringify(value)), nil
}

func filterUpper(value any, _ any) (any, error) {
	return strings.ToUpper(Stringify(value)), nil
}

var titleCaser = cases.Title(language.English)

func filterTitle(value any, _ any) (any, error) {
	return titleCaser.String(Stringify(value)), nil
}

var (
	slugInvalidRe  = regexp.MustCompile(`[^\w\s-]`)
	slugCollapseRe = regexp.MustCompile(`[-\s]+`)
)

// filterSlugify folds the value to ASCII, drops everything that is not
// alphanumeric, underscore, hyphen or whitespace, and collapses runs of
// hyphens and whitespace into single hyphens.
func filterSlugify(value any, _ any) (any, error) {
	decomposed := norm.NFKD.String(Stringify(value))
	var ascii strings.Builder
	for _, r := range decomposed {
		if r < 128 {
			ascii.WriteRune(r)
		}
	}
	s := strings.ToLower(ascii.String())
	s = slugInvalidRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = slugCollapseRe.ReplaceAllString(s, "-")
	return SafeString(strings.Trim(s, "-_")), nil
}

// filterStringFormat formats the value with a fmt verb written without
// its leading percent sign, as in {{ value|stringformat:"03d" }}.
func filterStringFormat(value any, arg any) (any, error) {
	out := fmt.Sprintf("%"+Stringify(arg), value)
	if strings.Contains(out, "%!") {
		return "", nil
	}
	return out, nil
}

func filterTruncateWords(value any, arg any) (any, error) {
	n, err := cast.ToIntE(arg)
	if err != nil {
		return value, nil
	}
	words := strings.Fields(Stringify(value))
	if len(words) > n {
		if n < 0 {
			n = 0
		}
		words = append(words[:n], "...")
	}
	return strings.Join(words, " "), nil
}

func filterWordCount(value any, _ any) (any, error) {
	return len(strings.Fields(Stringify(value))), nil
}

func filterWordWrap(value any, arg any) (any, error) {
	width, err := cast.ToIntE(arg)
	if err != nil || width <= 0 {
		return value, nil
	}
	return wrapText(Stringify(value), width), nil
}

// wrapText breaks lines longer than width at spaces. Existing newlines
// are kept, and a word longer than the width is never split.
func wrapText(text string, width int) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		for len(line) > width {
			cut := strings.LastIndex(line[:width+1], " ")
			if cut < 0 {
				cut = strings.Index(line, " ")
				if cut < 0 {
					break
				}
			}
			out = append(out, line[:cut])
			line = line[cut+1:]
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func filterLjust(value any, arg any) (any, error) {
	width, err := cast.ToIntE(arg)
	if err != nil {
		return value, nil
	}
	s := Stringify(value)
	if pad := width - utf8.RuneCountInString(s); pad > 0 {
		s += strings.Repeat(" ", pad)
	}
	return s, nil
}

func filterRjust(value any, arg any) (any, error) {
	width, err := cast.ToIntE(arg)
	if err != nil {
		return value, nil
	}
	s := Stringify(value)
	if pad := width - utf8.RuneCountInString(s); pad > 0 {
		s = strings.Repeat(" ", pad) + s
	}
	return s, nil
}

func filterCenter(value any, arg any) (any, error) {
	width, err := cast.ToIntE(arg)
	if err != nil {
		return value, nil
	}
	s := Stringify(value)
	marg := width - utf8.RuneCountInString(s)
	if marg <= 0 {
		return s, nil
	}
	// Odd margins put the extra space on the left for odd widths, the
	// same tie-break str.center uses.
	left := marg/2 + (marg & width & 1)
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", marg-left), nil
}

func filterLineBreaksBr(value any, _ any) (any, error) {
	s := Stringify(value)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return SafeString(strings.ReplaceAll(s, "\n", "<br />")), nil
}

// filterStripTags removes markup by walking the value through an HTML
// tokenizer and keeping only text tokens.
func filterStripTags(value any, _ any) (any, error) {
	var b strings.Builder
	tz := xhtml.NewTokenizer(strings.NewReader(Stringify(value)))
	for {
		switch tz.Next() {
		case xhtml.ErrorToken:
			return b.String(), nil
		case xhtml.TextToken:
			b.Write(tz.Text())
		}
	}
}

func filterURLEncode(value any, _ any) (any, error) {
	return urlQuote(Stringify(value), "/"), nil
}

// urlQuote percent-encodes everything except unreserved characters and
// the bytes listed in safe.
func urlQuote(s, safe string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '_', c == '.', c == '-', c == '~':
			b.WriteByte(c)
		case strings.IndexByte(safe, c) >= 0:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// List filters.

func filterFirst(value any, _ any) (any, error) {
	items := toSlice(value)
	if len(items) == 0 {
		return "", nil
	}
	return items[0], nil
}

func filterLast(value any, _ any) (any, error) {
	items := toSlice(value)
	if len(items) == 0 {
		return "", nil
	}
	return items[len(items)-1], nil
}

func filterJoin(value any, arg any) (any, error) {
	items := toSlice(value)
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = Stringify(item)
	}
	return strings.Join(parts, Stringify(arg)), nil
}

func filterLength(value any, _ any) (any, error) {
	return valueLength(value), nil
}

func filterLengthIs(value any, arg any) (any, error) {
	n, err := cast.ToIntE(arg)
	if err != nil {
		return "", nil
	}
	return valueLength(value) == n, nil
}

// valueLength counts runes for strings and elements for containers;
// anything else has length zero.
func valueLength(v any) int {
	switch t := v.(type) {
	case string:
		return utf8.RuneCountInString(t)
	case SafeString:
		return utf8.RuneCountInString(string(t))
	}
	return len(toSlice(v))
}

func filterRandom(value any, _ any) (any, error) {
	items := toSlice(value)
	if len(items) == 0 {
		return "", nil
	}
	return items[rand.IntN(len(items))], nil
}

// filterSlice applies a "start:stop" slice with Python index semantics:
// either bound may be omitted or negative, and out-of-range bounds clamp
// instead of failing. Strings slice to strings by rune.
func filterSlice(value any, arg any) (any, error) {
	parts := strings.Split(Stringify(arg), ":")
	if len(parts) > 3 || (len(parts) == 3 && parts[2] != "") {
		return value, nil
	}
	stopS := ""
	if len(parts) > 1 {
		stopS = parts[1]
	}
	if s, ok := stringContent(value); ok {
		runes := []rune(s)
		start, stop, ok := sliceBounds(len(runes), parts[0], stopS)
		if !ok {
			return value, nil
		}
		return string(runes[start:stop]), nil
	}
	items := toSlice(value)
	start, stop, ok := sliceBounds(len(items), parts[0], stopS)
	if !ok {
		return value, nil
	}
	return items[start:stop], nil
}

func sliceBounds(n int, startS, stopS string) (int, int, bool) {
	start, stop := 0, n
	if startS != "" {
		v, err := strconv.Atoi(startS)
		if err != nil {
			return 0, 0, false
		}
		start = clampIndex(v, n)
	}
	if stopS != "" {
		v, err := strconv.Atoi(stopS)
		if err != nil {
			return 0, 0, false
		}
		stop = clampIndex(v, n)
	}
	if stop < start {
		stop = start
	}
	return start, stop, true
}

func clampIndex(i, n int) int {
	if i < 0 {
		i += n
		if i < 0 {
			i = 0
		}
	}
	if i > n {
		i = n
	}
	return i
}

func filterDictSort(value any, arg any) (any, error) {
	return dictSort(value, arg, false)
}

func filterDictSortReversed(value any, arg any) (any, error) {
	return dictSort(value, arg, true)
}

func dictSort(value any, arg any, reverse bool) (any, error) {
	resolver := propertyResolver(Stringify(arg))
	if resolver == nil {
		return "", nil
	}
	items := toSlice(value)
	type pair struct{ key, val any }
	pairs := make([]pair, len(items))
	for i, item := range items {
		pairs[i] = pair{key: resolver(item), val: item}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		if reverse {
			i, j = j, i
		}
		return lessValue(pairs[i].key, pairs[j].key)
	})
	out := make([]any, len(pairs))
	for i, p := range pairs {
		out[i] = p.val
	}
	return out, nil
}

// propertyResolver builds the sort key extractor for dictsort: a whole
// number indexes into each element, anything else is a dotted lookup
// path applied to it.
func propertyResolver(arg string) func(any) any {
	if idx, err := strconv.Atoi(arg); err == nil {
		return func(v any) any {
			items := toSlice(v)
			if idx >= 0 && idx < len(items) {
				return items[idx]
			}
			return nil
		}
	}
	v, err := NewVariable("var" + VariableAttributeSeparator + arg)
	if err != nil {
		return nil
	}
	return func(obj any) any {
		val, err := v.Resolve(NewContext(map[string]any{"var": obj}))
		if err != nil {
			return nil
		}
		return val
	}
}

func lessValue(a, b any) bool {
	af, aNum := numericValue(a)
	bf, bNum := numericValue(b)
	if aNum && bNum {
		return af < bf
	}
	return Stringify(a) < Stringify(b)
}

// Number and logic filters.

func filterAdd(value any, arg any) (any, error) {
	vi, verr := cast.ToIntE(value)
	ai, aerr := cast.ToIntE(arg)
	if verr == nil && aerr == nil {
		return vi + ai, nil
	}
	vs, vIsStr := stringContent(value)
	as, aIsStr := stringContent(arg)
	if vIsStr && aIsStr {
		return vs + as, nil
	}
	return "", nil
}

func filterGetDigit(value any, arg any) (any, error) {
	n, err := cast.ToIntE(arg)
	if err != nil {
		return value, nil
	}
	v, err := cast.ToIntE(value)
	if err != nil {
		return value, nil
	}
	if n < 1 {
		return value, nil
	}
	s := strconv.Itoa(v)
	if n > len(s) {
		return 0, nil
	}
	d := s[len(s)-n]
	if d < '0' || d > '9' {
		return 0, nil
	}
	return int(d - '0'), nil
}

func filterDefault(value any, arg any) (any, error) {
	if IsTrue(value) {
		return value, nil
	}
	return arg, nil
}

func filterDefaultIfNone(value any, arg any) (any, error) {
	if value == nil {
		return arg, nil
	}
	return value, nil
}

// filterDivisibleBy is deliberately strict: a non-numeric operand or a
// zero divisor is an author error that fails the render.
func filterDivisibleBy(value any, arg any) (any, error) {
	v, err := cast.ToIntE(value)
	if err != nil {
		return nil, err
	}
	d, err := cast.ToIntE(arg)
	if err != nil {
		return nil, err
	}
	if d == 0 {
		return nil, fmt.Errorf("division by zero")
	}
	return v%d == 0, nil
}

func filterFileSizeFormat(value any, _ any) (any, error) {
	n, err := cast.ToInt64E(value)
	if err != nil {
		return "0 bytes", nil
	}
	negative := n < 0
	if negative {
		n = -n
	}
	const (
		kb = int64(1) << 10
		mb = int64(1) << 20
		gb = int64(1) << 30
		tb = int64(1) << 40
		pb = int64(1) << 50
	)
	var out string
	switch {
	case n == 1:
		out = "1 byte"
	case n < kb:
		out = fmt.Sprintf("%d bytes", n)
	case n < mb:
		out = fmt.Sprintf("%.1f KB", float64(n)/float64(kb))
	case n < gb:
		out = fmt.Sprintf("%.1f MB", float64(n)/float64(mb))
	case n < tb:
		out = fmt.Sprintf("%.1f GB", float64(n)/float64(gb))
	case n < pb:
		out = fmt.Sprintf("%.1f TB", float64(n)/float64(tb))
	default:
		out = fmt.Sprintf("%.1f PB", float64(n)/float64(pb))
	}
	if negative {
		out = "-" + out
	}
	return out, nil
}

// filterFloatFormat renders a number with one decimal place when it has
// a fractional part and as a plain integer when it does not.
func filterFloatFormat(value any, _ any) (any, error) {
	f, err := cast.ToFloat64E(value)
	if err != nil {
		return "", nil
	}
	if f == math.Trunc(f) {
		return strconv.Itoa(int(f)), nil
	}
	return fmt.Sprintf("%.1f", f), nil
}

func filterPluralize(value any, _ any) (any, error) {
	if f, err := cast.ToFloat64E(value); err == nil {
		if f == 1 {
			return "", nil
		}
		return "s", nil
	}
	if valueLength(value) == 1 {
		return "", nil
	}
	return "s", nil
}

func filterYesNo(value any, arg any) (any, error) {
	bits := strings.Split(Stringify(arg), ",")
	if len(bits) < 2 || len(bits) > 3 {
		return value, nil
	}
	maybe := bits[1]
	if len(bits) == 3 {
		maybe = bits[2]
	}
	if value == nil {
		return maybe, nil
	}
	if IsTrue(value) {
		return bits[0], nil
	}
	return bits[1], nil
}

// Date filters.

func filterDate(value any, arg any) (any, error) {
	t, ok := timeValue(value)
	if !ok {
		return "", nil
	}
	return FormatDate(t, Stringify(arg)), nil
}

func filterTime(value any, arg any) (any, error) {
	t, ok := timeValue(value)
	if !ok {
		return "", nil
	}
	return FormatDate(t, Stringify(arg)), nil
}

func filterTimeSince(value any, _ any) (any, error) {
	t, ok := timeValue(value)
	if !ok {
		return "", nil
	}
	return TimeSince(t, time.Now()), nil
}

func timeValue(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	}
	return time.Time{}, false
}

// Safety.

func filterSafe(value any, _ any) (any, error) {
	return MarkSafe(value), nil
}
