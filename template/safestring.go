package template

import "html"

// SafeString marks text as safe for direct output: autoescaping leaves
// it untouched. The safe filter returns it, as do filters whose output
// is markup by construction.
type SafeString string

func (s SafeString) String() string {
	return string(s)
}

// MarkSafe wraps a value's string form as SafeString.
func MarkSafe(v any) SafeString {
	return SafeString(Stringify(v))
}

// Escape replaces the HTML metacharacters <, >, &, ' and " with their
// entity forms. The result is safe by definition.
func Escape(v any) SafeString {
	return SafeString(html.EscapeString(Stringify(v)))
}

// conditionalEscape escapes everything except values already marked safe.
func conditionalEscape(v any) string {
	if s, ok := v.(SafeString); ok {
		return string(s)
	}
	return string(Escape(v))
}
