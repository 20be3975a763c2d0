package template

import "sort"

// TagFunc compiles one block tag into a node. It receives the live
// parser and may call back into Parse to consume the tag's body up to
// its own end tag.
type TagFunc func(p *Parser, token Token) (Node, error)

// Library is a named set of tag and filter registrations. An engine
// merges its builtin libraries into every compilation; libraries
// registered under a name become available to a template through
// {% load name %}.
type Library struct {
	tags    map[string]TagFunc
	filters map[string]Filter
}

func NewLibrary() *Library {
	return &Library{
		tags:    make(map[string]TagFunc),
		filters: make(map[string]Filter),
	}
}

// Tag registers a tag under name, replacing any previous registration.
func (l *Library) Tag(name string, fn TagFunc) {
	l.tags[name] = fn
}

// Filter registers a filter under name. takesArgument declares whether
// the filter requires a colon argument; the expression parser enforces
// the declaration at compile time.
func (l *Library) Filter(name string, fn FilterFunc, takesArgument bool) {
	l.filters[name] = Filter{Func: fn, TakesArgument: takesArgument}
}

// TagNames returns the registered tag names, sorted.
func (l *Library) TagNames() []string {
	names := make([]string, 0, len(l.tags))
	for name := range l.tags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FilterNames returns the registered filter names, sorted.
func (l *Library) FilterNames() []string {
	names := make([]string, 0, len(l.filters))
	for name := range l.filters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
