package template

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Engine owns the tag and filter tables templates compile against,
// together with rendering policy. There is no process-global registry:
// independently configured engines coexist, and the builtin tags and
// filters are merged in at construction. Registration is guarded, so
// registering while other goroutines compile is safe; each compilation
// works from a snapshot of the tables.
type Engine struct {
	mu        sync.RWMutex
	builtins  *Library
	libraries map[string]*Library

	debug               bool
	autoescape          bool
	stringIfInvalid     string
	charset             string
	allowedIncludeRoots []string
	loader              Loader
	logger              *slog.Logger
	translate           func(string) string
	now                 func() time.Time
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithDebug enables source annotation on compile errors.
func WithDebug(on bool) Option {
	return func(e *Engine) { e.debug = on }
}

// WithAutoescape turns on HTML escaping of rendered variables. Off by
// default; SafeString values pass through untouched either way.
func WithAutoescape(on bool) Option {
	return func(e *Engine) { e.autoescape = on }
}

// WithStringIfInvalid sets the text rendered for missing variables.
func WithStringIfInvalid(s string) Option {
	return func(e *Engine) { e.stringIfInvalid = s }
}

// WithCharset records the output charset advertised by callers that
// serve rendered output. It does not change rendering; Go strings are
// UTF-8 throughout.
func WithCharset(cs string) Option {
	return func(e *Engine) { e.charset = cs }
}

// WithLoader installs the source loader used by FromFile.
func WithLoader(l Loader) Option {
	return func(e *Engine) { e.loader = l }
}

// WithLogger installs a logger; silent variable failures are reported
// through it at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTranslator installs the hook applied to _("...") marked values.
func WithTranslator(fn func(string) string) Option {
	return func(e *Engine) { e.translate = fn }
}

// WithLibrary registers a named library for {% load name %}.
func WithLibrary(name string, lib *Library) Option {
	return func(e *Engine) { e.libraries[name] = lib }
}

// WithAllowedIncludeRoots sets the path prefixes the ssi tag may read.
func WithAllowedIncludeRoots(roots ...string) Option {
	return func(e *Engine) { e.allowedIncludeRoots = roots }
}

// WithTimeSource overrides the clock used by the now tag.
func WithTimeSource(fn func() time.Time) Option {
	return func(e *Engine) { e.now = fn }
}

// New returns an engine with the builtin tags and filters registered.
func New(opts ...Option) *Engine {
	e := &Engine{
		builtins:  BuiltinLibrary(),
		libraries: make(map[string]*Library),
		charset:   "utf-8",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var (
	defaultEngine     *Engine
	defaultEngineOnce sync.Once
)

// Default returns the shared engine used by package-level compilation
// and by contexts that were never bound to an engine.
func Default() *Engine {
	defaultEngineOnce.Do(func() {
		defaultEngine = New()
	})
	return defaultEngine
}

// RegisterTag adds a tag to this engine's builtin set.
func (e *Engine) RegisterTag(name string, fn TagFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.builtins.Tag(name, fn)
}

// UnregisterTag removes a tag from this engine's builtin set.
func (e *Engine) UnregisterTag(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.builtins.tags, name)
}

// RegisterFilter adds a filter to this engine's builtin set.
func (e *Engine) RegisterFilter(name string, fn FilterFunc, takesArgument bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.builtins.Filter(name, fn, takesArgument)
}

// UnregisterFilter removes a filter from this engine's builtin set.
func (e *Engine) UnregisterFilter(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.builtins.filters, name)
}

// AddLibrary registers a named library for {% load name %} after
// construction.
func (e *Engine) AddLibrary(name string, lib *Library) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.libraries[name] = lib
}

// Library returns a registered named library.
func (e *Engine) Library(name string) (*Library, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	lib, ok := e.libraries[name]
	return lib, ok
}

// Tags returns the names of all builtin tags, sorted.
func (e *Engine) Tags() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.builtins.TagNames()
}

// Filters returns the names of all builtin filters, sorted.
func (e *Engine) Filters() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.builtins.FilterNames()
}

// LibraryNames returns the registered load targets, sorted.
func (e *Engine) LibraryNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.libraries))
	for name := range e.libraries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// snapshot copies the current tag and filter tables for one compilation.
// The parser may grow its copy via {% load %} without affecting the
// engine or other compilations in flight.
func (e *Engine) snapshot() (map[string]TagFunc, map[string]Filter) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tags := make(map[string]TagFunc, len(e.builtins.tags))
	for name, fn := range e.builtins.tags {
		tags[name] = fn
	}
	filters := make(map[string]Filter, len(e.builtins.filters))
	for name, f := range e.builtins.filters {
		filters[name] = f
	}
	return tags, filters
}

// Debug reports whether debug annotation is enabled.
func (e *Engine) Debug() bool { return e.debug }

// Autoescape reports whether rendered variables are HTML-escaped.
func (e *Engine) Autoescape() bool { return e.autoescape }

// StringIfInvalid returns the text rendered for missing variables.
func (e *Engine) StringIfInvalid() string { return e.stringIfInvalid }

// Charset returns the configured output charset.
func (e *Engine) Charset() string { return e.charset }

// AllowedIncludeRoots returns the path prefixes the ssi tag may read.
func (e *Engine) AllowedIncludeRoots() []string { return e.allowedIncludeRoots }

// Loader returns the installed source loader, if any.
func (e *Engine) Loader() Loader { return e.loader }

// Now returns the current time from the engine's clock.
func (e *Engine) Now() time.Time {
	if e.now == nil {
		return time.Now()
	}
	return e.now()
}

// Translate runs s through the configured translation hook; the default
// is identity.
func (e *Engine) Translate(s string) string {
	if e.translate == nil {
		return s
	}
	return e.translate(s)
}

// logSilentFailure records an absorbed variable miss at debug level.
// Missing variables are normal operation, so this never rises above
// debug.
func (e *Engine) logSilentFailure(expr string, err error) {
	if e.logger == nil {
		return
	}
	e.logger.Debug("silent variable failure", "expr", expr, "err", err)
}

// FromString compiles template source. Syntax errors surface here; a
// compiled template never fails at render time because of its syntax.
func (e *Engine) FromString(src string) (*Template, error) {
	return e.compile(src, "<string>")
}

// FromFile loads name through the engine's loader and compiles it.
func (e *Engine) FromFile(name string) (*Template, error) {
	if e.loader == nil {
		return nil, fmt.Errorf("template: engine has no loader")
	}
	src, origin, err := e.loader.Load(name)
	if err != nil {
		return nil, err
	}
	t, err := e.compile(src, name)
	if err != nil {
		return nil, err
	}
	t.Origin = origin
	return t, nil
}

func (e *Engine) compile(src, name string) (*Template, error) {
	tokens := Tokenize(src)
	tags, filters := e.snapshot()
	p := NewParser(tokens, tags, filters)
	p.engine = e
	nodelist, err := p.Parse()
	if err != nil {
		if e.debug {
			var serr *SyntaxError
			if errors.As(err, &serr) && serr.Info == nil && serr.Line > 0 {
				serr.Info = exceptionInfo(src, name, serr.Line)
			}
			if name != "" && name != "<string>" {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
		}
		return nil, err
	}
	return &Template{Name: name, Source: src, engine: e, nodelist: nodelist}, nil
}

// FromString compiles src against the default engine.
func FromString(src string) (*Template, error) {
	return Default().FromString(src)
}

// Template is one compiled source string. Compile once, render many:
// the node tree is immutable and a template may render concurrently
// from independent contexts.
type Template struct {
	Name     string
	Origin   Origin
	Source   string
	engine   *Engine
	nodelist NodeList
}

// Nodes exposes the compiled node list for tooling and tests.
func (t *Template) Nodes() NodeList {
	return t.nodelist
}

// Engine returns the engine the template was compiled by.
func (t *Template) Engine() *Engine {
	return t.engine
}

// Render evaluates the template against ctx. A nil ctx renders with one
// empty scope. Per-render tag state (cycle counters and the like) is
// reset for every call.
func (t *Template) Render(ctx *Context) (string, error) {
	if ctx == nil {
		ctx = NewContext()
	}
	ctx.bind(t.engine)
	ctx.render = &RenderContext{state: make(map[any]any)}
	return t.nodelist.Render(ctx)
}

// Execute renders the template into w.
func (t *Template) Execute(w io.Writer, ctx *Context) error {
	out, err := t.Render(ctx)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}
