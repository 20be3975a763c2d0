package template

// Context is the stack of variable scopes a template renders against.
// The zero value is not usable; construct with NewContext. The last
// element of dicts is the innermost scope: tags push temporary scopes
// (loop variables and the like) and pop them on the way out.
//
// A Context belongs to a single render call. Concurrent renders of one
// compiled Template each take their own Context.
type Context struct {
	dicts  []map[string]any
	engine *Engine
	render *RenderContext
}

// NewContext returns a context seeded with the given mappings, outermost
// first. With no arguments it starts with one empty scope.
func NewContext(initial ...map[string]any) *Context {
	c := &Context{}
	if len(initial) == 0 {
		c.dicts = []map[string]any{{}}
		return c
	}
	c.dicts = make([]map[string]any, 0, len(initial))
	for _, d := range initial {
		if d == nil {
			d = map[string]any{}
		}
		c.dicts = append(c.dicts, d)
	}
	return c
}

// Push adds an empty innermost scope.
func (c *Context) Push() {
	c.dicts = append(c.dicts, map[string]any{})
}

// Update pushes an entire mapping as the new innermost scope in one step.
func (c *Context) Update(m map[string]any) {
	if m == nil {
		m = map[string]any{}
	}
	c.dicts = append(c.dicts, m)
}

// Pop removes the innermost scope. Popping the last remaining scope is a
// mismatched Push/Pop pair in a tag implementation; it panics with
// ErrContextPop.
func (c *Context) Pop() {
	if len(c.dicts) == 1 {
		panic(ErrContextPop)
	}
	c.dicts = c.dicts[:len(c.dicts)-1]
}

// Set writes into the innermost scope only.
func (c *Context) Set(key string, value any) {
	c.dicts[len(c.dicts)-1][key] = value
}

// Get searches scopes innermost to outermost and returns the first match.
func (c *Context) Get(key string) (any, bool) {
	for i := len(c.dicts) - 1; i >= 0; i-- {
		if v, ok := c.dicts[i][key]; ok {
			return v, true
		}
	}
	return nil, false
}

// Lookup makes Context satisfy Lookuper, so variable resolution treats
// the context itself as the outermost container of every dotted path.
func (c *Context) Lookup(key string) (any, bool) {
	return c.Get(key)
}

// Has reports whether any scope contains key.
func (c *Context) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Delete removes key from the innermost scope only and reports whether
// it was present there. Outer scopes are never touched.
func (c *Context) Delete(key string) bool {
	top := c.dicts[len(c.dicts)-1]
	if _, ok := top[key]; !ok {
		return false
	}
	delete(top, key)
	return true
}

// Flatten merges all scopes into one map, inner values shadowing outer.
func (c *Context) Flatten() map[string]any {
	flat := make(map[string]any)
	for _, d := range c.dicts {
		for k, v := range d {
			flat[k] = v
		}
	}
	return flat
}

// Scopes returns the live scope stack, outermost first. The debug tag
// walks it; callers must not retain it across mutations.
func (c *Context) Scopes() []map[string]any {
	return c.dicts
}

// Engine returns the engine this context is currently rendering under,
// or the default engine when the context has not been bound yet.
func (c *Context) Engine() *Engine {
	if c.engine != nil {
		return c.engine
	}
	return Default()
}

// RenderContext returns the per-render scratch space, creating it on
// first use.
func (c *Context) RenderContext() *RenderContext {
	if c.render == nil {
		c.render = &RenderContext{state: make(map[any]any)}
	}
	return c.render
}

// bind attaches engine-level settings for the duration of one render.
func (c *Context) bind(e *Engine) {
	c.engine = e
}

// RenderContext holds state that is scoped to a single render call but
// shared across a node's visits within it. Stateful tags (cycle,
// ifchanged) key their counters by node identity here, which keeps
// compiled templates free of mutable state and safe to render
// concurrently.
type RenderContext struct {
	state map[any]any
}

// Get returns the state stored under key, if any.
func (rc *RenderContext) Get(key any) (any, bool) {
	v, ok := rc.state[key]
	return v, ok
}

// Set stores state under key.
func (rc *RenderContext) Set(key, value any) {
	rc.state[key] = value
}
