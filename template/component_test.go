package template

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateComponent(t *testing.T) {
	tmpl, err := New().FromString("Hello {{ name }}!")
	require.NoError(t, err)

	comp := tmpl.Component(NewContext(map[string]any{"name": "World"}))

	var buf strings.Builder
	require.NoError(t, comp.Render(context.Background(), &buf))
	assert.Equal(t, "Hello World!", buf.String())
}

func TestTemplateComponentNilContext(t *testing.T) {
	tmpl, err := New().FromString("static only")
	require.NoError(t, err)

	var buf strings.Builder
	require.NoError(t, tmpl.Component(nil).Render(context.Background(), &buf))
	assert.Equal(t, "static only", buf.String())
}

func TestTemplateComponentRendersIndependently(t *testing.T) {
	e := New()
	tmpl, err := e.FromString("{% for x in items %}{% cycle a,b %}{% endfor %}")
	require.NoError(t, err)

	comp := tmpl.Component(NewContext(map[string]any{"items": []any{1, 2, 3}}))

	for i := 0; i < 2; i++ {
		var buf strings.Builder
		require.NoError(t, comp.Render(context.Background(), &buf))
		assert.Equal(t, "aba", buf.String())
	}
}

func TestRenderComponent(t *testing.T) {
	button := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<button class="primary">Save</button>`)
		return err
	})

	html, err := RenderComponent(context.Background(), button)
	require.NoError(t, err)
	assert.Equal(t, SafeString(`<button class="primary">Save</button>`), html)

	// The returned markup survives an autoescaping render unmangled.
	e := New(WithAutoescape(true))
	tmpl, err := e.FromString("<div>{{ button }}</div>")
	require.NoError(t, err)

	out, err := tmpl.Render(NewContext(map[string]any{"button": html}))
	require.NoError(t, err)
	assert.Equal(t, `<div><button class="primary">Save</button></div>`, out)
}

func TestRenderComponentError(t *testing.T) {
	broken := templ.ComponentFunc(func(_ context.Context, _ io.Writer) error {
		return errors.New("render exploded")
	})

	html, err := RenderComponent(context.Background(), broken)
	assert.EqualError(t, err, "render exploded")
	assert.Equal(t, SafeString(""), html)
}
