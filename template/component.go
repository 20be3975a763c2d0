package template

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// Component adapts a compiled template to templ's Component interface so it
// can be dropped into templ layouts and handlers. Each Render call on the
// returned component is an independent render against ctx; a nil ctx renders
// with an empty context.
func (t *Template) Component(ctx *Context) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		return t.Execute(w, ctx)
	})
}

// RenderComponent renders a templ component to a string that is safe to
// interpolate without further escaping. Use it to pass templ-generated
// markup into a Context:
//
//	html, err := template.RenderComponent(ctx, views.Button("Save"))
//	c := template.NewContext(map[string]any{"button": html})
func RenderComponent(ctx context.Context, component templ.Component) (SafeString, error) {
	var buf strings.Builder
	if err := component.Render(ctx, &buf); err != nil {
		return "", err
	}
	return SafeString(buf.String()), nil
}
