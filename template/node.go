package template

import "strings"

// Node is one unit of compiled template structure. Nodes are built once
// at parse time and never mutated afterwards; all per-render state lives
// in the Context passed to Render.
type Node interface {
	Render(c *Context) (string, error)
}

// NodeList is an ordered sequence of nodes rendered by concatenation.
type NodeList []Node

func (nl NodeList) Render(c *Context) (string, error) {
	var b strings.Builder
	for _, n := range nl {
		s, err := n.Render(c)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// TextNode holds literal template text.
type TextNode struct {
	Text string
}

func (n *TextNode) Render(*Context) (string, error) {
	return n.Text, nil
}

// VariableNode renders a compiled {{ ... }} expression into output text.
type VariableNode struct {
	expr *FilterExpression
}

// Expression returns the compiled filter expression, mainly for tests
// and tooling.
func (n *VariableNode) Expression() *FilterExpression {
	return n.expr
}

func (n *VariableNode) Render(c *Context) (string, error) {
	value, err := n.expr.Resolve(c)
	if err != nil {
		return "", err
	}
	return renderValue(value, c), nil
}

// renderValue converts a resolved value to output text, escaping it when
// the engine autoescapes and the value is not marked safe.
func renderValue(value any, c *Context) string {
	if c.Engine().autoescape {
		return conditionalEscape(value)
	}
	return Stringify(value)
}
