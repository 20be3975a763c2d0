package template

import (
	"errors"
	"strings"
)

// Parser consumes the flat token stream and builds the node tree. Tag
// implementations receive the live parser and call back into Parse to
// consume their own bodies up to a stop tag; that mutual recursion is
// the entire parsing model.
type Parser struct {
	tokens       []Token // reversed: the next token is the last element
	tags         map[string]TagFunc
	filters      map[string]Filter
	engine       *Engine
	commandStack []openTag
	namedCycles  map[string]*cycleNode
}

type openTag struct {
	command string
	token   Token
}

// NewParser builds a parser over tokens with its own tag and filter
// tables. The tables are mutated by {% load %}, so callers hand over
// copies; Engine.FromString snapshots the engine's tables first.
func NewParser(tokens []Token, tags map[string]TagFunc, filters map[string]Filter) *Parser {
	rev := make([]Token, len(tokens))
	for i, t := range tokens {
		rev[len(tokens)-1-i] = t
	}
	if tags == nil {
		tags = make(map[string]TagFunc)
	}
	if filters == nil {
		filters = make(map[string]Filter)
	}
	return &Parser{tokens: rev, tags: tags, filters: filters}
}

// Engine returns the engine this parser compiles for.
func (p *Parser) Engine() *Engine {
	if p.engine != nil {
		return p.engine
	}
	return Default()
}

// NextToken removes and returns the next token.
func (p *Parser) NextToken() Token {
	t := p.tokens[len(p.tokens)-1]
	p.tokens = p.tokens[:len(p.tokens)-1]
	return t
}

// PrependToken pushes a token back so the enclosing Parse call can
// re-examine it. This is how a nested parse hands a stop tag back up.
func (p *Parser) PrependToken(t Token) {
	p.tokens = append(p.tokens, t)
}

// DeleteFirstToken drops the next token. Tags call it to consume their
// own end tag after a Parse(until...) returned.
func (p *Parser) DeleteFirstToken() {
	p.tokens = p.tokens[:len(p.tokens)-1]
}

// SkipPast discards tokens up to and including the named end tag,
// without compiling anything in between.
func (p *Parser) SkipPast(endtag string) error {
	for len(p.tokens) > 0 {
		t := p.NextToken()
		if t.Type == TokenBlock && t.Contents == endtag {
			return nil
		}
	}
	return p.unclosedBlockTag([]string{endtag})
}

// AddLibrary merges a library's tags and filters into this parse only.
// The engine's own tables are not touched.
func (p *Parser) AddLibrary(lib *Library) {
	for name, fn := range lib.tags {
		p.tags[name] = fn
	}
	for name, f := range lib.filters {
		p.filters[name] = f
	}
}

// CompileFilter parses one filter expression against this parser's
// filter table.
func (p *Parser) CompileFilter(token string) (*FilterExpression, error) {
	return parseFilterExpression(token, p.filters)
}

// Parse builds a NodeList until the token stream is exhausted or a block
// tag named in until is reached. A stop tag is pushed back for the
// caller to consume; running out of tokens while until is non-empty is
// an unclosed-tag error.
func (p *Parser) Parse(until ...string) (NodeList, error) {
	nodelist := NodeList{}
	for len(p.tokens) > 0 {
		token := p.NextToken()
		switch token.Type {
		case TokenText:
			nodelist = append(nodelist, &TextNode{Text: token.Contents})
		case TokenVar:
			if token.Contents == "" {
				return nil, p.errorf(token, "Empty variable tag on line %d", token.Line)
			}
			expr, err := p.CompileFilter(token.Contents)
			if err != nil {
				return nil, p.annotate(token, err)
			}
			nodelist = append(nodelist, &VariableNode{expr: expr})
		case TokenBlock:
			if token.Contents == "" {
				return nil, p.errorf(token, "Empty block tag on line %d", token.Line)
			}
			command := strings.Fields(token.Contents)[0]
			if contains(until, command) {
				p.PrependToken(token)
				return nodelist, nil
			}
			p.commandStack = append(p.commandStack, openTag{command, token})
			tagFn, ok := p.tags[command]
			if !ok {
				return nil, p.invalidBlockTag(token, command, until)
			}
			node, err := tagFn(p, token)
			if err != nil {
				return nil, p.annotate(token, err)
			}
			nodelist = append(nodelist, node)
			p.commandStack = p.commandStack[:len(p.commandStack)-1]
		case TokenComment:
			// comments vanish at lex time
		}
	}
	if len(until) > 0 {
		return nil, p.unclosedBlockTag(until)
	}
	return nodelist, nil
}

func (p *Parser) errorf(token Token, format string, args ...any) error {
	err := syntaxErrorf(token.Line, format, args...)
	err.Token = token.Contents
	return err
}

// annotate fills token position info into syntax errors raised while a
// tag or expression was compiling.
func (p *Parser) annotate(token Token, err error) error {
	var serr *SyntaxError
	if errors.As(err, &serr) {
		if serr.Line == 0 {
			serr.Line = token.Line
		}
		if serr.Token == "" {
			serr.Token = token.Contents
		}
		return serr
	}
	return &SyntaxError{Msg: err.Error(), Line: token.Line, Token: token.Contents}
}

func (p *Parser) invalidBlockTag(token Token, command string, until []string) error {
	if len(until) > 0 {
		quoted := make([]string, len(until))
		for i, u := range until {
			quoted[i] = "'" + u + "'"
		}
		return p.errorf(token, "Invalid block tag on line %d: '%s', expected %s. Did you forget to register or load this tag?",
			token.Line, command, textList(quoted, "or"))
	}
	return p.errorf(token, "Invalid block tag on line %d: '%s'. Did you forget to register or load this tag?",
		token.Line, command)
}

func (p *Parser) unclosedBlockTag(until []string) error {
	looking := strings.Join(until, ", ")
	if len(p.commandStack) == 0 {
		return syntaxErrorf(0, "Unclosed tag. Looking for one of: %s.", looking)
	}
	open := p.commandStack[len(p.commandStack)-1]
	p.commandStack = p.commandStack[:len(p.commandStack)-1]
	return p.errorf(open.token, "Unclosed tag on line %d: '%s'. Looking for one of: %s.",
		open.token.Line, open.command, looking)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// textList joins quoted items into prose: 'a', 'b' or 'c'.
func textList(items []string, conj string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " " + conj + " " + items[len(items)-1]
}
