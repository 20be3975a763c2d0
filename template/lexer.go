package template

import (
	"regexp"
	"strings"
)

// Template delimiters. The templatetag tag exposes these so authors can
// emit them literally; there is no escape syntax otherwise.
const (
	BlockTagStart    = "{%"
	BlockTagEnd      = "%}"
	VariableTagStart = "{{"
	VariableTagEnd   = "}}"
	CommentTagStart  = "{#"
	CommentTagEnd    = "#}"

	FilterSeparator            = "|"
	FilterArgumentSeparator    = ":"
	VariableAttributeSeparator = "."
)

// tagRe matches one complete block, variable or comment tag. The dot does
// not match newlines, so a tag straddling lines stays literal text.
var tagRe = regexp.MustCompile(`{%.*?%}|{{.*?}}|{#.*?#}`)

// TokenType classifies lexer output.
type TokenType int

const (
	TokenText TokenType = iota
	TokenVar
	TokenBlock
	TokenComment
)

func (t TokenType) String() string {
	switch t {
	case TokenText:
		return "Text"
	case TokenVar:
		return "Var"
	case TokenBlock:
		return "Block"
	case TokenComment:
		return "Comment"
	}
	return "Unknown"
}

// Token is one lexeme of template source. Contents holds the tag body
// with delimiters and surrounding whitespace stripped; for text tokens it
// holds the literal text. Start and End are byte offsets into the source,
// Line is the 1-based line the token starts on.
type Token struct {
	Type     TokenType
	Contents string
	Line     int
	Start    int
	End      int
}

func (t Token) String() string {
	contents := strings.ReplaceAll(t.Contents, "\n", "")
	if len(contents) > 20 {
		contents = contents[:20] + "..."
	}
	return "<" + t.Type.String() + " token: \"" + contents + "\">"
}

// SplitContents splits the token body on whitespace, keeping quoted runs
// together as single bits with their quotes intact. Tags with quoted
// arguments, like now, rely on this instead of a plain Fields split.
func (t Token) SplitContents() []string {
	var bits []string
	s := t.Contents
	i, n := 0, len(s)
	for i < n {
		for i < n && isSpace(s[i]) {
			i++
		}
		if i >= n {
			break
		}
		start := i
		var quote byte
		for i < n {
			c := s[i]
			if quote != 0 {
				if c == '\\' && i+1 < n {
					i += 2
					continue
				}
				if c == quote {
					quote = 0
				}
				i++
				continue
			}
			if c == '"' || c == '\'' {
				quote = c
				i++
				continue
			}
			if isSpace(c) {
				break
			}
			i++
		}
		bits = append(bits, s[start:i])
	}
	return bits
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// Lexer splits template source into a flat token sequence. Tokenizing
// never fails; malformed delimiters fall through as text and surface
// later as parser errors.
type Lexer struct {
	src      string
	verbatim string // end tag that leaves verbatim mode, "" when inactive
}

func NewLexer(src string) *Lexer {
	return &Lexer{src: src}
}

// Tokenize materializes the whole token sequence in one regex pass over
// the source. Text between tag matches becomes verbatim text tokens.
func (l *Lexer) Tokenize() []Token {
	var tokens []Token
	lineno := 1
	last := 0
	for _, loc := range tagRe.FindAllStringIndex(l.src, -1) {
		if loc[0] > last {
			text := l.src[last:loc[0]]
			tokens = append(tokens, l.createToken(text, last, loc[0], lineno, false))
			lineno += strings.Count(text, "\n")
		}
		tokens = append(tokens, l.createToken(l.src[loc[0]:loc[1]], loc[0], loc[1], lineno, true))
		last = loc[1]
	}
	if last < len(l.src) {
		tokens = append(tokens, l.createToken(l.src[last:], last, len(l.src), lineno, false))
	}
	return tokens
}

// createToken classifies one source span. Inside a verbatim block every
// span except the matching end tag is demoted to text.
func (l *Lexer) createToken(s string, start, end, lineno int, inTag bool) Token {
	if inTag {
		// The 2 and len-2 bounds strip the two-character delimiters.
		if strings.HasPrefix(s, BlockTagStart) {
			content := strings.TrimSpace(s[2 : len(s)-2])
			if l.verbatim != "" {
				if content != l.verbatim {
					return Token{Type: TokenText, Contents: s, Line: lineno, Start: start, End: end}
				}
				l.verbatim = ""
			} else if content == "verbatim" || strings.HasPrefix(content, "verbatim ") {
				l.verbatim = "end" + content
			}
			return Token{Type: TokenBlock, Contents: content, Line: lineno, Start: start, End: end}
		}
		if l.verbatim == "" {
			content := strings.TrimSpace(s[2 : len(s)-2])
			if strings.HasPrefix(s, VariableTagStart) {
				return Token{Type: TokenVar, Contents: content, Line: lineno, Start: start, End: end}
			}
			return Token{Type: TokenComment, Contents: content, Line: lineno, Start: start, End: end}
		}
	}
	return Token{Type: TokenText, Contents: s, Line: lineno, Start: start, End: end}
}

// Tokenize is a convenience wrapper around a one-shot Lexer.
func Tokenize(src string) []Token {
	return NewLexer(src).Tokenize()
}
