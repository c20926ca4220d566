// Package lexer turns AXIS source bytes into a token stream, including
// the synthetic INDENT/DEDENT/NEWLINE tokens the parser needs to see
// indentation as ordinary grammar.
package lexer

import (
	"strings"

	"github.com/axis-lang/axis/internal/diag"
	"github.com/axis-lang/axis/internal/token"
)

// Lexer walks the source byte-by-byte in pull style (input, pos, line),
// plus the indentation stack and paren-depth tracking the line model
// requires.
type Lexer struct {
	file   string
	src    []byte
	pos    int
	line   int
	col    int
	indent []int
	parens int

	pending []token.Token
	atLineStart bool
}

func New(file string, src []byte) *Lexer {
	return &Lexer{
		file:        file,
		src:         normalizeNewlines(src),
		line:        1,
		col:         1,
		indent:      []int{0},
		atLineStart: true,
	}
}

func normalizeNewlines(src []byte) []byte {
	return []byte(strings.ReplaceAll(string(src), "\r\n", "\n"))
}

// Lex tokenizes the entire source in one pass, returning EOF-terminated
// tokens or the first diagnostic encountered.
func Lex(file string, src []byte) ([]token.Token, error) {
	l := New(file, src)
	var out []token.Token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.Kind == token.EOF {
			return out, nil
		}
	}
}

func (l *Lexer) errf(kind diag.Kind, line, col int, format string, args ...interface{}) error {
	return diag.New(kind, l.file, line, col, format, args...)
}

func (l *Lexer) peekByte() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekByteAt(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *Lexer) advance() byte {
	b := l.src[l.pos]
	l.pos++
	if b == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return b
}

func (l *Lexer) next() (token.Token, error) {
	if len(l.pending) > 0 {
		t := l.pending[0]
		l.pending = l.pending[1:]
		return t, nil
	}

	if l.atLineStart && l.parens == 0 {
		tok, handled, err := l.measureIndentation()
		if err != nil {
			return token.Token{}, err
		}
		if handled {
			return tok, nil
		}
	}
	l.atLineStart = false

	l.skipInlineSpaceAndComments()

	line, col := l.line, l.col
	if l.pos >= len(l.src) {
		return l.finalize(line, col)
	}

	b := l.peekByte()
	switch {
	case b == '\n':
		l.advance()
		l.atLineStart = true
		if l.parens > 0 {
			return l.next()
		}
		return token.Token{Kind: token.NEWLINE, Line: line, Col: col}, nil
	case isDigit(b):
		return l.lexNumber(line, col)
	case isIdentStart(b):
		return l.lexIdentOrKeyword(line, col)
	case b == '"':
		return l.lexString(line, col)
	default:
		return l.lexOperator(line, col)
	}
}

// finalize handles EOF: emit a closing NEWLINE if the last line had
// content, then one DEDENT per outstanding indentation level, then EOF.
func (l *Lexer) finalize(line, col int) (token.Token, error) {
	lastLine := strings.TrimLeft(string(l.src[strings.LastIndexByte(string(l.src), '\n')+1:]), " \t")
	if lastLine != "" && lastLine[0] != '#' && !strings.HasPrefix(lastLine, "//") && l.parens == 0 {
		l.pending = append(l.pending, token.Token{Kind: token.NEWLINE, Line: line, Col: col})
	}
	for len(l.indent) > 1 {
		l.indent = l.indent[:len(l.indent)-1]
		l.pending = append(l.pending, token.Token{Kind: token.DEDENT, Line: line, Col: col})
	}
	l.pending = append(l.pending, token.Token{Kind: token.EOF, Line: line, Col: col})
	t := l.pending[0]
	l.pending = l.pending[1:]
	return t, nil
}

func (l *Lexer) skipInlineSpaceAndComments() {
	for l.pos < len(l.src) {
		b := l.peekByte()
		if b == ' ' || b == '\t' {
			l.advance()
			continue
		}
		if b == '/' && l.peekByteAt(1) == '/' || b == '#' {
			for l.pos < len(l.src) && l.peekByte() != '\n' {
				l.advance()
			}
			continue
		}
		break
	}
}

// measureIndentation consumes leading whitespace on a fresh logical
// line, skips blank/comment-only lines without emitting indentation
// tokens, and synthesizes INDENT/DEDENT per the indentation stack.
func (l *Lexer) measureIndentation() (token.Token, bool, error) {
	for {
		start := l.pos
		width := 0
		for l.pos < len(l.src) {
			b := l.peekByte()
			if b == ' ' {
				width++
				l.advance()
			} else if b == '\t' {
				width += 8 - (width % 8)
				l.advance()
			} else {
				break
			}
		}
		line, col := l.line, l.col

		if l.pos >= len(l.src) {
			l.atLineStart = false
			return token.Token{}, false, nil
		}
		b := l.peekByte()
		if b == '\n' || b == '#' || (b == '/' && l.peekByteAt(1) == '/') {
			for l.pos < len(l.src) && l.peekByte() != '\n' {
				l.advance()
			}
			if l.pos < len(l.src) {
				l.advance() // consume the newline itself; blank lines emit nothing
			}
			continue
		}
		_ = start

		top := l.indent[len(l.indent)-1]
		switch {
		case width == top:
			l.atLineStart = false
			return token.Token{}, false, nil
		case width > top:
			l.indent = append(l.indent, width)
			l.atLineStart = false
			return token.Token{Kind: token.INDENT, Line: line, Col: col}, true, nil
		default:
			for len(l.indent) > 1 && l.indent[len(l.indent)-1] > width {
				l.indent = l.indent[:len(l.indent)-1]
				l.pending = append(l.pending, token.Token{Kind: token.DEDENT, Line: line, Col: col})
			}
			if l.indent[len(l.indent)-1] != width {
				return token.Token{}, false, l.errf(diag.IndentationError, line, col,
					"unindent does not match any outer indentation level")
			}
			l.atLineStart = false
			t := l.pending[0]
			l.pending = l.pending[1:]
			return t, true, nil
		}
	}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentCont(b byte) bool { return isIdentStart(b) || isDigit(b) }

func (l *Lexer) lexNumber(line, col int) (token.Token, error) {
	start := l.pos
	radix := 10
	if l.peekByte() == '0' && (l.peekByteAt(1) == 'x' || l.peekByteAt(1) == 'X') {
		radix = 16
		l.advance()
		l.advance()
		start = l.pos
		for l.pos < len(l.src) && isHexDigit(l.peekByte()) {
			l.advance()
		}
	} else if l.peekByte() == '0' && (l.peekByteAt(1) == 'b' || l.peekByteAt(1) == 'B') {
		radix = 2
		l.advance()
		l.advance()
		start = l.pos
		for l.pos < len(l.src) && (l.peekByte() == '0' || l.peekByte() == '1') {
			l.advance()
		}
	} else {
		for l.pos < len(l.src) && isDigit(l.peekByte()) {
			l.advance()
		}
	}
	digits := string(l.src[start:l.pos])
	if digits == "" {
		return token.Token{}, l.errf(diag.LexError, line, col, "malformed numeric literal")
	}
	var v int64
	var err error
	v, err = parseRadix(digits, radix)
	if err != nil {
		return token.Token{}, l.errf(diag.LexError, line, col, "malformed numeric literal %q", digits)
	}
	return token.Token{Kind: token.INT, IntVal: v, Radix: radix, Line: line, Col: col}, nil
}

func isHexDigit(b byte) bool {
	return isDigit(b) || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func parseRadix(s string, radix int) (int64, error) {
	var v int64
	for _, c := range s {
		var d int64
		switch {
		case c >= '0' && c <= '9':
			d = int64(c - '0')
		case c >= 'a' && c <= 'f':
			d = int64(c-'a') + 10
		case c >= 'A' && c <= 'F':
			d = int64(c-'A') + 10
		}
		v = v*int64(radix) + d
	}
	return v, nil
}

func (l *Lexer) lexIdentOrKeyword(line, col int) (token.Token, error) {
	start := l.pos
	for l.pos < len(l.src) && isIdentCont(l.peekByte()) {
		l.advance()
	}
	name := string(l.src[start:l.pos])
	if kind, ok := token.Keywords[name]; ok {
		return token.Token{Kind: kind, Lexeme: name, Line: line, Col: col}, nil
	}
	return token.Token{Kind: token.IDENT, Lexeme: name, Line: line, Col: col}, nil
}

func (l *Lexer) lexString(line, col int) (token.Token, error) {
	l.advance() // opening quote
	var sb []byte
	for {
		if l.pos >= len(l.src) {
			return token.Token{}, l.errf(diag.LexError, line, col, "unterminated string literal")
		}
		b := l.peekByte()
		if b == '"' {
			l.advance()
			break
		}
		if b == '\n' {
			return token.Token{}, l.errf(diag.LexError, line, col, "unterminated string literal")
		}
		if b == '\\' {
			l.advance()
			esc := l.peekByte()
			l.advance()
			switch esc {
			case 'n':
				sb = append(sb, '\n')
			case 't':
				sb = append(sb, '\t')
			case 'r':
				sb = append(sb, '\r')
			case '0':
				sb = append(sb, 0)
			case '\\':
				sb = append(sb, '\\')
			case '"':
				sb = append(sb, '"')
			default:
				return token.Token{}, l.errf(diag.LexError, l.line, l.col, "unknown escape sequence \\%c", esc)
			}
			continue
		}
		sb = append(sb, b)
		l.advance()
	}
	return token.Token{Kind: token.STR, StrVal: sb, Line: line, Col: col}, nil
}

func (l *Lexer) lexOperator(line, col int) (token.Token, error) {
	b := l.advance()
	two := func(next byte, k token.Kind, single token.Kind) token.Token {
		if l.peekByte() == next {
			l.advance()
			return token.Token{Kind: k, Line: line, Col: col}
		}
		return token.Token{Kind: single, Line: line, Col: col}
	}
	switch b {
	case '(':
		l.parens++
		return token.Token{Kind: token.LPAREN, Line: line, Col: col}, nil
	case ')':
		if l.parens > 0 {
			l.parens--
		}
		return token.Token{Kind: token.RPAREN, Line: line, Col: col}, nil
	case ',':
		return token.Token{Kind: token.COMMA, Line: line, Col: col}, nil
	case ':':
		return token.Token{Kind: token.COLON, Line: line, Col: col}, nil
	case '+':
		return token.Token{Kind: token.PLUS, Line: line, Col: col}, nil
	case '-':
		if l.peekByte() == '>' {
			l.advance()
			return token.Token{Kind: token.ARROW, Line: line, Col: col}, nil
		}
		return token.Token{Kind: token.MINUS, Line: line, Col: col}, nil
	case '*':
		return token.Token{Kind: token.STAR, Line: line, Col: col}, nil
	case '/':
		return token.Token{Kind: token.SLASH, Line: line, Col: col}, nil
	case '%':
		return token.Token{Kind: token.PERCENT, Line: line, Col: col}, nil
	case '&':
		return token.Token{Kind: token.AMP, Line: line, Col: col}, nil
	case '|':
		return token.Token{Kind: token.PIPE, Line: line, Col: col}, nil
	case '^':
		return token.Token{Kind: token.CARET, Line: line, Col: col}, nil
	case '<':
		if l.peekByte() == '<' {
			l.advance()
			return token.Token{Kind: token.SHL, Line: line, Col: col}, nil
		}
		return two('=', token.LE, token.LT), nil
	case '>':
		if l.peekByte() == '>' {
			l.advance()
			return token.Token{Kind: token.SHR, Line: line, Col: col}, nil
		}
		return two('=', token.GE, token.GT), nil
	case '=':
		return two('=', token.EQ, token.ASSIGN), nil
	case '!':
		return two('=', token.NEQ, token.BANG), nil
	default:
		return token.Token{}, l.errf(diag.LexError, line, col, "unexpected character %q", string(b))
	}
}
