package markup

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokPunct
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of file"
	case tokIdent:
		return "identifier"
	case tokString:
		return "string"
	case tokNumber:
		return "number"
	default:
		return "punctuation"
	}
}

type token struct {
	kind tokenKind
	text string // raw text for idents, numbers and punctuation
	val  string // decoded value for strings
	pos  Pos
	end  Pos
}

func (t token) describe() string {
	switch t.kind {
	case tokEOF:
		return "end of file"
	case tokString:
		return fmt.Sprintf("string %q", t.val)
	default:
		return fmt.Sprintf("%q", t.text)
	}
}

// lexError is a lexical error at a position.
type lexError struct {
	pos Pos
	msg string
}

func (e *lexError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.pos.Line, e.pos.Column, e.msg)
}

type lexer struct {
	src  string
	off  int
	line int
	col  int
	last Pos
}

var twoCharPuncts = []string{"==", "!=", "<=", ">=", "&&", "||"}

const oneCharPuncts = "{}()[]=;,:.@+-*/%<>!"

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '-'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// tokenize splits src into tokens, ending with a tokEOF token.
func tokenize(src string) ([]token, error) {
	lx := &lexer{src: src, line: 1, col: 1}
	var toks []token
	for {
		t, err := lx.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, t)
		if t.kind == tokEOF {
			return toks, nil
		}
	}
}

func (lx *lexer) pos() Pos {
	return Pos{Line: lx.line, Column: lx.col}
}

func (lx *lexer) peekByte(n int) byte {
	if lx.off+n < len(lx.src) {
		return lx.src[lx.off+n]
	}
	return 0
}

// advance consumes one byte and remembers its position as the last one.
func (lx *lexer) advance() byte {
	c := lx.src[lx.off]
	lx.last = lx.pos()
	lx.off++
	if c == '\n' {
		lx.line++
		lx.col = 1
	} else {
		lx.col++
	}
	return c
}

func (lx *lexer) skipTrivia() error {
	for lx.off < len(lx.src) {
		c := lx.src[lx.off]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			lx.advance()
		case c == '/' && lx.peekByte(1) == '/':
			for lx.off < len(lx.src) && lx.src[lx.off] != '\n' {
				lx.advance()
			}
		case c == '/' && lx.peekByte(1) == '*':
			start := lx.pos()
			lx.advance()
			lx.advance()
			closed := false
			for lx.off < len(lx.src) {
				if lx.src[lx.off] == '*' && lx.peekByte(1) == '/' {
					lx.advance()
					lx.advance()
					closed = true
					break
				}
				lx.advance()
			}
			if !closed {
				return &lexError{pos: start, msg: "unterminated block comment"}
			}
		default:
			return nil
		}
	}
	return nil
}

func (lx *lexer) next() (token, error) {
	if err := lx.skipTrivia(); err != nil {
		return token{}, err
	}
	start := lx.pos()
	if lx.off >= len(lx.src) {
		return token{kind: tokEOF, pos: start, end: start}, nil
	}
	c := lx.src[lx.off]
	switch {
	case isIdentStart(c):
		from := lx.off
		lx.advance()
		for lx.off < len(lx.src) && isIdentPart(lx.src[lx.off]) {
			// A trailing dash belongs to the next token (`a -1`).
			if lx.src[lx.off] == '-' && !(lx.off+1 < len(lx.src) && isIdentPart(lx.src[lx.off+1]) && lx.src[lx.off+1] != '-') {
				break
			}
			lx.advance()
		}
		return token{kind: tokIdent, text: lx.src[from:lx.off], pos: start, end: lx.last}, nil
	case isDigit(c):
		from := lx.off
		for lx.off < len(lx.src) && isDigit(lx.src[lx.off]) {
			lx.advance()
		}
		if lx.off < len(lx.src) && lx.src[lx.off] == '.' && isDigit(lx.peekByte(1)) {
			lx.advance()
			for lx.off < len(lx.src) && isDigit(lx.src[lx.off]) {
				lx.advance()
			}
		}
		return token{kind: tokNumber, text: lx.src[from:lx.off], pos: start, end: lx.last}, nil
	case c == '"' || c == '\'':
		return lx.lexString(start)
	}
	for _, p := range twoCharPuncts {
		if strings.HasPrefix(lx.src[lx.off:], p) {
			lx.advance()
			lx.advance()
			return token{kind: tokPunct, text: p, pos: start, end: lx.last}, nil
		}
	}
	if strings.IndexByte(oneCharPuncts, c) >= 0 {
		lx.advance()
		return token{kind: tokPunct, text: string(c), pos: start, end: lx.last}, nil
	}
	return token{}, &lexError{pos: start, msg: fmt.Sprintf("unexpected character %q", c)}
}

func (lx *lexer) lexString(start Pos) (token, error) {
	from := lx.off
	quote := lx.advance()
	var b strings.Builder
	for lx.off < len(lx.src) {
		c := lx.advance()
		switch c {
		case quote:
			return token{kind: tokString, text: lx.src[from:lx.off], val: b.String(), pos: start, end: lx.last}, nil
		case '\\':
			if lx.off >= len(lx.src) {
				return token{}, &lexError{pos: start, msg: "unterminated string"}
			}
			e := lx.advance()
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(e)
			}
		default:
			b.WriteByte(c)
		}
	}
	return token{}, &lexError{pos: start, msg: "unterminated string"}
}
