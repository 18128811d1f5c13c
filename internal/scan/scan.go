// Package scan locates block delimiters in livedoc source without parsing it.
//
// The scanner is a four-state machine (code, line comment, block comment,
// string) that walks the source once, left to right. Braces are only
// significant in the code state, so delimiters that appear inside strings or
// comments never affect nesting. Malformed input (unterminated strings or
// comments, unbalanced braces) yields a "not found" result instead of an
// error.
package scan

// State is the lexical state a byte was read in.
type State int

const (
	Code State = iota
	LineComment
	BlockComment
	String
)

func (s State) String() string {
	switch s {
	case Code:
		return "code"
	case LineComment:
		return "line-comment"
	case BlockComment:
		return "block-comment"
	case String:
		return "string"
	}
	return "unknown"
}

// NotFound is returned by the offset-returning functions when no match
// exists.
const NotFound = -1

// Scanner walks source bytes and tracks the lexical state.
type Scanner struct {
	src   string
	pos   int
	state State
	quote byte
}

// New returns a scanner positioned at from, which must be in code state.
func New(src string, from int) *Scanner {
	if from < 0 {
		from = 0
	}
	return &Scanner{src: src, pos: from}
}

// State returns the state the scanner will read the next byte in.
func (s *Scanner) State() State {
	return s.state
}

// Next consumes one byte and returns its offset, value and the state it was
// read in. Two-byte comment openers and string escapes are consumed whole
// and reported at the offset of their first byte. ok is false at end of
// input.
func (s *Scanner) Next() (off int, c byte, st State, ok bool) {
	if s.pos >= len(s.src) {
		return NotFound, 0, s.state, false
	}
	off, c = s.pos, s.src[s.pos]
	s.pos++
	switch s.state {
	case Code:
		switch {
		case c == '/' && s.peek() == '/':
			s.pos++
			s.state = LineComment
			return off, c, LineComment, true
		case c == '/' && s.peek() == '*':
			s.pos++
			s.state = BlockComment
			return off, c, BlockComment, true
		case c == '"' || c == '\'':
			s.state = String
			s.quote = c
			return off, c, String, true
		}
		return off, c, Code, true
	case LineComment:
		if c == '\n' {
			s.state = Code
			return off, c, Code, true
		}
		return off, c, LineComment, true
	case BlockComment:
		if c == '*' && s.peek() == '/' {
			s.pos++
			s.state = Code
		}
		return off, c, BlockComment, true
	default:
		switch c {
		case '\\':
			if s.pos < len(s.src) {
				s.pos++
			}
		case s.quote:
			s.state = Code
			s.quote = 0
		}
		return off, c, String, true
	}
}

func (s *Scanner) peek() byte {
	if s.pos < len(s.src) {
		return s.src[s.pos]
	}
	return 0
}

// MatchBrace returns the offset of the `}` matching the `{` at open, or
// NotFound when open is not a brace or the block never closes.
func MatchBrace(src string, open int) int {
	if open < 0 || open >= len(src) || src[open] != '{' {
		return NotFound
	}
	s := New(src, open)
	depth := 0
	for {
		off, c, st, ok := s.Next()
		if !ok {
			return NotFound
		}
		if st != Code {
			continue
		}
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return off
			}
		}
	}
}

// NextCode returns the offset of the first ch at or after from that is read
// in code state.
func NextCode(src string, from int, ch byte) int {
	s := New(src, from)
	for {
		off, c, st, ok := s.Next()
		if !ok {
			return NotFound
		}
		if st == Code && c == ch {
			return off
		}
	}
}

// Block is a located `name [id] { ... }` block.
type Block struct {
	Start int // offset of the name
	Open  int // offset of `{`
	Close int // offset of the matching `}`
}

// FindBlock finds the first block introduced by name (for example "body" or
// "section"), optionally followed by one identifier, at or after from.
func FindBlock(src, name string, from int) (Block, bool) {
	return findHeader(src, name, "", from)
}

// FindNode finds the block `kind id {` at or after from.
func FindNode(src, kind, id string, from int) (Block, bool) {
	return findHeader(src, kind, id, from)
}

func isWordByte(c byte) bool {
	return c == '_' || c == '-' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func findHeader(src, name, id string, from int) (Block, bool) {
	s := New(src, from)
	const (
		idle = iota
		sawName
		sawID
	)
	stage := idle
	start := NotFound
	for {
		off, c, st, ok := s.Next()
		if !ok {
			return Block{}, false
		}
		if st != Code {
			if st == String {
				stage = idle
			}
			continue
		}
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' {
			continue
		}
		if isWordByte(c) {
			// Read the rest of the word while still in code state.
			end := off + 1
			for end < len(src) && isWordByte(src[end]) {
				end++
			}
			word := src[off:end]
			s.pos = end
			atBoundary := off == 0 || !isWordByte(src[off-1])
			switch {
			case stage == sawName && (id == "" || word == id):
				stage = sawID
			case atBoundary && word == name:
				stage = sawName
				start = off
			default:
				stage = idle
			}
			continue
		}
		if c == '{' && (stage == sawID || (stage == sawName && id == "")) {
			closeOff := MatchBrace(src, off)
			if closeOff == NotFound {
				return Block{}, false
			}
			return Block{Start: start, Open: off, Close: closeOff}, true
		}
		stage = idle
	}
}
