package markup

import (
	"errors"
	"fmt"
	"strconv"
)

// ParseError is a syntax error with its position.
type ParseError struct {
	Pos     Pos
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// Parse parses a whole document. On failure it returns a nil document and
// a single fail-level diagnostic locating the first syntax error.
func Parse(file, src string) (*Document, []Diagnostic) {
	doc, err := ParseDocument(src)
	if err != nil {
		return nil, []Diagnostic{syntaxDiagnostic(file, src, err)}
	}
	return doc, nil
}

// ParseDocument parses src and returns the first syntax error as a
// *ParseError.
func ParseDocument(src string) (doc *Document, err error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	defer p.recover(&err)
	return p.parseDocument(), nil
}

// ParseNode parses a single node written as `kind id { ... }`.
func ParseNode(src string) (n *Node, err error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	defer p.recover(&err)
	n = p.parseNode()
	p.expectEOF()
	return n, nil
}

// ParseExpr parses a standalone expression. A leading `@` is accepted.
func ParseExpr(src string) (e Expr, err error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	defer p.recover(&err)
	if p.isPunct("@") {
		p.next()
	}
	e = p.parseExpr()
	p.expectEOF()
	return e, nil
}

// ParseValue parses a property value: a literal or `@expr`.
func ParseValue(src string) (v Value, err error) {
	p, err := newParser(src)
	if err != nil {
		return Value{}, err
	}
	defer p.recover(&err)
	v = p.parseValue()
	p.expectEOF()
	return v, nil
}

type parser struct {
	toks []token
	i    int
}

func newParser(src string) (*parser, error) {
	toks, err := tokenize(src)
	if err != nil {
		var le *lexError
		if errors.As(err, &le) {
			return nil, &ParseError{Pos: le.pos, Message: le.msg}
		}
		return nil, err
	}
	return &parser{toks: toks}, nil
}

// bailout unwinds the recursive descent on the first error.
type bailout struct {
	err *ParseError
}

func (p *parser) recover(err *error) {
	if r := recover(); r != nil {
		b, ok := r.(bailout)
		if !ok {
			panic(r)
		}
		*err = b.err
	}
}

func (p *parser) fail(pos Pos, format string, args ...any) {
	panic(bailout{err: &ParseError{Pos: pos, Message: fmt.Sprintf(format, args...)}})
}

func (p *parser) cur() token  { return p.toks[p.i] }
func (p *parser) prev() token { return p.toks[p.i-1] }

func (p *parser) peek(n int) token {
	if p.i+n < len(p.toks) {
		return p.toks[p.i+n]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) isPunct(s string) bool {
	t := p.cur()
	return t.kind == tokPunct && t.text == s
}

func (p *parser) expectPunct(s string) token {
	if !p.isPunct(s) {
		p.fail(p.cur().pos, "expected %q, found %s", s, p.cur().describe())
	}
	return p.next()
}

func (p *parser) expectIdent(what string) token {
	if p.cur().kind != tokIdent {
		p.fail(p.cur().pos, "expected %s, found %s", what, p.cur().describe())
	}
	return p.next()
}

func (p *parser) expectEOF() {
	if p.cur().kind != tokEOF {
		p.fail(p.cur().pos, "unexpected %s after end of input", p.cur().describe())
	}
}

func (p *parser) parseDocument() *Document {
	doc := &Document{}
	seen := map[string]bool{}
	for p.cur().kind != tokEOF {
		kw := p.expectIdent("block name (meta, assets or body)")
		if seen[kw.text] {
			p.fail(kw.pos, "duplicate %s block", kw.text)
		}
		seen[kw.text] = true
		switch kw.text {
		case "meta":
			p.expectPunct("{")
			for !p.isPunct("}") {
				doc.Meta = append(doc.Meta, p.parseProperty())
			}
			doc.MetaSpan = Span{Start: kw.pos, End: p.expectPunct("}").end}
		case "assets":
			p.expectPunct("{")
			for !p.isPunct("}") {
				doc.Banks = append(doc.Banks, p.parseNode())
			}
			doc.AssetsSpan = Span{Start: kw.pos, End: p.expectPunct("}").end}
		case "body":
			p.expectPunct("{")
			for !p.isPunct("}") {
				doc.Body = append(doc.Body, p.parseNode())
			}
			doc.BodySpan = Span{Start: kw.pos, End: p.expectPunct("}").end}
		default:
			p.fail(kw.pos, "unknown block %q (expected meta, assets or body)", kw.text)
		}
	}
	if !seen["body"] {
		p.fail(p.cur().pos, "document has no body block")
	}
	return doc
}

func (p *parser) parseNode() *Node {
	kind := p.expectIdent("node kind")
	id := p.expectIdent("node id")
	n := &Node{Kind: kind.text, ID: id.text}
	p.expectPunct("{")
	for !p.isPunct("}") {
		if p.cur().kind == tokEOF {
			p.fail(kind.pos, "unclosed %s %s", kind.text, id.text)
		}
		if p.peek(1).kind == tokPunct && p.peek(1).text == "=" {
			name := p.cur().text
			switch name {
			case "refresh", "transition":
				p.next()
				p.next()
				if p.isPunct("@") {
					p.next()
				}
				e := p.parseExpr()
				p.optionalSemicolon()
				if name == "refresh" {
					n.Refresh = e
				} else {
					n.Transition = e
				}
			default:
				prop := p.parseProperty()
				if _, dup := n.Prop(prop.Name); dup {
					p.fail(p.prev().pos, "duplicate property %q on %s", prop.Name, n.ID)
				}
				n.Props = append(n.Props, prop)
			}
			continue
		}
		n.Children = append(n.Children, p.parseNode())
	}
	n.Span = Span{Start: kind.pos, End: p.next().end}
	return n
}

func (p *parser) optionalSemicolon() {
	if p.isPunct(";") {
		p.next()
	}
}

func (p *parser) parseProperty() Property {
	name := p.expectIdent("property name")
	p.expectPunct("=")
	v := p.parseValue()
	p.optionalSemicolon()
	return Property{Name: name.text, Value: v}
}

func (p *parser) parseValue() Value {
	start := p.cur().pos
	if p.isPunct("@") {
		p.next()
		e := p.parseExpr()
		return Value{Expr: e, Span: Span{Start: start, End: p.prev().end}}
	}
	lit := p.parseLiteral()
	return Value{Literal: &lit, Span: Span{Start: start, End: p.prev().end}}
}

func (p *parser) parseLiteral() Literal {
	t := p.cur()
	switch t.kind {
	case tokString:
		p.next()
		return String(t.val)
	case tokNumber:
		p.next()
		return Number(p.number(t))
	case tokIdent:
		switch t.text {
		case "true", "false":
			p.next()
			return Bool(t.text == "true")
		case "null":
			p.next()
			return Null()
		}
		p.fail(t.pos, "expected value, found %s (dynamic values start with @)", t.describe())
	case tokPunct:
		switch t.text {
		case "-":
			p.next()
			n := p.cur()
			if n.kind != tokNumber {
				p.fail(n.pos, "expected number after '-'")
			}
			p.next()
			return Number(-p.number(n))
		case "[":
			p.next()
			var elems []Literal
			for !p.isPunct("]") {
				elems = append(elems, p.parseLiteral())
				if !p.isPunct(",") {
					break
				}
				p.next()
			}
			p.expectPunct("]")
			return List(elems...)
		}
	}
	p.fail(t.pos, "expected value, found %s", t.describe())
	return Literal{}
}

func (p *parser) number(t token) float64 {
	f, err := strconv.ParseFloat(t.text, 64)
	if err != nil {
		p.fail(t.pos, "invalid number %q", t.text)
	}
	return f
}

var binaryPrec = map[string]int{
	"||": 1,
	"&&": 2,
	"==": 3, "!=": 3,
	"<": 4, "<=": 4, ">": 4, ">=": 4,
	"+": 5, "-": 5,
	"*": 6, "/": 6, "%": 6,
}

// BinaryPrecedence returns the binding strength of a binary operator.
func BinaryPrecedence(op string) int {
	return binaryPrec[op]
}

func (p *parser) parseExpr() Expr {
	return p.parseBinary(1)
}

func (p *parser) parseBinary(minPrec int) Expr {
	x := p.parseUnary()
	for {
		t := p.cur()
		if t.kind != tokPunct {
			return x
		}
		prec := binaryPrec[t.text]
		if prec == 0 || prec < minPrec {
			return x
		}
		p.next()
		y := p.parseBinary(prec + 1)
		x = &Binary{Op: t.text, X: x, Y: y}
	}
}

func (p *parser) parseUnary() Expr {
	if p.isPunct("-") || p.isPunct("!") {
		op := p.next().text
		x := p.parseUnary()
		if lit, ok := x.(*Lit); ok && op == "-" && lit.Value.Kind == LitNumber {
			return &Lit{Value: Number(-lit.Value.Num)}
		}
		return &Unary{Op: op, X: x}
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() Expr {
	x := p.parsePrimary()
	for {
		switch {
		case p.isPunct("."):
			p.next()
			name := p.expectIdent("member name")
			x = &Member{X: x, Name: name.text}
		case p.isPunct("("):
			p.next()
			call := &Call{Fun: x}
			for !p.isPunct(")") {
				var arg Arg
				if p.cur().kind == tokIdent && p.peek(1).kind == tokPunct && p.peek(1).text == ":" {
					arg.Name = p.next().text
					p.next()
				}
				arg.Value = p.parseExpr()
				call.Args = append(call.Args, arg)
				if !p.isPunct(",") {
					break
				}
				p.next()
			}
			p.expectPunct(")")
			x = call
		default:
			return x
		}
	}
}

func (p *parser) parsePrimary() Expr {
	t := p.cur()
	switch t.kind {
	case tokIdent:
		p.next()
		switch t.text {
		case "true", "false":
			return &Lit{Value: Bool(t.text == "true")}
		case "null":
			return &Lit{Value: Null()}
		}
		return &Ident{Name: t.text}
	case tokString:
		p.next()
		return &Lit{Value: String(t.val)}
	case tokNumber:
		p.next()
		return &Lit{Value: Number(p.number(t))}
	case tokPunct:
		switch t.text {
		case "(":
			p.next()
			e := p.parseExpr()
			p.expectPunct(")")
			return e
		case "[":
			p.next()
			list := &ListExpr{}
			for !p.isPunct("]") {
				list.Elems = append(list.Elems, p.parseExpr())
				if !p.isPunct(",") {
					break
				}
				p.next()
			}
			p.expectPunct("]")
			return list
		}
	}
	p.fail(t.pos, "expected expression, found %s", t.describe())
	return nil
}
