package markup

import "strings"

// Pos is a source position: 1-based line and 1-based byte column.
type Pos struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Span covers a construct from its first byte to its last byte (inclusive).
type Span struct {
	Start Pos `json:"start"`
	End   Pos `json:"end"`
}

// IsZero reports whether the span was never set.
func (s Span) IsZero() bool {
	return s.Start.Line == 0
}

// LitKind discriminates Literal values.
type LitKind int

const (
	LitNull LitKind = iota
	LitString
	LitNumber
	LitBool
	LitList
)

// Literal is a constant value: string, number, boolean, null or list.
type Literal struct {
	Kind LitKind
	Str  string
	Num  float64
	Bool bool
	List []Literal
}

// String returns a string literal.
func String(s string) Literal { return Literal{Kind: LitString, Str: s} }

// Number returns a number literal.
func Number(f float64) Literal { return Literal{Kind: LitNumber, Num: f} }

// Bool returns a boolean literal.
func Bool(b bool) Literal { return Literal{Kind: LitBool, Bool: b} }

// Null returns the null literal.
func Null() Literal { return Literal{Kind: LitNull} }

// List returns a list literal.
func List(elems ...Literal) Literal { return Literal{Kind: LitList, List: elems} }

// Value is a property value: exactly one of Literal or Expr is set.
type Value struct {
	Literal *Literal
	Expr    Expr
	Span    Span
}

// LiteralValue wraps a literal into a Value.
func LiteralValue(l Literal) Value { return Value{Literal: &l} }

// DynamicValue wraps an expression into a Value.
func DynamicValue(e Expr) Value { return Value{Expr: e} }

// IsDynamic reports whether the value is computed.
func (v Value) IsDynamic() bool { return v.Expr != nil }

// Property is one `name = value;` item.
type Property struct {
	Name  string
	Value Value
}

// Node is one `kind id { ... }` block.
type Node struct {
	Kind       string
	ID         string
	Refresh    Expr
	Transition Expr
	Props      []Property
	Children   []*Node
	Span       Span
}

// Prop returns the named property value.
func (n *Node) Prop(name string) (Value, bool) {
	for _, p := range n.Props {
		if p.Name == name {
			return p.Value, true
		}
	}
	return Value{}, false
}

// StringProp returns the named property when it is a literal string.
func (n *Node) StringProp(name string) (string, bool) {
	v, ok := n.Prop(name)
	if !ok || v.Literal == nil || v.Literal.Kind != LitString {
		return "", false
	}
	return v.Literal.Str, true
}

// SetProp overwrites the named property or appends it.
func (n *Node) SetProp(name string, v Value) {
	for i := range n.Props {
		if n.Props[i].Name == name {
			n.Props[i].Value = v
			return
		}
	}
	n.Props = append(n.Props, Property{Name: name, Value: v})
}

// DeleteProp removes the named property if present.
func (n *Node) DeleteProp(name string) {
	out := n.Props[:0]
	for _, p := range n.Props {
		if p.Name != name {
			out = append(out, p)
		}
	}
	n.Props = out
}

// Clone returns a deep copy of the node tree. Expressions are shared since
// they are never mutated after parsing.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Props = append([]Property(nil), n.Props...)
	c.Children = make([]*Node, len(n.Children))
	for i, ch := range n.Children {
		c.Children[i] = ch.Clone()
	}
	return &c
}

// ChildIndex returns the position of the child with the given id, or -1.
func (n *Node) ChildIndex(id string) int {
	for i, ch := range n.Children {
		if ch.ID == id {
			return i
		}
	}
	return -1
}

// Document is the parsed form of a whole source file.
type Document struct {
	Meta  []Property
	Banks []*Node
	Body  []*Node

	MetaSpan   Span
	AssetsSpan Span
	BodySpan   Span
}

// Title returns the meta title, if declared as a literal string.
func (d *Document) Title() string {
	for _, p := range d.Meta {
		if p.Name == "title" && p.Value.Literal != nil && p.Value.Literal.Kind == LitString {
			return p.Value.Literal.Str
		}
	}
	return ""
}

// Bank returns the declared asset bank with the given name.
func (d *Document) Bank(name string) *Node {
	for _, b := range d.Banks {
		if b.ID == name {
			return b
		}
	}
	return nil
}

// Walk visits every body node depth-first. Returning false from fn skips
// the node's children.
func (d *Document) Walk(fn func(n, parent *Node, depth int) bool) {
	var visit func(n, parent *Node, depth int)
	visit = func(n, parent *Node, depth int) {
		if !fn(n, parent, depth) {
			return
		}
		for _, ch := range n.Children {
			visit(ch, n, depth+1)
		}
	}
	for _, p := range d.Body {
		visit(p, nil, 0)
	}
}

// Expr is a dynamic expression.
type Expr interface {
	exprNode()
}

// Ident is a bare identifier.
type Ident struct {
	Name string
}

// Lit is a literal inside an expression.
type Lit struct {
	Value Literal
}

// ListExpr is `[a, b, ...]` inside an expression.
type ListExpr struct {
	Elems []Expr
}

// Member is `x.name`.
type Member struct {
	X    Expr
	Name string
}

// Call is `fun(args...)`.
type Call struct {
	Fun  Expr
	Args []Arg
}

// Arg is a positional (Name == "") or named call argument.
type Arg struct {
	Name  string
	Value Expr
}

// Unary is `-x` or `!x`.
type Unary struct {
	Op string
	X  Expr
}

// Binary is `x op y`.
type Binary struct {
	Op string
	X  Expr
	Y  Expr
}

func (*Ident) exprNode()    {}
func (*Lit) exprNode()      {}
func (*ListExpr) exprNode() {}
func (*Member) exprNode()   {}
func (*Call) exprNode()     {}
func (*Unary) exprNode()    {}
func (*Binary) exprNode()   {}

// CallName returns the dotted callee name of a call ("choose",
// "assets.pick"), or "" when e is not a call on a plain name.
func CallName(e Expr) string {
	c, ok := e.(*Call)
	if !ok {
		return ""
	}
	return dottedName(c.Fun)
}

func dottedName(e Expr) string {
	switch x := e.(type) {
	case *Ident:
		return x.Name
	case *Member:
		base := dottedName(x.X)
		if base == "" {
			return ""
		}
		return base + "." + x.Name
	}
	return ""
}

// NamedArg returns the named argument of a call.
func (c *Call) NamedArg(name string) (Expr, bool) {
	for _, a := range c.Args {
		if a.Name == name {
			return a.Value, true
		}
	}
	return nil, false
}

// Positional returns the positional arguments of a call in order.
func (c *Call) Positional() []Expr {
	var out []Expr
	for _, a := range c.Args {
		if a.Name == "" {
			out = append(out, a.Value)
		}
	}
	return out
}

// PolicyName returns the identifier or callee name of a policy expression
// such as `never` or `every(2)`.
func PolicyName(e Expr) string {
	if id, ok := e.(*Ident); ok {
		return id.Name
	}
	return CallName(e)
}

// IsIdent reports whether s is a valid identifier.
func IsIdent(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentPart(s[i]) {
			return false
		}
	}
	return !strings.HasSuffix(s, "-")
}
