package markup

import (
	"fmt"
	"sort"
	"strings"
)

// Node kinds.
const (
	KindPage      = "page"
	KindSection   = "section"
	KindParagraph = "paragraph"
	KindText      = "text"
	KindFigure    = "figure"
	KindCallout   = "callout"
	KindTable     = "table"
	KindSlot      = "slot"
	KindBank      = "bank"
)

// allowedChildren lists which kinds may nest under a container kind. Kinds
// missing from the map are leaves.
var allowedChildren = map[string][]string{
	KindPage:      {KindSection},
	KindSection:   {KindParagraph, KindFigure, KindCallout, KindTable, KindSlot},
	KindParagraph: {KindText, KindSlot},
	KindCallout:   {KindText, KindSlot},
}

var requiredProps = map[string][]string{
	KindText:   {"content"},
	KindFigure: {"src"},
	KindSlot:   {"generator"},
	KindBank:   {"glob"},
}

// Generator callee names understood by the runtime.
var generatorNames = map[string]bool{
	"choose":      true,
	"cycle":       true,
	"poisson":     true,
	"assets.pick": true,
	"at":          true,
	"every":       true,
}

var transitionNames = map[string]bool{
	"none": true, "appear": true, "fade": true, "wipe": true, "flash": true,
}

// Kinds returns every body node kind, sorted.
func Kinds() []string {
	kinds := []string{KindPage, KindSection, KindParagraph, KindText, KindFigure, KindCallout, KindTable, KindSlot}
	sort.Strings(kinds)
	return kinds
}

func isKind(kind string) bool {
	for _, k := range Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

// IsContainer reports whether kind may hold children.
func IsContainer(kind string) bool {
	_, ok := allowedChildren[kind]
	return ok
}

// CanContain reports whether a parent kind accepts a child kind.
func CanContain(parent, child string) bool {
	for _, k := range allowedChildren[parent] {
		if k == child {
			return true
		}
	}
	return false
}

type checker struct {
	file  string
	src   string
	doc   *Document
	ids   map[string]Span
	diags []Diagnostic
}

// Check validates a parsed document and returns its diagnostics. An empty
// result means the document checks cleanly.
func Check(file, src string, doc *Document) []Diagnostic {
	c := &checker{file: file, src: src, doc: doc, ids: map[string]Span{}}
	for _, b := range doc.Banks {
		c.checkBank(b)
	}
	for _, page := range doc.Body {
		if page.Kind != KindPage {
			c.errorf(page, "unexpected-kind", "body may only contain pages, found %s %s", page.Kind, page.ID)
		}
		c.checkNode(page)
	}
	return c.diags
}

// ParseAndCheck runs Parse then Check. The document is nil when parsing
// failed; it is returned alongside check diagnostics otherwise.
func ParseAndCheck(file, src string) (*Document, []Diagnostic) {
	doc, diags := Parse(file, src)
	if doc == nil {
		return nil, diags
	}
	return doc, Check(file, src, doc)
}

func (c *checker) errorf(n *Node, code, format string, args ...any) {
	d := NewDiagnostic(c.file, c.src, n.Span, LevelFail, code, fmt.Sprintf(format, args...))
	d.NodeID = n.ID
	c.diags = append(c.diags, d)
}

func (c *checker) claimID(n *Node) {
	if prev, dup := c.ids[n.ID]; dup {
		c.errorf(n, "duplicate-id", "duplicate id %q (first declared at line %d)", n.ID, prev.Start.Line)
		return
	}
	c.ids[n.ID] = n.Span
}

func (c *checker) checkBank(b *Node) {
	c.claimID(b)
	if b.Kind != KindBank {
		c.errorf(b, "unexpected-kind", "assets may only contain banks, found %s %s", b.Kind, b.ID)
		return
	}
	if _, ok := b.StringProp("glob"); !ok {
		c.errorf(b, "missing-property", "bank %s needs a literal string glob", b.ID)
	}
}

func (c *checker) checkNode(n *Node) {
	c.claimID(n)
	if !isKind(n.Kind) {
		c.errorf(n, "unknown-kind", "unknown node kind %q (known kinds: %s)", n.Kind, strings.Join(Kinds(), ", "))
		return
	}
	for _, name := range requiredProps[n.Kind] {
		if _, ok := n.Prop(name); !ok {
			c.errorf(n, "missing-property", "%s %s is missing required property %q", n.Kind, n.ID, name)
		}
	}
	if len(n.Children) > 0 && !IsContainer(n.Kind) {
		c.errorf(n, "unexpected-children", "%s %s cannot have children", n.Kind, n.ID)
	}
	for _, ch := range n.Children {
		if IsContainer(n.Kind) && isKind(ch.Kind) && !CanContain(n.Kind, ch.Kind) {
			c.errorf(ch, "invalid-nesting", "%s cannot be placed inside %s", ch.Kind, n.Kind)
		}
		c.checkNode(ch)
	}
	if n.Refresh != nil {
		c.checkRefresh(n)
	}
	if n.Transition != nil {
		c.checkTransition(n)
	}
	for _, p := range n.Props {
		if p.Value.Expr != nil {
			c.checkDynamic(n, p)
		}
	}
	if n.Kind == KindTable {
		c.checkTable(n)
	}
}

func (c *checker) checkRefresh(n *Node) {
	switch e := n.Refresh.(type) {
	case *Ident:
		if e.Name != "never" && e.Name != "docstep" {
			c.errorf(n, "invalid-refresh", "unknown refresh policy %q", e.Name)
		}
	case *Call:
		args := e.Positional()
		switch CallName(e) {
		case "every":
			if len(args) != 1 || numberArg(args[0]) <= 0 {
				c.errorf(n, "invalid-refresh", "every(seconds) needs one positive number")
			}
		case "chance":
			if len(args) != 1 {
				c.errorf(n, "invalid-refresh", "chance(p) needs one probability")
				return
			}
			if p := numberArg(args[0]); p <= 0 || p > 1 {
				c.errorf(n, "invalid-refresh", "chance(p) needs 0 < p <= 1")
			}
		case "at":
			if len(args) != 1 {
				c.errorf(n, "invalid-refresh", "at([times]) needs one list of times")
				return
			}
			if _, ok := args[0].(*ListExpr); !ok {
				c.errorf(n, "invalid-refresh", "at([times]) needs a list of times")
			}
		default:
			c.errorf(n, "invalid-refresh", "unknown refresh policy %q", CallName(e))
		}
	default:
		c.errorf(n, "invalid-refresh", "refresh must be never, docstep, every(s), at([t]) or chance(p)")
	}
}

func (c *checker) checkTransition(n *Node) {
	name := PolicyName(n.Transition)
	if !transitionNames[name] {
		c.errorf(n, "invalid-transition", "unknown transition %q (none, appear, fade, wipe, flash)", name)
		return
	}
	if call, ok := n.Transition.(*Call); ok {
		args := call.Positional()
		if len(args) > 1 || (len(args) == 1 && numberArg(args[0]) < 0) {
			c.errorf(n, "invalid-transition", "%s(duration) takes one non-negative number", name)
		}
	}
}

func (c *checker) checkDynamic(n *Node, p Property) {
	name := CallName(p.Value.Expr)
	if name == "" {
		return
	}
	if !generatorNames[name] {
		c.errorf(n, "unknown-generator", "unknown generator %q in %s.%s", name, n.ID, p.Name)
		return
	}
	if name != "assets.pick" {
		return
	}
	call := p.Value.Expr.(*Call)
	bankExpr, ok := call.NamedArg("bank")
	if !ok {
		c.errorf(n, "invalid-generator", "assets.pick needs a bank: argument")
		return
	}
	lit, ok := bankExpr.(*Lit)
	if !ok || lit.Value.Kind != LitString {
		c.errorf(n, "invalid-generator", "assets.pick bank must be a string")
		return
	}
	if c.doc.Bank(lit.Value.Str) == nil {
		c.errorf(n, "unknown-bank", "assets.pick refers to undeclared bank %q", lit.Value.Str)
	}
}

func (c *checker) checkTable(n *Node) {
	for _, name := range []string{"columns", "rows"} {
		v, ok := n.Prop(name)
		if !ok {
			continue
		}
		if v.Literal == nil || v.Literal.Kind != LitList {
			c.errorf(n, "invalid-property", "table %s.%s must be a literal list", n.ID, name)
		}
	}
}

// numberArg returns the value of a literal number expression, or -1.
func numberArg(e Expr) float64 {
	if lit, ok := e.(*Lit); ok && lit.Value.Kind == LitNumber {
		return lit.Value.Num
	}
	return -1
}
