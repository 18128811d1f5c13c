// Package printer renders livedoc nodes back to source text.
//
// Output is deterministic: policy lines (refresh, transition) come first,
// then properties in a fixed preferred order followed by the remaining
// properties alphabetically, then children. Parsing printed output yields a
// tree structurally equal to the input (spans and property order aside).
package printer

import (
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/livedoc/internal/markup"
)

// IndentUnit is one nesting level.
const IndentUnit = "  "

// preferredKeys are printed first, in this order.
var preferredKeys = []string{
	"title", "content", "text", "src", "caption", "tone",
	"columns", "rows", "generator", "glob",
}

// Escape escapes backslashes and double quotes.
func Escape(s string) string {
	if !strings.ContainsAny(s, `\"`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' || s[i] == '"' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// Quote returns s as a double-quoted, escaped string literal.
func Quote(s string) string {
	return `"` + Escape(s) + `"`
}

// OrderedProps returns props sorted into printing order.
func OrderedProps(props []markup.Property) []markup.Property {
	rank := func(name string) int {
		for i, k := range preferredKeys {
			if k == name {
				return i
			}
		}
		return len(preferredKeys)
	}
	out := append([]markup.Property(nil), props...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank(out[i].Name), rank(out[j].Name)
		if ri != rj {
			return ri < rj
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Node prints n with every line prefixed by indent. The result has no
// trailing newline.
func Node(n *markup.Node, indent string) string {
	var b strings.Builder
	writeNode(&b, n, indent)
	return b.String()
}

func writeNode(b *strings.Builder, n *markup.Node, indent string) {
	b.WriteString(indent)
	b.WriteString(n.Kind)
	b.WriteByte(' ')
	b.WriteString(n.ID)
	if n.Refresh == nil && n.Transition == nil && len(n.Props) == 0 && len(n.Children) == 0 {
		b.WriteString(" {}")
		return
	}
	b.WriteString(" {\n")
	inner := indent + IndentUnit
	if n.Refresh != nil {
		writeLine(b, inner, "refresh", Expr(n.Refresh))
	}
	if n.Transition != nil {
		writeLine(b, inner, "transition", Expr(n.Transition))
	}
	for _, p := range OrderedProps(n.Props) {
		writeLine(b, inner, p.Name, Value(p.Value))
	}
	for _, ch := range n.Children {
		writeNode(b, ch, inner)
		b.WriteByte('\n')
	}
	b.WriteString(indent)
	b.WriteByte('}')
}

func writeLine(b *strings.Builder, indent, name, value string) {
	b.WriteString(indent)
	b.WriteString(name)
	b.WriteString(" = ")
	b.WriteString(value)
	b.WriteString(";\n")
}

// Document prints a whole document with a trailing newline.
func Document(doc *markup.Document) string {
	var sections []string
	if len(doc.Meta) > 0 {
		var b strings.Builder
		b.WriteString("meta {\n")
		for _, p := range OrderedProps(doc.Meta) {
			writeLine(&b, IndentUnit, p.Name, Value(p.Value))
		}
		b.WriteString("}")
		sections = append(sections, b.String())
	}
	if len(doc.Banks) > 0 {
		sections = append(sections, block("assets", doc.Banks))
	}
	sections = append(sections, block("body", doc.Body))
	return strings.Join(sections, "\n\n") + "\n"
}

func block(name string, nodes []*markup.Node) string {
	if len(nodes) == 0 {
		return name + " {}"
	}
	var b strings.Builder
	b.WriteString(name)
	b.WriteString(" {\n")
	for _, n := range nodes {
		writeNode(&b, n, IndentUnit)
		b.WriteByte('\n')
	}
	b.WriteString("}")
	return b.String()
}

// Value prints a property value; dynamic values carry the @ sigil.
func Value(v markup.Value) string {
	if v.Expr != nil {
		return "@" + Expr(v.Expr)
	}
	if v.Literal == nil {
		return "null"
	}
	return Literal(*v.Literal)
}

// Literal prints a literal value.
func Literal(l markup.Literal) string {
	switch l.Kind {
	case markup.LitString:
		return Quote(l.Str)
	case markup.LitNumber:
		return strconv.FormatFloat(l.Num, 'f', -1, 64)
	case markup.LitBool:
		return strconv.FormatBool(l.Bool)
	case markup.LitList:
		parts := make([]string, len(l.List))
		for i, e := range l.List {
			parts[i] = Literal(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return "null"
	}
}
