package render

import (
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/roach88/livedoc/internal/digest"
	"github.com/roach88/livedoc/internal/markup"
)

// SlotMeta accompanies a slot's HTML so viewers can skip unchanged values
// and animate changed ones.
type SlotMeta struct {
	ValueHash  string `json:"valueHash"`
	Transition string `json:"transition"`
}

// Frame is one render of every slot.
type Frame struct {
	Slots map[string]string
	Meta  map[string]SlotMeta
}

// policy is the sanitizer applied to all generated markup. Slot values are
// escaped before they reach it; it guards asset paths and attribute values.
var policy = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowDataAttributes()
	p.AllowAttrs("class").Globally()
	// Captions are escaped text and may hold any punctuation.
	p.AllowAttrs("alt").OnElements("img")
	p.AllowElements("section", "figure", "figcaption", "aside", "span")
	return p
}()

// Sanitize passes markup through the render policy.
func Sanitize(s string) string {
	return policy.Sanitize(s)
}

// Render resolves every slot at st. A slot whose value fails to evaluate
// renders empty and the error is logged.
func (p *Program) Render(st State) Frame {
	f := Frame{
		Slots: make(map[string]string, len(p.Slots)),
		Meta:  make(map[string]SlotMeta, len(p.Slots)),
	}
	for _, s := range p.Slots {
		v, err := p.Value(s, st)
		if err != nil {
			slog.Warn("slot evaluation failed", "slot", s.ID, "error", err)
			v = ""
		}
		f.Slots[s.ID] = slotHTML(s, v)
		f.Meta[s.ID] = SlotMeta{ValueHash: digest.Value(v), Transition: s.Transition.String()}
	}
	return f
}

// slotHTML renders the inner markup of a slot. The surrounding element
// carries data-slot so viewers can find the target.
func slotHTML(s *Slot, v string) string {
	if s.Kind == markup.KindFigure {
		if v == "" {
			return ""
		}
		return Sanitize(fmt.Sprintf(`<img src="%s" alt="%s">`, html.EscapeString(v), html.EscapeString(s.Caption)))
	}
	return html.EscapeString(v)
}

// RenderDocument renders the whole document as a standalone HTML page with
// slots filled from frame.
func RenderDocument(doc *markup.Document, frame Frame) string {
	var body strings.Builder
	for _, page := range doc.Body {
		writeNode(&body, page, frame)
	}
	title := html.EscapeString(doc.Title())
	return "<!doctype html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>" + title +
		"</title>\n</head>\n<body>\n" + Sanitize(body.String()) + "\n</body>\n</html>\n"
}

func writeNode(b *strings.Builder, n *markup.Node, frame Frame) {
	id := html.EscapeString(n.ID)
	title, hasTitle := n.StringProp("title")
	switch n.Kind {
	case markup.KindPage:
		fmt.Fprintf(b, `<section class="page" id="%s">`, id)
		if hasTitle {
			fmt.Fprintf(b, "<h1>%s</h1>", html.EscapeString(title))
		}
		writeChildren(b, n, frame)
		b.WriteString("</section>")
	case markup.KindSection:
		fmt.Fprintf(b, `<section class="section" id="%s">`, id)
		if hasTitle {
			fmt.Fprintf(b, "<h2>%s</h2>", html.EscapeString(title))
		}
		writeChildren(b, n, frame)
		b.WriteString("</section>")
	case markup.KindParagraph:
		fmt.Fprintf(b, `<p id="%s">`, id)
		writeChildren(b, n, frame)
		b.WriteString("</p>")
	case markup.KindCallout:
		tone, _ := n.StringProp("tone")
		fmt.Fprintf(b, `<aside class="callout %s" id="%s">`, html.EscapeString(tone), id)
		writeChildren(b, n, frame)
		b.WriteString("</aside>")
	case markup.KindText:
		if out, ok := frame.Slots[n.ID]; ok {
			fmt.Fprintf(b, `<span data-slot="%s">%s</span>`, id, out)
			return
		}
		content, _ := n.StringProp("content")
		b.WriteString(html.EscapeString(content))
	case markup.KindSlot:
		fmt.Fprintf(b, `<span class="slot" data-slot="%s">%s</span>`, id, frame.Slots[n.ID])
	case markup.KindFigure:
		fmt.Fprintf(b, `<figure id="%s">`, id)
		if out, ok := frame.Slots[n.ID]; ok {
			fmt.Fprintf(b, `<span data-slot="%s">%s</span>`, id, out)
		} else if src, ok := n.StringProp("src"); ok {
			caption, _ := n.StringProp("caption")
			fmt.Fprintf(b, `<img src="%s" alt="%s">`, html.EscapeString(src), html.EscapeString(caption))
		}
		if caption, ok := n.StringProp("caption"); ok {
			fmt.Fprintf(b, "<figcaption>%s</figcaption>", html.EscapeString(caption))
		}
		b.WriteString("</figure>")
	case markup.KindTable:
		writeTable(b, n)
	}
}

func writeChildren(b *strings.Builder, n *markup.Node, frame Frame) {
	for _, ch := range n.Children {
		writeNode(b, ch, frame)
	}
}

func writeTable(b *strings.Builder, n *markup.Node) {
	fmt.Fprintf(b, `<table id="%s">`, html.EscapeString(n.ID))
	if v, ok := n.Prop("columns"); ok && v.Literal != nil {
		b.WriteString("<thead><tr>")
		for _, c := range v.Literal.List {
			fmt.Fprintf(b, "<th>%s</th>", html.EscapeString(Format(literalValue(c))))
		}
		b.WriteString("</tr></thead>")
	}
	if v, ok := n.Prop("rows"); ok && v.Literal != nil {
		b.WriteString("<tbody>")
		for _, row := range v.Literal.List {
			b.WriteString("<tr>")
			for _, c := range row.List {
				fmt.Fprintf(b, "<td>%s</td>", html.EscapeString(Format(literalValue(c))))
			}
			b.WriteString("</tr>")
		}
		b.WriteString("</tbody>")
	}
	b.WriteString("</table>")
}
