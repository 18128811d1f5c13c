package transform

import (
	"strings"

	"github.com/roach88/livedoc/internal/markup"
	"github.com/roach88/livedoc/internal/printer"
)

// splice replaces src[start:end] with text.
func splice(src string, start, end int, text string) string {
	return src[:start] + text + src[end:]
}

// nodeRange returns the byte range [start, end) of a node.
func (st *docState) nodeRange(n *markup.Node) (int, int, error) {
	if n.Span.IsZero() {
		return 0, 0, newError(st.file, CodeMissingSourceSpan, n.ID, "node %q has no source span", n.ID)
	}
	start, end, ok := st.lines.SpanOffsets(n.Span)
	if !ok || st.src[end-1] != '}' {
		return 0, 0, newError(st.file, CodeMissingSourceSpan, n.ID, "span of node %q does not resolve to source", n.ID)
	}
	return start, end, nil
}

// indentAt returns the indentation of the line holding off.
func (st *docState) indentAt(off int) string {
	lineStart := strings.LastIndexByte(st.src[:off], '\n') + 1
	i := lineStart
	for i < len(st.src) && (st.src[i] == ' ' || st.src[i] == '\t') {
		i++
	}
	return st.src[lineStart:i]
}

// replaceNode reprints repl at the indentation of n and splices it over
// n's span.
func (st *docState) replaceNode(n, repl *markup.Node) (string, error) {
	start, end, err := st.nodeRange(n)
	if err != nil {
		return "", err
	}
	indent := st.indentAt(start)
	text := strings.TrimPrefix(printer.Node(repl, indent), indent)
	return splice(st.src, start, end, text), nil
}

// lineBounds widens [start, end) to whole lines when nothing but
// whitespace shares those lines.
func (st *docState) lineBounds(start, end int) (int, int) {
	lineStart := strings.LastIndexByte(st.src[:start], '\n') + 1
	if strings.TrimSpace(st.src[lineStart:start]) != "" {
		return start, end
	}
	lineEnd := strings.IndexByte(st.src[end:], '\n')
	if lineEnd < 0 {
		lineEnd = len(st.src)
	} else {
		lineEnd += end
	}
	if strings.TrimSpace(st.src[end:lineEnd]) != "" {
		return start, end
	}
	if lineEnd < len(st.src) {
		lineEnd++
	}
	return lineStart, lineEnd
}

// setText replaces the quoted literal of a text node's content property in
// place, leaving every other byte of the source untouched.
func (st *docState) setText(id, text string) (string, error) {
	n, err := st.lookup(id)
	if err != nil {
		return "", err
	}
	if n.Kind != markup.KindText || len(n.Children) > 0 {
		return "", newSpanError(st.file, st.src, n.Span, CodeNodeWrongKind, id,
			"%s %s is not a leaf text node", n.Kind, id)
	}
	return st.replaceLiteral(n, "content", text)
}

func (st *docState) replaceLiteral(n *markup.Node, prop, text string) (string, error) {
	v, ok := n.Prop(prop)
	if !ok || v.Literal == nil || v.Literal.Kind != markup.LitString || v.Span.IsZero() {
		return "", newSpanError(st.file, st.src, n.Span, CodeMissingLiteralSpan, n.ID,
			"%s %s has no literal %s to edit", n.Kind, n.ID, prop)
	}
	start, end, ok := st.lines.SpanOffsets(v.Span)
	nodeStart, nodeEnd, nerr := st.nodeRange(n)
	if !ok || nerr != nil || start < nodeStart || end > nodeEnd {
		return "", newError(st.file, CodeMissingLiteralSpan, n.ID, "literal %s of %s does not resolve to source", prop, n.ID)
	}
	quote := st.src[start]
	if (quote != '"' && quote != '\'') || st.src[end-1] != quote {
		return "", newError(st.file, CodeMissingLiteralSpan, n.ID, "literal %s of %s is not a quoted string", prop, n.ID)
	}
	return splice(st.src, start, end, printer.Quote(text)), nil
}

// resolveTextNode maps a paragraph or callout holding exactly one text child
// to that child.
func (st *docState) resolveTextNode(n *markup.Node) (*markup.Node, error) {
	if n.Kind == markup.KindText {
		if len(n.Children) > 0 {
			return nil, newSpanError(st.file, st.src, n.Span, CodeNodeHasChildren, n.ID, "text %s has children", n.ID)
		}
		return n, nil
	}
	if n.Kind != markup.KindParagraph && n.Kind != markup.KindCallout {
		return nil, newSpanError(st.file, st.src, n.Span, CodeNodeWrongKind, n.ID,
			"%s %s has no text content", n.Kind, n.ID)
	}
	if len(n.Children) != 1 || n.Children[0].Kind != markup.KindText {
		return nil, newSpanError(st.file, st.src, n.Span, CodeNodeHasChildren, n.ID,
			"%s %s has %d children; target a text node directly", n.Kind, n.ID, len(n.Children))
	}
	return n.Children[0], nil
}

func (st *docState) setTextNodeContent(op SetTextNodeContent) (string, string, error) {
	n, err := st.lookup(op.ID)
	if err != nil {
		return "", "", err
	}
	textNode, err := st.resolveTextNode(n)
	if err != nil {
		return "", "", err
	}
	if v, ok := textNode.Prop("content"); ok && v.Literal != nil && v.Literal.Kind == markup.LitString {
		out, err := st.replaceLiteral(textNode, "content", op.Text)
		return out, op.ID, err
	}
	repl := textNode.Clone()
	repl.SetProp("content", markup.LiteralValue(markup.String(op.Text)))
	out, err := st.replaceNode(textNode, repl)
	return out, op.ID, err
}

func (st *docState) setNodeProps(op SetNodeProps) (string, error) {
	n, err := st.lookup(op.ID)
	if err != nil {
		return "", err
	}
	repl := n.Clone()
	if err := setProps(repl, op.Props); err != nil {
		return "", newError(st.file, CodeInvalidArguments, op.ID, "%v", err)
	}
	for _, name := range op.Remove {
		repl.DeleteProp(name)
	}
	return st.replaceNode(n, repl)
}

// isComputed reports whether a node kind carries refresh/transition policies.
func isComputed(kind string) bool {
	return kind == markup.KindSlot || kind == markup.KindFigure
}

func (st *docState) setSlotProps(op SetSlotProps) (string, error) {
	n, err := st.lookup(op.ID)
	if err != nil {
		return "", err
	}
	if !isComputed(n.Kind) {
		return "", newSpanError(st.file, st.src, n.Span, CodeNodeWrongKind, op.ID, "%s %s is not a slot", n.Kind, op.ID)
	}
	repl := n.Clone()
	if op.Refresh != nil {
		if repl.Refresh, err = parsePolicy(*op.Refresh); err != nil {
			return "", newError(st.file, CodeInvalidArguments, op.ID, "refresh: %v", err)
		}
	}
	if op.Transition != nil {
		if repl.Transition, err = parsePolicy(*op.Transition); err != nil {
			return "", newError(st.file, CodeInvalidArguments, op.ID, "transition: %v", err)
		}
	}
	if err := setProps(repl, op.Props); err != nil {
		return "", newError(st.file, CodeInvalidArguments, op.ID, "%v", err)
	}
	return st.replaceNode(n, repl)
}

// parsePolicy parses a refresh/transition expression; "" clears it.
func parsePolicy(src string) (markup.Expr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}
	return markup.ParseExpr(src)
}

func (st *docState) setSlotGenerator(op SetSlotGenerator) (string, error) {
	n, err := st.lookup(op.ID)
	if err != nil {
		return "", err
	}
	if n.Kind != markup.KindSlot {
		return "", newSpanError(st.file, st.src, n.Span, CodeNodeWrongKind, op.ID, "%s %s is not a slot", n.Kind, op.ID)
	}
	v, err := ValueFromJSON(op.Generator)
	if err != nil {
		return "", newError(st.file, CodeInvalidArguments, op.ID, "generator: %v", err)
	}
	repl := n.Clone()
	repl.SetProp("generator", v)
	return st.replaceNode(n, repl)
}

func (st *docState) replaceWith(op ReplaceNode) (string, error) {
	n, err := st.lookup(op.ID)
	if err != nil {
		return "", err
	}
	if op.Node.ID != op.ID {
		return "", newSpanError(st.file, st.src, n.Span, CodeIDMismatch, op.ID,
			"replacement id %q does not match target id %q", op.Node.ID, op.ID)
	}
	repl, err := op.Node.ToNode()
	if err != nil {
		return "", newError(st.file, CodeInvalidArguments, op.ID, "%v", err)
	}
	return st.replaceNode(n, repl)
}

func (st *docState) removeNode(id string) (string, error) {
	n, err := st.lookup(id)
	if err != nil {
		return "", err
	}
	start, end, err := st.nodeRange(n)
	if err != nil {
		return "", err
	}
	start, end = st.lineBounds(start, end)
	return splice(st.src, start, end, ""), nil
}
