package transform

import (
	"fmt"
	"strings"

	"github.com/roach88/livedoc/internal/markup"
	"github.com/roach88/livedoc/internal/printer"
	"github.com/roach88/livedoc/internal/scan"
)

// idAllocator hands out unused ids. Ids allocated within one operation are
// reserved so a node and its generated children never collide.
type idAllocator struct {
	taken map[string]bool
}

func (st *docState) allocator() *idAllocator {
	a := &idAllocator{taken: make(map[string]bool, len(st.idx))}
	for id := range st.idx {
		a.taken[id] = true
	}
	return a
}

// claim reserves id, or the next free "<kind>-<n>" when id is empty.
func (a *idAllocator) claim(file, kind, id string) (string, error) {
	if id != "" {
		if !markup.IsIdent(id) {
			return "", newError(file, CodeInvalidArguments, id, "invalid node id %q", id)
		}
		if a.taken[id] {
			return "", newError(file, CodeInvalidArguments, id, "id %q is already in use", id)
		}
		a.taken[id] = true
		return id, nil
	}
	for n := 1; ; n++ {
		cand := fmt.Sprintf("%s-%d", kind, n)
		if !a.taken[cand] {
			a.taken[cand] = true
			return cand, nil
		}
	}
}

// target is a resolved insertion point. A nil parent means the body block.
type target struct {
	parent *markup.Node
	after  *markup.Node
}

// resolve turns a placement into an insertion point for a node of kind.
// fallback supplies the parent when the placement is empty.
func (st *docState) resolve(p Placement, kind string, fallback func() (*markup.Node, error)) (target, error) {
	var t target
	switch {
	case p.AfterID != "":
		after, err := st.lookup(p.AfterID)
		if err != nil {
			return t, err
		}
		t.after = after
		t.parent = st.idx.Parent(after.ID)
		if p.ParentID != "" && (t.parent == nil || t.parent.ID != p.ParentID) {
			return t, newError(st.file, CodeInvalidArguments, p.AfterID,
				"%s is not a child of %s", p.AfterID, p.ParentID)
		}
		if after.Kind == markup.KindBank {
			return t, newError(st.file, CodeNodeWrongKind, p.AfterID, "cannot insert after asset bank %s", p.AfterID)
		}
	case p.ParentID != "":
		parent, err := st.lookup(p.ParentID)
		if err != nil {
			return t, err
		}
		t.parent = parent
	default:
		if fallback == nil {
			return t, nil
		}
		parent, err := fallback()
		if err != nil {
			return t, err
		}
		t.parent = parent
	}
	if err := st.checkContainment(t.parent, kind); err != nil {
		return t, err
	}
	return t, nil
}

func (st *docState) checkContainment(parent *markup.Node, kind string) error {
	if parent == nil {
		if kind != markup.KindPage {
			return newError(st.file, CodeNodeWrongKind, "", "only pages may be placed at the top of the body, not %s", kind)
		}
		return nil
	}
	if !markup.CanContain(parent.Kind, kind) {
		return newSpanError(st.file, st.src, parent.Span, CodeNodeWrongKind, parent.ID,
			"%s %s cannot contain a %s", parent.Kind, parent.ID, kind)
	}
	return nil
}

// lastOfKind returns the last body node of kind in document order.
func (st *docState) lastOfKind(kind string) (*markup.Node, error) {
	var last *markup.Node
	st.doc.Walk(func(n, _ *markup.Node, _ int) bool {
		if n.Kind == kind {
			last = n
		}
		return true
	})
	if last == nil {
		return nil, newError(st.file, CodeInvalidArguments, "", "document has no %s to insert into; pass parentId", kind)
	}
	return last, nil
}

func (st *docState) lastPage() (*markup.Node, error)    { return st.lastOfKind(markup.KindPage) }
func (st *docState) lastSection() (*markup.Node, error) { return st.lastOfKind(markup.KindSection) }

// insert places n at t and returns the new source.
func (st *docState) insert(t target, n *markup.Node) (string, error) {
	if t.after != nil {
		return st.insertAfter(t.after, n)
	}
	if t.parent != nil {
		return st.insertInto(t.parent, n)
	}
	if len(st.doc.Body) > 0 {
		return st.insertAfter(st.doc.Body[len(st.doc.Body)-1], n)
	}
	body, ok := scan.FindBlock(st.src, "body", 0)
	if !ok {
		return "", newError(st.file, CodeMissingSourceSpan, "", "body block not found in source")
	}
	return st.insertIntoBlock(body.Start, body.Open, body.Close, n), nil
}

// insertAfter prints n on the lines following sibling, at its indentation.
func (st *docState) insertAfter(sibling, n *markup.Node) (string, error) {
	start, end, err := st.nodeRange(sibling)
	if err != nil {
		return "", err
	}
	return splice(st.src, end, end, "\n"+printer.Node(n, st.indentAt(start))), nil
}

// insertInto appends n as the last child of parent.
func (st *docState) insertInto(parent, n *markup.Node) (string, error) {
	if len(parent.Children) > 0 {
		return st.insertAfter(parent.Children[len(parent.Children)-1], n)
	}
	start, _, err := st.nodeRange(parent)
	if err != nil {
		return "", err
	}
	open := scan.NextCode(st.src, start, '{')
	if open == scan.NotFound {
		return "", newError(st.file, CodeMissingSourceSpan, parent.ID, "opening brace of %s not found", parent.ID)
	}
	closing := scan.MatchBrace(st.src, open)
	if closing == scan.NotFound {
		return "", newError(st.file, CodeMissingSourceSpan, parent.ID, "closing brace of %s not found", parent.ID)
	}
	return st.insertIntoBlock(start, open, closing, n), nil
}

// insertIntoBlock inserts n before the closing brace of the block whose
// header starts at start.
func (st *docState) insertIntoBlock(start, open, closing int, n *markup.Node) string {
	indent := st.indentAt(start)
	child := printer.Node(n, indent+printer.IndentUnit)
	if strings.TrimSpace(st.src[open+1:closing]) == "" {
		return splice(st.src, open+1, closing, "\n"+child+"\n"+indent)
	}
	lineStart := strings.LastIndexByte(st.src[:closing], '\n') + 1
	if strings.TrimSpace(st.src[lineStart:closing]) == "" {
		return splice(st.src, lineStart, lineStart, child+"\n")
	}
	return splice(st.src, closing, closing, "\n"+child+"\n"+indent)
}

func stringProp(n *markup.Node, name, value string) {
	if value != "" {
		n.SetProp(name, markup.LiteralValue(markup.String(value)))
	}
}

func (st *docState) addPage(op AddPage) (string, string, error) {
	t, err := st.resolve(op.Placement, markup.KindPage, nil)
	if err != nil {
		return "", "", err
	}
	id, err := st.allocator().claim(st.file, markup.KindPage, op.ID)
	if err != nil {
		return "", "", err
	}
	n := &markup.Node{Kind: markup.KindPage, ID: id}
	stringProp(n, "title", op.Title)
	out, err := st.insert(t, n)
	return out, id, err
}

func (st *docState) addSection(op AddSection) (string, string, error) {
	t, err := st.resolve(op.Placement, markup.KindSection, st.lastPage)
	if err != nil {
		return "", "", err
	}
	id, err := st.allocator().claim(st.file, markup.KindSection, op.ID)
	if err != nil {
		return "", "", err
	}
	n := &markup.Node{Kind: markup.KindSection, ID: id}
	stringProp(n, "title", op.Title)
	out, err := st.insert(t, n)
	return out, id, err
}

// textContainer builds a paragraph or callout holding one text node.
func (st *docState) textContainer(kind, id, text string) (*markup.Node, error) {
	ids := st.allocator()
	id, err := ids.claim(st.file, kind, id)
	if err != nil {
		return nil, err
	}
	textID, err := ids.claim(st.file, markup.KindText, "")
	if err != nil {
		return nil, err
	}
	child := &markup.Node{Kind: markup.KindText, ID: textID}
	child.SetProp("content", markup.LiteralValue(markup.String(text)))
	return &markup.Node{Kind: kind, ID: id, Children: []*markup.Node{child}}, nil
}

func (st *docState) addParagraph(op AddParagraph) (string, string, error) {
	t, err := st.resolve(op.Placement, markup.KindParagraph, st.lastSection)
	if err != nil {
		return "", "", err
	}
	n, err := st.textContainer(markup.KindParagraph, op.ID, op.Text)
	if err != nil {
		return "", "", err
	}
	out, err := st.insert(t, n)
	return out, n.ID, err
}

func (st *docState) addCallout(op AddCallout) (string, string, error) {
	t, err := st.resolve(op.Placement, markup.KindCallout, st.lastSection)
	if err != nil {
		return "", "", err
	}
	n, err := st.textContainer(markup.KindCallout, op.ID, op.Text)
	if err != nil {
		return "", "", err
	}
	stringProp(n, "tone", op.Tone)
	out, err := st.insert(t, n)
	return out, n.ID, err
}

// pickExpr builds `assets.pick(bank: "name", tags: [...])`.
func pickExpr(bank string, tags []string) markup.Expr {
	args := []markup.Arg{{Name: "bank", Value: &markup.Lit{Value: markup.String(bank)}}}
	if len(tags) > 0 {
		elems := make([]markup.Expr, len(tags))
		for i, tag := range tags {
			elems[i] = &markup.Lit{Value: markup.String(tag)}
		}
		args = append(args, markup.Arg{Name: "tags", Value: &markup.ListExpr{Elems: elems}})
	}
	return &markup.Call{
		Fun:  &markup.Member{X: &markup.Ident{Name: "assets"}, Name: "pick"},
		Args: args,
	}
}

func (st *docState) addFigure(op AddFigure) (string, string, error) {
	if op.BankName == "" && op.Src == "" {
		return "", "", newError(st.file, CodeInvalidArguments, op.ID, "addFigure needs bankName or src")
	}
	t, err := st.resolve(op.Placement, markup.KindFigure, st.lastSection)
	if err != nil {
		return "", "", err
	}
	id, err := st.allocator().claim(st.file, markup.KindFigure, op.ID)
	if err != nil {
		return "", "", err
	}
	n := &markup.Node{Kind: markup.KindFigure, ID: id}
	if op.BankName != "" {
		n.SetProp("src", markup.DynamicValue(pickExpr(op.BankName, op.Tags)))
	} else {
		n.SetProp("src", markup.LiteralValue(markup.String(op.Src)))
	}
	stringProp(n, "caption", op.Caption)
	out, err := st.insert(t, n)
	return out, id, err
}

func (st *docState) addTable(op AddTable) (string, string, error) {
	if len(op.Columns) == 0 {
		return "", "", newError(st.file, CodeInvalidArguments, op.ID, "addTable needs at least one column")
	}
	t, err := st.resolve(op.Placement, markup.KindTable, st.lastSection)
	if err != nil {
		return "", "", err
	}
	id, err := st.allocator().claim(st.file, markup.KindTable, op.ID)
	if err != nil {
		return "", "", err
	}
	n := &markup.Node{Kind: markup.KindTable, ID: id}
	n.SetProp("columns", markup.LiteralValue(stringList(op.Columns)))
	rows := make([]markup.Literal, len(op.Rows))
	for i, row := range op.Rows {
		if len(row) != len(op.Columns) {
			return "", "", newError(st.file, CodeInvalidArguments, op.ID,
				"row %d has %d cells, want %d", i, len(row), len(op.Columns))
		}
		rows[i] = stringList(row)
	}
	n.SetProp("rows", markup.LiteralValue(markup.List(rows...)))
	out, err := st.insert(t, n)
	return out, id, err
}

func stringList(ss []string) markup.Literal {
	elems := make([]markup.Literal, len(ss))
	for i, s := range ss {
		elems[i] = markup.String(s)
	}
	return markup.List(elems...)
}

func (st *docState) addSlot(op AddSlot) (string, string, error) {
	if len(op.Generator) == 0 {
		return "", "", newError(st.file, CodeInvalidArguments, op.ID, "addSlot needs a generator")
	}
	gen, err := ValueFromJSON(op.Generator)
	if err != nil {
		return "", "", newError(st.file, CodeInvalidArguments, op.ID, "generator: %v", err)
	}
	t, err := st.resolve(op.Placement, markup.KindSlot, st.lastSection)
	if err != nil {
		return "", "", err
	}
	id, err := st.allocator().claim(st.file, markup.KindSlot, op.ID)
	if err != nil {
		return "", "", err
	}
	n := &markup.Node{Kind: markup.KindSlot, ID: id}
	n.SetProp("generator", gen)
	if n.Refresh, err = parsePolicy(op.Refresh); err != nil {
		return "", "", newError(st.file, CodeInvalidArguments, id, "refresh: %v", err)
	}
	if n.Transition, err = parsePolicy(op.Transition); err != nil {
		return "", "", newError(st.file, CodeInvalidArguments, id, "transition: %v", err)
	}
	out, err := st.insert(t, n)
	return out, id, err
}
