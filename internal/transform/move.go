package transform

import (
	"slices"

	"github.com/roach88/livedoc/internal/markup"
)

// moveNode relocates op.ID under op.TargetID. Reordering within the same
// container reprints only that container; moving across containers removes
// the node, reparses, and inserts it into the target.
func (e *Engine) moveNode(st *docState, op MoveNode) (string, error) {
	n, err := st.lookup(op.ID)
	if err != nil {
		return "", err
	}
	tgt, err := st.lookup(op.TargetID)
	if err != nil {
		return "", err
	}
	if slices.Contains(st.idx[tgt.ID].Path, n.ID) {
		return "", newError(st.file, CodeInvalidArguments, op.ID, "cannot move %s into itself", op.ID)
	}

	// A page target resolves to its first section, created on demand.
	var wrap *markup.Node
	if tgt.Kind == markup.KindPage && n.Kind != markup.KindSection {
		if i := slices.IndexFunc(tgt.Children, func(c *markup.Node) bool { return c.Kind == markup.KindSection }); i >= 0 {
			tgt = tgt.Children[i]
		} else {
			id, err := st.allocator().claim(st.file, markup.KindSection, "")
			if err != nil {
				return "", err
			}
			wrap = &markup.Node{Kind: markup.KindSection, ID: id}
		}
	}
	if wrap == nil {
		if err := st.checkContainment(tgt, n.Kind); err != nil {
			return "", err
		}
	} else if !markup.CanContain(markup.KindSection, n.Kind) {
		return "", newSpanError(st.file, st.src, tgt.Span, CodeNodeWrongKind, tgt.ID,
			"a %s cannot be moved into page %s", n.Kind, tgt.ID)
	}

	if wrap == nil && st.idx[n.ID].ParentID == tgt.ID {
		parent := tgt.Clone()
		from := parent.ChildIndex(n.ID)
		moved := parent.Children[from]
		parent.Children = slices.Delete(parent.Children, from, from+1)
		parent.Children = slices.Insert(parent.Children, clampIndex(op.Index, len(parent.Children)), moved)
		return st.replaceNode(tgt, parent)
	}

	removed, err := st.removeNode(n.ID)
	if err != nil {
		return "", err
	}
	doc, diags := markup.Parse(st.file, removed)
	if doc == nil || markup.HasErrors(diags) {
		return "", &Error{
			Code:        CodeMissingSourceSpan,
			Message:     "source did not reparse after detaching " + n.ID,
			NodeID:      n.ID,
			Diagnostics: diags,
		}
	}
	next := newDocState(st.file, removed, doc)
	dest, err := next.lookup(tgt.ID)
	if err != nil {
		return "", err
	}
	moved := n.Clone()
	if wrap != nil {
		wrap.Children = []*markup.Node{moved}
		return next.insertInto(dest, wrap)
	}
	if op.Index == nil || *op.Index >= len(dest.Children) {
		return next.insertInto(dest, moved)
	}
	repl := dest.Clone()
	repl.Children = slices.Insert(repl.Children, clampIndex(op.Index, len(repl.Children)), moved)
	return next.replaceNode(dest, repl)
}

// clampIndex resolves an optional insertion index against n children;
// nil appends.
func clampIndex(index *int, n int) int {
	if index == nil || *index > n {
		return n
	}
	if *index < 0 {
		return 0
	}
	return *index
}
