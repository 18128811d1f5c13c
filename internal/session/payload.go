package session

import (
	"encoding/json"

	"github.com/roach88/livedoc/internal/markup"
	"github.com/roach88/livedoc/internal/printer"
	"github.com/roach88/livedoc/internal/transform"
	"github.com/roach88/livedoc/internal/wire"
)

// State returns the full edit-state snapshot.
func (s *Session) State() wire.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// stateLocked describes the last valid document together with the current
// revision and diagnostics.
func (s *Session) stateLocked() wire.State {
	st := wire.State{
		Path:              s.path,
		Revision:          s.revision,
		LastValidRevision: s.lastValid,
		Diagnostics:       nonNil(s.diags),
		Outline:           []markup.OutlineItem{},
		Banks:             []wire.Bank{},
		Runtime:           s.runtime.Status(),
		Capabilities: wire.Capabilities{
			Operations: transform.Operations(),
			Stream:     true,
			WebSocket:  true,
			History:    s.journal != nil,
		},
	}
	if s.doc == nil {
		return st
	}
	st.Title = s.doc.Title()
	st.Outline = markup.Outline(s.doc)
	for _, b := range s.doc.Banks {
		glob, _ := b.StringProp("glob")
		files := s.banks[b.ID]
		if files == nil {
			files = []string{}
		}
		st.Banks = append(st.Banks, wire.Bank{Name: b.ID, Glob: glob, Files: files})
	}
	return st
}

// Source returns the raw source with its diagnostics and revisions. OK is
// false while the source does not validate.
func (s *Session) Source() wire.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return wire.Source{
		OK:                s.lastValid == s.revision,
		Source:            s.source,
		Diagnostics:       nonNil(s.diags),
		Revision:          s.revision,
		LastValidRevision: s.lastValid,
	}
}

// Node returns the inspector payload of one node of the last valid
// document. ok is false when id is unknown.
func (s *Session) Node(id string) (wire.Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, found := s.index[id]
	if !found {
		return wire.Node{}, false
	}
	n := e.Node
	out := wire.Node{
		OK:       true,
		ID:       n.ID,
		Kind:     n.Kind,
		ParentID: e.ParentID,
		Path:     e.Path,
		Props:    make(map[string]json.RawMessage, len(n.Props)),
		Editable: n.Kind != markup.KindBank,
		TextEdit: textEditable(n),
		Children: len(n.Children),
	}
	for _, p := range n.Props {
		out.Props[p.Name] = transform.ValueToJSON(p.Value)
	}
	if n.Refresh != nil {
		out.Refresh = printer.Expr(n.Refresh)
	}
	if n.Transition != nil {
		out.Transition = printer.Expr(n.Transition)
	}
	return out, true
}

// textEditable reports whether setTextNodeContent can edit n in place:
// a text leaf, or a paragraph or callout wrapping exactly one.
func textEditable(n *markup.Node) bool {
	switch n.Kind {
	case markup.KindText:
		_, ok := n.StringProp("content")
		return ok && len(n.Children) == 0
	case markup.KindParagraph, markup.KindCallout:
		return len(n.Children) == 1 && textEditable(n.Children[0])
	}
	return false
}
