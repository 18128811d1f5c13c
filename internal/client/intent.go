package client

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/livedoc/internal/markup"
	"github.com/roach88/livedoc/internal/transform"
)

// EditorTransform is an edit as the editor expresses it. Translate turns it
// into the wire operation to send and, for some intents, a fallback that
// carries the same intent at a coarser granularity.
type EditorTransform interface {
	Translate(idx markup.Index) (primary, fallback transform.Operation, err error)
}

// EditText replaces the text of a text node, or of the paragraph or callout
// wrapping a single text node. The fallback replaces the whole node.
type EditText struct {
	ID   string
	Text string
}

// Translate implements EditorTransform.
func (e EditText) Translate(idx markup.Index) (transform.Operation, transform.Operation, error) {
	primary := transform.SetTextNodeContent{ID: e.ID, Text: e.Text}
	n, ok := idx.Lookup(e.ID)
	if !ok {
		return primary, nil, nil
	}
	spec := transform.SpecFromNode(n)
	content, err := json.Marshal(e.Text)
	if err != nil {
		return nil, nil, fmt.Errorf("encode text: %w", err)
	}
	switch {
	case n.Kind == markup.KindText && len(n.Children) == 0:
		spec.Props = withProp(spec.Props, "content", content)
	case len(n.Children) == 1 && n.Children[0].Kind == markup.KindText:
		spec.Children[0].Props = withProp(spec.Children[0].Props, "content", content)
	default:
		return primary, nil, nil
	}
	return primary, transform.ReplaceNode{ID: e.ID, Node: spec}, nil
}

func withProp(props map[string]json.RawMessage, name string, v json.RawMessage) map[string]json.RawMessage {
	if props == nil {
		props = map[string]json.RawMessage{}
	}
	props[name] = v
	return props
}

// EditProps merges and removes node properties.
type EditProps struct {
	ID     string
	Props  map[string]json.RawMessage
	Remove []string
}

// Translate implements EditorTransform.
func (e EditProps) Translate(markup.Index) (transform.Operation, transform.Operation, error) {
	return transform.SetNodeProps{ID: e.ID, Props: e.Props, Remove: e.Remove}, nil, nil
}

// Structural sends an operation as is: inserts, moves, removals and slot
// edits.
type Structural struct {
	Op transform.Operation
}

// Translate implements EditorTransform.
func (e Structural) Translate(markup.Index) (transform.Operation, transform.Operation, error) {
	if e.Op == nil {
		return nil, nil, fmt.Errorf("structural edit without an operation")
	}
	return e.Op, nil, nil
}

// ReplaceSource swaps the whole document text.
type ReplaceSource struct {
	Source string
}

// Translate implements EditorTransform.
func (e ReplaceSource) Translate(markup.Index) (transform.Operation, transform.Operation, error) {
	return transform.SetSource{Source: e.Source}, nil, nil
}
