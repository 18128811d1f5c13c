package markup

import "fmt"

// Entry describes one node's position in the tree.
type Entry struct {
	Node     *Node
	ParentID string
	Path     []string
	Depth    int
}

// Index maps node ids to their entries. It is derived from a Document and
// rebuilt whenever the document is.
type Index map[string]*Entry

// BuildIndex indexes every body node and asset bank. Banks have depth 0 and
// no parent.
func BuildIndex(doc *Document) Index {
	idx := Index{}
	if doc == nil {
		return idx
	}
	for _, b := range doc.Banks {
		idx[b.ID] = &Entry{Node: b, Path: []string{b.ID}}
	}
	var visit func(n *Node, parent *Entry, depth int)
	visit = func(n *Node, parent *Entry, depth int) {
		e := &Entry{Node: n, Depth: depth}
		if parent != nil {
			e.ParentID = parent.Node.ID
			e.Path = append(append([]string(nil), parent.Path...), n.ID)
		} else {
			e.Path = []string{n.ID}
		}
		if _, dup := idx[n.ID]; !dup {
			idx[n.ID] = e
		}
		for _, ch := range n.Children {
			visit(ch, e, depth+1)
		}
	}
	for _, p := range doc.Body {
		visit(p, nil, 0)
	}
	return idx
}

// Lookup returns the node with the given id.
func (idx Index) Lookup(id string) (*Node, bool) {
	e, ok := idx[id]
	if !ok {
		return nil, false
	}
	return e.Node, true
}

// Parent returns the parent node of id, or nil for top-level nodes.
func (idx Index) Parent(id string) *Node {
	e, ok := idx[id]
	if !ok || e.ParentID == "" {
		return nil
	}
	return idx[e.ParentID].Node
}

// IDs returns every indexed id in no particular order.
func (idx Index) IDs() []string {
	ids := make([]string, 0, len(idx))
	for id := range idx {
		ids = append(ids, id)
	}
	return ids
}

// NextID returns the first free id of the form "<kind>-<n>".
func (idx Index) NextID(kind string) string {
	for n := 1; ; n++ {
		id := fmt.Sprintf("%s-%d", kind, n)
		if _, taken := idx[id]; !taken {
			return id
		}
	}
}

// OutlineItem is one entry of the navigational outline.
type OutlineItem struct {
	ID       string        `json:"id"`
	Kind     string        `json:"kind"`
	Label    string        `json:"label"`
	Children []OutlineItem `json:"children,omitempty"`
}

// Outline returns the body tree as outline items.
func Outline(doc *Document) []OutlineItem {
	if doc == nil {
		return nil
	}
	var build func(n *Node) OutlineItem
	build = func(n *Node) OutlineItem {
		item := OutlineItem{ID: n.ID, Kind: n.Kind, Label: Label(n)}
		for _, ch := range n.Children {
			item.Children = append(item.Children, build(ch))
		}
		return item
	}
	items := make([]OutlineItem, 0, len(doc.Body))
	for _, p := range doc.Body {
		items = append(items, build(p))
	}
	return items
}

// Label is a short human label for a node: its title, caption or text.
func Label(n *Node) string {
	for _, key := range []string{"title", "caption", "content"} {
		if s, ok := n.StringProp(key); ok && s != "" {
			if len(s) > 40 {
				return s[:37] + "..."
			}
			return s
		}
	}
	return n.ID
}
