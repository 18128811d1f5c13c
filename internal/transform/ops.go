package transform

import "encoding/json"

// Operation is one structured edit. Concrete types are the wire variants.
type Operation interface {
	// Name is the wire name of the operation ("setText", "moveNode", ...).
	Name() string
	// Target is the id the edit is aimed at, or "" for document-wide edits.
	Target() string
}

// Placement locates an insertion: after a sibling, or at the end of a
// parent container. When both are empty a kind-specific default applies.
type Placement struct {
	ParentID string `json:"parentId,omitempty"`
	AfterID  string `json:"afterId,omitempty"`
}

// SetText replaces the literal content of a text node in place.
type SetText struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// SetTextNodeContent sets the content of a text node, or of the single text
// child of a paragraph or callout. Dynamic content is replaced by a literal.
type SetTextNodeContent struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// SetNodeProps merges properties into a node and removes the listed ones.
type SetNodeProps struct {
	ID     string                     `json:"id"`
	Props  map[string]json.RawMessage `json:"props,omitempty"`
	Remove []string                   `json:"remove,omitempty"`
}

// SetSlotProps updates a slot's refresh and transition policies and props.
// An empty policy string removes the policy line.
type SetSlotProps struct {
	ID         string                     `json:"id"`
	Refresh    *string                    `json:"refresh,omitempty"`
	Transition *string                    `json:"transition,omitempty"`
	Props      map[string]json.RawMessage `json:"props,omitempty"`
}

// SetSlotGenerator replaces a slot's generator.
type SetSlotGenerator struct {
	ID        string          `json:"id"`
	Generator json.RawMessage `json:"generator"`
}

// ReplaceNode swaps a node for a caller-supplied one with the same id.
type ReplaceNode struct {
	ID   string   `json:"id"`
	Node NodeSpec `json:"node"`
}

// RemoveNode deletes a node and its subtree.
type RemoveNode struct {
	ID string `json:"id"`
}

// AddPage appends a page to the body or places it after another page.
type AddPage struct {
	Placement
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
}

// AddSection adds a section to a page.
type AddSection struct {
	Placement
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
}

// AddParagraph adds a paragraph holding one text node.
type AddParagraph struct {
	Placement
	ID   string `json:"id,omitempty"`
	Text string `json:"text"`
}

// AddFigure adds a figure. With BankName the source is an assets.pick call;
// otherwise Src is used as a literal path.
type AddFigure struct {
	Placement
	ID       string   `json:"id,omitempty"`
	BankName string   `json:"bankName,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Src      string   `json:"src,omitempty"`
	Caption  string   `json:"caption,omitempty"`
}

// AddCallout adds a callout holding one text node.
type AddCallout struct {
	Placement
	ID   string `json:"id,omitempty"`
	Tone string `json:"tone,omitempty"`
	Text string `json:"text"`
}

// AddTable adds a table with literal columns and rows.
type AddTable struct {
	Placement
	ID      string     `json:"id,omitempty"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows,omitempty"`
}

// AddSlot adds a computed slot.
type AddSlot struct {
	Placement
	ID         string          `json:"id,omitempty"`
	Generator  json.RawMessage `json:"generator"`
	Refresh    string          `json:"refresh,omitempty"`
	Transition string          `json:"transition,omitempty"`
}

// MoveNode relocates a node into a target container. Targeting a page
// resolves to its first section, creating one when the page has none.
type MoveNode struct {
	ID       string `json:"id"`
	TargetID string `json:"targetId"`
	Index    *int   `json:"index,omitempty"`
}

// SetSource replaces the whole document text.
type SetSource struct {
	Source string `json:"source"`
}

func (SetText) Name() string            { return "setText" }
func (SetTextNodeContent) Name() string { return "setTextNodeContent" }
func (SetNodeProps) Name() string       { return "setNodeProps" }
func (SetSlotProps) Name() string       { return "setSlotProps" }
func (SetSlotGenerator) Name() string   { return "setSlotGenerator" }
func (ReplaceNode) Name() string        { return "replaceNode" }
func (RemoveNode) Name() string         { return "removeNode" }
func (AddPage) Name() string            { return "addPage" }
func (AddSection) Name() string         { return "addSection" }
func (AddParagraph) Name() string       { return "addParagraph" }
func (AddFigure) Name() string          { return "addFigure" }
func (AddCallout) Name() string         { return "addCallout" }
func (AddTable) Name() string           { return "addTable" }
func (AddSlot) Name() string            { return "addSlot" }
func (MoveNode) Name() string           { return "moveNode" }
func (SetSource) Name() string          { return "setSource" }

func (o SetText) Target() string            { return o.ID }
func (o SetTextNodeContent) Target() string { return o.ID }
func (o SetNodeProps) Target() string       { return o.ID }
func (o SetSlotProps) Target() string       { return o.ID }
func (o SetSlotGenerator) Target() string   { return o.ID }
func (o ReplaceNode) Target() string        { return o.ID }
func (o RemoveNode) Target() string         { return o.ID }
func (o AddPage) Target() string            { return o.ID }
func (o AddSection) Target() string         { return o.ID }
func (o AddParagraph) Target() string       { return o.ID }
func (o AddFigure) Target() string          { return o.ID }
func (o AddCallout) Target() string         { return o.ID }
func (o AddTable) Target() string           { return o.ID }
func (o AddSlot) Target() string            { return o.ID }
func (o MoveNode) Target() string           { return o.ID }
func (SetSource) Target() string            { return "" }
