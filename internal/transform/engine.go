package transform

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/roach88/livedoc/internal/digest"
	"github.com/roach88/livedoc/internal/markup"
)

// Engine applies edit operations to raw source text. It is stateless apart
// from the file name used in diagnostics and is safe for concurrent use.
//
// Every successful Apply returns a candidate that has been reparsed and
// rechecked. Persisting the candidate is the caller's job.
type Engine struct {
	File string
}

// New creates an engine reporting diagnostics against file.
func New(file string) *Engine {
	return &Engine{File: file}
}

// Outcome is a validated candidate produced by Apply.
type Outcome struct {
	Source      string
	Doc         *markup.Document
	Index       markup.Index
	Diagnostics []markup.Diagnostic
	Changed     bool
	SelectedID  string
	BeforeHash  string
	AfterHash   string
}

// docState is the parsed view of the source an operation works against.
type docState struct {
	file  string
	src   string
	doc   *markup.Document
	idx   markup.Index
	lines *markup.LineIndex
}

func newDocState(file, src string, doc *markup.Document) *docState {
	return &docState{
		file:  file,
		src:   src,
		doc:   doc,
		idx:   markup.BuildIndex(doc),
		lines: markup.NewLineIndex(src),
	}
}

// Apply runs op against src. A returned error is always a *Error. An
// operation that produces byte-identical source succeeds with Changed
// false and a warn-level no-changes-produced diagnostic.
func (e *Engine) Apply(src string, op Operation) (*Outcome, error) {
	var (
		candidate string
		selected  = op.Target()
		err       error
	)
	if ss, ok := op.(SetSource); ok {
		candidate = NormalizeSource(ss.Source)
	} else {
		st, verr := e.load(src)
		if verr != nil {
			return nil, verr
		}
		candidate, selected, err = e.dispatch(st, op)
		if err != nil {
			return nil, err
		}
	}

	doc, diags := markup.ParseAndCheck(e.File, candidate)
	if doc == nil || markup.HasErrors(diags) {
		slog.Debug("transform rejected", "op", op.Name(), "target", op.Target(), "diagnostics", len(diags))
		return nil, &Error{
			Code:        CodeValidationFailed,
			Message:     fmt.Sprintf("%s produced a document that does not validate", op.Name()),
			NodeID:      op.Target(),
			Diagnostics: diags,
		}
	}

	out := &Outcome{
		Source:      candidate,
		Doc:         doc,
		Index:       markup.BuildIndex(doc),
		Diagnostics: diags,
		Changed:     candidate != src,
		SelectedID:  selected,
		BeforeHash:  digest.Source(src),
		AfterHash:   digest.Source(candidate),
	}
	if !out.Changed {
		d := markup.NewDiagnostic(e.File, "", markup.Span{}, markup.LevelWarn, string(CodeNoChanges),
			fmt.Sprintf("%s produced no changes", op.Name()))
		d.NodeID = op.Target()
		out.Diagnostics = append(out.Diagnostics, d)
	}
	return out, nil
}

// load parses and checks the current source. Structural edits need a clean
// document to resolve spans against.
func (e *Engine) load(src string) (*docState, error) {
	doc, diags := markup.ParseAndCheck(e.File, src)
	if doc == nil || markup.HasErrors(diags) {
		return nil, &Error{
			Code:        CodeDocumentInvalid,
			Message:     "the current document does not validate; only setSource can be applied",
			Diagnostics: diags,
		}
	}
	return newDocState(e.File, src, doc), nil
}

func (e *Engine) dispatch(st *docState, op Operation) (string, string, error) {
	switch o := op.(type) {
	case SetText:
		out, err := st.setText(o.ID, o.Text)
		return out, o.ID, err
	case SetTextNodeContent:
		return st.setTextNodeContent(o)
	case SetNodeProps:
		out, err := st.setNodeProps(o)
		return out, o.ID, err
	case SetSlotProps:
		out, err := st.setSlotProps(o)
		return out, o.ID, err
	case SetSlotGenerator:
		out, err := st.setSlotGenerator(o)
		return out, o.ID, err
	case ReplaceNode:
		out, err := st.replaceWith(o)
		return out, o.ID, err
	case RemoveNode:
		parent := ""
		if entry, ok := st.idx[o.ID]; ok {
			parent = entry.ParentID
		}
		out, err := st.removeNode(o.ID)
		return out, parent, err
	case AddPage:
		return st.addPage(o)
	case AddSection:
		return st.addSection(o)
	case AddParagraph:
		return st.addParagraph(o)
	case AddFigure:
		return st.addFigure(o)
	case AddCallout:
		return st.addCallout(o)
	case AddTable:
		return st.addTable(o)
	case AddSlot:
		return st.addSlot(o)
	case MoveNode:
		out, err := e.moveNode(st, o)
		return out, o.ID, err
	}
	return "", "", newError(e.File, CodeUnsupportedOperation, op.Target(), "unsupported operation %q", op.Name())
}

// NormalizeSource converts line endings to LF and guarantees exactly one
// trailing newline.
func NormalizeSource(src string) string {
	src = strings.ReplaceAll(src, "\r\n", "\n")
	src = strings.ReplaceAll(src, "\r", "\n")
	return strings.TrimRight(src, "\n") + "\n"
}

// lookup resolves id or fails with node-not-found. When the id text occurs
// in the source the diagnostic points there, and a close id is suggested.
func (st *docState) lookup(id string) (*markup.Node, error) {
	if n, ok := st.idx.Lookup(id); ok {
		return n, nil
	}
	var err *Error
	if off := strings.Index(st.src, id); id != "" && off >= 0 {
		p := st.lines.Pos(off)
		err = newSpanError(st.file, st.src, markup.Span{Start: p, End: p}, CodeNodeNotFound, id,
			"node %q not found (the text appears at line %d but is not a node id)", id, p.Line)
	} else {
		err = newError(st.file, CodeNodeNotFound, id, "node %q not found", id)
	}
	if s := suggestID(id, st.idx.IDs()); s != "" {
		err.Diagnostics[0].Suggestion = fmt.Sprintf("did you mean %q?", s)
	}
	return nil, err
}

// suggestID returns the closest known id by fuzzy match, or "".
func suggestID(id string, ids []string) string {
	if id == "" || len(ids) == 0 {
		return ""
	}
	ranks := fuzzy.RankFindNormalizedFold(id, ids)
	if len(ranks) == 0 {
		// Fall back to ids contained in the typo ("intro" for "intro-x").
		for _, cand := range ids {
			if fuzzy.MatchNormalizedFold(cand, id) {
				ranks = append(ranks, fuzzy.Rank{Source: cand, Target: cand})
			}
		}
	}
	if len(ranks) == 0 {
		return ""
	}
	sort.Sort(ranks)
	return ranks[0].Target
}
