package transform

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/livedoc/internal/markup"
)

const fixture = `meta {
  title = "Demo";
}

assets {
  bank media {
    glob = "media/**/*.png";
  }
}

body {
  page intro {
    title = "Intro";
    section s1 {
      title = "First";
      paragraph p1 {
        text t1 {
          content = "Hello";
        }
      }
      slot clock {
        refresh = every(2);
        generator = @cycle(["a", "b"]);
      }
    }
    section s2 {
      title = "Second";
    }
  }
}
`

const paragraphP1 = `      paragraph p1 {
        text t1 {
          content = "Hello";
        }
      }
`

func apply(t *testing.T, src string, op Operation) *Outcome {
	t.Helper()
	out, err := New("doc.ld").Apply(src, op)
	require.NoError(t, err)
	return out
}

func applyErr(t *testing.T, src string, op Operation) *Error {
	t.Helper()
	_, err := New("doc.ld").Apply(src, op)
	require.Error(t, err)
	var te *Error
	require.ErrorAs(t, err, &te)
	require.NotEmpty(t, te.Diagnostics)
	return te
}

func TestFixtureIsValid(t *testing.T) {
	doc, diags := markup.ParseAndCheck("doc.ld", fixture)
	require.NotNil(t, doc)
	require.False(t, markup.HasErrors(diags), "%v", diags)
}

func TestSetText_EditsLiteralInPlace(t *testing.T) {
	out := apply(t, fixture, SetText{ID: "t1", Text: `Hi "there"`})

	assert.Equal(t, strings.Replace(fixture, `"Hello"`, `"Hi \"there\""`, 1), out.Source)
	assert.True(t, out.Changed)
	assert.Equal(t, "t1", out.SelectedID)
	assert.NotEqual(t, out.BeforeHash, out.AfterHash)
}

func TestSetText_NoChangesIsWarning(t *testing.T) {
	out := apply(t, fixture, SetText{ID: "t1", Text: "Hello"})

	assert.False(t, out.Changed)
	assert.Equal(t, fixture, out.Source)
	assert.Equal(t, out.BeforeHash, out.AfterHash)
	require.NotEmpty(t, out.Diagnostics)
	last := out.Diagnostics[len(out.Diagnostics)-1]
	assert.Equal(t, markup.LevelWarn, last.Level)
	assert.Equal(t, string(CodeNoChanges), last.Code)
}

func TestSetText_Idempotent(t *testing.T) {
	first := apply(t, fixture, SetText{ID: "t1", Text: "Bye"})
	second := apply(t, first.Source, SetText{ID: "t1", Text: "Bye"})

	assert.Equal(t, first.Source, second.Source)
	assert.False(t, second.Changed)
}

func TestSetText_WrongKind(t *testing.T) {
	te := applyErr(t, fixture, SetText{ID: "p1", Text: "x"})
	assert.Equal(t, CodeNodeWrongKind, te.Code)
	assert.Equal(t, "p1", te.NodeID)
}

func TestSetText_NotFoundSuggestsID(t *testing.T) {
	te := applyErr(t, fixture, SetText{ID: "clok", Text: "x"})
	assert.Equal(t, CodeNodeNotFound, te.Code)
	assert.Contains(t, te.Diagnostics[0].Suggestion, `"clock"`)
}

func TestSetTextNodeContent_ResolvesParagraph(t *testing.T) {
	out := apply(t, fixture, SetTextNodeContent{ID: "p1", Text: "Hey"})

	assert.Equal(t, strings.Replace(fixture, `"Hello"`, `"Hey"`, 1), out.Source)
	assert.Equal(t, "p1", out.SelectedID)
}

func TestSetTextNodeContent_RejectsSection(t *testing.T) {
	te := applyErr(t, fixture, SetTextNodeContent{ID: "s1", Text: "x"})
	assert.Equal(t, CodeNodeWrongKind, te.Code)
}

func TestReplaceNode_IDMismatch(t *testing.T) {
	te := applyErr(t, fixture, ReplaceNode{
		ID:   "t1",
		Node: NodeSpec{ID: "t9", Kind: "text", Props: map[string]json.RawMessage{"content": json.RawMessage(`"x"`)}},
	})
	assert.Equal(t, CodeIDMismatch, te.Code)
	assert.Contains(t, te.Message, "t9")
}

func TestReplaceNode_ReprintsAtIndent(t *testing.T) {
	out := apply(t, fixture, ReplaceNode{
		ID:   "t1",
		Node: NodeSpec{ID: "t1", Kind: "text", Props: map[string]json.RawMessage{"content": json.RawMessage(`"X"`)}},
	})
	assert.Equal(t, strings.Replace(fixture, `"Hello"`, `"X"`, 1), out.Source)
}

func TestRemoveNode_DropsWholeLines(t *testing.T) {
	out := apply(t, fixture, RemoveNode{ID: "s2"})

	want := strings.Replace(fixture, "    section s2 {\n      title = \"Second\";\n    }\n", "", 1)
	assert.Equal(t, want, out.Source)
	assert.Equal(t, "intro", out.SelectedID)
	_, ok := out.Index["s2"]
	assert.False(t, ok)
}

func TestSetNodeProps_RemovingRequiredPropFailsValidation(t *testing.T) {
	te := applyErr(t, fixture, SetNodeProps{ID: "t1", Remove: []string{"content"}})
	assert.Equal(t, CodeValidationFailed, te.Code)
}

func TestSetSlotProps_UpdatesPolicies(t *testing.T) {
	refresh := "docstep"
	transition := "fade(0.5)"
	out := apply(t, fixture, SetSlotProps{ID: "clock", Refresh: &refresh, Transition: &transition})

	assert.Contains(t, out.Source, "        refresh = docstep;\n        transition = fade(0.5);\n        generator = @cycle([\"a\", \"b\"]);\n")
}

func TestSetSlotGenerator_RejectsNonSlot(t *testing.T) {
	te := applyErr(t, fixture, SetSlotGenerator{ID: "t1", Generator: json.RawMessage(`{"expr":"choose([1, 2])"}`)})
	assert.Equal(t, CodeNodeWrongKind, te.Code)
}

func TestAddParagraph_DefaultsToLastSection(t *testing.T) {
	out := apply(t, fixture, AddParagraph{Text: "New"})

	want := strings.Replace(fixture, "      title = \"Second\";\n",
		"      title = \"Second\";\n"+
			"      paragraph paragraph-1 {\n"+
			"        text text-1 {\n"+
			"          content = \"New\";\n"+
			"        }\n"+
			"      }\n", 1)
	assert.Equal(t, want, out.Source)
	assert.Equal(t, "paragraph-1", out.SelectedID)
}

func TestAddFigure_FromBank(t *testing.T) {
	out := apply(t, fixture, AddFigure{
		Placement: Placement{ParentID: "s1"},
		BankName:  "media",
		Tags:      []string{"hero"},
		Caption:   "Cover",
	})

	assert.Contains(t, out.Source, "assets.pick(")
	assert.Contains(t, out.Source, `bank: "media"`)
	assert.Contains(t, out.Source, "      figure figure-1 {\n        src = @assets.pick(bank: \"media\", tags: [\"hero\"]);\n        caption = \"Cover\";\n      }\n")
	assert.Less(t, strings.Index(out.Source, "slot clock"), strings.Index(out.Source, "figure figure-1"))
}

func TestAddFigure_UnknownBankFailsValidation(t *testing.T) {
	te := applyErr(t, fixture, AddFigure{BankName: "nope"})
	assert.Equal(t, CodeValidationFailed, te.Code)
}

func TestAddSection_AfterSibling(t *testing.T) {
	out := apply(t, fixture, AddSection{Placement: Placement{AfterID: "s1"}, ID: "mid", Title: "Middle"})

	assert.Contains(t, out.Source, "    }\n    section mid {\n      title = \"Middle\";\n    }\n    section s2 {")
}

func TestAddSection_WrongParent(t *testing.T) {
	te := applyErr(t, fixture, AddSection{Placement: Placement{ParentID: "s1"}})
	assert.Equal(t, CodeNodeWrongKind, te.Code)
}

func TestAddPage_AppendsToBody(t *testing.T) {
	out := apply(t, fixture, AddPage{ID: "outro", Title: "Outro"})
	assert.True(t, strings.HasSuffix(out.Source, "  }\n  page outro {\n    title = \"Outro\";\n  }\n}\n"))
}

func TestAddPage_RejectsTakenID(t *testing.T) {
	te := applyErr(t, fixture, AddPage{ID: "s1"})
	assert.Equal(t, CodeInvalidArguments, te.Code)
}

func TestAddTable_RowWidth(t *testing.T) {
	te := applyErr(t, fixture, AddTable{Columns: []string{"a", "b"}, Rows: [][]string{{"1"}}})
	assert.Equal(t, CodeInvalidArguments, te.Code)

	out := apply(t, fixture, AddTable{Columns: []string{"a", "b"}, Rows: [][]string{{"1", "2"}}})
	assert.Contains(t, out.Source, `columns = ["a", "b"];`)
	assert.Contains(t, out.Source, `rows = [["1", "2"]];`)
}

func TestAddSlot_WithPolicies(t *testing.T) {
	out := apply(t, fixture, AddSlot{
		Placement:  Placement{ParentID: "s2"},
		Generator:  json.RawMessage(`{"expr": "poisson(3)"}`),
		Refresh:    "every(5)",
		Transition: "appear",
	})
	assert.Contains(t, out.Source, "      slot slot-1 {\n        refresh = every(5);\n        transition = appear;\n        generator = @poisson(3);\n      }\n")
}

func TestMoveNode_AcrossSections(t *testing.T) {
	out := apply(t, fixture, MoveNode{ID: "p1", TargetID: "s2"})

	want := strings.Replace(fixture, paragraphP1, "", 1)
	want = strings.Replace(want, "      title = \"Second\";\n", "      title = \"Second\";\n"+paragraphP1, 1)
	assert.Equal(t, want, out.Source)
	assert.Equal(t, "s2", out.Index["p1"].ParentID)
}

func TestMoveNode_ReorderWithinSection(t *testing.T) {
	zero := 0
	out := apply(t, fixture, MoveNode{ID: "clock", TargetID: "s1", Index: &zero})

	assert.Less(t, strings.Index(out.Source, "slot clock"), strings.Index(out.Source, "paragraph p1"))
	assert.Equal(t, []string{"clock", "p1"}, childIDs(out.Index["s1"].Node))
}

func TestMoveNode_PageTargetCreatesSection(t *testing.T) {
	src := strings.TrimSuffix(fixture, "}\n") + "  page outro {}\n}\n"
	out := apply(t, src, MoveNode{ID: "p1", TargetID: "outro"})

	assert.Contains(t, out.Source, "  page outro {\n    section section-1 {\n"+
		"      paragraph p1 {\n        text t1 {\n          content = \"Hello\";\n        }\n      }\n    }\n  }\n")
	assert.Equal(t, "section-1", out.Index["p1"].ParentID)
}

func TestMoveNode_PageTargetUsesFirstSection(t *testing.T) {
	out := apply(t, fixture, MoveNode{ID: "clock", TargetID: "intro"})
	assert.Equal(t, "s1", out.Index["clock"].ParentID)
}

func TestMoveNode_IntoOwnSubtree(t *testing.T) {
	te := applyErr(t, fixture, MoveNode{ID: "s1", TargetID: "p1"})
	assert.Equal(t, CodeInvalidArguments, te.Code)
}

func TestMoveNode_WrongContainer(t *testing.T) {
	te := applyErr(t, fixture, MoveNode{ID: "t1", TargetID: "s2"})
	assert.Equal(t, CodeNodeWrongKind, te.Code)
}

func TestSetSource_Normalizes(t *testing.T) {
	src := strings.ReplaceAll(fixture, "\n", "\r\n") + "\r\n\r\n"
	out := apply(t, "", SetSource{Source: src})
	assert.Equal(t, fixture, out.Source)
}

func TestSetSource_RejectsInvalid(t *testing.T) {
	te := applyErr(t, fixture, SetSource{Source: "body { page p {"})
	assert.Equal(t, CodeValidationFailed, te.Code)
}

func TestStructuralEditOnInvalidDocument(t *testing.T) {
	te := applyErr(t, "body { page p { unknownthing", SetText{ID: "t1", Text: "x"})
	assert.Equal(t, CodeDocumentInvalid, te.Code)
}

func childIDs(n *markup.Node) []string {
	var ids []string
	for _, c := range n.Children {
		ids = append(ids, c.ID)
	}
	return ids
}
