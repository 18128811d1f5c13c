package markup

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildIndex(t *testing.T) {
	doc, err := ParseDocument(sample)
	require.NoError(t, err)
	idx := BuildIndex(doc)

	assert.ElementsMatch(t, []string{"media", "intro", "s1", "p1", "t1", "clock", "f1"}, idx.IDs())

	e := idx["t1"]
	assert.Equal(t, []string{"intro", "s1", "p1", "t1"}, e.Path)
	assert.Equal(t, 3, e.Depth)
	assert.Equal(t, "p1", e.ParentID)
	assert.Equal(t, "p1", idx.Parent("t1").ID)

	assert.Nil(t, idx.Parent("intro"))
	assert.Nil(t, idx.Parent("media"))
	assert.Equal(t, []string{"media"}, idx["media"].Path)

	n, ok := idx.Lookup("clock")
	require.True(t, ok)
	assert.Equal(t, KindSlot, n.Kind)
	_, ok = idx.Lookup("ghost")
	assert.False(t, ok)
}

func TestBuildIndex_NilDocument(t *testing.T) {
	assert.Empty(t, BuildIndex(nil))
	assert.Nil(t, Outline(nil))
}

func TestIndex_NextID(t *testing.T) {
	doc, err := ParseDocument("body {\n  page page-1 {\n  }\n  page page-3 {\n  }\n}\n")
	require.NoError(t, err)
	idx := BuildIndex(doc)
	assert.Equal(t, "page-2", idx.NextID(KindPage))
	assert.Equal(t, "figure-1", idx.NextID(KindFigure))
}

func TestOutline(t *testing.T) {
	doc, err := ParseDocument(sample)
	require.NoError(t, err)
	out := Outline(doc)
	require.Len(t, out, 1)
	assert.Equal(t, "intro", out[0].ID)
	assert.Equal(t, KindPage, out[0].Kind)
	assert.Equal(t, "intro", out[0].Label)

	sec := out[0].Children[0]
	require.Len(t, sec.Children, 3)
	assert.Equal(t, "p1", sec.Children[0].Label, "paragraph has no label of its own")
	assert.Equal(t, "Hello", sec.Children[0].Children[0].Label)
	assert.Equal(t, "Hero", sec.Children[2].Label)
}

func TestLabel(t *testing.T) {
	long := strings.Repeat("x", 41)
	n := &Node{Kind: KindText, ID: "t", Props: []Property{{Name: "content", Value: LiteralValue(String(long))}}}
	got := Label(n)
	assert.Len(t, got, 40)
	assert.True(t, strings.HasSuffix(got, "..."))

	n.Props[0].Value = LiteralValue(String(strings.Repeat("y", 40)))
	assert.Equal(t, strings.Repeat("y", 40), Label(n))

	n.Props = append([]Property{{Name: "title", Value: LiteralValue(String("Titled"))}}, n.Props...)
	assert.Equal(t, "Titled", Label(n))

	dyn := &Node{Kind: KindFigure, ID: "f", Props: []Property{{Name: "caption", Value: DynamicValue(&Ident{Name: "x"})}}}
	assert.Equal(t, "f", Label(dyn))
}
