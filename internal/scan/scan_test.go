package scan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchBrace(t *testing.T) {
	tests := []struct {
		name string
		src  string
		open int
		want int
	}{
		{"flat", `a { b }`, 2, 6},
		{"nested", `{ { } { { } } }`, 0, 14},
		{"brace in double string", `{ x = "}"; }`, 0, 11},
		{"brace in single string", `{ x = '}'; }`, 0, 11},
		{"escaped quote", `{ x = "a\"}"; }`, 0, 14},
		{"brace in line comment", "{ // }\n}", 0, 7},
		{"brace in block comment", "{ /* } { */ }", 0, 12},
		{"not a brace", `abc`, 1, NotFound},
		{"out of range", `{}`, 5, NotFound},
		{"negative", `{}`, -1, NotFound},
		{"unclosed", `{ { }`, 0, NotFound},
		{"unterminated string", `{ x = "} }`, 0, NotFound},
		{"unterminated block comment", `{ /* } }`, 0, NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchBrace(tt.src, tt.open))
		})
	}
}

func TestMatchBrace_DeepNesting(t *testing.T) {
	const depth = 10000
	src := strings.Repeat("{", depth) + strings.Repeat("}", depth)
	assert.Equal(t, len(src)-1, MatchBrace(src, 0))
	assert.Equal(t, depth, MatchBrace(src, depth-1))
	assert.Equal(t, NotFound, MatchBrace(src[:len(src)-1], 0))
}

func TestNextCode(t *testing.T) {
	src := `x = "a;b"; // c;` + "\n" + `/* ; */ y;`
	first := NextCode(src, 0, ';')
	assert.Equal(t, 9, first)
	second := NextCode(src, first+1, ';')
	assert.Equal(t, len(src)-1, second)
	assert.Equal(t, NotFound, NextCode(src, second+1, ';'))
}

func TestScanner_States(t *testing.T) {
	src := "a\"b\"/*c*///d\ne"
	s := New(src, 0)
	var states []State
	for {
		_, _, st, ok := s.Next()
		if !ok {
			break
		}
		states = append(states, st)
	}
	// Comment openers and closers are consumed as one step.
	want := []State{
		Code,
		String, String, String,
		BlockComment, BlockComment, BlockComment,
		LineComment, LineComment,
		Code, Code,
	}
	assert.Equal(t, want, states)
	assert.Equal(t, "line-comment", LineComment.String())
	assert.Equal(t, "block-comment", BlockComment.String())
}

const doc = `body {
  page intro {
    section s1 {
      paragraph p10 {
        text t1 { content = "paragraph p1 { fake }"; }
      }
      // paragraph p1 { commented }
      paragraph p1 {
        text t2 { content = "real"; }
      }
    }
  }
}
`

func TestFindNode(t *testing.T) {
	b, ok := FindNode(doc, "paragraph", "p1", 0)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(doc[b.Start:], "paragraph p1 {\n        text t2"))
	assert.Equal(t, byte('{'), doc[b.Open])
	assert.Equal(t, byte('}'), doc[b.Close])
	assert.Contains(t, doc[b.Open:b.Close], `"real"`)

	_, ok = FindNode(doc, "paragraph", "p2", 0)
	assert.False(t, ok)
}

func TestFindBlock(t *testing.T) {
	b, ok := FindBlock(doc, "body", 0)
	require.True(t, ok)
	assert.Equal(t, 0, b.Start)
	assert.Equal(t, 5, b.Open)
	assert.Equal(t, strings.LastIndexByte(doc, '}'), b.Close)

	// A name followed by an id still matches when no id is requested.
	sec, ok := FindBlock(doc, "section", 0)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(doc[sec.Start:], "section s1 {"))

	_, ok = FindBlock(doc, "assets", 0)
	assert.False(t, ok)
}

func TestFindNode_WordBoundary(t *testing.T) {
	src := `subpage x { } page x { }`
	b, ok := FindNode(src, "page", "x", 0)
	require.True(t, ok)
	assert.Equal(t, strings.Index(src, " page")+1, b.Start)
}

func TestFindNode_Malformed(t *testing.T) {
	_, ok := FindNode(`page x { "unterminated }`, "page", "x", 0)
	assert.False(t, ok)
	_, ok = FindNode(`page x {`, "page", "x", 0)
	assert.False(t, ok)
}
