package printer

import (
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/livedoc/internal/markup"
)

// structural ignores positions and property order.
var structural = cmp.Options{
	cmpopts.IgnoreTypes(markup.Span{}),
	cmpopts.SortSlices(func(a, b markup.Property) bool { return a.Name < b.Name }),
	cmpopts.EquateEmpty(),
}

func parse(t *testing.T, src string) *markup.Document {
	t.Helper()
	doc, err := markup.ParseDocument(src)
	require.NoError(t, err)
	return doc
}

func TestDocument_Golden(t *testing.T) {
	src, err := os.ReadFile("testdata/messy.ld")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "messy", []byte(Document(parse(t, string(src)))))
}

const operatorsDoc = `body {
  page p {
    section s {
      slot a { generator = @-(1 - 2) - -3; }
      slot b { generator = @!(x && y) || z == 1; }
      slot c { generator = @1 - (2 - 3); }
      slot d { generator = @every(0.5, [1, 2.25, -4]); refresh = chance(0.25); transition = wipe(0.3); }
    }
  }
}
`

const literalsDoc = `meta { title = "Tab\there"; flag = true; nothing = null; nums = [1, -2, 3.5]; }
body { page p { section s { callout c { tone = "warn"; text t { content = "back\\slash"; } } } } }
`

func TestDocument_RoundTrip(t *testing.T) {
	sources := map[string]string{
		"minimal":   "body {}\n",
		"operators": operatorsDoc,
		"literals":  literalsDoc,
	}
	data, err := os.ReadFile("testdata/messy.ld")
	require.NoError(t, err)
	sources["messy"] = string(data)

	for name, src := range sources {
		t.Run(name, func(t *testing.T) {
			orig := parse(t, src)
			printed := Document(orig)
			again := parse(t, printed)
			if diff := cmp.Diff(orig, again, structural); diff != "" {
				t.Errorf("round trip changed the tree (-orig +printed):\n%s", diff)
			}
			assert.Equal(t, printed, Document(again), "printing is idempotent")
		})
	}
}

func TestExpr_Parenthesization(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"1 + 2 * 3", "1 + 2 * 3"},
		{"(1 + 2) * 3", "(1 + 2) * 3"},
		{"1 - (2 - 3)", "1 - (2 - 3)"},
		{"(1 - 2) - 3", "1 - 2 - 3"},
		{"-(a + b)", "-(a + b)"},
		{"!a && b", "!a && b"},
		{"(a || b) && c", "(a || b) && c"},
		{"assets.pick(bank: \"m\", tags: [\"x\"])", "assets.pick(bank: \"m\", tags: [\"x\"])"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			e, err := markup.ParseExpr(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, Expr(e))
		})
	}
}

func TestLiteral(t *testing.T) {
	assert.Equal(t, `"a \"b\" \\c"`, Literal(markup.String(`a "b" \c`)))
	assert.Equal(t, "2.5", Literal(markup.Number(2.5)))
	assert.Equal(t, "-3", Literal(markup.Number(-3)))
	assert.Equal(t, "1000000", Literal(markup.Number(1e6)))
	assert.Equal(t, "false", Literal(markup.Bool(false)))
	assert.Equal(t, "null", Literal(markup.Null()))
	assert.Equal(t, `[1, "x", [true]]`, Literal(markup.List(markup.Number(1), markup.String("x"), markup.List(markup.Bool(true)))))
	assert.Equal(t, "null", Value(markup.Value{}))
}

func TestOrderedProps(t *testing.T) {
	props := []markup.Property{{Name: "zeta"}, {Name: "caption"}, {Name: "alpha"}, {Name: "src"}}
	var names []string
	for _, p := range OrderedProps(props) {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"src", "caption", "alpha", "zeta"}, names)
	assert.Equal(t, "zeta", props[0].Name, "input is not reordered")
}

func TestNode_Indent(t *testing.T) {
	n, err := markup.ParseNode(`paragraph p1 { text t1 { content = "x"; } }`)
	require.NoError(t, err)
	want := "    paragraph p1 {\n      text t1 {\n        content = \"x\";\n      }\n    }"
	assert.Equal(t, want, Node(n, "    "))
}
