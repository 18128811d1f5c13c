package markup

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// section wraps node source in a minimal page/section body.
func section(inner string) string {
	return fmt.Sprintf(`assets {
  bank media {
    glob = "media/*.png";
  }
}

body {
  page intro {
    section s1 {
%s
    }
  }
}
`, inner)
}

func codes(diags []Diagnostic) []string {
	out := make([]string, 0, len(diags))
	for _, d := range diags {
		out = append(out, d.Code)
	}
	return out
}

func TestCheck_Clean(t *testing.T) {
	doc, diags := ParseAndCheck("doc.ld", sample)
	require.NotNil(t, doc)
	assert.Empty(t, diags)
	assert.False(t, HasErrors(diags))
}

func TestCheck_Diagnostics(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		code   string
		nodeID string
	}{
		{
			name:   "paragraph directly under page",
			src:    "body {\n  page p {\n    paragraph x {\n    }\n  }\n}\n",
			code:   "invalid-nesting",
			nodeID: "x",
		},
		{
			name:   "section at top level",
			src:    "body {\n  section s {\n  }\n}\n",
			code:   "unexpected-kind",
			nodeID: "s",
		},
		{
			name:   "duplicate id",
			src:    section("      paragraph s1 {\n      }"),
			code:   "duplicate-id",
			nodeID: "s1",
		},
		{
			name:   "bank id reused in body",
			src:    section("      paragraph media {\n      }"),
			code:   "duplicate-id",
			nodeID: "media",
		},
		{
			name:   "figure without src",
			src:    section("      figure f {\n        caption = \"x\";\n      }"),
			code:   "missing-property",
			nodeID: "f",
		},
		{
			name:   "unknown kind",
			src:    section("      video v {\n      }"),
			code:   "unknown-kind",
			nodeID: "v",
		},
		{
			name:   "leaf with children",
			src:    section("      paragraph p {\n        text t {\n          content = \"a\";\n          text u {\n            content = \"b\";\n          }\n        }\n      }"),
			code:   "unexpected-children",
			nodeID: "t",
		},
		{
			name:   "chance out of range",
			src:    section("      slot c {\n        refresh = chance(2);\n        generator = @cycle([\"a\"]);\n      }"),
			code:   "invalid-refresh",
			nodeID: "c",
		},
		{
			name:   "every without interval",
			src:    section("      slot c {\n        refresh = every();\n        generator = @cycle([\"a\"]);\n      }"),
			code:   "invalid-refresh",
			nodeID: "c",
		},
		{
			name:   "unknown refresh name",
			src:    section("      slot c {\n        refresh = sometimes;\n        generator = @cycle([\"a\"]);\n      }"),
			code:   "invalid-refresh",
			nodeID: "c",
		},
		{
			name:   "unknown transition",
			src:    section("      slot c {\n        transition = spin;\n        generator = @cycle([\"a\"]);\n      }"),
			code:   "invalid-transition",
			nodeID: "c",
		},
		{
			name:   "negative transition duration",
			src:    section("      slot c {\n        transition = fade(-1);\n        generator = @cycle([\"a\"]);\n      }"),
			code:   "invalid-transition",
			nodeID: "c",
		},
		{
			name:   "unknown generator",
			src:    section("      slot c {\n        generator = @shuffle([\"a\"]);\n      }"),
			code:   "unknown-generator",
			nodeID: "c",
		},
		{
			name:   "pick without bank",
			src:    section("      figure f {\n        src = @assets.pick(tags: [\"x\"]);\n      }"),
			code:   "invalid-generator",
			nodeID: "f",
		},
		{
			name:   "pick from undeclared bank",
			src:    section("      figure f {\n        src = @assets.pick(bank: \"photos\");\n      }"),
			code:   "unknown-bank",
			nodeID: "f",
		},
		{
			name:   "table rows not a list",
			src:    section("      table tb {\n        columns = [\"a\"];\n        rows = \"oops\";\n      }"),
			code:   "invalid-property",
			nodeID: "tb",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, diags := ParseAndCheck("doc.ld", tt.src)
			require.NotNil(t, doc, "source must parse")
			require.Len(t, diags, 1, "codes: %v", codes(diags))
			d := diags[0]
			assert.Equal(t, tt.code, d.Code)
			assert.Equal(t, tt.nodeID, d.NodeID)
			assert.Equal(t, LevelFail, d.Level)
			assert.Regexp(t, `^doc\.ld:\d+:\d+$`, d.Location)
		})
	}
}

func TestCheck_BankRules(t *testing.T) {
	src := "assets {\n  bank b {\n    glob = @cycle([\"x\"]);\n  }\n  page p {\n  }\n}\nbody {\n}\n"
	_, diags := ParseAndCheck("doc.ld", src)
	assert.ElementsMatch(t, []string{"missing-property", "unexpected-kind"}, codes(diags))
}

func TestCheck_CollectsAll(t *testing.T) {
	src := section("      video v {\n      }\n      figure f {\n      }")
	_, diags := ParseAndCheck("doc.ld", src)
	assert.Equal(t, []string{"unknown-kind", "missing-property"}, codes(diags))
}

func TestCheck_RefreshPolicies(t *testing.T) {
	for _, policy := range []string{"never", "docstep", "every(2)", "@every(0.5)", "chance(1)", "at([1, 5])"} {
		src := section(fmt.Sprintf("      slot c {\n        refresh = %s;\n        generator = @cycle([\"a\"]);\n      }", policy))
		_, diags := ParseAndCheck("doc.ld", src)
		assert.Empty(t, diags, policy)
	}
}

func TestCanContain(t *testing.T) {
	assert.True(t, CanContain(KindPage, KindSection))
	assert.True(t, CanContain(KindParagraph, KindSlot))
	assert.False(t, CanContain(KindPage, KindParagraph))
	assert.False(t, CanContain(KindText, KindText))
	assert.True(t, IsContainer(KindCallout))
	assert.False(t, IsContainer(KindFigure))
	assert.Contains(t, Kinds(), KindTable)
	assert.NotContains(t, Kinds(), KindBank)
}
