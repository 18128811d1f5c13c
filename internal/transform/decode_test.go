package transform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_KnownOperations(t *testing.T) {
	tests := []struct {
		op   string
		args string
		want Operation
	}{
		{"setText", `{"id": "t1", "text": "hi"}`, SetText{ID: "t1", Text: "hi"}},
		{"removeNode", `{"id": "s2"}`, RemoveNode{ID: "s2"}},
		{"addPage", `{}`, AddPage{}},
		{"addSection", `{"parentId": "intro", "title": "T"}`, AddSection{Placement: Placement{ParentID: "intro"}, Title: "T"}},
		{"setSource", `{"source": "body {}"}`, SetSource{Source: "body {}"}},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			got, err := Decode("doc.ld", tt.op, json.RawMessage(tt.args))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.op, got.Name())
		})
	}
}

func TestDecode_MoveNodeIndex(t *testing.T) {
	got, err := Decode("doc.ld", "moveNode", json.RawMessage(`{"id": "p1", "targetId": "s2", "index": 1}`))
	require.NoError(t, err)
	mv := got.(MoveNode)
	require.NotNil(t, mv.Index)
	assert.Equal(t, 1, *mv.Index)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		op   string
		args string
		code Code
	}{
		{"unknown op", "explode", `{}`, CodeUnsupportedOperation},
		{"missing field", "setText", `{"id": "t1"}`, CodeInvalidArguments},
		{"unknown field", "setText", `{"id": "t1", "text": "x", "extra": 1}`, CodeInvalidArguments},
		{"wrong type", "removeNode", `{"id": 7}`, CodeInvalidArguments},
		{"bad id", "removeNode", `{"id": "has space"}`, CodeInvalidArguments},
		{"negative index", "moveNode", `{"id": "a", "targetId": "b", "index": -1}`, CodeInvalidArguments},
		{"generator shape", "addSlot", `{"generator": "cycle([1])"}`, CodeInvalidArguments},
		{"not json", "setText", `{`, CodeInvalidArguments},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode("doc.ld", tt.op, json.RawMessage(tt.args))
			require.Error(t, err)
			assert.Equal(t, tt.code, CodeOf(err))
		})
	}
}

func TestDecode_ThenApply(t *testing.T) {
	op, err := DecodeRequest("doc.ld", Request{
		Op:   "addSlot",
		Args: json.RawMessage(`{"parentId": "s2", "id": "ticker", "generator": {"expr": "choose([\"x\", \"y\"])"}, "refresh": "docstep"}`),
	})
	require.NoError(t, err)

	out := apply(t, fixture, op)
	assert.Contains(t, out.Source, "      slot ticker {\n        refresh = docstep;\n        generator = @choose([\"x\", \"y\"]);\n      }\n")
	assert.Equal(t, "ticker", out.SelectedID)
}

func TestOperations_Sorted(t *testing.T) {
	ops := Operations()
	assert.Contains(t, ops, "moveNode")
	assert.IsIncreasing(t, ops)
}
