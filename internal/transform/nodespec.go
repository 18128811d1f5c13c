package transform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/roach88/livedoc/internal/markup"
	"github.com/roach88/livedoc/internal/printer"
)

// NodeSpec is the JSON form of a node. Property values are JSON literals
// (string, number, bool, null, arrays of those) or {"expr": "..."} for a
// dynamic value.
type NodeSpec struct {
	ID         string                     `json:"id"`
	Kind       string                     `json:"kind"`
	Refresh    string                     `json:"refresh,omitempty"`
	Transition string                     `json:"transition,omitempty"`
	Props      map[string]json.RawMessage `json:"props,omitempty"`
	Children   []NodeSpec                 `json:"children,omitempty"`
}

// exprValue is the JSON shape of a dynamic value.
type exprValue struct {
	Expr string `json:"expr"`
}

// ToNode converts the spec into an AST node.
func (s NodeSpec) ToNode() (*markup.Node, error) {
	if !markup.IsIdent(s.ID) {
		return nil, fmt.Errorf("invalid node id %q", s.ID)
	}
	if !markup.IsIdent(s.Kind) {
		return nil, fmt.Errorf("invalid node kind %q", s.Kind)
	}
	n := &markup.Node{Kind: s.Kind, ID: s.ID}
	var err error
	if s.Refresh != "" {
		if n.Refresh, err = markup.ParseExpr(s.Refresh); err != nil {
			return nil, fmt.Errorf("refresh of %s: %w", s.ID, err)
		}
	}
	if s.Transition != "" {
		if n.Transition, err = markup.ParseExpr(s.Transition); err != nil {
			return nil, fmt.Errorf("transition of %s: %w", s.ID, err)
		}
	}
	if err := setProps(n, s.Props); err != nil {
		return nil, err
	}
	for _, cs := range s.Children {
		ch, err := cs.ToNode()
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, ch)
	}
	return n, nil
}

// setProps converts and applies JSON props in name order.
func setProps(n *markup.Node, props map[string]json.RawMessage) error {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !markup.IsIdent(name) {
			return fmt.Errorf("invalid property name %q", name)
		}
		if name == "refresh" || name == "transition" {
			return fmt.Errorf("%s is a policy, not a property", name)
		}
		v, err := ValueFromJSON(props[name])
		if err != nil {
			return fmt.Errorf("property %s: %w", name, err)
		}
		n.SetProp(name, v)
	}
	return nil
}

// SpecFromNode converts an AST node into its JSON form.
func SpecFromNode(n *markup.Node) NodeSpec {
	s := NodeSpec{ID: n.ID, Kind: n.Kind}
	if n.Refresh != nil {
		s.Refresh = printer.Expr(n.Refresh)
	}
	if n.Transition != nil {
		s.Transition = printer.Expr(n.Transition)
	}
	if len(n.Props) > 0 {
		s.Props = make(map[string]json.RawMessage, len(n.Props))
		for _, p := range n.Props {
			s.Props[p.Name] = ValueToJSON(p.Value)
		}
	}
	for _, ch := range n.Children {
		s.Children = append(s.Children, SpecFromNode(ch))
	}
	return s
}

// ValueFromJSON converts a JSON value into a property value.
func ValueFromJSON(raw json.RawMessage) (markup.Value, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var ev exprValue
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&ev); err != nil {
			return markup.Value{}, fmt.Errorf("dynamic value must be {\"expr\": \"...\"}: %w", err)
		}
		e, err := markup.ParseExpr(ev.Expr)
		if err != nil {
			return markup.Value{}, fmt.Errorf("expression %q: %w", ev.Expr, err)
		}
		return markup.DynamicValue(e), nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return markup.Value{}, err
	}
	lit, err := literalFromJSON(v)
	if err != nil {
		return markup.Value{}, err
	}
	return markup.LiteralValue(lit), nil
}

func literalFromJSON(v any) (markup.Literal, error) {
	switch x := v.(type) {
	case nil:
		return markup.Null(), nil
	case string:
		return markup.String(x), nil
	case bool:
		return markup.Bool(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return markup.Literal{}, err
		}
		return markup.Number(f), nil
	case float64:
		return markup.Number(x), nil
	case []any:
		elems := make([]markup.Literal, len(x))
		for i, el := range x {
			lit, err := literalFromJSON(el)
			if err != nil {
				return markup.Literal{}, fmt.Errorf("[%d]: %w", i, err)
			}
			elems[i] = lit
		}
		return markup.List(elems...), nil
	}
	return markup.Literal{}, fmt.Errorf("unsupported value of type %T", v)
}

// ValueToJSON converts a property value into JSON.
func ValueToJSON(v markup.Value) json.RawMessage {
	if v.Expr != nil {
		b, _ := json.Marshal(exprValue{Expr: printer.Expr(v.Expr)})
		return b
	}
	if v.Literal == nil {
		return json.RawMessage("null")
	}
	b, _ := json.Marshal(literalToAny(*v.Literal))
	return b
}

func literalToAny(l markup.Literal) any {
	switch l.Kind {
	case markup.LitString:
		return l.Str
	case markup.LitNumber:
		return l.Num
	case markup.LitBool:
		return l.Bool
	case markup.LitList:
		out := make([]any, len(l.List))
		for i, el := range l.List {
			out[i] = literalToAny(el)
		}
		return out
	}
	return nil
}
