// Package render compiles a checked document into a runtime Program and
// renders its computed slots to HTML.
//
// A slot is any node whose displayed content is computed: `slot` nodes
// (driven by their generator), figures with a dynamic src, and text nodes
// with dynamic content. Each slot resolves to one value per refresh
// bucket; the value for (seed, node id, bucket) is always the same, so
// renders are reproducible across restarts.
package render

import (
	"fmt"
	"math"
	"sort"

	"github.com/roach88/livedoc/internal/markup"
)

// State is the simulated clock a program is rendered against.
type State struct {
	Seed    int64   `json:"seed"`
	Docstep int64   `json:"docstep"`
	Time    float64 `json:"time"`
}

// RefreshKind names a refresh policy.
type RefreshKind string

const (
	RefreshNever   RefreshKind = "never"
	RefreshDocstep RefreshKind = "docstep"
	RefreshEvery   RefreshKind = "every"
	RefreshAt      RefreshKind = "at"
	RefreshChance  RefreshKind = "chance"
)

// Refresh decides when a slot may take a new value.
type Refresh struct {
	Kind     RefreshKind
	Interval float64   // every
	Times    []float64 // at, sorted
	P        float64   // chance
}

// Transition describes how viewers animate a value change.
type Transition struct {
	Name     string
	Duration float64
}

// String formats the transition as carried in slot metadata.
func (t Transition) String() string {
	if t.Duration > 0 {
		return fmt.Sprintf("%s(%g)", t.Name, t.Duration)
	}
	return t.Name
}

// Slot is one computed node.
type Slot struct {
	ID         string
	Kind       string
	Prop       string
	Expr       markup.Expr
	Refresh    Refresh
	Transition Transition
	Caption    string
}

// Program is the compiled, immutable runtime view of a document. It is
// safe for concurrent use.
type Program struct {
	Title string
	Doc   *markup.Document
	Slots []*Slot
	Banks Banks

	byID map[string]*Slot
}

// Compile builds a Program from a checked document. banks holds the
// resolved files of each declared asset bank.
func Compile(doc *markup.Document, banks Banks) (*Program, error) {
	p := &Program{
		Title: doc.Title(),
		Doc:   doc,
		Banks: banks,
		byID:  map[string]*Slot{},
	}
	var err error
	doc.Walk(func(n, _ *markup.Node, _ int) bool {
		if err != nil {
			return false
		}
		s, ok, cerr := compileSlot(n)
		if cerr != nil {
			err = cerr
			return false
		}
		if ok {
			p.Slots = append(p.Slots, s)
			p.byID[s.ID] = s
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Slot returns the compiled slot with the given id.
func (p *Program) Slot(id string) (*Slot, bool) {
	s, ok := p.byID[id]
	return s, ok
}

// SlotIDs returns the slot ids in document order.
func (p *Program) SlotIDs() []string {
	ids := make([]string, len(p.Slots))
	for i, s := range p.Slots {
		ids[i] = s.ID
	}
	return ids
}

func compileSlot(n *markup.Node) (*Slot, bool, error) {
	var prop string
	switch n.Kind {
	case markup.KindSlot:
		prop = "generator"
	case markup.KindFigure:
		prop = "src"
	case markup.KindText:
		prop = "content"
	default:
		return nil, false, nil
	}
	v, ok := n.Prop(prop)
	if !ok {
		return nil, false, nil
	}
	s := &Slot{ID: n.ID, Kind: n.Kind, Prop: prop}
	if v.Expr != nil {
		s.Expr = v.Expr
	} else if n.Kind == markup.KindSlot && v.Literal != nil {
		s.Expr = &markup.Lit{Value: *v.Literal}
	} else {
		return nil, false, nil
	}
	s.Caption, _ = n.StringProp("caption")

	var err error
	if s.Refresh, err = compileRefresh(n); err != nil {
		return nil, false, err
	}
	s.Transition = compileTransition(n.Transition)
	return s, true, nil
}

// compileRefresh resolves a node's refresh policy. Slots default to
// docstep; figures and text default to never.
func compileRefresh(n *markup.Node) (Refresh, error) {
	if n.Refresh == nil {
		if n.Kind == markup.KindSlot {
			return Refresh{Kind: RefreshDocstep}, nil
		}
		return Refresh{Kind: RefreshNever}, nil
	}
	name := markup.PolicyName(n.Refresh)
	var args []markup.Expr
	if call, ok := n.Refresh.(*markup.Call); ok {
		args = call.Positional()
	}
	switch RefreshKind(name) {
	case RefreshNever, RefreshDocstep:
		return Refresh{Kind: RefreshKind(name)}, nil
	case RefreshEvery:
		if len(args) == 1 {
			if f, ok := numberLit(args[0]); ok && f > 0 {
				return Refresh{Kind: RefreshEvery, Interval: f}, nil
			}
		}
	case RefreshChance:
		if len(args) == 1 {
			if f, ok := numberLit(args[0]); ok && f > 0 && f <= 1 {
				return Refresh{Kind: RefreshChance, P: f}, nil
			}
		}
	case RefreshAt:
		if len(args) == 1 {
			if list, ok := args[0].(*markup.ListExpr); ok {
				times := make([]float64, 0, len(list.Elems))
				for _, el := range list.Elems {
					f, ok := numberLit(el)
					if !ok {
						return Refresh{}, fmt.Errorf("%s: at() times must be numbers", n.ID)
					}
					times = append(times, f)
				}
				sort.Float64s(times)
				return Refresh{Kind: RefreshAt, Times: times}, nil
			}
		}
	}
	return Refresh{}, fmt.Errorf("%s: invalid refresh policy %q", n.ID, name)
}

func compileTransition(e markup.Expr) Transition {
	if e == nil {
		return Transition{Name: "none"}
	}
	t := Transition{Name: markup.PolicyName(e)}
	if call, ok := e.(*markup.Call); ok {
		if args := call.Positional(); len(args) == 1 {
			t.Duration, _ = numberLit(args[0])
		}
	}
	return t
}

func numberLit(e markup.Expr) (float64, bool) {
	switch x := e.(type) {
	case *markup.Lit:
		if x.Value.Kind == markup.LitNumber {
			return x.Value.Num, true
		}
	case *markup.Unary:
		if f, ok := numberLit(x.X); ok && x.Op == "-" {
			return -f, true
		}
	}
	return 0, false
}

// Bucket returns the refresh window the slot is in at st. Within one
// bucket the slot's value does not change.
func (p *Program) Bucket(s *Slot, st State) int64 {
	switch s.Refresh.Kind {
	case RefreshDocstep:
		return st.Docstep
	case RefreshEvery:
		return int64(math.Floor(st.Time / s.Refresh.Interval))
	case RefreshAt:
		var passed int64
		for _, t := range s.Refresh.Times {
			if t <= st.Time {
				passed++
			}
		}
		return passed
	case RefreshChance:
		return p.chanceBucket(s, st)
	}
	return 0
}

// Chance firings are laid out in blocks of chanceBlock docsteps. Every
// chanceEpoch docsteps the slot fires unconditionally, which bounds the
// backward search to one epoch whatever p is.
const (
	chanceBlock = 1 << 10
	chanceEpoch = 1 << 20
)

// chanceBucket returns the most recent docstep at or before st.Docstep at
// which the slot fired. Within a block the firings are drawn backward from
// the block's last docstep as geometric gaps, so a block's latest firing
// costs one draw and a lookup touches at most chanceEpoch/chanceBlock
// blocks plus chanceBlock draws.
func (p *Program) chanceBucket(s *Slot, st State) int64 {
	d := st.Docstep
	if d <= 0 {
		return 0
	}
	epochStart := d / chanceEpoch * chanceEpoch
	prob := s.Refresh.P
	id := s.ID + "#chance"

	k := d / chanceBlock
	rng := newRand(st.Seed, id, k)
	for pos := k*chanceBlock + chanceBlock - 1; ; pos-- {
		pos -= geometricGap(rng.Float64(), prob)
		if pos < k*chanceBlock || pos < epochStart {
			break
		}
		if pos <= d {
			return pos
		}
	}
	for b := k - 1; b*chanceBlock >= epochStart; b-- {
		last := b*chanceBlock + chanceBlock - 1 - geometricGap(newRand(st.Seed, id, b).Float64(), prob)
		if last >= b*chanceBlock {
			return last
		}
	}
	return epochStart
}

// geometricGap turns a uniform u in [0, 1) into the number of docsteps
// skipped before the next firing of a chance(p) slot.
func geometricGap(u, p float64) int64 {
	if p >= 1 {
		return 0
	}
	g := math.Floor(math.Log1p(-u) / math.Log1p(-p))
	if g > chanceEpoch {
		return chanceEpoch
	}
	return int64(g)
}
