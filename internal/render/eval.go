package render

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/roach88/livedoc/internal/digest"
	"github.com/roach88/livedoc/internal/markup"
)

// newRand returns the deterministic stream for (seed, id, bucket).
func newRand(seed int64, id string, bucket int64) *rand.Rand {
	a, b := digest.Seed(seed, id, bucket)
	return rand.New(rand.NewPCG(a, b))
}

// env is the evaluation context of one slot value.
type env struct {
	prog   *Program
	slot   *Slot
	st     State
	bucket int64
	rng    *rand.Rand
}

// Value resolves the slot's value at st as display text.
func (p *Program) Value(s *Slot, st State) (string, error) {
	bucket := p.Bucket(s, st)
	e := &env{prog: p, slot: s, st: st, bucket: bucket, rng: newRand(st.Seed, s.ID, bucket)}
	v, err := e.eval(s.Expr)
	if err != nil {
		return "", fmt.Errorf("%s: %w", s.ID, err)
	}
	return Format(v), nil
}

// Format renders an evaluated value as text.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case []any:
		parts := make([]string, len(x))
		for i, el := range x {
			parts[i] = Format(el)
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprint(v)
}

func literalValue(l markup.Literal) any {
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
			out[i] = literalValue(el)
		}
		return out
	}
	return nil
}

func (e *env) eval(x markup.Expr) (any, error) {
	switch x := x.(type) {
	case *markup.Lit:
		return literalValue(x.Value), nil
	case *markup.ListExpr:
		out := make([]any, len(x.Elems))
		for i, el := range x.Elems {
			v, err := e.eval(el)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case *markup.Ident:
		switch x.Name {
		case "docstep":
			return float64(e.st.Docstep), nil
		case "time":
			return e.st.Time, nil
		case "seed":
			return float64(e.st.Seed), nil
		case "bucket":
			return float64(e.bucket), nil
		case "title":
			return e.prog.Title, nil
		}
		return nil, fmt.Errorf("unknown identifier %q", x.Name)
	case *markup.Unary:
		v, err := e.eval(x.X)
		if err != nil {
			return nil, err
		}
		switch x.Op {
		case "-":
			f, ok := v.(float64)
			if !ok {
				return nil, fmt.Errorf("cannot negate %T", v)
			}
			return -f, nil
		case "!":
			return !truthy(v), nil
		}
		return nil, fmt.Errorf("unknown unary operator %q", x.Op)
	case *markup.Binary:
		return e.binary(x)
	case *markup.Call:
		return e.call(x)
	case *markup.Member:
		return nil, fmt.Errorf("%s is not a value", markup.CallName(x))
	}
	return nil, fmt.Errorf("unsupported expression %T", x)
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	}
	return true
}

func (e *env) binary(x *markup.Binary) (any, error) {
	l, err := e.eval(x.X)
	if err != nil {
		return nil, err
	}
	switch x.Op {
	case "&&":
		if !truthy(l) {
			return false, nil
		}
		r, err := e.eval(x.Y)
		return truthy(r), err
	case "||":
		if truthy(l) {
			return true, nil
		}
		r, err := e.eval(x.Y)
		return truthy(r), err
	}
	r, err := e.eval(x.Y)
	if err != nil {
		return nil, err
	}
	switch x.Op {
	case "==":
		return Format(l) == Format(r), nil
	case "!=":
		return Format(l) != Format(r), nil
	}
	lf, lok := l.(float64)
	rf, rok := r.(float64)
	if x.Op == "+" && (!lok || !rok) {
		return Format(l) + Format(r), nil
	}
	if !lok || !rok {
		return nil, fmt.Errorf("operator %s needs numbers, got %T and %T", x.Op, l, r)
	}
	switch x.Op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	case "%":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return math.Mod(lf, rf), nil
	case "<":
		return lf < rf, nil
	case "<=":
		return lf <= rf, nil
	case ">":
		return lf > rf, nil
	case ">=":
		return lf >= rf, nil
	}
	return nil, fmt.Errorf("unknown operator %q", x.Op)
}

func (e *env) call(c *markup.Call) (any, error) {
	name := markup.CallName(c)
	args := c.Positional()
	switch name {
	case "choose":
		list, err := e.listArg(name, args, 0)
		if err != nil || len(list) == 0 {
			return nil, err
		}
		return list[e.rng.IntN(len(list))], nil
	case "cycle":
		list, err := e.listArg(name, args, 0)
		if err != nil || len(list) == 0 {
			return nil, err
		}
		return list[mod(e.bucket, len(list))], nil
	case "poisson":
		lambda, err := e.numberArg(name, args, 0)
		if err != nil {
			return nil, err
		}
		return float64(poisson(e.rng, lambda)), nil
	case "assets.pick":
		return e.pick(c)
	case "at":
		times, err := e.listArg(name, args, 0)
		if err != nil {
			return nil, err
		}
		values, err := e.listArg(name, args, 1)
		if err != nil {
			return nil, err
		}
		idx := -1
		for i, t := range times {
			if f, ok := t.(float64); ok && f <= e.st.Time && i < len(values) {
				idx = i
			}
		}
		if idx < 0 {
			return nil, nil
		}
		return values[idx], nil
	case "every":
		secs, err := e.numberArg(name, args, 0)
		if err != nil {
			return nil, err
		}
		if secs <= 0 {
			return nil, fmt.Errorf("every() needs a positive interval")
		}
		values, err := e.listArg(name, args, 1)
		if err != nil || len(values) == 0 {
			return nil, err
		}
		return values[mod(int64(math.Floor(e.st.Time/secs)), len(values))], nil
	}
	return nil, fmt.Errorf("unknown generator %q", name)
}

func (e *env) listArg(name string, args []markup.Expr, i int) ([]any, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("%s() is missing argument %d", name, i+1)
	}
	v, err := e.eval(args[i])
	if err != nil {
		return nil, err
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s() argument %d must be a list", name, i+1)
	}
	return list, nil
}

func (e *env) numberArg(name string, args []markup.Expr, i int) (float64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("%s() is missing argument %d", name, i+1)
	}
	v, err := e.eval(args[i])
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%s() argument %d must be a number", name, i+1)
	}
	return f, nil
}

func (e *env) pick(c *markup.Call) (any, error) {
	bankExpr, ok := c.NamedArg("bank")
	if !ok {
		return nil, fmt.Errorf("assets.pick needs bank:")
	}
	bv, err := e.eval(bankExpr)
	if err != nil {
		return nil, err
	}
	var tags []string
	if tagExpr, ok := c.NamedArg("tags"); ok {
		tv, err := e.eval(tagExpr)
		if err != nil {
			return nil, err
		}
		list, ok := tv.([]any)
		if !ok {
			return nil, fmt.Errorf("assets.pick tags must be a list")
		}
		for _, t := range list {
			tags = append(tags, Format(t))
		}
	}
	files := e.prog.Banks.Match(Format(bv), tags)
	if len(files) == 0 {
		return nil, nil
	}
	return files[e.rng.IntN(len(files))], nil
}

func mod(n int64, m int) int {
	r := int(n % int64(m))
	if r < 0 {
		r += m
	}
	return r
}

// poisson samples a Poisson variate using Knuth's method.
func poisson(r *rand.Rand, lambda float64) int {
	if lambda <= 0 {
		return 0
	}
	if lambda > 30 {
		// Normal approximation for large means.
		v := math.Round(r.NormFloat64()*math.Sqrt(lambda) + lambda)
		return int(math.Max(0, v))
	}
	l := math.Exp(-lambda)
	k := 0
	p := 1.0
	for {
		p *= r.Float64()
		if p <= l {
			return k
		}
		k++
	}
}
