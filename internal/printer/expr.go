package printer

import (
	"strings"

	"github.com/roach88/livedoc/internal/markup"
)

// Expr prints an expression without the @ sigil. Parentheses are inserted
// only where precedence requires them.
func Expr(e markup.Expr) string {
	switch x := e.(type) {
	case *markup.Ident:
		return x.Name
	case *markup.Lit:
		return Literal(x.Value)
	case *markup.ListExpr:
		parts := make([]string, len(x.Elems))
		for i, el := range x.Elems {
			parts[i] = Expr(el)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *markup.Member:
		return operand(x.X) + "." + x.Name
	case *markup.Call:
		parts := make([]string, len(x.Args))
		for i, a := range x.Args {
			if a.Name != "" {
				parts[i] = a.Name + ": " + Expr(a.Value)
			} else {
				parts[i] = Expr(a.Value)
			}
		}
		return operand(x.Fun) + "(" + strings.Join(parts, ", ") + ")"
	case *markup.Unary:
		return x.Op + operand(x.X)
	case *markup.Binary:
		prec := markup.BinaryPrecedence(x.Op)
		left := Expr(x.X)
		if p := exprPrec(x.X); p < prec {
			left = "(" + left + ")"
		}
		right := Expr(x.Y)
		if p := exprPrec(x.Y); p <= prec {
			right = "(" + right + ")"
		}
		return left + " " + x.Op + " " + right
	}
	return "null"
}

// operand prints e for use as a unary operand, callee or member base.
func operand(e markup.Expr) string {
	switch x := e.(type) {
	case *markup.Binary, *markup.Unary:
		return "(" + Expr(e) + ")"
	case *markup.Lit:
		if x.Value.Kind == markup.LitNumber && x.Value.Num < 0 {
			return "(" + Expr(e) + ")"
		}
	}
	return Expr(e)
}

// exprPrec returns the binding strength of e; atoms bind tighter than any
// binary operator.
func exprPrec(e markup.Expr) int {
	if b, ok := e.(*markup.Binary); ok {
		return markup.BinaryPrecedence(b.Op)
	}
	return 100
}
