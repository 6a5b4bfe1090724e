package memexec

import (
	"fmt"
	"math"

	"github.com/brimdata/raexec/errors"
	"github.com/brimdata/raexec/plan"
	"github.com/brimdata/raexec/table"
)

// env holds what an expression can see while it is evaluated: the input
// row plus the values already computed for its aggregates and window
// functions.
type env struct {
	row    []any
	aggs   map[*plan.AggExpr]any
	window map[*plan.WindowFunc]any
}

// externOps are operators only the interop executor implements.
var externOps = map[string]bool{"like": true}

// needsExtern reports whether any expression uses an operator the native
// code path cannot run.
func needsExtern(exprs ...[]plan.Expr) bool {
	var found bool
	for _, list := range exprs {
		for _, e := range list {
			plan.Walk(e, func(e plan.Expr) bool {
				if b, ok := e.(*plan.BinaryExpr); ok && externOps[b.Op] {
					found = true
				}
				return !found
			})
		}
	}
	return found
}

func eval(e plan.Expr, env *env) (any, error) {
	switch e := e.(type) {
	case *plan.Column:
		if e.Index >= len(env.row) {
			return nil, fmt.Errorf("column %d out of range", e.Index)
		}
		return env.row[e.Index], nil
	case *plan.Literal:
		return normalize(e.Value), nil
	case *plan.AggExpr:
		v, ok := env.aggs[e]
		if !ok {
			return nil, fmt.Errorf("aggregate %s evaluated outside of a group", e)
		}
		return v, nil
	case *plan.WindowFunc:
		v, ok := env.window[e]
		if !ok {
			return nil, fmt.Errorf("window function %s evaluated outside of a projection", e)
		}
		return v, nil
	case *plan.UnaryExpr:
		v, err := eval(e.Operand, env)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case "is null":
			return v == nil, nil
		case "is not null":
			return v != nil, nil
		case "not":
			if v == nil {
				return nil, nil
			}
			b, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("not applied to %T", v)
			}
			return !b, nil
		case "-":
			switch v := v.(type) {
			case int64:
				if v == math.MinInt64 {
					return nil, &zqe.ExecError{Code: zqe.OverflowOrUnderflow}
				}
				return -v, nil
			case float64:
				return -v, nil
			case nil:
				return nil, nil
			}
			return nil, fmt.Errorf("cannot negate %T", v)
		}
		return nil, fmt.Errorf("unknown operator %q", e.Op)
	case *plan.BinaryExpr:
		return evalBinary(e, env)
	}
	return nil, fmt.Errorf("cannot evaluate %T", e)
}

func normalize(v any) any {
	switch v := v.(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float32:
		return float64(v)
	}
	return v
}

func evalBinary(e *plan.BinaryExpr, env *env) (any, error) {
	l, err := eval(e.LHS, env)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case "and":
		if l == false {
			return false, nil
		}
	case "or":
		if l == true {
			return true, nil
		}
	}
	r, err := eval(e.RHS, env)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case "and", "or":
		return logical(e.Op, l, r), nil
	}
	if l == nil || r == nil {
		return nil, nil
	}
	switch e.Op {
	case "=", "==":
		return table.Compare(l, r) == 0, nil
	case "!=", "<>":
		return table.Compare(l, r) != 0, nil
	case "<":
		return table.Compare(l, r) < 0, nil
	case "<=":
		return table.Compare(l, r) <= 0, nil
	case ">":
		return table.Compare(l, r) > 0, nil
	case ">=":
		return table.Compare(l, r) >= 0, nil
	case "||":
		return fmt.Sprint(l) + fmt.Sprint(r), nil
	case "like":
		s, ok1 := l.(string)
		pattern, ok2 := r.(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("like requires strings")
		}
		return like(s, pattern), nil
	}
	return arith(e.Op, l, r)
}

// logical implements three-valued and/or once the left side did not
// short circuit.
func logical(op string, l, r any) any {
	if op == "and" {
		if r == false {
			return false
		}
		if l == nil || r == nil {
			return nil
		}
		return true
	}
	if r == true {
		return true
	}
	if l == nil || r == nil {
		return nil
	}
	return false
}

func arith(op string, l, r any) (any, error) {
	a, aok := l.(int64)
	b, bok := r.(int64)
	if aok && bok {
		return intArith(op, a, b)
	}
	x, ok1 := toFloat(l)
	y, ok2 := toFloat(r)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("operator %s applied to %T and %T", op, l, r)
	}
	switch op {
	case "+":
		return x + y, nil
	case "-":
		return x - y, nil
	case "*":
		return x * y, nil
	case "/":
		if y == 0 {
			return nil, &zqe.ExecError{Code: zqe.DivByZero}
		}
		return x / y, nil
	case "%":
		if y == 0 {
			return nil, &zqe.ExecError{Code: zqe.DivByZero}
		}
		return math.Mod(x, y), nil
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

func intArith(op string, a, b int64) (any, error) {
	switch op {
	case "+":
		c := a + b
		if (c > a) != (b > 0) {
			return nil, &zqe.ExecError{Code: zqe.OverflowOrUnderflow}
		}
		return c, nil
	case "-":
		c := a - b
		if (c < a) != (b > 0) {
			return nil, &zqe.ExecError{Code: zqe.OverflowOrUnderflow}
		}
		return c, nil
	case "*":
		if a == 0 || b == 0 {
			return int64(0), nil
		}
		c := a * b
		if c/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
			return nil, &zqe.ExecError{Code: zqe.OverflowOrUnderflow}
		}
		return c, nil
	case "/":
		if b == 0 {
			return nil, &zqe.ExecError{Code: zqe.DivByZero}
		}
		if a == math.MinInt64 && b == -1 {
			return nil, &zqe.ExecError{Code: zqe.OverflowOrUnderflow}
		}
		return a / b, nil
	case "%":
		if b == 0 {
			return nil, &zqe.ExecError{Code: zqe.DivByZero}
		}
		if b == -1 {
			return int64(0), nil
		}
		return a % b, nil
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// like matches s against a SQL pattern where % matches any run of
// characters and _ matches exactly one.
func like(s, pattern string) bool {
	sr, pr := []rune(s), []rune(pattern)
	var match func(i, j int) bool
	match = func(i, j int) bool {
		for j < len(pr) {
			switch pr[j] {
			case '%':
				for k := i; k <= len(sr); k++ {
					if match(k, j+1) {
						return true
					}
				}
				return false
			case '_':
				if i == len(sr) {
					return false
				}
			default:
				if i == len(sr) || sr[i] != pr[j] {
					return false
				}
			}
			i++
			j++
		}
		return i == len(sr)
	}
	return match(0, 0)
}

func truthy(v any) bool {
	b, ok := v.(bool)
	return ok && b
}
