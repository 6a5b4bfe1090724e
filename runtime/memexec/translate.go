package memexec

import (
	"strings"

	"github.com/brimdata/raexec/errors"
	"github.com/brimdata/raexec/plan"
	"github.com/brimdata/raexec/runtime/exec"
	"github.com/brimdata/raexec/table"
)

// Translator resolves the expressions of a node against the concatenated
// columns of its inputs. Columns become positions in that row, subqueries
// become the literal they evaluated to, and every target is typed.
type Translator struct{}

func NewTranslator() *Translator {
	return &Translator{}
}

type scope struct {
	offsets []int
	schema  table.Schema
}

func newScope(inputs []exec.InputDesc) *scope {
	s := &scope{offsets: make([]int, len(inputs))}
	for i, in := range inputs {
		s.offsets[i] = len(s.schema)
		s.schema = append(s.schema, in.Schema...)
	}
	return s
}

func (t *Translator) Translate(n plan.Node, inputs []exec.InputDesc) (*exec.Translation, error) {
	s := newScope(inputs)
	tr := &exec.Translation{}
	var targets []plan.Expr
	var names []string
	for _, in := range n.Inputs() {
		switch j := in.(type) {
		case *plan.Join:
			if j.Condition != nil {
				tr.JoinQuals = append(tr.JoinQuals, j.Condition)
			}
		case *plan.LeftDeepInnerJoin:
			if j.Condition != nil {
				tr.JoinQuals = append(tr.JoinQuals, j.Condition)
			}
			tr.JoinQuals = append(tr.JoinQuals, j.OuterConditions...)
		}
	}
	switch n := n.(type) {
	case *plan.Filter:
		if n.Condition != nil {
			tr.Quals = []plan.Expr{n.Condition}
		}
		targets = s.passthrough(len(s.schema))
	case *plan.Project:
		targets, names = n.Exprs, n.Names
	case *plan.Compound:
		if n.Filter != nil {
			tr.Quals = []plan.Expr{n.Filter}
		}
		tr.GroupBy = n.GroupBy
		targets, names = n.Targets, n.Names
	case *plan.Aggregate:
		if n.IsNop() {
			targets = s.passthrough(len(s.schema))
			break
		}
		for _, g := range n.GroupBy {
			col := &plan.Column{Index: g}
			tr.GroupBy = append(tr.GroupBy, col)
			targets = append(targets, col)
		}
		for _, a := range n.Aggs {
			targets = append(targets, a)
		}
		names = n.Names
	case *plan.LogicalUnion:
		if len(inputs) == 0 {
			return nil, zqe.ErrInvalid("union has no inputs")
		}
		targets = s.passthrough(len(inputs[0].Schema))
	case *plan.TableFunction:
		fn, err := lookupTableFunction(n.Function)
		if err != nil {
			return nil, err
		}
		for _, a := range n.Args {
			arg, _, err := s.translate(a)
			if err != nil {
				return nil, err
			}
			tr.Args = append(tr.Args, arg)
		}
		tr.Schema = fn.schema(n.Names)
		return tr, nil
	default:
		return nil, zqe.ErrInvalid("cannot translate %s", n.Kind())
	}
	var err error
	if tr.Quals, err = s.predicates(tr.Quals); err != nil {
		return nil, err
	}
	if tr.JoinQuals, err = s.predicates(tr.JoinQuals); err != nil {
		return nil, err
	}
	for i, e := range tr.GroupBy {
		if tr.GroupBy[i], _, err = s.translate(e); err != nil {
			return nil, err
		}
	}
	for i, e := range targets {
		target, typ, err := s.translate(e)
		if err != nil {
			return nil, err
		}
		tr.Targets = append(tr.Targets, target)
		tr.Schema = append(tr.Schema, table.Column{Name: s.name(i, e, names), Type: typ})
	}
	return tr, nil
}

func (s *scope) passthrough(n int) []plan.Expr {
	exprs := make([]plan.Expr, n)
	for i := range exprs {
		exprs[i] = &plan.Column{Index: i}
	}
	return exprs
}

func (s *scope) name(i int, e plan.Expr, names []string) string {
	if i < len(names) && names[i] != "" {
		return names[i]
	}
	if c, ok := e.(*plan.Column); ok {
		if c.Name != "" {
			return c.Name
		}
		if pos, err := s.position(c); err == nil {
			return s.schema[pos].Name
		}
	}
	return e.String()
}

func (s *scope) predicates(exprs []plan.Expr) ([]plan.Expr, error) {
	out := make([]plan.Expr, 0, len(exprs))
	for _, e := range exprs {
		pred, typ, err := s.translate(e)
		if err != nil {
			return nil, err
		}
		if typ != table.Bool && typ != table.Null {
			return nil, zqe.ErrInvalid("predicate %s is not boolean", e)
		}
		out = append(out, pred)
	}
	return out, nil
}

func (s *scope) position(c *plan.Column) (int, error) {
	var base int
	if c.Input != 0 || len(s.offsets) > 0 {
		if c.Input < 0 || c.Input >= len(s.offsets) {
			return 0, zqe.ErrInvalid("column %s refers to a missing input", c)
		}
		base = s.offsets[c.Input]
	}
	pos := base + c.Index
	if c.Index < 0 || pos >= len(s.schema) {
		return 0, zqe.ErrInvalid("column %s is out of range", c)
	}
	return pos, nil
}

func (s *scope) translate(e plan.Expr) (plan.Expr, table.Type, error) {
	switch e := e.(type) {
	case *plan.Column:
		pos, err := s.position(e)
		if err != nil {
			return nil, 0, err
		}
		return &plan.Column{Index: pos, Name: e.Name}, s.schema[pos].Type, nil
	case *plan.Literal:
		return e, table.TypeOf(e.Value), nil
	case *plan.Subquery:
		return subqueryLiteral(e)
	case *plan.BinaryExpr:
		lhs, lt, err := s.translate(e.LHS)
		if err != nil {
			return nil, 0, err
		}
		rhs, rt, err := s.translate(e.RHS)
		if err != nil {
			return nil, 0, err
		}
		op := strings.ToLower(e.Op)
		typ, err := binaryType(op, lt, rt)
		if err != nil {
			return nil, 0, err
		}
		return &plan.BinaryExpr{Op: op, LHS: lhs, RHS: rhs}, typ, nil
	case *plan.UnaryExpr:
		operand, typ, err := s.translate(e.Operand)
		if err != nil {
			return nil, 0, err
		}
		op := strings.ToLower(e.Op)
		switch op {
		case "not", "is null", "is not null":
			typ = table.Bool
		case "-":
			if typ != table.Int64 && typ != table.Float64 && typ != table.Null {
				return nil, 0, zqe.ErrInvalid("cannot negate %s", typ)
			}
		default:
			return nil, 0, zqe.ErrInvalid("unknown operator %q", e.Op)
		}
		return &plan.UnaryExpr{Op: op, Operand: operand}, typ, nil
	case *plan.AggExpr:
		agg := &plan.AggExpr{Op: strings.ToLower(e.Op), Distinct: e.Distinct}
		argType := table.Null
		if e.Arg != nil {
			arg, typ, err := s.translate(e.Arg)
			if err != nil {
				return nil, 0, err
			}
			agg.Arg, argType = arg, typ
		}
		typ, err := aggType(agg.Op, argType)
		if err != nil {
			return nil, 0, err
		}
		return agg, typ, nil
	case *plan.WindowFunc:
		w := &plan.WindowFunc{Op: strings.ToLower(e.Op), OrderBy: e.OrderBy}
		argType := table.Null
		for _, a := range e.Args {
			arg, typ, err := s.translate(a)
			if err != nil {
				return nil, 0, err
			}
			w.Args = append(w.Args, arg)
			argType = typ
		}
		for _, p := range e.PartitionBy {
			part, _, err := s.translate(p)
			if err != nil {
				return nil, 0, err
			}
			w.PartitionBy = append(w.PartitionBy, part)
		}
		for _, f := range e.OrderBy {
			if f.Field < 0 || f.Field >= len(s.schema) {
				return nil, 0, zqe.ErrInvalid("window ordering field %d is out of range", f.Field)
			}
		}
		typ, err := windowType(w.Op, argType)
		if err != nil {
			return nil, 0, err
		}
		return w, typ, nil
	case nil:
		return nil, 0, zqe.ErrInvalid("missing expression")
	}
	return nil, 0, zqe.ErrInvalid("unsupported expression %s", e)
}

func subqueryLiteral(sq *plan.Subquery) (plan.Expr, table.Type, error) {
	if sq.Root == nil {
		return nil, 0, zqe.ErrInvalid("subquery has no plan")
	}
	t := sq.Root.ContextResult()
	if t == nil {
		return nil, 0, zqe.ErrInvalid("%s has not been executed", sq)
	}
	schema := t.Schema()
	if len(schema) != 1 {
		return nil, 0, zqe.ErrInvalid("%s must return one column, not %d", sq, len(schema))
	}
	switch t.NumRows() {
	case 0:
		return &plan.Literal{}, schema[0].Type, nil
	case 1:
		return &plan.Literal{Value: t.Value(0, 0)}, schema[0].Type, nil
	}
	return nil, 0, zqe.ErrInvalid("%s returned more than one row", sq)
}

func numeric(t table.Type) bool {
	return t == table.Int64 || t == table.Float64 || t == table.Null
}

func binaryType(op string, l, r table.Type) (table.Type, error) {
	switch op {
	case "and", "or":
		if (l != table.Bool && l != table.Null) || (r != table.Bool && r != table.Null) {
			return 0, zqe.ErrInvalid("operands of %s must be boolean", op)
		}
		return table.Bool, nil
	case "=", "==", "!=", "<>", "<", "<=", ">", ">=":
		if l != r && !(numeric(l) && numeric(r)) && l != table.Null && r != table.Null {
			return 0, zqe.ErrInvalid("cannot compare %s with %s", l, r)
		}
		return table.Bool, nil
	case "like":
		if (l != table.String && l != table.Null) || (r != table.String && r != table.Null) {
			return 0, zqe.ErrInvalid("operands of like must be strings")
		}
		return table.Bool, nil
	case "||":
		return table.String, nil
	case "+", "-", "*", "/", "%":
		if !numeric(l) || !numeric(r) {
			return 0, zqe.ErrInvalid("operator %s requires numeric operands, not %s and %s", op, l, r)
		}
		if l == table.Float64 || r == table.Float64 {
			return table.Float64, nil
		}
		return table.Int64, nil
	}
	return 0, zqe.ErrInvalid("unknown operator %q%s", op, suggest(op, binaryOps))
}

var binaryOps = []string{"and", "or", "=", "!=", "<", "<=", ">", ">=", "like", "||", "+", "-", "*", "/", "%"}

var aggregates = []string{"count", "sum", "avg", "min", "max", "approx_count_distinct", "any_value"}

func aggType(op string, arg table.Type) (table.Type, error) {
	switch op {
	case "count", "approx_count_distinct":
		return table.Int64, nil
	case "sum":
		if !numeric(arg) {
			return 0, zqe.ErrInvalid("cannot sum %s", arg)
		}
		if arg == table.Float64 {
			return table.Float64, nil
		}
		return table.Int64, nil
	case "avg":
		if !numeric(arg) {
			return 0, zqe.ErrInvalid("cannot average %s", arg)
		}
		return table.Float64, nil
	case "min", "max", "any_value":
		return arg, nil
	}
	return 0, zqe.ErrInvalid("unknown aggregate %q%s", op, suggest(op, aggregates))
}

var windowFunctions = []string{"row_number", "rank", "dense_rank", "count", "sum", "avg", "min", "max"}

func windowType(op string, arg table.Type) (table.Type, error) {
	switch op {
	case "row_number", "rank", "dense_rank":
		return table.Int64, nil
	case "count", "sum", "avg", "min", "max":
		return aggType(op, arg)
	}
	return 0, zqe.ErrInvalid("unknown window function %q%s", op, suggest(op, windowFunctions))
}
