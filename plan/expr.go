package plan

import (
	"fmt"
	"strings"
)

type Expr interface {
	String() string
	expr()
}

// Column references field Index of input Input of the node holding the
// expression. Input is non-zero only for nodes over joins.
type Column struct {
	Input int
	Index int
	Name  string
}

type Literal struct {
	Value any
}

type BinaryExpr struct {
	Op  string
	LHS Expr
	RHS Expr
}

type UnaryExpr struct {
	Op      string
	Operand Expr
}

type AggExpr struct {
	Op       string
	Arg      Expr
	Distinct bool
}

type WindowFunc struct {
	Op          string
	Args        []Expr
	PartitionBy []Expr
	OrderBy     []SortField
}

// Subquery is a scalar subquery. Its value is the first column of the first
// row of Root's context result.
type Subquery struct {
	Root Node
}

func (*Column) expr()     {}
func (*Literal) expr()    {}
func (*BinaryExpr) expr() {}
func (*UnaryExpr) expr()  {}
func (*AggExpr) expr()    {}
func (*WindowFunc) expr() {}
func (*Subquery) expr()   {}

func (c *Column) String() string {
	if c.Name != "" {
		return c.Name
	}
	if c.Input != 0 {
		return fmt.Sprintf("$%d.%d", c.Input, c.Index)
	}
	return fmt.Sprintf("$%d", c.Index)
}

func (l *Literal) String() string {
	switch v := l.Value.(type) {
	case nil:
		return "NULL"
	case string:
		return fmt.Sprintf("%q", v)
	}
	return fmt.Sprint(l.Value)
}

func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.LHS, b.Op, b.RHS)
}

func (u *UnaryExpr) String() string {
	return fmt.Sprintf("(%s %s)", u.Op, u.Operand)
}

func (a *AggExpr) String() string {
	arg := "*"
	if a.Arg != nil {
		arg = a.Arg.String()
	}
	if a.Distinct {
		arg = "DISTINCT " + arg
	}
	return fmt.Sprintf("%s(%s)", strings.ToUpper(a.Op), arg)
}

func (w *WindowFunc) String() string {
	s := strings.ToUpper(w.Op) + exprList(w.Args) + " OVER("
	var clauses []string
	if len(w.PartitionBy) > 0 {
		clauses = append(clauses, "PARTITION BY "+exprList(w.PartitionBy))
	}
	if len(w.OrderBy) > 0 {
		fields := make([]string, 0, len(w.OrderBy))
		for _, f := range w.OrderBy {
			fields = append(fields, f.String())
		}
		clauses = append(clauses, "ORDER BY "+strings.Join(fields, " "))
	}
	return s + strings.Join(clauses, " ") + ")"
}

func (s *Subquery) String() string {
	if s.Root == nil {
		return "Subquery(nil)"
	}
	return fmt.Sprintf("Subquery(#%d)", s.Root.ID())
}

// Walk calls visit for e and, while visit returns true, for each of its
// subexpressions in depth-first order. Walk does not descend into the plans
// of subqueries.
func Walk(e Expr, visit func(Expr) bool) {
	if e == nil || !visit(e) {
		return
	}
	switch e := e.(type) {
	case *BinaryExpr:
		Walk(e.LHS, visit)
		Walk(e.RHS, visit)
	case *UnaryExpr:
		Walk(e.Operand, visit)
	case *AggExpr:
		Walk(e.Arg, visit)
	case *WindowFunc:
		for _, a := range e.Args {
			Walk(a, visit)
		}
		for _, p := range e.PartitionBy {
			Walk(p, visit)
		}
	}
}

// Nodes returns every node reachable from root through inputs, each once,
// with inputs before their consumers.
func Nodes(root Node) []Node {
	var out []Node
	seen := make(map[Node]bool)
	var visit func(Node)
	visit = func(n Node) {
		if n == nil || seen[n] {
			return
		}
		seen[n] = true
		for _, in := range n.Inputs() {
			visit(in)
		}
		out = append(out, n)
	}
	visit(root)
	return out
}

// Subqueries returns the subqueries referenced by the plan rooted at root,
// including those nested inside other subqueries. Nested subqueries precede
// the subqueries that contain them.
func Subqueries(root Node) []*Subquery {
	var out []*Subquery
	seen := make(map[*Subquery]bool)
	var fromPlan func(Node)
	fromPlan = func(root Node) {
		for _, n := range Nodes(root) {
			for _, e := range Exprs(n) {
				Walk(e, func(e Expr) bool {
					if sq, ok := e.(*Subquery); ok && !seen[sq] {
						seen[sq] = true
						if sq.Root != nil {
							fromPlan(sq.Root)
						}
						out = append(out, sq)
					}
					return true
				})
			}
		}
	}
	fromPlan(root)
	return out
}
