// Package plan defines the relational operator DAG handed to the execution
// engine. The set of operators is closed: every Node is one of the concrete
// types in this package and Kind identifies which.
package plan

import (
	"fmt"
	"strings"

	"github.com/brimdata/raexec/table"
)

type Kind int

const (
	KindScan Kind = iota
	KindFilter
	KindProject
	KindCompound
	KindAggregate
	KindSort
	KindJoin
	KindLeftDeepInnerJoin
	KindLogicalValues
	KindLogicalUnion
	KindTableFunction
)

var kindNames = []string{
	"Scan",
	"Filter",
	"Project",
	"Compound",
	"Aggregate",
	"Sort",
	"Join",
	"LeftDeepInnerJoin",
	"LogicalValues",
	"LogicalUnion",
	"TableFunction",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Hints are planner directives attached to a node.
type Hints struct {
	CPUMode        bool `yaml:"cpu_mode" json:"cpu_mode"`
	ColumnarOutput bool `yaml:"columnar_output" json:"columnar_output"`
	RowwiseOutput  bool `yaml:"rowwise_output" json:"rowwise_output"`
}

func (h Hints) Empty() bool {
	return h == Hints{}
}

type Node interface {
	ID() uint
	Kind() Kind
	Inputs() []Node
	Input(int) Node
	InputCount() int
	Hints() Hints
	// OutputMeta is the schema of the node's result once known.
	OutputMeta() table.Schema
	SetOutputMeta(table.Schema)
	// ContextResult is a result attached directly to the node, used for
	// the roots of subqueries.
	ContextResult() *table.Table
	SetContextResult(*table.Table)
	String() string
	base() *Base
}

// Base carries the state common to all nodes. Concrete nodes embed it.
type Base struct {
	NodeID uint
	In     []Node
	Hint   Hints
	meta   table.Schema
	result *table.Table
}

// In returns a Base with the given id and inputs.
func In(id uint, inputs ...Node) Base {
	return Base{NodeID: id, In: inputs}
}

func (b *Base) ID() uint                        { return b.NodeID }
func (b *Base) Inputs() []Node                  { return b.In }
func (b *Base) InputCount() int                 { return len(b.In) }
func (b *Base) Hints() Hints                    { return b.Hint }
func (b *Base) OutputMeta() table.Schema        { return b.meta }
func (b *Base) SetOutputMeta(s table.Schema)    { b.meta = s }
func (b *Base) ContextResult() *table.Table     { return b.result }
func (b *Base) SetContextResult(t *table.Table) { b.result = t }
func (b *Base) base() *Base                     { return b }

func (b *Base) Input(i int) Node {
	if i < 0 || i >= len(b.In) {
		return nil
	}
	return b.In[i]
}

type Scan struct {
	Base
	Table  string
	Schema table.Schema
}

type Filter struct {
	Base
	Condition Expr
}

type Project struct {
	Base
	Exprs []Expr
	Names []string
}

// Compound is a fused filter, group-by and projection over one input.
type Compound struct {
	Base
	Filter  Expr
	GroupBy []Expr
	Targets []Expr
	Names   []string
}

// Aggregate groups its input by the GroupBy column indexes.
type Aggregate struct {
	Base
	GroupBy []int
	Aggs    []*AggExpr
	Names   []string
}

type SortField struct {
	Field      int  `yaml:"field" json:"field"`
	Desc       bool `yaml:"desc" json:"desc"`
	NullsFirst bool `yaml:"nulls_first" json:"nulls_first"`
}

func (f SortField) String() string {
	s := fmt.Sprintf("$%d", f.Field)
	if f.Desc {
		s += " DESC"
	}
	if f.NullsFirst {
		s += " NULLS FIRST"
	}
	return s
}

// SortKeys converts a collation into the keys table.Sort orders by.
func SortKeys(collation []SortField) []table.SortKey {
	keys := make([]table.SortKey, 0, len(collation))
	for _, f := range collation {
		keys = append(keys, table.SortKey{Column: f.Field, Desc: f.Desc, NullsFirst: f.NullsFirst})
	}
	return keys
}

type Sort struct {
	Base
	Collation []SortField
	Limit     uint64
	Offset    uint64
	// EmptyResult is set by the planner when the sort is known to
	// produce no rows.
	EmptyResult bool
}

type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
	SemiJoin
	AntiJoin
)

func (j JoinType) String() string {
	switch j {
	case LeftJoin:
		return "left"
	case SemiJoin:
		return "semi"
	case AntiJoin:
		return "anti"
	}
	return "inner"
}

type Join struct {
	Base
	Condition Expr
	Type      JoinType
}

// LeftDeepInnerJoin is a flattened chain of inner joins over two or more
// inputs.
type LeftDeepInnerJoin struct {
	Base
	Condition       Expr
	OuterConditions []Expr
}

type LogicalValues struct {
	Base
	Schema table.Schema
	Rows   [][]Expr
}

type LogicalUnion struct {
	Base
	All bool
}

type TableFunction struct {
	Base
	Function string
	Args     []Expr
	Names    []string
}

func (*Scan) Kind() Kind              { return KindScan }
func (*Filter) Kind() Kind            { return KindFilter }
func (*Project) Kind() Kind           { return KindProject }
func (*Compound) Kind() Kind          { return KindCompound }
func (*Aggregate) Kind() Kind         { return KindAggregate }
func (*Sort) Kind() Kind              { return KindSort }
func (*Join) Kind() Kind              { return KindJoin }
func (*LeftDeepInnerJoin) Kind() Kind { return KindLeftDeepInnerJoin }
func (*LogicalValues) Kind() Kind     { return KindLogicalValues }
func (*LogicalUnion) Kind() Kind      { return KindLogicalUnion }
func (*TableFunction) Kind() Kind     { return KindTableFunction }

func (s *Scan) OutputMeta() table.Schema {
	if meta := s.Base.OutputMeta(); meta != nil {
		return meta
	}
	return s.Schema
}

func (v *LogicalValues) OutputMeta() table.Schema {
	if meta := v.Base.OutputMeta(); meta != nil {
		return meta
	}
	return v.Schema
}

// IsSimple reports whether every projected expression is a bare column.
func (p *Project) IsSimple() bool {
	for _, e := range p.Exprs {
		if _, ok := e.(*Column); !ok {
			return false
		}
	}
	return true
}

func (p *Project) HasWindowFunctions() bool {
	return hasWindowFunction(p.Exprs)
}

func (c *Compound) IsAggregate() bool {
	if len(c.GroupBy) > 0 {
		return true
	}
	var found bool
	for _, e := range c.Targets {
		Walk(e, func(e Expr) bool {
			if _, ok := e.(*AggExpr); ok {
				found = true
			}
			return !found
		})
	}
	return found
}

func (c *Compound) HasWindowFunctions() bool {
	return hasWindowFunction(c.Targets)
}

// IsNop reports whether the aggregate passes its single input through
// unchanged.
func (a *Aggregate) IsNop() bool {
	return len(a.GroupBy) == 0 && len(a.Aggs) == 0 && a.InputCount() == 1
}

// IsAggregate reports whether n produces grouped or aggregated rows.
func IsAggregate(n Node) bool {
	switch n := n.(type) {
	case *Aggregate:
		return true
	case *Compound:
		return n.IsAggregate()
	}
	return false
}

func hasWindowFunction(exprs []Expr) bool {
	var found bool
	for _, e := range exprs {
		Walk(e, func(e Expr) bool {
			if _, ok := e.(*WindowFunc); ok {
				found = true
			}
			return !found
		})
	}
	return found
}

func header(n Node, details ...string) string {
	parts := append([]string{fmt.Sprintf("#%d", n.ID())}, details...)
	if n.InputCount() > 0 {
		var ids []string
		for _, in := range n.Inputs() {
			if in == nil {
				ids = append(ids, "nil")
				continue
			}
			ids = append(ids, fmt.Sprintf("#%d", in.ID()))
		}
		parts = append(parts, "inputs=["+strings.Join(ids, " ")+"]")
	}
	return n.Kind().String() + "(" + strings.Join(parts, ", ") + ")"
}

func exprList(exprs []Expr) string {
	ss := make([]string, 0, len(exprs))
	for _, e := range exprs {
		ss = append(ss, e.String())
	}
	return "[" + strings.Join(ss, " ") + "]"
}

func (s *Scan) String() string {
	return header(s, "table="+s.Table)
}

func (f *Filter) String() string {
	return header(f, "condition="+exprString(f.Condition))
}

func (p *Project) String() string {
	return header(p, "exprs="+exprList(p.Exprs))
}

func (c *Compound) String() string {
	details := []string{"targets=" + exprList(c.Targets)}
	if c.Filter != nil {
		details = append(details, "filter="+c.Filter.String())
	}
	if len(c.GroupBy) > 0 {
		details = append(details, "groupby="+exprList(c.GroupBy))
	}
	return header(c, details...)
}

func (a *Aggregate) String() string {
	aggs := make([]Expr, 0, len(a.Aggs))
	for _, agg := range a.Aggs {
		aggs = append(aggs, agg)
	}
	return header(a, fmt.Sprintf("groupby=%v", a.GroupBy), "aggs="+exprList(aggs))
}

func (s *Sort) String() string {
	fields := make([]string, 0, len(s.Collation))
	for _, f := range s.Collation {
		fields = append(fields, f.String())
	}
	details := []string{"collation=[" + strings.Join(fields, " ") + "]"}
	if s.Limit != 0 {
		details = append(details, fmt.Sprintf("limit=%d", s.Limit))
	}
	if s.Offset != 0 {
		details = append(details, fmt.Sprintf("offset=%d", s.Offset))
	}
	return header(s, details...)
}

func (j *Join) String() string {
	return header(j, "type="+j.Type.String(), "condition="+exprString(j.Condition))
}

func (j *LeftDeepInnerJoin) String() string {
	return header(j, "condition="+exprString(j.Condition))
}

func (v *LogicalValues) String() string {
	return header(v, "schema="+v.Schema.String(), fmt.Sprintf("rows=%d", len(v.Rows)))
}

func (u *LogicalUnion) String() string {
	return header(u, fmt.Sprintf("all=%t", u.All))
}

func (f *TableFunction) String() string {
	return header(f, "function="+f.Function, "args="+exprList(f.Args))
}

func exprString(e Expr) string {
	if e == nil {
		return "true"
	}
	return e.String()
}

// Exprs returns the expressions held directly by n.
func Exprs(n Node) []Expr {
	var out []Expr
	add := func(exprs ...Expr) {
		for _, e := range exprs {
			if e != nil {
				out = append(out, e)
			}
		}
	}
	switch n := n.(type) {
	case *Filter:
		add(n.Condition)
	case *Project:
		add(n.Exprs...)
	case *Compound:
		add(n.Filter)
		add(n.GroupBy...)
		add(n.Targets...)
	case *Aggregate:
		for _, a := range n.Aggs {
			add(a)
		}
	case *Join:
		add(n.Condition)
	case *LeftDeepInnerJoin:
		add(n.Condition)
		add(n.OuterConditions...)
	case *LogicalValues:
		for _, row := range n.Rows {
			add(row...)
		}
	case *TableFunction:
		add(n.Args...)
	}
	return out
}
