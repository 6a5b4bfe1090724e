// Package planio reads plan documents written in YAML. A document lists the
// nodes of a plan by id together with the id of the root node and,
// optionally, the data of the tables it scans.
package planio

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/brimdata/raexec/plan"
	"github.com/brimdata/raexec/table"
	"gopkg.in/yaml.v3"
)

type Document struct {
	Tables []Table
	Root   plan.Node
}

type Table struct {
	Name      string
	Fragments int
	Data      *table.Table
}

type document struct {
	Tables []tableDoc `yaml:"tables"`
	Root   uint       `yaml:"root"`
	Nodes  []nodeDoc  `yaml:"nodes"`
}

type tableDoc struct {
	Name      string       `yaml:"name"`
	Fragments int          `yaml:"fragments"`
	Columns   table.Schema `yaml:"columns"`
	Rows      [][]any      `yaml:"rows"`
}

type nodeDoc struct {
	ID        uint             `yaml:"id"`
	Op        string           `yaml:"op"`
	Inputs    []uint           `yaml:"inputs"`
	Hints     plan.Hints       `yaml:"hints"`
	Table     string           `yaml:"table"`
	Columns   table.Schema     `yaml:"columns"`
	Condition *exprDoc         `yaml:"condition"`
	Filter    *exprDoc         `yaml:"filter"`
	Exprs     []exprDoc        `yaml:"exprs"`
	GroupBy   []exprDoc        `yaml:"group_by"`
	Keys      []int            `yaml:"keys"`
	Aggs      []exprDoc        `yaml:"aggs"`
	Names     []string         `yaml:"names"`
	Collation []plan.SortField `yaml:"collation"`
	Limit     uint64           `yaml:"limit"`
	Offset    uint64           `yaml:"offset"`
	Empty     bool             `yaml:"empty"`
	JoinType  string           `yaml:"join_type"`
	Outer     []exprDoc        `yaml:"outer"`
	Rows      [][]exprDoc      `yaml:"rows"`
	All       bool             `yaml:"all"`
	Function  string           `yaml:"function"`
	Args      []exprDoc        `yaml:"args"`
}

type exprDoc struct {
	Col         *int             `yaml:"col"`
	Input       int              `yaml:"input"`
	Name        string           `yaml:"name"`
	Lit         any              `yaml:"lit"`
	Null        bool             `yaml:"null"`
	Op          string           `yaml:"op"`
	Args        []exprDoc        `yaml:"args"`
	Agg         string           `yaml:"agg"`
	Arg         *exprDoc         `yaml:"arg"`
	Distinct    bool             `yaml:"distinct"`
	Window      string           `yaml:"window"`
	PartitionBy []exprDoc        `yaml:"partition_by"`
	OrderBy     []plan.SortField `yaml:"order_by"`
	Subquery    *uint            `yaml:"subquery"`
}

func ReadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	doc, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func Read(r io.Reader) (*Document, error) {
	var doc document
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	if err := d.Decode(&doc); err != nil {
		return nil, err
	}
	return doc.build()
}

func Parse(b []byte) (*Document, error) {
	return Read(bytes.NewReader(b))
}

func (d *document) build() (*Document, error) {
	out := &Document{}
	for _, t := range d.Tables {
		data, err := table.New(t.Columns, t.Rows)
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", t.Name, err)
		}
		frags := t.Fragments
		if frags < 1 {
			frags = 1
		}
		out.Tables = append(out.Tables, Table{Name: t.Name, Fragments: frags, Data: data})
	}
	b := &builder{
		docs:  make(map[uint]*nodeDoc),
		nodes: make(map[uint]plan.Node),
		busy:  make(map[uint]bool),
		scans: make(map[string]table.Schema),
	}
	for _, t := range out.Tables {
		b.scans[t.Name] = t.Data.Schema()
	}
	for i := range d.Nodes {
		n := &d.Nodes[i]
		if _, ok := b.docs[n.ID]; ok {
			return nil, fmt.Errorf("duplicate node id %d", n.ID)
		}
		b.docs[n.ID] = n
	}
	root, err := b.node(d.Root)
	if err != nil {
		return nil, err
	}
	out.Root = root
	return out, nil
}

type builder struct {
	docs  map[uint]*nodeDoc
	nodes map[uint]plan.Node
	busy  map[uint]bool
	scans map[string]table.Schema
}

func (b *builder) node(id uint) (plan.Node, error) {
	if n, ok := b.nodes[id]; ok {
		return n, nil
	}
	doc, ok := b.docs[id]
	if !ok {
		return nil, fmt.Errorf("node %d is not defined", id)
	}
	if b.busy[id] {
		return nil, fmt.Errorf("node %d is part of a cycle", id)
	}
	b.busy[id] = true
	defer delete(b.busy, id)
	var inputs []plan.Node
	for _, in := range doc.Inputs {
		n, err := b.node(in)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, n)
	}
	n, err := b.build(doc, plan.Base{NodeID: id, In: inputs, Hint: doc.Hints})
	if err != nil {
		return nil, fmt.Errorf("node %d: %w", id, err)
	}
	b.nodes[id] = n
	return n, nil
}

func (b *builder) build(doc *nodeDoc, base plan.Base) (plan.Node, error) {
	switch doc.Op {
	case "scan":
		schema := doc.Columns
		if schema == nil {
			schema = b.scans[doc.Table]
		}
		return &plan.Scan{Base: base, Table: doc.Table, Schema: schema}, nil
	case "filter":
		cond, err := b.optExpr(doc.Condition)
		if err != nil {
			return nil, err
		}
		return &plan.Filter{Base: base, Condition: cond}, nil
	case "project":
		exprs, err := b.exprs(doc.Exprs)
		if err != nil {
			return nil, err
		}
		return &plan.Project{Base: base, Exprs: exprs, Names: doc.Names}, nil
	case "compound":
		filter, err := b.optExpr(doc.Filter)
		if err != nil {
			return nil, err
		}
		groupBy, err := b.exprs(doc.GroupBy)
		if err != nil {
			return nil, err
		}
		targets, err := b.exprs(doc.Exprs)
		if err != nil {
			return nil, err
		}
		return &plan.Compound{Base: base, Filter: filter, GroupBy: groupBy, Targets: targets, Names: doc.Names}, nil
	case "aggregate":
		var aggs []*plan.AggExpr
		for _, a := range doc.Aggs {
			e, err := b.expr(&a)
			if err != nil {
				return nil, err
			}
			agg, ok := e.(*plan.AggExpr)
			if !ok {
				return nil, fmt.Errorf("%s is not an aggregate", e)
			}
			aggs = append(aggs, agg)
		}
		return &plan.Aggregate{Base: base, GroupBy: doc.Keys, Aggs: aggs, Names: doc.Names}, nil
	case "sort":
		return &plan.Sort{
			Base:        base,
			Collation:   doc.Collation,
			Limit:       doc.Limit,
			Offset:      doc.Offset,
			EmptyResult: doc.Empty,
		}, nil
	case "join":
		cond, err := b.optExpr(doc.Condition)
		if err != nil {
			return nil, err
		}
		typ, err := parseJoinType(doc.JoinType)
		if err != nil {
			return nil, err
		}
		return &plan.Join{Base: base, Condition: cond, Type: typ}, nil
	case "left_deep_join":
		cond, err := b.optExpr(doc.Condition)
		if err != nil {
			return nil, err
		}
		outer, err := b.exprs(doc.Outer)
		if err != nil {
			return nil, err
		}
		return &plan.LeftDeepInnerJoin{Base: base, Condition: cond, OuterConditions: outer}, nil
	case "values":
		var rows [][]plan.Expr
		for _, r := range doc.Rows {
			row, err := b.exprs(r)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
		return &plan.LogicalValues{Base: base, Schema: doc.Columns, Rows: rows}, nil
	case "union":
		return &plan.LogicalUnion{Base: base, All: doc.All}, nil
	case "table_function":
		args, err := b.exprs(doc.Args)
		if err != nil {
			return nil, err
		}
		return &plan.TableFunction{Base: base, Function: doc.Function, Args: args, Names: doc.Names}, nil
	}
	return nil, fmt.Errorf("unknown op %q", doc.Op)
}

func parseJoinType(s string) (plan.JoinType, error) {
	switch s {
	case "", "inner":
		return plan.InnerJoin, nil
	case "left":
		return plan.LeftJoin, nil
	case "semi":
		return plan.SemiJoin, nil
	case "anti":
		return plan.AntiJoin, nil
	}
	return 0, fmt.Errorf("unknown join type %q", s)
}

func (b *builder) optExpr(doc *exprDoc) (plan.Expr, error) {
	if doc == nil {
		return nil, nil
	}
	return b.expr(doc)
}

func (b *builder) exprs(docs []exprDoc) ([]plan.Expr, error) {
	var out []plan.Expr
	for i := range docs {
		e, err := b.expr(&docs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (b *builder) expr(doc *exprDoc) (plan.Expr, error) {
	switch {
	case doc.Col != nil:
		return &plan.Column{Input: doc.Input, Index: *doc.Col, Name: doc.Name}, nil
	case doc.Null:
		return &plan.Literal{}, nil
	case doc.Lit != nil:
		return &plan.Literal{Value: literal(doc.Lit)}, nil
	case doc.Agg != "":
		arg, err := b.optExpr(doc.Arg)
		if err != nil {
			return nil, err
		}
		return &plan.AggExpr{Op: doc.Agg, Arg: arg, Distinct: doc.Distinct}, nil
	case doc.Window != "":
		args, err := b.exprs(doc.Args)
		if err != nil {
			return nil, err
		}
		partition, err := b.exprs(doc.PartitionBy)
		if err != nil {
			return nil, err
		}
		return &plan.WindowFunc{Op: doc.Window, Args: args, PartitionBy: partition, OrderBy: doc.OrderBy}, nil
	case doc.Subquery != nil:
		root, err := b.node(*doc.Subquery)
		if err != nil {
			return nil, err
		}
		return &plan.Subquery{Root: root}, nil
	case doc.Op != "":
		args, err := b.exprs(doc.Args)
		if err != nil {
			return nil, err
		}
		switch len(args) {
		case 1:
			return &plan.UnaryExpr{Op: doc.Op, Operand: args[0]}, nil
		case 2:
			return &plan.BinaryExpr{Op: doc.Op, LHS: args[0], RHS: args[1]}, nil
		}
		return nil, fmt.Errorf("operator %q takes one or two arguments, got %d", doc.Op, len(args))
	}
	return nil, fmt.Errorf("empty expression")
}

func literal(v any) any {
	switch v := v.(type) {
	case int:
		return int64(v)
	case uint64:
		return int64(v)
	}
	return v
}
