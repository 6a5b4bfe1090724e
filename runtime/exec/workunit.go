package exec

import (
	"fmt"
	"strings"

	"github.com/brimdata/raexec/errors"
	"github.com/brimdata/raexec/plan"
	"github.com/brimdata/raexec/table"
)

type InputSource int

const (
	FromTable InputSource = iota
	FromTemporary
)

// InputDesc describes one input of a work unit: either a catalog table or
// the registered result of an earlier step.
type InputDesc struct {
	Node      plan.Node
	Source    InputSource
	Table     string
	Key       int64
	Schema    table.Schema
	Rows      uint64
	Fragments int
}

func (d InputDesc) String() string {
	if d.Source == FromTable {
		return d.Table + d.Schema.String()
	}
	return fmt.Sprintf("temp(%d)%s", d.Key, d.Schema)
}

type SortAlgorithm int

const (
	SortDefault SortAlgorithm = iota
	// SortSpeculativeTopN asks the executor to keep only the top rows
	// while it aggregates. Executors that cannot honor it return
	// ErrSpeculativeTopNFailed.
	SortSpeculativeTopN
)

type SortInfo struct {
	Collation []plan.SortField
	Algorithm SortAlgorithm
	Limit     uint64
	Offset    uint64
}

// WorkUnit is everything an executor needs to run one step.
type WorkUnit struct {
	Body      plan.Node
	Inputs    []InputDesc
	Quals     []plan.Expr
	JoinQuals []plan.Expr
	GroupBy   []plan.Expr
	Targets   []plan.Expr
	Args      []plan.Expr
	Schema    table.Schema
	Sort      SortInfo
	// ScanLimit caps the number of output rows. Zero means no cap.
	ScanLimit              uint64
	GroupsBufferEntryGuess uint64
	UseBumpAllocator       bool
	// Temporary resolves the inputs produced by earlier steps.
	Temporary TemporaryTables
}

func (w *WorkUnit) IsAggregate() bool {
	if len(w.GroupBy) > 0 {
		return true
	}
	var found bool
	for _, e := range w.Targets {
		plan.Walk(e, func(e plan.Expr) bool {
			if _, ok := e.(*plan.AggExpr); ok {
				found = true
			}
			return !found
		})
	}
	return found
}

func (w *WorkUnit) HasWindowFunctions() bool {
	var found bool
	for _, e := range w.Targets {
		plan.Walk(e, func(e plan.Expr) bool {
			if _, ok := e.(*plan.WindowFunc); ok {
				found = true
			}
			return !found
		})
	}
	return found
}

// Fingerprint identifies the computation a work unit performs
// independently of buffer sizing. Work units with equal fingerprints
// produce the same number of groups.
func (w *WorkUnit) Fingerprint() string {
	var b strings.Builder
	b.WriteString(w.Body.Kind().String())
	for _, in := range w.Inputs {
		b.WriteString(" in=")
		b.WriteString(in.String())
	}
	writeExprs(&b, "quals", w.Quals)
	writeExprs(&b, "join", w.JoinQuals)
	writeExprs(&b, "groupby", w.GroupBy)
	writeExprs(&b, "targets", w.Targets)
	writeExprs(&b, "args", w.Args)
	if len(w.Sort.Collation) > 0 {
		fmt.Fprintf(&b, " sort=%v", w.Sort.Collation)
	}
	if w.Sort.Limit != 0 || w.Sort.Offset != 0 {
		fmt.Fprintf(&b, " limit=%d offset=%d", w.Sort.Limit, w.Sort.Offset)
	}
	if w.ScanLimit != 0 {
		fmt.Fprintf(&b, " scan=%d", w.ScanLimit)
	}
	return b.String()
}

func writeExprs(b *strings.Builder, name string, exprs []plan.Expr) {
	if len(exprs) == 0 {
		return
	}
	b.WriteString(" " + name + "=[")
	for i, e := range exprs {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(e.String())
	}
	b.WriteString("]")
}

// groupsUpperBound is the largest input row count, which bounds the
// number of groups any unit over those inputs can produce.
func groupsUpperBound(w *WorkUnit) uint64 {
	var max uint64
	for _, in := range w.Inputs {
		if in.Rows > max {
			max = in.Rows
		}
	}
	return max
}

func (r *run) createWorkUnit(n plan.Node, sort SortInfo) (*WorkUnit, error) {
	inputs, err := r.inputDescs(n)
	if err != nil {
		return nil, err
	}
	tr, err := r.env.Translator.Translate(n, inputs)
	if err != nil {
		if zqe.KindOf(err) == zqe.Other {
			err = zqe.ErrInvalid(err)
		}
		return nil, err
	}
	return &WorkUnit{
		Body:      n,
		Inputs:    inputs,
		Quals:     tr.Quals,
		JoinQuals: tr.JoinQuals,
		GroupBy:   tr.GroupBy,
		Targets:   tr.Targets,
		Args:      tr.Args,
		Schema:    tr.Schema,
		Sort:      sort,
		Temporary: r.registry,
	}, nil
}

// inputDescs resolves the inputs of n. Absorbed joins are replaced by
// their own inputs.
func (r *run) inputDescs(n plan.Node) ([]InputDesc, error) {
	var descs []InputDesc
	for _, in := range n.Inputs() {
		switch in.(type) {
		case *plan.Join, *plan.LeftDeepInnerJoin:
			nested, err := r.inputDescs(in)
			if err != nil {
				return nil, err
			}
			descs = append(descs, nested...)
			continue
		}
		d, err := r.inputDesc(in)
		if err != nil {
			return nil, err
		}
		descs = append(descs, d)
	}
	return descs, nil
}

func (r *run) inputDesc(n plan.Node) (InputDesc, error) {
	if scan, ok := n.(*plan.Scan); ok {
		info, err := r.env.Schemas.TableInfo(scan.Table)
		if err != nil {
			return InputDesc{}, err
		}
		schema := info.Schema
		if len(schema) == 0 {
			schema = scan.Schema
		}
		return InputDesc{
			Node:      n,
			Source:    FromTable,
			Table:     scan.Table,
			Schema:    schema,
			Rows:      info.Rows,
			Fragments: info.Fragments,
		}, nil
	}
	key := Key(n.ID())
	t, ok := r.registry.Lookup(key)
	if !ok {
		return InputDesc{}, zqe.ErrInternal("no result registered for %s", n)
	}
	return InputDesc{
		Node:      n,
		Source:    FromTemporary,
		Key:       key,
		Schema:    t.Schema(),
		Rows:      uint64(t.NumRows()),
		Fragments: t.Fragments(),
	}, nil
}
