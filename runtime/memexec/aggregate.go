package memexec

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/axiomhq/hyperloglog"
	"github.com/brimdata/raexec/errors"
	"github.com/brimdata/raexec/plan"
	"github.com/brimdata/raexec/runtime/exec"
	"github.com/brimdata/raexec/table"
)

type accumulator interface {
	add(any) error
	result() any
}

func newAccumulator(a *plan.AggExpr) accumulator {
	if a.Distinct && a.Op != "approx_count_distinct" {
		return &distinct{seen: make(map[string]bool), acc: newAccumulator(&plan.AggExpr{Op: a.Op, Arg: a.Arg})}
	}
	switch a.Op {
	case "count":
		return &count{star: a.Arg == nil}
	case "sum":
		return &sum{}
	case "avg":
		return &avg{}
	case "min":
		return &extreme{sign: -1}
	case "max":
		return &extreme{sign: 1}
	case "approx_count_distinct":
		return &approxDistinct{sketch: hyperloglog.New()}
	}
	return &anyValue{}
}

type count struct {
	star bool
	n    int64
}

func (c *count) add(v any) error {
	if c.star || v != nil {
		c.n++
	}
	return nil
}

func (c *count) result() any { return c.n }

type sum struct {
	ints   int64
	floats float64
	float  bool
	seen   bool
}

func (s *sum) add(v any) error {
	switch v := v.(type) {
	case nil:
		return nil
	case int64:
		r := s.ints + v
		if (r > s.ints) != (v > 0) {
			return &zqe.ExecError{Code: zqe.OverflowOrUnderflow}
		}
		s.ints = r
	case float64:
		s.floats += v
		s.float = true
	}
	s.seen = true
	return nil
}

func (s *sum) result() any {
	switch {
	case !s.seen:
		return nil
	case s.float:
		return s.floats + float64(s.ints)
	}
	return s.ints
}

type avg struct {
	total float64
	n     int64
}

func (a *avg) add(v any) error {
	if f, ok := toFloat(v); ok {
		a.total += f
		a.n++
	}
	return nil
}

func (a *avg) result() any {
	if a.n == 0 {
		return nil
	}
	return a.total / float64(a.n)
}

// extreme keeps the minimum (sign -1) or maximum (sign 1) value.
type extreme struct {
	sign int
	val  any
}

func (e *extreme) add(v any) error {
	if v != nil && (e.val == nil || table.Compare(v, e.val)*e.sign > 0) {
		e.val = v
	}
	return nil
}

func (e *extreme) result() any { return e.val }

type anyValue struct {
	val any
}

func (a *anyValue) add(v any) error {
	if a.val == nil {
		a.val = v
	}
	return nil
}

func (a *anyValue) result() any { return a.val }

type approxDistinct struct {
	sketch *hyperloglog.Sketch
}

func (a *approxDistinct) add(v any) error {
	if v != nil {
		a.sketch.Insert([]byte(valueKey(v)))
	}
	return nil
}

func (a *approxDistinct) result() any {
	return int64(a.sketch.Estimate())
}

type distinct struct {
	seen map[string]bool
	acc  accumulator
}

func (d *distinct) add(v any) error {
	if v == nil {
		return nil
	}
	k := valueKey(v)
	if d.seen[k] {
		return nil
	}
	d.seen[k] = true
	return d.acc.add(v)
}

func (d *distinct) result() any { return d.acc.result() }

// valueKey encodes a value so that equal values of the same type have
// equal keys.
func valueKey(v any) string {
	switch v := v.(type) {
	case nil:
		return "n"
	case bool:
		if v {
			return "t"
		}
		return "f"
	case int64:
		return "i" + strconv.FormatInt(v, 10)
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return "i" + strconv.FormatInt(int64(v), 10)
		}
		return "d" + strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return "s" + strconv.Itoa(len(v)) + ":" + v
	}
	return "?"
}

func groupKey(vals []any) string {
	var b strings.Builder
	for _, v := range vals {
		b.WriteString(valueKey(v))
		b.WriteByte(';')
	}
	return b.String()
}

func aggExprs(targets []plan.Expr) []*plan.AggExpr {
	var out []*plan.AggExpr
	for _, t := range targets {
		plan.Walk(t, func(e plan.Expr) bool {
			if a, ok := e.(*plan.AggExpr); ok {
				out = append(out, a)
				return false
			}
			return true
		})
	}
	return out
}

type group struct {
	first []any
	accs  []accumulator
}

// aggregate groups rows by the unit's group keys. Producing more groups
// than the buffer guess fails the way a fixed-size groups buffer would:
// with a request for a cardinality estimate when none was given and with
// slot exhaustion otherwise.
func (e *Executor) aggregate(ctx context.Context, wu *exec.WorkUnit, rows [][]any, width int, cfg exec.StepConfig) ([][]any, error) {
	aggs := aggExprs(wu.Targets)
	index := make(map[string]*group)
	var groups []*group
	for i, row := range rows {
		if i%checkInterval == 0 {
			if err := e.check(ctx); err != nil {
				return nil, err
			}
		}
		en := &env{row: row}
		keys, err := project(wu.GroupBy, en)
		if err != nil {
			return nil, err
		}
		k := groupKey(keys)
		g, ok := index[k]
		if !ok {
			g = &group{first: row}
			for _, a := range aggs {
				g.accs = append(g.accs, newAccumulator(a))
			}
			index[k] = g
			groups = append(groups, g)
			guess := cfg.GroupsBufferEntryGuess
			if len(wu.GroupBy) > 0 && guess != 0 && uint64(len(groups)) > guess {
				if !cfg.HasCardinalityEstimation {
					return nil, &exec.CardinalityEstimationRequired{Range: keyRange(wu, rows)}
				}
				return nil, &zqe.ExecError{Code: -1}
			}
		}
		for j, a := range aggs {
			var v any
			if a.Arg != nil {
				if v, err = eval(a.Arg, en); err != nil {
					return nil, err
				}
			}
			if err := g.accs[j].add(v); err != nil {
				return nil, err
			}
		}
	}
	if len(groups) == 0 && len(wu.GroupBy) == 0 {
		g := &group{first: make([]any, width)}
		for _, a := range aggs {
			g.accs = append(g.accs, newAccumulator(a))
		}
		groups = append(groups, g)
	}
	out := make([][]any, 0, len(groups))
	for _, g := range groups {
		en := &env{row: g.first, aggs: make(map[*plan.AggExpr]any, len(aggs))}
		for j, a := range aggs {
			en.aggs[a] = g.accs[j].result()
		}
		row, err := project(wu.Targets, en)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// keyRange is the span of a single integer group key, or zero when the
// unit groups by anything else.
func keyRange(wu *exec.WorkUnit, rows [][]any) int64 {
	if len(wu.GroupBy) != 1 {
		return 0
	}
	var lo, hi int64
	var seen bool
	for _, row := range rows {
		v, err := eval(wu.GroupBy[0], &env{row: row})
		if err != nil {
			return 0
		}
		i, ok := v.(int64)
		if !ok {
			if v == nil {
				continue
			}
			return 0
		}
		if !seen || i < lo {
			lo = i
		}
		if !seen || i > hi {
			hi = i
		}
		seen = true
	}
	if !seen || hi-lo < 0 {
		return 0
	}
	return hi - lo + 1
}

// NDVEstimate approximates the number of distinct group keys with a
// HyperLogLog sketch over the rows that survive the unit's predicates.
// A positive rangeHint caps the estimate.
func (e *Executor) NDVEstimate(ctx context.Context, wu *exec.WorkUnit, rangeHint int64, co exec.CompileOptions, eo exec.ExecOptions) (uint64, error) {
	if len(wu.GroupBy) == 0 {
		return 1, nil
	}
	ctx = e.watch(ctx, co)
	inputs, err := e.resolve(wu)
	if err != nil {
		return 0, err
	}
	rows, err := e.scan(ctx, wu, inputs, eo.OuterFragments, nil)
	if err != nil {
		return 0, err
	}
	sketch := hyperloglog.New()
	for _, row := range rows {
		keys, err := project(wu.GroupBy, &env{row: row})
		if err != nil {
			return 0, err
		}
		sketch.Insert([]byte(groupKey(keys)))
	}
	ndv := sketch.Estimate()
	if rangeHint > 0 && ndv > uint64(rangeHint) {
		ndv = uint64(rangeHint)
	}
	return ndv, nil
}
