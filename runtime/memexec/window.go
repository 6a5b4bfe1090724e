package memexec

import (
	"context"

	"github.com/brimdata/raexec/plan"
	"github.com/brimdata/raexec/runtime/exec"
	"github.com/brimdata/raexec/table"
	"golang.org/x/exp/slices"
)

func windowFuncs(targets []plan.Expr) []*plan.WindowFunc {
	var out []*plan.WindowFunc
	for _, t := range targets {
		plan.Walk(t, func(e plan.Expr) bool {
			if w, ok := e.(*plan.WindowFunc); ok {
				out = append(out, w)
				return false
			}
			return true
		})
	}
	return out
}

// window projects rows whose targets hold window functions. Each function
// partitions the rows, orders every partition and assigns each row its
// value. With an ordering, aggregates run over the partition up to and
// including the row's peers.
func (e *Executor) window(ctx context.Context, wu *exec.WorkUnit, rows [][]any) ([][]any, error) {
	values := make([]map[*plan.WindowFunc]any, len(rows))
	for i := range values {
		values[i] = make(map[*plan.WindowFunc]any)
	}
	for _, w := range windowFuncs(wu.Targets) {
		if err := e.check(ctx); err != nil {
			return nil, err
		}
		partitions, err := partition(w, rows)
		if err != nil {
			return nil, err
		}
		for _, p := range partitions {
			if err := evalWindow(w, rows, p, values); err != nil {
				return nil, err
			}
		}
	}
	out := make([][]any, 0, len(rows))
	for i, row := range rows {
		projected, err := project(wu.Targets, &env{row: row, window: values[i]})
		if err != nil {
			return nil, err
		}
		out = append(out, projected)
	}
	if wu.ScanLimit != 0 && uint64(len(out)) > wu.ScanLimit {
		out = out[:wu.ScanLimit]
	}
	return out, nil
}

// partition returns the row indexes of each partition of w, each sorted
// by the window ordering.
func partition(w *plan.WindowFunc, rows [][]any) ([][]int, error) {
	index := make(map[string]int)
	var partitions [][]int
	for i, row := range rows {
		keys, err := project(w.PartitionBy, &env{row: row})
		if err != nil {
			return nil, err
		}
		k := groupKey(keys)
		p, ok := index[k]
		if !ok {
			p = len(partitions)
			index[k] = p
			partitions = append(partitions, nil)
		}
		partitions[p] = append(partitions[p], i)
	}
	keys := plan.SortKeys(w.OrderBy)
	for _, p := range partitions {
		slices.SortStableFunc(p, func(a, b int) bool {
			return table.CompareRows(keys, rows[a], rows[b]) < 0
		})
	}
	return partitions, nil
}

func evalWindow(w *plan.WindowFunc, rows [][]any, part []int, values []map[*plan.WindowFunc]any) error {
	keys := plan.SortKeys(w.OrderBy)
	var acc accumulator
	if w.Op != "row_number" && w.Op != "rank" && w.Op != "dense_rank" {
		agg := &plan.AggExpr{Op: w.Op}
		if len(w.Args) > 0 {
			agg.Arg = w.Args[0]
		}
		acc = newAccumulator(agg)
	}
	var rank, dense int64
	for start := 0; start < len(part); {
		// Rows equal on every ordering key are peers and share a value.
		end := start + 1
		for end < len(part) && table.CompareRows(keys, rows[part[start]], rows[part[end]]) == 0 {
			end++
		}
		dense++
		rank = int64(start) + 1
		if acc != nil {
			for _, i := range part[start:end] {
				var v any
				if len(w.Args) > 0 {
					var err error
					if v, err = eval(w.Args[0], &env{row: rows[i]}); err != nil {
						return err
					}
				}
				if err := acc.add(v); err != nil {
					return err
				}
			}
		}
		for n, i := range part[start:end] {
			switch w.Op {
			case "row_number":
				values[i][w] = int64(start + n + 1)
			case "rank":
				values[i][w] = rank
			case "dense_rank":
				values[i][w] = dense
			default:
				values[i][w] = acc.result()
			}
		}
		start = end
	}
	return nil
}
