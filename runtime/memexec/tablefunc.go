package memexec

import (
	"github.com/brimdata/raexec/errors"
	"github.com/brimdata/raexec/table"
)

type tableFunction struct {
	name    string
	columns table.Schema
	minArgs int
	maxArgs int
	rows    func(args []any) ([][]any, error)

	// length bounds the number of rows without producing them so memory
	// budgets can be checked first.
	length func(args []any) uint64
}

var tableFunctions = map[string]*tableFunction{
	"generate_series": {
		name:    "generate_series",
		columns: table.Schema{{Name: "generate_series", Type: table.Int64}},
		minArgs: 2,
		maxArgs: 3,
		rows:    generateSeries,
		length:  seriesLength,
	},
}

func lookupTableFunction(name string) (*tableFunction, error) {
	fn, ok := tableFunctions[name]
	if !ok {
		names := make([]string, 0, len(tableFunctions))
		for name := range tableFunctions {
			names = append(names, name)
		}
		return nil, zqe.ErrInvalid("unknown table function %q%s", name, suggest(name, names))
	}
	return fn, nil
}

// schema returns the output columns, renamed by names where given.
func (f *tableFunction) schema(names []string) table.Schema {
	out := make(table.Schema, len(f.columns))
	copy(out, f.columns)
	for i := range out {
		if i < len(names) && names[i] != "" {
			out[i].Name = names[i]
		}
	}
	return out
}

func (f *tableFunction) call(args []any) ([][]any, error) {
	if len(args) < f.minArgs || len(args) > f.maxArgs {
		return nil, zqe.ErrInvalid("%s takes %d to %d arguments, not %d", f.name, f.minArgs, f.maxArgs, len(args))
	}
	return f.rows(args)
}

func generateSeries(args []any) ([][]any, error) {
	ints := make([]int64, 3)
	ints[2] = 1
	for i, a := range args {
		v, ok := a.(int64)
		if !ok {
			return nil, zqe.ErrInvalid("generate_series argument %d must be an integer", i+1)
		}
		ints[i] = v
	}
	start, stop, step := ints[0], ints[1], ints[2]
	if step == 0 {
		return nil, zqe.ErrInvalid("generate_series step must not be zero")
	}
	var rows [][]any
	for v := start; (step > 0 && v <= stop) || (step < 0 && v >= stop); v += step {
		rows = append(rows, []any{v})
		if (step > 0 && v > stop-step) || (step < 0 && v < stop-step) {
			break
		}
	}
	return rows, nil
}

func seriesLength(args []any) uint64 {
	if len(args) < 2 {
		return 0
	}
	start, ok1 := args[0].(int64)
	stop, ok2 := args[1].(int64)
	step := int64(1)
	if len(args) > 2 {
		step, _ = args[2].(int64)
	}
	if !ok1 || !ok2 || step == 0 {
		return 0
	}
	if step > 0 && stop >= start {
		return uint64(stop-start)/uint64(step) + 1
	}
	if step < 0 && start >= stop {
		return uint64(start-stop)/uint64(-step) + 1
	}
	return 0
}
