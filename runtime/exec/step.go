package exec

import (
	"context"
	"errors"
	"time"

	"github.com/brimdata/raexec/compiler/sequence"
	"github.com/brimdata/raexec/errors"
	"github.com/brimdata/raexec/plan"
	"github.com/brimdata/raexec/table"
	"go.uber.org/zap"
)

// executeStepWithRetry executes step i, falling back to the CPU when the
// executor cannot run the step on the requested device and to the interop
// executor when native code generation fails. Each fallback is tried at
// most once.
func (r *run) executeStepWithRetry(ctx context.Context, seq *sequence.Sequence, i int, co CompileOptions, eo ExecOptions, interop bool) error {
	var cpuTried, interopTried bool
	err := r.executeStep(ctx, seq, i, co, eo)
	for err != nil {
		switch {
		case errors.Is(err, ErrMustRunOnCPU):
			if !r.conf.AllowStepCPURetry || co.Device == CPU || cpuTried {
				return zqe.ErrDeviceIncompatible(err)
			}
			cpuTried = true
			r.logger.Info("Query step needs to run on CPU, retrying", zap.Int("step", i))
			r.metrics.retry(rungStepCPU)
			co = co.CPUOnly()
		case errors.Is(err, ErrNativeExecution):
			body := seq.Descriptor(i).Body()
			if !interop || !r.conf.EnableInterop || interopTried || isGroupByCompound(body) {
				return zqe.ErrNativeCodegen(err)
			}
			interopTried = true
			r.logger.Info("Native code generation failed, retrying with interop", zap.Int("step", i), zap.Error(err))
			r.metrics.retry(rungInterop)
			eo.Executor = Extern
		default:
			return err
		}
		err = r.executeStep(ctx, seq, i, co, eo)
	}
	return nil
}

func isGroupByCompound(n plan.Node) bool {
	c, ok := n.(*plan.Compound)
	return ok && c.IsAggregate()
}

func (r *run) executeStep(ctx context.Context, seq *sequence.Sequence, i int, co CompileOptions, eo ExecOptions) error {
	if err := r.checkInterrupt(ctx, co); err != nil {
		return err
	}
	d := seq.Descriptor(i)
	if d == nil {
		return zqe.ErrInternal("step %d out of range", i)
	}
	body := d.Body()
	r.logger.Debug("Executing step", zap.Int("step", i), zap.Stringer("op", body.Kind()), zap.Uint("id", body.ID()))
	r.metrics.step(body.Kind())
	if agg, ok := body.(*plan.Aggregate); ok && agg.IsNop() {
		if done, err := r.handleNop(d, agg); done || err != nil {
			return err
		}
	}
	if i != 0 {
		eo.OuterFragments = nil
		if _, ok := body.(*plan.Project); !ok {
			eo.WithWatchdog = false
		}
	}
	co, eo = applyHints(body, co, eo)
	start := time.Now()
	var res *sequence.Result
	var err error
	switch body := body.(type) {
	case *plan.Compound, *plan.Aggregate, *plan.Filter:
		res, err = r.executeBody(ctx, body, co, eo)
	case *plan.Project:
		var prev uint64
		if r.conf.SkipIntermediateCount {
			prev = previousCount(seq, i, body)
		}
		if r.conf.EnableMultifragResult && i+1 < seq.Len() {
			eo.MultifragResult = true
		}
		res, err = r.executeProject(ctx, body, co, eo, prev)
	case *plan.Sort:
		res, err = r.executeSort(ctx, body, co, eo)
	case *plan.LogicalValues:
		res, err = executeLogicalValues(body)
	case *plan.LogicalUnion:
		res, err = r.executeUnion(ctx, seq, body, co, eo)
	case *plan.TableFunction:
		res, err = r.executeTableFunction(ctx, body, co, eo)
	default:
		return zqe.ErrInternal("%s cannot be executed as a step", body)
	}
	if err != nil {
		return err
	}
	res.ExecTime = time.Since(start)
	d.SetResult(res)
	if res.Schema != nil {
		body.SetOutputMeta(res.Schema)
	}
	if res.Table != nil {
		return r.registry.Put(Key(body.ID()), res.Table)
	}
	return nil
}

// applyHints adjusts the options for the planner hints of body. A sort
// step follows the hints of its input.
func applyHints(body plan.Node, co CompileOptions, eo ExecOptions) (CompileOptions, ExecOptions) {
	hints := body.Hints()
	if sort, ok := body.(*plan.Sort); ok {
		hints = sort.Input(0).Hints()
	}
	if hints.CPUMode {
		co = co.CPUOnly()
	}
	if eo.OutputColumnar {
		eo.OutputColumnar = !hints.RowwiseOutput
	} else {
		eo.OutputColumnar = hints.ColumnarOutput
	}
	return co, eo
}

// handleNop republishes the input of an identity aggregate. It reports
// false when the input is not a registered step result, in which case the
// aggregate executes normally.
func (r *run) handleNop(d *sequence.Descriptor, agg *plan.Aggregate) (bool, error) {
	t, ok := r.registry.Lookup(Key(agg.Input(0).ID()))
	if !ok {
		return false, nil
	}
	r.logger.Debug("Skipping identity aggregate", zap.Uint("id", agg.ID()))
	d.SetResult(&sequence.Result{Table: t, Schema: t.Schema()})
	agg.SetOutputMeta(t.Schema())
	return true, r.registry.Put(Key(agg.ID()), t)
}

// previousCount returns the row count of a project's input when that
// input is a step whose count is already known.
func previousCount(seq *sequence.Sequence, i int, p *plan.Project) uint64 {
	if i == 0 {
		return 0
	}
	input := p.Input(0)
	switch input.(type) {
	case *plan.Compound, *plan.LogicalValues:
	default:
		return 0
	}
	d := seq.DescriptorByBodyID(input.ID(), i-1)
	if d == nil || !d.HasResult() {
		return 0
	}
	return uint64(d.Result().RowCount())
}

func (r *run) executeBody(ctx context.Context, body plan.Node, co CompileOptions, eo ExecOptions) (*sequence.Result, error) {
	wu, err := r.createWorkUnit(body, SortInfo{})
	if err != nil {
		return nil, err
	}
	return r.executeWorkUnit(ctx, wu, co, eo, 0)
}

func (r *run) executeProject(ctx context.Context, p *plan.Project, co CompileOptions, eo ExecOptions, prev uint64) (*sequence.Result, error) {
	wu, err := r.createWorkUnit(p, SortInfo{})
	if err != nil {
		return nil, err
	}
	if sort, ok := p.Input(0).(*plan.Sort); ok && p.IsSimple() {
		// Sorted input is already materialized on the host.
		co = co.CPUOnly()
		if t, ok := r.registry.Lookup(Key(sort.ID())); ok {
			wu.ScanLimit = uint64(t.NumRows())
		}
	}
	return r.executeWorkUnit(ctx, wu, co, eo, prev)
}

func executeLogicalValues(v *plan.LogicalValues) (*sequence.Result, error) {
	schema := make(table.Schema, len(v.Schema))
	for i, c := range v.Schema {
		if c.Type.Varlen() {
			return nil, zqe.ErrInvalid("variable length types are not supported in VALUES")
		}
		if c.Type == table.Null {
			c.Type = table.Int64
		}
		schema[i] = c
	}
	rows := make([][]any, 0, len(v.Rows))
	for i, row := range v.Rows {
		if len(row) != len(schema) {
			return nil, zqe.ErrInvalid("VALUES row %d has %d entries, expected %d", i, len(row), len(schema))
		}
		vals := make([]any, len(row))
		for j, e := range row {
			lit, ok := e.(*plan.Literal)
			if !ok {
				return nil, zqe.ErrInvalid("VALUES entry %s is not a literal", e)
			}
			vals[j] = lit.Value
		}
		rows = append(rows, vals)
	}
	t, err := table.New(schema, rows)
	if err != nil {
		return nil, zqe.ErrInvalid(err)
	}
	return &sequence.Result{Table: t, Schema: schema}, nil
}

func (r *run) executeUnion(ctx context.Context, seq *sequence.Sequence, u *plan.LogicalUnion, co CompileOptions, eo ExecOptions) (*sequence.Result, error) {
	if !u.All {
		return nil, zqe.ErrInvalid("UNION without ALL is not supported")
	}
	if g := seq.Graph(); g != nil {
		if v, ok := g.Lookup(u); ok {
			for _, c := range g.OutEdges(v) {
				switch g.Node(c).(type) {
				case *plan.Project, *plan.Compound, *plan.Aggregate, *plan.LogicalUnion, *plan.Sort:
				default:
					return nil, zqe.ErrInvalid("UNION ALL is not supported as input to %s", g.Node(c).Kind())
				}
			}
		}
	}
	wu, err := r.createWorkUnit(u, SortInfo{})
	if err != nil {
		return nil, err
	}
	for _, in := range wu.Inputs[1:] {
		if !in.Schema.Equal(wu.Inputs[0].Schema) {
			return nil, zqe.ErrInvalid("UNION ALL inputs have mismatched types %s and %s", wu.Inputs[0].Schema, in.Schema)
		}
	}
	eo.PreserveOrder = true
	return r.executeWorkUnit(ctx, wu, co.CPUOnly(), eo, 0)
}

func (r *run) executeTableFunction(ctx context.Context, f *plan.TableFunction, co CompileOptions, eo ExecOptions) (*sequence.Result, error) {
	if !r.conf.EnableTableFunctions {
		return nil, zqe.ErrInvalid("table function support is disabled")
	}
	wu, err := r.createWorkUnit(f, SortInfo{})
	if err != nil {
		return nil, err
	}
	t, err := r.dispatch(ctx, wu, co, eo, 0, true)
	if err != nil {
		var xerr *zqe.ExecError
		if !errors.As(err, &xerr) {
			return nil, err
		}
		if perr := r.persistentError(xerr); perr != nil {
			return nil, perr
		}
		return nil, zqe.ErrResourceExhausted("table function ran out of memory during execution")
	}
	return newResult(t, wu, eo), nil
}
