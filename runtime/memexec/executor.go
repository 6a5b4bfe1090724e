package memexec

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/brimdata/raexec/errors"
	"github.com/brimdata/raexec/plan"
	"github.com/brimdata/raexec/runtime/exec"
	"github.com/brimdata/raexec/table"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	// GPUMemory is the device memory budget in bytes. Zero means the
	// executor has no GPU and every GPU unit must run on the CPU.
	GPUMemory uint64 `yaml:"gpu_memory"`
	// CPUMemory is the host memory budget in bytes. Zero means unlimited.
	CPUMemory uint64 `yaml:"cpu_memory"`
	// Workers bounds the number of fragments processed at once.
	Workers int `yaml:"workers"`
}

// Executor runs work units over the tables of a Catalog and the results
// of earlier steps. Memory use is modeled as eight bytes per fixed-width
// value and sixteen per string.
type Executor struct {
	conf      Config
	catalog   *Catalog
	interrupt *Interrupter
	logger    *zap.Logger
}

var _ exec.Executor = (*Executor)(nil)

func New(conf Config, catalog *Catalog, logger *zap.Logger) *Executor {
	if conf.Workers <= 0 {
		conf.Workers = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		conf:      conf,
		catalog:   catalog,
		interrupt: &Interrupter{},
		logger:    logger,
	}
}

// Interrupter returns the flag checked by running work units.
func (e *Executor) Interrupter() *Interrupter {
	return e.interrupt
}

var explainSchema = table.Schema{{Name: "explain", Type: table.String}}

func (e *Executor) ExecuteWorkUnit(ctx context.Context, cfg exec.StepConfig) (*table.Table, error) {
	wu := cfg.WorkUnit
	ctx = e.watch(ctx, cfg.Compile)
	e.logger.Debug("Executing work unit",
		zap.Stringer("op", wu.Body.Kind()),
		zap.Stringer("device", cfg.Compile.Device),
		zap.Stringer("executor", cfg.Exec.Executor),
		zap.Uint64("groups_buffer_entry_guess", cfg.GroupsBufferEntryGuess))
	if err := e.compile(wu, cfg.Compile, cfg.Exec); err != nil {
		return nil, err
	}
	if cfg.Exec.JustExplain {
		explain := fmt.Sprintf("%s device=%s executor=%s", wu.Fingerprint(), cfg.Compile.Device, cfg.Exec.Executor)
		return table.New(explainSchema, [][]any{{explain}})
	}
	if fn, ok := wu.Body.(*plan.TableFunction); ok {
		return e.tableFunction(wu, fn, cfg)
	}
	inputs, err := e.resolve(wu)
	if err != nil {
		return nil, err
	}
	if err := e.checkMemory(inputs, cfg.Compile, cfg.Exec); err != nil {
		return nil, err
	}
	if cfg.Exec.JustValidate {
		return table.Empty(wu.Schema), nil
	}
	var rows [][]any
	switch {
	case wu.Body.Kind() == plan.KindLogicalUnion:
		for _, t := range inputs {
			rows = append(rows, t.Rows()...)
		}
	case wu.IsAggregate():
		if rows, err = e.scan(ctx, wu, inputs, cfg.Exec.OuterFragments, nil); err != nil {
			return nil, err
		}
		if rows, err = e.aggregate(ctx, wu, rows, width(inputs), cfg); err != nil {
			return nil, err
		}
	case wu.HasWindowFunctions():
		if rows, err = e.scan(ctx, wu, inputs, cfg.Exec.OuterFragments, nil); err != nil {
			return nil, err
		}
		if rows, err = e.window(ctx, wu, rows); err != nil {
			return nil, err
		}
	default:
		if rows, err = e.scan(ctx, wu, inputs, cfg.Exec.OuterFragments, wu.Targets); err != nil {
			return nil, err
		}
		if wu.ScanLimit != 0 && uint64(len(rows)) > wu.ScanLimit {
			rows = rows[:wu.ScanLimit]
		}
	}
	t, err := table.New(wu.Schema, rows)
	if err != nil {
		return nil, zqe.ErrInternal(err)
	}
	if wu.Sort.Algorithm == exec.SortSpeculativeTopN {
		if t, err = speculativeTopN(t, wu.Sort); err != nil {
			return nil, err
		}
	}
	if cfg.Exec.MultifragResult && len(inputs) > 0 {
		t = t.WithFragments(inputs[0].Fragments())
	}
	return t, nil
}

// compile rejects units the requested device or executor cannot run.
func (e *Executor) compile(wu *exec.WorkUnit, co exec.CompileOptions, eo exec.ExecOptions) error {
	if co.Device == exec.GPU {
		switch {
		case e.conf.GPUMemory == 0, wu.HasWindowFunctions(), wu.Body.Kind() == plan.KindLogicalUnion:
			return exec.ErrMustRunOnCPU
		}
	}
	if eo.Executor == exec.Native && needsExtern(wu.Quals, wu.JoinQuals, wu.Targets) {
		return exec.ErrNativeExecution
	}
	return nil
}

func (e *Executor) resolve(wu *exec.WorkUnit) ([]*table.Table, error) {
	tables := make([]*table.Table, 0, len(wu.Inputs))
	for _, in := range wu.Inputs {
		if in.Source == exec.FromTable {
			t, err := e.catalog.Table(in.Table)
			if err != nil {
				return nil, err
			}
			tables = append(tables, t)
			continue
		}
		if wu.Temporary == nil {
			return nil, zqe.ErrInternal("no temporary tables for input %s", in)
		}
		t, ok := wu.Temporary.Lookup(in.Key)
		if !ok {
			return nil, zqe.ErrInternal("no temporary result for input %s", in)
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func footprint(s table.Schema, rows uint64) uint64 {
	var width uint64
	for _, c := range s {
		if c.Type.Varlen() {
			width += 16
		} else {
			width += 8
		}
	}
	return width * rows
}

// checkMemory compares the working set of the inputs with the budget of
// the target device. A multi-fragment launch needs every fragment
// resident at once; otherwise only the largest fragment must fit.
func (e *Executor) checkMemory(inputs []*table.Table, co exec.CompileOptions, eo exec.ExecOptions) error {
	var total, fragment uint64
	var multifrag bool
	for _, t := range inputs {
		size := footprint(t.Schema(), uint64(t.NumRows()))
		total += size
		n := uint64(t.Fragments())
		if n > 1 {
			multifrag = true
		}
		fragment += (size + n - 1) / n
	}
	if co.Device == exec.GPU {
		if eo.AllowMultifrag && multifrag && total > e.conf.GPUMemory {
			return &zqe.ExecError{Code: zqe.OutOfGPUMem, MultifragLaunch: true}
		}
		if fragment > e.conf.GPUMemory {
			return &zqe.ExecError{Code: zqe.OutOfGPUMem}
		}
		return nil
	}
	if e.conf.CPUMemory != 0 && total > e.conf.CPUMemory {
		return &zqe.ExecError{Code: zqe.OutOfCPUMem}
	}
	return nil
}

func width(inputs []*table.Table) int {
	var n int
	for _, t := range inputs {
		n += len(t.Schema())
	}
	return n
}

type interruptKey struct{}

// watch attaches the interrupter to ctx when the dynamic watchdog is on.
func (e *Executor) watch(ctx context.Context, co exec.CompileOptions) context.Context {
	if !co.WithDynamicWatchdog {
		return ctx
	}
	return context.WithValue(ctx, interruptKey{}, e.interrupt)
}

// check maps a canceled context or a raised interrupt to the code an
// executor reports for it.
func (e *Executor) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &zqe.ExecError{Code: zqe.OutOfTime}
		}
		return &zqe.ExecError{Code: zqe.Interrupt}
	}
	if i, _ := ctx.Value(interruptKey{}).(*Interrupter); i.interrupted() {
		return &zqe.ExecError{Code: zqe.Interrupt}
	}
	return nil
}

const checkInterval = 1024

// scan joins the inputs and applies the unit's predicates. Fragments of
// the first input are processed concurrently and their output is kept in
// fragment order. When targets is non-nil each surviving row is projected.
func (e *Executor) scan(ctx context.Context, wu *exec.WorkUnit, inputs []*table.Table, outer []int, targets []plan.Expr) ([][]any, error) {
	if len(inputs) == 0 {
		return nil, zqe.ErrInternal("%s has no inputs", wu.Body)
	}
	if err := e.check(ctx); err != nil {
		return nil, err
	}
	frags := fragments(inputs[0], outer)
	others := make([][][]any, 0, len(inputs)-1)
	var pad int
	for _, t := range inputs[1:] {
		others = append(others, t.Rows())
		pad += len(t.Schema())
	}
	j := &joiner{
		exec:      e,
		quals:     wu.Quals,
		joinQuals: wu.JoinQuals,
		joinType:  joinType(wu.Body),
		others:    others,
		pad:       pad,
		targets:   targets,
	}
	results := make([][][]any, len(frags))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.conf.Workers)
	for i, frag := range frags {
		i, frag := i, frag
		g.Go(func() error {
			out, err := j.run(ctx, frag)
			results[i] = out
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var rows [][]any
	for _, r := range results {
		rows = append(rows, r...)
	}
	return rows, nil
}

// fragments splits the rows of t into its fragments, keeping only the
// fragments listed in outer when it is non-empty.
func fragments(t *table.Table, outer []int) [][][]any {
	rows := t.Rows()
	n := t.Fragments()
	keep := make(map[int]bool)
	for _, i := range outer {
		keep[i] = true
	}
	var out [][][]any
	for i := 0; i < n; i++ {
		if len(outer) > 0 && !keep[i] {
			continue
		}
		lo, hi := i*len(rows)/n, (i+1)*len(rows)/n
		out = append(out, rows[lo:hi])
	}
	return out
}

func joinType(body plan.Node) plan.JoinType {
	for _, in := range body.Inputs() {
		if j, ok := in.(*plan.Join); ok {
			return j.Type
		}
	}
	return plan.InnerJoin
}

type joiner struct {
	exec      *Executor
	quals     []plan.Expr
	joinQuals []plan.Expr
	joinType  plan.JoinType
	others    [][][]any
	pad       int
	targets   []plan.Expr
}

func (j *joiner) run(ctx context.Context, rows [][]any) ([][]any, error) {
	var out [][]any
	var n int
	emit := func(row []any) error {
		ok, err := satisfies(j.quals, row)
		if err != nil || !ok {
			return err
		}
		if j.targets != nil {
			if row, err = project(j.targets, &env{row: row}); err != nil {
				return err
			}
		}
		out = append(out, row)
		return nil
	}
	for _, left := range rows {
		var matched bool
		err := j.product(left, 0, func(row []any) error {
			if n++; n%checkInterval == 0 {
				if err := j.exec.check(ctx); err != nil {
					return err
				}
			}
			ok, err := satisfies(j.joinQuals, row)
			if err != nil || !ok {
				return err
			}
			matched = true
			if j.joinType == plan.SemiJoin || j.joinType == plan.AntiJoin {
				return nil
			}
			return emit(row)
		})
		if err != nil {
			return nil, err
		}
		switch {
		case j.joinType == plan.LeftJoin && !matched,
			j.joinType == plan.SemiJoin && matched,
			j.joinType == plan.AntiJoin && !matched:
			row := append(append([]any{}, left...), make([]any, j.pad)...)
			if err := emit(row); err != nil {
				return nil, err
			}
		}
	}
	if err := j.exec.check(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// product calls fn with prefix extended by every combination of rows of
// the remaining inputs.
func (j *joiner) product(prefix []any, input int, fn func([]any) error) error {
	if input == len(j.others) {
		return fn(prefix)
	}
	for _, row := range j.others[input] {
		next := make([]any, 0, len(prefix)+len(row))
		next = append(append(next, prefix...), row...)
		if err := j.product(next, input+1, fn); err != nil {
			return err
		}
	}
	return nil
}

func satisfies(preds []plan.Expr, row []any) (bool, error) {
	en := &env{row: row}
	for _, p := range preds {
		v, err := eval(p, en)
		if err != nil {
			return false, err
		}
		if !truthy(v) {
			return false, nil
		}
	}
	return true, nil
}

func project(targets []plan.Expr, en *env) ([]any, error) {
	out := make([]any, len(targets))
	for i, t := range targets {
		v, err := eval(t, en)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// speculativeTopN orders an aggregate's output by its collation and keeps
// the first limit+offset rows. Only numeric keys are supported.
func speculativeTopN(t *table.Table, sort exec.SortInfo) (*table.Table, error) {
	schema := t.Schema()
	for _, f := range sort.Collation {
		if f.Field >= len(schema) {
			return nil, exec.ErrSpeculativeTopNFailed
		}
		if typ := schema[f.Field].Type; typ != table.Int64 && typ != table.Float64 {
			return nil, exec.ErrSpeculativeTopNFailed
		}
	}
	return t.Sort(plan.SortKeys(sort.Collation), sort.Limit+sort.Offset), nil
}

func (e *Executor) tableFunction(wu *exec.WorkUnit, n *plan.TableFunction, cfg exec.StepConfig) (*table.Table, error) {
	fn, err := lookupTableFunction(n.Function)
	if err != nil {
		return nil, err
	}
	args, err := project(wu.Args, &env{})
	if err != nil {
		return nil, err
	}
	size := footprint(wu.Schema, fn.length(args))
	switch {
	case cfg.Compile.Device == exec.GPU && size > e.conf.GPUMemory:
		return nil, &zqe.ExecError{Code: zqe.OutOfGPUMem}
	case cfg.Compile.Device == exec.CPU && e.conf.CPUMemory != 0 && size > e.conf.CPUMemory:
		return nil, &zqe.ExecError{Code: zqe.OutOfCPUMem}
	}
	if cfg.Exec.JustValidate {
		return table.Empty(wu.Schema), nil
	}
	rows, err := fn.call(args)
	if err != nil {
		return nil, err
	}
	return table.New(wu.Schema, rows)
}

// CountAll returns the number of rows that survive the unit's join and
// filter predicates.
func (e *Executor) CountAll(ctx context.Context, wu *exec.WorkUnit, co exec.CompileOptions, eo exec.ExecOptions) (uint64, error) {
	ctx = e.watch(ctx, co)
	if err := e.compile(wu, co, eo); err != nil {
		return 0, err
	}
	inputs, err := e.resolve(wu)
	if err != nil {
		return 0, err
	}
	rows, err := e.scan(ctx, wu, inputs, eo.OuterFragments, nil)
	if err != nil {
		return 0, err
	}
	return uint64(len(rows)), nil
}
