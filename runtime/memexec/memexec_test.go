package memexec

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brimdata/raexec/errors"
	"github.com/brimdata/raexec/plan"
	"github.com/brimdata/raexec/runtime/exec"
	"github.com/brimdata/raexec/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testCatalog holds "t" with ten rows split into two fragments: id 0..9,
// grp "a" for even ids and "b" for odd ones, and v equal to id.
func testCatalog() *Catalog {
	schema := table.Schema{
		{Name: "id", Type: table.Int64},
		{Name: "grp", Type: table.String},
		{Name: "v", Type: table.Float64},
	}
	var rows [][]any
	for i := 0; i < 10; i++ {
		grp := "a"
		if i%2 == 1 {
			grp = "b"
		}
		rows = append(rows, []any{int64(i), grp, float64(i)})
	}
	c := NewCatalog()
	c.Add("t", table.MustNew(schema, rows).WithFragments(2))
	c.Add("l", table.MustNew(table.Schema{{Name: "k", Type: table.Int64}, {Name: "name", Type: table.String}},
		[][]any{{1, "x"}, {2, "y"}, {3, "z"}}))
	c.Add("r", table.MustNew(table.Schema{{Name: "k", Type: table.Int64}, {Name: "score", Type: table.Int64}},
		[][]any{{1, 10}, {3, 30}, {3, 31}}))
	return c
}

func newEngine(t *testing.T, conf exec.Config, x *Executor, c *Catalog) *exec.Engine {
	e, err := exec.New(conf, exec.Env{
		Executor:    x,
		Translator:  NewTranslator(),
		Schemas:     c,
		Interrupter: x.Interrupter(),
	})
	require.NoError(t, err)
	return e
}

func query(t *testing.T, e *exec.Engine, root plan.Node) (*table.Table, error) {
	conf := e.Config()
	res, err := e.ExecuteQuery(context.Background(), root, exec.DefaultCompileOptions(conf), exec.DefaultExecOptions(conf))
	if err != nil {
		return nil, err
	}
	return res.Table, nil
}

func col(i int) *plan.Column {
	return &plan.Column{Index: i}
}

func lit(v any) *plan.Literal {
	return &plan.Literal{Value: v}
}

func bin(op string, l, r plan.Expr) *plan.BinaryExpr {
	return &plan.BinaryExpr{Op: op, LHS: l, RHS: r}
}

// unit translates n over the catalog tables it scans, the way the engine
// does for a first step.
func unit(t *testing.T, c *Catalog, n plan.Node) *exec.WorkUnit {
	var inputs []exec.InputDesc
	var add func(plan.Node)
	add = func(n plan.Node) {
		for _, in := range n.Inputs() {
			switch in := in.(type) {
			case *plan.Join, *plan.LeftDeepInnerJoin:
				add(in)
			case *plan.Scan:
				info, err := c.TableInfo(in.Table)
				require.NoError(t, err)
				inputs = append(inputs, exec.InputDesc{
					Node:      in,
					Source:    exec.FromTable,
					Table:     in.Table,
					Schema:    info.Schema,
					Rows:      info.Rows,
					Fragments: info.Fragments,
				})
			}
		}
	}
	add(n)
	tr, err := NewTranslator().Translate(n, inputs)
	require.NoError(t, err)
	return &exec.WorkUnit{
		Body:      n,
		Inputs:    inputs,
		Quals:     tr.Quals,
		JoinQuals: tr.JoinQuals,
		GroupBy:   tr.GroupBy,
		Targets:   tr.Targets,
		Args:      tr.Args,
		Schema:    tr.Schema,
	}
}

func cpu() exec.StepConfig {
	return exec.StepConfig{
		Compile:                exec.CompileOptions{Device: exec.CPU},
		Exec:                   exec.ExecOptions{AllowMultifrag: true},
		GroupsBufferEntryGuess: 16384,
	}
}

func TestCatalogSuggestion(t *testing.T) {
	c := testCatalog()
	_, err := c.Table("tt")
	assert.True(t, zqe.IsKind(err, zqe.Invalid), "%v", err)
	assert.ErrorContains(t, err, `did you mean "t"?`)
	_, err = c.Table("nothing_like_it")
	assert.NotContains(t, err.Error(), "did you mean")
	assert.Equal(t, []string{"l", "r", "t"}, c.Names())
}

func TestFilterThenProject(t *testing.T) {
	c := testCatalog()
	e := newEngine(t, exec.DefaultConfig(), New(Config{}, c, nil), c)
	scan := &plan.Scan{Base: plan.In(1), Table: "t"}
	filter := &plan.Filter{Base: plan.In(2, scan), Condition: bin(">", col(2), lit(4.5))}
	project := &plan.Project{Base: plan.In(3, filter), Exprs: []plan.Expr{col(0), bin("*", col(0), lit(2))}, Names: []string{"id", "twice"}}
	out, err := query(t, e, project)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "twice"}, out.Schema().Names())
	assert.Equal(t, [][]any{{int64(5), int64(10)}, {int64(6), int64(12)}, {int64(7), int64(14)}, {int64(8), int64(16)}, {int64(9), int64(18)}}, out.Rows())
}

func TestGroupBySortLimit(t *testing.T) {
	c := testCatalog()
	e := newEngine(t, exec.DefaultConfig(), New(Config{}, c, nil), c)
	newPlan := func(field int) plan.Node {
		scan := &plan.Scan{Base: plan.In(1), Table: "t"}
		compound := &plan.Compound{
			Base:    plan.In(2, scan),
			GroupBy: []plan.Expr{col(1)},
			Targets: []plan.Expr{col(1), &plan.AggExpr{Op: "count"}, &plan.AggExpr{Op: "sum", Arg: col(2)}},
			Names:   []string{"grp", "n", "total"},
		}
		return &plan.Sort{Base: plan.In(3, compound), Collation: []plan.SortField{{Field: field, Desc: true}}, Limit: 1}
	}
	t.Run("speculative", func(t *testing.T) {
		out, err := query(t, e, newPlan(2))
		require.NoError(t, err)
		assert.Equal(t, [][]any{{"b", int64(5), 25.0}}, out.Rows())
	})
	t.Run("fallback for string key", func(t *testing.T) {
		out, err := query(t, e, newPlan(0))
		require.NoError(t, err)
		assert.Equal(t, [][]any{{"b", int64(5), 25.0}}, out.Rows())
	})
}

func TestGlobalAggregateOverNoRows(t *testing.T) {
	c := testCatalog()
	e := newEngine(t, exec.DefaultConfig(), New(Config{}, c, nil), c)
	scan := &plan.Scan{Base: plan.In(1), Table: "t"}
	filter := &plan.Filter{Base: plan.In(2, scan), Condition: bin("<", col(0), lit(0))}
	compound := &plan.Compound{
		Base:    plan.In(3, filter),
		Targets: []plan.Expr{&plan.AggExpr{Op: "count"}, &plan.AggExpr{Op: "max", Arg: col(2)}},
	}
	out, err := query(t, e, compound)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(0), nil}}, out.Rows())
}

func TestGPUOutOfMemoryFallsBackToCPU(t *testing.T) {
	c := testCatalog()
	x := New(Config{GPUMemory: 100}, c, nil)
	scan := &plan.Scan{Base: plan.In(1), Table: "t"}
	filter := &plan.Filter{Base: plan.In(2, scan), Condition: bin("=", col(1), lit("a"))}

	wu := unit(t, c, filter)
	cfg := cpu()
	cfg.WorkUnit = wu
	cfg.Compile.Device = exec.GPU
	_, err := x.ExecuteWorkUnit(context.Background(), cfg)
	var xerr *zqe.ExecError
	require.True(t, errors.As(err, &xerr), "%v", err)
	assert.Equal(t, zqe.OutOfGPUMem, xerr.Code)
	assert.True(t, xerr.MultifragLaunch)

	cfg.Exec.AllowMultifrag = false
	_, err = x.ExecuteWorkUnit(context.Background(), cfg)
	require.True(t, errors.As(err, &xerr), "%v", err)
	assert.False(t, xerr.MultifragLaunch)

	conf := exec.DefaultConfig()
	conf.Device = exec.GPU
	out, err := query(t, newEngine(t, conf, x, c), filter)
	require.NoError(t, err)
	assert.Equal(t, 5, out.NumRows())

	conf.AllowCPURetry = false
	_, err = query(t, newEngine(t, conf, x, c), filter)
	assert.True(t, zqe.IsKind(err, zqe.ResourceExhausted), "%v", err)
}

func TestCPUOutOfMemory(t *testing.T) {
	c := testCatalog()
	e := newEngine(t, exec.DefaultConfig(), New(Config{CPUMemory: 64}, c, nil), c)
	scan := &plan.Scan{Base: plan.In(1), Table: "t"}
	_, err := query(t, e, &plan.Filter{Base: plan.In(2, scan)})
	assert.True(t, zqe.IsKind(err, zqe.ResourceExhausted), "%v", err)
	assert.ErrorContains(t, err, "ERR_OUT_OF_CPU_MEM")
}

func TestDeviceRules(t *testing.T) {
	c := testCatalog()
	scan := &plan.Scan{Base: plan.In(1), Table: "t"}
	gpu := func(x *Executor, n plan.Node) error {
		cfg := cpu()
		cfg.WorkUnit = unit(t, c, n)
		cfg.Compile.Device = exec.GPU
		_, err := x.ExecuteWorkUnit(context.Background(), cfg)
		return err
	}
	filter := &plan.Filter{Base: plan.In(2, scan)}
	assert.ErrorIs(t, gpu(New(Config{}, c, nil), filter), exec.ErrMustRunOnCPU)
	assert.NoError(t, gpu(New(Config{GPUMemory: 1 << 20}, c, nil), filter))

	window := &plan.Project{
		Base:  plan.In(2, scan),
		Exprs: []plan.Expr{&plan.WindowFunc{Op: "row_number"}},
	}
	assert.ErrorIs(t, gpu(New(Config{GPUMemory: 1 << 20}, c, nil), window), exec.ErrMustRunOnCPU)
}

func TestLikeNeedsInterop(t *testing.T) {
	c := testCatalog()
	scan := &plan.Scan{Base: plan.In(1), Table: "t"}
	filter := &plan.Filter{Base: plan.In(2, scan), Condition: bin("LIKE", col(1), lit("b%"))}
	cfg := cpu()
	cfg.WorkUnit = unit(t, c, filter)
	x := New(Config{}, c, nil)
	_, err := x.ExecuteWorkUnit(context.Background(), cfg)
	assert.ErrorIs(t, err, exec.ErrNativeExecution)

	cfg.Exec.Executor = exec.Extern
	out, err := x.ExecuteWorkUnit(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 5, out.NumRows())

	_, err = query(t, newEngine(t, exec.DefaultConfig(), x, c), filter)
	assert.True(t, zqe.IsKind(err, zqe.NativeCodegen), "%v", err)

	conf := exec.DefaultConfig()
	conf.EnableInterop = true
	out, err = query(t, newEngine(t, conf, x, c), filter)
	require.NoError(t, err)
	assert.Equal(t, 5, out.NumRows())
}

func TestArithmeticErrors(t *testing.T) {
	c := testCatalog()
	e := newEngine(t, exec.DefaultConfig(), New(Config{}, c, nil), c)
	scan := &plan.Scan{Base: plan.In(1), Table: "t"}
	project := &plan.Project{Base: plan.In(2, scan), Exprs: []plan.Expr{bin("/", col(0), lit(0))}}
	_, err := query(t, e, project)
	assert.True(t, zqe.IsKind(err, zqe.Invalid), "%v", err)
	assert.ErrorContains(t, err, "ERR_DIV_BY_ZERO")

	overflow := &plan.Project{Base: plan.In(2, scan), Exprs: []plan.Expr{bin("+", col(0), lit(int64(1<<63-1)))}}
	_, err = query(t, e, overflow)
	assert.ErrorContains(t, err, "ERR_OVERFLOW_OR_UNDERFLOW")
}

func TestGroupsBufferGuess(t *testing.T) {
	c := testCatalog()
	x := New(Config{}, c, nil)
	scan := &plan.Scan{Base: plan.In(1), Table: "t"}
	compound := &plan.Compound{
		Base:    plan.In(2, scan),
		GroupBy: []plan.Expr{col(0)},
		Targets: []plan.Expr{col(0), &plan.AggExpr{Op: "count"}},
	}
	cfg := cpu()
	cfg.WorkUnit = unit(t, c, compound)
	cfg.GroupsBufferEntryGuess = 4
	_, err := x.ExecuteWorkUnit(context.Background(), cfg)
	var cer *exec.CardinalityEstimationRequired
	require.True(t, errors.As(err, &cer), "%v", err)
	assert.EqualValues(t, 10, cer.Range)

	cfg.HasCardinalityEstimation = true
	_, err = x.ExecuteWorkUnit(context.Background(), cfg)
	var xerr *zqe.ExecError
	require.True(t, errors.As(err, &xerr), "%v", err)
	assert.True(t, xerr.OutOfSlots())

	cfg.GroupsBufferEntryGuess = 10
	out, err := x.ExecuteWorkUnit(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 10, out.NumRows())
}

func TestNDVEstimate(t *testing.T) {
	c := testCatalog()
	x := New(Config{}, c, nil)
	scan := &plan.Scan{Base: plan.In(1), Table: "t"}
	compound := &plan.Compound{
		Base:    plan.In(2, scan),
		GroupBy: []plan.Expr{col(0)},
		Targets: []plan.Expr{col(0)},
	}
	wu := unit(t, c, compound)
	ndv, err := x.NDVEstimate(context.Background(), wu, 0, exec.CompileOptions{}, exec.ExecOptions{})
	require.NoError(t, err)
	assert.InDelta(t, 10, float64(ndv), 1)

	ndv, err = x.NDVEstimate(context.Background(), wu, 3, exec.CompileOptions{}, exec.ExecOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, ndv)
}

func TestCountAll(t *testing.T) {
	c := testCatalog()
	x := New(Config{}, c, nil)
	scan := &plan.Scan{Base: plan.In(1), Table: "t"}
	filter := &plan.Filter{Base: plan.In(2, scan), Condition: bin("=", col(1), lit("b"))}
	n, err := x.CountAll(context.Background(), unit(t, c, filter), exec.CompileOptions{}, exec.ExecOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	n, err = x.CountAll(context.Background(), unit(t, c, filter), exec.CompileOptions{}, exec.ExecOptions{OuterFragments: []int{1}})
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestJoins(t *testing.T) {
	c := testCatalog()
	e := newEngine(t, exec.DefaultConfig(), New(Config{}, c, nil), c)
	cases := []struct {
		name     string
		typ      plan.JoinType
		expected [][]any
	}{
		{"inner", plan.InnerJoin, [][]any{{"x", int64(10)}, {"z", int64(30)}, {"z", int64(31)}}},
		{"left", plan.LeftJoin, [][]any{{"x", int64(10)}, {"y", nil}, {"z", int64(30)}, {"z", int64(31)}}},
		{"semi", plan.SemiJoin, [][]any{{"x", nil}, {"z", nil}}},
		{"anti", plan.AntiJoin, [][]any{{"y", nil}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			l := &plan.Scan{Base: plan.In(1), Table: "l"}
			r := &plan.Scan{Base: plan.In(2), Table: "r"}
			join := &plan.Join{
				Base:      plan.In(3, l, r),
				Type:      c.typ,
				Condition: bin("=", &plan.Column{Input: 0, Index: 0}, &plan.Column{Input: 1, Index: 0}),
			}
			project := &plan.Project{
				Base:  plan.In(4, join),
				Exprs: []plan.Expr{&plan.Column{Input: 0, Index: 1}, &plan.Column{Input: 1, Index: 1}},
			}
			out, err := query(t, e, project)
			require.NoError(t, err)
			assert.Equal(t, []string{"name", "score"}, out.Schema().Names())
			assert.Equal(t, c.expected, out.Rows())
		})
	}
}

func TestWindowFunctions(t *testing.T) {
	c := testCatalog()
	e := newEngine(t, exec.DefaultConfig(), New(Config{}, c, nil), c)
	scan := &plan.Scan{Base: plan.In(1), Table: "t"}
	project := &plan.Project{
		Base: plan.In(2, scan),
		Exprs: []plan.Expr{
			col(0),
			&plan.WindowFunc{Op: "row_number", PartitionBy: []plan.Expr{col(1)}, OrderBy: []plan.SortField{{Field: 0, Desc: true}}},
			&plan.WindowFunc{Op: "sum", Args: []plan.Expr{col(2)}, PartitionBy: []plan.Expr{col(1)}},
		},
	}
	out, err := query(t, e, project)
	require.NoError(t, err)
	expected := [][]any{
		{int64(0), int64(5), 20.0},
		{int64(1), int64(5), 25.0},
		{int64(2), int64(4), 20.0},
		{int64(3), int64(4), 25.0},
		{int64(4), int64(3), 20.0},
		{int64(5), int64(3), 25.0},
		{int64(6), int64(2), 20.0},
		{int64(7), int64(2), 25.0},
		{int64(8), int64(1), 20.0},
		{int64(9), int64(1), 25.0},
	}
	assert.Equal(t, expected, out.Rows())
}

func TestRankWithPeers(t *testing.T) {
	c := testCatalog()
	x := New(Config{}, c, nil)
	scan := &plan.Scan{Base: plan.In(1), Table: "t"}
	order := []plan.SortField{{Field: 1}}
	project := &plan.Project{
		Base: plan.In(2, scan),
		Exprs: []plan.Expr{
			&plan.WindowFunc{Op: "rank", OrderBy: order},
			&plan.WindowFunc{Op: "dense_rank", OrderBy: order},
			&plan.WindowFunc{Op: "count", OrderBy: order},
		},
	}
	cfg := cpu()
	cfg.WorkUnit = unit(t, c, project)
	out, err := x.ExecuteWorkUnit(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(1), int64(5)}, out.Row(0))
	assert.Equal(t, []any{int64(6), int64(2), int64(10)}, out.Row(1))
}

func TestGenerateSeries(t *testing.T) {
	c := testCatalog()
	e := newEngine(t, exec.DefaultConfig(), New(Config{}, c, nil), c)
	fn := &plan.TableFunction{
		Base:     plan.In(1),
		Function: "generate_series",
		Args:     []plan.Expr{lit(int64(1)), lit(int64(10)), lit(int64(3))},
		Names:    []string{"n"},
	}
	out, err := query(t, e, fn)
	require.NoError(t, err)
	assert.Equal(t, []string{"n"}, out.Schema().Names())
	assert.Equal(t, [][]any{{int64(1)}, {int64(4)}, {int64(7)}, {int64(10)}}, out.Rows())

	down := &plan.TableFunction{Base: plan.In(1), Function: "generate_series", Args: []plan.Expr{lit(int64(3)), lit(int64(1)), lit(int64(-1))}}
	out, err = query(t, e, down)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(3)}, {int64(2)}, {int64(1)}}, out.Rows())

	unknown := &plan.TableFunction{Base: plan.In(1), Function: "generate_serie"}
	_, err = query(t, e, unknown)
	assert.ErrorContains(t, err, `did you mean "generate_series"?`)

	small := newEngine(t, exec.DefaultConfig(), New(Config{CPUMemory: 16}, c, nil), c)
	_, err = query(t, small, fn)
	assert.True(t, zqe.IsKind(err, zqe.ResourceExhausted), "%v", err)
}

func TestSubqueryBecomesLiteral(t *testing.T) {
	c := testCatalog()
	e := newEngine(t, exec.DefaultConfig(), New(Config{}, c, nil), c)
	inner := &plan.Compound{
		Base:    plan.In(11, &plan.Scan{Base: plan.In(10), Table: "t"}),
		Targets: []plan.Expr{&plan.AggExpr{Op: "avg", Arg: col(2)}},
	}
	scan := &plan.Scan{Base: plan.In(1), Table: "t"}
	filter := &plan.Filter{Base: plan.In(2, scan), Condition: bin(">", col(2), &plan.Subquery{Root: inner})}
	out, err := query(t, e, filter)
	require.NoError(t, err)
	assert.Equal(t, 5, out.NumRows())
	assert.Equal(t, int64(5), out.Value(0, 0))
}

func TestTranslatorRejections(t *testing.T) {
	c := testCatalog()
	scan := &plan.Scan{Base: plan.In(1), Table: "t"}
	info, err := c.TableInfo("t")
	require.NoError(t, err)
	inputs := []exec.InputDesc{{Node: scan, Table: "t", Schema: info.Schema}}
	cases := []struct {
		name string
		node plan.Node
		msg  string
	}{
		{"non boolean filter", &plan.Filter{Base: plan.In(2, scan), Condition: col(0)}, "not boolean"},
		{"column out of range", &plan.Project{Base: plan.In(2, scan), Exprs: []plan.Expr{col(7)}}, "out of range"},
		{"string arithmetic", &plan.Project{Base: plan.In(2, scan), Exprs: []plan.Expr{bin("+", col(1), lit(1))}}, "numeric"},
		{"unknown aggregate", &plan.Compound{Base: plan.In(2, scan), Targets: []plan.Expr{&plan.AggExpr{Op: "cout"}}}, `did you mean "count"?`},
		{"multi row subquery", &plan.Filter{Base: plan.In(2, scan), Condition: bin("=", col(0), &plan.Subquery{Root: multiRow()})}, "more than one row"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := NewTranslator().Translate(c.node, inputs)
			assert.True(t, zqe.IsKind(err, zqe.Invalid), "%v", err)
			assert.ErrorContains(t, err, c.msg)
		})
	}
}

func multiRow() plan.Node {
	n := &plan.LogicalValues{Base: plan.In(20)}
	n.SetContextResult(table.MustNew(table.Schema{{Name: "x", Type: table.Int64}}, [][]any{{1}, {2}}))
	return n
}

func TestInterruptAndDeadline(t *testing.T) {
	c := testCatalog()
	x := New(Config{}, c, nil)
	scan := &plan.Scan{Base: plan.In(1), Table: "t"}
	cfg := cpu()
	cfg.WorkUnit = unit(t, c, &plan.Filter{Base: plan.In(2, scan)})
	code := func(ctx context.Context) zqe.Code {
		_, err := x.ExecuteWorkUnit(ctx, cfg)
		var xerr *zqe.ExecError
		require.True(t, errors.As(err, &xerr), "%v", err)
		return xerr.Code
	}

	x.Interrupter().Interrupt()
	_, err := x.ExecuteWorkUnit(context.Background(), cfg)
	assert.NoError(t, err, "interrupt is ignored without the dynamic watchdog")
	cfg.Compile.WithDynamicWatchdog = true
	assert.Equal(t, zqe.Interrupt, code(context.Background()))
	assert.Error(t, x.Interrupter().CheckInterrupt())
	x.Interrupter().ResetInterrupt()
	assert.NoError(t, x.Interrupter().CheckInterrupt())

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	assert.Equal(t, zqe.OutOfTime, code(ctx))
}

func TestUnionAll(t *testing.T) {
	c := testCatalog()
	e := newEngine(t, exec.DefaultConfig(), New(Config{}, c, nil), c)
	s1 := &plan.Scan{Base: plan.In(1), Table: "t"}
	s2 := &plan.Scan{Base: plan.In(2), Table: "t"}
	low := &plan.Filter{Base: plan.In(3, s1), Condition: bin("<", col(0), lit(2))}
	high := &plan.Filter{Base: plan.In(4, s2), Condition: bin(">", col(0), lit(8))}
	union := &plan.LogicalUnion{Base: plan.In(5, low, high), All: true}
	compound := &plan.Compound{Base: plan.In(6, union), Targets: []plan.Expr{&plan.AggExpr{Op: "sum", Arg: col(0)}}}
	out, err := query(t, e, compound)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(10)}}, out.Rows())
}

func TestJustExplain(t *testing.T) {
	c := testCatalog()
	e := newEngine(t, exec.DefaultConfig(), New(Config{}, c, nil), c)
	scan := &plan.Scan{Base: plan.In(1), Table: "t"}
	conf := e.Config()
	eo := exec.DefaultExecOptions(conf)
	eo.JustExplain = true
	res, err := e.ExecuteQuery(context.Background(), &plan.Filter{Base: plan.In(2, scan)}, exec.DefaultCompileOptions(conf), eo)
	require.NoError(t, err)
	assert.Contains(t, res.Explanation, "device=cpu executor=native")
}

func TestLike(t *testing.T) {
	cases := []struct {
		s, pattern string
		match      bool
	}{
		{"banana", "b%", true},
		{"banana", "%nan%", true},
		{"banana", "b_n_n_", true},
		{"banana", "b_n", false},
		{"", "%", true},
		{"abc", "a%d", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.match, like(c.s, c.pattern), "%q like %q", c.s, c.pattern)
	}
}
