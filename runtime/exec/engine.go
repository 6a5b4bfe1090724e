// Package exec runs the step sequence of a plan. Each step is turned into a
// work unit and handed to an Executor; failures the executor reports are
// recovered through a fixed ladder of fallbacks (CPU, interop, cardinality
// estimation, single fragment kernels, output slot doubling) before they
// reach the caller. Step results are published in a Registry so later
// steps can read them.
package exec

import (
	"context"
	"errors"

	"github.com/brimdata/raexec/compiler/sequence"
	"github.com/brimdata/raexec/errors"
	"github.com/brimdata/raexec/plan"
	"github.com/brimdata/raexec/runtime/exec/cardcache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

// Env bundles the collaborators of an Engine. Executor, Translator and
// Schemas are required.
type Env struct {
	Executor    Executor
	Translator  Translator
	Schemas     SchemaProvider
	Interrupter Interrupter
	Cache       CardinalityCache
	Logger      *zap.Logger
	Registerer  prometheus.Registerer
}

// An Engine executes one query at a time. Use Fork to run queries
// concurrently.
type Engine struct {
	conf     Config
	env      Env
	logger   *zap.Logger
	metrics  *metrics
	registry *Registry
	topN     *topNBlacklist
}

func New(conf Config, env Env) (*Engine, error) {
	if env.Executor == nil || env.Translator == nil || env.Schemas == nil {
		return nil, errors.New("exec: executor, translator and schema provider are required")
	}
	logger := env.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if env.Cache == nil {
		size := conf.CardinalityCacheSize
		if size <= 0 {
			size = DefaultConfig().CardinalityCacheSize
		}
		cache, err := cardcache.NewLocal(size, env.Registerer)
		if err != nil {
			return nil, err
		}
		env.Cache = cache
	}
	return &Engine{
		conf:     conf,
		env:      env,
		logger:   logger,
		metrics:  newMetrics(env.Registerer),
		registry: NewRegistry(),
		topN:     newTopNBlacklist(),
	}, nil
}

// Fork returns an engine with its own registry that shares configuration,
// collaborators, caches and metrics with e.
func (e *Engine) Fork() *Engine {
	return &Engine{
		conf:     e.conf,
		env:      e.env,
		logger:   e.logger,
		metrics:  e.metrics,
		registry: NewRegistry(),
		topN:     e.topN,
	}
}

func (e *Engine) Config() Config {
	return e.conf
}

func (e *Engine) Registry() *Registry {
	return e.registry
}

// ConstructSequence builds the fully materialized step sequence for root.
func (e *Engine) ConstructSequence(root plan.Node) (*sequence.Sequence, error) {
	return sequence.New(root)
}

// run carries the per-query logger.
type run struct {
	*Engine
	logger *zap.Logger
}

func (e *Engine) newRun() *run {
	return &run{
		Engine: e,
		logger: e.logger.With(zap.String("query_id", ksuid.New().String())),
	}
}

// ExecuteQuery executes the subqueries of root and then its sequence. A
// query that cannot run on the requested device is rerun on the CPU when
// the configuration allows it.
func (e *Engine) ExecuteQuery(ctx context.Context, root plan.Node, co CompileOptions, eo ExecOptions) (*sequence.Result, error) {
	r := e.newRun()
	res, err := r.executeQuery(ctx, root, co, eo)
	if zqe.IsKind(err, zqe.DeviceIncompatible) && co.Device != CPU && e.conf.AllowCPURetry {
		r.logger.Info("Query must run in CPU mode, retrying", zap.Error(err))
		r.metrics.retry(rungQueryCPU)
		return r.executeQuery(ctx, root, co.CPUOnly(), eo)
	}
	return res, err
}

func (r *run) executeQuery(ctx context.Context, root plan.Node, co CompileOptions, eo ExecOptions) (*sequence.Result, error) {
	seq, err := sequence.New(root)
	if err != nil {
		return nil, err
	}
	if err := r.dispatchSubqueries(ctx, root, co, eo); err != nil {
		return nil, err
	}
	return r.executeSequence(ctx, seq, co, eo)
}

// ExecuteSequence executes every step of seq and returns the result of
// the last one. With JustExplain only the first step runs, or the first
// two when the first is a VALUES step.
func (e *Engine) ExecuteSequence(ctx context.Context, seq *sequence.Sequence, co CompileOptions, eo ExecOptions) (*sequence.Result, error) {
	return e.newRun().executeSequence(ctx, seq, co, eo)
}

func (r *run) executeSequence(ctx context.Context, seq *sequence.Sequence, co CompileOptions, eo ExecOptions) (*sequence.Result, error) {
	if seq.Empty() {
		return nil, zqe.ErrPlanStructure("query has no executable steps")
	}
	r.registry.Clear()
	if r.env.Interrupter != nil && co.WithDynamicWatchdog {
		r.env.Interrupter.ResetInterrupt()
	}
	end := seq.Len()
	if eo.JustExplain {
		end = 1
		if _, ok := seq.Descriptor(0).Body().(*plan.LogicalValues); ok && seq.Len() > 1 {
			end = 2
		}
	}
	for i := 0; i < end; i++ {
		if err := r.executeStepWithRetry(ctx, seq, i, co, eo, true); err != nil {
			return nil, err
		}
	}
	return seq.Descriptor(end - 1).Result(), nil
}

// checkInterrupt fails on a canceled context. The interrupter is only
// consulted when the dynamic watchdog is on.
func (r *run) checkInterrupt(ctx context.Context, co CompileOptions) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return zqe.ErrTimedOut(err)
		}
		return zqe.ErrInterrupted(err)
	}
	if r.env.Interrupter != nil && co.WithDynamicWatchdog {
		if err := r.env.Interrupter.CheckInterrupt(); err != nil {
			if zqe.KindOf(err) == zqe.Other {
				err = zqe.ErrInterrupted(err)
			}
			return err
		}
	}
	return nil
}
