package exec

import (
	"context"
	"errors"

	"github.com/brimdata/raexec/compiler/sequence"
	"github.com/brimdata/raexec/errors"
	"github.com/brimdata/raexec/plan"
	"github.com/brimdata/raexec/runtime/exec/cardcache"
	"github.com/brimdata/raexec/table"
	"go.uber.org/zap"
)

// executeWorkUnit sizes the output of wu and runs it through the
// cardinality and memory recovery ladder. prev is the known row count of
// the unit's input, or zero.
func (r *run) executeWorkUnit(ctx context.Context, wu *WorkUnit, co CompileOptions, eo ExecOptions, prev uint64) (*sequence.Result, error) {
	if wu.HasWindowFunctions() {
		if !r.conf.EnableWindowFunctions {
			return nil, zqe.ErrInvalid("window function support is disabled")
		}
		co = co.CPUOnly()
		co.AllowLazyFetch = false
	}
	if !wu.IsAggregate() && wu.Body.Kind() != plan.KindLogicalUnion && (wu.ScanLimit == 0 || wu.ScanLimit > highScanLimit) {
		if err := r.sizeOutput(ctx, wu, co, eo, prev); err != nil {
			return nil, err
		}
	}
	if _, ok := wu.Body.(*plan.Project); ok && !eo.OutputColumnar && wu.ScanLimit >= r.conf.ColumnarLargeProjectionsThreshold {
		r.logger.Debug("Using columnar output for large projection", zap.Uint64("scan_limit", wu.ScanLimit))
		eo.OutputColumnar = true
	}
	guess := wu.GroupsBufferEntryGuess
	if guess == 0 {
		guess = r.conf.DefaultGroupsBufferEntryGuess
	}
	t, err := r.executeWithCardinality(ctx, wu, co, eo, guess)
	if err != nil {
		return nil, err
	}
	return newResult(t, wu, eo), nil
}

func newResult(t *table.Table, wu *WorkUnit, eo ExecOptions) *sequence.Result {
	res := &sequence.Result{Table: t, Schema: wu.Schema}
	if t != nil {
		res.Schema = t.Schema()
		if eo.JustExplain && t.NumRows() > 0 {
			if s, ok := t.Value(0, 0).(string); ok {
				res.Explanation = s
			}
		}
	}
	return res
}

// sizeOutput sets the scan limit of a projection that has none so the
// executor can size its output buffer.
func (r *run) sizeOutput(ctx context.Context, wu *WorkUnit, co CompileOptions, eo ExecOptions, prev uint64) error {
	switch {
	case prev > 0 && len(wu.Quals) == 0 && len(wu.JoinQuals) == 0:
		wu.ScanLimit = prev
	case r.canUseBumpAllocator(wu, co, eo):
		wu.ScanLimit = 0
		wu.UseBumpAllocator = true
	case eo.Executor == Extern:
		wu.ScanLimit = 0
	default:
		count, err := r.env.Executor.CountAll(ctx, wu, co, eo)
		if errors.Is(err, ErrMustRunOnCPU) {
			return err
		}
		if err != nil {
			r.logger.Warn("Failed to run pre-flight filtered count", zap.Error(err))
			return nil
		}
		if count == 0 {
			count = 1
		}
		wu.ScanLimit = count
	}
	return nil
}

func (r *run) canUseBumpAllocator(wu *WorkUnit, co CompileOptions, eo ExecOptions) bool {
	return r.conf.EnableBumpAllocator && co.Device == GPU && !eo.OutputColumnar && len(wu.Sort.Collation) == 0
}

// executeWithCardinality runs wu, estimating the number of groups when the
// executor asks for it. Estimates are cached under the unit's fingerprint
// and a cached value is always preferred over a new estimate.
func (r *run) executeWithCardinality(ctx context.Context, wu *WorkUnit, co CompileOptions, eo ExecOptions, guess uint64) (*table.Table, error) {
	key := wu.Fingerprint()
	hasCard := groupsUpperBound(wu) <= r.conf.BigGroupThreshold
	if card, ok := r.cachedCardinality(ctx, key); ok {
		r.logger.Debug("Using cached cardinality", zap.Uint64("cardinality", card))
		guess, hasCard = card, true
	}
	t, err := r.attempt(ctx, wu, co, eo, guess, hasCard, false)
	var cer *CardinalityEstimationRequired
	if !errors.As(err, &cer) {
		return t, err
	}
	card, cached := r.cachedCardinality(ctx, key)
	if !cached {
		card, err = r.estimateGroups(ctx, wu, cer.Range, co, eo)
		if err != nil {
			return nil, err
		}
	}
	t, err = r.attempt(ctx, wu, co, eo, card, true, true)
	if err != nil {
		if errors.As(err, &cer) {
			return nil, zqe.ErrInternal(err)
		}
		return nil, err
	}
	if !cached && !eo.JustValidate && !eo.JustExplain {
		r.storeCardinality(ctx, key, card)
	}
	return t, nil
}

func (r *run) cachedCardinality(ctx context.Context, key string) (uint64, bool) {
	card, ok, err := r.env.Cache.Get(ctx, key)
	if err != nil {
		r.logger.Warn("Cardinality cache lookup failed", zap.Error(err))
		return 0, false
	}
	return card, ok && card > 0
}

func (r *run) storeCardinality(ctx context.Context, key string, card uint64) {
	err := r.env.Cache.Put(ctx, key, card)
	switch {
	case errors.Is(err, cardcache.ErrConflict):
		r.logger.DPanic("Conflicting cardinality for work unit", zap.String("key", key), zap.Error(err))
	case err != nil:
		r.logger.Warn("Cardinality cache update failed", zap.Error(err))
	}
}

// estimateGroups returns a groups buffer guess of twice the estimated
// number of distinct group keys. When estimation fails it falls back to
// the input size bounded by EstimatorFailureMaxGroupBySize.
func (r *run) estimateGroups(ctx context.Context, wu *WorkUnit, rangeHint int64, co CompileOptions, eo ExecOptions) (uint64, error) {
	r.metrics.retry(rungNDV)
	ndv, err := r.env.Executor.NDVEstimate(ctx, wu, rangeHint, co, eo)
	if err != nil {
		if k := zqe.KindOf(err); k == zqe.Interrupted || k == zqe.TimedOut {
			return 0, err
		}
		r.logger.Warn("Cardinality estimation failed", zap.Error(err))
		ndv = 0
	}
	if ndv > 0 {
		r.logger.Info("Retrying with estimated cardinality", zap.Uint64("ndv", ndv))
		return 2 * ndv, nil
	}
	guess := groupsUpperBound(wu)
	if guess > r.conf.EstimatorFailureMaxGroupBySize {
		guess = r.conf.EstimatorFailureMaxGroupBySize
	}
	if guess == 0 {
		guess = 1
	}
	return guess, nil
}

// attempt runs wu once and classifies an executor code. Slot exhaustion
// before any cardinality estimate asks for one; other codes are either
// fatal or recovered by retryOutOfMemory.
func (r *run) attempt(ctx context.Context, wu *WorkUnit, co CompileOptions, eo ExecOptions, guess uint64, hasCard, hasNDV bool) (*table.Table, error) {
	t, err := r.dispatch(ctx, wu, co, eo, guess, hasCard)
	var xerr *zqe.ExecError
	if err == nil || !errors.As(err, &xerr) {
		return t, err
	}
	if xerr.OutOfSlots() && !hasNDV {
		return nil, &CardinalityEstimationRequired{}
	}
	if err := r.persistentError(xerr); err != nil {
		return nil, err
	}
	return r.retryOutOfMemory(ctx, wu, co, eo, guess, xerr.MultifragLaunch)
}

// persistentError returns nil for codes that can be recovered by
// retrying on the CPU and the fatal error for every other code.
func (r *run) persistentError(xerr *zqe.ExecError) error {
	if xerr.Code == zqe.OutOfGPUMem && r.conf.AllowCPURetry {
		r.logger.Warn("Query ran out of GPU memory", zap.Error(xerr))
		return nil
	}
	r.logger.Error("Query execution failed", zap.Int32("code", int32(xerr.Code)), zap.Error(xerr))
	if xerr.Code == zqe.OutOfGPUMem {
		return zqe.ErrResourceExhausted("query ran out of GPU memory, unable to automatically retry on CPU")
	}
	return xerr.Fatal()
}

// retryOutOfMemory recovers from memory exhaustion. A multi-fragment
// launch is first retried with one kernel per fragment on the same
// device. After that the unit moves to the CPU, where running out of
// output slots doubles the groups buffer guess at most MaxSlotEscalations
// times.
func (r *run) retryOutOfMemory(ctx context.Context, wu *WorkUnit, co CompileOptions, eo ExecOptions, guess uint64, multifrag bool) (*table.Table, error) {
	unit := *wu
	unit.UseBumpAllocator = false
	eo.AllowMultifrag = false
	eo.JustExplain = false
	if multifrag {
		r.logger.Warn("Multifrag query ran out of memory, retrying with multifragment kernels disabled")
		r.metrics.retry(rungSingleFragment)
		t, err := r.dispatch(ctx, &unit, co, eo, guess, true)
		if err == nil {
			return t, nil
		}
		var xerr *zqe.ExecError
		if !errors.As(err, &xerr) {
			return nil, err
		}
		if err := r.persistentError(xerr); err != nil {
			return nil, err
		}
		r.logger.Warn("Kernel per fragment query ran out of memory, retrying on CPU")
	}
	co = co.CPUOnly()
	guess = r.conf.MinGroupsBufferEntryGuess
	r.metrics.retry(rungCPU)
	for escalations := 0; ; escalations++ {
		t, err := r.dispatch(ctx, &unit, co, eo, guess, true)
		if err == nil {
			return t, nil
		}
		var xerr *zqe.ExecError
		if !errors.As(err, &xerr) {
			return nil, err
		}
		if !xerr.OutOfSlots() {
			// The unit already runs on the CPU, so no code is recoverable here.
			if err := r.persistentError(xerr); err != nil {
				return nil, err
			}
			return nil, xerr.Fatal()
		}
		if escalations >= r.conf.MaxSlotEscalations {
			return nil, zqe.ErrResourceExhausted("query ran out of output slots in the result")
		}
		guess *= 2
		r.metrics.retry(rungSlots)
		r.logger.Warn("Query ran out of slots in the output buffer, retrying", zap.Uint64("groups_buffer_entry_guess", guess))
	}
}

func (r *run) dispatch(ctx context.Context, wu *WorkUnit, co CompileOptions, eo ExecOptions, guess uint64, hasCard bool) (*table.Table, error) {
	if err := r.checkInterrupt(ctx, co); err != nil {
		return nil, err
	}
	return r.env.Executor.ExecuteWorkUnit(ctx, StepConfig{
		WorkUnit:                 wu,
		Compile:                  co,
		Exec:                     eo,
		GroupsBufferEntryGuess:   guess,
		HasCardinalityEstimation: hasCard,
	})
}
