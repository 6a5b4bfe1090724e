package exec

import (
	"context"
	"errors"
	"sync"

	"github.com/brimdata/raexec/compiler/sequence"
	"github.com/brimdata/raexec/errors"
	"github.com/brimdata/raexec/plan"
	"go.uber.org/zap"
)

// topNBlacklist records the work units for which speculative top-n
// failed so that they are not attempted again.
type topNBlacklist struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newTopNBlacklist() *topNBlacklist {
	return &topNBlacklist{keys: make(map[string]struct{})}
}

func (b *topNBlacklist) add(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys[key] = struct{}{}
}

func (b *topNBlacklist) contains(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.keys[key]
	return ok
}

// executeSort executes the input of s with the sort attached and then
// applies the collation, offset and limit to the result.
func (r *run) executeSort(ctx context.Context, s *plan.Sort, co CompileOptions, eo ExecOptions) (*sequence.Result, error) {
	source := s.Input(0)
	if _, ok := source.(*plan.Sort); ok {
		return nil, zqe.ErrPlanStructure("sort of a sort is not supported")
	}
	eo.JustValidate = eo.JustValidate || s.EmptyResult
	for {
		wu, err := r.createSortInputWorkUnit(s)
		if err != nil {
			return nil, err
		}
		res, err := r.executeWorkUnit(ctx, wu, co, eo, 0)
		if errors.Is(err, ErrSpeculativeTopNFailed) && wu.Sort.Algorithm == SortSpeculativeTopN {
			r.logger.Info("Speculative top-n failed, retrying with default sort", zap.Uint("id", s.ID()))
			r.metrics.retry(rungTopN)
			r.topN.add(wu.Fingerprint())
			continue
		}
		if err != nil {
			return nil, err
		}
		source.SetOutputMeta(res.Schema)
		if eo.JustExplain || res.Table == nil {
			return res, nil
		}
		t := res.Table
		if len(s.Collation) > 0 && t.NumRows() > 0 && wu.Sort.Algorithm != SortSpeculativeTopN {
			var topN uint64
			if s.Limit != 0 {
				topN = s.Limit + s.Offset
			}
			t = t.Sort(plan.SortKeys(s.Collation), topN)
		}
		if s.Limit != 0 || s.Offset != 0 {
			t = t.Slice(s.Offset, s.Limit)
		}
		res.Table = t
		return res, nil
	}
}

func (r *run) createSortInputWorkUnit(s *plan.Sort) (*WorkUnit, error) {
	source := s.Input(0)
	wu, err := r.createWorkUnit(source, SortInfo{
		Collation: s.Collation,
		Limit:     s.Limit,
		Offset:    s.Offset,
	})
	if err != nil {
		return nil, err
	}
	if len(s.Collation) == 0 && s.Limit != 0 && !plan.IsAggregate(source) {
		wu.ScanLimit = s.Limit + s.Offset
		wu.GroupsBufferEntryGuess = wu.ScanLimit
	}
	if len(s.Collation) == 1 && s.Limit != 0 && wu.IsAggregate() && !r.topN.contains(wu.Fingerprint()) {
		wu.Sort.Algorithm = SortSpeculativeTopN
	}
	return wu, nil
}

