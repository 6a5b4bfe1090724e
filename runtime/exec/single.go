package exec

import (
	"context"

	"github.com/brimdata/raexec/compiler/sequence"
	"github.com/brimdata/raexec/errors"
	"github.com/brimdata/raexec/plan"
)

// MergeType tells a coordinator how to combine the partial results that
// compute leaves return for a step.
type MergeType int

const (
	MergeUnion MergeType = iota
	MergeReduce
)

func (m MergeType) String() string {
	if m == MergeReduce {
		return "reduce"
	}
	return "union"
}

type StepResult struct {
	Result *sequence.Result
	Merge  MergeType
	// NodeID is the node whose result Result holds. It differs from the
	// step's body when only the input of a sort was executed.
	NodeID uint
}

func mergeType(n plan.Node) MergeType {
	if plan.IsAggregate(n) {
		return MergeReduce
	}
	return MergeUnion
}

// ExecuteSingleStep executes step i of seq on behalf of a coordinator.
// Steps run in order must already have published their results in the
// engine's registry. For a sort whose result must be merged before it can
// be ordered, only the sort's input is executed.
func (e *Engine) ExecuteSingleStep(ctx context.Context, seq *sequence.Sequence, i int, co CompileOptions, eo ExecOptions) (*StepResult, error) {
	r := e.newRun()
	d := seq.Descriptor(i)
	if d == nil {
		return nil, zqe.ErrInternal("step %d out of range", i)
	}
	body := d.Body()
	if s, ok := body.(*plan.Sort); ok {
		source := s.Input(0)
		if _, ok := source.(*plan.Sort); ok {
			return nil, zqe.ErrPlanStructure("sort of a sort is not supported")
		}
		if len(s.Collation) > 0 || plan.IsAggregate(source) {
			eo.JustValidate = eo.JustValidate || s.EmptyResult
			sub := sequence.FromDescriptor(sequence.NewDescriptor(source))
			if err := r.executeStepWithRetry(ctx, sub, 0, co, eo, false); err != nil {
				return nil, err
			}
			return &StepResult{
				Result: sub.Descriptor(0).Result(),
				Merge:  mergeType(source),
				NodeID: source.ID(),
			}, nil
		}
	}
	if err := r.executeStepWithRetry(ctx, seq, i, co, eo, false); err != nil {
		return nil, err
	}
	return &StepResult{
		Result: d.Result(),
		Merge:  mergeType(body),
		NodeID: body.ID(),
	}, nil
}
