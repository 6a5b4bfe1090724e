package exec

import (
	"context"

	"github.com/brimdata/raexec/compiler/sequence"
	"github.com/brimdata/raexec/errors"
	"github.com/brimdata/raexec/plan"
	"go.uber.org/zap"
)

// dispatchSubqueries executes the subqueries of root, nested ones first,
// and attaches each result to its subquery's root node. Subqueries that
// already carry a result are skipped.
func (r *run) dispatchSubqueries(ctx context.Context, root plan.Node, co CompileOptions, eo ExecOptions) error {
	eo.JustExplain = false
	eo.OuterFragments = nil
	for _, sq := range plan.Subqueries(root) {
		if sq.Root == nil {
			return zqe.ErrInvalid("subquery has no plan")
		}
		if sq.Root.ContextResult() != nil {
			continue
		}
		r.logger.Debug("Executing subquery", zap.Uint("id", sq.Root.ID()))
		seq, err := sequence.New(sq.Root)
		if err != nil {
			return err
		}
		child := &run{
			Engine: r.Fork(),
			logger: r.logger.With(zap.Uint("subquery", sq.Root.ID())),
		}
		res, err := child.executeSequence(ctx, seq, co, eo)
		if err != nil {
			return err
		}
		if res == nil || res.Table == nil {
			return zqe.ErrInternal("subquery %s produced no result", sq.Root)
		}
		sq.Root.SetContextResult(res.Table)
	}
	return nil
}
