package sequence

import (
	"testing"

	"github.com/brimdata/raexec/errors"
	"github.com/brimdata/raexec/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(nodes []plan.Node) []uint {
	var out []uint
	for _, n := range nodes {
		out = append(out, n.ID())
	}
	return out
}

func bodyIDs(s *Sequence) []uint {
	var out []uint
	for i := 0; i < s.Len(); i++ {
		out = append(out, s.Descriptor(i).Body().ID())
	}
	return out
}

func TestSortAbsorbsProject(t *testing.T) {
	scan := &plan.Scan{Base: plan.In(1), Table: "t"}
	project := &plan.Project{Base: plan.In(2, scan), Exprs: []plan.Expr{&plan.Column{Index: 0}}}
	sort := &plan.Sort{Base: plan.In(3, project), Collation: []plan.SortField{{Field: 0}}}

	s, err := New(sort)
	require.NoError(t, err)
	assert.Equal(t, []uint{3}, bodyIDs(s))
	assert.Equal(t, 1, s.ScanCount())
	assert.Equal(t, AbsorbedSortInput, s.Absorbed(project))
	steps, absorbed, scans := s.Partition()
	assert.Equal(t, []uint{3}, ids(steps))
	assert.Equal(t, []uint{2}, ids(absorbed))
	assert.Equal(t, []uint{1}, ids(scans))
}

func TestSortOfCompoundIsOneStep(t *testing.T) {
	scan := &plan.Scan{Base: plan.In(1), Table: "t"}
	compound := &plan.Compound{
		Base:    plan.In(2, scan),
		GroupBy: []plan.Expr{&plan.Column{Index: 0}},
		Targets: []plan.Expr{&plan.Column{Index: 0}, &plan.AggExpr{Op: "count"}},
	}
	sort := &plan.Sort{Base: plan.In(3, compound), Collation: []plan.SortField{{Field: 1, Desc: true}}, Limit: 10}
	s, err := New(sort)
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())
	assert.Same(t, sort, s.Descriptor(0).Body())
}

func TestSortRejections(t *testing.T) {
	scan := &plan.Scan{Base: plan.In(1), Table: "t"}
	_, err := New(&plan.Sort{Base: plan.In(2, scan)})
	assert.True(t, zqe.IsKind(err, zqe.PlanStructure), "%v", err)

	filter := &plan.Filter{Base: plan.In(2, scan)}
	sort := &plan.Sort{Base: plan.In(3, filter)}
	project := &plan.Project{Base: plan.In(4, filter)}
	_, err = New(&plan.LogicalUnion{Base: plan.In(5, sort, project), All: true})
	assert.True(t, zqe.IsKind(err, zqe.PlanStructure), "%v", err)
	assert.ErrorContains(t, err, "used by other operators")
}

func TestJoinAbsorption(t *testing.T) {
	a := &plan.Scan{Base: plan.In(1), Table: "a"}
	b := &plan.Scan{Base: plan.In(2), Table: "b"}
	t.Run("left deep join", func(t *testing.T) {
		join := &plan.LeftDeepInnerJoin{Base: plan.In(3, a, b)}
		compound := &plan.Compound{Base: plan.In(4, join), Targets: []plan.Expr{&plan.Column{Index: 0}}}
		s, err := New(compound)
		require.NoError(t, err)
		steps, absorbed, scans := s.Partition()
		assert.Equal(t, []uint{4}, ids(steps))
		assert.Equal(t, []uint{3}, ids(absorbed))
		assert.ElementsMatch(t, []uint{1, 2}, ids(scans))
		assert.Equal(t, 2, s.ScanCount())
	})
	t.Run("join with one consumer", func(t *testing.T) {
		join := &plan.Join{Base: plan.In(3, a, b)}
		s, err := New(&plan.Project{Base: plan.In(4, join)})
		require.NoError(t, err)
		assert.Equal(t, []uint{4}, bodyIDs(s))
		assert.Equal(t, AbsorbedJoin, s.Absorbed(join))
	})
	t.Run("join used twice", func(t *testing.T) {
		join := &plan.Join{Base: plan.In(3, a, b)}
		left := &plan.Project{Base: plan.In(4, join)}
		right := &plan.Filter{Base: plan.In(5, join)}
		_, err := New(&plan.LogicalUnion{Base: plan.In(6, left, right), All: true})
		assert.True(t, zqe.IsKind(err, zqe.PlanStructure), "%v", err)
	})
	t.Run("chained joins", func(t *testing.T) {
		inner := &plan.Join{Base: plan.In(3, a, b)}
		outer := &plan.Join{Base: plan.In(4, inner, a)}
		_, err := New(&plan.Project{Base: plan.In(5, outer)})
		assert.True(t, zqe.IsKind(err, zqe.PlanStructure), "%v", err)
	})
	t.Run("join root", func(t *testing.T) {
		_, err := New(&plan.Join{Base: plan.In(3, a, b)})
		assert.True(t, zqe.IsKind(err, zqe.PlanStructure), "%v", err)
	})
}

// diamond builds a plan where two branches over separate scans meet in a
// union under an aggregate.
func diamond() plan.Node {
	s1 := &plan.Scan{Base: plan.In(1), Table: "a"}
	s2 := &plan.Scan{Base: plan.In(2), Table: "b"}
	f1 := &plan.Filter{Base: plan.In(3, s1)}
	p1 := &plan.Project{Base: plan.In(4, f1)}
	f2 := &plan.Filter{Base: plan.In(5, s2)}
	union := &plan.LogicalUnion{Base: plan.In(6, p1, f2), All: true}
	return &plan.Aggregate{Base: plan.In(7, union), GroupBy: []int{0}}
}

func TestPartitionAndAncestorOrder(t *testing.T) {
	s, err := New(diamond())
	require.NoError(t, err)
	steps, absorbed, scans := s.Partition()
	assert.Len(t, steps, 5)
	assert.Empty(t, absorbed)
	assert.Len(t, scans, 2)
	assert.Equal(t, s.Graph().Len(), len(steps)+len(absorbed)+len(scans))
	assert.Equal(t, 5, s.TotalDescriptors())

	pos := make(map[uint]int)
	for i, n := range steps {
		pos[n.ID()] = i
	}
	for i, n := range steps {
		for _, in := range n.Inputs() {
			if p, ok := pos[in.ID()]; ok {
				assert.Less(t, p, i, "%s must precede %s", in, n)
			}
		}
	}
}

func TestNextAfterExhaustion(t *testing.T) {
	s, err := NewLazy(diamond())
	require.NoError(t, err)
	var n int
	for s.Next() != nil {
		n++
	}
	assert.Equal(t, 5, n)
	assert.Nil(t, s.Next())
	assert.Nil(t, s.Next())
	assert.Equal(t, 5, s.Len())
	assert.True(t, s.ExecutionFinished())
	_, ok := s.NextStepID(false)
	assert.False(t, ok)
	assert.Equal(t, s.Descriptor(3), s.Prev())
}

func TestDescriptorByBodyID(t *testing.T) {
	s, err := New(diamond())
	require.NoError(t, err)
	last := s.Len() - 1
	for i := 0; i < s.Len(); i++ {
		d := s.Descriptor(i)
		assert.Same(t, d, s.DescriptorByBodyID(d.Body().ID(), last))
		assert.Same(t, d, s.DescriptorByBodyID(d.Body().ID(), i))
	}
	lastID := s.Descriptor(last).Body().ID()
	assert.Nil(t, s.DescriptorByBodyID(lastID, last-1))
	assert.Nil(t, s.DescriptorByBodyID(999, last))
}

func TestBroadcastBoundaries(t *testing.T) {
	scan := &plan.Scan{Base: plan.In(1), Table: "t"}
	filter := &plan.Filter{Base: plan.In(2, scan)}
	t.Run("pipeline", func(t *testing.T) {
		s, err := NewLazy(&plan.Project{Base: plan.In(3, filter)})
		require.NoError(t, err)
		assert.Equal(t, 2, s.TotalDescriptors())
		assert.False(t, s.ExecutionFinished())
		next, ok := s.NextStepID(true)
		require.True(t, ok)
		assert.Equal(t, 0, next)

		require.NotNil(t, s.Next())
		assert.Equal(t, 1, s.StepsToNextBroadcast())
		next, ok = s.NextStepID(false)
		require.True(t, ok)
		assert.Equal(t, 1, next)
		assert.True(t, s.ExecutionFinished())
	})
	t.Run("window project", func(t *testing.T) {
		project := &plan.Project{
			Base:  plan.In(3, filter),
			Exprs: []plan.Expr{&plan.WindowFunc{Op: "row_number"}},
		}
		s, err := NewLazy(&plan.Aggregate{Base: plan.In(4, project), GroupBy: []int{0}})
		require.NoError(t, err)
		require.NotNil(t, s.Next())
		assert.Equal(t, 2, s.StepsToNextBroadcast())
	})
	t.Run("single step", func(t *testing.T) {
		s, err := NewLazy(filter)
		require.NoError(t, err)
		assert.True(t, s.ExecutionFinished())
	})
}

func TestFromDescriptor(t *testing.T) {
	body := &plan.Filter{Base: plan.In(1)}
	s := FromDescriptor(NewDescriptor(body))
	assert.Equal(t, 1, s.Len())
	assert.Nil(t, s.Next())
	assert.True(t, s.ExecutionFinished())
	assert.Equal(t, NotAbsorbed, s.Absorbed(body))
}

func TestExplain(t *testing.T) {
	a := &plan.Scan{Base: plan.In(1), Table: "a"}
	b := &plan.Scan{Base: plan.In(2), Table: "b"}
	join := &plan.LeftDeepInnerJoin{Base: plan.In(3, a, b)}
	compound := &plan.Compound{Base: plan.In(4, join), Targets: []plan.Expr{&plan.Column{Index: 0}}}
	project := &plan.Project{Base: plan.In(5, compound), Exprs: []plan.Expr{&plan.Column{Index: 0}}}
	sort := &plan.Sort{Base: plan.In(6, project), Limit: 5}
	s, err := New(&plan.Filter{Base: plan.In(7, sort)})
	require.NoError(t, err)
	expected := "3 : Filter(#7, condition=true, inputs=[#6])\n" +
		"\t2 : Sort(#6, collation=[], limit=5, inputs=[#5])\n" +
		"\t  : Project(#5, exprs=[$0], inputs=[#4])\n" +
		"\t\t1 : Compound(#4, targets=[$0], inputs=[#3])\n" +
		"\t\t  : LeftDeepInnerJoin(#3, condition=true, inputs=[#1 #2])\n"
	assert.Equal(t, expected, s.Explain())
}
