package dag

import (
	"testing"

	"github.com/brimdata/raexec/errors"
	"github.com/brimdata/raexec/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSelfJoinKeepsParallelEdges(t *testing.T) {
	scan := &plan.Scan{Base: plan.In(1), Table: "t"}
	filter := &plan.Filter{Base: plan.In(2, scan)}
	join := &plan.Join{Base: plan.In(3, filter, filter)}
	project := &plan.Project{Base: plan.In(4, join)}

	g, err := Build(project)
	require.NoError(t, err)
	assert.Equal(t, 4, g.Len())
	v, ok := g.Lookup(filter)
	require.True(t, ok)
	assert.Equal(t, 2, g.OutDegree(v))
	j, _ := g.Lookup(join)
	assert.Equal(t, []int{v, v}, g.InEdges(j))
	root, _ := g.Lookup(project)
	assert.Equal(t, 0, root)
}

func TestBuildDoesNotExploreScanInputs(t *testing.T) {
	hidden := &plan.Project{Base: plan.In(9, &plan.Scan{Base: plan.In(10)})}
	scan := &plan.Scan{Base: plan.In(1, hidden)}
	g, err := Build(&plan.Filter{Base: plan.In(2, scan)})
	require.NoError(t, err)
	assert.Equal(t, 2, g.Len())
	_, ok := g.Lookup(hidden)
	assert.False(t, ok)
}

func TestBuildRejectsRoots(t *testing.T) {
	scan := &plan.Scan{Base: plan.In(1)}
	_, err := Build(scan)
	assert.True(t, zqe.IsKind(err, zqe.PlanStructure))
	_, err = Build(&plan.Join{Base: plan.In(2, scan, scan)})
	assert.True(t, zqe.IsKind(err, zqe.PlanStructure))
}

func TestBuildArity(t *testing.T) {
	a := &plan.Scan{Base: plan.In(1)}
	b := &plan.Scan{Base: plan.In(2)}
	c := &plan.Scan{Base: plan.In(3)}
	cases := []struct {
		name string
		node plan.Node
		ok   bool
	}{
		{"values leaf", &plan.LogicalValues{Base: plan.In(10)}, true},
		{"table function leaf", &plan.TableFunction{Base: plan.In(10)}, true},
		{"project leaf", &plan.Project{Base: plan.In(10)}, false},
		{"filter unary", &plan.Filter{Base: plan.In(10, a)}, true},
		{"union binary", &plan.LogicalUnion{Base: plan.In(10, a, b)}, true},
		{"ldij binary", &plan.LeftDeepInnerJoin{Base: plan.In(10, a, b)}, true},
		{"filter binary", &plan.Filter{Base: plan.In(10, a, b)}, false},
		{"ldij ternary", &plan.LeftDeepInnerJoin{Base: plan.In(10, a, b, c)}, true},
		{"join ternary", &plan.Join{Base: plan.In(10, a, b, c)}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Build(&plan.Project{Base: plan.In(20, c.node)})
			if c.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, zqe.IsKind(err, zqe.Internal), "%v", err)
		})
	}
}

func TestBuildNilInput(t *testing.T) {
	_, err := Build(&plan.Filter{Base: plan.In(1, nil)})
	assert.True(t, zqe.IsKind(err, zqe.Internal))
}

func TestTopoOrderProducersFirst(t *testing.T) {
	s1 := &plan.Scan{Base: plan.In(1)}
	s2 := &plan.Scan{Base: plan.In(2)}
	f := &plan.Filter{Base: plan.In(3, s1)}
	p := &plan.Project{Base: plan.In(4, s2)}
	u := &plan.LogicalUnion{Base: plan.In(5, f, p), All: true}
	sink := &plan.Aggregate{Base: plan.In(6, u)}

	g, err := Build(sink)
	require.NoError(t, err)
	order := g.TopoOrder()
	require.Len(t, order, g.Len())
	pos := make(map[int]int)
	for i, v := range order {
		pos[v] = i
	}
	for v := 0; v < g.Len(); v++ {
		for _, consumer := range g.OutEdges(v) {
			assert.Less(t, pos[v], pos[consumer], "%s before %s", g.Node(v), g.Node(consumer))
		}
	}
	assert.Equal(t, order, g.TopoOrder())
}
