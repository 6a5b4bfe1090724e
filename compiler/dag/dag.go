// Package dag builds the dependency graph of a plan. Vertices are the
// plan's operator nodes; an edge runs from each input to the node that
// consumes it. Scans are vertices but their own inputs are never explored.
package dag

import (
	"github.com/brimdata/raexec/errors"
	"github.com/brimdata/raexec/plan"
)

type Graph struct {
	nodes []plan.Node
	index map[plan.Node]int
	in    [][]int
	out   [][]int
}

// Build walks the plan rooted at sink and returns its graph. Vertex ids
// are dense and assigned in discovery order, so the sink is vertex 0.
func Build(sink plan.Node) (*Graph, error) {
	if sink == nil {
		return nil, zqe.ErrInternal("nil plan root")
	}
	switch sink.(type) {
	case *plan.Scan, *plan.Join:
		return nil, zqe.ErrPlanStructure("%s cannot be the root of a query", sink.Kind())
	}
	g := &Graph{index: make(map[plan.Node]int)}
	g.vertex(sink)
	stack := []plan.Node{sink}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := node.(*plan.Scan); ok {
			continue
		}
		if err := checkArity(node); err != nil {
			return nil, err
		}
		to := g.index[node]
		for _, input := range node.Inputs() {
			if input == nil {
				return nil, zqe.ErrInternal("%s has a nil input", node)
			}
			from, ok := g.index[input]
			if !ok {
				from = g.vertex(input)
				stack = append(stack, input)
			}
			g.in[to] = append(g.in[to], from)
			g.out[from] = append(g.out[from], to)
		}
	}
	return g, nil
}

func (g *Graph) vertex(n plan.Node) int {
	v := len(g.nodes)
	g.nodes = append(g.nodes, n)
	g.index[n] = v
	g.in = append(g.in, nil)
	g.out = append(g.out, nil)
	return v
}

func checkArity(n plan.Node) error {
	switch count := n.InputCount(); {
	case count == 0:
		switch n.(type) {
		case *plan.LogicalValues, *plan.TableFunction:
			return nil
		}
	case count == 1:
		return nil
	case count == 2:
		switch n.(type) {
		case *plan.Join, *plan.LeftDeepInnerJoin, *plan.LogicalUnion, *plan.TableFunction:
			return nil
		}
	default:
		switch n.(type) {
		case *plan.LeftDeepInnerJoin, *plan.LogicalUnion, *plan.TableFunction:
			return nil
		}
	}
	return zqe.ErrInternal("%s has unexpected input count %d", n.Kind(), n.InputCount())
}

func (g *Graph) Len() int {
	return len(g.nodes)
}

func (g *Graph) Node(v int) plan.Node {
	return g.nodes[v]
}

func (g *Graph) Lookup(n plan.Node) (int, bool) {
	v, ok := g.index[n]
	return v, ok
}

// InEdges returns the producers of v, one per input edge.
func (g *Graph) InEdges(v int) []int {
	return g.in[v]
}

// OutEdges returns the consumers of v, one per consuming edge.
func (g *Graph) OutEdges(v int) []int {
	return g.out[v]
}

func (g *Graph) InDegree(v int) int {
	return len(g.in[v])
}

func (g *Graph) OutDegree(v int) int {
	return len(g.out[v])
}

// TopoOrder returns every vertex with each producer ahead of its
// consumers. The order is deterministic for a given plan.
func (g *Graph) TopoOrder() []int {
	visited := make([]bool, len(g.nodes))
	post := make([]int, 0, len(g.nodes))
	var visit func(int)
	visit = func(v int) {
		visited[v] = true
		for _, w := range g.out[v] {
			if !visited[w] {
				visit(w)
			}
		}
		post = append(post, v)
	}
	for v := range g.nodes {
		if !visited[v] {
			visit(v)
		}
	}
	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}
