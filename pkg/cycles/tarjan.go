package cycles

import (
	"gonum.org/v1/gonum/graph"
)

// tarjanSCC finds strongly connected components with Tarjan's algorithm.
type tarjanSCC struct {
	graph   graph.Directed
	index   int
	stack   []int64
	onStack map[int64]bool
	indices map[int64]int
	lowLink map[int64]int
	sccs    [][]int64
}

func newTarjanSCC(g graph.Directed) *tarjanSCC {
	return &tarjanSCC{
		graph:   g,
		onStack: make(map[int64]bool),
		indices: make(map[int64]int),
		lowLink: make(map[int64]int),
	}
}

// components returns every SCC with more than one node. A single node is
// only cyclic through a self edge, which the caller handles directly.
func (t *tarjanSCC) components() [][]int64 {
	nodes := t.graph.Nodes()
	for nodes.Next() {
		id := nodes.Node().ID()
		if _, visited := t.indices[id]; !visited {
			t.strongConnect(id)
		}
	}
	return t.sccs
}

func (t *tarjanSCC) strongConnect(nodeID int64) {
	t.indices[nodeID] = t.index
	t.lowLink[nodeID] = t.index
	t.index++

	t.stack = append(t.stack, nodeID)
	t.onStack[nodeID] = true

	successors := t.graph.From(nodeID)
	for successors.Next() {
		succ := successors.Node().ID()
		if _, visited := t.indices[succ]; !visited {
			t.strongConnect(succ)
			t.lowLink[nodeID] = min(t.lowLink[nodeID], t.lowLink[succ])
		} else if t.onStack[succ] {
			t.lowLink[nodeID] = min(t.lowLink[nodeID], t.indices[succ])
		}
	}

	if t.lowLink[nodeID] == t.indices[nodeID] {
		var scc []int64
		for {
			w := t.stack[len(t.stack)-1]
			t.stack = t.stack[:len(t.stack)-1]
			t.onStack[w] = false
			scc = append(scc, w)
			if w == nodeID {
				break
			}
		}
		if len(scc) > 1 {
			t.sccs = append(t.sccs, scc)
		}
	}
}
