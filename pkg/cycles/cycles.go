// Package cycles detects circular dependencies between symbols. Cycles are
// a derived view: they are recomputed on demand from an edge snapshot and
// never persisted.
package cycles

import (
	"sort"

	"gonum.org/v1/gonum/graph/simple"

	"github.com/depscope/depscope/pkg/model"
)

// provable reports whether an edge may participate in a cycle proof. Only
// resolved and conditional edges count: a dynamic or external edge has no
// known in-tree target that static analysis can stand behind.
func provable(e model.Edge) bool {
	if !e.Internal() {
		return false
	}
	return e.Confidence == model.ConfidenceResolved || e.Confidence == model.ConfidenceConditional
}

// Find returns all dependency cycles in the edge snapshot, each with a
// closed walk that witnesses it. Results are ordered by their smallest
// member id, and each cycle's member list is sorted, so repeated runs over
// the same snapshot produce identical output.
func Find(edges []model.Edge) []model.Cycle {
	var kept []model.Edge
	selfLoop := make(map[string]bool)
	nodeSet := make(map[string]bool)
	for _, e := range edges {
		if !provable(e) {
			continue
		}
		if e.SourceID == e.TargetID {
			selfLoop[e.SourceID] = true
			nodeSet[e.SourceID] = true
			continue
		}
		kept = append(kept, e)
		nodeSet[e.SourceID] = true
		nodeSet[e.TargetID] = true
	}

	// Stable numbering: gonum nodes are int64, symbol ids are strings.
	symbolIDs := make([]string, 0, len(nodeSet))
	for id := range nodeSet {
		symbolIDs = append(symbolIDs, id)
	}
	sort.Strings(symbolIDs)
	num := make(map[string]int64, len(symbolIDs))
	for i, id := range symbolIDs {
		num[id] = int64(i)
	}

	g := simple.NewDirectedGraph()
	for i := range symbolIDs {
		g.AddNode(simple.Node(int64(i)))
	}
	adj := make(map[int64][]int64)
	seen := make(map[[2]int64]bool)
	for _, e := range kept {
		from, to := num[e.SourceID], num[e.TargetID]
		key := [2]int64{from, to}
		if seen[key] {
			continue
		}
		seen[key] = true
		g.SetEdge(g.NewEdge(simple.Node(from), simple.Node(to)))
		adj[from] = append(adj[from], to)
	}
	for _, succ := range adj {
		sort.Slice(succ, func(i, j int) bool { return succ[i] < succ[j] })
	}

	var cycles []model.Cycle
	inComponent := make(map[int64]bool)
	for _, scc := range newTarjanSCC(g).components() {
		members := make([]string, 0, len(scc))
		for _, n := range scc {
			inComponent[n] = true
			members = append(members, symbolIDs[n])
		}
		sort.Strings(members)
		cycles = append(cycles, model.Cycle{
			Members: members,
			Walk:    closedWalk(scc, adj, symbolIDs),
		})
	}

	// A self-recursive symbol outside any larger component is its own cycle.
	for id := range selfLoop {
		if inComponent[num[id]] {
			continue
		}
		cycles = append(cycles, model.Cycle{
			Members: []string{id},
			Walk:    []string{id, id},
		})
	}

	sort.Slice(cycles, func(i, j int) bool { return cycles[i].Members[0] < cycles[j].Members[0] })
	return cycles
}

// closedWalk builds a walk through every member of one component, starting
// and ending at the member with the smallest symbol id. Within a strongly
// connected component every member reaches every other, so the greedy
// hop-to-nearest-unvisited construction always closes; its length is
// bounded by the pairwise shortest paths it concatenates.
func closedWalk(scc []int64, adj map[int64][]int64, symbolIDs []string) []string {
	member := make(map[int64]bool, len(scc))
	for _, n := range scc {
		member[n] = true
	}

	start := scc[0]
	for _, n := range scc[1:] {
		if symbolIDs[n] < symbolIDs[start] {
			start = n
		}
	}

	unvisited := make(map[int64]bool, len(scc))
	for _, n := range scc {
		unvisited[n] = true
	}
	delete(unvisited, start)

	walk := []int64{start}
	cur := start
	for len(unvisited) > 0 {
		path := shortestPath(cur, unvisited, member, adj)
		for _, n := range path {
			walk = append(walk, n)
			delete(unvisited, n)
		}
		cur = walk[len(walk)-1]
	}
	closing := map[int64]bool{start: true}
	walk = append(walk, shortestPath(cur, closing, member, adj)...)

	out := make([]string, len(walk))
	for i, n := range walk {
		out[i] = symbolIDs[n]
	}
	return out
}

// shortestPath runs a BFS from cur restricted to component members and
// returns the path (excluding cur) to the nearest node in targets.
func shortestPath(cur int64, targets, member map[int64]bool, adj map[int64][]int64) []int64 {
	type hop struct {
		node int64
		prev *hop
	}
	visited := map[int64]bool{cur: true}
	queue := []*hop{{node: cur}}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		for _, next := range adj[h.node] {
			if !member[next] || visited[next] {
				continue
			}
			nh := &hop{node: next, prev: h}
			if targets[next] {
				var path []int64
				for n := nh; n.prev != nil; n = n.prev {
					path = append(path, n.node)
				}
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return path
			}
			visited[next] = true
			queue = append(queue, nh)
		}
	}
	return nil
}
