// Package impact answers "what breaks if this symbol changes": the set of
// transitive dependents found by walking edges in reverse, capped at a
// maximum depth.
package impact

import (
	"sort"

	"github.com/depscope/depscope/pkg/model"
)

// Entry is one dependent of the analyzed symbol.
type Entry struct {
	ID        string
	Depth     int
	Certainty model.Certainty
}

// Analyze walks inbound edges from root up to maxDepth hops and returns
// every dependent, nearest first. Depth is the shortest-path distance over
// all internal edges. A dependent is certain when at least one path to it
// uses only resolved edges; a dependent reachable only through conditional
// edges is possible. Dynamic and external edges never contribute: the sync
// engine resolves no target for them, so they are untargeted by construction
// and can carry no dependent to annotate.
func Analyze(root string, edges []model.Edge, maxDepth int) []Entry {
	if maxDepth <= 0 {
		return nil
	}

	reverse := make(map[string][]string)
	reverseResolved := make(map[string][]string)
	for _, e := range edges {
		if !e.Internal() {
			continue
		}
		switch e.Confidence {
		case model.ConfidenceResolved:
			reverse[e.TargetID] = append(reverse[e.TargetID], e.SourceID)
			reverseResolved[e.TargetID] = append(reverseResolved[e.TargetID], e.SourceID)
		case model.ConfidenceConditional:
			reverse[e.TargetID] = append(reverse[e.TargetID], e.SourceID)
		}
	}

	depths := bfs(root, reverse, maxDepth)
	certain := bfs(root, reverseResolved, maxDepth)

	entries := make([]Entry, 0, len(depths))
	for id, depth := range depths {
		certainty := model.CertaintyPossible
		if _, ok := certain[id]; ok {
			certainty = model.CertaintyCertain
		}
		entries = append(entries, Entry{ID: id, Depth: depth, Certainty: certainty})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Depth != entries[j].Depth {
			return entries[i].Depth < entries[j].Depth
		}
		return entries[i].ID < entries[j].ID
	})
	return entries
}

// bfs returns shortest-path depths from root over the given reverse
// adjacency, excluding root itself, bounded by maxDepth.
func bfs(root string, reverse map[string][]string, maxDepth int) map[string]int {
	depths := make(map[string]int)
	frontier := []string{root}
	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, node := range frontier {
			for _, dep := range reverse[node] {
				if dep == root {
					continue
				}
				if _, seen := depths[dep]; seen {
					continue
				}
				depths[dep] = depth
				next = append(next, dep)
			}
		}
		frontier = next
	}
	return depths
}
