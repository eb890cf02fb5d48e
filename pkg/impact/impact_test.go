package impact

import (
	"testing"

	"github.com/depscope/depscope/pkg/model"
)

func edge(src, dst string, conf model.Confidence) model.Edge {
	return model.Edge{
		SourceID:   src,
		TargetID:   dst,
		TargetRef:  dst,
		Kind:       model.RelationCall,
		Confidence: conf,
	}
}

func find(entries []Entry, id string) (Entry, bool) {
	for _, e := range entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

func TestAnalyze_Chain(t *testing.T) {
	// c -> b -> a: changing a impacts b at depth 1 and c at depth 2.
	edges := []model.Edge{
		edge("b", "a", model.ConfidenceResolved),
		edge("c", "b", model.ConfidenceResolved),
	}
	entries := Analyze("a", edges, 10)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %v", entries)
	}
	if entries[0].ID != "b" || entries[0].Depth != 1 {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].ID != "c" || entries[1].Depth != 2 {
		t.Errorf("unexpected second entry: %+v", entries[1])
	}
	for _, e := range entries {
		if e.Certainty != model.CertaintyCertain {
			t.Errorf("%s should be certain, got %s", e.ID, e.Certainty)
		}
	}
}

func TestAnalyze_DepthCap(t *testing.T) {
	edges := []model.Edge{
		edge("b", "a", model.ConfidenceResolved),
		edge("c", "b", model.ConfidenceResolved),
		edge("d", "c", model.ConfidenceResolved),
	}
	entries := Analyze("a", edges, 2)
	if len(entries) != 2 {
		t.Fatalf("expected cap at depth 2, got %v", entries)
	}
	if _, ok := find(entries, "d"); ok {
		t.Error("d lies beyond the depth cap")
	}
}

func TestAnalyze_ShortestDepthWins(t *testing.T) {
	// c reaches a both directly and through b.
	edges := []model.Edge{
		edge("b", "a", model.ConfidenceResolved),
		edge("c", "b", model.ConfidenceResolved),
		edge("c", "a", model.ConfidenceResolved),
	}
	entries := Analyze("a", edges, 10)
	c, ok := find(entries, "c")
	if !ok {
		t.Fatal("c not found")
	}
	if c.Depth != 1 {
		t.Errorf("expected shortest depth 1, got %d", c.Depth)
	}
}

func TestAnalyze_ConditionalIsPossible(t *testing.T) {
	edges := []model.Edge{
		edge("b", "a", model.ConfidenceConditional),
		edge("c", "b", model.ConfidenceResolved),
	}
	entries := Analyze("a", edges, 10)
	b, ok := find(entries, "b")
	if !ok || b.Certainty != model.CertaintyPossible {
		t.Errorf("b should be possible: %+v", b)
	}
	// c's only route crosses the conditional hop.
	c, ok := find(entries, "c")
	if !ok || c.Certainty != model.CertaintyPossible {
		t.Errorf("c should be possible: %+v", c)
	}
}

func TestAnalyze_ResolvedPathRestoresCertainty(t *testing.T) {
	// b reaches a through a conditional hop and a fully resolved one.
	edges := []model.Edge{
		edge("b", "a", model.ConfidenceConditional),
		edge("b", "x", model.ConfidenceResolved),
		edge("x", "a", model.ConfidenceResolved),
	}
	entries := Analyze("a", edges, 10)
	b, ok := find(entries, "b")
	if !ok {
		t.Fatal("b not found")
	}
	if b.Certainty != model.CertaintyCertain {
		t.Errorf("b has a resolved path and should be certain: %+v", b)
	}
	if b.Depth != 1 {
		t.Errorf("depth should be the shortest path: %+v", b)
	}
}

func TestAnalyze_DynamicEdgesExcluded(t *testing.T) {
	edges := []model.Edge{
		{SourceID: "b", TargetID: "a", TargetRef: "a", Kind: model.RelationCall, Confidence: model.ConfidenceDynamic},
	}
	if entries := Analyze("a", edges, 10); len(entries) != 0 {
		t.Fatalf("dynamic edges must not contribute: %v", entries)
	}
}

func TestAnalyze_CycleTerminates(t *testing.T) {
	edges := []model.Edge{
		edge("a", "b", model.ConfidenceResolved),
		edge("b", "a", model.ConfidenceResolved),
	}
	entries := Analyze("a", edges, 100)
	if len(entries) != 1 {
		t.Fatalf("expected just b, got %v", entries)
	}
	if entries[0].ID != "b" || entries[0].Depth != 1 {
		t.Errorf("unexpected entry: %+v", entries[0])
	}
}

func TestAnalyze_ZeroDepth(t *testing.T) {
	edges := []model.Edge{edge("b", "a", model.ConfidenceResolved)}
	if entries := Analyze("a", edges, 0); entries != nil {
		t.Fatalf("expected nil for zero depth, got %v", entries)
	}
}
