package rag

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

// newTestGraph builds:
//
//	asthma --ISA--> lung_disease --ISA--> disease
//	asthma --MENTIONED_IN--> chunk1 --NEXT--> chunk2
//	lung_disease --MENTIONED_IN--> chunk2
//	disease --MENTIONED_IN--> chunk3
//	fracture (isolated concept)
func newTestGraph(t *testing.T) *MemoryGraph {
	t.Helper()
	g := NewMemoryGraph(zap.NewNop())
	g.AddConcept("asthma", "Asthma (disorder)")
	g.AddConcept("lung_disease", "Lung disease (disorder)")
	g.AddConcept("disease", "Disease (disorder)")
	g.AddConcept("fracture", "Fracture (disorder)")
	g.AddChunk("guide.txt_1", "Guide", "asthma text")
	g.AddChunk("guide.txt_2", "Guide", "lung text")
	g.AddChunk("other.txt_1", "Other", "disease text")

	for _, e := range []GraphEdge{
		{"asthma", "lung_disease", "ISA"},
		{"lung_disease", "disease", "ISA"},
		{"asthma", "guide.txt_1", "MENTIONED_IN"},
		{"guide.txt_1", "guide.txt_2", RelNext},
		{"lung_disease", "guide.txt_2", "MENTIONED_IN"},
		{"disease", "other.txt_1", "MENTIONED_IN"},
	} {
		if err := g.AddEdge(e.Source, e.Target, e.Type); err != nil {
			t.Fatalf("add edge: %v", err)
		}
	}
	return g
}

func TestNewMemoryGraph_NilLogger(t *testing.T) {
	graph := NewMemoryGraph(nil)
	if graph == nil {
		t.Fatal("expected graph to be created even with nil logger")
	}
}

func TestMemoryGraph_AddEdge_UnknownNode(t *testing.T) {
	g := NewMemoryGraph(nil)
	g.AddConcept("a", "A")
	if err := g.AddEdge("a", "missing", "ISA"); err == nil {
		t.Error("expected error for unknown target")
	}
}

func TestMemoryGraph_NeighborsWithinHops(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	paths, err := g.NeighborsWithinHops(ctx, "asthma", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("expected 3 reachable chunks, got %d", len(paths))
	}

	want := map[string]int{"guide.txt_1": 0, "guide.txt_2": 1, "other.txt_1": 2}
	for _, p := range paths {
		if hops, ok := want[p.TargetID]; !ok || hops != p.HopCount {
			t.Errorf("unexpected path %s hops=%d", p.TargetID, p.HopCount)
		}
	}
	if got := paths[0].Render(); got != "[Asthma (disorder)]--[MENTIONED_IN]--[Chunk]" {
		t.Errorf("unexpected rendered path %q", got)
	}
}

func TestMemoryGraph_NeighborsWithinHops_SkipsNextEdges(t *testing.T) {
	g := newTestGraph(t)

	// guide.txt_2 is only reachable through NEXT from guide.txt_1 within one hop.
	paths, err := g.NeighborsWithinHops(context.Background(), "asthma", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) != 1 || paths[0].TargetID != "guide.txt_1" {
		t.Errorf("expected only guide.txt_1, got %+v", paths)
	}
}

func TestMemoryGraph_NeighborsWithinHops_UnknownConcept(t *testing.T) {
	g := newTestGraph(t)
	paths, err := g.NeighborsWithinHops(context.Background(), "nope", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("expected no paths, got %d", len(paths))
	}
}

func TestMemoryGraph_ShortestPath(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	p, err := g.ShortestPath(ctx, "asthma", "disease", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected a path")
	}
	if p.HopCount != 1 {
		t.Errorf("expected hop count 1, got %d", p.HopCount)
	}

	p, err = g.ShortestPath(ctx, "asthma", "disease", 1)
	if err != nil || p != nil {
		t.Errorf("expected no path within one hop, got %+v %v", p, err)
	}

	p, err = g.ShortestPath(ctx, "asthma", "fracture", 5)
	if err != nil || p != nil {
		t.Errorf("expected isolated concept to be unreachable, got %+v %v", p, err)
	}
}

func TestMemoryGraph_ShortestPath_DoesNotCrossChunks(t *testing.T) {
	g := NewMemoryGraph(nil)
	g.AddConcept("a", "A")
	g.AddConcept("b", "B")
	g.AddChunk("c1", "T", "text")
	_ = g.AddEdge("a", "c1", "MENTIONED_IN")
	_ = g.AddEdge("b", "c1", "MENTIONED_IN")

	p, err := g.ShortestPath(context.Background(), "a", "b", 5)
	if err != nil || p != nil {
		t.Errorf("expected no concept-only path, got %+v %v", p, err)
	}
}

func TestMemoryGraph_GetChunk(t *testing.T) {
	g := newTestGraph(t)

	c, err := g.GetChunk(context.Background(), "guide.txt_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Title != "Guide" || c.Text != "asthma text" {
		t.Errorf("unexpected chunk %+v", c)
	}

	if _, err := g.GetChunk(context.Background(), "asthma"); !errors.Is(err, ErrChunkNotFound) {
		t.Errorf("expected ErrChunkNotFound, got %v", err)
	}
}
