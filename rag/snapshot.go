package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// VectorSnapshot 是内存向量存储的 JSON 快照格式.
type VectorSnapshot struct {
	Documents []Document `json:"documents"`
}

// GraphSnapshot 是内存概念图的 JSON 快照格式. 节点 label 为
// LabelConcept 或 LabelChunk.
type GraphSnapshot struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// LoadVectorSnapshot reads a VectorSnapshot file into store and returns the
// number of documents added. Every document must carry an embedding.
func LoadVectorSnapshot(ctx context.Context, store VectorStore, path string) (int, error) {
	var snap VectorSnapshot
	if err := readSnapshot(path, &snap); err != nil {
		return 0, err
	}
	if len(snap.Documents) == 0 {
		return 0, nil
	}
	if err := store.AddDocuments(ctx, snap.Documents); err != nil {
		return 0, fmt.Errorf("load vector snapshot %s: %w", path, err)
	}
	return len(snap.Documents), nil
}

// LoadGraphSnapshot reads a GraphSnapshot file into g. Nodes are added before
// edges, so edges may reference any node in the file.
func LoadGraphSnapshot(g *MemoryGraph, path string) error {
	var snap GraphSnapshot
	if err := readSnapshot(path, &snap); err != nil {
		return err
	}
	for _, n := range snap.Nodes {
		if n.ID == "" {
			return fmt.Errorf("load graph snapshot %s: node without id", path)
		}
		switch n.Label {
		case LabelConcept:
			g.AddConcept(n.ID, n.Name)
		case LabelChunk:
			g.AddChunk(n.ID, n.Title, n.Text)
		default:
			return fmt.Errorf("load graph snapshot %s: node %q has unknown label %q", path, n.ID, n.Label)
		}
	}
	for _, e := range snap.Edges {
		if err := g.AddEdge(e.Source, e.Target, e.Type); err != nil {
			return fmt.Errorf("load graph snapshot %s: %w", path, err)
		}
	}
	return nil
}

func readSnapshot(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return nil
}
