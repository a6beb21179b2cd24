package rag

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// GraphNode 是内存概念图中的节点.
type GraphNode struct {
	ID    string `json:"id"`
	Label string `json:"label"` // LabelConcept or LabelChunk
	// Name 是概念的显示名称 (FSN); 内容块为空.
	Name  string `json:"name,omitempty"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text,omitempty"`
}

// GraphEdge 是两个节点之间的关系, 遍历时按无向处理.
type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// MemoryGraph 是进程内的 GraphClient 实现, 用于开发与测试.
type MemoryGraph struct {
	nodes     map[string]*GraphNode
	edges     []*GraphEdge
	adjacency map[string][]int // nodeID -> edge indices
	logger    *zap.Logger
	mu        sync.RWMutex
}

// NewMemoryGraph 创建空的内存概念图.
func NewMemoryGraph(logger *zap.Logger) *MemoryGraph {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryGraph{
		nodes:     make(map[string]*GraphNode),
		adjacency: make(map[string][]int),
		logger:    logger.With(zap.String("component", "memory_graph")),
	}
}

// AddConcept adds a concept node.
func (g *MemoryGraph) AddConcept(id, name string) {
	g.addNode(&GraphNode{ID: id, Label: LabelConcept, Name: name})
}

// AddChunk adds a content chunk node.
func (g *MemoryGraph) AddChunk(id, title, text string) {
	g.addNode(&GraphNode{ID: id, Label: LabelChunk, Title: title, Text: text})
}

func (g *MemoryGraph) addNode(node *GraphNode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[node.ID] = node
}

// AddEdge 在两个已存在的节点之间添加关系.
func (g *MemoryGraph) AddEdge(source, target, relType string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[source]; !ok {
		return fmt.Errorf("memory graph: unknown node %q", source)
	}
	if _, ok := g.nodes[target]; !ok {
		return fmt.Errorf("memory graph: unknown node %q", target)
	}
	idx := len(g.edges)
	g.edges = append(g.edges, &GraphEdge{Source: source, Target: target, Type: relType})
	g.adjacency[source] = append(g.adjacency[source], idx)
	if target != source {
		g.adjacency[target] = append(g.adjacency[target], idx)
	}
	return nil
}

// GetNode通过ID检索到一个节点.
func (g *MemoryGraph) GetNode(id string) (*GraphNode, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

type bfsStep struct {
	prev string
	edge int
}

// bfs walks outward from start over concept nodes only, skipping NEXT relationships.
// visit is called for every newly discovered node with its depth; returning false stops the walk.
func (g *MemoryGraph) bfs(start string, maxHops int, visit func(id string, depth int) bool) map[string]bfsStep {
	parents := map[string]bfsStep{start: {prev: "", edge: -1}}
	frontier := []string{start}
	for depth := 1; depth <= maxHops && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			for _, ei := range g.adjacency[id] {
				edge := g.edges[ei]
				if edge.Type == RelNext {
					continue
				}
				other := edge.Target
				if other == id {
					other = edge.Source
				}
				if _, seen := parents[other]; seen {
					continue
				}
				parents[other] = bfsStep{prev: id, edge: ei}
				if !visit(other, depth) {
					return parents
				}
				if g.nodes[other].Label == LabelConcept {
					next = append(next, other)
				}
			}
		}
		frontier = next
	}
	return parents
}

func (g *MemoryGraph) displayName(id string) string {
	if n := g.nodes[id]; n != nil && n.Name != "" {
		return n.Name
	}
	return LabelChunk
}

func (g *MemoryGraph) buildPath(start, end string, parents map[string]bfsStep) GraphPath {
	var reversed []PathElement
	for cur := end; ; {
		reversed = append(reversed, PathElement{Kind: PathNode, Label: g.displayName(cur)})
		step := parents[cur]
		if step.edge < 0 {
			break
		}
		reversed = append(reversed, PathElement{Kind: PathEdge, Label: g.edges[step.edge].Type})
		cur = step.prev
	}
	elements := make([]PathElement, len(reversed))
	for i, el := range reversed {
		elements[len(reversed)-1-i] = el
	}
	return NewGraphPath(start, end, elements)
}

func (g *MemoryGraph) isConcept(id string) bool {
	n, ok := g.nodes[id]
	return ok && n.Label == LabelConcept
}

// ShortestPath implements GraphClient.
func (g *MemoryGraph) ShortestPath(ctx context.Context, fromID, toID string, maxHops int) (*GraphPath, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	if fromID == toID || !g.isConcept(fromID) || !g.isConcept(toID) {
		return nil, nil
	}
	found := false
	parents := g.bfs(fromID, maxHops, func(id string, _ int) bool {
		if id == toID {
			found = true
			return false
		}
		return true
	})
	if !found {
		return nil, nil
	}
	path := g.buildPath(fromID, toID, parents)
	return &path, nil
}

// NeighborsWithinHops implements GraphClient.
func (g *MemoryGraph) NeighborsWithinHops(ctx context.Context, conceptID string, maxHops int) ([]GraphPath, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.isConcept(conceptID) {
		return []GraphPath{}, nil
	}
	var chunks []string
	parents := g.bfs(conceptID, maxHops, func(id string, _ int) bool {
		if g.nodes[id].Label == LabelChunk {
			chunks = append(chunks, id)
		}
		return true
	})

	paths := make([]GraphPath, 0, len(chunks))
	for _, id := range chunks {
		paths = append(paths, g.buildPath(conceptID, id, parents))
	}
	g.logger.Debug("neighbors resolved",
		zap.String("concept_id", conceptID),
		zap.Int("chunks", len(paths)))
	return paths, nil
}

// GetChunk implements GraphClient.
func (g *MemoryGraph) GetChunk(ctx context.Context, chunkID string) (*Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[chunkID]
	if !ok || n.Label != LabelChunk {
		return nil, fmt.Errorf("%w: %s", ErrChunkNotFound, chunkID)
	}
	return &Chunk{ID: n.ID, Text: n.Text, Title: n.Title}, nil
}
