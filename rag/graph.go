package rag

import (
	"context"
	"errors"
	"strings"
)

// ErrChunkNotFound is returned by GraphClient.GetChunk for unknown chunk ids.
var ErrChunkNotFound = errors.New("rag: chunk not found")

// 图中的关系与节点标签约定.
const (
	// RelNext 连接相邻内容块, 路径搜索时禁止经过.
	RelNext = "NEXT"
	// LabelConcept 是概念节点标签.
	LabelConcept = "ObjectConcept"
	// LabelChunk 是内容块节点标签.
	LabelChunk = "Chunk"
)

// PathElementKind distinguishes nodes from relationships inside a path.
type PathElementKind int

const (
	PathNode PathElementKind = iota
	PathEdge
)

// PathElement is one node or relationship of a rendered path.
type PathElement struct {
	Kind  PathElementKind `json:"kind"`
	Label string          `json:"label"`
}

// GraphPath 是一次最短路径查询的结果.
type GraphPath struct {
	SourceID string        `json:"source_id"`
	TargetID string        `json:"target_id"`
	HopCount int           `json:"hop_count"`
	Elements []PathElement `json:"elements"`
}

// HopCountFromLength converts the raw element count of a path (nodes plus relationships)
// into a distance: ceil(n/2) - 2. Directly connected nodes are at distance 0.
func HopCountFromLength(n int) int {
	return (n+1)/2 - 2
}

// NewGraphPath builds a path and derives its hop count from the elements.
func NewGraphPath(sourceID, targetID string, elements []PathElement) GraphPath {
	return GraphPath{
		SourceID: sourceID,
		TargetID: targetID,
		HopCount: HopCountFromLength(len(elements)),
		Elements: elements,
	}
}

// Render formats the path as [A]--[REL]--[B].
func (p GraphPath) Render() string {
	var sb strings.Builder
	for _, el := range p.Elements {
		switch el.Kind {
		case PathNode:
			sb.WriteString("[" + el.Label + "]")
		case PathEdge:
			sb.WriteString("--[" + el.Label + "]--")
		}
	}
	return sb.String()
}

// Chunk 是图中的内容块.
type Chunk struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Title string `json:"title"`
}

// GraphClient 是概念图数据库的访问接口.
//
// Paths never traverse NEXT relationships and every intermediate node is a concept;
// only the final node of a concept-to-chunk path may be a chunk.
type GraphClient interface {
	// ShortestPath returns the shortest concept-only path between two concepts, or nil.
	ShortestPath(ctx context.Context, fromID, toID string, maxHops int) (*GraphPath, error)
	// NeighborsWithinHops returns one shortest path per reachable chunk, sorted by hop count.
	NeighborsWithinHops(ctx context.Context, conceptID string, maxHops int) ([]GraphPath, error)
	// GetChunk fetches a chunk by id.
	GetChunk(ctx context.Context, chunkID string) (*Chunk, error)
}
