package rag

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Aggregation 决定多个种子概念到同一内容块的距离如何合并.
type Aggregation string

const (
	// AggregateMinimum keeps the closest concept's distance and its path.
	AggregateMinimum Aggregation = "min"
	// AggregateAverage averages the distance over every concept that reaches the chunk.
	AggregateAverage Aggregation = "average"
)

// ChunkScore 是一个内容块在所有种子概念上的聚合距离.
type ChunkScore struct {
	ChunkID string    `json:"chunk_id"`
	Score   float64   `json:"score"`
	Reach   int       `json:"reach"`
	Path    GraphPath `json:"path"`
}

// GraphPathScorer 计算概念到内容块的最短跳数并去重聚合.
type GraphPathScorer struct {
	graph  GraphClient
	logger *zap.Logger
}

// NewGraphPathScorer creates a scorer over the given graph.
func NewGraphPathScorer(graph GraphClient, logger *zap.Logger) *GraphPathScorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraphPathScorer{
		graph:  graph,
		logger: logger.With(zap.String("component", "graph_scorer")),
	}
}

type chunkAccumulator struct {
	min   int
	sum   int
	reach int
	path  GraphPath
}

// ScoreChunks aggregates per-chunk distances across concepts and sorts ascending.
// Chunks keep first-discovery order on equal scores.
func (s *GraphPathScorer) ScoreChunks(ctx context.Context, conceptIDs []string, maxHops int, agg Aggregation) ([]ChunkScore, error) {
	acc := make(map[string]*chunkAccumulator)
	order := make([]string, 0)

	for _, conceptID := range conceptIDs {
		paths, err := s.graph.NeighborsWithinHops(ctx, conceptID, maxHops)
		if err != nil {
			return nil, fmt.Errorf("neighbors of %s: %w", conceptID, err)
		}

		// one winner per chunk for this concept
		best := make(map[string]GraphPath, len(paths))
		var seen []string
		for _, p := range paths {
			cur, ok := best[p.TargetID]
			if !ok {
				seen = append(seen, p.TargetID)
			}
			if !ok || p.HopCount < cur.HopCount {
				best[p.TargetID] = p
			}
		}

		for _, chunkID := range seen {
			p := best[chunkID]
			a, ok := acc[chunkID]
			if !ok {
				a = &chunkAccumulator{min: p.HopCount, path: p}
				acc[chunkID] = a
				order = append(order, chunkID)
			} else if p.HopCount < a.min {
				a.min = p.HopCount
				a.path = p
			}
			a.sum += p.HopCount
			a.reach++
		}
	}

	scores := make([]ChunkScore, 0, len(order))
	for _, chunkID := range order {
		a := acc[chunkID]
		score := float64(a.min)
		if agg == AggregateAverage {
			score = float64(a.sum) / float64(a.reach)
		}
		scores = append(scores, ChunkScore{ChunkID: chunkID, Score: score, Reach: a.reach, Path: a.path})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score < scores[j].Score
	})

	s.logger.Debug("chunks scored",
		zap.Int("concepts", len(conceptIDs)),
		zap.Int("chunks", len(scores)),
		zap.String("aggregation", string(agg)))
	return scores, nil
}

// RetrieveDocuments scores chunks and resolves them into documents, closest first.
func (s *GraphPathScorer) RetrieveDocuments(ctx context.Context, conceptIDs []string, maxHops int, agg Aggregation) ([]RetrievedDocument, error) {
	scores, err := s.ScoreChunks(ctx, conceptIDs, maxHops, agg)
	if err != nil {
		return nil, err
	}

	docs := make([]RetrievedDocument, 0, len(scores))
	for _, sc := range scores {
		chunk, err := s.graph.GetChunk(ctx, sc.ChunkID)
		if err != nil {
			return nil, fmt.Errorf("get chunk %s: %w", sc.ChunkID, err)
		}
		docs = append(docs, RetrievedDocument{
			ID:      chunk.ID,
			Content: chunk.Text,
			Score:   sc.Score,
			Metadata: DocumentMetadata{
				Title:          chunk.Title,
				SourcePath:     SourcePathFromChunkID(chunk.ID),
				ProvenancePath: sc.Path.Render(),
				ChunkID:        chunk.ID,
			},
		})
	}
	return docs, nil
}
