package rag

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// QueryEmbedder 把查询文本转换为向量, 由 embedding.Provider 实现.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float64, error)
}

// Searcher 是语义相似度检索的访问接口.
// Results are sorted by score descending and every score is >= minScore;
// an empty result is a valid outcome.
type Searcher interface {
	Search(ctx context.Context, query string, k int, minScore float64) ([]RetrievedDocument, error)
}

// SimilaritySearcher 组合 QueryEmbedder 与 VectorStore 实现 Searcher.
type SimilaritySearcher struct {
	embedder QueryEmbedder
	store    VectorStore
	logger   *zap.Logger
}

// NewSimilaritySearcher creates a searcher.
func NewSimilaritySearcher(embedder QueryEmbedder, store VectorStore, logger *zap.Logger) *SimilaritySearcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimilaritySearcher{
		embedder: embedder,
		store:    store,
		logger:   logger.With(zap.String("component", "similarity_searcher")),
	}
}

// Search implements Searcher.
func (s *SimilaritySearcher) Search(ctx context.Context, query string, k int, minScore float64) ([]RetrievedDocument, error) {
	embedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := s.store.Search(ctx, embedding, k, minScore)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	docs := make([]RetrievedDocument, 0, len(results))
	for _, r := range results {
		if r.Score < minScore {
			continue
		}
		docs = append(docs, RetrievedDocument{
			ID:      r.Document.ID,
			Content: r.Document.Content,
			Score:   r.Score,
			Metadata: DocumentMetadata{
				Title:      r.Document.Title,
				SourcePath: r.Document.SourcePath,
				ChunkID:    r.Document.ID,
			},
		})
	}

	s.logger.Info("documents retrieved", zap.Int("count", len(docs)))
	return docs, nil
}
