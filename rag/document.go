package rag

import "strings"

// DocumentMetadata 描述检索文档的来源.
type DocumentMetadata struct {
	Title      string `json:"title,omitempty"`
	SourcePath string `json:"source_path,omitempty"`
	// ProvenancePath 仅图检索文档携带, 形如 [A]--[REL]--[Chunk].
	ProvenancePath string `json:"provenance_path,omitempty"`
	// ChunkID 指向底层内容块; 为空时使用文档 ID.
	ChunkID string `json:"chunk_id,omitempty"`
}

// RetrievedDocument 是任一检索源返回的文档.
// Embedding documents score by similarity (higher is better); graph documents score
// by hop count (lower is better).
type RetrievedDocument struct {
	ID       string           `json:"id"`
	Content  string           `json:"content"`
	Score    float64          `json:"score"`
	Metadata DocumentMetadata `json:"metadata"`
}

// SourceID returns the id of the underlying content chunk.
func (d RetrievedDocument) SourceID() string {
	if d.Metadata.ChunkID != "" {
		return d.Metadata.ChunkID
	}
	return d.ID
}

// ScoredItems converts documents into fusion input, preserving order.
func ScoredItems(docs []RetrievedDocument) []ScoredItem {
	items := make([]ScoredItem, len(docs))
	for i, d := range docs {
		items[i] = ScoredItem{ID: d.ID, Score: d.Score}
	}
	return items
}

// SourcePathFromChunkID derives the source document path from a chunk id
// ("guideline.txt_12" -> "guideline.").
func SourcePathFromChunkID(chunkID string) string {
	if i := strings.Index(chunkID, "txt"); i >= 0 {
		return chunkID[:i]
	}
	return chunkID
}
