package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/conceptrag/rag"
	"github.com/BaSui01/conceptrag/testutil/fixtures"
)

func graphDocs() []rag.RetrievedDocument {
	return []rag.RetrievedDocument{
		{ID: fixtures.ChunkHyperglycemia, Content: "Persistent hyperglycemia.", Score: 0,
			Metadata: rag.DocumentMetadata{ChunkID: fixtures.ChunkHyperglycemia}},
		{ID: fixtures.ChunkInsulin, Content: "Insulin therapy is indicated for type 1 diabetes.", Score: 1,
			Metadata: rag.DocumentMetadata{ChunkID: fixtures.ChunkInsulin}},
	}
}

func fusedIDs(items []rag.ScoredItem) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

func TestFuse_RRF(t *testing.T) {
	f := NewReferenceFuser(0)
	fused, err := f.Fuse(RerankerRRF, fixtures.EmbeddingDocs(), graphDocs(), 0)
	require.NoError(t, err)

	assert.Equal(t, []string{fixtures.ChunkInsulin, fixtures.ChunkHyperglycemia, "nutrition.txt_4"}, fusedIDs(fused))
	assert.InDelta(t, 1.0/61+1.0/62, fused[0].Score, 1e-12)
}

func TestFuse_TopKVotesAcrossSources(t *testing.T) {
	f := NewReferenceFuser(7)
	fused, err := f.Fuse(RerankerTopK, fixtures.EmbeddingDocs(), graphDocs(), 2)
	require.NoError(t, err)

	require.Len(t, fused, 2)
	assert.Equal(t, fixtures.ChunkInsulin, fused[0].ID)
	assert.Equal(t, 1.0, fused[0].Score)
	assert.Equal(t, 0.5, fused[1].Score)
}

func TestFuse_SkipsEmptySource(t *testing.T) {
	f := NewReferenceFuser(0)

	fused, err := f.Fuse(RerankerTopK, fixtures.EmbeddingDocs(), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{fixtures.ChunkInsulin, "nutrition.txt_4"}, fusedIDs(fused))
	for _, it := range fused {
		assert.Equal(t, 1.0, it.Score)
	}

	fused, err = f.Fuse(RerankerRRF, nil, nil, 5)
	require.NoError(t, err)
	assert.NotNil(t, fused)
	assert.Empty(t, fused)
}

func TestFuse_MaxRefsTruncates(t *testing.T) {
	f := NewReferenceFuser(0)
	fused, err := f.Fuse(RerankerRRF, fixtures.EmbeddingDocs(), graphDocs(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{fixtures.ChunkInsulin}, fusedIDs(fused))
}

func TestBuildReferences_UsedCount(t *testing.T) {
	f := NewReferenceFuser(0)

	s := NewState("q", nil, "", Options{Reranker: RerankerRRF})
	s.EmbeddingDocs = fixtures.EmbeddingDocs()
	s.GraphDocs = graphDocs()
	s.AnswerGenerated = true

	refs, err := f.BuildReferences(s)
	require.NoError(t, err)
	// two embedding sources plus the closest graph chunk
	assert.Equal(t, 3, refs.UsedCount)
	assert.Len(t, refs.FusedRanking, 3)

	s.RetrieveOnly = true
	refs, err = f.BuildReferences(s)
	require.NoError(t, err)
	assert.Zero(t, refs.UsedCount)
}

func TestBuildReferences_NeverNil(t *testing.T) {
	refs, err := NewReferenceFuser(0).BuildReferences(NewState("q", nil, "", Options{}))
	require.NoError(t, err)
	assert.NotNil(t, refs.EmbeddingDocs)
	assert.NotNil(t, refs.GraphDocs)
	assert.NotNil(t, refs.FusedRanking)
}

func TestBuildContext(t *testing.T) {
	block := BuildContext(fixtures.EmbeddingDocs(), graphDocs(), "nota clinica")

	assert.Equal(t, 4, block.Used)
	require.Len(t, block.GraphDocs, 1)
	assert.Equal(t, fixtures.ChunkHyperglycemia, block.GraphDocs[0].ID)
	assert.Equal(t,
		"Source 1:\n\"Insulin therapy is indicated for type 1 diabetes.\"\n\n"+
			"Source 2:\n\"Dietary counselling reduces HbA1c.\"\n\n"+
			"Source KG1:\n\"Persistent hyperglycemia.\"\n\n"+
			"Source [0]:\n\"nota clinica\"",
		block.Text)
}

func TestBuildContext_SkipsGraphChunkAlreadyRetrieved(t *testing.T) {
	graph := []rag.RetrievedDocument{
		{ID: fixtures.ChunkInsulin, Content: "dup", Score: 0, Metadata: rag.DocumentMetadata{ChunkID: fixtures.ChunkInsulin}},
	}
	block := BuildContext(fixtures.EmbeddingDocs(), graph, "")
	assert.Equal(t, 2, block.Used)
	assert.Empty(t, block.GraphDocs)
}

func TestBuildContext_WhitespaceContextIsKept(t *testing.T) {
	block := BuildContext(nil, nil, "  ")
	assert.Equal(t, 1, block.Used)
	assert.Equal(t, "Source [0]:\n\"  \"", block.Text)
}

func TestBuildContext_Empty(t *testing.T) {
	block := BuildContext(nil, nil, "")
	assert.Equal(t, "", block.Text)
	assert.Zero(t, block.Used)
}

func TestClosestGraphDocs(t *testing.T) {
	docs := []rag.RetrievedDocument{
		{ID: "a", Score: 2}, {ID: "b", Score: 1}, {ID: "c", Score: 1}, {ID: "d", Score: 3},
	}
	closest := ClosestGraphDocs(docs)
	require.Len(t, closest, 2)
	assert.Equal(t, "b", closest[0].ID)
	assert.Equal(t, "c", closest[1].ID)
	assert.Nil(t, ClosestGraphDocs(nil))
}
