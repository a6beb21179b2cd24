package rag

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestInMemoryVectorStore_ImplementsVectorStore(t *testing.T) {
	var _ VectorStore = (*InMemoryVectorStore)(nil)
	var _ VectorStore = (*PGVectorStore)(nil)
}

func seededMemoryStore(t *testing.T) *InMemoryVectorStore {
	t.Helper()
	store := NewInMemoryVectorStore(zap.NewNop())
	require.NoError(t, store.AddDocuments(context.Background(), []Document{
		{ID: "exact", Content: "exact match", Embedding: []float64{1, 0}},
		{ID: "close", Content: "close match", Embedding: []float64{0.8, 0.6}},
		{ID: "orthogonal", Content: "unrelated", Embedding: []float64{0, 1}},
	}))
	return store
}

func TestInMemoryVectorStore_Search(t *testing.T) {
	store := seededMemoryStore(t)
	ctx := context.Background()

	results, err := store.Search(ctx, []float64{1, 0}, 10, 0.4)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "exact", results[0].Document.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, "close", results[1].Document.ID)
	assert.InDelta(t, 0.8, results[1].Score, 1e-9)

	results, err = store.Search(ctx, []float64{1, 0}, 1, 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestInMemoryVectorStore_RejectsMissingEmbedding(t *testing.T) {
	store := NewInMemoryVectorStore(nil)
	err := store.AddDocuments(context.Background(), []Document{{ID: "x"}})
	assert.Error(t, err)
}

type staticEmbedder struct {
	vec []float64
	err error
}

func (e staticEmbedder) EmbedQuery(context.Context, string) ([]float64, error) {
	return e.vec, e.err
}

func TestSimilaritySearcher_Search(t *testing.T) {
	searcher := NewSimilaritySearcher(staticEmbedder{vec: []float64{1, 0}}, seededMemoryStore(t), nil)

	docs, err := searcher.Search(context.Background(), "query", 10, 0.4)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "exact", docs[0].ID)
	assert.Equal(t, "exact", docs[0].SourceID())
	assert.Empty(t, docs[0].Metadata.ProvenancePath)

	docs, err = searcher.Search(context.Background(), "query", 10, 0.99)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestSimilaritySearcher_EmbedFailure(t *testing.T) {
	searcher := NewSimilaritySearcher(staticEmbedder{err: errors.New("boom")}, seededMemoryStore(t), nil)
	_, err := searcher.Search(context.Background(), "query", 10, 0.4)
	assert.Error(t, err)
}

func newMockPGVectorStore(t *testing.T) (*PGVectorStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return NewPGVectorStore(db, "chunk_embeddings", zap.NewNop()), mock
}

func TestPGVectorStore_Search(t *testing.T) {
	store, mock := newMockPGVectorStore(t)

	rows := sqlmock.NewRows([]string{"id", "content", "title", "source_path", "embedding", "similarity"}).
		AddRow("guide.txt_1", "asthma text", "Guide", "guide.", "[1,0]", 0.93).
		AddRow("guide.txt_2", "lung text", "Guide", "guide.", "[0.6,0.8]", 0.61)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT *, 1 - (embedding <=> $1) AS similarity FROM "chunk_embeddings"`)).
		WillReturnRows(rows)

	results, err := store.Search(context.Background(), []float64{1, 0}, 10, 0.4)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "guide.txt_1", results[0].Document.ID)
	assert.Equal(t, "Guide", results[0].Document.Title)
	assert.InDelta(t, 0.93, results[0].Score, 1e-9)
	assert.Equal(t, []float64{1, 0}, results[0].Document.Embedding)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVectorStore_SearchError(t *testing.T) {
	store, mock := newMockPGVectorStore(t)
	mock.ExpectQuery(`SELECT`).WillReturnError(errors.New("relation does not exist"))

	_, err := store.Search(context.Background(), []float64{1, 0}, 10, 0.4)
	assert.Error(t, err)
}

func TestPGVectorStore_Count(t *testing.T) {
	store, mock := newMockPGVectorStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "chunk_embeddings"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}
