package rag

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// PGVectorConfig 配置 pgvector 向量存储.
type PGVectorConfig struct {
	DSN   string `json:"dsn"`
	Table string `json:"table"`
}

// chunkEmbeddingModel 是 pgvector 表中的一行.
type chunkEmbeddingModel struct {
	ID         string          `gorm:"primaryKey;type:text"`
	Content    string          `gorm:"type:text"`
	Title      string          `gorm:"type:text"`
	SourcePath string          `gorm:"type:text"`
	Embedding  pgvector.Vector `gorm:"type:vector"`
}

type scoredChunkRow struct {
	chunkEmbeddingModel
	Similarity float64
}

// PGVectorStore 基于 PostgreSQL + pgvector 的 VectorStore 实现.
// Similarity is cosine similarity: 1 - (embedding <=> query).
type PGVectorStore struct {
	db     *gorm.DB
	table  string
	logger *zap.Logger
}

// NewPGVectorStore wraps an existing gorm connection.
func NewPGVectorStore(db *gorm.DB, table string, logger *zap.Logger) *PGVectorStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if table == "" {
		table = "chunk_embeddings"
	}
	return &PGVectorStore{
		db:     db,
		table:  table,
		logger: logger.With(zap.String("component", "pgvector_store")),
	}
}

// OpenPGVectorStore connects to PostgreSQL with the given DSN.
func OpenPGVectorStore(config PGVectorConfig, logger *zap.Logger) (*PGVectorStore, error) {
	db, err := gorm.Open(postgres.Open(config.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open pgvector database: %w", err)
	}
	return NewPGVectorStore(db, config.Table, logger), nil
}

// AddDocuments 添加文档
func (s *PGVectorStore) AddDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	rows := make([]chunkEmbeddingModel, len(docs))
	for i, doc := range docs {
		if doc.Embedding == nil {
			return fmt.Errorf("document %s has no embedding", doc.ID)
		}
		rows[i] = chunkEmbeddingModel{
			ID:         doc.ID,
			Content:    doc.Content,
			Title:      doc.Title,
			SourcePath: doc.SourcePath,
			Embedding:  pgvector.NewVector(Float64ToFloat32(doc.Embedding)),
		}
	}
	if err := s.db.WithContext(ctx).Table(s.table).Create(&rows).Error; err != nil {
		return fmt.Errorf("insert embeddings: %w", err)
	}
	return nil
}

// Search 搜索相似文档
func (s *PGVectorStore) Search(ctx context.Context, queryEmbedding []float64, topK int, minScore float64) ([]VectorSearchResult, error) {
	queryVector := pgvector.NewVector(Float64ToFloat32(queryEmbedding))

	var rows []scoredChunkRow
	q := s.db.WithContext(ctx).
		Table(s.table).
		Select("*, 1 - (embedding <=> ?) AS similarity", queryVector).
		Where("1 - (embedding <=> ?) >= ?", queryVector, minScore).
		Order("similarity DESC")
	if topK > 0 {
		q = q.Limit(topK)
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}

	results := make([]VectorSearchResult, len(rows))
	for i, r := range rows {
		results[i] = VectorSearchResult{
			Document: Document{
				ID:         r.ID,
				Content:    r.Content,
				Title:      r.Title,
				SourcePath: r.SourcePath,
				Embedding:  Float32ToFloat64(r.Embedding.Slice()),
			},
			Score:    r.Similarity,
			Distance: 1 - r.Similarity,
		}
	}
	s.logger.Debug("pgvector search",
		zap.Int("results", len(results)),
		zap.Float64("min_score", minScore))
	return results, nil
}

// 计数返回文档计数
func (s *PGVectorStore) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Table(s.table).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return int(n), nil
}

// Ping checks the database connection.
func (s *PGVectorStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *PGVectorStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
