package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/conceptrag/internal/cache"
)

// ConceptCache 是概念缓存的最小存储接口, 由 cache.Manager 实现.
type ConceptCache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// CacheObserver 接收缓存命中统计, 由 metrics.Collector 实现.
type CacheObserver interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

const conceptCacheType = "concepts"

// CachedConceptExtractor 在抽取服务前加一层 Redis 缓存, 并合并并发的相同请求.
// Only non-empty results are cached so an empty reply is always re-asked.
type CachedConceptExtractor struct {
	next     ConceptExtractor
	cache    ConceptCache
	ttl      time.Duration
	group    singleflight.Group
	observer CacheObserver
	logger   *zap.Logger
}

// NewCachedConceptExtractor wraps next with a cache.
func NewCachedConceptExtractor(next ConceptExtractor, c ConceptCache, ttl time.Duration, logger *zap.Logger) *CachedConceptExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedConceptExtractor{
		next:   next,
		cache:  c,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "concept_cache")),
	}
}

// WithObserver sets the hit/miss observer.
func (c *CachedConceptExtractor) WithObserver(o CacheObserver) *CachedConceptExtractor {
	c.observer = o
	return c
}

// Extract implements ConceptExtractor.
func (c *CachedConceptExtractor) Extract(ctx context.Context, text string, maxConcepts int, premium bool) ([]Concept, error) {
	key := conceptCacheKey(text, maxConcepts, premium)

	var cached []Concept
	err := c.cache.GetJSON(ctx, key, &cached)
	if err == nil {
		if c.observer != nil {
			c.observer.RecordCacheHit(conceptCacheType)
		}
		return cached, nil
	}
	if c.observer != nil {
		c.observer.RecordCacheMiss(conceptCacheType)
	}
	if !cache.IsCacheMiss(err) {
		c.logger.Warn("concept cache read failed", zap.Error(err))
	}

	// 共享调用不随任一调用方取消, 每个调用方各自等待自己的 ctx
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		concepts, err := c.next.Extract(shared, text, maxConcepts, premium)
		if err != nil {
			return nil, err
		}
		if len(concepts) > 0 {
			if err := c.cache.SetJSON(shared, key, concepts, c.ttl); err != nil {
				c.logger.Warn("concept cache write failed", zap.Error(err))
			}
		}
		return concepts, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]Concept), nil
	}
}

func conceptCacheKey(text string, maxConcepts int, premium bool) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(maxConcepts)))
	h.Write([]byte(strconv.FormatBool(premium)))
	return "concepts:" + hex.EncodeToString(h.Sum(nil))
}
