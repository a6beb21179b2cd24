package rag

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/conceptrag/internal/cache"
)

func TestParseConcepts(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []Concept
		wantErr bool
	}{
		{
			name: "records",
			body: `[{"id":"195967001","name":"Asthma","match_score":0.9,"semantic_tags":["disorder"]}]`,
			want: []Concept{{ID: "195967001", Name: "Asthma", MatchScore: 0.9, SemanticTags: []string{"disorder"}}},
		},
		{
			name: "columns as arrays",
			body: `{"id":["1","2"],"name":["A","B"],"match_score":[0.5,0.7],"semantic_tags":[["x"],[]]}`,
			want: []Concept{
				{ID: "1", Name: "A", MatchScore: 0.5, SemanticTags: []string{"x"}},
				{ID: "2", Name: "B", MatchScore: 0.7, SemanticTags: []string{}},
			},
		},
		{
			name: "columns as indexed objects",
			body: `{"id":{"1":"2","0":"1"},"name":{"0":"A","1":"B"}}`,
			want: []Concept{{ID: "1", Name: "A"}, {ID: "2", Name: "B"}},
		},
		{name: "empty list", body: `[]`, want: []Concept{}},
		{name: "empty object", body: `{}`, want: []Concept{}},
		{name: "not json", body: `<html>`, wantErr: true},
		{name: "ragged columns", body: `{"id":["1","2"],"name":["A"]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConcepts([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTTPConceptExtractor_Extract(t *testing.T) {
	var lastQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastQuery.Store(r.URL.Query())
		_, _ = w.Write([]byte(`[{"id":"c1","name":"Asthma","match_score":1,"semantic_tags":[]}]`))
	}))
	defer srv.Close()

	e := NewHTTPConceptExtractor(HTTPConceptExtractorConfig{URL: srv.URL + "/extract"}, zap.NewNop())
	got, err := e.Extract(context.Background(), "asma bronchiale", 100, true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].ID)

	q := lastQuery.Load().(url.Values)
	assert.Equal(t, "asma bronchiale", q.Get("text"))
	assert.Equal(t, "100", q.Get("o"))
	assert.Equal(t, "True", q.Get("p"))
}

func TestHTTPConceptExtractor_NonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	e := NewHTTPConceptExtractor(HTTPConceptExtractorConfig{URL: srv.URL}, nil)
	_, err := e.Extract(context.Background(), "text", 100, false)
	assert.Error(t, err)
}

type countingExtractor struct {
	calls    atomic.Int32
	concepts []Concept
}

func (c *countingExtractor) Extract(context.Context, string, int, bool) ([]Concept, error) {
	c.calls.Add(1)
	return c.concepts, nil
}

func setupConceptCache(t *testing.T) *cache.Manager {
	t.Helper()
	mr := miniredis.RunT(t)
	m, err := cache.NewManager(cache.Config{Addr: mr.Addr(), DefaultTTL: time.Minute}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestCachedConceptExtractor_HitsCache(t *testing.T) {
	next := &countingExtractor{concepts: []Concept{{ID: "c1", Name: "Asthma"}}}
	c := NewCachedConceptExtractor(next, setupConceptCache(t), time.Minute, nil)
	ctx := context.Background()

	first, err := c.Extract(ctx, "asthma", 100, false)
	require.NoError(t, err)
	second, err := c.Extract(ctx, "asthma", 100, false)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), next.calls.Load())

	// premium flag is part of the key
	_, err = c.Extract(ctx, "asthma", 100, true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestCachedConceptExtractor_DoesNotCacheEmpty(t *testing.T) {
	next := &countingExtractor{}
	c := NewCachedConceptExtractor(next, setupConceptCache(t), time.Minute, nil)

	for i := 0; i < 2; i++ {
		got, err := c.Extract(context.Background(), "nothing here", 100, false)
		require.NoError(t, err)
		assert.Empty(t, got)
	}
	assert.Equal(t, int32(2), next.calls.Load())
}

// gatedExtractor 在 gate 关闭前阻塞, 并遵守调用 ctx 的取消
type gatedExtractor struct {
	calls   atomic.Int32
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedExtractor) Extract(ctx context.Context, _ string, _ int, _ bool) ([]Concept, error) {
	if g.calls.Add(1) == 1 {
		close(g.entered)
	}
	select {
	case <-g.gate:
		return []Concept{{ID: "c1", Name: "Asthma"}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// readSignalCache 每次读取都未命中, 并在 reads 上通知
type readSignalCache struct {
	reads chan struct{}
}

func (c *readSignalCache) GetJSON(context.Context, string, any) error {
	c.reads <- struct{}{}
	return cache.ErrCacheMiss
}

func (c *readSignalCache) SetJSON(context.Context, string, any, time.Duration) error { return nil }

func TestCachedConceptExtractor_CancelledCallerDoesNotFailOthers(t *testing.T) {
	next := &gatedExtractor{entered: make(chan struct{}), gate: make(chan struct{})}
	store := &readSignalCache{reads: make(chan struct{}, 2)}
	c := NewCachedConceptExtractor(next, store, time.Minute, nil)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Extract(firstCtx, "asthma", 100, false)
		firstErr <- err
	}()
	<-store.reads
	<-next.entered

	type result struct {
		concepts []Concept
		err      error
	}
	second := make(chan result, 1)
	go func() {
		got, err := c.Extract(context.Background(), "asthma", 100, false)
		second <- result{got, err}
	}()
	<-store.reads
	// 等待第二个调用方并入进行中的请求
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(next.gate)
	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, []Concept{{ID: "c1", Name: "Asthma"}}, res.concepts)
	assert.Equal(t, int32(1), next.calls.Load())
}
