package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/conceptrag"
	"github.com/BaSui01/conceptrag/testutil/fixtures"
	"github.com/BaSui01/conceptrag/testutil/mocks"
	"github.com/BaSui01/conceptrag/types"
	"github.com/BaSui01/conceptrag/workflow"
)

// stubService 记录收到的请求并返回预设响应
type stubService struct {
	mu        sync.Mutex
	requests  []conceptrag.Request
	requestID string
	resp      conceptrag.Response
}

func (s *stubService) Generate(ctx context.Context, req conceptrag.Request) conceptrag.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	s.requestID, _ = types.RequestID(ctx)
	return s.resp
}

func postGenerate(t *testing.T, h *GenerateHandler, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		r.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.HandleGenerate(w, r)
	return w
}

func TestGenerateHandler_DecodesOptions(t *testing.T) {
	svc := &stubService{resp: conceptrag.Response{
		Answer: "ok",
		Status: conceptrag.Status{Code: workflow.StatusOK},
		Trace:  &workflow.ExecutionHistory{RequestID: "x"},
	}}
	h := NewGenerateHandler(svc, 0, zaptest.NewLogger(t))

	w := postGenerate(t, h, `{
		"query": "diabete",
		"history": [{"role": "user", "content": "ciao"}],
		"use_graph": true,
		"use_embeddings": true,
		"check_consistency": true,
		"reranker": "top_k",
		"max_refs": 3
	}`, nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, svc.requests, 1)
	req := svc.requests[0]
	assert.Equal(t, "diabete", req.Query)
	assert.Len(t, req.History, 1)
	assert.True(t, req.UseGraph)
	assert.True(t, req.CheckConsistency)
	assert.False(t, req.RetrieveOnly)
	assert.Equal(t, workflow.RerankerTopK, req.Reranker)
	assert.Equal(t, 3, req.MaxRefs)

	var resp conceptrag.Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Answer)
	assert.Nil(t, resp.Trace, "trace is omitted unless requested")
}

func TestGenerateHandler_RequestID(t *testing.T) {
	svc := &stubService{}
	h := NewGenerateHandler(svc, 0, nil)

	w := postGenerate(t, h, `{"query":"q"}`, http.Header{RequestIDHeader: []string{"abc"}})
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc", svc.requestID)

	w = postGenerate(t, h, `{"query":"q"}`, nil)
	generated := w.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, svc.requestID)
}

func TestGenerateHandler_IncludeTrace(t *testing.T) {
	svc := &stubService{resp: conceptrag.Response{Trace: &workflow.ExecutionHistory{RequestID: "r"}}}
	h := NewGenerateHandler(svc, 0, nil)

	w := postGenerate(t, h, `{"query":"q","include_trace":true}`, nil)
	var resp conceptrag.Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotNil(t, resp.Trace)
	assert.Equal(t, "r", resp.Trace.RequestID)
}

func TestGenerateHandler_RejectsBadRequests(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		contentType string
		body        string
		wantStatus  int
	}{
		{"wrong method", http.MethodGet, "application/json", "", http.StatusMethodNotAllowed},
		{"wrong content type", http.MethodPost, "text/plain", `{"query":"q"}`, http.StatusUnsupportedMediaType},
		{"unknown field", http.MethodPost, "application/json", `{"query":"q","model":"gpt-4"}`, http.StatusBadRequest},
		{"empty query", http.MethodPost, "application/json", `{"query":"  "}`, http.StatusBadRequest},
		{"bad reranker", http.MethodPost, "application/json", `{"query":"q","reranker":"borda"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{}
			h := NewGenerateHandler(svc, 0, nil)

			r := httptest.NewRequest(tt.method, "/v1/generate", strings.NewReader(tt.body))
			r.Header.Set("Content-Type", tt.contentType)
			w := httptest.NewRecorder()
			h.HandleGenerate(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Empty(t, svc.requests)

			var resp Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.False(t, resp.Success)
			assert.Equal(t, string(types.ErrInvalidRequest), resp.Error.Code)
		})
	}
}

func TestGenerateHandler_EndToEnd(t *testing.T) {
	gen := mocks.NewMockGenerator().WithResponse("Insulin.")
	concepts := mocks.NewMockConceptExtractor().On("diabete", fixtures.Diabetes).On("Insulin.", fixtures.Insulin)
	bundle, err := conceptrag.NewBundle(conceptrag.Components{
		Collaborators: workflow.Collaborators{
			LLM:      gen,
			Searcher: mocks.NewMockSearcher(fixtures.EmbeddingDocs()...),
			Graph:    fixtures.MedicalGraph(),
			Concepts: concepts,
		},
		Settings: workflow.DefaultSettings(),
	})
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(NewGenerateHandler(conceptrag.New(bundle), 0, nil).HandleGenerate))
	defer srv.Close()

	res, err := http.Post(srv.URL, "application/json",
		strings.NewReader(`{"query":"diabete","use_graph":true,"use_embeddings":true,"check_consistency":true}`))
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	var resp conceptrag.Response
	require.NoError(t, json.NewDecoder(res.Body).Decode(&resp))
	assert.Equal(t, workflow.StatusOK, resp.Status.Code)
	assert.Equal(t, "Insulin.", resp.Answer)
	assert.Equal(t, 3, resp.References.UsedCount)
	assert.Equal(t, 10, resp.ConsumedTokens.Input)
	assert.Len(t, resp.Concepts.Query, 1)
}

func TestGenerateHandler_WorkflowStatusMapsToHTTP(t *testing.T) {
	tests := []struct {
		name       string
		status     conceptrag.Status
		wantStatus int
	}{
		{"ok", conceptrag.Status{Code: workflow.StatusOK}, http.StatusOK},
		{"no retrieve", conceptrag.Status{Code: workflow.StatusNoRetrieve}, http.StatusOK},
		{"llm failure", conceptrag.Status{Code: workflow.StatusError, ErrorCode: types.ErrLLMFailure}, http.StatusBadGateway},
		{"vector failure", conceptrag.Status{Code: workflow.StatusError, ErrorCode: types.ErrVectorFailure}, http.StatusBadGateway},
		{"graph failure", conceptrag.Status{Code: workflow.StatusError, ErrorCode: types.ErrGraphFailure}, http.StatusBadGateway},
		{"upstream error", conceptrag.Status{Code: workflow.StatusError, ErrorCode: types.ErrUpstreamError}, http.StatusBadGateway},
		{"timeout", conceptrag.Status{Code: workflow.StatusError, ErrorCode: types.ErrTimeout}, http.StatusGatewayTimeout},
		{"no bundle", conceptrag.Status{Code: workflow.StatusError, ErrorCode: types.ErrServiceUnavailable}, http.StatusServiceUnavailable},
		{"workflow failure", conceptrag.Status{Code: workflow.StatusError, ErrorCode: types.ErrWorkflowFailure}, http.StatusInternalServerError},
		{"no code", conceptrag.Status{Code: workflow.StatusError}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{resp: conceptrag.Response{Status: tt.status}}
			w := postGenerate(t, NewGenerateHandler(svc, 0, zaptest.NewLogger(t)), `{"query":"q"}`, nil)

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp conceptrag.Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.status.Code, resp.Status.Code)
		})
	}
}

func TestGenerateHandler_UpstreamFailureIsBadGateway(t *testing.T) {
	gen := mocks.NewMockGenerator().WithError(errors.New("503 from upstream"))
	bundle, err := conceptrag.NewBundle(conceptrag.Components{
		Collaborators: workflow.Collaborators{
			LLM:      gen,
			Searcher: mocks.NewMockSearcher(fixtures.EmbeddingDocs()...),
			Graph:    fixtures.MedicalGraph(),
			Concepts: mocks.NewMockConceptExtractor(),
		},
		Settings: workflow.DefaultSettings(),
	})
	require.NoError(t, err)

	w := postGenerate(t, NewGenerateHandler(conceptrag.New(bundle), 0, zaptest.NewLogger(t)), `{"query":"q","use_embeddings":true}`, nil)
	require.Equal(t, http.StatusBadGateway, w.Code, w.Body.String())

	var resp conceptrag.Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, workflow.StatusError, resp.Status.Code)
	assert.Equal(t, types.ErrLLMFailure, resp.Status.ErrorCode)
	assert.Contains(t, resp.Status.Details, "503 from upstream")
	assert.Equal(t, "", resp.Answer)
}
