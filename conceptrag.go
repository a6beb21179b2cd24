// Package conceptrag answers questions over a document corpus with
// embedding and concept-graph retrieval, then checks the answer's concepts
// against the query's on the same graph.
//
// Usage:
//
//	bundle, err := conceptrag.BuildBundle(ctx, cfg, collector, logger)
//	svc := conceptrag.New(bundle, conceptrag.WithLogger(logger))
//	resp := svc.Generate(ctx, conceptrag.Request{Query: "...", Options: workflow.Options{UseGraph: true}})
//
// The bundle of clients can be replaced at any time with [Service.Swap];
// requests already running keep the bundle they started with.
package conceptrag

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/BaSui01/conceptrag/internal/metrics"
	"github.com/BaSui01/conceptrag/internal/telemetry"
	"github.com/BaSui01/conceptrag/rag"
	"github.com/BaSui01/conceptrag/types"
	"github.com/BaSui01/conceptrag/workflow"
)

// =============================================================================
// 📦 请求与响应
// =============================================================================

// Request 是一次问答请求.
type Request struct {
	Query             string          `json:"query"`
	History           []types.Message `json:"history,omitempty"`
	AdditionalContext string          `json:"additional_context,omitempty"`
	workflow.Options
}

// Normalize validates the request and canonicalizes the reranker name.
func (r *Request) Normalize() error {
	if strings.TrimSpace(r.Query) == "" {
		return errors.New("query is empty")
	}
	reranker, err := workflow.ParseReranker(string(r.Reranker))
	if err != nil {
		return err
	}
	r.Reranker = reranker
	if r.MaxRefs < 0 {
		return errors.New("max_refs must not be negative")
	}
	return nil
}

// TokenUsage 是请求累计消耗的 token.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Concepts 是查询与答案中抽取到的概念.
type Concepts struct {
	Query  []rag.Concept `json:"query"`
	Answer []rag.Concept `json:"answer"`
}

// Status 是请求的终态, 出错时 Details 携带原因.
type Status struct {
	Code    workflow.Status `json:"code"`
	Details string          `json:"details,omitempty"`
	// ErrorCode 仅在 Code 为 ERROR 时设置
	ErrorCode types.ErrorCode `json:"error_code,omitempty"`
}

// Response 是一次问答的结果.
type Response struct {
	Answer         string                     `json:"answer"`
	ConsumedTokens TokenUsage                 `json:"consumed_tokens"`
	References     workflow.References        `json:"references"`
	Concepts       Concepts                   `json:"concepts"`
	Status         Status                     `json:"status"`
	Trace          *workflow.ExecutionHistory `json:"trace,omitempty"`
}

// =============================================================================
// 🎯 Service
// =============================================================================

// Service runs requests against the current bundle. Safe for concurrent use.
type Service struct {
	bundle  atomic.Pointer[Bundle]
	metrics *metrics.Collector
	logger  *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records per-request metrics on collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(s *Service) { s.metrics = collector }
}

// New creates a service over bundle. bundle may be nil until the first Swap.
func New(bundle *Bundle, opts ...Option) *Service {
	s := &Service{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "conceptrag"))
	if bundle != nil {
		s.bundle.Store(bundle)
	}
	return s
}

// Bundle returns the bundle new requests will use.
func (s *Service) Bundle() *Bundle {
	return s.bundle.Load()
}

// Swap installs bundle for new requests and returns the previous one.
// The caller owns the returned bundle and closes it once in-flight requests drain.
func (s *Service) Swap(bundle *Bundle) *Bundle {
	old := s.bundle.Swap(bundle)
	s.logger.Info("client bundle swapped")
	return old
}

// Generate runs one request. Failures are reported in Response.Status; the
// answer is never partial.
func (s *Service) Generate(ctx context.Context, req Request) Response {
	start := time.Now()
	if _, ok := types.RequestID(ctx); !ok {
		ctx = types.WithRequestID(ctx, uuid.NewString())
	}
	requestID, _ := types.RequestID(ctx)
	logger := s.logger.With(zap.String("request_id", requestID))

	ctx, span := telemetry.StartSpan(ctx, "conceptrag.generate",
		attribute.Bool("use_graph", req.UseGraph),
		attribute.Bool("use_embeddings", req.UseEmbeddings),
		attribute.Bool("retrieve_only", req.RetrieveOnly))

	resp, err := s.generate(ctx, req)
	telemetry.EndSpan(span, err)

	if err != nil {
		logger.Error("request failed", zap.Error(err))
		resp.Answer = ""
		resp.References = emptyReferences()
		resp.Status = Status{Code: workflow.StatusError, Details: err.Error(), ErrorCode: errorCode(err)}
	} else {
		logger.Info("request completed",
			zap.String("status", string(resp.Status.Code)),
			zap.Int("input_tokens", resp.ConsumedTokens.Input),
			zap.Int("output_tokens", resp.ConsumedTokens.Output),
			zap.Duration("duration", time.Since(start)))
	}
	s.metrics.RecordWorkflow(string(resp.Status.Code), time.Since(start),
		resp.ConsumedTokens.Input, resp.ConsumedTokens.Output, resp.References.UsedCount)
	return resp
}

// acquire 取当前 bundle 并计入进行中请求. 计数之后 bundle 已被换出时重取,
// 保证 Retire 看到的计数包含所有仍在使用它的请求.
func (s *Service) acquire() *Bundle {
	for {
		b := s.bundle.Load()
		if b == nil {
			return nil
		}
		b.acquire()
		if s.bundle.Load() == b {
			return b
		}
		b.release()
	}
}

func (s *Service) generate(ctx context.Context, req Request) (Response, error) {
	resp := Response{Concepts: Concepts{Query: []rag.Concept{}, Answer: []rag.Concept{}}}

	b := s.acquire()
	if b == nil {
		return resp, types.NewError(types.ErrServiceUnavailable, "no client bundle configured")
	}
	defer b.release()
	if err := req.Normalize(); err != nil {
		return resp, types.NewError(types.ErrInvalidRequest, err.Error())
	}
	opts := req.Options
	if opts.MaxRefs == 0 {
		opts.MaxRefs = b.maxRefs
	}

	state := workflow.NewState(req.Query, req.History, req.AdditionalContext, opts)
	trace, err := b.engine.Run(ctx, state)
	resp.Trace = trace
	resp.ConsumedTokens = TokenUsage{Input: state.InputTokens, Output: state.OutputTokens}
	if err != nil {
		return resp, err
	}

	refs, err := b.fuser.BuildReferences(state)
	if err != nil {
		return resp, types.NewError(types.ErrInternalError, "fuse references").WithCause(err)
	}
	resp.Answer = state.Answer
	resp.References = refs
	resp.Concepts = Concepts{Query: nonNilConcepts(state.QueryConcepts), Answer: nonNilConcepts(state.AnswerConcepts)}
	resp.Status = Status{Code: state.Status}
	return resp, nil
}

func errorCode(err error) types.ErrorCode {
	if code := types.GetErrorCode(err); code != "" {
		return code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.ErrTimeout
	}
	return types.ErrWorkflowFailure
}

func emptyReferences() workflow.References {
	return workflow.References{
		EmbeddingDocs: []rag.RetrievedDocument{},
		GraphDocs:     []rag.RetrievedDocument{},
		FusedRanking:  []rag.ScoredItem{},
	}
}

func nonNilConcepts(c []rag.Concept) []rag.Concept {
	if c == nil {
		return []rag.Concept{}
	}
	return c
}
