package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/BaSui01/conceptrag/internal/telemetry"
	"github.com/BaSui01/conceptrag/llm"
	"github.com/BaSui01/conceptrag/rag"
	"github.com/BaSui01/conceptrag/types"
)

// RetrieveOnlyPlaceholder 是关闭回答生成时返回的固定文本.
const RetrieveOnlyPlaceholder = "*Nessuna risposta generata. Le risposte sono disattivate*"

// Collaborators 是节点调用的外部服务. Searcher 与 Graph 只在对应开关打开时需要.
type Collaborators struct {
	LLM      llm.Generator
	Searcher rag.Searcher
	Graph    rag.GraphClient
	Concepts rag.ConceptExtractor
}

// CollaboratorRecorder 接收外部调用的耗时与错误, 由 metrics.Collector 实现.
type CollaboratorRecorder interface {
	RecordCollaboratorCall(collaborator, operation string, duration time.Duration, err error)
}

// Settings 是节点的静态参数.
type Settings struct {
	TopK               int
	MinScore           float64
	RetrievalMaxHops   int
	ConsistencyMaxHops int
	MaxConcepts        int
	// CallTimeout 约束单次外部调用, 0 表示只受请求 context 约束
	CallTimeout   time.Duration
	PivotSource   string
	PivotTarget   string
	WarningBanner string
}

// DefaultSettings returns the settings used when the config leaves them unset.
func DefaultSettings() Settings {
	return Settings{
		TopK:               10,
		MinScore:           0.4,
		RetrievalMaxHops:   3,
		ConsistencyMaxHops: 5,
		MaxConcepts:        100,
		CallTimeout:        2 * time.Minute,
		PivotSource:        "Italian",
		PivotTarget:        "English",
		WarningBanner:      rag.DefaultWarningBanner,
	}
}

// Pipeline 持有协作者并提供八个节点的实现.
type Pipeline struct {
	collab   Collaborators
	settings Settings
	prompts  *Prompts
	scorer   *rag.GraphPathScorer
	checker  *rag.ConsistencyChecker
	recorder CollaboratorRecorder
	logger   *zap.Logger
}

// NewPipeline validates the collaborators and builds the node set.
func NewPipeline(collab Collaborators, prompts *Prompts, settings Settings, recorder CollaboratorRecorder, logger *zap.Logger) (*Pipeline, error) {
	if collab.LLM == nil {
		return nil, errors.New("workflow: language model is required")
	}
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		collab:   collab,
		settings: settings,
		prompts:  prompts,
		recorder: recorder,
		logger:   logger.With(zap.String("component", "workflow_nodes")),
	}
	if collab.Graph != nil {
		p.scorer = rag.NewGraphPathScorer(collab.Graph, logger)
		p.checker = rag.NewConsistencyChecker(collab.Graph, settings.ConsistencyMaxHops, settings.WarningBanner, logger)
	}
	return p, nil
}

// Nodes returns the transition table for NewEngine.
func (p *Pipeline) Nodes() map[NodeID]NodeFunc {
	return map[NodeID]NodeFunc{
		NodeOrchestrator:        p.orchestrator,
		NodeHistoryConsolidator: p.historyConsolidator,
		NodeAugmentator:         p.augmentator,
		NodeEmbeddingRetriever:  p.embeddingRetriever,
		NodeConceptExtractor:    p.conceptExtractor,
		NodeGraphRetriever:      p.graphRetriever,
		NodeAnswerGenerator:     p.answerGenerator,
		NodeConsistencyChecker:  p.consistencyChecker,
	}
}

// =============================================================================
// 🔧 外部调用
// =============================================================================

// call 为一次外部调用加上超时、span 和指标.
func call[T any](ctx context.Context, p *Pipeline, collaborator, op string, fn func(context.Context) (T, error)) (T, error) {
	if p.settings.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.settings.CallTimeout)
		defer cancel()
	}
	ctx, span := telemetry.StartSpan(ctx, collaborator+"."+op,
		attribute.String("collaborator", collaborator))

	start := time.Now()
	out, err := fn(ctx)
	if p.recorder != nil {
		p.recorder.RecordCollaboratorCall(collaborator, op, time.Since(start), err)
	}
	telemetry.EndSpan(span, err)
	return out, err
}

func (p *Pipeline) generate(ctx context.Context, op string, prompt Prompt, vars map[string]string, tier llm.Tier) (llm.Generation, error) {
	gen, err := call(ctx, p, "llm", op, func(ctx context.Context) (llm.Generation, error) {
		return p.collab.LLM.Generate(ctx, prompt.Render(vars), tier)
	})
	if err != nil {
		return llm.Generation{}, types.NewError(types.ErrLLMFailure, op+" failed").WithCause(err)
	}
	return gen, nil
}

// extractConcepts 调用抽取服务; 结果为空 (含失败) 时以 premium 模式重试一次.
// 失败只记日志, 返回空列表.
func (p *Pipeline) extractConcepts(ctx context.Context, text string, phase ExtractionPhase) []rag.Concept {
	if p.collab.Concepts == nil {
		p.logger.Warn("concept extraction not configured", zap.Stringer("phase", phase))
		return []rag.Concept{}
	}
	attempt := func(premium bool) []rag.Concept {
		concepts, err := call(ctx, p, "concepts", "extract", func(ctx context.Context) ([]rag.Concept, error) {
			return p.collab.Concepts.Extract(ctx, text, p.settings.MaxConcepts, premium)
		})
		if err != nil {
			p.logger.Warn("concept extraction degraded",
				zap.Stringer("phase", phase),
				zap.Bool("premium", premium),
				zap.Error(err))
			return nil
		}
		return concepts
	}

	concepts := attempt(false)
	if len(concepts) == 0 {
		p.logger.Debug("no concepts found, retrying in premium mode", zap.Stringer("phase", phase))
		concepts = attempt(true)
	}
	if concepts == nil {
		concepts = []rag.Concept{}
	}
	return concepts
}

// =============================================================================
// 🎯 节点
// =============================================================================

func (p *Pipeline) orchestrator(_ context.Context, s *State) (StateUpdate, NodeID, error) {
	p.logger.Info("dispatching request",
		zap.Int("history", len(s.History)),
		zap.Bool("query_augment", s.QueryAugment),
		zap.Bool("use_graph", s.UseGraph),
		zap.Bool("use_embeddings", s.UseEmbeddings),
		zap.Bool("retrieve_only", s.RetrieveOnly),
		zap.Bool("pre_translate", s.PreTranslate),
		zap.Bool("check_consistency", s.CheckConsistency))

	u := StateUpdate{AnswerGenerated: ptr(false)}
	if types.HasUserTurn(s.History) {
		return u, NodeHistoryConsolidator, nil
	}
	return u, NodeAugmentator, nil
}

func (p *Pipeline) historyConsolidator(ctx context.Context, s *State) (StateUpdate, NodeID, error) {
	gen, err := p.generate(ctx, "consolidate", p.prompts.HistoryConsolidation, map[string]string{
		"question": s.Query,
		"history":  types.FormatHistory(s.History),
	}, llm.TierStandard)
	if err != nil {
		return StateUpdate{}, Terminal, err
	}
	p.logger.Info("history consolidated", zap.Int("query_len", len(gen.Text)))
	u := StateUpdate{Query: ptr(gen.Text), ResetHistory: true}.WithTokens(gen.InputTokens, gen.OutputTokens)
	return u, NodeOrchestrator, nil
}

func (p *Pipeline) augmentator(ctx context.Context, s *State) (StateUpdate, NodeID, error) {
	var u StateUpdate
	if s.QueryAugment {
		gen, err := p.generate(ctx, "expand_query", p.prompts.QueryExpansion, map[string]string{
			"question": s.Query,
		}, llm.TierStandard)
		if err != nil {
			return StateUpdate{}, Terminal, err
		}
		u = StateUpdate{Query: ptr(gen.Text)}.WithTokens(gen.InputTokens, gen.OutputTokens)
	}
	if s.UseEmbeddings || s.UseGraph {
		return u, NodeEmbeddingRetriever, nil
	}
	return u, NodeAnswerGenerator, nil
}

func (p *Pipeline) embeddingRetriever(ctx context.Context, s *State) (StateUpdate, NodeID, error) {
	if !s.UseEmbeddings {
		return StateUpdate{}, NodeConceptExtractor, nil
	}
	if p.collab.Searcher == nil {
		return StateUpdate{}, Terminal, types.NewError(types.ErrVectorFailure, "vector search not configured")
	}

	query := s.Query
	docs, err := call(ctx, p, "vector", "search", func(ctx context.Context) ([]rag.RetrievedDocument, error) {
		return p.collab.Searcher.Search(ctx, query, p.settings.TopK, p.settings.MinScore)
	})
	if err != nil {
		return StateUpdate{}, Terminal, types.NewError(types.ErrVectorFailure, "similarity search failed").WithCause(err)
	}
	p.logger.Info("documents retrieved", zap.Int("count", len(docs)))

	if docs == nil {
		docs = []rag.RetrievedDocument{}
	}
	u := StateUpdate{}.WithEmbeddingDocs(docs)
	if len(docs) == 0 && s.AdditionalContext == "" {
		u.Answer = ptr("")
		u.Status = StatusNoRetrieve
		return u, Terminal, nil
	}
	return u, NodeConceptExtractor, nil
}

func (p *Pipeline) conceptExtractor(ctx context.Context, s *State) (StateUpdate, NodeID, error) {
	phase := s.Phase()

	if !s.UseGraph {
		if phase == PhaseAnswer {
			return StateUpdate{Status: StatusOK}, Terminal, nil
		}
		return StateUpdate{}, NodeAnswerGenerator, nil
	}
	if phase == PhaseAnswer && s.RetrieveOnly {
		return StateUpdate{Status: StatusOK}, Terminal, nil
	}

	text := s.Query
	if phase == PhaseAnswer {
		text = s.Answer
	}

	var u StateUpdate
	if s.PreTranslate {
		gen, err := p.generate(ctx, "translate", p.prompts.Translation, map[string]string{
			"source_lang": p.settings.PivotSource,
			"target_lang": p.settings.PivotTarget,
			"source_text": text,
		}, llm.TierPro)
		if err != nil {
			return StateUpdate{}, Terminal, err
		}
		text = gen.Text
		u = u.WithTokens(gen.InputTokens, gen.OutputTokens)
	}

	concepts := p.extractConcepts(ctx, text, phase)
	p.logger.Info("concepts extracted", zap.Stringer("phase", phase), zap.Int("count", len(concepts)))

	if phase == PhaseQuery {
		return u.WithQueryConcepts(concepts), NodeGraphRetriever, nil
	}
	u = u.WithAnswerConcepts(concepts)
	if !s.CheckConsistency {
		u.Status = StatusOK
		return u, Terminal, nil
	}
	return u, NodeConsistencyChecker, nil
}

func (p *Pipeline) graphRetriever(ctx context.Context, s *State) (StateUpdate, NodeID, error) {
	if len(s.QueryConcepts) == 0 {
		return StateUpdate{}.WithGraphDocs([]rag.RetrievedDocument{}), NodeAnswerGenerator, nil
	}
	if p.scorer == nil {
		return StateUpdate{}, Terminal, types.NewError(types.ErrGraphFailure, "concept graph not configured")
	}

	ids := rag.ConceptIDs(s.QueryConcepts)
	docs, err := call(ctx, p, "graph", "neighbors", func(ctx context.Context) ([]rag.RetrievedDocument, error) {
		return p.scorer.RetrieveDocuments(ctx, ids, p.settings.RetrievalMaxHops, rag.AggregateMinimum)
	})
	if err != nil {
		return StateUpdate{}, Terminal, types.NewError(types.ErrGraphFailure, "graph retrieval failed").WithCause(err)
	}
	p.logger.Info("graph documents retrieved", zap.Int("count", len(docs)))
	return StateUpdate{}.WithGraphDocs(docs), NodeAnswerGenerator, nil
}

func (p *Pipeline) answerGenerator(ctx context.Context, s *State) (StateUpdate, NodeID, error) {
	if s.RetrieveOnly {
		return StateUpdate{Answer: ptr(RetrieveOnlyPlaceholder), AnswerGenerated: ptr(true)}, NodeConceptExtractor, nil
	}

	block := BuildContext(s.EmbeddingDocs, s.GraphDocs, s.AdditionalContext)
	var (
		gen llm.Generation
		err error
	)
	if block.Text != "" {
		gen, err = p.generate(ctx, "answer", p.prompts.QuestionWithContext, map[string]string{
			"question": s.Query,
			"context":  block.Text,
		}, llm.TierPro)
	} else {
		gen, err = p.generate(ctx, "answer", p.prompts.QuestionOpen, map[string]string{
			"question": s.Query,
		}, llm.TierPro)
	}
	if err != nil {
		return StateUpdate{}, Terminal, err
	}
	p.logger.Info("answer generated", zap.Int("sources", block.Used), zap.String("model", gen.Model))

	u := StateUpdate{Answer: ptr(gen.Text), AnswerGenerated: ptr(true)}.WithTokens(gen.InputTokens, gen.OutputTokens)
	return u, NodeConceptExtractor, nil
}

func (p *Pipeline) consistencyChecker(ctx context.Context, s *State) (StateUpdate, NodeID, error) {
	if p.checker == nil {
		return StateUpdate{}, Terminal, types.NewError(types.ErrGraphFailure, "concept graph not configured")
	}
	report, err := call(ctx, p, "graph", "shortest_path", func(ctx context.Context) (rag.ConsistencyReport, error) {
		return p.checker.Check(ctx, s.QueryConcepts, s.AnswerConcepts)
	})
	if err != nil {
		return StateUpdate{}, Terminal, types.NewError(types.ErrGraphFailure, "consistency check failed").WithCause(err)
	}

	u := StateUpdate{Status: StatusOK}.WithAnswerConcepts(report.AnswerConcepts)
	if report.Flagged() {
		u.Answer = ptr(p.checker.Annotate(s.Answer, report))
	}
	return u, Terminal, nil
}

// =============================================================================
// 📚 上下文组装
// =============================================================================

// ContextBlock 是注入生成提示词的参考资料.
type ContextBlock struct {
	Text string
	// Used 是注入的来源数 (含附加上下文)
	Used int
	// GraphDocs 是实际注入的图文档
	GraphDocs []rag.RetrievedDocument
}

// scoreEpsilon 用于判断图文档是否与最小跳数相同.
const scoreEpsilon = 1e-9

// ClosestGraphDocs returns the stable prefix of docs (sorted ascending by score)
// whose score equals the minimum.
func ClosestGraphDocs(docs []rag.RetrievedDocument) []rag.RetrievedDocument {
	if len(docs) == 0 {
		return nil
	}
	minScore := docs[0].Score
	for _, d := range docs[1:] {
		if d.Score < minScore {
			minScore = d.Score
		}
	}
	closest := make([]rag.RetrievedDocument, 0, len(docs))
	for _, d := range docs {
		if d.Score-minScore <= scoreEpsilon {
			closest = append(closest, d)
		}
	}
	return closest
}

// BuildContext concatenates embedding documents, the closest graph documents whose
// chunk was not already retrieved by embeddings, and the additional context.
func BuildContext(embeddingDocs, graphDocs []rag.RetrievedDocument, additional string) ContextBlock {
	var parts []string
	used := make(map[string]struct{}, len(embeddingDocs))
	for i, d := range embeddingDocs {
		parts = append(parts, fmt.Sprintf("Source %d:\n\"%s\"", i+1, d.Content))
		used[d.SourceID()] = struct{}{}
	}

	var injected []rag.RetrievedDocument
	for _, d := range ClosestGraphDocs(graphDocs) {
		if _, dup := used[d.SourceID()]; dup {
			continue
		}
		injected = append(injected, d)
		parts = append(parts, fmt.Sprintf("Source KG%d:\n\"%s\"", len(injected), d.Content))
	}

	if additional != "" {
		parts = append(parts, fmt.Sprintf("Source [0]:\n\"%s\"", additional))
	}
	return ContextBlock{
		Text:      strings.Join(parts, "\n\n"),
		Used:      len(parts),
		GraphDocs: injected,
	}
}
