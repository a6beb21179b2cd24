package workflow

import (
	"fmt"
	"strings"

	"github.com/BaSui01/conceptrag/rag"
	"github.com/BaSui01/conceptrag/types"
)

// Status 是请求的终态. PENDING 之后只会被终止节点设置一次.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusOK         Status = "OK"
	StatusNoRetrieve Status = "NO_RETRIEVE"
	StatusError      Status = "ERROR"
)

// Reranker 选择响应中参考文献的融合策略.
type Reranker string

const (
	RerankerRRF  Reranker = "RRF"
	RerankerTopK Reranker = "TOP_K"
)

// ParseReranker accepts "rrf"/"top_k" in any case; empty selects RRF.
func ParseReranker(s string) (Reranker, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(RerankerRRF):
		return RerankerRRF, nil
	case string(RerankerTopK), "TOPK":
		return RerankerTopK, nil
	default:
		return "", fmt.Errorf("unknown reranker %q", s)
	}
}

// Options 是请求级开关.
type Options struct {
	QueryAugment     bool     `json:"query_augment"`
	UseGraph         bool     `json:"use_graph"`
	UseEmbeddings    bool     `json:"use_embeddings"`
	RetrieveOnly     bool     `json:"retrieve_only"`
	PreTranslate     bool     `json:"pre_translate"`
	CheckConsistency bool     `json:"check_consistency"`
	Reranker         Reranker `json:"reranker"`
	MaxRefs          int      `json:"max_refs"`
}

// State 是单个请求在工作流中传递的记录. 节点只读取它, 通过 StateUpdate 修改.
type State struct {
	Query             string
	History           []types.Message
	AdditionalContext string
	Options

	// 所有模型调用的累计 token, 只增不减
	InputTokens  int
	OutputTokens int

	AnswerGenerated bool
	QueryConcepts   []rag.Concept
	AnswerConcepts  []rag.Concept
	EmbeddingDocs   []rag.RetrievedDocument
	GraphDocs       []rag.RetrievedDocument
	Answer          string

	Status Status
}

// NewState creates a pending state for one request.
func NewState(query string, history []types.Message, additionalContext string, opts Options) *State {
	h := make([]types.Message, len(history))
	copy(h, history)
	return &State{
		Query:             query,
		History:           h,
		AdditionalContext: additionalContext,
		Options:           opts,
		Status:            StatusPending,
	}
}

// ExtractionPhase 区分概念抽取节点的两次调用.
type ExtractionPhase int

const (
	// PhaseQuery extracts concepts from the (possibly rewritten) query.
	PhaseQuery ExtractionPhase = iota
	// PhaseAnswer extracts concepts from the generated answer.
	PhaseAnswer
)

func (p ExtractionPhase) String() string {
	if p == PhaseAnswer {
		return "answer"
	}
	return "query"
}

// Phase derives the extraction phase from whether an answer exists yet.
func (s *State) Phase() ExtractionPhase {
	if s.AnswerGenerated {
		return PhaseAnswer
	}
	return PhaseQuery
}

// StateUpdate 是节点返回的部分更新. nil 字段保持不变, token 字段按加法合并.
type StateUpdate struct {
	Query           *string
	ResetHistory    bool
	AnswerGenerated *bool
	QueryConcepts   []rag.Concept
	AnswerConcepts  []rag.Concept
	EmbeddingDocs   []rag.RetrievedDocument
	GraphDocs       []rag.RetrievedDocument
	Answer          *string
	Status          Status

	InputTokens  int
	OutputTokens int

	// 切片字段为 nil 时无法区分"未设置"与"设为空", 由以下标记区分
	setQueryConcepts  bool
	setAnswerConcepts bool
	setEmbeddingDocs  bool
	setGraphDocs      bool
}

// WithQueryConcepts sets the query concepts, including to an empty list.
func (u StateUpdate) WithQueryConcepts(c []rag.Concept) StateUpdate {
	u.QueryConcepts, u.setQueryConcepts = c, true
	return u
}

// WithAnswerConcepts sets the answer concepts, including to an empty list.
func (u StateUpdate) WithAnswerConcepts(c []rag.Concept) StateUpdate {
	u.AnswerConcepts, u.setAnswerConcepts = c, true
	return u
}

// WithEmbeddingDocs sets the embedding documents, including to an empty list.
func (u StateUpdate) WithEmbeddingDocs(d []rag.RetrievedDocument) StateUpdate {
	u.EmbeddingDocs, u.setEmbeddingDocs = d, true
	return u
}

// WithGraphDocs sets the graph documents, including to an empty list.
func (u StateUpdate) WithGraphDocs(d []rag.RetrievedDocument) StateUpdate {
	u.GraphDocs, u.setGraphDocs = d, true
	return u
}

// WithTokens adds token usage to the update.
func (u StateUpdate) WithTokens(input, output int) StateUpdate {
	u.InputTokens += input
	u.OutputTokens += output
	return u
}

func ptr[T any](v T) *T { return &v }
