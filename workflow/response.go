package workflow

import (
	"github.com/BaSui01/conceptrag/rag"
)

// References 是响应中的参考文献部分.
type References struct {
	EmbeddingDocs []rag.RetrievedDocument `json:"embedding_docs"`
	GraphDocs     []rag.RetrievedDocument `json:"graph_docs"`
	FusedRanking  []rag.ScoredItem        `json:"fused_ranking"`
	// UsedCount 是注入生成上下文的来源数
	UsedCount int `json:"used_count"`
}

// ReferenceFuser 按请求选择的策略融合两路检索结果.
type ReferenceFuser struct {
	rrf  *rag.RRFFusion
	topK *rag.TopKFusion
}

// NewReferenceFuser creates a fuser; seed 0 leaves top-k tie sampling unseeded.
func NewReferenceFuser(seed uint64) *ReferenceFuser {
	topK := rag.NewTopKFusion()
	if seed != 0 {
		topK = rag.NewSeededTopKFusion(seed)
	}
	return &ReferenceFuser{rrf: rag.NewRRFFusion(rag.DefaultRRFK), topK: topK}
}

// Fuse merges embedding documents (higher score is better) with graph documents
// (lower hop count is better) by chunk id and keeps at most maxRefs items.
// Empty sources do not take part in the vote.
func (f *ReferenceFuser) Fuse(reranker Reranker, embeddingDocs, graphDocs []rag.RetrievedDocument, maxRefs int) ([]rag.ScoredItem, error) {
	var (
		lists        [][]rag.ScoredItem
		higherBetter []bool
	)
	for _, src := range []struct {
		docs   []rag.RetrievedDocument
		higher bool
	}{
		{embeddingDocs, true},
		{graphDocs, false},
	} {
		if len(src.docs) == 0 {
			continue
		}
		items := make([]rag.ScoredItem, len(src.docs))
		for i, d := range src.docs {
			items[i] = rag.ScoredItem{ID: d.SourceID(), Score: d.Score}
		}
		lists = append(lists, items)
		higherBetter = append(higherBetter, src.higher)
	}
	if len(lists) == 0 {
		return []rag.ScoredItem{}, nil
	}

	switch reranker {
	case RerankerTopK:
		k := maxRefs
		if k <= 0 {
			k = maxListLen(lists)
		}
		fused, err := f.topK.Rerank(lists, k, higherBetter)
		if err != nil {
			return nil, err
		}
		return rag.GetTopK(fused, maxRefs), nil
	default:
		fused, err := f.rrf.RerankScored(lists, nil)
		if err != nil {
			return nil, err
		}
		return rag.GetTopK(fused, maxRefs), nil
	}
}

func maxListLen(lists [][]rag.ScoredItem) int {
	n := 0
	for _, l := range lists {
		if len(l) > n {
			n = len(l)
		}
	}
	return n
}

// BuildReferences assembles the references of a finished run.
func (f *ReferenceFuser) BuildReferences(s *State) (References, error) {
	fused, err := f.Fuse(s.Reranker, s.EmbeddingDocs, s.GraphDocs, s.MaxRefs)
	if err != nil {
		return References{}, err
	}
	refs := References{
		EmbeddingDocs: nonNilDocs(s.EmbeddingDocs),
		GraphDocs:     nonNilDocs(s.GraphDocs),
		FusedRanking:  fused,
	}
	if s.AnswerGenerated && !s.RetrieveOnly {
		refs.UsedCount = BuildContext(s.EmbeddingDocs, s.GraphDocs, s.AdditionalContext).Used
	}
	return refs, nil
}

func nonNilDocs(docs []rag.RetrievedDocument) []rag.RetrievedDocument {
	if docs == nil {
		return []rag.RetrievedDocument{}
	}
	return docs
}
