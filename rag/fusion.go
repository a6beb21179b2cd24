package rag

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
)

// ScoredItem 是融合排序的输入/输出单元.
type ScoredItem struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// DefaultRRFK 是 RRF 的平滑常数.
const DefaultRRFK = 60

var (
	// ErrWeightCountMismatch is returned when weights do not line up with the ranked lists.
	ErrWeightCountMismatch = errors.New("rag: weight count does not match list count")
	// ErrDirectionCountMismatch is returned when sort directions do not line up with the scored lists.
	ErrDirectionCountMismatch = errors.New("rag: direction count does not match list count")
)

// RankFuser merges several per-source rankings into one.
type RankFuser interface {
	// Fuse takes per-source lists already in rank order (best first).
	Fuse(lists [][]ScoredItem, limit int) ([]ScoredItem, error)
	Name() string
}

// =============================================================================
// Reciprocal Rank Fusion
// =============================================================================

// RRFFusion 实现 Reciprocal Rank Fusion: score(d) = Σ w_i / (k + rank_i(d)).
type RRFFusion struct {
	k float64
}

// NewRRFFusion creates an RRF fuser. k <= 0 selects DefaultRRFK.
func NewRRFFusion(k float64) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFK
	}
	return &RRFFusion{k: k}
}

// Name returns the fuser name.
func (f *RRFFusion) Name() string { return "rrf" }

// Rerank fuses ranked id lists. Rank starts at 1; nil weights means 1.0 per list.
// Ties keep first-appearance order.
func (f *RRFFusion) Rerank(lists [][]string, weights []float64) ([]ScoredItem, error) {
	if len(lists) == 0 {
		return []ScoredItem{}, nil
	}
	if weights == nil {
		weights = make([]float64, len(lists))
		for i := range weights {
			weights[i] = 1.0
		}
	}
	if len(weights) != len(lists) {
		return nil, fmt.Errorf("%w: %d weights for %d lists", ErrWeightCountMismatch, len(weights), len(lists))
	}

	scores := make(map[string]float64)
	order := make([]string, 0)
	for i, list := range lists {
		for rank, id := range list {
			if _, seen := scores[id]; !seen {
				order = append(order, id)
			}
			scores[id] += weights[i] / (f.k + float64(rank+1))
		}
	}

	fused := make([]ScoredItem, len(order))
	for i, id := range order {
		fused[i] = ScoredItem{ID: id, Score: scores[id]}
	}
	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Score > fused[j].Score
	})
	return fused, nil
}

// RerankScored fuses scored lists by their given order; the scores themselves are discarded
// so sources with incomparable scales contribute by rank only.
func (f *RRFFusion) RerankScored(lists [][]ScoredItem, weights []float64) ([]ScoredItem, error) {
	ranked := make([][]string, len(lists))
	for i, list := range lists {
		ids := make([]string, len(list))
		for j, item := range list {
			ids[j] = item.ID
		}
		ranked[i] = ids
	}
	return f.Rerank(ranked, weights)
}

// Fuse implements RankFuser with equal weights.
func (f *RRFFusion) Fuse(lists [][]ScoredItem, limit int) ([]ScoredItem, error) {
	fused, err := f.RerankScored(lists, nil)
	if err != nil {
		return nil, err
	}
	return GetTopK(fused, limit), nil
}

// GetTopK returns the first k items; k <= 0 returns everything.
func GetTopK(items []ScoredItem, k int) []ScoredItem {
	if k <= 0 || k >= len(items) {
		return items
	}
	return items[:k]
}

// =============================================================================
// Top-K 投票融合
// =============================================================================

// TopKFusion 对每个来源取 top-k（截断处的同分组随机抽样），
// 再按出现在多少个来源的 top-k 中计算覆盖率.
type TopKFusion struct {
	seed   uint64
	seeded bool
}

// NewTopKFusion creates an unseeded top-k fuser.
func NewTopKFusion() *TopKFusion {
	return &TopKFusion{}
}

// NewSeededTopKFusion creates a top-k fuser whose tie sampling is reproducible.
// Every call reseeds, so identical inputs always yield identical selections.
func NewSeededTopKFusion(seed uint64) *TopKFusion {
	return &TopKFusion{seed: seed, seeded: true}
}

// Name returns the fuser name.
func (f *TopKFusion) Name() string { return "top_k" }

func (f *TopKFusion) rng() *rand.Rand {
	if f.seeded {
		return rand.New(rand.NewPCG(f.seed, f.seed))
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// Rerank truncates every list to its top k (higherBetter[i] picks the direction, nil means
// descending for all) and ranks items by coverage = appearances / len(lists).
func (f *TopKFusion) Rerank(lists [][]ScoredItem, k int, higherBetter []bool) ([]ScoredItem, error) {
	if len(lists) == 0 || k <= 0 {
		return []ScoredItem{}, nil
	}
	if higherBetter == nil {
		higherBetter = make([]bool, len(lists))
		for i := range higherBetter {
			higherBetter[i] = true
		}
	}
	if len(higherBetter) != len(lists) {
		return nil, fmt.Errorf("%w: %d directions for %d lists", ErrDirectionCountMismatch, len(higherBetter), len(lists))
	}

	rng := f.rng()
	counts := make(map[string]int)
	order := make([]string, 0)
	for i, list := range lists {
		inList := make(map[string]struct{}, k)
		for _, id := range topKWithSampling(list, k, higherBetter[i], rng) {
			if _, dup := inList[id]; dup {
				continue
			}
			inList[id] = struct{}{}
			if _, seen := counts[id]; !seen {
				order = append(order, id)
			}
			counts[id]++
		}
	}

	n := float64(len(lists))
	fused := make([]ScoredItem, len(order))
	for i, id := range order {
		fused[i] = ScoredItem{ID: id, Score: float64(counts[id]) / n}
	}
	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Score > fused[j].Score
	})
	return fused, nil
}

// Fuse implements RankFuser; all lists are treated as higher-is-better.
func (f *TopKFusion) Fuse(lists [][]ScoredItem, limit int) ([]ScoredItem, error) {
	return f.Rerank(lists, limit, nil)
}

// topKWithSampling groups ids by score, walks the groups best-first and samples uniformly
// without replacement from the group that crosses k. A repeated id takes one slot per
// occurrence; Rerank counts it once per list.
func topKWithSampling(list []ScoredItem, k int, higherBetter bool, rng *rand.Rand) []string {
	groups := make(map[float64][]string)
	scores := make([]float64, 0)
	for _, item := range list {
		if _, ok := groups[item.Score]; !ok {
			scores = append(scores, item.Score)
		}
		groups[item.Score] = append(groups[item.Score], item.ID)
	}
	sort.Float64s(scores)
	if higherBetter {
		for i, j := 0, len(scores)-1; i < j; i, j = i+1, j-1 {
			scores[i], scores[j] = scores[j], scores[i]
		}
	}

	top := make([]string, 0, k)
	for _, score := range scores {
		group := groups[score]
		if len(top)+len(group) <= k {
			top = append(top, group...)
			continue
		}
		remaining := k - len(top)
		for _, idx := range rng.Perm(len(group))[:remaining] {
			top = append(top, group[idx])
		}
		break
	}
	return top
}
