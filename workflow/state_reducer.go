package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// Reducer defines how a field's current value and an update are merged.
type Reducer[T any] func(current T, update T) T

// LastValueReducer returns the most recent value.
func LastValueReducer[T any]() Reducer[T] {
	return func(_, update T) T {
		return update
	}
}

// SumReducer sums numeric values.
func SumReducer[T ~int | ~int64 | ~float64]() Reducer[T] {
	return func(current, update T) T {
		return current + update
	}
}

// reduceOptional applies r only when the update is present.
func reduceOptional[T any](current *T, update *T, r Reducer[T]) {
	if update != nil {
		*current = r(*current, *update)
	}
}

var (
	// ErrFieldNotOwned is returned when a node's update touches a field it does not own.
	ErrFieldNotOwned = errors.New("workflow: node updated a field it does not own")
	// ErrStatusAlreadySet is returned when a terminal status would be overwritten.
	ErrStatusAlreadySet = errors.New("workflow: status already set")
	// ErrNegativeTokens is returned for a negative token delta.
	ErrNegativeTokens = errors.New("workflow: negative token delta")
)

// field 是 State 中可写字段的位集合.
type field uint16

const (
	fieldQuery field = 1 << iota
	fieldHistory
	fieldAnswerGenerated
	fieldQueryConcepts
	fieldAnswerConcepts
	fieldEmbeddingDocs
	fieldGraphDocs
	fieldAnswer
	fieldStatus
)

var fieldNames = []string{
	"query", "history", "answer_generated", "query_concepts", "answer_concepts",
	"embedding_docs", "graph_docs", "answer", "status",
}

func (f field) String() string {
	var names []string
	for i, name := range fieldNames {
		if f&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	return strings.Join(names, ",")
}

// fieldOwners 列出每个节点允许写入的字段. token 累加不受限制.
var fieldOwners = map[NodeID]field{
	NodeOrchestrator:        fieldAnswerGenerated,
	NodeHistoryConsolidator: fieldQuery | fieldHistory,
	NodeAugmentator:         fieldQuery,
	NodeEmbeddingRetriever:  fieldEmbeddingDocs | fieldAnswer | fieldStatus,
	NodeConceptExtractor:    fieldQueryConcepts | fieldAnswerConcepts | fieldStatus,
	NodeGraphRetriever:      fieldGraphDocs,
	NodeAnswerGenerator:     fieldAnswer | fieldAnswerGenerated,
	NodeConsistencyChecker:  fieldAnswerConcepts | fieldAnswer | fieldStatus,
}

func (u StateUpdate) fields() field {
	var f field
	if u.Query != nil {
		f |= fieldQuery
	}
	if u.ResetHistory {
		f |= fieldHistory
	}
	if u.AnswerGenerated != nil {
		f |= fieldAnswerGenerated
	}
	if u.setQueryConcepts {
		f |= fieldQueryConcepts
	}
	if u.setAnswerConcepts {
		f |= fieldAnswerConcepts
	}
	if u.setEmbeddingDocs {
		f |= fieldEmbeddingDocs
	}
	if u.setGraphDocs {
		f |= fieldGraphDocs
	}
	if u.Answer != nil {
		f |= fieldAnswer
	}
	if u.Status != "" {
		f |= fieldStatus
	}
	return f
}

// Apply merges an update produced by node into the state.
// Tokens are summed; every other field is last-value. The update is rejected
// as a whole if it writes a field the node does not own, sets the status a
// second time, or carries negative token deltas.
func (s *State) Apply(node NodeID, u StateUpdate) error {
	if extra := u.fields() &^ fieldOwners[node]; extra != 0 {
		return fmt.Errorf("%w: %s wrote %s", ErrFieldNotOwned, node, extra)
	}
	if u.Status != "" && s.Status != StatusPending && s.Status != "" {
		return fmt.Errorf("%w: %s -> %s by %s", ErrStatusAlreadySet, s.Status, u.Status, node)
	}
	if u.InputTokens < 0 || u.OutputTokens < 0 {
		return fmt.Errorf("%w: %s reported %d/%d", ErrNegativeTokens, node, u.InputTokens, u.OutputTokens)
	}

	s.InputTokens = SumReducer[int]()(s.InputTokens, u.InputTokens)
	s.OutputTokens = SumReducer[int]()(s.OutputTokens, u.OutputTokens)

	reduceOptional(&s.Query, u.Query, LastValueReducer[string]())
	reduceOptional(&s.AnswerGenerated, u.AnswerGenerated, LastValueReducer[bool]())
	reduceOptional(&s.Answer, u.Answer, LastValueReducer[string]())
	if u.ResetHistory {
		s.History = nil
	}
	if u.setQueryConcepts {
		s.QueryConcepts = u.QueryConcepts
	}
	if u.setAnswerConcepts {
		s.AnswerConcepts = u.AnswerConcepts
	}
	if u.setEmbeddingDocs {
		s.EmbeddingDocs = u.EmbeddingDocs
	}
	if u.setGraphDocs {
		s.GraphDocs = u.GraphDocs
	}
	if u.Status != "" {
		s.Status = u.Status
	}
	return nil
}
