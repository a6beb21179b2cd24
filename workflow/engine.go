package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/BaSui01/conceptrag/internal/telemetry"
	"github.com/BaSui01/conceptrag/types"
)

// NodeID 枚举工作流节点.
type NodeID int

const (
	// Terminal ends the run; it is never executed.
	Terminal NodeID = iota
	NodeOrchestrator
	NodeHistoryConsolidator
	NodeAugmentator
	NodeEmbeddingRetriever
	NodeConceptExtractor
	NodeGraphRetriever
	NodeAnswerGenerator
	NodeConsistencyChecker
)

var nodeNames = map[NodeID]string{
	Terminal:                "terminal",
	NodeOrchestrator:        "orchestrator",
	NodeHistoryConsolidator: "history_consolidator",
	NodeAugmentator:         "augmentator",
	NodeEmbeddingRetriever:  "embedding_retriever",
	NodeConceptExtractor:    "concept_extractor",
	NodeGraphRetriever:      "graph_retriever",
	NodeAnswerGenerator:     "answer_generator",
	NodeConsistencyChecker:  "consistency_checker",
}

func (n NodeID) String() string {
	if name, ok := nodeNames[n]; ok {
		return name
	}
	return fmt.Sprintf("node(%d)", int(n))
}

// NodeFunc 是一个节点的转移函数. 节点拿到的是状态快照, 对它的修改会被丢弃;
// 所有变更都必须通过返回的 StateUpdate 表达.
type NodeFunc func(ctx context.Context, state *State) (StateUpdate, NodeID, error)

var (
	// ErrVisitLimitExceeded signals a routing loop.
	ErrVisitLimitExceeded = errors.New("workflow: node visit limit exceeded")
	// ErrUnknownNode is returned when a node routes to an unregistered node.
	ErrUnknownNode = errors.New("workflow: unknown node")
	// ErrNoTerminalStatus is returned when a run terminates without setting a status.
	ErrNoTerminalStatus = errors.New("workflow: terminated without status")
)

// NodeRecorder 接收节点级指标, 由 metrics.Collector 实现.
type NodeRecorder interface {
	RecordNode(node string, duration time.Duration, err error)
}

// DefaultMaxVisits 是单个节点在一次请求中的最大访问次数.
const DefaultMaxVisits = 3

// Engine 依次执行节点直到 Terminal.
type Engine struct {
	nodes     map[NodeID]NodeFunc
	entry     NodeID
	maxVisits int
	recorder  NodeRecorder
	logger    *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMaxVisits bounds how often any single node may run per request.
func WithMaxVisits(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxVisits = n
		}
	}
}

// WithNodeRecorder attaches a metrics recorder.
func WithNodeRecorder(r NodeRecorder) EngineOption {
	return func(e *Engine) { e.recorder = r }
}

// WithEngineLogger sets the logger.
func WithEngineLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithEntry overrides the entry node.
func WithEntry(node NodeID) EngineOption {
	return func(e *Engine) { e.entry = node }
}

// NewEngine creates an engine over the given nodes, entering at NodeOrchestrator.
func NewEngine(nodes map[NodeID]NodeFunc, opts ...EngineOption) *Engine {
	e := &Engine{
		nodes:     nodes,
		entry:     NodeOrchestrator,
		maxVisits: DefaultMaxVisits,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "workflow_engine"))
	return e
}

// Run drives state to a terminal node. state is updated in place; the returned
// history is populated even when an error is returned.
func (e *Engine) Run(ctx context.Context, state *State) (*ExecutionHistory, error) {
	requestID, _ := types.RequestID(ctx)
	history := NewExecutionHistory(requestID)
	err := e.run(ctx, state, history)
	history.Complete(err)
	return history, err
}

func (e *Engine) run(ctx context.Context, state *State, history *ExecutionHistory) error {
	visits := make(map[NodeID]int, len(e.nodes))
	current := e.entry

	for current != Terminal {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("workflow cancelled before %s: %w", current, err)
		}
		fn, ok := e.nodes[current]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownNode, current)
		}
		visits[current]++
		if visits[current] > e.maxVisits {
			return fmt.Errorf("%w: %s visited %d times", ErrVisitLimitExceeded, current, visits[current])
		}

		update, next, err := e.step(ctx, current, fn, state, history)
		if err != nil {
			return fmt.Errorf("%s: %w", current, err)
		}
		if err := state.Apply(current, update); err != nil {
			return err
		}
		e.logger.Debug("node completed",
			zap.Stringer("node", current),
			zap.Stringer("next", next),
			zap.Int("input_tokens", state.InputTokens),
			zap.Int("output_tokens", state.OutputTokens))
		current = next
	}

	if state.Status == StatusPending || state.Status == "" {
		return ErrNoTerminalStatus
	}
	return nil
}

func (e *Engine) step(ctx context.Context, node NodeID, fn NodeFunc, state *State, history *ExecutionHistory) (StateUpdate, NodeID, error) {
	ctx, span := telemetry.StartSpan(ctx, "workflow."+node.String(),
		attribute.String("workflow.node", node.String()))
	exec := history.RecordNodeStart(node)

	snapshot := *state
	update, next, err := fn(ctx, &snapshot)

	history.RecordNodeEnd(exec, update, next, err)
	if e.recorder != nil {
		e.recorder.RecordNode(node.String(), exec.Duration, err)
	}
	if err == nil {
		span.SetAttributes(attribute.String("workflow.next", next.String()))
	}
	telemetry.EndSpan(span, err)
	return update, next, err
}
