package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/conceptrag/testutil"
	"github.com/BaSui01/conceptrag/types"
)

type nodeRecorder struct {
	mu     sync.Mutex
	visits []string
	errs   int
}

func (r *nodeRecorder) RecordNode(node string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visits = append(r.visits, node)
	if err != nil {
		r.errs++
	}
}

func finish(status Status) NodeFunc {
	return func(context.Context, *State) (StateUpdate, NodeID, error) {
		return StateUpdate{Status: status}, Terminal, nil
	}
}

func TestNodeID_String(t *testing.T) {
	assert.Equal(t, "orchestrator", NodeOrchestrator.String())
	assert.Equal(t, "consistency_checker", NodeConsistencyChecker.String())
	assert.Equal(t, "terminal", Terminal.String())
}

func TestEngine_VisitLimit(t *testing.T) {
	loop := func(context.Context, *State) (StateUpdate, NodeID, error) {
		return StateUpdate{}, NodeOrchestrator, nil
	}
	e := NewEngine(map[NodeID]NodeFunc{NodeOrchestrator: loop})

	history, err := e.Run(testutil.TestContext(t), NewState("q", nil, "", Options{}))
	require.ErrorIs(t, err, ErrVisitLimitExceeded)
	assert.Equal(t, DefaultMaxVisits, history.Visits(NodeOrchestrator))
	assert.Equal(t, ExecutionStatusFailed, history.Status)
}

func TestEngine_CustomVisitLimit(t *testing.T) {
	n := 0
	loop := func(context.Context, *State) (StateUpdate, NodeID, error) {
		n++
		if n == 5 {
			return StateUpdate{AnswerGenerated: ptr(true)}, NodeConceptExtractor, nil
		}
		return StateUpdate{}, NodeOrchestrator, nil
	}
	e := NewEngine(map[NodeID]NodeFunc{
		NodeOrchestrator:     loop,
		NodeConceptExtractor: finish(StatusOK),
	}, WithMaxVisits(5))

	_, err := e.Run(testutil.TestContext(t), NewState("q", nil, "", Options{}))
	require.NoError(t, err)
}

func TestEngine_UnknownNode(t *testing.T) {
	e := NewEngine(map[NodeID]NodeFunc{
		NodeOrchestrator: func(context.Context, *State) (StateUpdate, NodeID, error) {
			return StateUpdate{}, NodeGraphRetriever, nil
		},
	})
	_, err := e.Run(testutil.TestContext(t), NewState("q", nil, "", Options{}))
	require.ErrorIs(t, err, ErrUnknownNode)
}

func TestEngine_TerminalWithoutStatus(t *testing.T) {
	e := NewEngine(map[NodeID]NodeFunc{
		NodeOrchestrator: func(context.Context, *State) (StateUpdate, NodeID, error) {
			return StateUpdate{}, Terminal, nil
		},
	})
	_, err := e.Run(testutil.TestContext(t), NewState("q", nil, "", Options{}))
	require.ErrorIs(t, err, ErrNoTerminalStatus)
}

func TestEngine_RejectsForeignFieldWrite(t *testing.T) {
	e := NewEngine(map[NodeID]NodeFunc{
		NodeOrchestrator: func(context.Context, *State) (StateUpdate, NodeID, error) {
			return StateUpdate{Answer: ptr("sneaky")}, Terminal, nil
		},
	})
	s := NewState("q", nil, "", Options{})
	_, err := e.Run(testutil.TestContext(t), s)
	require.ErrorIs(t, err, ErrFieldNotOwned)
	assert.Equal(t, "", s.Answer)
}

func TestEngine_WrapsNodeError(t *testing.T) {
	cause := types.NewError(types.ErrLLMFailure, "boom")
	e := NewEngine(map[NodeID]NodeFunc{
		NodeOrchestrator: func(context.Context, *State) (StateUpdate, NodeID, error) {
			return StateUpdate{}, Terminal, cause
		},
	})
	history, err := e.Run(testutil.TestContext(t), NewState("q", nil, "", Options{}))
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "orchestrator: ")
	require.Len(t, history.Nodes, 1)
	assert.Equal(t, ExecutionStatusFailed, history.Nodes[0].Status)
}

func TestEngine_NodeMutationsDoNotLeak(t *testing.T) {
	e := NewEngine(map[NodeID]NodeFunc{
		NodeConsistencyChecker: func(_ context.Context, s *State) (StateUpdate, NodeID, error) {
			s.Answer = "mutated in place"
			s.InputTokens = 1000
			return StateUpdate{Status: StatusOK}, Terminal, nil
		},
	}, WithEntry(NodeConsistencyChecker))

	s := NewState("q", nil, "", Options{})
	s.Answer = "original"
	_, err := e.Run(testutil.TestContext(t), s)
	require.NoError(t, err)
	assert.Equal(t, "original", s.Answer)
	assert.Zero(t, s.InputTokens)
	assert.Equal(t, StatusOK, s.Status)
}

func TestEngine_RecordsVisitsAndRequestID(t *testing.T) {
	rec := &nodeRecorder{}
	e := NewEngine(map[NodeID]NodeFunc{
		NodeOrchestrator: func(context.Context, *State) (StateUpdate, NodeID, error) {
			return StateUpdate{AnswerGenerated: ptr(false)}.WithTokens(2, 3), NodeAugmentator, nil
		},
		NodeAugmentator: func(context.Context, *State) (StateUpdate, NodeID, error) {
			return StateUpdate{}, NodeAnswerGenerator, nil
		},
		NodeAnswerGenerator: func(context.Context, *State) (StateUpdate, NodeID, error) {
			return StateUpdate{}, NodeConceptExtractor, errors.New("model unavailable")
		},
	}, WithNodeRecorder(rec))

	ctx := types.WithRequestID(testutil.TestContext(t), "req-42")
	history, err := e.Run(ctx, NewState("q", nil, "", Options{}))
	require.Error(t, err)

	assert.Equal(t, "req-42", history.RequestID)
	assert.Equal(t, []NodeID{NodeOrchestrator, NodeAugmentator, NodeAnswerGenerator}, history.Path())
	assert.Equal(t, "augmentator", history.Nodes[0].Next)
	assert.Equal(t, 2, history.Nodes[0].InputTokens)
	assert.Equal(t, []string{"orchestrator", "augmentator", "answer_generator"}, rec.visits)
	assert.Equal(t, 1, rec.errs)
}

func TestEngine_CancelledContext(t *testing.T) {
	called := false
	e := NewEngine(map[NodeID]NodeFunc{
		NodeOrchestrator: func(context.Context, *State) (StateUpdate, NodeID, error) {
			called = true
			return StateUpdate{}, Terminal, nil
		},
	})
	_, err := e.Run(testutil.CancelledContext(), NewState("q", nil, "", Options{}))
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
