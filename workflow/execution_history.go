package workflow

import (
	"time"
)

// ExecutionStatus represents the status of a node execution or a whole run.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// NodeExecution records one visit of a node.
type NodeExecution struct {
	Node         NodeID          `json:"-"`
	NodeName     string          `json:"node"`
	Next         string          `json:"next,omitempty"`
	StartTime    time.Time       `json:"start_time"`
	Duration     time.Duration   `json:"duration"`
	Status       ExecutionStatus `json:"status"`
	InputTokens  int             `json:"input_tokens,omitempty"`
	OutputTokens int             `json:"output_tokens,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// ExecutionHistory records the path a single request took through the engine.
// It is owned by one run and is not safe for concurrent mutation.
type ExecutionHistory struct {
	RequestID string           `json:"request_id,omitempty"`
	StartTime time.Time        `json:"start_time"`
	Duration  time.Duration    `json:"duration"`
	Status    ExecutionStatus  `json:"status"`
	Nodes     []*NodeExecution `json:"nodes"`
	Error     string           `json:"error,omitempty"`
}

// NewExecutionHistory creates a running history.
func NewExecutionHistory(requestID string) *ExecutionHistory {
	return &ExecutionHistory{
		RequestID: requestID,
		StartTime: time.Now(),
		Status:    ExecutionStatusRunning,
		Nodes:     make([]*NodeExecution, 0, 8),
	}
}

// RecordNodeStart records the start of a node visit.
func (h *ExecutionHistory) RecordNodeStart(node NodeID) *NodeExecution {
	exec := &NodeExecution{
		Node:      node,
		NodeName:  node.String(),
		StartTime: time.Now(),
		Status:    ExecutionStatusRunning,
	}
	h.Nodes = append(h.Nodes, exec)
	return exec
}

// RecordNodeEnd records the outcome of a node visit.
func (h *ExecutionHistory) RecordNodeEnd(exec *NodeExecution, update StateUpdate, next NodeID, err error) {
	exec.Duration = time.Since(exec.StartTime)
	exec.InputTokens = update.InputTokens
	exec.OutputTokens = update.OutputTokens
	if err != nil {
		exec.Status = ExecutionStatusFailed
		exec.Error = err.Error()
		return
	}
	exec.Status = ExecutionStatusCompleted
	exec.Next = next.String()
}

// Complete marks the run as finished.
func (h *ExecutionHistory) Complete(err error) {
	h.Duration = time.Since(h.StartTime)
	if err != nil {
		h.Status = ExecutionStatusFailed
		h.Error = err.Error()
		return
	}
	h.Status = ExecutionStatusCompleted
}

// Visits returns how many times node was entered.
func (h *ExecutionHistory) Visits(node NodeID) int {
	n := 0
	for _, exec := range h.Nodes {
		if exec.Node == node {
			n++
		}
	}
	return n
}

// Path returns the visited nodes in order.
func (h *ExecutionHistory) Path() []NodeID {
	path := make([]NodeID, len(h.Nodes))
	for i, exec := range h.Nodes {
		path[i] = exec.Node
	}
	return path
}
