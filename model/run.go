package model

import "time"

type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

type EntryStatus string

const (
	EntrySuccess EntryStatus = "success"
	EntryError   EntryStatus = "error"
	EntrySkipped EntryStatus = "skipped"
)

// NodeExecutionResult is what the dispatcher returns for one node.
// Output is meaningful only when Success is true, Error only when it is false.
type NodeExecutionResult struct {
	Success bool   `json:"success"`
	Output  any    `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Succeeded builds a successful result.
func Succeeded(output any) NodeExecutionResult {
	return NodeExecutionResult{Success: true, Output: output}
}

// Failed builds a failed result.
func Failed(msg string) NodeExecutionResult {
	return NodeExecutionResult{Error: msg}
}

type NodeResultEntry struct {
	NodeID     ID          `json:"nodeId"`
	NodeName   string      `json:"nodeName"`
	NodeType   NodeType    `json:"nodeType"`
	Status     EntryStatus `json:"status"`
	Output     any         `json:"output,omitempty"`
	Error      string      `json:"error,omitempty"`
	DurationMs int64       `json:"durationMs"`
}

// RunRecord summarizes one run. It is frozen once the run finishes.
type RunRecord struct {
	ID            string            `json:"id"`
	WorkflowID    ID                `json:"workflowId,omitempty"`
	WorkflowName  string            `json:"workflowName,omitempty"`
	StartedAt     time.Time         `json:"startedAt"`
	DurationMs    int64             `json:"durationMs"`
	Status        RunStatus         `json:"status"`
	NodesExecuted int               `json:"nodesExecuted"`
	TotalNodes    int               `json:"totalNodes"`
	PerNode       []NodeResultEntry `json:"perNode"`
	ErrorMessage  string            `json:"errorMessage,omitempty"`
}

// Entry returns the entry recorded for a node.
func (r *RunRecord) Entry(id ID) (NodeResultEntry, bool) {
	for _, e := range r.PerNode {
		if e.NodeID == id {
			return e, true
		}
	}
	return NodeResultEntry{}, false
}

// NodeStatus is the volatile per-node state shown while a run is in flight.
type NodeStatus struct {
	Executing bool   `json:"isExecuting"`
	Output    any    `json:"output,omitempty"`
	Error     string `json:"error,omitempty"`
}
