package model

import (
	"math"
	"time"
)

type ID string

// NodeType names a concrete node kind, e.g. "httpRequest" or "ifElse".
type NodeType string

const (
	TypeManualTrigger   NodeType = "manualTrigger"
	TypeWebhookTrigger  NodeType = "webhookTrigger"
	TypeScheduleTrigger NodeType = "scheduleTrigger"

	TypeAIChat      NodeType = "aiChat"
	TypeAISummarize NodeType = "aiSummarize"

	TypeHTTPRequest   NodeType = "httpRequest"
	TypeDataTransform NodeType = "dataTransform"
	TypeSendEmail     NodeType = "sendEmail"

	TypeIfElse NodeType = "ifElse"
	TypeSwitch NodeType = "switch"
	TypeDelay  NodeType = "delay"
)

// Category groups node types by the handler family that runs them.
type Category string

const (
	CategoryTrigger Category = "trigger"
	CategoryAI      Category = "ai"
	CategoryAction  Category = "action"
	CategoryLogic   Category = "logic"
)

// Branch tags carried by edges leaving a branching node.
const (
	BranchTrue    = "true"
	BranchFalse   = "false"
	BranchDefault = "default"
	// BranchField is the output key a branching node uses to select its path.
	BranchField = "branch"
)

type Edge struct {
	ID        string `json:"id"`
	Source    ID     `json:"source"`
	Target    ID     `json:"target"`
	BranchTag string `json:"branchTag,omitempty"`
}

type Node struct {
	ID        ID             `json:"id"`
	Type      NodeType       `json:"type"`
	Name      string         `json:"name,omitempty"`
	TimeoutMs int64          `json:"timeoutMs,omitempty"` // 0 = engine default
	Config    map[string]any `json:"config,omitempty"`

	// Transient, overwritten by every run through the editor session status channel.
	LastOutput any    `json:"lastOutput,omitempty"`
	LastError  string `json:"lastError,omitempty"`
}

// Timeout returns the node's own deadline, zero when it has none.
func (n Node) Timeout() time.Duration {
	if n.TimeoutMs <= 0 {
		return 0
	}
	if n.TimeoutMs > math.MaxInt64/int64(time.Millisecond) {
		return math.MaxInt64
	}
	return time.Duration(n.TimeoutMs) * time.Millisecond
}

// DisplayName returns the node's name, falling back to its id.
func (n Node) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}
	return string(n.ID)
}

type Workflow struct {
	ID        ID        `json:"id"`
	Name      string    `json:"name"`
	Nodes     []Node    `json:"nodes"`
	Edges     []Edge    `json:"edges"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Node returns the node with the given id.
func (w *Workflow) Node(id ID) (Node, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Clone returns a deep enough copy for editing: node and edge slices and
// config maps are copied, config values are shared.
func (w Workflow) Clone() Workflow {
	out := w
	out.Nodes = make([]Node, len(w.Nodes))
	for i, n := range w.Nodes {
		if n.Config != nil {
			cfg := make(map[string]any, len(n.Config))
			for k, v := range n.Config {
				cfg[k] = v
			}
			n.Config = cfg
		}
		out.Nodes[i] = n
	}
	out.Edges = append([]Edge(nil), w.Edges...)
	return out
}
