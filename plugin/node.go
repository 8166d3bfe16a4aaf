package plugin

import (
	"context"

	"github.com/Tsinling0525/canvasflow/model"
)

// ExecutionContext is the read-only view a handler gets for one invocation.
// PreviousOutputs is shared by the whole run and must not be mutated.
type ExecutionContext struct {
	NodeID          model.ID
	NodeType        model.NodeType
	Input           any
	Config          map[string]any
	PreviousOutputs map[model.ID]any
}

// NodeHandler runs one node. Config already has templated fields resolved.
type NodeHandler interface {
	Execute(ctx context.Context, ec ExecutionContext) (any, error)
}

// Deps are the external collaborators node handlers call out to.
type Deps struct {
	AI   AIExecutor
	HTTP HTTPProxy
	Eval Evaluator
}

// AIExecutor performs model calls for ai-category nodes. The returned map is
// passed through unchanged as the node output.
type AIExecutor interface {
	Execute(ctx context.Context, nodeType model.NodeType, config map[string]any, input any, previous map[model.ID]any) (map[string]any, error)
}

// HTTPResponse is the shape an HTTPProxy returns.
type HTTPResponse struct {
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers"`
	Data       any               `json:"data"`
}

// HTTPProxy performs outbound requests for httpRequest nodes.
// GET requests are sent without a body.
type HTTPProxy interface {
	Request(ctx context.Context, url, method string, headers map[string]string, body string) (*HTTPResponse, error)
}

// Bindings is the complete set of names visible to user code.
type Bindings struct {
	Input         any
	PreviousNodes map[model.ID]any
}

// Evaluator runs workflow-author code in an isolated scope.
type Evaluator interface {
	// Run executes code as a function body and returns its result.
	Run(ctx context.Context, code string, b Bindings) (any, error)
	// Test evaluates expr and reports its truthiness.
	Test(ctx context.Context, expr string, b Bindings) (bool, error)
}
