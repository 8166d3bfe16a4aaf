package transform

import (
	"context"
	"errors"
	"strings"

	"github.com/Tsinling0525/canvasflow/nodes"
	"github.com/Tsinling0525/canvasflow/plugin"
)

// Transform runs user code with input and previousNodes as its only bindings.
// Config: code (function body; its return value becomes the output)
type Transform struct {
	Eval plugin.Evaluator
}

func (n *Transform) Execute(ctx context.Context, ec plugin.ExecutionContext) (any, error) {
	code := nodes.String(ec.Config, "code")
	if strings.TrimSpace(code) == "" {
		return nil, errors.New("code is required")
	}
	if n.Eval == nil {
		return nil, errors.New("no evaluator configured")
	}
	return n.Eval.Run(ctx, code, plugin.Bindings{Input: ec.Input, PreviousNodes: ec.PreviousOutputs})
}

var _ plugin.NodeHandler = (*Transform)(nil)
