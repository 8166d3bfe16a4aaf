package logic

import (
	"context"
	"fmt"

	"github.com/Tsinling0525/canvasflow/model"
	"github.com/Tsinling0525/canvasflow/nodes"
	"github.com/Tsinling0525/canvasflow/plugin"
)

// OperatorJavaScript is the only supported condition operator.
const OperatorJavaScript = "javascript"

// IfElse routes to the "true" or "false" edge depending on a condition
// evaluated against the node input and upstream outputs.
// Config: operator (string), condition (expression)
type IfElse struct {
	Eval plugin.Evaluator
}

func (n *IfElse) Execute(ctx context.Context, ec plugin.ExecutionContext) (any, error) {
	op := nodes.String(ec.Config, "operator")
	if op == "" {
		op = OperatorJavaScript
	}
	if op != OperatorJavaScript {
		return nil, fmt.Errorf("Unsupported operator: %s", op)
	}
	if n.Eval == nil {
		return nil, fmt.Errorf("no evaluator configured")
	}
	cond := nodes.String(ec.Config, "condition")
	if cond == "" {
		return nil, fmt.Errorf("condition is required")
	}

	ok, err := n.Eval.Test(ctx, cond, plugin.Bindings{Input: ec.Input, PreviousNodes: ec.PreviousOutputs})
	if err != nil {
		return nil, err
	}
	branch := model.BranchFalse
	if ok {
		branch = model.BranchTrue
	}
	return map[string]any{
		model.BranchField: branch,
		"result":          ok,
		"input":           ec.Input,
	}, nil
}

var _ plugin.NodeHandler = (*IfElse)(nil)
