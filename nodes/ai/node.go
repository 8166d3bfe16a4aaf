package ai

import (
	"context"
	"errors"

	"github.com/Tsinling0525/canvasflow/plugin"
)

// Node is the handler for every ai-category node type. The collaborator's
// response map becomes the output; an "error" field in it fails the node.
type Node struct {
	Exec plugin.AIExecutor
}

func (n *Node) Execute(ctx context.Context, ec plugin.ExecutionContext) (any, error) {
	if n.Exec == nil {
		return nil, errors.New("no AI executor configured")
	}
	out, err := n.Exec.Execute(ctx, ec.NodeType, ec.Config, ec.Input, ec.PreviousOutputs)
	if err != nil {
		return nil, err
	}
	if msg, _ := out["error"].(string); msg != "" {
		return nil, errors.New(msg)
	}
	return out, nil
}

var _ plugin.NodeHandler = (*Node)(nil)
