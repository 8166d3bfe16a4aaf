package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Tsinling0525/canvasflow/model"
	"github.com/Tsinling0525/canvasflow/nodes"
	"github.com/Tsinling0525/canvasflow/nodes/ai"
	"github.com/Tsinling0525/canvasflow/nodes/email"
	httpnode "github.com/Tsinling0525/canvasflow/nodes/http"
	"github.com/Tsinling0525/canvasflow/nodes/logic"
	"github.com/Tsinling0525/canvasflow/nodes/transform"
	"github.com/Tsinling0525/canvasflow/nodes/trigger"
	"github.com/Tsinling0525/canvasflow/plugin"
)

// Dispatcher runs a single node through the handler for its type. Handler
// errors and panics come back as failed results, never as Go errors.
type Dispatcher struct {
	registry *plugin.Registry
	logger   *zap.Logger

	trigger   plugin.NodeHandler
	ai        plugin.NodeHandler
	http      plugin.NodeHandler
	transform plugin.NodeHandler
	email     plugin.NodeHandler
	ifElse    plugin.NodeHandler
	sw        plugin.NodeHandler
	delay     plugin.NodeHandler
}

func NewDispatcher(reg *plugin.Registry, deps plugin.Deps, logger *zap.Logger) *Dispatcher {
	if reg == nil {
		reg = plugin.DefaultRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		registry:  reg,
		logger:    logger,
		trigger:   trigger.New(),
		ai:        &ai.Node{Exec: deps.AI},
		http:      &httpnode.Request{Proxy: deps.HTTP},
		transform: &transform.Transform{Eval: deps.Eval},
		email:     &email.Send{Logger: logger},
		ifElse:    &logic.IfElse{Eval: deps.Eval},
		sw:        &logic.Switch{},
		delay:     &logic.Delay{},
	}
}

// Registry returns the node type registry the dispatcher consults.
func (d *Dispatcher) Registry() *plugin.Registry { return d.registry }

// Execute merges the node's config over its type defaults, resolves templated
// fields against ec.Input and ec.PreviousOutputs, and invokes the handler.
func (d *Dispatcher) Execute(ctx context.Context, node model.Node, ec plugin.ExecutionContext) (res model.NodeExecutionResult) {
	def, ok := d.registry.Lookup(node.Type)
	if !ok {
		return model.Failed(fmt.Sprintf("Unknown node type: %s", node.Type))
	}
	h, err := d.handler(def.Category, node.Type)
	if err != nil {
		return model.Failed(err.Error())
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("node handler panicked",
				zap.String("node_id", string(node.ID)),
				zap.String("node_type", string(node.Type)),
				zap.Any("panic", r))
			res = model.Failed(fmt.Sprintf("panic: %v", r))
		}
	}()

	cfg := nodes.MergeDefaults(def.DefaultConfig, node.Config)
	nodes.ResolveFields(cfg, def.TemplatedFields(), ec.Input, ec.PreviousOutputs)
	ec.NodeID = node.ID
	ec.NodeType = node.Type
	ec.Config = cfg

	out, err := h.Execute(ctx, ec)
	if err != nil {
		return model.Failed(err.Error())
	}
	return model.Succeeded(out)
}

func (d *Dispatcher) handler(cat model.Category, t model.NodeType) (plugin.NodeHandler, error) {
	switch cat {
	case model.CategoryTrigger:
		switch t {
		case model.TypeManualTrigger, model.TypeWebhookTrigger, model.TypeScheduleTrigger:
			return d.trigger, nil
		}
	case model.CategoryAI:
		switch t {
		case model.TypeAIChat, model.TypeAISummarize:
			return d.ai, nil
		}
	case model.CategoryAction:
		switch t {
		case model.TypeHTTPRequest:
			return d.http, nil
		case model.TypeDataTransform:
			return d.transform, nil
		case model.TypeSendEmail:
			return d.email, nil
		}
	case model.CategoryLogic:
		switch t {
		case model.TypeIfElse:
			return d.ifElse, nil
		case model.TypeSwitch:
			return d.sw, nil
		case model.TypeDelay:
			return d.delay, nil
		}
	default:
		return nil, fmt.Errorf("Unknown node type: %s", t)
	}
	return nil, fmt.Errorf("Unknown %s node type: %s", cat, t)
}
