package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Tsinling0525/canvasflow/model"
	"github.com/Tsinling0525/canvasflow/plugin"
)

func TestDispatcher_UnknownTypes(t *testing.T) {
	reg := plugin.NewRegistry(
		plugin.Definition{Type: "aiVision", Category: model.CategoryAI},
		plugin.Definition{Type: "odd", Category: "storage"},
	)
	d := NewDispatcher(reg, plugin.Deps{}, nil)
	ctx := context.Background()

	res := d.Execute(ctx, model.Node{ID: "n", Type: "missing"}, plugin.ExecutionContext{})
	assert.Equal(t, model.Failed("Unknown node type: missing"), res)

	res = d.Execute(ctx, model.Node{ID: "n", Type: "aiVision"}, plugin.ExecutionContext{})
	assert.Equal(t, model.Failed("Unknown ai node type: aiVision"), res)

	res = d.Execute(ctx, model.Node{ID: "n", Type: "odd"}, plugin.ExecutionContext{})
	assert.Equal(t, model.Failed("Unknown node type: odd"), res)
}

func TestDispatcher_MergesDefaults(t *testing.T) {
	d := NewDispatcher(nil, plugin.Deps{}, nil)
	res := d.Execute(context.Background(), model.Node{ID: "d", Type: model.TypeDelay, Config: map[string]any{"unit": "milliseconds"}},
		plugin.ExecutionContext{Input: "x"})
	assert.True(t, res.Success)
	assert.Equal(t, map[string]any{"delayed": 1.0, "input": "x"}, res.Output)
}

func TestDispatcher_NodeConfigUntouched(t *testing.T) {
	cfg := map[string]any{"to": "{{input.addr}}"}
	d := NewDispatcher(nil, plugin.Deps{}, nil)
	res := d.Execute(context.Background(), model.Node{ID: "m", Type: model.TypeSendEmail, Config: cfg},
		plugin.ExecutionContext{Input: map[string]any{"addr": "x@y.z"}})
	assert.True(t, res.Success)
	assert.Equal(t, "x@y.z", res.Output.(map[string]any)["to"])
	assert.Equal(t, "{{input.addr}}", cfg["to"])
}

func TestDispatcher_MissingCollaborators(t *testing.T) {
	d := NewDispatcher(nil, plugin.Deps{}, nil)
	res := d.Execute(context.Background(), model.Node{ID: "a", Type: model.TypeAIChat}, plugin.ExecutionContext{})
	assert.False(t, res.Success)
	assert.Equal(t, "no AI executor configured", res.Error)
}

func TestSelectEdges(t *testing.T) {
	edges := []model.Edge{
		{ID: "1", BranchTag: "true"},
		{ID: "2", BranchTag: "false"},
		{ID: "3"},
	}
	ids := func(es []model.Edge) []string {
		var out []string
		for _, e := range es {
			out = append(out, e.ID)
		}
		return out
	}

	assert.Equal(t, []string{"1"}, ids(selectEdges(true, map[string]any{"branch": "true"}, edges)))
	assert.Equal(t, []string{"3"}, ids(selectEdges(true, map[string]any{"branch": "case_4"}, edges)))
	assert.Equal(t, []string{"1", "2", "3"}, ids(selectEdges(true, map[string]any{"other": 1}, edges)))
	assert.Equal(t, []string{"1", "2", "3"}, ids(selectEdges(true, "text", edges)))
	assert.Equal(t, []string{"1", "2", "3"}, ids(selectEdges(false, map[string]any{"branch": "true"}, edges)))

	withDefault := append(edges, model.Edge{ID: "4", BranchTag: "default"})
	assert.Equal(t, []string{"4"}, ids(selectEdges(true, map[string]any{"branch": "case_4"}, withDefault)))
	assert.Empty(t, selectEdges(true, map[string]any{"branch": "x"}, edges[:2]))
}
