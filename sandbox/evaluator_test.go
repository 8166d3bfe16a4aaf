package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Tsinling0525/canvasflow/model"
	"github.com/Tsinling0525/canvasflow/plugin"
)

func TestEvaluator_Run(t *testing.T) {
	ev := New(time.Second, zap.NewNop())
	b := plugin.Bindings{
		Input:         map[string]any{"value": 21},
		PreviousNodes: map[model.ID]any{"fetch": map[string]any{"items": []any{1, 2, 3}}},
	}

	out, err := ev.Run(context.Background(), "return { doubled: input.value * 2 };", b)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"doubled": float64(42)}, out)

	out, err = ev.Run(context.Background(), "return previousNodes.fetch.items.length;", b)
	require.NoError(t, err)
	assert.Equal(t, float64(3), out)

	out, err = ev.Run(context.Background(), "const x = 1;", b)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestEvaluator_RunErrors(t *testing.T) {
	ev := New(time.Second, nil)
	ctx := context.Background()

	_, err := ev.Run(ctx, `throw new Error("bad input")`, plugin.Bindings{})
	assert.EqualError(t, err, "bad input")

	_, err = ev.Run(ctx, `throw "plain"`, plugin.Bindings{})
	assert.EqualError(t, err, "plain")

	_, err = ev.Run(ctx, `return undefinedName + 1;`, plugin.Bindings{})
	assert.ErrorContains(t, err, "undefinedName")

	_, err = ev.Run(ctx, `return (;`, plugin.Bindings{})
	assert.Error(t, err)
}

func TestEvaluator_OnlyBindingsVisible(t *testing.T) {
	out, err := New(time.Second, nil).Run(context.Background(),
		`return [typeof require, typeof process, typeof input, typeof previousNodes];`, plugin.Bindings{})
	require.NoError(t, err)
	assert.Equal(t, []any{"undefined", "undefined", "object", "object"}, out)
}

func TestEvaluator_ScriptCannotMutateOutputs(t *testing.T) {
	prev := map[model.ID]any{"a": map[string]any{"n": 1}}
	_, err := New(time.Second, nil).Run(context.Background(), `previousNodes.a.n = 99; return null;`,
		plugin.Bindings{PreviousNodes: prev})
	require.NoError(t, err)
	assert.Equal(t, 1, prev["a"].(map[string]any)["n"])
}

func TestEvaluator_Timeout(t *testing.T) {
	start := time.Now()
	_, err := New(50*time.Millisecond, nil).Run(context.Background(), `while (true) {}`, plugin.Bindings{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestEvaluator_Test(t *testing.T) {
	ev := New(time.Second, nil)
	b := plugin.Bindings{Input: map[string]any{"score": 7, "tags": []any{}}}

	for expr, want := range map[string]bool{
		"input.score > 5":   true,
		"input.score > 50;": false,
		"input.tags":        true,
		"input.missing":     false,
		"''":                false,
	} {
		got, err := ev.Test(context.Background(), expr, b)
		require.NoError(t, err, expr)
		assert.Equal(t, want, got, expr)
	}
}
