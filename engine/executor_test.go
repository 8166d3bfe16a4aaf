package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/Tsinling0525/canvasflow/model"
	"github.com/Tsinling0525/canvasflow/plugin"
)

// scriptEval stands in for the JavaScript sandbox. Run passes the input
// through unless a run func is set; Test reports whether expr is "true".
type scriptEval struct {
	run func(code string, b plugin.Bindings) (any, error)
}

func (s *scriptEval) Run(ctx context.Context, code string, b plugin.Bindings) (any, error) {
	if s.run == nil {
		return b.Input, nil
	}
	return s.run(code, b)
}

func (s *scriptEval) Test(ctx context.Context, expr string, b plugin.Bindings) (bool, error) {
	return expr == "true", nil
}

type memSink struct {
	mu   sync.Mutex
	recs []*model.RunRecord
	err  error
}

func (m *memSink) Save(ctx context.Context, rec *model.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return m.err
}

func node(id string, typ model.NodeType, cfg map[string]any) model.Node {
	return model.Node{ID: model.ID(id), Type: typ, Name: strings.ToUpper(id), Config: cfg}
}

func edge(src, dst string) model.Edge {
	return model.Edge{ID: src + "->" + dst, Source: model.ID(src), Target: model.ID(dst)}
}

func tagged(src, dst, tag string) model.Edge {
	e := edge(src, dst)
	e.ID += ":" + tag
	e.BranchTag = tag
	return e
}

func executed(rec *model.RunRecord) []model.ID {
	var ids []model.ID
	for _, e := range rec.PerNode {
		if e.Status != model.EntrySkipped {
			ids = append(ids, e.NodeID)
		}
	}
	return ids
}

func newTestEngine(eval plugin.Evaluator, opts ...Option) *Engine {
	if eval == nil {
		eval = &scriptEval{}
	}
	opts = append([]Option{WithLogger(zap.NewNop())}, opts...)
	return New(plugin.Deps{Eval: eval}, opts...)
}

func TestRun_NoTrigger(t *testing.T) {
	sink := &memSink{}
	obs := &recordingObserver{}
	e := newTestEngine(nil, WithRunLog(sink), WithObservers(obs))

	wf := model.Workflow{
		Nodes: []model.Node{node("a", model.TypeManualTrigger, nil), node("b", model.TypeManualTrigger, nil)},
		Edges: []model.Edge{edge("a", "b"), edge("b", "a")},
	}
	rec, err := e.Run(context.Background(), wf, nil)
	assert.ErrorIs(t, err, ErrNoTrigger)
	assert.Nil(t, rec)
	assert.Empty(t, sink.recs)
	assert.Empty(t, obs.events)

	_, err = e.Run(context.Background(), model.Workflow{}, nil)
	assert.ErrorIs(t, err, ErrNoTrigger)
}

func TestRun_DiamondRunsJoinOnce(t *testing.T) {
	wf := model.Workflow{
		Nodes: []model.Node{
			node("t", model.TypeManualTrigger, nil),
			node("a", model.TypeManualTrigger, nil),
			node("b", model.TypeManualTrigger, nil),
			node("c", model.TypeManualTrigger, nil),
		},
		Edges: []model.Edge{edge("t", "a"), edge("t", "b"), edge("a", "c"), edge("b", "c")},
	}
	rec, err := newTestEngine(nil).Run(context.Background(), wf, nil)
	require.NoError(t, err)
	assert.Equal(t, []model.ID{"t", "a", "c", "b"}, executed(rec))
	assert.Equal(t, model.RunSuccess, rec.Status)
	assert.Equal(t, 4, rec.NodesExecuted)
	assert.Equal(t, 4, rec.TotalNodes)
	assert.NotEmpty(t, rec.ID)
}

func TestRun_CyclesAndParallelEdges(t *testing.T) {
	wf := model.Workflow{
		Nodes: []model.Node{
			node("t", model.TypeManualTrigger, nil),
			node("a", model.TypeManualTrigger, nil),
			node("b", model.TypeManualTrigger, nil),
		},
		Edges: []model.Edge{
			edge("t", "a"),
			{ID: "dup", Source: "t", Target: "a"},
			edge("a", "b"),
			edge("b", "a"),
			edge("b", "b"),
		},
	}
	rec, err := newTestEngine(nil).Run(context.Background(), wf, nil)
	require.NoError(t, err)
	assert.Equal(t, []model.ID{"t", "a", "b"}, executed(rec))
}

func TestRun_EntryPointsInDeclarationOrder(t *testing.T) {
	wf := model.Workflow{
		Nodes: []model.Node{
			node("second", model.TypeManualTrigger, nil),
			node("first", model.TypeManualTrigger, nil),
			node("child", model.TypeManualTrigger, nil),
		},
		Edges: []model.Edge{edge("second", "child"), edge("first", "child"), edge("first", "ghost")},
	}
	rec, err := newTestEngine(nil).Run(context.Background(), wf, map[model.ID]any{
		"second": map[string]any{"from": "second"},
	})
	require.NoError(t, err)
	assert.Equal(t, []model.ID{"second", "child", "first"}, executed(rec))
	child, _ := rec.Entry("child")
	assert.Equal(t, map[string]any{"from": "second"}, child.Output)
}

func TestRun_AtMostOnceProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "nodes")
		pairs := rapid.SliceOfN(rapid.IntRange(0, n*n-1), 0, 20).Draw(t, "edges")

		wf := model.Workflow{}
		for i := 0; i < n; i++ {
			wf.Nodes = append(wf.Nodes, node(fmt.Sprintf("n%d", i), model.TypeManualTrigger, nil))
		}
		indeg := make([]int, n)
		for i, p := range pairs {
			src, dst := p/n, p%n
			wf.Edges = append(wf.Edges, model.Edge{
				ID: fmt.Sprintf("e%d", i), Source: wf.Nodes[src].ID, Target: wf.Nodes[dst].ID,
			})
			indeg[dst]++
		}

		rec, err := newTestEngine(nil).Run(context.Background(), wf, nil)
		hasEntry := false
		for _, d := range indeg {
			hasEntry = hasEntry || d == 0
		}
		if !hasEntry {
			if !errors.Is(err, ErrNoTrigger) {
				t.Fatalf("expected ErrNoTrigger, got %v", err)
			}
			return
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		seen := map[model.ID]bool{}
		for _, e := range rec.PerNode {
			if seen[e.NodeID] {
				t.Fatalf("node %s executed twice", e.NodeID)
			}
			seen[e.NodeID] = true
		}
		if rec.NodesExecuted != len(rec.PerNode) {
			t.Fatalf("nodesExecuted %d != entries %d", rec.NodesExecuted, len(rec.PerNode))
		}
	})
}

func TestRun_IfElseRouting(t *testing.T) {
	for _, cond := range []string{"true", "false"} {
		t.Run(cond, func(t *testing.T) {
			wf := model.Workflow{
				Nodes: []model.Node{
					node("t", model.TypeManualTrigger, nil),
					node("if", model.TypeIfElse, map[string]any{"condition": cond}),
					node("yes", model.TypeManualTrigger, nil),
					node("no", model.TypeManualTrigger, nil),
				},
				Edges: []model.Edge{edge("t", "if"), tagged("if", "yes", "true"), tagged("if", "no", "false")},
			}
			rec, err := newTestEngine(nil).Run(context.Background(), wf, nil)
			require.NoError(t, err)

			want := map[string]model.ID{"true": "yes", "false": "no"}[cond]
			assert.Equal(t, []model.ID{"t", "if", want}, executed(rec))
		})
	}
}

func TestRun_SwitchRouting(t *testing.T) {
	build := func(withDefault bool) model.Workflow {
		wf := model.Workflow{
			Nodes: []model.Node{
				node("t", model.TypeManualTrigger, nil),
				node("sw", model.TypeSwitch, map[string]any{"property": "status", "cases": "A\nB"}),
				node("a", model.TypeManualTrigger, nil),
				node("b", model.TypeManualTrigger, nil),
				node("plain", model.TypeManualTrigger, nil),
			},
			Edges: []model.Edge{
				edge("t", "sw"),
				tagged("sw", "a", "case_0"),
				tagged("sw", "b", "case_1"),
				edge("sw", "plain"),
			},
		}
		if withDefault {
			wf.Nodes = append(wf.Nodes, node("other", model.TypeManualTrigger, nil))
			wf.Edges = append(wf.Edges, tagged("sw", "other", "default"))
		}
		return wf
	}
	tests := []struct {
		name        string
		status      string
		withDefault bool
		want        model.ID
	}{
		{"exact match", "B", true, "b"},
		{"falls to default", "C", true, "other"},
		{"falls to untagged", "C", false, "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := newTestEngine(nil).Run(context.Background(), build(tt.withDefault), map[model.ID]any{
				"t": map[string]any{"status": tt.status},
			})
			require.NoError(t, err)
			assert.Equal(t, []model.ID{"t", "sw", tt.want}, executed(rec))
		})
	}
}

func TestRun_NonBranchingFollowsAllEdges(t *testing.T) {
	wf := model.Workflow{
		Nodes: []model.Node{
			node("t", model.TypeManualTrigger, nil),
			node("x", model.TypeDataTransform, map[string]any{"code": "branch"}),
			node("a", model.TypeManualTrigger, nil),
			node("b", model.TypeManualTrigger, nil),
		},
		Edges: []model.Edge{edge("t", "x"), tagged("x", "a", "true"), tagged("x", "b", "false")},
	}
	ev := &scriptEval{run: func(code string, b plugin.Bindings) (any, error) {
		return map[string]any{"branch": "true"}, nil
	}}
	rec, err := newTestEngine(ev).Run(context.Background(), wf, nil)
	require.NoError(t, err)
	assert.Equal(t, []model.ID{"t", "x", "a", "b"}, executed(rec))
}

func TestRun_FailureStopsBranchOnly(t *testing.T) {
	wf := model.Workflow{
		Nodes: []model.Node{
			node("t", model.TypeManualTrigger, nil),
			node("bad", model.TypeDataTransform, map[string]any{"code": "fail"}),
			node("after", model.TypeManualTrigger, nil),
			node("side", model.TypeDataTransform, map[string]any{"code": "ok"}),
		},
		Edges: []model.Edge{edge("t", "bad"), edge("bad", "after"), edge("t", "side")},
	}
	ev := &scriptEval{run: func(code string, b plugin.Bindings) (any, error) {
		if code == "fail" {
			return nil, errors.New("boom")
		}
		return "fine", nil
	}}
	sink := &memSink{}
	rec, err := newTestEngine(ev, WithRunLog(sink)).Run(context.Background(), wf, nil)
	require.NoError(t, err)

	assert.Equal(t, model.RunError, rec.Status)
	assert.Equal(t, "BAD: boom", rec.ErrorMessage)
	assert.Equal(t, []model.ID{"t", "bad", "side"}, executed(rec))
	assert.Equal(t, 3, rec.NodesExecuted)
	assert.Equal(t, 4, rec.TotalNodes)

	bad, _ := rec.Entry("bad")
	assert.Equal(t, model.EntryError, bad.Status)
	assert.Nil(t, bad.Output)

	require.Len(t, sink.recs, 1)
	assert.Equal(t, rec, sink.recs[0])
}

func TestRun_UnknownTypeAndPanic(t *testing.T) {
	wf := model.Workflow{
		Nodes: []model.Node{
			node("t", model.TypeManualTrigger, nil),
			node("odd", "mystery", nil),
			node("p", model.TypeDataTransform, map[string]any{"code": "panic"}),
		},
		Edges: []model.Edge{edge("t", "odd"), edge("t", "p")},
	}
	ev := &scriptEval{run: func(code string, b plugin.Bindings) (any, error) {
		panic("kaboom")
	}}
	rec, err := newTestEngine(ev).Run(context.Background(), wf, nil)
	require.NoError(t, err)

	odd, _ := rec.Entry("odd")
	assert.Equal(t, "Unknown node type: mystery", odd.Error)
	p, _ := rec.Entry("p")
	assert.Equal(t, "panic: kaboom", p.Error)
	assert.Equal(t, "ODD: Unknown node type: mystery", rec.ErrorMessage)
}

func TestRun_NodeTimeout(t *testing.T) {
	slow := node("slow", model.TypeDelay, map[string]any{"duration": 5, "unit": "seconds"})
	slow.TimeoutMs = 20
	wf := model.Workflow{
		Nodes: []model.Node{node("t", model.TypeManualTrigger, nil), slow, node("fast", model.TypeDelay, map[string]any{"duration": 1, "unit": "ms"})},
		Edges: []model.Edge{edge("t", "slow"), edge("t", "fast")},
	}
	rec, err := newTestEngine(nil, WithNodeTimeout(time.Second)).Run(context.Background(), wf, nil)
	require.NoError(t, err)

	e, _ := rec.Entry("slow")
	assert.Equal(t, context.DeadlineExceeded.Error(), e.Error)
	f, _ := rec.Entry("fast")
	assert.Equal(t, model.EntrySuccess, f.Status)
}

func TestRun_NodeTimeoutFromJSON(t *testing.T) {
	raw := `{"nodes": [
		{"id": "t", "type": "manualTrigger"},
		{"id": "d", "type": "delay", "timeoutMs": 5000, "config": {"duration": 5, "unit": "milliseconds"}}
	], "edges": [{"id": "e", "source": "t", "target": "d"}]}`
	var wf model.Workflow
	require.NoError(t, json.Unmarshal([]byte(raw), &wf))
	assert.Equal(t, 5*time.Second, wf.Nodes[1].Timeout())

	rec, err := newTestEngine(nil).Run(context.Background(), wf, nil)
	require.NoError(t, err)
	assert.Equal(t, model.RunSuccess, rec.Status, rec.ErrorMessage)

	out, err := json.Marshal(wf.Nodes[1])
	require.NoError(t, err)
	assert.Contains(t, string(out), `"timeoutMs":5000`)
}

func TestNode_Timeout(t *testing.T) {
	assert.Zero(t, model.Node{}.Timeout())
	assert.Zero(t, model.Node{TimeoutMs: -1}.Timeout())
	assert.Equal(t, 20*time.Millisecond, model.Node{TimeoutMs: 20}.Timeout())
	assert.Equal(t, time.Duration(math.MaxInt64), model.Node{TimeoutMs: math.MaxInt64}.Timeout())
}

func TestRun_TotalNodesIgnoresDuplicateIDs(t *testing.T) {
	wf := model.Workflow{
		Nodes: []model.Node{node("t", model.TypeManualTrigger, nil), node("t", model.TypeManualTrigger, nil), node("n", model.TypeManualTrigger, nil)},
		Edges: []model.Edge{edge("t", "n")},
	}
	rec, err := newTestEngine(nil).Run(context.Background(), wf, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.TotalNodes)
	assert.Equal(t, 2, rec.NodesExecuted)
}

func TestRun_RunDeadlineSkipsLaterNodes(t *testing.T) {
	wf := model.Workflow{
		Nodes: []model.Node{
			node("t", model.TypeManualTrigger, nil),
			node("slow", model.TypeDataTransform, map[string]any{"code": "sleep"}),
			node("late", model.TypeManualTrigger, nil),
			node("never", model.TypeManualTrigger, nil),
		},
		Edges: []model.Edge{edge("t", "slow"), edge("slow", "late"), edge("late", "never")},
	}
	ev := &scriptEval{run: func(code string, b plugin.Bindings) (any, error) {
		time.Sleep(60 * time.Millisecond)
		return "done", nil
	}}
	rec, err := newTestEngine(ev, WithRunTimeout(20*time.Millisecond)).Run(context.Background(), wf, nil)
	require.NoError(t, err)

	require.Len(t, rec.PerNode, 3)
	late := rec.PerNode[2]
	assert.Equal(t, model.ID("late"), late.NodeID)
	assert.Equal(t, model.EntrySkipped, late.Status)
	assert.Equal(t, 2, rec.NodesExecuted)
	assert.Equal(t, model.RunSuccess, rec.Status)
}

func TestRun_PersistenceFailureIsLogged(t *testing.T) {
	sink := &memSink{err: errors.New("disk full")}
	wf := model.Workflow{Nodes: []model.Node{node("t", model.TypeManualTrigger, nil)}}
	rec, err := newTestEngine(nil, WithRunLog(sink)).Run(context.Background(), wf, nil)
	require.NoError(t, err)
	assert.Equal(t, model.RunSuccess, rec.Status)
	assert.Len(t, sink.recs, 1)
}

func TestRun_TemplatesSeePreviousOutputs(t *testing.T) {
	wf := model.Workflow{
		Nodes: []model.Node{
			node("t", model.TypeManualTrigger, nil),
			node("mail", model.TypeSendEmail, map[string]any{
				"to":      "{{t.user.email}}",
				"subject": "Hi {{ input.user.name }}",
				"body":    "{{missing.value}}",
			}),
		},
		Edges: []model.Edge{edge("t", "mail")},
	}
	rec, err := newTestEngine(nil).Run(context.Background(), wf, map[model.ID]any{
		"t": map[string]any{"user": map[string]any{"email": "a@b.c", "name": "Ada"}},
	})
	require.NoError(t, err)

	mail, _ := rec.Entry("mail")
	out := mail.Output.(map[string]any)
	assert.Equal(t, "a@b.c", out["to"])
	assert.Equal(t, "Hi Ada", out["subject"])
	assert.Equal(t, "{{missing.value}}", out["body"])
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) add(s string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, s)
}

func (o *recordingObserver) RunStarted(runID string, wf *model.Workflow) { o.add("run:" + wf.Name) }
func (o *recordingObserver) NodeStarted(runID string, n model.Node) { o.add("start:" + string(n.ID)) }
func (o *recordingObserver) NodeSettled(runID string, e model.NodeResultEntry) {
	o.add("settle:" + string(e.NodeID) + ":" + string(e.Status))
}
func (o *recordingObserver) RunFinished(rec *model.RunRecord) { o.add("done:" + string(rec.Status)) }

func TestRun_ObserversSeeEveryStep(t *testing.T) {
	obs := &recordingObserver{}
	wf := model.Workflow{
		Name:  "wf",
		Nodes: []model.Node{node("t", model.TypeManualTrigger, nil), node("u", "mystery", nil)},
		Edges: []model.Edge{edge("t", "u")},
	}
	_, err := newTestEngine(nil, WithObservers(obs)).Run(context.Background(), wf, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"run:wf",
		"start:t", "settle:t:success",
		"start:u", "settle:u:error",
		"done:error",
	}, obs.events)
}
