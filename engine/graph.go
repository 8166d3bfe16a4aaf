package engine

import (
	"go.uber.org/zap"

	"github.com/Tsinling0525/canvasflow/model"
	"github.com/Tsinling0525/canvasflow/templating"
)

// graph indexes a workflow for traversal. Edges whose source or target is
// not a node of the workflow are dropped.
type graph struct {
	order []model.ID
	nodes map[model.ID]model.Node
	out   map[model.ID][]model.Edge
	indeg map[model.ID]int
}

func newGraph(wf *model.Workflow, logger *zap.Logger) *graph {
	g := &graph{
		nodes: make(map[model.ID]model.Node, len(wf.Nodes)),
		out:   map[model.ID][]model.Edge{},
		indeg: make(map[model.ID]int, len(wf.Nodes)),
	}
	for _, n := range wf.Nodes {
		if _, dup := g.nodes[n.ID]; dup {
			logger.Warn("duplicate node id ignored", zap.String("node_id", string(n.ID)))
			continue
		}
		g.nodes[n.ID] = n
		g.order = append(g.order, n.ID)
		g.indeg[n.ID] = 0
	}
	for _, e := range wf.Edges {
		_, okSrc := g.nodes[e.Source]
		_, okDst := g.nodes[e.Target]
		if !okSrc || !okDst {
			logger.Warn("edge references unknown node",
				zap.String("edge_id", e.ID),
				zap.String("source", string(e.Source)),
				zap.String("target", string(e.Target)))
			continue
		}
		g.out[e.Source] = append(g.out[e.Source], e)
		g.indeg[e.Target]++
	}
	return g
}

// entryPoints returns nodes without incoming edges in declaration order.
func (g *graph) entryPoints() []model.ID {
	var ids []model.ID
	for _, id := range g.order {
		if g.indeg[id] == 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// selectEdges picks the outgoing edges to follow after a node succeeded.
// Only branching node types consult the branch field of their output: exact
// tag match first, then default-tagged edges, then untagged ones.
func selectEdges(branching bool, output any, edges []model.Edge) []model.Edge {
	if !branching {
		return edges
	}
	m, ok := output.(map[string]any)
	if !ok {
		return edges
	}
	b, ok := m[model.BranchField]
	if !ok {
		return edges
	}
	tag := templating.Stringify(b)

	if sel := filterEdges(edges, tag); len(sel) > 0 {
		return sel
	}
	if sel := filterEdges(edges, model.BranchDefault); len(sel) > 0 {
		return sel
	}
	return filterEdges(edges, "")
}

func filterEdges(edges []model.Edge, tag string) []model.Edge {
	var out []model.Edge
	for _, e := range edges {
		if e.BranchTag == tag {
			out = append(out, e)
		}
	}
	return out
}
