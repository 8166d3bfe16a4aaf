package engine

import (
	"time"

	"github.com/Tsinling0525/canvasflow/model"
)

// Observer is notified of every step of a run. Implementations must not
// block; they never influence routing.
type Observer interface {
	RunStarted(runID string, wf *model.Workflow)
	NodeStarted(runID string, node model.Node)
	NodeSettled(runID string, entry model.NodeResultEntry)
	RunFinished(rec *model.RunRecord)
}

// NopObserver can be embedded to implement only part of Observer.
type NopObserver struct{}

func (NopObserver) RunStarted(string, *model.Workflow) {}
func (NopObserver) NodeStarted(string, model.Node) {}
func (NopObserver) NodeSettled(string, model.NodeResultEntry) {}
func (NopObserver) RunFinished(*model.RunRecord) {}

// recorder accumulates per-node entries in completion order.
type recorder struct {
	rec model.RunRecord
}

// newRecorder starts a record for total runnable nodes; duplicate ids are
// not counted.
func newRecorder(id string, wf *model.Workflow, total int, started time.Time) *recorder {
	return &recorder{rec: model.RunRecord{
		ID:           id,
		WorkflowID:   wf.ID,
		WorkflowName: wf.Name,
		StartedAt:    started,
		TotalNodes:   total,
		PerNode:      []model.NodeResultEntry{},
	}}
}

func (r *recorder) settle(node model.Node, res model.NodeExecutionResult, d time.Duration) model.NodeResultEntry {
	e := model.NodeResultEntry{
		NodeID:     node.ID,
		NodeName:   node.DisplayName(),
		NodeType:   node.Type,
		Status:     model.EntrySuccess,
		Output:     res.Output,
		DurationMs: d.Milliseconds(),
	}
	if !res.Success {
		e.Status = model.EntryError
		e.Output = nil
		e.Error = res.Error
	}
	r.add(e)
	return e
}

func (r *recorder) skip(node model.Node, reason string) model.NodeResultEntry {
	e := model.NodeResultEntry{
		NodeID:   node.ID,
		NodeName: node.DisplayName(),
		NodeType: node.Type,
		Status:   model.EntrySkipped,
		Error:    reason,
	}
	r.add(e)
	return e
}

func (r *recorder) add(e model.NodeResultEntry) {
	r.rec.PerNode = append(r.rec.PerNode, e)
	switch e.Status {
	case model.EntryError:
		if r.rec.ErrorMessage == "" {
			r.rec.ErrorMessage = e.NodeName + ": " + e.Error
		}
		r.rec.NodesExecuted++
	case model.EntrySuccess:
		r.rec.NodesExecuted++
	}
}

// finish freezes the record.
func (r *recorder) finish(end time.Time) *model.RunRecord {
	r.rec.DurationMs = end.Sub(r.rec.StartedAt).Milliseconds()
	r.rec.Status = model.RunSuccess
	if r.rec.ErrorMessage != "" {
		r.rec.Status = model.RunError
	}
	out := r.rec
	out.PerNode = append([]model.NodeResultEntry(nil), r.rec.PerNode...)
	return &out
}
