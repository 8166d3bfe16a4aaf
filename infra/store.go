// Package infra provides persistence for workflows and run records.
package infra

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Tsinling0525/canvasflow/model"
)

// ErrNotFound is returned when a workflow or run record does not exist.
var ErrNotFound = errors.New("not found")

// DefaultRunLogCapacity is the number of run records kept when none is configured.
const DefaultRunLogCapacity = 50

// RunLog keeps the most recent run records, newest first. Saving beyond the
// capacity evicts the oldest record.
type RunLog interface {
	Save(ctx context.Context, rec *model.RunRecord) error
	List(ctx context.Context) ([]model.RunRecord, error)
	Get(ctx context.Context, id string) (*model.RunRecord, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// WorkflowStore persists named graphs. Save assigns an id to new workflows
// and maintains the timestamps.
type WorkflowStore interface {
	Save(ctx context.Context, wf *model.Workflow) error
	Get(ctx context.Context, id model.ID) (*model.Workflow, error)
	List(ctx context.Context) ([]model.Workflow, error)
	Delete(ctx context.Context, id model.ID) error
}

func capacity(n int) int {
	if n <= 0 {
		return DefaultRunLogCapacity
	}
	return n
}

func checkCtx(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// stamp prepares wf for saving. created is the stored creation time, if any.
func stamp(wf *model.Workflow, created time.Time) {
	now := time.Now().UTC()
	if wf.ID == "" {
		wf.ID = model.ID(uuid.NewString())
	}
	switch {
	case !created.IsZero():
		wf.CreatedAt = created
	case wf.CreatedAt.IsZero():
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now
}

func sortWorkflows(wfs []model.Workflow) {
	sort.Slice(wfs, func(i, j int) bool {
		if wfs[i].Name != wfs[j].Name {
			return wfs[i].Name < wfs[j].Name
		}
		return wfs[i].ID < wfs[j].ID
	})
}
