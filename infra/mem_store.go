package infra

import (
	"context"
	"sync"

	"github.com/Tsinling0525/canvasflow/model"
)

// MemRunLog is an in-memory RunLog.
type MemRunLog struct {
	mu   sync.RWMutex
	cap  int
	recs []model.RunRecord // newest first
}

func NewMemRunLog(limit int) *MemRunLog { return &MemRunLog{cap: capacity(limit)} }

func (m *MemRunLog) Save(ctx context.Context, rec *model.RunRecord) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(rec.ID)
	m.recs = append([]model.RunRecord{*rec}, m.recs...)
	if len(m.recs) > m.cap {
		m.recs = m.recs[:m.cap]
	}
	return nil
}

func (m *MemRunLog) List(ctx context.Context) ([]model.RunRecord, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.RunRecord{}, m.recs...), nil
}

func (m *MemRunLog) Get(ctx context.Context, id string) (*model.RunRecord, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.recs {
		if r.ID == id {
			out := r
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemRunLog) Delete(ctx context.Context, id string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.remove(id) {
		return ErrNotFound
	}
	return nil
}

func (m *MemRunLog) Clear(ctx context.Context) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = nil
	return nil
}

func (m *MemRunLog) remove(id string) bool {
	for i, r := range m.recs {
		if r.ID == id {
			m.recs = append(m.recs[:i:i], m.recs[i+1:]...)
			return true
		}
	}
	return false
}

// MemWorkflows is an in-memory WorkflowStore.
type MemWorkflows struct {
	mu   sync.RWMutex
	data map[model.ID]model.Workflow
}

func NewMemWorkflows() *MemWorkflows { return &MemWorkflows{data: make(map[model.ID]model.Workflow)} }

func (m *MemWorkflows) Save(ctx context.Context, wf *model.Workflow) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var created model.Workflow
	if wf.ID != "" {
		created = m.data[wf.ID]
	}
	stamp(wf, created.CreatedAt)
	m.data[wf.ID] = wf.Clone()
	return nil
}

func (m *MemWorkflows) Get(ctx context.Context, id model.ID) (*model.Workflow, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	wf, ok := m.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := wf.Clone()
	return &out, nil
}

func (m *MemWorkflows) List(ctx context.Context) ([]model.Workflow, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Workflow, 0, len(m.data))
	for _, wf := range m.data {
		out = append(out, wf.Clone())
	}
	sortWorkflows(out)
	return out, nil
}

func (m *MemWorkflows) Delete(ctx context.Context, id model.ID) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[id]; !ok {
		return ErrNotFound
	}
	delete(m.data, id)
	return nil
}

var (
	_ RunLog        = (*MemRunLog)(nil)
	_ WorkflowStore = (*MemWorkflows)(nil)
)
