package session

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/Tsinling0525/canvasflow/infra"
	"github.com/Tsinling0525/canvasflow/model"
)

// Manager keeps one open session per workflow id.
type Manager struct {
	mu      sync.Mutex
	items   map[model.ID]*Session
	store   infra.WorkflowStore
	runner  Runner
	history int
	logger  *zap.Logger
}

func NewManager(store infra.WorkflowStore, runner Runner, history int, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		items:   make(map[model.ID]*Session),
		store:   store,
		runner:  runner,
		history: history,
		logger:  logger,
	}
}

// Open returns the session for id, loading the workflow from the store the
// first time.
func (m *Manager) Open(ctx context.Context, id model.ID) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.items[id]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	wf, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.items[id]; ok {
		return s, nil
	}
	s := New(*wf, m.runner, m.history, m.logger)
	m.items[id] = s
	m.logger.Info("session opened", zap.String("workflow_id", string(id)))
	return s, nil
}

// Create persists wf and opens a session for it.
func (m *Manager) Create(ctx context.Context, wf model.Workflow) (*Session, error) {
	if err := m.store.Save(ctx, &wf); err != nil {
		return nil, err
	}
	return m.Open(ctx, wf.ID)
}

func (m *Manager) Get(id model.ID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	return s, ok
}

// List returns the open sessions ordered by workflow id.
func (m *Manager) List() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.items))
	for _, s := range m.items {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Save writes the session's current graph to the store.
func (m *Manager) Save(ctx context.Context, id model.ID) error {
	s, ok := m.Get(id)
	if !ok {
		return infra.ErrNotFound
	}
	wf := s.Graph()
	if err := m.store.Save(ctx, &wf); err != nil {
		return err
	}
	s.mu.Lock()
	s.wf.CreatedAt, s.wf.UpdatedAt = wf.CreatedAt, wf.UpdatedAt
	s.mu.Unlock()
	return nil
}

// Close forgets the session. Unsaved edits are lost.
func (m *Manager) Close(id model.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return infra.ErrNotFound
	}
	delete(m.items, id)
	return nil
}
