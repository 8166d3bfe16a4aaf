// Package session holds per-workflow editor sessions: undoable graph edits,
// a volatile run status channel and a guard against overlapping runs.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Tsinling0525/canvasflow/engine"
	"github.com/Tsinling0525/canvasflow/model"
)

// ErrBusy is returned by Run while a previous run of the session is in flight.
var ErrBusy = errors.New("workflow is already running")

// DefaultHistory bounds the undo stack when no limit is configured.
const DefaultHistory = 50

// Runner executes a workflow with extra per-run observers.
type Runner interface {
	RunObserved(ctx context.Context, wf model.Workflow, inputs map[model.ID]any, obs ...engine.Observer) (*model.RunRecord, error)
}

type Session struct {
	id model.ID

	mu      sync.Mutex
	wf      model.Workflow
	undo    []model.Workflow
	redo    []model.Workflow
	history int

	// status is never part of undo history.
	statusMu sync.RWMutex
	status   map[model.ID]model.NodeStatus

	running bool
	runner  Runner
	logger  *zap.Logger
}

func New(wf model.Workflow, runner Runner, history int, logger *zap.Logger) *Session {
	if history <= 0 {
		history = DefaultHistory
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		id:      wf.ID,
		wf:      wf.Clone(),
		history: history,
		status:  map[model.ID]model.NodeStatus{},
		runner:  runner,
		logger:  logger.With(zap.String("component", "session"), zap.String("workflow_id", string(wf.ID))),
	}
}

func (s *Session) ID() model.ID { return s.id }

// Workflow returns a copy of the graph with each node's last run status
// folded into LastOutput and LastError.
func (s *Session) Workflow() model.Workflow {
	s.mu.Lock()
	wf := s.wf.Clone()
	s.mu.Unlock()

	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	for i, n := range wf.Nodes {
		st, ok := s.status[n.ID]
		if !ok {
			continue
		}
		wf.Nodes[i].LastOutput = st.Output
		wf.Nodes[i].LastError = st.Error
	}
	return wf
}

// Graph returns a copy of the graph without run status, as persisted.
func (s *Session) Graph() model.Workflow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wf.Clone()
}

// Status returns a snapshot of the volatile per-node status.
func (s *Session) Status() map[model.ID]model.NodeStatus {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	out := make(map[model.ID]model.NodeStatus, len(s.status))
	for k, v := range s.status {
		out[k] = v
	}
	return out
}

// edit applies fn to a copy of the graph. The previous graph is pushed on the
// undo stack only when fn succeeds.
func (s *Session) edit(fn func(wf *model.Workflow) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.wf.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	s.undo = append(s.undo, s.wf)
	if len(s.undo) > s.history {
		s.undo = s.undo[len(s.undo)-s.history:]
	}
	s.redo = nil
	s.wf = next
	return nil
}

func (s *Session) Rename(name string) error {
	return s.edit(func(wf *model.Workflow) error {
		wf.Name = name
		return nil
	})
}

func (s *Session) AddNode(n model.Node) error {
	return s.edit(func(wf *model.Workflow) error {
		if n.ID == "" {
			n.ID = model.ID(uuid.NewString())
		}
		if _, exists := wf.Node(n.ID); exists {
			return fmt.Errorf("node %s already exists", n.ID)
		}
		wf.Nodes = append(wf.Nodes, n)
		return nil
	})
}

// UpdateNode replaces the name, config and timeout of an existing node.
func (s *Session) UpdateNode(n model.Node) error {
	return s.edit(func(wf *model.Workflow) error {
		for i := range wf.Nodes {
			if wf.Nodes[i].ID == n.ID {
				wf.Nodes[i].Name = n.Name
				wf.Nodes[i].Config = n.Config
				wf.Nodes[i].TimeoutMs = n.TimeoutMs
				return nil
			}
		}
		return fmt.Errorf("node %s not found", n.ID)
	})
}

// RemoveNode deletes a node and every edge touching it.
func (s *Session) RemoveNode(id model.ID) error {
	return s.edit(func(wf *model.Workflow) error {
		idx := -1
		for i, n := range wf.Nodes {
			if n.ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("node %s not found", id)
		}
		wf.Nodes = append(wf.Nodes[:idx], wf.Nodes[idx+1:]...)
		edges := wf.Edges[:0]
		for _, e := range wf.Edges {
			if e.Source != id && e.Target != id {
				edges = append(edges, e)
			}
		}
		wf.Edges = edges
		return nil
	})
}

// Connect adds an edge between two existing nodes and returns its id.
func (s *Session) Connect(e model.Edge) (string, error) {
	err := s.edit(func(wf *model.Workflow) error {
		if _, ok := wf.Node(e.Source); !ok {
			return fmt.Errorf("source node %s not found", e.Source)
		}
		if _, ok := wf.Node(e.Target); !ok {
			return fmt.Errorf("target node %s not found", e.Target)
		}
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		for _, x := range wf.Edges {
			if x.ID == e.ID {
				return fmt.Errorf("edge %s already exists", e.ID)
			}
		}
		wf.Edges = append(wf.Edges, e)
		return nil
	})
	return e.ID, err
}

func (s *Session) Disconnect(edgeID string) error {
	return s.edit(func(wf *model.Workflow) error {
		for i, e := range wf.Edges {
			if e.ID == edgeID {
				wf.Edges = append(wf.Edges[:i], wf.Edges[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("edge %s not found", edgeID)
	})
}

// Undo reverts the last edit. It reports false when there is nothing to undo.
func (s *Session) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.undo) == 0 {
		return false
	}
	s.redo = append(s.redo, s.wf)
	s.wf = s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	return true
}

func (s *Session) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.redo) == 0 {
		return false
	}
	s.undo = append(s.undo, s.wf)
	s.wf = s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	return true
}

func (s *Session) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.undo) > 0
}

func (s *Session) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.redo) > 0
}

// Running reports whether a run is in flight.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Run executes the current graph. Edits made while it runs do not affect it.
func (s *Session) Run(ctx context.Context, inputs map[model.ID]any) (*model.RunRecord, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.running = true
	wf := s.wf.Clone()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	rec, err := s.runner.RunObserved(ctx, wf, inputs, statusObserver{s})
	if err != nil {
		s.logger.Warn("run refused", zap.Error(err))
		return nil, err
	}
	return rec, nil
}

// statusObserver feeds engine events into the session's status map.
type statusObserver struct{ s *Session }

func (o statusObserver) RunStarted(runID string, wf *model.Workflow) {
	o.s.statusMu.Lock()
	defer o.s.statusMu.Unlock()
	o.s.status = map[model.ID]model.NodeStatus{}
}

func (o statusObserver) NodeStarted(runID string, n model.Node) {
	o.s.statusMu.Lock()
	defer o.s.statusMu.Unlock()
	o.s.status[n.ID] = model.NodeStatus{Executing: true}
}

func (o statusObserver) NodeSettled(runID string, e model.NodeResultEntry) {
	o.s.statusMu.Lock()
	defer o.s.statusMu.Unlock()
	o.s.status[e.NodeID] = model.NodeStatus{Output: e.Output, Error: e.Error}
}

func (o statusObserver) RunFinished(rec *model.RunRecord) {}

var _ engine.Observer = statusObserver{}
