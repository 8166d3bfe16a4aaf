package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Tsinling0525/canvasflow/model"
	"github.com/Tsinling0525/canvasflow/plugin"
)

const instrumentationName = "github.com/Tsinling0525/canvasflow/engine"

// ErrNoTrigger is returned when a workflow has no node without incoming edges.
var ErrNoTrigger = errors.New("workflow has no trigger node")

// RunSink receives every finished run record.
type RunSink interface {
	Save(ctx context.Context, rec *model.RunRecord) error
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithRegistry(r *plugin.Registry) Option { return func(e *Engine) { e.registry = r } }

func WithRunLog(s RunSink) Option { return func(e *Engine) { e.runLog = s } }

func WithObservers(obs ...Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, obs...) }
}

// WithNodeTimeout bounds nodes that do not carry their own timeout.
func WithNodeTimeout(d time.Duration) Option { return func(e *Engine) { e.nodeTimeout = d } }

func WithRunTimeout(d time.Duration) Option { return func(e *Engine) { e.runTimeout = d } }

// Engine walks workflow graphs depth first from their entry points. It holds
// no per-run state and may run several workflows concurrently.
type Engine struct {
	Deps plugin.Deps

	registry    *plugin.Registry
	dispatcher  *Dispatcher
	runLog      RunSink
	observers   []Observer
	nodeTimeout time.Duration
	runTimeout  time.Duration
	logger      *zap.Logger
	tracer      trace.Tracer
}

func New(deps plugin.Deps, opts ...Option) *Engine {
	e := &Engine{Deps: deps, logger: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	if e.registry == nil {
		e.registry = plugin.DefaultRegistry()
	}
	e.logger = e.logger.With(zap.String("component", "engine"))
	e.dispatcher = NewDispatcher(e.registry, deps, e.logger)
	e.tracer = otel.Tracer(instrumentationName)
	return e
}

// Registry returns the node type registry used for dispatch and branching.
func (e *Engine) Registry() *plugin.Registry { return e.registry }

// runState is owned by a single Run call.
type runState struct {
	id        string
	graph     *graph
	visited   map[model.ID]bool
	outputs   map[model.ID]any
	rec       *recorder
	observers []Observer
}

type frame struct {
	id    model.ID
	input any
}

// Run executes wf and returns its frozen record. inputs optionally supplies
// the input of entry nodes. Node failures are reported in the record; the
// only error is ErrNoTrigger, returned before anything runs.
func (e *Engine) Run(ctx context.Context, wf model.Workflow, inputs map[model.ID]any) (*model.RunRecord, error) {
	return e.RunObserved(ctx, wf, inputs)
}

// RunObserved is Run with additional observers for this run only.
func (e *Engine) RunObserved(ctx context.Context, wf model.Workflow, inputs map[model.ID]any, extra ...Observer) (*model.RunRecord, error) {
	g := newGraph(&wf, e.logger)
	entries := g.entryPoints()
	if len(entries) == 0 {
		return nil, ErrNoTrigger
	}

	id := uuid.NewString()
	st := &runState{
		id:        id,
		graph:     g,
		visited:   make(map[model.ID]bool, len(g.order)),
		outputs:   make(map[model.ID]any, len(g.order)),
		rec:       newRecorder(id, &wf, len(g.order), time.Now()),
		observers: append(append([]Observer(nil), e.observers...), extra...),
	}
	log := e.logger.With(zap.String("run_id", st.id), zap.String("workflow_id", string(wf.ID)))

	runCtx, span := e.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("run.id", st.id),
		attribute.String("workflow.id", string(wf.ID)),
		attribute.Int("workflow.nodes", len(g.order)),
	))
	defer span.End()
	if e.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, e.runTimeout)
		defer cancel()
	}

	log.Info("run started", zap.Int("entry_points", len(entries)))
	for _, o := range st.observers {
		o.RunStarted(st.id, &wf)
	}

	stack := make([]frame, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		stack = append(stack, frame{id: entries[i], input: inputs[entries[i]]})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if st.visited[f.id] {
			continue
		}
		st.visited[f.id] = true
		node := g.nodes[f.id]

		if err := runCtx.Err(); err != nil {
			entry := st.rec.skip(node, err.Error())
			log.Warn("node skipped", zap.String("node_id", string(node.ID)), zap.Error(err))
			st.settled(entry)
			continue
		}

		res := e.execute(runCtx, st, node, f.input, log)
		if !res.Success {
			continue
		}
		st.outputs[f.id] = res.Output

		def, _ := e.registry.Lookup(node.Type)
		next := selectEdges(def.Branching, res.Output, g.out[f.id])
		for i := len(next) - 1; i >= 0; i-- {
			stack = append(stack, frame{id: next[i].Target, input: res.Output})
		}
	}

	rec := st.rec.finish(time.Now())
	if rec.Status == model.RunError {
		span.SetStatus(codes.Error, rec.ErrorMessage)
	}
	span.SetAttributes(attribute.Int("run.nodes_executed", rec.NodesExecuted))
	log.Info("run finished",
		zap.String("status", string(rec.Status)),
		zap.Int("nodes_executed", rec.NodesExecuted),
		zap.Int64("duration_ms", rec.DurationMs))
	for _, o := range st.observers {
		o.RunFinished(rec)
	}

	if e.runLog != nil {
		// The run deadline may already have passed; persistence still gets a chance.
		if err := e.runLog.Save(context.WithoutCancel(ctx), rec); err != nil {
			log.Error("persist run record", zap.Error(err))
		}
	}
	return rec, nil
}

func (e *Engine) execute(ctx context.Context, st *runState, node model.Node, input any, log *zap.Logger) model.NodeExecutionResult {
	ctx, span := e.tracer.Start(ctx, "workflow.node", trace.WithAttributes(
		attribute.String("node.id", string(node.ID)),
		attribute.String("node.type", string(node.Type)),
	))
	defer span.End()

	timeout := node.Timeout()
	if timeout <= 0 {
		timeout = e.nodeTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for _, o := range st.observers {
		o.NodeStarted(st.id, node)
	}
	log.Debug("dispatching node", zap.String("node_id", string(node.ID)), zap.String("node_type", string(node.Type)))

	start := time.Now()
	res := e.dispatcher.Execute(ctx, node, plugin.ExecutionContext{
		NodeID:          node.ID,
		NodeType:        node.Type,
		Input:           input,
		Config:          node.Config,
		PreviousOutputs: st.outputs,
	})
	entry := st.rec.settle(node, res, time.Since(start))

	if !res.Success {
		span.SetStatus(codes.Error, res.Error)
		log.Warn("node failed",
			zap.String("node_id", string(node.ID)),
			zap.String("node_type", string(node.Type)),
			zap.String("error", res.Error))
	}
	st.settled(entry)
	return res
}

func (st *runState) settled(entry model.NodeResultEntry) {
	for _, o := range st.observers {
		o.NodeSettled(st.id, entry)
	}
}
