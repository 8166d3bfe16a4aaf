// Package sandbox evaluates workflow-author JavaScript with goja. Each call
// gets a fresh runtime whose only globals besides the ECMAScript builtins are
// input and previousNodes.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/Tsinling0525/canvasflow/plugin"
)

const DefaultTimeout = 5 * time.Second

type Evaluator struct {
	timeout time.Duration
	logger  *zap.Logger
}

func New(timeout time.Duration, logger *zap.Logger) *Evaluator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{timeout: timeout, logger: logger.With(zap.String("component", "sandbox"))}
}

// Run executes code as the body of a function and returns its JSON-normalized
// result. A missing return yields nil.
func (e *Evaluator) Run(ctx context.Context, code string, b plugin.Bindings) (any, error) {
	v, err := e.eval(ctx, "(function() {\n"+code+"\n})()", b)
	if err != nil {
		return nil, err
	}
	return export(v)
}

// Test evaluates expr and reports its JavaScript truthiness.
func (e *Evaluator) Test(ctx context.Context, expr string, b plugin.Bindings) (bool, error) {
	expr = strings.TrimRight(strings.TrimSpace(expr), ";")
	v, err := e.eval(ctx, "(function() {\nreturn (\n"+expr+"\n);\n})()", b)
	if err != nil {
		return false, err
	}
	return v.ToBoolean(), nil
}

func (e *Evaluator) eval(ctx context.Context, src string, b plugin.Bindings) (goja.Value, error) {
	input, err := normalize(b.Input)
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	prev, err := normalize(b.PreviousNodes)
	if err != nil {
		return nil, fmt.Errorf("previousNodes: %w", err)
	}
	if prev == nil {
		prev = map[string]any{}
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	if err := vm.Set("input", input); err != nil {
		return nil, err
	}
	if err := vm.Set("previousNodes", prev); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	v, err := vm.RunString(src)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			e.logger.Warn("script interrupted", zap.Error(ctx.Err()))
			return nil, fmt.Errorf("script interrupted: %w", ctx.Err())
		}
		var ex *goja.Exception
		if errors.As(err, &ex) {
			return nil, errors.New(exceptionMessage(ex))
		}
		return nil, err
	}
	return v, nil
}

// exceptionMessage prefers the thrown Error's message over goja's formatted
// text with stack position.
func exceptionMessage(ex *goja.Exception) string {
	if obj, ok := ex.Value().(*goja.Object); ok {
		if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) && m.String() != "" {
			return m.String()
		}
	}
	if ex.Value() != nil {
		return ex.Value().String()
	}
	return ex.Error()
}

func export(v goja.Value) (any, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	out, err := normalize(v.Export())
	if err != nil {
		return nil, fmt.Errorf("result is not serializable: %w", err)
	}
	return out, nil
}

// normalize deep-copies v into plain JSON values so scripts cannot mutate
// outputs held by the engine.
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

var _ plugin.Evaluator = (*Evaluator)(nil)
