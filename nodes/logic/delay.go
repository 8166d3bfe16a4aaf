package logic

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Tsinling0525/canvasflow/nodes"
	"github.com/Tsinling0525/canvasflow/plugin"
)

// Delay waits before passing its input on.
// Config: duration (number), unit ("seconds" or milliseconds otherwise)
type Delay struct{}

func (n *Delay) Execute(ctx context.Context, ec plugin.ExecutionContext) (any, error) {
	d, ok := nodes.Number(ec.Config, "duration")
	if !ok {
		d = 0
	}
	if d < 0 {
		return nil, fmt.Errorf("duration must not be negative")
	}
	ms := d
	if nodes.String(ec.Config, "unit") == "seconds" {
		ms = d * 1000
	}
	wait := ms * float64(time.Millisecond)
	if math.IsNaN(wait) || wait >= math.MaxInt64 {
		return nil, fmt.Errorf("duration is too large")
	}

	t := time.NewTimer(time.Duration(wait))
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return map[string]any{"delayed": ms, "input": ec.Input}, nil
}

var _ plugin.NodeHandler = (*Delay)(nil)
