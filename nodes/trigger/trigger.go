package trigger

import (
	"context"
	"time"

	"github.com/Tsinling0525/canvasflow/plugin"
)

// Trigger passes its input through. Without input it emits a
// {triggeredAt, config} payload so downstream nodes have something to read.
type Trigger struct {
	Now func() time.Time
}

func New() *Trigger { return &Trigger{Now: time.Now} }

func (t *Trigger) Execute(ctx context.Context, ec plugin.ExecutionContext) (any, error) {
	if ec.Input != nil {
		return ec.Input, nil
	}
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	return map[string]any{
		"triggeredAt": now().UTC().Format(time.RFC3339),
		"config":      ec.Config,
	}, nil
}

var _ plugin.NodeHandler = (*Trigger)(nil)
