package email

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Tsinling0525/canvasflow/nodes"
	"github.com/Tsinling0525/canvasflow/plugin"
)

// Send acknowledges an email without delivering it.
// Config: to, subject, body (all templated)
type Send struct {
	Now    func() time.Time
	Logger *zap.Logger
}

func (n *Send) Execute(ctx context.Context, ec plugin.ExecutionContext) (any, error) {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	to := nodes.String(ec.Config, "to")
	subject := nodes.String(ec.Config, "subject")
	if n.Logger != nil {
		n.Logger.Info("simulated email", zap.String("node_id", string(ec.NodeID)), zap.String("to", to), zap.String("subject", subject))
	}
	return map[string]any{
		"sent":      true,
		"simulated": true,
		"to":        to,
		"subject":   subject,
		"body":      nodes.String(ec.Config, "body"),
		"sentAt":    now().UTC().Format(time.RFC3339),
	}, nil
}

var _ plugin.NodeHandler = (*Send)(nil)
