package httpnode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Tsinling0525/canvasflow/nodes"
	"github.com/Tsinling0525/canvasflow/plugin"
	"github.com/Tsinling0525/canvasflow/templating"
)

// Request is the httpRequest node.
// Config:
// - url: string (required, templated)
// - method: string (default: GET)
// - headers: JSON object text or map (templated)
// - body: string (templated, ignored for GET)
type Request struct {
	Proxy plugin.HTTPProxy
}

func (n *Request) Execute(ctx context.Context, ec plugin.ExecutionContext) (any, error) {
	url := strings.TrimSpace(nodes.String(ec.Config, "url"))
	if url == "" {
		return nil, errors.New("URL is required")
	}
	if n.Proxy == nil {
		return nil, errors.New("no http proxy configured")
	}
	method := strings.ToUpper(nodes.String(ec.Config, "method"))
	if method == "" {
		method = http.MethodGet
	}
	headers, err := parseHeaders(ec.Config["headers"])
	if err != nil {
		return nil, err
	}
	body := ""
	if method != http.MethodGet {
		body = nodes.String(ec.Config, "body")
	}

	res, err := n.Proxy.Request(ctx, url, method, headers, body)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status":     res.Status,
		"statusText": res.StatusText,
		"headers":    res.Headers,
		"data":       res.Data,
	}, nil
}

// parseHeaders accepts a JSON object in text form or an already decoded map.
func parseHeaders(v any) (map[string]string, error) {
	var m map[string]any
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, nil
		}
		if err := json.Unmarshal([]byte(t), &m); err != nil {
			return nil, fmt.Errorf("invalid headers: %w", err)
		}
	case map[string]any:
		m = t
	case map[string]string:
		return t, nil
	default:
		return nil, fmt.Errorf("invalid headers: unsupported type %T", v)
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		out[k] = templating.Stringify(val)
	}
	return out, nil
}

var _ plugin.NodeHandler = (*Request)(nil)
