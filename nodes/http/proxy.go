package httpnode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Tsinling0525/canvasflow/plugin"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 10 << 20

// Proxy performs outbound HTTP calls on behalf of httpRequest nodes.
type Proxy struct {
	cl     *http.Client
	logger *zap.Logger
}

func NewProxy(timeout time.Duration, logger *zap.Logger) *Proxy {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Proxy{
		cl:     &http.Client{Timeout: timeout},
		logger: logger.With(zap.String("component", "http_proxy")),
	}
}

func (p *Proxy) Request(ctx context.Context, url, method string, headers map[string]string, body string) (*plugin.HTTPResponse, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}

	var rd io.Reader
	if body != "" && method != http.MethodGet && method != http.MethodHead {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if rd != nil && req.Header.Get("Content-Type") == "" {
		if json.Valid([]byte(body)) {
			req.Header.Set("Content-Type", "application/json")
		} else {
			req.Header.Set("Content-Type", "text/plain; charset=utf-8")
		}
	}

	start := time.Now()
	res, err := p.cl.Do(req)
	if err != nil {
		p.logger.Debug("request failed", zap.String("method", method), zap.String("url", url), zap.Error(err))
		return nil, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	p.logger.Debug("request completed",
		zap.String("method", method),
		zap.String("url", url),
		zap.Int("status", res.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	// Try decode JSON; fallback to string
	var data any
	if len(bytes.TrimSpace(raw)) == 0 {
		data = nil
	} else if json.Unmarshal(raw, &data) != nil {
		data = string(raw)
	}

	hdrs := make(map[string]string, len(res.Header))
	for k, v := range res.Header {
		hdrs[k] = strings.Join(v, ", ")
	}
	return &plugin.HTTPResponse{
		Status:     res.StatusCode,
		StatusText: http.StatusText(res.StatusCode),
		Headers:    hdrs,
		Data:       data,
	}, nil
}

var _ plugin.HTTPProxy = (*Proxy)(nil)
