package httpnode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Tsinling0525/canvasflow/plugin"
)

type recordedRequest struct {
	method      string
	body        string
	contentType string
	auth        string
}

func newEchoServer(t *testing.T, got *recordedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		*got = recordedRequest{method: r.Method, body: string(b), contentType: r.Header.Get("Content-Type"), auth: r.Header.Get("Authorization")}
		switch r.URL.Path {
		case "/text":
			_, _ = io.WriteString(w, "plain text")
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"value": 21})
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProxy_GetDecodesJSON(t *testing.T) {
	var got recordedRequest
	srv := newEchoServer(t, &got)

	res, err := NewProxy(5*time.Second, zap.NewNop()).Request(context.Background(), srv.URL, "get", nil, "ignored")
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, got.method)
	assert.Empty(t, got.body)
	assert.Equal(t, 200, res.Status)
	assert.Equal(t, "OK", res.StatusText)
	assert.Equal(t, map[string]any{"value": float64(21)}, res.Data)
	assert.Equal(t, "application/json", res.Headers["Content-Type"])
}

func TestProxy_PostSendsBody(t *testing.T) {
	var got recordedRequest
	srv := newEchoServer(t, &got)

	_, err := NewProxy(0, nil).Request(context.Background(), srv.URL+"/text", http.MethodPost,
		map[string]string{"Authorization": "Bearer x"}, `{"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, `{"a":1}`, got.body)
	assert.Equal(t, "application/json", got.contentType)
	assert.Equal(t, "Bearer x", got.auth)
}

func TestProxy_TextAndStatus(t *testing.T) {
	var got recordedRequest
	srv := newEchoServer(t, &got)
	p := NewProxy(0, nil)

	res, err := p.Request(context.Background(), srv.URL+"/text", "", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "plain text", res.Data)

	res, err = p.Request(context.Background(), srv.URL+"/missing", "", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 404, res.Status)
	assert.Equal(t, "Not Found", res.StatusText)
	assert.Nil(t, res.Data)
}

// stubProxy records the call and returns a canned response.
type stubProxy struct {
	url, method string
	headers     map[string]string
	body        string
	res         *plugin.HTTPResponse
}

func (s *stubProxy) Request(ctx context.Context, url, method string, headers map[string]string, body string) (*plugin.HTTPResponse, error) {
	s.url, s.method, s.headers, s.body = url, method, headers, body
	return s.res, nil
}

func TestRequest_Execute(t *testing.T) {
	sp := &stubProxy{res: &plugin.HTTPResponse{Status: 201, StatusText: "Created", Data: map[string]any{"id": "1"}}}
	out, err := (&Request{Proxy: sp}).Execute(context.Background(), plugin.ExecutionContext{
		Config: map[string]any{
			"url":     "https://example.com/items",
			"method":  "post",
			"headers": `{"X-Token": "abc", "X-Count": 2}`,
			"body":    `{"name":"n"}`,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "POST", sp.method)
	assert.Equal(t, map[string]string{"X-Token": "abc", "X-Count": "2"}, sp.headers)
	assert.Equal(t, `{"name":"n"}`, sp.body)
	assert.Equal(t, map[string]any{
		"status":     201,
		"statusText": "Created",
		"headers":    map[string]string(nil),
		"data":       map[string]any{"id": "1"},
	}, out)
}

func TestRequest_GetOmitsBody(t *testing.T) {
	sp := &stubProxy{res: &plugin.HTTPResponse{Status: 200}}
	_, err := (&Request{Proxy: sp}).Execute(context.Background(), plugin.ExecutionContext{
		Config: map[string]any{"url": "https://example.com", "body": "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, "GET", sp.method)
	assert.Empty(t, sp.body)
}

func TestRequest_Errors(t *testing.T) {
	_, err := (&Request{Proxy: &stubProxy{}}).Execute(context.Background(), plugin.ExecutionContext{
		Config: map[string]any{"url": "  "},
	})
	assert.EqualError(t, err, "URL is required")

	_, err = (&Request{Proxy: &stubProxy{}}).Execute(context.Background(), plugin.ExecutionContext{
		Config: map[string]any{"url": "https://x", "headers": "{not json"},
	})
	assert.ErrorContains(t, err, "invalid headers")
}
