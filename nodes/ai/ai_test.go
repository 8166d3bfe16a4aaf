package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Tsinling0525/canvasflow/model"
	"github.com/Tsinling0525/canvasflow/plugin"
)

type fakeProvider struct {
	name string
	got  Request
	err  error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Generate(ctx context.Context, req Request) (*Completion, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &Completion{Text: "ok", Model: "m1", PromptTokens: 3, CompletionTokens: 1}, nil
}

func TestService_Chat(t *testing.T) {
	p := &fakeProvider{name: "openai"}
	s := NewService("openai", zap.NewNop(), p)

	out, err := s.Execute(context.Background(), model.TypeAIChat, map[string]any{
		"prompt": "hello", "systemPrompt": "be brief", "temperature": 0.2, "maxTokens": float64(64),
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Request{System: "be brief", Prompt: "hello", Temperature: 0.2, MaxTokens: 64}, p.got)
	assert.Equal(t, "ok", out["response"])
	assert.Equal(t, "openai", out["provider"])
	assert.Equal(t, map[string]any{"promptTokens": 3, "completionTokens": 1}, out["usage"])
}

func TestService_SummarizeFallsBackToInput(t *testing.T) {
	p := &fakeProvider{name: "ollama"}
	s := NewService("openai", nil, p)

	_, err := s.Execute(context.Background(), model.TypeAISummarize, map[string]any{"provider": "ollama", "maxWords": 10}, "long text", nil)
	require.NoError(t, err)
	assert.Contains(t, p.got.Prompt, "at most 10 words")
	assert.Contains(t, p.got.Prompt, "long text")
}

func TestService_Errors(t *testing.T) {
	s := NewService("openai", nil, &fakeProvider{name: "openai", err: errors.New("rate limited")})
	ctx := context.Background()

	_, err := s.Execute(ctx, model.TypeAIChat, map[string]any{"provider": "claude", "prompt": "x"}, nil, nil)
	assert.EqualError(t, err, "AI provider not configured: claude")

	_, err = s.Execute(ctx, model.TypeAIChat, map[string]any{}, nil, nil)
	assert.EqualError(t, err, "prompt is required")

	_, err = s.Execute(ctx, "aiVision", map[string]any{}, nil, nil)
	assert.EqualError(t, err, "Unknown ai node type: aiVision")

	_, err = s.Execute(ctx, model.TypeAIChat, map[string]any{"prompt": "x"}, nil, nil)
	assert.EqualError(t, err, "openai: rate limited")
}

type mapExecutor map[string]any

func (m mapExecutor) Execute(context.Context, model.NodeType, map[string]any, any, map[model.ID]any) (map[string]any, error) {
	return m, nil
}

func TestNode_ErrorFieldFails(t *testing.T) {
	_, err := (&Node{Exec: mapExecutor{"error": "quota exceeded"}}).Execute(context.Background(), plugin.ExecutionContext{})
	assert.EqualError(t, err, "quota exceeded")

	out, err := (&Node{Exec: mapExecutor{"response": "hi"}}).Execute(context.Background(), plugin.ExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"response": "hi"}, out)
}

type fakeChat struct {
	req openai.ChatCompletionRequest
}

func (f *fakeChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	return openai.ChatCompletionResponse{
		Model:   "gpt-4o-mini-2024",
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Role: "assistant", Content: "pong"}}},
		Usage:   openai.Usage{PromptTokens: 5, CompletionTokens: 1},
	}, nil
}

func TestOpenAI_Generate(t *testing.T) {
	fc := &fakeChat{}
	c, err := NewOpenAIWithClient(fc, "").Generate(context.Background(), Request{System: "sys", Prompt: "ping", MaxTokens: 10})
	require.NoError(t, err)
	assert.Equal(t, DefaultOpenAIModel, fc.req.Model)
	require.Len(t, fc.req.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, fc.req.Messages[0].Role)
	assert.Equal(t, "ping", fc.req.Messages[1].Content)
	assert.Equal(t, &Completion{Text: "pong", Model: "gpt-4o-mini-2024", PromptTokens: 5, CompletionTokens: 1}, c)
}

func TestOllama_Generate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]any{"model": "gemma3", "response": "summary", "eval_count": 7})
	}))
	defer srv.Close()

	c, err := NewOllama(srv.URL, "gemma3", 0).Generate(context.Background(), Request{Prompt: "p", Temperature: 0.5})
	require.NoError(t, err)
	assert.Equal(t, "summary", c.Text)
	assert.Equal(t, 7, c.CompletionTokens)
	assert.Equal(t, "gemma3", body["model"])
	assert.Equal(t, false, body["stream"])
	assert.Equal(t, map[string]any{"temperature": 0.5}, body["options"])
}

func TestOllama_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL, "", 0).Generate(context.Background(), Request{Prompt: "p"})
	assert.ErrorContains(t, err, "ollama error")
}
