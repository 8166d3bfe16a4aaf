// Package ai implements the AI execution collaborator and the node handler
// that delegates to it.
package ai

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Tsinling0525/canvasflow/model"
	"github.com/Tsinling0525/canvasflow/nodes"
	"github.com/Tsinling0525/canvasflow/plugin"
	"github.com/Tsinling0525/canvasflow/templating"
)

// Request holds the parameters common to every provider.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

type Completion struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Provider is implemented by specific model backends (OpenAI, Ollama).
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Completion, error)
}

// Service routes ai node calls to a provider chosen by config["provider"].
type Service struct {
	providers       map[string]Provider
	defaultProvider string
	logger          *zap.Logger
}

func NewService(defaultProvider string, logger *zap.Logger, providers ...Provider) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		providers:       make(map[string]Provider, len(providers)),
		defaultProvider: defaultProvider,
		logger:          logger.With(zap.String("component", "ai_service")),
	}
	for _, p := range providers {
		s.providers[p.Name()] = p
	}
	return s
}

func (s *Service) Execute(ctx context.Context, nodeType model.NodeType, cfg map[string]any, input any, previous map[model.ID]any) (map[string]any, error) {
	name := nodes.String(cfg, "provider")
	if name == "" {
		name = s.defaultProvider
	}
	p, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("AI provider not configured: %s", name)
	}

	req := Request{Model: nodes.String(cfg, "model")}
	if t, ok := nodes.Number(cfg, "temperature"); ok {
		req.Temperature = t
	}
	if mt, ok := nodes.Number(cfg, "maxTokens"); ok {
		req.MaxTokens = int(mt)
	}

	switch nodeType {
	case model.TypeAIChat:
		req.System = nodes.String(cfg, "systemPrompt")
		req.Prompt = nodes.String(cfg, "prompt")
		if strings.TrimSpace(req.Prompt) == "" {
			return nil, fmt.Errorf("prompt is required")
		}
	case model.TypeAISummarize:
		text := nodes.String(cfg, "text")
		if strings.TrimSpace(text) == "" {
			text = templating.Stringify(input)
		}
		req.Prompt = summarizePrompt(text, cfg)
	default:
		return nil, fmt.Errorf("Unknown ai node type: %s", nodeType)
	}

	s.logger.Debug("generating", zap.String("provider", name), zap.String("model", req.Model), zap.String("node_type", string(nodeType)))
	c, err := p.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return map[string]any{
		"response": c.Text,
		"model":    c.Model,
		"provider": name,
		"usage": map[string]any{
			"promptTokens":     c.PromptTokens,
			"completionTokens": c.CompletionTokens,
		},
	}, nil
}

func summarizePrompt(text string, cfg map[string]any) string {
	words := 100
	if n, ok := nodes.Number(cfg, "maxWords"); ok && n > 0 {
		words = int(n)
	}
	return fmt.Sprintf("Summarize the following text in at most %d words.\n\n%s", words, text)
}

var _ plugin.AIExecutor = (*Service)(nil)
