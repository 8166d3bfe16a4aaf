// Package app wires configuration into a running engine with its stores,
// providers and observers. The server and the CLI share it.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Tsinling0525/canvasflow/config"
	"github.com/Tsinling0525/canvasflow/engine"
	"github.com/Tsinling0525/canvasflow/infra"
	"github.com/Tsinling0525/canvasflow/metrics"
	"github.com/Tsinling0525/canvasflow/nodes/ai"
	httpnode "github.com/Tsinling0525/canvasflow/nodes/http"
	"github.com/Tsinling0525/canvasflow/plugin"
	"github.com/Tsinling0525/canvasflow/sandbox"
	"github.com/Tsinling0525/canvasflow/session"
)

const metricsNamespace = "canvasflow"

type App struct {
	Config   *config.Config
	Engine   *engine.Engine
	Storage  *infra.Stack
	Sessions *session.Manager
	Metrics  *metrics.Collector
	Logger   *zap.Logger
}

// New opens the configured storage and builds the engine on top of it.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	stack, err := infra.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	collector := metrics.NewCollector(metricsNamespace, logger)
	eng := engine.New(Deps(cfg, logger),
		engine.WithLogger(logger),
		engine.WithRunLog(stack.Runs),
		engine.WithObservers(collector),
		engine.WithNodeTimeout(cfg.Engine.NodeTimeout),
		engine.WithRunTimeout(cfg.Engine.RunTimeout),
	)

	return &App{
		Config:   cfg,
		Engine:   eng,
		Storage:  stack,
		Sessions: session.NewManager(stack.Workflows, eng, session.DefaultHistory, logger),
		Metrics:  collector,
		Logger:   logger,
	}, nil
}

// Deps builds the node collaborators: AI providers, the HTTP proxy and the
// script sandbox.
func Deps(cfg *config.Config, logger *zap.Logger) plugin.Deps {
	providers := []ai.Provider{
		ai.NewOllama(cfg.AI.Ollama.Endpoint, cfg.AI.Ollama.Model, cfg.AI.Timeout),
	}
	if cfg.AI.OpenAI.APIKey != "" || cfg.AI.OpenAI.BaseURL != "" {
		providers = append(providers, ai.NewOpenAI(cfg.AI.OpenAI.APIKey, cfg.AI.OpenAI.BaseURL, cfg.AI.OpenAI.Model, cfg.AI.Timeout))
	} else {
		logger.Info("openai provider disabled: no api key")
	}
	return plugin.Deps{
		AI:   ai.NewService(cfg.AI.DefaultProvider, logger, providers...),
		HTTP: httpnode.NewProxy(cfg.HTTP.Timeout, logger),
		Eval: sandbox.New(cfg.Sandbox.Timeout, logger),
	}
}

func (a *App) Close() error {
	return a.Storage.Close()
}
