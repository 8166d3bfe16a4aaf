package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Tsinling0525/canvasflow/config"
)

// Stack bundles the stores selected by the storage configuration.
type Stack struct {
	Runs      RunLog
	Workflows WorkflowStore

	closers []func() error
}

func (s *Stack) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open builds the stores for cfg.Driver. The redis driver keeps run records
// in Redis and workflows as JSON files.
func Open(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*Stack, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "storage"))

	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory storage")
		return &Stack{Runs: NewMemRunLog(cfg.RunLogCapacity), Workflows: NewMemWorkflows()}, nil

	case "file", "":
		wfs, err := NewFileWorkflows(WorkflowsDir(cfg.DataDir))
		if err != nil {
			return nil, err
		}
		runs, err := NewFileRunLog(RunsDir(cfg.DataDir), cfg.RunLogCapacity)
		if err != nil {
			return nil, err
		}
		logger.Info("using file storage", zap.String("data_dir", dataDir(cfg.DataDir)))
		return &Stack{Runs: runs, Workflows: wfs}, nil

	case "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			if err := ensureDir(dataDir(cfg.DataDir)); err != nil {
				return nil, err
			}
			path = SQLitePath(cfg.DataDir)
		}
		db, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		st, err := NewSQLStore(db, cfg.RunLogCapacity)
		if err != nil {
			return nil, err
		}
		logger.Info("using sqlite storage", zap.String("path", path))
		return &Stack{Runs: st.Runs(), Workflows: st.Workflows(), closers: []func() error{st.Close}}, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect to redis %s: %w", cfg.Redis.Addr, err)
		}
		wfs, err := NewFileWorkflows(WorkflowsDir(cfg.DataDir))
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		logger.Info("using redis run log", zap.String("addr", cfg.Redis.Addr))
		return &Stack{
			Runs:      NewRedisRunLog(client, cfg.Redis.KeyPrefix, cfg.RunLogCapacity),
			Workflows: wfs,
			closers:   []func() error{client.Close},
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
